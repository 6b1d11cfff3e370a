// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"storj.io/rebloom/pkg/process"
)

func newSetupCmd() *cobra.Command {
	var setupCfg struct {
		Overwrite bool `default:"false" setup:"true" help:"whether to overwrite a pre-existing configuration file"`
	}

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create a config file from the current flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cmd.Flags().Lookup("config").Value.String()

			_, err := os.Stat(path)
			if !setupCfg.Overwrite && err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "A configuration already exists at %s. Rerun with --overwrite\n", path)
				return nil
			}

			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				return errs.Wrap(err)
			}
			if err := process.SaveConfig(cmd, path, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	process.Bind(cmd.Flags(), &setupCfg)
	return cmd
}
