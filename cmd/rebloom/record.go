// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/rebloom/pkg/rebloom"
	"storj.io/rebloom/private/bitstore"
)

func newExportCmd(config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "export KEY [FILE]",
		Short: "Write a filter record as JSON, to stdout when FILE is missing or -",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.withStore(cmd, func(ctx context.Context, store bitstore.Store) (err error) {
				filter, err := config.openFilter(ctx, store, args[0])
				if err != nil {
					return err
				}
				rec, err := filter.Export(ctx)
				if err != nil {
					return err
				}

				if len(args) < 2 || args[1] == "-" {
					return rebloom.WriteRecord(cmd.OutOrStdout(), rec)
				}
				file, err := os.Create(args[1])
				if err != nil {
					return errs.Wrap(err)
				}
				defer func() { err = errs.Combine(err, file.Close()) }()
				return rebloom.WriteRecord(file, rec)
			})
		},
	}
}

func newImportCmd(config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE [KEY]",
		Short: "Load a filter record, from stdin when FILE is -, optionally under another key",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := readRecordFile(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if len(args) > 1 {
				rec.Key = args[1]
			}

			return config.withStore(cmd, func(ctx context.Context, store bitstore.Store) error {
				filter, err := rebloom.Import(ctx, store, rec, rebloom.Options{Log: zap.L().Named("rebloom")})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), filter.Key())
				return nil
			})
		},
	}
}

func readRecordFile(stdin io.Reader, path string) (_ *rebloom.Record, err error) {
	if path == "-" {
		return rebloom.ReadRecord(stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer func() { err = errs.Combine(err, file.Close()) }()
	return rebloom.ReadRecord(file)
}
