// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix of environment variables overriding flags.
const EnvPrefix = "rebloom"

func homeDir() string {
	home, err := homedir.Dir()
	if err != nil {
		log.Println(err)
		return "."
	}
	return home
}

// DefaultConfigPath returns the default location of the configuration file
// of the named process.
func DefaultConfigPath(name string) string {
	if name == "" {
		name = filepath.Base(os.Args[0])
	}
	return filepath.Join(homeDir(), "."+name, "config.yaml")
}

// Exec runs a *cobra.Command with the process arguments and exits on error.
func Exec(cmd *cobra.Command) {
	Must(ExecWithArgs(cmd, os.Args[1:]))
}

// ExecWithArgs runs a *cobra.Command and sets up process-wide configuration
// like a configuration file, environment overrides and logging.
//
// Flag values are resolved in order: command line, environment variables
// (REBLOOM_ prefix, dots and hyphens as underscores), configuration file,
// flag defaults.
func ExecWithArgs(cmd *cobra.Command, args []string) error {
	if cmd.PersistentFlags().Lookup("config") == nil {
		cmd.PersistentFlags().String("config", DefaultConfigPath(cmd.Name()), "path to configuration")
	}
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		if cmd.PersistentFlags().Lookup(f.Name) == nil {
			cmd.PersistentFlags().AddGoFlag(f)
		}
	})

	wrapCommands(cmd)

	cmd.SetArgs(args)
	return cmd.Execute()
}

func wrapCommands(cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		wrapCommands(sub)
	}

	internalRun := cmd.RunE
	if internalRun == nil {
		return
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) (err error) {
		vip, err := Viper(cmd)
		if err != nil {
			return err
		}
		if err := applyViper(cmd.Flags(), vip); err != nil {
			return err
		}

		logger, err := NewLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		defer zap.ReplaceGlobals(logger)()

		if err := initDebug(logger); err != nil {
			logger.Error("failed to start debug endpoints", zap.Error(err))
		}

		return internalRun(cmd, args)
	}
}

// Viper returns a viper instance bound to the flags of cmd, environment
// variables and the configuration file named by the config flag.
func Viper(cmd *cobra.Command) (*viper.Viper, error) {
	vip := viper.New()
	if err := vip.BindPFlags(cmd.Flags()); err != nil {
		return nil, Error.Wrap(err)
	}

	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vip.AutomaticEnv()

	// a missing configuration file leaves flags at their defaults
	if cfgFlag := cmd.Flags().Lookup("config"); cfgFlag != nil && cfgFlag.Value.String() != "" {
		path := cfgFlag.Value.String()
		if _, err := os.Stat(path); err == nil {
			vip.SetConfigFile(path)
			if err := vip.ReadInConfig(); err != nil {
				return nil, Error.Wrap(err)
			}
		}
	}
	return vip, nil
}

// applyViper sets every flag not given on the command line from vip.
func applyViper(flags *pflag.FlagSet, vip *viper.Viper) error {
	var group errs.Group
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "config" || !vip.IsSet(f.Name) {
			return
		}
		if err := f.Value.Set(vip.GetString(f.Name)); err != nil {
			group.Add(Error.New("%s: %w", f.Name, err))
		}
	})
	return group.Err()
}

// Ctx returns a context that is canceled on interrupt, and its cancel func.
func Ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Must checks for errors.
func Must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
