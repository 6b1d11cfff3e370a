// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"storj.io/rebloom/pkg/rebloom"
	"storj.io/rebloom/private/bitstore"
)

// membership is the part of Filter and Scalable the add and check
// commands need.
type membership interface {
	AddString(ctx context.Context, key string) (bool, error)
	ContainsString(ctx context.Context, key string) (bool, error)
	Count(ctx context.Context) (int64, error)
	SizeBits() uint64
}

func (config *Config) openMembership(ctx context.Context, store bitstore.Store, key string) (membership, error) {
	if config.Scalable.Enabled {
		return rebloom.NewScalable(ctx, store, key, config.Filter.Size, config.scalableOptions())
	}
	return config.openFilter(ctx, store, key)
}

func newAddCmd(config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "add KEY VALUE...",
		Short: "Add values to a filter",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.withStore(cmd, func(ctx context.Context, store bitstore.Store) error {
				filter, err := config.openMembership(ctx, store, args[0])
				if err != nil {
					return err
				}
				for _, value := range args[1:] {
					added, err := filter.AddString(ctx, value)
					if err != nil {
						return err
					}
					state := "added"
					if !added {
						state = "present"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", value, state)
				}
				return nil
			})
		},
	}
}

func newCheckCmd(config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check KEY VALUE...",
		Short: "Check whether values are in a filter",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.withStore(cmd, func(ctx context.Context, store bitstore.Store) error {
				filter, err := config.openMembership(ctx, store, args[0])
				if err != nil {
					return err
				}
				for _, value := range args[1:] {
					ok, err := filter.ContainsString(ctx, value)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", value, ok)
				}
				return nil
			})
		},
	}
}

func newCountCmd(config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "count KEY",
		Short: "Print the number of set bits and the fill ratio of a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.withStore(cmd, func(ctx context.Context, store bitstore.Store) error {
				filter, err := config.openMembership(ctx, store, args[0])
				if err != nil {
					return err
				}
				count, err := filter.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "bits\t%d\nsize\t%d\nfill\t%.4f\n",
					count, filter.SizeBits(), float64(count)/float64(filter.SizeBits()))
				return nil
			})
		},
	}
}

type combineFunc func(filter *rebloom.Filter, ctx context.Context, other *rebloom.Filter, destKey string) (*rebloom.Filter, error)

func newCombineCmd(config *Config, use, short string, combine combineFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " KEY_A KEY_B DEST",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.withStore(cmd, func(ctx context.Context, store bitstore.Store) error {
				a, err := config.openFilter(ctx, store, args[0])
				if err != nil {
					return err
				}
				b, err := config.openFilter(ctx, store, args[1])
				if err != nil {
					return err
				}
				result, err := combine(a, ctx, b, args[2])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Key())
				return nil
			})
		},
	}
}

func newCopyCmd(config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "copy KEY DEST",
		Short: "Copy a filter to another key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.withStore(cmd, func(ctx context.Context, store bitstore.Store) error {
				filter, err := config.openFilter(ctx, store, args[0])
				if err != nil {
					return err
				}
				copied, err := filter.Copy(ctx, args[1])
				if copied != nil {
					fmt.Fprintln(cmd.OutOrStdout(), copied.Key())
				}
				return err
			})
		},
	}
}
