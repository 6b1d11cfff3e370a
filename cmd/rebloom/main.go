// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/rebloom/pkg/process"
	"storj.io/rebloom/pkg/rebloom"
	"storj.io/rebloom/private/bitstore"
	"storj.io/rebloom/private/bitstore/redisbits"
	"storj.io/rebloom/private/bitstore/storelogger"
)

// Config is the configuration shared by all commands.
type Config struct {
	Redis struct {
		URL string `default:"redis://127.0.0.1:6379/0" help:"redis url, redis://[:password@]host:port/db"`
	}
	Filter struct {
		Size        int64         `default:"1048576" help:"size of the bit vector in bits"`
		ErrorRate   float64       `default:"0.001" help:"target false positive rate"`
		HashSeed    uint32        `default:"41" help:"seed of the first hash function"`
		ByteAligned bool          `default:"true" help:"round the size up to whole bytes"`
		Initialize  bool          `default:"false" help:"size the vector on first use"`
		TTL         time.Duration `default:"0s" help:"expiration of created keys, 0 to never expire"`
	}
	Scalable struct {
		Enabled       bool    `default:"false" help:"treat keys as scalable filters made of layers"`
		FillThreshold float64 `default:"0.5" help:"fill ratio past which a layer is added"`
		GrowthFactor  int     `default:"2" help:"size ratio between consecutive layers"`
	}
}

func (config *Config) options() rebloom.Options {
	return rebloom.Options{
		ErrorRate:   config.Filter.ErrorRate,
		ByteAligned: config.Filter.ByteAligned,
		HashSeed:    config.Filter.HashSeed,
		Initialize:  config.Filter.Initialize,
		TTL:         config.Filter.TTL,
		Log:         zap.L().Named("rebloom"),
	}
}

func (config *Config) scalableOptions() rebloom.ScalableOptions {
	return rebloom.ScalableOptions{
		Options:       config.options(),
		FillThreshold: config.Scalable.FillThreshold,
		GrowthFactor:  config.Scalable.GrowthFactor,
	}
}

// openStore connects to the configured redis.
func (config *Config) openStore(ctx context.Context) (bitstore.Store, error) {
	client, err := redisbits.OpenClientFrom(ctx, config.Redis.URL)
	if err != nil {
		return nil, err
	}
	return storelogger.New(zap.L(), client), nil
}

func (config *Config) openFilter(ctx context.Context, store bitstore.Store, key string) (*rebloom.Filter, error) {
	return rebloom.New(ctx, store, key, config.Filter.Size, config.options())
}

// withStore runs fn with a connected store and a context canceled on
// interrupt.
func (config *Config) withStore(cmd *cobra.Command, fn func(ctx context.Context, store bitstore.Store) error) (err error) {
	ctx, cancel := process.Ctx(cmd)
	defer cancel()

	store, err := config.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, store.Close()) }()

	return fn(ctx, store)
}

func newRootCmd() *cobra.Command {
	var config Config

	rootCmd := &cobra.Command{
		Use:          "rebloom",
		Short:        "Inspect and manage bloom filters stored in redis",
		SilenceUsage: true,
	}
	process.Bind(rootCmd.PersistentFlags(), &config)

	rootCmd.AddCommand(
		newAddCmd(&config),
		newCheckCmd(&config),
		newCountCmd(&config),
		newCombineCmd(&config, "union", "Store the union of two filters", (*rebloom.Filter).Union),
		newCombineCmd(&config, "intersect", "Store the intersection of two filters", (*rebloom.Filter).Intersection),
		newCopyCmd(&config),
		newExportCmd(&config),
		newImportCmd(&config),
		newSetupCmd(),
	)
	return rootCmd
}

func main() {
	process.Exec(newRootCmd())
}
