// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package rebloom_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/rebloom/pkg/rebloom"
	"storj.io/rebloom/private/bitstore"
	"storj.io/rebloom/private/bitstore/redisbits"
	"storj.io/rebloom/private/bitstore/storelogger"
	"storj.io/rebloom/private/bitstore/teststore"
	"storj.io/rebloom/private/testredis"
)

// runStores runs test against the in-memory store and against redis.
func runStores(t *testing.T, test func(t *testing.T, ctx *testcontext.Context, store bitstore.Store)) {
	t.Run("teststore", func(t *testing.T) {
		ctx := testcontext.New(t)
		defer ctx.Cleanup()

		test(t, ctx, teststore.New())
	})

	t.Run("redis", func(t *testing.T) {
		ctx := testcontext.New(t)
		defer ctx.Cleanup()

		server, err := testredis.Start(ctx)
		require.NoError(t, err)
		defer func() { require.NoError(t, server.Close()) }()

		client, err := redisbits.OpenClient(ctx, server.Addr(), "", 0)
		require.NoError(t, err)
		defer ctx.Check(client.Close)

		test(t, ctx, storelogger.New(zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)), client))
	})
}

func uniqueKey(prefix string) string {
	return prefix + ":" + testrand.UUID().String()
}

func options(errorRate float64) rebloom.Options {
	opts := rebloom.DefaultOptions()
	opts.ErrorRate = errorRate
	return opts
}

func addKeys(t *testing.T, ctx *testcontext.Context, filter *rebloom.Filter, keys ...string) {
	for _, key := range keys {
		_, err := filter.AddString(ctx, key)
		require.NoError(t, err)
	}
}

func contains(t *testing.T, ctx *testcontext.Context, filter *rebloom.Filter, key string) bool {
	ok, err := filter.ContainsString(ctx, key)
	require.NoError(t, err)
	return ok
}
