// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package rebloom_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/rebloom/pkg/rebloom"
	"storj.io/rebloom/private/bitstore"
	"storj.io/rebloom/private/bitstore/teststore"
)

func scalableOptions(growth int) rebloom.ScalableOptions {
	return rebloom.ScalableOptions{
		Options:      options(0.01),
		GrowthFactor: growth,
	}
}

func TestScalableGrowth(t *testing.T) {
	runStores(t, func(t *testing.T, ctx *testcontext.Context, store bitstore.Store) {
		key := uniqueKey("scalable")
		scalable, err := rebloom.NewScalable(ctx, store, key, 64, scalableOptions(0))
		require.NoError(t, err)
		require.Len(t, scalable.Layers(), 1)
		require.Equal(t, key, scalable.Key())
		require.Equal(t, 2, scalable.HashCount())

		const n = 300
		for i := 0; i < n; i++ {
			_, err := scalable.AddString(ctx, fmt.Sprintf("key-%d", i))
			require.NoError(t, err)
		}
		for i := 0; i < n; i++ {
			ok, err := scalable.ContainsString(ctx, fmt.Sprintf("key-%d", i))
			require.NoError(t, err)
			require.True(t, ok)
		}

		layers := scalable.Layers()
		require.Greater(t, len(layers), 1)

		var total uint64
		var counted int64
		for i, layer := range layers {
			require.Equal(t, fmt.Sprintf("%s:%d", key, i), layer.Key())
			require.Equal(t, uint64(64)<<i, layer.SizeBits())
			total += layer.SizeBits()

			count, err := layer.Count(ctx)
			require.NoError(t, err)
			counted += count
		}
		require.Equal(t, total, scalable.SizeBits())

		count, err := scalable.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, counted, count)

		// every layer but the newest is past the threshold
		for _, layer := range layers[:len(layers)-1] {
			fill, err := layer.FillRatio(ctx)
			require.NoError(t, err)
			require.Greater(t, fill, rebloom.DefaultFillThreshold)
		}

		reopened, err := rebloom.NewScalable(ctx, store, key, 64, scalableOptions(0))
		require.NoError(t, err)
		require.Len(t, reopened.Layers(), len(layers))
		require.Equal(t, scalable.SizeBits(), reopened.SizeBits())
		for i := 0; i < n; i++ {
			ok, err := reopened.ContainsString(ctx, fmt.Sprintf("key-%d", i))
			require.NoError(t, err)
			require.True(t, ok)
		}
	})
}

func TestScalableDuplicate(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	scalable, err := rebloom.NewScalable(ctx, store, "dup", 1024, scalableOptions(0))
	require.NoError(t, err)

	added, err := scalable.AddString(ctx, "x")
	require.NoError(t, err)
	require.True(t, added)

	setBits := store.CallCount.Batch
	added, err = scalable.AddString(ctx, "x")
	require.NoError(t, err)
	require.False(t, added)
	// only the membership check
	require.Equal(t, setBits+1, store.CallCount.Batch)

	ok, err := scalable.ContainsString(ctx, "y")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScalableFixedSize(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	scalable, err := rebloom.NewScalable(ctx, store, "fixed", 64, scalableOptions(1))
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		_, err := scalable.AddString(ctx, fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
	}

	layers := scalable.Layers()
	require.Greater(t, len(layers), 2)
	for _, layer := range layers {
		require.EqualValues(t, 64, layer.SizeBits())
	}
}

func TestScalableValidation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()

	for _, tc := range []struct {
		name string
		key  string
		size int64
		opts rebloom.ScalableOptions
	}{
		{"empty key", "", 64, scalableOptions(0)},
		{"zero size", "key", 0, scalableOptions(0)},
		{"negative growth", "key", 64, scalableOptions(-1)},
		{"threshold above one", "key", 64, rebloom.ScalableOptions{Options: options(0.01), FillThreshold: 1.5}},
		{"negative threshold", "key", 64, rebloom.ScalableOptions{Options: options(0.01), FillThreshold: -0.5}},
		{"bad error rate", "key", 64, rebloom.ScalableOptions{Options: options(0)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := rebloom.NewScalable(ctx, store, tc.key, tc.size, tc.opts)
			require.True(t, rebloom.ErrValidation.Has(err), "%+v", err)
		})
	}
	require.Zero(t, store.Calls())
}

func TestScalableStoreFailure(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	store.ForceError = 1
	_, err := rebloom.NewScalable(ctx, store, "failing", 64, scalableOptions(0))
	require.True(t, rebloom.ErrStoreCommunication.Has(err), "%+v", err)

	scalable, err := rebloom.NewScalable(ctx, store, "failing", 64, scalableOptions(0))
	require.NoError(t, err)

	store.ForceError = 1
	_, err = scalable.AddString(ctx, "x")
	require.True(t, rebloom.ErrStoreCommunication.Has(err), "%+v", err)

	store.ForceError = 1
	_, err = scalable.Count(ctx)
	require.True(t, rebloom.ErrStoreCommunication.Has(err), "%+v", err)
}

func TestScalableConcurrentGrowth(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	scalable, err := rebloom.NewScalable(ctx, store, "concurrent", 64, scalableOptions(0))
	require.NoError(t, err)

	const workers, perWorker = 4, 100
	for w := 0; w < workers; w++ {
		ctx.Go(func() error {
			for i := 0; i < perWorker; i++ {
				if _, err := scalable.AddString(ctx, fmt.Sprintf("%d-%d", w, i)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	ctx.Wait()

	// layers are contiguous, so reopening finds all of them
	reopened, err := rebloom.NewScalable(ctx, store, "concurrent", 64, scalableOptions(0))
	require.NoError(t, err)
	require.Len(t, reopened.Layers(), len(scalable.Layers()))

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			ok, err := reopened.ContainsString(ctx, fmt.Sprintf("%d-%d", w, i))
			require.NoError(t, err)
			require.True(t, ok)
		}
	}
}

func addScalable(t *testing.T, ctx *testcontext.Context, scalable *rebloom.Scalable, n int) {
	for i := 0; i < n; i++ {
		_, err := scalable.AddString(ctx, fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
	}
}

func TestScalableExpiresTogether(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	now := time.Now()
	store := teststore.New()
	store.Now = func() time.Time { return now }

	opts := scalableOptions(0)
	opts.TTL = time.Hour
	scalable, err := rebloom.NewScalable(ctx, store, "expiring", 64, opts)
	require.NoError(t, err)

	now = now.Add(40 * time.Minute)
	addScalable(t, ctx, scalable, 300)

	layers := scalable.Layers()
	require.Greater(t, len(layers), 1)
	for _, layer := range layers {
		require.Equal(t, time.Hour, store.TTL(layer.Key()), layer.Key())
	}
	require.Equal(t, time.Hour, store.TTL("expiring:meta"))

	// past the TTL the first layer was created with
	now = now.Add(30 * time.Minute)

	reopened, err := rebloom.NewScalable(ctx, store, "expiring", 64, opts)
	require.NoError(t, err)
	require.Len(t, reopened.Layers(), len(layers))
	for i := 0; i < 300; i++ {
		ok, err := reopened.ContainsString(ctx, fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	now = now.Add(time.Hour)
	require.Zero(t, store.Keys())

	reopened, err = rebloom.NewScalable(ctx, store, "expiring", 64, opts)
	require.NoError(t, err)
	require.Len(t, reopened.Layers(), 1)
}

func TestScalableMissingLayer(t *testing.T) {
	runStores(t, func(t *testing.T, ctx *testcontext.Context, store bitstore.Store) {
		key := uniqueKey("missing")
		scalable, err := rebloom.NewScalable(ctx, store, key, 64, scalableOptions(0))
		require.NoError(t, err)
		addScalable(t, ctx, scalable, 300)

		layers := scalable.Layers()
		require.Greater(t, len(layers), 1)
		require.NoError(t, store.Delete(ctx, layers[0].Key()))

		reopened, err := rebloom.NewScalable(ctx, store, key, 64, scalableOptions(0))
		require.NoError(t, err)
		require.Len(t, reopened.Layers(), len(layers))
		require.Equal(t, scalable.SizeBits(), reopened.SizeBits())

		var found int
		for i := 0; i < 300; i++ {
			value := fmt.Sprintf("key-%d", i)
			want, err := scalable.ContainsString(ctx, value)
			require.NoError(t, err)
			got, err := reopened.ContainsString(ctx, value)
			require.NoError(t, err)
			require.Equal(t, want, got, value)
			if got {
				found++
			}
		}
		require.NotZero(t, found)
	})
}

func TestScalableParameterMismatch(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	scalable, err := rebloom.NewScalable(ctx, store, "params", 1024, scalableOptions(0))
	require.NoError(t, err)
	addScalable(t, ctx, scalable, 50)

	_, err = rebloom.NewScalable(ctx, store, "params", 512, scalableOptions(0))
	require.True(t, rebloom.ErrParameterMismatch.Has(err), "%+v", err)

	_, err = rebloom.NewScalable(ctx, store, "params", 1024, scalableOptions(1))
	require.True(t, rebloom.ErrParameterMismatch.Has(err), "%+v", err)

	// rounds up to the stored size
	reopened, err := rebloom.NewScalable(ctx, store, "params", 1020, scalableOptions(0))
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		ok, err := reopened.ContainsString(ctx, fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, store.SetRaw(ctx, "params:meta", []byte("{")))
	_, err = rebloom.NewScalable(ctx, store, "params", 1024, scalableOptions(0))
	require.True(t, rebloom.ErrFormat.Has(err), "%+v", err)
}

func TestScalableRefresh(t *testing.T) {
	runStores(t, func(t *testing.T, ctx *testcontext.Context, store bitstore.Store) {
		key := uniqueKey("shared")
		writer, err := rebloom.NewScalable(ctx, store, key, 64, scalableOptions(0))
		require.NoError(t, err)
		reader, err := rebloom.NewScalable(ctx, store, key, 64, scalableOptions(0))
		require.NoError(t, err)

		addScalable(t, ctx, writer, 300)
		require.Greater(t, len(writer.Layers()), 1)
		require.Len(t, reader.Layers(), 1)

		require.NoError(t, reader.Refresh(ctx))
		require.Len(t, reader.Layers(), len(writer.Layers()))
		for i := 0; i < 300; i++ {
			ok, err := reader.ContainsString(ctx, fmt.Sprintf("key-%d", i))
			require.NoError(t, err)
			require.True(t, ok)
		}
	})
}
