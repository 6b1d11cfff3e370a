// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"
	"storj.io/rebloom/private/bitstore"
)

// RunTests runs common bitstore.Store tests.
func RunTests(t *testing.T, store bitstore.Store) {
	t.Run("Bits", func(t *testing.T) { testBits(t, store) })
	t.Run("Batch", func(t *testing.T) { testBatch(t, store) })
	t.Run("BitOp", func(t *testing.T) { testBitOp(t, store) })
	t.Run("BitCount", func(t *testing.T) { testBitCount(t, store) })
	t.Run("Raw", func(t *testing.T) { testRaw(t, store) })
	t.Run("Lifetime", func(t *testing.T) { testLifetime(t, store) })
	t.Run("Constraints", func(t *testing.T) { testConstraints(t, store) })
}

func newKey(t testing.TB) string {
	return t.Name() + "/" + testrand.UUID().String()
}

func testBits(t *testing.T, store bitstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t)
	defer func() { _ = store.Delete(ctx, key) }()

	bit, err := store.GetBit(ctx, key, 7)
	require.NoError(t, err)
	require.False(t, bit, "missing key reads as zero")

	prev, err := store.SetBit(ctx, key, 7, true)
	require.NoError(t, err)
	require.False(t, prev)

	prev, err = store.SetBit(ctx, key, 7, true)
	require.NoError(t, err)
	require.True(t, prev)

	bit, err = store.GetBit(ctx, key, 7)
	require.NoError(t, err)
	require.True(t, bit)

	bit, err = store.GetBit(ctx, key, 6)
	require.NoError(t, err)
	require.False(t, bit)

	// offset 0 is the most significant bit of the first byte
	_, err = store.SetBit(ctx, key, 0, true)
	require.NoError(t, err)
	raw, err := store.GetRaw(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte{0x81}, raw)

	prev, err = store.SetBit(ctx, key, 0, false)
	require.NoError(t, err)
	require.True(t, prev)
	raw, err = store.GetRaw(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, raw)

	// writing past the end grows the value
	_, err = store.SetBit(ctx, key, 23, false)
	require.NoError(t, err)
	raw, err = store.GetRaw(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x00, 0x00}, raw)
}

func testBatch(t *testing.T, store bitstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t)
	defer func() { _ = store.Delete(ctx, key) }()

	results, err := store.Batch(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, results)

	results, err = store.Batch(ctx, []bitstore.Op{
		bitstore.SetBitOp(key, 3, true),
		bitstore.SetBitOp(key, 3, true),
		bitstore.GetBitOp(key, 3),
		bitstore.GetBitOp(key, 4),
		bitstore.SetBitOp(key, 9, true),
	})
	require.NoError(t, err)
	require.Equal(t, []bool{false, true, true, false, false}, results)

	results, err = store.Batch(ctx, []bitstore.Op{
		bitstore.GetBitOp(key, 9),
		bitstore.SetBitOp(key, 9, false),
		bitstore.GetBitOp(key, 9),
	})
	require.NoError(t, err)
	require.Equal(t, []bool{true, true, false}, results)
}

func testBitOp(t *testing.T, store bitstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	a, b, dest := newKey(t), newKey(t), newKey(t)
	defer func() {
		for _, key := range []string{a, b, dest} {
			_ = store.Delete(ctx, key)
		}
	}()

	require.NoError(t, store.SetRaw(ctx, a, []byte{0xF0, 0x0F}))
	require.NoError(t, store.SetRaw(ctx, b, []byte{0x3C}))

	require.NoError(t, store.BitOp(ctx, bitstore.OR, dest, a, b))
	raw, err := store.GetRaw(ctx, dest)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFC, 0x0F}, raw)

	require.NoError(t, store.BitOp(ctx, bitstore.AND, dest, a, b))
	raw, err = store.GetRaw(ctx, dest)
	require.NoError(t, err)
	require.Equal(t, []byte{0x30, 0x00}, raw)

	// a missing source reads as zeros
	missing := newKey(t)
	require.NoError(t, store.BitOp(ctx, bitstore.OR, dest, a, missing))
	raw, err = store.GetRaw(ctx, dest)
	require.NoError(t, err)
	require.Equal(t, []byte{0xF0, 0x0F}, raw)
}

func testBitCount(t *testing.T, store bitstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t)
	defer func() { _ = store.Delete(ctx, key) }()

	count, err := store.BitCount(ctx, key, 0, -1)
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, store.SetRaw(ctx, key, []byte{0xFF, 0x01, 0x03}))

	count, err = store.BitCount(ctx, key, 0, -1)
	require.NoError(t, err)
	require.EqualValues(t, 11, count)

	count, err = store.BitCount(ctx, key, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, err = store.BitCount(ctx, key, -2, -1)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func testRaw(t *testing.T, store bitstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t)
	defer func() { _ = store.Delete(ctx, key) }()

	_, err := store.GetRaw(ctx, key)
	require.True(t, bitstore.ErrKeyNotFound.Has(err), "%+v", err)

	value := testrand.BytesInt(64)
	require.NoError(t, store.SetRaw(ctx, key, value))

	raw, err := store.GetRaw(ctx, key)
	require.NoError(t, err)
	require.Equal(t, value, raw)

	require.NoError(t, store.SetRaw(ctx, key, []byte{0x80}))
	bit, err := store.GetBit(ctx, key, 0)
	require.NoError(t, err)
	require.True(t, bit)
}

func testLifetime(t *testing.T, store bitstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t)
	defer func() { _ = store.Delete(ctx, key) }()

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	// expiring a missing key does nothing
	require.NoError(t, store.Expire(ctx, key, time.Hour))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = store.SetBit(ctx, key, 0, false)
	require.NoError(t, err)
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, store.Expire(ctx, key, time.Hour))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, store.Delete(ctx, key))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	// deleting again is fine
	require.NoError(t, store.Delete(ctx, key))
}

func testConstraints(t *testing.T, store bitstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	_, err := store.SetBit(ctx, "", 0, true)
	require.True(t, bitstore.ErrEmptyKey.Has(err))

	_, err = store.GetBit(ctx, "", 0)
	require.True(t, bitstore.ErrEmptyKey.Has(err))

	_, err = store.Batch(ctx, []bitstore.Op{bitstore.GetBitOp("", 0)})
	require.True(t, bitstore.ErrEmptyKey.Has(err))

	err = store.BitOp(ctx, bitstore.OR, "", "a", "b")
	require.True(t, bitstore.ErrEmptyKey.Has(err))

	err = store.BitOp(ctx, "XOR", newKey(t), newKey(t), newKey(t))
	require.Error(t, err)

	err = store.SetRaw(ctx, "", nil)
	require.True(t, bitstore.ErrEmptyKey.Has(err))
}
