// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package storelogger

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/rebloom/private/bitstore"
)

var mon = monkit.Package()

var id int64

// Logger implements a zap.Logger for bitstore.Store.
type Logger struct {
	log   *zap.Logger
	store bitstore.Store
}

var _ bitstore.Store = (*Logger)(nil)

// New creates a new Logger with log and store.
func New(log *zap.Logger, store bitstore.Store) *Logger {
	loggerid := atomic.AddInt64(&id, 1)
	name := strconv.Itoa(int(loggerid))
	return &Logger{log.Named(name), store}
}

// SetBit sets the bit at offset and returns its previous value.
func (store *Logger) SetBit(ctx context.Context, key string, offset uint64, value bool) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("SetBit", zap.String("key", key), zap.Uint64("offset", offset), zap.Bool("value", value))
	return store.store.SetBit(ctx, key, offset, value)
}

// GetBit returns the bit at offset.
func (store *Logger) GetBit(ctx context.Context, key string, offset uint64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("GetBit", zap.String("key", key), zap.Uint64("offset", offset))
	return store.store.GetBit(ctx, key, offset)
}

// Batch runs ops in a single round trip.
func (store *Logger) Batch(ctx context.Context, ops []bitstore.Op) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Batch", zap.Int("ops", len(ops)))
	for _, op := range ops {
		store.log.Debug("  ",
			zap.Stringer("kind", op.Kind),
			zap.String("key", op.Key),
			zap.Uint64("offset", op.Offset),
			zap.Bool("value", op.Value),
		)
	}
	return store.store.Batch(ctx, ops)
}

// BitOp stores op(srcA, srcB) into destKey.
func (store *Logger) BitOp(ctx context.Context, op bitstore.Operation, destKey, srcA, srcB string) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("BitOp", zap.String("op", string(op)), zap.String("dest", destKey), zap.String("a", srcA), zap.String("b", srcB))
	return store.store.BitOp(ctx, op, destKey, srcA, srcB)
}

// BitCount counts set bits in the byte range [start, end] of key.
func (store *Logger) BitCount(ctx context.Context, key string, start, end int64) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("BitCount", zap.String("key", key), zap.Int64("start", start), zap.Int64("end", end))
	return store.store.BitCount(ctx, key, start, end)
}

// SetRaw overwrites the value of key.
func (store *Logger) SetRaw(ctx context.Context, key string, value []byte) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("SetRaw", zap.String("key", key), zap.Int("value length", len(value)), zap.Binary("truncated value", truncate(value)))
	return store.store.SetRaw(ctx, key, value)
}

// GetRaw returns the value of key.
func (store *Logger) GetRaw(ctx context.Context, key string) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("GetRaw", zap.String("key", key))
	return store.store.GetRaw(ctx, key)
}

// Expire sets a time to live on key.
func (store *Logger) Expire(ctx context.Context, key string, ttl time.Duration) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Expire", zap.String("key", key), zap.Duration("ttl", ttl))
	return store.store.Expire(ctx, key, ttl)
}

// Delete removes key.
func (store *Logger) Delete(ctx context.Context, key string) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Delete", zap.String("key", key))
	return store.store.Delete(ctx, key)
}

// Exists reports whether key is present.
func (store *Logger) Exists(ctx context.Context, key string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Exists", zap.String("key", key))
	return store.store.Exists(ctx, key)
}

// Close closes the store.
func (store *Logger) Close() error {
	store.log.Debug("Close")
	return store.store.Close()
}

func truncate(v []byte) (t []byte) {
	if len(v)-1 < 10 {
		t = v
	} else {
		t = v[:10]
	}
	return t
}
