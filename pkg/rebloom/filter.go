// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package rebloom

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storj.io/rebloom/pkg/hashfamily"
	"storj.io/rebloom/private/bitstore"
)

// Filter is a bloom filter stored under a single key.
type Filter struct {
	store bitstore.Store
	log   *zap.Logger

	key         string
	sizeBits    uint64
	errorRate   float64
	hashCount   int
	hashSeed    uint32
	byteAligned bool
	ttl         time.Duration
	family      hashfamily.Family

	copyTTL time.Duration
}

// New returns a filter of sizeBits bits stored under key.
//
// With opts.Initialize the remote vector is sized by clearing its last bit,
// and opts.TTL, when set, is applied to the key.
func New(ctx context.Context, store bitstore.Store, key string, sizeBits int64, opts Options) (_ *Filter, err error) {
	defer mon.Task()(&ctx)(&err)

	filter, err := newFilter(store, key, sizeBits, opts)
	if err != nil {
		return nil, err
	}
	if opts.Initialize {
		if err := filter.initialize(ctx); err != nil {
			return nil, err
		}
	}

	filter.log.Debug("filter created",
		zap.String("key", filter.key),
		zap.Uint64("size", filter.sizeBits),
		zap.Int("hashes", filter.hashCount),
		zap.Bool("initialized", opts.Initialize))
	return filter, nil
}

// newFilter validates the parameters without touching the store.
func newFilter(store bitstore.Store, key string, sizeBits int64, opts Options) (*Filter, error) {
	if err := validate(key, sizeBits, opts.ErrorRate); err != nil {
		return nil, err
	}
	opts = opts.normalize()

	size := uint64(sizeBits)
	if opts.ByteAligned {
		size = AlignSize(size)
	}

	return &Filter{
		store:       store,
		log:         opts.Log,
		key:         key,
		sizeBits:    size,
		errorRate:   opts.ErrorRate,
		hashCount:   HashCount(opts.ErrorRate),
		hashSeed:    opts.HashSeed,
		byteAligned: opts.ByteAligned,
		ttl:         opts.TTL,
		family:      opts.Family,
		copyTTL:     opts.CopyTransientTTL,
	}, nil
}

func (filter *Filter) initialize(ctx context.Context) error {
	if _, err := filter.store.SetBit(ctx, filter.key, filter.sizeBits-1, false); err != nil {
		return ErrStoreCommunication.Wrap(err)
	}
	return filter.expire(ctx, filter.key)
}

func (filter *Filter) expire(ctx context.Context, key string) error {
	if filter.ttl <= 0 {
		return nil
	}
	return ErrStoreCommunication.Wrap(filter.store.Expire(ctx, key, filter.ttl))
}

// options returns the options that create a filter with identical parameters.
func (filter *Filter) options() Options {
	return Options{
		ErrorRate:        filter.errorRate,
		ByteAligned:      filter.byteAligned,
		HashSeed:         filter.hashSeed,
		TTL:              filter.ttl,
		Family:           filter.family,
		CopyTransientTTL: filter.copyTTL,
		Log:              filter.log,
	}
}

func (filter *Filter) positions(key []byte) []uint64 {
	return hashfamily.Positions(filter.family, key, filter.hashSeed, filter.hashCount, filter.sizeBits)
}

// Add sets the bits of key in one round trip.
//
// It returns true when at least one bit was previously unset, that is,
// the key was certainly not present before. False means the key was
// probably added before; bits set by other keys can also cause false for
// a new key.
func (filter *Filter) Add(ctx context.Context, key []byte) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	positions := filter.positions(key)
	ops := make([]bitstore.Op, len(positions))
	for i, pos := range positions {
		ops[i] = bitstore.SetBitOp(filter.key, pos, true)
	}

	previous, err := filter.store.Batch(ctx, ops)
	if err != nil {
		return false, ErrStoreCommunication.Wrap(err)
	}
	for _, bit := range previous {
		if !bit {
			return true, nil
		}
	}
	return false, nil
}

// AddString is Add for string keys.
func (filter *Filter) AddString(ctx context.Context, key string) (bool, error) {
	return filter.Add(ctx, []byte(key))
}

// MAdd adds keys one by one. On failure the results of the keys added so
// far are returned with the error.
func (filter *Filter) MAdd(ctx context.Context, keys [][]byte) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)

	results := make([]bool, 0, len(keys))
	for _, key := range keys {
		added, err := filter.Add(ctx, key)
		if err != nil {
			return results, err
		}
		results = append(results, added)
	}
	return results, nil
}

// Contains reads the bits of key in one round trip and reports whether all
// of them are set. False is definite, true is probable.
func (filter *Filter) Contains(ctx context.Context, key []byte) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	positions := filter.positions(key)
	ops := make([]bitstore.Op, len(positions))
	for i, pos := range positions {
		ops[i] = bitstore.GetBitOp(filter.key, pos)
	}

	bits, err := filter.store.Batch(ctx, ops)
	if err != nil {
		return false, ErrStoreCommunication.Wrap(err)
	}
	for _, bit := range bits {
		if !bit {
			return false, nil
		}
	}
	return true, nil
}

// ContainsString is Contains for string keys.
func (filter *Filter) ContainsString(ctx context.Context, key string) (bool, error) {
	return filter.Contains(ctx, []byte(key))
}

// MExists checks keys one by one. Each key costs one round trip; on
// failure no results are returned.
func (filter *Filter) MExists(ctx context.Context, keys [][]byte) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)

	results := make([]bool, len(keys))
	for i, key := range keys {
		results[i], err = filter.Contains(ctx, key)
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Count returns the number of set bits.
func (filter *Filter) Count(ctx context.Context) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	count, err := filter.store.BitCount(ctx, filter.key, 0, -1)
	if err != nil {
		return 0, ErrStoreCommunication.Wrap(err)
	}
	return count, nil
}

// FillRatio returns the fraction of set bits.
func (filter *Filter) FillRatio(ctx context.Context) (float64, error) {
	count, err := filter.Count(ctx)
	if err != nil {
		return 0, err
	}
	return float64(count) / float64(filter.sizeBits), nil
}

// Key returns the store key of the bit vector.
func (filter *Filter) Key() string { return filter.key }

// SizeBits returns the size of the vector after alignment.
func (filter *Filter) SizeBits() uint64 { return filter.sizeBits }

// ErrorRate returns the target false positive probability.
func (filter *Filter) ErrorRate() float64 { return filter.errorRate }

// HashCount returns the number of bits set per key.
func (filter *Filter) HashCount() int { return filter.hashCount }

// HashSeed returns the seed of the first hash function.
func (filter *Filter) HashSeed() uint32 { return filter.hashSeed }

// ByteAligned reports whether the size was rounded to whole bytes.
func (filter *Filter) ByteAligned() bool { return filter.byteAligned }

// TTL returns the expiration applied to the key.
func (filter *Filter) TTL() time.Duration { return filter.ttl }

// Family returns the hash primitive.
func (filter *Filter) Family() hashfamily.Family { return filter.family }
