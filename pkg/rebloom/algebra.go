// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package rebloom

import (
	"context"

	"go.uber.org/zap"

	"storj.io/common/uuid"
	"storj.io/rebloom/private/bitstore"
)

// Union stores the union of filter and other under destKey and returns a
// filter for it. The result reports a key iff either input does.
//
// Both filters must live in the same store and share hash count, hash
// seed, size and hash family, otherwise ErrParameterMismatch is returned
// before anything is written. The TTL of filter is applied to destKey.
//
// Retrying with different inputs overwrites destKey; a failure between
// Union and later use of the result leaves destKey at whatever the last
// successful operation produced.
func (filter *Filter) Union(ctx context.Context, other *Filter, destKey string) (_ *Filter, err error) {
	defer mon.Task()(&ctx)(&err)
	return filter.combine(ctx, bitstore.OR, other, destKey)
}

// Intersection stores the intersection of filter and other under destKey
// and returns a filter for it. Preconditions are those of Union.
//
// Any key the result reports is reported by both inputs, and a key absent
// from either input is absent from the result. The converse does not hold:
// bits of different keys from each input can line up, so the result may
// report keys that were never added to both filters, at a rate higher than
// either input's error rate.
func (filter *Filter) Intersection(ctx context.Context, other *Filter, destKey string) (_ *Filter, err error) {
	defer mon.Task()(&ctx)(&err)
	return filter.combine(ctx, bitstore.AND, other, destKey)
}

func (filter *Filter) combine(ctx context.Context, op bitstore.Operation, other *Filter, destKey string) (*Filter, error) {
	if err := filter.compatible(other); err != nil {
		return nil, err
	}
	result, err := newFilter(filter.store, destKey, int64(filter.sizeBits), filter.options())
	if err != nil {
		return nil, err
	}

	if err := filter.store.BitOp(ctx, op, destKey, filter.key, other.key); err != nil {
		return nil, ErrStoreCommunication.Wrap(err)
	}
	if err := result.expire(ctx, destKey); err != nil {
		return nil, err
	}

	filter.log.Debug("filters combined",
		zap.String("op", string(op)),
		zap.String("a", filter.key),
		zap.String("b", other.key),
		zap.String("dest", destKey))
	return result, nil
}

// compatible checks that the vectors of filter and other are positioned
// identically.
func (filter *Filter) compatible(other *Filter) error {
	switch {
	case other == nil:
		return ErrParameterMismatch.New("nil filter")
	case filter.hashCount != other.hashCount:
		return ErrParameterMismatch.New("hash count %d != %d", filter.hashCount, other.hashCount)
	case filter.hashSeed != other.hashSeed:
		return ErrParameterMismatch.New("hash seed %d != %d", filter.hashSeed, other.hashSeed)
	case filter.sizeBits != other.sizeBits:
		return ErrParameterMismatch.New("size %d != %d", filter.sizeBits, other.sizeBits)
	case filter.family.Tag() != other.family.Tag():
		return ErrParameterMismatch.New("hash %q != %q", filter.family.Tag(), other.family.Tag())
	}
	return nil
}

// Copy duplicates the vector of filter into destKey.
//
// Copy runs in two phases and is not atomic:
//
//  1. materialize: an all-zero filter is created at a transient key
//     "<destKey>:copy:<uuid>" with a short TTL, and filter is unioned with
//     it into destKey. If this phase fails no filter is returned; the
//     transient key, if created, expires through its TTL.
//  2. cleanup: the transient key is deleted. If this fails, the returned
//     filter is a complete copy and the error is an ErrOrphanedKey naming
//     the transient key, which still expires through its TTL.
func (filter *Filter) Copy(ctx context.Context, destKey string) (_ *Filter, err error) {
	defer mon.Task()(&ctx)(&err)

	if destKey == "" {
		return nil, ErrValidation.New("key must not be empty")
	}
	id, err := uuid.New()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	transientKey := destKey + ":copy:" + id.String()

	// phase 1: materialize
	opts := filter.options()
	opts.Initialize = true
	opts.TTL = filter.copyTTL
	zero, err := New(ctx, filter.store, transientKey, int64(filter.sizeBits), opts)
	if err != nil {
		return nil, err
	}
	copied, err := filter.Union(ctx, zero, destKey)
	if err != nil {
		filter.log.Warn("copy failed, transient key left to expire",
			zap.String("key", transientKey),
			zap.Duration("ttl", filter.copyTTL),
			zap.Error(err))
		return nil, err
	}

	// phase 2: cleanup
	if err := filter.store.Delete(ctx, transientKey); err != nil {
		mon.Counter("orphaned_copy_keys").Inc(1)
		filter.log.Warn("unable to delete transient copy key",
			zap.String("key", transientKey),
			zap.Error(err))
		return copied, ErrOrphanedKey.New("%q: %w", transientKey, err)
	}

	return copied, nil
}
