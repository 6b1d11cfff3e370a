// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package rebloom

import (
	"math"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/rebloom/pkg/hashfamily"
)

var (
	mon = monkit.Package()

	// Error is the default rebloom error class.
	Error = errs.Class("rebloom")

	// ErrValidation is returned for invalid filter parameters.
	ErrValidation = errs.Class("validation")

	// ErrParameterMismatch is returned when combining incompatible filters.
	ErrParameterMismatch = errs.Class("parameter mismatch")

	// ErrFormat is returned for records that cannot be imported.
	ErrFormat = errs.Class("format")

	// ErrStoreCommunication wraps any failure of the store. The outcome of
	// the operation is unknown.
	ErrStoreCommunication = errs.Class("store communication")

	// ErrOrphanedKey is returned by Copy when the copy succeeded but its
	// transient key could not be removed.
	ErrOrphanedKey = errs.Class("orphaned key")
)

const (
	// DefaultErrorRate is the error rate used by DefaultOptions.
	DefaultErrorRate = 0.001
	// DefaultHashSeed is the hash seed used by DefaultOptions.
	DefaultHashSeed = 41
	// DefaultCopyTransientTTL bounds the lifetime of the key Copy works through.
	DefaultCopyTransientTTL = time.Minute

	// MaxSizeBits is the largest vector redis can address.
	MaxSizeBits = 1 << 32
)

// Options configures a Filter.
type Options struct {
	// ErrorRate is the target false positive probability, in (0, 1).
	ErrorRate float64
	// ByteAligned rounds the size up to a multiple of 8 bits.
	ByteAligned bool
	// HashSeed is the seed of the first hash function.
	HashSeed uint32
	// Initialize sizes the remote vector on construction.
	Initialize bool
	// TTL expires the store key, zero keeps it forever.
	TTL time.Duration

	// Family is the hash primitive, hashfamily.Murmur3 when nil.
	Family hashfamily.Family
	// CopyTransientTTL bounds the transient key of Copy,
	// DefaultCopyTransientTTL when zero.
	CopyTransientTTL time.Duration

	Log *zap.Logger
}

// DefaultOptions returns the defaults of pyreBox, the Python redis bloom
// filter library, so filters created with them can be shared with it.
func DefaultOptions() Options {
	return Options{
		ErrorRate:   DefaultErrorRate,
		ByteAligned: true,
		HashSeed:    DefaultHashSeed,
	}
}

func (opts Options) normalize() Options {
	if opts.Family == nil {
		opts.Family = hashfamily.Murmur3
	}
	if opts.CopyTransientTTL <= 0 {
		opts.CopyTransientTTL = DefaultCopyTransientTTL
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return opts
}

// HashCount returns the number of hash functions used for errorRate.
func HashCount(errorRate float64) int {
	switch {
	case errorRate < 0.001:
		return 4
	case errorRate < 0.01:
		return 3
	default:
		return 2
	}
}

// SizeFor returns the number of bits that keeps the false positive
// probability at errorRate after expectedItems adds, given the hash count
// HashCount(errorRate). It returns 0 for invalid arguments.
func SizeFor(expectedItems int64, errorRate float64) int64 {
	if expectedItems <= 0 || !(errorRate > 0 && errorRate < 1) {
		return 0
	}
	k := float64(HashCount(errorRate))
	return int64(math.Ceil(-k * float64(expectedItems) / math.Log(1-math.Pow(errorRate, 1/k))))
}

// AlignSize rounds sizeBits up to a multiple of 8.
func AlignSize(sizeBits uint64) uint64 {
	if mod := sizeBits % 8; mod != 0 {
		return sizeBits + 8 - mod
	}
	return sizeBits
}

func validate(key string, sizeBits int64, errorRate float64) error {
	if key == "" {
		return ErrValidation.New("key must not be empty")
	}
	if !(errorRate > 0 && errorRate < 1) {
		return ErrValidation.New("error rate must be between 0 and 1, got %v", errorRate)
	}
	if sizeBits <= 0 {
		return ErrValidation.New("size must be > 0, got %d", sizeBits)
	}
	if sizeBits > MaxSizeBits {
		return ErrValidation.New("size must be <= %d, got %d", int64(MaxSizeBits), sizeBits)
	}
	return nil
}
