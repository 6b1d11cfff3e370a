// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package bitstore

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

var (
	// Error is the class for bit store errors.
	Error = errs.Class("bitstore")

	// ErrKeyNotFound used when a raw value doesn't exist.
	ErrKeyNotFound = errs.Class("key not found")

	// ErrEmptyKey is returned when an empty key is used.
	ErrEmptyKey = errs.Class("empty key")
)

// OpKind selects the command of a batched Op.
type OpKind int

const (
	// GetBit reads a bit.
	GetBit OpKind = iota
	// SetBit writes a bit and reports its previous value.
	SetBit
)

// String implements fmt.Stringer.
func (kind OpKind) String() string {
	switch kind {
	case GetBit:
		return "GETBIT"
	case SetBit:
		return "SETBIT"
	default:
		return "UNKNOWN"
	}
}

// Op is a single bit command inside a Batch.
type Op struct {
	Kind   OpKind
	Key    string
	Offset uint64
	// Value is the bit written by SetBit, ignored by GetBit.
	Value bool
}

// GetBitOp returns an op reading key at offset.
func GetBitOp(key string, offset uint64) Op {
	return Op{Kind: GetBit, Key: key, Offset: offset}
}

// SetBitOp returns an op writing value to key at offset.
func SetBitOp(key string, offset uint64, value bool) Op {
	return Op{Kind: SetBit, Key: key, Offset: offset, Value: value}
}

// Operation is a store-side bulk bitwise operation.
type Operation string

const (
	// OR sets a bit in the destination when it is set in either source.
	OR Operation = "OR"
	// AND sets a bit in the destination when it is set in both sources.
	AND Operation = "AND"
)

// Store describes atomic bit-addressable key/value stores like redis.
//
// Each method is one round trip. Keys missing in the store read as an
// all-zero bit vector. Writing a bit past the end of a key grows it.
type Store interface {
	// SetBit sets the bit at offset and returns its previous value.
	SetBit(ctx context.Context, key string, offset uint64, value bool) (bool, error)
	// GetBit returns the bit at offset.
	GetBit(ctx context.Context, key string, offset uint64) (bool, error)
	// Batch runs ops in a single round trip. Results are in op order; for
	// SetBit the result is the previous value.
	Batch(ctx context.Context, ops []Op) ([]bool, error)
	// BitOp stores op(srcA, srcB) into destKey.
	BitOp(ctx context.Context, op Operation, destKey, srcA, srcB string) error
	// BitCount counts set bits in the byte range [start, end] of key.
	// Negative offsets count from the end, so 0, -1 is the whole key.
	BitCount(ctx context.Context, key string, start, end int64) (int64, error)
	// SetRaw overwrites the value of key.
	SetRaw(ctx context.Context, key string, value []byte) error
	// GetRaw returns the value of key, ErrKeyNotFound when missing.
	GetRaw(ctx context.Context, key string) ([]byte, error)
	// Expire sets a time to live on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Close closes the store.
	Close() error
}

// ByteLen returns the number of bytes needed to hold sizeBits bits.
func ByteLen(sizeBits uint64) uint64 {
	return (sizeBits + 7) / 8
}
