// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package hashfamily derives bloom filter bit positions from a seeded
// 32-bit hash.
//
// Positions for a key are computed as
//
//	Sum32(key, seed+i) % modulus    for i in 0..count-1
//
// Two processes sharing a bit vector must use the same Family, otherwise
// their positions disagree and the vector is meaningless to one of them.
package hashfamily

import (
	"sync"

	"github.com/zeebo/errs"
)

// Error is the class for hash family errors.
var Error = errs.Class("hashfamily")

// Family is a seeded 32-bit non-cryptographic hash.
type Family interface {
	// Tag identifies the hash primitive in serialized records.
	Tag() string
	// Sum32 hashes key with the given seed.
	Sum32(key []byte, seed uint32) uint32
}

// Positions returns count bit offsets in [0, modulus) for key.
//
// The i-th position is hashed with seed+i. Panics when modulus is zero.
func Positions(family Family, key []byte, seed uint32, count int, modulus uint64) []uint64 {
	if modulus == 0 {
		panic("hashfamily: zero modulus")
	}
	positions := make([]uint64, count)
	for i := range positions {
		positions[i] = uint64(family.Sum32(key, seed+uint32(i))) % modulus
	}
	return positions
}

var registry = struct {
	mu       sync.RWMutex
	families map[string]Family
}{families: map[string]Family{}}

// Register makes a family resolvable by its tag.
func Register(family Family) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.families[family.Tag()] = family
}

// Lookup returns the family registered under tag.
func Lookup(tag string) (Family, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	family, ok := registry.families[tag]
	if !ok {
		return nil, Error.New("unknown hash %q", tag)
	}
	return family, nil
}
