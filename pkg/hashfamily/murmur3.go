// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package hashfamily

import (
	"github.com/spaolacci/murmur3"
)

// Murmur3Tag is the record tag of Murmur3. It matches the name of the
// Python mmh3 module, whose unsigned hash produces identical values.
const Murmur3Tag = "mmh3"

// Murmur3 is MurmurHash3 x86_32.
var Murmur3 Family = murmur3Family{}

func init() { Register(Murmur3) }

type murmur3Family struct{}

func (murmur3Family) Tag() string { return Murmur3Tag }

func (murmur3Family) Sum32(key []byte, seed uint32) uint32 {
	return murmur3.Sum32WithSeed(key, seed)
}
