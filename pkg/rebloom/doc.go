// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

/*
Package rebloom implements bloom filters whose bit vector lives in a remote
bit-addressable store such as redis.

A Filter is a handle: a store key plus the parameters needed to interpret
the vector behind it. It holds no bits and no mutable state, so a single
Filter may be shared between goroutines, and any number of processes may
add to the same key concurrently. Setting a bit is idempotent, so
interleaved adds converge regardless of order.

Every store-touching method does one round trip, except where noted, and
takes a context. When a method returns an ErrStoreCommunication error the
outcome of any mutation is unknown: the bits may or may not have been
written. Retrying Add or Contains is safe.

Filters never report false negatives. A positive answer is wrong with a
probability close to the configured error rate while the filter holds no
more keys than it was sized for.

The number of hash functions follows a fixed table rather than the optimal
formula:

	error rate < 0.001          4 hashes
	0.001 <= error rate < 0.01  3 hashes
	otherwise                   2 hashes

Filters with different hash counts cannot be combined, so the table must
stay fixed for vectors to remain interchangeable.

Union and Intersection combine two filters with a single store-side
bitwise operation. Copy is a two phase procedure; see its documentation for
the partial failure behavior.

Filters and records are compatible with pyreBox, the Python redis bloom
filter library: DefaultOptions matches its defaults, and Record reads and
writes its JSON export format, so the same redis vectors and exported files
can be shared between both.

Scalable chains filters at "<base>:0", "<base>:1", ... and appends a new,
larger layer whenever the newest one fills up. Its layer count and sizing
are kept at "<base>:meta".
*/
package rebloom
