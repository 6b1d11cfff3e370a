// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package teststore

import (
	"context"
	"math/bits"
	"sync"
	"time"

	"github.com/zeebo/errs"

	"storj.io/rebloom/private/bitstore"
)

// ErrForced is returned by calls failed through ForceError.
var ErrForced = errs.Class("forced error")

// Client implements an in-memory bitstore.Store with redis semantics.
type Client struct {
	mu sync.Mutex

	values  map[string][]byte
	expires map[string]time.Time
	closed  bool

	// Now is the clock used for expiration.
	Now func() time.Time
	// ForceError makes the next ForceError calls fail.
	ForceError int

	CallCount struct {
		SetBit   int
		GetBit   int
		Batch    int
		BitOp    int
		BitCount int
		SetRaw   int
		GetRaw   int
		Expire   int
		Delete   int
		Exists   int
		Close    int
	}
}

var _ bitstore.Store = (*Client)(nil)

// New creates a new in-memory bit store.
func New() *Client {
	return &Client{
		values:  map[string][]byte{},
		expires: map[string]time.Time{},
		Now:     time.Now,
	}
}

// Calls returns the total number of calls made to the store.
func (store *Client) Calls() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	c := store.CallCount
	return c.SetBit + c.GetBit + c.Batch + c.BitOp + c.BitCount +
		c.SetRaw + c.GetRaw + c.Expire + c.Delete + c.Exists
}

// TTL returns the remaining time to live of key, zero when none is set.
func (store *Client) TTL(key string) time.Duration {
	store.mu.Lock()
	defer store.mu.Unlock()
	deadline, ok := store.expires[key]
	if !ok {
		return 0
	}
	return deadline.Sub(store.Now())
}

// Keys returns the number of live keys.
func (store *Client) Keys() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	n := 0
	for key := range store.values {
		if store.lookup(key) != nil {
			n++
		}
	}
	return n
}

// check must be called with mu held.
func (store *Client) check(ctx context.Context) error {
	if store.closed {
		return bitstore.Error.New("store closed")
	}
	if err := ctx.Err(); err != nil {
		return bitstore.Error.Wrap(err)
	}
	if store.ForceError > 0 {
		store.ForceError--
		return ErrForced.New("")
	}
	return nil
}

// lookup returns the live value of key. Must be called with mu held.
func (store *Client) lookup(key string) []byte {
	if deadline, ok := store.expires[key]; ok && !store.Now().Before(deadline) {
		delete(store.values, key)
		delete(store.expires, key)
		return nil
	}
	return store.values[key]
}

func (store *Client) setBit(key string, offset uint64, value bool) bool {
	data := store.lookup(key)
	index := offset / 8
	if uint64(len(data)) <= index {
		grown := make([]byte, index+1)
		copy(grown, data)
		data = grown
	}
	mask := byte(0x80) >> (offset % 8)
	prev := data[index]&mask != 0
	if value {
		data[index] |= mask
	} else {
		data[index] &^= mask
	}
	store.values[key] = data
	return prev
}

func (store *Client) getBit(key string, offset uint64) bool {
	data := store.lookup(key)
	index := offset / 8
	if uint64(len(data)) <= index {
		return false
	}
	return data[index]&(byte(0x80)>>(offset%8)) != 0
}

// SetBit sets the bit at offset and returns its previous value.
func (store *Client) SetBit(ctx context.Context, key string, offset uint64, value bool) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.SetBit++
	if err := store.check(ctx); err != nil {
		return false, err
	}
	if key == "" {
		return false, bitstore.ErrEmptyKey.New("")
	}
	return store.setBit(key, offset, value), nil
}

// GetBit returns the bit at offset.
func (store *Client) GetBit(ctx context.Context, key string, offset uint64) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.GetBit++
	if err := store.check(ctx); err != nil {
		return false, err
	}
	if key == "" {
		return false, bitstore.ErrEmptyKey.New("")
	}
	return store.getBit(key, offset), nil
}

// Batch runs ops atomically.
func (store *Client) Batch(ctx context.Context, ops []bitstore.Op) ([]bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Batch++
	if err := store.check(ctx); err != nil {
		return nil, err
	}
	for _, op := range ops {
		if op.Key == "" {
			return nil, bitstore.ErrEmptyKey.New("")
		}
		if op.Kind != bitstore.GetBit && op.Kind != bitstore.SetBit {
			return nil, bitstore.Error.New("unknown op %v", op.Kind)
		}
	}

	results := make([]bool, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case bitstore.GetBit:
			results[i] = store.getBit(op.Key, op.Offset)
		case bitstore.SetBit:
			results[i] = store.setBit(op.Key, op.Offset, op.Value)
		}
	}
	return results, nil
}

// BitOp stores op(srcA, srcB) into destKey.
func (store *Client) BitOp(ctx context.Context, op bitstore.Operation, destKey, srcA, srcB string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.BitOp++
	if err := store.check(ctx); err != nil {
		return err
	}
	if destKey == "" || srcA == "" || srcB == "" {
		return bitstore.ErrEmptyKey.New("")
	}
	if op != bitstore.OR && op != bitstore.AND {
		return bitstore.Error.New("unknown operation %q", op)
	}

	a, b := store.lookup(srcA), store.lookup(srcB)
	size := max(len(a), len(b))
	// missing bytes read as zero, like redis
	result := make([]byte, size)
	for i := range result {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if op == bitstore.OR {
			result[i] = x | y
		} else {
			result[i] = x & y
		}
	}

	delete(store.expires, destKey)
	if size == 0 {
		delete(store.values, destKey)
		return nil
	}
	store.values[destKey] = result
	return nil
}

// BitCount counts set bits in the byte range [start, end] of key.
func (store *Client) BitCount(ctx context.Context, key string, start, end int64) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.BitCount++
	if err := store.check(ctx); err != nil {
		return 0, err
	}
	if key == "" {
		return 0, bitstore.ErrEmptyKey.New("")
	}

	data := store.lookup(key)
	n := int64(len(data))
	if start < 0 {
		start = max(n+start, 0)
	}
	if end < 0 {
		end = n + end
	}
	end = min(end, n-1)
	if start > end {
		return 0, nil
	}

	var count int64
	for _, b := range data[start : end+1] {
		count += int64(bits.OnesCount8(b))
	}
	return count, nil
}

// SetRaw overwrites the value of key.
func (store *Client) SetRaw(ctx context.Context, key string, value []byte) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.SetRaw++
	if err := store.check(ctx); err != nil {
		return err
	}
	if key == "" {
		return bitstore.ErrEmptyKey.New("")
	}
	delete(store.expires, key)
	store.values[key] = append([]byte{}, value...)
	return nil
}

// GetRaw returns the value of key.
func (store *Client) GetRaw(ctx context.Context, key string) ([]byte, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.GetRaw++
	if err := store.check(ctx); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, bitstore.ErrEmptyKey.New("")
	}
	data := store.lookup(key)
	if data == nil {
		return nil, bitstore.ErrKeyNotFound.New("%q", key)
	}
	return append([]byte{}, data...), nil
}

// Expire sets a time to live on key.
func (store *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Expire++
	if err := store.check(ctx); err != nil {
		return err
	}
	if key == "" {
		return bitstore.ErrEmptyKey.New("")
	}
	if store.lookup(key) == nil {
		return nil
	}
	if ttl <= 0 {
		delete(store.values, key)
		delete(store.expires, key)
		return nil
	}
	store.expires[key] = store.Now().Add(ttl)
	return nil
}

// Delete removes key.
func (store *Client) Delete(ctx context.Context, key string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Delete++
	if err := store.check(ctx); err != nil {
		return err
	}
	if key == "" {
		return bitstore.ErrEmptyKey.New("")
	}
	delete(store.values, key)
	delete(store.expires, key)
	return nil
}

// Exists reports whether key is present.
func (store *Client) Exists(ctx context.Context, key string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Exists++
	if err := store.check(ctx); err != nil {
		return false, err
	}
	if key == "" {
		return false, bitstore.ErrEmptyKey.New("")
	}
	return store.lookup(key) != nil, nil
}

// Close closes the store.
func (store *Client) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.CallCount.Close++
	store.closed = true
	return nil
}
