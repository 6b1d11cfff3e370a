// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package redisbits

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/rebloom/private/bitstore"
)

var (
	// Error is a redis error.
	Error = errs.Class("redis")

	mon = monkit.Package()
)

// maxOffset is the largest bit offset redis accepts (strings are limited to 512MB).
const maxOffset = 1<<32 - 1

// Client is a bitstore.Store backed by redis.
type Client struct {
	db *redis.Client
}

var _ bitstore.Store = (*Client)(nil)

// OpenClient returns a configured Client instance, verifying a successful connection to redis.
func OpenClient(ctx context.Context, address, password string, db int) (*Client, error) {
	return open(ctx, &redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// OpenClientFrom returns a configured Client instance from a redis:// url, verifying a successful connection to redis.
func OpenClientFrom(ctx context.Context, address string) (*Client, error) {
	opts, err := redis.ParseURL(address)
	if err != nil {
		return nil, Error.New("invalid address %q: %w", address, err)
	}
	return open(ctx, opts)
}

func open(ctx context.Context, opts *redis.Options) (*Client, error) {
	client := &Client{db: redis.NewClient(opts)}

	// ping here to verify we are able to connect to redis with the initialized client.
	if err := client.db.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %w", err), client.db.Close())
	}

	return client, nil
}

// SetBit sets the bit at offset and returns its previous value.
func (client *Client) SetBit(ctx context.Context, key string, offset uint64, value bool) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := checkBit(key, offset); err != nil {
		return false, err
	}
	prev, err := client.db.SetBit(ctx, key, int64(offset), bitValue(value)).Result()
	if err != nil {
		return false, Error.New("setbit error: %w", err)
	}
	return prev == 1, nil
}

// GetBit returns the bit at offset.
func (client *Client) GetBit(ctx context.Context, key string, offset uint64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := checkBit(key, offset); err != nil {
		return false, err
	}
	bit, err := client.db.GetBit(ctx, key, int64(offset)).Result()
	if err != nil {
		return false, Error.New("getbit error: %w", err)
	}
	return bit == 1, nil
}

// Batch sends all ops in one pipeline.
func (client *Client) Batch(ctx context.Context, ops []bitstore.Op) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)
	for _, op := range ops {
		if err := checkBit(op.Key, op.Offset); err != nil {
			return nil, err
		}
	}
	if len(ops) == 0 {
		return []bool{}, nil
	}

	cmds := make([]*redis.IntCmd, len(ops))
	_, err = client.db.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, op := range ops {
			switch op.Kind {
			case bitstore.GetBit:
				cmds[i] = pipe.GetBit(ctx, op.Key, int64(op.Offset))
			case bitstore.SetBit:
				cmds[i] = pipe.SetBit(ctx, op.Key, int64(op.Offset), bitValue(op.Value))
			default:
				return bitstore.Error.New("unknown op %v", op.Kind)
			}
		}
		return nil
	})
	if err != nil {
		if bitstore.Error.Has(err) {
			return nil, err
		}
		return nil, Error.New("pipeline error: %w", err)
	}

	results := make([]bool, len(cmds))
	for i, cmd := range cmds {
		results[i] = cmd.Val() == 1
	}
	return results, nil
}

// BitOp stores op(srcA, srcB) into destKey.
func (client *Client) BitOp(ctx context.Context, op bitstore.Operation, destKey, srcA, srcB string) (err error) {
	defer mon.Task()(&ctx)(&err)
	if destKey == "" || srcA == "" || srcB == "" {
		return bitstore.ErrEmptyKey.New("")
	}

	var cmd *redis.IntCmd
	switch op {
	case bitstore.OR:
		cmd = client.db.BitOpOr(ctx, destKey, srcA, srcB)
	case bitstore.AND:
		cmd = client.db.BitOpAnd(ctx, destKey, srcA, srcB)
	default:
		return bitstore.Error.New("unknown operation %q", op)
	}
	if err := cmd.Err(); err != nil {
		return Error.New("bitop error: %w", err)
	}
	return nil
}

// BitCount counts set bits in the byte range [start, end] of key.
func (client *Client) BitCount(ctx context.Context, key string, start, end int64) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if key == "" {
		return 0, bitstore.ErrEmptyKey.New("")
	}
	count, err := client.db.BitCount(ctx, key, &redis.BitCount{Start: start, End: end}).Result()
	if err != nil {
		return 0, Error.New("bitcount error: %w", err)
	}
	return count, nil
}

// SetRaw overwrites the value of key.
func (client *Client) SetRaw(ctx context.Context, key string, value []byte) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key == "" {
		return bitstore.ErrEmptyKey.New("")
	}
	if err := client.db.Set(ctx, key, value, 0).Err(); err != nil {
		return Error.New("set error: %w", err)
	}
	return nil
}

// GetRaw returns the value of key.
func (client *Client) GetRaw(ctx context.Context, key string) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)
	if key == "" {
		return nil, bitstore.ErrEmptyKey.New("")
	}
	value, err := client.db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, bitstore.ErrKeyNotFound.New("%q", key)
	}
	if err != nil {
		return nil, Error.New("get error: %w", err)
	}
	return value, nil
}

// Expire sets a time to live on key.
func (client *Client) Expire(ctx context.Context, key string, ttl time.Duration) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key == "" {
		return bitstore.ErrEmptyKey.New("")
	}
	if err := client.db.Expire(ctx, key, ttl).Err(); err != nil {
		return Error.New("expire error: %w", err)
	}
	return nil
}

// Delete removes key.
func (client *Client) Delete(ctx context.Context, key string) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key == "" {
		return bitstore.ErrEmptyKey.New("")
	}
	if err := client.db.Del(ctx, key).Err(); err != nil {
		return Error.New("delete error: %w", err)
	}
	return nil
}

// Exists reports whether key is present.
func (client *Client) Exists(ctx context.Context, key string) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if key == "" {
		return false, bitstore.ErrEmptyKey.New("")
	}
	n, err := client.db.Exists(ctx, key).Result()
	if err != nil {
		return false, Error.New("exists error: %w", err)
	}
	return n > 0, nil
}

// FlushDB deletes all keys in the currently selected DB.
func (client *Client) FlushDB(ctx context.Context) error {
	return Error.Wrap(client.db.FlushDB(ctx).Err())
}

// Close closes a redis client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

func checkBit(key string, offset uint64) error {
	if key == "" {
		return bitstore.ErrEmptyKey.New("")
	}
	if offset > maxOffset {
		return bitstore.Error.New("offset %d out of range", offset)
	}
	return nil
}

func bitValue(value bool) int {
	if value {
		return 1
	}
	return 0
}
