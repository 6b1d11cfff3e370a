// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package rebloom

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"storj.io/rebloom/pkg/hashfamily"
	"storj.io/rebloom/private/bitstore"
)

// Record is the portable form of a Filter.
//
// The JSON field names are those of the files exported by pyreBox, the
// Python redis bloom filter library, so records can be exchanged with it.
type Record struct {
	// HashFunctionTag identifies the hash primitive, see hashfamily.Family.
	HashFunctionTag string  `json:"hash"`
	SizeBits        uint64  `json:"size"`
	ErrorRate       float64 `json:"error_rate"`
	ByteAligned     bool    `json:"is_byte"`
	HashSeed        uint32  `json:"hash_seed"`
	// Initialized is always written as false and ignored on import.
	Initialized bool   `json:"is_init"`
	Key         string `json:"name"`
	// TTLSeconds is nil when the key does not expire.
	TTLSeconds *int64 `json:"expire"`
	// EncodedBits is the raw vector in standard base64.
	EncodedBits string `json:"bloom_data"`
}

// TTL returns the expiration of the record.
func (rec *Record) TTL() time.Duration {
	if rec.TTLSeconds == nil || *rec.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(*rec.TTLSeconds) * time.Second
}

// Export fetches the vector of filter. A key that does not exist exports
// as an empty vector.
func (filter *Filter) Export(ctx context.Context) (_ *Record, err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := filter.store.GetRaw(ctx, filter.key)
	if err != nil {
		if !bitstore.ErrKeyNotFound.Has(err) {
			return nil, ErrStoreCommunication.Wrap(err)
		}
		data = nil
	}

	rec := &Record{
		HashFunctionTag: filter.family.Tag(),
		SizeBits:        filter.sizeBits,
		ErrorRate:       filter.errorRate,
		ByteAligned:     filter.byteAligned,
		HashSeed:        filter.hashSeed,
		Key:             filter.key,
		EncodedBits:     base64.StdEncoding.EncodeToString(data),
	}
	if filter.ttl > 0 {
		// rounded up, a sub-second ttl must not become "never expires"
		seconds := int64((filter.ttl + time.Second - 1) / time.Second)
		rec.TTLSeconds = &seconds
	}
	return rec, nil
}

// Import writes the vector of rec under rec.Key and returns a filter for
// it. The parameters of the filter come from rec. opts supplies the
// logger and optionally the hash family, which must then match the
// record; otherwise the family registered under the record's tag is used.
//
// Import overwrites whatever is stored under the key.
func Import(ctx context.Context, store bitstore.Store, rec *Record, opts Options) (_ *Filter, err error) {
	defer mon.Task()(&ctx)(&err)

	if rec == nil {
		return nil, ErrFormat.New("nil record")
	}
	if opts.Family == nil {
		opts.Family, err = hashfamily.Lookup(rec.HashFunctionTag)
		if err != nil {
			return nil, ErrFormat.Wrap(err)
		}
	}
	opts = opts.normalize()
	if rec.HashFunctionTag != opts.Family.Tag() {
		return nil, ErrFormat.New("hash %q is not %q", rec.HashFunctionTag, opts.Family.Tag())
	}
	if rec.SizeBits > MaxSizeBits {
		return nil, ErrFormat.New("size %d out of range", rec.SizeBits)
	}

	filter, err := newFilter(store, rec.Key, int64(rec.SizeBits), Options{
		ErrorRate:        rec.ErrorRate,
		ByteAligned:      rec.ByteAligned,
		HashSeed:         rec.HashSeed,
		TTL:              rec.TTL(),
		Family:           opts.Family,
		CopyTransientTTL: opts.CopyTransientTTL,
		Log:              opts.Log,
	})
	if err != nil {
		return nil, ErrFormat.Wrap(err)
	}

	data, err := base64.StdEncoding.DecodeString(rec.EncodedBits)
	if err != nil {
		return nil, ErrFormat.New("bits: %w", err)
	}
	if err := checkTrailing(data, filter.sizeBits); err != nil {
		return nil, err
	}

	if err := store.SetRaw(ctx, filter.key, data); err != nil {
		return nil, ErrStoreCommunication.Wrap(err)
	}
	if err := filter.expire(ctx, filter.key); err != nil {
		return nil, err
	}

	filter.log.Debug("filter imported",
		zap.String("key", filter.key),
		zap.Uint64("size", filter.sizeBits),
		zap.Int("bytes", len(data)))
	return filter, nil
}

// checkTrailing rejects vectors with bits set past sizeBits. Zero bytes past
// the end are allowed, pyreBox sizes vectors one bit longer than declared.
func checkTrailing(data []byte, sizeBits uint64) error {
	for i := bitstore.ByteLen(sizeBits); i < uint64(len(data)); i++ {
		if data[i] != 0 {
			return ErrFormat.New("bits set past size %d at byte %d", sizeBits, i)
		}
	}
	return nil
}

// WriteRecord writes rec as JSON.
func WriteRecord(w io.Writer, rec *Record) error {
	return Error.Wrap(json.NewEncoder(w).Encode(rec))
}

// ReadRecord reads a JSON record.
func ReadRecord(r io.Reader) (*Record, error) {
	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, ErrFormat.Wrap(err)
	}
	return &rec, nil
}
