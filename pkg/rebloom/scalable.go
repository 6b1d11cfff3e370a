// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package rebloom

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/rebloom/private/bitstore"
)

const (
	// DefaultFillThreshold is the fill ratio past which a layer is added.
	DefaultFillThreshold = 0.5
	// DefaultGrowthFactor is the size ratio between consecutive layers.
	DefaultGrowthFactor = 2
)

// ScalableOptions configures a Scalable filter.
type ScalableOptions struct {
	Options

	// FillThreshold in (0, 1]; DefaultFillThreshold when zero.
	FillThreshold float64
	// GrowthFactor >= 1; DefaultGrowthFactor when zero. 1 keeps all layers
	// the same size.
	GrowthFactor int
}

// Scalable is a bloom filter that grows by appending layers.
//
// Layer i is stored at "<baseKey>:<i>" and has initialSize*GrowthFactor^i
// bits. A layer is appended when the newest layer's fill ratio exceeds
// FillThreshold. Layers are never removed or merged.
//
// The initial size, growth factor and layer count are kept at
// "<baseKey>:meta", and every opener must use the same initial size and
// growth factor. When a TTL is set, appending a layer restarts the TTL of
// the metadata and of every older layer, so the whole filter expires
// together.
//
// A Scalable holds the layers it knew of when it was opened or last grew.
// Layers appended by other processes are picked up by Refresh or by the
// next growth.
type Scalable struct {
	store   bitstore.Store
	log     *zap.Logger
	baseKey string
	opts    ScalableOptions
	initial uint64

	mu     sync.Mutex
	layers []*Filter
}

// scalableMeta is stored as JSON at "<baseKey>:meta".
type scalableMeta struct {
	InitialSize  uint64 `json:"initial_size"`
	GrowthFactor int    `json:"growth_factor"`
	Layers       int    `json:"layers"`
}

// NewScalable opens the scalable filter at baseKey. Layers already in the
// store are picked up; when there are none the first layer is created.
func NewScalable(ctx context.Context, store bitstore.Store, baseKey string, initialSize int64, opts ScalableOptions) (_ *Scalable, err error) {
	defer mon.Task()(&ctx)(&err)

	if baseKey == "" {
		return nil, ErrValidation.New("key must not be empty")
	}
	if opts.FillThreshold == 0 {
		opts.FillThreshold = DefaultFillThreshold
	}
	if opts.GrowthFactor == 0 {
		opts.GrowthFactor = DefaultGrowthFactor
	}
	if !(opts.FillThreshold > 0 && opts.FillThreshold <= 1) {
		return nil, ErrValidation.New("fill threshold must be in (0, 1], got %v", opts.FillThreshold)
	}
	if opts.GrowthFactor < 1 {
		return nil, ErrValidation.New("growth factor must be >= 1, got %d", opts.GrowthFactor)
	}
	opts.Options = opts.Options.normalize()

	// validates the shared parameters
	first, err := newFilter(store, layerKey(baseKey, 0), initialSize, opts.Options)
	if err != nil {
		return nil, err
	}

	scalable := &Scalable{
		store:   store,
		log:     opts.Log,
		baseKey: baseKey,
		opts:    opts,
		initial: first.sizeBits,
	}

	if err := scalable.refresh(ctx); err != nil {
		return nil, err
	}
	if len(scalable.layers) == 0 {
		if _, err := scalable.grow(ctx, 0); err != nil {
			return nil, err
		}
	}

	scalable.log.Debug("scalable filter opened",
		zap.String("key", baseKey),
		zap.Int("layers", len(scalable.layers)))
	return scalable, nil
}

func layerKey(baseKey string, index int) string {
	return baseKey + ":" + strconv.Itoa(index)
}

func (scalable *Scalable) metaKey() string {
	return scalable.baseKey + ":meta"
}

// Refresh picks up layers appended by other processes.
func (scalable *Scalable) Refresh(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	scalable.mu.Lock()
	defer scalable.mu.Unlock()
	return scalable.refresh(ctx)
}

// refresh adds handles for every layer the metadata counts, whether or not
// its key still exists, then for any further layers present in the store.
// Must be called with mu held, or before the filter is shared.
func (scalable *Scalable) refresh(ctx context.Context) error {
	known, err := scalable.readMeta(ctx)
	if err != nil {
		return err
	}

	for index := len(scalable.layers); ; index++ {
		if index >= known {
			exists, err := scalable.store.Exists(ctx, layerKey(scalable.baseKey, index))
			if err != nil {
				return ErrStoreCommunication.Wrap(err)
			}
			if !exists {
				return nil
			}
		}
		layer, err := scalable.layer(index)
		if err != nil {
			return err
		}
		scalable.layers = append(scalable.layers, layer)
	}
}

// readMeta checks the stored parameters against the filter's and returns
// the stored layer count, zero when there is no metadata.
func (scalable *Scalable) readMeta(ctx context.Context) (int, error) {
	data, err := scalable.store.GetRaw(ctx, scalable.metaKey())
	if err != nil {
		if bitstore.ErrKeyNotFound.Has(err) {
			return 0, nil
		}
		return 0, ErrStoreCommunication.Wrap(err)
	}

	var meta scalableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, ErrFormat.New("%q: %v", scalable.metaKey(), err)
	}
	if meta.InitialSize != scalable.initial {
		return 0, ErrParameterMismatch.New("initial size %d != stored %d", scalable.initial, meta.InitialSize)
	}
	if meta.GrowthFactor != scalable.opts.GrowthFactor {
		return 0, ErrParameterMismatch.New("growth factor %d != stored %d", scalable.opts.GrowthFactor, meta.GrowthFactor)
	}
	return meta.Layers, nil
}

// writeMeta records the layer count and restarts the TTL of the metadata
// and of the older layers. Must be called with mu held.
func (scalable *Scalable) writeMeta(ctx context.Context) error {
	data, err := json.Marshal(scalableMeta{
		InitialSize:  scalable.initial,
		GrowthFactor: scalable.opts.GrowthFactor,
		Layers:       len(scalable.layers),
	})
	if err != nil {
		return Error.Wrap(err)
	}
	if err := scalable.store.SetRaw(ctx, scalable.metaKey(), data); err != nil {
		return ErrStoreCommunication.Wrap(err)
	}

	ttl := scalable.opts.TTL
	if ttl <= 0 {
		return nil
	}
	if err := scalable.store.Expire(ctx, scalable.metaKey(), ttl); err != nil {
		return ErrStoreCommunication.Wrap(err)
	}
	// the newest layer got its TTL when it was created
	for _, layer := range scalable.layers[:len(scalable.layers)-1] {
		if err := scalable.store.Expire(ctx, layer.key, ttl); err != nil {
			return ErrStoreCommunication.Wrap(err)
		}
	}
	return nil
}

// layerSize returns the size of layer index.
func (scalable *Scalable) layerSize(index int) uint64 {
	size := scalable.initial
	for i := 0; i < index; i++ {
		size *= uint64(scalable.opts.GrowthFactor)
		if size >= MaxSizeBits {
			return MaxSizeBits
		}
	}
	return size
}

// layer returns a handle for layer index without touching the store.
func (scalable *Scalable) layer(index int) (*Filter, error) {
	return newFilter(scalable.store, layerKey(scalable.baseKey, index), int64(scalable.layerSize(index)), scalable.opts.Options)
}

// snapshot returns the current layers, oldest first.
func (scalable *Scalable) snapshot() []*Filter {
	scalable.mu.Lock()
	defer scalable.mu.Unlock()
	return append([]*Filter(nil), scalable.layers...)
}

// grow appends a layer unless this or another process already grew past
// the seen layers. It returns the newest layer.
func (scalable *Scalable) grow(ctx context.Context, seen int) (*Filter, error) {
	scalable.mu.Lock()
	defer scalable.mu.Unlock()

	if len(scalable.layers) > seen {
		return scalable.layers[len(scalable.layers)-1], nil
	}
	if err := scalable.refresh(ctx); err != nil {
		return nil, err
	}
	if len(scalable.layers) > seen {
		return scalable.layers[len(scalable.layers)-1], nil
	}

	index := len(scalable.layers)
	opts := scalable.opts.Options
	opts.Initialize = true
	layer, err := New(ctx, scalable.store, layerKey(scalable.baseKey, index), int64(scalable.layerSize(index)), opts)
	if err != nil {
		return nil, err
	}
	scalable.layers = append(scalable.layers, layer)
	if err := scalable.writeMeta(ctx); err != nil {
		return nil, err
	}

	mon.IntVal("scalable_layers").Observe(int64(len(scalable.layers)))
	if index > 0 {
		scalable.log.Info("scalable filter grew",
			zap.String("key", scalable.baseKey),
			zap.Int("layers", len(scalable.layers)),
			zap.Uint64("size", layer.sizeBits))
	}
	return layer, nil
}

// Add inserts key into the newest layer, appending a layer first when the
// newest one is over its fill threshold. It returns false without writing
// when some layer already reports the key.
func (scalable *Scalable) Add(ctx context.Context, key []byte) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	layers := scalable.snapshot()
	present, err := containsAny(ctx, layers, key)
	if err != nil || present {
		return false, err
	}

	current := layers[len(layers)-1]
	fill, err := current.FillRatio(ctx)
	if err != nil {
		return false, err
	}
	if fill > scalable.opts.FillThreshold {
		current, err = scalable.grow(ctx, len(layers))
		if err != nil {
			return false, err
		}
	}

	return current.Add(ctx, key)
}

// AddString is Add for string keys.
func (scalable *Scalable) AddString(ctx context.Context, key string) (bool, error) {
	return scalable.Add(ctx, []byte(key))
}

// Contains checks the layers from newest to oldest and stops at the first
// that reports key.
func (scalable *Scalable) Contains(ctx context.Context, key []byte) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	return containsAny(ctx, scalable.snapshot(), key)
}

// ContainsString is Contains for string keys.
func (scalable *Scalable) ContainsString(ctx context.Context, key string) (bool, error) {
	return scalable.Contains(ctx, []byte(key))
}

func containsAny(ctx context.Context, layers []*Filter, key []byte) (bool, error) {
	for i := len(layers) - 1; i >= 0; i-- {
		ok, err := layers[i].Contains(ctx, key)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// Count returns the sum of set bits over all layers, fetched concurrently.
func (scalable *Scalable) Count(ctx context.Context) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	layers := scalable.snapshot()
	counts := make([]int64, len(layers))

	group, gctx := errgroup.WithContext(ctx)
	for i, layer := range layers {
		group.Go(func() error {
			count, err := layer.Count(gctx)
			counts[i] = count
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, count := range counts {
		total += count
	}
	return total, nil
}

// SizeBits returns the total size of all layers.
func (scalable *Scalable) SizeBits() uint64 {
	var total uint64
	for _, layer := range scalable.snapshot() {
		total += layer.sizeBits
	}
	return total
}

// Layers returns the layers, oldest first.
func (scalable *Scalable) Layers() []*Filter { return scalable.snapshot() }

// Key returns the base key of the layers.
func (scalable *Scalable) Key() string { return scalable.baseKey }

// HashCount returns the number of bits set per key in every layer.
func (scalable *Scalable) HashCount() int { return HashCount(scalable.opts.ErrorRate) }
