package cache

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/observability"
	"github.com/matzehuels/chartcn/pkg/storage"
	"github.com/matzehuels/chartcn/pkg/writeback"
)

// Defaults applied by Options.ValidateAndSetDefaults.
const (
	DefaultMaxEntries   = 500
	DefaultTTL          = time.Hour
	DefaultStoreTimeout = 2 * time.Second
)

// Options configures a two-tier cache.
type Options struct {
	// MaxEntries bounds the memory tier.
	MaxEntries int

	// TTL is the lifetime of a memory entry.
	TTL time.Duration

	// Store is the durable tier. Nil means memory-only operation.
	Store storage.Store

	// StoreTimeout bounds every durable read and write.
	StoreTimeout time.Duration

	// Queue runs durable writes. Required when Store is set.
	Queue *writeback.Queue

	Logger *log.Logger
}

// ValidateAndSetDefaults checks the options and fills zero fields.
func (o *Options) ValidateAndSetDefaults() error {
	if o.MaxEntries < 0 {
		return errors.New(errors.ErrCodeValidation, "cache: max entries must not be negative")
	}
	if o.TTL < 0 || o.StoreTimeout < 0 {
		return errors.New(errors.ErrCodeValidation, "cache: durations must not be negative")
	}
	if o.Store != nil && o.Queue == nil {
		return errors.New(errors.ErrCodeValidation, "cache: a writeback queue is required with a durable store")
	}
	if o.MaxEntries == 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.TTL == 0 {
		o.TTL = DefaultTTL
	}
	if o.StoreTimeout == 0 {
		o.StoreTimeout = DefaultStoreTimeout
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// Durable adapts a storage backend to one kind of cached value.
type Durable[V any] interface {
	Load(ctx context.Context, key string) (V, bool, error)
	Save(ctx context.Context, key string, v V) error
}

// TwoTier is a memory cache backed by an optional durable tier.
type TwoTier[V any] struct {
	kind    string
	mem     *Memory[string, V]
	durable Durable[V]
	timeout time.Duration
	queue   *writeback.Queue
	logger  *log.Logger
}

// NewTwoTier builds a two-tier cache. kind names the cached values in logs
// and hooks. A nil durable tier gives a memory-only cache.
func NewTwoTier[V any](kind string, durable Durable[V], opts Options) (*TwoTier[V], error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if durable != nil && opts.Queue == nil {
		return nil, errors.New(errors.ErrCodeValidation, "cache: a writeback queue is required with a durable store")
	}
	return &TwoTier[V]{
		kind:    kind,
		mem:     NewMemory[string, V](opts.MaxEntries, opts.TTL),
		durable: durable,
		timeout: opts.StoreTimeout,
		queue:   opts.Queue,
		logger:  opts.Logger,
	}, nil
}

// Get looks key up in memory, then in the durable tier. A durable hit is
// copied into memory. Durable errors count as misses.
func (t *TwoTier[V]) Get(ctx context.Context, key string) (V, bool) {
	if v, ok := t.mem.Get(key); ok {
		observability.Cache().OnCacheHit(ctx, t.kind, observability.TierMemory)
		return v, true
	}

	var zero V
	if t.durable == nil {
		observability.Cache().OnCacheMiss(ctx, t.kind)
		return zero, false
	}

	dctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	v, ok, err := t.durable.Load(dctx, key)
	if err != nil {
		t.logger.Warn("durable read failed", "kind", t.kind, "key", key, "err", err)
		observability.Store().OnStoreError(ctx, "load "+t.kind, err)
		observability.Cache().OnCacheMiss(ctx, t.kind)
		return zero, false
	}
	if !ok {
		observability.Cache().OnCacheMiss(ctx, t.kind)
		return zero, false
	}

	t.mem.Set(key, v)
	observability.Cache().OnCacheHit(ctx, t.kind, observability.TierDurable)
	return v, true
}

// Put stores v in memory and schedules the durable write. It never blocks
// on the durable tier.
func (t *TwoTier[V]) Put(ctx context.Context, key string, v V) {
	t.mem.Set(key, v)
	observability.Cache().OnCacheSet(ctx, t.kind, sizeOf(v))

	if t.durable == nil {
		return
	}
	t.queue.Submit("save "+t.kind+" "+key, func(qctx context.Context) error {
		dctx, cancel := context.WithTimeout(qctx, t.timeout)
		defer cancel()
		if err := t.durable.Save(dctx, key, v); err != nil {
			observability.Store().OnStoreError(qctx, "save "+t.kind, err)
			return err
		}
		return nil
	})
}

// Persistent reports whether a durable tier is configured.
func (t *TwoTier[V]) Persistent() bool {
	return t.durable != nil
}

// Stats returns memory tier counters.
func (t *TwoTier[V]) Stats() Stats {
	return t.mem.Stats()
}

// Memory exposes the memory tier.
func (t *TwoTier[V]) Memory() *Memory[string, V] {
	return t.mem
}

func sizeOf(v any) int {
	if s, ok := v.(interface{ Size() int }); ok {
		return s.Size()
	}
	return 0
}
