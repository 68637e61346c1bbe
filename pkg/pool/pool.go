// Package pool bounds concurrent access to expensive, stateful resources.
//
// A [Pool] owns up to Max resources created by a [Factory]. Each resource is
// used by at most one caller at a time: Acquire hands it out exclusively and
// Release returns it. When every resource is busy, callers wait in FIFO order
// until a resource is released or their deadline passes.
//
// # Lifecycle
//
//	created -> idle <-> busy -> destroyed
//
// A resource is destroyed instead of returned to idle when the caller marked
// it broken, when it fails validation before hand-out, when it sat idle for
// longer than IdleTimeout (while more than Min are idle), or when the pool is
// drained. After a destruction the pool creates a replacement lazily: for a
// queued caller, or to keep Min resources alive.
//
// # Usage
//
//	p, err := pool.New(ctx, factory, pool.Config{Min: 1, Max: 10})
//	if err != nil {
//	    return err
//	}
//	defer p.Drain(context.Background())
//
//	err = p.With(ctx, func(r *pool.Resource[*Tab]) error {
//	    return r.Value().Render(ctx)
//	})
package pool

import (
	"container/list"
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/observability"
)

// Destroy reasons reported to hooks.
const (
	ReasonBroken  = "broken"
	ReasonInvalid = "invalid"
	ReasonIdle    = "idle"
	ReasonDrain   = "drain"
)

// Factory creates and destroys pooled values.
type Factory[T any] interface {
	Create(ctx context.Context) (T, error)
	Destroy(v T) error
}

// Validator is an optional Factory extension. Idle values are validated
// before being handed out; invalid values are destroyed.
type Validator[T any] interface {
	Validate(ctx context.Context, v T) error
}

// Config configures a Pool.
type Config struct {
	// Min is the number of resources kept alive.
	Min int

	// Max bounds the number of live resources.
	Max int

	// AcquireTimeout applies when the caller's context has no earlier deadline.
	AcquireTimeout time.Duration

	// IdleTimeout is how long a resource may sit idle before the reaper
	// destroys it. Zero disables reaping.
	IdleTimeout time.Duration

	// ReapInterval is how often the reaper runs. Defaults to IdleTimeout/2.
	ReapInterval time.Duration

	// CreateTimeout bounds background creations.
	CreateTimeout time.Duration

	Logger *log.Logger
}

// DefaultCreateTimeout bounds background resource creation.
const DefaultCreateTimeout = 30 * time.Second

// ValidateAndSetDefaults checks the configuration and fills zero fields.
func (c *Config) ValidateAndSetDefaults() error {
	if c.Max < 1 {
		return errors.New(errors.ErrCodeValidation, "pool: max must be at least 1, got %d", c.Max)
	}
	if c.Min < 0 || c.Min > c.Max {
		return errors.New(errors.ErrCodeValidation, "pool: min must be between 0 and max (%d), got %d", c.Max, c.Min)
	}
	if c.AcquireTimeout < 0 || c.IdleTimeout < 0 || c.ReapInterval < 0 || c.CreateTimeout < 0 {
		return errors.New(errors.ErrCodeValidation, "pool: durations must not be negative")
	}
	if c.ReapInterval == 0 && c.IdleTimeout > 0 {
		c.ReapInterval = c.IdleTimeout / 2
	}
	if c.CreateTimeout == 0 {
		c.CreateTimeout = DefaultCreateTimeout
	}
	if c.Logger == nil {
		c.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// Stats is a snapshot of pool state.
type Stats struct {
	Idle      int   `json:"idle"`
	Busy      int   `json:"busy"`
	Waiting   int   `json:"waiting"`
	Creating  int   `json:"creating"`
	Min       int   `json:"min"`
	Max       int   `json:"max"`
	Created   int64 `json:"created"`
	Destroyed int64 `json:"destroyed"`
	Timeouts  int64 `json:"timeouts"`
}

type entry[T any] struct {
	value    T
	lastUsed time.Time
}

type result[T any] struct {
	e   *entry[T]
	err error
}

type waiter[T any] struct {
	ch     chan result[T]
	elem   *list.Element
	served bool
}

// Pool is a bounded pool of exclusive resources. Create it with New.
type Pool[T any] struct {
	factory   Factory[T]
	validator Validator[T]
	cfg       Config
	logger    *log.Logger

	// ctx bounds background creations; cancelled when draining completes.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	idle     []*entry[T] // oldest first
	busy     int
	creating int
	waiters  *list.List
	closed   bool
	drained  chan struct{}
	isDone   bool

	created   int64
	destroyed int64
	timeouts  int64

	destroys sync.WaitGroup
	stopReap chan struct{}
	reaper   sync.WaitGroup
}

// New creates a pool and eagerly creates cfg.Min resources. If any of them
// fails, the ones already created are destroyed and the error is returned.
func New[T any](ctx context.Context, factory Factory[T], cfg Config) (*Pool[T], error) {
	if factory == nil {
		return nil, errors.New(errors.ErrCodeValidation, "pool: factory is required")
	}
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(context.Background())
	p := &Pool[T]{
		factory:  factory,
		cfg:      cfg,
		logger:   cfg.Logger,
		ctx:      pctx,
		cancel:   cancel,
		waiters:  list.New(),
		drained:  make(chan struct{}),
		stopReap: make(chan struct{}),
	}
	if v, ok := factory.(Validator[T]); ok {
		p.validator = v
	}

	for range cfg.Min {
		v, err := p.create(ctx)
		if err != nil {
			for _, e := range p.idle {
				_ = factory.Destroy(e.value)
			}
			cancel()
			return nil, err
		}
		p.idle = append(p.idle, &entry[T]{value: v, lastUsed: time.Now()})
	}

	if cfg.IdleTimeout > 0 {
		p.reaper.Add(1)
		go p.reap()
	}
	return p, nil
}

// Acquire returns an exclusive resource. It blocks while the pool is at
// capacity, failing with POOL_TIMEOUT when ctx (or AcquireTimeout) expires
// and with POOL_CLOSED once the pool is draining.
func (p *Pool[T]) Acquire(ctx context.Context) (*Resource[T], error) {
	start := time.Now()
	if p.cfg.AcquireTimeout > 0 {
		if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > p.cfg.AcquireTimeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
			defer cancel()
		}
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errors.New(errors.ErrCodePoolClosed, "pool is closed")
		}

		if n := len(p.idle); n > 0 && p.waiters.Len() == 0 {
			e := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.busy++
			p.mu.Unlock()

			if p.validator != nil {
				if err := p.validator.Validate(ctx, e.value); err != nil {
					p.logger.Debug("pooled resource failed validation", "err", err)
					p.discard(e, ReasonInvalid)
					continue
				}
			}
			return p.handOut(ctx, e, start), nil
		}

		if p.live() < p.cfg.Max {
			p.creating++
			p.mu.Unlock()
			return p.createForCaller(ctx, start)
		}

		w := &waiter[T]{ch: make(chan result[T], 1)}
		w.elem = p.waiters.PushBack(w)
		p.mu.Unlock()

		return p.wait(ctx, w, start)
	}
}

func (p *Pool[T]) createForCaller(ctx context.Context, start time.Time) (*Resource[T], error) {
	v, err := p.create(ctx)

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.fillLocked()
		p.checkDrainedLocked()
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		p.destroyLocked(v, ReasonDrain)
		p.checkDrainedLocked()
		p.mu.Unlock()
		return nil, errors.New(errors.ErrCodePoolClosed, "pool is closed")
	}
	p.busy++
	p.mu.Unlock()

	return p.handOut(ctx, &entry[T]{value: v}, start), nil
}

func (p *Pool[T]) wait(ctx context.Context, w *waiter[T], start time.Time) (*Resource[T], error) {
	select {
	case r := <-w.ch:
		if r.err != nil {
			return nil, r.err
		}
		return p.handOut(ctx, r.e, start), nil

	case <-ctx.Done():
		p.mu.Lock()
		if !w.served {
			p.waiters.Remove(w.elem)
			p.timeouts++
			p.mu.Unlock()
			return nil, p.timeoutError(ctx, start)
		}
		p.mu.Unlock()

		// Served concurrently with the deadline: pass the resource on.
		r := <-w.ch
		if r.e != nil {
			p.put(r.e, false)
		}
		p.mu.Lock()
		p.timeouts++
		p.mu.Unlock()
		return nil, p.timeoutError(ctx, start)
	}
}

func (p *Pool[T]) timeoutError(ctx context.Context, start time.Time) error {
	wait := time.Since(start)
	observability.Pool().OnTimeout(ctx, wait)
	return errors.Wrap(errors.ErrCodePoolTimeout, ctx.Err(), "no render resource available after %s", wait.Round(time.Millisecond))
}

func (p *Pool[T]) handOut(ctx context.Context, e *entry[T], start time.Time) *Resource[T] {
	observability.Pool().OnAcquire(ctx, time.Since(start))
	return &Resource[T]{pool: p, e: e}
}

// With acquires a resource, calls fn and releases the resource on every
// exit path. If fn panics the resource is marked broken before the panic
// continues.
func (p *Pool[T]) With(ctx context.Context, fn func(r *Resource[T]) error) error {
	r, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer r.Release()
	defer func() {
		if rec := recover(); rec != nil {
			r.MarkBroken()
			panic(rec)
		}
	}()
	return fn(r)
}

// put returns a busy entry: to the head waiter, to idle, or to the factory.
func (p *Pool[T]) put(e *entry[T], broken bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if broken || p.closed {
		p.busy--
		reason := ReasonBroken
		if !broken {
			reason = ReasonDrain
		}
		p.destroyLocked(e.value, reason)
		p.fillLocked()
		p.checkDrainedLocked()
		return
	}

	e.lastUsed = time.Now()
	if w := p.popWaiterLocked(); w != nil {
		// Ownership moves to the waiter; busy is unchanged.
		w.ch <- result[T]{e: e}
		return
	}
	p.busy--
	p.idle = append(p.idle, e)
}

// discard destroys a busy entry that must not be handed out.
func (p *Pool[T]) discard(e *entry[T], reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy--
	p.destroyLocked(e.value, reason)
	p.fillLocked()
	p.checkDrainedLocked()
}

func (p *Pool[T]) popWaiterLocked() *waiter[T] {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	w := p.waiters.Remove(front).(*waiter[T])
	w.served = true
	return w
}

func (p *Pool[T]) live() int {
	return p.busy + len(p.idle) + p.creating
}

// fillLocked starts background creations for queued callers and to keep
// Min resources alive.
func (p *Pool[T]) fillLocked() {
	for !p.closed && p.live() < p.cfg.Max &&
		(p.creating < p.waiters.Len() || p.live() < p.cfg.Min) {
		p.creating++
		go p.createInBackground()
	}
}

func (p *Pool[T]) createInBackground() {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.CreateTimeout)
	defer cancel()
	v, err := p.create(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.creating--

	if err != nil {
		p.logger.Warn("failed to create pooled resource", "err", err)
		if w := p.popWaiterLocked(); w != nil {
			w.ch <- result[T]{err: err}
		}
		p.checkDrainedLocked()
		return
	}
	if p.closed {
		p.destroyLocked(v, ReasonDrain)
		p.checkDrainedLocked()
		return
	}

	e := &entry[T]{value: v, lastUsed: time.Now()}
	if w := p.popWaiterLocked(); w != nil {
		p.busy++
		w.ch <- result[T]{e: e}
		return
	}
	p.idle = append(p.idle, e)
}

func (p *Pool[T]) create(ctx context.Context) (T, error) {
	start := time.Now()
	v, err := p.factory.Create(ctx)
	observability.Pool().OnCreate(ctx, time.Since(start), err)
	if err != nil {
		var zero T
		if errors.GetCode(err) == "" {
			err = errors.Wrap(errors.ErrCodeInternal, err, "create resource")
		}
		return zero, err
	}
	p.mu.Lock()
	p.created++
	p.mu.Unlock()
	return v, nil
}

func (p *Pool[T]) destroyLocked(v T, reason string) {
	p.destroyed++
	p.destroys.Add(1)
	go func() {
		defer p.destroys.Done()
		if err := p.factory.Destroy(v); err != nil {
			p.logger.Warn("failed to destroy pooled resource", "reason", reason, "err", err)
		}
		observability.Pool().OnDestroy(p.ctx, reason)
	}()
}

func (p *Pool[T]) checkDrainedLocked() {
	if p.closed && !p.isDone && p.busy == 0 && p.creating == 0 {
		p.isDone = true
		close(p.drained)
	}
}

// Drain closes the pool. New acquires fail with POOL_CLOSED, queued callers
// are rejected, idle resources are destroyed, and Drain waits until every
// busy resource has been released and destroyed or ctx expires.
func (p *Pool[T]) Drain(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for w := p.popWaiterLocked(); w != nil; w = p.popWaiterLocked() {
			w.ch <- result[T]{err: errors.New(errors.ErrCodePoolClosed, "pool is draining")}
		}
		for _, e := range p.idle {
			p.destroyLocked(e.value, ReasonDrain)
		}
		p.idle = nil
		p.checkDrainedLocked()
		close(p.stopReap)
	}
	p.mu.Unlock()

	p.reaper.Wait()

	select {
	case <-p.drained:
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		p.destroys.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}

func (p *Pool[T]) reap() {
	defer p.reaper.Done()
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopReap:
			return
		case now := <-ticker.C:
			p.reapOnce(now)
		}
	}
}

func (p *Pool[T]) reapOnce(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.idle) > p.cfg.Min && now.Sub(p.idle[0].lastUsed) >= p.cfg.IdleTimeout {
		e := p.idle[0]
		p.idle = p.idle[1:]
		p.destroyLocked(e.value, ReasonIdle)
	}
}

// Stats returns a snapshot of the pool state.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Idle:      len(p.idle),
		Busy:      p.busy,
		Waiting:   p.waiters.Len(),
		Creating:  p.creating,
		Min:       p.cfg.Min,
		Max:       p.cfg.Max,
		Created:   p.created,
		Destroyed: p.destroyed,
		Timeouts:  p.timeouts,
	}
}
