// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about renders, cache tiers, the resource pool and the
// durable store.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Hooks are registered by main, never by libraries, so the core packages
// stay free of observability frameworks.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetRenderHooks(&myRenderHooks{})
//	    observability.SetPoolHooks(observability.NewLogHooks(logger))
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Render().OnRenderStart(ctx, fp, "png")
//	// ... render ...
//	observability.Render().OnRenderComplete(ctx, fp, "png", hit, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// Cache tier names passed to CacheHooks.
const (
	TierMemory  = "memory"
	TierDurable = "durable"
)

// =============================================================================
// Render Hooks
// =============================================================================

// RenderHooks receives events from the render orchestrator.
type RenderHooks interface {
	OnRenderStart(ctx context.Context, fingerprint, format string)
	OnRenderComplete(ctx context.Context, fingerprint, format string, cacheHit bool, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit in the given tier.
	OnCacheHit(ctx context.Context, kind, tier string)

	// OnCacheMiss records a miss across all tiers.
	OnCacheMiss(ctx context.Context, kind string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, kind string, size int)
}

// =============================================================================
// Pool Hooks
// =============================================================================

// PoolHooks receives events from the render resource pool.
type PoolHooks interface {
	// OnAcquire records a successful acquisition and how long the caller waited.
	OnAcquire(ctx context.Context, wait time.Duration)

	// OnTimeout records an acquisition that gave up waiting.
	OnTimeout(ctx context.Context, wait time.Duration)

	// OnCreate records a resource creation attempt.
	OnCreate(ctx context.Context, duration time.Duration, err error)

	// OnDestroy records a destroyed resource and why.
	OnDestroy(ctx context.Context, reason string)
}

// =============================================================================
// Store Hooks
// =============================================================================

// StoreHooks receives events from the durable tier.
type StoreHooks interface {
	// OnStoreError records a failed durable read or write. The failure
	// never reaches the caller.
	OnStoreError(ctx context.Context, op string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopRenderHooks is a no-op implementation of RenderHooks.
type NoopRenderHooks struct{}

func (NoopRenderHooks) OnRenderStart(context.Context, string, string) {}
func (NoopRenderHooks) OnRenderComplete(context.Context, string, string, bool, time.Duration, error) {
}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string, string) {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)         {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int)     {}

// NoopPoolHooks is a no-op implementation of PoolHooks.
type NoopPoolHooks struct{}

func (NoopPoolHooks) OnAcquire(context.Context, time.Duration)       {}
func (NoopPoolHooks) OnTimeout(context.Context, time.Duration)       {}
func (NoopPoolHooks) OnCreate(context.Context, time.Duration, error) {}
func (NoopPoolHooks) OnDestroy(context.Context, string)              {}

// NoopStoreHooks is a no-op implementation of StoreHooks.
type NoopStoreHooks struct{}

func (NoopStoreHooks) OnStoreError(context.Context, string, error) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	renderHooks RenderHooks = NoopRenderHooks{}
	cacheHooks  CacheHooks  = NoopCacheHooks{}
	poolHooks   PoolHooks   = NoopPoolHooks{}
	storeHooks  StoreHooks  = NoopStoreHooks{}
	hooksMu     sync.RWMutex
)

// SetRenderHooks registers custom render hooks.
// This should be called once at application startup before any renders.
func SetRenderHooks(h RenderHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		renderHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetPoolHooks registers custom pool hooks.
func SetPoolHooks(h PoolHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		poolHooks = h
	}
}

// SetStoreHooks registers custom store hooks.
func SetStoreHooks(h StoreHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		storeHooks = h
	}
}

// Render returns the registered render hooks.
func Render() RenderHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return renderHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Pool returns the registered pool hooks.
func Pool() PoolHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return poolHooks
}

// Store returns the registered store hooks.
func Store() StoreHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return storeHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	renderHooks = NoopRenderHooks{}
	cacheHooks = NoopCacheHooks{}
	poolHooks = NoopPoolHooks{}
	storeHooks = NoopStoreHooks{}
}
