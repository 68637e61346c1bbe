// Package cache provides the two-tier caches used by the render pipeline.
//
// # Tiers
//
// The first tier is [Memory], a bounded LRU with a per-entry TTL. Expired
// entries are never returned, even while they are still resident. Memory
// operations never perform I/O.
//
// The optional second tier is a durable store (see package storage). Reads
// fall through to it on a memory miss and backfill memory on a hit. Writes
// land in memory synchronously and are handed to a writeback queue for the
// durable tier, so a slow or failing store never delays a caller.
//
// Durable failures degrade to misses: they are logged and reported through
// observability hooks, never returned.
//
// # Usage
//
//	queue, _ := writeback.New(writeback.Options{})
//	artifacts, err := cache.NewArtifactCache(cache.Options{
//	    MaxEntries: 500,
//	    TTL:        time.Hour,
//	    Store:      store, // nil for memory-only
//	    Queue:      queue,
//	})
//
//	if art, ok := artifacts.Get(ctx, fp); ok {
//	    return art
//	}
//	artifacts.Put(ctx, rendered)
package cache
