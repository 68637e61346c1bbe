// Package pkg provides the core libraries for chartcn chart rendering.
//
// # Overview
//
// chartcn turns declarative chart requests into PNG, SVG or PDF artifacts
// by driving a pool of headless browser pages. Identical requests are
// rendered once: every artifact is cached under a fingerprint of its
// request. The pkg directory is organized into four areas:
//
//  1. Domain: [chart] (requests, formats, artifacts) and [fingerprint]
//  2. Rendering: [engine] (browser pages) and [pool] (bounded page pool)
//  3. Infrastructure: [cache], [configstore], [storage], [writeback], [retry]
//  4. Orchestration and transport: [pipeline] and [server]
//
// # Architecture
//
// The data flow of a render:
//
//	Request (HTTP body, query or saved id)
//	         ↓
//	    [pipeline] Resolve (validate, apply overrides)
//	         ↓
//	    [fingerprint] (canonical JSON → sha256)
//	         ↓
//	    [cache] memory tier → durable [storage] tier
//	         ↓ miss
//	    [pool] acquire page → [engine] render → release
//	         ↓
//	    [cache] put (durable write through [writeback])
//
// # Quick Start
//
// The HTTP service:
//
//	chartcn serve --config chartcn.toml
//
// A single render from the command line:
//
//	chartcn render examples/requests/bar.json -o bar.png
//
// See [pipeline] for the programmatic API.
package pkg
