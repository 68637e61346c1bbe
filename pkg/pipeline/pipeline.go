// Package pipeline provides the render orchestrator for chartcn.
//
// The [Runner] ties the stages of a render together so that the CLI and the
// HTTP server share one code path:
//
//  1. Resolve: turn a full request or a saved-config id plus overrides into
//     a validated request
//  2. Fingerprint: derive the content address of the request
//  3. Cache: serve the artifact from the two-tier artifact cache when present
//  4. Render: acquire a page from the pool within the render deadline, render
//     on it and cache the successful result
//
// Failures are never cached. A page that failed with a crash or timeout is
// marked broken and replaced by the pool.
//
// # Usage
//
//	runner, err := pipeline.NewRunner(pipeline.Options{
//	    Artifacts: artifacts,
//	    Configs:   configs,
//	    Pool:      pages,
//	})
//	if err != nil {
//	    return err
//	}
//	defer runner.Close(context.Background())
//
//	res, err := runner.Render(ctx, req)
//	if err != nil {
//	    return err
//	}
//	os.WriteFile("chart.png", res.Artifact.Data, 0o644)
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chartcn/pkg/cache"
	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/configstore"
	"github.com/matzehuels/chartcn/pkg/engine"
	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/pool"
	"github.com/matzehuels/chartcn/pkg/writeback"
)

// =============================================================================
// Default Values
// =============================================================================

// DefaultTimeout is the overall render deadline. It covers waiting for a
// page and the backend render.
const DefaultTimeout = 10 * time.Second

// =============================================================================
// Options
// =============================================================================

// Options configures a Runner.
type Options struct {
	// Artifacts caches rendered charts by fingerprint. Required.
	Artifacts *cache.ArtifactCache

	// Configs stores saved configurations. Required.
	Configs *configstore.Store

	// Pool gates access to rendering pages. Required.
	Pool *pool.Pool[engine.Page]

	// Queue runs durable writes. It is flushed by Runner.Close when set.
	Queue *writeback.Queue

	// Timeout bounds a single render (acquire plus backend).
	Timeout time.Duration

	Logger *log.Logger
}

// ValidateAndSetDefaults checks required components and fills defaults.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Artifacts == nil {
		return errors.New(errors.ErrCodeValidation, "pipeline: artifact cache is required")
	}
	if o.Configs == nil {
		return errors.New(errors.ErrCodeValidation, "pipeline: config store is required")
	}
	if o.Pool == nil {
		return errors.New(errors.ErrCodeValidation, "pipeline: page pool is required")
	}
	if o.Timeout < 0 {
		return errors.New(errors.ErrCodeValidation, "pipeline: timeout must not be negative")
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return nil
}

// =============================================================================
// Input and Result
// =============================================================================

// Input names what to render: either a full request or the id of a saved
// configuration.
type Input struct {
	Request *chart.Request
	ID      string
}

// Result is the outcome of a render.
type Result struct {
	Artifact *chart.Artifact
	CacheHit bool
	Stats    Stats
}

// Stats holds timing information for a render.
type Stats struct {
	Acquire time.Duration // waiting for a page
	Render  time.Duration // backend render
	Total   time.Duration
}

// Health is a snapshot of the runner's components.
type Health struct {
	Pool       pool.Stats      `json:"pool"`
	Artifacts  cache.Stats     `json:"artifacts"`
	Configs    cache.Stats     `json:"configs"`
	Writeback  writeback.Stats `json:"writeback"`
	Persistent bool            `json:"persistent"`
}
