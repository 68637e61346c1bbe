package pipeline

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chartcn/pkg/cache"
	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/configstore"
	"github.com/matzehuels/chartcn/pkg/engine"
	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/fingerprint"
	"github.com/matzehuels/chartcn/pkg/observability"
	"github.com/matzehuels/chartcn/pkg/pool"
	"github.com/matzehuels/chartcn/pkg/writeback"
)

// Runner orchestrates renders with caching and bounded concurrency.
//
// The Runner holds no per-request state. Multiple goroutines can safely
// use the same Runner.
type Runner struct {
	Artifacts *cache.ArtifactCache
	Configs   *configstore.Store
	Pool      *pool.Pool[engine.Page]
	Queue     *writeback.Queue
	Timeout   time.Duration
	Logger    *log.Logger
}

// NewRunner creates a runner from opts.
func NewRunner(opts Options) (*Runner, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return &Runner{
		Artifacts: opts.Artifacts,
		Configs:   opts.Configs,
		Pool:      opts.Pool,
		Queue:     opts.Queue,
		Timeout:   opts.Timeout,
		Logger:    opts.Logger,
	}, nil
}

// Resolve returns the validated request described by in with the overrides
// applied. A full request takes overrides as well; an id that is not found
// in either tier returns NOT_FOUND.
func (r *Runner) Resolve(ctx context.Context, in Input, o chart.Overrides) (*chart.Request, error) {
	if (in.Request == nil) == (in.ID == "") {
		return nil, errors.New(errors.ErrCodeValidation, "exactly one of request or id is required")
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	var base *chart.Request
	if in.Request != nil {
		base = in.Request
	} else {
		saved, ok := r.Configs.Load(ctx, in.ID)
		if !ok {
			return nil, errors.New(errors.ErrCodeNotFound, "chart config not found: %s", in.ID)
		}
		base = saved.Request
	}

	req := base.Apply(o)
	if err := req.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return req, nil
}

// Render returns the artifact for req, from the cache when possible.
// req must be validated (see Resolve).
func (r *Runner) Render(ctx context.Context, req *chart.Request) (*Result, error) {
	if req == nil {
		return nil, errors.New(errors.ErrCodeValidation, "request is required")
	}
	start := time.Now()
	hooks := observability.Render()
	format := string(req.Format)

	fp, err := fingerprint.Of(req)
	if err != nil {
		return nil, err
	}

	if art, ok := r.Artifacts.Get(ctx, fp); ok {
		total := time.Since(start)
		hooks.OnRenderComplete(ctx, fp, format, true, total, nil)
		return &Result{Artifact: art, CacheHit: true, Stats: Stats{Total: total}}, nil
	}

	hooks.OnRenderStart(ctx, fp, format)
	res, err := r.render(ctx, req, fp)
	total := time.Since(start)
	hooks.OnRenderComplete(ctx, fp, format, false, total, err)
	if err != nil {
		r.Logger.Warn("render failed", "chart", req, "fingerprint", fp, "err", err)
		return nil, err
	}
	res.Stats.Total = total

	r.Artifacts.Put(ctx, res.Artifact)
	r.Logger.Debug("rendered chart",
		"chart", req,
		"fingerprint", fp,
		"bytes", res.Artifact.Size(),
		"acquire", res.Stats.Acquire,
		"render", res.Stats.Render)
	return res, nil
}

// render acquires a page and renders on it under one deadline.
func (r *Runner) render(ctx context.Context, req *chart.Request, fp string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var (
		out      *engine.Output
		acquired time.Time
		start    = time.Now()
	)
	err := r.Pool.With(ctx, func(res *pool.Resource[engine.Page]) error {
		acquired = time.Now()
		o, err := res.Value().Render(ctx, req)
		if err == nil && (o == nil || len(o.Data) == 0) {
			err = errors.New(errors.ErrCodeEngineCrash, "empty output from page %s", res.Value().ID())
		}
		if err != nil {
			if engine.Broken(err) {
				res.MarkBroken()
			}
			return engine.Classify(ctx, err, "render %s on %s", req, res.Value().ID())
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	contentType := out.ContentType
	if contentType == "" {
		contentType = req.Format.ContentType()
	}
	return &Result{
		Artifact: &chart.Artifact{
			Data:        out.Data,
			ContentType: contentType,
			Fingerprint: fp,
		},
		Stats: Stats{
			Acquire: acquired.Sub(start),
			Render:  time.Since(acquired),
		},
	}, nil
}

// Save stores req for later rendering by id.
func (r *Runner) Save(ctx context.Context, req *chart.Request) (*configstore.SavedConfig, error) {
	saved, err := r.Configs.Save(ctx, req)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("saved chart config", "id", saved.ID, "chart", saved.Request)
	return saved, nil
}

// RenderByID renders the saved configuration id with overrides applied.
func (r *Runner) RenderByID(ctx context.Context, id string, o chart.Overrides) (*Result, error) {
	req, err := r.Resolve(ctx, Input{ID: id}, o)
	if err != nil {
		return nil, err
	}
	return r.Render(ctx, req)
}

// Health returns a snapshot of the pool, caches and writeback queue.
func (r *Runner) Health() Health {
	h := Health{
		Pool:       r.Pool.Stats(),
		Artifacts:  r.Artifacts.Stats(),
		Configs:    r.Configs.Stats(),
		Persistent: r.Artifacts.Persistent() || r.Configs.Persistent(),
	}
	if r.Queue != nil {
		h.Writeback = r.Queue.Stats()
	}
	return h
}

// Close drains the page pool, then flushes pending durable writes.
func (r *Runner) Close(ctx context.Context) error {
	var errs []error
	if err := r.Pool.Drain(ctx); err != nil {
		errs = append(errs, errors.Wrap(errors.ErrCodeInternal, err, "drain page pool"))
	}
	if r.Queue != nil {
		if err := r.Queue.Close(ctx); err != nil {
			errs = append(errs, errors.Wrap(errors.ErrCodeInternal, err, "flush writeback queue"))
		}
	}
	return stderrors.Join(errs...)
}
