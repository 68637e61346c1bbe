// Package enginetest provides scripted engine.Browser and engine.Page fakes.
//
// Fake pages render deterministic bytes that include a global render
// sequence number, so tests can tell a cached artifact from a fresh render.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/engine"
	"github.com/matzehuels/chartcn/pkg/errors"
)

// RenderFunc lets a test decide the outcome of a render. Returning nil
// output and nil error falls through to the default output.
type RenderFunc func(ctx context.Context, req *chart.Request) (*engine.Output, error)

// Browser is a fake engine.Browser.
type Browser struct {
	// Delay is applied to every render; the render honors ctx while waiting.
	Delay time.Duration

	// OnRender, when set, is consulted before the default output.
	OnRender RenderFunc

	mu       sync.Mutex
	failNew  error
	unhealth map[string]bool
	closed   bool

	renders     atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	opened      atomic.Int64
	pagesClosed atomic.Int64
}

// NewBrowser returns a fake browser.
func NewBrowser() *Browser {
	return &Browser{unhealth: make(map[string]bool)}
}

// FailNewPage makes NewPage return err until called again with nil.
func (b *Browser) FailNewPage(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNew = err
}

// MarkUnhealthy makes the page with id fail health checks.
func (b *Browser) MarkUnhealthy(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unhealth[id] = true
}

// Renders returns the number of renders attempted.
func (b *Browser) Renders() int64 { return b.renders.Load() }

// MaxInFlight returns the highest number of concurrent renders observed.
func (b *Browser) MaxInFlight() int64 { return b.maxInFlight.Load() }

// Opened returns the number of pages created.
func (b *Browser) Opened() int64 { return b.opened.Load() }

// PagesClosed returns the number of pages closed.
func (b *Browser) PagesClosed() int64 { return b.pagesClosed.Load() }

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Browser) NewPage(ctx context.Context) (engine.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New(errors.ErrCodeEngineCrash, "browser is closed")
	}
	if b.failNew != nil {
		return nil, b.failNew
	}
	n := b.opened.Add(1)
	return &Page{id: fmt.Sprintf("fake-%d", n), b: b}, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Page is a fake engine.Page.
type Page struct {
	id     string
	b      *Browser
	closed atomic.Bool
}

func (p *Page) ID() string { return p.id }

func (p *Page) Render(ctx context.Context, req *chart.Request) (*engine.Output, error) {
	n := p.b.renders.Add(1)
	cur := p.b.inFlight.Add(1)
	defer p.b.inFlight.Add(-1)
	for {
		old := p.b.maxInFlight.Load()
		if cur <= old || p.b.maxInFlight.CompareAndSwap(old, cur) {
			break
		}
	}

	if p.closed.Load() {
		return nil, errors.New(errors.ErrCodeEngineCrash, "page %s is closed", p.id)
	}

	if p.b.Delay > 0 {
		select {
		case <-time.After(p.b.Delay):
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrCodeEngineTimeout, ctx.Err(), "render on %s", p.id)
		}
	}

	if p.b.OnRender != nil {
		out, err := p.b.OnRender(ctx, req)
		if err != nil || out != nil {
			return out, err
		}
	}

	switch req.Format {
	case chart.FormatPNG, chart.FormatSVG, chart.FormatPDF:
	default:
		return nil, engine.Unsupported(req.Format)
	}

	return &engine.Output{
		Data:        []byte(fmt.Sprintf("render#%d %s on %s", n, req, p.id)),
		ContentType: req.Format.ContentType(),
	}, nil
}

func (p *Page) Healthy(ctx context.Context) error {
	p.b.mu.Lock()
	bad := p.b.unhealth[p.id]
	p.b.mu.Unlock()
	if bad || p.closed.Load() {
		return errors.New(errors.ErrCodeEngineCrash, "page %s unresponsive", p.id)
	}
	return nil
}

func (p *Page) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.b.pagesClosed.Add(1)
	}
	return nil
}

// Crash returns a RenderFunc failing every render with ENGINE_CRASH.
func Crash() RenderFunc {
	return func(context.Context, *chart.Request) (*engine.Output, error) {
		return nil, errors.New(errors.ErrCodeEngineCrash, "target crashed")
	}
}

// Hang returns a RenderFunc that blocks until ctx is done.
func Hang() RenderFunc {
	return func(ctx context.Context, _ *chart.Request) (*engine.Output, error) {
		<-ctx.Done()
		return nil, errors.Wrap(errors.ErrCodeEngineTimeout, ctx.Err(), "chart not ready")
	}
}

var (
	_ engine.Browser = (*Browser)(nil)
	_ engine.Page    = (*Page)(nil)
)
