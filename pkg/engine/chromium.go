package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
)

// CSS pixels per inch, used to size PDF pages.
const cssPixelsPerInch = 96.0

const (
	readyScript = `() => window.__CHART_READY__ === true`
	svgScript   = `() => {
		const svg = document.querySelector(".recharts-wrapper svg");
		if (!svg) throw new Error("No SVG element found");
		return svg.outerHTML;
	}`
	pingScript = `() => 1`
)

// ChromiumOptions configures a Chromium browser.
type ChromiumOptions struct {
	// BinPath is the Chromium executable. Empty lets the launcher find or
	// download one.
	BinPath string

	// RemoteURL is the DevTools WebSocket URL of an external Chromium.
	// When set, nothing is launched locally.
	RemoteURL string

	// BundlePath is the chart client bundle loaded into every page.
	BundlePath string

	// Bundle overrides BundlePath with in-memory contents.
	Bundle []byte

	ReadyTimeout time.Duration
	Settle       time.Duration
	DeviceScale  float64

	Logger *log.Logger
}

func (o *ChromiumOptions) defaults() {
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	if o.Settle < 0 {
		o.Settle = 0
	} else if o.Settle == 0 {
		o.Settle = DefaultSettle
	}
	if o.DeviceScale <= 0 {
		o.DeviceScale = DefaultDeviceScale
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Chromium is a Browser backed by headless Chromium through the DevTools
// protocol.
type Chromium struct {
	opts    ChromiumOptions
	bundle  []byte
	browser *rod.Browser
	lnch    *launcher.Launcher

	mu     sync.Mutex
	closed bool
	pages  atomic.Int64
}

// NewChromium loads the client bundle and starts (or connects to) Chromium.
func NewChromium(ctx context.Context, opts ChromiumOptions) (*Chromium, error) {
	opts.defaults()

	bundle := opts.Bundle
	if bundle == nil {
		if opts.BundlePath == "" {
			return nil, errors.New(errors.ErrCodeValidation, "chart client bundle path is required")
		}
		data, err := os.ReadFile(opts.BundlePath)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeValidation, err, "client bundle not found at %s", opts.BundlePath)
		}
		bundle = data
	}

	c := &Chromium{opts: opts, bundle: bundle}
	wsURL := opts.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Context(ctx).
			Headless(true).
			NoSandbox(true).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("disable-extensions").
			Set("no-first-run").
			Set("no-zygote")
		if opts.BinPath != "" {
			l = l.Bin(opts.BinPath)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeEngineCrash, err, "launch chromium")
		}
		wsURL = u
		c.lnch = l
		opts.Logger.Info("launched chromium", "url", wsURL)
	} else {
		opts.Logger.Info("connecting to remote chromium", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		c.cleanup()
		return nil, errors.Wrap(errors.ErrCodeEngineCrash, err, "connect to chromium")
	}
	c.browser = b
	return c, nil
}

// NewPage opens a blank tab parked at the idle viewport.
func (c *Chromium) NewPage(ctx context.Context) (Page, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, errors.New(errors.ErrCodeEngineCrash, "browser is closed")
	}

	p, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, Classify(ctx, err, "open tab")
	}
	err = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             IdleWidth,
		Height:            IdleHeight,
		DeviceScaleFactor: c.opts.DeviceScale,
	})
	if err != nil {
		_ = p.Close()
		return nil, Classify(ctx, err, "set viewport")
	}

	id := fmt.Sprintf("tab-%d", c.pages.Add(1))
	c.opts.Logger.Debug("opened tab", "id", id)
	return &chromiumPage{id: id, page: p.Context(context.Background()), c: c}, nil
}

// Close closes the browser and, if it was launched locally, kills it.
func (c *Chromium) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.cleanup()
}

func (c *Chromium) cleanup() error {
	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
		c.lnch = nil
	}
	return err
}

type chromiumPage struct {
	id   string
	page *rod.Page
	c    *Chromium
}

func (p *chromiumPage) ID() string { return p.id }

func (p *chromiumPage) Render(ctx context.Context, req *chart.Request) (*Output, error) {
	switch req.Format {
	case chart.FormatPNG, chart.FormatSVG, chart.FormatPDF:
	default:
		return nil, Unsupported(req.Format)
	}

	html, err := BuildHTML(req, p.c.bundle)
	if err != nil {
		return nil, err
	}

	page := p.page.Context(ctx)
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             req.Width,
		Height:            req.Height,
		DeviceScaleFactor: p.c.opts.DeviceScale,
	})
	if err != nil {
		return nil, Classify(ctx, err, "set viewport")
	}
	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, Classify(ctx, err, "load page")
	}

	readyCtx, cancel := context.WithTimeout(ctx, p.c.opts.ReadyTimeout)
	defer cancel()
	if err := page.Context(readyCtx).Wait(rod.Eval(readyScript)); err != nil {
		if readyCtx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeEngineTimeout, err, "chart not ready")
		}
		return nil, Classify(ctx, err, "wait for chart")
	}

	select {
	case <-time.After(p.c.opts.Settle):
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrCodeEngineTimeout, ctx.Err(), "settle")
	}

	data, err := p.capture(ctx, page, req)
	if err != nil {
		return nil, err
	}
	return &Output{Data: data, ContentType: req.Format.ContentType()}, nil
}

func (p *chromiumPage) capture(ctx context.Context, page *rod.Page, req *chart.Request) ([]byte, error) {
	switch req.Format {
	case chart.FormatSVG:
		res, err := page.Eval(svgScript)
		if err != nil {
			return nil, Classify(ctx, err, "extract svg")
		}
		return []byte(res.Value.Str()), nil

	case chart.FormatPDF:
		w := float64(req.Width) / cssPixelsPerInch
		h := float64(req.Height) / cssPixelsPerInch
		zero := 0.0
		r, err := page.PDF(&proto.PagePrintToPDF{
			PaperWidth:      &w,
			PaperHeight:     &h,
			MarginTop:       &zero,
			MarginBottom:    &zero,
			MarginLeft:      &zero,
			MarginRight:     &zero,
			PrintBackground: true,
			PageRanges:      "1",
		})
		if err != nil {
			return nil, Classify(ctx, err, "print pdf")
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, Classify(ctx, err, "read pdf")
		}
		return data, nil

	default:
		data, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
			Clip: &proto.PageViewport{
				X:      0,
				Y:      0,
				Width:  float64(req.Width),
				Height: float64(req.Height),
				Scale:  1,
			},
		})
		if err != nil {
			return nil, Classify(ctx, err, "screenshot")
		}
		return data, nil
	}
}

func (p *chromiumPage) Healthy(ctx context.Context) error {
	if _, err := p.page.Context(ctx).Eval(pingScript); err != nil {
		return Classify(ctx, err, "ping %s", p.id)
	}
	return nil
}

func (p *chromiumPage) Close() error {
	p.c.opts.Logger.Debug("closing tab", "id", p.id)
	return p.page.Close()
}

var (
	_ Browser = (*Chromium)(nil)
	_ Page    = (*chromiumPage)(nil)
)
