// Package engine renders chart requests with a browser backend.
//
// The rendering model mirrors how the chart client expects to run: a page is
// sized to the request, loaded with a self-contained HTML document carrying
// the theme CSS, the request as window.__CHART_CONFIG__ and the client bundle,
// and then polled until the bundle sets window.__CHART_READY__. The result is
// captured as SVG markup, a PDF or a PNG screenshot.
//
// # Resources
//
// A [Page] is one browser tab. Pages are stateful and expensive, so callers
// hold them in a pool (see package pool) through [PageFactory], which creates
// pages from a [Browser], validates idle ones with [Page.Healthy] and closes
// them on destroy.
//
// # Errors
//
// Render failures carry one of three codes:
//   - ENGINE_TIMEOUT: the deadline passed before the chart was ready
//   - ENGINE_CRASH: the page or browser failed
//   - UNSUPPORTED_FORMAT: the output format is unknown
//
// A page that returned ENGINE_TIMEOUT or ENGINE_CRASH must not be reused.
package engine

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
)

// Page is a single exclusive rendering surface.
type Page interface {
	ID() string
	Render(ctx context.Context, req *chart.Request) (*Output, error)
	Healthy(ctx context.Context) error
	Close() error
}

// Browser creates pages.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Output is the rendered payload of a page.
type Output struct {
	Data        []byte
	ContentType string
}

// Defaults shared by backends.
const (
	DefaultReadyTimeout  = 8 * time.Second
	DefaultSettle        = 100 * time.Millisecond
	DefaultHealthTimeout = 2 * time.Second
	DefaultDeviceScale   = 2.0

	// Idle pages are parked at this viewport.
	IdleWidth  = 1200
	IdleHeight = 900
)

// Classify maps a backend failure to an engine error code.
func Classify(ctx context.Context, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.IsEngine(err) || requestSide(err) {
		return err
	}
	if ctx.Err() != nil || isDeadline(err) {
		return errors.Wrap(errors.ErrCodeEngineTimeout, err, format, args...)
	}
	return errors.Wrap(errors.ErrCodeEngineCrash, err, format, args...)
}

// Unsupported returns the error for an unknown output format.
func Unsupported(f chart.Format) error {
	return errors.New(errors.ErrCodeUnsupportedFormat, "unsupported output format %q", f)
}

// Broken reports whether a page that returned err must be destroyed.
// Failures caused by the request itself leave the page reusable.
func Broken(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, errors.ErrCodeUnsupportedFormat) && !requestSide(err)
}

// requestSide reports whether err was raised before the page was touched,
// while preparing the request.
func requestSide(err error) bool {
	return errors.Is(err, errors.ErrCodeValidation) || errors.Is(err, errors.ErrCodeEncoding)
}

func isDeadline(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return stderrors.As(err, &t) && t.Timeout()
}
