package engine

import (
	"context"
	"sync"

	"github.com/matzehuels/chartcn/pkg/errors"
)

// OpenFunc starts a browser.
type OpenFunc func(ctx context.Context) (Browser, error)

// LazyBrowser starts its browser on the first NewPage call. A failed start
// is retried by the next call.
type LazyBrowser struct {
	open OpenFunc

	mu      sync.Mutex
	browser Browser
	closed  bool
}

// NewLazy returns a browser that calls open on first use.
func NewLazy(open OpenFunc) *LazyBrowser {
	return &LazyBrowser{open: open}
}

// NewPage starts the browser if needed and opens a page on it.
func (l *LazyBrowser) NewPage(ctx context.Context) (Page, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, errors.New(errors.ErrCodeEngineCrash, "browser is closed")
	}
	if l.browser == nil {
		b, err := l.open(ctx)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}
		l.browser = b
	}
	b := l.browser
	l.mu.Unlock()

	return b.NewPage(ctx)
}

// Started reports whether the browser has been started.
func (l *LazyBrowser) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.browser != nil
}

// Close closes the browser if it was started.
func (l *LazyBrowser) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.browser == nil {
		return nil
	}
	return l.browser.Close()
}

var _ Browser = (*LazyBrowser)(nil)
