package engine

import (
	"context"
	"time"

	"github.com/matzehuels/chartcn/pkg/pool"
)

// PageFactory adapts a Browser to pool.Factory and pool.Validator.
type PageFactory struct {
	Browser       Browser
	HealthTimeout time.Duration
}

// NewPageFactory returns a factory creating pages from b.
func NewPageFactory(b Browser) *PageFactory {
	return &PageFactory{Browser: b, HealthTimeout: DefaultHealthTimeout}
}

// Create opens a new page.
func (f *PageFactory) Create(ctx context.Context) (Page, error) {
	return f.Browser.NewPage(ctx)
}

// Destroy closes p.
func (f *PageFactory) Destroy(p Page) error {
	return p.Close()
}

// Validate checks that p still responds.
func (f *PageFactory) Validate(ctx context.Context, p Page) error {
	if f.HealthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.HealthTimeout)
		defer cancel()
	}
	return p.Healthy(ctx)
}

var (
	_ pool.Factory[Page]   = (*PageFactory)(nil)
	_ pool.Validator[Page] = (*PageFactory)(nil)
)
