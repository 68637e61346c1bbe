package chart

import "github.com/matzehuels/chartcn/pkg/errors"

// Overrides are the fields a caller may change when rendering a saved
// configuration. Nil fields keep the stored value.
type Overrides struct {
	Format *Format `json:"format,omitempty"`
	Width  *int    `json:"width,omitempty"`
	Height *int    `json:"height,omitempty"`
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return o.Format == nil && o.Width == nil && o.Height == nil
}

// Validate checks the set fields against the request invariants and
// normalizes format aliases in place.
func (o *Overrides) Validate() error {
	if o.Format != nil {
		f, err := ParseFormat(string(*o.Format))
		if err != nil {
			return err
		}
		o.Format = &f
	}
	if o.Width != nil {
		if err := errors.ValidateDimension("width", *o.Width); err != nil {
			return err
		}
	}
	if o.Height != nil {
		if err := errors.ValidateDimension("height", *o.Height); err != nil {
			return err
		}
	}
	return nil
}

// WithFormat returns o with the format set.
func (o Overrides) WithFormat(f Format) Overrides {
	o.Format = &f
	return o
}

// WithSize returns o with width and height set.
func (o Overrides) WithSize(width, height int) Overrides {
	o.Width = &width
	o.Height = &height
	return o
}
