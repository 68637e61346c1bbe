package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/matzehuels/chartcn/pkg/errors"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultWidth is the default frame width in pixels.
	DefaultWidth = 600

	// DefaultHeight is the default frame height in pixels.
	DefaultHeight = 400

	// DefaultType is the chart type used when none is given.
	DefaultType = TypeBar

	// DefaultFormat is the output format used when none is given.
	DefaultFormat = FormatPNG

	// DefaultTheme is the theme used when none is given.
	DefaultTheme = ThemeDefault
)

// Type is a chart kind understood by the client bundle.
type Type string

// Chart types.
const (
	TypeLine   Type = "line"
	TypeArea   Type = "area"
	TypeBar    Type = "bar"
	TypePie    Type = "pie"
	TypeRadar  Type = "radar"
	TypeRadial Type = "radial"
)

// ValidTypes is the set of supported chart types.
var ValidTypes = map[Type]bool{
	TypeLine:   true,
	TypeArea:   true,
	TypeBar:    true,
	TypePie:    true,
	TypeRadar:  true,
	TypeRadial: true,
}

// Theme selects the color scheme.
type Theme string

// Themes.
const (
	ThemeDefault Theme = "default"
	ThemeDark    Theme = "dark"
)

// ValidThemes is the set of supported themes.
var ValidThemes = map[Theme]bool{
	ThemeDefault: true,
	ThemeDark:    true,
}

// =============================================================================
// Request
// =============================================================================

// Request is a declarative render request.
//
// The JSON field names follow the public API: the chart spec travels under
// "config". Spec values are plain JSON values (maps, slices, strings,
// bools, float64 or json.Number).
type Request struct {
	Type       Type           `json:"type"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Format     Format         `json:"format"`
	Theme      Theme          `json:"theme"`
	Background string         `json:"background,omitempty"`
	Spec       map[string]any `json:"config"`
}

// Decode reads a JSON request from r. Numbers inside the spec are kept as
// json.Number so that no precision is lost before fingerprinting.
// The returned request is not yet validated.
func Decode(r io.Reader) (*Request, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var req Request
	if err := dec.Decode(&req); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "invalid request body")
	}
	return &req, nil
}

// Parse decodes and validates a JSON request.
func Parse(data []byte) (*Request, error) {
	req, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := req.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return req, nil
}

// ValidateAndSetDefaults applies defaults for absent fields and checks
// every invariant of a request. It is idempotent.
func (r *Request) ValidateAndSetDefaults() error {
	r.SetDefaults()
	return r.Validate()
}

// SetDefaults fills zero-valued fields with their defaults.
func (r *Request) SetDefaults() {
	if r.Type == "" {
		r.Type = DefaultType
	}
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if r.Format == "" {
		r.Format = DefaultFormat
	} else if f, err := ParseFormat(string(r.Format)); err == nil {
		r.Format = f
	}
	if r.Theme == "" {
		r.Theme = DefaultTheme
	}
}

// Validate checks a request without applying defaults.
func (r *Request) Validate() error {
	if !ValidTypes[r.Type] {
		return errors.New(errors.ErrCodeValidation, "invalid type: %q (must be one of: line, area, bar, pie, radar, radial)", r.Type)
	}
	if err := errors.ValidateDimension("width", r.Width); err != nil {
		return err
	}
	if err := errors.ValidateDimension("height", r.Height); err != nil {
		return err
	}
	if err := ValidateFormat(r.Format); err != nil {
		return err
	}
	if !ValidThemes[r.Theme] {
		return errors.New(errors.ErrCodeValidation, "invalid theme: %q (must be one of: default, dark)", r.Theme)
	}
	if r.Background != "" {
		if err := errors.ValidateCSSColor("background", r.Background); err != nil {
			return err
		}
	}
	return validateSpec(r.Spec)
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Spec != nil {
		c.Spec = deepCopy(r.Spec).(map[string]any)
	}
	return &c
}

// Apply returns a copy of r with the non-nil override fields applied.
// The receiver is left untouched.
func (r *Request) Apply(o Overrides) *Request {
	c := r.Clone()
	if o.Format != nil {
		c.Format = *o.Format
	}
	if o.Width != nil {
		c.Width = *o.Width
	}
	if o.Height != nil {
		c.Height = *o.Height
	}
	return c
}

// String returns a short description for logs.
func (r *Request) String() string {
	return fmt.Sprintf("%s %dx%d %s", r.Type, r.Width, r.Height, r.Format)
}

// deepCopy copies JSON-shaped values.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	default:
		return v
	}
}
