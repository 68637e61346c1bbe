package chart

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/chartcn/pkg/errors"
)

func sampleSpec() map[string]any {
	return map[string]any{
		"data": []any{
			map[string]any{"x": "A", "y": 10.0},
		},
	}
}

func TestRequestDefaults(t *testing.T) {
	req := Request{Spec: sampleSpec()}
	if err := req.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("Valid request should pass: %v", err)
	}

	if req.Type != DefaultType {
		t.Errorf("Type should be %q, got %q", DefaultType, req.Type)
	}
	if req.Width != DefaultWidth || req.Height != DefaultHeight {
		t.Errorf("Size should be %dx%d, got %dx%d", DefaultWidth, DefaultHeight, req.Width, req.Height)
	}
	if req.Format != DefaultFormat {
		t.Errorf("Format should be %q, got %q", DefaultFormat, req.Format)
	}
	if req.Theme != DefaultTheme {
		t.Errorf("Theme should be %q, got %q", DefaultTheme, req.Theme)
	}

	// Idempotent
	before := *req.Clone()
	if err := req.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("Second validation failed: %v", err)
	}
	if req.Type != before.Type || req.Width != before.Width || req.Format != before.Format {
		t.Error("ValidateAndSetDefaults should be idempotent")
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Request)
		wantErr bool
	}{
		{"valid", func(r *Request) {}, false},
		{"format class alias", func(r *Request) { r.Format = "vector" }, false},
		{"background hex", func(r *Request) { r.Background = "#0a0a0a" }, false},

		{"bad type", func(r *Request) { r.Type = "scatter" }, true},
		{"width too small", func(r *Request) { r.Width = 49 }, true},
		{"width too large", func(r *Request) { r.Width = 4097 }, true},
		{"height too small", func(r *Request) { r.Height = 10 }, true},
		{"negative height", func(r *Request) { r.Height = -400 }, true},
		{"bad format", func(r *Request) { r.Format = "gif" }, true},
		{"bad theme", func(r *Request) { r.Theme = "neon" }, true},
		{"bad background", func(r *Request) { r.Background = "123" }, true},
		{"nil spec", func(r *Request) { r.Spec = nil }, true},
		{"missing data", func(r *Request) { r.Spec = map[string]any{} }, true},
		{"empty data", func(r *Request) { r.Spec["data"] = []any{} }, true},
		{"data not array", func(r *Request) { r.Spec["data"] = "nope" }, true},
		{"data point not object", func(r *Request) { r.Spec["data"] = []any{1.0} }, true},
		{"series not array", func(r *Request) { r.Spec["series"] = "x" }, true},
		{"series missing key", func(r *Request) { r.Spec["series"] = []any{map[string]any{}} }, true},
		{"series bad color", func(r *Request) {
			r.Spec["series"] = []any{map[string]any{"key": "y", "color": "???"}}
		}, true},
		{"series bad opacity", func(r *Request) {
			r.Spec["series"] = []any{map[string]any{"key": "y", "opacity": 1.5}}
		}, true},
		{"series ok", func(r *Request) {
			r.Spec["series"] = []any{map[string]any{"key": "y", "color": "hsl(1,2%,3%)", "opacity": json.Number("0.5")}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Spec: sampleSpec()}
			tt.mutate(&req)
			err := req.ValidateAndSetDefaults()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAndSetDefaults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeValidation) {
				t.Errorf("error code = %s, want VALIDATION", errors.GetCode(err))
			}
		})
	}
}

func TestParse(t *testing.T) {
	body := `{"type":"bar","width":600,"height":400,"format":"raster","config":{"data":[{"x":"A","y":10}]}}`
	req, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Format != FormatPNG {
		t.Errorf("raster should normalize to png, got %q", req.Format)
	}

	point := req.Spec["data"].([]any)[0].(map[string]any)
	if _, ok := point["y"].(json.Number); !ok {
		t.Errorf("spec numbers should decode as json.Number, got %T", point["y"])
	}

	if _, err := Parse([]byte(`{"config":`)); !errors.Is(err, errors.ErrCodeValidation) {
		t.Errorf("malformed JSON should be a validation error, got %v", err)
	}
	if _, err := Parse([]byte(`{"width":"wide","config":{"data":[{}]}}`)); err == nil {
		t.Error("non-numeric width should fail")
	}
}

func TestApplyDoesNotMutate(t *testing.T) {
	req := &Request{Spec: sampleSpec()}
	if err := req.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}

	out := req.Apply(Overrides{}.WithFormat(FormatSVG).WithSize(800, 300))
	if out.Format != FormatSVG || out.Width != 800 || out.Height != 300 {
		t.Errorf("overrides not applied: %s", out)
	}
	if req.Format != FormatPNG || req.Width != DefaultWidth {
		t.Errorf("receiver mutated: %s", req)
	}

	// Partial override keeps stored values
	w := 1024
	partial := req.Apply(Overrides{Width: &w})
	if partial.Width != 1024 || partial.Height != DefaultHeight || partial.Format != FormatPNG {
		t.Errorf("partial override wrong: %s", partial)
	}

	// Deep copy: mutating the copy's spec must not leak back
	out.Spec["title"] = "changed"
	out.Spec["data"].([]any)[0].(map[string]any)["x"] = "Z"
	if _, ok := req.Spec["title"]; ok {
		t.Error("spec map shared between copies")
	}
	if req.Spec["data"].([]any)[0].(map[string]any)["x"] != "A" {
		t.Error("nested spec values shared between copies")
	}
}

func TestOverridesValidate(t *testing.T) {
	big, small, ok := 5000, 10, 300
	bad := Format("gif")
	alias := Format("document")

	tests := []struct {
		name    string
		o       Overrides
		wantErr bool
	}{
		{"zero", Overrides{}, false},
		{"size", Overrides{Width: &ok, Height: &ok}, false},
		{"alias", Overrides{Format: &alias}, false},
		{"too wide", Overrides{Width: &big}, true},
		{"too short", Overrides{Height: &small}, true},
		{"bad format", Overrides{Format: &bad}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.o.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	o := Overrides{Format: &alias}
	_ = o.Validate()
	if *o.Format != FormatPDF {
		t.Errorf("alias should normalize to pdf, got %q", *o.Format)
	}
	if !(Overrides{}).IsZero() || o.IsZero() {
		t.Error("IsZero mismatch")
	}
}

func TestFormats(t *testing.T) {
	tests := []struct {
		in          string
		want        Format
		contentType string
		class       string
	}{
		{"png", FormatPNG, "image/png", ClassRaster},
		{"raster", FormatPNG, "image/png", ClassRaster},
		{"svg", FormatSVG, "image/svg+xml", ClassVector},
		{"vector", FormatSVG, "image/svg+xml", ClassVector},
		{"pdf", FormatPDF, "application/pdf", ClassDocument},
		{"document", FormatPDF, "application/pdf", ClassDocument},
	}

	for _, tt := range tests {
		f, err := ParseFormat(tt.in)
		if err != nil {
			t.Fatalf("ParseFormat(%q) failed: %v", tt.in, err)
		}
		if f != tt.want || f.ContentType() != tt.contentType || f.Class() != tt.class {
			t.Errorf("ParseFormat(%q) = %q (%s, %s)", tt.in, f, f.ContentType(), f.Class())
		}
	}

	for _, in := range []string{"", "PNG", "jpeg"} {
		if _, err := ParseFormat(in); err == nil {
			t.Errorf("ParseFormat(%q) should fail", in)
		}
	}
	if Format("gif").ContentType() != "application/octet-stream" {
		t.Error("unknown format should map to octet-stream")
	}
}

func TestRequestJSONRoundTripKeepsSpecKey(t *testing.T) {
	req := &Request{Type: TypeLine, Spec: sampleSpec()}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"config":`) {
		t.Errorf("spec should marshal under \"config\": %s", data)
	}
}

func TestExampleRequestsParse(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "requests", "*.json"))
	if err != nil || len(paths) == 0 {
		t.Fatalf("no example requests found (%v)", err)
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := Parse(data); err != nil {
				t.Errorf("Parse: %v", err)
			}
		})
	}
}
