package engine

import (
	"strings"
	"testing"

	"github.com/matzehuels/chartcn/pkg/chart"
)

func request() *chart.Request {
	return &chart.Request{
		Type:   chart.TypeBar,
		Width:  600,
		Height: 400,
		Format: chart.FormatPNG,
		Theme:  chart.ThemeDefault,
		Spec: map[string]any{
			"title": "</script><script>alert(1)</script>",
			"data":  []any{map[string]any{"x": "A", "y": 10.0}},
		},
	}
}

func TestBuildHTML(t *testing.T) {
	html, err := BuildHTML(request(), []byte("window.__CHART_READY__ = true;"))
	if err != nil {
		t.Fatalf("BuildHTML: %v", err)
	}
	s := string(html)

	for _, want := range []string{
		"window.__CHART_CONFIG__ = {",
		`"type":"bar"`,
		`"width":600`,
		"width: 600px; height: 400px",
		"background: #ffffff",
		"--chart-1: 221.2 83.2% 53.3%",
		"--chart-5: 262.1 83.3% 57.8%",
		"<script>window.__CHART_READY__ = true;</script>",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("page missing %q", want)
		}
	}

	if strings.Count(s, "</script>") != 2 {
		t.Error("chart config must not be able to close the script tag")
	}
	if strings.Contains(s, `"format"`) {
		t.Error("output format is not part of the client config")
	}
}

func TestBuildHTMLBackground(t *testing.T) {
	dark := request()
	dark.Theme = chart.ThemeDark
	html, _ := BuildHTML(dark, nil)
	if !strings.Contains(string(html), "background: #0a0a0a") {
		t.Error("dark theme should default to a dark page background")
	}
	if !strings.Contains(string(html), "--chart-1: 217.2 91.2% 59.8%") {
		t.Error("dark theme palette missing")
	}

	custom := request()
	custom.Background = "rgba(0,0,0,0)"
	html, _ = BuildHTML(custom, nil)
	if !strings.Contains(string(html), "background: rgba(0,0,0,0)") {
		t.Error("explicit background should be used")
	}
}

func TestThemeCSSUnknownFallsBack(t *testing.T) {
	if ThemeCSS("neon") != ThemeCSS(chart.ThemeDefault) {
		t.Error("unknown theme should use the default palette")
	}
}
