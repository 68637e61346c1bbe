package engine

import (
	"bytes"
	"encoding/json"
	"text/template"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
)

// palette holds the CSS variables of a theme. HSL triples are written
// without hsl() so the client can compose them with alpha.
type palette struct {
	Background      string
	Foreground      string
	Muted           string
	MutedForeground string
	Border          string
	Chart           [5]string

	PageBackground string
	Text           string
	AxisText       string
	Grid           string
	Tooltip        string
}

var palettes = map[chart.Theme]palette{
	chart.ThemeDefault: {
		Background:      "0 0% 100%",
		Foreground:      "222.2 84% 4.9%",
		Muted:           "210 40% 96.1%",
		MutedForeground: "215.4 16.3% 46.9%",
		Border:          "214.3 31.8% 91.4%",
		Chart: [5]string{
			"221.2 83.2% 53.3%",
			"346.8 77.2% 49.8%",
			"142.1 76.2% 36.3%",
			"47.9 95.8% 53.1%",
			"262.1 83.3% 57.8%",
		},
		PageBackground: "#ffffff",
		Text:           "#0a0a0a",
		AxisText:       "hsl(215.4, 16.3%, 46.9%)",
		Grid:           "hsl(214.3, 31.8%, 91.4%)",
		Tooltip:        "#ffffff",
	},
	chart.ThemeDark: {
		Background:      "222.2 84% 4.9%",
		Foreground:      "210 40% 98%",
		Muted:           "217.2 32.6% 17.5%",
		MutedForeground: "215 20.2% 65.1%",
		Border:          "217.2 32.6% 17.5%",
		Chart: [5]string{
			"217.2 91.2% 59.8%",
			"349.7 89.2% 60.2%",
			"142.1 70.6% 45.3%",
			"47.9 95.8% 53.1%",
			"263.4 70% 50.4%",
		},
		PageBackground: "#0a0a0a",
		Text:           "#fafafa",
		AxisText:       "hsl(215, 20.2%, 65.1%)",
		Grid:           "hsl(217.2, 32.6%, 17.5%)",
		Tooltip:        "#1a1a2e",
	},
}

var themeTemplate = template.Must(template.New("theme").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`
:root {
  --background: {{.Background}};
  --foreground: {{.Foreground}};
  --card: {{.Background}};
  --card-foreground: {{.Foreground}};
  --muted: {{.Muted}};
  --muted-foreground: {{.MutedForeground}};
  --border: {{.Border}};
  --radius: 0.5rem;
{{- range $i, $c := .Chart}}
  --chart-{{inc $i}}: {{$c}};
{{- end}}
}
* { margin: 0; padding: 0; box-sizing: border-box; }
body {
  font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
  background: {{.PageBackground}};
  color: {{.Text}};
}
.chart-container { display: flex; flex-direction: column; align-items: center; padding: 16px; }
.chart-header { text-align: center; margin-bottom: 8px; width: 100%; }
.chart-title { font-size: 16px; font-weight: 600; line-height: 1.4; color: {{.Text}}; }
.chart-description { font-size: 12px; color: {{.AxisText}}; margin-top: 2px; }
.recharts-cartesian-grid line { stroke: {{.Grid}}; }
.recharts-text { fill: {{.AxisText}}; font-size: 12px; }
.recharts-legend-item-text { color: {{.Text}} !important; font-size: 12px; }
.recharts-default-tooltip {
  background: {{.Tooltip}} !important;
  border: 1px solid {{.Grid}} !important;
  border-radius: 6px !important;
  box-shadow: 0 1px 3px rgba(0,0,0,0.1) !important;
}
`))

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>{{.ThemeCSS}}</style>
<style>
  html, body { margin: 0; padding: 0; width: {{.Width}}px; height: {{.Height}}px; overflow: hidden; background: {{.Background}}; }
  #root { width: {{.Width}}px; height: {{.Height}}px; }
</style>
</head>
<body>
<div id="root"></div>
<script>window.__CHART_CONFIG__ = {{.Config}};</script>
<script>{{.Bundle}}</script>
</body>
</html>
`))

// ThemeCSS returns the stylesheet of a theme. Unknown themes use the default.
func ThemeCSS(theme chart.Theme) string {
	p, ok := palettes[theme]
	if !ok {
		p = palettes[chart.ThemeDefault]
	}
	var buf bytes.Buffer
	if err := themeTemplate.Execute(&buf, p); err != nil {
		// The template and palettes are static.
		panic(err)
	}
	return buf.String()
}

// clientConfig is what the bundle reads from window.__CHART_CONFIG__.
type clientConfig struct {
	Type   chart.Type     `json:"type"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Theme  chart.Theme    `json:"theme"`
	Config map[string]any `json:"config"`
}

// BuildHTML returns the document that renders req with the given client
// bundle. The request must be validated: its background is interpolated
// into CSS.
func BuildHTML(req *chart.Request, bundle []byte) ([]byte, error) {
	cfg, err := json.Marshal(clientConfig{
		Type:   req.Type,
		Width:  req.Width,
		Height: req.Height,
		Theme:  req.Theme,
		Config: req.Spec,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEncoding, err, "encode chart config")
	}

	bg := req.Background
	if bg == "" {
		bg = palettes[chart.ThemeDefault].PageBackground
		if req.Theme == chart.ThemeDark {
			bg = palettes[chart.ThemeDark].PageBackground
		}
	}

	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, map[string]any{
		"ThemeCSS":   ThemeCSS(req.Theme),
		"Width":      req.Width,
		"Height":     req.Height,
		"Background": bg,
		// json.Marshal escapes <, > and &, so the config cannot close the script tag.
		"Config": string(cfg),
		"Bundle": string(bundle),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "build page")
	}
	return buf.Bytes(), nil
}
