package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/pipeline"
)

// CacheControl is sent with every artifact.
const CacheControl = "public, max-age=3600"

// SaveResponse is returned by POST /chart/save.
type SaveResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`

	// ExpiresAt is set only when no durable tier keeps the config.
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptime"`
	Renderer string  `json:"renderer"`
	pipeline.Health
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.started).Seconds(),
		Renderer: s.renderer,
		Health:   s.runner.Health(),
	})
}

// handleRender renders the request in the body.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.render(w, r, req)
}

// handleRenderQuery renders a request built from query parameters. The
// data parameter carries the chart config as JSON.
func (s *Server) handleRenderQuery(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.render(w, r, req)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, req *chart.Request) {
	ctx := r.Context()
	resolved, err := s.runner.Resolve(ctx, pipeline.Input{Request: req}, chart.Overrides{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.runner.Render(ctx, resolved)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArtifact(w, res)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.runner.Save(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := SaveResponse{
		ID:  saved.ID,
		URL: s.baseURL + "/chart/render/" + saved.ID,
	}
	if !s.runner.Configs.Persistent() {
		resp.ExpiresAt = saved.ExpiresAt(s.runner.Configs.TTL()).Format(time.RFC3339)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleRenderByID(w http.ResponseWriter, r *http.Request) {
	o, err := overridesFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.runner.RenderByID(r.Context(), chi.URLParam(r, "id"), o)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeArtifact(w, res)
}

func writeArtifact(w http.ResponseWriter, res *pipeline.Result) {
	h := w.Header()
	h.Set("Content-Type", res.Artifact.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(res.Artifact.Data)))
	h.Set("ETag", res.Artifact.Fingerprint)
	h.Set("Cache-Control", CacheControl)
	if res.CacheHit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Artifact.Data)
}

// =============================================================================
// Request decoding
// =============================================================================

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (*chart.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	return chart.Decode(r.Body)
}

func requestFromQuery(r *http.Request) (*chart.Request, error) {
	q := r.URL.Query()

	raw := q.Get("data")
	if raw == "" {
		return nil, errors.New(errors.ErrCodeValidation, "data is required")
	}
	spec, err := decodeSpec(raw)
	if err != nil {
		return nil, err
	}

	req := &chart.Request{
		Type:       chart.Type(q.Get("type")),
		Format:     chart.Format(q.Get("format")),
		Theme:      chart.Theme(q.Get("theme")),
		Background: q.Get("background"),
		Spec:       spec,
	}
	if req.Width, err = intParam(q.Get("width"), "width"); err != nil {
		return nil, err
	}
	if req.Height, err = intParam(q.Get("height"), "height"); err != nil {
		return nil, err
	}
	return req, nil
}

// decodeSpec accepts a chart config object, or a bare data array as a
// shorthand for {"data": [...]}.
func decodeSpec(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "data must be valid JSON")
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		return map[string]any{"data": t}, nil
	}
	return nil, errors.New(errors.ErrCodeValidation, "data must be a JSON object or array")
}

func overridesFromQuery(r *http.Request) (chart.Overrides, error) {
	q := r.URL.Query()
	var o chart.Overrides
	if f := q.Get("format"); f != "" {
		o = o.WithFormat(chart.Format(f))
	}
	for _, p := range []struct {
		name string
		dst  **int
	}{{"width", &o.Width}, {"height", &o.Height}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := intParam(v, p.name)
		if err != nil {
			return o, err
		}
		*p.dst = &n
	}
	return o, nil
}

// intParam parses an optional integer; empty means zero (use the default).
func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(errors.ErrCodeValidation, "%s must be an integer, got %q", name, v)
	}
	return n, nil
}
