package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/chartcn/pkg/cache"
	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/configstore"
	"github.com/matzehuels/chartcn/pkg/engine"
	"github.com/matzehuels/chartcn/pkg/engine/enginetest"
	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/pipeline"
	"github.com/matzehuels/chartcn/pkg/pool"
)

const barBody = `{"type":"bar","width":600,"height":400,"format":"png","config":{"data":[{"x":"A","y":10}]}}`

type testServer struct {
	*httptest.Server
	browser *enginetest.Browser
	runner  *pipeline.Runner
}

func newTestServer(t *testing.T, max int, timeout time.Duration) *testServer {
	t.Helper()
	b := enginetest.NewBrowser()
	pages, err := pool.New[engine.Page](context.Background(), engine.NewPageFactory(b), pool.Config{Max: max})
	if err != nil {
		t.Fatal(err)
	}
	artifacts, err := cache.NewArtifactCache(cache.Options{})
	if err != nil {
		t.Fatal(err)
	}
	configs, err := configstore.New(cache.Options{})
	if err != nil {
		t.Fatal(err)
	}
	runner, err := pipeline.NewRunner(pipeline.Options{
		Artifacts: artifacts,
		Configs:   configs,
		Pool:      pages,
		Timeout:   timeout,
	})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(Options{Runner: runner, Renderer: "fake"})
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		_ = runner.Close(context.Background())
	})
	return &testServer{Server: ts, browser: b, runner: runner}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func decodeError(t *testing.T, data []byte) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("error body %q: %v", data, err)
	}
	return body
}

func TestRenderMissThenHit(t *testing.T) {
	ts := newTestServer(t, 2, time.Second)

	first, firstData := ts.do(t, http.MethodPost, "/chart", barBody)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", first.StatusCode, firstData)
	}
	if got := first.Header.Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}
	if got := first.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := first.Header.Get("Cache-Control"); got != CacheControl {
		t.Errorf("Cache-Control = %q", got)
	}
	etag := first.Header.Get("ETag")
	if len(etag) != 64 {
		t.Errorf("ETag = %q, want a sha256 fingerprint", etag)
	}

	second, secondData := ts.do(t, http.MethodPost, "/chart", barBody)
	if second.StatusCode != http.StatusOK || second.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("second = %d %q", second.StatusCode, second.Header.Get("X-Cache"))
	}
	if second.Header.Get("ETag") != etag {
		t.Error("ETag changed between identical requests")
	}
	if !bytes.Equal(firstData, secondData) {
		t.Error("cache hit returned different bytes")
	}
	if ts.browser.Renders() != 1 {
		t.Errorf("backend renders = %d, want 1", ts.browser.Renders())
	}
}

func TestRenderFromQuery(t *testing.T) {
	ts := newTestServer(t, 2, time.Second)

	q := url.Values{}
	q.Set("type", "bar")
	q.Set("data", `{"data":[{"x":"A","y":10}]}`)
	resp, data := ts.do(t, http.MethodGet, "/chart?"+q.Encode(), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}

	// Defaults make the query form equal to the full body.
	post, _ := ts.do(t, http.MethodPost, "/chart", barBody)
	if post.Header.Get("X-Cache") != "HIT" {
		t.Error("query and body forms of the same chart should share the artifact")
	}

	// A bare array is shorthand for the data field.
	q.Set("data", `[{"x":"A","y":10}]`)
	resp, _ = ts.do(t, http.MethodGet, "/chart?"+q.Encode(), "")
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Error("array shorthand should resolve to the same chart")
	}
}

func TestSaveAndRenderByID(t *testing.T) {
	ts := newTestServer(t, 2, time.Second)

	resp, data := ts.do(t, http.MethodPost, "/chart/save", barBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
	var saved SaveResponse
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if len(saved.ID) != configstore.IDLength || saved.URL != "/chart/render/"+saved.ID {
		t.Errorf("saved = %+v", saved)
	}
	if _, err := time.Parse(time.RFC3339, saved.ExpiresAt); err != nil {
		t.Errorf("expiresAt = %q, memory-only saves should expire", saved.ExpiresAt)
	}
	if ts.browser.Renders() != 0 {
		t.Error("save must not render")
	}

	resp, pngData := ts.do(t, http.MethodGet, saved.URL, "")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("render = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	direct, directData := ts.do(t, http.MethodPost, "/chart", barBody)
	if direct.Header.Get("X-Cache") != "HIT" || !bytes.Equal(directData, pngData) {
		t.Error("rendering the saved config should equal rendering it directly")
	}

	resp, _ = ts.do(t, http.MethodGet, saved.URL+"?format=svg&width=800", "")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
		t.Errorf("override render = %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("ETag") == direct.Header.Get("ETag") {
		t.Error("overrides should change the fingerprint")
	}
}

func TestErrorResponses(t *testing.T) {
	ts := newTestServer(t, 2, time.Second)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   errors.Code
	}{
		{"malformed body", http.MethodPost, "/chart", `{"type":`, 400, errors.ErrCodeValidation},
		{"width out of range", http.MethodPost, "/chart", `{"width":10,"config":{"data":[{"x":1}]}}`, 400, errors.ErrCodeValidation},
		{"empty data", http.MethodPost, "/chart", `{"config":{"data":[]}}`, 400, errors.ErrCodeValidation},
		{"injected background", http.MethodPost, "/chart", `{"background":"red;}</style>","config":{"data":[{"x":1}]}}`, 400, errors.ErrCodeValidation},
		{"missing data param", http.MethodGet, "/chart?type=bar", "", 400, errors.ErrCodeValidation},
		{"invalid data param", http.MethodGet, "/chart?data=%7B", "", 400, errors.ErrCodeValidation},
		{"non-numeric width", http.MethodGet, "/chart?width=wide&data=%5B%7B%7D%5D", "", 400, errors.ErrCodeValidation},
		{"unknown id", http.MethodGet, "/chart/render/AAAAAAAAAAAAAA", "", 404, errors.ErrCodeNotFound},
		{"bad override", http.MethodGet, "/chart/render/AAAAAAAAAAAAAA?format=gif", "", 400, errors.ErrCodeValidation},
		{"unknown route", http.MethodGet, "/nope", "", 404, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := ts.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.status, data)
			}
			body := decodeError(t, data)
			if body.Code != string(tt.code) || body.Message == "" || body.Error == "" {
				t.Errorf("body = %+v", body)
			}
		})
	}
	if ts.browser.Renders() != 0 {
		t.Error("invalid requests must not reach the backend")
	}
}

func TestEngineFailures(t *testing.T) {
	ts := newTestServer(t, 2, 50*time.Millisecond)

	ts.browser.OnRender = enginetest.Hang()
	resp, data := ts.do(t, http.MethodPost, "/chart", barBody)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("timeout status = %d, want 504", resp.StatusCode)
	}
	if body := decodeError(t, data); body.Code != string(errors.ErrCodeEngineTimeout) {
		t.Errorf("code = %q", body.Code)
	}

	ts.browser.OnRender = enginetest.Crash()
	resp, data = ts.do(t, http.MethodPost, "/chart", barBody)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("crash status = %d, want 500", resp.StatusCode)
	}
	if body := decodeError(t, data); strings.Contains(body.Message, "target crashed") {
		t.Errorf("backend details leaked: %q", body.Message)
	}
}

func TestPoolTimeout(t *testing.T) {
	ts := newTestServer(t, 1, 50*time.Millisecond)

	// Hold the only page.
	held, err := ts.runner.Pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	resp, data := ts.do(t, http.MethodPost, "/chart", barBody)
	if resp.StatusCode != http.StatusServiceUnavailable || resp.Header.Get("Retry-After") != "1" {
		t.Errorf("status = %d, Retry-After = %q", resp.StatusCode, resp.Header.Get("Retry-After"))
	}
	if body := decodeError(t, data); body.Code != string(errors.ErrCodePoolTimeout) {
		t.Errorf("code = %q", body.Code)
	}
	if ts.browser.Renders() != 0 {
		t.Error("a timed out acquire must not render")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	ts := newTestServer(t, 1, time.Second)
	ts.browser.OnRender = func(context.Context, *chart.Request) (*engine.Output, error) {
		panic("boom")
	}

	resp, data := ts.do(t, http.MethodPost, "/chart", barBody)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
	if stats := ts.runner.Pool.Stats(); stats.Busy != 0 || stats.Destroyed != 1 {
		t.Errorf("pool = %+v, panicking page should be destroyed", stats)
	}

	ts.browser.OnRender = nil
	if resp, _ := ts.do(t, http.MethodPost, "/chart", barBody); resp.StatusCode != http.StatusOK {
		t.Errorf("server should keep serving, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 3, time.Second)

	resp, data := ts.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status   string     `json:"status"`
		Renderer string     `json:"renderer"`
		Pool     pool.Stats `json:"pool"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Renderer != "fake" || body.Pool.Max != 3 {
		t.Errorf("health = %s", data)
	}
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, 1, time.Second)

	resp, _ := ts.do(t, http.MethodGet, "/health", "")
	generated := resp.Header.Get(HeaderRequestID)
	if _, err := uuid.Parse(generated); err != nil {
		t.Errorf("generated id %q is not a uuid", generated)
	}

	id := uuid.NewString()
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set(HeaderRequestID, id)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get(HeaderRequestID) != id {
		t.Error("incoming request id should be echoed")
	}

	req.Header.Set(HeaderRequestID, "<script>")
	resp, err = ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get(HeaderRequestID) == "<script>" {
		t.Error("malformed request ids should be replaced")
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, 1, time.Second)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/chart", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight = %d %q", resp.StatusCode, resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[errors.Code]int{
		errors.ErrCodeValidation:        400,
		errors.ErrCodeUnsupportedFormat: 400,
		errors.ErrCodeNotFound:          404,
		errors.ErrCodePoolTimeout:       503,
		errors.ErrCodePoolClosed:        503,
		errors.ErrCodeEngineTimeout:     504,
		errors.ErrCodeEngineCrash:       500,
		errors.ErrCodeStore:             500,
		"":                              500,
	}
	for code, want := range tests {
		if got := StatusFor(code); got != want {
			t.Errorf("StatusFor(%q) = %d, want %d", code, got, want)
		}
	}
}
