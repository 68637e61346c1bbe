// Package storagetest provides a conformance suite for storage.Store
// implementations.
package storagetest

import (
	"bytes"
	"context"
	"testing"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/storage"
)

// Request returns a small valid request for store tests.
func Request() *chart.Request {
	return &chart.Request{
		Type:   chart.TypeBar,
		Width:  600,
		Height: 400,
		Format: chart.FormatPNG,
		Theme:  chart.ThemeDefault,
		Spec: map[string]any{
			"data": []any{map[string]any{"x": "A", "y": 10.0}},
		},
	}
}

// Run exercises s against the storage.Store contract.
func Run(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("ConfigRoundTrip", func(t *testing.T) {
		req := Request()
		req.Background = "#fff"
		if err := s.SaveConfig(ctx, "cfgRoundTrip01", req); err != nil {
			t.Fatalf("SaveConfig: %v", err)
		}
		got, ok, err := s.GetConfig(ctx, "cfgRoundTrip01")
		if err != nil || !ok {
			t.Fatalf("GetConfig = %v, %v", ok, err)
		}
		if got.Type != req.Type || got.Width != req.Width || got.Height != req.Height ||
			got.Format != req.Format || got.Background != "#fff" {
			t.Errorf("config mismatch: got %s want %s", got, req)
		}
		data, _ := got.Spec["data"].([]any)
		if len(data) != 1 {
			t.Errorf("spec data not preserved: %v", got.Spec)
		}
	})

	t.Run("ConfigOverwrite", func(t *testing.T) {
		req := Request()
		_ = s.SaveConfig(ctx, "cfgOverwrite01", req)
		req.Width = 900
		if err := s.SaveConfig(ctx, "cfgOverwrite01", req); err != nil {
			t.Fatal(err)
		}
		got, _, _ := s.GetConfig(ctx, "cfgOverwrite01")
		if got == nil || got.Width != 900 {
			t.Errorf("overwrite not visible: %v", got)
		}
	})

	t.Run("ConfigMissing", func(t *testing.T) {
		got, ok, err := s.GetConfig(ctx, "doesNotExist00")
		if err != nil || ok || got != nil {
			t.Errorf("GetConfig(missing) = %v, %v, %v", got, ok, err)
		}
	})

	t.Run("ImageRoundTrip", func(t *testing.T) {
		data := []byte{0x89, 'P', 'N', 'G', 0, 1, 2}
		if err := s.SaveImage(ctx, "fpRoundTrip", storage.ArtifactKey, data, "image/png"); err != nil {
			t.Fatalf("SaveImage: %v", err)
		}
		img, ok, err := s.GetImage(ctx, "fpRoundTrip", storage.ArtifactKey)
		if err != nil || !ok {
			t.Fatalf("GetImage = %v, %v", ok, err)
		}
		if !bytes.Equal(img.Data, data) || img.ContentType != "image/png" {
			t.Errorf("image mismatch: %+v", img)
		}
	})

	t.Run("ImageKeysAreIndependent", func(t *testing.T) {
		_ = s.SaveImage(ctx, "fpKeys", "a", []byte("A"), "text/plain")
		_ = s.SaveImage(ctx, "fpKeys", "b", []byte("B"), "text/plain")
		a, _, _ := s.GetImage(ctx, "fpKeys", "a")
		b, _, _ := s.GetImage(ctx, "fpKeys", "b")
		if a == nil || b == nil || string(a.Data) != "A" || string(b.Data) != "B" {
			t.Errorf("keys overwrote each other: %v %v", a, b)
		}
	})

	t.Run("ImageMissing", func(t *testing.T) {
		img, ok, err := s.GetImage(ctx, "fpMissing", storage.ArtifactKey)
		if err != nil || ok || img != nil {
			t.Errorf("GetImage(missing) = %v, %v, %v", img, ok, err)
		}
	})

	t.Run("InvalidKeys", func(t *testing.T) {
		for _, id := range []string{"", "../x", "a/b", "with space"} {
			if err := s.SaveConfig(ctx, id, Request()); !errors.Is(err, errors.ErrCodeValidation) {
				t.Errorf("SaveConfig(%q) error = %v, want VALIDATION", id, err)
			}
		}
		for _, key := range []string{"", "..", ".hidden", "a/b", "a\\b"} {
			if err := s.SaveImage(ctx, "fp", key, nil, ""); !errors.Is(err, errors.ErrCodeValidation) {
				t.Errorf("SaveImage(key=%q) error = %v, want VALIDATION", key, err)
			}
		}
	})
}
