//go:build integration

package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/matzehuels/chartcn/pkg/chart"
)

func TestRoundTrip_Integration(t *testing.T) {
	uri := os.Getenv("CHARTCN_MONGO_URI")
	if uri == "" {
		t.Skip("CHARTCN_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, Config{URI: uri, Database: "chartcn_test"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	req := &chart.Request{Type: chart.TypePie, Width: 300, Height: 300, Format: chart.FormatPNG,
		Theme: chart.ThemeDefault, Spec: map[string]any{"data": []any{map[string]any{"v": 1.0}}}}
	if err := s.SaveConfig(ctx, "mongoRoundTrip", req); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	// Upsert replaces.
	req.Width = 320
	if err := s.SaveConfig(ctx, "mongoRoundTrip", req); err != nil {
		t.Fatalf("SaveConfig() error: %v", err)
	}
	got, ok, err := s.GetConfig(ctx, "mongoRoundTrip")
	if err != nil || !ok || got.Width != 320 {
		t.Fatalf("GetConfig() = %v, %v, %v", got, ok, err)
	}

	if err := s.SaveImage(ctx, "fp", "artifact", []byte{1, 2, 3}, "image/png"); err != nil {
		t.Fatalf("SaveImage() error: %v", err)
	}
	img, ok, err := s.GetImage(ctx, "fp", "artifact")
	if err != nil || !ok || len(img.Data) != 3 || img.ContentType != "image/png" {
		t.Fatalf("GetImage() = %+v, %v, %v", img, ok, err)
	}

	if _, ok, err := s.GetImage(ctx, "fp", "missing"); ok || err != nil {
		t.Errorf("missing image: ok=%v err=%v", ok, err)
	}
}
