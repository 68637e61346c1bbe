package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/chartcn/pkg/storage"
	"github.com/matzehuels/chartcn/pkg/storage/storagetest"
)

func TestConformance(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	storagetest.Run(t, s)
}

func TestLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.SaveConfig(ctx, "layoutTest0001", storagetest.Request()); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveImage(ctx, "fp01", storage.ArtifactKey, []byte("<svg/>"), "image/svg+xml"); err != nil {
		t.Fatal(err)
	}

	cfg := filepath.Join(dir, filepath.FromSlash(storage.ConfigPath("layoutTest0001")))
	if _, err := os.Stat(cfg); err != nil {
		t.Errorf("config not at %s: %v", cfg, err)
	}
	img := filepath.Join(dir, filepath.FromSlash(storage.ImagePath("fp01", storage.ArtifactKey)))
	if data, err := os.ReadFile(img); err != nil || string(data) != "<svg/>" {
		t.Errorf("image not at %s: %v", img, err)
	}
	if _, err := os.Stat(img + metaSuffix); err != nil {
		t.Errorf("missing meta sidecar: %v", err)
	}

	// No temp files left behind
	entries, _ := os.ReadDir(filepath.Dir(img))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("unexpected file %s", e.Name())
		}
	}
}

func TestMissingMetaKeepsData(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	ctx := context.Background()

	_ = s.SaveImage(ctx, "fp02", "k", []byte("x"), "image/png")
	img := filepath.Join(dir, filepath.FromSlash(storage.ImagePath("fp02", "k")))
	if err := os.Remove(img + metaSuffix); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.GetImage(ctx, "fp02", "k")
	if err != nil || !ok || string(got.Data) != "x" || got.ContentType != "" {
		t.Errorf("GetImage = %+v, %v, %v", got, ok, err)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)
	ctx := context.Background()

	_ = s.SaveConfig(ctx, "clearTest00001", storagetest.Request())
	_ = s.SaveImage(ctx, "fp03", "k", []byte("x"), "image/png")

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.GetConfig(ctx, "clearTest00001"); ok {
		t.Error("config survived Clear")
	}
	if _, ok, _ := s.GetImage(ctx, "fp03", "k"); ok {
		t.Error("image survived Clear")
	}
	if s.Dir() != dir {
		t.Errorf("Dir() = %q", s.Dir())
	}
}

func TestCorruptConfigIsError(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir)

	p := filepath.Join(dir, filepath.FromSlash(storage.ConfigPath("corrupt0000001")))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.GetConfig(context.Background(), "corrupt0000001"); err == nil {
		t.Error("corrupt config should surface an error")
	}
}
