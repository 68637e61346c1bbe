package storage

import (
	"errors"
	"regexp"
	"testing"

	cerrors "github.com/matzehuels/chartcn/pkg/errors"
)

func TestPrefix(t *testing.T) {
	p := Prefix("V1StGXR8Z5jdHi")
	if !regexp.MustCompile(`^[0-9a-f]{2}$`).MatchString(p) {
		t.Fatalf("Prefix() = %q, want two hex chars", p)
	}
	if p != Prefix("V1StGXR8Z5jdHi") {
		t.Error("Prefix should be deterministic")
	}
}

func TestPaths(t *testing.T) {
	id := "abc"
	p := Prefix(id)

	if got, want := ConfigPath(id), "configs/"+p+"/abc/config.json"; got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
	if got, want := ImagePath(id, "artifact"), "images/"+p+"/abc/artifact"; got != want {
		t.Errorf("ImagePath() = %q, want %q", got, want)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "op", "k") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	cause := errors.New("boom")
	err := Wrap(cause, "get image", "abc")
	if !cerrors.Is(err, cerrors.ErrCodeStore) {
		t.Errorf("Wrap should produce a STORE error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("Wrap should keep the cause")
	}
}

func TestCheckImage(t *testing.T) {
	if err := CheckImage("abc", "artifact"); err != nil {
		t.Errorf("valid image key rejected: %v", err)
	}
	if err := CheckImage("abc", "../x"); err == nil {
		t.Error("traversal key accepted")
	}
	if err := CheckImage("a.b", "artifact"); err == nil {
		t.Error("invalid id accepted")
	}
}
