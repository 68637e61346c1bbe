package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/fingerprint"
	"github.com/matzehuels/chartcn/pkg/storage"
	"github.com/matzehuels/chartcn/pkg/storage/file"
)

const barRequest = `{
  "type": "bar",
  "format": "svg",
  "width": 400,
  "height": 300,
  "config": {"data": [{"x": "A", "y": 10}, {"x": "B", "y": 20}]}
}`

// isolate points every store lookup at a fresh directory and returns it.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(envConfig, "")
	t.Setenv("CHARTCN_STORAGE", "none")
	t.Setenv("CHARTCN_STORAGE_DIR", dir)
	t.Setenv("CHARTCN_BUNDLE_PATH", "")
	t.Setenv("CHARTCN_CHROMIUM_REMOTE_URL", "")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := New(&bytes.Buffer{}, LogInfo)
	root := c.RootCommand()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeRequest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(&bytes.Buffer{}, LogInfo).RootCommand()

	want := []string{"serve", "render", "save", "store", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "version:") || !strings.Contains(out, "commit:") {
		t.Errorf("version output = %q", out)
	}
}

func TestStorePath(t *testing.T) {
	dir := isolate(t)

	out, err := runCLI(t, "store", "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != dir {
		t.Errorf("store path = %q, want %q", out, dir)
	}
}

func TestSaveWritesToFileStore(t *testing.T) {
	dir := isolate(t)

	out, err := runCLI(t, "save", writeRequest(t, barRequest))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.Contains(out, "Saved bar chart") || !strings.Contains(out, "render --id ") {
		t.Errorf("save output = %q", out)
	}

	configs := filepath.Join(dir, storage.KindConfig)
	n, err := countObjects(configs)
	if err != nil || n != 1 {
		t.Fatalf("stored configs = %d (%v), want 1", n, err)
	}

	out, err = runCLI(t, "store", "clear")
	if err != nil {
		t.Fatalf("store clear: %v", err)
	}
	if !strings.Contains(out, "Cleared") {
		t.Errorf("store clear output = %q", out)
	}
	if n, _ := countObjects(dir); n != 0 {
		t.Errorf("objects after clear = %d", n)
	}
}

func TestSaveRejectsInvalidRequest(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "save", writeRequest(t, `{"type": "pie3d", "config": {"data": [{"x": "A", "y": 1}]}}`))
	if !errors.Is(err, errors.ErrCodeValidation) {
		t.Errorf("save invalid = %v, want VALIDATION", err)
	}
}

func TestRenderServesStoredArtifactWithoutBrowser(t *testing.T) {
	dir := isolate(t)

	req, err := chart.Parse([]byte(barRequest))
	if err != nil {
		t.Fatal(err)
	}
	fp, err := fingerprint.Of(req)
	if err != nil {
		t.Fatal(err)
	}
	s, err := file.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`)
	if err := s.SaveImage(context.Background(), fp, storage.ArtifactKey, svg, "image/svg+xml"); err != nil {
		t.Fatal(err)
	}

	// No client bundle is configured: starting Chromium would fail.
	output := filepath.Join(t.TempDir(), "out.svg")
	out, err := runCLI(t, "render", writeRequest(t, barRequest), "-o", output)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, output) || !strings.Contains(out, "cached") {
		t.Errorf("render output = %q, want path and cache status", out)
	}
	got, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, svg) {
		t.Errorf("output = %q, want stored artifact", got)
	}
}

func TestRenderToStdout(t *testing.T) {
	dir := isolate(t)

	req, _ := chart.Parse([]byte(barRequest))
	fp, _ := fingerprint.Of(req)
	s, _ := file.New(dir)
	if err := s.SaveImage(context.Background(), fp, storage.ArtifactKey, []byte("<svg/>"), "image/svg+xml"); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "render", writeRequest(t, barRequest), "-o", "-")
	if err != nil {
		t.Fatal(err)
	}
	if out != "<svg/>" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRenderErrors(t *testing.T) {
	isolate(t)
	path := writeRequest(t, barRequest)

	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"no input", []string{"render"}, errors.ErrCodeValidation},
		{"file and id", []string{"render", path, "--id", "abc"}, errors.ErrCodeValidation},
		{"bad format", []string{"render", path, "-f", "gif"}, errors.ErrCodeValidation},
		{"bad width", []string{"render", path, "--width", "0"}, errors.ErrCodeValidation},
		{"unknown id", []string{"render", "--id", "abcdefghijklmn"}, errors.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "store", "path")
	if err == nil {
		t.Error("a missing config file should fail")
	}
}

func TestInvalidLogFormat(t *testing.T) {
	isolate(t)

	if _, err := runCLI(t, "--log-format", "xml", "store", "path"); err == nil {
		t.Error("an invalid log format should fail")
	}
}
