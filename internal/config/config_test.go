package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

var decimalEqual = cmp.Comparer(func(x, y decimal.Decimal) bool { return x.Equal(y) })

func TestLoadDefaults(t *testing.T) {
	workDir := t.TempDir()
	env := []string{"XDG_CONFIG_HOME=" + t.TempDir()}

	cfg, sources, err := Load(workDir, "", Overrides{}, env)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg, decimalEqual); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if sources != (Sources{}) {
		t.Errorf("expected no sources, got %+v", sources)
	}
}

func TestLoadPrecedence(t *testing.T) {
	workDir := t.TempDir()
	xdg := t.TempDir()
	env := []string{"XDG_CONFIG_HOME=" + xdg}

	writeFile(t, filepath.Join(xdg, "hourbook", FileName), `{
		// global defaults
		"owner": "global-owner",
		"default_hourly_rate": 80,
		"log_level": "warn",
	}`)
	writeFile(t, filepath.Join(workDir, Dir, FileName), `{
		"owner": "project-owner",
		"default_tax_percentage": "21",
		"auto_snapshot": false
	}`)
	writeFile(t, filepath.Join(workDir, "custom.json"), `{"web_port": 9100, "log_level": "debug"}`)

	port := 9200
	cfg, sources, err := Load(workDir, "custom.json", Overrides{WebPort: &port}, env)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Default()
	want.Owner = "project-owner"
	want.DefaultHourlyRate = decimal.NewFromInt(80)
	want.DefaultTaxPercentage = decimal.NewFromInt(21)
	want.AutoSnapshot = false
	want.LogLevel = "debug"
	want.WebPort = 9200
	if diff := cmp.Diff(want, cfg, decimalEqual); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	if sources.Global != filepath.Join(xdg, "hourbook", FileName) {
		t.Errorf("unexpected global source: %s", sources.Global)
	}
	if sources.Project != filepath.Join(workDir, "custom.json") {
		t.Errorf("unexpected project source: %s", sources.Project)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.SlogLevel())
	}
}

func TestLoadExplicitMissing(t *testing.T) {
	env := []string{"XDG_CONFIG_HOME=" + t.TempDir()}
	_, _, err := Load(t.TempDir(), "nope.json", Overrides{}, env)
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `{"owner": `},
		{"unknown field", `{"model": "x"}`},
		{"empty db path", `{"db_path": ""}`},
		{"empty owner", `{"owner": " "}`},
		{"negative rate", `{"default_hourly_rate": -1}`},
		{"tax above 100", `{"default_tax_percentage": 101}`},
		{"bad port", `{"web_port": 70000}`},
		{"bad level", `{"log_level": "loud"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workDir := t.TempDir()
			writeFile(t, filepath.Join(workDir, Dir, FileName), tt.content)
			env := []string{"XDG_CONFIG_HOME=" + t.TempDir()}

			_, _, err := Load(workDir, "", Overrides{}, env)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), Dir, FileName)

	cfg := Default()
	cfg.DefaultHourlyRate = decimal.RequireFromString("95.5")
	if err := Write(path, cfg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	o, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if diff := cmp.Diff(cfg, merge(Config{}, o), decimalEqual); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
