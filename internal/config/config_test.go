package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formlogic/pkg/httpcond"
	"github.com/goliatone/go-formlogic/pkg/submission"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Config{
		Exclusion: submission.Exclusion{
			ExcludeValueIfHidden:   submission.Bool(true),
			ExcludeValueIfDisabled: submission.Bool(true),
			ExcludeValueIfReadonly: submission.Bool(true),
		},
		HTTPTimeout:  httpcond.DefaultTimeout,
		HTTPDebounce: httpcond.DefaultDebounce,
		LogLevel:     slog.LevelInfo,
		LogFormat:    FormatText,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formlogic.yaml")
	body := "exclusion:\n  readonly: false\nhttp:\n  timeout: 2s\nlog:\n  format: json\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FORMLOGIC_LOG_LEVEL", "debug")
	t.Setenv("FORMLOGIC_HTTP_DEBOUNCE", "50ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg.Exclusion.ExcludeValueIfReadonly {
		t.Fatalf("expected readonly exclusion to be disabled")
	}
	if cfg.HTTPTimeout != 2*time.Second || cfg.HTTPDebounce != 50*time.Millisecond {
		t.Fatalf("unexpected http settings: %v %v", cfg.HTTPTimeout, cfg.HTTPDebounce)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != FormatJSON {
		t.Fatalf("unexpected log settings: %v %q", cfg.LogLevel, cfg.LogFormat)
	}

	var buf bytes.Buffer
	cfg.Logger(&buf).Debug("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected json log line, got %q", buf.String())
	}
	if len(cfg.FormOptions(cfg.Logger(&buf))) != 5 {
		t.Fatalf("expected debounce option to be included")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := map[string]string{
		"format":  "log:\n  format: xml\n",
		"level":   "log:\n  level: loud\n",
		"timeout": "http:\n  timeout: 0s\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
