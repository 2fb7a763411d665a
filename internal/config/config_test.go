package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Backend != "auto" || cfg.Probe.Mode != "auto" || cfg.Audio.Mode != "delegated" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "videdit.yaml")
	data := `
ffmpeg:
  threads: 4
  font_file: /usr/share/fonts/DejaVuSans.ttf
engine:
  backend: frameloop
  strict_unsupported: true
  timeout: 90s
transcribe:
  provider: openai
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VIDEDIT_BACKEND", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FFmpeg.Threads != 4 || cfg.FFmpeg.BinaryPath != "ffmpeg" {
		t.Errorf("ffmpeg config %+v", cfg.FFmpeg)
	}
	if cfg.Engine.Backend != "frameloop" || !cfg.Engine.StrictUnsupported || cfg.Engine.Timeout != 90*time.Second {
		t.Errorf("engine config %+v", cfg.Engine)
	}
	if cfg.Transcribe.Provider != "openai" || cfg.Transcribe.APIKey != "sk-test" || cfg.Transcribe.Model != "whisper-1" {
		t.Errorf("transcribe config %+v", cfg.Transcribe)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "videdit.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  backend: gpu\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("VIDEDIT_FFMPEG", "/opt/ffmpeg/bin/ffmpeg")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FFmpeg.BinaryPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("binary path = %s", cfg.FFmpeg.BinaryPath)
	}
}

func TestContext(t *testing.T) {
	cfg := defaultConfig()
	cfg.TempDir = "/scratch"
	ctx := WithConfig(context.Background(), cfg)
	if FromContext(ctx).TempDir != "/scratch" {
		t.Error("config not carried by context")
	}
	if FromContext(context.Background()) == nil {
		t.Error("missing config should fall back to defaults")
	}
}
