package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/renderer"
	"github.com/ivlev/videdit/internal/settings"
)

func editCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addEditFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatal(err)
	}
	return cmd
}

func TestEditSettingsOverrides(t *testing.T) {
	cmd := editCommand(t,
		"--trim-start", "10", "--trim-end", "40",
		"--caption", "Hello", "--position", "TOP", "--background", "none",
		"--mute", "--format", ".mkv", "--fps", "60", "--sidecar",
	)
	s, err := editSettings(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if s.Video.TrimStart != 10 || s.Video.TrimEnd != 40 {
		t.Errorf("trim = %v..%v", s.Video.TrimStart, s.Video.TrimEnd)
	}
	if s.Text.CaptionText != "Hello" || s.Text.Position != settings.PositionTop || s.Text.Background != "" {
		t.Errorf("text = %+v", s.Text)
	}
	if !s.Audio.RemoveAudio || s.Export.Format != settings.FormatMKV || s.Export.FrameRate != 60 || s.Export.EmbedCaptions {
		t.Errorf("audio/export = %+v %+v", s.Audio, s.Export)
	}
	// Untouched flags keep the defaults.
	if s.Video.Scale != 1 || s.Text.Color != "#ffffff" || s.Export.Quality != settings.Quality1080p {
		t.Errorf("defaults overwritten: %+v", s)
	}
}

func TestEditSettingsDocument(t *testing.T) {
	doc := settings.Default()
	doc.Video.Rotation = 90
	doc.Audio.Volume = 0.5
	path := filepath.Join(t.TempDir(), "edit.yaml")
	if err := settings.Save(doc, path); err != nil {
		t.Fatal(err)
	}

	s, err := editSettings(editCommand(t, "--settings", path, "--volume", "2"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Video.Rotation != 90 || s.Audio.Volume != 2 {
		t.Errorf("got rotation %v volume %v", s.Video.Rotation, s.Audio.Volume)
	}
}

func TestEditSettingsRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad fps", []string{"--fps", "24"}},
		{"reversed trim", []string{"--trim-start", "20", "--trim-end", "5"}},
		{"zero rate", []string{"--rate", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := editSettings(editCommand(t, tt.args...)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := editSettings(editCommand(t, "--settings", filepath.Join(t.TempDir(), "missing.yaml"))); err == nil {
		t.Fatal("expected error for a missing settings file")
	}
}

func TestDefaultOutput(t *testing.T) {
	if got := defaultOutput("clips/talk.mov", settings.FormatWebM); got != "clips/talk_edited.webm" {
		t.Errorf("got %q", got)
	}
}

func TestTrimWindow(t *testing.T) {
	if tr, ok := trimWindow(10, 40); !ok || tr.Start != 10 || tr.Duration != 30 {
		t.Errorf("got %+v %v", tr, ok)
	}
	if _, ok := trimWindow(0, 0); ok {
		t.Error("no trim expected")
	}
}

func TestDescribeChain(t *testing.T) {
	s := settings.Default()
	s.Text.CaptionText = "hi"
	s.Audio.Echo = 0.3
	v := describeChain(effects.Compile(s), renderer.FilterOptions{})

	if len(v.Operations) == 0 || v.Operations[len(v.Operations)-1].Kind != effects.KindDrawCaption {
		t.Errorf("operations = %+v", v.Operations)
	}
	if !strings.Contains(v.VideoFilter, "drawtext=") || len(v.Unsupported) != 1 {
		t.Errorf("view = %+v", v)
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "kind: draw_caption") {
		t.Errorf("yaml output:\n%s", out)
	}
}
