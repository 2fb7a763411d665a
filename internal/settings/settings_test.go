package settings

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default settings should validate: %v", err)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EditSettings)
		want   string
	}{
		{"rate", func(s *EditSettings) { s.Video.PlaybackRate = 0 }, "playback_rate"},
		{"trim", func(s *EditSettings) { s.Video.TrimStart, s.Video.TrimEnd = 10, 5 }, "trim_end"},
		{"saturation", func(s *EditSettings) { s.Video.Saturation = 3 }, "saturation"},
		{"alignment", func(s *EditSettings) { s.Text.Alignment = "justify" }, "alignment"},
		{"format", func(s *EditSettings) { s.Export.Format = "flv" }, "export.format"},
		{"fps", func(s *EditSettings) { s.Export.FrameRate = 24 }, "frame_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			err := s.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseKeepsDefaultsForMissingFields(t *testing.T) {
	s, err := Parse([]byte("video:\n  trim_start: 10\n  trim_end: 40\ntext:\n  caption_text: \"hi: there\"\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if s.Video.TrimStart != 10 || s.Video.TrimEnd != 40 {
		t.Errorf("trim not decoded: %+v", s.Video)
	}
	if s.Video.Saturation != 1 || s.Audio.Volume != 1 || s.Export.FrameRate != 30 {
		t.Errorf("defaults lost: %+v", s)
	}
	if s.Text.CaptionText != "hi: there" {
		t.Errorf("caption = %q", s.Text.CaptionText)
	}
}

func TestParseRejectsUnknownVersion(t *testing.T) {
	if _, err := Parse([]byte("version: \"7\"\n")); err == nil {
		t.Fatal("expected version error")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edits.yaml")
	s := Default()
	s.Video.Rotation = 90
	s.Audio.RemoveAudio = true

	if err := Save(s, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Video.Rotation != 90 || !got.Audio.RemoveAudio || got.Version != CurrentVersion {
		t.Errorf("unexpected settings after reload: %+v", got)
	}
}
