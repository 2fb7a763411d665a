package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ivlev/videdit/internal/types"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "duration": "119.960000"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac"}
  ],
  "format": {
    "filename": "clip.mp4",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "120.021333",
    "size": "7340032"
  }
}`

func TestParseFFprobe(t *testing.T) {
	md, err := ParseFFprobe([]byte(sampleJSON))
	if err != nil {
		t.Fatal(err)
	}
	if md.Format != "mov" {
		t.Errorf("format = %q, want mov", md.Format)
	}
	if md.Duration < 120 || md.Duration > 120.1 {
		t.Errorf("duration = %v", md.Duration)
	}
	if md.Size != 7340032 || md.Width != 1920 || md.Height != 1080 || !md.HasAudio {
		t.Errorf("unexpected metadata %+v", md)
	}
}

func TestParseFFprobeStreamDurationFallback(t *testing.T) {
	md, err := ParseFFprobe([]byte(`{"format":{"format_name":"matroska,webm"},"streams":[{"codec_type":"video","duration":"4.5"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if md.Format != "matroska" || md.Duration != 4.5 || md.HasAudio {
		t.Errorf("unexpected metadata %+v", md)
	}
}

func TestParseFFprobeInvalid(t *testing.T) {
	if _, err := ParseFFprobe([]byte("not json")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestShallow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Holiday.MP4")
	if err := os.WriteFile(path, make([]byte, 1234), 0644); err != nil {
		t.Fatal(err)
	}

	md, err := Shallow{}.Probe(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if md.Name != "Holiday.MP4" || md.Format != "mp4" || md.Size != 1234 || md.Duration != 0 {
		t.Errorf("unexpected metadata %+v", md)
	}
}

func TestShallowMissing(t *testing.T) {
	_, err := Shallow{}.Probe(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))
	if !errors.Is(err, types.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	_, err = Shallow{}.Probe(context.Background(), t.TempDir())
	if !errors.Is(err, types.ErrSourceNotFound) {
		t.Fatalf("directory: expected ErrSourceNotFound, got %v", err)
	}
}

func TestNew(t *testing.T) {
	if p, err := New(ModeAuto, nil); err != nil {
		t.Fatal(err)
	} else if _, ok := p.(Shallow); !ok {
		t.Errorf("auto without ffprobe should be shallow, got %T", p)
	}
	if _, err := New(ModeDeep, nil); err == nil {
		t.Error("deep without ffprobe should fail")
	}
	if _, err := New("xray", nil); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestAllowedContainer(t *testing.T) {
	tests := map[string]bool{
		"a.mp4": true, "b.MKV": true, "c.avi": true, "d.webm": true, "e.mov": true,
		"f.flv": false, "g": false, "h.mp4.txt": false,
	}
	for path, want := range tests {
		if got := AllowedContainer(path); got != want {
			t.Errorf("AllowedContainer(%q) = %v, want %v", path, got, want)
		}
	}
}
