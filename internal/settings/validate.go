package settings

import (
	"errors"
	"fmt"
	"math"
)

// Validate reports out-of-range values. It is meant for the UI or CLI boundary;
// the compiler itself clamps instead of rejecting.
func (s EditSettings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	v := s.Video
	check(v.PlaybackRate > 0, "video.playback_rate must be > 0, got %v", v.PlaybackRate)
	check(v.Scale > 0, "video.scale must be > 0, got %v", v.Scale)
	check(v.TrimStart >= 0, "video.trim_start must be >= 0, got %v", v.TrimStart)
	check(v.TrimEnd == 0 || v.TrimEnd > v.TrimStart, "video.trim_end must be 0 or greater than trim_start")
	check(inRange(v.Brightness, -1, 1), "video.brightness must be in [-1,1], got %v", v.Brightness)
	check(inRange(v.Contrast, -1, 1), "video.contrast must be in [-1,1], got %v", v.Contrast)
	check(inRange(v.Saturation, 0, 2), "video.saturation must be in [0,2], got %v", v.Saturation)
	check(!math.IsNaN(v.Rotation) && !math.IsInf(v.Rotation, 0), "video.rotation must be finite")

	a := s.Audio
	check(a.Volume >= 0, "audio.volume must be >= 0, got %v", a.Volume)
	check(a.Tempo > 0, "audio.tempo must be > 0, got %v", a.Tempo)

	t := s.Text
	check(inRange(t.Opacity, 0, 1), "text.opacity must be in [0,1], got %v", t.Opacity)
	check(t.FontSize > 0, "text.font_size must be > 0, got %v", t.FontSize)
	switch t.Alignment {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		errs = append(errs, fmt.Errorf("text.alignment %q is not left, center or right", t.Alignment))
	}
	switch t.Position {
	case PositionTop, PositionMiddle, PositionBottom:
	default:
		errs = append(errs, fmt.Errorf("text.position %q is not top, middle or bottom", t.Position))
	}

	e := s.Export
	switch e.Format {
	case FormatMP4, FormatMKV, FormatAVI, FormatWebM:
	default:
		errs = append(errs, fmt.Errorf("export.format %q is not supported", e.Format))
	}
	switch e.Quality {
	case Quality720p, Quality1080p, Quality4K:
	default:
		errs = append(errs, fmt.Errorf("export.quality %q is not supported", e.Quality))
	}
	check(e.FrameRate == 30 || e.FrameRate == 60, "export.frame_rate must be 30 or 60, got %d", e.FrameRate)

	return errors.Join(errs...)
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}
