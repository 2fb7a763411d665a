package effects

import (
	"fmt"
	"math"
	"strings"

	"github.com/ivlev/videdit/internal/settings"
)

// Target bitrates per quality tier, bits per second.
const (
	Bitrate720p  = 3_000_000
	Bitrate1080p = 5_000_000
	Bitrate4K    = 8_000_000
)

// Caption bands as a fraction of the frame height.
const bandHeight = 0.22

// OutputParams are the global encoder flags that go with a chain.
type OutputParams struct {
	FrameRate         int
	Bitrate           int
	VideoFilterNeeded bool
	AudioFilterNeeded bool
	Format            settings.Format
	Muted             bool
}

// SubtitleTrack is a caption kept as a separate stream instead of burned in.
type SubtitleTrack struct {
	Text string
}

// Unsupported names a setting that was accepted but that no backend applies.
type Unsupported struct {
	Field string
	Value string
}

func (u Unsupported) String() string {
	return fmt.Sprintf("%s=%s is not supported and was not applied", u.Field, u.Value)
}

// Chain is the compiled form of one EditSettings value.
type Chain struct {
	Ops         []Operation
	Output      OutputParams
	Subtitle    *SubtitleTrack
	Unsupported []Unsupported
}

// Compile turns settings into operations in canonical order:
// color, rotate, scale, playback rate, background box, caption, trim, audio.
// It never fails; out-of-range values are clamped and malformed ones ignored.
func Compile(s settings.EditSettings) Chain {
	var ops []Operation
	v := s.Video

	color := ColorAdjust{
		Brightness: clamp(v.Brightness, -1, 1),
		Contrast:   clamp(v.Contrast, -1, 1),
		Saturation: clamp(v.Saturation, 0, 2),
	}
	if color.Brightness != 0 || color.Contrast != 0 || color.Saturation != 1 {
		ops = append(ops, color)
	}

	if deg := NormalizeDegrees(v.Rotation); deg != 0 {
		ops = append(ops, Rotate{Degrees: deg})
	}

	ops = append(ops, Scale{Factor: positiveOr(v.Scale, 1)})

	rate := positiveOr(v.PlaybackRate, 1)
	if rate != 1 {
		ops = append(ops, SetPlaybackRate{Rate: rate})
	}

	var subtitle *SubtitleTrack
	caption := strings.TrimSpace(s.Text.CaptionText)
	if caption != "" {
		if s.Export.EmbedCaptions {
			ops = append(ops, captionOps(caption, s.Text)...)
		} else {
			subtitle = &SubtitleTrack{Text: caption}
		}
	}

	if trim, ok := compileTrim(v.TrimStart, v.TrimEnd); ok {
		ops = append(ops, trim)
	}

	a := s.Audio
	if a.RemoveAudio {
		ops = append(ops, MuteAudio{})
	} else {
		if vol := math.Max(0, a.Volume); vol != 1 {
			ops = append(ops, AudioVolume{Multiplier: vol})
		}
		if tempo := positiveOr(a.Tempo, 1); tempo != 1 {
			ops = append(ops, AudioTempo{Multiplier: tempo})
		}
	}

	chain := Chain{
		Ops:         ops,
		Subtitle:    subtitle,
		Unsupported: unsupported(s),
	}
	chain.Output = OutputParams{
		FrameRate:         frameRate(s.Export.FrameRate),
		Bitrate:           BitrateFor(s.Export.Quality),
		VideoFilterNeeded: chain.hasVideoFilter(),
		AudioFilterNeeded: chain.hasAudioFilter(),
		Format:            formatOr(s.Export.Format),
		Muted:             a.RemoveAudio,
	}
	return chain
}

func captionOps(text string, t settings.TextSettings) []Operation {
	var ops []Operation

	bg, err := settings.ParseColor(t.Background)
	if t.Background == "" || err != nil {
		bg.A = 0
	}
	position := t.Position
	switch position {
	case settings.PositionTop, settings.PositionMiddle, settings.PositionBottom:
	default:
		position = settings.PositionBottom
	}
	align := t.Alignment
	switch align {
	case settings.AlignLeft, settings.AlignCenter, settings.AlignRight:
	default:
		align = settings.AlignCenter
	}

	if bg.A > 0 {
		ops = append(ops, DrawBackgroundBox{Rect: BandFor(position), Color: bg})
	}

	fg, err := settings.ParseColor(t.Color)
	if err != nil {
		fg, _ = settings.ParseColor("#ffffff")
	}
	size := t.FontSize
	if size <= 0 {
		size = 32
	}
	ops = append(ops, DrawCaption{
		Text: text,
		Style: CaptionStyle{
			FontSize:   size,
			FontFamily: t.FontFamily,
			Color:      fg,
			Opacity:    clamp(t.Opacity, 0, 1),
			Shadow:     t.Shadow,
			Background: bg,
		},
		Anchor: Anchor{Align: align, Position: position},
	})
	return ops
}

// BandFor returns the full-width background band for a caption position.
func BandFor(p settings.Position) RelRect {
	switch p {
	case settings.PositionTop:
		return RelRect{X: 0, Y: 0, W: 1, H: bandHeight}
	case settings.PositionMiddle:
		return RelRect{X: 0, Y: (1 - bandHeight) / 2, W: 1, H: bandHeight}
	default:
		return RelRect{X: 0, Y: 1 - bandHeight, W: 1, H: bandHeight}
	}
}

func compileTrim(start, end float64) (TrimRange, bool) {
	start = math.Max(0, start)
	switch {
	case end > start:
		return TrimRange{Start: start, Duration: end - start}, true
	case end <= 0 && start > 0:
		return TrimRange{Start: start}, true
	}
	return TrimRange{}, false
}

// NormalizeDegrees maps any angle into [0,360), rounded to 1e-9 so that
// r and r+360k compare equal.
func NormalizeDegrees(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	d = math.Round(d*1e9) / 1e9
	if d >= 360 {
		d = 0
	}
	return d
}

// BitrateFor maps a quality tier to its fixed target bitrate.
func BitrateFor(q settings.Quality) int {
	switch q {
	case settings.Quality4K:
		return Bitrate4K
	case settings.Quality720p:
		return Bitrate720p
	default:
		return Bitrate1080p
	}
}

func frameRate(fps int) int {
	if fps == 60 {
		return 60
	}
	return 30
}

func formatOr(f settings.Format) settings.Format {
	switch f {
	case settings.FormatMP4, settings.FormatMKV, settings.FormatAVI, settings.FormatWebM:
		return f
	}
	return settings.FormatMP4
}

func unsupported(s settings.EditSettings) []Unsupported {
	var out []Unsupported
	add := func(field string, value any) {
		out = append(out, Unsupported{Field: field, Value: fmt.Sprint(value)})
	}

	a := s.Audio
	if a.Equalizer != "" && a.Equalizer != "none" {
		add("audio.equalizer", a.Equalizer)
	}
	if a.NoiseReduction != 0 {
		add("audio.noise_reduction", a.NoiseReduction)
	}
	if a.Echo != 0 {
		add("audio.echo", a.Echo)
	}
	if len(a.Effects) > 0 {
		add("audio.effects", strings.Join(a.Effects, ","))
	}
	if a.Compression != 0 {
		add("audio.compression", a.Compression)
	}
	if a.BackgroundMusic != "" {
		add("audio.background_music", a.BackgroundMusic)
	}
	if f := s.Video.Filter; f != "" && f != "none" {
		add("video.filter", f)
	}
	if tr := s.Video.Transition; tr != "" && tr != "none" {
		add("video.transition", tr)
	}
	if sp := s.Text.Speed; sp != 0 && sp != 1 && strings.TrimSpace(s.Text.CaptionText) != "" {
		add("text.speed", sp)
	}
	return out
}

func (c Chain) hasVideoFilter() bool {
	for _, op := range c.Ops {
		if op.Kind() == KindTrimRange || IsAudio(op) {
			continue
		}
		// The mandatory identity scale is still a graph node.
		return true
	}
	return false
}

func (c Chain) hasAudioFilter() bool {
	for _, op := range c.Ops {
		switch op.Kind() {
		case KindAudioVolume, KindAudioTempo:
			return true
		}
	}
	return false
}

// Trim returns the chain's trim range, if any.
func (c Chain) Trim() (TrimRange, bool) {
	for _, op := range c.Ops {
		if t, ok := op.(TrimRange); ok {
			return t, true
		}
	}
	return TrimRange{}, false
}

// PlaybackRate returns the compiled rate, 1 when unchanged.
func (c Chain) PlaybackRate() float64 {
	for _, op := range c.Ops {
		if r, ok := op.(SetPlaybackRate); ok {
			return r.Rate
		}
	}
	return 1
}

// Muted reports whether the output drops audio.
func (c Chain) Muted() bool {
	for _, op := range c.Ops {
		if op.Kind() == KindMuteAudio {
			return true
		}
	}
	return false
}

// Find returns the first operation of the given kind.
func (c Chain) Find(k Kind) (Operation, bool) {
	for _, op := range c.Ops {
		if op.Kind() == k {
			return op, true
		}
	}
	return nil, false
}

// SourceWindow returns the [start, end) of the source that will be read,
// given the source duration. end is 0 when the source duration is unknown
// and no explicit end was set.
func (c Chain) SourceWindow(sourceDuration float64) (start, end float64) {
	end = sourceDuration
	if t, ok := c.Trim(); ok {
		start = t.Start
		if t.Duration > 0 {
			end = t.End()
			if sourceDuration > 0 && end > sourceDuration {
				end = sourceDuration
			}
		}
	}
	if end > 0 && end < start {
		end = start
	}
	return start, end
}

// OutputDuration is the length of the rendered result in seconds.
func (c Chain) OutputDuration(sourceDuration float64) float64 {
	start, end := c.SourceWindow(sourceDuration)
	if end <= 0 {
		return 0
	}
	return (end - start) / c.PlaybackRate()
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func positiveOr(v, def float64) float64 {
	if v > 0 && !math.IsInf(v, 0) {
		return v
	}
	return def
}
