package effects

import (
	"image/color"

	"github.com/ivlev/videdit/internal/settings"
)

// Kind tags each compiled operation.
type Kind string

const (
	KindColorAdjust       Kind = "color_adjust"
	KindRotate            Kind = "rotate"
	KindScale             Kind = "scale"
	KindSetPlaybackRate   Kind = "set_playback_rate"
	KindDrawBackgroundBox Kind = "draw_background_box"
	KindDrawCaption       Kind = "draw_caption"
	KindTrimRange         Kind = "trim_range"
	KindAudioVolume       Kind = "audio_volume"
	KindAudioTempo        Kind = "audio_tempo"
	KindMuteAudio         Kind = "mute_audio"
)

// Operation is one atomic transform. The concrete types below are the only implementations.
type Operation interface {
	Kind() Kind
}

type ColorAdjust struct {
	Brightness float64 // -1..1, identity 0
	Contrast   float64 // -1..1, identity 0
	Saturation float64 // 0..2, identity 1
}

type Rotate struct {
	Degrees float64 // [0,360)
}

type Scale struct {
	Factor float64
}

// Size returns the even output dimensions for a w x h source.
func (s Scale) Size(w, h int) (int, int) {
	return EvenDimension(w, s.Factor), EvenDimension(h, s.Factor)
}

type SetPlaybackRate struct {
	Rate float64
}

// RelRect is a rectangle in fractions of the frame size.
type RelRect struct {
	X, Y, W, H float64
}

type DrawBackgroundBox struct {
	Rect  RelRect
	Color color.NRGBA
}

// CaptionStyle carries everything the overlay needs besides the text and its anchor.
type CaptionStyle struct {
	FontSize   float64
	FontFamily string
	Color      color.NRGBA
	Opacity    float64
	Shadow     bool
	Background color.NRGBA // zero alpha = no plate behind the text
}

type Anchor struct {
	Align    settings.Alignment
	Position settings.Position
}

// DrawCaption holds the raw caption; escaping is the filter builder's job.
type DrawCaption struct {
	Text   string
	Style  CaptionStyle
	Anchor Anchor
}

// TrimRange selects [Start, Start+Duration) of the source. Duration 0 means
// "until the end of the source".
type TrimRange struct {
	Start    float64
	Duration float64
}

// End returns the absolute end time, or 0 when open-ended.
func (t TrimRange) End() float64 {
	if t.Duration <= 0 {
		return 0
	}
	return t.Start + t.Duration
}

type AudioVolume struct {
	Multiplier float64
}

type AudioTempo struct {
	Multiplier float64
}

type MuteAudio struct{}

func (ColorAdjust) Kind() Kind       { return KindColorAdjust }
func (Rotate) Kind() Kind            { return KindRotate }
func (Scale) Kind() Kind             { return KindScale }
func (SetPlaybackRate) Kind() Kind   { return KindSetPlaybackRate }
func (DrawBackgroundBox) Kind() Kind { return KindDrawBackgroundBox }
func (DrawCaption) Kind() Kind       { return KindDrawCaption }
func (TrimRange) Kind() Kind         { return KindTrimRange }
func (AudioVolume) Kind() Kind       { return KindAudioVolume }
func (AudioTempo) Kind() Kind        { return KindAudioTempo }
func (MuteAudio) Kind() Kind         { return KindMuteAudio }

// IsAudio reports whether the operation belongs to the audio stage.
func IsAudio(op Operation) bool {
	switch op.Kind() {
	case KindAudioVolume, KindAudioTempo, KindMuteAudio:
		return true
	}
	return false
}

// EvenDimension computes floor(dim*factor/2)*2, never below 2.
func EvenDimension(dim int, factor float64) int {
	v := int(float64(dim)*factor/2) * 2
	if v < 2 {
		return 2
	}
	return v
}
