package settings

// CurrentVersion is written into every saved settings document.
const CurrentVersion = "1"

type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

type Position string

const (
	PositionTop    Position = "top"
	PositionMiddle Position = "middle"
	PositionBottom Position = "bottom"
)

type Format string

const (
	FormatMP4  Format = "mp4"
	FormatMKV  Format = "mkv"
	FormatAVI  Format = "avi"
	FormatWebM Format = "webm"
)

type Quality string

const (
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
	Quality4K    Quality = "4k"
)

// EditSettings is one export request's worth of edits.
type EditSettings struct {
	Version string         `yaml:"version"`
	Text    TextSettings   `yaml:"text"`
	Video   VideoSettings  `yaml:"video"`
	Audio   AudioSettings  `yaml:"audio"`
	Export  ExportSettings `yaml:"export"`
}

// TextSettings describes the caption overlay.
type TextSettings struct {
	CaptionText string    `yaml:"caption_text"`
	FontSize    float64   `yaml:"font_size"` // px
	Color       string    `yaml:"color"`
	FontFamily  string    `yaml:"font_family"`
	Alignment   Alignment `yaml:"alignment"`
	Shadow      bool      `yaml:"shadow"`
	Opacity     float64   `yaml:"opacity"` // 0..1
	Speed       float64   `yaml:"speed"`
	Position    Position  `yaml:"position"`
	Background  string    `yaml:"background"` // color with alpha, "" for none
}

// VideoSettings describes colour and geometry edits. Saturation uses 1 as "no change".
type VideoSettings struct {
	PlaybackRate float64 `yaml:"playback_rate"`
	TrimStart    float64 `yaml:"trim_start"` // seconds
	TrimEnd      float64 `yaml:"trim_end"`   // seconds, 0 = no end trim
	Rotation     float64 `yaml:"rotation"`   // degrees
	Brightness   float64 `yaml:"brightness"` // -1..1
	Contrast     float64 `yaml:"contrast"`   // -1..1
	Saturation   float64 `yaml:"saturation"` // 0..2
	Scale        float64 `yaml:"scale"`
	Filter       string  `yaml:"filter"`
	Transition   string  `yaml:"transition"`
}

// AudioSettings describes audio edits. Equalizer, NoiseReduction, Echo, Effects,
// Compression and BackgroundMusic are accepted but no backend applies them.
type AudioSettings struct {
	Volume          float64  `yaml:"volume"`
	RemoveAudio     bool     `yaml:"remove_audio"`
	Tempo           float64  `yaml:"tempo"`
	Equalizer       string   `yaml:"equalizer"`
	NoiseReduction  float64  `yaml:"noise_reduction"`
	Echo            float64  `yaml:"echo"`
	Effects         []string `yaml:"effects"`
	Compression     float64  `yaml:"compression"`
	BackgroundMusic string   `yaml:"background_music"`
}

type ExportSettings struct {
	Format        Format  `yaml:"format"`
	Quality       Quality `yaml:"quality"`
	FrameRate     int     `yaml:"frame_rate"` // 30 or 60
	EmbedCaptions bool    `yaml:"embed_captions"`
}

// Default returns the settings a fresh project starts with.
func Default() EditSettings {
	return EditSettings{
		Version: CurrentVersion,
		Text: TextSettings{
			FontSize:   32,
			Color:      "#ffffff",
			FontFamily: "Arial",
			Alignment:  AlignCenter,
			Shadow:     true,
			Opacity:    1,
			Speed:      1,
			Position:   PositionBottom,
			Background: "rgba(0, 0, 0, 0.7)",
		},
		Video: VideoSettings{
			PlaybackRate: 1,
			Saturation:   1,
			Scale:        1,
		},
		Audio: AudioSettings{
			Volume: 1,
			Tempo:  1,
		},
		Export: ExportSettings{
			Format:        FormatMP4,
			Quality:       Quality1080p,
			FrameRate:     30,
			EmbedCaptions: true,
		},
	}
}

// Identity returns Default with every visual default that would emit an
// operation switched off, so compiling it yields only the mandatory scale.
func Identity() EditSettings {
	s := Default()
	s.Text.Background = ""
	return s
}
