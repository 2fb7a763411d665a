package video

import (
	"strconv"

	"github.com/ivlev/videdit/internal/settings"
)

// Container describes how one export format is muxed.
type Container struct {
	Format settings.Format
	Muxer  string
	MIME   string
	// VideoCodec empty means "best available H.264".
	VideoCodec    string
	AudioCodec    string
	SubtitleCodec string // empty: container cannot carry a text track
}

var containers = map[settings.Format]Container{
	settings.FormatMP4:  {Format: settings.FormatMP4, Muxer: "mp4", MIME: "video/mp4", AudioCodec: "aac", SubtitleCodec: "mov_text"},
	settings.FormatMKV:  {Format: settings.FormatMKV, Muxer: "matroska", MIME: "video/x-matroska", AudioCodec: "aac", SubtitleCodec: "srt"},
	settings.FormatAVI:  {Format: settings.FormatAVI, Muxer: "avi", MIME: "video/x-msvideo", AudioCodec: "aac"},
	settings.FormatWebM: {Format: settings.FormatWebM, Muxer: "webm", MIME: "video/webm", VideoCodec: "libvpx-vp9", AudioCodec: "libopus", SubtitleCodec: "webvtt"},
}

// ContainerFor returns the muxing rules for f, defaulting to mp4.
func ContainerFor(f settings.Format) Container {
	if c, ok := containers[f]; ok {
		return c
	}
	return containers[settings.FormatMP4]
}

// VideoCodecArgs selects the video encoder and its rate control.
func VideoCodecArgs(c Container, h264Encoder string, bitrate int) []string {
	encoderName := c.VideoCodec
	if encoderName == "" {
		encoderName = h264Encoder
	}
	if encoderName == "" {
		encoderName = "libx264"
	}
	args := []string{"-c:v", encoderName, "-pix_fmt", "yuv420p", "-b:v", strconv.Itoa(bitrate)}

	// Качество в зависимости от энкодера
	switch encoderName {
	case "h264_videotoolbox":
		// VideoToolbox держит битрейт сам, дополнительных ключей не нужно.
	case "h264_nvenc":
		args = append(args, "-preset", "p4", "-rc", "vbr")
	case "libvpx-vp9":
		args = append(args, "-deadline", "good", "-row-mt", "1")
	case "libx264":
		args = append(args, "-preset", "medium", "-maxrate", strconv.Itoa(bitrate), "-bufsize", strconv.Itoa(2*bitrate))
	}
	return args
}

// MuxArgs names the muxer explicitly, since outputs are written under a
// temporary extension or to a pipe. Streamed mp4 must be fragmented.
func MuxArgs(c Container, streamed bool) []string {
	args := []string{"-f", c.Muxer}
	if c.Muxer == "mp4" {
		if streamed {
			args = append(args, "-movflags", "frag_keyframe+empty_moov")
		} else {
			args = append(args, "-movflags", "+faststart")
		}
	}
	return args
}
