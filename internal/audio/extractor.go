package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/types"
)

// Artifact is an extracted mono 16 kHz 16-bit WAV.
type Artifact struct {
	Data     []byte // complete WAV file
	Header   Header
	Duration float64
	// Degraded marks a header-only placeholder produced without a decoder.
	Degraded bool
}

// WriteFile stores the WAV at path.
func (a *Artifact) WriteFile(path string) error {
	return os.WriteFile(path, a.Data, 0644)
}

// Extractor pulls the audio track of src, honouring trim.
type Extractor interface {
	Extract(ctx context.Context, src string, trim *effects.TrimRange) (*Artifact, error)
}

// Mode selects the extractor backend.
type Mode string

const (
	ModeDelegated Mode = "delegated"
	ModeCapture   Mode = "capture"
)

// New returns the extractor for mode. A nil executor yields the capture
// extractor, which then produces degraded placeholders.
func New(mode Mode, exec *ffmpeg.Executor, logger zerolog.Logger) Extractor {
	logger = logger.With().Str("component", "audio").Logger()
	if mode == ModeDelegated && exec != nil {
		return &Delegated{exec: exec, logger: logger}
	}
	return &Capture{exec: exec, logger: logger}
}

func inputArgs(src string, trim *effects.TrimRange) []string {
	var args []string
	if trim != nil {
		if trim.Start > 0 {
			args = append(args, "-ss", strconv.FormatFloat(trim.Start, 'f', -1, 64))
		}
		if trim.Duration > 0 {
			args = append(args, "-t", strconv.FormatFloat(trim.Duration, 'f', -1, 64))
		}
	}
	return append(args, "-i", src, "-vn", "-ac", strconv.Itoa(Channels), "-ar", strconv.Itoa(SampleRate))
}

func encodeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return types.NewError(types.ErrEncode, op, err, ffmpeg.Diagnostic(err))
}

// Delegated lets ffmpeg write the WAV file itself.
type Delegated struct {
	exec   *ffmpeg.Executor
	logger zerolog.Logger
}

func (d *Delegated) Extract(ctx context.Context, src string, trim *effects.TrimRange) (*Artifact, error) {
	tmp := filepath.Join(os.TempDir(), "videdit_audio_"+uuid.NewString()+".wav")
	defer os.Remove(tmp)

	args := append(inputArgs(src, trim), "-c:a", "pcm_s16le", "-f", "wav", "-bitexact", tmp)
	if err := d.exec.Run(ctx, ffmpeg.RunOptions{Args: args}); err != nil {
		return nil, encodeError("extract audio", err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		return nil, types.NewError(types.ErrEncode, "extract audio", err, tmp)
	}
	h, err := ParseHeader(bytes.NewReader(data))
	if err != nil {
		return nil, types.NewError(types.ErrEncode, "extract audio", fmt.Errorf("ffmpeg wrote an unreadable wav: %w", err), "")
	}
	d.logger.Debug().Float64("duration", h.Duration()).Int("bytes", len(data)).Msg("audio extracted")
	return &Artifact{Data: data, Header: h, Duration: h.Duration()}, nil
}

// Capture decodes float samples from ffmpeg's stdout and encodes the WAV in-process.
type Capture struct {
	exec   *ffmpeg.Executor
	logger zerolog.Logger
}

func (c *Capture) Extract(ctx context.Context, src string, trim *effects.TrimRange) (*Artifact, error) {
	if c.exec == nil {
		c.logger.Warn().Str("source", src).Msg("[!] no decoder available, returning placeholder audio")
		return Placeholder(), nil
	}

	var raw bytes.Buffer
	args := append(inputArgs(src, trim), "-f", "f32le", "-c:a", "pcm_f32le", "pipe:1")
	if err := c.exec.Run(ctx, ffmpeg.RunOptions{Args: args, Stdout: &raw}); err != nil {
		return nil, encodeError("capture audio", err)
	}

	samples := DecodeFloat32(raw.Bytes())
	data := Encode(samples)
	h := NewHeader(len(samples))
	c.logger.Debug().Int("samples", len(samples)).Float64("duration", h.Duration()).Msg("audio captured")
	return &Artifact{Data: data, Header: h, Duration: h.Duration()}, nil
}

// Placeholder is a header-only WAV standing in for audio that could not be decoded.
func Placeholder() *Artifact {
	h := NewHeader(0)
	var buf bytes.Buffer
	_ = WriteHeader(&buf, h)
	return &Artifact{Data: buf.Bytes(), Header: h, Degraded: true}
}
