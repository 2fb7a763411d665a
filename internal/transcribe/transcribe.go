package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ivlev/videdit/internal/audio"
	"github.com/ivlev/videdit/internal/config"
	"github.com/ivlev/videdit/internal/types"
)

// Transcriber turns a mono 16 kHz WAV into word timestamps. Backends do not
// promise any word order; callers use TranscriptResult.Sorted.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (types.TranscriptResult, error)
}

// New builds the transcriber named by cfg.Provider.
func New(cfg config.TranscribeConfig, tempDir string, logger zerolog.Logger) (Transcriber, error) {
	logger = logger.With().Str("component", "transcribe").Str("provider", cfg.Provider).Logger()
	switch cfg.Provider {
	case "whispercpp", "":
		return NewWhisperCPP(cfg.WhisperBinary, cfg.WhisperModel, cfg.Language, tempDir, logger), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai transcription needs OPENAI_API_KEY")
		}
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Language, logger), nil
	}
	return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
}

// Artifact transcribes an extracted audio artifact. Header-only placeholders
// are refused up front: a silent transcript would look like a valid result.
func Artifact(ctx context.Context, t Transcriber, a *audio.Artifact) (types.TranscriptResult, error) {
	if a == nil || a.Degraded {
		return types.TranscriptResult{}, types.NewError(types.ErrDegradedAudio, "transcribe", nil, "audio was extracted without a decoder")
	}
	res, err := t.Transcribe(ctx, a.Data)
	if err != nil {
		return types.TranscriptResult{}, wrap(err)
	}
	return res, nil
}

func wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}
	return types.NewError(types.ErrTranscribe, "transcribe", err, "")
}
