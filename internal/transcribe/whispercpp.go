package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/videdit/internal/types"
)

// WhisperCPP runs the whisper.cpp CLI on a temp copy of the WAV and reads
// its JSON output. Max segment length 1 with split-on-word makes every
// output segment one word.
type WhisperCPP struct {
	bin      string
	model    string
	language string
	tempDir  string
	logger   zerolog.Logger
}

func NewWhisperCPP(bin, model, language, tempDir string, logger zerolog.Logger) *WhisperCPP {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &WhisperCPP{bin: bin, model: model, language: language, tempDir: tempDir, logger: logger}
}

// Args builds the whisper.cpp command line for one run.
func (w *WhisperCPP) Args(wavPath, outPrefix string) []string {
	args := []string{
		"-m", w.model,
		"-f", wavPath,
		"-oj",
		"-of", outPrefix,
		"-ml", "1",
		"-sow",
	}
	if lang := strings.ToLower(strings.TrimSpace(w.language)); lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}
	return args
}

func (w *WhisperCPP) Transcribe(ctx context.Context, wav []byte) (types.TranscriptResult, error) {
	base := filepath.Join(w.tempDir, "videdit_whisper_"+uuid.NewString())
	wavPath := base + ".wav"
	if err := os.WriteFile(wavPath, wav, 0644); err != nil {
		return types.TranscriptResult{}, fmt.Errorf("write temp wav: %w", err)
	}
	defer os.Remove(wavPath)
	defer os.Remove(base + ".json")

	args := w.Args(wavPath, base)
	w.logger.Debug().Strs("args", args).Msg("running whisper.cpp")
	cmd := exec.CommandContext(ctx, w.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return types.TranscriptResult{}, ctx.Err()
		}
		return types.TranscriptResult{}, types.NewError(types.ErrTranscribe, "whisper.cpp", err, tail(string(out), 2000))
	}

	data, err := os.ReadFile(base + ".json")
	if err != nil {
		return types.TranscriptResult{}, types.NewError(types.ErrTranscribe, "whisper.cpp", err, "transcript json is missing")
	}
	res, err := ParseWhisperJSON(data)
	if err != nil {
		return types.TranscriptResult{}, types.NewError(types.ErrTranscribe, "whisper.cpp", err, "")
	}
	if res.Language == "" {
		res.Language = w.language
	}
	return res, nil
}

type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"` // ms
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`

	// Segment/word layout written by some whisper front-ends.
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []types.TranscriptWord `json:"words"`
	} `json:"segments"`
}

// ParseWhisperJSON reads whisper.cpp -oj output. Blank entries are skipped.
func ParseWhisperJSON(data []byte) (types.TranscriptResult, error) {
	var raw whisperOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.TranscriptResult{}, fmt.Errorf("parse whisper json: %w", err)
	}
	res := types.TranscriptResult{Language: raw.Result.Language}
	for _, t := range raw.Transcription {
		word := strings.TrimSpace(t.Text)
		if word == "" {
			continue
		}
		res.Words = append(res.Words, types.TranscriptWord{
			Word:  word,
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
		})
	}
	for _, s := range raw.Segments {
		if len(s.Words) == 0 {
			if text := strings.TrimSpace(s.Text); text != "" {
				res.Words = append(res.Words, types.TranscriptWord{Word: text, Start: s.Start, End: s.End})
			}
			continue
		}
		for _, w := range s.Words {
			w.Word = strings.TrimSpace(w.Word)
			if w.Word != "" {
				res.Words = append(res.Words, w)
			}
		}
	}
	return res, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
