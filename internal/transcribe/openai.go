package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/videdit/internal/types"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAI calls an OpenAI-compatible /audio/transcriptions endpoint with
// word-level timestamps. No retries.
type OpenAI struct {
	key      string
	model    string
	baseURL  string
	language string
	client   *http.Client
	logger   zerolog.Logger
}

func NewOpenAI(apiKey, model, baseURL, language string, logger zerolog.Logger) *OpenAI {
	if model == "" {
		model = "whisper-1"
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenAI{
		key:      apiKey,
		model:    model,
		baseURL:  baseURL,
		language: language,
		client:   &http.Client{Timeout: 10 * time.Minute},
		logger:   logger,
	}
}

func (o *OpenAI) Transcribe(ctx context.Context, wav []byte) (types.TranscriptResult, error) {
	body, contentType, err := o.form(wav)
	if err != nil {
		return types.TranscriptResult{}, err
	}

	url := o.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return types.TranscriptResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+o.key)
	req.Header.Set("Content-Type", contentType)

	o.logger.Debug().Str("url", url).Int("bytes", len(wav)).Msg("uploading audio")
	resp, err := o.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return types.TranscriptResult{}, ctx.Err()
		}
		return types.TranscriptResult{}, types.NewError(types.ErrTranscribe, "openai", err, "")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return types.TranscriptResult{}, types.NewError(types.ErrTranscribe, "openai",
			fmt.Errorf("status %d", resp.StatusCode), tail(redactSecrets(string(rb), o.key), 400))
	}

	res, err := ParseVerboseJSON(resp.Body)
	if err != nil {
		return types.TranscriptResult{}, types.NewError(types.ErrTranscribe, "openai", err, "")
	}
	return res, nil
}

func (o *OpenAI) form(wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", err
	}
	fields := [][2]string{
		{"model", o.model},
		{"response_format", "verbose_json"},
		{"timestamp_granularities[]", "word"},
	}
	if o.language != "" && o.language != "auto" {
		fields = append(fields, [2]string{"language", o.language})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

type verboseJSON struct {
	Language string                 `json:"language"`
	Words    []types.TranscriptWord `json:"words"`
	Segments []struct {
		Words []types.TranscriptWord `json:"words"`
	} `json:"segments"`
}

// ParseVerboseJSON reads a verbose_json response. Words come either at the
// top level or nested in segments, depending on the server.
func ParseVerboseJSON(r io.Reader) (types.TranscriptResult, error) {
	var raw verboseJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return types.TranscriptResult{}, fmt.Errorf("decode verbose_json: %w", err)
	}
	res := types.TranscriptResult{Language: raw.Language}
	words := raw.Words
	if len(words) == 0 {
		for _, s := range raw.Segments {
			words = append(words, s.Words...)
		}
	}
	for _, w := range words {
		w.Word = strings.TrimSpace(w.Word)
		if w.Word != "" {
			res.Words = append(res.Words, w)
		}
	}
	return res, nil
}

var bearerRe = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]+`)

func redactSecrets(s, key string) string {
	if key != "" {
		s = strings.ReplaceAll(s, key, "[REDACTED]")
	}
	return bearerRe.ReplaceAllString(s, "Bearer [REDACTED]")
}
