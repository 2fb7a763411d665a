package types

import (
	"sort"
	"time"
)

// VideoMetadata describes one loaded source. It is created per probe and never mutated.
type VideoMetadata struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration"` // seconds, 0 when unknown
	Format   string  `json:"format"`

	Width    int  `json:"width,omitempty"`
	Height   int  `json:"height,omitempty"`
	HasAudio bool `json:"hasAudio,omitempty"`
}

// DurationTime returns Duration as a time.Duration.
func (m VideoMetadata) DurationTime() time.Duration {
	return time.Duration(m.Duration * float64(time.Second))
}

// Artifact is the finished product of one request. Exactly one of Path or Bytes is set.
type Artifact struct {
	RequestID string   `json:"requestId"`
	Path      string   `json:"path,omitempty"`
	Bytes     []byte   `json:"-"`
	MIME      string   `json:"mime"`
	Container string   `json:"container"`
	Duration  float64  `json:"duration"`
	Truncated bool     `json:"truncated,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// InMemory reports whether the artifact holds its bytes rather than a file path.
func (a *Artifact) InMemory() bool {
	return a != nil && a.Path == ""
}

type TranscriptWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptResult is what a transcription backend hands back. Producers do not
// guarantee ordering, so readers go through Sorted or WordAt.
type TranscriptResult struct {
	Language string           `json:"language"`
	Words    []TranscriptWord `json:"words"`
}

// Sorted returns a copy of the words ordered by start time, then end time.
func (r TranscriptResult) Sorted() []TranscriptWord {
	out := make([]TranscriptWord, len(r.Words))
	copy(out, r.Words)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return out
}

// WordAt returns the word spoken at time t (seconds), if any.
func (r TranscriptResult) WordAt(t float64) (TranscriptWord, bool) {
	words := r.Sorted()
	i := sort.Search(len(words), func(i int) bool { return words[i].Start > t })
	for j := i - 1; j >= 0; j-- {
		if t <= words[j].End {
			return words[j], true
		}
	}
	return TranscriptWord{}, false
}
