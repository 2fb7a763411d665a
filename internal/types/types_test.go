package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestTranscriptSortedAndWordAt(t *testing.T) {
	r := TranscriptResult{
		Language: "ar",
		Words: []TranscriptWord{
			{Word: "third", Start: 2.0, End: 2.5},
			{Word: "first", Start: 0.0, End: 0.4},
			{Word: "second", Start: 0.5, End: 1.2},
		},
	}

	sorted := r.Sorted()
	if sorted[0].Word != "first" || sorted[1].Word != "second" || sorted[2].Word != "third" {
		t.Fatalf("unexpected order: %+v", sorted)
	}
	if r.Words[0].Word != "third" {
		t.Fatal("Sorted must not reorder the receiver")
	}

	tests := []struct {
		at   float64
		want string
		ok   bool
	}{
		{0.2, "first", true},
		{0.5, "second", true},
		{1.5, "", false},
		{2.5, "third", true},
		{3.0, "", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.1f", tt.at), func(t *testing.T) {
			w, ok := r.WordAt(tt.at)
			if ok != tt.ok || w.Word != tt.want {
				t.Errorf("WordAt(%.1f) = %q,%v want %q,%v", tt.at, w.Word, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestErrorKindMatching(t *testing.T) {
	cause := errors.New("exit status 1")
	err := fmt.Errorf("export: %w", NewError(ErrEncode, "ffmpeg", cause, "Invalid data found"))

	if !errors.Is(err, ErrEncode) {
		t.Fatal("expected ErrEncode")
	}
	if errors.Is(err, ErrProbe) {
		t.Fatal("did not expect ErrProbe")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to unwrap")
	}

	var typed *Error
	if !errors.As(err, &typed) || typed.Detail != "Invalid data found" {
		t.Fatalf("diagnostic lost: %v", err)
	}
}
