package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Progress is one block of ffmpeg's -progress output.
type Progress struct {
	Frame   int
	FPS     float64
	OutTime time.Duration
	Speed   string
	End     bool
}

// RunOptions configures one ffmpeg invocation.
type RunOptions struct {
	Args            []string
	Stdin           io.Reader // raw input for "-i pipe:0"
	Stdout          io.Writer // receives "pipe:1" output; discarded when nil
	ProgressHandler func(Progress)
	LogHandler      func(line string)
}

// ExitError is returned when ffmpeg exits non-zero. Diagnostic holds the
// tail of its log output.
type ExitError struct {
	Err        error
	Diagnostic string
}

func (e *ExitError) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("ffmpeg execution failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg execution failed: %v: %s", e.Err, e.Diagnostic)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Diagnostic returns ffmpeg's log tail carried by err, if any.
func Diagnostic(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Diagnostic
	}
	return ""
}
