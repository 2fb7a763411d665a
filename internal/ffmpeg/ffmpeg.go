package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// diagnosticLines is how much of ffmpeg's log is kept for error reports.
const diagnosticLines = 12

// Executor runs ffmpeg and ffprobe with progress streaming.
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New creates an executor for already resolved binaries. An empty
// ffprobePath disables Probe.
func New(logger zerolog.Logger, ffmpegPath, ffprobePath string, threads int) (*Executor, error) {
	if ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg not found in PATH")
	}
	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
	}, nil
}

func (e *Executor) FFmpegPath() string  { return e.ffmpegPath }
func (e *Executor) FFprobePath() string { return e.ffprobePath }

// Run executes ffmpeg with the given arguments and streams progress.
// Cancelling ctx kills the process.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	// Global options go before everything else.
	args := []string{"-y", "-hide_banner", "-loglevel", "info"}
	if opts.Stdin == nil {
		args = append(args, "-nostdin")
	}
	if e.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(e.threads))
	}
	args = append(args, "-progress", "pipe:2", "-nostats")
	args = append(args, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	tail := newTail(diagnosticLines)
	var g errgroup.Group
	g.Go(func() error {
		streamOutput(stderr, tail, opts.ProgressHandler, opts.LogHandler)
		return nil
	})
	g.Go(func() error {
		if opts.Stdout != nil {
			_, err := io.Copy(opts.Stdout, stdout)
			if err != nil {
				// Keep reading so ffmpeg is not blocked on a full pipe.
				_, _ = io.Copy(io.Discard, stdout)
			}
			return err
		}
		_, err := io.Copy(io.Discard, stdout)
		return err
	})
	copyErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ExitError{Err: err, Diagnostic: tail.String()}
	}
	if copyErr != nil {
		return fmt.Errorf("failed to read ffmpeg output: %w", copyErr)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return nil
}

// Probe runs ffprobe and returns its stdout.
func (e *Executor) Probe(ctx context.Context, args ...string) ([]byte, error) {
	if e.ffprobePath == "" {
		return nil, fmt.Errorf("ffprobe not found in PATH")
	}
	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{Err: err, Diagnostic: strings.TrimSpace(stderr.String())}
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return out, nil
}

// streamOutput splits stderr into progress blocks and log lines.
func streamOutput(r io.Reader, tail *lineTail, progressHandler func(Progress), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var parser ProgressParser

	for scanner.Scan() {
		line := scanner.Text()
		if p, ok, isProgress := parser.Feed(line); isProgress {
			if ok && progressHandler != nil {
				progressHandler(p)
			}
			continue
		}
		tail.Add(line)
		if logHandler != nil {
			logHandler(line)
		}
	}
	// Drain whatever is left so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

// progressKeys are the keys ffmpeg writes in a -progress block.
var progressKeys = map[string]bool{
	"frame": true, "fps": true, "bitrate": true, "total_size": true,
	"out_time_us": true, "out_time_ms": true, "out_time": true,
	"dup_frames": true, "drop_frames": true, "speed": true, "progress": true,
}

// ProgressParser accumulates key=value lines into Progress blocks.
type ProgressParser struct {
	cur Progress
}

// Feed consumes one line. isProgress reports whether the line belonged to a
// progress block; ok is true when the line closed a block and p is complete.
func (pp *ProgressParser) Feed(line string) (p Progress, ok, isProgress bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || !progressKeys[key] || strings.Contains(key, " ") {
		return Progress{}, false, false
	}
	value = strings.TrimSpace(value)

	switch key {
	case "frame":
		pp.cur.Frame, _ = strconv.Atoi(value)
	case "fps":
		pp.cur.FPS, _ = strconv.ParseFloat(value, 64)
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds; out_time_ms is a historical misnomer.
		if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
			pp.cur.OutTime = time.Duration(us) * time.Microsecond
		}
	case "speed":
		pp.cur.Speed = value
	case "progress":
		pp.cur.End = value == "end"
		p = pp.cur
		pp.cur = Progress{}
		return p, true, true
	}
	return Progress{}, false, true
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	lines []string
	n     int
}

func newTail(n int) *lineTail { return &lineTail{n: n} }

func (t *lineTail) Add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}
