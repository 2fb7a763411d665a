package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"sync"

	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/system"
)

// Frame is one decoded picture. Time is seconds since the first delivered frame,
// on the source timeline.
type Frame struct {
	Image *image.RGBA
	Index int
	Time  float64
}

// Source delivers decoded frames in order. Next returns io.EOF after the last frame.
// Frame images come from system.FramePool; whoever consumes them puts them back.
type Source interface {
	Size() (width, height int)
	Next() (Frame, error)
	Close() error
}

// Options describe what to decode.
type Options struct {
	Width, Height int
	// SampleRate is how many frames per source second to deliver.
	SampleRate float64
	Trim       effects.TrimRange
}

// FFmpegSource decodes a file to raw RGBA frames through an ffmpeg pipe.
type FFmpegSource struct {
	opts   Options
	pr     *io.PipeReader
	cancel context.CancelFunc
	done   chan struct{}
	runErr error
	index  int
	once   sync.Once
}

// Open starts decoding path. The caller must Close the source.
func Open(ctx context.Context, exec *ffmpeg.Executor, path string, opts Options) (*FFmpegSource, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("frame size of %s is unknown", path)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %v", opts.SampleRate)
	}

	var args []string
	if opts.Trim.Start > 0 {
		args = append(args, "-ss", num(opts.Trim.Start))
	}
	if opts.Trim.Duration > 0 {
		args = append(args, "-t", num(opts.Trim.Duration))
	}
	args = append(args,
		"-i", path,
		"-an", "-sn",
		"-r", num(opts.SampleRate),
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)

	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	s := &FFmpegSource{opts: opts, pr: pr, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		s.runErr = exec.Run(ctx, ffmpeg.RunOptions{Args: args, Stdout: pw})
		pw.CloseWithError(s.runErr)
	}()
	return s, nil
}

func (s *FFmpegSource) Size() (int, int) { return s.opts.Width, s.opts.Height }

func (s *FFmpegSource) Next() (Frame, error) {
	img := system.GetFrame(image.Rect(0, 0, s.opts.Width, s.opts.Height))
	if _, err := io.ReadFull(s.pr, img.Pix); err != nil {
		system.PutFrame(img)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// A truncated last frame is dropped.
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}
	f := Frame{Image: img, Index: s.index, Time: float64(s.index) / s.opts.SampleRate}
	s.index++
	return f, nil
}

// Close stops the decoder and waits for it to exit.
func (s *FFmpegSource) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.pr.Close()
		<-s.done
	})
	return nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
