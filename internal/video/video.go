package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/system"
)

// ErrEncoderStopped is returned by WriteFrame once the encoder can no longer
// accept frames. Close returns the underlying cause.
var ErrEncoderStopped = errors.New("stream encoder stopped")

var errEncoderExited = errors.New("ffmpeg closed its input")

// StreamConfig describes one raw-frame encode.
type StreamConfig struct {
	Width, Height int
	FrameRate     int
	Bitrate       int
	Container     Container
	H264Encoder   string

	// AudioSource is re-read as a second input; empty or Muted drops audio.
	AudioSource string
	AudioTrim   *effects.TrimRange
	AudioFilter string
	Muted       bool

	SubtitlePath string

	// OutputPath empty collects the result in memory.
	OutputPath string
	QueueDepth int
}

// BuildArgs returns the ffmpeg arguments for cfg, reading frames from stdin.
func BuildArgs(cfg StreamConfig) []string {
	args := []string{
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", strconv.Itoa(cfg.FrameRate),
		"-i", "pipe:0",
	}

	inputs := 1
	audioIn, subIn := -1, -1
	withAudio := !cfg.Muted && cfg.AudioSource != ""
	if withAudio {
		if t := cfg.AudioTrim; t != nil {
			if t.Start > 0 {
				args = append(args, "-ss", strconv.FormatFloat(t.Start, 'f', -1, 64))
			}
			if t.Duration > 0 {
				args = append(args, "-t", strconv.FormatFloat(t.Duration, 'f', -1, 64))
			}
		}
		args = append(args, "-i", cfg.AudioSource)
		audioIn = inputs
		inputs++
	}
	if cfg.SubtitlePath != "" && cfg.Container.SubtitleCodec != "" {
		args = append(args, "-i", cfg.SubtitlePath)
		subIn = inputs
	}

	args = append(args, "-map", "0:v:0")
	if audioIn >= 0 {
		// The trailing '?' tolerates sources without an audio stream.
		args = append(args, "-map", fmt.Sprintf("%d:a:0?", audioIn))
	}
	if subIn >= 0 {
		args = append(args, "-map", fmt.Sprintf("%d:s:0", subIn))
	}

	args = append(args, VideoCodecArgs(cfg.Container, cfg.H264Encoder, cfg.Bitrate)...)
	args = append(args, "-r", strconv.Itoa(cfg.FrameRate))
	if audioIn >= 0 {
		if cfg.AudioFilter != "" {
			args = append(args, "-af", cfg.AudioFilter)
		}
		args = append(args, "-c:a", cfg.Container.AudioCodec, "-shortest")
	} else {
		args = append(args, "-an")
	}
	if subIn >= 0 {
		args = append(args, "-c:s", cfg.Container.SubtitleCodec)
	}

	streamed := cfg.OutputPath == ""
	args = append(args, MuxArgs(cfg.Container, streamed)...)
	if streamed {
		args = append(args, "pipe:1")
	} else {
		args = append(args, cfg.OutputPath)
	}
	return args
}

// StreamEncoder feeds RGBA frames into a single ffmpeg process.
// Frames queue in a bounded channel; a writer goroutine drains it and
// returns every frame to system.FramePool.
type StreamEncoder struct {
	exec   *ffmpeg.Executor
	cfg    StreamConfig
	logger zerolog.Logger

	queue  chan *image.RGBA
	g      *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc
	out    bytes.Buffer

	closeOnce sync.Once
	closeErr  error
}

func NewStreamEncoder(exec *ffmpeg.Executor, cfg StreamConfig, logger zerolog.Logger) *StreamEncoder {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4
	}
	return &StreamEncoder{
		exec:   exec,
		cfg:    cfg,
		logger: logger.With().Str("component", "encoder").Logger(),
	}
}

// Start launches ffmpeg. progress receives ffmpeg's own progress blocks and may be nil.
func (e *StreamEncoder) Start(ctx context.Context, progress func(ffmpeg.Progress)) error {
	if e.cfg.Width <= 0 || e.cfg.Height <= 0 || e.cfg.Width%2 != 0 || e.cfg.Height%2 != 0 {
		return fmt.Errorf("invalid frame size %dx%d", e.cfg.Width, e.cfg.Height)
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.g, e.gctx = errgroup.WithContext(ctx)
	e.queue = make(chan *image.RGBA, e.cfg.QueueDepth)

	pr, pw := io.Pipe()
	args := BuildArgs(e.cfg)
	opts := ffmpeg.RunOptions{Args: args, Stdin: pr, ProgressHandler: progress}
	if e.cfg.OutputPath == "" {
		opts.Stdout = &e.out
	}

	e.g.Go(func() error {
		err := e.exec.Run(e.gctx, opts)
		pr.CloseWithError(errEncoderExited)
		return err
	})
	e.g.Go(func() error {
		var werr error
		for img := range e.queue {
			if werr == nil {
				werr = writeRawRGBA(pw, img)
			}
			system.PutFrame(img)
		}
		if werr != nil {
			pw.CloseWithError(werr)
			if errors.Is(werr, errEncoderExited) {
				return nil
			}
			return fmt.Errorf("write raw error: %w", werr)
		}
		return pw.Close()
	})
	e.logger.Debug().Int("width", e.cfg.Width).Int("height", e.cfg.Height).Int("queue", e.cfg.QueueDepth).Msg("stream encoder started")
	return nil
}

// WriteFrame hands img to the encoder, which owns it from now on.
// It blocks while the queue is full.
func (e *StreamEncoder) WriteFrame(img *image.RGBA) error {
	select {
	case <-e.gctx.Done():
		system.PutFrame(img)
		return ErrEncoderStopped
	default:
	}
	select {
	case e.queue <- img:
		return nil
	case <-e.gctx.Done():
		system.PutFrame(img)
		return ErrEncoderStopped
	}
}

// Close flushes queued frames, closes ffmpeg's input and waits for the muxer.
func (e *StreamEncoder) Close() error {
	e.closeOnce.Do(func() {
		close(e.queue)
		e.closeErr = e.g.Wait()
		e.cancel()
	})
	return e.closeErr
}

// Abort kills ffmpeg and discards queued frames.
func (e *StreamEncoder) Abort() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	_ = e.Close()
}

// Bytes returns the in-memory result after Close.
func (e *StreamEncoder) Bytes() []byte {
	return e.out.Bytes()
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 {
		rgba = image.NewRGBA(bounds)
		draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix[:bounds.Dx()*bounds.Dy()*4])
	return err
}
