package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/renderer"
	"github.com/ivlev/videdit/internal/source"
	"github.com/ivlev/videdit/internal/system"
	"github.com/ivlev/videdit/internal/types"
	"github.com/ivlev/videdit/internal/video"
)

// FrameEncoder consumes rendered frames. *video.StreamEncoder implements it.
type FrameEncoder interface {
	Start(ctx context.Context, progress func(ffmpeg.Progress)) error
	WriteFrame(img *image.RGBA) error
	Close() error
	Abort()
	Bytes() []byte
}

type SourceOpener func(ctx context.Context, path string, opts source.Options) (source.Source, error)

type EncoderFactory func(cfg video.StreamConfig) FrameEncoder

// FrameLoop renders every frame in Go and re-encodes through ffmpeg used as
// a plain stream encoder. One export runs at a time per FrameLoop.
type FrameLoop struct {
	*base
	run   sync.Mutex
	state stateMachine

	// ctl guards the stop request. pending counts Execute calls that have
	// entered, including those still waiting for run.
	ctl     sync.Mutex
	pending int
	stopped bool
}

func newFrameLoop(b *base) *FrameLoop {
	f := &FrameLoop{base: b}
	f.state.current = StateIdle
	if b.deps.OpenSource == nil {
		exec, _ := b.deps.Runner.(*ffmpeg.Executor)
		b.deps.OpenSource = func(ctx context.Context, path string, opts source.Options) (source.Source, error) {
			return source.Open(ctx, exec, path, opts)
		}
	}
	if b.deps.NewEncoder == nil {
		exec, _ := b.deps.Runner.(*ffmpeg.Executor)
		logger := b.logger
		b.deps.NewEncoder = func(cfg video.StreamConfig) FrameEncoder {
			return video.NewStreamEncoder(exec, cfg, logger)
		}
	}
	return f
}

func (f *FrameLoop) Name() string { return BackendFrameLoop }

// State reports where the current or last export is.
func (f *FrameLoop) State() State { return f.state.get() }

// Stop ends the running export after the frame in flight. The output is
// finalized once and marked truncated. With no export in progress it does
// nothing.
func (f *FrameLoop) Stop() {
	f.ctl.Lock()
	if f.pending > 0 {
		f.stopped = true
	}
	f.ctl.Unlock()
}

func (f *FrameLoop) stopRequested() bool {
	f.ctl.Lock()
	defer f.ctl.Unlock()
	return f.stopped
}

func (f *FrameLoop) Execute(ctx context.Context, req Request, onProgress func(Progress)) (*types.Artifact, error) {
	f.ctl.Lock()
	f.pending++
	f.ctl.Unlock()
	defer func() {
		f.ctl.Lock()
		f.pending--
		f.stopped = false
		f.ctl.Unlock()
	}()

	f.run.Lock()
	defer f.run.Unlock()
	if s := f.state.get(); s == StateDone || s == StateFailed {
		_ = f.state.set(StateIdle)
	}

	j, cleanup, err := f.prepare(ctx, req, onProgress)
	defer cleanup()
	if err != nil {
		_ = f.state.set(StateFailed)
		return nil, j.fail(err)
	}
	a, err := f.render(ctx, j)
	if err != nil {
		_ = f.state.set(StateFailed)
		return nil, j.fail(err)
	}
	_ = f.state.set(StateDone)
	return a, nil
}

// scene is the per-frame work, split out of the chain once.
type scene struct {
	geom    renderer.Geometry
	color   effects.ColorAdjust
	box     *effects.DrawBackgroundBox
	caption *effects.DrawCaption
}

func sceneOf(chain effects.Chain) scene {
	s := scene{geom: renderer.GeometryOf(chain), color: effects.ColorAdjust{Saturation: 1}}
	for _, op := range chain.Ops {
		switch o := op.(type) {
		case effects.ColorAdjust:
			s.color = o
		case effects.DrawBackgroundBox:
			box := o
			s.box = &box
		case effects.DrawCaption:
			c := o
			s.caption = &c
		}
	}
	if s.box != nil && s.caption != nil {
		// The band already sits behind the text; a second plate would darken it twice.
		s.caption.Style.Background = color.NRGBA{}
	}
	return s
}

func (f *FrameLoop) render(ctx context.Context, j *job) (*types.Artifact, error) {
	if err := f.state.set(StateRendering); err != nil {
		return nil, err
	}
	j.progress.stage(StageRendering)

	w, h := j.meta.Width, j.meta.Height
	if w <= 0 || h <= 0 {
		return nil, types.NewError(types.ErrSource, "frame loop", errors.New("frame size unknown"), "the frame loop needs a deep probe")
	}

	sc := sceneOf(j.chain)
	outRect := sc.geom.OutputSize(w, h)
	fps := float64(j.chain.Output.FrameRate)
	rate := j.chain.PlaybackRate()

	start, end := j.chain.SourceWindow(j.meta.Duration)
	window := effects.TrimRange{Start: start}
	if end > 0 {
		window.Duration = end - start
	}

	src, err := f.deps.OpenSource(ctx, j.req.InputPath, source.Options{
		Width:      w,
		Height:     h,
		SampleRate: fps * rate,
		Trim:       window,
	})
	if err != nil {
		return nil, types.NewError(types.ErrSource, "open source", err, j.req.InputPath)
	}
	defer src.Close()

	depth := f.queueDepth
	if depth == 0 && f.deps.Caps != nil {
		depth = f.deps.Caps.FrameQueueDepth(outRect.Dx() * outRect.Dy() * 4)
	}
	var audioTrim *effects.TrimRange
	if window.Start > 0 || window.Duration > 0 {
		audioTrim = &window
	}
	cfg := video.StreamConfig{
		Width:        outRect.Dx(),
		Height:       outRect.Dy(),
		FrameRate:    j.chain.Output.FrameRate,
		Bitrate:      j.chain.Output.Bitrate,
		Container:    j.container,
		AudioSource:  j.req.InputPath,
		AudioTrim:    audioTrim,
		AudioFilter:  renderer.AudioFilter(j.chain),
		Muted:        j.chain.Muted(),
		SubtitlePath: j.subtitle,
		OutputPath:   j.partial,
		QueueDepth:   depth,
	}
	if f.deps.Caps != nil {
		cfg.H264Encoder = f.deps.Caps.H264Encoder
	}
	enc := f.deps.NewEncoder(cfg)
	if err := enc.Start(ctx, nil); err != nil {
		return nil, encodeError("start encoder", err)
	}

	frames, truncated, err := f.loop(ctx, j, src, enc, sc, outRect, fps, window)
	if err != nil {
		enc.Abort()
		return nil, err
	}

	if err := f.state.set(StateFinalizing); err != nil {
		enc.Abort()
		return nil, err
	}
	j.progress.stage(StageFinalize)
	if err := enc.Close(); err != nil {
		return nil, encodeError("finalize encoder", err)
	}

	duration := float64(frames) / fps
	if !truncated && j.duration > 0 {
		duration = j.duration
	}
	f.logger.Debug().Str("request_id", j.id).Int("frames", frames).Bool("truncated", truncated).Msg("frame loop finished")
	return j.commit(enc.Bytes(), duration, truncated)
}

// loop renders one frame at a time: at most one frame is in flight here,
// and the next is only decoded after the encoder accepted the previous one.
func (f *FrameLoop) loop(ctx context.Context, j *job, src source.Source, enc FrameEncoder, sc scene, outRect image.Rectangle, fps float64, window effects.TrimRange) (frames int, truncated bool, err error) {
	captions := renderer.NewCaptionRenderer()
	for {
		if f.stopRequested() {
			return frames, true, nil
		}
		if err := ctx.Err(); err != nil {
			return frames, false, err
		}

		fr, err := src.Next()
		if err == io.EOF {
			return frames, false, nil
		}
		if err != nil {
			return frames, false, types.NewError(types.ErrSource, "decode", err, ffmpeg.Diagnostic(err))
		}
		if window.Duration > 0 && fr.Time >= window.Duration {
			system.PutFrame(fr.Image)
			return frames, false, nil
		}

		renderer.ApplyColor(fr.Image, sc.color)
		out := system.GetFrame(outRect)
		sc.geom.Place(out, fr.Image)
		system.PutFrame(fr.Image)
		if sc.box != nil {
			renderer.FillBand(out, *sc.box)
		}
		if sc.caption != nil {
			captions.Draw(out, *sc.caption, out.Bounds())
		}

		if err := enc.WriteFrame(out); err != nil {
			if cerr := enc.Close(); cerr != nil {
				err = cerr
			}
			return frames, false, encodeError("encode frame", err)
		}
		frames++

		if j.duration > 0 {
			j.progress.update(float64(frames) / fps / j.duration * 100)
		}
	}
}
