package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ivlev/videdit/internal/config"
	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/probe"
	"github.com/ivlev/videdit/internal/renderer"
	"github.com/ivlev/videdit/internal/settings"
	"github.com/ivlev/videdit/internal/system"
	"github.com/ivlev/videdit/internal/types"
	"github.com/ivlev/videdit/internal/video"
)

// Backend names.
const (
	BackendAuto      = "auto"
	BackendDelegated = "delegated"
	BackendFrameLoop = "frameloop"
)

// RequiredFilters must all be present in ffmpeg for the delegated backend.
var RequiredFilters = []string{"eq", "rotate", "scale", "setpts", "drawbox", "drawtext", "volume", "atempo"}

// Request is one export.
type Request struct {
	InputPath string
	// OutputPath empty returns the encoded bytes in the artifact.
	OutputPath string
	Settings   settings.EditSettings
}

type Stage string

const (
	StageProbing   Stage = "probing"
	StageRendering Stage = "rendering"
	StageFinalize  Stage = "finalizing"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// Progress is one observable step of an export.
type Progress struct {
	Percent float64
	Stage   Stage
}

// Engine executes a compiled edit against a source.
type Engine interface {
	Name() string
	Execute(ctx context.Context, req Request, onProgress func(Progress)) (*types.Artifact, error)
}

// Runner runs one ffmpeg invocation. *ffmpeg.Executor implements it.
type Runner interface {
	Run(ctx context.Context, opts ffmpeg.RunOptions) error
}

// Deps are the collaborators shared by both backends.
type Deps struct {
	Runner Runner
	Prober probe.Prober
	Caps   *system.Capabilities
	Logger zerolog.Logger

	// Frame-loop seams; nil selects the ffmpeg-backed implementations.
	OpenSource SourceOpener
	NewEncoder EncoderFactory
}

// New resolves the backend once. Auto picks the delegated backend when
// ffmpeg has every filter it needs, else the frame loop.
func New(cfg config.Config, deps Deps) (Engine, error) {
	if deps.Caps == nil {
		deps.Caps = system.DecodeContext()
	}
	if deps.Prober == nil {
		deps.Prober = probe.Shallow{}
	}
	backend := cfg.Engine.Backend
	if backend == "" || backend == BackendAuto {
		backend = SelectBackend(deps.Caps)
	}

	base := &base{
		deps:   deps,
		strict: cfg.Engine.StrictUnsupported,
		opts: renderer.FilterOptions{
			FontFile: cfg.FFmpeg.FontFile,
		},
		tempDir:    cfg.TempDir,
		queueDepth: cfg.Engine.QueueDepth,
	}
	if base.tempDir == "" {
		base.tempDir = os.TempDir()
	}

	switch backend {
	case BackendDelegated:
		if deps.Runner == nil {
			return nil, fmt.Errorf("delegated backend needs ffmpeg")
		}
		base.logger = deps.Logger.With().Str("backend", BackendDelegated).Logger()
		return &Delegated{base: base}, nil
	case BackendFrameLoop:
		// The default decoder and encoder run on the executor itself.
		if exec, ok := deps.Runner.(*ffmpeg.Executor); (!ok || exec == nil) && (deps.OpenSource == nil || deps.NewEncoder == nil) {
			return nil, fmt.Errorf("frame-loop backend needs the ffmpeg executor")
		}
		base.logger = deps.Logger.With().Str("backend", BackendFrameLoop).Logger()
		return newFrameLoop(base), nil
	}
	return nil, fmt.Errorf("unknown backend %q", backend)
}

// SelectBackend applies the auto rule to caps.
func SelectBackend(caps *system.Capabilities) string {
	if caps.SupportsFilters(RequiredFilters...) {
		return BackendDelegated
	}
	return BackendFrameLoop
}

// base carries what both backends do around the actual render.
type base struct {
	deps       Deps
	logger     zerolog.Logger
	strict     bool
	opts       renderer.FilterOptions
	tempDir    string
	queueDepth int
}

// job is one prepared request.
type job struct {
	id        string
	req       Request
	meta      types.VideoMetadata
	chain     effects.Chain
	container video.Container
	duration  float64 // expected output seconds, 0 = unknown
	warnings  []string
	subtitle  string // sidecar .srt path
	partial   string
	logger    zerolog.Logger
	progress  *tracker
}

// prepare probes the source, compiles settings and sets up temp files.
// The job is returned even on error so the caller can report the failure;
// cleanup must run on every path.
func (b *base) prepare(ctx context.Context, req Request, onProgress func(Progress)) (*job, func(), error) {
	j := &job{
		id:       uuid.NewString(),
		req:      req,
		progress: newTracker(onProgress),
	}
	j.logger = b.logger.With().Str("request_id", j.id).Logger()
	cleanup := func() {}

	j.progress.stage(StageProbing)
	meta, err := b.deps.Prober.Probe(ctx, req.InputPath)
	if err != nil {
		var typed *types.Error
		if !errors.As(err, &typed) {
			err = types.NewError(types.ErrSource, "probe", err, req.InputPath)
		}
		return j, cleanup, err
	}
	j.meta = meta

	j.chain = effects.Compile(req.Settings)
	j.container = video.ContainerFor(j.chain.Output.Format)
	j.duration = j.chain.OutputDuration(meta.Duration)

	for _, u := range j.chain.Unsupported {
		j.warnings = append(j.warnings, u.String())
	}
	if j.chain.Subtitle != nil && j.container.SubtitleCodec == "" {
		j.warnings = append(j.warnings, fmt.Sprintf("%s cannot carry a subtitle track; caption dropped", j.container.Format))
	}
	if len(j.chain.Unsupported) > 0 && b.strict {
		return j, cleanup, types.NewError(types.ErrUnsupportedOperation, "compile", nil, strings.Join(j.warnings, "\n"))
	}
	for _, w := range j.warnings {
		j.logger.Warn().Msg("[!] " + w)
	}

	if j.chain.Subtitle != nil && j.container.SubtitleCodec != "" {
		path := filepath.Join(b.tempDir, "videdit_"+j.id+".srt")
		f, err := os.Create(path)
		if err != nil {
			return j, cleanup, fmt.Errorf("create subtitle file: %w", err)
		}
		err = renderer.WriteSRT(f, j.chain.Subtitle.Text, j.duration)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return j, cleanup, fmt.Errorf("write subtitle file: %w", err)
		}
		j.subtitle = path
	}

	if req.OutputPath != "" {
		j.partial = req.OutputPath + ".partial"
	}
	cleanup = func() {
		if j.subtitle != "" {
			os.Remove(j.subtitle)
		}
		if j.partial != "" {
			// Removes the partial file unless commit already renamed it.
			os.Remove(j.partial)
		}
	}

	j.logger.Info().
		Str("input", req.InputPath).
		Str("output", req.OutputPath).
		Float64("duration", j.duration).
		Int("ops", len(j.chain.Ops)).
		Msg("[*] export started")
	return j, cleanup, nil
}

// commit moves the finished partial file into place and builds the artifact.
func (j *job) commit(data []byte, duration float64, truncated bool) (*types.Artifact, error) {
	a := &types.Artifact{
		RequestID: j.id,
		MIME:      j.container.MIME,
		Container: string(j.container.Format),
		Duration:  duration,
		Truncated: truncated,
		Warnings:  j.warnings,
	}
	if j.partial == "" {
		a.Bytes = data
	} else {
		if err := os.Rename(j.partial, j.req.OutputPath); err != nil {
			return nil, types.NewError(types.ErrEncode, "commit output", err, j.req.OutputPath)
		}
		a.Path = j.req.OutputPath
	}
	j.progress.done()
	j.logger.Info().Float64("duration", duration).Bool("truncated", truncated).Msg("[*] export finished")
	return a, nil
}

// fail reports err as the terminal event and returns it.
func (j *job) fail(err error) error {
	j.progress.fail()
	j.logger.Error().Err(err).Msg("[!] export failed")
	return err
}

// encodeError tags an ffmpeg failure; cancellation passes through unchanged.
func encodeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}
	return types.NewError(types.ErrEncode, op, err, ffmpeg.Diagnostic(err))
}
