package engine

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/videdit/internal/config"
	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/settings"
	"github.com/ivlev/videdit/internal/source"
	"github.com/ivlev/videdit/internal/system"
	"github.com/ivlev/videdit/internal/types"
	"github.com/ivlev/videdit/internal/video"
)

type fakeProber struct {
	meta types.VideoMetadata
	err  error
}

func (p fakeProber) Probe(_ context.Context, path string) (types.VideoMetadata, error) {
	if p.err != nil {
		return types.VideoMetadata{}, p.err
	}
	m := p.meta
	m.Path = path
	return m, nil
}

type fakeRunner struct {
	mu       sync.Mutex
	args     []string
	calls    int
	outTimes []time.Duration
	err      error
}

func (r *fakeRunner) Run(_ context.Context, opts ffmpeg.RunOptions) error {
	r.mu.Lock()
	r.args = opts.Args
	r.calls++
	r.mu.Unlock()

	for _, d := range r.outTimes {
		if opts.ProgressHandler != nil {
			opts.ProgressHandler(ffmpeg.Progress{OutTime: d})
		}
	}
	if r.err != nil {
		return r.err
	}
	if opts.Stdout != nil {
		_, err := opts.Stdout.Write([]byte("encoded"))
		return err
	}
	return os.WriteFile(opts.Args[len(opts.Args)-1], []byte("encoded"), 0644)
}

func (r *fakeRunner) argString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.args, " ")
}

type fakeEncoder struct {
	cfg      video.StreamConfig
	frames   int
	onFrame  func(n int)
	closeErr error
	aborted  bool
	closed   bool
}

func (e *fakeEncoder) Start(context.Context, func(ffmpeg.Progress)) error { return nil }

func (e *fakeEncoder) WriteFrame(img *image.RGBA) error {
	if img.Bounds().Dx() != e.cfg.Width || img.Bounds().Dy() != e.cfg.Height {
		return errors.New("frame size mismatch")
	}
	system.PutFrame(img)
	e.frames++
	if e.onFrame != nil {
		e.onFrame(e.frames)
	}
	return nil
}

func (e *fakeEncoder) Close() error {
	if e.closed {
		return e.closeErr
	}
	e.closed = true
	if e.closeErr == nil && e.cfg.OutputPath != "" && !e.aborted {
		return os.WriteFile(e.cfg.OutputPath, []byte("encoded"), 0644)
	}
	return e.closeErr
}

func (e *fakeEncoder) Abort() {
	e.aborted = true
	_ = e.Close()
}

func (e *fakeEncoder) Bytes() []byte { return []byte("frames") }

func fullCaps() *system.Capabilities {
	c := &system.Capabilities{FFmpegPath: "/usr/bin/ffmpeg", Filters: map[string]bool{}, H264Encoder: "libx264"}
	for _, f := range RequiredFilters {
		c.Filters[f] = true
	}
	return c
}

func testConfig(t *testing.T, backend string) config.Config {
	return config.Config{TempDir: t.TempDir(), Engine: config.EngineConfig{Backend: backend}}
}

var clipMeta = types.VideoMetadata{Name: "clip.mp4", Duration: 120, Format: "mov", Width: 64, Height: 36, HasAudio: true}

// progressLog records events and checks the stream invariants.
type progressLog struct {
	mu     sync.Mutex
	events []Progress
}

func (l *progressLog) add(p Progress) {
	l.mu.Lock()
	l.events = append(l.events, p)
	l.mu.Unlock()
}

func (l *progressLog) check(t *testing.T, wantDone bool) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		t.Fatal("no progress events")
	}
	for i := 1; i < len(l.events); i++ {
		if l.events[i].Percent < l.events[i-1].Percent {
			t.Fatalf("progress decreased at %d: %v", i, l.events)
		}
	}
	for _, e := range l.events {
		if e.Percent < 0 || e.Percent > 100 {
			t.Fatalf("progress out of range: %v", e)
		}
	}
	last := l.events[len(l.events)-1]
	if wantDone && (last.Stage != StageDone || last.Percent != 100) {
		t.Fatalf("last event %+v, want done at 100", last)
	}
	if !wantDone && last.Stage != StageFailed {
		t.Fatalf("last event %+v, want failed", last)
	}
}

func TestSelectBackend(t *testing.T) {
	if got := SelectBackend(fullCaps()); got != BackendDelegated {
		t.Errorf("full ffmpeg: got %s", got)
	}
	noText := fullCaps()
	delete(noText.Filters, "drawtext")
	if got := SelectBackend(noText); got != BackendFrameLoop {
		t.Errorf("no drawtext: got %s", got)
	}
	if got := SelectBackend(&system.Capabilities{}); got != BackendFrameLoop {
		t.Errorf("no ffmpeg: got %s", got)
	}
}

func TestNew(t *testing.T) {
	deps := Deps{Runner: &fakeRunner{}, Prober: fakeProber{meta: clipMeta}, Caps: fullCaps(), Logger: zerolog.Nop()}

	e, err := New(testConfig(t, BackendAuto), deps)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*Delegated); !ok {
		t.Errorf("auto with full ffmpeg: got %T", e)
	}

	// Without the executor the frame loop has nothing to decode or encode with.
	if _, err := New(testConfig(t, BackendFrameLoop), deps); err == nil {
		t.Error("frame loop over a plain runner should fail")
	}
	var nilExec *ffmpeg.Executor
	if _, err := New(testConfig(t, BackendFrameLoop), Deps{Runner: nilExec, Caps: fullCaps()}); err == nil {
		t.Error("frame loop over a nil executor should fail")
	}

	seams := deps
	seams.OpenSource = func(context.Context, string, source.Options) (source.Source, error) { return nil, errors.New("unused") }
	seams.NewEncoder = func(video.StreamConfig) FrameEncoder { return &fakeEncoder{} }
	e, err = New(testConfig(t, BackendFrameLoop), seams)
	if err != nil {
		t.Fatal(err)
	}
	if e.Name() != BackendFrameLoop {
		t.Errorf("got %s", e.Name())
	}

	if _, err := New(testConfig(t, BackendDelegated), Deps{Caps: fullCaps()}); err == nil {
		t.Error("delegated without ffmpeg should fail")
	}
	if _, err := New(testConfig(t, "gpu"), deps); err == nil {
		t.Error("unknown backend should fail")
	}
}

func newDelegated(t *testing.T, runner *fakeRunner, prober fakeProber) Engine {
	t.Helper()
	e, err := New(testConfig(t, BackendDelegated), Deps{Runner: runner, Prober: prober, Caps: fullCaps(), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestDelegatedScenarioA(t *testing.T) {
	runner := &fakeRunner{outTimes: []time.Duration{0, 10 * time.Second, 5 * time.Second, 30 * time.Second}}
	e := newDelegated(t, runner, fakeProber{meta: clipMeta})

	s := settings.Default()
	s.Video.TrimStart, s.Video.TrimEnd = 10, 40
	out := filepath.Join(t.TempDir(), "out.mp4")

	var log progressLog
	a, err := e.Execute(context.Background(), Request{InputPath: "clip.mp4", OutputPath: out, Settings: s}, log.add)
	if err != nil {
		t.Fatal(err)
	}
	log.check(t, true)

	args := runner.argString()
	if !strings.Contains(args, "-ss 10 -t 30 -i clip.mp4") {
		t.Errorf("trim not applied on input: %q", args)
	}
	if !strings.Contains(args, "-f mp4") || !strings.HasSuffix(args, out+".partial") {
		t.Errorf("output should go to the partial file: %q", args)
	}
	if a.Duration < 29.9 || a.Duration > 30.1 {
		t.Errorf("artifact duration = %v, want ~30", a.Duration)
	}
	if a.Path != out || a.MIME != "video/mp4" || a.RequestID == "" {
		t.Errorf("unexpected artifact %+v", a)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output missing: %v", err)
	}
	if _, err := os.Stat(out + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}
}

func TestDelegatedScenarioB(t *testing.T) {
	runner := &fakeRunner{}
	e := newDelegated(t, runner, fakeProber{meta: clipMeta})

	s := settings.Default()
	s.Audio.RemoveAudio = true
	s.Audio.Volume = 2
	s.Audio.Tempo = 1.5
	s.Video.PlaybackRate = 2

	if _, err := e.Execute(context.Background(), Request{InputPath: "clip.mp4", Settings: s}, nil); err != nil {
		t.Fatal(err)
	}
	args := runner.argString()
	if !strings.Contains(args, " -an ") {
		t.Errorf("muted export must drop audio: %q", args)
	}
	for _, bad := range []string{"0:a", "-af", "atempo", "-c:a"} {
		if strings.Contains(args, bad) {
			t.Errorf("muted export still references %q: %q", bad, args)
		}
	}
}

func TestDelegatedScenarioC(t *testing.T) {
	runner := &fakeRunner{}
	e := newDelegated(t, runner, fakeProber{meta: clipMeta})

	s := settings.Default()
	s.Text.CaptionText = "   "
	s.Text.Background = "rgba(0,0,0,0.9)"
	if _, err := e.Execute(context.Background(), Request{InputPath: "clip.mp4", Settings: s}, nil); err != nil {
		t.Fatal(err)
	}
	args := runner.argString()
	if strings.Contains(args, "drawtext") || strings.Contains(args, "drawbox") {
		t.Errorf("blank caption produced overlay filters: %q", args)
	}
}

func TestDelegatedInMemory(t *testing.T) {
	runner := &fakeRunner{}
	e := newDelegated(t, runner, fakeProber{meta: clipMeta})

	s := settings.Default()
	s.Export.Format = settings.FormatWebM
	a, err := e.Execute(context.Background(), Request{InputPath: "clip.mp4", Settings: s}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !a.InMemory() || string(a.Bytes) != "encoded" || a.MIME != "video/webm" {
		t.Errorf("unexpected artifact %+v", a)
	}
	if !strings.HasSuffix(runner.argString(), "-f webm pipe:1") {
		t.Errorf("in-memory export should write to stdout: %q", runner.argString())
	}
}

func TestDelegatedSidecarSubtitle(t *testing.T) {
	runner := &fakeRunner{}
	e := newDelegated(t, runner, fakeProber{meta: clipMeta})

	s := settings.Default()
	s.Text.CaptionText = "hello"
	s.Export.EmbedCaptions = false
	s.Export.Format = settings.FormatMKV
	if _, err := e.Execute(context.Background(), Request{InputPath: "clip.mp4", Settings: s}, nil); err != nil {
		t.Fatal(err)
	}
	args := runner.argString()
	if !strings.Contains(args, ".srt -map 0:v:0") || !strings.Contains(args, "-c:s srt") {
		t.Errorf("subtitle track missing: %q", args)
	}
	if strings.Contains(args, "drawtext") {
		t.Errorf("sidecar caption was burned in: %q", args)
	}
}

func TestDelegatedFailure(t *testing.T) {
	runner := &fakeRunner{
		outTimes: []time.Duration{3 * time.Second},
		err:      &ffmpeg.ExitError{Err: errors.New("exit status 1"), Diagnostic: "Unknown encoder"},
	}
	e := newDelegated(t, runner, fakeProber{meta: clipMeta})
	out := filepath.Join(t.TempDir(), "out.mp4")

	var log progressLog
	_, err := e.Execute(context.Background(), Request{InputPath: "clip.mp4", OutputPath: out, Settings: settings.Default()}, log.add)
	if !errors.Is(err, types.ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown encoder") {
		t.Errorf("diagnostic not carried: %v", err)
	}
	log.check(t, false)
	for _, p := range []string{out, out + ".partial"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist", p)
		}
	}
}

func TestStrictUnsupported(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig(t, BackendDelegated)
	cfg.Engine.StrictUnsupported = true
	e, err := New(cfg, Deps{Runner: runner, Prober: fakeProber{meta: clipMeta}, Caps: fullCaps(), Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	s := settings.Default()
	s.Audio.Echo = 0.5
	_, err = e.Execute(context.Background(), Request{InputPath: "clip.mp4", Settings: s}, nil)
	if !errors.Is(err, types.ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
	if runner.calls != 0 {
		t.Error("ffmpeg ran despite strict mode")
	}
}

func TestUnsupportedWarnings(t *testing.T) {
	e := newDelegated(t, &fakeRunner{}, fakeProber{meta: clipMeta})
	s := settings.Default()
	s.Audio.Equalizer = "bass"
	a, err := e.Execute(context.Background(), Request{InputPath: "clip.mp4", Settings: s}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Warnings) != 1 || !strings.Contains(a.Warnings[0], "audio.equalizer") {
		t.Errorf("warnings = %v", a.Warnings)
	}
}

func TestMissingSource(t *testing.T) {
	notFound := types.NewError(types.ErrSourceNotFound, "probe", os.ErrNotExist, "nope.mp4")
	e := newDelegated(t, &fakeRunner{}, fakeProber{err: notFound})
	var log progressLog
	_, err := e.Execute(context.Background(), Request{InputPath: "nope.mp4", Settings: settings.Default()}, log.add)
	if !errors.Is(err, types.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	log.check(t, false)

	e = newDelegated(t, &fakeRunner{}, fakeProber{err: errors.New("disk on fire")})
	if _, err := e.Execute(context.Background(), Request{InputPath: "x.mp4", Settings: settings.Default()}, nil); !errors.Is(err, types.ErrSource) {
		t.Fatalf("expected ErrSource, got %v", err)
	}
}

func TestTracker(t *testing.T) {
	var got []Progress
	tr := newTracker(func(p Progress) { got = append(got, p) })
	tr.stage(StageRendering)
	tr.update(10)
	tr.update(5)
	tr.update(250)
	tr.done()
	tr.fail()
	tr.update(50)

	want := []Progress{{0, StageRendering}, {10, StageRendering}, {100, StageRendering}, {100, StageDone}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDelegatedArgsLiteralCaption(t *testing.T) {
	tests := []struct {
		caption string
		want    string
	}{
		{"50% off", `text=50% off:expansion=none:`},
		{`C:\dir`, `text=C\\:\\\\dir:expansion=none:`},
		{"it's", `text=it\\\'s:expansion=none:`},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			s := settings.Identity()
			s.Text.CaptionText = tt.caption
			args := DelegatedArgs(effects.Compile(s), "in.mp4", video.ContainerFor(settings.FormatMP4), "", "out.mp4", "", rendererOpts())
			var vf string
			for i, a := range args {
				if a == "-vf" && i+1 < len(args) {
					vf = args[i+1]
				}
			}
			if !strings.Contains(vf, tt.want) {
				t.Errorf("-vf %q does not contain %q", vf, tt.want)
			}
		})
	}
}

func TestDelegatedArgsOrder(t *testing.T) {
	s := settings.Identity()
	s.Video.Brightness = 0.3
	s.Audio.Volume = 0.5
	chain := effects.Compile(s)
	args := strings.Join(DelegatedArgs(chain, "in.mkv", video.ContainerFor(settings.FormatMKV), "", "out.mkv.partial", "h264_nvenc", rendererOpts()), " ")
	want := "-i in.mkv -map 0:v:0 -map 0:a:0? -vf eq=brightness=0.3,scale=trunc(iw*1/2)*2:trunc(ih*1/2)*2 -af volume=0.5 -r 30 -c:v h264_nvenc"
	if !strings.HasPrefix(args, want) {
		t.Errorf("got  %q\nwant prefix %q", args, want)
	}
	if !strings.HasSuffix(args, "-c:a aac -f matroska out.mkv.partial") {
		t.Errorf("unexpected tail %q", args)
	}
}
