package system

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Capabilities describes the local ffmpeg build and machine.
type Capabilities struct {
	FFmpegPath      string
	FFprobePath     string
	Filters         map[string]bool
	Encoders        map[string]bool
	H264Encoder     string
	CPUs            int
	TotalMemory     uint64
	AvailableMemory uint64
}

var (
	decodeOnce sync.Once
	decodeCtx  *Capabilities

	binMu       sync.Mutex
	ffmpegBin   = "ffmpeg"
	ffprobeBin  = "ffprobe"
	detectLimit = 10 * time.Second
)

// SetBinaries overrides the ffmpeg/ffprobe names or paths. It only has an
// effect before the first DecodeContext call.
func SetBinaries(ffmpeg, ffprobe string) {
	binMu.Lock()
	defer binMu.Unlock()
	if ffmpeg != "" {
		ffmpegBin = ffmpeg
	}
	if ffprobe != "" {
		ffprobeBin = ffprobe
	}
}

// DecodeContext возвращает общий для процесса контекст декодирования.
// Инициализируется лениво один раз и живёт до конца процесса, закрывать его не нужно.
func DecodeContext() *Capabilities {
	decodeOnce.Do(func() {
		binMu.Lock()
		ff, fp := ffmpegBin, ffprobeBin
		binMu.Unlock()
		decodeCtx = Detect(ff, fp)
		log.Debug().
			Str("component", "system").
			Str("ffmpeg", decodeCtx.FFmpegPath).
			Str("ffprobe", decodeCtx.FFprobePath).
			Str("h264", decodeCtx.H264Encoder).
			Int("filters", len(decodeCtx.Filters)).
			Int("cpus", decodeCtx.CPUs).
			Msg("decode context initialised")
	})
	return decodeCtx
}

// Detect probes binaries and hardware without caching the result.
func Detect(ffmpeg, ffprobe string) *Capabilities {
	c := &Capabilities{
		Filters:  map[string]bool{},
		Encoders: map[string]bool{},
		CPUs:     1,
	}
	if p, err := exec.LookPath(ffmpeg); err == nil {
		c.FFmpegPath = p
	}
	if p, err := exec.LookPath(ffprobe); err == nil {
		c.FFprobePath = p
	}

	if c.FFmpegPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), detectLimit)
		defer cancel()
		if out, err := exec.CommandContext(ctx, c.FFmpegPath, "-hide_banner", "-filters").Output(); err == nil {
			c.Filters = ParseFilters(string(out))
		}
		if out, err := exec.CommandContext(ctx, c.FFmpegPath, "-hide_banner", "-encoders").Output(); err == nil {
			c.Encoders = ParseEncoders(string(out))
		}
	}
	c.H264Encoder = BestH264Encoder(c.Encoders)

	if n, err := cpu.Counts(true); err == nil && n > 0 {
		c.CPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		c.TotalMemory = vm.Total
		c.AvailableMemory = vm.Available
	}
	return c
}

func (c *Capabilities) HasFFmpeg() bool  { return c.FFmpegPath != "" }
func (c *Capabilities) HasFFprobe() bool { return c.FFprobePath != "" }

// SupportsFilters reports whether every named filter is compiled in.
func (c *Capabilities) SupportsFilters(names ...string) bool {
	if !c.HasFFmpeg() {
		return false
	}
	for _, n := range names {
		if !c.Filters[n] {
			return false
		}
	}
	return true
}

// MissingFilters lists the names from the argument that are not available.
func (c *Capabilities) MissingFilters(names ...string) []string {
	var out []string
	for _, n := range names {
		if !c.Filters[n] {
			out = append(out, n)
		}
	}
	return out
}

// FrameQueueDepth sizes the encoder queue so buffered frames stay under
// 1/16 of available memory, between 2 and 16 frames.
func (c *Capabilities) FrameQueueDepth(frameBytes int) int {
	const lo, hi = 2, 16
	if frameBytes <= 0 || c.AvailableMemory == 0 {
		return 4
	}
	n := int(c.AvailableMemory / 16 / uint64(frameBytes))
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

var (
	filterLine  = regexp.MustCompile(`^\s*[T.][S.][C.]\s+(\S+)\s+\S+->\S+`)
	encoderLine = regexp.MustCompile(`^\s*[VAS][F.][S.][X.][B.][D.]\s+(\S+)`)
)

// ParseFilters extracts filter names from `ffmpeg -filters`.
func ParseFilters(out string) map[string]bool {
	return parseNames(out, filterLine)
}

// ParseEncoders extracts encoder names from `ffmpeg -encoders`.
func ParseEncoders(out string) map[string]bool {
	return parseNames(out, encoderLine)
}

func parseNames(out string, re *regexp.Regexp) map[string]bool {
	names := map[string]bool{}
	for _, line := range strings.Split(out, "\n") {
		if m := re.FindStringSubmatch(line); m != nil && m[1] != "=" {
			names[m[1]] = true
		}
	}
	return names
}

// BestH264Encoder выбирает аппаратный энкодер, если он есть.
// Приоритеты:
// 1. MacOS (VideoToolbox)
// 2. NVIDIA (NVENC)
// 3. Software (libx264)
func BestH264Encoder(encoders map[string]bool) string {
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if encoders[name] {
			return name
		}
	}
	return "libx264"
}

// InitResourceLimits raises the open-file limit; every export holds several pipes and temp files.
func InitResourceLimits() {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn().Err(err).Msg("[!] could not read open-file limit")
		return
	}
	if rLimit.Cur >= 2048 {
		return
	}
	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Warn().Err(err).Msg("[!] could not raise open-file limit")
		return
	}
	log.Debug().Uint64("limit", uint64(rLimit.Cur)).Msg("open-file limit raised")
}
