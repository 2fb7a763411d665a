package engine

import (
	"bytes"
	"context"
	"strconv"

	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/renderer"
	"github.com/ivlev/videdit/internal/types"
	"github.com/ivlev/videdit/internal/video"
)

// Delegated hands the whole edit to one ffmpeg filter-graph invocation.
// Cancelling the context kills ffmpeg; there is no other way to stop it.
type Delegated struct {
	*base
}

func (d *Delegated) Name() string { return BackendDelegated }

func (d *Delegated) Execute(ctx context.Context, req Request, onProgress func(Progress)) (*types.Artifact, error) {
	j, cleanup, err := d.prepare(ctx, req, onProgress)
	defer cleanup()
	if err != nil {
		return nil, j.fail(err)
	}

	output := j.partial
	if output == "" {
		output = "pipe:1"
	}
	args := DelegatedArgs(j.chain, req.InputPath, j.container, j.subtitle, output, d.h264Encoder(), d.opts)
	j.logger.Debug().Strs("args", args).Msg("delegated encode")

	var out bytes.Buffer
	var lastOut float64
	opts := ffmpeg.RunOptions{
		Args: args,
		ProgressHandler: func(p ffmpeg.Progress) {
			sec := p.OutTime.Seconds()
			if sec > lastOut {
				lastOut = sec
			}
			if j.duration > 0 {
				j.progress.update(sec / j.duration * 100)
			}
		},
	}
	if j.partial == "" {
		opts.Stdout = &out
	}

	j.progress.stage(StageRendering)
	if err := d.deps.Runner.Run(ctx, opts); err != nil {
		return nil, j.fail(encodeError("delegated encode", err))
	}

	j.progress.stage(StageFinalize)
	duration := j.duration
	if duration == 0 {
		duration = lastOut
	}
	a, err := j.commit(out.Bytes(), duration, false)
	if err != nil {
		return nil, j.fail(err)
	}
	return a, nil
}

func (d *Delegated) h264Encoder() string {
	if d.deps.Caps != nil {
		return d.deps.Caps.H264Encoder
	}
	return ""
}

// DelegatedArgs builds the single ffmpeg command line for a chain: input-side
// trim, -vf/-af graphs, rate, bitrate, codecs and muxer.
func DelegatedArgs(chain effects.Chain, input string, c video.Container, subtitle, output, h264 string, opts renderer.FilterOptions) []string {
	var args []string
	if trim, ok := chain.Trim(); ok {
		if trim.Start > 0 {
			args = append(args, "-ss", strconv.FormatFloat(trim.Start, 'f', -1, 64))
		}
		if trim.Duration > 0 {
			args = append(args, "-t", strconv.FormatFloat(trim.Duration, 'f', -1, 64))
		}
	}
	args = append(args, "-i", input)
	withSubs := subtitle != "" && c.SubtitleCodec != ""
	if withSubs {
		args = append(args, "-i", subtitle)
	}

	muted := chain.Muted()
	args = append(args, "-map", "0:v:0")
	if !muted {
		args = append(args, "-map", "0:a:0?")
	}
	if withSubs {
		args = append(args, "-map", "1:s:0")
	}

	if vf := renderer.VideoFilter(chain, opts); vf != "" {
		args = append(args, "-vf", vf)
	}
	if af := renderer.AudioFilter(chain); af != "" {
		args = append(args, "-af", af)
	}

	args = append(args, "-r", strconv.Itoa(chain.Output.FrameRate))
	args = append(args, video.VideoCodecArgs(c, h264, chain.Output.Bitrate)...)
	if muted {
		args = append(args, "-an")
	} else {
		args = append(args, "-c:a", c.AudioCodec)
	}
	if withSubs {
		args = append(args, "-c:s", c.SubtitleCodec)
	}

	args = append(args, video.MuxArgs(c, output == "pipe:1")...)
	return append(args, output)
}
