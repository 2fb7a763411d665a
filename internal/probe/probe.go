package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/types"
)

// Mode selects how much a prober looks inside the file.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeDeep    Mode = "deep"
	ModeShallow Mode = "shallow"
)

// Prober reads VideoMetadata for a path.
type Prober interface {
	Probe(ctx context.Context, path string) (types.VideoMetadata, error)
}

// New returns the prober for mode. Auto picks Deep when an executor with
// ffprobe is available.
func New(mode Mode, exec *ffmpeg.Executor) (Prober, error) {
	switch mode {
	case ModeDeep:
		if exec == nil || exec.FFprobePath() == "" {
			return nil, fmt.Errorf("deep probing needs ffprobe")
		}
		return &Deep{exec: exec}, nil
	case ModeShallow:
		return Shallow{}, nil
	case ModeAuto, "":
		if exec != nil && exec.FFprobePath() != "" {
			return &Deep{exec: exec}, nil
		}
		return Shallow{}, nil
	}
	return nil, fmt.Errorf("unknown probe mode %q", mode)
}

// allowedContainers is the set of inputs accepted at the boundary.
var allowedContainers = map[string]bool{"mp4": true, "mkv": true, "avi": true, "webm": true, "mov": true}

// AllowedContainer reports whether path has an accepted video extension.
func AllowedContainer(path string) bool {
	return allowedContainers[extFormat(path)]
}

func extFormat(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func stat(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, types.NewError(types.ErrSourceNotFound, "probe", err, path)
		}
		return nil, types.NewError(types.ErrSource, "probe", err, path)
	}
	if fi.IsDir() {
		return nil, types.NewError(types.ErrSourceNotFound, "probe", fmt.Errorf("is a directory"), path)
	}
	return fi, nil
}

// Shallow fills metadata from the filesystem only. Duration stays 0.
type Shallow struct{}

func (Shallow) Probe(_ context.Context, path string) (types.VideoMetadata, error) {
	fi, err := stat(path)
	if err != nil {
		return types.VideoMetadata{}, err
	}
	return types.VideoMetadata{
		Name:   filepath.Base(path),
		Path:   path,
		Size:   fi.Size(),
		Format: extFormat(path),
	}, nil
}

// Deep reads container and stream metadata with ffprobe.
type Deep struct {
	exec *ffmpeg.Executor
}

func (d *Deep) Probe(ctx context.Context, path string) (types.VideoMetadata, error) {
	fi, err := stat(path)
	if err != nil {
		return types.VideoMetadata{}, err
	}
	out, err := d.exec.Probe(ctx,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		detail := path
		var exitErr *ffmpeg.ExitError
		if errors.As(err, &exitErr) && exitErr.Diagnostic != "" {
			detail = exitErr.Diagnostic
		}
		return types.VideoMetadata{}, types.NewError(types.ErrProbe, "ffprobe", err, detail)
	}
	md, err := ParseFFprobe(out)
	if err != nil {
		return types.VideoMetadata{}, types.NewError(types.ErrProbe, "ffprobe", err, path)
	}
	md.Name = filepath.Base(path)
	md.Path = path
	if md.Size == 0 {
		md.Size = fi.Size()
	}
	if md.Format == "" {
		md.Format = extFormat(path)
	}
	return md, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// ParseFFprobe converts `ffprobe -print_format json` output. Name and Path are left empty.
func ParseFFprobe(data []byte) (types.VideoMetadata, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return types.VideoMetadata{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var md types.VideoMetadata
	if name, _, _ := strings.Cut(probe.Format.FormatName, ","); name != "" {
		md.Format = strings.ToLower(name)
	}
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && dur > 0 {
		md.Duration = dur
	}
	if size, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
		md.Size = size
	}

	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if md.Width == 0 {
				md.Width, md.Height = s.Width, s.Height
			}
			if md.Duration == 0 {
				if dur, err := strconv.ParseFloat(s.Duration, 64); err == nil && dur > 0 {
					md.Duration = dur
				}
			}
		case "audio":
			md.HasAudio = true
		}
	}
	return md, nil
}
