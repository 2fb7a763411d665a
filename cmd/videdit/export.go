package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ivlev/videdit/internal/config"
	"github.com/ivlev/videdit/internal/engine"
	"github.com/ivlev/videdit/internal/logging"
	"github.com/ivlev/videdit/internal/probe"
	"github.com/ivlev/videdit/internal/settings"
	"github.com/ivlev/videdit/internal/types"
)

var exportCmd = &cobra.Command{
	Use:   "export [input video]",
	Short: "Apply edit settings and export a new video",
	Long: `Applies a settings document (--settings) plus any override flags to the input
and writes the result. "-o -" writes the encoded bytes to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	addEditFlags(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "output path (default: <input>_edited.<format>)")
	exportCmd.Flags().String("backend", "", "auto, delegated or frameloop (overrides config)")
	exportCmd.Flags().Bool("strict", false, "fail on settings no backend can apply")
	exportCmd.Flags().String("save-settings", "", "write the effective settings document here")
}

// addEditFlags registers the settings document flag and the per-field overrides
// shared by export and compile.
func addEditFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("settings", "s", "", "settings YAML document")

	f.Float64("trim-start", 0, "trim start (seconds)")
	f.Float64("trim-end", 0, "trim end (seconds, 0 = to the end)")
	f.Float64("rate", 1, "playback rate")
	f.Float64("rotate", 0, "rotation (degrees, clockwise)")
	f.Float64("scale", 1, "scale factor")
	f.Float64("brightness", 0, "brightness -1..1")
	f.Float64("contrast", 0, "contrast -1..1")
	f.Float64("saturation", 1, "saturation 0..2")

	f.String("caption", "", "caption text")
	f.Float64("font-size", 32, "caption font size (px)")
	f.String("color", "#ffffff", "caption colour")
	f.String("position", "bottom", "caption position: top, middle, bottom")
	f.String("align", "center", "caption alignment: left, center, right")
	f.String("background", "", "caption band colour, e.g. rgba(0,0,0,0.7); \"none\" disables it")
	f.Bool("sidecar", false, "store the caption as a subtitle track instead of burning it in")

	f.Float64("volume", 1, "audio volume multiplier")
	f.Float64("tempo", 1, "audio tempo multiplier")
	f.Bool("mute", false, "drop the audio track")

	f.String("format", "", "output format: mp4, mkv, avi, webm")
	f.String("quality", "", "quality tier: 720p, 1080p, 4k")
	f.Int("fps", 0, "output frame rate: 30 or 60")
}

// editSettings loads --settings (or defaults) and applies every override flag
// the user actually set.
func editSettings(cmd *cobra.Command) (settings.EditSettings, error) {
	s := settings.Default()
	if path, _ := cmd.Flags().GetString("settings"); path != "" {
		loaded, err := settings.Load(path)
		if err != nil {
			return s, err
		}
		s = loaded
	}
	if err := applyOverrides(cmd, &s); err != nil {
		return s, err
	}
	return s, s.Validate()
}

func applyOverrides(cmd *cobra.Command, s *settings.EditSettings) error {
	f := cmd.Flags()
	num := func(name string, dst *float64) {
		if f.Changed(name) {
			*dst, _ = f.GetFloat64(name)
		}
	}
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}

	num("trim-start", &s.Video.TrimStart)
	num("trim-end", &s.Video.TrimEnd)
	num("rate", &s.Video.PlaybackRate)
	num("rotate", &s.Video.Rotation)
	num("scale", &s.Video.Scale)
	num("brightness", &s.Video.Brightness)
	num("contrast", &s.Video.Contrast)
	num("saturation", &s.Video.Saturation)

	str("caption", &s.Text.CaptionText)
	num("font-size", &s.Text.FontSize)
	str("color", &s.Text.Color)
	str("background", &s.Text.Background)
	if strings.EqualFold(s.Text.Background, "none") {
		s.Text.Background = ""
	}
	if f.Changed("position") {
		v, _ := f.GetString("position")
		s.Text.Position = settings.Position(strings.ToLower(v))
	}
	if f.Changed("align") {
		v, _ := f.GetString("align")
		s.Text.Alignment = settings.Alignment(strings.ToLower(v))
	}
	if f.Changed("sidecar") {
		sidecar, _ := f.GetBool("sidecar")
		s.Export.EmbedCaptions = !sidecar
	}

	num("volume", &s.Audio.Volume)
	num("tempo", &s.Audio.Tempo)
	if f.Changed("mute") {
		s.Audio.RemoveAudio, _ = f.GetBool("mute")
	}

	if f.Changed("format") {
		v, _ := f.GetString("format")
		s.Export.Format = settings.Format(strings.ToLower(strings.TrimPrefix(v, ".")))
	}
	if f.Changed("quality") {
		v, _ := f.GetString("quality")
		s.Export.Quality = settings.Quality(strings.ToLower(v))
	}
	if f.Changed("fps") {
		fps, _ := f.GetInt("fps")
		if fps != 30 && fps != 60 {
			return fmt.Errorf("--fps must be 30 or 60, got %d", fps)
		}
		s.Export.FrameRate = fps
	}
	return nil
}

// defaultOutput puts the export next to the input.
func defaultOutput(input string, format settings.Format) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_edited." + string(format)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg := *config.FromContext(cmd.Context())
	input := args[0]
	if !probe.AllowedContainer(input) {
		return fmt.Errorf("%s: unsupported input container (want mp4, mkv, avi, webm or mov)", input)
	}

	s, err := editSettings(cmd)
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("save-settings"); path != "" {
		if err := settings.Save(s, path); err != nil {
			return err
		}
	}
	if b, _ := cmd.Flags().GetString("backend"); b != "" {
		cfg.Engine.Backend = b
	}
	if strict, _ := cmd.Flags().GetBool("strict"); strict {
		cfg.Engine.StrictUnsupported = true
	}

	output, _ := cmd.Flags().GetString("output")
	toStdout := output == "-"
	switch {
	case toStdout:
		output = ""
	case output == "":
		output = defaultOutput(input, s.Export.Format)
	}

	exec, caps := executor(cmd)
	if exec == nil {
		return fmt.Errorf("export needs ffmpeg")
	}
	prober, err := probe.New(probe.Mode(cfg.Probe.Mode), exec)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg, engine.Deps{
		Runner: exec,
		Prober: prober,
		Caps:   caps,
		Logger: logging.WithComponent("engine"),
	})
	if err != nil {
		return err
	}
	log.Info().Str("backend", eng.Name()).Str("input", input).Msg("[*] exporting")

	ctx := cmd.Context()
	if cfg.Engine.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Engine.Timeout)
		defer cancel()
	}

	artifact, err := eng.Execute(ctx, engine.Request{InputPath: input, OutputPath: output, Settings: s}, printProgress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	return report(artifact, toStdout)
}

func printProgress(p engine.Progress) {
	fmt.Fprintf(os.Stderr, "\r[*] %-10s %5.1f%%", p.Stage, p.Percent)
}

func report(a *types.Artifact, toStdout bool) error {
	for _, w := range a.Warnings {
		log.Warn().Msg("[!] " + w)
	}
	if toStdout {
		_, err := os.Stdout.Write(a.Bytes)
		return err
	}
	ev := log.Info().
		Str("request_id", a.RequestID).
		Str("output", a.Path).
		Str("mime", a.MIME).
		Float64("duration", a.Duration)
	if a.Truncated {
		ev = ev.Bool("truncated", true)
	}
	ev.Msg("[+] export finished")
	return nil
}
