package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ivlev/videdit/internal/audio"
	"github.com/ivlev/videdit/internal/config"
	"github.com/ivlev/videdit/internal/effects"
	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/logging"
	"github.com/ivlev/videdit/internal/probe"
	"github.com/ivlev/videdit/internal/renderer"
	"github.com/ivlev/videdit/internal/settings"
	"github.com/ivlev/videdit/internal/transcribe"
	"github.com/ivlev/videdit/internal/types"
)

var probeCmd = &cobra.Command{
	Use:   "probe [input video]",
	Short: "Print the metadata of a clip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		mode, _ := cmd.Flags().GetString("mode")
		if mode == "" {
			mode = cfg.Probe.Mode
		}
		var exec *ffmpeg.Executor
		if probe.Mode(mode) != probe.ModeShallow {
			exec, _ = executor(cmd)
		}
		prober, err := probe.New(probe.Mode(mode), exec)
		if err != nil {
			return err
		}
		meta, err := prober.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printYAML(meta)
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Show the operations and ffmpeg filters a settings document compiles to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := editSettings(cmd)
		if err != nil {
			return err
		}
		chain := effects.Compile(s)
		opts := renderer.FilterOptions{FontFile: config.FromContext(cmd.Context()).FFmpeg.FontFile}
		return printYAML(describeChain(chain, opts))
	},
}

var audioCmd = &cobra.Command{
	Use:   "audio [input video]",
	Short: "Extract mono 16 kHz WAV for transcription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := extractAudio(cmd, args[0])
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".wav"
		}
		if err := a.WriteFile(out); err != nil {
			return err
		}
		log.Info().Str("output", out).Float64("duration", a.Duration).Bool("degraded", a.Degraded).Msg("[+] audio extracted")
		return nil
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [input video or wav]",
	Short: "Transcribe the audio of a clip into word timestamps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.FromContext(cmd.Context())
		if p, _ := cmd.Flags().GetString("provider"); p != "" {
			cfg.Transcribe.Provider = p
		}
		if l, _ := cmd.Flags().GetString("language"); l != "" {
			cfg.Transcribe.Language = l
		}

		var a *audio.Artifact
		if strings.EqualFold(filepath.Ext(args[0]), ".wav") {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return types.NewError(types.ErrSourceNotFound, "read wav", err, args[0])
			}
			a = &audio.Artifact{Data: data}
		} else {
			var err error
			if a, err = extractAudio(cmd, args[0]); err != nil {
				return err
			}
		}

		tr, err := transcribe.New(cfg.Transcribe, cfg.TempDir, logging.WithComponent("transcribe"))
		if err != nil {
			return err
		}
		res, err := transcribe.Artifact(cmd.Context(), tr, a)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, word := range res.Sorted() {
			fmt.Fprintf(w, "%8.2f %8.2f  %s\n", word.Start, word.End, word.Word)
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().String("mode", "", "auto, deep or shallow (overrides config)")

	addEditFlags(compileCmd)

	audioCmd.Flags().StringP("output", "o", "", "output WAV path (default: <input>.wav)")
	for _, c := range []*cobra.Command{audioCmd, transcribeCmd} {
		c.Flags().Float64("trim-start", 0, "trim start (seconds)")
		c.Flags().Float64("trim-end", 0, "trim end (seconds, 0 = to the end)")
		c.Flags().String("audio-mode", "", "delegated or capture (overrides config)")
	}

	transcribeCmd.Flags().String("provider", "", "whispercpp or openai (overrides config)")
	transcribeCmd.Flags().String("language", "", "spoken language, e.g. en (default: auto)")
}

func extractAudio(cmd *cobra.Command, input string) (*audio.Artifact, error) {
	if !probe.AllowedContainer(input) {
		return nil, fmt.Errorf("%s: unsupported input container", input)
	}
	cfg := config.FromContext(cmd.Context())
	mode, _ := cmd.Flags().GetString("audio-mode")
	if mode == "" {
		mode = cfg.Audio.Mode
	}
	start, _ := cmd.Flags().GetFloat64("trim-start")
	end, _ := cmd.Flags().GetFloat64("trim-end")

	var trim *effects.TrimRange
	if t, ok := trimWindow(start, end); ok {
		trim = &t
	}
	exec, _ := executor(cmd)
	ex := audio.New(audio.Mode(mode), exec, logging.WithComponent("audio"))
	return ex.Extract(cmd.Context(), input, trim)
}

// trimWindow applies the same trim rule as export settings.
func trimWindow(start, end float64) (effects.TrimRange, bool) {
	s := settings.Default()
	s.Video.TrimStart, s.Video.TrimEnd = start, end
	return effects.Compile(s).Trim()
}

// chainView is the printable form of a compiled chain.
type chainView struct {
	Operations  []opView `yaml:"operations"`
	VideoFilter string   `yaml:"video_filter,omitempty"`
	AudioFilter string   `yaml:"audio_filter,omitempty"`
	Subtitle    string   `yaml:"subtitle,omitempty"`
	Output      outView  `yaml:"output"`
	Unsupported []string `yaml:"unsupported,omitempty"`
}

type opView struct {
	Kind   effects.Kind      `yaml:"kind"`
	Params effects.Operation `yaml:"params,omitempty"`
}

type outView struct {
	Format    string `yaml:"format"`
	FrameRate int    `yaml:"frame_rate"`
	Bitrate   int    `yaml:"bitrate"`
	Muted     bool   `yaml:"muted,omitempty"`
}

func describeChain(chain effects.Chain, opts renderer.FilterOptions) chainView {
	v := chainView{
		VideoFilter: renderer.VideoFilter(chain, opts),
		AudioFilter: renderer.AudioFilter(chain),
		Output: outView{
			Format:    string(chain.Output.Format),
			FrameRate: chain.Output.FrameRate,
			Bitrate:   chain.Output.Bitrate,
			Muted:     chain.Muted(),
		},
	}
	for _, op := range chain.Ops {
		v.Operations = append(v.Operations, opView{Kind: op.Kind(), Params: op})
	}
	if chain.Subtitle != nil {
		v.Subtitle = chain.Subtitle.Text
	}
	for _, u := range chain.Unsupported {
		v.Unsupported = append(v.Unsupported, u.String())
	}
	return v
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
