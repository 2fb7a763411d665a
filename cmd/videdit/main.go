package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ivlev/videdit/internal/config"
	"github.com/ivlev/videdit/internal/ffmpeg"
	"github.com/ivlev/videdit/internal/logging"
	"github.com/ivlev/videdit/internal/system"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	_ = godotenv.Load() // best-effort: load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "[-]", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "videdit",
	Short:         "videdit - single-clip video editor",
	Long:          "Probes a clip, compiles edit settings into ffmpeg work and exports the result.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		system.SetBinaries(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
		system.InitResourceLimits()

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./videdit.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(audioCmd)
	rootCmd.AddCommand(transcribeCmd)
}

// executor resolves ffmpeg once. A missing ffmpeg is not an error here:
// shallow probing and capture placeholders still work without it.
func executor(cmd *cobra.Command) (*ffmpeg.Executor, *system.Capabilities) {
	caps := system.DecodeContext()
	if !caps.HasFFmpeg() {
		log.Warn().Msg("[!] ffmpeg not found; only shallow probing is available")
		return nil, caps
	}
	threads := config.FromContext(cmd.Context()).FFmpeg.Threads
	exec, err := ffmpeg.New(logging.WithComponent("ffmpeg"), caps.FFmpegPath, caps.FFprobePath, threads)
	if err != nil {
		log.Warn().Err(err).Msg("[!] ffmpeg unavailable")
		return nil, caps
	}
	return exec, caps
}
