package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	TempDir string `yaml:"temp_dir"`

	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Engine     EngineConfig     `yaml:"engine"`
	Probe      ProbeConfig      `yaml:"probe"`
	Audio      AudioConfig      `yaml:"audio"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ProbePath  string `yaml:"probe_path"`
	Threads    int    `yaml:"threads"` // 0 = one per CPU
	// FontFile is handed to drawtext; needed when ffmpeg lacks fontconfig.
	FontFile string `yaml:"font_file"`
}

type EngineConfig struct {
	Backend           string        `yaml:"backend"` // auto | delegated | frameloop
	StrictUnsupported bool          `yaml:"strict_unsupported"`
	Timeout           time.Duration `yaml:"timeout"` // 0 = none
	QueueDepth        int           `yaml:"queue_depth"`
}

type ProbeConfig struct {
	Mode string `yaml:"mode"` // auto | deep | shallow
}

type AudioConfig struct {
	Mode string `yaml:"mode"` // delegated | capture
}

type TranscribeConfig struct {
	Provider string `yaml:"provider"` // whispercpp | openai
	Language string `yaml:"language"`

	WhisperBinary string `yaml:"whisper_binary"`
	WhisperModel  string `yaml:"whisper_model"`

	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"-"`
}

// Load reads configuration from file or returns defaults. Environment
// variables override the file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		TempDir: os.TempDir(),
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
		},
		Engine: EngineConfig{
			Backend:    "auto",
			Timeout:    2 * time.Hour,
			QueueDepth: 0,
		},
		Probe: ProbeConfig{Mode: "auto"},
		Audio: AudioConfig{Mode: "delegated"},
		Transcribe: TranscribeConfig{
			Provider:      "whispercpp",
			WhisperBinary: "whisper-cli",
			WhisperModel:  "models/ggml-base.bin",
			BaseURL:       "https://api.openai.com/v1",
			Model:         "whisper-1",
		},
	}
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.FFmpeg.BinaryPath, "VIDEDIT_FFMPEG")
	set(&c.FFmpeg.ProbePath, "VIDEDIT_FFPROBE")
	set(&c.Engine.Backend, "VIDEDIT_BACKEND")
	set(&c.Transcribe.WhisperModel, "WHISPER_MODEL")
	set(&c.Transcribe.BaseURL, "OPENAI_BASE_URL")
	set(&c.Transcribe.APIKey, "OPENAI_API_KEY")
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case "auto", "delegated", "frameloop":
	default:
		return fmt.Errorf("engine.backend %q is not auto, delegated or frameloop", c.Engine.Backend)
	}
	switch c.Probe.Mode {
	case "auto", "deep", "shallow":
	default:
		return fmt.Errorf("probe.mode %q is not auto, deep or shallow", c.Probe.Mode)
	}
	switch c.Audio.Mode {
	case "delegated", "capture":
	default:
		return fmt.Errorf("audio.mode %q is not delegated or capture", c.Audio.Mode)
	}
	switch c.Transcribe.Provider {
	case "whispercpp", "openai":
	default:
		return fmt.Errorf("transcribe.provider %q is not whispercpp or openai", c.Transcribe.Provider)
	}
	if c.FFmpeg.Threads < 0 || c.Engine.QueueDepth < 0 {
		return fmt.Errorf("ffmpeg.threads and engine.queue_depth must not be negative")
	}
	return nil
}

func findConfigFile() string {
	candidates := []string{
		"./videdit.yaml",
		"./videdit.yml",
		filepath.Join(os.Getenv("HOME"), ".videdit", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context, falling back to defaults.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
