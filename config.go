package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thesyncim/playback/internal/ffmpeg"
	"github.com/thesyncim/playback/internal/log"
)

// Output format of every AudioSpan unless configured otherwise.
const (
	DefaultOutputSampleRate = 48000
	DefaultOutputChannels   = 2
)

// envPrefix prefixes every environment override, e.g. PLAYBACK_REFILL_BATCH.
const envPrefix = "PLAYBACK_"

// Config tunes an engine. The zero value is not valid; start from
// DefaultConfig or LoadConfig.
type Config struct {
	RefillBatch      int           `yaml:"refill_batch"`       // packets pulled per queue refill
	OutputSampleRate int           `yaml:"output_sample_rate"` // Hz
	OutputChannels   int           `yaml:"output_channels"`
	VideoProvider    string        `yaml:"video_provider"` // "", "auto", "openh264", "ffmpeg"
	AudioProvider    string        `yaml:"audio_provider"` // "", "auto", "libopus", "ffmpeg"
	FFmpegPath       string        `yaml:"ffmpeg_path"`
	FFprobePath      string        `yaml:"ffprobe_path"` // derived from FFmpegPath when empty
	FlushTimeout     time.Duration `yaml:"flush_timeout"`
	DecoderThreads   int           `yaml:"decoder_threads"` // 0 = decoder default
	LogLevel         string        `yaml:"log_level"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		RefillBatch:      DefaultRefillBatch,
		OutputSampleRate: DefaultOutputSampleRate,
		OutputChannels:   DefaultOutputChannels,
		VideoProvider:    "auto",
		AudioProvider:    "auto",
		FFmpegPath:       "ffmpeg",
		FlushTimeout:     DefaultFlushTimeout,
		LogLevel:         "info",
		MetricsNamespace: "playback",
	}
}

// LoadConfig returns DefaultConfig overlaid with the YAML file at path (if
// path is not empty) and then with PLAYBACK_* environment variables.
// Unknown YAML keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg, log.WithComponent("config"))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func applyEnv(cfg *Config, logger zerolog.Logger) {
	envInt(logger, "REFILL_BATCH", &cfg.RefillBatch)
	envInt(logger, "OUTPUT_SAMPLE_RATE", &cfg.OutputSampleRate)
	envInt(logger, "OUTPUT_CHANNELS", &cfg.OutputChannels)
	envString(logger, "VIDEO_PROVIDER", &cfg.VideoProvider)
	envString(logger, "AUDIO_PROVIDER", &cfg.AudioProvider)
	envString(logger, "FFMPEG_PATH", &cfg.FFmpegPath)
	envString(logger, "FFPROBE_PATH", &cfg.FFprobePath)
	envDuration(logger, "FLUSH_TIMEOUT", &cfg.FlushTimeout)
	envInt(logger, "DECODER_THREADS", &cfg.DecoderThreads)
	envString(logger, "LOG_LEVEL", &cfg.LogLevel)
	envString(logger, "METRICS_NAMESPACE", &cfg.MetricsNamespace)
}

func envString(logger zerolog.Logger, name string, dst *string) {
	key := envPrefix + name
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	logger.Debug().Str("key", key).Str("value", v).Str("source", "environment").Msg("using environment variable")
	*dst = v
}

func envInt(logger zerolog.Logger, name string, dst *int) {
	key := envPrefix + name
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Int("default", *dst).
			Msg("invalid integer in environment variable, using default")
		return
	}
	logger.Debug().Str("key", key).Int("value", i).Str("source", "environment").Msg("using environment variable")
	*dst = i
}

func envDuration(logger zerolog.Logger, name string, dst *time.Duration) {
	key := envPrefix + name
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Dur("default", *dst).
			Msg("invalid duration in environment variable, using default")
		return
	}
	logger.Debug().Str("key", key).Dur("value", d).Str("source", "environment").Msg("using environment variable")
	*dst = d
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if c.RefillBatch < 1 {
		errs = append(errs, fmt.Errorf("refill_batch must be >= 1, got %d", c.RefillBatch))
	}
	if c.OutputSampleRate < 8000 || c.OutputSampleRate > 192000 {
		errs = append(errs, fmt.Errorf("output_sample_rate must be in [8000, 192000], got %d", c.OutputSampleRate))
	}
	if c.OutputChannels < 1 || c.OutputChannels > 8 {
		errs = append(errs, fmt.Errorf("output_channels must be in [1, 8], got %d", c.OutputChannels))
	}
	if _, err := c.videoProvider(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.audioProvider(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.FFmpegPath) == "" {
		errs = append(errs, errors.New("ffmpeg_path must not be empty"))
	}
	if c.FlushTimeout <= 0 {
		errs = append(errs, fmt.Errorf("flush_timeout must be positive, got %s", c.FlushTimeout))
	}
	if c.DecoderThreads < 0 {
		errs = append(errs, fmt.Errorf("decoder_threads must be >= 0, got %d", c.DecoderThreads))
	}
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log_level: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// FFprobe returns the ffprobe binary to use.
func (c Config) FFprobe() string {
	return ffmpeg.ResolveFFprobe(c.FFprobePath, c.FFmpegPath)
}

func (c Config) videoProvider() (Provider, error) {
	return parseProviderField("video_provider", c.VideoProvider)
}
func (c Config) audioProvider() (Provider, error) {
	return parseProviderField("audio_provider", c.AudioProvider)
}

func parseProviderField(field, name string) (Provider, error) {
	p, ok := ParseProvider(strings.ToLower(strings.TrimSpace(name)))
	if !ok {
		return ProviderAuto, fmt.Errorf("%s: unknown provider %q", field, name)
	}
	return p, nil
}
