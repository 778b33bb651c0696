package playback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRefillBatch, cfg.RefillBatch)
	assert.Equal(t, 48000, cfg.OutputSampleRate)
	assert.Equal(t, 2, cfg.OutputChannels)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, "playback.yaml", `
refill_batch: 4
output_sample_rate: 44100
output_channels: 1
video_provider: ffmpeg
flush_timeout: 2s
log_level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.RefillBatch)
	assert.Equal(t, 44100, cfg.OutputSampleRate)
	assert.Equal(t, 1, cfg.OutputChannels)
	assert.Equal(t, "ffmpeg", cfg.VideoProvider)
	assert.Equal(t, "auto", cfg.AudioProvider, "unset keys keep defaults")
	assert.Equal(t, 2*time.Second, cfg.FlushTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_EmptyPathAndEmptyFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfig(writeConfig(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_Strict(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		errText string
	}{
		{name: "unknown key", file: "c.yaml", content: "refil_batch: 3\n", errText: "strict config parse error"},
		{name: "multiple documents", file: "c.yaml", content: "refill_batch: 3\n---\nrefill_batch: 4\n", errText: "multiple documents"},
		{name: "not yaml", file: "c.json", content: "{}", errText: "only YAML supported"},
		{name: "invalid value", file: "c.yaml", content: "output_channels: 0\n", errText: "output_channels must be in [1, 8]"},
		{name: "unknown provider", file: "c.yaml", content: "audio_provider: gstreamer\n", errText: `unknown provider "gstreamer"`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			assert.ErrorContains(t, err, tt.errText)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PLAYBACK_REFILL_BATCH", "7")
	t.Setenv("PLAYBACK_FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("PLAYBACK_FLUSH_TIMEOUT", "750ms")
	t.Setenv("PLAYBACK_OUTPUT_CHANNELS", "two") // ignored

	cfg, err := LoadConfig(writeConfig(t, "c.yaml", "refill_batch: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.RefillBatch, "environment wins over the file")
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 750*time.Millisecond, cfg.FlushTimeout)
	assert.Equal(t, DefaultOutputChannels, cfg.OutputChannels)
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.RefillBatch = 0
	cfg.OutputSampleRate = 100
	cfg.FFmpegPath = " "
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"invalid config", "refill_batch", "output_sample_rate", "ffmpeg_path", "log_level"} {
		assert.ErrorContains(t, err, want)
	}
}

func TestConfig_Providers(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.VideoProvider = " OpenH264 "
	p, err := cfg.videoProvider()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenH264, p)

	cfg.AudioProvider = ""
	p, err = cfg.audioProvider()
	require.NoError(t, err)
	assert.Equal(t, ProviderAuto, p)
}
