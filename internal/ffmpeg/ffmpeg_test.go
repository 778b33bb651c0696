package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestLineRing_KeepsLastLines(t *testing.T) {
	r := NewLineRing(3)
	_, _ = r.Write([]byte("one\ntwo\nthr"))
	_, _ = r.Write([]byte("ee\nfour\n\nfive"))

	assert.Equal(t, []string{"three", "four", "five"}, r.LastN(3))
	assert.Equal(t, []string{"two", "three", "four", "five"}, r.LastN(10), "partial line is reported")
}

func TestParseRational(t *testing.T) {
	tests := []struct {
		in       string
		num, den int
		wantErr  bool
	}{
		{"25/1", 25, 1, false},
		{"30000/1001", 30000, 1001, false},
		{"24", 24, 1, false},
		{"0/0", 0, 0, true},
		{"abc/1", 0, 0, true},
		{"25/-1", 0, 0, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			num, den, err := ParseRational(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.num, num)
			assert.Equal(t, tt.den, den)
		})
	}
}

func TestParseInfo(t *testing.T) {
	const out = `{
	  "streams": [
	    {"codec_type": "audio", "codec_name": "aac", "sample_rate": "44100", "channels": 2},
	    {"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720,
	     "avg_frame_rate": "0/0", "r_frame_rate": "30000/1001", "nb_frames": "375"}
	  ],
	  "format": {"format_name": "mov,mp4,m4a", "duration": "12.5"}
	}`
	var data ffprobeOutput
	require.NoError(t, json.Unmarshal([]byte(out), &data))

	info, err := parseInfo(&data)
	require.NoError(t, err)
	assert.Equal(t, "mov", info.Container)
	assert.Equal(t, 12.5, info.Duration)
	assert.Equal(t, VideoInfo{Codec: "h264", Width: 1280, Height: 720, RateNum: 30000, RateDen: 1001, NumFrames: 375}, info.Video)
	assert.True(t, info.HasAudio)
	assert.Equal(t, AudioInfo{Codec: "aac", SampleRate: 44100, Channels: 2}, info.Audio)
}

func TestParseInfo_NoVideo(t *testing.T) {
	_, err := parseInfo(&ffprobeOutput{})
	assert.ErrorIs(t, err, ErrNoVideo)
}

type fakeFileInfo struct {
	os.FileInfo
	dir bool
}

func (f fakeFileInfo) IsDir() bool { return f.dir }

func TestResolveFFprobe(t *testing.T) {
	exists := func(string) (os.FileInfo, error) { return fakeFileInfo{}, nil }
	missing := func(string) (os.FileInfo, error) { return nil, os.ErrNotExist }

	assert.Equal(t, "/opt/ffprobe", resolveFFprobe(" /opt/ffprobe ", "/usr/bin/ffmpeg", exists))
	assert.Equal(t, "/usr/local/bin/ffprobe", resolveFFprobe("", "/usr/local/bin/ffmpeg", exists))
	assert.Equal(t, "ffprobe", resolveFFprobe("", "/usr/local/bin/ffmpeg", missing))
	assert.Equal(t, "ffprobe", resolveFFprobe("", "ffmpeg", exists))
}

func TestCheckBinaries_Missing(t *testing.T) {
	err := CheckBinaries("definitely-not-a-real-binary-xyz")
	var missing *MissingBinariesError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"definitely-not-a-real-binary-xyz"}, missing.Binaries)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArgs(t *testing.T) {
	remux := RemuxArgs("in.mp4")
	assert.Contains(t, remux, "-nostdin")
	assert.Contains(t, remux, "0:v:0?")
	assert.Contains(t, remux, "0:a:0?")
	for _, a := range remux {
		assert.NotContains(t, a, "mp4toannexb", "codec-specific filters break HEVC and MPEG-2")
	}
	assert.NotContains(t, DecodeVideoArgs("h264", 2), "-nostdin")
	assert.Equal(t, []string{"-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1"},
		DecodeAudioArgs("aac", 48000, 2)[7:])
}

func TestProcess_PipesThroughCat(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, err := Start(context.Background(), "cat", nil, StartOptions{Role: "test", Stdin: true})
	require.NoError(t, err)

	_, err = p.Stdin.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, p.Stdin.Close())

	out, err := io.ReadAll(p.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
	assert.NoError(t, p.Wait())
}

func TestProcess_ExitErrorCarriesStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p, err := Start(context.Background(), "sh", []string{"-c", "echo boom >&2; exit 3"}, StartOptions{Role: "test"})
	require.NoError(t, err)
	_, _ = io.ReadAll(p.Stdout)

	err = p.Wait()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, []string{"boom"}, exitErr.Stderr)
	var ee *exec.ExitError
	assert.True(t, errors.As(err, &ee))
}

func TestProcess_StopKillsLongRunning(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, err := Start(context.Background(), "sleep", []string{"30"}, StartOptions{Role: "test"})
	require.NoError(t, err)

	start := time.Now()
	assert.NoError(t, p.Stop(500*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)
}

// fakeFFprobe writes an executable that prints out and ignores its arguments.
func fakeFFprobe(t *testing.T, out string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	bin := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\ncat <<'JSON'\n" + out + "\nJSON\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin
}

func TestInspect_RunsBinary(t *testing.T) {
	bin := fakeFFprobe(t, `{"streams":[
		{"codec_type":"audio","codec_name":"aac","sample_rate":"44100","channels":2},
		{"codec_type":"video","codec_name":"h264","width":320,"height":240,"avg_frame_rate":"25/1"}
	],"format":{"format_name":"mov,mp4","duration":"2.0"}}`)

	info, err := Inspect(context.Background(), bin, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 320, info.Video.Width)
	assert.Equal(t, 240, info.Video.Height)
	assert.Equal(t, 25, info.Video.RateNum)
	assert.Equal(t, 1, info.Video.RateDen)
}

func TestCountFrames(t *testing.T) {
	bin := fakeFFprobe(t, `{"streams":[{"codec_type":"video","nb_read_frames":"250"}]}`)
	n, err := CountFrames(context.Background(), bin, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 250, n)

	bin = fakeFFprobe(t, `{"streams":[]}`)
	_, err = CountFrames(context.Background(), bin, "clip.mp4")
	assert.ErrorIs(t, err, ErrNoVideo)

	bin = fakeFFprobe(t, `not json`)
	_, err = CountFrames(context.Background(), bin, "clip.mp4")
	assert.ErrorContains(t, err, "ffprobe json")
}
