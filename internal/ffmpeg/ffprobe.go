package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideo is returned when ffprobe finds no video stream.
var ErrNoVideo = errors.New("ffprobe: no video stream")

// Info is the subset of ffprobe output the engine needs.
type Info struct {
	Container string
	Duration  float64 // seconds, 0 if unknown
	Video     VideoInfo
	Audio     AudioInfo
	HasAudio  bool
}

// VideoInfo describes the first video stream.
type VideoInfo struct {
	Codec     string
	PixFmt    string
	Width     int
	Height    int
	RateNum   int // avg_frame_rate numerator
	RateDen   int // avg_frame_rate denominator
	NumFrames int // nb_frames when the container records it
}

// AudioInfo describes the first audio stream.
type AudioInfo struct {
	Codec      string
	SampleRate int
	Channels   int
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		PixFmt       string `json:"pix_fmt,omitempty"`
		Width        int    `json:"width,omitempty"`
		Height       int    `json:"height,omitempty"`
		AvgFrameRate string `json:"avg_frame_rate,omitempty"`
		RFrameRate   string `json:"r_frame_rate,omitempty"`
		NbFrames     string `json:"nb_frames,omitempty"`
		NbReadFrames string `json:"nb_read_frames,omitempty"`
		SampleRate   string `json:"sample_rate,omitempty"`
		Channels     int    `json:"channels,omitempty"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

func runFFprobe(ctx context.Context, bin string, args []string) (*ffprobeOutput, error) {
	// #nosec G204 -- binary is operator-configured, arguments are fixed
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 4096 {
			msg = msg[:4096] + "..."
		}
		return nil, fmt.Errorf("ffprobe failed: %w (stderr: %s)", err, msg)
	}
	var data ffprobeOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fmt.Errorf("ffprobe json: %w", err)
	}
	return &data, nil
}

// Inspect runs ffprobe on path and returns its first video and audio stream.
func Inspect(ctx context.Context, bin, path string) (*Info, error) {
	data, err := runFFprobe(ctx, bin, []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	})
	if err != nil {
		return nil, err
	}
	return parseInfo(data)
}

func parseInfo(data *ffprobeOutput) (*Info, error) {
	info := &Info{Container: strings.Split(data.Format.FormatName, ",")[0]}
	if d, err := strconv.ParseFloat(data.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	var haveVideo bool
	for _, s := range data.Streams {
		switch s.CodecType {
		case "video":
			if haveVideo {
				continue
			}
			haveVideo = true
			info.Video = VideoInfo{Codec: s.CodecName, PixFmt: s.PixFmt, Width: s.Width, Height: s.Height}
			rate := s.AvgFrameRate
			if rate == "" || rate == "0/0" {
				rate = s.RFrameRate
			}
			num, den, err := ParseRational(rate)
			if err != nil {
				return nil, fmt.Errorf("video frame rate: %w", err)
			}
			info.Video.RateNum, info.Video.RateDen = num, den
			info.Video.NumFrames, _ = strconv.Atoi(s.NbFrames)
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.Audio = AudioInfo{Codec: s.CodecName, Channels: s.Channels}
			info.Audio.SampleRate, _ = strconv.Atoi(s.SampleRate)
		}
	}
	if !haveVideo {
		return nil, ErrNoVideo
	}
	return info, nil
}

// CountFrames decodes the first video stream to count its frames. It
// is slow on long inputs.
func CountFrames(ctx context.Context, bin, path string) (int, error) {
	data, err := runFFprobe(ctx, bin, []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-count_frames",
		"-show_entries", "stream=codec_type,nb_read_frames",
		"-print_format", "json",
		path,
	})
	if err != nil {
		return 0, err
	}
	for _, s := range data.Streams {
		if n, err := strconv.Atoi(s.NbReadFrames); err == nil {
			return n, nil
		}
	}
	return 0, ErrNoVideo
}

// ParseRational parses "num/den" (or a bare integer) with positive terms.
func ParseRational(s string) (num, den int, err error) {
	numStr, denStr, found := strings.Cut(strings.TrimSpace(s), "/")
	if !found {
		denStr = "1"
	}
	num, err = strconv.Atoi(numStr)
	if err != nil {
		return 0, 0, fmt.Errorf("rational %q: %w", s, err)
	}
	den, err = strconv.Atoi(denStr)
	if err != nil {
		return 0, 0, fmt.Errorf("rational %q: %w", s, err)
	}
	if num <= 0 || den <= 0 {
		return 0, 0, fmt.Errorf("rational %q: terms must be positive", s)
	}
	return num, den, nil
}
