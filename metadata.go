package playback

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/thesyncim/playback/internal/ffmpeg"
)

// Rational is an exact frame rate such as 30000/1001.
type Rational struct {
	Num int
	Den int
}

// Valid reports whether both terms are positive.
func (r Rational) Valid() bool { return r.Num > 0 && r.Den > 0 }

// Float returns Num/Den.
func (r Rational) Float() float64 { return float64(r.Num) / float64(r.Den) }

func (r Rational) String() string { return fmt.Sprintf("%d/%d", r.Num, r.Den) }

// ContainerMetadata describes the container the engine plays. It is
// supplied once at construction and never changes.
type ContainerMetadata struct {
	FPS    int // nominal frames per second
	Width  int // picture width in pixels
	Height int // picture height in pixels

	// FrameRate overrides FPS for pacing when set, so 29.97 content is
	// paced at 1001/30000 s instead of 1/30 s.
	FrameRate Rational
}

// Validate checks that every field is positive.
func (m ContainerMetadata) Validate() error {
	if m.FPS <= 0 || m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: fps=%d size=%dx%d", ErrInvalidMetadata, m.FPS, m.Width, m.Height)
	}
	if (m.FrameRate.Num != 0 || m.FrameRate.Den != 0) && !m.FrameRate.Valid() {
		return fmt.Errorf("%w: frame rate %s", ErrInvalidMetadata, m.FrameRate)
	}
	return nil
}

// FrameInterval is the wall-clock time between frames at speed 1.0.
func (m ContainerMetadata) FrameInterval() time.Duration {
	if m.FrameRate.Valid() {
		return time.Duration(m.FrameRate.Den) * time.Second / time.Duration(m.FrameRate.Num)
	}
	if m.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(m.FPS)
}

// ReadMetadata runs ffprobe on path and returns the metadata of its first
// video stream.
func ReadMetadata(ctx context.Context, ffprobeBin, path string) (ContainerMetadata, error) {
	info, err := ffmpeg.Inspect(ctx, ffprobeBin, path)
	if err != nil {
		return ContainerMetadata{}, &DemuxError{Op: "metadata", Err: err}
	}
	return metadataFromInfo(info)
}

func metadataFromInfo(info *ffmpeg.Info) (ContainerMetadata, error) {
	v := info.Video
	meta := ContainerMetadata{
		Width:     v.Width,
		Height:    v.Height,
		FrameRate: Rational{Num: v.RateNum, Den: v.RateDen},
	}
	if meta.FrameRate.Valid() {
		meta.FPS = int(math.Round(meta.FrameRate.Float()))
		if v.RateDen == 1 {
			meta.FrameRate = Rational{}
		}
	}
	if err := meta.Validate(); err != nil {
		return ContainerMetadata{}, &DemuxError{Op: "metadata", Err: err}
	}
	return meta, nil
}

// CountFrames returns the number of frames in the first video stream
// of path. ffprobe decodes the whole stream to count them.
func CountFrames(ctx context.Context, ffprobeBin, path string) (int, error) {
	n, err := ffmpeg.CountFrames(ctx, ffprobeBin, path)
	if err != nil {
		return 0, &DemuxError{Op: "metadata", Err: err}
	}
	return n, nil
}
