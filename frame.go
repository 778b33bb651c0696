// Core frame and sample types used across the playback package.
package playback

import (
	"encoding/binary"
	"time"
)

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                      // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGB24                     // Packed RGB, 3 bytes per pixel
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, UV
	case PixelFormatRGB24, PixelFormatRGBA32, PixelFormatBGRA32:
		return 1 // Packed
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit PCM, little endian
	AudioFormatF32                    // 32-bit float, little endian
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16:
		return 2
	case AudioFormatF32:
		return 4
	default:
		return 0
	}
}

// VideoFrame is a raw decoded picture as produced by a decoder backend.
// The Data slices may be reused by the decoder on its next call.
type VideoFrame struct {
	Data      [][]byte    // Plane data (1-3 planes depending on format)
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Presentation time in nanoseconds, -1 if unknown
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    make([]int, len(f.Stride)),
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = append([]byte(nil), plane...)
		}
	}
	return clone
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	cw, ch := (width+1)/2, (height+1)/2
	return width*height + 2*cw*ch
}

// AudioSamples are raw decoded samples as produced by a decoder backend.
type AudioSamples struct {
	Data        []byte      // Interleaved sample data
	SampleRate  int         // Sample rate (e.g., 48000)
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleCount int         // Number of samples (per channel)
	Format      AudioFormat // Sample format
	Timestamp   int64       // Presentation time in nanoseconds, -1 if unknown
}

// Clone creates a deep copy of the audio samples.
func (s *AudioSamples) Clone() *AudioSamples {
	clone := *s
	if s.Data != nil {
		clone.Data = append([]byte(nil), s.Data...)
	}
	return &clone
}

// VideoFrameLike is what a display surface needs from a frame.
type VideoFrameLike interface {
	Pixels() []byte
	Width() int
	Height() int
}

// AudioSpanLike is what an audio sink needs from a span of samples.
type AudioSpanLike interface {
	Samples() []int16
	Rate() int
	Channels() int
	Duration() time.Duration
}

var (
	_ VideoFrameLike = (*Frame)(nil)
	_ AudioSpanLike  = (*AudioSpan)(nil)
)

// Frame is a decoded picture ready for display: width*height pixels of
// 4 bytes each in B, G, R, X order with X = 0xFF.
// The caller owns it; the engine never touches it again.
type Frame struct {
	pix    []byte
	width  int
	height int

	Index int64         // 1-based count of frames the pipeline has produced
	PTS   time.Duration // container presentation time, -1 if unknown
}

// Pixels returns the BGRX bytes, row-major with stride width*4.
func (f *Frame) Pixels() []byte { return f.pix }

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.height }

// Stride returns the byte length of one row.
func (f *Frame) Stride() int { return f.width * 4 }

// AudioSpan is a run of interleaved signed 16-bit little-endian samples at
// the engine's output rate and channel count.
type AudioSpan struct {
	data     []byte
	count    int
	rate     int
	channels int

	PTS time.Duration // container presentation time, -1 if unknown
}

// NewAudioSpan wraps interleaved S16LE data. Audio sinks and tests use it;
// the engine builds its own spans.
func NewAudioSpan(data []byte, rate, channels int, pts time.Duration) *AudioSpan {
	return &AudioSpan{
		data:     data,
		count:    len(data) / (2 * channels),
		rate:     rate,
		channels: channels,
		PTS:      pts,
	}
}

// Bytes returns the raw S16LE interleaved samples.
func (s *AudioSpan) Bytes() []byte { return s.data }

// Samples decodes the span into a new int16 slice.
func (s *AudioSpan) Samples() []int16 {
	out := make([]int16, len(s.data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(s.data[2*i:]))
	}
	return out
}

// SampleCount returns the number of samples per channel.
func (s *AudioSpan) SampleCount() int { return s.count }

// Rate returns the sample rate in Hz.
func (s *AudioSpan) Rate() int { return s.rate }

// Channels returns the number of interleaved channels.
func (s *AudioSpan) Channels() int { return s.channels }

// Duration is the wall-clock time the span covers at its rate.
func (s *AudioSpan) Duration() time.Duration {
	if s.rate <= 0 {
		return 0
	}
	return time.Duration(s.count) * time.Second / time.Duration(s.rate)
}
