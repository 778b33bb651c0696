//go:build (darwin || linux) && !noopus

// Opus decoding via libstream_opus using purego.
//
// libstream_opus is a thin wrapper around libopus with a primitive-only
// API, loaded at runtime.

package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	streamOpusOnce    sync.Once
	streamOpusHandle  uintptr
	streamOpusInitErr error
)

// libstream_opus function pointers
var (
	streamOpusDecoderCreate  func(sampleRate, channels int32) uint64
	streamOpusDecoderDecode  func(decoder uint64, data uintptr, dataLen int32, pcm uintptr, frameSize, decodeFEC int32) int32
	streamOpusDecoderReset   func(decoder uint64) int32
	streamOpusDecoderDestroy func(decoder uint64)

	streamOpusGetError   func() uintptr
	streamOpusGetVersion func() uintptr
)

const streamOpusOK = 0

func loadStreamOpus() error {
	streamOpusOnce.Do(func() {
		streamOpusInitErr = loadStreamOpusLib()
	})
	return streamOpusInitErr
}

func loadStreamOpusLib() error {
	var lastErr error
	for _, path := range getStreamOpusLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		streamOpusHandle = handle
		loadStreamOpusSymbols()
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libstream_opus: %w", lastErr)
	}
	return errors.New("libstream_opus not found in any standard location")
}

func getStreamOpusLibPaths() []string {
	libName := "libstream_opus.so"
	if runtime.GOOS == "darwin" {
		libName = "libstream_opus.dylib"
	}

	var paths []string
	if envPath := os.Getenv("STREAM_OPUS_LIB_PATH"); envPath != "" {
		paths = append(paths, envPath)
	}
	if envPath := os.Getenv("STREAM_SDK_LIB_PATH"); envPath != "" {
		paths = append(paths, filepath.Join(envPath, libName))
	}
	paths = append(paths, libSearchPaths(libName)...)

	switch runtime.GOOS {
	case "darwin":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/opt/homebrew/lib/"+libName,
		)
	case "linux":
		paths = append(paths,
			libName,
			"/usr/local/lib/"+libName,
			"/usr/lib/"+libName,
		)
	}
	return paths
}

func loadStreamOpusSymbols() {
	purego.RegisterLibFunc(&streamOpusDecoderCreate, streamOpusHandle, "stream_opus_decoder_create")
	purego.RegisterLibFunc(&streamOpusDecoderDecode, streamOpusHandle, "stream_opus_decoder_decode")
	purego.RegisterLibFunc(&streamOpusDecoderReset, streamOpusHandle, "stream_opus_decoder_reset")
	purego.RegisterLibFunc(&streamOpusDecoderDestroy, streamOpusHandle, "stream_opus_decoder_destroy")
	purego.RegisterLibFunc(&streamOpusGetError, streamOpusHandle, "stream_opus_get_error")
	purego.RegisterLibFunc(&streamOpusGetVersion, streamOpusHandle, "stream_opus_get_version")
}

// IsOpusAvailable checks if libstream_opus can be loaded.
func IsOpusAvailable() bool {
	return loadStreamOpus() == nil
}

// GetOpusVersion returns the libopus version string.
func GetOpusVersion() string {
	if !IsOpusAvailable() {
		return ""
	}
	return goStringFromPtr(streamOpusGetVersion())
}

func getOpusError() string {
	ptr := streamOpusGetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// OpusDecoder implements AudioDecoder for Opus carried in MPEG-TS.
type OpusDecoder struct {
	config     AudioDecoderConfig
	handle     uint64
	sampleRate int
	channels   int
	outputBuf  []int16

	pending []*AudioSamples
	flushed bool
	stats   DecoderStats
}

// NewOpusDecoder creates a new Opus decoder. Opus decodes natively to any
// of its rates and to mono or stereo, so output is requested in the
// configured format.
func NewOpusDecoder(config AudioDecoderConfig) (*OpusDecoder, error) {
	if err := loadStreamOpus(); err != nil {
		return nil, fmt.Errorf("Opus decoder not available: %w", err)
	}

	sampleRate := config.SampleRate
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		sampleRate = 48000
	}
	channels := config.Channels
	if channels <= 0 || channels > 2 {
		channels = 2
	}

	handle := streamOpusDecoderCreate(int32(sampleRate), int32(channels))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create Opus decoder: %s", getOpusError())
	}

	// 120 ms is the longest Opus frame.
	maxSamples := sampleRate * 120 / 1000 * channels
	return &OpusDecoder{
		config:     config,
		handle:     handle,
		sampleRate: sampleRate,
		channels:   channels,
		outputBuf:  make([]int16, maxSamples),
	}, nil
}

// SendPacket decodes every Opus packet in one PES payload.
func (d *OpusDecoder) SendPacket(p Packet) error {
	if d.handle == 0 {
		return errors.New("decoder closed")
	}
	if d.flushed {
		return errors.New("send after flush")
	}

	packets, err := splitOpusAccessUnits(p.Data)
	if err != nil {
		d.stats.CorruptedFrames++
		return err
	}
	d.stats.PacketsSent++
	d.stats.BytesDecoded += uint64(len(p.Data))

	ts := ticksToNanos(p.PTS)
	for _, pkt := range packets {
		samples, err := d.decode(pkt, ts)
		if err != nil {
			return err
		}
		d.pending = append(d.pending, samples)
		if ts >= 0 {
			ts += int64(samples.SampleCount) * int64(time.Second) / int64(d.sampleRate)
		}
	}
	return nil
}

func (d *OpusDecoder) decode(data []byte, ts int64) (*AudioSamples, error) {
	var dataPtr uintptr
	if len(data) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&data[0]))
	}
	maxFrameSize := d.sampleRate * 120 / 1000

	result := streamOpusDecoderDecode(
		d.handle,
		dataPtr,
		int32(len(data)),
		uintptr(unsafe.Pointer(&d.outputBuf[0])),
		int32(maxFrameSize),
		0,
	)
	runtime.KeepAlive(data)
	if result < 0 {
		d.stats.CorruptedFrames++
		return nil, fmt.Errorf("decode failed: %s", getOpusError())
	}

	numSamples := int(result) * d.channels
	out := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(d.outputBuf[i]))
	}
	d.stats.FramesDecoded++

	return &AudioSamples{
		Data:        out,
		SampleRate:  d.sampleRate,
		Channels:    d.channels,
		SampleCount: int(result),
		Format:      AudioFormatS16,
		Timestamp:   ts,
	}, nil
}

// ReceiveSamples implements AudioDecoder.
func (d *OpusDecoder) ReceiveSamples() (*AudioSamples, error) {
	if len(d.pending) > 0 {
		s := d.pending[0]
		d.pending[0] = nil
		d.pending = d.pending[1:]
		return s, nil
	}
	if d.flushed {
		return nil, io.EOF
	}
	return nil, ErrNeedMorePackets
}

// Flush implements AudioDecoder. Opus has no decoder delay to drain.
func (d *OpusDecoder) Flush() error {
	d.flushed = true
	return nil
}

// Reset resets decoder state.
func (d *OpusDecoder) Reset() error {
	if d.handle == 0 {
		return errors.New("decoder closed")
	}
	if streamOpusDecoderReset(d.handle) != streamOpusOK {
		return fmt.Errorf("failed to reset decoder: %s", getOpusError())
	}
	d.pending, d.flushed = nil, false
	return nil
}

// Provider implements AudioDecoder.
func (d *OpusDecoder) Provider() Provider { return ProviderLibopus }

// Codec returns AudioCodecOpus.
func (d *OpusDecoder) Codec() AudioCodec { return AudioCodecOpus }

// Stats implements AudioDecoder.
func (d *OpusDecoder) Stats() DecoderStats { return d.stats }

// Close releases decoder resources.
func (d *OpusDecoder) Close() error {
	if d.handle != 0 {
		streamOpusDecoderDestroy(d.handle)
		d.handle = 0
	}
	d.pending = nil
	return nil
}

func init() {
	if IsOpusAvailable() {
		setProviderAvailable(ProviderLibopus)
		registerAudioDecoder(AudioCodecOpus, ProviderLibopus, func(config AudioDecoderConfig) (AudioDecoder, error) {
			d, err := NewOpusDecoder(config)
			if err != nil {
				return nil, err
			}
			return d, nil
		})
	}
}
