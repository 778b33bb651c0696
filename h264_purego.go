//go:build (darwin || linux) && !noh264

// H.264 decoding via libmedia_h264 (OpenH264) using purego.

package playback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	mediaH264Once    sync.Once
	mediaH264Handle  uintptr
	mediaH264InitErr error
)

// libmedia_h264 function pointers
var (
	mediaH264DecoderCreate  func(threads int32) uint64
	mediaH264DecoderDecode  func(decoder uint64, data uintptr, dataLen int32, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	mediaH264DecoderReset   func(decoder uint64) int32
	mediaH264DecoderDestroy func(decoder uint64)

	mediaH264GetError         func() uintptr
	mediaH264DecoderAvailable func() int32
)

const mediaH264OK = 0

// mediaH264DecodeResult holds the decoder's output parameters. It must be
// heap-allocated: on arm64 the GC may move stack variables during the call.
type mediaH264DecodeResult struct {
	YPtr     uintptr
	UPtr     uintptr
	VPtr     uintptr
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
}

func loadMediaH264() error {
	mediaH264Once.Do(func() {
		mediaH264InitErr = loadMediaH264Lib()
	})
	return mediaH264InitErr
}

func loadMediaH264Lib() error {
	var lastErr error
	for _, path := range getMediaH264LibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		mediaH264Handle = handle
		loadMediaH264Symbols()
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to load libmedia_h264: %w", lastErr)
	}
	return errors.New("libmedia_h264 not found in any standard location")
}

func getMediaH264LibPaths() []string {
	libName := "libmedia_h264.so"
	if runtime.GOOS == "darwin" {
		libName = "libmedia_h264.dylib"
	}

	var paths []string
	if envPath := os.Getenv("MEDIA_H264_LIB_PATH"); envPath != "" {
		paths = append(paths, envPath)
	}
	if envPath := os.Getenv("MEDIA_SDK_LIB_PATH"); envPath != "" {
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

func loadMediaH264Symbols() {
	purego.RegisterLibFunc(&mediaH264DecoderCreate, mediaH264Handle, "media_h264_decoder_create")
	purego.RegisterLibFunc(&mediaH264DecoderDecode, mediaH264Handle, "media_h264_decoder_decode")
	purego.RegisterLibFunc(&mediaH264DecoderReset, mediaH264Handle, "media_h264_decoder_reset")
	purego.RegisterLibFunc(&mediaH264DecoderDestroy, mediaH264Handle, "media_h264_decoder_destroy")
	purego.RegisterLibFunc(&mediaH264GetError, mediaH264Handle, "media_h264_get_error")
	purego.RegisterLibFunc(&mediaH264DecoderAvailable, mediaH264Handle, "media_h264_decoder_available")
}

// IsH264DecoderAvailable checks if the OpenH264 decoder can be loaded.
func IsH264DecoderAvailable() bool {
	if err := loadMediaH264(); err != nil {
		return false
	}
	return mediaH264DecoderAvailable() != 0
}

func getH264Error() string {
	ptr := mediaH264GetError()
	if ptr == 0 {
		return "unknown error"
	}
	return goStringFromPtr(ptr)
}

// H264Decoder implements VideoDecoder with OpenH264. Decoding happens in
// SendPacket; ReceiveFrame hands out what it produced.
type H264Decoder struct {
	config VideoDecoderConfig
	handle uint64

	decodeResult *mediaH264DecodeResult
	pending      []*VideoFrame
	pts          ptsQueue
	flushed      bool

	stats DecoderStats
}

// NewH264Decoder creates a new H.264 decoder.
func NewH264Decoder(config VideoDecoderConfig) (*H264Decoder, error) {
	if err := loadMediaH264(); err != nil {
		return nil, fmt.Errorf("H.264 decoder not available: %w", err)
	}
	if mediaH264DecoderAvailable() == 0 {
		return nil, errors.New("H.264 decoder not available")
	}

	threads := int32(4)
	if config.Threads > 0 {
		threads = int32(config.Threads)
	}
	handle := mediaH264DecoderCreate(threads)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create H.264 decoder: %s", getH264Error())
	}

	return &H264Decoder{
		config:       config,
		handle:       handle,
		decodeResult: &mediaH264DecodeResult{},
	}, nil
}

// SendPacket decodes one access unit.
func (d *H264Decoder) SendPacket(p Packet) error {
	if d.handle == 0 {
		return errors.New("decoder closed")
	}
	if d.flushed {
		return errors.New("send after flush")
	}
	if len(p.Data) == 0 {
		return nil
	}

	out := d.decodeResult
	result := mediaH264DecoderDecode(
		d.handle,
		uintptr(unsafe.Pointer(&p.Data[0])),
		int32(len(p.Data)),
		uintptr(unsafe.Pointer(&out.YPtr)),
		uintptr(unsafe.Pointer(&out.UPtr)),
		uintptr(unsafe.Pointer(&out.VPtr)),
		uintptr(unsafe.Pointer(&out.YStride)),
		uintptr(unsafe.Pointer(&out.UVStride)),
		uintptr(unsafe.Pointer(&out.Width)),
		uintptr(unsafe.Pointer(&out.Height)),
	)
	runtime.KeepAlive(p.Data)
	runtime.KeepAlive(out)

	if result < 0 {
		d.stats.CorruptedFrames++
		return fmt.Errorf("decode failed: %s", getH264Error())
	}
	d.stats.PacketsSent++
	d.stats.BytesDecoded += uint64(len(p.Data))
	d.pts.push(p.PTS)
	if result == 0 {
		return nil
	}

	if out.YStride <= 0 || out.UVStride <= 0 || out.Width <= 0 || out.Height <= 0 || out.YPtr == 0 {
		d.stats.CorruptedFrames++
		return fmt.Errorf("invalid decoder output: stride=%d/%d, size=%dx%d",
			out.YStride, out.UVStride, out.Width, out.Height)
	}

	w, h := int(out.Width), int(out.Height)
	cw, ch := (w+1)/2, (h+1)/2
	buf := make([]byte, I420Size(w, h))
	yPlane, uPlane, vPlane := buf[:w*h], buf[w*h:w*h+cw*ch], buf[w*h+cw*ch:]
	copyPlane(yPlane, w, out.YPtr, int(out.YStride), h)
	copyPlane(uPlane, cw, out.UPtr, int(out.UVStride), ch)
	copyPlane(vPlane, cw, out.VPtr, int(out.UVStride), ch)

	d.pending = append(d.pending, &VideoFrame{
		Data:      [][]byte{yPlane, uPlane, vPlane},
		Stride:    []int{w, cw, cw},
		Width:     w,
		Height:    h,
		Format:    PixelFormatI420,
		Timestamp: ticksToNanos(d.pts.pop()),
	})
	d.stats.FramesDecoded++
	return nil
}

// copyPlane copies rows of rowBytes from C memory at src into dst.
func copyPlane(dst []byte, rowBytes int, src uintptr, srcStride, rows int) {
	for row := 0; row < rows; row++ {
		line := unsafe.Slice((*byte)(unsafe.Pointer(src+uintptr(row*srcStride))), rowBytes)
		copy(dst[row*rowBytes:], line)
	}
}

// ReceiveFrame implements VideoDecoder.
func (d *H264Decoder) ReceiveFrame() (*VideoFrame, error) {
	if len(d.pending) > 0 {
		f := d.pending[0]
		d.pending[0] = nil
		d.pending = d.pending[1:]
		return f, nil
	}
	if d.flushed {
		return nil, io.EOF
	}
	return nil, ErrNeedMorePackets
}

// Flush implements VideoDecoder. OpenH264 in this build decodes without
// frame delay, so nothing is held back.
func (d *H264Decoder) Flush() error {
	d.flushed = true
	return nil
}

// Reset discards decoder state, e.g. before feeding an unrelated stream.
func (d *H264Decoder) Reset() error {
	if d.handle == 0 {
		return errors.New("decoder closed")
	}
	if mediaH264DecoderReset(d.handle) != mediaH264OK {
		return fmt.Errorf("failed to reset decoder: %s", getH264Error())
	}
	d.pending, d.pts, d.flushed = nil, nil, false
	return nil
}

// Provider implements VideoDecoder.
func (d *H264Decoder) Provider() Provider { return ProviderOpenH264 }

// Codec implements VideoDecoder.
func (d *H264Decoder) Codec() VideoCodec { return VideoCodecH264 }

// Stats implements VideoDecoder.
func (d *H264Decoder) Stats() DecoderStats { return d.stats }

// Close implements VideoDecoder.
func (d *H264Decoder) Close() error {
	if d.handle != 0 {
		mediaH264DecoderDestroy(d.handle)
		d.handle = 0
	}
	d.pending = nil
	return nil
}

func init() {
	if IsH264DecoderAvailable() {
		setProviderAvailable(ProviderOpenH264)
		registerVideoDecoder(VideoCodecH264, ProviderOpenH264, func(config VideoDecoderConfig) (VideoDecoder, error) {
			d, err := NewH264Decoder(config)
			if err != nil {
				return nil, err
			}
			return d, nil
		})
	}
}
