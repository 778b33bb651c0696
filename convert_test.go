package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidI420(w, h int, y, u, v byte) *VideoFrame {
	f := grayFrame(w, h, y, 0)
	for i := range f.Data[1] {
		f.Data[1][i], f.Data[2][i] = u, v
	}
	return f
}

func assertSolid(t *testing.T, pix []byte, want []byte) {
	t.Helper()
	require.Zero(t, len(pix)%4)
	for i := 0; i < len(pix); i += 4 {
		require.Equal(t, want, pix[i:i+4], "pixel %d", i/4)
	}
}

func TestFrameConverter_I420(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		y, u, v byte
		want    []byte
	}{
		{name: "white", y: 235, u: 128, v: 128, want: []byte{255, 255, 255, 0xFF}},
		{name: "black", y: 16, u: 128, v: 128, want: []byte{0, 0, 0, 0xFF}},
		{name: "red", y: 81, u: 90, v: 240, want: []byte{0, 0, 255, 0xFF}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var c frameConverter
			dst := make([]byte, 6*4*4)
			require.NoError(t, c.convert(solidI420(6, 4, tt.y, tt.u, tt.v), dst))
			assertSolid(t, dst, tt.want)
		})
	}
}

func TestFrameConverter_OddDimensions(t *testing.T) {
	t.Parallel()
	var c frameConverter
	dst := make([]byte, 5*3*4)
	require.NoError(t, c.convert(solidI420(5, 3, 235, 128, 128), dst))
	assertSolid(t, dst, []byte{255, 255, 255, 0xFF})
}

func TestFrameConverter_NV12(t *testing.T) {
	t.Parallel()
	w, h := 4, 2
	y := []byte{81, 81, 81, 81, 81, 81, 81, 81}
	uv := []byte{90, 240, 90, 240}
	f := &VideoFrame{
		Data:   [][]byte{y, uv},
		Stride: []int{w, w},
		Width:  w,
		Height: h,
		Format: PixelFormatNV12,
	}
	var c frameConverter
	dst := make([]byte, w*h*4)
	require.NoError(t, c.convert(f, dst))
	assertSolid(t, dst, []byte{0, 0, 255, 0xFF})
}

func TestFrameConverter_PackedFormats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		format PixelFormat
		pixel  []byte
		want   []byte
	}{
		{name: "RGB24", format: PixelFormatRGB24, pixel: []byte{10, 20, 30}, want: []byte{30, 20, 10, 0xFF}},
		{name: "RGBA32", format: PixelFormatRGBA32, pixel: []byte{10, 20, 30, 40}, want: []byte{30, 20, 10, 0xFF}},
		{name: "BGRA32", format: PixelFormatBGRA32, pixel: []byte{1, 2, 3, 4}, want: []byte{1, 2, 3, 0xFF}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			const w, h = 3, 2
			// Rows padded by two bytes to exercise the stride.
			stride := w*len(tt.pixel) + 2
			data := make([]byte, stride*h)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					copy(data[y*stride+x*len(tt.pixel):], tt.pixel)
				}
				data[y*stride+stride-2] = 0xEE
				data[y*stride+stride-1] = 0xEE
			}
			f := &VideoFrame{Data: [][]byte{data}, Stride: []int{stride}, Width: w, Height: h, Format: tt.format}

			var c frameConverter
			dst := make([]byte, w*h*4)
			require.NoError(t, c.convert(f, dst))
			assertSolid(t, dst, tt.want)
		})
	}
}

func TestFrameConverter_Errors(t *testing.T) {
	t.Parallel()
	var c frameConverter

	f := solidI420(4, 4, 16, 128, 128)
	assert.Error(t, c.convert(f, make([]byte, 10)), "destination too small")

	short := solidI420(4, 4, 16, 128, 128)
	short.Data[2] = short.Data[2][:1]
	assert.ErrorContains(t, c.convert(short, make([]byte, 64)), "plane 2 too small")

	missing := solidI420(4, 4, 16, 128, 128)
	missing.Data = missing.Data[:1]
	assert.ErrorContains(t, c.convert(missing, make([]byte, 64)), "has 1 planes")

	unknown := &VideoFrame{Data: [][]byte{{0}}, Stride: []int{1}, Width: 1, Height: 1, Format: PixelFormat(99)}
	assert.ErrorContains(t, c.convert(unknown, make([]byte, 4)), "unsupported pixel format")
}
