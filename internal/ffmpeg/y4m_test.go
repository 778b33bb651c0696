package ffmpeg

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testY4MFrame(w, h int, fill byte) *Y4MFrame {
	cw, ch := (w+1)/2, (h+1)/2
	f := &Y4MFrame{
		Width:  w,
		Height: h,
		Y:      bytes.Repeat([]byte{fill}, w*h),
		U:      bytes.Repeat([]byte{fill + 1}, cw*ch),
		V:      bytes.Repeat([]byte{fill + 2}, cw*ch),
	}
	return f
}

func TestY4M_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := []*Y4MFrame{testY4MFrame(5, 3, 10), testY4MFrame(5, 3, 20)}
	require.NoError(t, WriteY4M(&buf, in...))

	r := NewY4MReader(&buf)
	for i, want := range in {
		got, err := r.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want, got)
	}
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)

	w, h := r.Size()
	assert.Equal(t, 5, w)
	assert.Equal(t, 3, h)
	num, den := r.Rate()
	assert.Equal(t, 25, num)
	assert.Equal(t, 1, den)
}

func TestY4M_EmptyStream(t *testing.T) {
	_, err := NewY4MReader(bytes.NewReader(nil)).Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestY4M_TruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteY4M(&buf, testY4MFrame(4, 4, 1)))
	data := buf.Bytes()[:buf.Len()-3]

	_, err := NewY4MReader(bytes.NewReader(data)).Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestY4M_BadStreams(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "magic", data: "YUV4MPEG3 W4 H4\nFRAME\n"},
		{name: "colorspace", data: "YUV4MPEG2 W4 H4 C444\nFRAME\n"},
		{name: "size", data: "YUV4MPEG2 W0 H4\nFRAME\n"},
		{name: "width", data: "YUV4MPEG2 Wx H4\nFRAME\n"},
		{name: "frame marker", data: "YUV4MPEG2 W2 H2\nFRAMX\n"},
		{name: "short header", data: "YUV4MPEG2 W2"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewY4MReader(bytes.NewReader([]byte(tt.data))).Next()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrY4MFormat), "got %v", err)
		})
	}
}

func TestY4M_FrameParameters(t *testing.T) {
	// Frame lines may carry parameters after the marker.
	data := append([]byte("YUV4MPEG2 W2 H2 F30000:1001 C420mpeg2\nFRAME Ixyz\n"), make([]byte, 6)...)
	r := NewY4MReader(bytes.NewReader(data))
	f, err := r.Next()
	require.NoError(t, err)
	assert.Len(t, f.Y, 4)
	assert.Len(t, f.U, 1)
	num, den := r.Rate()
	assert.Equal(t, 30000, num)
	assert.Equal(t, 1001, den)
}
