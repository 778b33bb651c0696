package ffmpeg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	y4mMagic       = "YUV4MPEG2"
	y4mFrameMagic  = "FRAME"
	maxY4MHeader   = 4096
	maxY4MFrameDim = 16384
)

// ErrY4MFormat is wrapped by every YUV4MPEG2 parse failure.
var ErrY4MFormat = errors.New("invalid yuv4mpeg stream")

// Y4MFrame is one 4:2:0 picture. The planes are tightly packed.
type Y4MFrame struct {
	Width, Height int
	Y, U, V       []byte
}

// Y4MReader reads the frames of a YUV4MPEG2 stream with 4:2:0 chroma.
type Y4MReader struct {
	r      *bufio.Reader
	width  int
	height int
	rate   [2]int
	header bool
}

// NewY4MReader wraps r. The stream header is read lazily by Next.
func NewY4MReader(r io.Reader) *Y4MReader {
	return &Y4MReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Size returns the picture size from the stream header, zero before the
// first Next.
func (y *Y4MReader) Size() (width, height int) { return y.width, y.height }

// Rate returns the frame rate from the stream header as num/den.
func (y *Y4MReader) Rate() (num, den int) { return y.rate[0], y.rate[1] }

// Next returns the next frame, or io.EOF at a clean end of stream.
// A stream that ends inside a frame yields io.ErrUnexpectedEOF.
func (y *Y4MReader) Next() (*Y4MFrame, error) {
	if !y.header {
		if err := y.readHeader(); err != nil {
			return nil, err
		}
		y.header = true
	}

	line, err := y.line()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && line == "":
		return nil, io.EOF
	case errors.Is(err, io.EOF):
		return nil, io.ErrUnexpectedEOF
	default:
		return nil, err
	}
	if !strings.HasPrefix(line, y4mFrameMagic) {
		return nil, fmt.Errorf("%w: expected FRAME, got %q", ErrY4MFormat, truncate(line, 16))
	}

	cw, ch := (y.width+1)/2, (y.height+1)/2
	ySize, cSize := y.width*y.height, cw*ch
	buf := make([]byte, ySize+2*cSize)
	if _, err := io.ReadFull(y.r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return &Y4MFrame{
		Width:  y.width,
		Height: y.height,
		Y:      buf[:ySize:ySize],
		U:      buf[ySize : ySize+cSize : ySize+cSize],
		V:      buf[ySize+cSize:],
	}, nil
}

func (y *Y4MReader) readHeader() error {
	line, err := y.line()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF) && line == "":
		return io.EOF
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: short header", ErrY4MFormat)
	default:
		return err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != y4mMagic {
		return fmt.Errorf("%w: bad magic", ErrY4MFormat)
	}
	for _, f := range fields[1:] {
		switch f[0] {
		case 'W':
			y.width, err = strconv.Atoi(f[1:])
		case 'H':
			y.height, err = strconv.Atoi(f[1:])
		case 'F':
			num, den, ok := strings.Cut(f[1:], ":")
			if ok {
				y.rate[0], _ = strconv.Atoi(num)
				y.rate[1], _ = strconv.Atoi(den)
			}
		case 'C':
			if !strings.HasPrefix(f[1:], "420") {
				return fmt.Errorf("%w: unsupported colorspace %s", ErrY4MFormat, f[1:])
			}
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrY4MFormat, f, err)
		}
	}
	if y.width <= 0 || y.height <= 0 || y.width > maxY4MFrameDim || y.height > maxY4MFrameDim {
		return fmt.Errorf("%w: size %dx%d", ErrY4MFormat, y.width, y.height)
	}
	return nil
}

// line reads up to and excluding the next newline.
func (y *Y4MReader) line() (string, error) {
	var b []byte
	for {
		chunk, err := y.r.ReadSlice('\n')
		b = append(b, chunk...)
		if len(b) > maxY4MHeader {
			return "", fmt.Errorf("%w: header line too long", ErrY4MFormat)
		}
		if err == nil {
			return string(bytes.TrimSuffix(b, []byte{'\n'})), nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return string(b), err
		}
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// WriteY4M encodes frames as a YUV4MPEG2 stream at 25 fps. It is the
// inverse of Y4MReader and is used to feed test pipelines.
func WriteY4M(w io.Writer, frames ...*Y4MFrame) error {
	if len(frames) == 0 {
		return nil
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s W%d H%d F25:1 Ip A1:1 C420jpeg\n", y4mMagic, frames[0].Width, frames[0].Height)
	for _, f := range frames {
		bw.WriteString(y4mFrameMagic + "\n")
		bw.Write(f.Y)
		bw.Write(f.U)
		bw.Write(f.V)
	}
	return bw.Flush()
}
