package playback

import "fmt"

// frameConverter turns decoder output into packed BGRX at native
// resolution. YUV input is treated as BT.601 limited range.
type frameConverter struct {
	chroma chromaUpsampler
	nvU    []byte // NV12 deinterleave scratch
	nvV    []byte
}

// convert writes f as width*height*4 bytes of B, G, R, 0xFF into dst.
func (c *frameConverter) convert(f *VideoFrame, dst []byte) error {
	w, h := f.Width, f.Height
	if len(dst) < w*h*4 {
		return fmt.Errorf("destination too small: %d < %d", len(dst), w*h*4)
	}
	if err := checkPlanes(f); err != nil {
		return err
	}

	switch f.Format {
	case PixelFormatI420:
		u, v := c.chroma.upsample(f.Data[1], f.Stride[1], f.Data[2], f.Stride[2], w, h)
		yuvToBGRX(f.Data[0], f.Stride[0], u, v, w, h, dst)
	case PixelFormatNV12:
		cw, ch := (w+1)/2, (h+1)/2
		if len(c.nvU) != cw*ch {
			c.nvU = make([]byte, cw*ch)
			c.nvV = make([]byte, cw*ch)
		}
		for y := 0; y < ch; y++ {
			row := f.Data[1][y*f.Stride[1]:]
			for x := 0; x < cw; x++ {
				c.nvU[y*cw+x] = row[2*x]
				c.nvV[y*cw+x] = row[2*x+1]
			}
		}
		u, v := c.chroma.upsample(c.nvU, cw, c.nvV, cw, w, h)
		yuvToBGRX(f.Data[0], f.Stride[0], u, v, w, h, dst)
	case PixelFormatRGB24:
		for y := 0; y < h; y++ {
			src := f.Data[0][y*f.Stride[0]:]
			out := dst[y*w*4:]
			for x := 0; x < w; x++ {
				out[4*x+0] = src[3*x+2]
				out[4*x+1] = src[3*x+1]
				out[4*x+2] = src[3*x+0]
				out[4*x+3] = 0xFF
			}
		}
	case PixelFormatRGBA32:
		for y := 0; y < h; y++ {
			src := f.Data[0][y*f.Stride[0]:]
			out := dst[y*w*4:]
			for x := 0; x < w; x++ {
				out[4*x+0] = src[4*x+2]
				out[4*x+1] = src[4*x+1]
				out[4*x+2] = src[4*x+0]
				out[4*x+3] = 0xFF
			}
		}
	case PixelFormatBGRA32:
		// Already in display order; only the pad byte is normalised.
		for y := 0; y < h; y++ {
			out := dst[y*w*4 : (y+1)*w*4]
			copy(out, f.Data[0][y*f.Stride[0]:])
			for x := 3; x < len(out); x += 4 {
				out[x] = 0xFF
			}
		}
	default:
		return fmt.Errorf("unsupported pixel format %s", f.Format)
	}
	return nil
}

// checkPlanes verifies the planes are large enough for the frame geometry.
func checkPlanes(f *VideoFrame) error {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", w, h)
	}
	cw, ch := (w+1)/2, (h+1)/2

	type plane struct{ rowBytes, rows int }
	var planes []plane
	switch f.Format {
	case PixelFormatI420:
		planes = []plane{{w, h}, {cw, ch}, {cw, ch}}
	case PixelFormatNV12:
		planes = []plane{{w, h}, {2 * cw, ch}}
	case PixelFormatRGB24:
		planes = []plane{{3 * w, h}}
	case PixelFormatRGBA32, PixelFormatBGRA32:
		planes = []plane{{4 * w, h}}
	default:
		return fmt.Errorf("unsupported pixel format %s", f.Format)
	}
	if len(f.Data) < len(planes) || len(f.Stride) < len(planes) {
		return fmt.Errorf("%s frame has %d planes, want %d", f.Format, len(f.Data), len(planes))
	}
	for i, p := range planes {
		if f.Stride[i] < p.rowBytes || len(f.Data[i]) < f.Stride[i]*(p.rows-1)+p.rowBytes {
			return fmt.Errorf("%s plane %d too small for %dx%d", f.Format, i, w, h)
		}
	}
	return nil
}

// yuvToBGRX converts full-resolution Y, U and V planes. U and V have a
// stride of w.
func yuvToBGRX(yPlane []byte, yStride int, u, v []byte, w, h int, dst []byte) {
	for y := 0; y < h; y++ {
		yRow := yPlane[y*yStride:]
		out := dst[y*w*4:]
		for x := 0; x < w; x++ {
			c := 298 * (int(yRow[x]) - 16)
			d := int(u[y*w+x]) - 128
			e := int(v[y*w+x]) - 128
			out[4*x+0] = clamp8((c + 516*d + 128) >> 8)
			out[4*x+1] = clamp8((c - 100*d - 208*e + 128) >> 8)
			out[4*x+2] = clamp8((c + 409*e + 128) >> 8)
			out[4*x+3] = 0xFF
		}
	}
}

func clamp8(v int) byte {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v)
	}
}
