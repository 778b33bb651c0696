package playback

// scalePlane resamples a single 8-bit plane using bilinear interpolation.
// It is used to bring subsampled chroma up to luma resolution.
func scalePlane(src []byte, srcStride, srcW, srcH int, dst []byte, dstStride, dstW, dstH int) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		y0 := srcYFP >> 16
		yWeight := srcYFP & 0xFFFF
		y1 := y0 + 1
		if y1 >= srcH {
			y1 = y0
		}
		row0 := src[y0*srcStride:]
		row1 := src[y1*srcStride:]
		out := dst[y*dstStride : y*dstStride+dstW]

		for x := range out {
			srcXFP := x * xRatio
			x0 := srcXFP >> 16
			xWeight := srcXFP & 0xFFFF
			x1 := x0 + 1
			if x1 >= srcW {
				x1 = x0
			}

			top := (int(row0[x0])*(0x10000-xWeight) + int(row0[x1])*xWeight) >> 16
			bottom := (int(row1[x0])*(0x10000-xWeight) + int(row1[x1])*xWeight) >> 16
			out[x] = byte((top*(0x10000-yWeight) + bottom*yWeight) >> 16)
		}
	}
}

// chromaUpsampler expands 4:2:0 chroma planes to full resolution, reusing
// its buffers between frames of the same size.
type chromaUpsampler struct {
	width, height int
	u, v          []byte
}

func (c *chromaUpsampler) upsample(u []byte, uStride int, v []byte, vStride int, width, height int) (fullU, fullV []byte) {
	if c.width != width || c.height != height {
		c.width, c.height = width, height
		c.u = make([]byte, width*height)
		c.v = make([]byte, width*height)
	}
	cw, ch := (width+1)/2, (height+1)/2
	scalePlane(u, uStride, cw, ch, c.u, width, width, height)
	scalePlane(v, vStride, cw, ch, c.v, width, width, height)
	return c.u, c.v
}
