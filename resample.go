package playback

import (
	"encoding/binary"
	"fmt"
	"math"
)

// resampler converts decoded samples to interleaved S16LE at a fixed rate
// and channel count using linear interpolation. It keeps the last input
// frame and the fractional read position between calls so consecutive
// blocks join without seams.
type resampler struct {
	outRate, outCh int

	inRate, inCh int
	pos          float64   // next output position in input frames; -1 addresses prev
	prev         []float32 // last input frame, already channel-mapped
	havePrev     bool

	mixed []float32 // scratch: channel-mapped input
}

func newResampler(outRate, outCh int) *resampler {
	return &resampler{outRate: outRate, outCh: outCh, prev: make([]float32, outCh)}
}

// process returns the S16LE bytes for s. The result may be empty when the
// block is too short to produce an output sample.
func (r *resampler) process(s *AudioSamples) ([]byte, error) {
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return nil, fmt.Errorf("invalid sample format %d Hz x %d", s.SampleRate, s.Channels)
	}
	n := s.SampleCount
	if need := n * s.Channels * s.Format.BytesPerSample(); s.Format.BytesPerSample() == 0 || len(s.Data) < need {
		return nil, fmt.Errorf("short %s sample block: %d bytes for %d frames", s.Format, len(s.Data), n)
	}
	if n == 0 {
		return nil, nil
	}

	if s.SampleRate == r.outRate && s.Channels == r.outCh && s.Format == AudioFormatS16 {
		r.inRate, r.inCh = s.SampleRate, s.Channels
		r.pos, r.havePrev = 0, false
		return append([]byte(nil), s.Data[:n*r.outCh*2]...), nil
	}

	if s.SampleRate != r.inRate || s.Channels != r.inCh {
		// Format change: restart interpolation.
		r.inRate, r.inCh = s.SampleRate, s.Channels
		r.pos, r.havePrev = 0, false
	}

	r.mix(s)

	step := float64(r.inRate) / float64(r.outRate)
	est := int(float64(n)/step) + 2
	out := make([]byte, 0, est*r.outCh*2)
	for r.pos < float64(n-1) {
		i := int(math.Floor(r.pos))
		frac := float32(r.pos - float64(i))
		for c := 0; c < r.outCh; c++ {
			var a float32
			if i < 0 {
				a = r.prev[c]
			} else {
				a = r.mixed[i*r.outCh+c]
			}
			b := r.mixed[(i+1)*r.outCh+c]
			out = binary.LittleEndian.AppendUint16(out, uint16(saturate16(float64(a+(b-a)*frac))))
		}
		r.pos += step
	}
	r.pos -= float64(n)
	copy(r.prev, r.mixed[(n-1)*r.outCh:n*r.outCh])
	r.havePrev = true
	return out, nil
}

// Stereo downmix matrices for surround input, in ffmpeg's default channel
// order, with ITU-R BS.775 coefficients: centre and surrounds at -3 dB, LFE
// dropped. Rows are normalised so full-scale input cannot clip.
var stereoDownmix = map[int][2][]float32{
	// FL FR FC BL BR
	5: downmixRows([]float32{1, 0, minus3dB, minus3dB, 0}, []float32{0, 1, minus3dB, 0, minus3dB}),
	// FL FR FC LFE BL BR
	6: downmixRows([]float32{1, 0, minus3dB, 0, minus3dB, 0}, []float32{0, 1, minus3dB, 0, 0, minus3dB}),
	// FL FR FC LFE BL BR SL SR
	8: downmixRows(
		[]float32{1, 0, minus3dB, 0, minus3dB, 0, minus3dB, 0},
		[]float32{0, 1, minus3dB, 0, 0, minus3dB, 0, minus3dB}),
}

const minus3dB = 0.70710677

func downmixRows(left, right []float32) [2][]float32 {
	rows := [2][]float32{left, right}
	for _, row := range rows {
		var sum float32
		for _, v := range row {
			sum += v
		}
		for i := range row {
			row[i] /= sum
		}
	}
	return rows
}

// mix decodes s into r.mixed with r.outCh channels per frame. 5.0, 5.1 and
// 7.1 input going to stereo uses stereoDownmix. Other extra input channels
// are averaged into the output channel they fold onto; missing ones repeat
// the input channels.
func (r *resampler) mix(s *AudioSamples) {
	n := s.SampleCount
	if cap(r.mixed) < n*r.outCh {
		r.mixed = make([]float32, n*r.outCh)
	}
	r.mixed = r.mixed[:n*r.outCh]

	sample := func(frame, ch int) float32 {
		idx := frame*s.Channels + ch
		if s.Format == AudioFormatF32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(s.Data[4*idx:])) * math.MaxInt16
		}
		return float32(int16(binary.LittleEndian.Uint16(s.Data[2*idx:])))
	}

	if matrix, ok := stereoDownmix[s.Channels]; ok && r.outCh == 2 {
		for f := 0; f < n; f++ {
			for c, row := range matrix {
				var sum float32
				for in, k := range row {
					if k != 0 {
						sum += k * sample(f, in)
					}
				}
				r.mixed[f*2+c] = sum
			}
		}
		return
	}

	for f := 0; f < n; f++ {
		for c := 0; c < r.outCh; c++ {
			if s.Channels <= r.outCh {
				r.mixed[f*r.outCh+c] = sample(f, c%s.Channels)
				continue
			}
			var sum float32
			var k int
			for in := c; in < s.Channels; in += r.outCh {
				sum += sample(f, in)
				k++
			}
			r.mixed[f*r.outCh+c] = sum / float32(k)
		}
	}
}
