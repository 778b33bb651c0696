package playback

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeSource replays a fixed packet list, then io.EOF. If err is set it is
// returned once failAt packets have been delivered.
type fakeSource struct {
	packets []Packet
	next    int
	info    StreamInfo
	err     error
	failAt  int
	reads   int
	closed  int
}

func (s *fakeSource) Next() (Packet, error) {
	s.reads++
	if s.err != nil && s.next == s.failAt {
		return Packet{}, s.err
	}
	if s.next >= len(s.packets) {
		return Packet{}, io.EOF
	}
	p := s.packets[s.next]
	s.next++
	return p, nil
}

func (s *fakeSource) Streams() StreamInfo { return s.info }

func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

func vpkt(pts int64, data ...byte) Packet {
	return Packet{Stream: StreamVideo, Data: data, PTS: pts, DTS: pts}
}

func apkt(pts int64, data ...byte) Packet {
	return Packet{Stream: StreamAudio, Data: data, PTS: pts, DTS: pts}
}

// grayFrame returns an I420 frame with every luma sample set to y and
// neutral chroma.
func grayFrame(w, h int, y byte, ts int64) *VideoFrame {
	cw, ch := (w+1)/2, (h+1)/2
	yp := make([]byte, w*h)
	for i := range yp {
		yp[i] = y
	}
	u := make([]byte, cw*ch)
	v := make([]byte, cw*ch)
	for i := range u {
		u[i], v[i] = 128, 128
	}
	return &VideoFrame{
		Data:      [][]byte{yp, u, v},
		Stride:    []int{w, cw, cw},
		Width:     w,
		Height:    h,
		Format:    PixelFormatI420,
		Timestamp: ts,
	}
}

// Packet payloads understood by fakeVideoDecoder.
const (
	fakeHeader  = 'H' // parameter sets: no picture
	fakePicture = 'P' // one picture
	fakeCorrupt = 'X' // rejected by SendPacket
)

// fakeVideoDecoder turns every fakePicture packet into one gray frame of
// its configured size, holding back `delay` pictures until Flush. It
// refuses the first `refuse` packets with ErrDecoderBusy and, after Flush,
// reports busy `drainPolls` times before handing out the held pictures.
type fakeVideoDecoder struct {
	width, height int
	delay         int
	refuse        int
	drainPolls    int

	held    []*VideoFrame
	ready   []*VideoFrame
	flushed bool
	flushes int
	closed  int
	stats   DecoderStats
}

func (d *fakeVideoDecoder) SendPacket(p Packet) error {
	if len(p.Data) == 0 {
		return nil
	}
	if d.refuse > 0 {
		d.refuse--
		return ErrDecoderBusy
	}
	d.stats.PacketsSent++
	switch p.Data[0] {
	case fakeCorrupt:
		d.stats.CorruptedFrames++
		return errors.New("corrupt packet")
	case fakePicture:
		d.held = append(d.held, grayFrame(d.width, d.height, 128, ticksToNanos(p.PTS)))
		if len(d.held) > d.delay {
			d.ready = append(d.ready, d.held[0])
			d.held = d.held[1:]
		}
	}
	return nil
}

func (d *fakeVideoDecoder) ReceiveFrame() (*VideoFrame, error) {
	if d.flushed && d.drainPolls > 0 {
		d.drainPolls--
		return nil, ErrDecoderBusy
	}
	if len(d.ready) > 0 {
		f := d.ready[0]
		d.ready = d.ready[1:]
		d.stats.FramesDecoded++
		return f, nil
	}
	if d.flushed {
		return nil, io.EOF
	}
	return nil, ErrNeedMorePackets
}

func (d *fakeVideoDecoder) Flush() error {
	d.flushes++
	d.flushed = true
	d.ready = append(d.ready, d.held...)
	d.held = nil
	return nil
}

func (d *fakeVideoDecoder) Close() error {
	d.closed++
	return nil
}

func (d *fakeVideoDecoder) Provider() Provider  { return ProviderAuto }
func (d *fakeVideoDecoder) Codec() VideoCodec   { return VideoCodecH264 }
func (d *fakeVideoDecoder) Stats() DecoderStats { return d.stats }

// fakeAudioDecoder turns every audio packet into `samples` frames of S16
// audio at rate/channels, each sample holding the packet's first byte.
type fakeAudioDecoder struct {
	rate, channels int
	samples        int
	failOn         byte

	ready   []*AudioSamples
	flushed bool
	closed  int
	stats   DecoderStats
}

func (d *fakeAudioDecoder) SendPacket(p Packet) error {
	if len(p.Data) == 0 {
		return nil
	}
	if d.failOn != 0 && p.Data[0] == d.failOn {
		return errors.New("bad audio packet")
	}
	d.stats.PacketsSent++
	data := make([]byte, 0, d.samples*d.channels*2)
	for i := 0; i < d.samples*d.channels; i++ {
		data = binary.LittleEndian.AppendUint16(data, uint16(int16(p.Data[0])))
	}
	d.ready = append(d.ready, &AudioSamples{
		Data:        data,
		SampleRate:  d.rate,
		Channels:    d.channels,
		SampleCount: d.samples,
		Format:      AudioFormatS16,
		Timestamp:   ticksToNanos(p.PTS),
	})
	return nil
}

func (d *fakeAudioDecoder) ReceiveSamples() (*AudioSamples, error) {
	if len(d.ready) > 0 {
		s := d.ready[0]
		d.ready = d.ready[1:]
		d.stats.FramesDecoded++
		return s, nil
	}
	if d.flushed {
		return nil, io.EOF
	}
	return nil, ErrNeedMorePackets
}

func (d *fakeAudioDecoder) Flush() error {
	d.flushed = true
	return nil
}

func (d *fakeAudioDecoder) Close() error {
	d.closed++
	return nil
}

func (d *fakeAudioDecoder) Provider() Provider  { return ProviderAuto }
func (d *fakeAudioDecoder) Codec() AudioCodec   { return AudioCodecAAC }
func (d *fakeAudioDecoder) Stats() DecoderStats { return d.stats }
