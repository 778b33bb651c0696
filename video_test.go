package playback

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMeta = ContainerMetadata{FPS: 10, Width: 16, Height: 8}

func newTestVideoPipeline(src PacketSource, dec VideoDecoder, m *Metrics) *videoPipeline {
	q := NewStreamQueues(src, DefaultRefillBatch, zerolog.Nop(), m)
	return newVideoPipeline(q, dec, testMeta, zerolog.Nop(), m)
}

func TestVideoPipeline_LookAheadYieldsThreeFrames(t *testing.T) {
	t.Parallel()
	src := &fakeSource{packets: []Packet{
		vpkt(0, fakeHeader),
		apkt(0, 1),
		vpkt(0, fakeHeader),
		vpkt(9000, fakePicture),
		apkt(9000, 2),
		vpkt(18000, fakePicture),
		vpkt(27000, fakePicture),
	}}
	dec := &fakeVideoDecoder{width: 16, height: 8, delay: 1}
	v := newTestVideoPipeline(src, dec, nil)

	for i := 1; i <= 3; i++ {
		f, err := v.Poll()
		require.NoError(t, err)
		require.NotNil(t, f, "frame %d", i)
		assert.Equal(t, int64(i), f.Index)
		assert.Equal(t, time.Duration(i)*100*time.Millisecond, f.PTS)
		assert.Equal(t, 16, f.Width())
		assert.Equal(t, 8, f.Height())
		assert.Len(t, f.Pixels(), 16*8*4)
	}

	f, err := v.Poll()
	require.NoError(t, err)
	assert.Nil(t, f, "fourth poll reports the end")
	assert.Equal(t, 1, dec.flushes)

	f, err = v.Poll()
	require.NoError(t, err)
	assert.Nil(t, f, "end is sticky")
	assert.Equal(t, int64(3), v.Produced())
}

func TestVideoPipeline_ConvertsToBGRX(t *testing.T) {
	t.Parallel()
	src := &fakeSource{packets: []Packet{vpkt(-1, fakePicture)}}
	v := newTestVideoPipeline(src, &fakeVideoDecoder{width: 16, height: 8}, nil)

	f, err := v.Poll()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, time.Duration(-1), f.PTS)
	assert.Equal(t, 64, f.Stride())
	for i := 0; i < len(f.Pixels()); i += 4 {
		require.Equal(t, []byte{130, 130, 130, 0xFF}, f.Pixels()[i:i+4], "pixel %d", i/4)
	}
}

func TestVideoPipeline_FormatMismatchIsSticky(t *testing.T) {
	t.Parallel()
	src := &fakeSource{packets: []Packet{vpkt(0, fakePicture), vpkt(1, fakePicture)}}
	v := newTestVideoPipeline(src, &fakeVideoDecoder{width: 32, height: 8}, nil)

	f, err := v.Poll()
	assert.Nil(t, f)
	require.ErrorIs(t, err, ErrFormatMismatch)
	var fm *FormatMismatchError
	require.ErrorAs(t, err, &fm)
	assert.Equal(t, FormatMismatchError{WantWidth: 16, WantHeight: 8, GotWidth: 32, GotHeight: 8}, *fm)

	for i := 0; i < 3; i++ {
		f, again := v.Poll()
		assert.Nil(t, f)
		assert.Same(t, err, again)
	}
}

func TestVideoPipeline_DecodeErrorReportedOnce(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test", "e1")
	src := &fakeSource{packets: []Packet{vpkt(0, fakePicture), vpkt(1, fakeCorrupt), vpkt(2, fakePicture)}}
	v := newTestVideoPipeline(src, &fakeVideoDecoder{width: 16, height: 8}, m)

	f, err := v.Poll()
	require.NoError(t, err)
	require.NotNil(t, f)

	f, err = v.Poll()
	assert.Nil(t, f)
	require.ErrorIs(t, err, ErrDecode)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, StreamVideo, de.Stream)

	f, err = v.Poll()
	assert.NoError(t, err)
	assert.Nil(t, f)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeErrors.WithLabelValues("video")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesDecoded))
}

func TestVideoPipeline_DemuxErrorPassesThrough(t *testing.T) {
	t.Parallel()
	boom := &DemuxError{Op: "read", Err: errors.New("truncated packet")}
	src := &fakeSource{err: boom}
	v := newTestVideoPipeline(src, &fakeVideoDecoder{width: 16, height: 8}, nil)

	_, err := v.Poll()
	require.ErrorIs(t, err, ErrDemux)
	assert.NotErrorIs(t, err, ErrDecode)

	f, err := v.Poll()
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestVideoPipeline_EmptyStream(t *testing.T) {
	t.Parallel()
	src := &fakeSource{packets: []Packet{apkt(0, 1), apkt(1, 2)}}
	dec := &fakeVideoDecoder{width: 16, height: 8}
	v := newTestVideoPipeline(src, dec, nil)

	f, err := v.Poll()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, 1, dec.flushes)
}

func TestVideoPipeline_SparseVideoPullsOneBatchPerPoll(t *testing.T) {
	t.Parallel()
	packets := []Packet{vpkt(0, fakePicture)}
	for i := 0; i < 50; i++ {
		packets = append(packets, apkt(int64(i)*900, byte(i+1)))
	}
	packets = append(packets, vpkt(9000, fakePicture))
	src := &fakeSource{packets: packets}
	v := newTestVideoPipeline(src, &fakeVideoDecoder{width: 16, height: 8}, nil)

	var frames, empty int
	for poll := 0; poll < 20 && !v.Ended(); poll++ {
		before := src.reads
		f, err := v.Poll()
		require.NoError(t, err)
		assert.LessOrEqual(t, src.reads-before, DefaultRefillBatch, "poll %d", poll)
		if f != nil {
			frames++
		} else if !v.Ended() {
			empty++
		}
	}
	assert.Equal(t, 2, frames)
	assert.Positive(t, empty, "audio-only refills return nothing yet")
	assert.True(t, v.Ended())
	assert.Equal(t, 50, v.queues.Len(StreamAudio), "audio is kept for its own pipeline")
}

func TestVideoPipeline_BusyDecoderKeepsPacket(t *testing.T) {
	t.Parallel()
	src := &fakeSource{packets: []Packet{vpkt(0, fakePicture), vpkt(9000, fakePicture)}}
	dec := &fakeVideoDecoder{width: 16, height: 8, refuse: 2}
	v := newTestVideoPipeline(src, dec, nil)

	for i := 0; i < 2; i++ {
		f, err := v.Poll()
		require.NoError(t, err)
		assert.Nil(t, f)
		assert.False(t, v.Ended(), "busy is not the end")
	}

	f, err := v.Poll()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, time.Duration(0), f.PTS, "the refused packet is resent")

	f, err = v.Poll()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, 100*time.Millisecond, f.PTS)

	f, err = v.Poll()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, v.Ended())
	assert.Equal(t, uint64(2), dec.stats.PacketsSent)
}

func TestVideoPipeline_BusyWhileDraining(t *testing.T) {
	t.Parallel()
	src := &fakeSource{packets: []Packet{vpkt(0, fakePicture)}}
	v := newTestVideoPipeline(src, &fakeVideoDecoder{width: 16, height: 8, delay: 1, drainPolls: 2}, nil)

	for i := 0; i < 2; i++ {
		f, err := v.Poll()
		require.NoError(t, err)
		assert.Nil(t, f)
		assert.False(t, v.Ended())
	}
	f, err := v.Poll()
	require.NoError(t, err)
	require.NotNil(t, f)

	f, err = v.Poll()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, v.Ended())
}

func TestVideoPipeline_SendsPerPollAreBounded(t *testing.T) {
	t.Parallel()
	var packets []Packet
	for i := 0; i < 3*maxSendsPerPoll; i++ {
		packets = append(packets, vpkt(int64(i)*9000, fakeHeader))
	}
	src := &fakeSource{packets: packets}
	dec := &fakeVideoDecoder{width: 16, height: 8}
	v := newTestVideoPipeline(src, dec, nil)

	f, err := v.Poll()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.False(t, v.Ended())
	assert.Equal(t, uint64(maxSendsPerPoll), dec.stats.PacketsSent)

	for poll := 0; poll < 10 && !v.Ended(); poll++ {
		_, err := v.Poll()
		require.NoError(t, err)
	}
	assert.True(t, v.Ended())
	assert.Equal(t, uint64(3*maxSendsPerPoll), dec.stats.PacketsSent)
}
