package playback

import (
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/thesyncim/playback/internal/log"
)

// maxSendsPerPoll bounds how many packets one Poll hands to a decoder that
// has not produced output yet.
const maxSendsPerPoll = 16

// videoPipeline pulls video packets, decodes them and converts the pictures
// to BGRX at the container's native size.
type videoPipeline struct {
	queues  *StreamQueues
	dec     VideoDecoder
	meta    ContainerMetadata
	conv    frameConverter
	logger  zerolog.Logger
	metrics *Metrics

	produced int64
	pending  *Packet
	flushed  bool
	done     bool
	mismatch error // sticky, returned on every call
}

func newVideoPipeline(q *StreamQueues, dec VideoDecoder, meta ContainerMetadata, logger zerolog.Logger, m *Metrics) *videoPipeline {
	return &videoPipeline{queues: q, dec: dec, meta: meta, logger: logger, metrics: m}
}

// Poll returns the next frame. It returns nil, nil when no frame is ready
// yet, once the stream is exhausted, or after a decode error has been
// reported; Ended tells these apart.
func (v *videoPipeline) Poll() (*Frame, error) {
	if v.mismatch != nil {
		return nil, v.mismatch
	}
	if v.done {
		return nil, nil
	}

	for sent := 0; ; {
		raw, err := v.dec.ReceiveFrame()
		switch {
		case err == nil:
			return v.emit(raw)
		case errors.Is(err, io.EOF):
			v.finish()
			return nil, nil
		case errors.Is(err, ErrDecoderBusy):
			return nil, nil
		case !errors.Is(err, ErrNeedMorePackets):
			return nil, v.fail(err)
		case v.flushed:
			v.finish()
			return nil, nil
		}
		if sent == maxSendsPerPoll {
			return nil, nil
		}

		pkt, ok, err := v.next()
		if err != nil {
			return nil, v.fail(err)
		}
		if !ok {
			if !v.queues.Exhausted() {
				// The refill was all audio; the next poll refills again.
				return nil, nil
			}
			if err := v.dec.Flush(); err != nil {
				return nil, v.fail(err)
			}
			v.flushed = true
			continue
		}
		err = v.dec.SendPacket(pkt)
		if errors.Is(err, ErrDecoderBusy) {
			v.pending = &pkt
			return nil, nil
		}
		if err != nil {
			return nil, v.fail(err)
		}
		sent++
	}
}

// next returns the packet a busy decoder refused, else the next queued one.
func (v *videoPipeline) next() (Packet, bool, error) {
	if v.pending != nil {
		p := *v.pending
		v.pending = nil
		return p, true, nil
	}
	return v.queues.Pop(StreamVideo)
}

func (v *videoPipeline) emit(raw *VideoFrame) (*Frame, error) {
	if raw.Width != v.meta.Width || raw.Height != v.meta.Height {
		v.mismatch = &FormatMismatchError{
			WantWidth: v.meta.Width, WantHeight: v.meta.Height,
			GotWidth: raw.Width, GotHeight: raw.Height,
		}
		v.logger.Error().Err(v.mismatch).Msg("decoded picture does not match container metadata")
		return nil, v.mismatch
	}

	pix := make([]byte, raw.Width*raw.Height*4)
	if err := v.conv.convert(raw, pix); err != nil {
		return nil, v.fail(err)
	}

	v.produced++
	v.metrics.frameDecoded()
	pts := time.Duration(-1)
	if raw.Timestamp >= 0 {
		pts = time.Duration(raw.Timestamp)
	}
	if e := v.logger.Trace(); e.Enabled() {
		e.Int64(log.FieldFrame, v.produced).Dur(log.FieldPTS, pts).Msg("frame decoded")
	}
	return &Frame{pix: pix, width: raw.Width, height: raw.Height, Index: v.produced, PTS: pts}, nil
}

// fail reports err once and ends the pipeline. Container errors pass
// through unchanged; everything else is a decode error.
func (v *videoPipeline) fail(err error) error {
	v.done = true
	var demux *DemuxError
	if !errors.As(err, &demux) {
		err = &DecodeError{Stream: StreamVideo, Err: err}
		v.metrics.decodeError(StreamVideo)
	}
	v.logger.Error().Err(err).Int64(log.FieldFrame, v.produced).Msg("video pipeline stopped")
	return err
}

func (v *videoPipeline) finish() {
	if !v.done {
		v.done = true
		v.logger.Debug().Int64(log.FieldFrame, v.produced).Msg("video stream ended")
	}
}

// Produced returns the number of frames returned so far.
func (v *videoPipeline) Produced() int64 { return v.produced }

// Ended reports whether Poll will never return another frame.
func (v *videoPipeline) Ended() bool { return v.done || v.mismatch != nil }
