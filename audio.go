package playback

import (
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// audioPipeline pulls audio packets, decodes them and resamples to the
// engine's output format.
type audioPipeline struct {
	queues  *StreamQueues
	dec     AudioDecoder
	rs      *resampler
	logger  zerolog.Logger
	metrics *Metrics

	spans    int64
	duration time.Duration
	pending  *Packet
	flushed  bool
	done     bool
}

func newAudioPipeline(q *StreamQueues, dec AudioDecoder, rate, channels int, logger zerolog.Logger, m *Metrics) *audioPipeline {
	return &audioPipeline{queues: q, dec: dec, rs: newResampler(rate, channels), logger: logger, metrics: m}
}

// Poll returns the next span of samples. It returns nil, nil when nothing
// is ready yet, once the stream is exhausted, or after a decode error has
// been reported; Ended tells these apart.
func (a *audioPipeline) Poll() (*AudioSpan, error) {
	if a.done {
		return nil, nil
	}

	for sent := 0; ; {
		s, err := a.dec.ReceiveSamples()
		switch {
		case err == nil:
			span, err := a.emit(s)
			if err != nil {
				return nil, a.fail(err)
			}
			if span != nil {
				return span, nil
			}
			continue
		case errors.Is(err, io.EOF):
			a.finish()
			return nil, nil
		case errors.Is(err, ErrDecoderBusy):
			return nil, nil
		case !errors.Is(err, ErrNeedMorePackets):
			return nil, a.fail(err)
		case a.flushed:
			a.finish()
			return nil, nil
		}
		if sent == maxSendsPerPoll {
			return nil, nil
		}

		pkt, ok, err := a.next()
		if err != nil {
			return nil, a.fail(err)
		}
		if !ok {
			if !a.queues.Exhausted() {
				return nil, nil
			}
			if err := a.dec.Flush(); err != nil {
				return nil, a.fail(err)
			}
			a.flushed = true
			continue
		}
		err = a.dec.SendPacket(pkt)
		if errors.Is(err, ErrDecoderBusy) {
			a.pending = &pkt
			return nil, nil
		}
		if err != nil {
			return nil, a.fail(err)
		}
		sent++
	}
}

func (a *audioPipeline) next() (Packet, bool, error) {
	if a.pending != nil {
		p := *a.pending
		a.pending = nil
		return p, true, nil
	}
	return a.queues.Pop(StreamAudio)
}

// Ended reports whether Poll will never return another span.
func (a *audioPipeline) Ended() bool { return a.done }

func (a *audioPipeline) emit(s *AudioSamples) (*AudioSpan, error) {
	data, err := a.rs.process(s)
	if err != nil || len(data) == 0 {
		return nil, err
	}
	pts := time.Duration(-1)
	if s.Timestamp >= 0 {
		pts = time.Duration(s.Timestamp)
	}
	span := NewAudioSpan(data, a.rs.outRate, a.rs.outCh, pts)
	a.spans++
	a.duration += span.Duration()
	a.metrics.audioSpan(span.Duration())
	return span, nil
}

func (a *audioPipeline) fail(err error) error {
	a.done = true
	var demux *DemuxError
	if !errors.As(err, &demux) {
		err = &DecodeError{Stream: StreamAudio, Err: err}
		a.metrics.decodeError(StreamAudio)
	}
	a.logger.Error().Err(err).Int64("spans", a.spans).Msg("audio pipeline stopped")
	return err
}

func (a *audioPipeline) finish() {
	if !a.done {
		a.done = true
		a.logger.Debug().Int64("spans", a.spans).Dur("duration", a.duration).Msg("audio stream ended")
	}
}
