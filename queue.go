package playback

import (
	"errors"
	"io"

	"github.com/rs/zerolog"
)

// DefaultRefillBatch is how many packets a refill pulls from the source.
const DefaultRefillBatch = 11

// packetFIFO is a slice-backed queue that reuses its storage once drained.
type packetFIFO struct {
	buf  []Packet
	head int
}

func (q *packetFIFO) push(p Packet) { q.buf = append(q.buf, p) }

func (q *packetFIFO) pop() (Packet, bool) {
	if q.head == len(q.buf) {
		return Packet{}, false
	}
	p := q.buf[q.head]
	q.buf[q.head] = Packet{}
	q.head++
	if q.head == len(q.buf) {
		q.buf, q.head = q.buf[:0], 0
	}
	return p, true
}

func (q *packetFIFO) len() int { return len(q.buf) - q.head }

func (q *packetFIFO) reset() { q.buf, q.head = nil, 0 }

// StreamQueues holds one FIFO per stream and refills them from a shared
// source on demand. Packets of the other stream pulled during a refill are
// kept, never dropped. It is not safe for concurrent use.
type StreamQueues struct {
	src       PacketSource
	batch     int
	queues    [2]packetFIFO
	exhausted bool
	logger    zerolog.Logger
	metrics   *Metrics
}

// NewStreamQueues creates queues over src. A batch < 1 uses
// DefaultRefillBatch.
func NewStreamQueues(src PacketSource, batch int, logger zerolog.Logger, metrics *Metrics) *StreamQueues {
	if batch < 1 {
		batch = DefaultRefillBatch
	}
	return &StreamQueues{src: src, batch: batch, logger: logger, metrics: metrics}
}

// Pop returns the next packet of stream. If that queue is empty it refills
// once and retries. ok is false when the stream has no more packets.
func (q *StreamQueues) Pop(stream StreamID) (p Packet, ok bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		if p, ok = q.queues[stream].pop(); ok {
			q.metrics.setQueueDepth(stream, q.queues[stream].len())
			return p, true, nil
		}
		if attempt == 0 {
			if err = q.refill(stream); err != nil {
				return Packet{}, false, err
			}
		}
	}
	return Packet{}, false, nil
}

// Len returns the number of packets queued for stream.
func (q *StreamQueues) Len(stream StreamID) int { return q.queues[stream].len() }

// Exhausted reports whether the source has reached its end.
func (q *StreamQueues) Exhausted() bool { return q.exhausted }

func (q *StreamQueues) refill(trigger StreamID) error {
	if q.exhausted {
		return nil
	}
	var pulled [2]int
	for i := 0; i < q.batch; i++ {
		p, err := q.src.Next()
		if errors.Is(err, io.EOF) {
			q.exhausted = true
			q.logger.Debug().Msg("source exhausted")
			break
		}
		if err != nil {
			return err
		}
		if p.Stream > StreamAudio {
			continue
		}
		q.queues[p.Stream].push(p)
		pulled[p.Stream]++
	}
	q.metrics.refilled(trigger)
	q.metrics.setQueueDepth(StreamVideo, q.queues[StreamVideo].len())
	q.metrics.setQueueDepth(StreamAudio, q.queues[StreamAudio].len())
	q.logger.Trace().
		Stringer("trigger", trigger).
		Int("video", pulled[StreamVideo]).
		Int("audio", pulled[StreamAudio]).
		Msg("refilled")
	return nil
}

// Drop discards every queued packet.
func (q *StreamQueues) Drop() {
	q.queues[StreamVideo].reset()
	q.queues[StreamAudio].reset()
}
