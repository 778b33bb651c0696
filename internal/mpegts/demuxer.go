package mpegts

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrSyncLost is returned when a packet does not start with 0x47.
	ErrSyncLost = errors.New("mpegts: sync byte lost")
	// ErrTruncated is returned when the stream ends inside a packet.
	ErrTruncated = errors.New("mpegts: truncated packet")
)

// Demuxer reads transport packets from a reader and yields PAT, PMT and
// PES units in stream order.
type Demuxer struct {
	ctx     context.Context
	r       io.Reader
	pktSize int
	buf     []byte
	pool    *pool
	pmtPIDs map[uint16]bool
	offset  int64

	pending   []*Unit
	eof       bool
	truncated bool
	psiErr    error
}

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithPacketSize sets the on-disk packet size. 192 handles M2TS files whose
// packets carry a 4-byte timecode prefix.
func WithPacketSize(n int) Option {
	return func(d *Demuxer) { d.pktSize = n }
}

// NewDemuxer creates a demuxer reading from r.
func NewDemuxer(ctx context.Context, r io.Reader, opts ...Option) *Demuxer {
	d := &Demuxer{
		ctx:     ctx,
		r:       r,
		pktSize: PacketSize,
		pmtPIDs: make(map[uint16]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pktSize < PacketSize {
		d.pktSize = PacketSize
	}
	d.buf = make([]byte, d.pktSize)
	d.pool = newPool(d.isPSI)
	return d
}

func (d *Demuxer) isPSI(pid uint16) bool {
	return pid == pidPAT || d.pmtPIDs[pid]
}

// PSIError returns the most recent PAT or PMT section that was dropped as
// corrupt, or nil if every table so far parsed.
func (d *Demuxer) PSIError() error { return d.psiErr }

// Offset returns the number of bytes consumed from the reader.
func (d *Demuxer) Offset() int64 { return d.offset }

// Next returns the next unit. It returns io.EOF once the stream is fully
// consumed, or ErrTruncated after the last complete unit if the stream
// ended mid-packet. ErrSyncLost is fatal.
func (d *Demuxer) Next() (*Unit, error) {
	for {
		if len(d.pending) > 0 {
			u := d.pending[0]
			d.pending = d.pending[1:]
			return u, nil
		}
		if d.eof {
			if d.truncated {
				return nil, fmt.Errorf("%w at offset %d", ErrTruncated, d.offset)
			}
			return nil, io.EOF
		}
		if err := d.ctx.Err(); err != nil {
			return nil, err
		}

		n, err := io.ReadFull(d.r, d.buf)
		d.offset += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				d.truncated = n > 0
				for _, pkts := range d.pool.drain() {
					d.process(pkts)
				}
				continue
			}
			return nil, err
		}

		pkt, err := parsePacket(d.buf[d.pktSize-PacketSize:])
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", d.offset-int64(n), err)
		}
		if pkts := d.pool.add(pkt); pkts != nil {
			d.process(pkts)
		}
	}
}

// process parses a complete accumulation into units. Corrupt sections and
// PES headers are dropped; a corrupt section is remembered for PSIError.
func (d *Demuxer) process(pkts []*Packet) {
	pid := pkts[0].Header.PID
	payload := joinPayloads(pkts)
	if len(payload) == 0 {
		return
	}

	if d.isPSI(pid) {
		units, err := parsePSI(pid, payload)
		if err != nil {
			d.psiErr = err
		}
		for _, u := range units {
			if u.PAT != nil {
				for _, p := range u.PAT.Programs {
					d.pmtPIDs[p.PMTPID] = true
				}
			}
		}
		d.pending = append(d.pending, units...)
		return
	}

	if !isPESStart(payload) {
		return
	}
	pes, err := parsePES(payload)
	if err != nil {
		return
	}
	d.pending = append(d.pending, &Unit{PID: pid, PES: pes})
}
