// Package mpegtstest builds small synthetic transport streams for tests.
package mpegtstest

import (
	"bytes"
	"encoding/binary"

	"github.com/thesyncim/playback/internal/mpegts"
)

// Default PIDs used by NewAV.
const (
	PMTPID   = 0x1000
	VideoPID = 0x100
	AudioPID = 0x101
)

// Stream is one PMT entry to write.
type Stream struct {
	PID         uint16
	StreamType  uint8
	Descriptors []mpegts.Descriptor
}

// Writer accumulates transport packets in memory.
type Writer struct {
	buf bytes.Buffer
	cc  map[uint16]uint8
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{cc: make(map[uint16]uint8)}
}

// NewAV returns a writer that already carries a PAT and a PMT declaring the
// given video and audio stream types on VideoPID and AudioPID.
func NewAV(videoType, audioType uint8, audioDescriptors ...mpegts.Descriptor) *Writer {
	w := NewWriter()
	w.PAT(PMTPID)
	w.PMT(PMTPID, []Stream{
		{PID: VideoPID, StreamType: videoType},
		{PID: AudioPID, StreamType: audioType, Descriptors: audioDescriptors},
	})
	return w
}

// Bytes returns the stream written so far.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// PAT writes a single-program association table.
func (w *Writer) PAT(pmtPID uint16) {
	body := []byte{
		0x00, 0x01, // transport_stream_id
		0xC1, 0x00, 0x00, // version 0, current, section 0/0
		0x00, 0x01, // program 1
		0xE0 | byte(pmtPID>>8), byte(pmtPID),
	}
	w.section(0x0000, 0x00, body)
}

// PMT writes a program map table for program 1.
func (w *Writer) PMT(pmtPID uint16, streams []Stream) {
	pcr := uint16(0x1FFF)
	if len(streams) > 0 {
		pcr = streams[0].PID
	}
	body := []byte{
		0x00, 0x01, // program_number
		0xC1, 0x00, 0x00,
		0xE0 | byte(pcr>>8), byte(pcr),
		0xF0, 0x00, // program_info_length
	}
	for _, s := range streams {
		var info []byte
		for _, d := range s.Descriptors {
			info = append(info, d.Tag, byte(len(d.Data)))
			info = append(info, d.Data...)
		}
		body = append(body, s.StreamType, 0xE0|byte(s.PID>>8), byte(s.PID),
			0xF0|byte(len(info)>>8), byte(len(info)))
		body = append(body, info...)
	}
	w.section(pmtPID, 0x02, body)
}

func (w *Writer) section(pid uint16, tableID byte, body []byte) {
	length := len(body) + 4
	sec := []byte{tableID, 0xB0 | byte(length>>8), byte(length)}
	sec = append(sec, body...)
	sec = binary.BigEndian.AppendUint32(sec, mpegts.CRC32(sec))
	w.payload(pid, append([]byte{0x00}, sec...))
}

// PES writes one PES packet carrying data with the given PTS (90 kHz).
// A negative pts omits the timestamp.
func (w *Writer) PES(pid uint16, streamID byte, pts int64, data []byte) {
	hdr := []byte{0x00, 0x00, 0x01, streamID, 0, 0, 0x80, 0x00, 0x00}
	if pts >= 0 {
		hdr[7] = 0x80
		hdr[8] = 5
		hdr = append(hdr, encodeTimestamp(0x2, pts)...)
	}
	if n := len(hdr) - 6 + len(data); n <= 0xFFFF && streamID < 0xE0 {
		binary.BigEndian.PutUint16(hdr[4:], uint16(n))
	}
	w.payload(pid, append(hdr, data...))
}

// Video writes an H.264 PES on VideoPID.
func (w *Writer) Video(pts int64, data []byte) { w.PES(VideoPID, 0xE0, pts, data) }

// Audio writes an audio PES on AudioPID.
func (w *Writer) Audio(pts int64, data []byte) { w.PES(AudioPID, 0xC0, pts, data) }

// payload splits p over as many packets as needed, stuffing the last one
// through its adaptation field.
func (w *Writer) payload(pid uint16, p []byte) {
	first := true
	for len(p) > 0 {
		pkt := make([]byte, mpegts.PacketSize)
		pkt[0] = 0x47
		pkt[1] = byte(pid>>8) & 0x1F
		if first {
			pkt[1] |= 0x40
		}
		pkt[2] = byte(pid)
		cc := w.cc[pid]
		w.cc[pid] = (cc + 1) & 0x0F

		room := mpegts.PacketSize - 4
		if len(p) >= room {
			pkt[3] = 0x10 | cc
			copy(pkt[4:], p[:room])
			p = p[room:]
		} else {
			pkt[3] = 0x30 | cc
			stuff := room - len(p) - 1
			pkt[4] = byte(stuff)
			if stuff > 0 {
				pkt[5] = 0x00
				for i := 6; i < 5+stuff; i++ {
					pkt[i] = 0xFF
				}
			}
			copy(pkt[5+stuff:], p)
			p = nil
		}
		w.buf.Write(pkt)
		first = false
	}
}

func encodeTimestamp(prefix byte, ts int64) []byte {
	return []byte{
		prefix<<4 | byte(ts>>29)&0x0E | 0x01,
		byte(ts >> 22),
		byte(ts>>14)&0xFE | 0x01,
		byte(ts >> 7),
		byte(ts<<1) | 0x01,
	}
}
