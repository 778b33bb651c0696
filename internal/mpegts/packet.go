package mpegts

import "fmt"

const (
	// PacketSize is the size of a standard transport stream packet.
	PacketSize = 188
	syncByte   = 0x47
)

func parsePacket(buf []byte) (*Packet, error) {
	if len(buf) != PacketSize {
		return nil, fmt.Errorf("%w: packet size %d", ErrTruncated, len(buf))
	}
	if buf[0] != syncByte {
		return nil, fmt.Errorf("%w: got 0x%02X", ErrSyncLost, buf[0])
	}

	p := &Packet{}
	p.Header.TransportErrorIndicator = buf[1]&0x80 != 0
	p.Header.PayloadUnitStartIndicator = buf[1]&0x40 != 0
	p.Header.PID = uint16(buf[1]&0x1F)<<8 | uint16(buf[2])
	p.Header.HasAdaptationField = buf[3]&0x20 != 0
	p.Header.HasPayload = buf[3]&0x10 != 0
	p.Header.ContinuityCounter = buf[3] & 0x0F

	offset := 4
	if p.Header.HasAdaptationField {
		afLen := int(buf[offset])
		if afLen > 0 && offset+1 < PacketSize {
			p.Header.DiscontinuityIndicator = buf[offset+1]&0x80 != 0
		}
		offset += 1 + afLen
		if offset > PacketSize {
			return nil, fmt.Errorf("mpegts: adaptation field length %d overruns packet", afLen)
		}
	}

	if p.Header.HasPayload && offset < PacketSize {
		p.Payload = make([]byte, PacketSize-offset)
		copy(p.Payload, buf[offset:])
	}
	return p, nil
}
