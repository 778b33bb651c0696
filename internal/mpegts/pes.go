package mpegts

import "fmt"

func isPESStart(data []byte) bool {
	return len(data) >= 3 && data[0] == 0x00 && data[1] == 0x00 && data[2] == 0x01
}

// Stream IDs without the optional PES header: padding, private_stream_2,
// ECM, EMM, DSMCC, H.222.1 type E and the program stream directory.
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(payload []byte) (*PES, error) {
	if len(payload) < 6 || !isPESStart(payload) {
		return nil, fmt.Errorf("mpegts: invalid PES start (%d bytes)", len(payload))
	}
	pes := &PES{StreamID: payload[3], PTS: -1, DTS: -1}
	packetLen := int(payload[4])<<8 | int(payload[5])

	dataStart := 6
	if hasOptionalHeader(pes.StreamID) {
		if len(payload) < 9 {
			return nil, fmt.Errorf("mpegts: PES optional header truncated")
		}
		flags := payload[7] >> 6
		dataStart = 9 + int(payload[8])
		if dataStart > len(payload) {
			return nil, fmt.Errorf("mpegts: PES header length %d overruns payload", payload[8])
		}
		if flags&0x2 != 0 && len(payload) >= 14 {
			pes.PTS = parseTimestamp(payload[9:14])
		}
		if flags == 0x3 && len(payload) >= 19 {
			pes.DTS = parseTimestamp(payload[14:19])
		}
	}

	// A zero length means unbounded, which is common for video.
	end := len(payload)
	if packetLen > 0 && 6+packetLen < end {
		end = 6 + packetLen
	}
	pes.Data = payload[dataStart:end]
	return pes, nil
}

// parseTimestamp decodes a 33-bit PTS/DTS from its 5-byte marker layout.
func parseTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1&0x7F)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1&0x7F)
}
