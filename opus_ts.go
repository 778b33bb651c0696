package playback

import (
	"errors"
	"fmt"
)

var errOpusControlHeader = errors.New("opus: bad control header")

// splitOpusAccessUnits splits the payload of an Opus PES into raw Opus
// packets. In MPEG-TS every packet is preceded by a control header: an
// 11-bit 0x3ff prefix, trim and extension flags, and the packet size coded
// as a run of 0xff bytes plus a final byte.
func splitOpusAccessUnits(data []byte) ([][]byte, error) {
	var packets [][]byte
	for i := 0; i < len(data); {
		if len(data)-i < 2 || data[i] != 0x7F || data[i+1]&0xE0 != 0xE0 {
			return packets, fmt.Errorf("%w at offset %d", errOpusControlHeader, i)
		}
		flags := data[i+1]
		i += 2

		size := 0
		for {
			if i >= len(data) {
				return packets, fmt.Errorf("%w: truncated size", errOpusControlHeader)
			}
			b := data[i]
			i++
			size += int(b)
			if b != 0xFF {
				break
			}
		}
		if flags&0x10 != 0 { // start trim
			i += 2
		}
		if flags&0x08 != 0 { // end trim
			i += 2
		}
		if flags&0x04 != 0 { // control extension
			if i >= len(data) {
				return packets, fmt.Errorf("%w: truncated extension", errOpusControlHeader)
			}
			i += 1 + int(data[i])
		}
		if i+size > len(data) {
			return packets, fmt.Errorf("%w: packet of %d bytes overruns payload", errOpusControlHeader, size)
		}
		packets = append(packets, data[i:i+size])
		i += size
	}
	return packets, nil
}
