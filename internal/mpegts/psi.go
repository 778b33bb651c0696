package mpegts

import "fmt"

const (
	pidPAT     = 0x0000
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// parsePSI walks every section in a reassembled PSI payload. Sections that
// fail their checksum are skipped and reported in the error; the valid ones
// are still returned.
func parsePSI(pid uint16, payload []byte) ([]*Unit, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("mpegts: empty PSI payload on PID %d", pid)
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return nil, fmt.Errorf("mpegts: PSI pointer field out of range on PID %d", pid)
	}

	var units []*Unit
	var crcErr error
	for offset+3 <= len(payload) {
		tableID := payload[offset]
		if tableID == 0xFF || payload[offset+1]&0x80 == 0 {
			break
		}
		sectionLen := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
		end := offset + 3 + sectionLen
		if end > len(payload) {
			break
		}
		section := payload[offset:end]
		offset = end

		if err := verifyCRC32(section); err != nil {
			crcErr = fmt.Errorf("%w: table 0x%02x on PID %d", err, tableID, pid)
			continue
		}
		switch tableID {
		case tableIDPAT:
			if pat := parsePAT(section); pat != nil {
				units = append(units, &Unit{PID: pid, PAT: pat})
			}
		case tableIDPMT:
			if pmt := parsePMT(section); pmt != nil {
				units = append(units, &Unit{PID: pid, PMT: pmt})
			}
		}
	}
	return units, crcErr
}

// Section layout: 8 header bytes, 4-byte program entries, 4 CRC bytes.
func parsePAT(section []byte) *PAT {
	if len(section) < 12 {
		return nil
	}
	pat := &PAT{}
	for i := 8; i+4 <= len(section)-4; i += 4 {
		number := uint16(section[i])<<8 | uint16(section[i+1])
		if number == 0 {
			continue // network PID
		}
		pat.Programs = append(pat.Programs, Program{
			Number: number,
			PMTPID: uint16(section[i+2]&0x1F)<<8 | uint16(section[i+3]),
		})
	}
	return pat
}

// Section layout: 12 header bytes, program descriptors, ES entries, 4 CRC bytes.
func parsePMT(section []byte) *PMT {
	if len(section) < 16 {
		return nil
	}
	pmt := &PMT{
		ProgramNumber: uint16(section[3])<<8 | uint16(section[4]),
		PCRPID:        uint16(section[8]&0x1F)<<8 | uint16(section[9]),
	}
	infoLen := int(section[10]&0x0F)<<8 | int(section[11])
	offset := 12 + infoLen
	end := len(section) - 4

	for offset+5 <= end {
		es := ElementaryStream{
			StreamType: section[offset],
			PID:        uint16(section[offset+1]&0x1F)<<8 | uint16(section[offset+2]),
		}
		esInfoLen := int(section[offset+3]&0x0F)<<8 | int(section[offset+4])
		offset += 5
		if offset+esInfoLen > end {
			break
		}
		es.Descriptors = parseDescriptors(section[offset : offset+esInfoLen])
		offset += esInfoLen
		pmt.Streams = append(pmt.Streams, es)
	}
	return pmt
}

func parseDescriptors(b []byte) []Descriptor {
	var ds []Descriptor
	for len(b) >= 2 {
		n := int(b[1])
		if 2+n > len(b) {
			break
		}
		ds = append(ds, Descriptor{Tag: b[0], Data: append([]byte(nil), b[2:2+n]...)})
		b = b[2+n:]
	}
	return ds
}

// psiComplete reports whether the accumulated payload holds every section
// it announces.
func psiComplete(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return false
	}
	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return true
		}
		if offset+3 > len(payload) {
			return false
		}
		if payload[offset+1]&0x80 == 0 {
			return true
		}
		offset += 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
		if offset > len(payload) {
			return false
		}
	}
	return true
}
