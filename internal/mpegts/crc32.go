package mpegts

import "errors"

// ErrCRC is reported for PSI sections whose checksum does not match.
var ErrCRC = errors.New("mpegts: CRC32 mismatch")

// MPEG-2 CRC32, polynomial 0x04C11DB7, no reflection.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CRC32 computes the MPEG-2 section checksum of data.
func CRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

// A section including its trailing CRC checksums to zero.
func verifyCRC32(section []byte) error {
	if len(section) < 4 || CRC32(section) != 0 {
		return ErrCRC
	}
	return nil
}
