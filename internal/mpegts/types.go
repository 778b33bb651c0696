// Package mpegts demultiplexes MPEG transport streams into PAT, PMT and
// PES units. It is the container layer behind the playback packet source.
package mpegts

// Elementary stream types carried in the PMT.
const (
	StreamTypeMPEG1Video = 0x01
	StreamTypeMPEG2Video = 0x02
	StreamTypeMPEG1Audio = 0x03
	StreamTypeMPEG2Audio = 0x04
	StreamTypePrivatePES = 0x06
	StreamTypeAACADTS    = 0x0F
	StreamTypeH264       = 0x1B
	StreamTypeHEVC       = 0x24
)

// Descriptor tags the demuxer interprets.
const (
	DescriptorRegistration = 0x05
	DescriptorISO639       = 0x0A
)

// Packet is a parsed 188-byte transport stream packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte
}

// PacketHeader holds the fixed header fields of a transport packet.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
}

// Unit is one demuxed logical unit. Exactly one of PAT, PMT or PES is set.
type Unit struct {
	PID uint16
	PAT *PAT
	PMT *PMT
	PES *PES
}

// PAT is a parsed Program Association Table.
type PAT struct {
	Programs []Program
}

// Program maps a program number to the PID carrying its PMT.
type Program struct {
	Number uint16
	PMTPID uint16
}

// PMT is a parsed Program Map Table.
type PMT struct {
	ProgramNumber uint16
	PCRPID        uint16
	Streams       []ElementaryStream
}

// ElementaryStream describes one PMT entry.
type ElementaryStream struct {
	PID         uint16
	StreamType  uint8
	Descriptors []Descriptor
}

// Descriptor is a raw tag/length/value descriptor from the ES info loop.
type Descriptor struct {
	Tag  uint8
	Data []byte
}

// Registration returns the format identifier of the registration
// descriptor ("Opus", "HEVC", ...) or "" when absent.
func (es ElementaryStream) Registration() string {
	for _, d := range es.Descriptors {
		if d.Tag == DescriptorRegistration && len(d.Data) >= 4 {
			return string(d.Data[:4])
		}
	}
	return ""
}

// PES is a reassembled Packetized Elementary Stream packet.
type PES struct {
	StreamID uint8
	PTS      int64 // 90 kHz, -1 when absent
	DTS      int64 // 90 kHz, -1 when absent
	Data     []byte
}

// HasPTS reports whether the PES header carried a presentation timestamp.
func (p *PES) HasPTS() bool { return p.PTS >= 0 }
