package mpegts

import "sort"

// accumulator buffers the packets of one PID until a unit is complete.
type accumulator struct {
	pid     uint16
	isPSI   func(uint16) bool
	packets []*Packet
}

func (a *accumulator) add(p *Packet) []*Packet {
	if p.Header.TransportErrorIndicator {
		a.packets = nil
		return nil
	}
	if !p.Header.HasPayload {
		return nil
	}

	if n := len(a.packets); n > 0 && !p.Header.DiscontinuityIndicator {
		prev := a.packets[n-1].Header.ContinuityCounter
		if p.Header.ContinuityCounter != (prev+1)&0x0F {
			if p.Header.ContinuityCounter == prev {
				return nil // duplicate
			}
			a.packets = nil
		}
	}

	// Continuation packets with no unit start in progress are orphans.
	if len(a.packets) == 0 && !p.Header.PayloadUnitStartIndicator {
		return nil
	}

	var flushed []*Packet
	if p.Header.PayloadUnitStartIndicator && len(a.packets) > 0 {
		flushed = a.packets
		a.packets = nil
	}
	a.packets = append(a.packets, p)

	if flushed == nil && a.isPSI(a.pid) && psiComplete(joinPayloads(a.packets)) {
		flushed = a.packets
		a.packets = nil
	}
	return flushed
}

func (a *accumulator) flush() []*Packet {
	flushed := a.packets
	a.packets = nil
	return flushed
}

func joinPayloads(packets []*Packet) []byte {
	n := 0
	for _, p := range packets {
		n += len(p.Payload)
	}
	out := make([]byte, 0, n)
	for _, p := range packets {
		out = append(out, p.Payload...)
	}
	return out
}

// pool holds one accumulator per PID.
type pool struct {
	accs  map[uint16]*accumulator
	isPSI func(uint16) bool
}

func newPool(isPSI func(uint16) bool) *pool {
	return &pool{accs: make(map[uint16]*accumulator), isPSI: isPSI}
}

func (p *pool) add(pkt *Packet) []*Packet {
	acc, ok := p.accs[pkt.Header.PID]
	if !ok {
		acc = &accumulator{pid: pkt.Header.PID, isPSI: p.isPSI}
		p.accs[pkt.Header.PID] = acc
	}
	return acc.add(pkt)
}

// drain flushes every accumulator in PID order so PAT precedes PMTs.
func (p *pool) drain() [][]*Packet {
	pids := make([]int, 0, len(p.accs))
	for pid := range p.accs {
		pids = append(pids, int(pid))
	}
	sort.Ints(pids)

	var out [][]*Packet
	for _, pid := range pids {
		if pkts := p.accs[uint16(pid)].flush(); len(pkts) > 0 {
			out = append(out, pkts)
		}
	}
	return out
}
