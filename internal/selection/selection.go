// Package selection implements the field selectors that pick the hash input bytes of a packet.
package selection

import (
	"fmt"
	"strings"

	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/core/decoder"
)

// Kind is a field selection function.
type Kind int

const (
	IP     Kind = iota + 1 // IP header
	IPTP                   // IP header + first transport bytes
	REC8                   // 8 recommended bytes
	Packet                 // network layer to end of capture
	Raw                    // whole frame
)

// transportPrefixLen covers the port fields of TCP, UDP and SCTP.
const transportPrefixLen = 8

// Rec8Len is the size of the REC8 selection.
const Rec8Len = 8

var names = map[Kind]string{
	IP:     "IP",
	IPTP:   "IP+TP",
	REC8:   "REC8",
	Packet: "PACKET",
	Raw:    "RAW",
}

func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Parse resolves a selection function by its legacy option name.
func Parse(name string) (Kind, error) {
	for k, n := range names {
		if strings.EqualFold(n, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown selection function %q: %w", name, core.ErrConfigInvalid)
}

// Names lists the accepted selection function names.
func Names() []string {
	return []string{"IP", "IP+TP", "REC8", "PACKET", "RAW"}
}

// Select copies the selected bytes of frame into scratch and returns how many were copied.
// Zero means the packet offers no viable selection. Copies never exceed len(scratch).
func (k Kind) Select(frame []byte, l *decoder.Layers, scratch []byte) int {
	switch k {
	case IP:
		return selectIP(frame, l, scratch, false)
	case IPTP:
		return selectIP(frame, l, scratch, true)
	case REC8:
		return selectRec8(frame, l, scratch)
	case Packet:
		if !l.Has(core.LayerNet) || l.Offset(core.LayerNet) > len(frame) {
			return 0
		}
		return copy(scratch, frame[l.Offset(core.LayerNet):])
	case Raw:
		return copy(scratch, frame)
	}
	return 0
}

func selectIP(frame []byte, l *decoder.Layers, scratch []byte, withTransport bool) int {
	if l.Net == core.NetUnknown {
		return 0
	}
	start := l.Offset(core.LayerNet)
	end := start + l.IPHeaderLen
	if withTransport && l.Has(core.LayerTrans) {
		end = min(l.Offset(core.LayerTrans)+transportPrefixLen, len(frame))
	}
	if start < 0 || end > len(frame) {
		return 0
	}
	return copy(scratch, frame[start:end])
}

// selectRec8 takes the low 16 bits of both addresses followed by both ports. Without
// ports it takes IP header bytes 4-5 and 2-3 (IPv4 identification and total length,
// IPv6 payload length and low flow label).
func selectRec8(frame []byte, l *decoder.Layers, scratch []byte) int {
	if l.Net == core.NetUnknown {
		return 0
	}
	ip := l.Offset(core.LayerNet)

	var srcLo, dstLo int
	switch l.Net {
	case core.NetIPv4:
		srcLo, dstLo = ip+decoder.IPv4SrcAddrOffset+2, ip+decoder.IPv4DstAddrOffset+2
	case core.NetIPv6:
		srcLo, dstLo = ip+decoder.IPv6SrcAddrOffset+14, ip+decoder.IPv6DstAddrOffset+14
	}
	if dstLo+2 > len(frame) || srcLo+2 > len(frame) {
		return 0
	}

	var rec [Rec8Len]byte
	copy(rec[0:2], frame[srcLo:srcLo+2])
	copy(rec[2:4], frame[dstLo:dstLo+2])

	if l.Trans.HasPorts() && l.Has(core.LayerTrans) {
		tp := l.Offset(core.LayerTrans)
		if tp+4 > len(frame) {
			return 0
		}
		copy(rec[4:8], frame[tp:tp+4])
	} else {
		copy(rec[4:6], frame[ip+4:ip+6])
		copy(rec[6:8], frame[ip+2:ip+4])
	}
	return copy(scratch, rec[:])
}
