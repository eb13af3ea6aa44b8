// Package record builds the per-record field bindings exported for each template.
// A binding is a [][]byte aligned with the template's field list.
package record

import (
	"encoding/binary"
	"fmt"
	"time"

	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/core/decoder"
	"firestige.xyz/hsprobe/internal/log"
	"firestige.xyz/hsprobe/internal/template"
)

// Packet is the input of a per-packet record.
type Packet struct {
	Frame     []byte
	Layers    *decoder.Layers
	Timestamp time.Time
	PacketID  uint32
}

// AssemblePacket binds the fields of a per-packet template.
func AssemblePacket(desc *template.Descriptor, pkt Packet) ([][]byte, error) {
	if pkt.Layers == nil {
		return nil, fmt.Errorf("record: packet without layers")
	}
	values := make([][]byte, len(desc.Fields))
	for i, f := range desc.Fields {
		v, err := packetField(f, &pkt)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", desc.Name(), err)
		}
		values[i] = v
	}
	return values, nil
}

func packetField(f template.Field, p *Packet) ([]byte, error) {
	l := p.Layers
	switch f {
	case template.ObservationTimeMicroseconds:
		return u64(core.MicroTime(p.Timestamp)), nil
	case template.DigestHashValue:
		return u32(p.PacketID), nil
	case template.IPTTL:
		return []byte{ttl(p)}, nil
	case template.TotalLengthIPv4:
		return u16(ipLength(p)), nil
	case template.ProtocolIdentifier:
		if l.Net == core.NetUnknown {
			return []byte{0}, nil
		}
		return []byte{l.IPProto}, nil
	case template.IPVersion:
		return []byte{byte(l.Net)}, nil
	case template.SourceIPv4Address:
		return ipv4Addr(p, decoder.IPv4SrcAddrOffset), nil
	case template.DestinationIPv4Address:
		return ipv4Addr(p, decoder.IPv4DstAddrOffset), nil
	case template.SourceTransportPort:
		return u16(port(p, 0)), nil
	case template.DestinationTransportPort:
		return u16(port(p, 2)), nil
	}
	return nil, fmt.Errorf("field %s is not a packet field: %w", f.Name, core.ErrConfigInvalid)
}

func ttl(p *Packet) byte {
	net := p.Layers.Offset(core.LayerNet)
	switch p.Layers.Net {
	case core.NetIPv4:
		return byteAt(p.Frame, net+decoder.IPv4TTLOffset)
	case core.NetIPv6:
		return byteAt(p.Frame, net+decoder.IPv6HopLimitOffset)
	}
	log.GetLogger().Debug("cannot get TTL: unknown network layer")
	return 0
}

// ipLength is the IPv4 total length or the IPv6 payload length.
func ipLength(p *Packet) uint16 {
	net := p.Layers.Offset(core.LayerNet)
	switch p.Layers.Net {
	case core.NetIPv4:
		return u16At(p.Frame, net+decoder.IPv4TotalLenOffset)
	case core.NetIPv6:
		return u16At(p.Frame, net+decoder.IPv6PayloadLenOffset)
	}
	return 0
}

func ipv4Addr(p *Packet, off int) []byte {
	out := make([]byte, 4)
	if p.Layers.Net != core.NetIPv4 {
		return out
	}
	start := p.Layers.Offset(core.LayerNet) + off
	if start+4 <= len(p.Frame) {
		copy(out, p.Frame[start:start+4])
	}
	return out
}

func port(p *Packet, off int) uint16 {
	if !p.Layers.Trans.HasPorts() {
		return 0
	}
	return u16At(p.Frame, p.Layers.Offset(core.LayerTrans)+off)
}

func byteAt(b []byte, off int) byte {
	if off < 0 || off >= len(b) {
		return 0
	}
	return b[off]
}

func u16At(b []byte, off int) uint16 {
	if off < 0 || off+2 > len(b) {
		return 0
	}
	return binary.BigEndian.Uint16(b[off:])
}

func u16(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

func u32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func u64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}
