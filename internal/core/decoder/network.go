package decoder

import "firestige.xyz/hsprobe/internal/core"

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40
)

// Fixed field offsets inside the IP headers.
const (
	IPv4TotalLenOffset = 2
	IPv4TTLOffset      = 8
	IPv4ProtoOffset    = 9
	IPv4SrcAddrOffset  = 12
	IPv4DstAddrOffset  = 16

	IPv6PayloadLenOffset = 4
	IPv6NextHdrOffset    = 6
	IPv6HopLimitOffset   = 7
	IPv6SrcAddrOffset    = 8
	IPv6DstAddrOffset    = 24
)

// locateNetwork tags the network layer at the cursor position. It reports false when
// the version is unknown or the header is not fully captured.
func locateNetwork(c *Cursor, l *Layers) bool {
	first, err := c.PeekU8()
	if err != nil {
		return false
	}

	switch first >> 4 {
	case 4:
		// IHL counts 32-bit words
		hdrLen := int(first&0x0F) * 4
		if hdrLen < ipv4HeaderMinLen || c.Remaining() < hdrLen {
			return false
		}
		proto, _ := c.PeekU8At(IPv4ProtoOffset)
		l.Net = core.NetIPv4
		l.IPProto = proto
		l.IPHeaderLen = hdrLen
		return true

	case 6:
		if c.Remaining() < ipv6HeaderLen {
			return false
		}
		// Extension header chains are not walked; the first next header is the transport.
		next, _ := c.PeekU8At(IPv6NextHdrOffset)
		l.Net = core.NetIPv6
		l.IPProto = next
		l.IPHeaderLen = ipv6HeaderLen
		return true
	}
	return false
}
