package decoder

import "firestige.xyz/hsprobe/internal/core"

// Minimal transport header sizes.
const (
	tcpHeaderMinLen = 20
	udpHeaderLen    = 8
	sctpHeaderLen   = 12
	icmpHeaderLen   = 8
)

// minTransportLen returns the smallest header size for recognized transports, 0 otherwise.
func minTransportLen(p core.TransProto) int {
	switch p {
	case core.TransTCP:
		return tcpHeaderMinLen
	case core.TransUDP:
		return udpHeaderLen
	case core.TransSCTP:
		return sctpHeaderLen
	case core.TransICMP, core.TransICMPv6:
		return icmpHeaderLen
	}
	return 0
}

// locateTransport tags the transport and payload layers at the cursor position.
func locateTransport(c *Cursor, l *Layers) {
	proto := core.TransProto(l.IPProto)
	minLen := minTransportLen(proto)
	if minLen == 0 || c.Remaining() == 0 {
		return
	}
	l.Trans = proto
	l.Offsets[core.LayerTrans] = c.Offset()

	// A cut transport header keeps its tag; only the payload needs the whole header.
	if c.Remaining() < minLen {
		return
	}

	hdrLen := minLen
	if proto == core.TransTCP {
		// Data offset: upper nibble of byte 12, in 32-bit words
		dataOff, _ := c.PeekU8At(12)
		hdrLen = int(dataOff>>4) * 4
		if hdrLen < tcpHeaderMinLen {
			return
		}
	}
	if err := c.Advance(hdrLen); err != nil {
		return
	}
	l.Offsets[core.LayerPayload] = c.Offset()
}
