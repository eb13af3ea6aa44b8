package decoder

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/hsprobe/internal/core"
)

// Layers holds the offsets and protocol tags discovered in one frame.
// Offsets index the original frame; core.OffsetUndefined marks a missing layer.
type Layers struct {
	Offsets [core.NumLayers]int
	Net     core.NetProto
	Trans   core.TransProto

	// IPProto is the IPv4 protocol or IPv6 next header field, valid when Net is known.
	IPProto uint8
	// IPHeaderLen is the IP header length in bytes, valid when Net is known.
	IPHeaderLen int
}

// Offset returns the offset of layer, or core.OffsetUndefined.
func (l *Layers) Offset(layer core.Layer) int {
	return l.Offsets[layer]
}

// Has reports whether layer was located.
func (l *Layers) Has(layer core.Layer) bool {
	return l.Offsets[layer] != core.OffsetUndefined
}

// Locate finds the network, transport and payload layers of frame.
// Truncated or unknown headers stop discovery; the remaining layers stay undefined.
func Locate(frame []byte, linkType layers.LinkType) Layers {
	l := Layers{
		Offsets: [core.NumLayers]int{0, core.OffsetUndefined, core.OffsetUndefined, core.OffsetUndefined},
	}

	c := NewCursor(frame)
	if err := c.Advance(LinkOffset(linkType)); err != nil || c.Remaining() == 0 {
		return l
	}
	l.Offsets[core.LayerNet] = c.Offset()

	if !locateNetwork(&c, &l) {
		return l
	}
	if err := c.Advance(l.IPHeaderLen); err != nil {
		return l
	}
	locateTransport(&c, &l)
	return l
}
