package decoder

import (
	"sync"

	"github.com/google/gopacket/layers"

	"firestige.xyz/hsprobe/internal/log"
)

// Link header lengths by link type.
const (
	ethernetHeaderLen  = 14
	atmRFC1483Len      = 8
	linuxCookedLen     = 16
	rawIPLen           = 0
	linkTypeRawOpenBSD = layers.LinkType(14)
	linkTypeRawDLT     = layers.LinkType(12)
)

var warnedLinkTypes sync.Map

// LinkOffset returns the network layer offset for frames of the given link type.
// Unknown link types are treated as raw IP and logged once.
func LinkOffset(lt layers.LinkType) int {
	switch lt {
	case layers.LinkTypeEthernet:
		return ethernetHeaderLen
	case layers.LinkTypeATM_RFC1483:
		return atmRFC1483Len
	case layers.LinkTypeLinuxSLL:
		return linuxCookedLen
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6, linkTypeRawDLT, linkTypeRawOpenBSD:
		return rawIPLen
	}
	if _, seen := warnedLinkTypes.LoadOrStore(lt, struct{}{}); !seen {
		log.GetLogger().WithField("link_type", lt.String()).
			Warn("unsupported link type, assuming no link header")
	}
	return rawIPLen
}
