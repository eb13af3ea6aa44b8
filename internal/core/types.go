// Package core defines core types with zero external dependencies.
package core

import "strconv"

// Layer indexes the per-packet offset and tag arrays.
type Layer int

const (
	LayerLink Layer = iota
	LayerNet
	LayerTrans
	LayerPayload

	NumLayers
)

// OffsetUndefined marks a layer the locator could not find.
const OffsetUndefined = -1

// NetProto tags the network layer. Values equal the IP version number.
type NetProto uint8

const (
	NetUnknown NetProto = 0
	NetIPv4    NetProto = 4
	NetIPv6    NetProto = 6
)

func (p NetProto) String() string {
	switch p {
	case NetIPv4:
		return "IPv4"
	case NetIPv6:
		return "IPv6"
	default:
		return "unknown"
	}
}

// TransProto tags the transport layer. Values equal the IP protocol number.
type TransProto uint8

const (
	TransUnknown TransProto = 0
	TransICMP    TransProto = 1
	TransTCP     TransProto = 6
	TransUDP     TransProto = 17
	TransICMPv6  TransProto = 58
	TransSCTP    TransProto = 132
)

func (p TransProto) String() string {
	switch p {
	case TransICMP:
		return "ICMP"
	case TransTCP:
		return "TCP"
	case TransUDP:
		return "UDP"
	case TransICMPv6:
		return "ICMPv6"
	case TransSCTP:
		return "SCTP"
	case TransUnknown:
		return "unknown"
	default:
		return "proto-" + strconv.Itoa(int(p))
	}
}

// HasPorts reports whether the transport header starts with 16-bit source and destination ports.
func (p TransProto) HasPorts() bool {
	return p == TransTCP || p == TransUDP || p == TransSCTP
}
