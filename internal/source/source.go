// Package source defines the capture sources a probe device reads from.
// Implementations live in the subpackages pcap, afpacket and socket.
package source

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Kind tags how a device acquires packets.
type Kind int

const (
	Live       Kind = iota + 1 // network interface (pcap or AF_PACKET)
	File                       // pcap savefile
	InetSocket                 // UDP socket, one raw IP packet per datagram
	UnixSocket                 // unix datagram socket, one raw IP packet per datagram
)

func (k Kind) String() string {
	switch k {
	case Live:
		return "live"
	case File:
		return "file"
	case InetSocket:
		return "inet"
	case UnixSocket:
		return "unix"
	default:
		return "unknown"
	}
}

// Offline reports whether the source ends by itself.
func (k Kind) Offline() bool { return k == File }

// ErrTimeout is returned by ReadPacketData when no packet arrived within the read
// timeout. Readers use it to check for cancellation.
var ErrTimeout = errors.New("capture read timeout")

// Stats are the capture counters of a live source.
type Stats struct {
	Received uint32
	Dropped  uint32
}

// Source is one opened capture source. ReadPacketData is called from a single reader
// goroutine; SetFilter and Stats may be called concurrently with it.
type Source interface {
	// ReadPacketData returns the next frame. The data is owned by the caller.
	// Offline sources return io.EOF when exhausted.
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Kind() Kind
	Stats() (Stats, error)
	// SetFilter installs a BPF filter expression. Sources that cannot filter return
	// core.ErrFilterUnsupported.
	SetFilter(expr string) error
	Close() error
}
