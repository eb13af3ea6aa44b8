// Package pcap opens live interfaces and savefiles through libpcap.
package pcap

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/hsprobe/internal/source"
)

// readTimeout bounds a blocking read so the reader can observe shutdown.
const readTimeout = 500 * time.Millisecond

// Source is a libpcap handle.
type Source struct {
	handle *pcap.Handle
	kind   source.Kind
	name   string
}

// OpenLive opens a network interface.
func OpenLive(device string, snapLen int, promisc bool) (*Source, error) {
	handle, err := pcap.OpenLive(device, int32(snapLen), promisc, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", device, err)
	}
	return &Source{handle: handle, kind: source.Live, name: device}, nil
}

// OpenOffline opens a pcap savefile.
func OpenOffline(path string) (*Source, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	return &Source{handle: handle, kind: source.File, name: path}, nil
}

func (s *Source) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	switch {
	case err == nil:
		return data, ci, nil
	case err == pcap.NextErrorTimeoutExpired:
		return nil, ci, source.ErrTimeout
	case err == io.EOF || err == pcap.NextErrorNoMorePackets:
		return nil, ci, io.EOF
	}
	return nil, ci, fmt.Errorf("failed to read packet from %s: %w", s.name, err)
}

func (s *Source) LinkType() layers.LinkType { return s.handle.LinkType() }

func (s *Source) Kind() source.Kind { return s.kind }

// Stats returns the kernel counters. Savefiles have none.
func (s *Source) Stats() (source.Stats, error) {
	if s.kind != source.Live {
		return source.Stats{}, nil
	}
	st, err := s.handle.Stats()
	if err != nil {
		return source.Stats{}, fmt.Errorf("failed to read pcap stats of %s: %w", s.name, err)
	}
	return source.Stats{Received: uint32(st.PacketsReceived), Dropped: uint32(st.PacketsDropped)}, nil
}

func (s *Source) SetFilter(expr string) error {
	if err := s.handle.SetBPFFilter(expr); err != nil {
		return fmt.Errorf("failed to set filter %q on %s: %w", expr, s.name, err)
	}
	return nil
}

func (s *Source) Close() error {
	s.handle.Close()
	return nil
}
