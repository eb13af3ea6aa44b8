// Package testutil builds packet frames for tests.
package testutil

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// FrameSpec describes an Ethernet frame to serialize.
type FrameSpec struct {
	IPv6     bool
	Proto    layers.IPProtocol // UDP when zero
	TTL      uint8             // 64 when zero
	Src, Dst net.IP
	SrcPort  uint16
	DstPort  uint16
	Payload  []byte
	NoLink   bool // omit the Ethernet header (raw IP)
}

// Frame serializes spec with fixed lengths and checksums.
// Ethernet frames shorter than 60 bytes are padded by gopacket.
func Frame(t testing.TB, spec FrameSpec) []byte {
	t.Helper()

	if spec.Proto == 0 {
		spec.Proto = layers.IPProtocolUDP
	}
	if spec.TTL == 0 {
		spec.TTL = 64
	}

	var stack []gopacket.SerializableLayer
	var netLayer gopacket.NetworkLayer

	etherType := layers.EthernetTypeIPv4
	if spec.IPv6 {
		etherType = layers.EthernetTypeIPv6
	}
	if !spec.NoLink {
		stack = append(stack, &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
			DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
			EthernetType: etherType,
		})
	}

	if spec.IPv6 {
		if spec.Src == nil {
			spec.Src = net.ParseIP("2001:db8::1")
		}
		if spec.Dst == nil {
			spec.Dst = net.ParseIP("2001:db8::2")
		}
		ip6 := &layers.IPv6{
			Version:    6,
			NextHeader: spec.Proto,
			HopLimit:   spec.TTL,
			SrcIP:      spec.Src,
			DstIP:      spec.Dst,
		}
		stack = append(stack, ip6)
		netLayer = ip6
	} else {
		if spec.Src == nil {
			spec.Src = net.IPv4(10, 0, 0, 1)
		}
		if spec.Dst == nil {
			spec.Dst = net.IPv4(10, 0, 0, 2)
		}
		ip4 := &layers.IPv4{
			Version:  4,
			IHL:      5,
			Id:       0x1234,
			TTL:      spec.TTL,
			Protocol: spec.Proto,
			SrcIP:    spec.Src.To4(),
			DstIP:    spec.Dst.To4(),
		}
		stack = append(stack, ip4)
		netLayer = ip4
	}

	switch spec.Proto {
	case layers.IPProtocolUDP:
		udp := &layers.UDP{SrcPort: layers.UDPPort(spec.SrcPort), DstPort: layers.UDPPort(spec.DstPort)}
		if err := udp.SetNetworkLayerForChecksum(netLayer); err != nil {
			t.Fatalf("udp checksum layer: %v", err)
		}
		stack = append(stack, udp)
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(spec.SrcPort),
			DstPort: layers.TCPPort(spec.DstPort),
			Seq:     1000,
			SYN:     true,
			Window:  1024,
		}
		if err := tcp.SetNetworkLayerForChecksum(netLayer); err != nil {
			t.Fatalf("tcp checksum layer: %v", err)
		}
		stack = append(stack, tcp)
	case layers.IPProtocolICMPv4:
		stack = append(stack, &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
			Id:       1,
			Seq:      1,
		})
	}

	if len(spec.Payload) > 0 {
		stack = append(stack, gopacket.Payload(spec.Payload))
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		t.Fatalf("serialize frame: %v", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

// UDPv4 returns an Ethernet/IPv4/UDP frame 10.0.0.1:1234 -> 10.0.0.2:53.
func UDPv4(t testing.TB, payload []byte) []byte {
	t.Helper()
	return Frame(t, FrameSpec{SrcPort: 1234, DstPort: 53, Payload: payload})
}
