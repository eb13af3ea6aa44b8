// Package socket receives raw IP packets from local datagram sockets. Each datagram
// carries one packet without a link header.
package socket

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/source"
)

const (
	readTimeout = 500 * time.Millisecond
	maxDatagram = 65535
)

// Source is a bound datagram socket.
type Source struct {
	conn    net.PacketConn
	kind    source.Kind
	addr    string
	snapLen int
	buf     []byte
	now     func() time.Time
}

// ListenInet binds a UDP socket on addr (host:port).
func ListenInet(addr string, snapLen int) (*Source, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return newSource(conn, source.InetSocket, addr, snapLen), nil
}

// ListenUnix binds a unix datagram socket at path, replacing a stale socket file.
func ListenUnix(path string, snapLen int) (*Source, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}
	conn, err := net.ListenPacket("unixgram", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	return newSource(conn, source.UnixSocket, path, snapLen), nil
}

func newSource(conn net.PacketConn, kind source.Kind, addr string, snapLen int) *Source {
	return &Source{
		conn:    conn,
		kind:    kind,
		addr:    addr,
		snapLen: snapLen,
		buf:     make([]byte, maxDatagram),
		now:     time.Now,
	}
}

// Addr returns the bound address.
func (s *Source) Addr() net.Addr { return s.conn.LocalAddr() }

func (s *Source) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	_ = s.conn.SetReadDeadline(s.now().Add(readTimeout))
	n, _, err := s.conn.ReadFrom(s.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, gopacket.CaptureInfo{}, source.ErrTimeout
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, gopacket.CaptureInfo{}, core.ErrSourceClosed
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read from %s: %w", s.addr, err)
	}

	capLen := n
	if s.snapLen > 0 && capLen > s.snapLen {
		capLen = s.snapLen
	}
	data := make([]byte, capLen)
	copy(data, s.buf[:capLen])
	return data, gopacket.CaptureInfo{
		Timestamp:     s.now(),
		CaptureLength: capLen,
		Length:        n,
	}, nil
}

func (s *Source) LinkType() layers.LinkType { return layers.LinkTypeRaw }

func (s *Source) Kind() source.Kind { return s.kind }

// Stats are not available for sockets.
func (s *Source) Stats() (source.Stats, error) { return source.Stats{}, nil }

func (s *Source) SetFilter(string) error {
	return fmt.Errorf("socket %s: %w", s.addr, core.ErrFilterUnsupported)
}

func (s *Source) Close() error {
	err := s.conn.Close()
	if s.kind == source.UnixSocket {
		_ = os.Remove(s.addr)
	}
	return err
}
