package ipfix

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"

	"firestige.xyz/hsprobe/internal/log"
)

// Handler receives every decoded message with the address of its exporter.
type Handler func(from net.Addr, m *Message)

// Collector is a minimal collecting process for tcp and udp, used to inspect what a
// probe exports.
type Collector struct {
	network string
	handler Handler
	decoder *Decoder

	pc net.PacketConn
	ln net.Listener
	wg sync.WaitGroup
}

// Listen binds a collector on network ("tcp" or "udp") and addr.
func Listen(network, addr string, handler Handler) (*Collector, error) {
	c := &Collector{network: network, handler: handler, decoder: NewDecoder()}
	var err error
	switch network {
	case "udp":
		c.pc, err = net.ListenPacket("udp", addr)
	case "tcp":
		c.ln, err = net.Listen("tcp", addr)
	default:
		return nil, errors.Errorf("ipfix: unsupported collector network %q", network)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "ipfix: listen %s %s", network, addr)
	}
	return c, nil
}

// Addr returns the bound address.
func (c *Collector) Addr() net.Addr {
	if c.pc != nil {
		return c.pc.LocalAddr()
	}
	return c.ln.Addr()
}

// Run serves until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.close()
	}()

	var err error
	if c.pc != nil {
		err = c.servePackets(ctx)
	} else {
		err = c.serveStreams(ctx)
	}
	c.wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Collector) close() {
	if c.pc != nil {
		_ = c.pc.Close()
	}
	if c.ln != nil {
		_ = c.ln.Close()
	}
}

func (c *Collector) servePackets(ctx context.Context) error {
	buffer := make([]byte, 65535)
	for {
		n, remote, err := c.pc.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "ipfix: read failed")
		}
		c.process(remote, buffer[:n])
	}
}

func (c *Collector) serveStreams(ctx context.Context) error {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "ipfix: accept failed")
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.serveConn(ctx, conn)
		}()
	}
}

func (c *Collector) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if ctx.Err() == nil {
				log.GetLogger().WithError(err).Debug("ipfix exporter disconnected")
			}
			return
		}
		c.process(conn.RemoteAddr(), msg)
	}
}

func (c *Collector) process(from net.Addr, raw []byte) {
	m, err := c.decoder.Decode(raw)
	if err != nil {
		log.GetLogger().WithError(err).Error("unable to decode IPFIX message")
		return
	}
	if c.handler != nil {
		c.handler(from, m)
	}
}
