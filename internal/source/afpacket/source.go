// Package afpacket captures from a Linux interface through a TPACKET_V3 ring.
package afpacket

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/bpf"

	"firestige.xyz/hsprobe/internal/source"
)

// Options tune the ring. They come from devices[].options.
type Options struct {
	BufferSizeMB int           `mapstructure:"buffer_size_mb"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	FanoutID     uint16        `mapstructure:"fanout_id"`
}

// DefaultOptions returns the ring settings used when a device gives none.
func DefaultOptions() Options {
	return Options{BufferSizeMB: 8, PollTimeout: 500 * time.Millisecond}
}

// ParseOptions decodes a device options map over DefaultOptions.
func ParseOptions(raw map[string]any) (Options, error) {
	opts := DefaultOptions()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(raw); err != nil {
		return opts, fmt.Errorf("invalid afpacket options: %w", err)
	}
	return opts, nil
}

// Source is an AF_PACKET socket bound to one interface.
type Source struct {
	handle    *afpacket.TPacket
	device    string
	frameSize int
}

// Open binds an AF_PACKET ring to device.
func Open(device string, snapLen int, opts Options) (*Source, error) {
	frameSize, blockSize, numBlocks, err := recomputeSize(opts.BufferSizeMB, snapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(opts.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open afpacket on %s: %w", device, err)
	}

	if opts.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, opts.FanoutID); err != nil {
			tp.Close()
			return nil, fmt.Errorf("failed to join fanout group %d: %w", opts.FanoutID, err)
		}
	}
	return &Source{handle: tp, device: device, frameSize: frameSize}, nil
}

func (s *Source) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	if err == afpacket.ErrTimeout {
		return nil, ci, source.ErrTimeout
	}
	return data, ci, err
}

func (s *Source) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *Source) Kind() source.Kind { return source.Live }

func (s *Source) Stats() (source.Stats, error) {
	_, v3, err := s.handle.SocketStats()
	if err != nil {
		return source.Stats{}, fmt.Errorf("failed to read socket stats of %s: %w", s.device, err)
	}
	return source.Stats{Received: uint32(v3.Packets()), Dropped: uint32(v3.Drops())}, nil
}

// SetFilter compiles expr with libpcap and loads it into the socket.
func (s *Source) SetFilter(expr string) error {
	raw, err := compileBPF(expr, s.frameSize)
	if err != nil {
		return err
	}
	if err := s.handle.SetBPF(raw); err != nil {
		return fmt.Errorf("failed to attach BPF filter on %s: %w", s.device, err)
	}
	return nil
}

func (s *Source) Close() error {
	s.handle.Close()
	return nil
}

func compileBPF(expr string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter: %w", err)
	}
	raw := make([]bpf.RawInstruction, len(pcapBPF))
	for i, ins := range pcapBPF {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw, nil
}
