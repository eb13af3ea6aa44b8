package record

import (
	"fmt"
	"math"
	"net"
	"time"

	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/template"
)

// InterfaceStatsValues feed an interface_stats record.
type InterfaceStatsValues struct {
	Time             time.Time
	SamplingSize     uint32
	PacketDeltaCount uint64
	PcapRecv         uint32
	PcapDrop         uint32
	Name             string
	Description      string
}

// InterfaceStats binds an interface_stats record.
func InterfaceStats(v InterfaceStatsValues) [][]byte {
	return [][]byte{
		u64(core.MilliTime(v.Time)),
		u32(v.SamplingSize),
		u64(v.PacketDeltaCount),
		u32(v.PcapRecv),
		u32(v.PcapDrop),
		[]byte(v.Name),
		[]byte(v.Description),
	}
}

// ProbeStatsValues feed a probe_stats record. Memory is in kilobytes, CPU in percent.
type ProbeStatsValues struct {
	Time        time.Time
	CPUIdle     float32
	MemFree     uint64
	ProcCPUUser float32
	ProcCPUSys  float32
	ProcMemVzs  uint64
	ProcMemRss  uint64
	MemTotal    uint64
	Threads     uint32
}

// ProbeStats binds a probe_stats record.
func ProbeStats(v ProbeStatsValues) [][]byte {
	return [][]byte{
		u64(core.MilliTime(v.Time)),
		f32(v.CPUIdle),
		u64(v.MemFree),
		f32(v.ProcCPUUser),
		f32(v.ProcCPUSys),
		u64(v.ProcMemVzs),
		u64(v.ProcMemRss),
		u64(v.MemTotal),
		u32(v.Threads),
	}
}

// LocationValues feed a location record.
type LocationValues struct {
	Time         time.Time
	Addr         net.IP
	Latitude     string
	Longitude    string
	ProbeName    string
	LocationName string
}

// Location binds a location record. Non-IPv4 addresses are exported as 0.0.0.0.
func Location(v LocationValues) [][]byte {
	addr := make([]byte, 4)
	if ip4 := v.Addr.To4(); ip4 != nil {
		copy(addr, ip4)
	}
	return [][]byte{
		u64(core.MilliTime(v.Time)),
		addr,
		[]byte(v.Latitude),
		[]byte(v.Longitude),
		[]byte(v.ProbeName),
		[]byte(v.LocationName),
	}
}

// Sync binds a sync record carrying a console response.
func Sync(t time.Time, messageID, value uint32, message string) [][]byte {
	return [][]byte{
		u64(core.MilliTime(t)),
		u32(messageID),
		u32(value),
		[]byte(message),
	}
}

// Validate checks that values can be encoded with desc.
func Validate(desc *template.Descriptor, values [][]byte) error {
	if len(values) != len(desc.Fields) {
		return fmt.Errorf("template %s expects %d fields, got %d: %w",
			desc.Name(), len(desc.Fields), len(values), core.ErrExportFailure)
	}
	for i, f := range desc.Fields {
		n := len(values[i])
		if f.Variable() {
			if n > math.MaxUint16 {
				return fmt.Errorf("field %s: %d bytes exceed the variable length limit: %w", f.Name, n, core.ErrExportFailure)
			}
			continue
		}
		if n != int(f.Length) {
			return fmt.Errorf("field %s: want %d bytes, got %d: %w", f.Name, f.Length, n, core.ErrExportFailure)
		}
	}
	return nil
}

func f32(v float32) []byte {
	return u32(math.Float32bits(v))
}
