// Package template is the static registry of export templates.
package template

import (
	"fmt"
	"strings"

	"firestige.xyz/hsprobe/internal/core"
)

// ErrTemplateNotFound is returned for unknown template ids or names.
var ErrTemplateNotFound = fmt.Errorf("template not found: %w", core.ErrConfigInvalid)

// Registered template ids.
const (
	TS             = 1
	Min            = 2
	TSTTLProto     = 3
	TSTTLProtoIP   = 4
	InterfaceStats = 5
	ProbeStats     = 6
	Location       = 7
	Sync           = 8
)

// Unset is the device override meaning "use the global template".
const Unset = -1

// wireIDBase is added to registry ids. IPFIX reserves set ids below 256.
const wireIDBase = 255

// Descriptor is an immutable, ordered field list.
type Descriptor struct {
	ID        int
	Names     []string
	Fields    []Field
	PerPacket bool
}

// Name returns the primary name.
func (d *Descriptor) Name() string { return d.Names[0] }

// WireID returns the IPFIX template id.
func (d *Descriptor) WireID() uint16 { return WireID(d.ID) }

// FixedLength returns the encoded length of a record without variable fields, or -1
// when the template has any.
func (d *Descriptor) FixedLength() int {
	n := 0
	for _, f := range d.Fields {
		if f.Variable() {
			return -1
		}
		n += int(f.Length)
	}
	return n
}

// WireID maps a registry id to its IPFIX template id.
func WireID(id int) uint16 { return uint16(wireIDBase + id) }

var (
	tsFields      = []Field{ObservationTimeMicroseconds, DigestHashValue}
	minFields     = appendFields(tsFields, IPTTL)
	lpFields      = appendFields(minFields, TotalLengthIPv4, ProtocolIdentifier, IPVersion)
	lsFields      = appendFields(lpFields, SourceIPv4Address, SourceTransportPort, DestinationIPv4Address, DestinationTransportPort)
	ifStatsFields = []Field{
		ObservationTimeMilliseconds, SamplingSize, PacketDeltaCount,
		PcapRecv, PcapDrop, InterfaceName, InterfaceDescription,
	}
	probeStatsFields = []Field{
		ObservationTimeMilliseconds, SystemCPUIdle, SystemMemFree, ProcessCPUUser,
		ProcessCPUSys, ProcessMemVzs, ProcessMemRss, SystemMemTotal, ProcessThreads,
	}
	locationFields = []Field{
		ObservationTimeMilliseconds, SourceIPv4Address, GeoLatitude, GeoLongitude,
		ProbeName, ProbeLocationName,
	}
	syncFields = []Field{ObservationTimeMilliseconds, MessageID, MessageValue, Message}
)

var registry = []*Descriptor{
	{ID: TS, Names: []string{"ts"}, Fields: tsFields, PerPacket: true},
	{ID: Min, Names: []string{"min"}, Fields: minFields, PerPacket: true},
	{ID: TSTTLProto, Names: []string{"lp", "ts_ttl_proto"}, Fields: lpFields, PerPacket: true},
	{ID: TSTTLProtoIP, Names: []string{"ls", "ts_ttl_proto_ip"}, Fields: lsFields, PerPacket: true},
	{ID: InterfaceStats, Names: []string{"interface_stats"}, Fields: ifStatsFields},
	{ID: ProbeStats, Names: []string{"probe_stats"}, Fields: probeStatsFields},
	{ID: Location, Names: []string{"location"}, Fields: locationFields},
	{ID: Sync, Names: []string{"sync"}, Fields: syncFields},
}

func appendFields(base []Field, more ...Field) []Field {
	out := make([]Field, 0, len(base)+len(more))
	out = append(out, base...)
	return append(out, more...)
}

// Get returns the descriptor registered under id.
func Get(id int) (*Descriptor, error) {
	if id < 1 || id > len(registry) {
		return nil, fmt.Errorf("id %d: %w", id, ErrTemplateNotFound)
	}
	return registry[id-1], nil
}

// MustGet is Get for ids known at compile time.
func MustGet(id int) *Descriptor {
	d, err := Get(id)
	if err != nil {
		panic(err)
	}
	return d
}

// Parse resolves a template by any of its names.
func Parse(name string) (*Descriptor, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, d := range registry {
		for _, n := range d.Names {
			if n == name {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("name %q: %w", name, ErrTemplateNotFound)
}

// ParsePacket resolves a template that can be used for per-packet records.
func ParsePacket(name string) (*Descriptor, error) {
	d, err := Parse(name)
	if err != nil {
		return nil, err
	}
	if !d.PerPacket {
		return nil, fmt.Errorf("%q is not a packet template: %w", name, core.ErrConfigInvalid)
	}
	return d, nil
}

// All returns the registered descriptors ordered by id.
func All() []*Descriptor {
	out := make([]*Descriptor, len(registry))
	copy(out, registry)
	return out
}

// ByWireID returns the descriptor for an IPFIX template id.
func ByWireID(wire uint16) (*Descriptor, bool) {
	d, err := Get(int(wire) - wireIDBase)
	return d, err == nil
}
