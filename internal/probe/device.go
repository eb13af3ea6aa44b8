package probe

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/source"
	"firestige.xyz/hsprobe/internal/template"
)

// queueSize bounds the packets a reader may queue ahead of the loop.
const queueSize = 1024

// Exporter is the record sink of one device.
type Exporter interface {
	MakeTemplate(desc *template.Descriptor) error
	Export(id int, values [][]byte) error
	Flush() error
	Close() error
}

// flushErrorNotifier is implemented by exporters that flush on their own when a
// message fills up and report failures of those flushes.
type flushErrorNotifier interface {
	SetFlushErrorHandler(fn func(error))
}

// DeviceSpec describes one opened capture source and its exporter.
type DeviceSpec struct {
	Name     string
	Source   source.Source
	Exporter Exporter
	IPv4     net.IP               // nil when the source has no address
	Template *template.Descriptor // nil follows the global template
}

// Counters are the per-device packet counters.
type Counters struct {
	Total   uint64 // packets seen
	Sampled uint64 // packets admitted by the sampling window

	// ExportPacketCount counts admitted packets since the last threshold flush.
	ExportPacketCount uint64
	// SamplingSize and SamplingDeltaCount count admitted and seen packets since the
	// last interface statistics export.
	SamplingSize       uint64
	SamplingDeltaCount uint64

	NoSelection  uint64 // packets without viable selection bytes
	Exported     uint64 // records accepted by the exporter
	ExportErrors uint64 // rejected records and failed flushes
	Dropped      uint64 // queued packets discarded at shutdown
}

// Device is the state of one capture source. Everything except queue and armed is
// owned by the event loop.
type Device struct {
	ID       int
	Name     string
	Kind     source.Kind
	LinkType layers.LinkType
	IPv4     net.IP
	Template *template.Descriptor

	Counters
	LastExport time.Time

	src     source.Source
	exp     Exporter
	scratch []byte

	queue chan core.RawPacket
	armed atomic.Bool // a readiness notification is pending
	eof   bool
}

func newDevice(id int, spec DeviceSpec, snapLen int) *Device {
	return &Device{
		ID:       id,
		Name:     spec.Name,
		Kind:     spec.Source.Kind(),
		LinkType: spec.Source.LinkType(),
		IPv4:     spec.IPv4.To4(),
		Template: spec.Template,
		src:      spec.Source,
		exp:      spec.Exporter,
		scratch:  make([]byte, snapLen),
		queue:    make(chan core.RawPacket, queueSize),
	}
}

// template returns the per-packet template in effect for the device.
func (d *Device) template(global *template.Descriptor) *template.Descriptor {
	if d.Template != nil {
		return d.Template
	}
	return global
}

// Description is the interface description exported in interface statistics.
func (d *Device) Description() string {
	if d.IPv4 == nil {
		return net.IPv4zero.String()
	}
	return d.IPv4.String()
}

// DeviceStatus is a snapshot of one device for the control plane.
type DeviceStatus struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Address    string    `json:"address"`
	Template   string    `json:"template"`
	Queued     int       `json:"queued"`
	Exhausted  bool      `json:"exhausted"`
	LastExport time.Time `json:"last_export,omitempty"`

	Total              uint64 `json:"total"`
	Sampled            uint64 `json:"sampled"`
	ExportPacketCount  uint64 `json:"export_packet_count"`
	SamplingSize       uint64 `json:"sampling_size"`
	SamplingDeltaCount uint64 `json:"sampling_delta_count"`
	NoSelection        uint64 `json:"no_selection"`
	Exported           uint64 `json:"exported"`
	ExportErrors       uint64 `json:"export_errors"`
	Dropped            uint64 `json:"dropped"`
}

func (d *Device) status(global *template.Descriptor) DeviceStatus {
	return DeviceStatus{
		Name:               d.Name,
		Kind:               d.Kind.String(),
		Address:            d.Description(),
		Template:           d.template(global).Name(),
		Queued:             len(d.queue),
		Exhausted:          d.eof,
		LastExport:         d.LastExport,
		Total:              d.Total,
		Sampled:            d.Sampled,
		ExportPacketCount:  d.ExportPacketCount,
		SamplingSize:       d.SamplingSize,
		SamplingDeltaCount: d.SamplingDeltaCount,
		NoSelection:        d.NoSelection,
		Exported:           d.Exported,
		ExportErrors:       d.ExportErrors,
		Dropped:            d.Dropped,
	}
}
