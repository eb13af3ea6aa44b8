// Package probe runs the packet selection pipeline: it owns the capture devices, the
// event loop and its timers, and the runtime console handlers.
package probe

import (
	"fmt"
	"strings"
	"time"

	"firestige.xyz/hsprobe/internal/config"
	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/hash"
	"firestige.xyz/hsprobe/internal/sampling"
	"firestige.xyz/hsprobe/internal/selection"
	"firestige.xyz/hsprobe/internal/template"
)

// Settings is the runtime configuration of the pipeline. It is owned by the event
// loop; console handlers change it between packets.
type Settings struct {
	Selection selection.Kind

	Hash     hash.Func
	HashName string

	// PacketIDHash computes the exported packet id. Nil exports the selection hash.
	PacketIDHash     hash.Func
	PacketIDHashName string

	Range    sampling.Range
	Template *template.Descriptor // global per-packet template
	Filter   string

	SnapLength     int
	FlushThreshold int

	// Intervals of the periodic tasks. Zero disables a task; a zero packet-id
	// interval also disables per-packet export.
	PacketIDInterval       time.Duration
	InterfaceStatsInterval time.Duration
	ProbeStatsInterval     time.Duration
	LocationInterval       time.Duration

	Location config.LocationConfig
}

// SettingsFromConfig resolves the names in cfg into runtime settings.
func SettingsFromConfig(cfg *config.ProbeConfig) (*Settings, error) {
	sel, err := selection.Parse(cfg.Selection.Function)
	if err != nil {
		return nil, fmt.Errorf("selection.function: %w", err)
	}
	h, err := hash.Parse(cfg.Selection.Hash)
	if err != nil {
		return nil, fmt.Errorf("selection.hash: %w", err)
	}
	tmpl, err := template.ParsePacket(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	s := &Settings{
		Selection:              sel,
		Hash:                   h,
		HashName:               strings.ToUpper(cfg.Selection.Hash),
		Range:                  sampling.Range{Min: cfg.Selection.RangeMin, Max: cfg.Selection.RangeMax},
		Template:               tmpl,
		Filter:                 cfg.Filter,
		SnapLength:             cfg.SnapLength,
		FlushThreshold:         cfg.Export.PacketCount,
		PacketIDInterval:       cfg.Export.Intervals.PacketID,
		InterfaceStatsInterval: cfg.Export.Intervals.InterfaceStats,
		ProbeStatsInterval:     cfg.Export.Intervals.ProbeStats,
		LocationInterval:       cfg.Export.Intervals.Location,
		Location:               cfg.Location,
	}

	if name := cfg.Selection.PacketIDHash; name != "" {
		if s.PacketIDHash, err = hash.Parse(name); err != nil {
			return nil, fmt.Errorf("selection.packet_id_hash: %w", err)
		}
		s.PacketIDHashName = strings.ToUpper(name)
	}

	if r := cfg.Selection.Ratio; r != nil {
		if s.Range, err = sampling.FromRatio(*r); err != nil {
			return nil, fmt.Errorf("selection.ratio: %w", err)
		}
	}

	if s.SnapLength <= 0 {
		return nil, fmt.Errorf("snap_length must be positive, got %d: %w", s.SnapLength, core.ErrConfigInvalid)
	}
	if s.FlushThreshold <= 0 {
		s.FlushThreshold = 1
	}
	return s, nil
}

// DeviceTemplate resolves a per-device template override. An empty name means the
// device follows the global template.
func DeviceTemplate(name string) (*template.Descriptor, error) {
	if name == "" {
		return nil, nil
	}
	return template.ParsePacket(name)
}

// packetID returns the id exported for a packet whose selection hashed to h.
func (s *Settings) packetID(h uint32, selected []byte) uint32 {
	if s.PacketIDHash == nil {
		return h
	}
	return s.PacketIDHash(selected)
}
