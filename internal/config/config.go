// Package config handles probe configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Device types accepted in devices[].type.
const (
	DeviceLive       = "live"
	DeviceAFPacket   = "afpacket"
	DeviceFile       = "file"
	DeviceInetSocket = "inet"
	DeviceUnixSocket = "unix"
)

// Export transports accepted in export.transport.
const (
	TransportTCP   = "tcp"
	TransportUDP   = "udp"
	TransportKafka = "kafka"
)

// ProbeConfig is the static configuration of one probe process.
// Maps to the `hsprobe:` root key in YAML.
type ProbeConfig struct {
	Devices     []DeviceConfig  `mapstructure:"devices" yaml:"devices"`
	SnapLength  int             `mapstructure:"snap_length" yaml:"snap_length"`
	Promiscuous bool            `mapstructure:"promiscuous" yaml:"promiscuous"`
	Filter      string          `mapstructure:"filter" yaml:"filter"`
	Selection   SelectionConfig `mapstructure:"selection" yaml:"selection"`
	Template    string          `mapstructure:"template" yaml:"template"`
	Export      ExportConfig    `mapstructure:"export" yaml:"export"`
	Location    LocationConfig  `mapstructure:"location" yaml:"location"`
	Control     ControlConfig   `mapstructure:"control" yaml:"control"`
	Metrics     MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log         LogConfig       `mapstructure:"log" yaml:"log"`
}

// ─── Capture Devices ───

// DeviceConfig describes one capture source.
type DeviceConfig struct {
	Name     string         `mapstructure:"name" yaml:"name"`         // interface, file path or socket address
	Type     string         `mapstructure:"type" yaml:"type"`         // live | afpacket | file | inet | unix
	Template string         `mapstructure:"template" yaml:"template"` // empty = global template
	Options  map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// ─── Packet Selection ───

// SelectionConfig configures the field selector, the hashes and the sampling window.
type SelectionConfig struct {
	Function     string `mapstructure:"function" yaml:"function"`             // IP | IP+TP | REC8 | PACKET | RAW
	Hash         string `mapstructure:"hash" yaml:"hash"`                     // BOB | OAAT | TWMX | HSIEH
	PacketIDHash string `mapstructure:"packet_id_hash" yaml:"packet_id_hash"` // empty = export the selection hash
	RangeMin     uint32 `mapstructure:"range_min" yaml:"range_min"`
	RangeMax     uint32 `mapstructure:"range_max" yaml:"range_max"`
	// Ratio, when set, overrides range_min/range_max. An explicit 0 selects nothing.
	Ratio *float64 `mapstructure:"ratio" yaml:"ratio,omitempty"`
}

// ─── Export ───

// ExportConfig configures the IPFIX exporter and the periodic exports.
type ExportConfig struct {
	Collector             string          `mapstructure:"collector" yaml:"collector"`
	Transport             string          `mapstructure:"transport" yaml:"transport"`
	Kafka                 KafkaConfig     `mapstructure:"kafka" yaml:"kafka"`
	ObservationDomainID   uint32          `mapstructure:"observation_domain_id" yaml:"observation_domain_id"`
	OIDFromFirstInterface bool            `mapstructure:"oid_from_first_interface" yaml:"oid_from_first_interface"`
	PacketCount           int             `mapstructure:"packet_count" yaml:"packet_count"` // flush threshold
	MaxMessageSize        int             `mapstructure:"max_message_size" yaml:"max_message_size"`
	TemplateRefresh       time.Duration   `mapstructure:"template_refresh" yaml:"template_refresh"`
	DialTimeout           time.Duration   `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	Intervals             IntervalsConfig `mapstructure:"intervals" yaml:"intervals"`
}

// KafkaConfig configures the kafka transport.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	Compression  string        `mapstructure:"compression" yaml:"compression"` // none | gzip | snappy | lz4
}

// IntervalsConfig holds the periodic export intervals. Zero disables the export.
type IntervalsConfig struct {
	PacketID       time.Duration `mapstructure:"packet_id" yaml:"packet_id"`
	InterfaceStats time.Duration `mapstructure:"interface_stats" yaml:"interface_stats"`
	ProbeStats     time.Duration `mapstructure:"probe_stats" yaml:"probe_stats"`
	Location       time.Duration `mapstructure:"location" yaml:"location"`
}

// LocationConfig is exported verbatim in LOCATION records.
type LocationConfig struct {
	Latitude     string `mapstructure:"latitude" yaml:"latitude"`
	Longitude    string `mapstructure:"longitude" yaml:"longitude"`
	ProbeName    string `mapstructure:"probe_name" yaml:"probe_name"`
	LocationName string `mapstructure:"location_name" yaml:"location_name"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Enabled bool               `mapstructure:"enabled" yaml:"enabled"`
	Socket  string             `mapstructure:"socket" yaml:"socket"`
	PIDFile string             `mapstructure:"pid_file" yaml:"pid_file"`
	Kafka   KafkaCommandConfig `mapstructure:"kafka" yaml:"kafka"`
}

// KafkaCommandConfig configures the remote console channel consumed from Kafka.
type KafkaCommandConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers         []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic           string        `mapstructure:"topic" yaml:"topic"`
	GroupID         string        `mapstructure:"group_id" yaml:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset" yaml:"auto_offset_reset"` // earliest | latest
	CommandTTL      time.Duration `mapstructure:"command_ttl" yaml:"command_ttl"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level" yaml:"level"`   // trace / debug / info / warn / error
	Format     string           `mapstructure:"format" yaml:"format"` // json / text
	Pattern    string           `mapstructure:"pattern" yaml:"pattern,omitempty"`
	TimeFormat string           `mapstructure:"time_format" yaml:"time_format,omitempty"`
	Outputs    LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations. Stdout is always on.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `hsprobe: ...`.
type configRoot struct {
	Probe ProbeConfig `mapstructure:"hsprobe"`
}

// Load loads configuration from file.
// Env vars override file values, e.g. HSPROBE_EXPORT_COLLECTOR for hsprobe.export.collector.
func Load(path string) (*ProbeConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Probe

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration without any device.
func Default() *ProbeConfig {
	v := viper.New()
	setDefaults(v)
	var root configRoot
	// Defaults alone always decode.
	_ = v.Unmarshal(&root)
	return &root.Probe
}

// setDefaults sets default values for configuration.
// All keys use the "hsprobe." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("hsprobe.snap_length", 80)
	v.SetDefault("hsprobe.promiscuous", true)
	v.SetDefault("hsprobe.filter", "")
	v.SetDefault("hsprobe.template", "min")

	// Selection defaults: 10% window
	v.SetDefault("hsprobe.selection.function", "IP+TP")
	v.SetDefault("hsprobe.selection.hash", "BOB")
	v.SetDefault("hsprobe.selection.packet_id_hash", "")
	v.SetDefault("hsprobe.selection.range_min", uint32(0x19999999))
	v.SetDefault("hsprobe.selection.range_max", uint32(0x33333333))

	// Export defaults
	v.SetDefault("hsprobe.export.collector", "localhost:4739")
	v.SetDefault("hsprobe.export.transport", TransportTCP)
	v.SetDefault("hsprobe.export.kafka.topic", "hsprobe-ipfix")
	v.SetDefault("hsprobe.export.kafka.batch_timeout", 100*time.Millisecond)
	v.SetDefault("hsprobe.export.kafka.compression", "snappy")
	v.SetDefault("hsprobe.export.observation_domain_id", 0)
	v.SetDefault("hsprobe.export.oid_from_first_interface", false)
	v.SetDefault("hsprobe.export.packet_count", 1000)
	v.SetDefault("hsprobe.export.max_message_size", 1400)
	v.SetDefault("hsprobe.export.template_refresh", 10*time.Minute)
	v.SetDefault("hsprobe.export.dial_timeout", 5*time.Second)
	v.SetDefault("hsprobe.export.intervals.packet_id", 3*time.Second)
	v.SetDefault("hsprobe.export.intervals.interface_stats", 10*time.Second)
	v.SetDefault("hsprobe.export.intervals.probe_stats", 30*time.Second)
	v.SetDefault("hsprobe.export.intervals.location", time.Duration(0))

	// Control defaults
	v.SetDefault("hsprobe.control.enabled", true)
	v.SetDefault("hsprobe.control.socket", "/var/run/hsprobe.sock")
	v.SetDefault("hsprobe.control.pid_file", "")
	v.SetDefault("hsprobe.control.kafka.enabled", false)
	v.SetDefault("hsprobe.control.kafka.topic", "hsprobe-commands")
	v.SetDefault("hsprobe.control.kafka.group_id", "hsprobe")
	v.SetDefault("hsprobe.control.kafka.auto_offset_reset", "latest")
	v.SetDefault("hsprobe.control.kafka.command_ttl", 5*time.Minute)

	// Metrics defaults
	v.SetDefault("hsprobe.metrics.enabled", false)
	v.SetDefault("hsprobe.metrics.listen", ":9091")
	v.SetDefault("hsprobe.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("hsprobe.log.level", "info")
	v.SetDefault("hsprobe.log.format", "text")
	v.SetDefault("hsprobe.log.outputs.file.enabled", false)
	v.SetDefault("hsprobe.log.outputs.file.path", "/var/log/hsprobe/hsprobe.log")
	v.SetDefault("hsprobe.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("hsprobe.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("hsprobe.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("hsprobe.log.outputs.file.rotation.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// Names of hashes, selectors and templates are resolved later, when runtime settings are built.
func (cfg *ProbeConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Devices ──
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Name == "" {
			return fmt.Errorf("devices[%d].name is required", i)
		}
		if d.Type == "" {
			d.Type = DeviceLive
		}
		switch d.Type {
		case DeviceLive, DeviceAFPacket, DeviceFile, DeviceInetSocket, DeviceUnixSocket:
		default:
			return fmt.Errorf("devices[%d].type: unsupported type %q", i, d.Type)
		}
	}

	if cfg.SnapLength <= 0 || cfg.SnapLength > 65535 {
		return fmt.Errorf("invalid snap_length: %d (must be 1..65535)", cfg.SnapLength)
	}

	// ── Selection ──
	if r := cfg.Selection.Ratio; r != nil && (*r < 0 || *r > 100) {
		return fmt.Errorf("invalid selection.ratio: %g (must be 0..100)", *r)
	}

	// ── Export ──
	ex := &cfg.Export
	switch ex.Transport {
	case TransportTCP, TransportUDP:
		if ex.Collector == "" {
			return fmt.Errorf("export.collector is required for transport %s", ex.Transport)
		}
	case TransportKafka:
		if len(ex.Kafka.Brokers) == 0 {
			return fmt.Errorf("export.kafka.brokers is required when export.transport=kafka")
		}
		if ex.Kafka.Topic == "" {
			return fmt.Errorf("export.kafka.topic is required when export.transport=kafka")
		}
		switch ex.Kafka.Compression {
		case "", "none", "gzip", "snappy", "lz4":
		default:
			return fmt.Errorf("invalid export.kafka.compression: %s (must be none/gzip/snappy/lz4)", ex.Kafka.Compression)
		}
	default:
		return fmt.Errorf("unsupported export.transport: %s (must be tcp/udp/kafka)", ex.Transport)
	}
	if ex.PacketCount <= 0 {
		return fmt.Errorf("invalid export.packet_count: %d (must be > 0)", ex.PacketCount)
	}
	if ex.MaxMessageSize < 512 || ex.MaxMessageSize > 65535 {
		return fmt.Errorf("invalid export.max_message_size: %d (must be 512..65535)", ex.MaxMessageSize)
	}
	iv := ex.Intervals
	if iv.PacketID < 0 || iv.InterfaceStats < 0 || iv.ProbeStats < 0 || iv.Location < 0 {
		return fmt.Errorf("export.intervals must not be negative")
	}

	// ── Control ──
	if cfg.Control.Enabled && cfg.Control.Socket == "" {
		return fmt.Errorf("control.socket is required when control.enabled=true")
	}
	if kc := cfg.Control.Kafka; kc.Enabled {
		if len(kc.Brokers) == 0 || kc.Topic == "" || kc.GroupID == "" {
			return fmt.Errorf("control.kafka requires brokers, topic and group_id when enabled")
		}
		if kc.AutoOffsetReset != "earliest" && kc.AutoOffsetReset != "latest" {
			return fmt.Errorf("invalid control.kafka.auto_offset_reset: %s (must be earliest/latest)", kc.AutoOffsetReset)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return nil
}
