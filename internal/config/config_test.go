package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hsprobe.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
hsprobe:
  devices:
    - name: eth0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, DeviceLive, cfg.Devices[0].Type)
	assert.Equal(t, 80, cfg.SnapLength)
	assert.Equal(t, "min", cfg.Template)
	assert.Equal(t, "IP+TP", cfg.Selection.Function)
	assert.Equal(t, "BOB", cfg.Selection.Hash)
	assert.Equal(t, uint32(0x19999999), cfg.Selection.RangeMin)
	assert.Equal(t, uint32(0x33333333), cfg.Selection.RangeMax)
	assert.Equal(t, "localhost:4739", cfg.Export.Collector)
	assert.Equal(t, TransportTCP, cfg.Export.Transport)
	assert.Equal(t, 1000, cfg.Export.PacketCount)
	assert.Equal(t, 3*time.Second, cfg.Export.Intervals.PacketID)
	assert.Equal(t, 10*time.Second, cfg.Export.Intervals.InterfaceStats)
	assert.Equal(t, 30*time.Second, cfg.Export.Intervals.ProbeStats)
	assert.Equal(t, time.Duration(0), cfg.Export.Intervals.Location)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRatio(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
hsprobe:
  devices:
    - name: eth0
`))
	require.NoError(t, err)
	assert.Nil(t, cfg.Selection.Ratio, "unset ratio keeps the configured range")

	cfg, err = Load(writeConfig(t, `
hsprobe:
  devices:
    - name: eth0
  selection:
    ratio: 0
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Selection.Ratio)
	assert.Zero(t, *cfg.Selection.Ratio)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
hsprobe:
  devices:
    - name: eth1
      type: afpacket
      template: ls
      options:
        num_blocks: 64
    - name: /tmp/trace.pcap
      type: file
  snap_length: 128
  filter: "udp port 53"
  selection:
    function: REC8
    hash: OAAT
    packet_id_hash: HSIEH
    range_min: 0x10
    range_max: 0xFFFF
  template: ts
  export:
    collector: "10.0.0.1:4739"
    transport: udp
    packet_count: 50
    intervals:
      packet_id: 1.5s
      location: 1m
  location:
    latitude: "52.52"
    longitude: "13.40"
    probe_name: probe-1
  log:
    level: debug
    format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, DeviceAFPacket, cfg.Devices[0].Type)
	assert.Equal(t, "ls", cfg.Devices[0].Template)
	assert.EqualValues(t, 64, cfg.Devices[0].Options["num_blocks"])
	assert.Equal(t, DeviceFile, cfg.Devices[1].Type)
	assert.Equal(t, 128, cfg.SnapLength)
	assert.Equal(t, "udp port 53", cfg.Filter)
	assert.Equal(t, "REC8", cfg.Selection.Function)
	assert.Equal(t, "HSIEH", cfg.Selection.PacketIDHash)
	assert.Equal(t, uint32(0x10), cfg.Selection.RangeMin)
	assert.Equal(t, uint32(0xFFFF), cfg.Selection.RangeMax)
	assert.Equal(t, TransportUDP, cfg.Export.Transport)
	assert.Equal(t, 50, cfg.Export.PacketCount)
	assert.Equal(t, 1500*time.Millisecond, cfg.Export.Intervals.PacketID)
	assert.Equal(t, time.Minute, cfg.Export.Intervals.Location)
	assert.Equal(t, "probe-1", cfg.Location.ProbeName)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
hsprobe:
  devices:
    - name: eth0
`)
	t.Setenv("HSPROBE_EXPORT_COLLECTOR", "collector.example:4740")
	t.Setenv("HSPROBE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "collector.example:4740", cfg.Export.Collector)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ProbeConfig)
		want   string
	}{
		{"no devices", func(c *ProbeConfig) { c.Devices = nil }, "at least one device"},
		{"bad device type", func(c *ProbeConfig) { c.Devices[0].Type = "pfring" }, "unsupported type"},
		{"empty device name", func(c *ProbeConfig) { c.Devices[0].Name = "" }, "name is required"},
		{"bad snaplen", func(c *ProbeConfig) { c.SnapLength = 0 }, "snap_length"},
		{"bad ratio", func(c *ProbeConfig) { r := 120.0; c.Selection.Ratio = &r }, "selection.ratio"},
		{"bad transport", func(c *ProbeConfig) { c.Export.Transport = "sctp" }, "export.transport"},
		{"kafka without brokers", func(c *ProbeConfig) { c.Export.Transport = TransportKafka }, "brokers"},
		{"bad kafka compression", func(c *ProbeConfig) {
			c.Export.Transport = TransportKafka
			c.Export.Kafka.Brokers = []string{"localhost:9092"}
			c.Export.Kafka.Compression = "brotli"
		}, "compression"},
		{"bad packet count", func(c *ProbeConfig) { c.Export.PacketCount = 0 }, "packet_count"},
		{"bad message size", func(c *ProbeConfig) { c.Export.MaxMessageSize = 70000 }, "max_message_size"},
		{"negative interval", func(c *ProbeConfig) { c.Export.Intervals.ProbeStats = -time.Second }, "negative"},
		{"kafka console without brokers", func(c *ProbeConfig) { c.Control.Kafka.Enabled = true }, "control.kafka"},
		{"bad offset reset", func(c *ProbeConfig) {
			c.Control.Kafka = KafkaCommandConfig{Enabled: true, Brokers: []string{"b:9092"}, Topic: "t", GroupID: "g", AutoOffsetReset: "middle"}
		}, "auto_offset_reset"},
		{"bad log level", func(c *ProbeConfig) { c.Log.Level = "loud" }, "log level"},
		{"bad log format", func(c *ProbeConfig) { c.Log.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Devices = []DeviceConfig{{Name: "eth0", Type: DeviceLive}}
			tt.mutate(cfg)
			err := cfg.ValidateAndApplyDefaults()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefaultIsValidWithDevice(t *testing.T) {
	cfg := Default()
	cfg.Devices = []DeviceConfig{{Name: "eth0"}}
	require.NoError(t, cfg.ValidateAndApplyDefaults())
	assert.Equal(t, DeviceLive, cfg.Devices[0].Type)
}
