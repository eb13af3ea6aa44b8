package daemon

import (
	"context"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hsprobe/internal/command"
	"firestige.xyz/hsprobe/internal/ipfix"
	"firestige.xyz/hsprobe/internal/probe"
	"firestige.xyz/hsprobe/internal/template"
	"firestige.xyz/hsprobe/internal/testutil"
)

// recorder collects the data records a test collector decodes.
type recorder struct {
	mu      sync.Mutex
	records []ipfix.DataRecord
	domains map[uint32]bool
}

func (r *recorder) handle(_ net.Addr, m *ipfix.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.domains == nil {
		r.domains = make(map[uint32]bool)
	}
	r.domains[m.Header.DomainID] = true
	r.records = append(r.records, m.Records...)
}

func (r *recorder) count(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.TemplateID == template.WireID(id) {
			n++
		}
	}
	return n
}

func startCollector(t *testing.T) (*recorder, string) {
	t.Helper()
	rec := &recorder{}
	c, err := ipfix.Listen("tcp", "127.0.0.1:0", rec.handle)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return rec, c.Addr().String()
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "hsprobe.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDaemonSocketDeviceIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	rec, collector := startCollector(t)

	devicePath := filepath.Join(tmpDir, "in.sock")
	socketPath := filepath.Join(tmpDir, "ctl.sock")
	pidFile := filepath.Join(tmpDir, "hsprobe.pid")
	configPath := writeConfig(t, tmpDir, `
hsprobe:
  devices:
    - name: `+devicePath+`
      type: unix
  selection:
    function: IP
    ratio: 100
  export:
    collector: `+collector+`
    transport: tcp
    observation_domain_id: 77
    packet_count: 1
    intervals:
      packet_id: 100ms
      interface_stats: 0s
      probe_stats: 0s
  log:
    level: debug
    format: text
`)

	d, err := New(configPath, socketPath, pidFile)
	require.NoError(t, err)
	require.NoError(t, d.Start())

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run() }()

	_, err = os.Stat(pidFile)
	require.NoError(t, err, "PID file was not created")

	conn, err := net.Dial("unixgram", devicePath)
	require.NoError(t, err)
	defer conn.Close()
	packet := testutil.Frame(t, testutil.FrameSpec{NoLink: true, SrcPort: 1234, DstPort: 53})
	for i := 0; i < 3; i++ {
		_, err := conn.Write(packet)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return rec.count(template.Min) == 3 },
		5*time.Second, 20*time.Millisecond)

	client := command.NewUDSClient(socketPath, 2*time.Second)
	require.Eventually(t, func() bool { return client.Ping(context.Background()) == nil },
		2*time.Second, 20*time.Millisecond)

	res, err := client.ConsoleExec(context.Background(), command.FormatConsole(5, command.CmdRatio, "50"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), res.MID)
	assert.Equal(t, "INFO: new sampling ratio set: 50", res.Reply)
	require.Eventually(t, func() bool { return rec.count(template.Sync) == 1 },
		5*time.Second, 20*time.Millisecond)

	resp, err := client.ProbeStatus(context.Background())
	require.NoError(t, err)
	var st probe.Status
	require.NoError(t, resp.DecodeResult(&st))
	require.Len(t, st.Devices, 1)
	assert.Equal(t, uint64(3), st.Devices[0].Total)
	assert.Equal(t, "unix", st.Devices[0].Kind)

	_, err = client.Shutdown(context.Background())
	require.NoError(t, err)

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not stop within timeout")
	}

	_, err = os.Stat(pidFile)
	assert.True(t, os.IsNotExist(err), "PID file was not removed after shutdown")
	_, err = os.Stat(socketPath)
	assert.True(t, os.IsNotExist(err), "control socket was not removed after shutdown")

	rec.mu.Lock()
	assert.True(t, rec.domains[77])
	rec.mu.Unlock()
}

func writePcap(t *testing.T, path string, frames ...[]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
}

func TestDaemonOfflineFileEndsRun(t *testing.T) {
	tmpDir := t.TempDir()
	rec, collector := startCollector(t)

	trace := filepath.Join(tmpDir, "trace.pcap")
	frame := testutil.UDPv4(t, make([]byte, 12))
	writePcap(t, trace, frame, frame, frame, frame)

	configPath := writeConfig(t, tmpDir, `
hsprobe:
  devices:
    - name: `+trace+`
      type: file
      template: ls
  selection:
    ratio: 100
  export:
    collector: `+collector+`
    transport: tcp
  control:
    enabled: false
  log:
    level: info
    format: json
`)

	d, err := New(configPath, "", "")
	require.NoError(t, err)
	require.NoError(t, d.Start())

	runDone := make(chan error, 1)
	go func() { runDone <- d.Run() }()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("offline run did not end by itself")
	}

	require.Eventually(t, func() bool { return rec.count(template.TSTTLProtoIP) == 4 },
		5*time.Second, 20*time.Millisecond)
	assert.Zero(t, rec.count(template.Min))

	st := d.Engine().Devices()[0]
	assert.Equal(t, uint64(4), st.Total)
	assert.Equal(t, uint64(4), st.Exported)
}

func TestDaemonStartFailsOnMissingDevice(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, tmpDir, `
hsprobe:
  devices:
    - name: `+filepath.Join(tmpDir, "missing.pcap")+`
      type: file
  control:
    enabled: false
`)
	d, err := New(configPath, "", "")
	require.NoError(t, err)
	assert.Error(t, d.Start())
}

func TestObservationDomainID(t *testing.T) {
	dev := net.IPv4(192, 168, 0, 1)
	first := net.IPv4(10, 0, 0, 1)

	assert.Equal(t, uint32(42), observationDomainID(42, first, dev))
	assert.Equal(t, binary.BigEndian.Uint32([]byte{10, 0, 0, 1}), observationDomainID(0, first, dev))
	assert.Equal(t, binary.BigEndian.Uint32([]byte{192, 168, 0, 1}), observationDomainID(0, nil, dev))
	assert.Zero(t, observationDomainID(0, nil, nil))
	assert.Zero(t, observationDomainID(0, nil, net.ParseIP("2001:db8::1")))
}

func TestInterfaceIPv4Unknown(t *testing.T) {
	assert.Nil(t, interfaceIPv4("does-not-exist0"))
}

func TestDaemonReloadLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	body := func(level string) string {
		return `
hsprobe:
  devices:
    - name: eth0
  log:
    level: ` + level + `
    format: text
`
	}
	configPath := writeConfig(t, tmpDir, body("info"))

	d, err := New(configPath, "", "")
	require.NoError(t, err)
	assert.Equal(t, "info", d.config.Log.Level)

	writeConfig(t, tmpDir, body("debug"))
	require.NoError(t, d.Reload())
	assert.Equal(t, "debug", d.config.Log.Level)

	writeConfig(t, tmpDir, body("verbose"))
	assert.Error(t, d.Reload())
	assert.Equal(t, "debug", d.config.Log.Level)
}
