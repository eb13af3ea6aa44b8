package record

import (
	"encoding/binary"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hsprobe/internal/core"
	"firestige.xyz/hsprobe/internal/core/decoder"
	"firestige.xyz/hsprobe/internal/template"
	"firestige.xyz/hsprobe/internal/testutil"
)

var captured = time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)

func packet(frame []byte, id uint32) Packet {
	l := decoder.Locate(frame, layers.LinkTypeEthernet)
	return Packet{Frame: frame, Layers: &l, Timestamp: captured, PacketID: id}
}

func TestAssembleMin(t *testing.T) {
	frame := testutil.UDPv4(t, make([]byte, 12))
	require.Len(t, frame, 60)

	values, err := AssemblePacket(template.MustGet(template.Min), packet(frame, 0xdeadbeef))
	require.NoError(t, err)
	require.Len(t, values, 3)

	assert.Equal(t, uint64(captured.UnixMicro()), binary.BigEndian.Uint64(values[0]))
	assert.Equal(t, uint32(0xdeadbeef), binary.BigEndian.Uint32(values[1]))
	assert.Equal(t, []byte{64}, values[2])
	assert.NoError(t, Validate(template.MustGet(template.Min), values))
}

func TestAssembleTSTTLProtoIP(t *testing.T) {
	frame := testutil.Frame(t, testutil.FrameSpec{
		Proto:   layers.IPProtocolTCP,
		TTL:     17,
		Src:     net.IPv4(192, 168, 1, 10),
		Dst:     net.IPv4(172, 16, 0, 1),
		SrcPort: 40000,
		DstPort: 443,
	})
	desc := template.MustGet(template.TSTTLProtoIP)

	values, err := AssemblePacket(desc, packet(frame, 7))
	require.NoError(t, err)
	require.NoError(t, Validate(desc, values))

	assert.Equal(t, []byte{17}, values[2])
	assert.Equal(t, uint16(40), binary.BigEndian.Uint16(values[3]))
	assert.Equal(t, []byte{6}, values[4])
	assert.Equal(t, []byte{4}, values[5])
	assert.Equal(t, []byte{192, 168, 1, 10}, values[6])
	assert.Equal(t, uint16(40000), binary.BigEndian.Uint16(values[7]))
	assert.Equal(t, []byte{172, 16, 0, 1}, values[8])
	assert.Equal(t, uint16(443), binary.BigEndian.Uint16(values[9]))
}

func TestAssembleCutTCPKeepsPorts(t *testing.T) {
	full := testutil.Frame(t, testutil.FrameSpec{
		Proto:   layers.IPProtocolTCP,
		SrcPort: 40000,
		DstPort: 443,
	})
	frame := full[:14+20+4]
	desc := template.MustGet(template.TSTTLProtoIP)

	values, err := AssemblePacket(desc, packet(frame, 1))
	require.NoError(t, err)
	assert.Equal(t, []byte{6}, values[4])
	assert.Equal(t, uint16(40000), binary.BigEndian.Uint16(values[7]))
	assert.Equal(t, uint16(443), binary.BigEndian.Uint16(values[9]))
}

func TestAssembleIPv6(t *testing.T) {
	frame := testutil.Frame(t, testutil.FrameSpec{IPv6: true, TTL: 33, SrcPort: 5000, DstPort: 6000, Payload: []byte("abcd")})
	desc := template.MustGet(template.TSTTLProtoIP)

	values, err := AssemblePacket(desc, packet(frame, 1))
	require.NoError(t, err)

	assert.Equal(t, []byte{33}, values[2])
	// IPv6 exports the payload length
	assert.Equal(t, uint16(8+4), binary.BigEndian.Uint16(values[3]))
	assert.Equal(t, []byte{17}, values[4])
	assert.Equal(t, []byte{6}, values[5])
	assert.Equal(t, []byte{0, 0, 0, 0}, values[6])
	assert.Equal(t, uint16(5000), binary.BigEndian.Uint16(values[7]))
	assert.Equal(t, []byte{0, 0, 0, 0}, values[8])
	assert.Equal(t, uint16(6000), binary.BigEndian.Uint16(values[9]))
}

func TestAssembleWithoutPorts(t *testing.T) {
	frame := testutil.Frame(t, testutil.FrameSpec{Proto: layers.IPProtocolICMPv4})
	values, err := AssemblePacket(template.MustGet(template.TSTTLProtoIP), packet(frame, 1))
	require.NoError(t, err)

	assert.Equal(t, []byte{1}, values[4])
	assert.Equal(t, []byte{0, 0}, values[7])
	assert.Equal(t, []byte{0, 0}, values[9])
}

func TestAssembleUnknownNetwork(t *testing.T) {
	frame := make([]byte, 10)
	values, err := AssemblePacket(template.MustGet(template.TSTTLProto), packet(frame, 9))
	require.NoError(t, err)

	assert.Equal(t, []byte{0}, values[2])
	assert.Equal(t, []byte{0, 0}, values[3])
	assert.Equal(t, []byte{0}, values[4])
	assert.Equal(t, []byte{0}, values[5])
}

func TestAssembleRejectsPeriodicTemplate(t *testing.T) {
	frame := testutil.UDPv4(t, nil)
	_, err := AssemblePacket(template.MustGet(template.Sync), packet(frame, 1))
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = AssemblePacket(template.MustGet(template.TS), Packet{Frame: frame})
	assert.Error(t, err)
}

func TestPeriodicBuilders(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	is := InterfaceStats(InterfaceStatsValues{
		Time: now, SamplingSize: 10, PacketDeltaCount: 100, PcapRecv: 120, PcapDrop: 3,
		Name: "eth0", Description: "10.0.0.1",
	})
	require.NoError(t, Validate(template.MustGet(template.InterfaceStats), is))
	assert.Equal(t, uint64(1700000000123), binary.BigEndian.Uint64(is[0]))
	assert.Equal(t, uint64(100), binary.BigEndian.Uint64(is[2]))
	assert.Equal(t, "eth0", string(is[5]))

	ps := ProbeStats(ProbeStatsValues{Time: now, CPUIdle: 87.5, MemTotal: 1 << 20, Threads: 9})
	require.NoError(t, Validate(template.MustGet(template.ProbeStats), ps))
	assert.Equal(t, float32(87.5), math.Float32frombits(binary.BigEndian.Uint32(ps[1])))
	assert.Equal(t, uint32(9), binary.BigEndian.Uint32(ps[8]))

	loc := Location(LocationValues{Time: now, Addr: net.ParseIP("10.1.2.3"), Latitude: "52.5", ProbeName: "p1"})
	require.NoError(t, Validate(template.MustGet(template.Location), loc))
	assert.Equal(t, []byte{10, 1, 2, 3}, loc[1])
	assert.Empty(t, loc[3])

	loc6 := Location(LocationValues{Time: now, Addr: net.ParseIP("2001:db8::1")})
	assert.Equal(t, []byte{0, 0, 0, 0}, loc6[1])

	s := Sync(now, 42, 0, "OK")
	require.NoError(t, Validate(template.MustGet(template.Sync), s))
	assert.Equal(t, uint32(42), binary.BigEndian.Uint32(s[1]))
	assert.Equal(t, "OK", string(s[3]))
}

func TestValidate(t *testing.T) {
	desc := template.MustGet(template.Sync)
	ok := Sync(captured, 1, 0, "x")
	require.NoError(t, Validate(desc, ok))

	err := Validate(desc, ok[:3])
	assert.True(t, errors.Is(err, core.ErrExportFailure))

	bad := Sync(captured, 1, 0, "x")
	bad[1] = []byte{1}
	assert.True(t, errors.Is(Validate(desc, bad), core.ErrExportFailure))

	huge := Sync(captured, 1, 0, string(make([]byte, math.MaxUint16+1)))
	assert.True(t, errors.Is(Validate(desc, huge), core.ErrExportFailure))
}
