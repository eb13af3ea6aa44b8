package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hsprobe/internal/core"
)

func TestGet(t *testing.T) {
	for id := 1; id <= 8; id++ {
		d, err := Get(id)
		require.NoError(t, err)
		assert.Equal(t, id, d.ID)
		assert.Equal(t, uint16(255+id), d.WireID())
		assert.NotEmpty(t, d.Fields)
	}

	for _, id := range []int{-1, 0, 9} {
		_, err := Get(id)
		assert.True(t, errors.Is(err, ErrTemplateNotFound))
		assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	}
}

func TestPacketTemplatesExtendEachOther(t *testing.T) {
	ts := MustGet(TS)
	assert.Equal(t, []Field{ObservationTimeMicroseconds, DigestHashValue}, ts.Fields)
	assert.Equal(t, 12, ts.FixedLength())

	prev := ts
	for _, id := range []int{Min, TSTTLProto, TSTTLProtoIP} {
		d := MustGet(id)
		assert.Equal(t, prev.Fields, d.Fields[:len(prev.Fields)], d.Name())
		assert.True(t, d.PerPacket)
		prev = d
	}
	assert.Equal(t, 13, MustGet(Min).FixedLength())
	assert.Equal(t, 17, MustGet(TSTTLProto).FixedLength())
	assert.Equal(t, 29, MustGet(TSTTLProtoIP).FixedLength())
}

func TestPeriodicTemplates(t *testing.T) {
	is := MustGet(InterfaceStats)
	assert.False(t, is.PerPacket)
	assert.Len(t, is.Fields, 7)
	assert.Equal(t, -1, is.FixedLength())
	assert.True(t, is.Fields[5].Variable())
	assert.True(t, is.Fields[5].Enterprise())

	ps := MustGet(ProbeStats)
	assert.Len(t, ps.Fields, 9)
	assert.Equal(t, 8+4+8+4+4+8+8+8+4, ps.FixedLength())

	assert.Len(t, MustGet(Location).Fields, 6)
	assert.Equal(t, []Field{ObservationTimeMilliseconds, MessageID, MessageValue, Message}, MustGet(Sync).Fields)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		id   int
	}{
		{"ts", TS},
		{"min", Min},
		{"lp", TSTTLProto},
		{"ts_ttl_proto", TSTTLProto},
		{"LS", TSTTLProtoIP},
		{"ts_ttl_proto_ip", TSTTLProtoIP},
		{"sync", Sync},
	}
	for _, tt := range tests {
		d, err := Parse(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.id, d.ID, tt.name)
	}

	_, err := Parse("full")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestParsePacket(t *testing.T) {
	d, err := ParsePacket("lp")
	require.NoError(t, err)
	assert.Equal(t, TSTTLProto, d.ID)

	_, err = ParsePacket("interface_stats")
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
	_, err = ParsePacket("nope")
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestByWireID(t *testing.T) {
	d, ok := ByWireID(258)
	require.True(t, ok)
	assert.Equal(t, TSTTLProto, d.ID)

	_, ok = ByWireID(2)
	assert.False(t, ok)
	_, ok = ByWireID(300)
	assert.False(t, ok)
}

func TestElementsUnique(t *testing.T) {
	type key struct {
		en  uint32
		typ uint16
	}
	seen := make(map[key]string)
	for _, f := range elements {
		k := key{f.EnterpriseID, f.Type}
		if prev, ok := seen[k]; ok {
			t.Fatalf("%s and %s share %v", prev, f.Name, k)
		}
		seen[k] = f.Name
		got, ok := LookupElement(f.EnterpriseID, f.Type)
		require.True(t, ok)
		assert.Equal(t, f, got)
	}
	_, ok := LookupElement(0, 9999)
	assert.False(t, ok)
}

func TestAllIsCopy(t *testing.T) {
	all := All()
	require.Len(t, all, 8)
	all[0] = nil
	assert.NotNil(t, All()[0])
}
