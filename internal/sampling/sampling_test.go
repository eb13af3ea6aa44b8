package sampling

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hsprobe/internal/core"
)

func TestDefaultWindow(t *testing.T) {
	r := Default()
	assert.True(t, r.Admit(0x19999999))
	assert.True(t, r.Admit(0x33333333))
	assert.True(t, r.Admit(0x20000000))
	assert.False(t, r.Admit(0x19999998))
	assert.False(t, r.Admit(0x33333334))
	assert.False(t, r.Admit(0x40000000))
	assert.InDelta(t, 10, r.Ratio(), 0.01)
}

func TestFromRatio(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		want Range
	}{
		{"zero", 0, Range{Min: 1, Max: 0}},
		{"ten", 10, Range{Min: 0x19999999, Max: 0x19999999 + 0x19999999}},
		{"fifty", 50, Range{Min: 0x19999999, Max: 0x7fffffff + 0x19999999}},
		{"ninety", 90, Range{Min: 0x19999999, Max: 0xfffffffe}},
		{"ninety-five", 95, Range{Min: 0x0ccccccd, Max: math.MaxUint32}},
		{"hundred", 100, Range{Min: 0, Max: math.MaxUint32}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromRatio(tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromRatioCoverage(t *testing.T) {
	for _, p := range []float64{0.5, 1, 10, 33.3, 75, 99.9} {
		r, err := FromRatio(p)
		require.NoError(t, err)
		assert.InDelta(t, p, r.Ratio(), 0.001, "p=%g", p)
	}
}

func TestFromRatioRejectsOutOfRange(t *testing.T) {
	for _, p := range []float64{-0.1, 100.01, math.NaN()} {
		_, err := FromRatio(p)
		assert.True(t, errors.Is(err, core.ErrConfigInvalid), "p=%g", p)
	}
}

func TestEmptyWindowAdmitsNothing(t *testing.T) {
	r, _ := FromRatio(0)
	assert.True(t, r.Empty())
	for _, h := range []uint32{0, 1, 0x19999999, math.MaxUint32} {
		assert.False(t, r.Admit(h))
	}
	assert.Equal(t, 0.0, r.Ratio())
}

func TestFullWindowAdmitsEverything(t *testing.T) {
	r, _ := FromRatio(100)
	for _, h := range []uint32{0, 1, 0x80000000, math.MaxUint32} {
		assert.True(t, r.Admit(h))
	}
}

func TestParseBound(t *testing.T) {
	v, err := ParseBound("0x19999999")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x19999999), v)

	v, err = ParseBound(" 4294967295 ")
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), v)

	for _, s := range []string{"", "abc", "0x100000000", "-1"} {
		_, err := ParseBound(s)
		assert.True(t, errors.Is(err, core.ErrConfigInvalid), s)
	}
}
