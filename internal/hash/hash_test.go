package hash

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hsprobe/internal/core"
)

func TestParse(t *testing.T) {
	for _, name := range Names() {
		f, err := Parse(name)
		require.NoError(t, err, name)
		assert.NotNil(t, f)
	}

	f, err := Parse("hsieh")
	require.NoError(t, err)
	assert.Equal(t, HSIEH([]byte("abc")), f([]byte("abc")))

	_, err = Parse("md5")
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestOAATKnownValues(t *testing.T) {
	assert.Equal(t, uint32(0xca2e9442), OAAT([]byte("a")))
	assert.Equal(t, uint32(0x519e91f5), OAAT([]byte("The quick brown fox jumps over the lazy dog")))
}

func TestWordHashesKnownValues(t *testing.T) {
	fox := []byte("The quick brown fox jumps over the lazy dog")
	seq := make([]byte, 24)
	for i := range seq {
		seq[i] = byte(i + 1)
	}

	assert.Equal(t, uint32(0x29eec818), BOB([]byte("a")))
	assert.Equal(t, uint32(0xfc1558de), BOB(fox))
	assert.Equal(t, uint32(0xe4762887), BOB(seq))

	assert.Equal(t, uint32(0x115ea782), HSIEH([]byte("a")))
	assert.Equal(t, uint32(0x05bf7ce3), HSIEH(fox))
	assert.Equal(t, uint32(0xd7cfef2d), HSIEH(seq))
}

func TestEmptyInput(t *testing.T) {
	assert.Equal(t, uint32(0), HSIEH(nil))
	assert.Equal(t, uint32(0), OAAT(nil))
	for _, name := range Names() {
		f, _ := Parse(name)
		assert.NotPanics(t, func() { f(nil) }, name)
	}
}

func TestDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	buf := make([]byte, 64)
	for _, name := range Names() {
		f, _ := Parse(name)
		for i := 0; i < 100; i++ {
			n := rng.Intn(len(buf))
			rng.Read(buf[:n])
			in := append([]byte(nil), buf[:n]...)
			assert.Equal(t, f(in), f(buf[:n]), name)
		}
	}
}

// Every length exercises a different tail branch.
func TestAllTailLengths(t *testing.T) {
	data := []byte("0123456789abcdefghijklmnopqrstuvwxyz")
	for _, name := range Names() {
		f, _ := Parse(name)
		seen := make(map[uint32]int)
		for n := 1; n <= len(data); n++ {
			seen[f(data[:n])]++
		}
		assert.Len(t, seen, len(data), name)
	}
}

func TestHighBitTailBytes(t *testing.T) {
	for n := 1; n <= 3; n++ {
		lo := make([]byte, n)
		hi := make([]byte, n)
		hi[n-1] = 0x80
		assert.NotEqual(t, HSIEH(lo), HSIEH(hi))
	}
}

func TestSingleByteChange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, name := range Names() {
		f, _ := Parse(name)
		collisions := 0
		for i := 0; i < 2000; i++ {
			a := make([]byte, 28)
			rng.Read(a)
			b := append([]byte(nil), a...)
			pos := rng.Intn(len(b))
			b[pos] ^= byte(rng.Intn(255) + 1)
			if f(a) == f(b) {
				collisions++
			}
		}
		assert.LessOrEqual(t, collisions, 1, name)
	}
}

func TestDistribution(t *testing.T) {
	const (
		samples = 16000
		buckets = 16
	)
	rng := rand.New(rand.NewSource(42))
	for _, name := range Names() {
		f, _ := Parse(name)
		var counts [buckets]int
		buf := make([]byte, 20)
		for i := 0; i < samples; i++ {
			rng.Read(buf)
			counts[f(buf)>>28]++
		}
		for b, c := range counts {
			assert.InDelta(t, samples/buckets, c, 250, "%s bucket %d", name, b)
		}
	}
}

func TestAvalanche(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, name := range Names() {
		f, _ := Parse(name)
		flipped := 0
		trials := 0
		for i := 0; i < 500; i++ {
			a := make([]byte, 16)
			rng.Read(a)
			b := append([]byte(nil), a...)
			bit := rng.Intn(len(b) * 8)
			b[bit/8] ^= 1 << (bit % 8)
			flipped += popcount(f(a) ^ f(b))
			trials++
		}
		mean := float64(flipped) / float64(trials)
		assert.InDelta(t, 16, mean, 4, name)
	}
}

func popcount(v uint32) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}
