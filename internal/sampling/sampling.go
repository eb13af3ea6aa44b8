// Package sampling decides whether a packet is admitted from its selection hash.
package sampling

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"firestige.xyz/hsprobe/internal/core"
)

// Baseline is the lower bound of the default window and the offset used when a
// window is derived from a ratio.
const Baseline uint32 = 0x19999999

// Range is an inclusive hash window. A range with Min > Max admits nothing.
type Range struct {
	Min uint32
	Max uint32
}

// Default returns the 10% window [0x19999999, 0x33333333].
func Default() Range {
	return Range{Min: Baseline, Max: 0x33333333}
}

// Admit reports whether h falls inside the window.
func (r Range) Admit(h uint32) bool {
	return r.Min <= h && h <= r.Max
}

// Empty reports whether the window can never admit a hash.
func (r Range) Empty() bool {
	return r.Min > r.Max
}

// Ratio returns the share of the hash space the window covers, in percent.
func (r Range) Ratio() float64 {
	if r.Empty() {
		return 0
	}
	return float64(uint64(r.Max)-uint64(r.Min)+1) / (float64(math.MaxUint32) + 1) * 100
}

func (r Range) String() string {
	return fmt.Sprintf("[%#08x, %#08x]", r.Min, r.Max)
}

// FromRatio converts a selection ratio in percent into a window.
func FromRatio(p float64) (Range, error) {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return Range{}, fmt.Errorf("selection ratio %g outside 0..100: %w", p, core.ErrConfigInvalid)
	}
	if p == 0 {
		return Range{Min: 1, Max: 0}, nil
	}

	f := math.Floor(float64(math.MaxUint32) / 100 * p)
	max := uint32(math.MaxUint32)
	if f < math.MaxUint32 {
		max = uint32(f)
	}
	if math.MaxUint32-max > Baseline {
		return Range{Min: Baseline, Max: max + Baseline}, nil
	}
	return Range{Min: math.MaxUint32 - max, Max: math.MaxUint32}, nil
}

// ParseBound parses a window bound given in hex (0x...) or decimal.
func ParseBound(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid range bound %q: %w", s, core.ErrConfigInvalid)
	}
	return uint32(v), nil
}
