// Package hash provides the non-cryptographic hash functions used for packet selection
// and packet ids. All functions are pure functions of their input.
package hash

import (
	"fmt"
	"strings"

	"firestige.xyz/hsprobe/internal/core"
)

// Func maps selected packet bytes to a 32-bit fingerprint.
type Func func(data []byte) uint32

var byName = map[string]Func{
	"BOB":   BOB,
	"OAAT":  OAAT,
	"TWMX":  TWMX,
	"HSIEH": HSIEH,
}

// Parse resolves a hash function by name, case-insensitively.
func Parse(name string) (Func, error) {
	if f, ok := byName[strings.ToUpper(name)]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown hash function %q: %w", name, core.ErrConfigInvalid)
}

// Names lists the accepted hash function names.
func Names() []string {
	return []string{"BOB", "OAAT", "TWMX", "HSIEH"}
}
