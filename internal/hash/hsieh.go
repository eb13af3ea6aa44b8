package hash

import "encoding/binary"

// HSIEH is Paul Hsieh's SuperFastHash. It is the default packet id hash when the
// selection hash is not exported as the id.
func HSIEH(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}

	h := uint32(len(data))
	rem := len(data) & 3

	for n := len(data) >> 2; n > 0; n-- {
		h += uint32(binary.LittleEndian.Uint16(data))
		tmp := (uint32(binary.LittleEndian.Uint16(data[2:])) << 11) ^ h
		h = (h << 16) ^ tmp
		data = data[4:]
		h += h >> 11
	}

	// Trailing bytes are sign extended.
	switch rem {
	case 3:
		h += uint32(binary.LittleEndian.Uint16(data))
		h ^= h << 16
		h ^= uint32(int32(int8(data[2]))) << 18
		h += h >> 11
	case 2:
		h += uint32(binary.LittleEndian.Uint16(data))
		h ^= h << 11
		h += h >> 17
	case 1:
		h += uint32(int32(int8(data[0])))
		h ^= h << 10
		h += h >> 1
	}

	// Avalanche the final 127 bits
	h ^= h << 3
	h += h >> 5
	h ^= h << 4
	h += h >> 17
	h ^= h << 25
	h += h >> 6
	return h
}
