package hash

// TWMX runs Robert Sedgewick's rolling hash and finishes it with Thomas Wang's
// 32-bit integer mix.
func TWMX(data []byte) uint32 {
	const b = 378551
	a := uint32(63689)
	var h uint32
	for _, c := range data {
		h = h*a + uint32(c)
		a *= b
	}
	return wangMix(h)
}

func wangMix(key uint32) uint32 {
	key = ^key + (key << 15)
	key ^= key >> 12
	key += key << 2
	key ^= key >> 4
	key *= 2057
	key ^= key >> 16
	return key
}
