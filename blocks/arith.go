package blocks

import "math/bits"

func bitsAdd64(a, b, carryIn uint64) (sum, carryOut uint64) {
	return bits.Add64(a, b, carryIn)
}

func bitsSub64(a, b, borrowIn uint64) (diff, borrowOut uint64) {
	return bits.Sub64(a, b, borrowIn)
}
