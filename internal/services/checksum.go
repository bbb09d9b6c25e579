package services

import "encoding/binary"

// fletcher4 computes the running-sum checksum ZFS applies to most
// metadata blocks: four 64-bit accumulators over the little-endian
// 32-bit words of the block. Trailing bytes short of a word are
// ignored, matching the on-disk writers which always checksum whole
// words.
func fletcher4(data []byte) [4]uint64 {
	var a, b, c, d uint64
	for i := 0; i+4 <= len(data); i += 4 {
		w := uint64(binary.LittleEndian.Uint32(data[i : i+4]))
		a += w
		b += a
		c += b
		d += c
	}
	return [4]uint64{a, b, c, d}
}

func fletcher4Matches(data []byte, want [4]uint64) bool {
	return fletcher4(data) == want
}
