package murmur3

import "math/bits"

// Cassandra-variant Murmur3 x64 128-bit constants. Ported bit-for-bit from
// the reference Cassandra/Scylla driver implementation; do not "clean up"
// the magic numbers, they are defined by the wire-compatible hash.
const (
	c1 uint64 = 0x87c37b91114253d5
	c2 uint64 = 0x4cf5ad432745937f
	c3 uint64 = 0x52dce729
	c4 uint64 = 0x38495ab5
	r1 uint   = 27
	r2 uint   = 31
	r3 uint   = 33
	m  uint64 = 5
)

// Sum128 computes the Cassandra-variant Murmur3 x64 128-bit hash of source
// with the given seed, returning the (h1, h2) pair as signed 64-bit halves.
func Sum128(source []byte, seed uint32) (h1, h2 int64) {
	var uh1, uh2 uint64 = uint64(seed), uint64(seed)

	n := len(source) / 16
	for i := 0; i < n; i++ {
		chunk := source[i*16 : i*16+16]
		k1 := leUint64(chunk[0:8])
		k2 := leUint64(chunk[8:16])

		k1 *= c1
		k1 = bits.RotateLeft64(k1, int(r2))
		k1 *= c2
		uh1 ^= k1

		uh1 = bits.RotateLeft64(uh1, int(r1))
		uh1 += uh2
		uh1 = uh1*m + c3

		k2 *= c2
		k2 = bits.RotateLeft64(k2, int(r3))
		k2 *= c1
		uh2 ^= k2

		uh2 = bits.RotateLeft64(uh2, int(r2))
		uh2 += uh1
		uh2 = uh2*m + c4
	}

	// Tail bytes are widened to uint64 without sign extension, matching the
	// reference implementation's `rem[i] as i64` widening of a u8.
	tail := source[n*16:]
	var k1, k2 uint64
	switch len(tail) {
	case 15:
		k2 ^= uint64(tail[14]) << 48
		fallthrough
	case 14:
		k2 ^= uint64(tail[13]) << 40
		fallthrough
	case 13:
		k2 ^= uint64(tail[12]) << 32
		fallthrough
	case 12:
		k2 ^= uint64(tail[11]) << 24
		fallthrough
	case 11:
		k2 ^= uint64(tail[10]) << 16
		fallthrough
	case 10:
		k2 ^= uint64(tail[9]) << 8
		fallthrough
	case 9:
		k2 ^= uint64(tail[8])
		k2 *= c2
		k2 = bits.RotateLeft64(k2, int(r3))
		k2 *= c1
		uh2 ^= k2
		fallthrough
	case 8:
		k1 ^= uint64(tail[7]) << 56
		fallthrough
	case 7:
		k1 ^= uint64(tail[6]) << 48
		fallthrough
	case 6:
		k1 ^= uint64(tail[5]) << 40
		fallthrough
	case 5:
		k1 ^= uint64(tail[4]) << 32
		fallthrough
	case 4:
		k1 ^= uint64(tail[3]) << 24
		fallthrough
	case 3:
		k1 ^= uint64(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint64(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint64(tail[0])
		k1 *= c1
		k1 = bits.RotateLeft64(k1, int(r2))
		k1 *= c2
		uh1 ^= k1
	}

	uh1 ^= uint64(len(source))
	uh2 ^= uint64(len(source))

	uh1 += uh2
	uh2 += uh1

	uh1 = fmix64(uh1)
	uh2 = fmix64(uh2)

	uh1 += uh2
	uh2 += uh1

	return int64(uh1), int64(uh2)
}

func fmix64(k uint64) uint64 {
	const fc1 = 0xff51afd7ed558ccd
	const fc2 = 0xc4ceb9fe1a85ec53
	k ^= k >> 33
	k *= fc1
	k ^= k >> 33
	k *= fc2
	k ^= k >> 33
	return k
}

func leUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// Token returns the 64-bit partition token for source: the low half (h1) of
// the Cassandra-variant Murmur3 128-bit hash with seed 0. i64 math.MinInt64
// is reserved as the ring origin and is never returned for a non-empty
// source except in the astronomically unlikely hash collision case, which
// callers are not required to special-case.
func Token(source []byte) int64 {
	h1, _ := Sum128(source, 0)
	return h1
}
