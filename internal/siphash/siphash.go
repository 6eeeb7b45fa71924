// Package siphash implements SipHash-2-4, used for page identity (§3) and
// the analyzer's `hash` transformer (§4.E). The algorithm is small, exactly
// specified, and has no natural home in any third-party package carried by
// the rest of the stack, so it is implemented directly from the published
// reference algorithm (Aumasson & Bernstein, "SipHash: a fast short-input
// PRF") rather than adapted from example code.
package siphash

import "encoding/binary"

// Key is a 128-bit SipHash key, split into two 64-bit halves.
type Key struct {
	K0, K1 uint64
}

// DefaultKey is the crawler-wide fixed SipHash key (§3): every page_id and
// every `hash` transformer result is derived under this one key, so
// identity is reproducible across runs and across backend implementations
// without being content-addressed.
var DefaultKey = Key{K0: 0x6c6f70657a637277, K1: 0x6372617765723234}

// Sum64 computes the SipHash-2-4 digest of data under key k.
func Sum64(k Key, data []byte) uint64 {
	v0 := uint64(0x736f6d6570736575) ^ k.K0
	v1 := uint64(0x646f72616e646f6d) ^ k.K1
	v2 := uint64(0x6c7967656e657261) ^ k.K0
	v3 := uint64(0x7465646279746573) ^ k.K1

	length := len(data)
	end := length - (length % 8)

	for i := 0; i < end; i += 8 {
		m := binary.LittleEndian.Uint64(data[i : i+8])
		v3 ^= m
		v0, v1, v2, v3 = round(v0, v1, v2, v3)
		v0, v1, v2, v3 = round(v0, v1, v2, v3)
		v0 ^= m
	}

	var last [8]byte
	copy(last[:], data[end:])
	last[7] = byte(length)
	m := binary.LittleEndian.Uint64(last[:])

	v3 ^= m
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0 ^= m

	v2 ^= 0xff
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0, v1, v2, v3 = round(v0, v1, v2, v3)

	return v0 ^ v1 ^ v2 ^ v3
}

func round(v0, v1, v2, v3 uint64) (uint64, uint64, uint64, uint64) {
	v0 += v1
	v1 = rotl(v1, 13)
	v1 ^= v0
	v0 = rotl(v0, 32)

	v2 += v3
	v3 = rotl(v3, 16)
	v3 ^= v2

	v0 += v3
	v3 = rotl(v3, 21)
	v3 ^= v0

	v2 += v1
	v1 = rotl(v1, 17)
	v1 ^= v2
	v2 = rotl(v2, 32)

	return v0, v1, v2, v3
}

func rotl(x uint64, b uint) uint64 {
	return (x << b) | (x >> (64 - b))
}

// HexSum64 returns Sum64 as a zero-padded lowercase hex string, used by the
// analyzer's `hash` transformer for a canonical string output.
func HexSum64(k Key, data []byte) string {
	sum := Sum64(k, data)
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[sum&0xf]
		sum >>= 4
	}
	return string(buf)
}
