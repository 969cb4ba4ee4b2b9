// Package arith provides the 256-bit arithmetic the consensus layer needs:
// the compact target (nBits) encoding and the work represented by a target.
package arith

import (
	"github.com/holiman/uint256"
)

// SetCompact decodes the compact representation of a 256-bit target used in
// the block header bits field. The compact format packs the target as a
// one byte exponent and a three byte signed mantissa. The negative and
// overflow flags report encodings that can never satisfy proof of work.
func SetCompact(bits uint32) (target *uint256.Int, negative bool, overflow bool) {
	size := bits >> 24
	word := bits & 0x007fffff

	target = new(uint256.Int)

	if size <= 3 {
		word >>= 8 * (3 - size)
		target.SetUint64(uint64(word))
	} else {
		target.SetUint64(uint64(word))
		target.Lsh(target, 8*uint(size-3))
	}

	negative = word != 0 && (bits&0x00800000) != 0
	overflow = word != 0 && ((size > 34) ||
		(word > 0xff && size > 33) ||
		(word > 0xffff && size > 32))

	return target, negative, overflow
}

// GetCompact encodes a 256-bit target into its compact representation.
func GetCompact(target *uint256.Int) uint32 {
	size := uint32((target.BitLen() + 7) / 8)

	var compact uint32
	if size <= 3 {
		compact = uint32(target.Uint64() << (8 * (3 - size)))
	} else {
		t := new(uint256.Int).Rsh(target, 8*uint(size-3))
		compact = uint32(t.Uint64())
	}

	// The 0x00800000 bit denotes the sign, so if it is already set, divide
	// the mantissa by 256 and increase the exponent.
	if compact&0x00800000 != 0 {
		compact >>= 8
		size++
	}

	return compact | (size << 24)
}

// WorkForBits returns the work equivalent for the supplied bits of
// difficulty. Invalid encodings carry zero work.
func WorkForBits(bits uint32) *uint256.Int {
	target, negative, overflow := SetCompact(bits)
	if negative || overflow || target.IsZero() {
		return new(uint256.Int)
	}

	// We need to compute 2**256 / (target+1), but we can't represent 2**256
	// as it's too large for a uint256. However, as 2**256 is at least as
	// large as target+1, it is equal to ((2**256 - target - 1) / (target+1))
	// + 1, or ~target / (target+1) + 1.
	one := uint256.NewInt(1)
	denom := new(uint256.Int).Add(target, one)
	work := new(uint256.Int).Not(target)
	work.Div(work, denom)
	return work.Add(work, one)
}

// HashToUint256 interprets a 32 byte hash as a little-endian 256-bit integer,
// which is the ordering the proof of work comparison is defined over.
func HashToUint256(hash [32]byte) *uint256.Int {
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = hash[31-i]
	}
	return new(uint256.Int).SetBytes(be[:])
}
