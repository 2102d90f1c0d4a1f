package bitset

import "math/bits"

// WordBits is the number of tick slots covered by a single Word.
const WordBits = 256

// Word is a fixed 256-bit bitmask. Bit 0 is the least significant bit
// of the first limb.
type Word [4]uint64

func (w *Word) IsSet(index uint) bool {
	limb := index / 64
	mask := uint64(1) << (index % 64)

	return (w[limb] & mask) != 0
}

func (w *Word) Set(index uint) {
	limb := index / 64
	mask := uint64(1) << (index % 64)

	w[limb] |= mask
}

func (w *Word) Unset(index uint) {
	limb := index / 64
	mask := uint64(1) << (index % 64)

	w[limb] = w[limb] &^ mask
}

func (w *Word) Flip(index uint) {
	limb := index / 64
	mask := uint64(1) << (index % 64)

	w[limb] ^= mask
}

func (w *Word) IsZero() bool {
	return w[0]|w[1]|w[2]|w[3] == 0
}

func (w *Word) Clear() {
	w[0], w[1], w[2], w[3] = 0, 0, 0, 0
}

// HighestSetAtOrBelow returns the index of the highest set bit at or
// below index, and whether one exists.
func (w *Word) HighestSetAtOrBelow(index uint) (uint, bool) {
	limb := int(index / 64)
	bit := index % 64

	// Mask off everything above the starting bit in its limb.
	v := w[limb]
	if bit < 63 {
		v &= (uint64(1) << (bit + 1)) - 1
	}
	for {
		if v != 0 {
			return uint(limb*64 + 63 - bits.LeadingZeros64(v)), true
		}
		limb--
		if limb < 0 {
			return 0, false
		}
		v = w[limb]
	}
}

// LowestSetAtOrAbove returns the index of the lowest set bit at or
// above index, and whether one exists.
func (w *Word) LowestSetAtOrAbove(index uint) (uint, bool) {
	limb := int(index / 64)
	bit := index % 64

	// Mask off everything below the starting bit in its limb.
	v := w[limb] &^ ((uint64(1) << bit) - 1)
	for {
		if v != 0 {
			return uint(limb*64 + bits.TrailingZeros64(v)), true
		}
		limb++
		if limb > 3 {
			return 0, false
		}
		v = w[limb]
	}
}
