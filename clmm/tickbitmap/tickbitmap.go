// Package tickbitmap maintains the compressed index of initialized
// ticks. Each word covers 256 consecutive tick slots at the pool's
// spacing, so the swap loop can find the next boundary in one word
// lookup instead of walking the sparse registry.
package tickbitmap

import (
	"errors"

	"github.com/defistate/clmm-engine-go/bitset"
)

var ErrTickMisaligned = errors.New("tick not aligned to tick spacing")

// Bitmap maps a word index to its 256-bit word. Absent words are all
// zeroes.
type Bitmap map[int32]*bitset.Word

func New() Bitmap {
	return make(Bitmap)
}

// position splits a compressed tick into its word index and bit offset.
// The shift is arithmetic, so negative compressed ticks land in
// negative words with the offset still in [0, 255].
func position(compressed int32) (int32, uint) {
	return compressed >> 8, uint(compressed & 255)
}

// compress divides a tick by the spacing, rounding toward negative
// infinity so the word grid is uniform across zero.
func compress(tick, tickSpacing int32) int32 {
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed--
	}
	return compressed
}

// Flip toggles the initialized bit for tick. The tick must be aligned
// to the pool's spacing.
func (b Bitmap) Flip(tick, tickSpacing int32) error {
	if tick%tickSpacing != 0 {
		return ErrTickMisaligned
	}

	wordPos, bitPos := position(tick / tickSpacing)
	word, ok := b[wordPos]
	if !ok {
		word = new(bitset.Word)
		b[wordPos] = word
	}
	word.Flip(bitPos)
	if word.IsZero() {
		delete(b, wordPos)
	}
	return nil
}

// NextInitializedTickWithinOneWord returns the next initialized tick in
// the given direction, searching no further than the current 256-tick
// word. When lte is set the search runs leftward and includes tick
// itself; otherwise it runs rightward starting just above tick. A miss
// returns the word's boundary tick with initialized set to false, so
// the caller can continue from the adjacent word on the next step.
func (b Bitmap) NextInitializedTickWithinOneWord(tick, tickSpacing int32, lte bool) (int32, bool) {
	compressed := compress(tick, tickSpacing)

	if lte {
		wordPos, bitPos := position(compressed)
		if word, ok := b[wordPos]; ok {
			if bit, found := word.HighestSetAtOrBelow(bitPos); found {
				return (wordPos<<8 + int32(bit)) * tickSpacing, true
			}
		}
		return (wordPos << 8) * tickSpacing, false
	}

	wordPos, bitPos := position(compressed + 1)
	if word, ok := b[wordPos]; ok {
		if bit, found := word.LowestSetAtOrAbove(bitPos); found {
			return (wordPos<<8 + int32(bit)) * tickSpacing, true
		}
	}
	return (wordPos<<8 + 255) * tickSpacing, false
}
