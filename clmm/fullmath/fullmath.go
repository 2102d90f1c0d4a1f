// Package fullmath provides the wide-integer primitives shared by the
// pricing and accounting packages: multiply-divide with explicit
// rounding, width-checked addition, and modular arithmetic for the
// growth accumulators.
package fullmath

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

var (
	// Q64 is the Q64.64 fixed-point representation of 1.
	Q64 = new(big.Int).Lsh(big.NewInt(1), 64)
	// MaxU64 is 2^64 - 1.
	MaxU64 = new(big.Int).SetUint64(math.MaxUint64)
	// MaxU128 is 2^128 - 1.
	MaxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	ErrDivideByZero       = errors.New("divide by zero")
	ErrLiquidityOverflow  = errors.New("liquidity overflow")
	ErrLiquidityUnderflow = errors.New("liquidity underflow")

	one    = big.NewInt(1)
	mod128 = new(big.Int).Lsh(big.NewInt(1), 128)
)

// fullMath holds reusable big.Int objects to avoid memory allocations.
type fullMath struct {
	product *big.Int
	rem     *big.Int
}

var pool = sync.Pool{
	New: func() any {
		return &fullMath{
			product: new(big.Int),
			rem:     new(big.Int),
		}
	},
}

// MulDiv writes floor(a * b / denominator) into dest.
func MulDiv(dest, a, b, denominator *big.Int) error {
	if denominator.Sign() == 0 {
		return ErrDivideByZero
	}

	m := pool.Get().(*fullMath)
	defer pool.Put(m)

	m.product.Mul(a, b)
	dest.Div(m.product, denominator)
	return nil
}

// MulDivRoundingUp writes ceil(a * b / denominator) into dest.
func MulDivRoundingUp(dest, a, b, denominator *big.Int) error {
	if denominator.Sign() == 0 {
		return ErrDivideByZero
	}

	m := pool.Get().(*fullMath)
	defer pool.Put(m)

	m.product.Mul(a, b)
	// Remainder first: dest may alias denominator.
	inexact := m.rem.Rem(m.product, denominator).Sign() > 0
	dest.Div(m.product, denominator)
	if inexact {
		dest.Add(dest, one)
	}
	return nil
}

// DivRoundingUp writes ceil(a / b) into dest.
func DivRoundingUp(dest, a, b *big.Int) error {
	if b.Sign() == 0 {
		return ErrDivideByZero
	}

	m := pool.Get().(*fullMath)
	defer pool.Put(m)

	// Remainder first: dest may alias a.
	inexact := m.rem.Rem(a, b).Sign() > 0
	dest.Div(a, b)
	if inexact {
		dest.Add(dest, one)
	}
	return nil
}

// CheckedAddU64 adds two uint64 values, reporting whether the sum fits.
func CheckedAddU64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// CheckedSubU64 subtracts b from a, reporting whether the difference is
// non-negative.
func CheckedSubU64(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// AddLiquidityDelta adds a signed delta to an unsigned 128-bit liquidity
// value, failing when the result leaves the uint128 range.
func AddLiquidityDelta(dest, liquidity, delta *big.Int) error {
	dest.Add(liquidity, delta)

	if dest.Sign() < 0 {
		return ErrLiquidityUnderflow
	}
	if dest.Cmp(MaxU128) > 0 {
		return ErrLiquidityOverflow
	}
	return nil
}

// WrappingAddU128 writes (a + b) mod 2^128 into dest. The fee and
// reward growth accumulators rely on modular semantics: differences of
// two accumulator readings stay correct across wraparound.
func WrappingAddU128(dest, a, b *big.Int) {
	dest.Add(a, b)
	if dest.Cmp(mod128) >= 0 {
		dest.Mod(dest, mod128)
	}
}

// WrappingSubU128 writes (a - b) mod 2^128 into dest.
func WrappingSubU128(dest, a, b *big.Int) {
	dest.Sub(a, b)
	if dest.Sign() < 0 {
		dest.Mod(dest, mod128)
	}
}
