// Package sqrtpricemath relates Q64.64 square-root prices, liquidity,
// and token amounts. Every rounding direction here is part of the
// economic contract: amounts owed to the pool round up, amounts paid
// out round down.
package sqrtpricemath

import (
	"errors"
	"math/big"
	"sync"
)

var (
	ErrLiquidityZero         = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero         = errors.New("sqrt price must be greater than zero")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for requested amount")

	one = big.NewInt(1)
)

// sqrtPriceMath holds reusable big.Int objects to avoid memory allocations.
type sqrtPriceMath struct {
	diff        *big.Int
	numerator   *big.Int
	denominator *big.Int
	product     *big.Int
	shifted     *big.Int
	rem         *big.Int
}

var pool = sync.Pool{
	New: func() any {
		return &sqrtPriceMath{
			diff:        new(big.Int),
			numerator:   new(big.Int),
			denominator: new(big.Int),
			product:     new(big.Int),
			shifted:     new(big.Int),
			rem:         new(big.Int),
		}
	},
}

// divRoundingUp writes ceil(a / b) into dest.
func (s *sqrtPriceMath) divRoundingUp(dest, a, b *big.Int) {
	// Remainder first: dest may alias a.
	inexact := s.rem.Rem(a, b).Sign() > 0
	dest.Div(a, b)
	if inexact {
		dest.Add(dest, one)
	}
}

// AmountXDelta writes the amount of token X spanning the price range
// [lower, upper] at the given liquidity:
//
//	liquidity * (upper - lower) * 2^64 / (upper * lower)
//
// computed with a single division so the rounding error never compounds.
func AmountXDelta(dest, sqrtPriceA, sqrtPriceB, liquidity *big.Int, roundUp bool) error {
	if sqrtPriceA.Sign() <= 0 || sqrtPriceB.Sign() <= 0 {
		return ErrSqrtPriceZero
	}

	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)

	lower, upper := sqrtPriceA, sqrtPriceB
	if lower.Cmp(upper) > 0 {
		lower, upper = upper, lower
	}

	s.diff.Sub(upper, lower)
	s.numerator.Mul(liquidity, s.diff).Lsh(s.numerator, 64)
	s.denominator.Mul(upper, lower)

	if roundUp {
		s.divRoundingUp(dest, s.numerator, s.denominator)
	} else {
		dest.Div(s.numerator, s.denominator)
	}
	return nil
}

// AmountYDelta writes the amount of token Y spanning the price range
// [lower, upper] at the given liquidity: liquidity * (upper - lower) / 2^64.
func AmountYDelta(dest, sqrtPriceA, sqrtPriceB, liquidity *big.Int, roundUp bool) error {
	if sqrtPriceA.Sign() <= 0 || sqrtPriceB.Sign() <= 0 {
		return ErrSqrtPriceZero
	}

	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)

	lower, upper := sqrtPriceA, sqrtPriceB
	if lower.Cmp(upper) > 0 {
		lower, upper = upper, lower
	}

	s.diff.Sub(upper, lower)
	s.numerator.Mul(liquidity, s.diff)

	dest.Rsh(s.numerator, 64)
	if roundUp && s.rem.And(s.numerator, maskU64).Sign() > 0 {
		dest.Add(dest, one)
	}
	return nil
}

var maskU64 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))

// nextSqrtPriceFromX writes the price after adding (or removing) amount
// of token X at the given liquidity. Rounds up, which keeps the price
// movement conservative for the pool in both directions.
func (s *sqrtPriceMath) nextSqrtPriceFromX(dest, sqrtPrice, liquidity, amount *big.Int, add bool) error {
	if amount.Sign() == 0 {
		dest.Set(sqrtPrice)
		return nil
	}

	s.shifted.Lsh(liquidity, 64)
	s.product.Mul(amount, sqrtPrice)
	if add {
		s.denominator.Add(s.shifted, s.product)
	} else {
		if s.shifted.Cmp(s.product) <= 0 {
			return ErrInsufficientLiquidity
		}
		s.denominator.Sub(s.shifted, s.product)
	}

	s.numerator.Mul(liquidity, sqrtPrice).Lsh(s.numerator, 64)
	s.divRoundingUp(dest, s.numerator, s.denominator)
	return nil
}

// nextSqrtPriceFromY writes the price after adding (or removing) amount
// of token Y at the given liquidity. The delta rounds down when added
// and up when removed, again in the pool's favor.
func (s *sqrtPriceMath) nextSqrtPriceFromY(dest, sqrtPrice, liquidity, amount *big.Int, add bool) error {
	s.numerator.Lsh(amount, 64)

	if add {
		s.diff.Div(s.numerator, liquidity)
		dest.Add(sqrtPrice, s.diff)
		return nil
	}

	s.divRoundingUp(s.diff, s.numerator, liquidity)
	if sqrtPrice.Cmp(s.diff) <= 0 {
		return ErrInsufficientLiquidity
	}
	dest.Sub(sqrtPrice, s.diff)
	return nil
}

// NextSqrtPriceFromInput writes the price reached after the pool
// receives amountIn. xForY is true when the input is token X (the
// price falls).
func NextSqrtPriceFromInput(dest, sqrtPrice, liquidity, amountIn *big.Int, xForY bool) error {
	if sqrtPrice.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}

	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)

	if xForY {
		return s.nextSqrtPriceFromX(dest, sqrtPrice, liquidity, amountIn, true)
	}
	return s.nextSqrtPriceFromY(dest, sqrtPrice, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput writes the price reached after the pool pays
// out amountOut. xForY is true when the output is token Y (the price
// falls).
func NextSqrtPriceFromOutput(dest, sqrtPrice, liquidity, amountOut *big.Int, xForY bool) error {
	if sqrtPrice.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}

	s := pool.Get().(*sqrtPriceMath)
	defer pool.Put(s)

	if xForY {
		return s.nextSqrtPriceFromY(dest, sqrtPrice, liquidity, amountOut, false)
	}
	return s.nextSqrtPriceFromX(dest, sqrtPrice, liquidity, amountOut, false)
}

// AmountsForLiquidity writes the token amounts a position of the given
// liquidity spans between sqrtPriceLower and sqrtPriceUpper, at the
// current price. roundUp is set when the amounts are owed to the pool
// (adding liquidity) and clear when they are refunded.
func AmountsForLiquidity(amountX, amountY, sqrtPrice, sqrtPriceLower, sqrtPriceUpper, liquidity *big.Int, roundUp bool) error {
	switch {
	case sqrtPrice.Cmp(sqrtPriceLower) < 0:
		// Entirely above the current price: all X.
		amountY.SetUint64(0)
		return AmountXDelta(amountX, sqrtPriceLower, sqrtPriceUpper, liquidity, roundUp)
	case sqrtPrice.Cmp(sqrtPriceUpper) >= 0:
		// Entirely below: all Y.
		amountX.SetUint64(0)
		return AmountYDelta(amountY, sqrtPriceLower, sqrtPriceUpper, liquidity, roundUp)
	default:
		if err := AmountXDelta(amountX, sqrtPrice, sqrtPriceUpper, liquidity, roundUp); err != nil {
			return err
		}
		return AmountYDelta(amountY, sqrtPriceLower, sqrtPrice, liquidity, roundUp)
	}
}
