// Package swapmath computes a single step of a swap: given the current
// and target square-root prices, the in-range liquidity, and the amount
// still unfilled, it determines how far the price moves and what is
// paid in, paid out, and charged as fee.
package swapmath

import (
	"errors"
	"math/big"
	"sync"

	"github.com/defistate/clmm-engine-go/clmm/sqrtpricemath"
)

// FeeDenominator scales swap fee rates: a rate of 500 charges 0.05%.
const FeeDenominator = 1_000_000

var (
	ErrAmountOverflow = errors.New("swap step amount exceeds uint64")

	feeDenominator = big.NewInt(FeeDenominator)
	maxUint64      = new(big.Int).SetUint64(^uint64(0))
)

// Step is the result of one swap step. NextSqrtPrice is owned by the
// caller and overwritten on every call.
type Step struct {
	NextSqrtPrice *big.Int
	AmountIn      uint64
	AmountOut     uint64
	FeeAmount     uint64
}

// swapStep holds reusable big.Int objects to avoid memory allocations.
type swapStep struct {
	remaining *big.Int
	lessFee   *big.Int
	amountIn  *big.Int
	amountOut *big.Int
	fee       *big.Int
	feeRate   *big.Int
	netRate   *big.Int
}

var pool = sync.Pool{
	New: func() any {
		return &swapStep{
			remaining: new(big.Int),
			lessFee:   new(big.Int),
			amountIn:  new(big.Int),
			amountOut: new(big.Int),
			fee:       new(big.Int),
			feeRate:   new(big.Int),
			netRate:   new(big.Int),
		}
	},
}

// ComputeSwapStep fills dest with the outcome of swapping toward
// sqrtPriceTarget from sqrtPriceCurrent. Direction is inferred from the
// price ordering. For exact-in the fee is carved out of amountRemaining
// before sizing the step; for exact-out amountRemaining bounds the
// output. Once the next price is fixed, both amounts are recomputed
// between the current and next price so rounding never compounds
// across the two phases.
func ComputeSwapStep(dest *Step, sqrtPriceCurrent, sqrtPriceTarget, liquidity *big.Int, amountRemaining uint64, feeRate uint32, exactIn bool) error {
	s := pool.Get().(*swapStep)
	defer pool.Put(s)

	xForY := sqrtPriceCurrent.Cmp(sqrtPriceTarget) >= 0
	s.remaining.SetUint64(amountRemaining)
	s.feeRate.SetInt64(int64(feeRate))
	s.netRate.SetInt64(int64(FeeDenominator - feeRate))

	reachedTarget := false
	if exactIn {
		s.lessFee.Mul(s.remaining, s.netRate).Div(s.lessFee, feeDenominator)
		if err := amountInToTarget(s.amountIn, sqrtPriceCurrent, sqrtPriceTarget, liquidity, xForY); err != nil {
			return err
		}
		if s.lessFee.Cmp(s.amountIn) >= 0 {
			dest.NextSqrtPrice.Set(sqrtPriceTarget)
			reachedTarget = true
		} else if err := sqrtpricemath.NextSqrtPriceFromInput(dest.NextSqrtPrice, sqrtPriceCurrent, liquidity, s.lessFee, xForY); err != nil {
			return err
		}
	} else {
		if err := amountOutToTarget(s.amountOut, sqrtPriceCurrent, sqrtPriceTarget, liquidity, xForY); err != nil {
			return err
		}
		if s.remaining.Cmp(s.amountOut) >= 0 {
			dest.NextSqrtPrice.Set(sqrtPriceTarget)
			reachedTarget = true
		} else if err := sqrtpricemath.NextSqrtPriceFromOutput(dest.NextSqrtPrice, sqrtPriceCurrent, liquidity, s.remaining, xForY); err != nil {
			return err
		}
	}

	// Recompute both legs over the realized price interval.
	if err := amountInToTarget(s.amountIn, sqrtPriceCurrent, dest.NextSqrtPrice, liquidity, xForY); err != nil {
		return err
	}
	if err := amountOutToTarget(s.amountOut, sqrtPriceCurrent, dest.NextSqrtPrice, liquidity, xForY); err != nil {
		return err
	}
	if !exactIn && s.amountOut.Cmp(s.remaining) > 0 {
		s.amountOut.Set(s.remaining)
	}

	if exactIn && !reachedTarget {
		// The step consumed the whole remaining input: whatever the
		// curve did not absorb is the fee.
		s.fee.Sub(s.remaining, s.amountIn)
	} else {
		s.fee.Mul(s.amountIn, s.feeRate).Div(s.fee, s.netRate)
	}

	if s.amountIn.Cmp(maxUint64) > 0 || s.amountOut.Cmp(maxUint64) > 0 || s.fee.Cmp(maxUint64) > 0 {
		return ErrAmountOverflow
	}
	dest.AmountIn = s.amountIn.Uint64()
	dest.AmountOut = s.amountOut.Uint64()
	dest.FeeAmount = s.fee.Uint64()
	return nil
}

// amountInToTarget writes the input amount required to move the price
// from current to target, rounded up.
func amountInToTarget(dest, sqrtPriceCurrent, sqrtPriceTarget, liquidity *big.Int, xForY bool) error {
	if xForY {
		return sqrtpricemath.AmountXDelta(dest, sqrtPriceTarget, sqrtPriceCurrent, liquidity, true)
	}
	return sqrtpricemath.AmountYDelta(dest, sqrtPriceCurrent, sqrtPriceTarget, liquidity, true)
}

// amountOutToTarget writes the output amount released by moving the
// price from current to target, rounded down.
func amountOutToTarget(dest, sqrtPriceCurrent, sqrtPriceTarget, liquidity *big.Int, xForY bool) error {
	if xForY {
		return sqrtpricemath.AmountYDelta(dest, sqrtPriceTarget, sqrtPriceCurrent, liquidity, false)
	}
	return sqrtpricemath.AmountXDelta(dest, sqrtPriceCurrent, sqrtPriceTarget, liquidity, false)
}
