package pool

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/defistate/clmm-engine-go/clmm/fullmath"
	"github.com/defistate/clmm-engine-go/clmm/swapmath"
	"github.com/defistate/clmm-engine-go/clmm/tick"
	"github.com/defistate/clmm-engine-go/clmm/tickmath"
)

// SwapParams describes one swap request. Amount is the input amount
// when ExactIn is set, the requested output otherwise. SqrtPriceLimit
// bounds how far the price may move; pass the absolute bound for an
// unlimited swap.
type SwapParams struct {
	XForY          bool
	ExactIn        bool
	Amount         uint64
	SqrtPriceLimit *big.Int
}

// SwapResult reports the executed amounts. The embedded Receipt must be
// settled with Repay before the pool accepts any other operation.
type SwapResult struct {
	AmountIn       uint64
	AmountOut      uint64
	FeeAmount      uint64
	ProtocolFee    uint64
	SqrtPriceAfter *big.Int
	TickAfter      int32
	Receipt        *Receipt
}

// Receipt records an unsettled debt to the pool. It is single-use and
// bound to the pool that issued it.
type Receipt struct {
	pool    *Pool
	owedX   uint64
	owedY   uint64
	settled bool
}

func (r *Receipt) Owed() (uint64, uint64) {
	return r.owedX, r.owedY
}

// swapState is the loop's working set, committed to the pool only
// after the loop finishes.
type swapState struct {
	remaining       uint64
	amountIn        uint64
	amountOut       uint64
	feeAmount       uint64
	protocolFee     uint64
	sqrtPrice       *big.Int
	tick            int32
	liquidity       *big.Int
	feeGrowthGlobal *big.Int
}

// Swap executes a swap against the pool and locks it until the
// returned receipt is repaid.
func (p *Pool) Swap(params SwapParams, time uint64) (*SwapResult, error) {
	if err := p.requireUnlocked(); err != nil {
		return nil, err
	}
	if err := p.checkPriceLimit(params); err != nil {
		return nil, err
	}

	p.lock()
	result, err := p.swap(params, time)
	if err != nil {
		// The loop failed before any state was committed; release the
		// lock so the pool stays usable.
		p.unlock()
		return nil, err
	}
	return result, nil
}

// swap runs the stepping loop: walk initialized ticks in the swap
// direction, at most one bitmap word per step, crossing each boundary
// reached exactly, and commit the working state at the end.
func (p *Pool) swap(params SwapParams, time uint64) (*SwapResult, error) {
	p.settleRewards(time)

	feeProtocol := p.feeProtocolX
	feeGrowthGlobal := p.feeGrowthGlobalX
	if !params.XForY {
		feeProtocol = p.feeProtocolY
		feeGrowthGlobal = p.feeGrowthGlobalY
	}

	startTick := p.currentTick
	startLiquidity := new(big.Int).Set(p.liquidity)

	state := &swapState{
		remaining:       params.Amount,
		sqrtPrice:       new(big.Int).Set(p.sqrtPrice),
		tick:            p.currentTick,
		liquidity:       new(big.Int).Set(p.liquidity),
		feeGrowthGlobal: new(big.Int).Set(feeGrowthGlobal),
	}

	var (
		step          = &swapmath.Step{NextSqrtPrice: new(big.Int)}
		targetPrice   = new(big.Int)
		boundaryPrice = new(big.Int)
		scratch       = new(big.Int)

		// Oracle accumulators for tick crossings, observed once at the
		// pre-swap state the first time a boundary is crossed.
		oracleSnapshotted bool
		oracleTickCum     int64
		oracleSPL         *uint256.Int
	)

	for state.remaining > 0 && state.sqrtPrice.Cmp(params.SqrtPriceLimit) != 0 {
		nextTick, nextInitialized := p.ticks.NextInitialized(state.tick, params.XForY)
		if nextTick < tickmath.MinTick {
			nextTick = tickmath.MinTick
		} else if nextTick > tickmath.MaxTick {
			nextTick = tickmath.MaxTick
		}

		if err := tickmath.SqrtPriceAtTick(boundaryPrice, nextTick); err != nil {
			return nil, err
		}
		targetPrice.Set(boundaryPrice)
		if params.XForY && targetPrice.Cmp(params.SqrtPriceLimit) < 0 {
			targetPrice.Set(params.SqrtPriceLimit)
		} else if !params.XForY && targetPrice.Cmp(params.SqrtPriceLimit) > 0 {
			targetPrice.Set(params.SqrtPriceLimit)
		}

		if err := swapmath.ComputeSwapStep(step, state.sqrtPrice, targetPrice, state.liquidity, state.remaining, p.feeRate, params.ExactIn); err != nil {
			return nil, err
		}

		if params.ExactIn {
			state.remaining -= step.AmountIn + step.FeeAmount
		} else {
			state.remaining -= step.AmountOut
		}
		state.amountIn += step.AmountIn
		state.amountOut += step.AmountOut
		state.feeAmount += step.FeeAmount

		stepFee := step.FeeAmount
		if feeProtocol > 0 {
			skim := stepFee / uint64(feeProtocol)
			stepFee -= skim
			state.protocolFee += skim
		}
		if stepFee > 0 && state.liquidity.Sign() > 0 {
			// Fee per unit liquidity; with zero liquidity the quotient
			// is undefined and the step fee is not distributed.
			scratch.SetUint64(stepFee)
			if err := fullmath.MulDiv(scratch, scratch, fullmath.Q64, state.liquidity); err != nil {
				return nil, err
			}
			fullmath.WrappingAddU128(state.feeGrowthGlobal, state.feeGrowthGlobal, scratch)
		}

		switch {
		case step.NextSqrtPrice.Cmp(boundaryPrice) == 0:
			// Reached the tick boundary exactly.
			if nextInitialized {
				if !oracleSnapshotted {
					var err error
					oracleTickCum, oracleSPL, err = p.observations.ObserveSingle(time, 0, startTick, startLiquidity)
					if err != nil {
						return nil, err
					}
					oracleSnapshotted = true
				}
				globals := &tick.Globals{
					FeeGrowthX:                    p.feeGrowthGlobalX,
					FeeGrowthY:                    p.feeGrowthGlobalY,
					RewardsGrowth:                 p.rewardsGrowthGlobal(),
					TickCumulative:                oracleTickCum,
					SecondsPerLiquidityCumulative: oracleSPL,
					Seconds:                       time,
				}
				if params.XForY {
					globals.FeeGrowthX = state.feeGrowthGlobal
				} else {
					globals.FeeGrowthY = state.feeGrowthGlobal
				}

				net := p.ticks.Cross(nextTick, globals)
				if params.XForY {
					net.Neg(net)
				}
				if err := fullmath.AddLiquidityDelta(state.liquidity, state.liquidity, net); err != nil {
					return nil, err
				}
			}
			if params.XForY {
				state.tick = nextTick - 1
			} else {
				state.tick = nextTick
			}
			state.sqrtPrice.Set(step.NextSqrtPrice)
		case step.NextSqrtPrice.Cmp(state.sqrtPrice) != 0:
			// Stopped inside the range: recover the tick from the price.
			state.sqrtPrice.Set(step.NextSqrtPrice)
			newTick, err := tickmath.TickAtSqrtPrice(state.sqrtPrice)
			if err != nil {
				return nil, err
			}
			state.tick = newTick
		}
	}

	// Record the pre-swap state in the oracle before the tick moves.
	if state.tick != startTick {
		p.observations.Write(time, startTick, startLiquidity)
	}

	p.sqrtPrice.Set(state.sqrtPrice)
	p.currentTick = state.tick
	p.liquidity.Set(state.liquidity)
	if params.XForY {
		p.feeGrowthGlobalX.Set(state.feeGrowthGlobal)
		p.protocolFeesX += state.protocolFee
	} else {
		p.feeGrowthGlobalY.Set(state.feeGrowthGlobal)
		p.protocolFeesY += state.protocolFee
	}

	receipt := &Receipt{pool: p}
	owed := state.amountIn + state.feeAmount
	if params.XForY {
		receipt.owedX = owed
	} else {
		receipt.owedY = owed
	}
	p.pending = receipt

	return &SwapResult{
		AmountIn:       state.amountIn,
		AmountOut:      state.amountOut,
		FeeAmount:      state.feeAmount,
		ProtocolFee:    state.protocolFee,
		SqrtPriceAfter: new(big.Int).Set(state.sqrtPrice),
		TickAfter:      state.tick,
		Receipt:        receipt,
	}, nil
}

// Repay settles a swap receipt. Underpayment fails and leaves the pool
// locked: recovery is the surrounding transaction's responsibility, not
// the pool's.
func (p *Pool) Repay(receipt *Receipt, paidX, paidY uint64) error {
	if receipt == nil || receipt.pool != p || receipt != p.pending {
		return ErrReceiptMismatch
	}
	if receipt.settled {
		return ErrReceiptSettled
	}
	if paidX < receipt.owedX || paidY < receipt.owedY {
		return ErrInsufficientInput
	}
	receipt.settled = true
	p.unlock()
	return nil
}

func (p *Pool) checkPriceLimit(params SwapParams) error {
	limit := params.SqrtPriceLimit
	if limit == nil {
		return ErrPriceLimitOutOfBounds
	}
	if limit.Cmp(tickmath.MinSqrtPrice) < 0 || limit.Cmp(tickmath.MaxSqrtPrice) > 0 {
		return ErrPriceLimitOutOfBounds
	}
	if params.XForY && limit.Cmp(p.sqrtPrice) >= 0 {
		return ErrPriceLimitExceeded
	}
	if !params.XForY && limit.Cmp(p.sqrtPrice) <= 0 {
		return ErrPriceLimitExceeded
	}
	return nil
}
