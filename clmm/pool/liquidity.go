package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/clmm-engine-go/clmm/fullmath"
	"github.com/defistate/clmm-engine-go/clmm/position"
	"github.com/defistate/clmm-engine-go/clmm/sqrtpricemath"
	"github.com/defistate/clmm-engine-go/clmm/tickmath"
)

// ModifyLiquidity applies a signed liquidity delta to the owner's
// position over [tickLower, tickUpper]. The returned amounts are owed
// to the pool when adding (rounded up) and refundable when removing
// (rounded down). The position is settled against growth-inside
// readings before the delta lands.
func (p *Pool) ModifyLiquidity(owner common.Address, tickLower, tickUpper int32, liquidityDelta *big.Int, time uint64) (uint64, uint64, error) {
	if err := p.requireUnlocked(); err != nil {
		return 0, 0, err
	}
	if err := p.checkTickBounds(tickLower, tickUpper); err != nil {
		return 0, 0, err
	}

	p.settleRewards(time)

	key := position.KeyFor(owner, tickLower, tickUpper)
	pos, ok := p.positions[key]
	if !ok {
		if liquidityDelta.Sign() < 0 {
			return 0, 0, ErrPositionNotFound
		}
		pos = position.New(tickLower, tickUpper)
		p.positions[key] = pos
	}

	var flippedLower, flippedUpper bool
	if liquidityDelta.Sign() != 0 {
		globals := p.globals(time, p.currentTick, p.liquidity)

		var err error
		flippedLower, err = p.ticks.Update(tickLower, p.currentTick, liquidityDelta, globals, false)
		if err != nil {
			return 0, 0, err
		}
		flippedUpper, err = p.ticks.Update(tickUpper, p.currentTick, liquidityDelta, globals, true)
		if err != nil {
			// Roll back the lower tick so the registry stays consistent.
			negated := new(big.Int).Neg(liquidityDelta)
			if _, rollbackErr := p.ticks.Update(tickLower, p.currentTick, negated, globals, false); rollbackErr == nil && flippedLower {
				_ = p.ticks.Clear(tickLower)
			}
			return 0, 0, err
		}
	}

	insideX, insideY := p.ticks.FeeGrowthInside(tickLower, tickUpper, p.currentTick, p.feeGrowthGlobalX, p.feeGrowthGlobalY)
	insideRewards := p.ticks.RewardsGrowthInside(tickLower, tickUpper, p.currentTick, p.rewardsGrowthGlobal())
	if err := pos.Update(liquidityDelta, insideX, insideY, insideRewards); err != nil {
		return 0, 0, err
	}

	if liquidityDelta.Sign() < 0 {
		if flippedLower {
			_ = p.ticks.Clear(tickLower)
		}
		if flippedUpper {
			_ = p.ticks.Clear(tickUpper)
		}
	}

	amountX, amountY, err := p.liquidityAmounts(tickLower, tickUpper, liquidityDelta)
	if err != nil {
		return 0, 0, err
	}

	// The delta only affects active liquidity while the current price
	// sits inside the range.
	if liquidityDelta.Sign() != 0 && p.currentTick >= tickLower && p.currentTick < tickUpper {
		liquidity := new(big.Int)
		if err := fullmath.AddLiquidityDelta(liquidity, p.liquidity, liquidityDelta); err != nil {
			return 0, 0, err
		}
		p.liquidity.Set(liquidity)
	}
	return amountX, amountY, nil
}

// liquidityAmounts prices a liquidity delta into token amounts at the
// current pool price.
func (p *Pool) liquidityAmounts(tickLower, tickUpper int32, liquidityDelta *big.Int) (uint64, uint64, error) {
	if liquidityDelta.Sign() == 0 {
		return 0, 0, nil
	}

	priceLower, priceUpper := new(big.Int), new(big.Int)
	if err := tickmath.SqrtPriceAtTick(priceLower, tickLower); err != nil {
		return 0, 0, err
	}
	if err := tickmath.SqrtPriceAtTick(priceUpper, tickUpper); err != nil {
		return 0, 0, err
	}

	adding := liquidityDelta.Sign() > 0
	magnitude := new(big.Int).Abs(liquidityDelta)

	amountX, amountY := new(big.Int), new(big.Int)
	if err := sqrtpricemath.AmountsForLiquidity(amountX, amountY, p.sqrtPrice, priceLower, priceUpper, magnitude, adding); err != nil {
		return 0, 0, err
	}
	if !amountX.IsUint64() || !amountY.IsUint64() {
		return 0, 0, ErrAmountOverflow
	}
	return amountX.Uint64(), amountY.Uint64(), nil
}

// Position returns the owner's position over the range, or nil.
func (p *Pool) Position(owner common.Address, tickLower, tickUpper int32) *position.Position {
	return p.positions[position.KeyFor(owner, tickLower, tickUpper)]
}

// ClosePosition removes an emptied position record.
func (p *Pool) ClosePosition(owner common.Address, tickLower, tickUpper int32) error {
	if err := p.requireUnlocked(); err != nil {
		return err
	}
	key := position.KeyFor(owner, tickLower, tickUpper)
	pos, ok := p.positions[key]
	if !ok {
		return ErrPositionNotFound
	}
	if err := pos.CheckEmpty(); err != nil {
		return err
	}
	delete(p.positions, key)
	return nil
}

// CollectFees settles the position and withdraws up to the requested
// fee amounts.
func (p *Pool) CollectFees(owner common.Address, tickLower, tickUpper int32, requestedX, requestedY uint64, time uint64) (uint64, uint64, error) {
	if err := p.requireUnlocked(); err != nil {
		return 0, 0, err
	}
	pos, err := p.pokePosition(owner, tickLower, tickUpper, time)
	if err != nil {
		return 0, 0, err
	}
	takenX, takenY := pos.TakeFees(requestedX, requestedY)
	return takenX, takenY, nil
}

// CollectReward settles the position and withdraws up to the requested
// amount of the reward at index.
func (p *Pool) CollectReward(owner common.Address, tickLower, tickUpper int32, index int, requested uint64, time uint64) (uint64, error) {
	if err := p.requireUnlocked(); err != nil {
		return 0, err
	}
	if index < 0 || index >= len(p.rewards) {
		return 0, ErrRewardNotFound
	}
	pos, err := p.pokePosition(owner, tickLower, tickUpper, time)
	if err != nil {
		return 0, err
	}
	return pos.TakeReward(index, requested), nil
}

// pokePosition brings a position's owed amounts current without
// changing its liquidity.
func (p *Pool) pokePosition(owner common.Address, tickLower, tickUpper int32, time uint64) (*position.Position, error) {
	pos := p.Position(owner, tickLower, tickUpper)
	if pos == nil {
		return nil, ErrPositionNotFound
	}

	p.settleRewards(time)
	insideX, insideY := p.ticks.FeeGrowthInside(tickLower, tickUpper, p.currentTick, p.feeGrowthGlobalX, p.feeGrowthGlobalY)
	insideRewards := p.ticks.RewardsGrowthInside(tickLower, tickUpper, p.currentTick, p.rewardsGrowthGlobal())
	if err := pos.Update(big.NewInt(0), insideX, insideY, insideRewards); err != nil {
		return nil, err
	}
	return pos, nil
}
