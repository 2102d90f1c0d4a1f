// Package position tracks a single liquidity range's share of fees and
// rewards. A position never reads the pool directly: the pool hands it
// growth-inside values, and the position differences them against its
// own snapshots.
package position

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"

	"github.com/defistate/clmm-engine-go/clmm/fullmath"
)

var (
	ErrPositionNotEmpty   = errors.New("position still holds liquidity or owed amounts")
	ErrAmountOwedOverflow = errors.New("owed amount exceeds uint64")
)

// Key identifies a position by owner and range.
type Key [32]byte

// KeyFor derives the position key from the owner address and the tick
// bounds.
func KeyFor(owner common.Address, tickLower, tickUpper int32) Key {
	var buf [common.AddressLength + 8]byte
	copy(buf[:], owner.Bytes())
	binary.BigEndian.PutUint32(buf[common.AddressLength:], uint32(tickLower))
	binary.BigEndian.PutUint32(buf[common.AddressLength+4:], uint32(tickUpper))
	return blake3.Sum256(buf[:])
}

// RewardState is a position's view of one reward token.
type RewardState struct {
	GrowthInside *big.Int
	AmountOwed   uint64
}

// Position is one owner's liquidity over one tick range.
type Position struct {
	TickLower int32
	TickUpper int32

	Liquidity *big.Int

	FeeGrowthInsideX *big.Int
	FeeGrowthInsideY *big.Int
	FeesOwedX        uint64
	FeesOwedY        uint64

	Rewards []RewardState
}

func New(tickLower, tickUpper int32) *Position {
	return &Position{
		TickLower:        tickLower,
		TickUpper:        tickUpper,
		Liquidity:        new(big.Int),
		FeeGrowthInsideX: new(big.Int),
		FeeGrowthInsideY: new(big.Int),
	}
}

// Update settles the position against fresh growth-inside readings and
// then applies the liquidity delta. A zero delta is a poke: owed
// amounts are brought current without changing liquidity.
func (p *Position) Update(liquidityDelta *big.Int, feeGrowthInsideX, feeGrowthInsideY *big.Int, rewardsGrowthInside []*big.Int) error {
	owedX, err := p.settleOwed(p.FeeGrowthInsideX, feeGrowthInsideX, p.FeesOwedX)
	if err != nil {
		return err
	}
	owedY, err := p.settleOwed(p.FeeGrowthInsideY, feeGrowthInsideY, p.FeesOwedY)
	if err != nil {
		return err
	}

	for len(p.Rewards) < len(rewardsGrowthInside) {
		p.Rewards = append(p.Rewards, RewardState{GrowthInside: new(big.Int)})
	}
	owedRewards := make([]uint64, len(rewardsGrowthInside))
	for i, inside := range rewardsGrowthInside {
		owedRewards[i], err = p.settleOwed(p.Rewards[i].GrowthInside, inside, p.Rewards[i].AmountOwed)
		if err != nil {
			return err
		}
	}

	liquidity := new(big.Int)
	if err := fullmath.AddLiquidityDelta(liquidity, p.Liquidity, liquidityDelta); err != nil {
		return err
	}

	// Nothing can fail past this point; commit.
	p.Liquidity = liquidity
	p.FeesOwedX = owedX
	p.FeesOwedY = owedY
	p.FeeGrowthInsideX.Set(feeGrowthInsideX)
	p.FeeGrowthInsideY.Set(feeGrowthInsideY)
	for i, inside := range rewardsGrowthInside {
		p.Rewards[i].AmountOwed = owedRewards[i]
		p.Rewards[i].GrowthInside.Set(inside)
	}
	return nil
}

// settleOwed converts the growth since the last snapshot into an owed
// token amount: delta * liquidity / 2^64, floored so the pool keeps the
// dust.
func (p *Position) settleOwed(snapshot, current *big.Int, owed uint64) (uint64, error) {
	delta := new(big.Int)
	fullmath.WrappingSubU128(delta, current, snapshot)
	if delta.Sign() == 0 || p.Liquidity.Sign() == 0 {
		return owed, nil
	}

	earned := new(big.Int)
	if err := fullmath.MulDiv(earned, delta, p.Liquidity, fullmath.Q64); err != nil {
		return 0, err
	}
	if !earned.IsUint64() {
		return 0, ErrAmountOwedOverflow
	}
	total, ok := fullmath.CheckedAddU64(owed, earned.Uint64())
	if !ok {
		return 0, ErrAmountOwedOverflow
	}
	return total, nil
}

// TakeFees deducts and returns up to the requested amounts.
func (p *Position) TakeFees(requestedX, requestedY uint64) (uint64, uint64) {
	takenX := min(requestedX, p.FeesOwedX)
	takenY := min(requestedY, p.FeesOwedY)
	p.FeesOwedX -= takenX
	p.FeesOwedY -= takenY
	return takenX, takenY
}

// TakeReward deducts and returns up to the requested amount of reward i.
func (p *Position) TakeReward(i int, requested uint64) uint64 {
	if i >= len(p.Rewards) {
		return 0
	}
	taken := min(requested, p.Rewards[i].AmountOwed)
	p.Rewards[i].AmountOwed -= taken
	return taken
}

// Empty reports whether the position holds no liquidity and no
// uncollected amounts.
func (p *Position) Empty() bool {
	if p.Liquidity.Sign() != 0 || p.FeesOwedX != 0 || p.FeesOwedY != 0 {
		return false
	}
	for _, r := range p.Rewards {
		if r.AmountOwed != 0 {
			return false
		}
	}
	return true
}

// CheckEmpty fails unless the position can be closed.
func (p *Position) CheckEmpty() error {
	if !p.Empty() {
		return ErrPositionNotEmpty
	}
	return nil
}
