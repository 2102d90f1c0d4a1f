// Package tick maintains the sparse per-tick registry and its bitmap
// index. The two structures are mutated only through the Manager so
// they cannot drift apart: a bitmap bit is set exactly when the tick
// holds nonzero gross liquidity.
package tick

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/defistate/clmm-engine-go/clmm/fullmath"
	"github.com/defistate/clmm-engine-go/clmm/tickbitmap"
	"github.com/defistate/clmm-engine-go/clmm/tickmath"
)

var (
	ErrLiquidityOverflow = errors.New("gross liquidity exceeds per-tick cap")
	ErrTickNotEmpty      = errors.New("tick still holds liquidity")
)

// Info is the state attached to one initialized tick. The "outside"
// fields snapshot each global accumulator as seen from below the tick;
// they are seeded at first initialization and flipped on every cross,
// so growth inside a range can be recovered by differencing.
type Info struct {
	LiquidityGross *big.Int
	LiquidityNet   *big.Int

	FeeGrowthOutsideX    *big.Int
	FeeGrowthOutsideY    *big.Int
	RewardsGrowthOutside []*big.Int

	TickCumulativeOutside      int64
	SecondsPerLiquidityOutside *uint256.Int
	SecondsOutside             uint64
}

func newInfo() *Info {
	return &Info{
		LiquidityGross:             new(big.Int),
		LiquidityNet:               new(big.Int),
		FeeGrowthOutsideX:          new(big.Int),
		FeeGrowthOutsideY:          new(big.Int),
		SecondsPerLiquidityOutside: new(uint256.Int),
	}
}

// Globals carries the pool's accumulator values at the moment of a tick
// mutation.
type Globals struct {
	FeeGrowthX    *big.Int
	FeeGrowthY    *big.Int
	RewardsGrowth []*big.Int

	TickCumulative                int64
	SecondsPerLiquidityCumulative *uint256.Int
	Seconds                       uint64
}

// Manager owns the registry for one pool.
type Manager struct {
	ticks               map[int32]*Info
	bitmap              tickbitmap.Bitmap
	tickSpacing         int32
	maxLiquidityPerTick *big.Int
}

func NewManager(tickSpacing int32) *Manager {
	return &Manager{
		ticks:               make(map[int32]*Info),
		bitmap:              tickbitmap.New(),
		tickSpacing:         tickSpacing,
		maxLiquidityPerTick: tickmath.MaxLiquidityPerTick(tickSpacing),
	}
}

func (m *Manager) TickSpacing() int32 {
	return m.tickSpacing
}

func (m *Manager) MaxLiquidityPerTick() *big.Int {
	return new(big.Int).Set(m.maxLiquidityPerTick)
}

// Count reports how many ticks are initialized.
func (m *Manager) Count() int {
	return len(m.ticks)
}

// Get returns the tick record, or nil when the tick is uninitialized.
// Absent ticks read as all-zero.
func (m *Manager) Get(tick int32) *Info {
	return m.ticks[tick]
}

// Update applies a signed liquidity delta to the tick, seeding the
// outside snapshots on first initialization and keeping the bitmap bit
// in sync. upper marks the tick as a range's upper bound, which negates
// the net-liquidity contribution. Returns whether the tick flipped
// between initialized and uninitialized.
func (m *Manager) Update(tick, currentTick int32, liquidityDelta *big.Int, globals *Globals, upper bool) (bool, error) {
	if tick%m.tickSpacing != 0 {
		return false, tickbitmap.ErrTickMisaligned
	}

	info, ok := m.ticks[tick]
	if !ok {
		info = newInfo()
	}

	grossAfter := new(big.Int)
	if err := fullmath.AddLiquidityDelta(grossAfter, info.LiquidityGross, liquidityDelta); err != nil {
		return false, err
	}
	if grossAfter.Cmp(m.maxLiquidityPerTick) > 0 {
		return false, ErrLiquidityOverflow
	}

	grossBefore := info.LiquidityGross
	flipped := (grossAfter.Sign() == 0) != (grossBefore.Sign() == 0)

	if grossBefore.Sign() == 0 {
		// First touch. Everything that accrued so far is deemed to
		// have happened below the tick, so a tick at or below the
		// current price inherits the running globals; one above it
		// starts from zero.
		if tick <= currentTick {
			info.FeeGrowthOutsideX.Set(globals.FeeGrowthX)
			info.FeeGrowthOutsideY.Set(globals.FeeGrowthY)
			info.RewardsGrowthOutside = make([]*big.Int, len(globals.RewardsGrowth))
			for i, g := range globals.RewardsGrowth {
				info.RewardsGrowthOutside[i] = new(big.Int).Set(g)
			}
			info.TickCumulativeOutside = globals.TickCumulative
			info.SecondsPerLiquidityOutside.Set(globals.SecondsPerLiquidityCumulative)
			info.SecondsOutside = globals.Seconds
		}
	}

	info.LiquidityGross = grossAfter
	if upper {
		info.LiquidityNet.Sub(info.LiquidityNet, liquidityDelta)
	} else {
		info.LiquidityNet.Add(info.LiquidityNet, liquidityDelta)
	}

	if !ok {
		m.ticks[tick] = info
	}
	if flipped {
		if err := m.bitmap.Flip(tick, m.tickSpacing); err != nil {
			return false, err
		}
	}
	return flipped, nil
}

// Clear removes an uninitialized tick's record.
func (m *Manager) Clear(tick int32) error {
	info, ok := m.ticks[tick]
	if !ok {
		return nil
	}
	if info.LiquidityGross.Sign() != 0 {
		return ErrTickNotEmpty
	}
	delete(m.ticks, tick)
	return nil
}

// Cross flips every outside snapshot to global minus outside and
// returns the tick's net liquidity. The caller negates the result when
// the price is moving downward through the tick.
func (m *Manager) Cross(tick int32, globals *Globals) *big.Int {
	info, ok := m.ticks[tick]
	if !ok {
		return new(big.Int)
	}

	fullmath.WrappingSubU128(info.FeeGrowthOutsideX, globals.FeeGrowthX, info.FeeGrowthOutsideX)
	fullmath.WrappingSubU128(info.FeeGrowthOutsideY, globals.FeeGrowthY, info.FeeGrowthOutsideY)

	// A reward added after this tick was first touched has no outside
	// entry yet; it reads as zero.
	outside := make([]*big.Int, len(globals.RewardsGrowth))
	for i, g := range globals.RewardsGrowth {
		prev := new(big.Int)
		if i < len(info.RewardsGrowthOutside) {
			prev = info.RewardsGrowthOutside[i]
		}
		out := new(big.Int)
		fullmath.WrappingSubU128(out, g, prev)
		outside[i] = out
	}
	info.RewardsGrowthOutside = outside

	info.TickCumulativeOutside = globals.TickCumulative - info.TickCumulativeOutside
	info.SecondsPerLiquidityOutside.Sub(globals.SecondsPerLiquidityCumulative, info.SecondsPerLiquidityOutside)
	info.SecondsOutside = globals.Seconds - info.SecondsOutside

	return new(big.Int).Set(info.LiquidityNet)
}

// NextInitialized finds the next initialized tick from tick in the
// given direction, searching at most one bitmap word.
func (m *Manager) NextInitialized(tick int32, lte bool) (int32, bool) {
	return m.bitmap.NextInitializedTickWithinOneWord(tick, m.tickSpacing, lte)
}

// FeeGrowthInside returns the fee growth per unit liquidity accrued
// strictly between the two ticks, split per token side. All arithmetic
// is modulo 2^128: differences stay correct across wraparound.
func (m *Manager) FeeGrowthInside(lower, upper, currentTick int32, feeGrowthGlobalX, feeGrowthGlobalY *big.Int) (*big.Int, *big.Int) {
	insideX := growthInside(currentTick, lower, upper, feeGrowthGlobalX,
		m.outsideFee(lower, func(i *Info) *big.Int { return i.FeeGrowthOutsideX }),
		m.outsideFee(upper, func(i *Info) *big.Int { return i.FeeGrowthOutsideX }))
	insideY := growthInside(currentTick, lower, upper, feeGrowthGlobalY,
		m.outsideFee(lower, func(i *Info) *big.Int { return i.FeeGrowthOutsideY }),
		m.outsideFee(upper, func(i *Info) *big.Int { return i.FeeGrowthOutsideY }))
	return insideX, insideY
}

// RewardsGrowthInside returns the per-reward growth accrued between the
// two ticks, one entry per global reward record.
func (m *Manager) RewardsGrowthInside(lower, upper, currentTick int32, rewardsGrowthGlobal []*big.Int) []*big.Int {
	inside := make([]*big.Int, len(rewardsGrowthGlobal))
	for i, global := range rewardsGrowthGlobal {
		inside[i] = growthInside(currentTick, lower, upper, global,
			m.outsideReward(lower, i), m.outsideReward(upper, i))
	}
	return inside
}

func (m *Manager) outsideFee(tick int32, field func(*Info) *big.Int) *big.Int {
	if info, ok := m.ticks[tick]; ok {
		return field(info)
	}
	return new(big.Int)
}

func (m *Manager) outsideReward(tick int32, i int) *big.Int {
	if info, ok := m.ticks[tick]; ok && i < len(info.RewardsGrowthOutside) {
		return info.RewardsGrowthOutside[i]
	}
	return new(big.Int)
}

// growthInside implements the below/above split: an outside snapshot
// reads directly when the current price is on the far side of the
// bound, and as global minus outside otherwise.
func growthInside(currentTick, lower, upper int32, global, outsideLower, outsideUpper *big.Int) *big.Int {
	below := new(big.Int)
	if currentTick >= lower {
		below.Set(outsideLower)
	} else {
		fullmath.WrappingSubU128(below, global, outsideLower)
	}

	above := new(big.Int)
	if currentTick < upper {
		above.Set(outsideUpper)
	} else {
		fullmath.WrappingSubU128(above, global, outsideUpper)
	}

	inside := new(big.Int)
	fullmath.WrappingSubU128(inside, global, below)
	fullmath.WrappingSubU128(inside, inside, above)
	return inside
}
