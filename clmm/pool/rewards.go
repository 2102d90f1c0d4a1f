package pool

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/clmm-engine-go/clmm/fullmath"
)

var (
	ErrInvalidRewardTimestamp = errors.New("reward end time not after last update")
	ErrRewardNotFound         = errors.New("reward not found")
)

// RewardInfo is one reward token's emission schedule and accumulator.
// Budget amounts are flat token units; EmissionsPerSecond and the
// allocated counter carry 64 fractional bits so slow drips stay exact.
type RewardInfo struct {
	Coin common.Address

	EmissionsPerSecond *big.Int // Q64.64 tokens per second
	GrowthGlobal       *big.Int // Q64.64 per unit liquidity, mod 2^128

	TotalReward  uint64
	allocatedQ64 *big.Int

	LastUpdateTime uint64
	EndTime        uint64
}

// TotalAllocated is the emitted amount in flat token units, rounded
// down.
func (r *RewardInfo) TotalAllocated() uint64 {
	return new(big.Int).Rsh(r.allocatedQ64, 64).Uint64()
}

// Rewards returns a copy of the reward records.
func (p *Pool) Rewards() []RewardInfo {
	out := make([]RewardInfo, len(p.rewards))
	for i, r := range p.rewards {
		out[i] = RewardInfo{
			Coin:               r.Coin,
			EmissionsPerSecond: new(big.Int).Set(r.EmissionsPerSecond),
			GrowthGlobal:       new(big.Int).Set(r.GrowthGlobal),
			TotalReward:        r.TotalReward,
			allocatedQ64:       new(big.Int).Set(r.allocatedQ64),
			LastUpdateTime:     r.LastUpdateTime,
			EndTime:            r.EndTime,
		}
	}
	return out
}

func (p *Pool) rewardsGrowthGlobal() []*big.Int {
	growth := make([]*big.Int, len(p.rewards))
	for i, r := range p.rewards {
		growth[i] = r.GrowthGlobal
	}
	return growth
}

// AddReward funds a reward for the given coin and sets (or extends) its
// emission end time, recomputing the per-second rate from the remaining
// unallocated budget. A new coin creates a fresh record.
func (p *Pool) AddReward(coin common.Address, amount uint64, endTime uint64, time uint64) error {
	if err := p.requireUnlocked(); err != nil {
		return err
	}

	p.settleRewards(time)
	if endTime <= time {
		return ErrInvalidRewardTimestamp
	}

	reward := p.findReward(coin)
	if reward == nil {
		reward = &RewardInfo{
			Coin:               coin,
			EmissionsPerSecond: new(big.Int),
			GrowthGlobal:       new(big.Int),
			allocatedQ64:       new(big.Int),
			LastUpdateTime:     time,
		}
		p.rewards = append(p.rewards, reward)
	}

	if endTime <= reward.LastUpdateTime {
		return ErrInvalidRewardTimestamp
	}
	total, ok := fullmath.CheckedAddU64(reward.TotalReward, amount)
	if !ok {
		return ErrAmountOverflow
	}
	reward.TotalReward = total

	// rate = (total - allocated) / (end - last), in Q64.64 per second.
	remaining := new(big.Int).Lsh(new(big.Int).SetUint64(total), 64)
	remaining.Sub(remaining, reward.allocatedQ64)
	duration := new(big.Int).SetUint64(endTime - reward.LastUpdateTime)
	reward.EmissionsPerSecond.Div(remaining, duration)
	reward.EndTime = endTime
	return nil
}

// SettleRewards advances every reward accumulator to time. Exposed for
// callers that need fresh accumulators outside a mutating operation.
func (p *Pool) SettleRewards(time uint64) error {
	if err := p.requireUnlocked(); err != nil {
		return err
	}
	p.settleRewards(time)
	return nil
}

// settleRewards applies pending emission. Time spent with zero pool
// liquidity consumes the clock without allocating anything: those
// rewards are lost, not banked.
func (p *Pool) settleRewards(time uint64) {
	emitted := new(big.Int)
	perLiquidity := new(big.Int)

	for _, reward := range p.rewards {
		if time <= reward.LastUpdateTime {
			continue
		}

		horizon := min(time, reward.EndTime)
		if horizon > reward.LastUpdateTime && p.liquidity.Sign() > 0 {
			elapsed := horizon - reward.LastUpdateTime
			emitted.Mul(reward.EmissionsPerSecond, new(big.Int).SetUint64(elapsed))

			perLiquidity.Div(emitted, p.liquidity)
			fullmath.WrappingAddU128(reward.GrowthGlobal, reward.GrowthGlobal, perLiquidity)
			reward.allocatedQ64.Add(reward.allocatedQ64, emitted)
		}
		reward.LastUpdateTime = time
	}
}

func (p *Pool) findReward(coin common.Address) *RewardInfo {
	for _, r := range p.rewards {
		if r.Coin == coin {
			return r
		}
	}
	return nil
}
