package pool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clmm-engine-go/clmm/tickmath"
)

var rewardCoin = common.HexToAddress("0x0e")

func TestAddRewardEmissionRate(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)

	require.NoError(t, p.AddReward(rewardCoin, 1000, 100, 0))
	rewards := p.Rewards()
	require.Len(t, rewards, 1)

	// 1000 tokens over 100 seconds: 10/s in Q64.64.
	wantRate := new(big.Int).Lsh(big.NewInt(10), 64)
	assert.Zero(t, rewards[0].EmissionsPerSecond.Cmp(wantRate))
	assert.Equal(t, uint64(100), rewards[0].EndTime)
	assert.Zero(t, rewards[0].TotalAllocated())
}

func TestRewardAllocationOverTime(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)
	require.NoError(t, p.AddReward(rewardCoin, 1000, 100, 0))

	require.NoError(t, p.SettleRewards(50))
	assert.Equal(t, uint64(500), p.Rewards()[0].TotalAllocated())

	// Emission stops at the end time, and never exceeds the budget.
	require.NoError(t, p.SettleRewards(200))
	assert.Equal(t, uint64(1000), p.Rewards()[0].TotalAllocated())
	require.NoError(t, p.SettleRewards(300))
	assert.Equal(t, uint64(1000), p.Rewards()[0].TotalAllocated())
	assert.True(t, p.Rewards()[0].GrowthGlobal.Sign() > 0)
}

func TestRewardZeroLiquidityTimeIsLost(t *testing.T) {
	p := newTestPool(t, 500, 10)
	require.NoError(t, p.AddReward(rewardCoin, 1000, 100, 0))

	// Nobody is in range for the first half of the schedule.
	require.NoError(t, p.SettleRewards(50))
	assert.Zero(t, p.Rewards()[0].TotalAllocated())

	mintFullRange(t, p, 2_000_000_000, 50)
	require.NoError(t, p.SettleRewards(100))

	// Only the second half was emitted; the first half is gone, not
	// banked.
	assert.Equal(t, uint64(500), p.Rewards()[0].TotalAllocated())
}

func TestAddRewardTopUp(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)
	require.NoError(t, p.AddReward(rewardCoin, 1000, 100, 0))
	require.NoError(t, p.SettleRewards(50))

	// Top up mid-schedule: the rate is recomputed from the remaining
	// unallocated budget over the new horizon.
	require.NoError(t, p.AddReward(rewardCoin, 500, 150, 50))
	rewards := p.Rewards()
	require.Len(t, rewards, 1)
	assert.Equal(t, uint64(1500), rewards[0].TotalReward)
	wantRate := new(big.Int).Lsh(big.NewInt(10), 64)
	assert.Zero(t, rewards[0].EmissionsPerSecond.Cmp(wantRate))

	require.NoError(t, p.SettleRewards(150))
	assert.Equal(t, uint64(1500), p.Rewards()[0].TotalAllocated())
}

func TestAddRewardValidation(t *testing.T) {
	p := newTestPool(t, 500, 10)
	assert.ErrorIs(t, p.AddReward(rewardCoin, 1000, 10, 10), ErrInvalidRewardTimestamp)
	assert.ErrorIs(t, p.AddReward(rewardCoin, 1000, 5, 10), ErrInvalidRewardTimestamp)
}

func TestRewardSecondStream(t *testing.T) {
	otherCoin := common.HexToAddress("0x0f")
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)

	require.NoError(t, p.AddReward(rewardCoin, 1000, 100, 0))
	require.NoError(t, p.AddReward(otherCoin, 300, 30, 0))
	require.Len(t, p.Rewards(), 2)

	require.NoError(t, p.SettleRewards(60))
	rewards := p.Rewards()
	assert.Equal(t, uint64(600), rewards[0].TotalAllocated())
	assert.Equal(t, uint64(300), rewards[1].TotalAllocated())
}

func TestCollectRewardEndToEnd(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)
	require.NoError(t, p.AddReward(rewardCoin, 1000, 100, 0))

	lo, hi := fullRangeBounds(p)
	collected, err := p.CollectReward(testOwner, lo, hi, 0, ^uint64(0), 100)
	require.NoError(t, err)

	// The sole position earns the whole emission, minus the growth
	// accumulator's floor rounding.
	assert.True(t, collected <= 1000)
	assert.InDelta(t, 1000, collected, 2)

	_, err = p.CollectReward(testOwner, lo, hi, 1, 1, 100)
	assert.ErrorIs(t, err, ErrRewardNotFound)
}

func fullRangeBounds(p *Pool) (int32, int32) {
	upper := (tickmath.MaxTick / p.TickSpacing()) * p.TickSpacing()
	return -upper, upper
}
