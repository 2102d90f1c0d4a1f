package position

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clmm-engine-go/clmm/fullmath"
)

func q64(n int64) *big.Int {
	return new(big.Int).Lsh(big.NewInt(n), 64)
}

func TestKeyFor_Deterministic(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	other := common.HexToAddress("0x00000000000000000000000000000000cafebabe")

	assert.Equal(t, KeyFor(owner, -100, 100), KeyFor(owner, -100, 100))
	assert.NotEqual(t, KeyFor(owner, -100, 100), KeyFor(owner, -100, 200))
	assert.NotEqual(t, KeyFor(owner, -100, 100), KeyFor(other, -100, 100))
	assert.NotEqual(t, KeyFor(owner, -100, 100), KeyFor(owner, 100, -100))
}

func TestUpdate_AccruesFees(t *testing.T) {
	p := New(-100, 100)
	zero := big.NewInt(0)

	require.NoError(t, p.Update(big.NewInt(1000), zero, zero, nil))
	assert.Equal(t, int64(1000), p.Liquidity.Int64())
	assert.Equal(t, uint64(0), p.FeesOwedX)

	// Growth of 5 (Q64.64) per unit liquidity over 1000 units.
	require.NoError(t, p.Update(big.NewInt(0), q64(5), q64(7), nil))
	assert.Equal(t, uint64(5000), p.FeesOwedX)
	assert.Equal(t, uint64(7000), p.FeesOwedY)

	// A second poke with unchanged growth adds nothing.
	require.NoError(t, p.Update(big.NewInt(0), q64(5), q64(7), nil))
	assert.Equal(t, uint64(5000), p.FeesOwedX)
}

func TestUpdate_SettlesBeforeLiquidityChange(t *testing.T) {
	p := New(-100, 100)
	zero := big.NewInt(0)

	require.NoError(t, p.Update(big.NewInt(1000), zero, zero, nil))

	// The growth delta applies to the liquidity held while it accrued,
	// not the post-update amount.
	require.NoError(t, p.Update(big.NewInt(9000), q64(2), zero, nil))
	assert.Equal(t, uint64(2000), p.FeesOwedX)
	assert.Equal(t, int64(10000), p.Liquidity.Int64())
}

func TestUpdate_Rewards(t *testing.T) {
	p := New(-100, 100)
	zero := big.NewInt(0)

	require.NoError(t, p.Update(big.NewInt(500), zero, zero, []*big.Int{big.NewInt(0)}))

	// A second reward shows up later; its snapshot starts at zero.
	require.NoError(t, p.Update(big.NewInt(0), zero, zero, []*big.Int{q64(4), q64(6)}))
	require.Len(t, p.Rewards, 2)
	assert.Equal(t, uint64(2000), p.Rewards[0].AmountOwed)
	assert.Equal(t, uint64(3000), p.Rewards[1].AmountOwed)
}

func TestUpdate_OwedOverflow(t *testing.T) {
	p := New(-100, 100)
	zero := big.NewInt(0)

	require.NoError(t, p.Update(fullmath.MaxU128, zero, zero, nil))
	err := p.Update(big.NewInt(0), q64(1_000_000), zero, nil)
	assert.ErrorIs(t, err, ErrAmountOwedOverflow)

	// Failure must not move the snapshot.
	assert.Equal(t, int64(0), p.FeeGrowthInsideX.Int64())
	assert.Equal(t, uint64(0), p.FeesOwedX)
}

func TestTakeFees_Bounded(t *testing.T) {
	p := New(-100, 100)
	zero := big.NewInt(0)
	require.NoError(t, p.Update(big.NewInt(1000), zero, zero, nil))
	require.NoError(t, p.Update(big.NewInt(0), q64(5), q64(5), nil))

	takenX, takenY := p.TakeFees(1200, ^uint64(0))
	assert.Equal(t, uint64(1200), takenX)
	assert.Equal(t, uint64(5000), takenY)
	assert.Equal(t, uint64(3800), p.FeesOwedX)
	assert.Equal(t, uint64(0), p.FeesOwedY)
}

func TestTakeReward_Bounded(t *testing.T) {
	p := New(-100, 100)
	zero := big.NewInt(0)
	require.NoError(t, p.Update(big.NewInt(1000), zero, zero, []*big.Int{zero}))
	require.NoError(t, p.Update(big.NewInt(0), zero, zero, []*big.Int{q64(1)}))

	assert.Equal(t, uint64(400), p.TakeReward(0, 400))
	assert.Equal(t, uint64(600), p.TakeReward(0, ^uint64(0)))
	assert.Equal(t, uint64(0), p.TakeReward(0, 100))
	assert.Equal(t, uint64(0), p.TakeReward(5, 100), "unknown reward index reads zero")
}

func TestCheckEmpty(t *testing.T) {
	p := New(-100, 100)
	assert.NoError(t, p.CheckEmpty())

	zero := big.NewInt(0)
	require.NoError(t, p.Update(big.NewInt(1000), zero, zero, nil))
	assert.ErrorIs(t, p.CheckEmpty(), ErrPositionNotEmpty)

	require.NoError(t, p.Update(big.NewInt(-1000), q64(5), zero, nil))
	assert.ErrorIs(t, p.CheckEmpty(), ErrPositionNotEmpty, "owed fees keep the position open")

	p.TakeFees(^uint64(0), ^uint64(0))
	assert.NoError(t, p.CheckEmpty())
}
