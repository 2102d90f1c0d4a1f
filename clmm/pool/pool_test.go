package pool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clmm-engine-go/clmm/oracle"
	"github.com/defistate/clmm-engine-go/clmm/tickmath"
)

var (
	testCoinX = common.HexToAddress("0x01")
	testCoinY = common.HexToAddress("0x02")
	testOwner = common.HexToAddress("0xabcdef")
)

// newTestPool builds a pool priced at 1.0 (sqrt price 1<<64, tick 0)
// at time zero.
func newTestPool(t *testing.T, feeRate uint32, tickSpacing int32) *Pool {
	t.Helper()
	p, err := New(testCoinX, testCoinY, feeRate, tickSpacing)
	require.NoError(t, err)
	require.NoError(t, p.Initialize(new(big.Int).Lsh(big.NewInt(1), 64), 0))
	return p
}

// mintFullRange adds liquidity over the widest usable range.
func mintFullRange(t *testing.T, p *Pool, liquidity int64, time uint64) (uint64, uint64) {
	t.Helper()
	upper := (tickmath.MaxTick / p.TickSpacing()) * p.TickSpacing()
	amountX, amountY, err := p.ModifyLiquidity(testOwner, -upper, upper, big.NewInt(liquidity), time)
	require.NoError(t, err)
	return amountX, amountY
}

func TestNewValidation(t *testing.T) {
	_, err := New(testCoinX, testCoinY, MaxFeeRate+1, 10)
	assert.ErrorIs(t, err, ErrInvalidFeeRate)

	_, err = New(testCoinX, testCoinY, 500, 0)
	assert.ErrorIs(t, err, ErrInvalidTickSpacing)

	_, err = New(testCoinX, testCoinY, 500, -10)
	assert.ErrorIs(t, err, ErrInvalidTickSpacing)

	p, err := New(testCoinX, testCoinY, 500, 10)
	require.NoError(t, err)
	assert.False(t, p.Initialized())
}

func TestInitialize(t *testing.T) {
	p, err := New(testCoinX, testCoinY, 500, 10)
	require.NoError(t, err)

	// Nothing runs before initialization.
	_, _, err = p.ModifyLiquidity(testOwner, -10, 10, big.NewInt(1), 0)
	assert.ErrorIs(t, err, ErrNotInitialized)

	price := new(big.Int).Lsh(big.NewInt(1), 64)
	require.NoError(t, p.Initialize(price, 7))
	assert.True(t, p.Initialized())
	assert.Equal(t, int32(0), p.CurrentTick())
	assert.Zero(t, price.Cmp(p.SqrtPrice()))

	assert.ErrorIs(t, p.Initialize(price, 8), ErrAlreadyInitialized)
}

func TestSetFeeProtocolRange(t *testing.T) {
	p := newTestPool(t, 500, 10)

	require.NoError(t, p.SetFeeProtocol(0, 0))
	require.NoError(t, p.SetFeeProtocol(4, 10))
	x, y := p.FeeProtocol()
	assert.Equal(t, uint8(4), x)
	assert.Equal(t, uint8(10), y)

	assert.ErrorIs(t, p.SetFeeProtocol(3, 0), ErrInvalidProtocolFee)
	assert.ErrorIs(t, p.SetFeeProtocol(0, 11), ErrInvalidProtocolFee)
	assert.ErrorIs(t, p.SetFeeProtocol(1, 5), ErrInvalidProtocolFee)
}

func TestCollectProtocolFeesBounded(t *testing.T) {
	p := newTestPool(t, 500, 10)
	p.protocolFeesX = 100
	p.protocolFeesY = 50

	takenX, takenY, err := p.CollectProtocolFees(30, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), takenX)
	assert.Equal(t, uint64(50), takenY)

	remX, remY := p.ProtocolFees()
	assert.Equal(t, uint64(70), remX)
	assert.Equal(t, uint64(0), remY)
}

func TestSnapshotDetached(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)

	before := p.Snapshot()
	assert.Equal(t, int32(0), before.CurrentTick)
	assert.Equal(t, 2, before.InitializedTicks)
	assert.Equal(t, 1, before.Positions)
	assert.False(t, before.Locked)

	// Mutating the pool must not reach into an existing snapshot.
	res, err := p.Swap(SwapParams{
		XForY:          true,
		ExactIn:        true,
		Amount:         1_000_000,
		SqrtPriceLimit: new(big.Int).Set(tickmath.MinSqrtPrice),
	}, 10)
	require.NoError(t, err)
	require.NoError(t, p.Repay(res.Receipt, res.AmountIn+res.FeeAmount, 0))

	assert.Zero(t, before.SqrtPrice.Cmp(new(big.Int).Lsh(big.NewInt(1), 64)))
	after := p.Snapshot()
	assert.True(t, after.SqrtPrice.Cmp(before.SqrtPrice) < 0)
	assert.True(t, after.FeeGrowthGlobalX.Cmp(before.FeeGrowthGlobalX) > 0)
}

func TestObserveBatch(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)
	require.NoError(t, p.IncreaseObservationCardinality(4))

	// Move the tick at t=10 so the ring holds two real samples.
	res, err := p.Swap(SwapParams{
		XForY:          true,
		ExactIn:        true,
		Amount:         1_000_000_000,
		SqrtPriceLimit: new(big.Int).Set(tickmath.MinSqrtPrice),
	}, 10)
	require.NoError(t, err)
	require.NoError(t, p.Repay(res.Receipt, res.AmountIn+res.FeeAmount, 0))

	tickCums, secondsPerLiq, err := p.Observe(20, []uint64{0, 10, 20})
	require.NoError(t, err)
	require.Len(t, tickCums, 3)
	require.Len(t, secondsPerLiq, 3)

	assert.Zero(t, tickCums[2], "accumulator at the seed observation")
	assert.Zero(t, tickCums[1], "tick was zero for the first ten seconds")
	// After the swap the tick is deep negative, so the latest reading
	// accumulates ten seconds of it.
	assert.Equal(t, int64(p.CurrentTick())*10, tickCums[0])
	assert.True(t, secondsPerLiq[0].Gt(secondsPerLiq[1]))

	_, _, err = p.Observe(20, []uint64{21})
	assert.ErrorIs(t, err, oracle.ErrOldestObservation)
}
