package pool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clmm-engine-go/clmm/tickmath"
)

func unlimitedDown() *big.Int { return new(big.Int).Set(tickmath.MinSqrtPrice) }
func unlimitedUp() *big.Int   { return new(big.Int).Set(tickmath.MaxSqrtPrice) }

func TestSwapExactInKnownResult(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)

	res, err := p.Swap(SwapParams{
		XForY:          true,
		ExactIn:        true,
		Amount:         1_000_000_000,
		SqrtPriceLimit: unlimitedDown(),
	}, 10)
	require.NoError(t, err)

	assert.Equal(t, uint64(666_444_406), res.AmountOut)
	assert.Equal(t, "12299879366966330045", res.SqrtPriceAfter.String())
	assert.Equal(t, uint64(1_000_000_000), res.AmountIn+res.FeeAmount)
	assert.Zero(t, res.ProtocolFee)

	// The whole input, fee included, is owed back on the X side.
	owedX, owedY := res.Receipt.Owed()
	assert.Equal(t, uint64(1_000_000_000), owedX)
	assert.Zero(t, owedY)

	// The committed tick matches the committed price.
	wantTick, err := tickmath.TickAtSqrtPrice(res.SqrtPriceAfter)
	require.NoError(t, err)
	assert.Equal(t, wantTick, res.TickAfter)
	assert.Equal(t, wantTick, p.CurrentTick())

	require.NoError(t, p.Repay(res.Receipt, owedX, owedY))
	assert.False(t, p.Locked())

	growthX, growthY := p.FeeGrowthGlobal()
	assert.True(t, growthX.Sign() > 0)
	assert.Zero(t, growthY.Sign())
}

func TestSwapExactOut(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)

	res, err := p.Swap(SwapParams{
		XForY:          false,
		ExactIn:        false,
		Amount:         1_000_000,
		SqrtPriceLimit: unlimitedUp(),
	}, 10)
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000_000), res.AmountOut)
	assert.True(t, res.AmountIn > 0)
	assert.True(t, res.FeeAmount > 0)

	owedX, owedY := res.Receipt.Owed()
	assert.Zero(t, owedX)
	assert.Equal(t, res.AmountIn+res.FeeAmount, owedY)
	require.NoError(t, p.Repay(res.Receipt, 0, owedY))
}

func TestSwapStopsAtPriceLimit(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)

	limit := new(big.Int)
	require.NoError(t, tickmath.SqrtPriceAtTick(limit, -100))

	res, err := p.Swap(SwapParams{
		XForY:          true,
		ExactIn:        true,
		Amount:         1 << 60,
		SqrtPriceLimit: limit,
	}, 10)
	require.NoError(t, err)

	assert.Zero(t, res.SqrtPriceAfter.Cmp(limit))
	assert.True(t, res.AmountIn+res.FeeAmount < 1<<60)
	require.NoError(t, p.Repay(res.Receipt, res.AmountIn+res.FeeAmount, 0))
}

func TestSwapPriceLimitValidation(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)

	_, err := p.Swap(SwapParams{XForY: true, ExactIn: true, Amount: 1}, 0)
	assert.ErrorIs(t, err, ErrPriceLimitOutOfBounds)

	tooLow := new(big.Int).Sub(tickmath.MinSqrtPrice, big.NewInt(1))
	_, err = p.Swap(SwapParams{XForY: true, ExactIn: true, Amount: 1, SqrtPriceLimit: tooLow}, 0)
	assert.ErrorIs(t, err, ErrPriceLimitOutOfBounds)

	// Limit on the wrong side of the current price.
	_, err = p.Swap(SwapParams{XForY: true, ExactIn: true, Amount: 1, SqrtPriceLimit: unlimitedUp()}, 0)
	assert.ErrorIs(t, err, ErrPriceLimitExceeded)
	_, err = p.Swap(SwapParams{XForY: false, ExactIn: true, Amount: 1, SqrtPriceLimit: unlimitedDown()}, 0)
	assert.ErrorIs(t, err, ErrPriceLimitExceeded)

	assert.False(t, p.Locked())
}

func TestSwapLockDiscipline(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)

	res, err := p.Swap(SwapParams{
		XForY:          true,
		ExactIn:        true,
		Amount:         1_000_000,
		SqrtPriceLimit: unlimitedDown(),
	}, 10)
	require.NoError(t, err)
	assert.True(t, p.Locked())

	// Everything mutating is refused while the receipt is outstanding.
	_, _, err = p.ModifyLiquidity(testOwner, -10, 10, big.NewInt(1), 10)
	assert.ErrorIs(t, err, ErrPoolLocked)
	_, err = p.Swap(SwapParams{XForY: true, ExactIn: true, Amount: 1, SqrtPriceLimit: unlimitedDown()}, 10)
	assert.ErrorIs(t, err, ErrPoolLocked)
	assert.ErrorIs(t, p.SetFeeProtocol(5, 5), ErrPoolLocked)

	// Underpayment fails and keeps the lock.
	owedX, _ := res.Receipt.Owed()
	assert.ErrorIs(t, p.Repay(res.Receipt, owedX-1, 0), ErrInsufficientInput)
	assert.True(t, p.Locked())

	// A receipt from another pool is rejected outright.
	other := newTestPool(t, 500, 10)
	assert.ErrorIs(t, other.Repay(res.Receipt, owedX, 0), ErrReceiptMismatch)

	require.NoError(t, p.Repay(res.Receipt, owedX, 0))
	assert.False(t, p.Locked())

	// The receipt is single-use.
	assert.ErrorIs(t, p.Repay(res.Receipt, owedX, 0), ErrReceiptMismatch)
}

func TestSwapCrossesOutOfRange(t *testing.T) {
	p := newTestPool(t, 500, 10)
	_, _, err := p.ModifyLiquidity(testOwner, -100, 100, big.NewInt(2_000_000_000), 0)
	require.NoError(t, err)

	limit := new(big.Int)
	require.NoError(t, tickmath.SqrtPriceAtTick(limit, -200))

	res, err := p.Swap(SwapParams{
		XForY:          true,
		ExactIn:        true,
		Amount:         1 << 40,
		SqrtPriceLimit: limit,
	}, 10)
	require.NoError(t, err)
	require.NoError(t, p.Repay(res.Receipt, res.AmountIn+res.FeeAmount, 0))

	// The swap drained the range: it crossed the lower bound and ran
	// out of liquidity, then the price jumped to the limit for free.
	assert.Zero(t, p.Liquidity().Sign())
	assert.Equal(t, int32(-200), p.CurrentTick())
	assert.True(t, res.AmountIn+res.FeeAmount < 1<<40)

	// Swapping back up re-crosses the bound and restores the range's
	// liquidity.
	back, err := p.Swap(SwapParams{
		XForY:          false,
		ExactIn:        true,
		Amount:         1 << 40,
		SqrtPriceLimit: new(big.Int).Lsh(big.NewInt(1), 64),
	}, 20)
	require.NoError(t, err)
	require.NoError(t, p.Repay(back.Receipt, 0, back.AmountIn+back.FeeAmount))
	assert.Zero(t, p.Liquidity().Cmp(big.NewInt(2_000_000_000)))
}

func TestSwapWritesObservationOnTickMove(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)
	require.NoError(t, p.IncreaseObservationCardinality(2))

	res, err := p.Swap(SwapParams{
		XForY:          true,
		ExactIn:        true,
		Amount:         1_000_000_000,
		SqrtPriceLimit: unlimitedDown(),
	}, 10)
	require.NoError(t, err)
	require.NoError(t, p.Repay(res.Receipt, res.AmountIn+res.FeeAmount, 0))
	require.NotEqual(t, int32(0), p.CurrentTick())

	// The pre-swap state was recorded in the grown slot.
	ring := p.Observations()
	assert.Equal(t, uint16(1), ring.Index())
	assert.Equal(t, uint16(2), ring.Cardinality())
	obs := ring.At(1)
	assert.Equal(t, uint64(10), obs.Timestamp)
	assert.True(t, obs.Initialized)
}

func TestSwapProtocolFeeSkim(t *testing.T) {
	p := newTestPool(t, 500, 10)
	mintFullRange(t, p, 2_000_000_000, 0)
	require.NoError(t, p.SetFeeProtocol(5, 0))

	res, err := p.Swap(SwapParams{
		XForY:          true,
		ExactIn:        true,
		Amount:         1_000_000_000,
		SqrtPriceLimit: unlimitedDown(),
	}, 10)
	require.NoError(t, err)
	require.NoError(t, p.Repay(res.Receipt, res.AmountIn+res.FeeAmount, 0))

	// One fifth of each step's fee, rounded down per step.
	assert.True(t, res.ProtocolFee > 0)
	assert.True(t, res.ProtocolFee <= res.FeeAmount/5)

	feesX, feesY := p.ProtocolFees()
	assert.Equal(t, res.ProtocolFee, feesX)
	assert.Zero(t, feesY)

	// The Y side is not configured, so a reverse swap skims nothing.
	back, err := p.Swap(SwapParams{
		XForY:          false,
		ExactIn:        true,
		Amount:         1_000_000,
		SqrtPriceLimit: unlimitedUp(),
	}, 20)
	require.NoError(t, err)
	require.NoError(t, p.Repay(back.Receipt, 0, back.AmountIn+back.FeeAmount))
	assert.Zero(t, back.ProtocolFee)
}
