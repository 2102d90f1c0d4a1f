package tickmath

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqrtPriceAt(t *testing.T, tick int32) *big.Int {
	t.Helper()
	price := new(big.Int)
	require.NoError(t, SqrtPriceAtTick(price, tick))
	return price
}

func TestSqrtPriceAtTick_KnownValues(t *testing.T) {
	one := new(big.Int).Lsh(big.NewInt(1), 64)
	assert.Equal(t, 0, sqrtPriceAt(t, 0).Cmp(one))

	// Values adjacent to tick 0, one ladder step in each direction.
	assert.Equal(t, "18447666387855959850", sqrtPriceAt(t, 1).String())
	assert.Equal(t, "18445821805675392311", sqrtPriceAt(t, -1).String())
	assert.Equal(t, "18448588748116922571", sqrtPriceAt(t, 2).String())
	assert.Equal(t, "18444899583751176498", sqrtPriceAt(t, -2).String())
}

func TestSqrtPriceAtTick_Bounds(t *testing.T) {
	assert.Equal(t, 0, sqrtPriceAt(t, MinTick).Cmp(MinSqrtPrice))
	assert.Equal(t, 0, sqrtPriceAt(t, MaxTick).Cmp(MaxSqrtPrice))

	dest := new(big.Int)
	assert.ErrorIs(t, SqrtPriceAtTick(dest, MinTick-1), ErrTickOutOfBounds)
	assert.ErrorIs(t, SqrtPriceAtTick(dest, MaxTick+1), ErrTickOutOfBounds)
}

func TestTickAtSqrtPrice_Bounds(t *testing.T) {
	tick, err := TickAtSqrtPrice(MinSqrtPrice)
	require.NoError(t, err)
	assert.Equal(t, MinTick, tick)

	tick, err = TickAtSqrtPrice(MaxSqrtPrice)
	require.NoError(t, err)
	assert.Equal(t, MaxTick, tick)

	_, err = TickAtSqrtPrice(new(big.Int).Sub(MinSqrtPrice, big.NewInt(1)))
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)
	_, err = TickAtSqrtPrice(new(big.Int).Add(MaxSqrtPrice, big.NewInt(1)))
	assert.ErrorIs(t, err, ErrPriceOutOfBounds)
}

func TestTickPriceRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 2000; i++ {
		tick := int32(rng.Int63n(int64(MaxTick)*2+1)) + MinTick
		price := sqrtPriceAt(t, tick)

		back, err := TickAtSqrtPrice(price)
		require.NoError(t, err)
		assert.Equal(t, tick, back, "tick %d", tick)

		// Any price strictly inside the tick's interval maps back to
		// the same tick.
		if tick < MaxTick {
			bumped := new(big.Int).Add(price, big.NewInt(1))
			back, err = TickAtSqrtPrice(bumped)
			require.NoError(t, err)
			assert.Equal(t, tick, back)
		}
	}
}

func TestSqrtPriceAtTick_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	for i := 0; i < 2000; i++ {
		tick := int32(rng.Int63n(int64(MaxTick)*2)) + MinTick
		assert.Equal(t, -1, sqrtPriceAt(t, tick).Cmp(sqrtPriceAt(t, tick+1)), "tick %d", tick)
	}
}

func TestMaxLiquidityPerTick(t *testing.T) {
	assert.Equal(t, "3835161415588698631345301964810804", MaxLiquidityPerTick(10).String())

	// Wider spacing means fewer usable ticks and a larger per-tick cap.
	assert.Equal(t, 1, MaxLiquidityPerTick(200).Cmp(MaxLiquidityPerTick(10)))
}
