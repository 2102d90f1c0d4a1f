package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/clmm-engine-go/clmm/pool"
	"github.com/defistate/clmm-engine-go/clmm/tickmath"
)

func TestPatchRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	id := createTestPool(t, r)
	upper := (tickmath.MaxTick / 10) * int32(10)
	_, _, err := r.ModifyLiquidity(id, testOwner, -upper, upper, big.NewInt(2_000_000_000), 0)
	require.NoError(t, err)

	before := r.State(0)
	_, err = r.Swap(id, pool.SwapParams{
		XForY:          true,
		ExactIn:        true,
		Amount:         1_000_000_000,
		SqrtPriceLimit: new(big.Int).Set(tickmath.MinSqrtPrice),
	}, 10)
	require.NoError(t, err)
	after := r.State(10)

	d := newTestDiffer(t)
	diff, err := d.Diff(before, after)
	require.NoError(t, err)

	patched, err := Patch(before, diff)
	require.NoError(t, err)

	// The patched view matches the real one on every diffed field.
	want, got := after.Pools[id], patched.Pools[id]
	assert.Zero(t, want.SqrtPrice.Cmp(got.SqrtPrice))
	assert.Equal(t, want.CurrentTick, got.CurrentTick)
	assert.Zero(t, want.FeeGrowthGlobalX.Cmp(got.FeeGrowthGlobalX))
	assert.Equal(t, want.ProtocolFeesX, got.ProtocolFeesX)
	assert.Equal(t, after.Timestamp, patched.Timestamp)

	// The previous state was not touched.
	assert.Zero(t, before.Pools[id].SqrtPrice.Cmp(new(big.Int).Lsh(big.NewInt(1), 64)))
}

func TestPatchAdditionsAndDeletions(t *testing.T) {
	r := newTestRegistry(t)
	empty := r.State(0)
	id := createTestPool(t, r)
	after := r.State(1)

	d := newTestDiffer(t)
	diff, err := d.Diff(empty, after)
	require.NoError(t, err)

	patched, err := Patch(empty, diff)
	require.NoError(t, err)
	require.Contains(t, patched.Pools, id)
	assert.Equal(t, testKey, patched.Keys[id])

	// Deleting brings it back to empty.
	back, err := d.Diff(after, &State{Timestamp: 2, Pools: map[PoolID]*pool.Snapshot{}})
	require.NoError(t, err)
	patched, err = Patch(after, back)
	require.NoError(t, err)
	assert.Empty(t, patched.Pools)
}

func TestPatchValidation(t *testing.T) {
	_, err := Patch(nil, &StateDiff{})
	assert.Error(t, err)
	_, err = Patch(&State{Timestamp: 3}, &StateDiff{FromTimestamp: 4})
	assert.Error(t, err)

	// A diff naming an unknown pool is rejected.
	var id PoolID
	_, err = Patch(
		&State{Timestamp: 0, Pools: map[PoolID]*pool.Snapshot{}},
		&StateDiff{Pools: map[PoolID]PoolDiff{id: {}}},
	)
	assert.Error(t, err)
}
