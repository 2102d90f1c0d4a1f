package engine

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/clmm-engine-go/clmm/pool"
)

// Patch applies a diff to a previous state and returns the resulting
// state.
//
// CONTRACT:
// 1. Immutability: the previous state is never mutated; the result is
//    built from copies.
// 2. The diff must have been produced from exactly this previous
//    state: FromTimestamp is checked against it.
func Patch(prev *State, diff *StateDiff) (*State, error) {
	if prev == nil || diff == nil {
		return nil, errors.New("patch requires both a previous state and a diff")
	}
	if prev.Timestamp != diff.FromTimestamp {
		return nil, fmt.Errorf("diff is from timestamp %d, state is at %d", diff.FromTimestamp, prev.Timestamp)
	}

	next := &State{
		Timestamp: diff.ToTimestamp,
		Pools:     make(map[PoolID]*pool.Snapshot, len(prev.Pools)),
		Keys:      make(map[PoolID]PoolKey, len(prev.Keys)),
	}
	for id, snap := range prev.Pools {
		next.Pools[id] = snap.Clone()
		next.Keys[id] = prev.Keys[id]
	}

	for _, id := range diff.PoolDeletions {
		delete(next.Pools, id)
		delete(next.Keys, id)
	}
	for id, addition := range diff.PoolAdditions {
		if addition.Snapshot == nil {
			return nil, fmt.Errorf("addition for pool %s carries no snapshot", id)
		}
		next.Pools[id] = addition.Snapshot.Clone()
		next.Keys[id] = addition.Key
	}

	for id, poolDiff := range diff.Pools {
		snap, ok := next.Pools[id]
		if !ok {
			return nil, fmt.Errorf("diff changes pool %s which is not in the previous state", id)
		}
		if err := applyPoolDiff(snap, poolDiff); err != nil {
			return nil, fmt.Errorf("pool %s: %w", id, err)
		}
	}
	return next, nil
}

func applyPoolDiff(snap *pool.Snapshot, diff PoolDiff) error {
	if diff.SqrtPrice != nil {
		if err := setBig(snap.SqrtPrice, *diff.SqrtPrice); err != nil {
			return err
		}
	}
	if diff.CurrentTick != nil {
		snap.CurrentTick = *diff.CurrentTick
	}
	if diff.Liquidity != nil {
		if err := setBig(snap.Liquidity, *diff.Liquidity); err != nil {
			return err
		}
	}
	if diff.FeeGrowthGlobalX != nil {
		if err := setBig(snap.FeeGrowthGlobalX, *diff.FeeGrowthGlobalX); err != nil {
			return err
		}
	}
	if diff.FeeGrowthGlobalY != nil {
		if err := setBig(snap.FeeGrowthGlobalY, *diff.FeeGrowthGlobalY); err != nil {
			return err
		}
	}
	if diff.ProtocolFeesX != nil {
		snap.ProtocolFeesX = *diff.ProtocolFeesX
	}
	if diff.ProtocolFeesY != nil {
		snap.ProtocolFeesY = *diff.ProtocolFeesY
	}
	if diff.InitializedTicks != nil {
		snap.InitializedTicks = *diff.InitializedTicks
	}
	if diff.Positions != nil {
		snap.Positions = *diff.Positions
	}
	if diff.Locked != nil {
		snap.Locked = *diff.Locked
	}
	return nil
}

func setBig(dest *big.Int, value string) error {
	if _, ok := dest.SetString(value, 10); !ok {
		return fmt.Errorf("malformed integer %q in diff", value)
	}
	return nil
}
