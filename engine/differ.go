package engine

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/clmm-engine-go/clmm/pool"
)

// StateDifferConfig holds the differ's dependencies.
type StateDifferConfig struct {
	Registry prometheus.Registerer // required
	Logger   Logger                // required
}

func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer compares two engine views pool by pool.
type StateDiffer struct {
	logger       Logger
	diffDuration prometheus.Histogram
}

// NewStateDiffer constructs a differ from a configuration, returning
// an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	diffDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "clmm",
		Name:      "state_diff_duration_seconds",
		Help:      "Wall time of a full engine state diff.",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	})
	cfg.Registry.MustRegister(diffDuration)
	return &StateDiffer{
		logger:       cfg.Logger,
		diffDuration: diffDuration,
	}, nil
}

// PoolDiff lists what changed in one pool between two snapshots.
// String fields carry big integers; nil pointers mean "unchanged".
type PoolDiff struct {
	SqrtPrice        *string `json:"sqrtPrice,omitempty"`
	CurrentTick      *int32  `json:"currentTick,omitempty"`
	Liquidity        *string `json:"liquidity,omitempty"`
	FeeGrowthGlobalX *string `json:"feeGrowthGlobalX,omitempty"`
	FeeGrowthGlobalY *string `json:"feeGrowthGlobalY,omitempty"`
	ProtocolFeesX    *uint64 `json:"protocolFeesX,omitempty"`
	ProtocolFeesY    *uint64 `json:"protocolFeesY,omitempty"`
	InitializedTicks *int    `json:"initializedTicks,omitempty"`
	Positions        *int    `json:"positions,omitempty"`
	Rewards          *int    `json:"rewards,omitempty"`
	Locked           *bool   `json:"locked,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d *PoolDiff) IsEmpty() bool {
	return d.SqrtPrice == nil &&
		d.CurrentTick == nil &&
		d.Liquidity == nil &&
		d.FeeGrowthGlobalX == nil &&
		d.FeeGrowthGlobalY == nil &&
		d.ProtocolFeesX == nil &&
		d.ProtocolFeesY == nil &&
		d.InitializedTicks == nil &&
		d.Positions == nil &&
		d.Rewards == nil &&
		d.Locked == nil
}

// PoolAddition carries everything needed to materialize a pool that
// appeared between two states.
type PoolAddition struct {
	Key      PoolKey        `json:"key"`
	Snapshot *pool.Snapshot `json:"snapshot"`
}

// StateDiff represents the changes from one engine view to another.
type StateDiff struct {
	FromTimestamp uint64                  `json:"fromTimestamp"`
	ToTimestamp   uint64                  `json:"toTimestamp"`
	PoolAdditions map[PoolID]PoolAddition `json:"poolAdditions,omitempty"`
	PoolDeletions []PoolID                `json:"poolDeletions,omitempty"`
	Pools         map[PoolID]PoolDiff     `json:"pools,omitempty"`
}

// Diff compares two engine states. Pools present in both are diffed
// field by field; membership changes are reported as additions and
// deletions.
func (d *StateDiffer) Diff(old, new *State) (*StateDiff, error) {
	timer := prometheus.NewTimer(d.diffDuration)
	defer timer.ObserveDuration()

	if old == nil || new == nil {
		return nil, errors.New("differ received nil state")
	}
	if new.Timestamp < old.Timestamp {
		return nil, fmt.Errorf("state moved backwards: %d -> %d", old.Timestamp, new.Timestamp)
	}

	diff := &StateDiff{
		FromTimestamp: old.Timestamp,
		ToTimestamp:   new.Timestamp,
		Pools:         make(map[PoolID]PoolDiff),
	}

	for id, newSnap := range new.Pools {
		oldSnap, ok := old.Pools[id]
		if !ok {
			if diff.PoolAdditions == nil {
				diff.PoolAdditions = make(map[PoolID]PoolAddition)
			}
			diff.PoolAdditions[id] = PoolAddition{Key: new.Keys[id], Snapshot: newSnap}
			continue
		}
		poolDiff := DiffSnapshots(oldSnap, newSnap)
		if !poolDiff.IsEmpty() {
			diff.Pools[id] = poolDiff
		}
	}
	for id := range old.Pools {
		if _, ok := new.Pools[id]; !ok {
			diff.PoolDeletions = append(diff.PoolDeletions, id)
		}
	}

	d.logger.Debug("state diff computed",
		"changed", len(diff.Pools),
		"added", len(diff.PoolAdditions),
		"deleted", len(diff.PoolDeletions),
	)
	return diff, nil
}

// DiffSnapshots compares two snapshots of the same pool.
func DiffSnapshots(old, new *pool.Snapshot) PoolDiff {
	var diff PoolDiff

	if old.SqrtPrice.Cmp(new.SqrtPrice) != 0 {
		s := new.SqrtPrice.String()
		diff.SqrtPrice = &s
	}
	if old.CurrentTick != new.CurrentTick {
		v := new.CurrentTick
		diff.CurrentTick = &v
	}
	if old.Liquidity.Cmp(new.Liquidity) != 0 {
		s := new.Liquidity.String()
		diff.Liquidity = &s
	}
	if old.FeeGrowthGlobalX.Cmp(new.FeeGrowthGlobalX) != 0 {
		s := new.FeeGrowthGlobalX.String()
		diff.FeeGrowthGlobalX = &s
	}
	if old.FeeGrowthGlobalY.Cmp(new.FeeGrowthGlobalY) != 0 {
		s := new.FeeGrowthGlobalY.String()
		diff.FeeGrowthGlobalY = &s
	}
	if old.ProtocolFeesX != new.ProtocolFeesX {
		v := new.ProtocolFeesX
		diff.ProtocolFeesX = &v
	}
	if old.ProtocolFeesY != new.ProtocolFeesY {
		v := new.ProtocolFeesY
		diff.ProtocolFeesY = &v
	}
	if old.InitializedTicks != new.InitializedTicks {
		v := new.InitializedTicks
		diff.InitializedTicks = &v
	}
	if old.Positions != new.Positions {
		v := new.Positions
		diff.Positions = &v
	}
	if len(old.Rewards) != len(new.Rewards) {
		v := len(new.Rewards)
		diff.Rewards = &v
	}
	if old.Locked != new.Locked {
		v := new.Locked
		diff.Locked = &v
	}
	return diff
}
