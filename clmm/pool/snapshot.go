package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is a self-contained copy of the pool's observable state.
// Nothing in it aliases live pool memory, so two snapshots taken at
// different times can be compared field by field.
type Snapshot struct {
	CoinX common.Address
	CoinY common.Address

	FeeRate      uint32
	TickSpacing  int32
	FeeProtocolX uint8
	FeeProtocolY uint8

	SqrtPrice   *big.Int
	CurrentTick int32
	Liquidity   *big.Int

	FeeGrowthGlobalX *big.Int
	FeeGrowthGlobalY *big.Int
	ProtocolFeesX    uint64
	ProtocolFeesY    uint64

	Rewards []RewardSnapshot

	InitializedTicks       int
	Positions              int
	ObservationIndex       uint16
	ObservationCardinality uint16

	Initialized bool
	Locked      bool
}

// RewardSnapshot mirrors one reward stream at snapshot time.
type RewardSnapshot struct {
	Coin               common.Address
	EmissionsPerSecond *big.Int
	GrowthGlobal       *big.Int
	TotalReward        uint64
	TotalAllocated     uint64
	LastUpdateTime     uint64
	EndTime            uint64
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	clone := *s
	clone.SqrtPrice = new(big.Int).Set(s.SqrtPrice)
	clone.Liquidity = new(big.Int).Set(s.Liquidity)
	clone.FeeGrowthGlobalX = new(big.Int).Set(s.FeeGrowthGlobalX)
	clone.FeeGrowthGlobalY = new(big.Int).Set(s.FeeGrowthGlobalY)
	clone.Rewards = make([]RewardSnapshot, len(s.Rewards))
	for i, r := range s.Rewards {
		clone.Rewards[i] = r
		clone.Rewards[i].EmissionsPerSecond = new(big.Int).Set(r.EmissionsPerSecond)
		clone.Rewards[i].GrowthGlobal = new(big.Int).Set(r.GrowthGlobal)
	}
	return &clone
}

// Snapshot captures the pool's current state.
func (p *Pool) Snapshot() *Snapshot {
	s := &Snapshot{
		CoinX:                  p.CoinX,
		CoinY:                  p.CoinY,
		FeeRate:                p.feeRate,
		TickSpacing:            p.tickSpacing,
		FeeProtocolX:           p.feeProtocolX,
		FeeProtocolY:           p.feeProtocolY,
		SqrtPrice:              new(big.Int).Set(p.sqrtPrice),
		CurrentTick:            p.currentTick,
		Liquidity:              new(big.Int).Set(p.liquidity),
		FeeGrowthGlobalX:       new(big.Int).Set(p.feeGrowthGlobalX),
		FeeGrowthGlobalY:       new(big.Int).Set(p.feeGrowthGlobalY),
		ProtocolFeesX:          p.protocolFeesX,
		ProtocolFeesY:          p.protocolFeesY,
		InitializedTicks:       p.ticks.Count(),
		Positions:              len(p.positions),
		ObservationIndex:       p.observations.Index(),
		ObservationCardinality: p.observations.Cardinality(),
		Initialized:            p.initialized,
		Locked:                 p.locked,
	}
	for _, reward := range p.rewards {
		s.Rewards = append(s.Rewards, RewardSnapshot{
			Coin:               reward.Coin,
			EmissionsPerSecond: new(big.Int).Set(reward.EmissionsPerSecond),
			GrowthGlobal:       new(big.Int).Set(reward.GrowthGlobal),
			TotalReward:        reward.TotalReward,
			TotalAllocated:     reward.TotalAllocated(),
			LastUpdateTime:     reward.LastUpdateTime,
			EndTime:            reward.EndTime,
		})
	}
	return s
}
