// Package oracle records time-weighted observations of the pool's tick
// and liquidity in a ring buffer, and reconstructs cumulative values as
// of any instant within the retained window.
package oracle

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// MaxCardinality caps how far the ring may grow. It sits one below the
// uint16 ceiling so an over-cap request is still representable.
const MaxCardinality = 65534

var (
	ErrNotInitialized    = errors.New("oracle not initialized")
	ErrOldestObservation = errors.New("target predates the oldest observation")
	ErrCardinalityCap    = errors.New("observation cardinality cap exceeded")
)

// Observation is one ring slot. TickCumulative integrates tick over
// seconds; SecondsPerLiquidityCumulative integrates 2^64/max(1, L) and
// wraps at 2^256.
type Observation struct {
	Timestamp                     uint64
	TickCumulative                int64
	SecondsPerLiquidityCumulative *uint256.Int
	Initialized                   bool
}

func (o Observation) clone() Observation {
	o.SecondsPerLiquidityCumulative = new(uint256.Int).Set(o.SecondsPerLiquidityCumulative)
	return o
}

// transform rolls an observation forward to time at the given tick and
// liquidity, without storing it.
func transform(prev Observation, time uint64, tick int32, liquidity *big.Int) Observation {
	delta := time - prev.Timestamp

	divisor := uint256.NewInt(1)
	if liquidity.Sign() > 0 {
		divisor, _ = uint256.FromBig(liquidity)
	}
	perLiquidity := new(uint256.Int).Lsh(uint256.NewInt(delta), 64)
	perLiquidity.Div(perLiquidity, divisor)

	return Observation{
		Timestamp:                     time,
		TickCumulative:                prev.TickCumulative + int64(tick)*int64(delta),
		SecondsPerLiquidityCumulative: new(uint256.Int).Add(prev.SecondsPerLiquidityCumulative, perLiquidity),
		Initialized:                   true,
	}
}

// Ring is the growable observation buffer for one pool.
type Ring struct {
	slots           []Observation
	index           uint16
	cardinality     uint16
	cardinalityNext uint16
}

func NewRing() *Ring {
	return &Ring{}
}

func (r *Ring) Index() uint16           { return r.index }
func (r *Ring) Cardinality() uint16     { return r.cardinality }
func (r *Ring) CardinalityNext() uint16 { return r.cardinalityNext }

// At returns a copy of the slot at i.
func (r *Ring) At(i uint16) Observation {
	return r.slots[i].clone()
}

// Initialize seeds slot 0 at the given time with zeroed accumulators.
func (r *Ring) Initialize(time uint64) {
	r.slots = []Observation{{
		Timestamp:                     time,
		SecondsPerLiquidityCumulative: new(uint256.Int),
		Initialized:                   true,
	}}
	r.index = 0
	r.cardinality = 1
	r.cardinalityNext = 1
}

// Grow raises the ring's target cardinality. Slots are allocated
// eagerly with a placeholder timestamp; they become eligible for writes
// once the index wraps onto them.
func (r *Ring) Grow(next uint16) error {
	if r.cardinality == 0 {
		return ErrNotInitialized
	}
	if next <= r.cardinalityNext {
		return nil
	}
	if next > MaxCardinality {
		return ErrCardinalityCap
	}

	for i := r.cardinalityNext; i < next; i++ {
		r.slots = append(r.slots, Observation{
			Timestamp:                     1,
			SecondsPerLiquidityCumulative: new(uint256.Int),
		})
	}
	r.cardinalityNext = next
	return nil
}

// Write appends an observation for time, at most once per distinct
// second. The ring's live cardinality catches up with a pending Grow
// only when the index wraps, so readers never see a partially grown
// window.
func (r *Ring) Write(time uint64, tick int32, liquidity *big.Int) {
	last := r.slots[r.index]
	if last.Timestamp == time {
		return
	}

	cardinality := r.cardinality
	if r.cardinalityNext > r.cardinality && r.index == r.cardinality-1 {
		cardinality = r.cardinalityNext
	}

	index := (r.index + 1) % cardinality
	r.slots[index] = transform(last, time, tick, liquidity)
	r.index = index
	r.cardinality = cardinality
}

// ObserveSingle reconstructs the cumulative values as of secondsAgo
// before time. secondsAgo zero is answered from the last observation
// rolled forward to time; older targets are answered by binary search
// and, when the target falls between two samples, linear interpolation.
func (r *Ring) ObserveSingle(time uint64, secondsAgo uint64, tick int32, liquidity *big.Int) (int64, *uint256.Int, error) {
	if r.cardinality == 0 {
		return 0, nil, ErrNotInitialized
	}

	if secondsAgo == 0 {
		last := r.slots[r.index]
		if last.Timestamp != time {
			last = transform(last, time, tick, liquidity)
		}
		return last.TickCumulative, new(uint256.Int).Set(last.SecondsPerLiquidityCumulative), nil
	}

	if secondsAgo > time {
		return 0, nil, ErrOldestObservation
	}
	target := time - secondsAgo
	beforeOrAt, atOrAfter, err := r.surroundings(target, time, tick, liquidity)
	if err != nil {
		return 0, nil, err
	}

	switch {
	case target == beforeOrAt.Timestamp:
		return beforeOrAt.TickCumulative, new(uint256.Int).Set(beforeOrAt.SecondsPerLiquidityCumulative), nil
	case target == atOrAfter.Timestamp:
		return atOrAfter.TickCumulative, new(uint256.Int).Set(atOrAfter.SecondsPerLiquidityCumulative), nil
	default:
		spanDelta := int64(atOrAfter.Timestamp - beforeOrAt.Timestamp)
		targetDelta := int64(target - beforeOrAt.Timestamp)

		tickCumulative := beforeOrAt.TickCumulative +
			(atOrAfter.TickCumulative-beforeOrAt.TickCumulative)/spanDelta*targetDelta

		splDelta := new(uint256.Int).Sub(atOrAfter.SecondsPerLiquidityCumulative, beforeOrAt.SecondsPerLiquidityCumulative)
		splDelta.Mul(splDelta, uint256.NewInt(uint64(targetDelta)))
		splDelta.Div(splDelta, uint256.NewInt(uint64(spanDelta)))

		return tickCumulative, splDelta.Add(beforeOrAt.SecondsPerLiquidityCumulative, splDelta), nil
	}
}

// Observe answers a batch of look-back offsets in one call.
func (r *Ring) Observe(time uint64, secondsAgos []uint64, tick int32, liquidity *big.Int) ([]int64, []*uint256.Int, error) {
	tickCumulatives := make([]int64, len(secondsAgos))
	spls := make([]*uint256.Int, len(secondsAgos))
	for i, secondsAgo := range secondsAgos {
		var err error
		tickCumulatives[i], spls[i], err = r.ObserveSingle(time, secondsAgo, tick, liquidity)
		if err != nil {
			return nil, nil, err
		}
	}
	return tickCumulatives, spls, nil
}

// surroundings locates the observations bracketing target. When target
// is newer than the last write, the bracket's upper end is synthesized
// by rolling the last observation forward.
func (r *Ring) surroundings(target, time uint64, tick int32, liquidity *big.Int) (Observation, Observation, error) {
	beforeOrAt := r.slots[r.index]

	if beforeOrAt.Timestamp <= target {
		if beforeOrAt.Timestamp == target {
			return beforeOrAt, beforeOrAt, nil
		}
		return beforeOrAt, transform(beforeOrAt, target, tick, liquidity), nil
	}

	oldest := r.slots[(r.index+1)%r.cardinality]
	if !oldest.Initialized {
		oldest = r.slots[0]
	}
	if target < oldest.Timestamp {
		return Observation{}, Observation{}, ErrOldestObservation
	}

	return r.binarySearch(target)
}

// binarySearch walks the ring as a sorted array starting just past the
// write index, skipping slots that have never been written.
func (r *Ring) binarySearch(target uint64) (Observation, Observation, error) {
	left := uint64(r.index) + 1
	right := left + uint64(r.cardinality) - 1

	var beforeOrAt, atOrAfter Observation
	for left <= right {
		mid := (left + right) / 2
		beforeOrAt = r.slots[mid%uint64(r.cardinality)]

		if !beforeOrAt.Initialized {
			left = mid + 1
			continue
		}
		atOrAfter = r.slots[(mid+1)%uint64(r.cardinality)]

		if beforeOrAt.Timestamp <= target {
			if target <= atOrAfter.Timestamp {
				return beforeOrAt, atOrAfter, nil
			}
			left = mid + 1
		} else {
			right = mid - 1
		}
	}

	return Observation{}, Observation{}, ErrOldestObservation
}
