// Package tickmath converts between tick indices and Q64.64 square-root
// prices. The mapping is price = 1.0001^(tick/2) scaled by 2^64,
// computed exactly with binary-exponentiation ladders so that the
// inverse direction can be answered by search rather than logarithm.
package tickmath

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

const (
	// MinTick is the minimum tick that may be passed to SqrtPriceAtTick.
	MinTick = int32(-443636)
	// MaxTick is the maximum tick that may be passed to SqrtPriceAtTick.
	MaxTick = int32(443636)
)

var (
	// MinSqrtPrice is SqrtPriceAtTick(MinTick).
	MinSqrtPrice = big.NewInt(4295048016)
	// MaxSqrtPrice is SqrtPriceAtTick(MaxTick).
	MaxSqrtPrice, _ = new(big.Int).SetString("79226673515401279992447579055", 10)

	ErrTickOutOfBounds  = errors.New("tick out of bounds")
	ErrPriceOutOfBounds = errors.New("sqrt price out of bounds")

	maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

	// q64One is 1 in Q64.64, the ratio at tick 0.
	q64One = uint256.NewInt(0).Lsh(uint256.NewInt(1), 64)
	// q96One is 1 in Q64.96, the seed for the positive-tick ladder.
	q96One = uint256.MustFromDecimal("79228162514264337593543950336")

	// negRatios[i] is sqrt(1.0001)^-(2^i) in Q64.64.
	negRatios = [20]*uint256.Int{
		uint256.NewInt(18445821805675392311),
		uint256.NewInt(18444899583751176498),
		uint256.NewInt(18443055278223354162),
		uint256.NewInt(18439367220385604838),
		uint256.NewInt(18431993317065449817),
		uint256.NewInt(18417254355718160513),
		uint256.NewInt(18387811781193591352),
		uint256.NewInt(18329067761203520168),
		uint256.NewInt(18212142134806087854),
		uint256.NewInt(17980523815641551639),
		uint256.NewInt(17526086738831147013),
		uint256.NewInt(16651378430235024244),
		uint256.NewInt(15030750278693429944),
		uint256.NewInt(12247334978882834399),
		uint256.NewInt(8131365268884726200),
		uint256.NewInt(3584323654723342297),
		uint256.NewInt(696457651847595233),
		uint256.NewInt(26294789957452057),
		uint256.NewInt(37481735321082),
		uint256.NewInt(76158723),
	}

	// posRatios[i] is sqrt(1.0001)^(2^i) in Q64.96.
	posRatios = [19]*uint256.Int{
		uint256.MustFromDecimal("79232123823359799118286999567"),
		uint256.MustFromDecimal("79236085330515764027303304731"),
		uint256.MustFromDecimal("79244008939048815603706035061"),
		uint256.MustFromDecimal("79259858533276714757314932305"),
		uint256.MustFromDecimal("79291567232598584799939703904"),
		uint256.MustFromDecimal("79355022692464371645785046466"),
		uint256.MustFromDecimal("79482085999252804386437311141"),
		uint256.MustFromDecimal("79736823300114093921829183326"),
		uint256.MustFromDecimal("80248749790819932309965073892"),
		uint256.MustFromDecimal("81282483887344747381513967011"),
		uint256.MustFromDecimal("83390072131320151908154831281"),
		uint256.MustFromDecimal("87770609709833776024991924138"),
		uint256.MustFromDecimal("97234110755111693312479820773"),
		uint256.MustFromDecimal("119332217159966728226237229890"),
		uint256.MustFromDecimal("179736315981702064433883588727"),
		uint256.MustFromDecimal("407748233172238350107850275304"),
		uint256.MustFromDecimal("2098478828474011932436660412517"),
		uint256.MustFromDecimal("55581415166113811149459800483533"),
		uint256.MustFromDecimal("38992368544603139932233054999993551"),
	}
)

// tickMath holds reusable objects to avoid memory allocations.
type tickMath struct {
	ratio *uint256.Int
	temp  *big.Int
}

var pool = sync.Pool{
	New: func() any {
		return &tickMath{
			ratio: new(uint256.Int),
			temp:  new(big.Int),
		}
	},
}

// SqrtPriceAtTick writes the Q64.64 square-root price for tick into dest.
func SqrtPriceAtTick(dest *big.Int, tick int32) error {
	if tick < MinTick || tick > MaxTick {
		return ErrTickOutOfBounds
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	if tick >= 0 {
		sqrtPriceAtPositiveTick(tm.ratio, tick)
	} else {
		sqrtPriceAtNegativeTick(tm.ratio, -tick)
	}

	tm.ratio.IntoBig(&dest)
	return nil
}

func sqrtPriceAtNegativeTick(ratio *uint256.Int, absTick int32) {
	if absTick&1 != 0 {
		ratio.Set(negRatios[0])
	} else {
		ratio.Set(q64One)
	}
	for i := 1; i < len(negRatios); i++ {
		if absTick&(1<<i) != 0 {
			ratio.Mul(ratio, negRatios[i]).Rsh(ratio, 64)
		}
	}
}

func sqrtPriceAtPositiveTick(ratio *uint256.Int, tick int32) {
	if tick&1 != 0 {
		ratio.Set(posRatios[0])
	} else {
		ratio.Set(q96One)
	}
	for i := 1; i < len(posRatios); i++ {
		if tick&(1<<i) != 0 {
			ratio.Mul(ratio, posRatios[i]).Rsh(ratio, 96)
		}
	}
	ratio.Rsh(ratio, 32)
}

// TickAtSqrtPrice returns the greatest tick whose square-root price is
// at most sqrtPrice. It uses a binary search, which keeps the two
// directions exact inverses of each other by construction.
func TickAtSqrtPrice(sqrtPrice *big.Int) (int32, error) {
	if sqrtPrice.Cmp(MinSqrtPrice) < 0 || sqrtPrice.Cmp(MaxSqrtPrice) > 0 {
		return 0, ErrPriceOutOfBounds
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	low, high := MinTick, MaxTick
	tick := MinTick
	for low <= high {
		mid := (low + high) / 2
		if err := SqrtPriceAtTick(tm.temp, mid); err != nil {
			return 0, err
		}
		if tm.temp.Cmp(sqrtPrice) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return tick, nil
}

// MaxLiquidityPerTick returns the cap on gross liquidity referencing a
// single tick, dividing the uint128 range evenly over all usable ticks
// for the given spacing.
func MaxLiquidityPerTick(tickSpacing int32) *big.Int {
	minUsable := (MinTick / tickSpacing) * tickSpacing
	maxUsable := (MaxTick / tickSpacing) * tickSpacing
	numTicks := int64((maxUsable-minUsable)/tickSpacing) + 1

	return new(big.Int).Div(maxUint128, big.NewInt(numTicks))
}
