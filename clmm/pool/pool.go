// Package pool implements the CLMM pool state machine: it owns the
// current price, the in-range liquidity, the tick registry and bitmap,
// the oracle ring, and all fee and reward accumulators, and serializes
// every mutation behind an explicit reentrancy lock.
package pool

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/clmm-engine-go/clmm/oracle"
	"github.com/defistate/clmm-engine-go/clmm/position"
	"github.com/defistate/clmm-engine-go/clmm/swapmath"
	"github.com/defistate/clmm-engine-go/clmm/tick"
	"github.com/defistate/clmm-engine-go/clmm/tickmath"
)

// MaxFeeRate bounds the swap fee at 20%.
const MaxFeeRate = 200_000

var (
	ErrNotInitialized        = errors.New("pool not initialized")
	ErrAlreadyInitialized    = errors.New("pool already initialized")
	ErrPoolLocked            = errors.New("pool locked")
	ErrInvalidFeeRate        = errors.New("invalid fee rate")
	ErrInvalidTickSpacing    = errors.New("invalid tick spacing")
	ErrInvalidProtocolFee    = errors.New("protocol fee rate must be 0 or 4..10")
	ErrTicksOutOfOrder       = errors.New("tick bounds out of order")
	ErrPriceLimitOutOfBounds = errors.New("price limit out of bounds")
	ErrPriceLimitExceeded    = errors.New("price limit already exceeded")
	ErrInsufficientInput     = errors.New("insufficient input to cover debt")
	ErrReceiptSettled        = errors.New("receipt already settled")
	ErrReceiptMismatch       = errors.New("receipt belongs to another pool")
	ErrAmountOverflow        = errors.New("amount exceeds uint64")
	ErrPositionNotFound      = errors.New("position not found")
)

// Pool is one trading pair at one fee tier.
type Pool struct {
	CoinX common.Address
	CoinY common.Address

	feeRate      uint32
	tickSpacing  int32
	feeProtocolX uint8
	feeProtocolY uint8

	sqrtPrice   *big.Int
	currentTick int32
	liquidity   *big.Int

	feeGrowthGlobalX *big.Int
	feeGrowthGlobalY *big.Int
	protocolFeesX    uint64
	protocolFeesY    uint64

	rewards []*RewardInfo

	ticks        *tick.Manager
	observations *oracle.Ring
	positions    map[position.Key]*position.Position

	initialized  bool
	locked       bool
	pending      *Receipt
	pendingFlash *FlashReceipt
}

// New creates an uninitialized pool. No price is set until Initialize.
func New(coinX, coinY common.Address, feeRate uint32, tickSpacing int32) (*Pool, error) {
	if feeRate > MaxFeeRate {
		return nil, ErrInvalidFeeRate
	}
	if tickSpacing <= 0 || tickSpacing > tickmath.MaxTick {
		return nil, ErrInvalidTickSpacing
	}

	return &Pool{
		CoinX:            coinX,
		CoinY:            coinY,
		feeRate:          feeRate,
		tickSpacing:      tickSpacing,
		sqrtPrice:        new(big.Int),
		liquidity:        new(big.Int),
		feeGrowthGlobalX: new(big.Int),
		feeGrowthGlobalY: new(big.Int),
		ticks:            tick.NewManager(tickSpacing),
		observations:     oracle.NewRing(),
		positions:        make(map[position.Key]*position.Position),
	}, nil
}

// Initialize sets the starting price and seeds the oracle.
func (p *Pool) Initialize(sqrtPrice *big.Int, time uint64) error {
	if p.initialized {
		return ErrAlreadyInitialized
	}

	currentTick, err := tickmath.TickAtSqrtPrice(sqrtPrice)
	if err != nil {
		return err
	}

	p.sqrtPrice.Set(sqrtPrice)
	p.currentTick = currentTick
	p.observations.Initialize(time)
	p.initialized = true
	return nil
}

func (p *Pool) FeeRate() uint32    { return p.feeRate }
func (p *Pool) TickSpacing() int32 { return p.tickSpacing }
func (p *Pool) CurrentTick() int32 { return p.currentTick }
func (p *Pool) Locked() bool       { return p.locked }
func (p *Pool) Initialized() bool  { return p.initialized }

func (p *Pool) SqrtPrice() *big.Int {
	return new(big.Int).Set(p.sqrtPrice)
}

func (p *Pool) Liquidity() *big.Int {
	return new(big.Int).Set(p.liquidity)
}

func (p *Pool) FeeGrowthGlobal() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.feeGrowthGlobalX), new(big.Int).Set(p.feeGrowthGlobalY)
}

func (p *Pool) ProtocolFees() (uint64, uint64) {
	return p.protocolFeesX, p.protocolFeesY
}

func (p *Pool) FeeProtocol() (uint8, uint8) {
	return p.feeProtocolX, p.feeProtocolY
}

// Ticks exposes the registry read-only for inspection.
func (p *Pool) Ticks() *tick.Manager {
	return p.ticks
}

// Observations exposes the oracle ring.
func (p *Pool) Observations() *oracle.Ring {
	return p.observations
}

// SetFeeProtocol sets the two protocol fee denominators. A rate of n
// skims 1/n of every swap fee on that input side; zero disables the
// skim.
func (p *Pool) SetFeeProtocol(feeProtocolX, feeProtocolY uint8) error {
	if err := p.requireUnlocked(); err != nil {
		return err
	}
	for _, rate := range []uint8{feeProtocolX, feeProtocolY} {
		if rate != 0 && (rate < 4 || rate > 10) {
			return ErrInvalidProtocolFee
		}
	}
	p.feeProtocolX = feeProtocolX
	p.feeProtocolY = feeProtocolY
	return nil
}

// CollectProtocolFees withdraws accrued protocol fees, bounded by the
// requested amounts.
func (p *Pool) CollectProtocolFees(requestedX, requestedY uint64) (uint64, uint64, error) {
	if err := p.requireUnlocked(); err != nil {
		return 0, 0, err
	}
	takenX := min(requestedX, p.protocolFeesX)
	takenY := min(requestedY, p.protocolFeesY)
	p.protocolFeesX -= takenX
	p.protocolFeesY -= takenY
	return takenX, takenY, nil
}

// Observe reads the oracle accumulators at each of the given look-back
// offsets, interpolating against the current tick and liquidity.
func (p *Pool) Observe(time uint64, secondsAgos []uint64) ([]int64, []*uint256.Int, error) {
	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	return p.observations.Observe(time, secondsAgos, p.currentTick, p.liquidity)
}

// IncreaseObservationCardinality grows the oracle ring's target size.
func (p *Pool) IncreaseObservationCardinality(next uint16) error {
	if err := p.requireUnlocked(); err != nil {
		return err
	}
	return p.observations.Grow(next)
}

func (p *Pool) requireUnlocked() error {
	if !p.initialized {
		return ErrNotInitialized
	}
	if p.locked {
		return ErrPoolLocked
	}
	return nil
}

// lock flips the reentrancy flag. Any mutating entry point while a
// receipt is outstanding fails with ErrPoolLocked.
func (p *Pool) lock() {
	p.locked = true
}

func (p *Pool) unlock() {
	p.locked = false
	p.pending = nil
	p.pendingFlash = nil
}

// globals packages the live accumulators for the tick registry. The
// oracle fields are observed as of time at the given tick and
// liquidity.
func (p *Pool) globals(time uint64, atTick int32, liquidity *big.Int) *tick.Globals {
	tickCumulative, spl, err := p.observations.ObserveSingle(time, 0, atTick, liquidity)
	if err != nil {
		// Observe with secondsAgo zero on an initialized ring cannot
		// fail; an uninitialized pool never reaches here.
		tickCumulative, spl = 0, new(uint256.Int)
	}
	return &tick.Globals{
		FeeGrowthX:                    p.feeGrowthGlobalX,
		FeeGrowthY:                    p.feeGrowthGlobalY,
		RewardsGrowth:                 p.rewardsGrowthGlobal(),
		TickCumulative:                tickCumulative,
		SecondsPerLiquidityCumulative: spl,
		Seconds:                       time,
	}
}

// checkTickBounds validates an order-sensitive tick range.
func (p *Pool) checkTickBounds(tickLower, tickUpper int32) error {
	if tickLower >= tickUpper {
		return ErrTicksOutOfOrder
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return tickmath.ErrTickOutOfBounds
	}
	return nil
}

var feeDenominator = big.NewInt(swapmath.FeeDenominator)
