package engine

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/clmm-engine-go/clmm/pool"
)

var (
	ErrPoolExists   = errors.New("pool already registered for key")
	ErrPoolNotFound = errors.New("pool not found")
)

// Config holds the registry's dependencies.
type Config struct {
	Logger   Logger                // required
	Registry prometheus.Registerer // required
	Feed     *Feed                 // optional event broadcast
}

// validate checks if the configuration is valid, ensuring required
// dependencies are present.
func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	return nil
}

// Registry owns the engine's pools and serializes access to them.
// Pools themselves are single-threaded state machines; the registry's
// lock is what makes the engine safe for concurrent callers.
type Registry struct {
	mu      sync.RWMutex
	logger  Logger
	metrics *Metrics
	feed    *Feed

	pools map[PoolID]*pool.Pool
	keys  map[PoolID]PoolKey
}

// NewRegistry constructs a registry from a configuration, returning an
// error if the config is invalid.
func NewRegistry(cfg *Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Registry{
		logger:  cfg.Logger,
		metrics: NewMetrics(cfg.Registry),
		feed:    cfg.Feed,
		pools:   make(map[PoolID]*pool.Pool),
		keys:    make(map[PoolID]PoolKey),
	}, nil
}

// CreatePool registers and initializes a pool for the key.
func (r *Registry) CreatePool(key PoolKey, tickSpacing int32, sqrtPrice *big.Int, time uint64) (PoolID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := key.ID()
	if _, exists := r.pools[id]; exists {
		return PoolID{}, ErrPoolExists
	}

	p, err := pool.New(key.CoinX, key.CoinY, key.FeeRate, tickSpacing)
	if err != nil {
		return PoolID{}, err
	}
	if err := p.Initialize(sqrtPrice, time); err != nil {
		return PoolID{}, err
	}

	r.pools[id] = p
	r.keys[id] = key
	r.metrics.poolsCreated.Inc()
	r.logger.Info("pool created",
		"pool_id", id,
		"coin_x", key.CoinX,
		"coin_y", key.CoinY,
		"fee_rate", key.FeeRate,
		"tick_spacing", tickSpacing,
	)
	r.publish(Event{Type: "pool_created", PoolID: id, Timestamp: time})
	return id, nil
}

// Pool returns the registered pool. The caller must not use it
// concurrently with registry operations on the same pool.
func (r *Registry) Pool(id PoolID) (*pool.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[id]
	return p, ok
}

// Keys lists the registered pool keys by ID.
func (r *Registry) Keys() map[PoolID]PoolKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make(map[PoolID]PoolKey, len(r.keys))
	for id, key := range r.keys {
		keys[id] = key
	}
	return keys
}

// Swap executes a swap and settles its receipt in one step, as a
// fully funded caller would.
func (r *Registry) Swap(id PoolID, params pool.SwapParams, time uint64) (*pool.SwapResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}

	timer := prometheus.NewTimer(r.metrics.swapDuration)
	defer timer.ObserveDuration()

	res, err := p.Swap(params, time)
	if err != nil {
		if errors.Is(err, pool.ErrPoolLocked) {
			r.metrics.lockFailures.Inc()
		}
		return nil, err
	}
	owedX, owedY := res.Receipt.Owed()
	if err := p.Repay(res.Receipt, owedX, owedY); err != nil {
		// Full repayment of a fresh receipt cannot be refused; treat
		// anything else as a fatal pool state.
		r.logger.Error("swap receipt settlement failed", "pool_id", id, "error", err)
		return nil, err
	}

	direction := "x_for_y"
	if !params.XForY {
		direction = "y_for_x"
	}
	r.metrics.swaps.WithLabelValues(direction).Inc()
	r.logger.Debug("swap executed",
		"pool_id", id,
		"direction", direction,
		"amount_in", res.AmountIn,
		"amount_out", res.AmountOut,
		"fee", res.FeeAmount,
		"tick", res.TickAfter,
	)
	r.publish(Event{Type: "swap", PoolID: id, Timestamp: time, Payload: SwapEvent{
		XForY:     params.XForY,
		AmountIn:  res.AmountIn,
		AmountOut: res.AmountOut,
		FeeAmount: res.FeeAmount,
		SqrtPrice: res.SqrtPriceAfter.String(),
		Tick:      res.TickAfter,
	}})
	return res, nil
}

// ModifyLiquidity adjusts a position through the registry.
func (r *Registry) ModifyLiquidity(id PoolID, owner common.Address, tickLower, tickUpper int32, delta *big.Int, time uint64) (uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[id]
	if !ok {
		return 0, 0, ErrPoolNotFound
	}
	amountX, amountY, err := p.ModifyLiquidity(owner, tickLower, tickUpper, delta, time)
	if err != nil {
		if errors.Is(err, pool.ErrPoolLocked) {
			r.metrics.lockFailures.Inc()
		}
		return 0, 0, err
	}
	r.publish(Event{Type: "liquidity", PoolID: id, Timestamp: time, Payload: LiquidityEvent{
		Owner:     owner,
		TickLower: tickLower,
		TickUpper: tickUpper,
		Delta:     delta.String(),
		AmountX:   amountX,
		AmountY:   amountY,
	}})
	return amountX, amountY, nil
}

// Flash borrows and immediately settles a flash loan, paying the fee.
func (r *Registry) Flash(id PoolID, amountX, amountY uint64, time uint64) (*pool.FlashReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	receipt, err := p.Flash(amountX, amountY)
	if err != nil {
		if errors.Is(err, pool.ErrPoolLocked) {
			r.metrics.lockFailures.Inc()
		}
		return nil, err
	}
	owedX, owedY := receipt.Owed()
	if err := p.RepayFlash(receipt, owedX, owedY); err != nil {
		r.logger.Error("flash settlement failed", "pool_id", id, "error", err)
		return nil, err
	}
	r.metrics.flashes.Inc()
	r.publish(Event{Type: "flash", PoolID: id, Timestamp: time})
	return receipt, nil
}

// AddReward funds a reward schedule on the pool.
func (r *Registry) AddReward(id PoolID, coin common.Address, amount uint64, endTime, time uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[id]
	if !ok {
		return ErrPoolNotFound
	}
	return p.AddReward(coin, amount, endTime, time)
}

// State snapshots every pool into a broadcastable view.
func (r *Registry) State(time uint64) *State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := &State{
		Timestamp: time,
		Pools:     make(map[PoolID]*pool.Snapshot, len(r.pools)),
		Keys:      make(map[PoolID]PoolKey, len(r.keys)),
	}
	for id, p := range r.pools {
		state.Pools[id] = p.Snapshot()
		state.Keys[id] = r.keys[id]
	}
	return state
}

func (r *Registry) publish(event Event) {
	if r.feed != nil {
		r.feed.Publish(event)
	}
}
