package engine

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"

	"github.com/defistate/clmm-engine-go/clmm/pool"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// PoolID identifies a pool across the engine. It is derived from the
// pool key, so the same pair and fee tier always map to the same ID.
type PoolID = common.Hash

// PoolKey is the unique coordinate of a pool: the ordered token pair
// plus the fee tier.
type PoolKey struct {
	CoinX   common.Address `json:"coinX"`
	CoinY   common.Address `json:"coinY"`
	FeeRate uint32         `json:"feeRate"`
}

// ID hashes the key into its engine-wide identifier.
func (k PoolKey) ID() PoolID {
	var buf [44]byte
	copy(buf[0:20], k.CoinX[:])
	copy(buf[20:40], k.CoinY[:])
	binary.BigEndian.PutUint32(buf[40:44], k.FeeRate)
	return PoolID(blake3.Sum256(buf[:]))
}

// State is the engine view broadcast to subscribers: every pool's
// snapshot as of Timestamp.
type State struct {
	Timestamp uint64                    `json:"timestamp"`
	Pools     map[PoolID]*pool.Snapshot `json:"pools"`
	Keys      map[PoolID]PoolKey        `json:"keys"`
}

// Event is one engine occurrence pushed over the feed.
type Event struct {
	Type      string `json:"type"` // "pool_created", "swap", "flash", "liquidity"
	PoolID    PoolID `json:"poolId"`
	Timestamp uint64 `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// SwapEvent is the payload of a "swap" event.
type SwapEvent struct {
	XForY     bool   `json:"xForY"`
	AmountIn  uint64 `json:"amountIn"`
	AmountOut uint64 `json:"amountOut"`
	FeeAmount uint64 `json:"feeAmount"`
	SqrtPrice string `json:"sqrtPrice"`
	Tick      int32  `json:"tick"`
}

// LiquidityEvent is the payload of a "liquidity" event.
type LiquidityEvent struct {
	Owner     common.Address `json:"owner"`
	TickLower int32          `json:"tickLower"`
	TickUpper int32          `json:"tickUpper"`
	Delta     string         `json:"delta"`
	AmountX   uint64         `json:"amountX"`
	AmountY   uint64         `json:"amountY"`
}
