package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/big"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/defistate/clmm-engine-go/clmm/pool"
	"github.com/defistate/clmm-engine-go/clmm/tickmath"
	"github.com/defistate/clmm-engine-go/engine"
)

type simulateConfig struct {
	listenAddr  string
	interval    time.Duration
	seed        int64
	feeRate     uint
	tickSpacing int
}

func loadConfig() simulateConfig {
	var cfg simulateConfig
	flag.StringVar(&cfg.listenAddr, "listen", ":8791", "address for the metrics and feed endpoints")
	flag.DurationVar(&cfg.interval, "interval", 250*time.Millisecond, "delay between simulated operations")
	flag.Int64Var(&cfg.seed, "seed", 1, "workload random seed")
	flag.UintVar(&cfg.feeRate, "fee", 500, "pool fee rate in parts per million")
	flag.IntVar(&cfg.tickSpacing, "spacing", 10, "pool tick spacing")
	flag.Parse()
	return cfg
}

func main() {
	cfg := loadConfig()
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	fail := func(msg string, err error) {
		rootLogger.Error(msg, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prometheusRegistry := prometheus.NewRegistry()
	feed := engine.NewFeed(rootLogger.With("component", "feed"))
	registry, err := engine.NewRegistry(&engine.Config{
		Logger:   rootLogger.With("component", "registry"),
		Registry: prometheusRegistry,
		Feed:     feed,
	})
	if err != nil {
		fail("Failed to initialize registry", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheusRegistry, promhttp.HandlerOpts{}))
	mux.Handle("/feed", feed)
	server := &http.Server{Addr: cfg.listenAddr, Handler: mux}
	go func() {
		rootLogger.Info("serving", "addr", cfg.listenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rootLogger.Error("http server failed", "error", err)
			stop()
		}
	}()

	sim := &simulator{
		registry: registry,
		logger:   rootLogger.With("component", "simulator"),
		rng:      rand.New(rand.NewSource(cfg.seed)),
		owner:    common.HexToAddress("0x0000000000000000000000000000000000001337"),
		now:      uint64(time.Now().Unix()),
	}
	if err := sim.bootstrap(uint32(cfg.feeRate), int32(cfg.tickSpacing)); err != nil {
		fail("Failed to bootstrap pools", err)
	}

	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sim.step()
		case <-ctx.Done():
			rootLogger.Info("shutting down")
			feed.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
			return
		}
	}
}

// simulator drives a randomized workload against the engine: swaps in
// both directions, liquidity churn, and the occasional flash loan.
type simulator struct {
	registry *engine.Registry
	logger   *slog.Logger
	rng      *rand.Rand
	owner    common.Address
	now      uint64

	pools []engine.PoolID
}

func (s *simulator) bootstrap(feeRate uint32, tickSpacing int32) error {
	pairs := []engine.PoolKey{
		{
			CoinX:   common.HexToAddress("0x0000000000000000000000000000000000000afe"),
			CoinY:   common.HexToAddress("0x0000000000000000000000000000000000000bee"),
			FeeRate: feeRate,
		},
		{
			CoinX:   common.HexToAddress("0x0000000000000000000000000000000000000afe"),
			CoinY:   common.HexToAddress("0x0000000000000000000000000000000000000cab"),
			FeeRate: feeRate,
		},
	}

	for _, key := range pairs {
		id, err := s.registry.CreatePool(key, tickSpacing, new(big.Int).Lsh(big.NewInt(1), 64), s.now)
		if err != nil {
			return err
		}
		upper := (tickmath.MaxTick / tickSpacing) * tickSpacing
		if _, _, err := s.registry.ModifyLiquidity(id, s.owner, -upper, upper, big.NewInt(2_000_000_000), s.now); err != nil {
			return err
		}
		s.pools = append(s.pools, id)
	}
	return nil
}

func (s *simulator) step() {
	s.now++
	id := s.pools[s.rng.Intn(len(s.pools))]

	switch s.rng.Intn(10) {
	case 0:
		// Liquidity churn on a band around the current tick.
		if _, _, err := s.registry.ModifyLiquidity(id, s.owner, -2560, 2560, big.NewInt(int64(1+s.rng.Intn(1_000_000))), s.now); err != nil {
			s.logger.Warn("mint failed", "pool_id", id, "error", err)
		}
	case 1:
		if _, err := s.registry.Flash(id, uint64(1+s.rng.Intn(10_000_000)), 0, s.now); err != nil {
			s.logger.Warn("flash failed", "pool_id", id, "error", err)
		}
	default:
		xForY := s.rng.Intn(2) == 0
		limit := new(big.Int).Set(tickmath.MaxSqrtPrice)
		if xForY {
			limit = new(big.Int).Set(tickmath.MinSqrtPrice)
		}
		_, err := s.registry.Swap(id, pool.SwapParams{
			XForY:          xForY,
			ExactIn:        true,
			Amount:         uint64(1 + s.rng.Intn(50_000_000)),
			SqrtPriceLimit: limit,
		}, s.now)
		if err != nil {
			s.logger.Warn("swap failed", "pool_id", id, "error", err)
		}
	}
}
