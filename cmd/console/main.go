package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/defistate/clmm-engine-go/clmm/pool"
	"github.com/defistate/clmm-engine-go/clmm/tickmath"
	"github.com/defistate/clmm-engine-go/engine"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// Clock is a thread-safe simulated clock; every mutating command
// advances it by the configured step.
type Clock struct {
	mu   sync.Mutex
	now  uint64
	step uint64
}

func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

type consoleConfig struct {
	feeRate     uint
	tickSpacing int
	timeStep    uint64
	logPath     string
}

func loadConfig() consoleConfig {
	var cfg consoleConfig
	flag.UintVar(&cfg.feeRate, "fee", 500, "pool fee rate in parts per million")
	flag.IntVar(&cfg.tickSpacing, "spacing", 10, "pool tick spacing")
	flag.Uint64Var(&cfg.timeStep, "step", 10, "seconds the clock advances per command")
	flag.StringVar(&cfg.logPath, "log", "console.log", "log file path")
	flag.Parse()
	return cfg
}

type console struct {
	registry *engine.Registry
	differ   *engine.StateDiffer
	poolID   engine.PoolID
	owner    common.Address
	clock    *Clock

	// last state shown, for diffing on demand
	lastState *engine.State
}

func main() {
	cfg := loadConfig()

	logFile, err := os.OpenFile(cfg.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()
	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	fail := func(msg string, err error) {
		rootLogger.Error(msg, "error", err)
		fmt.Println("\n" + Red + msg + ": " + err.Error() + Reset)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prometheusRegistry := prometheus.NewRegistry()
	registry, err := engine.NewRegistry(&engine.Config{
		Logger:   rootLogger.With("component", "registry"),
		Registry: prometheusRegistry,
	})
	if err != nil {
		fail("Failed to initialize registry", err)
	}
	stateDiffer, err := engine.NewStateDiffer(&engine.StateDifferConfig{
		Logger:   rootLogger.With("component", "differ"),
		Registry: prometheusRegistry,
	})
	if err != nil {
		fail("Failed to initialize differ", err)
	}

	clock := &Clock{step: cfg.timeStep}
	key := engine.PoolKey{
		CoinX:   common.HexToAddress("0x0000000000000000000000000000000000000afe"),
		CoinY:   common.HexToAddress("0x0000000000000000000000000000000000000bee"),
		FeeRate: uint32(cfg.feeRate),
	}
	poolID, err := registry.CreatePool(key, int32(cfg.tickSpacing), new(big.Int).Lsh(big.NewInt(1), 64), clock.Now())
	if err != nil {
		fail("Failed to create pool", err)
	}

	c := &console{
		registry:  registry,
		differ:    stateDiffer,
		poolID:    poolID,
		owner:     common.HexToAddress("0x0000000000000000000000000000000000001337"),
		clock:     clock,
		lastState: registry.State(clock.Now()),
	}

	fmt.Println(Green + "CLMM engine console" + Reset)
	fmt.Printf("Pool %s | fee %d ppm | spacing %d\n", poolID.Hex()[:10], cfg.feeRate, cfg.tickSpacing)
	fmt.Println("Logs are being written to " + Gray + cfg.logPath + Reset)
	c.run(ctx)
}

func (c *console) run(ctx context.Context) {
	reader := bufio.NewReader(os.Stdin)
	for {
		if ctx.Err() != nil {
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}

		printMenu()
		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
		if !c.handleCommand(strings.TrimSpace(input), reader) {
			return
		}

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "CLMM ENGINE CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Pool Summary\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Mint Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Burn Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s4.%s Swap\n", Cyan, Reset)
	fmt.Printf(" %s5.%s Flash Loan\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Fund Reward\n", Cyan, Reset)
	fmt.Printf(" %s7.%s Collect Fees\n", Cyan, Reset)
	fmt.Printf(" %s8.%s Diff Since Last View\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (c *console) handleCommand(input string, reader *bufio.Reader) bool {
	switch input {
	case "1":
		c.printSummary()
	case "2":
		c.mint(reader)
	case "3":
		c.burn(reader)
	case "4":
		c.swap(reader)
	case "5":
		c.flash(reader)
	case "6":
		c.fundReward(reader)
	case "7":
		c.collectFees(reader)
	case "8":
		c.printDiff()
	case "q":
		fmt.Println(Yellow + "Bye." + Reset)
		return false
	default:
		fmt.Println(Yellow + "Unknown selection." + Reset)
	}
	return true
}

func (c *console) printSummary() {
	state := c.registry.State(c.clock.Now())
	snap := state.Pools[c.poolID]
	if snap == nil {
		fmt.Println(Red + "pool missing from state" + Reset)
		return
	}

	header("POOL SUMMARY")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Price (Y per X)\t%s\n", renderPrice(snap.SqrtPrice))
	fmt.Fprintf(w, "Sqrt price (Q64.64)\t%s\n", snap.SqrtPrice)
	fmt.Fprintf(w, "Current tick\t%d\n", snap.CurrentTick)
	fmt.Fprintf(w, "Active liquidity\t%s\n", snap.Liquidity)
	fmt.Fprintf(w, "Fee growth X / Y\t%s / %s\n", snap.FeeGrowthGlobalX, snap.FeeGrowthGlobalY)
	fmt.Fprintf(w, "Protocol fees X / Y\t%d / %d\n", snap.ProtocolFeesX, snap.ProtocolFeesY)
	fmt.Fprintf(w, "Initialized ticks\t%d\n", snap.InitializedTicks)
	fmt.Fprintf(w, "Positions\t%d\n", snap.Positions)
	fmt.Fprintf(w, "Reward streams\t%d\n", len(snap.Rewards))
	fmt.Fprintf(w, "Clock\t%d\n", state.Timestamp)
	w.Flush()

	if len(snap.Rewards) > 0 {
		header("REWARDS")
		rw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(rw, "COIN\tTOTAL\tALLOCATED\tENDS")
		for _, r := range snap.Rewards {
			fmt.Fprintf(rw, "%s\t%d\t%d\t%d\n", r.Coin.Hex()[:10], r.TotalReward, r.TotalAllocated, r.EndTime)
		}
		rw.Flush()
	}
	c.lastState = state
}

func (c *console) mint(reader *bufio.Reader) {
	lower := promptInt(reader, "Lower tick", -100)
	upper := promptInt(reader, "Upper tick", 100)
	amount := promptInt(reader, "Liquidity", 1_000_000_000)

	now := c.clock.Tick()
	amountX, amountY, err := c.registry.ModifyLiquidity(c.poolID, c.owner, int32(lower), int32(upper), big.NewInt(amount), now)
	if err != nil {
		fmt.Println(Red + "mint failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Minted."+Reset+" Deposit %d X + %d Y\n", amountX, amountY)
}

func (c *console) burn(reader *bufio.Reader) {
	lower := promptInt(reader, "Lower tick", -100)
	upper := promptInt(reader, "Upper tick", 100)
	amount := promptInt(reader, "Liquidity", 1_000_000_000)

	now := c.clock.Tick()
	amountX, amountY, err := c.registry.ModifyLiquidity(c.poolID, c.owner, int32(lower), int32(upper), big.NewInt(-amount), now)
	if err != nil {
		fmt.Println(Red + "burn failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Burned."+Reset+" Refund %d X + %d Y\n", amountX, amountY)
}

func (c *console) swap(reader *bufio.Reader) {
	direction := promptString(reader, "Direction (x/y = sell X, y/x = sell Y)", "x/y")
	amount := promptInt(reader, "Exact input amount", 1_000_000)

	xForY := direction != "y/x"
	limit := new(big.Int).Set(tickmath.MaxSqrtPrice)
	if xForY {
		limit = new(big.Int).Set(tickmath.MinSqrtPrice)
	}

	now := c.clock.Tick()
	res, err := c.registry.Swap(c.poolID, pool.SwapParams{
		XForY:          xForY,
		ExactIn:        true,
		Amount:         uint64(amount),
		SqrtPriceLimit: limit,
	}, now)
	if err != nil {
		fmt.Println(Red + "swap failed: " + err.Error() + Reset)
		return
	}

	header("SWAP RESULT")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Amount in\t%d\n", res.AmountIn)
	fmt.Fprintf(w, "Amount out\t%d\n", res.AmountOut)
	fmt.Fprintf(w, "Fee paid\t%d\n", res.FeeAmount)
	fmt.Fprintf(w, "New price\t%s\n", renderPrice(res.SqrtPriceAfter))
	fmt.Fprintf(w, "New tick\t%d\n", res.TickAfter)
	w.Flush()
}

func (c *console) flash(reader *bufio.Reader) {
	amountX := promptInt(reader, "Borrow X", 1_000_000)
	amountY := promptInt(reader, "Borrow Y", 0)

	now := c.clock.Tick()
	receipt, err := c.registry.Flash(c.poolID, uint64(amountX), uint64(amountY), now)
	if err != nil {
		fmt.Println(Red + "flash failed: " + err.Error() + Reset)
		return
	}
	feeX, feeY := receipt.Fees()
	fmt.Printf(Green+"Flash settled."+Reset+" Fees paid: %d X + %d Y\n", feeX, feeY)
}

func (c *console) fundReward(reader *bufio.Reader) {
	amount := promptInt(reader, "Reward budget", 1_000_000)
	duration := promptInt(reader, "Duration (seconds)", 3600)

	now := c.clock.Tick()
	coin := common.HexToAddress("0x0000000000000000000000000000000000000fee")
	if err := c.registry.AddReward(c.poolID, coin, uint64(amount), now+uint64(duration), now); err != nil {
		fmt.Println(Red + "reward funding failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Reward funded."+Reset+" %d over %d seconds\n", amount, duration)
}

func (c *console) collectFees(reader *bufio.Reader) {
	lower := promptInt(reader, "Lower tick", -100)
	upper := promptInt(reader, "Upper tick", 100)

	p, ok := c.registry.Pool(c.poolID)
	if !ok {
		fmt.Println(Red + "pool missing" + Reset)
		return
	}
	now := c.clock.Tick()
	collectedX, collectedY, err := p.CollectFees(c.owner, int32(lower), int32(upper), ^uint64(0), ^uint64(0), now)
	if err != nil {
		fmt.Println(Red + "collect failed: " + err.Error() + Reset)
		return
	}
	fmt.Printf(Green+"Collected."+Reset+" %d X + %d Y\n", collectedX, collectedY)
}

func (c *console) printDiff() {
	now := c.clock.Now()
	current := c.registry.State(now)
	diff, err := c.differ.Diff(c.lastState, current)
	if err != nil {
		fmt.Println(Red + "diff failed: " + err.Error() + Reset)
		return
	}

	header("CHANGES SINCE LAST VIEW")
	poolDiff, ok := diff.Pools[c.poolID]
	if !ok || poolDiff.IsEmpty() {
		fmt.Println(Gray + "No changes." + Reset)
		c.lastState = current
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if poolDiff.SqrtPrice != nil {
		fmt.Fprintf(w, "Sqrt price\t%s\n", *poolDiff.SqrtPrice)
	}
	if poolDiff.CurrentTick != nil {
		fmt.Fprintf(w, "Tick\t%d\n", *poolDiff.CurrentTick)
	}
	if poolDiff.Liquidity != nil {
		fmt.Fprintf(w, "Liquidity\t%s\n", *poolDiff.Liquidity)
	}
	if poolDiff.FeeGrowthGlobalX != nil {
		fmt.Fprintf(w, "Fee growth X\t%s\n", *poolDiff.FeeGrowthGlobalX)
	}
	if poolDiff.FeeGrowthGlobalY != nil {
		fmt.Fprintf(w, "Fee growth Y\t%s\n", *poolDiff.FeeGrowthGlobalY)
	}
	if poolDiff.InitializedTicks != nil {
		fmt.Fprintf(w, "Initialized ticks\t%d\n", *poolDiff.InitializedTicks)
	}
	if poolDiff.Positions != nil {
		fmt.Fprintf(w, "Positions\t%d\n", *poolDiff.Positions)
	}
	w.Flush()
	c.lastState = current
}

// renderPrice converts a Q64.64 square-root price to a human price
// with 12 decimal places.
func renderPrice(sqrtPrice *big.Int) string {
	squared := new(big.Int).Mul(sqrtPrice, sqrtPrice)
	scale := new(big.Int).Lsh(big.NewInt(1), 128)
	price := decimal.NewFromBigInt(squared, 0).DivRound(decimal.NewFromBigInt(scale, 0), 12)
	return price.String()
}

func promptInt(reader *bufio.Reader, label string, fallback int64) int64 {
	fmt.Printf("%s [%d]: ", label, fallback)
	input, err := reader.ReadString('\n')
	if err != nil {
		return fallback
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return fallback
	}
	value, err := strconv.ParseInt(input, 10, 64)
	if err != nil {
		fmt.Println(Yellow + "Invalid number, using default." + Reset)
		return fallback
	}
	return value
}

func promptString(reader *bufio.Reader, label, fallback string) string {
	fmt.Printf("%s [%s]: ", label, fallback)
	input, err := reader.ReadString('\n')
	if err != nil {
		return fallback
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return fallback
	}
	return input
}
