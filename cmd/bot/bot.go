package bot

import (
	"context"
	"sync"
	"time"

	"github.com/michaelpento.lv/dexarb/aggregator"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/executor"
	"github.com/michaelpento.lv/dexarb/flashloan"
	"github.com/michaelpento.lv/dexarb/strategies/arbitrage"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GasPricer supplies the cycle's gas price.
type GasPricer interface {
	GasPriceGwei(ctx context.Context) decimal.Decimal
}

// Trader executes a regular plan with the caller's own funds.
type Trader interface {
	Execute(ctx context.Context, plan types.ExecutionPlan) *types.ExecutionReport
}

// Lender executes a flash loan plan.
type Lender interface {
	Execute(ctx context.Context, plan types.ExecutionPlan) *flashloan.LoanReport
}

// SnapshotStore publishes the latest snapshot.
type SnapshotStore interface {
	Put(ctx context.Context, snap *aggregator.Snapshot) error
}

// Cooldowns keeps a route from being traded again too soon.
type Cooldowns interface {
	Acquire(ctx context.Context, opp types.Opportunity, ttl time.Duration) (bool, error)
	Release(ctx context.Context, opp types.Opportunity) error
}

// Journal records every execution attempt.
type Journal interface {
	Record(ctx context.Context, report *types.ExecutionReport) error
	RecordLoan(ctx context.Context, report *flashloan.LoanReport) error
}

// CycleReport is the outcome of one aggregate, detect, estimate and execute pass.
type CycleReport struct {
	StartedAt     time.Time              `json:"startedAt"`
	Duration      time.Duration          `json:"duration"`
	Fingerprint   uint64                 `json:"fingerprint"`
	Entries       int                    `json:"entries"`
	VenueErrors   map[string]string      `json:"venueErrors,omitempty"`
	EthPriceUSD   decimal.Decimal        `json:"ethPriceUsd"`
	GasPriceGwei  decimal.Decimal        `json:"gasPriceGwei"`
	Opportunities []types.Opportunity    `json:"opportunities"`
	Profitable    []types.Opportunity    `json:"profitable"`
	Rejections    []arbitrage.Rejection  `json:"rejections,omitempty"`
	Skipped       []string               `json:"skipped,omitempty"`
	Execution     *types.ExecutionReport `json:"execution,omitempty"`
	Loan          *flashloan.LoanReport  `json:"loan,omitempty"`
}

type Option func(*Bot)

// WithTrader builds a trader per cycle from that cycle's RunConfig.
func WithTrader(build func(rc config.RunConfig) Trader) Option {
	return func(b *Bot) {
		b.trader = build
	}
}

// WithLender builds a flash loan orchestrator per cycle.
func WithLender(build func(rc config.RunConfig) Lender) Option {
	return func(b *Bot) {
		b.lender = build
	}
}

func WithSnapshotStore(s SnapshotStore) Option {
	return func(b *Bot) {
		b.snapshots = s
	}
}

func WithCooldowns(c Cooldowns) Option {
	return func(b *Bot) {
		b.cooldowns = c
	}
}

func WithJournal(j Journal) Option {
	return func(b *Bot) {
		b.journal = j
	}
}

func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(b *Bot) {
		b.metrics = m
	}
}

// Bot runs the scan cycle on a fixed interval and executes at most one
// opportunity per cycle.
type Bot struct {
	cfg       *config.Config
	agg       *aggregator.Aggregator
	gas       GasPricer
	trader    func(rc config.RunConfig) Trader
	lender    func(rc config.RunConfig) Lender
	snapshots SnapshotStore
	cooldowns Cooldowns
	journal   Journal
	metrics   *metrics.EngineMetrics
	logger    *zap.Logger

	mu     sync.RWMutex
	last   *CycleReport
	cycles int
	wg     sync.WaitGroup
}

// New creates a bot. Without a trader the bot only scans. Without a cooldown
// store routes cool down in process memory.
func New(cfg *config.Config, agg *aggregator.Aggregator, gas GasPricer, logger *zap.Logger, opts ...Option) *Bot {
	b := &Bot{
		cfg:       cfg,
		agg:       agg,
		gas:       gas,
		cooldowns: newMemoryCooldowns(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start runs a cycle immediately and then every Monitor.Interval until ctx is
// cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting arbitrage engine",
		zap.Strings("venues", b.agg.Venues()),
		zap.Duration("interval", b.cfg.Monitor.Interval),
		zap.Bool("execution", b.cfg.Execution.Enabled),
		zap.Bool("dryRun", b.cfg.Execution.DryRun))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.loop(ctx)
	}()
	return nil
}

// Stop waits for the running cycle to return.
func (b *Bot) Stop() {
	b.logger.Info("Stopping arbitrage engine...")
	b.wg.Wait()
}

func (b *Bot) loop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Monitor.Interval)
	defer ticker.Stop()

	for {
		b.RunCycle(ctx, true)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce scans without executing.
func (b *Bot) RunOnce(ctx context.Context) *CycleReport {
	return b.RunCycle(ctx, false)
}

// RunCycle reads a fresh RunConfig and runs one full pass. execute is further
// gated by Execution.Enabled. No single opportunity can fail the cycle.
func (b *Bot) RunCycle(ctx context.Context, execute bool) *CycleReport {
	rc := b.cfg.RunConfig()
	report := &CycleReport{StartedAt: time.Now(), VenueErrors: make(map[string]string)}

	snap := b.agg.Aggregate(ctx, rc)
	report.Fingerprint, report.Entries = snap.Fingerprint(), snap.Size()
	for venue, err := range snap.VenueErrors {
		report.VenueErrors[venue] = err.Error()
	}

	if eth, ok := snap.MedianPrice(rc.EthUSDPair); ok {
		rc = rc.WithEthPrice(eth)
	}
	report.EthPriceUSD = rc.Costs.EthPriceUSD
	report.GasPriceGwei = b.gas.GasPriceGwei(ctx)

	opps, rejections := arbitrage.NewDetector(rc.Detection, b.logger).Detect(snap)
	estimator := arbitrage.NewEstimator(rc, arbitrage.CostOverrides{})
	market := arbitrage.Market{GasPriceGwei: report.GasPriceGwei, EthPriceUSD: report.EthPriceUSD}
	for i := range opps {
		estimate := estimator.Estimate(opps[i], rc.Costs.PositionUSD, market)
		opps[i].Estimate = &estimate
	}
	report.Opportunities = opps
	report.Rejections = rejections
	report.Profitable = arbitrage.RankProfitable(opps)

	if b.snapshots != nil {
		if err := b.snapshots.Put(ctx, snap); err != nil {
			b.logger.Warn("Failed to cache snapshot", zap.Error(err))
		}
	}

	if execute && rc.Execution.Enabled && b.trader != nil && len(report.Profitable) > 0 {
		b.executeBest(ctx, rc, report)
	}

	report.Duration = time.Since(report.StartedAt)
	b.observe(report)

	b.mu.Lock()
	b.last = report
	b.cycles++
	b.mu.Unlock()

	b.logger.Info("Cycle finished",
		zap.Int("entries", report.Entries),
		zap.Int("opportunities", len(report.Opportunities)),
		zap.Int("profitable", len(report.Profitable)),
		zap.Duration("duration", report.Duration))
	return report
}

// strategyFor picks how to fund opp, or false when neither strategy applies.
func (b *Bot) strategyFor(rc config.RunConfig, opp types.Opportunity) (types.Strategy, bool) {
	est := opp.Estimate
	flashAllowed := rc.FlashLoan.Enabled && !rc.SafeMode.Enabled && b.lender != nil
	if est.Best == types.StrategyFlashLoan && flashAllowed {
		return types.StrategyFlashLoan, true
	}
	if est.Regular.IsProfitable {
		return types.StrategyRegular, true
	}
	return "", false
}

func (b *Bot) executeBest(ctx context.Context, rc config.RunConfig, report *CycleReport) {
	for _, opp := range report.Profitable {
		if ctx.Err() != nil {
			return
		}
		logger := b.logger.With(
			zap.String("pair", opp.Pair.Key()),
			zap.String("buy", opp.BuyVenue),
			zap.String("sell", opp.SellVenue))

		strategy, ok := b.strategyFor(rc, opp)
		if !ok {
			report.Skipped = append(report.Skipped, opp.Pair.Key()+": flash loan only")
			continue
		}

		plan, err := executor.NewPlan(opp, strategy, rc)
		if err != nil {
			logger.Warn("Failed to plan opportunity", zap.Error(err))
			report.Skipped = append(report.Skipped, opp.Pair.Key()+": "+err.Error())
			continue
		}

		if rc.Execution.Cooldown > 0 {
			acquired, err := b.cooldowns.Acquire(ctx, opp, rc.Execution.Cooldown)
			if err != nil {
				logger.Warn("Cooldown unavailable, skipping", zap.Error(err))
				report.Skipped = append(report.Skipped, opp.Pair.Key()+": cooldown unavailable")
				continue
			}
			if !acquired {
				report.Skipped = append(report.Skipped, opp.Pair.Key()+": cooling down")
				continue
			}
		}

		if strategy == types.StrategyFlashLoan {
			b.runLoan(ctx, rc, opp, plan, report, logger)
		} else {
			b.runTrade(ctx, rc, opp, plan, report, logger)
		}
		return
	}
}

func (b *Bot) runTrade(ctx context.Context, rc config.RunConfig, opp types.Opportunity, plan types.ExecutionPlan, report *CycleReport, logger *zap.Logger) {
	exec := b.trader(rc).Execute(ctx, plan)
	report.Execution = exec

	// nothing was broadcast, so the route is free again
	if exec.State == types.StateFailed && exec.FailedAt == types.StateValidated {
		b.release(opp, logger)
	}
	if b.journal != nil {
		if err := b.journal.Record(ctx, exec); err != nil {
			logger.Error("Failed to journal execution", zap.Error(err))
		}
	}
}

func (b *Bot) runLoan(ctx context.Context, rc config.RunConfig, opp types.Opportunity, plan types.ExecutionPlan, report *CycleReport, logger *zap.Logger) {
	loan := b.lender(rc).Execute(ctx, plan)
	report.Loan = loan

	if loan.State == flashloan.LoanAborted {
		b.release(opp, logger)
	}
	if b.journal != nil {
		if err := b.journal.RecordLoan(ctx, loan); err != nil {
			logger.Error("Failed to journal flash loan", zap.Error(err))
		}
	}
}

func (b *Bot) release(opp types.Opportunity, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.cooldowns.Release(ctx, opp); err != nil {
		logger.Warn("Failed to release cooldown", zap.Error(err))
	}
}

func (b *Bot) observe(report *CycleReport) {
	if b.metrics == nil {
		return
	}
	b.metrics.Cycles.Inc()
	b.metrics.CycleDuration.Observe(report.Duration.Seconds())
	b.metrics.OpportunitiesDetected.Add(float64(len(report.Opportunities)))
	b.metrics.ProfitableOpps.Add(float64(len(report.Profitable)))
	for _, r := range report.Rejections {
		b.metrics.OpportunitiesRejected.WithLabelValues(r.Kind.String()).Inc()
	}
	gwei, _ := report.GasPriceGwei.Float64()
	b.metrics.GasPriceGwei.Set(gwei)
	eth, _ := report.EthPriceUSD.Float64()
	b.metrics.EthPriceUSD.Set(eth)
}

// Last returns the most recent cycle report and the number of cycles run.
func (b *Bot) Last() (*CycleReport, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.cycles
}

// memoryCooldowns is the in-process fallback when no shared store is configured.
type memoryCooldowns struct {
	mu    sync.Mutex
	until map[uint64]time.Time
}

func newMemoryCooldowns() *memoryCooldowns {
	return &memoryCooldowns{until: make(map[uint64]time.Time)}
}

func (m *memoryCooldowns) Acquire(ctx context.Context, opp types.Opportunity, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	key := opp.Fingerprint()
	if until, ok := m.until[key]; ok && now.Before(until) {
		return false, nil
	}
	m.until[key] = now.Add(ttl)
	return true, nil
}

func (m *memoryCooldowns) Release(ctx context.Context, opp types.Opportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.until, opp.Fingerprint())
	return nil
}
