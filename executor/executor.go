package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/tokens"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/math"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger is the wallet's token surface.
type Ledger interface {
	Owner() common.Address
	TokenBalance(ctx context.Context, token common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context) (*big.Int, error)
	EnsureAllowance(ctx context.Context, token, spender common.Address, amount *big.Int, gasLimit uint64) (*ethtypes.Receipt, error)
	Wrap(ctx context.Context, wrapped common.Address, amount *big.Int, gasLimit uint64) (*ethtypes.Receipt, error)
}

// HeadReader supplies the latest block header for swap deadlines.
type HeadReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
}

// Executor runs one regular two-leg trade at a time from a single wallet.
type Executor struct {
	rc      config.RunConfig
	venues  map[string]dex.Venue
	ledger  Ledger
	tx      chain.Transactor
	head    HeadReader
	metrics *metrics.EngineMetrics
	logger  *zap.Logger

	// one plan in flight; nonces are per account
	mu    sync.Mutex
	spent map[uuid.UUID]struct{}
}

type Option func(*Executor)

func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithHeadReader sets the source of block time for swap deadlines. Without
// it the local clock is used.
func WithHeadReader(h HeadReader) Option {
	return func(e *Executor) {
		e.head = h
	}
}

// New creates an executor. In dry-run mode tx and the ledger's transactor
// are expected to simulate rather than broadcast.
func New(rc config.RunConfig, venues []dex.Venue, ledger Ledger, tx chain.Transactor, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		rc:     rc,
		venues: make(map[string]dex.Venue, len(venues)),
		ledger: ledger,
		tx:     tx,
		logger: logger,
		spent:  make(map[uuid.UUID]struct{}),
	}
	for _, v := range venues {
		e.venues[v.Name()] = v
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run carries the mutable state of one plan through the state machine.
type run struct {
	plan   types.ExecutionPlan
	report *types.ExecutionReport
	buy    dex.Venue
	sell   dex.Venue
	tier   config.GasTier
	owner  common.Address

	inputStart  *big.Int
	outputStart *big.Int
	received    *big.Int
}

// Execute drives plan from Validated to Settled. Any failure stops the
// machine where it is; nothing is retried and the plan cannot be reused.
func (e *Executor) Execute(ctx context.Context, plan types.ExecutionPlan) *types.ExecutionReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := &run{
		plan: plan,
		report: &types.ExecutionReport{
			PlanID:    plan.ID,
			Pair:      plan.Opportunity.Pair.Key(),
			BuyVenue:  plan.Opportunity.BuyVenue,
			SellVenue: plan.Opportunity.SellVenue,
			Strategy:  plan.Strategy,
			AmountIn:  plan.AmountIn,
			DryRun:    e.rc.Execution.DryRun,
			Unsafe:    plan.Unsafe,
			StartedAt: time.Now(),
		},
		tier:  e.rc.GasTier(plan.PositionUSD),
		owner: e.ledger.Owner(),
	}

	logger := e.logger.With(
		zap.String("plan", plan.ID.String()),
		zap.String("pair", r.report.Pair),
		zap.String("buy", r.report.BuyVenue),
		zap.String("sell", r.report.SellVenue))
	if plan.Unsafe {
		logger.Warn("Executing without a minimum output floor, plan is unsafe")
	}

	if _, used := e.spent[plan.ID]; used {
		return e.finish(r, types.StateValidated, types.Errorf(types.KindValidation, "validate", "plan %s already consumed", plan.ID), logger)
	}
	e.spent[plan.ID] = struct{}{}

	steps := []struct {
		state types.ExecutionState
		fn    func(context.Context, *run) error
	}{
		{types.StateValidated, e.validate},
		{types.StateApprovedBuy, e.approveBuy},
		{types.StateSwappedBuy, e.swapBuy},
		{types.StateApprovedSell, e.approveSell},
		{types.StateSwappedSell, e.swapSell},
		{types.StateSettled, e.settle},
	}
	for _, step := range steps {
		if err := step.fn(ctx, r); err != nil {
			return e.finish(r, step.state, err, logger)
		}
		r.report.State = step.state
	}

	return e.finish(r, "", nil, logger)
}

func (e *Executor) finish(r *run, failedAt types.ExecutionState, err error, logger *zap.Logger) *types.ExecutionReport {
	rep := r.report
	rep.FinishedAt = time.Now()

	if err != nil {
		rep.State = types.StateFailed
		rep.FailedAt = failedAt
		rep.Err = err
		rep.Error = err.Error()
		logger.Error("Execution failed",
			zap.String("at", string(failedAt)),
			zap.String("kind", types.KindOf(err).String()),
			zap.Error(err))
	} else {
		logger.Info("Execution settled",
			zap.Bool("dryRun", rep.DryRun),
			zap.String("amountIn", rep.AmountIn.String()),
			zap.String("final", bigString(rep.FinalAmount)),
			zap.String("realizedDelta", bigString(rep.RealizedDelta)))
	}

	if e.metrics != nil {
		e.metrics.Executions.WithLabelValues(string(rep.Strategy), string(rep.State)).Inc()
		if rep.State == types.StateSettled && rep.RealizedDelta != nil {
			delta, _ := tokens.ToDecimal(rep.RealizedDelta, r.plan.InputToken.Decimals).Float64()
			e.metrics.RealizedDelta.Set(delta)
		}
	}
	return rep
}

func (e *Executor) record(r *run, state types.ExecutionState, receipt *ethtypes.Receipt, note string) {
	step := types.StepRecord{State: state, At: time.Now(), Note: note}
	if receipt != nil {
		step.TxHash = receipt.TxHash
	}
	r.report.Steps = append(r.report.Steps, step)
}

// validate re-checks the opportunity against the safety policy, then the live
// price, then makes sure the input token is in the wallet.
func (e *Executor) validate(ctx context.Context, r *run) error {
	plan := r.plan
	opp := plan.Opportunity

	if plan.Strategy != types.StrategyRegular {
		return types.Errorf(types.KindValidation, "validate", "strategy %s is not executed here", plan.Strategy)
	}
	if opp.BuyVenue == opp.SellVenue {
		return types.Errorf(types.KindValidation, "validate", "buy and sell venue are both %s", opp.BuyVenue)
	}
	if !opp.SellPrice.GreaterThan(opp.BuyPrice) {
		return types.Errorf(types.KindValidation, "validate", "sell price %s not above buy price %s", opp.SellPrice, opp.BuyPrice)
	}
	det := e.rc.Detection
	if opp.ProfitPct.LessThan(det.MinProfitPct) || (det.MaxProfitPct.IsPositive() && opp.ProfitPct.GreaterThan(det.MaxProfitPct)) {
		return types.Errorf(types.KindValidation, "validate", "profit %s%% outside [%s, %s]", opp.ProfitPct.StringFixed(4), det.MinProfitPct, det.MaxProfitPct)
	}
	if plan.AmountIn == nil || plan.AmountIn.Sign() <= 0 {
		return types.Errorf(types.KindValidation, "validate", "empty input amount")
	}
	if err := e.safeMode(plan); err != nil {
		return err
	}

	var ok bool
	if r.buy, ok = e.venues[opp.BuyVenue]; !ok {
		return types.Errorf(types.KindValidation, "validate", "no router for venue %s", opp.BuyVenue)
	}
	if r.sell, ok = e.venues[opp.SellVenue]; !ok {
		return types.Errorf(types.KindValidation, "validate", "no router for venue %s", opp.SellVenue)
	}

	if err := e.checkLivePrice(ctx, r); err != nil {
		return err
	}
	if err := e.ensureInput(ctx, r); err != nil {
		return err
	}

	e.record(r, types.StateValidated, nil, "")
	return nil
}

func (e *Executor) safeMode(plan types.ExecutionPlan) error {
	sm := e.rc.SafeMode
	if !sm.Enabled {
		return nil
	}
	opp := plan.Opportunity

	if sm.MaxPositionUSD.IsPositive() && plan.PositionUSD.GreaterThan(sm.MaxPositionUSD) {
		return types.Errorf(types.KindValidation, "safe mode", "position %s USD above cap %s", plan.PositionUSD, sm.MaxPositionUSD)
	}
	if sm.MaxProfitPct.IsPositive() && opp.ProfitPct.GreaterThan(sm.MaxProfitPct) {
		return types.Errorf(types.KindValidation, "safe mode", "profit %s%% above cap %s%%", opp.ProfitPct.StringFixed(4), sm.MaxProfitPct)
	}
	if len(sm.AllowedSymbols) > 0 && !allowed(sm.AllowedSymbols, opp.Pair.Base.Symbol) && !allowed(sm.AllowedSymbols, opp.Pair.Quote.Symbol) {
		return types.Errorf(types.KindValidation, "safe mode", "pair %s has no allowed token", opp.Pair.Key())
	}
	return nil
}

func allowed(list []string, symbol string) bool {
	for _, s := range list {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

func (e *Executor) checkLivePrice(ctx context.Context, r *run) error {
	opp := r.plan.Opportunity
	live, err := r.buy.LivePrice(ctx, opp.BuyPool, opp.Pair)
	if err != nil {
		var typed *types.Error
		if errors.As(err, &typed) && typed.Kind == types.KindTransientFetch {
			return typed
		}
		return types.NewError(types.KindTransientFetch, "live price", err).WithVenue(opp.BuyVenue).WithPair(opp.Pair.Key())
	}

	deviation := live.Sub(opp.BuyPrice).Abs().Mul(decimal.NewFromInt(100)).DivRound(opp.BuyPrice, tokens.PriceScale)
	if deviation.GreaterThan(e.rc.Execution.LiveDeviationPct) {
		return types.Errorf(types.KindLivePriceDeviation, "live price",
			"live %s deviates %s%% from snapshot %s", live, deviation.StringFixed(2), opp.BuyPrice).
			WithVenue(opp.BuyVenue).WithPair(opp.Pair.Key())
	}
	return nil
}

// ensureInput wraps native currency when the input is the wrapped native
// token and the wallet is short, keeping the gas reserve untouched.
func (e *Executor) ensureInput(ctx context.Context, r *run) error {
	input := r.plan.InputToken
	balance, err := e.ledger.TokenBalance(ctx, input.Address)
	if err != nil {
		return types.NewError(types.KindTransientFetch, "input balance", err)
	}

	if balance.Cmp(r.plan.AmountIn) < 0 {
		shortfall := new(big.Int).Sub(r.plan.AmountIn, balance)
		if input.Address != e.rc.WrappedNative {
			return types.Errorf(types.KindValidation, "ensure input", "short %s %s", shortfall, input.Symbol)
		}

		native, err := e.ledger.NativeBalance(ctx)
		if err != nil {
			return types.NewError(types.KindTransientFetch, "native balance", err)
		}
		need := new(big.Int).Add(shortfall, reserve(e.rc.Execution.GasReserveWei))
		if native.Cmp(need) < 0 {
			return types.Errorf(types.KindValidation, "ensure input", "native balance %s cannot cover wrap of %s plus gas reserve", native, shortfall)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		receipt, err := e.ledger.Wrap(ctx, input.Address, shortfall, r.tier.ApproveGasLimit)
		if err != nil {
			return err
		}
		e.record(r, types.StateValidated, receipt, "wrapped "+shortfall.String())
		if !e.rc.Execution.DryRun {
			if balance, err = e.ledger.TokenBalance(ctx, input.Address); err != nil {
				return types.NewError(types.KindTransientFetch, "input balance", err)
			}
		}
	}

	r.inputStart = balance
	output, err := e.ledger.TokenBalance(ctx, r.plan.OutputToken.Address)
	if err != nil {
		return types.NewError(types.KindTransientFetch, "output balance", err)
	}
	r.outputStart = output
	return nil
}

func (e *Executor) approveBuy(ctx context.Context, r *run) error {
	return e.approve(ctx, r, types.StateApprovedBuy, r.plan.InputToken.Address, r.buy.Spender(), r.plan.AmountIn)
}

func (e *Executor) approveSell(ctx context.Context, r *run) error {
	return e.approve(ctx, r, types.StateApprovedSell, r.plan.OutputToken.Address, r.sell.Spender(), r.received)
}

func (e *Executor) approve(ctx context.Context, r *run, state types.ExecutionState, token, spender common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	receipt, err := e.ledger.EnsureAllowance(ctx, token, spender, amount, r.tier.ApproveGasLimit)
	if err != nil {
		return err
	}
	note := ""
	if receipt == nil {
		note = "allowance sufficient"
	}
	e.record(r, state, receipt, note)
	return nil
}

func (e *Executor) swapBuy(ctx context.Context, r *run) error {
	plan := r.plan
	receipt, err := e.swap(ctx, r, "buy", r.buy, plan.Opportunity.BuyPool, plan.InputToken, plan.OutputToken, plan.AmountIn, plan.MinAmountOut)
	if err != nil {
		return err
	}

	if e.rc.Execution.DryRun {
		r.received = e.quote(ctx, r.buy, plan.Opportunity.BuyPool, plan.InputToken.Address, plan.AmountIn, plan.ExpectedOut)
	} else {
		after, err := e.ledger.TokenBalance(ctx, plan.OutputToken.Address)
		if err != nil {
			return types.NewError(types.KindTransientFetch, "output balance", err)
		}
		r.received = new(big.Int).Sub(after, r.outputStart)
	}
	if r.received.Sign() <= 0 {
		return types.Errorf(types.KindTransaction, "buy swap", "received no %s", plan.OutputToken.Symbol)
	}
	r.report.Received = r.received

	e.record(r, types.StateSwappedBuy, receipt, "received "+r.received.String())
	return nil
}

func (e *Executor) swapSell(ctx context.Context, r *run) error {
	plan := r.plan
	expected := tokens.Convert(r.received, plan.OutputToken, plan.Opportunity.SellPrice, plan.InputToken)
	minOut := math.ApplySlippage(expected, e.rc.Execution.MaxSlippage)
	if plan.Unsafe {
		minOut = new(big.Int)
	}

	before, err := e.ledger.TokenBalance(ctx, plan.InputToken.Address)
	if err != nil {
		return types.NewError(types.KindTransientFetch, "input balance", err)
	}
	receipt, err := e.swap(ctx, r, "sell", r.sell, plan.Opportunity.SellPool, plan.OutputToken, plan.InputToken, r.received, minOut)
	note := ""
	if err != nil {
		// a simulated sell spends output the simulated buy never delivered
		if !e.rc.Execution.DryRun || !errors.Is(err, types.ErrTransaction) {
			return err
		}
		note = "simulation: " + err.Error() + "; "
	}

	if e.rc.Execution.DryRun {
		r.report.FinalAmount = e.quote(ctx, r.sell, plan.Opportunity.SellPool, plan.OutputToken.Address, r.received, expected)
	} else {
		after, err := e.ledger.TokenBalance(ctx, plan.InputToken.Address)
		if err != nil {
			return types.NewError(types.KindTransientFetch, "input balance", err)
		}
		r.report.FinalAmount = new(big.Int).Sub(after, before)
	}

	e.record(r, types.StateSwappedSell, receipt, note+"returned "+r.report.FinalAmount.String())
	return nil
}

func (e *Executor) swap(ctx context.Context, r *run, leg string, venue dex.Venue, pool types.PoolRef, in, out types.Token, amountIn, minOut *big.Int) (*ethtypes.Receipt, error) {
	deadline, err := e.deadline(ctx)
	if err != nil {
		return nil, err
	}
	req, err := venue.BuildSwap(dex.SwapRequest{
		Pool:         pool,
		TokenIn:      in.Address,
		TokenOut:     out.Address,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Recipient:    r.owner,
		Deadline:     deadline,
		GasLimit:     r.tier.SwapGasLimit,
	})
	if err != nil {
		return nil, types.NewError(types.KindValidation, leg+" swap", err).WithVenue(venue.Name())
	}
	req.Label = leg + " " + req.Label

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.tx.Send(ctx, req)
}

// quote prices a simulated leg. Venues that can quote are asked; otherwise
// the plan's expectation stands in.
func (e *Executor) quote(ctx context.Context, venue dex.Venue, pool types.PoolRef, tokenIn common.Address, amountIn, fallback *big.Int) *big.Int {
	q, ok := venue.(dex.Quoter)
	if !ok {
		return fallback
	}
	out, err := q.Quote(ctx, pool, tokenIn, amountIn)
	if err != nil || out.Sign() <= 0 {
		e.logger.Debug("Quote unavailable, using expected amount", zap.String("venue", venue.Name()), zap.Error(err))
		return fallback
	}
	return out
}

func (e *Executor) deadline(ctx context.Context) (*big.Int, error) {
	now := uint64(time.Now().Unix())
	if e.head != nil {
		head, err := e.head.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, types.NewError(types.KindTransientFetch, "latest header", err)
		}
		now = head.Time
	}
	return new(big.Int).SetUint64(now + e.rc.Execution.DeadlineSeconds), nil
}

// settle reports the realized change of the input token and optionally sells
// leftover output back into the input token.
func (e *Executor) settle(ctx context.Context, r *run) error {
	plan := r.plan
	rep := r.report

	if e.rc.Execution.DryRun {
		rep.RealizedDelta = new(big.Int).Sub(rep.FinalAmount, plan.AmountIn)
		e.record(r, types.StateSettled, nil, "simulated")
		return nil
	}

	note := ""
	if e.rc.Execution.SweepDust {
		swept, err := e.sweepDust(ctx, r)
		if err != nil {
			// the trade itself has settled; a failed sweep only leaves dust behind
			e.logger.Warn("Dust sweep failed", zap.String("plan", plan.ID.String()), zap.Error(err))
			note = "dust sweep failed: " + err.Error()
		} else if swept != nil {
			note = "swept " + swept.String() + " " + plan.OutputToken.Symbol
		}
	}

	end, err := e.ledger.TokenBalance(ctx, plan.InputToken.Address)
	if err != nil {
		return types.NewError(types.KindTransientFetch, "input balance", err)
	}
	rep.RealizedDelta = new(big.Int).Sub(end, r.inputStart)
	e.record(r, types.StateSettled, nil, note)
	return nil
}

func (e *Executor) sweepDust(ctx context.Context, r *run) (*big.Int, error) {
	plan := r.plan
	balance, err := e.ledger.TokenBalance(ctx, plan.OutputToken.Address)
	if err != nil {
		return nil, err
	}
	leftover := new(big.Int).Sub(balance, r.outputStart)
	if leftover.Sign() <= 0 {
		return nil, nil
	}

	quoteUSD, ok := e.rc.QuoteUSD(plan.InputToken.Address, e.rc.Costs.EthPriceUSD)
	if !ok {
		return nil, nil
	}
	value := tokens.ToDecimal(leftover, plan.OutputToken.Decimals).Mul(plan.Opportunity.SellPrice).Mul(quoteUSD)
	if value.LessThan(e.rc.Execution.DustMinUSD) {
		return nil, nil
	}

	if _, err := e.ledger.EnsureAllowance(ctx, plan.OutputToken.Address, r.sell.Spender(), leftover, r.tier.ApproveGasLimit); err != nil {
		return nil, err
	}
	expected := tokens.Convert(leftover, plan.OutputToken, plan.Opportunity.SellPrice, plan.InputToken)
	receipt, err := e.swap(ctx, r, "dust", r.sell, plan.Opportunity.SellPool, plan.OutputToken, plan.InputToken, leftover,
		math.ApplySlippage(expected, e.rc.Execution.MaxSlippage))
	if err != nil {
		return nil, err
	}
	e.record(r, types.StateSwappedSell, receipt, fmt.Sprintf("dust %s %s", leftover, plan.OutputToken.Symbol))
	return leftover, nil
}

func reserve(wei *big.Int) *big.Int {
	if wei == nil {
		return new(big.Int)
	}
	return wei
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
