package flashloan

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/simulator"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"go.uber.org/zap"
)

const withdrawGasLimit = 100000

// Orchestrator opens flash loans whose callback trades the opportunity.
// Its only on-chain actions are the loan request and the residual withdrawal.
type Orchestrator struct {
	rc       config.RunConfig
	provider Provider
	tx       chain.Transactor
	sim      *simulator.Simulator
	metrics  *metrics.EngineMetrics
	logger   *zap.Logger
}

type Option func(*Orchestrator)

// WithSimulator enables revert diagnostics when FlashLoan.Diagnostics is set.
func WithSimulator(sim *simulator.Simulator) Option {
	return func(o *Orchestrator) {
		o.sim = sim
	}
}

func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func NewOrchestrator(rc config.RunConfig, provider Provider, tx chain.Transactor, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		rc:       rc,
		provider: provider,
		tx:       tx,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute requests one flash loan for plan. A reverted loan is a single
// loan callback failure; which leg failed is only looked into when
// diagnostics are enabled.
func (o *Orchestrator) Execute(ctx context.Context, plan types.ExecutionPlan) *LoanReport {
	rep := &LoanReport{
		PlanID:    plan.ID,
		Pair:      plan.Opportunity.Pair.Key(),
		Provider:  o.provider.Name(),
		Asset:     plan.InputToken.Address,
		Amount:    plan.AmountIn,
		DryRun:    o.rc.Execution.DryRun,
		StartedAt: time.Now(),
	}
	logger := o.logger.With(
		zap.String("plan", plan.ID.String()),
		zap.String("pair", rep.Pair),
		zap.String("provider", rep.Provider))

	req, err := o.prepare(ctx, plan)
	if err != nil {
		return o.finish(rep, LoanAborted, err, logger)
	}

	receipt, err := o.tx.Send(ctx, req)
	if receipt != nil {
		rep.TxHash = receipt.TxHash
	}
	if err != nil {
		// A receipt or a transaction error means the request may have reached
		// the chain, so it is never reported as aborted.
		if receipt == nil && !errors.Is(err, types.ErrTransaction) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return o.finish(rep, LoanAborted, err, logger)
		}
		if o.rc.FlashLoan.Diagnostics && o.sim != nil {
			rep.Diagnostics = o.diagnose(ctx, req)
		}
		return o.finish(rep, LoanReverted, types.NewError(types.KindLoanCallback, "flash loan", err).WithPair(rep.Pair), logger)
	}

	logger.Info("Flash loan completed", zap.String("tx", rep.TxHash.Hex()), zap.Bool("dryRun", rep.DryRun))
	if !rep.DryRun {
		o.withdraw(ctx, rep, logger)
	}
	return o.finish(rep, LoanCompleted, nil, logger)
}

// prepare resolves everything the callback needs up front. The receiver
// cannot look anything up mid-loan, so a missing fee tier aborts.
func (o *Orchestrator) prepare(ctx context.Context, plan types.ExecutionPlan) (chain.TxRequest, error) {
	opp := plan.Opportunity
	if plan.Strategy != types.StrategyFlashLoan {
		return chain.TxRequest{}, types.Errorf(types.KindValidation, "flash loan", "plan strategy is %s", plan.Strategy)
	}
	if opp.BuyPool.FeeTier == nil {
		return chain.TxRequest{}, types.Errorf(types.KindValidation, "flash loan", "missing fee tier for buy pool %s", opp.BuyPool.ID).
			WithVenue(opp.BuyVenue).WithPair(opp.Pair.Key())
	}
	if opp.SellPool.FeeTier == nil {
		return chain.TxRequest{}, types.Errorf(types.KindValidation, "flash loan", "missing fee tier for sell pool %s", opp.SellPool.ID).
			WithVenue(opp.SellVenue).WithPair(opp.Pair.Key())
	}
	if plan.AmountIn == nil || plan.AmountIn.Sign() <= 0 {
		return chain.TxRequest{}, types.Errorf(types.KindValidation, "flash loan", "empty loan amount")
	}

	premium, err := o.provider.PremiumPct(ctx)
	if err != nil {
		return chain.TxRequest{}, types.NewError(types.KindTransientFetch, "loan premium", err)
	}
	if premium.GreaterThan(o.rc.FlashLoan.FeePct) {
		return chain.TxRequest{}, types.Errorf(types.KindValidation, "flash loan",
			"pool premium %s above modeled fee %s", premium, o.rc.FlashLoan.FeePct)
	}

	req, err := o.provider.RequestLoan(LoanRequest{
		Asset:      plan.InputToken.Address,
		Amount:     plan.AmountIn,
		TokenIn:    plan.InputToken.Address,
		TokenOut:   plan.OutputToken.Address,
		BuyDex:     opp.BuyVenue,
		SellDex:    opp.SellVenue,
		BuyAmount:  plan.AmountIn,
		SellAmount: plan.ExpectedOut,
		BuyFee:     *opp.BuyPool.FeeTier,
		SellFee:    *opp.SellPool.FeeTier,
	})
	if err != nil {
		return chain.TxRequest{}, types.NewError(types.KindValidation, "flash loan", err)
	}
	req.GasLimit = o.rc.FlashLoan.GasLimit
	return req, nil
}

func (o *Orchestrator) diagnose(ctx context.Context, req chain.TxRequest) string {
	res, err := o.sim.Simulate(ctx, o.tx.Address(), req)
	if err != nil {
		return ""
	}
	if res.Success {
		return "replay succeeded against latest state"
	}
	return res.RevertReason
}

// withdraw pulls whatever the receiver kept after repaying the loan.
func (o *Orchestrator) withdraw(ctx context.Context, rep *LoanReport, logger *zap.Logger) {
	residual, err := o.provider.Residual(ctx, rep.Asset)
	if err != nil {
		rep.WithdrawErr = types.NewError(types.KindTransientFetch, "receiver balance", err)
		logger.Warn("Could not read receiver balance", zap.Error(err))
		return
	}
	rep.Residual = residual
	if residual.Sign() <= 0 {
		logger.Info("No residual profit in receiver")
		return
	}

	req, err := o.provider.Withdraw(rep.Asset, residual)
	if err != nil {
		rep.WithdrawErr = err
		return
	}
	req.GasLimit = withdrawGasLimit

	receipt, err := o.tx.Send(ctx, req)
	if receipt != nil {
		rep.WithdrawTx = receipt.TxHash
	}
	if err != nil {
		rep.WithdrawErr = err
		logger.Error("Residual withdrawal failed", zap.String("residual", residual.String()), zap.Error(err))
		return
	}
	rep.Withdrawn = new(big.Int).Set(residual)
	logger.Info("Residual withdrawn", zap.String("amount", residual.String()))
}

func (o *Orchestrator) finish(rep *LoanReport, state LoanState, err error, logger *zap.Logger) *LoanReport {
	rep.State = state
	rep.FinishedAt = time.Now()
	if err != nil {
		rep.Err = err
		rep.Error = err.Error()
		logger.Error("Flash loan failed",
			zap.String("state", string(state)),
			zap.String("kind", types.KindOf(err).String()),
			zap.String("diagnostics", rep.Diagnostics),
			zap.Error(err))
	}
	if o.metrics != nil {
		o.metrics.FlashLoans.WithLabelValues(string(state)).Inc()
	}
	return rep
}
