package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/michaelpento.lv/dexarb/flashloan"
	"github.com/michaelpento.lv/dexarb/types"
)

// Record inserts report and its steps in one transaction. Recording the same
// plan twice is an error; plans are single use. Only finished reports are
// accepted.
func (j *Journal) Record(ctx context.Context, report *types.ExecutionReport) error {
	if !report.State.Terminal() {
		return fmt.Errorf("postgres: plan %s not finished: state %q", report.PlanID, report.State)
	}
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (plan_id, pair, buy_venue, sell_venue, strategy, state, failed_at,
			amount_in, received, final_amount, realized_delta, dry_run, unsafe, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12, $13, $14, $15, $16)`,
		report.PlanID.String(), report.Pair, report.BuyVenue, report.SellVenue, string(report.Strategy),
		string(report.State), nullString(string(report.FailedAt)),
		numeric(report.AmountIn), numeric(report.Received), numeric(report.FinalAmount), numeric(report.RealizedDelta),
		report.DryRun, report.Unsafe, nullString(report.Error), report.StartedAt, report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}

	batch := &pgx.Batch{}
	for i, step := range report.Steps {
		batch.Queue(`
			INSERT INTO execution_steps (plan_id, seq, state, tx_hash, at, note)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			report.PlanID.String(), i, string(step.State), hash(step.TxHash), step.At, nullString(step.Note),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert execution steps: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// RecordLoan inserts one flash loan attempt.
func (j *Journal) RecordLoan(ctx context.Context, report *flashloan.LoanReport) error {
	var withdrawErr *string
	if report.WithdrawErr != nil {
		withdrawErr = nullString(report.WithdrawErr.Error())
	}
	_, err := j.pool.Exec(ctx, `
		INSERT INTO flash_loans (plan_id, pair, provider, asset, amount, state, tx_hash, residual, withdrawn,
			withdraw_tx, diagnostics, dry_run, error, withdraw_error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric, $9::numeric, $10, $11, $12, $13, $14, $15, $16)`,
		report.PlanID.String(), report.Pair, report.Provider, report.Asset.Hex(), numeric(report.Amount),
		string(report.State), hash(report.TxHash), numeric(report.Residual), numeric(report.Withdrawn),
		hash(report.WithdrawTx), nullString(report.Diagnostics), report.DryRun, nullString(report.Error),
		withdrawErr, report.StartedAt, report.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert flash loan: %w", err)
	}
	return nil
}

// Recent returns the latest limit executions, newest first, with their steps.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*types.ExecutionReport, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT plan_id::text, pair, buy_venue, sell_venue, strategy, state, COALESCE(failed_at, ''),
			amount_in::text, received::text, final_amount::text, realized_delta::text,
			dry_run, unsafe, COALESCE(error, ''), started_at, finished_at
		FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query executions: %w", err)
	}
	reports, err := pgx.CollectRows(rows, scanExecution)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan executions: %w", err)
	}

	for _, r := range reports {
		if r.Steps, err = j.steps(ctx, r.PlanID); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

func (j *Journal) steps(ctx context.Context, planID uuid.UUID) ([]types.StepRecord, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT state, COALESCE(tx_hash, ''), at, COALESCE(note, '')
		FROM execution_steps WHERE plan_id = $1 ORDER BY seq`, planID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: query steps %s: %w", planID, err)
	}
	steps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.StepRecord, error) {
		var (
			step         types.StepRecord
			state, txHex string
		)
		if err := row.Scan(&state, &txHex, &step.At, &step.Note); err != nil {
			return step, err
		}
		step.State = types.ExecutionState(state)
		if txHex != "" {
			step.TxHash = common.HexToHash(txHex)
		}
		return step, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan steps %s: %w", planID, err)
	}
	return steps, nil
}

func scanExecution(row pgx.CollectableRow) (*types.ExecutionReport, error) {
	var (
		r                                types.ExecutionReport
		id, strategy, state, failedAt    string
		amountIn, received, final, delta *string
		startedAt, finishedAt            time.Time
	)
	err := row.Scan(&id, &r.Pair, &r.BuyVenue, &r.SellVenue, &strategy, &state, &failedAt,
		&amountIn, &received, &final, &delta, &r.DryRun, &r.Unsafe, &r.Error, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if r.PlanID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	r.Strategy = types.Strategy(strategy)
	r.State = types.ExecutionState(state)
	r.FailedAt = types.ExecutionState(failedAt)
	r.AmountIn, r.Received, r.FinalAmount, r.RealizedDelta = parseBig(amountIn), parseBig(received), parseBig(final), parseBig(delta)
	r.StartedAt, r.FinishedAt = startedAt, finishedAt
	return &r, nil
}

func numeric(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseBig(s *string) *big.Int {
	if s == nil {
		return nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil
	}
	return v
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func hash(h common.Hash) *string {
	if h == (common.Hash{}) {
		return nil
	}
	return nullString(h.Hex())
}
