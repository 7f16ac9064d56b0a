package postgres

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/flashloan"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// journal connects to DEXARB_TEST_DATABASE_URL and skips without it.
func journal(t *testing.T) *Journal {
	dsn := os.Getenv("DEXARB_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DEXARB_TEST_DATABASE_URL not set")
	}
	j, err := New(context.Background(), config.PostgresConfig{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(j.Close)
	require.NoError(t, j.Migrate(context.Background()))
	return j
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.PostgresConfig{})
	assert.Error(t, err)
}

func TestNumericHelpers(t *testing.T) {
	assert.Nil(t, numeric(nil))
	assert.Equal(t, "-40160", *numeric(big.NewInt(-40160)))

	s := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	assert.Equal(t, s, parseBig(&s).String())
	assert.Nil(t, parseBig(nil))

	assert.Nil(t, nullString(""))
	assert.Nil(t, hash(common.Hash{}))
}

func TestRecordRejectsUnfinishedReport(t *testing.T) {
	j := &Journal{}
	for _, state := range []types.ExecutionState{types.StateValidated, types.StateSwappedBuy} {
		err := j.Record(context.Background(), &types.ExecutionReport{PlanID: uuid.New(), State: state})
		require.Error(t, err, state)
		assert.Contains(t, err.Error(), "not finished")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	j := journal(t)
	require.NoError(t, j.Migrate(context.Background()))
}

func TestRecordAndRecent(t *testing.T) {
	j := journal(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Millisecond).Add(time.Hour)
	report := &types.ExecutionReport{
		PlanID:    uuid.New(),
		Pair:      "WETH/USDC",
		BuyVenue:  "uniswap-v3",
		SellVenue: "sushiswap",
		Strategy:  types.StrategyRegular,
		State:     types.StateSettled,
		Steps: []types.StepRecord{
			{State: types.StateValidated, At: started},
			{State: types.StateSwappedBuy, TxHash: common.HexToHash("0x01"), At: started.Add(time.Second)},
			{State: types.StateSettled, At: started.Add(2 * time.Second), Note: "dust swept"},
		},
		AmountIn:      big.NewInt(5_000_000),
		Received:      big.NewInt(2_008_032_128_514_056),
		FinalAmount:   big.NewInt(5_040_160),
		RealizedDelta: big.NewInt(40_160),
		StartedAt:     started,
		FinishedAt:    started.Add(3 * time.Second),
	}
	require.NoError(t, j.Record(ctx, report))
	assert.Error(t, j.Record(ctx, report), "a plan is recorded once")

	recent, err := j.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	got := recent[0]
	assert.Equal(t, report.PlanID, got.PlanID)
	assert.Equal(t, types.StateSettled, got.State)
	assert.Empty(t, got.FailedAt)
	assert.Equal(t, "40160", got.RealizedDelta.String())
	assert.Equal(t, "2008032128514056", got.Received.String())
	require.Len(t, got.Steps, 3)
	assert.Equal(t, common.HexToHash("0x01"), got.Steps[1].TxHash)
	assert.Equal(t, "dust swept", got.Steps[2].Note)
}

func TestRecordLoan(t *testing.T) {
	j := journal(t)
	rep := &flashloan.LoanReport{
		PlanID:     uuid.New(),
		Pair:       "WETH/USDC",
		Provider:   "aave-v3",
		Asset:      common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		Amount:     big.NewInt(100_000_000_000),
		State:      flashloan.LoanReverted,
		TxHash:     common.HexToHash("0x02"),
		Error:      "loan callback: transaction reverted",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	}
	require.NoError(t, j.RecordLoan(context.Background(), rep))
}
