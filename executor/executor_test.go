package executor

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	weth  = types.Token{Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Symbol: "WETH", Decimals: 18}
	usdc  = types.Token{Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Symbol: "USDC", Decimals: 6}
	cbeth = types.Token{Address: common.HexToAddress("0x2Ae3F1Ec7F1F5012CFEab0185bfc7aa3cf0DEc22"), Symbol: "cbETH", Decimals: 18}

	owner       = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alphaRouter = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	betaRouter  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func amount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad amount " + s)
	}
	return v
}

func testRunConfig() config.RunConfig {
	return config.RunConfig{
		WrappedNative: weth.Address,
		Tokens:        []types.Token{weth, usdc, cbeth},
		Stables:       []common.Address{usdc.Address},
		Detection: config.Detection{
			MinProfitPct: dec("0.1"),
			MaxProfitPct: dec("20"),
		},
		Costs: config.Costs{
			PositionUSD: dec("5"),
			EthPriceUSD: dec("2500"),
			GasTiers:    []config.GasTier{{MaxPositionUSD: dec("1000"), SwapGasLimit: 150000, ApproveGasLimit: 50000}},
		},
		Execution: config.Execution{
			MaxSlippage:      dec("0.01"),
			LiveDeviationPct: dec("5"),
			DustMinUSD:       dec("1"),
			GasReserveWei:    amount("500000000000000"),
			DeadlineSeconds:  300,
		},
	}
}

func wethUSDCOpportunity() types.Opportunity {
	return types.Opportunity{
		Pair:      types.Pair{Base: weth, Quote: usdc},
		BuyVenue:  "alpha",
		SellVenue: "beta",
		BuyPrice:  dec("2490"),
		SellPrice: dec("2510"),
		ProfitPct: dec("0.803212851405622490"),
		BuyPool:   types.PoolRef{Venue: "alpha", ID: "pool-a", Address: common.HexToAddress("0x00000000000000000000000000000000000000a2")},
		SellPool:  types.PoolRef{Venue: "beta", ID: "pool-b", Address: common.HexToAddress("0x00000000000000000000000000000000000000b2")},
	}
}

// fakeVenue moves balances on the fake chain when its swap is sent.
type fakeVenue struct {
	name    string
	router  common.Address
	live    decimal.Decimal
	liveErr error
	// outs and pulls are consumed per swap; the last entry repeats and a
	// nil pull spends the full input
	outs   []*big.Int
	pulls  []*big.Int
	swaps  int
	builds []dex.SwapRequest
}

func (v *fakeVenue) Name() string            { return v.name }
func (v *fakeVenue) Kind() dex.Kind          { return dex.KindConstantProduct }
func (v *fakeVenue) Spender() common.Address { return v.router }

func (v *fakeVenue) FetchPrices(ctx context.Context, q dex.Query) ([]dex.Result, error) {
	return nil, nil
}

func (v *fakeVenue) LivePrice(ctx context.Context, pool types.PoolRef, pair types.Pair) (decimal.Decimal, error) {
	return v.live, v.liveErr
}

func (v *fakeVenue) BuildSwap(req dex.SwapRequest) (chain.TxRequest, error) {
	v.builds = append(v.builds, req)
	return chain.TxRequest{To: v.router, GasLimit: req.GasLimit, Label: "swap " + v.name}, nil
}

func (v *fakeVenue) next(list []*big.Int) *big.Int {
	if len(list) == 0 {
		return nil
	}
	if v.swaps < len(list) {
		return list[v.swaps]
	}
	return list[len(list)-1]
}

type quotingVenue struct {
	*fakeVenue
	quote *big.Int
}

func (q *quotingVenue) Quote(ctx context.Context, pool types.PoolRef, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	return q.quote, nil
}

// fakeChain is both the ledger and the transactor of one wallet.
type fakeChain struct {
	balances   map[common.Address]*big.Int
	native     *big.Int
	allowances map[[2]common.Address]*big.Int
	venues     map[common.Address]*fakeVenue
	failOn     string
	sent       []chain.TxRequest
}

func newFakeChain(venues ...*fakeVenue) *fakeChain {
	c := &fakeChain{
		balances:   make(map[common.Address]*big.Int),
		native:     new(big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
		venues:     make(map[common.Address]*fakeVenue),
	}
	for _, v := range venues {
		c.venues[v.router] = v
	}
	return c
}

func (c *fakeChain) balance(token common.Address) *big.Int {
	if b, ok := c.balances[token]; ok {
		return b
	}
	return new(big.Int)
}

func (c *fakeChain) labels() []string {
	var out []string
	for _, r := range c.sent {
		out = append(out, r.Label)
	}
	return out
}

func (c *fakeChain) Owner() common.Address   { return owner }
func (c *fakeChain) Address() common.Address { return owner }

func (c *fakeChain) TokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	return new(big.Int).Set(c.balance(token)), nil
}

func (c *fakeChain) NativeBalance(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.native), nil
}

func (c *fakeChain) EnsureAllowance(ctx context.Context, token, spender common.Address, amount *big.Int, gasLimit uint64) (*ethtypes.Receipt, error) {
	key := [2]common.Address{token, spender}
	if cur, ok := c.allowances[key]; ok && cur.Cmp(amount) >= 0 {
		return nil, nil
	}
	receipt, err := c.Send(ctx, chain.TxRequest{To: token, GasLimit: gasLimit, Label: "approve " + spender.Hex()})
	if err != nil {
		return nil, err
	}
	c.allowances[key] = new(big.Int).Set(amount)
	return receipt, nil
}

func (c *fakeChain) Wrap(ctx context.Context, wrapped common.Address, amount *big.Int, gasLimit uint64) (*ethtypes.Receipt, error) {
	receipt, err := c.Send(ctx, chain.TxRequest{To: wrapped, Value: amount, GasLimit: gasLimit, Label: "wrap"})
	if err != nil {
		return nil, err
	}
	c.native = new(big.Int).Sub(c.native, amount)
	c.balances[wrapped] = new(big.Int).Add(c.balance(wrapped), amount)
	return receipt, nil
}

func (c *fakeChain) Send(ctx context.Context, req chain.TxRequest) (*ethtypes.Receipt, error) {
	c.sent = append(c.sent, req)
	if c.failOn != "" && strings.HasPrefix(req.Label, c.failOn) {
		return nil, types.Errorf(types.KindTransaction, "send "+req.Label, "execution reverted")
	}

	if v, ok := c.venues[req.To]; ok {
		swap := v.builds[len(v.builds)-1]
		pulled := swap.AmountIn
		if p := v.next(v.pulls); p != nil {
			pulled = p
		}
		out := v.next(v.outs)
		v.swaps++
		c.balances[swap.TokenIn] = new(big.Int).Sub(c.balance(swap.TokenIn), pulled)
		c.balances[swap.TokenOut] = new(big.Int).Add(c.balance(swap.TokenOut), out)
	}

	return &ethtypes.Receipt{
		Status: ethtypes.ReceiptStatusSuccessful,
		TxHash: common.BigToHash(big.NewInt(int64(len(c.sent)))),
	}, nil
}

type fakeHead struct {
	time uint64
}

func (h fakeHead) HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{Number: big.NewInt(1), Time: h.time}, nil
}

func wethUSDCVenues() (*fakeVenue, *fakeVenue) {
	alpha := &fakeVenue{name: "alpha", router: alphaRouter, live: dec("2491"), outs: []*big.Int{amount("2008032128514056")}}
	beta := &fakeVenue{name: "beta", router: betaRouter, live: dec("2509"), outs: []*big.Int{amount("5040160")}}
	return alpha, beta
}

func TestNewPlan(t *testing.T) {
	rc := testRunConfig()

	plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
	require.NoError(t, err)
	assert.Equal(t, usdc, plan.InputToken)
	assert.Equal(t, weth, plan.OutputToken)
	assert.Equal(t, "5000000", plan.AmountIn.String())
	assert.Equal(t, "2008032128514056", plan.ExpectedOut.String())
	assert.Equal(t, "1987951807228915", plan.MinAmountOut.String())
	assert.False(t, plan.Unsafe)

	other, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
	require.NoError(t, err)
	assert.NotEqual(t, plan.ID, other.ID)

	t.Run("unsafe without floor", func(t *testing.T) {
		rc := testRunConfig()
		rc.Execution.DisableMinOutFloor = true
		plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
		require.NoError(t, err)
		assert.True(t, plan.Unsafe)
		assert.Equal(t, 0, plan.MinAmountOut.Sign())
	})

	t.Run("unpriced quote", func(t *testing.T) {
		opp := wethUSDCOpportunity()
		opp.Pair.Quote = cbeth
		_, err := NewPlan(opp, types.StrategyRegular, rc)
		assert.ErrorIs(t, err, types.ErrValidation)
	})
}

func TestExecuteSettles(t *testing.T) {
	alpha, beta := wethUSDCVenues()
	c := newFakeChain(alpha, beta)
	c.balances[usdc.Address] = amount("10000000")

	m := metrics.NewEngineMetrics("test", prometheus.NewRegistry())
	rc := testRunConfig()
	exec := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t), WithMetrics(m), WithHeadReader(fakeHead{time: 1_700_000_000}))

	plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
	require.NoError(t, err)
	rep := exec.Execute(context.Background(), plan)

	require.NoError(t, rep.Err)
	assert.Equal(t, types.StateSettled, rep.State)
	assert.Empty(t, rep.FailedAt)
	assert.Equal(t, []string{
		"approve " + alphaRouter.Hex(),
		"buy swap alpha",
		"approve " + betaRouter.Hex(),
		"sell swap beta",
	}, c.labels())

	var states []types.ExecutionState
	for _, s := range rep.Steps {
		states = append(states, s.State)
	}
	assert.Equal(t, []types.ExecutionState{
		types.StateValidated, types.StateApprovedBuy, types.StateSwappedBuy,
		types.StateApprovedSell, types.StateSwappedSell, types.StateSettled,
	}, states)
	assert.Len(t, rep.TxHashes(), 4)

	require.Len(t, alpha.builds, 1)
	buy := alpha.builds[0]
	assert.Equal(t, usdc.Address, buy.TokenIn)
	assert.Equal(t, weth.Address, buy.TokenOut)
	assert.Equal(t, "5000000", buy.AmountIn.String())
	assert.Equal(t, plan.MinAmountOut, buy.MinAmountOut)
	assert.Equal(t, owner, buy.Recipient)
	assert.Equal(t, uint64(1_700_000_300), buy.Deadline.Uint64())
	assert.Equal(t, uint64(150000), buy.GasLimit)

	require.Len(t, beta.builds, 1)
	sell := beta.builds[0]
	assert.Equal(t, "2008032128514056", sell.AmountIn.String())
	// 0.002008032128514056 WETH at 2510 is 5.040160 USDC, less one percent
	assert.Equal(t, "4989758", sell.MinAmountOut.String())

	assert.Equal(t, "2008032128514056", rep.Received.String())
	assert.Equal(t, "5040160", rep.FinalAmount.String())
	assert.Equal(t, "40160", rep.RealizedDelta.String())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("regular", "settled")))
	assert.InDelta(t, 0.04016, testutil.ToFloat64(m.RealizedDelta), 1e-9)
}

func TestExecuteBuyFailureStopsMachine(t *testing.T) {
	alpha, beta := wethUSDCVenues()
	c := newFakeChain(alpha, beta)
	c.balances[usdc.Address] = amount("10000000")
	c.failOn = "buy"

	m := metrics.NewEngineMetrics("test", prometheus.NewRegistry())
	rc := testRunConfig()
	exec := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t), WithMetrics(m))

	plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
	require.NoError(t, err)
	rep := exec.Execute(context.Background(), plan)

	assert.Equal(t, types.StateFailed, rep.State)
	assert.Equal(t, types.StateSwappedBuy, rep.FailedAt)
	assert.Equal(t, types.KindTransaction, types.KindOf(rep.Err))
	assert.NotEmpty(t, rep.Error)
	assert.Empty(t, beta.builds)
	for _, label := range c.labels() {
		assert.False(t, strings.HasPrefix(label, "sell"), label)
		assert.NotEqual(t, "approve "+betaRouter.Hex(), label)
	}
	assert.Nil(t, rep.RealizedDelta)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("regular", "failed")))
}

func TestExecuteSkipsSufficientAllowance(t *testing.T) {
	alpha, beta := wethUSDCVenues()
	c := newFakeChain(alpha, beta)
	c.balances[usdc.Address] = amount("10000000")
	c.allowances[[2]common.Address{usdc.Address, alphaRouter}] = amount("1000000000000")
	c.allowances[[2]common.Address{weth.Address, betaRouter}] = amount("1000000000000000000000")

	rc := testRunConfig()
	exec := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t))
	plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
	require.NoError(t, err)

	rep := exec.Execute(context.Background(), plan)
	require.NoError(t, rep.Err)
	assert.Equal(t, []string{"buy swap alpha", "sell swap beta"}, c.labels())
	assert.Equal(t, "allowance sufficient", rep.Steps[1].Note)
	assert.Equal(t, common.Hash{}, rep.Steps[1].TxHash)
}

func TestExecuteWrapsNative(t *testing.T) {
	opp := types.Opportunity{
		Pair:      types.Pair{Base: cbeth, Quote: weth},
		BuyVenue:  "alpha",
		SellVenue: "beta",
		BuyPrice:  dec("1.05"),
		SellPrice: dec("1.06"),
		ProfitPct: dec("0.952380952380952381"),
	}
	rc := testRunConfig()

	t.Run("shortfall covered", func(t *testing.T) {
		alpha := &fakeVenue{name: "alpha", router: alphaRouter, live: dec("1.05"), outs: []*big.Int{amount("1904761904761905")}}
		beta := &fakeVenue{name: "beta", router: betaRouter, live: dec("1.06"), outs: []*big.Int{amount("2018000000000000")}}
		c := newFakeChain(alpha, beta)
		c.balances[weth.Address] = amount("500000000000000")
		c.native = amount("10000000000000000")

		plan, err := NewPlan(opp, types.StrategyRegular, rc)
		require.NoError(t, err)
		assert.Equal(t, "2000000000000000", plan.AmountIn.String())

		rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
		require.NoError(t, rep.Err)
		assert.Equal(t, types.StateSettled, rep.State)
		assert.Equal(t, "wrap", c.labels()[0])
		assert.Equal(t, "1500000000000000", c.sent[0].Value.String())
		assert.Equal(t, "8500000000000000", c.native.String())
		assert.Equal(t, "18000000000000", rep.RealizedDelta.String())
	})

	t.Run("gas reserve kept", func(t *testing.T) {
		alpha := &fakeVenue{name: "alpha", router: alphaRouter, live: dec("1.05")}
		beta := &fakeVenue{name: "beta", router: betaRouter, live: dec("1.06")}
		c := newFakeChain(alpha, beta)
		c.balances[weth.Address] = amount("500000000000000")
		// covers the shortfall but not the reserve on top
		c.native = amount("1600000000000000")

		plan, err := NewPlan(opp, types.StrategyRegular, rc)
		require.NoError(t, err)

		rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
		assert.Equal(t, types.StateFailed, rep.State)
		assert.Equal(t, types.StateValidated, rep.FailedAt)
		assert.ErrorIs(t, rep.Err, types.ErrValidation)
		assert.Empty(t, c.sent)
	})
}

func TestExecuteShortNonNativeInput(t *testing.T) {
	alpha, beta := wethUSDCVenues()
	c := newFakeChain(alpha, beta)
	c.balances[usdc.Address] = amount("1000000")
	c.native = amount("1000000000000000000")

	rc := testRunConfig()
	plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
	require.NoError(t, err)

	rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
	assert.Equal(t, types.StateFailed, rep.State)
	assert.ErrorIs(t, rep.Err, types.ErrValidation)
	assert.Empty(t, c.sent)
}

func TestExecuteLivePrice(t *testing.T) {
	tests := []struct {
		name     string
		live     decimal.Decimal
		liveErr  error
		wantKind types.ErrorKind
	}{
		{name: "deviation above limit", live: dec("2700"), wantKind: types.KindLivePriceDeviation},
		{name: "read failure", liveErr: errors.New("connection reset"), wantKind: types.KindTransientFetch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alpha, beta := wethUSDCVenues()
			alpha.live, alpha.liveErr = tt.live, tt.liveErr
			c := newFakeChain(alpha, beta)
			c.balances[usdc.Address] = amount("10000000")

			rc := testRunConfig()
			plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
			require.NoError(t, err)

			rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
			assert.Equal(t, types.StateFailed, rep.State)
			assert.Equal(t, types.StateValidated, rep.FailedAt)
			assert.Equal(t, tt.wantKind, types.KindOf(rep.Err))
			assert.Empty(t, c.sent)
		})
	}
}

func TestExecuteValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.RunConfig, *types.Opportunity)
	}{
		{
			name: "same venue",
			mutate: func(_ *config.RunConfig, o *types.Opportunity) {
				o.SellVenue = o.BuyVenue
			},
		},
		{
			name: "sell not above buy",
			mutate: func(_ *config.RunConfig, o *types.Opportunity) {
				o.SellPrice = o.BuyPrice
			},
		},
		{
			name: "profit below band",
			mutate: func(_ *config.RunConfig, o *types.Opportunity) {
				o.ProfitPct = dec("0.05")
			},
		},
		{
			name: "unknown venue",
			mutate: func(_ *config.RunConfig, o *types.Opportunity) {
				o.SellVenue = "gamma"
			},
		},
		{
			name: "safe mode position cap",
			mutate: func(rc *config.RunConfig, _ *types.Opportunity) {
				rc.SafeMode = config.SafeMode{Enabled: true, MaxPositionUSD: dec("1")}
			},
		},
		{
			name: "safe mode profit cap",
			mutate: func(rc *config.RunConfig, _ *types.Opportunity) {
				rc.SafeMode = config.SafeMode{Enabled: true, MaxProfitPct: dec("0.5")}
			},
		},
		{
			name: "safe mode symbols",
			mutate: func(rc *config.RunConfig, _ *types.Opportunity) {
				rc.SafeMode = config.SafeMode{Enabled: true, AllowedSymbols: []string{"cbBTC"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alpha, beta := wethUSDCVenues()
			c := newFakeChain(alpha, beta)
			c.balances[usdc.Address] = amount("10000000")

			rc := testRunConfig()
			opp := wethUSDCOpportunity()
			plan, err := NewPlan(opp, types.StrategyRegular, rc)
			require.NoError(t, err)
			tt.mutate(&rc, &plan.Opportunity)

			rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
			assert.Equal(t, types.StateFailed, rep.State)
			assert.Equal(t, types.StateValidated, rep.FailedAt)
			assert.ErrorIs(t, rep.Err, types.ErrValidation)
			assert.Empty(t, c.sent)
		})
	}

	t.Run("safe mode allows any listed token", func(t *testing.T) {
		alpha, beta := wethUSDCVenues()
		c := newFakeChain(alpha, beta)
		c.balances[usdc.Address] = amount("10000000")

		rc := testRunConfig()
		rc.SafeMode = config.SafeMode{Enabled: true, MaxPositionUSD: dec("10"), MaxProfitPct: dec("20"), AllowedSymbols: []string{"weth"}}
		plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
		require.NoError(t, err)

		rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
		require.NoError(t, rep.Err)
		assert.Equal(t, types.StateSettled, rep.State)
	})
}

func TestExecuteRejectsSpentPlan(t *testing.T) {
	alpha, beta := wethUSDCVenues()
	c := newFakeChain(alpha, beta)
	c.balances[usdc.Address] = amount("20000000")

	rc := testRunConfig()
	exec := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t))
	plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
	require.NoError(t, err)

	first := exec.Execute(context.Background(), plan)
	require.NoError(t, first.Err)
	sent := len(c.sent)

	second := exec.Execute(context.Background(), plan)
	assert.Equal(t, types.StateFailed, second.State)
	assert.ErrorIs(t, second.Err, types.ErrValidation)
	assert.Len(t, c.sent, sent)
}

func TestExecuteDryRun(t *testing.T) {
	alpha, beta := wethUSDCVenues()
	c := newFakeChain(alpha, beta)
	c.balances[usdc.Address] = amount("10000000")
	// the simulated sell has nothing to spend
	c.failOn = "sell"

	rc := testRunConfig()
	rc.Execution.DryRun = true
	plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
	require.NoError(t, err)

	t.Run("expected amounts", func(t *testing.T) {
		rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
		require.NoError(t, rep.Err)
		assert.True(t, rep.DryRun)
		assert.Equal(t, types.StateSettled, rep.State)
		assert.Equal(t, plan.ExpectedOut.String(), rep.Received.String())
		assert.Equal(t, "5040160", rep.FinalAmount.String())
		assert.Equal(t, "40160", rep.RealizedDelta.String())
		assert.Contains(t, rep.Steps[4].Note, "simulation")
	})

	t.Run("venue quotes", func(t *testing.T) {
		c.failOn = ""
		plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
		require.NoError(t, err)

		quoting := &quotingVenue{fakeVenue: alpha, quote: amount("2000000000000000")}
		rep := New(rc, []dex.Venue{quoting, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
		require.NoError(t, rep.Err)
		assert.Equal(t, "2000000000000000", rep.Received.String())
		assert.Equal(t, "5020000", rep.FinalAmount.String())
		assert.Equal(t, "20000", rep.RealizedDelta.String())
	})

	t.Run("buy revert still fails", func(t *testing.T) {
		c.failOn = "buy"
		plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
		require.NoError(t, err)

		rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
		assert.Equal(t, types.StateFailed, rep.State)
		assert.Equal(t, types.StateSwappedBuy, rep.FailedAt)
	})
}

func TestExecuteSweepsDust(t *testing.T) {
	alpha, beta := wethUSDCVenues()
	// the sell router pulls only 0.001 WETH the first time
	beta.pulls = []*big.Int{amount("1000000000000000"), nil}
	beta.outs = []*big.Int{amount("2510000"), amount("2530080")}
	c := newFakeChain(alpha, beta)
	c.balances[usdc.Address] = amount("10000000")

	rc := testRunConfig()
	rc.Execution.SweepDust = true
	plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
	require.NoError(t, err)

	rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
	require.NoError(t, rep.Err)
	assert.Equal(t, types.StateSettled, rep.State)
	assert.Contains(t, c.labels(), "dust swap beta")

	require.Len(t, beta.builds, 2)
	assert.Equal(t, "1008032128514056", beta.builds[1].AmountIn.String())
	assert.Equal(t, "0", c.balance(weth.Address).String())
	assert.Equal(t, "40080", rep.RealizedDelta.String())
	assert.Contains(t, rep.Steps[len(rep.Steps)-1].Note, "swept 1008032128514056 WETH")

	t.Run("below minimum stays", func(t *testing.T) {
		alpha, beta := wethUSDCVenues()
		// leaves 0.000000032128514056 WETH, well under a dollar
		beta.pulls = []*big.Int{amount("2008000000000000")}
		c := newFakeChain(alpha, beta)
		c.balances[usdc.Address] = amount("10000000")

		plan, err := NewPlan(wethUSDCOpportunity(), types.StrategyRegular, rc)
		require.NoError(t, err)
		rep := New(rc, []dex.Venue{alpha, beta}, c, c, zaptest.NewLogger(t)).Execute(context.Background(), plan)
		require.NoError(t, rep.Err)
		assert.NotContains(t, c.labels(), "dust swap beta")
		assert.Equal(t, "32128514056", c.balance(weth.Address).String())
	})
}
