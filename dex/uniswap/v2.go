package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/tokens"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// V2Config describes a constant-product venue.
type V2Config struct {
	Name        string
	Factory     common.Address
	Router      common.Address
	FeeTier     uint32
	MaxPools    int
	Concurrency int64
	// RateLimit bounds RPC requests per second; zero disables limiting
	RateLimit rate.Limit
	Burst     int
}

// V2Adapter enumerates pairs from a constant-product factory and prices them
// from on-chain reserves.
type V2Adapter struct {
	cfg      V2Config
	caller   bind.ContractCaller
	resolver dex.TokenResolver
	factory  *bind.BoundContract
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewV2Adapter creates a constant-product adapter.
func NewV2Adapter(cfg V2Config, caller bind.ContractCaller, resolver dex.TokenResolver, logger *zap.Logger) *V2Adapter {
	if cfg.MaxPools <= 0 {
		cfg.MaxPools = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}

	a := &V2Adapter{
		cfg:      cfg,
		caller:   caller,
		resolver: resolver,
		factory:  bind.NewBoundContract(cfg.Factory, factoryABI, caller, nil, nil),
		logger:   logger.With(zap.String("venue", cfg.Name)),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	return a
}

func (a *V2Adapter) Name() string {
	return a.cfg.Name
}

func (a *V2Adapter) Kind() dex.Kind {
	return dex.KindConstantProduct
}

func (a *V2Adapter) Spender() common.Address {
	return a.cfg.Router
}

// FetchPrices scans the first MaxPools pairs of the factory with bounded
// concurrency. Only a failure to read the pair count fails the venue.
func (a *V2Adapter) FetchPrices(ctx context.Context, q dex.Query) ([]dex.Result, error) {
	var out []interface{}
	if err := a.factory.Call(&bind.CallOpts{Context: ctx}, &out, "allPairsLength"); err != nil {
		return nil, types.NewError(types.KindTransientFetch, "allPairsLength", err).WithVenue(a.cfg.Name)
	}
	total, err := chain.BigOut(out, 0)
	if err != nil {
		return nil, types.NewError(types.KindDataIntegrity, "allPairsLength", err).WithVenue(a.cfg.Name)
	}

	n := a.cfg.MaxPools
	if total.IsInt64() && total.Int64() < int64(n) {
		n = int(total.Int64())
	}

	results := make([]dex.Result, n)
	sem := semaphore.NewWeighted(a.cfg.Concurrency)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			// cancelled: the remaining slots report the cancellation
			for j := i; j < n; j++ {
				results[j] = dex.Fail(types.NewError(types.KindTransientFetch, "scan pairs", err).WithVenue(a.cfg.Name))
			}
			break
		}
		wg.Add(1)
		go func(i int) {
			defer sem.Release(1)
			defer wg.Done()
			results[i] = a.readPair(ctx, q, i)
		}(i)
	}
	wg.Wait()

	return results, nil
}

func (a *V2Adapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *V2Adapter) readPair(ctx context.Context, q dex.Query, index int) dex.Result {
	if err := a.wait(ctx); err != nil {
		return dex.Skip(a.cfg.Name, "", err)
	}

	var out []interface{}
	if err := a.factory.Call(&bind.CallOpts{Context: ctx}, &out, "allPairs", big.NewInt(int64(index))); err != nil {
		return dex.Skip(a.cfg.Name, "", fmt.Errorf("allPairs(%d): %w", index, err))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return dex.Skip(a.cfg.Name, "", types.Errorf(types.KindDataIntegrity, "allPairs", "unexpected output %T", out[0]))
	}

	state, err := NewV2Pair(addr, a.caller).State(ctx)
	if err != nil {
		return dex.Skip(a.cfg.Name, addr.Hex(), err)
	}
	return a.price(ctx, q, state)
}

func (a *V2Adapter) price(ctx context.Context, q dex.Query, state *PairState) dex.Result {
	token0, err := a.resolver.Resolve(ctx, state.Token0)
	if err != nil {
		return dex.Skip(a.cfg.Name, state.Address.Hex(), err)
	}
	token1, err := a.resolver.Resolve(ctx, state.Token1)
	if err != nil {
		return dex.Skip(a.cfg.Name, state.Address.Hex(), err)
	}

	pair, inverted := q.Orienter.Orient(token0, token1)
	baseReserve, quoteReserve := state.Reserve0, state.Reserve1
	if inverted {
		baseReserve, quoteReserve = state.Reserve1, state.Reserve0
	}

	price, err := tokens.Ratio(quoteReserve, pair.Quote.Decimals, baseReserve, pair.Base.Decimals)
	if err != nil {
		return dex.Skip(a.cfg.Name, pair.Key(), err)
	}

	liquidity := decimal.Zero
	if usd, ok := q.QuoteUSD(pair.Quote.Address); ok {
		liquidity = tokens.ToDecimal(quoteReserve, pair.Quote.Decimals).Mul(usd).Mul(decimal.NewFromInt(2))
	}

	point := types.PricePoint{
		Venue:        a.cfg.Name,
		Pair:         pair,
		Price:        price,
		LiquidityUSD: liquidity,
		Pool: types.PoolRef{
			Venue:   a.cfg.Name,
			ID:      strings.ToLower(state.Address.Hex()),
			Address: state.Address,
			FeeTier: types.Fee(a.cfg.FeeTier),
		},
		FetchedAt: time.Now(),
	}
	if err := q.Check(point, false); err != nil {
		return dex.Skip(a.cfg.Name, pair.Key(), err)
	}
	return dex.OK(point)
}

// LivePrice reads the pool's reserves and prices pair in quote per base.
func (a *V2Adapter) LivePrice(ctx context.Context, pool types.PoolRef, pair types.Pair) (decimal.Decimal, error) {
	state, err := NewV2Pair(pool.Address, a.caller).State(ctx)
	if err != nil {
		return decimal.Zero, types.NewError(types.KindTransientFetch, "live price", err).WithVenue(a.cfg.Name).WithPair(pair.Key())
	}

	var baseReserve, quoteReserve *big.Int
	switch {
	case state.Token0 == pair.Base.Address && state.Token1 == pair.Quote.Address:
		baseReserve, quoteReserve = state.Reserve0, state.Reserve1
	case state.Token1 == pair.Base.Address && state.Token0 == pair.Quote.Address:
		baseReserve, quoteReserve = state.Reserve1, state.Reserve0
	default:
		return decimal.Zero, types.Errorf(types.KindDataIntegrity, "live price",
			"pool %s does not hold %s", pool.Address.Hex(), pair.Key()).WithVenue(a.cfg.Name)
	}

	price, err := tokens.Ratio(quoteReserve, pair.Quote.Decimals, baseReserve, pair.Base.Decimals)
	if err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// Quote returns the output of swapping amountIn of tokenIn through pool at
// the current reserves.
func (a *V2Adapter) Quote(ctx context.Context, pool types.PoolRef, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	state, err := NewV2Pair(pool.Address, a.caller).State(ctx)
	if err != nil {
		return nil, err
	}
	fee := a.cfg.FeeTier
	if pool.FeeTier != nil {
		fee = *pool.FeeTier
	}
	switch tokenIn {
	case state.Token0:
		return GetAmountOut(amountIn, state.Reserve0, state.Reserve1, fee), nil
	case state.Token1:
		return GetAmountOut(amountIn, state.Reserve1, state.Reserve0, fee), nil
	default:
		return nil, fmt.Errorf("token %s not in pool %s", tokenIn.Hex(), pool.Address.Hex())
	}
}

// BuildSwap encodes swapExactTokensForTokens over the single-hop path.
func (a *V2Adapter) BuildSwap(req dex.SwapRequest) (chain.TxRequest, error) {
	if req.Deadline == nil {
		return chain.TxRequest{}, fmt.Errorf("deadline is required")
	}
	data, err := routerV2ABI.Pack("swapExactTokensForTokens",
		req.AmountIn,
		req.MinAmountOut,
		[]common.Address{req.TokenIn, req.TokenOut},
		req.Recipient,
		req.Deadline,
	)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("failed to pack swapExactTokensForTokens: %w", err)
	}
	return chain.TxRequest{To: a.cfg.Router, Data: data, GasLimit: req.GasLimit, Label: a.cfg.Name + " swap"}, nil
}
