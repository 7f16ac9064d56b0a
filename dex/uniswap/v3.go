package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/math"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const poolV3ABIJson = `[
	{"inputs":[],"name":"slot0","outputs":[{"name":"sqrtPriceX96","type":"uint160"},{"name":"tick","type":"int24"},{"name":"observationIndex","type":"uint16"},{"name":"observationCardinality","type":"uint16"},{"name":"observationCardinalityNext","type":"uint16"},{"name":"feeProtocol","type":"uint8"},{"name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const routerV3ABIJson = `[
	{"inputs":[{"components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"name":"params","type":"tuple"}],"name":"exactInputSingle","outputs":[{"name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"}
]`

var (
	poolV3ABI   = chain.MustParseABI(poolV3ABIJson)
	routerV3ABI = chain.MustParseABI(routerV3ABIJson)
)

// PoolV3ABI returns the concentrated-liquidity pool ABI.
func PoolV3ABI() abi.ABI { return poolV3ABI }

// RouterV3ABI returns the exact-input router ABI.
func RouterV3ABI() abi.ABI { return routerV3ABI }

const poolsQuery = `
	query Pools($first: Int!, $skip: Int!, $minTvl: BigDecimal!) {
		pools(
			first: $first
			skip: $skip
			orderBy: totalValueLockedUSD
			orderDirection: desc
			where: { totalValueLockedUSD_gt: $minTvl }
		) {
			id
			feeTier
			token0Price
			token1Price
			totalValueLockedUSD
			volumeUSD
			token0 { id symbol decimals }
			token1 { id symbol decimals }
		}
	}
`

type graphToken struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}

type graphPool struct {
	ID                  string     `json:"id"`
	FeeTier             string     `json:"feeTier"`
	Token0Price         string     `json:"token0Price"`
	Token1Price         string     `json:"token1Price"`
	TotalValueLockedUSD string     `json:"totalValueLockedUSD"`
	VolumeUSD           string     `json:"volumeUSD"`
	Token0              graphToken `json:"token0"`
	Token1              graphToken `json:"token1"`
}

// V3Config describes a concentrated-liquidity venue.
type V3Config struct {
	Name     string
	Router   common.Address
	MaxPools int
	PageSize int
}

// V3Adapter lists pools from an indexer and reads live prices from slot0.
type V3Adapter struct {
	cfg      V3Config
	caller   bind.ContractCaller
	graph    dex.GraphQuerier
	resolver dex.TokenResolver
	logger   *zap.Logger
}

// NewV3Adapter creates a concentrated-liquidity adapter.
func NewV3Adapter(cfg V3Config, caller bind.ContractCaller, graph dex.GraphQuerier, resolver dex.TokenResolver, logger *zap.Logger) *V3Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPools <= 0 {
		cfg.MaxPools = 2 * cfg.PageSize
	}
	return &V3Adapter{
		cfg:      cfg,
		caller:   caller,
		graph:    graph,
		resolver: resolver,
		logger:   logger.With(zap.String("venue", cfg.Name)),
	}
}

func (a *V3Adapter) Name() string {
	return a.cfg.Name
}

func (a *V3Adapter) Kind() dex.Kind {
	return dex.KindConcentrated
}

func (a *V3Adapter) Spender() common.Address {
	return a.cfg.Router
}

// FetchPrices pages through pools ordered by TVL until a short page or MaxPools.
// A failed first page fails the venue; a failed later page ends the scan.
func (a *V3Adapter) FetchPrices(ctx context.Context, q dex.Query) ([]dex.Result, error) {
	var results []dex.Result

	for skip := 0; skip < a.cfg.MaxPools; skip += a.cfg.PageSize {
		first := a.cfg.PageSize
		if remaining := a.cfg.MaxPools - skip; remaining < first {
			first = remaining
		}

		var page struct {
			Pools []graphPool `json:"pools"`
		}
		err := a.graph.Query(ctx, poolsQuery, map[string]any{
			"first":  first,
			"skip":   skip,
			"minTvl": q.MinLiquidityUSD.String(),
		}, &page)
		if err != nil {
			if skip == 0 {
				return nil, types.NewError(types.KindTransientFetch, "query pools", err).WithVenue(a.cfg.Name)
			}
			a.logger.Warn("Pool page failed, keeping earlier pages", zap.Int("skip", skip), zap.Error(err))
			results = append(results, dex.Skip(a.cfg.Name, "", err))
			break
		}

		for _, p := range page.Pools {
			results = append(results, a.price(q, p))
		}
		if len(page.Pools) < first {
			break
		}
	}

	return results, nil
}

func (a *V3Adapter) token(t graphToken) (types.Token, error) {
	if !common.IsHexAddress(t.ID) {
		return types.Token{}, types.Errorf(types.KindDataIntegrity, "pool token", "invalid address %q", t.ID)
	}
	decimals, err := strconv.ParseUint(t.Decimals, 10, 8)
	if err != nil {
		return types.Token{}, types.Errorf(types.KindDataIntegrity, "pool token", "token %s decimals %q", t.ID, t.Decimals)
	}
	symbol := strings.TrimSpace(t.Symbol)
	if symbol == "" {
		symbol = types.SentinelSymbol
	}
	return a.resolver.Canonical(types.Token{
		Address:  common.HexToAddress(t.ID),
		Symbol:   symbol,
		Decimals: uint8(decimals),
	}), nil
}

func (a *V3Adapter) price(q dex.Query, p graphPool) dex.Result {
	token0, err := a.token(p.Token0)
	if err != nil {
		return dex.Skip(a.cfg.Name, p.ID, err)
	}
	token1, err := a.token(p.Token1)
	if err != nil {
		return dex.Skip(a.cfg.Name, p.ID, err)
	}
	pair, inverted := q.Orienter.Orient(token0, token1)

	// token1Price is token1 per token0, token0Price is token0 per token1
	raw := p.Token1Price
	if inverted {
		raw = p.Token0Price
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return dex.Skip(a.cfg.Name, pair.Key(), types.Errorf(types.KindDataIntegrity, "pool price", "unparsable price %q", raw))
	}
	tvl, _ := decimal.NewFromString(p.TotalValueLockedUSD)
	volume, _ := decimal.NewFromString(p.VolumeUSD)
	fee, err := strconv.ParseUint(p.FeeTier, 10, 32)
	if err != nil {
		return dex.Skip(a.cfg.Name, pair.Key(), types.Errorf(types.KindDataIntegrity, "pool fee", "unparsable fee tier %q", p.FeeTier))
	}

	point := types.PricePoint{
		Venue:        a.cfg.Name,
		Pair:         pair,
		Price:        price,
		LiquidityUSD: tvl,
		VolumeUSD:    volume,
		Pool: types.PoolRef{
			Venue:   a.cfg.Name,
			ID:      strings.ToLower(p.ID),
			Address: common.HexToAddress(p.ID),
			FeeTier: types.Fee(uint32(fee)),
		},
		FetchedAt: time.Now(),
	}
	if err := q.Check(point, true); err != nil {
		return dex.Skip(a.cfg.Name, pair.Key(), err)
	}
	return dex.OK(point)
}

// LivePrice derives quote per base from slot0, oriented by the pool's token0.
func (a *V3Adapter) LivePrice(ctx context.Context, pool types.PoolRef, pair types.Pair) (decimal.Decimal, error) {
	contract := bind.NewBoundContract(pool.Address, poolV3ABI, a.caller, nil, nil)
	opts := &bind.CallOpts{Context: ctx}

	var out []interface{}
	if err := contract.Call(opts, &out, "slot0"); err != nil {
		return decimal.Zero, types.NewError(types.KindTransientFetch, "slot0", err).WithVenue(a.cfg.Name).WithPair(pair.Key())
	}
	sqrtPrice, err := chain.BigOut(out, 0)
	if err != nil {
		return decimal.Zero, types.NewError(types.KindDataIntegrity, "slot0", err).WithVenue(a.cfg.Name)
	}
	if sqrtPrice.Sign() == 0 {
		return decimal.Zero, types.Errorf(types.KindDataIntegrity, "slot0", "pool %s is not initialized", pool.Address.Hex()).WithVenue(a.cfg.Name)
	}

	out = nil
	if err := contract.Call(opts, &out, "token0"); err != nil {
		return decimal.Zero, types.NewError(types.KindTransientFetch, "token0", err).WithVenue(a.cfg.Name).WithPair(pair.Key())
	}
	token0, _ := out[0].(common.Address)

	switch token0 {
	case pair.Base.Address:
		return math.SqrtPriceX96ToPrice(sqrtPrice, pair.Base.Decimals, pair.Quote.Decimals), nil
	case pair.Quote.Address:
		// pool price is base per quote
		inverse := math.SqrtPriceX96ToPrice(sqrtPrice, pair.Quote.Decimals, pair.Base.Decimals)
		return dex.OrientPrice(inverse, true), nil
	default:
		return decimal.Zero, types.Errorf(types.KindDataIntegrity, "live price",
			"pool %s does not hold %s", pool.Address.Hex(), pair.Key()).WithVenue(a.cfg.Name)
	}
}

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// BuildSwap encodes exactInputSingle. The pool's fee tier is required.
func (a *V3Adapter) BuildSwap(req dex.SwapRequest) (chain.TxRequest, error) {
	if req.Pool.FeeTier == nil {
		return chain.TxRequest{}, types.Errorf(types.KindValidation, "build swap", "pool %s has no fee tier", req.Pool.ID)
	}
	params := exactInputSingleParams{
		TokenIn:           req.TokenIn,
		TokenOut:          req.TokenOut,
		Fee:               big.NewInt(int64(*req.Pool.FeeTier)),
		Recipient:         req.Recipient,
		AmountIn:          req.AmountIn,
		AmountOutMinimum:  req.MinAmountOut,
		SqrtPriceLimitX96: big.NewInt(0),
	}

	data, err := routerV3ABI.Pack("exactInputSingle", params)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("pack exactInputSingle: %w", err)
	}
	return chain.TxRequest{To: a.cfg.Router, Data: data, GasLimit: req.GasLimit, Label: a.cfg.Name + " swap"}, nil
}
