package balancer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/dex"
	"github.com/michaelpento.lv/dexarb/tokens"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const vaultABIJson = `[
	{"inputs":[{"name":"poolId","type":"bytes32"}],"name":"getPoolTokens","outputs":[{"name":"tokens","type":"address[]"},{"name":"balances","type":"uint256[]"},{"name":"lastChangeBlock","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[
		{"components":[{"name":"poolId","type":"bytes32"},{"name":"kind","type":"uint8"},{"name":"assetIn","type":"address"},{"name":"assetOut","type":"address"},{"name":"amount","type":"uint256"},{"name":"userData","type":"bytes"}],"name":"singleSwap","type":"tuple"},
		{"components":[{"name":"sender","type":"address"},{"name":"fromInternalBalance","type":"bool"},{"name":"recipient","type":"address"},{"name":"toInternalBalance","type":"bool"}],"name":"funds","type":"tuple"},
		{"name":"limit","type":"uint256"},
		{"name":"deadline","type":"uint256"}
	],"name":"swap","outputs":[{"name":"amountCalculated","type":"uint256"}],"stateMutability":"payable","type":"function"}
]`

const weightedPoolABIJson = `[
	{"inputs":[],"name":"getNormalizedWeights","outputs":[{"name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

var (
	vaultABI        = chain.MustParseABI(vaultABIJson)
	weightedPoolABI = chain.MustParseABI(weightedPoolABIJson)

	feeScale = decimal.New(1, 6)
)

// VaultABI returns the vault ABI.
func VaultABI() abi.ABI { return vaultABI }

// WeightedPoolABI returns the weighted pool ABI.
func WeightedPoolABI() abi.ABI { return weightedPoolABI }

const poolsQuery = `
	query Pools($first: Int!, $skip: Int!, $minLiquidity: BigDecimal!) {
		pools(
			first: $first
			skip: $skip
			orderBy: totalLiquidity
			orderDirection: desc
			where: { poolType: "Weighted", totalLiquidity_gt: $minLiquidity }
		) {
			id
			address
			swapFee
			totalLiquidity
			tokens { address symbol decimals balance weight }
		}
	}
`

type graphToken struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	Balance  string `json:"balance"`
	Weight   string `json:"weight"`
}

type graphPool struct {
	ID             string       `json:"id"`
	Address        string       `json:"address"`
	SwapFee        string       `json:"swapFee"`
	TotalLiquidity string       `json:"totalLiquidity"`
	Tokens         []graphToken `json:"tokens"`
}

// Config describes a weighted-pool venue.
type Config struct {
	Name     string
	Vault    common.Address
	MaxPools int
	PageSize int
}

// WeightedAdapter prices weighted pools from the indexer and the vault.
type WeightedAdapter struct {
	cfg      Config
	caller   bind.ContractCaller
	graph    dex.GraphQuerier
	resolver dex.TokenResolver
	logger   *zap.Logger
}

func NewWeightedAdapter(cfg Config, caller bind.ContractCaller, graph dex.GraphQuerier, resolver dex.TokenResolver, logger *zap.Logger) *WeightedAdapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.MaxPools <= 0 {
		cfg.MaxPools = cfg.PageSize
	}
	return &WeightedAdapter{
		cfg:      cfg,
		caller:   caller,
		graph:    graph,
		resolver: resolver,
		logger:   logger.With(zap.String("venue", cfg.Name)),
	}
}

func (a *WeightedAdapter) Name() string   { return a.cfg.Name }
func (a *WeightedAdapter) Kind() dex.Kind { return dex.KindWeighted }

// Spender is the vault; weighted pools never pull tokens themselves.
func (a *WeightedAdapter) Spender() common.Address { return a.cfg.Vault }

// FetchPrices emits one point per token pair of every weighted pool.
func (a *WeightedAdapter) FetchPrices(ctx context.Context, q dex.Query) ([]dex.Result, error) {
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
			"first":        first,
			"skip":         skip,
			"minLiquidity": q.MinLiquidityUSD.String(),
		}, &page)
		if err != nil {
			if skip == 0 {
				return nil, types.NewError(types.KindTransientFetch, "query pools", err).WithVenue(a.cfg.Name)
			}
			results = append(results, dex.Skip(a.cfg.Name, "", err))
			break
		}

		for _, p := range page.Pools {
			results = append(results, a.prices(q, p)...)
		}
		if len(page.Pools) < first {
			break
		}
	}
	return results, nil
}

type weightedToken struct {
	token   types.Token
	balance decimal.Decimal
	weight  decimal.Decimal
}

func (a *WeightedAdapter) prices(q dex.Query, p graphPool) []dex.Result {
	fee, err := decimal.NewFromString(p.SwapFee)
	if err != nil {
		return []dex.Result{dex.Skip(a.cfg.Name, p.ID, types.Errorf(types.KindDataIntegrity, "pool fee", "unparsable swap fee %q", p.SwapFee))}
	}
	liquidity, _ := decimal.NewFromString(p.TotalLiquidity)
	feeTier := FeeTier(fee)

	members := make([]weightedToken, 0, len(p.Tokens))
	for _, t := range p.Tokens {
		if !common.IsHexAddress(t.Address) || t.Decimals < 0 || t.Decimals > 255 {
			return []dex.Result{dex.Skip(a.cfg.Name, p.ID, types.Errorf(types.KindDataIntegrity, "pool token", "bad token %q", t.Address))}
		}
		balance, err1 := decimal.NewFromString(t.Balance)
		weight, err2 := decimal.NewFromString(t.Weight)
		if err1 != nil || err2 != nil {
			return []dex.Result{dex.Skip(a.cfg.Name, p.ID, types.Errorf(types.KindDataIntegrity, "pool token", "bad balance or weight for %s", t.Address))}
		}
		symbol := strings.TrimSpace(t.Symbol)
		if symbol == "" {
			symbol = types.SentinelSymbol
		}
		members = append(members, weightedToken{
			token:   a.resolver.Canonical(types.Token{Address: common.HexToAddress(t.Address), Symbol: symbol, Decimals: uint8(t.Decimals)}),
			balance: balance,
			weight:  weight,
		})
	}

	var results []dex.Result
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			pair, inverted := q.Orienter.Orient(members[i].token, members[j].token)
			base, quote := members[i], members[j]
			if inverted {
				base, quote = members[j], members[i]
			}

			price, err := SpotPrice(base.balance, base.weight, quote.balance, quote.weight)
			if err != nil {
				results = append(results, dex.Skip(a.cfg.Name, pair.Key(), err))
				continue
			}

			point := types.PricePoint{
				Venue:        a.cfg.Name,
				Pair:         pair,
				Price:        price,
				LiquidityUSD: liquidity,
				Pool: types.PoolRef{
					Venue:   a.cfg.Name,
					ID:      strings.ToLower(p.ID),
					Address: common.HexToAddress(p.Address),
					FeeTier: types.Fee(feeTier),
				},
				FetchedAt: time.Now(),
			}
			if err := q.Check(point, false); err != nil {
				results = append(results, dex.Skip(a.cfg.Name, pair.Key(), err))
				continue
			}
			results = append(results, dex.OK(point))
		}
	}
	return results
}

// SpotPrice is the weighted-pool spot price of base in quote, without fees:
// (quoteBalance/quoteWeight) / (baseBalance/baseWeight).
func SpotPrice(baseBalance, baseWeight, quoteBalance, quoteWeight decimal.Decimal) (decimal.Decimal, error) {
	if baseBalance.Sign() <= 0 || quoteBalance.Sign() <= 0 || baseWeight.Sign() <= 0 || quoteWeight.Sign() <= 0 {
		return decimal.Zero, types.Errorf(types.KindDataIntegrity, "spot price", "zero balance or weight")
	}
	num := quoteBalance.Div(quoteWeight)
	den := baseBalance.Div(baseWeight)
	return num.DivRound(den, tokens.PriceScale), nil
}

func poolID(id string) ([32]byte, error) {
	var out [32]byte
	raw := common.FromHex(id)
	if len(raw) != 32 {
		return out, fmt.Errorf("pool id %q is not 32 bytes", id)
	}
	copy(out[:], raw)
	return out, nil
}

// LivePrice reads balances from the vault and weights from the pool.
func (a *WeightedAdapter) LivePrice(ctx context.Context, pool types.PoolRef, pair types.Pair) (decimal.Decimal, error) {
	id, err := poolID(pool.ID)
	if err != nil {
		return decimal.Zero, types.NewError(types.KindDataIntegrity, "live price", err).WithVenue(a.cfg.Name)
	}
	opts := &bind.CallOpts{Context: ctx}

	var out []interface{}
	vault := bind.NewBoundContract(a.cfg.Vault, vaultABI, a.caller, nil, nil)
	if err := vault.Call(opts, &out, "getPoolTokens", id); err != nil {
		return decimal.Zero, types.NewError(types.KindTransientFetch, "getPoolTokens", err).WithVenue(a.cfg.Name).WithPair(pair.Key())
	}
	addrs, _ := out[0].([]common.Address)
	balances, _ := out[1].([]*big.Int)

	out = nil
	weighted := bind.NewBoundContract(pool.Address, weightedPoolABI, a.caller, nil, nil)
	if err := weighted.Call(opts, &out, "getNormalizedWeights"); err != nil {
		return decimal.Zero, types.NewError(types.KindTransientFetch, "getNormalizedWeights", err).WithVenue(a.cfg.Name).WithPair(pair.Key())
	}
	weights, _ := out[0].([]*big.Int)
	if len(addrs) != len(balances) || len(addrs) != len(weights) {
		return decimal.Zero, types.Errorf(types.KindDataIntegrity, "live price", "pool %s returned mismatched arrays", pool.ID).WithVenue(a.cfg.Name)
	}

	baseIdx, quoteIdx := -1, -1
	for i, addr := range addrs {
		switch addr {
		case pair.Base.Address:
			baseIdx = i
		case pair.Quote.Address:
			quoteIdx = i
		}
	}
	if baseIdx < 0 || quoteIdx < 0 {
		return decimal.Zero, types.Errorf(types.KindDataIntegrity, "live price", "pool %s does not hold %s", pool.ID, pair.Key()).WithVenue(a.cfg.Name)
	}

	return SpotPrice(
		tokens.ToDecimal(balances[baseIdx], pair.Base.Decimals), tokens.ToDecimal(weights[baseIdx], 18),
		tokens.ToDecimal(balances[quoteIdx], pair.Quote.Decimals), tokens.ToDecimal(weights[quoteIdx], 18),
	)
}

type singleSwap struct {
	PoolId   [32]byte
	Kind     uint8
	AssetIn  common.Address
	AssetOut common.Address
	Amount   *big.Int
	UserData []byte
}

type fundManagement struct {
	Sender              common.Address
	FromInternalBalance bool
	Recipient           common.Address
	ToInternalBalance   bool
}

// givenIn is the vault's exact-input swap kind.
const givenIn uint8 = 0

// BuildSwap encodes a vault swap with a minimum output limit.
func (a *WeightedAdapter) BuildSwap(req dex.SwapRequest) (chain.TxRequest, error) {
	if req.Deadline == nil {
		return chain.TxRequest{}, fmt.Errorf("deadline is required")
	}
	id, err := poolID(req.Pool.ID)
	if err != nil {
		return chain.TxRequest{}, err
	}

	data, err := vaultABI.Pack("swap",
		singleSwap{
			PoolId:   id,
			Kind:     givenIn,
			AssetIn:  req.TokenIn,
			AssetOut: req.TokenOut,
			Amount:   req.AmountIn,
			UserData: []byte{},
		},
		fundManagement{
			Sender:    req.Recipient,
			Recipient: req.Recipient,
		},
		req.MinAmountOut,
		req.Deadline,
	)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("failed to pack vault swap: %w", err)
	}
	return chain.TxRequest{To: a.cfg.Vault, Data: data, GasLimit: req.GasLimit, Label: a.cfg.Name + " swap"}, nil
}

// FeeTier converts a fractional swap fee into hundredths of a basis point.
func FeeTier(swapFee decimal.Decimal) uint32 {
	return uint32(swapFee.Mul(feeScale).Round(0).IntPart())
}
