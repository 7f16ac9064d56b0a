package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
)

// Kind is the pricing model of a venue.
type Kind string

const (
	KindConstantProduct Kind = "constant_product"
	KindConcentrated    Kind = "concentrated"
	KindWeighted        Kind = "weighted"
)

// Result is the outcome of reading one pool. Exactly one of Point and Err is set.
type Result struct {
	Point *types.PricePoint
	Err   error
}

// OK wraps a successful observation.
func OK(p types.PricePoint) Result {
	return Result{Point: &p}
}

// Fail wraps a per-pool failure.
func Fail(err error) Result {
	return Result{Err: err}
}

// TokenResolver supplies token metadata to adapters.
type TokenResolver interface {
	Resolve(ctx context.Context, addr common.Address) (types.Token, error)
	Canonical(t types.Token) types.Token
}

// GraphQuerier runs an indexer query and decodes its data field into out.
type GraphQuerier interface {
	Query(ctx context.Context, query string, variables map[string]any, out any) error
}

// Adapter reads prices from one venue.
type Adapter interface {
	// Name returns the configured venue name
	Name() string

	// Kind returns the venue's pricing model
	Kind() Kind

	// FetchPrices lists every pool that passes q. Per-pool failures are
	// returned as results; only a venue-wide failure returns an error.
	FetchPrices(ctx context.Context, q Query) ([]Result, error)

	// LivePrice reads the current on-chain price of pair from pool, in
	// quote per base.
	LivePrice(ctx context.Context, pool types.PoolRef, pair types.Pair) (decimal.Decimal, error)
}

// SwapRequest is a single exact-input swap against a known pool.
type SwapRequest struct {
	Pool         types.PoolRef
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Recipient    common.Address
	Deadline     *big.Int
	GasLimit     uint64
}

// Router builds swap transactions for a venue.
type Router interface {
	// Spender is the contract that pulls input tokens and must be approved
	Spender() common.Address

	// BuildSwap encodes req as a transaction to the venue's router
	BuildSwap(req SwapRequest) (chain.TxRequest, error)
}

// Quoter is implemented by venues that can price an exact input swap
// without submitting it.
type Quoter interface {
	Quote(ctx context.Context, pool types.PoolRef, tokenIn common.Address, amountIn *big.Int) (*big.Int, error)
}

// Venue is a venue that can both quote and trade.
type Venue interface {
	Adapter
	Router
}
