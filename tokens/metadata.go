package tokens

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/types"
	"go.uber.org/zap"
)

const defaultCacheSize = 4096

// Resolver looks up ERC20 symbol and decimals and caches the answers.
// Seeded tokens are never evicted.
type Resolver struct {
	caller bind.ContractCaller
	cache  *lru.Cache
	known  map[common.Address]types.Token
	logger *zap.Logger
}

// NewResolver creates a resolver backed by caller. known tokens skip the chain.
func NewResolver(caller bind.ContractCaller, size int, known []types.Token, logger *zap.Logger) (*Resolver, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}

	r := &Resolver{
		caller: caller,
		cache:  cache,
		known:  make(map[common.Address]types.Token, len(known)),
		logger: logger,
	}
	for _, t := range known {
		r.known[t.Address] = t
	}
	return r, nil
}

// Resolve returns token metadata for addr. When symbol() cannot be read the
// sentinel symbol is substituted. When decimals() cannot be read the token
// cannot be normalized: the sentinel token is returned with a data integrity
// error and the failure is not cached.
func (r *Resolver) Resolve(ctx context.Context, addr common.Address) (types.Token, error) {
	if t, ok := r.known[addr]; ok {
		return t, nil
	}
	if v, ok := r.cache.Get(addr); ok {
		return v.(types.Token), nil
	}

	opts := &bind.CallOpts{Context: ctx}
	contract := bind.NewBoundContract(addr, chain.ERC20(), r.caller, nil, nil)

	var out []interface{}
	if err := contract.Call(opts, &out, "decimals"); err != nil {
		return Sentinel(addr), types.NewError(types.KindDataIntegrity, "resolve decimals",
			fmt.Errorf("token %s: %w", addr.Hex(), err))
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return Sentinel(addr), types.Errorf(types.KindDataIntegrity, "resolve decimals",
			"token %s returned %T", addr.Hex(), out[0])
	}

	token := types.Token{
		Address:  addr,
		Symbol:   r.symbol(ctx, addr),
		Decimals: decimals,
	}
	r.cache.Add(addr, token)
	return token, nil
}

// Canonical replaces indexer-reported metadata with the configured entry
// for tokens the engine already knows.
func (r *Resolver) Canonical(t types.Token) types.Token {
	if known, ok := r.known[t.Address]; ok {
		return known
	}
	return t
}

func (r *Resolver) symbol(ctx context.Context, addr common.Address) string {
	opts := &bind.CallOpts{Context: ctx}

	var out []interface{}
	err := bind.NewBoundContract(addr, chain.ERC20(), r.caller, nil, nil).Call(opts, &out, "symbol")
	if err == nil {
		if s, ok := out[0].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}

	out = nil
	if legacyErr := bind.NewBoundContract(addr, chain.LegacySymbolABI(), r.caller, nil, nil).Call(opts, &out, "symbol"); legacyErr == nil {
		if b, ok := out[0].([32]byte); ok {
			if s := string(bytes.TrimRight(b[:], "\x00")); s != "" {
				return s
			}
		}
	}

	r.logger.Debug("Token symbol unavailable, using sentinel",
		zap.String("token", addr.Hex()),
		zap.Error(err))
	return types.SentinelSymbol
}

// Sentinel is the placeholder for a token whose metadata is unknown.
func Sentinel(addr common.Address) types.Token {
	return types.Token{Address: addr, Symbol: types.SentinelSymbol, Decimals: 18}
}

// IsSentinel reports whether t carries the sentinel symbol.
func IsSentinel(t types.Token) bool {
	return t.Symbol == types.SentinelSymbol
}
