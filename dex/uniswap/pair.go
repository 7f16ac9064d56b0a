package uniswap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/chain"
)

// Pair contract ABI
const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token1",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// Factory contract ABI
const factoryABIJson = `[
	{"constant":true,"inputs":[],"name":"allPairsLength","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"","type":"uint256"}],"name":"allPairs","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"stateMutability":"view","type":"function"}
]`

// Router contract ABI
const routerV2ABIJson = `[
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

var (
	pairABI     = chain.MustParseABI(pairABIJson)
	factoryABI  = chain.MustParseABI(factoryABIJson)
	routerV2ABI = chain.MustParseABI(routerV2ABIJson)
)

// PairABI returns the constant-product pair ABI.
func PairABI() abi.ABI { return pairABI }

// FactoryABI returns the constant-product factory ABI.
func FactoryABI() abi.ABI { return factoryABI }

// RouterV2ABI returns the constant-product router ABI.
func RouterV2ABI() abi.ABI { return routerV2ABI }

// PairState is one read of a constant-product pair.
type PairState struct {
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// V2Pair reads a constant-product pair contract.
type V2Pair struct {
	contract *bind.BoundContract
	address  common.Address
}

// NewV2Pair binds the pair at address.
func NewV2Pair(address common.Address, caller bind.ContractCaller) *V2Pair {
	return &V2Pair{
		contract: bind.NewBoundContract(address, pairABI, caller, nil, nil),
		address:  address,
	}
}

// GetReserves returns the current reserves of the pair
func (p *V2Pair) GetReserves(ctx context.Context) (reserve0 *big.Int, reserve1 *big.Int, err error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves"); err != nil {
		return nil, nil, fmt.Errorf("failed to get reserves: %w", err)
	}

	reserve0, err = chain.BigOut(out, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse reserve0: %w", err)
	}
	reserve1, err = chain.BigOut(out, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse reserve1: %w", err)
	}

	return reserve0, reserve1, nil
}

// Token0 returns the address of token0
func (p *V2Pair) Token0(ctx context.Context) (common.Address, error) {
	return p.token(ctx, "token0")
}

// Token1 returns the address of token1
func (p *V2Pair) Token1(ctx context.Context) (common.Address, error) {
	return p.token(ctx, "token1")
}

func (p *V2Pair) token(ctx context.Context, method string) (common.Address, error) {
	var out []interface{}
	if err := p.contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return common.Address{}, fmt.Errorf("failed to get %s: %w", method, err)
	}

	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse %s address", method)
	}
	return addr, nil
}

// State reads tokens and reserves in one go.
func (p *V2Pair) State(ctx context.Context) (*PairState, error) {
	token0, err := p.Token0(ctx)
	if err != nil {
		return nil, err
	}
	token1, err := p.Token1(ctx)
	if err != nil {
		return nil, err
	}
	r0, r1, err := p.GetReserves(ctx)
	if err != nil {
		return nil, err
	}
	return &PairState{Address: p.address, Token0: token0, Token1: token1, Reserve0: r0, Reserve1: r1}, nil
}

// GetAmountOut calculates the output amount for a given input amount with a
// fee expressed in hundredths of a basis point (3000 = 0.3%).
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeTier uint32) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(1_000_000-feeTier)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(1_000_000)), amountInWithFee)

	return new(big.Int).Div(numerator, denominator)
}
