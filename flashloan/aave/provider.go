package aave

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/flashloan"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PoolABI is the part of the Aave V3 pool the engine reads.
const PoolABI = `[
	{"inputs":[],"name":"FLASHLOAN_PREMIUM_TOTAL","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"}
]`

// ReceiverABI is the deployed flash loan receiver. Its callback performs
// both swaps and repays the pool.
const ReceiverABI = `[
	{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"string","name":"buyDex","type":"string"},{"internalType":"string","name":"sellDex","type":"string"},{"internalType":"uint256","name":"buyAmount","type":"uint256"},{"internalType":"uint256","name":"sellAmount","type":"uint256"},{"internalType":"uint24","name":"buyFee","type":"uint24"},{"internalType":"uint24","name":"sellFee","type":"uint24"}],"name":"requestFlashLoan","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"token","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"withdrawToken","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var (
	poolABI     = chain.MustParseABI(PoolABI)
	receiverABI = chain.MustParseABI(ReceiverABI)

	// premiums are quoted in basis points
	bps = decimal.NewFromInt(10000)

	maxUint24 = uint32(1<<24 - 1)
)

// Provider borrows from an Aave V3 pool through the receiver contract.
type Provider struct {
	caller   bind.ContractCaller
	pool     common.Address
	receiver common.Address
	logger   *zap.Logger

	// the premium is a governance parameter; read once per process
	mu      sync.Mutex
	premium *decimal.Decimal
}

var _ flashloan.Provider = (*Provider)(nil)

func NewProvider(caller bind.ContractCaller, pool, receiver common.Address, logger *zap.Logger) (*Provider, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if receiver == (common.Address{}) {
		return nil, fmt.Errorf("flash loan receiver address is not set")
	}
	return &Provider{
		caller:   caller,
		pool:     pool,
		receiver: receiver,
		logger:   logger,
	}, nil
}

func (p *Provider) Name() string {
	return "aave-v3"
}

func (p *Provider) Receiver() common.Address {
	return p.receiver
}

// PremiumPct reads FLASHLOAN_PREMIUM_TOTAL and returns it as a fraction,
// e.g. 9 bps is 0.0009.
func (p *Provider) PremiumPct(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.premium != nil {
		return *p.premium, nil
	}

	var out []interface{}
	pool := bind.NewBoundContract(p.pool, poolABI, p.caller, nil, nil)
	if err := pool.Call(&bind.CallOpts{Context: ctx}, &out, "FLASHLOAN_PREMIUM_TOTAL"); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read flash loan premium: %w", err)
	}
	raw, err := chain.BigOut(out, 0)
	if err != nil {
		return decimal.Zero, err
	}

	premium := decimal.NewFromBigInt(raw, 0).Div(bps)
	p.premium = &premium
	p.logger.Debug("Flash loan premium", zap.String("pool", p.pool.Hex()), zap.String("premium", premium.String()))
	return premium, nil
}

// Fee returns the premium owed on amount, rounded down the way the pool does.
func Fee(amount *big.Int, premium decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(amount, 0).Mul(premium).Truncate(0).BigInt()
}

func (p *Provider) RequestLoan(req flashloan.LoanRequest) (chain.TxRequest, error) {
	if req.BuyFee > maxUint24 || req.SellFee > maxUint24 {
		return chain.TxRequest{}, fmt.Errorf("fee tier out of uint24 range (buy=%d sell=%d)", req.BuyFee, req.SellFee)
	}
	data, err := receiverABI.Pack("requestFlashLoan",
		req.Asset,
		req.Amount,
		req.TokenIn,
		req.TokenOut,
		req.BuyDex,
		req.SellDex,
		req.BuyAmount,
		req.SellAmount,
		big.NewInt(int64(req.BuyFee)),
		big.NewInt(int64(req.SellFee)),
	)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("failed to pack requestFlashLoan: %w", err)
	}
	p.mu.Lock()
	if p.premium != nil {
		p.logger.Debug("Flash loan requested",
			zap.String("asset", req.Asset.Hex()),
			zap.String("amount", req.Amount.String()),
			zap.String("premium_owed", Fee(req.Amount, *p.premium).String()))
	}
	p.mu.Unlock()
	return chain.TxRequest{To: p.receiver, Data: data, Label: "flash loan " + req.BuyDex + "->" + req.SellDex}, nil
}

// Residual is the receiver's balance of asset.
func (p *Provider) Residual(ctx context.Context, asset common.Address) (*big.Int, error) {
	var out []interface{}
	token := bind.NewBoundContract(asset, chain.ERC20(), p.caller, nil, nil)
	if err := token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", p.receiver); err != nil {
		return nil, fmt.Errorf("failed to read receiver balance: %w", err)
	}
	return chain.BigOut(out, 0)
}

func (p *Provider) Withdraw(asset common.Address, amount *big.Int) (chain.TxRequest, error) {
	data, err := receiverABI.Pack("withdrawToken", asset, amount)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("failed to pack withdrawToken: %w", err)
	}
	return chain.TxRequest{To: p.receiver, Data: data, Label: "withdraw residual"}, nil
}

// ReceiverABIDef returns the parsed receiver ABI for tests and tooling.
func ReceiverABIDef() abi.ABI {
	return receiverABI
}
