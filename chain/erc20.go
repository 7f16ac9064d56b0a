package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// BalanceReader reads native balances.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Ledger reads and moves the wallet's tokens. Every read goes to the chain;
// nothing is cached between calls.
type Ledger struct {
	caller   bind.ContractCaller
	balances BalanceReader
	tx       Transactor
	logger   *zap.Logger
}

func NewLedger(caller bind.ContractCaller, balances BalanceReader, tx Transactor, logger *zap.Logger) *Ledger {
	return &Ledger{
		caller:   caller,
		balances: balances,
		tx:       tx,
		logger:   logger,
	}
}

func (l *Ledger) Owner() common.Address {
	return l.tx.Address()
}

func (l *Ledger) token(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, erc20ABI, l.caller, nil, nil)
}

// TokenBalance returns the wallet's balance of token.
func (l *Ledger) TokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	return l.BalanceOf(ctx, token, l.tx.Address())
}

// BalanceOf returns holder's balance of token.
func (l *Ledger) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	var out []interface{}
	if err := l.token(token).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", holder); err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", token.Hex(), err)
	}
	return BigOut(out, 0)
}

// NativeBalance returns the wallet's native balance.
func (l *Ledger) NativeBalance(ctx context.Context) (*big.Int, error) {
	bal, err := l.balances.BalanceAt(ctx, l.tx.Address(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read native balance: %w", err)
	}
	return bal, nil
}

// Allowance returns how much spender may pull from the wallet.
func (l *Ledger) Allowance(ctx context.Context, token, spender common.Address) (*big.Int, error) {
	var out []interface{}
	if err := l.token(token).Call(&bind.CallOpts{Context: ctx}, &out, "allowance", l.tx.Address(), spender); err != nil {
		return nil, fmt.Errorf("failed to read allowance on %s: %w", token.Hex(), err)
	}
	return BigOut(out, 0)
}

// EnsureAllowance approves amount for spender unless the current allowance
// already covers it. The receipt is nil when no approval was needed.
func (l *Ledger) EnsureAllowance(ctx context.Context, token, spender common.Address, amount *big.Int, gasLimit uint64) (*types.Receipt, error) {
	current, err := l.Allowance(ctx, token, spender)
	if err != nil {
		return nil, err
	}
	if current.Cmp(amount) >= 0 {
		l.logger.Debug("Allowance sufficient, skipping approve",
			zap.String("token", token.Hex()),
			zap.String("spender", spender.Hex()),
			zap.String("allowance", current.String()))
		return nil, nil
	}

	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return l.tx.Send(ctx, TxRequest{To: token, Data: data, GasLimit: gasLimit, Label: "approve"})
}

// Wrap deposits amount of native currency into the wrapped token contract.
func (l *Ledger) Wrap(ctx context.Context, wrapped common.Address, amount *big.Int, gasLimit uint64) (*types.Receipt, error) {
	data, err := erc20ABI.Pack("deposit")
	if err != nil {
		return nil, fmt.Errorf("failed to pack deposit: %w", err)
	}
	return l.tx.Send(ctx, TxRequest{To: wrapped, Data: data, Value: amount, GasLimit: gasLimit, Label: "wrap"})
}
