package flashloan

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/shopspring/decimal"
)

// Provider is a lending pool reached through a deployed receiver contract.
// The receiver borrows, runs both swaps and repays inside the loan callback.
type Provider interface {
	// Name identifies the lending pool in logs and reports
	Name() string

	// PremiumPct is the pool's loan fee as a fraction of the amount borrowed
	PremiumPct(ctx context.Context) (decimal.Decimal, error)

	// RequestLoan encodes the receiver call that opens the loan
	RequestLoan(req LoanRequest) (chain.TxRequest, error)

	// Residual is the receiver's balance of asset left after a loan
	Residual(ctx context.Context, asset common.Address) (*big.Int, error)

	// Withdraw encodes the receiver call that pays amount of asset to its owner
	Withdraw(asset common.Address, amount *big.Int) (chain.TxRequest, error)
}
