package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/utils/math"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FeeReader is the part of the node client needed to price gas.
type FeeReader interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Oracle reads the gas price from the chain on every call. There is no
// background refresh; a stale price is worse than a slow one.
type Oracle struct {
	reader   FeeReader
	fallback decimal.Decimal
	logger   *zap.Logger
}

// NewOracle creates an oracle that falls back to fallbackGwei when the node
// cannot be read.
func NewOracle(reader FeeReader, fallbackGwei decimal.Decimal, logger *zap.Logger) *Oracle {
	return &Oracle{
		reader:   reader,
		fallback: fallbackGwei,
		logger:   logger,
	}
}

// Price returns base fee plus suggested tip, in wei.
func (o *Oracle) Price(ctx context.Context) (*big.Int, error) {
	head, err := o.reader.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}

	tip, err := o.reader.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get priority fee: %w", err)
	}

	return new(big.Int).Add(baseFee, tip), nil
}

// GasPriceGwei is Price in gwei, or the configured fallback on error.
func (o *Oracle) GasPriceGwei(ctx context.Context) decimal.Decimal {
	if o.reader == nil {
		return o.fallback
	}
	wei, err := o.Price(ctx)
	if err != nil {
		o.logger.Warn("Gas price unavailable, using configured price",
			zap.String("fallbackGwei", o.fallback.String()),
			zap.Error(err))
		return o.fallback
	}
	return math.WeiToGwei(wei)
}

// EstimateGasCost is gasLimit at the current price, in wei.
func (o *Oracle) EstimateGasCost(ctx context.Context, gasLimit uint64) (*big.Int, error) {
	price, err := o.Price(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gasLimit)), nil
}

// TradeGas is the gas of a two-leg trade: two approvals and two swaps.
func TradeGas(tier config.GasTier) uint64 {
	return tier.SwapGasLimit*2 + tier.ApproveGasLimit*2
}
