package gas

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeFees struct {
	baseFee *big.Int
	tip     *big.Int
	err     error
	reads   int
}

func (f *fakeFees) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return f.tip, f.err
}

func (f *fakeFees) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return &types.Header{BaseFee: f.baseFee}, nil
}

func TestOracleGasPrice(t *testing.T) {
	fees := &fakeFees{baseFee: big.NewInt(50_000_000), tip: big.NewInt(10_000_000)}
	o := NewOracle(fees, decimal.RequireFromString("0.1"), zaptest.NewLogger(t))

	assert.True(t, o.GasPriceGwei(context.Background()).Equal(decimal.RequireFromString("0.06")))

	fees.baseFee = big.NewInt(2_000_000_000)
	assert.True(t, o.GasPriceGwei(context.Background()).Equal(decimal.RequireFromString("2.01")))
	assert.Equal(t, 2, fees.reads, "every call reads the chain")

	cost, err := o.EstimateGasCost(context.Background(), 21000)
	require.NoError(t, err)
	assert.Equal(t, "42210000000000", cost.String())
}

func TestOracleFallback(t *testing.T) {
	fees := &fakeFees{err: errors.New("connection refused")}
	o := NewOracle(fees, decimal.RequireFromString("0.1"), zaptest.NewLogger(t))
	assert.True(t, o.GasPriceGwei(context.Background()).Equal(decimal.RequireFromString("0.1")))

	_, err := o.EstimateGasCost(context.Background(), 21000)
	assert.Error(t, err)

	offline := NewOracle(nil, decimal.RequireFromString("0.25"), zaptest.NewLogger(t))
	assert.True(t, offline.GasPriceGwei(context.Background()).Equal(decimal.RequireFromString("0.25")))
}

func TestTradeGas(t *testing.T) {
	rc := config.DefaultConfig().RunConfig()

	tests := []struct {
		position string
		want     uint64
	}{
		{"5", 400000},
		{"1000", 400000},
		{"1000.01", 520000},
		{"10000", 520000},
		{"250000", 800000},
	}
	for _, tt := range tests {
		t.Run(tt.position, func(t *testing.T) {
			assert.Equal(t, tt.want, TradeGas(rc.GasTier(decimal.RequireFromString(tt.position))))
		})
	}
}
