package tokens

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/chain"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		decimals uint8
		want     string
	}{
		{"usdc", "2500000000", 6, "2500"},
		{"weth", "1500000000000000000", 18, "1.5"},
		{"zero decimals", "42", 0, "42"},
		{"dust", "1", 18, "0.000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDecimal(testutils.Wei(tt.raw), tt.decimals)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
			assert.Equal(t, tt.raw, FromDecimal(got, tt.decimals).String())
		})
	}

	assert.True(t, ToDecimal(nil, 18).IsZero())
	assert.Equal(t, "1", FromDecimal(decimal.RequireFromString("1.9"), 0).String(), "truncates")
}

func TestRatio(t *testing.T) {
	// 10 WETH against 25,000 USDC
	price, err := Ratio(testutils.Wei("25000000000"), 6, testutils.Wei("10000000000000000000"), 18)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(2500)))

	_, err = Ratio(big.NewInt(1), 6, big.NewInt(0), 18)
	require.Error(t, err)
	assert.Equal(t, types.KindDataIntegrity, types.KindOf(err))
}

func TestConvert(t *testing.T) {
	usdc := types.Token{Symbol: "USDC", Decimals: 6}
	weth := types.Token{Symbol: "WETH", Decimals: 18}

	// 5 USDC at 0.0004 WETH per USDC
	out := Convert(big.NewInt(5_000_000), usdc, decimal.RequireFromString("0.0004"), weth)
	assert.Equal(t, "2000000000000000", out.String())
}

func TestResolver(t *testing.T) {
	caller := testutils.NewFakeCaller()
	good := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	noSymbol := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	broken := common.HexToAddress("0x00000000000000000000000000000000000000a3")
	weth := common.HexToAddress("0x4200000000000000000000000000000000000006")

	caller.Returns(good, chain.ERC20(), "decimals", uint8(8))
	caller.Returns(good, chain.ERC20(), "symbol", "cbBTC")
	caller.Returns(noSymbol, chain.ERC20(), "decimals", uint8(18))
	caller.Fails(noSymbol, chain.ERC20(), "symbol", errors.New("execution reverted"))
	caller.Fails(broken, chain.ERC20(), "decimals", errors.New("execution reverted"))

	r, err := NewResolver(caller, 16, []types.Token{{Address: weth, Symbol: "WETH", Decimals: 18}}, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("resolves and caches", func(t *testing.T) {
		tok, err := r.Resolve(ctx, good)
		require.NoError(t, err)
		assert.Equal(t, "cbBTC", tok.Symbol)
		assert.Equal(t, uint8(8), tok.Decimals)

		_, err = r.Resolve(ctx, good)
		require.NoError(t, err)
		assert.Equal(t, 1, caller.Calls(good, "decimals"))
	})

	t.Run("known tokens skip the chain", func(t *testing.T) {
		tok, err := r.Resolve(ctx, weth)
		require.NoError(t, err)
		assert.Equal(t, "WETH", tok.Symbol)
	})

	t.Run("missing symbol uses sentinel", func(t *testing.T) {
		tok, err := r.Resolve(ctx, noSymbol)
		require.NoError(t, err)
		assert.True(t, IsSentinel(tok))
		assert.Equal(t, uint8(18), tok.Decimals)
	})

	t.Run("missing decimals is an integrity error", func(t *testing.T) {
		tok, err := r.Resolve(ctx, broken)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrDataIntegrity))
		assert.True(t, IsSentinel(tok))
	})
}
