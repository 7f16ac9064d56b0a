package math

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBigInt(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"TestMulDiv", testMulDiv},
		{"TestMinMax", testMinMax},
		{"TestApplySlippage", testApplySlippage},
		{"TestBpsOf", testBpsOf},
		{"TestUnitConversions", testUnitConversions},
		{"TestSqrtPriceX96", testSqrtPriceX96},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testMulDiv(t *testing.T) {
	assert.Equal(t, big.NewInt(333), MulDiv(big.NewInt(1000), big.NewInt(1), big.NewInt(3)))
	assert.Equal(t, big.NewInt(2000), MulDiv(big.NewInt(1000), big.NewInt(6), big.NewInt(3)))
}

func testMinMax(t *testing.T) {
	a, b := big.NewInt(5), big.NewInt(7)
	assert.Equal(t, b, Max(a, b))
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, big.NewInt(0), Clone(nil))
}

func testApplySlippage(t *testing.T) {
	got := ApplySlippage(big.NewInt(1_000_000), decimal.RequireFromString("0.01"))
	assert.Equal(t, big.NewInt(990_000), got)

	assert.Equal(t, int64(0), ApplySlippage(big.NewInt(100), decimal.NewFromInt(2)).Int64())
	assert.Equal(t, int64(0), ApplySlippage(nil, decimal.Zero).Int64())
}

func testBpsOf(t *testing.T) {
	// 9 bps of 100000 is 90
	assert.Equal(t, big.NewInt(90), BpsOf(big.NewInt(100000), 9))
}

func testUnitConversions(t *testing.T) {
	wei := GweiToWei(decimal.RequireFromString("1.5"))
	assert.Equal(t, big.NewInt(1_500_000_000), wei)
	assert.True(t, WeiToGwei(wei).Equal(decimal.RequireFromString("1.5")))

	oneEther, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.True(t, WeiToEther(oneEther).Equal(decimal.NewFromInt(1)))
}

func testSqrtPriceX96(t *testing.T) {
	// sqrtPrice of exactly 2^96 is a raw price of 1.
	p := SqrtPriceX96ToPrice(Q96, 18, 18)
	assert.True(t, p.Equal(decimal.NewFromInt(1)), p.String())

	// 2*2^96 squares to a raw price of 4; shifting 18-6 decimals scales by 1e12.
	two := new(big.Int).Mul(Q96, big.NewInt(2))
	p = SqrtPriceX96ToPrice(two, 18, 6)
	assert.True(t, p.Equal(decimal.RequireFromString("4000000000000")), p.String())

	assert.True(t, SqrtPriceX96ToPrice(big.NewInt(0), 18, 6).IsZero())
}
