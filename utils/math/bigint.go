package math

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// Q96 is 2^96, the fixed point scale of sqrtPriceX96.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

	weiPerGwei  = decimal.New(1, 9)
	weiPerEther = decimal.New(1, 18)
)

// Clone returns a copy of x, or zero for nil.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// MulDiv computes a*b/c rounding toward zero. c must be non-zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	n := new(big.Int).Mul(a, b)
	return n.Quo(n, c)
}

// Max returns the larger of x and y.
func Max(x, y *big.Int) *big.Int {
	if x.Cmp(y) >= 0 {
		return x
	}
	return y
}

// Min returns the smaller of x and y.
func Min(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return x
	}
	return y
}

// ApplySlippage returns amount*(1-slippage) truncated to an integer.
// slippage is a fraction, e.g. 0.01 for one percent.
func ApplySlippage(amount *big.Int, slippage decimal.Decimal) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	factor := decimal.NewFromInt(1).Sub(slippage)
	if factor.Sign() <= 0 {
		return new(big.Int)
	}
	return decimal.NewFromBigInt(amount, 0).Mul(factor).Truncate(0).BigInt()
}

// BpsOf returns amount*bps/10000.
func BpsOf(amount *big.Int, bps int64) *big.Int {
	return MulDiv(amount, big.NewInt(bps), big.NewInt(10000))
}

// WeiToGwei converts a wei amount to gwei.
func WeiToGwei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerGwei)
}

// GweiToWei converts gwei to wei, truncating fractional wei.
func GweiToWei(gwei decimal.Decimal) *big.Int {
	return gwei.Mul(weiPerGwei).Truncate(0).BigInt()
}

// WeiToEther converts a wei amount to ether.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, 0).Div(weiPerEther)
}

// SqrtPriceX96ToPrice converts a concentrated-liquidity sqrt price into the
// decimal-adjusted price of token0 in units of token1.
func SqrtPriceX96ToPrice(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) decimal.Decimal {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return decimal.Zero
	}
	// price = sqrt^2 / 2^192, kept in integers until the final division.
	num := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	den := new(big.Int).Mul(Q96, Q96)
	raw := decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), 36)
	return raw.Shift(int32(decimals0) - int32(decimals1))
}
