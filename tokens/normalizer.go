package tokens

import (
	"math/big"

	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places kept when dividing normalized amounts.
const PriceScale = 18

// ToDecimal converts a raw integer amount into token units. The conversion is exact.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FromDecimal converts token units into a raw integer amount, truncating
// anything below the token's precision.
func FromDecimal(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// Ratio returns quote/base after normalizing both raw amounts by their
// decimals. A zero or negative base is a data integrity error.
func Ratio(quoteRaw *big.Int, quoteDecimals uint8, baseRaw *big.Int, baseDecimals uint8) (decimal.Decimal, error) {
	base := ToDecimal(baseRaw, baseDecimals)
	quote := ToDecimal(quoteRaw, quoteDecimals)
	if base.Sign() <= 0 || quote.Sign() <= 0 {
		return decimal.Zero, types.Errorf(types.KindDataIntegrity, "ratio", "zero reserve (base=%s quote=%s)", base, quote)
	}
	return quote.DivRound(base, PriceScale), nil
}

// Convert expresses amount of one token in another given price (to per from)
// and returns the raw integer in the target token's decimals.
func Convert(amount *big.Int, from types.Token, price decimal.Decimal, to types.Token) *big.Int {
	return FromDecimal(ToDecimal(amount, from.Decimals).Mul(price), to.Decimals)
}
