package dex

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
)

// Query carries the per-cycle filters and valuation every adapter applies.
type Query struct {
	MinLiquidityUSD decimal.Decimal
	MinVolumeUSD    decimal.Decimal
	MinPrice        decimal.Decimal
	MaxPrice        decimal.Decimal

	Orienter *Orienter

	// QuoteUSD values one unit of a quote token in USD
	QuoteUSD func(token common.Address) (decimal.Decimal, bool)
}

// QueryFrom builds the adapter query for one cycle.
func QueryFrom(rc config.RunConfig) Query {
	return Query{
		MinLiquidityUSD: rc.Detection.MinLiquidityUSD,
		MinVolumeUSD:    rc.Detection.MinVolumeUSD,
		MinPrice:        rc.Detection.MinPrice,
		MaxPrice:        rc.Detection.MaxPrice,
		Orienter:        NewOrienter(rc.QuotePreference),
		QuoteUSD: func(token common.Address) (decimal.Decimal, bool) {
			return rc.QuoteUSD(token, rc.Costs.EthPriceUSD)
		},
	}
}

// Check applies the price bound and the liquidity and volume floors. hasVolume
// is false for venues that do not report volume.
func (q Query) Check(p types.PricePoint, hasVolume bool) error {
	if p.Price.Sign() <= 0 {
		return types.Errorf(types.KindDataIntegrity, "check price", "non-positive price %s", p.Price)
	}
	if (q.MinPrice.IsPositive() && p.Price.LessThan(q.MinPrice)) ||
		(q.MaxPrice.IsPositive() && p.Price.GreaterThan(q.MaxPrice)) {
		return types.Errorf(types.KindDataIntegrity, "check price",
			"price %s outside [%s, %s]", p.Price, q.MinPrice, q.MaxPrice)
	}
	if p.LiquidityUSD.LessThan(q.MinLiquidityUSD) {
		return types.Errorf(types.KindValidation, "check liquidity",
			"liquidity %s below %s", p.LiquidityUSD.StringFixed(2), q.MinLiquidityUSD)
	}
	if hasVolume && p.VolumeUSD.LessThan(q.MinVolumeUSD) {
		return types.Errorf(types.KindValidation, "check volume",
			"volume %s below %s", p.VolumeUSD.StringFixed(2), q.MinVolumeUSD)
	}
	return nil
}

// Skip attaches venue and pair context to a per-pool failure.
func Skip(venue string, pair string, err error) Result {
	var e *types.Error
	if errors.As(err, &e) {
		return Fail(e.WithVenue(venue).WithPair(pair))
	}
	return Fail(types.NewError(types.KindTransientFetch, "fetch pool", err).WithVenue(venue).WithPair(pair))
}
