package arbitrage

import (
	"sort"

	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/gas"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
)

const swapsPerTrade = 2

var gweiPerEth = decimal.New(1, 9)

// Market holds the cycle's live inputs. Zero values fall back to configuration.
type Market struct {
	GasPriceGwei decimal.Decimal
	EthPriceUSD  decimal.Decimal
}

// CostOverrides replaces individual cost terms when set.
type CostOverrides struct {
	GasCostUSD           *decimal.Decimal
	TradingFeesUSD       *decimal.Decimal
	SlippageCostUSD      *decimal.Decimal
	MEVProtectionCostUSD *decimal.Decimal
	FlashLoanFeeUSD      *decimal.Decimal
}

// Estimator prices an opportunity under both funding strategies.
type Estimator struct {
	rc        config.RunConfig
	overrides CostOverrides
}

func NewEstimator(rc config.RunConfig, overrides CostOverrides) *Estimator {
	return &Estimator{rc: rc, overrides: overrides}
}

// Estimate models a regular trade of positionUSD and a flash loan trade of the
// configured loan notional. Best is the flash loan only when it is enabled,
// clears its own threshold and nets more than the regular trade.
func (e *Estimator) Estimate(opp types.Opportunity, positionUSD decimal.Decimal, m Market) types.Estimate {
	m = e.market(m)

	regular := e.regular(opp, positionUSD, m)
	flash := e.flash(opp, m)

	best := types.StrategyRegular
	if e.rc.FlashLoan.Enabled && flash.IsProfitable && flash.NetProfitUSD.GreaterThan(regular.NetProfitUSD) {
		best = types.StrategyFlashLoan
	}
	return types.Estimate{Regular: regular, FlashLoan: flash, Best: best}
}

func (e *Estimator) market(m Market) Market {
	if !m.GasPriceGwei.IsPositive() {
		m.GasPriceGwei = e.rc.Costs.BaseGasPriceGwei
	}
	if !m.EthPriceUSD.IsPositive() {
		m.EthPriceUSD = e.rc.Costs.EthPriceUSD
	}
	return m
}

// GrossProfit simulates spending notionalUSD of the quote token on the buy
// venue and selling everything received on the sell venue.
func GrossProfit(opp types.Opportunity, notionalUSD decimal.Decimal) decimal.Decimal {
	if opp.BuyPrice.Sign() <= 0 {
		return decimal.Zero
	}
	baseAmount := notionalUSD.DivRound(opp.BuyPrice, 18)
	return baseAmount.Mul(opp.SellPrice).Sub(notionalUSD)
}

// GasCostUSD converts gas units at gasPriceGwei into USD.
func GasCostUSD(units uint64, gasPriceGwei, ethPriceUSD decimal.Decimal) decimal.Decimal {
	eth := decimal.NewFromInt(int64(units)).Mul(gasPriceGwei).Div(gweiPerEth)
	return eth.Mul(ethPriceUSD)
}

func (e *Estimator) regular(opp types.Opportunity, positionUSD decimal.Decimal, m Market) types.ProfitModel {
	units := gas.TradeGas(e.rc.GasTier(positionUSD))

	model := types.ProfitModel{
		Strategy:             types.StrategyRegular,
		NotionalUSD:          positionUSD,
		GrossProfitUSD:       GrossProfit(opp, positionUSD),
		GasCostUSD:           pick(e.overrides.GasCostUSD, GasCostUSD(units, m.GasPriceGwei, m.EthPriceUSD)),
		TradingFeesUSD:       pick(e.overrides.TradingFeesUSD, e.perSwap(positionUSD, e.rc.Costs.FeePct)),
		SlippageCostUSD:      pick(e.overrides.SlippageCostUSD, e.perSwap(positionUSD, e.rc.Costs.SlippagePct)),
		MEVProtectionCostUSD: pick(e.overrides.MEVProtectionCostUSD, e.rc.Costs.MEVCostUSD),
		FlashLoanFeeUSD:      decimal.Zero,
	}
	return settle(model, e.rc.Costs.MinProfitUSD)
}

func (e *Estimator) flash(opp types.Opportunity, m Market) types.ProfitModel {
	loan := e.rc.FlashLoan.AmountUSD

	model := types.ProfitModel{
		Strategy:             types.StrategyFlashLoan,
		NotionalUSD:          loan,
		GrossProfitUSD:       GrossProfit(opp, loan),
		GasCostUSD:           pick(e.overrides.GasCostUSD, GasCostUSD(e.rc.FlashLoan.GasLimit, m.GasPriceGwei, m.EthPriceUSD)),
		TradingFeesUSD:       pick(e.overrides.TradingFeesUSD, e.perSwap(loan, e.rc.Costs.FeePct)),
		SlippageCostUSD:      pick(e.overrides.SlippageCostUSD, e.perSwap(loan, e.rc.Costs.SlippagePct)),
		MEVProtectionCostUSD: pick(e.overrides.MEVProtectionCostUSD, e.rc.Costs.MEVCostUSD),
		FlashLoanFeeUSD:      pick(e.overrides.FlashLoanFeeUSD, FlashLoanFee(loan, e.rc.FlashLoan.FeePct)),
	}
	return settle(model, e.rc.FlashLoan.MinProfitUSD)
}

// FlashLoanFee is loanUSD * feePct, unrounded.
func FlashLoanFee(loanUSD, feePct decimal.Decimal) decimal.Decimal {
	return loanUSD.Mul(feePct)
}

func (e *Estimator) perSwap(notional, pct decimal.Decimal) decimal.Decimal {
	return notional.Mul(pct).Mul(decimal.NewFromInt(swapsPerTrade))
}

func settle(m types.ProfitModel, threshold decimal.Decimal) types.ProfitModel {
	m.TotalCostsUSD = decimal.Sum(m.GasCostUSD, m.TradingFeesUSD, m.SlippageCostUSD, m.MEVProtectionCostUSD, m.FlashLoanFeeUSD)
	m.NetProfitUSD = m.GrossProfitUSD.Sub(m.TotalCostsUSD)
	m.IsProfitable = m.NetProfitUSD.GreaterThan(threshold)
	return m
}

func pick(override *decimal.Decimal, computed decimal.Decimal) decimal.Decimal {
	if override != nil {
		return *override
	}
	return computed
}

// RankProfitable keeps opportunities whose best model is profitable, ordered by
// that model's net profit descending. Opportunities without an estimate are dropped.
func RankProfitable(opps []types.Opportunity) []types.Opportunity {
	var ranked []types.Opportunity
	for _, o := range opps {
		if o.Estimate != nil && o.Estimate.BestModel().IsProfitable {
			ranked = append(ranked, o)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Estimate.BestModel().NetProfitUSD.GreaterThan(ranked[j].Estimate.BestModel().NetProfitUSD)
	})
	return ranked
}
