package arbitrage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/michaelpento.lv/dexarb/aggregator"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/tokens"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Rejection records why a candidate pair produced no opportunity.
type Rejection struct {
	Pair   string
	Reason string
	Kind   types.ErrorKind
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s: %s (%s)", r.Pair, r.Reason, r.Kind)
}

// Detector compares venues pair by pair. It holds no state between calls, so
// the same snapshot always yields the same ordered result.
type Detector struct {
	cfg    config.Detection
	allow  map[string]bool
	skip   map[string]bool
	logger *zap.Logger
}

// NewDetector creates a detector for one cycle's detection settings.
func NewDetector(cfg config.Detection, logger *zap.Logger) *Detector {
	d := &Detector{
		cfg:    cfg,
		allow:  make(map[string]bool, len(cfg.Pairs)),
		skip:   make(map[string]bool, len(cfg.SkipSymbols)),
		logger: logger,
	}
	for _, p := range cfg.Pairs {
		d.allow[p] = true
	}
	for _, s := range cfg.SkipSymbols {
		d.skip[strings.ToUpper(s)] = true
	}
	return d
}

// Detect returns at most one opportunity per token pair, ordered by profit
// percentage descending, then pair key, then buy venue.
func (d *Detector) Detect(snap *aggregator.Snapshot) ([]types.Opportunity, []Rejection) {
	var (
		opps       []types.Opportunity
		rejections []Rejection
	)

	for _, key := range snap.Pairs() {
		if len(d.allow) > 0 && !d.allow[key] {
			continue
		}
		points := snap.Points(key)
		if len(points) < 2 {
			continue
		}
		if d.skipped(points[0].Pair) {
			continue
		}

		partitions := partition(points)
		if len(partitions) > 1 {
			rejections = append(rejections, Rejection{
				Pair:   key,
				Reason: fmt.Sprintf("symbol collision: %d distinct token address sets", len(partitions)),
				Kind:   types.KindDataIntegrity,
			})
		}

		for _, group := range partitions {
			if len(group) < 2 {
				continue
			}
			opp, rej := d.evaluate(key, group)
			if rej != nil {
				rejections = append(rejections, *rej)
				continue
			}
			opp.DetectedAt = snap.TakenAt
			opps = append(opps, opp)
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		if c := opps[i].ProfitPct.Cmp(opps[j].ProfitPct); c != 0 {
			return c > 0
		}
		if a, b := opps[i].Pair.Key(), opps[j].Pair.Key(); a != b {
			return a < b
		}
		return opps[i].BuyVenue < opps[j].BuyVenue
	})

	d.logger.Debug("Detection finished",
		zap.Int("pairs", len(snap.Table)),
		zap.Int("opportunities", len(opps)),
		zap.Int("rejections", len(rejections)))
	return opps, rejections
}

func (d *Detector) skipped(pair types.Pair) bool {
	if tokens.IsSentinel(pair.Base) || tokens.IsSentinel(pair.Quote) {
		return true
	}
	return d.skip[strings.ToUpper(pair.Base.Symbol)] || d.skip[strings.ToUpper(pair.Quote.Symbol)]
}

// partition groups points by token addresses, keeping first-seen order.
func partition(points []types.PricePoint) [][]types.PricePoint {
	var (
		order  []string
		groups = make(map[string][]types.PricePoint)
	)
	for _, p := range points {
		k := p.Pair.AddressKey()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}

	out := make([][]types.PricePoint, len(order))
	for i, k := range order {
		out[i] = groups[k]
	}
	return out
}

func (d *Detector) evaluate(key string, points []types.PricePoint) (types.Opportunity, *Rejection) {
	buy, sell := points[0], points[0]
	for _, p := range points[1:] {
		// strict comparisons keep the first-seen venue on ties
		if p.Price.LessThan(buy.Price) {
			buy = p
		}
		if p.Price.GreaterThan(sell.Price) {
			sell = p
		}
	}

	if !sell.Price.GreaterThan(buy.Price) {
		return types.Opportunity{}, &Rejection{Pair: key, Reason: "no spread", Kind: types.KindValidation}
	}

	pct := ProfitPct(buy.Price, sell.Price)
	if pct.LessThan(d.cfg.MinProfitPct) {
		return types.Opportunity{}, &Rejection{
			Pair:   key,
			Reason: fmt.Sprintf("spread %s%% below %s%%", pct.StringFixed(4), d.cfg.MinProfitPct),
			Kind:   types.KindValidation,
		}
	}
	if d.cfg.MaxProfitPct.IsPositive() && pct.GreaterThan(d.cfg.MaxProfitPct) {
		return types.Opportunity{}, &Rejection{
			Pair:   key,
			Reason: fmt.Sprintf("spread %s%% above %s%%, likely stale data", pct.StringFixed(4), d.cfg.MaxProfitPct),
			Kind:   types.KindDataIntegrity,
		}
	}

	liquidity := decimal.Min(buy.LiquidityUSD, sell.LiquidityUSD)
	if liquidity.LessThan(d.cfg.MinLiquidityUSD) {
		return types.Opportunity{}, &Rejection{
			Pair:   key,
			Reason: fmt.Sprintf("liquidity %s below %s", liquidity.StringFixed(2), d.cfg.MinLiquidityUSD),
			Kind:   types.KindValidation,
		}
	}

	return types.Opportunity{
		Pair:         buy.Pair,
		BuyVenue:     buy.Venue,
		SellVenue:    sell.Venue,
		BuyPrice:     buy.Price,
		SellPrice:    sell.Price,
		ProfitPct:    pct,
		BuyPool:      buy.Pool,
		SellPool:     sell.Pool,
		LiquidityUSD: liquidity,
	}, nil
}

// ProfitPct is (sell - buy) / buy * 100.
func ProfitPct(buy, sell decimal.Decimal) decimal.Decimal {
	if buy.Sign() <= 0 {
		return decimal.Zero
	}
	return sell.Sub(buy).Mul(hundred).DivRound(buy, 18)
}
