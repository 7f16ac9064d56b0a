package executor

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/tokens"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/michaelpento.lv/dexarb/utils/math"
)

// NewPlan sizes a trade of opp. The input is the quote token: the buy leg
// spends it for the base token and the sell leg converts the base back.
func NewPlan(opp types.Opportunity, strategy types.Strategy, rc config.RunConfig) (types.ExecutionPlan, error) {
	position := rc.Costs.PositionUSD
	if strategy == types.StrategyFlashLoan {
		position = rc.FlashLoan.AmountUSD
	}
	if !position.IsPositive() {
		return types.ExecutionPlan{}, types.Errorf(types.KindValidation, "plan", "position size %s is not positive", position)
	}
	if !opp.BuyPrice.IsPositive() {
		return types.ExecutionPlan{}, types.Errorf(types.KindValidation, "plan", "buy price %s is not positive", opp.BuyPrice)
	}

	input, output := opp.Pair.Quote, opp.Pair.Base
	quoteUSD, ok := rc.QuoteUSD(input.Address, rc.Costs.EthPriceUSD)
	if !ok {
		return types.ExecutionPlan{}, types.Errorf(types.KindValidation, "plan", "no USD value for quote token %s", input.Symbol).
			WithPair(opp.Pair.Key())
	}

	inputUnits := position.DivRound(quoteUSD, tokens.PriceScale)
	amountIn := tokens.FromDecimal(inputUnits, input.Decimals)
	expectedOut := tokens.FromDecimal(inputUnits.DivRound(opp.BuyPrice, tokens.PriceScale), output.Decimals)
	if amountIn.Sign() <= 0 || expectedOut.Sign() <= 0 {
		return types.ExecutionPlan{}, types.Errorf(types.KindValidation, "plan", "position %s USD rounds to zero", position).
			WithPair(opp.Pair.Key())
	}

	plan := types.ExecutionPlan{
		ID:           uuid.New(),
		Opportunity:  opp,
		Strategy:     strategy,
		PositionUSD:  position,
		InputToken:   input,
		OutputToken:  output,
		AmountIn:     amountIn,
		ExpectedOut:  expectedOut,
		MinAmountOut: math.ApplySlippage(expectedOut, rc.Execution.MaxSlippage),
		CreatedAt:    time.Now(),
	}
	if rc.Execution.DisableMinOutFloor {
		plan.MinAmountOut = new(big.Int)
		plan.Unsafe = true
	}
	return plan, nil
}
