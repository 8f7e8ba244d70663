package cooperation

import (
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/shopspring/decimal"
)

// PricePerUnit is the blended price of a set of cooperating plans: their summed
// total costs over their summed produced amounts, or zero for an empty set. The
// result is not rounded.
func PricePerUnit(plans []*models.Plan) decimal.Decimal {
	if len(plans) == 0 {
		return decimal.Zero
	}
	cost := decimal.Zero
	amount := decimal.Zero
	for _, p := range plans {
		cost = cost.Add(p.Costs.Total())
		amount = amount.Add(decimal.NewFromInt(int64(p.AmountProduced)))
	}
	if amount.IsZero() {
		return decimal.Zero
	}
	return cost.Div(amount)
}
