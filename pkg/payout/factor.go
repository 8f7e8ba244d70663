package payout

import (
	"context"
	"fmt"

	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/store"
	"github.com/shopspring/decimal"
)

// Breakdown holds the per-day sums the factor is built from.
type Breakdown struct {
	ProductiveLabour decimal.Decimal // A
	PublicMeans      decimal.Decimal // Po
	PublicResources  decimal.Decimal // Ro
	PublicLabour     decimal.Decimal // Ao
}

// Factor is (A - (Po + Ro)) / (A + Ao), with a zero denominator replaced by one.
// The result is not rounded and may be negative or exceed one.
func (b Breakdown) Factor() decimal.Decimal {
	numerator := b.ProductiveLabour.Sub(b.PublicMeans.Add(b.PublicResources))
	denominator := b.ProductiveLabour.Add(b.PublicLabour)
	if denominator.IsZero() {
		denominator = decimal.NewFromInt(1)
	}
	return numerator.Div(denominator)
}

// Summarize adds up the daily costs of running plans, split by public service.
func Summarize(plans []*models.Plan) Breakdown {
	productive := models.ZeroCosts()
	public := models.ZeroCosts()
	for _, p := range plans {
		daily := p.DailyCosts()
		if p.IsPublicService {
			public = public.Add(daily)
		} else {
			productive = productive.Add(daily)
		}
	}
	return Breakdown{
		ProductiveLabour: productive.Labour,
		PublicMeans:      public.Means,
		PublicResources:  public.Resources,
		PublicLabour:     public.Labour,
	}
}

// Calculator computes the payout factor over the plans currently running.
type Calculator struct {
	plans store.PlanRepository
}

func NewCalculator(plans store.PlanRepository) *Calculator {
	return &Calculator{plans: plans}
}

// Breakdown reads productive and public running plans from the repository.
func (c *Calculator) Breakdown(ctx context.Context) (Breakdown, error) {
	productive, err := c.plans.AllProductivePlansApprovedActiveAndNotExpired(ctx)
	if err != nil {
		return Breakdown{}, fmt.Errorf("failed to load productive plans: %w", err)
	}
	public, err := c.plans.AllPublicPlansApprovedActiveAndNotExpired(ctx)
	if err != nil {
		return Breakdown{}, fmt.Errorf("failed to load public plans: %w", err)
	}
	return Summarize(append(productive, public...)), nil
}

func (c *Calculator) Calculate(ctx context.Context) (decimal.Decimal, error) {
	b, err := c.Breakdown(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return b.Factor(), nil
}

// Amount is the certificate payout of one plan for one day: factor times daily
// labour cost, rounded to two decimal places.
func Amount(factor decimal.Decimal, plan *models.Plan) decimal.Decimal {
	return factor.Mul(plan.DailyCosts().Labour).Round(2)
}
