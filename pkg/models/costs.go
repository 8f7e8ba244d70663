package models

import "github.com/shopspring/decimal"

// ProductionCosts is the (means, resources, labour) cost triple of a plan.
type ProductionCosts struct {
	Means     decimal.Decimal `json:"means_cost"`
	Resources decimal.Decimal `json:"resource_cost"`
	Labour    decimal.Decimal `json:"labour_cost"`
}

// ZeroCosts returns a cost triple with every component set to zero.
func ZeroCosts() ProductionCosts {
	return ProductionCosts{Means: decimal.Zero, Resources: decimal.Zero, Labour: decimal.Zero}
}

// NewProductionCosts builds a cost triple.
func NewProductionCosts(means, resources, labour decimal.Decimal) ProductionCosts {
	return ProductionCosts{Means: means, Resources: resources, Labour: labour}
}

// Total is the sum of the three components.
func (c ProductionCosts) Total() decimal.Decimal {
	return c.Means.Add(c.Resources).Add(c.Labour)
}

func (c ProductionCosts) Add(other ProductionCosts) ProductionCosts {
	return ProductionCosts{
		Means:     c.Means.Add(other.Means),
		Resources: c.Resources.Add(other.Resources),
		Labour:    c.Labour.Add(other.Labour),
	}
}

// Div divides every component by d, e.g. a timeframe in days or a produced amount.
// d must not be zero.
func (c ProductionCosts) Div(d decimal.Decimal) ProductionCosts {
	return ProductionCosts{
		Means:     c.Means.Div(d),
		Resources: c.Resources.Div(d),
		Labour:    c.Labour.Div(d),
	}
}

// IsNegative reports whether any component is below zero.
func (c ProductionCosts) IsNegative() bool {
	return c.Means.IsNegative() || c.Resources.IsNegative() || c.Labour.IsNegative()
}
