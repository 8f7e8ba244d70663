package payout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/store"
	"github.com/shopspring/decimal"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func costs(m, r, a int64) models.ProductionCosts {
	return models.NewProductionCosts(decimal.NewFromInt(m), decimal.NewFromInt(r), decimal.NewFromInt(a))
}

func runningPlan(t *testing.T, s store.Storage, planner uuid.UUID, c models.ProductionCosts, timeframe int, public bool) *models.Plan {
	t.Helper()
	ctx := context.Background()
	d := &models.Draft{ID: uuid.New(), CreationDate: now, Planner: planner, Costs: c, AmountProduced: 1, TimeframeDays: timeframe, IsPublicService: public}
	if err := s.CreateDraft(ctx, d); err != nil {
		t.Fatalf("Failed to create draft: %v", err)
	}
	p, err := s.ApprovePlan(ctx, *d, now, "")
	if err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}
	if err := s.ActivatePlan(ctx, p, now); err != nil {
		t.Fatalf("Failed to activate: %v", err)
	}
	return p
}

func TestCalculator_Oracle(t *testing.T) {
	s := store.NewMemoryStore()
	planner := uuid.New()
	runningPlan(t, s, planner, costs(1, 1, 1), 2, false)
	runningPlan(t, s, planner, costs(3, 3, 3), 5, true)

	factor, err := NewCalculator(s).Calculate(context.Background())
	if err != nil {
		t.Fatalf("Failed to calculate factor: %v", err)
	}
	want := decimal.RequireFromString("-0.636363636")
	if !factor.Round(9).Equal(want) {
		t.Errorf("Expected payout factor %s, got %s", want, factor)
	}
}

func TestCalculator_IgnoresPlansNotRunning(t *testing.T) {
	s := store.NewMemoryStore()
	planner := uuid.New()
	runningPlan(t, s, planner, costs(0, 0, 10), 1, false)
	expired := runningPlan(t, s, planner, costs(100, 100, 100), 1, true)
	if err := s.SetPlanAsExpired(context.Background(), expired); err != nil {
		t.Fatalf("Failed to expire: %v", err)
	}

	factor, _ := NewCalculator(s).Calculate(context.Background())
	if !factor.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Expected payout factor 1, got %s", factor)
	}
}

func TestBreakdown_Factor(t *testing.T) {
	tests := []struct {
		name string
		b    Breakdown
		want decimal.Decimal
	}{
		{"no plans", Breakdown{}, decimal.Zero},
		{"public only, zero labour", Breakdown{PublicMeans: decimal.NewFromInt(2), PublicResources: decimal.NewFromInt(1)}, decimal.NewFromInt(-3)},
		{"productive only", Breakdown{ProductiveLabour: decimal.NewFromInt(4)}, decimal.NewFromInt(1)},
		{"above one", Breakdown{ProductiveLabour: decimal.NewFromInt(4), PublicMeans: decimal.NewFromInt(-4)}, decimal.NewFromInt(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Factor(); !got.Equal(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAmount_RoundsToCents(t *testing.T) {
	p := &models.Plan{Costs: costs(0, 0, 7), TimeframeDays: 5, AmountProduced: 1}
	got := Amount(decimal.NewFromInt(1), p)
	if !got.Equal(decimal.RequireFromString("1.4")) {
		t.Errorf("Expected 1.40, got %s", got)
	}

	p = &models.Plan{Costs: costs(0, 0, 10), TimeframeDays: 3, AmountProduced: 1}
	got = Amount(decimal.NewFromInt(1), p)
	if !got.Equal(decimal.RequireFromString("3.33")) {
		t.Errorf("Expected 3.33, got %s", got)
	}
}
