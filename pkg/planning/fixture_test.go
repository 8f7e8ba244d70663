package planning

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/clock"
	"github.com/mcclellann/laborledger/pkg/ledger"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var start = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx     context.Context
	store   store.Storage
	clock   *clock.Fake
	ledger  *ledger.Ledger
	social  *models.SocialAccounting
	planner *models.Company
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, store.NewMemoryStore())
}

func newFixtureWithStore(t *testing.T, s store.Storage) *fixture {
	t.Helper()
	ctx := context.Background()
	social, err := s.CreateSocialAccounting(ctx)
	if err != nil {
		t.Fatalf("Failed to create social accounting: %v", err)
	}
	planner, err := s.CreateCompany(ctx, "bakery", "bakery@example.org", start)
	if err != nil {
		t.Fatalf("Failed to create company: %v", err)
	}
	c := clock.NewFake(start)
	led := ledger.New(s, s, nil)
	return &fixture{
		ctx:     ctx,
		store:   s,
		clock:   c,
		ledger:  led,
		social:  social,
		planner: planner,
		svc:     NewService(s, led, *social, c),
	}
}

func (f *fixture) updater(metrics *Metrics, logger *zap.Logger) *PlanUpdater {
	return NewPlanUpdater(f.store, f.ledger, *f.social, f.clock, metrics, logger)
}

func costs(m, r, a int64) models.ProductionCosts {
	return models.NewProductionCosts(decimal.NewFromInt(m), decimal.NewFromInt(r), decimal.NewFromInt(a))
}

// activePlan files, approves and activates a plan through the use cases at the
// fixture's current time.
func (f *fixture) activePlan(t *testing.T, c models.ProductionCosts, timeframe int, public bool) *models.Plan {
	t.Helper()
	draft, err := f.svc.CreateDraft(f.ctx, CreateDraftRequest{
		Planner: f.planner.ID, Costs: c, ProductName: "bread", Unit: "loaf",
		AmountProduced: 10, TimeframeDays: timeframe, IsPublicService: public,
	})
	if err != nil || draft.IsRejected() {
		t.Fatalf("Failed to create draft: %v %s", err, draft.Rejection)
	}
	approval, err := f.svc.SeekApproval(f.ctx, draft.DraftID, nil)
	if err != nil || approval.IsRejected() {
		t.Fatalf("Failed to approve: %v %s", err, approval.Rejection)
	}
	activation, err := f.svc.ActivatePlan(f.ctx, approval.PlanID)
	if err != nil || activation.IsRejected() {
		t.Fatalf("Failed to activate: %v %s", err, activation.Rejection)
	}
	plan, err := f.store.GetPlan(f.ctx, approval.PlanID)
	if err != nil {
		t.Fatalf("Failed to load plan: %v", err)
	}
	return plan
}

func (f *fixture) balance(t *testing.T, account uuid.UUID) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.Balance(f.ctx, account)
	if err != nil {
		t.Fatalf("Failed to read balance: %v", err)
	}
	return b
}

func (f *fixture) labourTransactions(t *testing.T) []*models.Transaction {
	t.Helper()
	txs, err := f.store.AllTransactionsReceivedByAccount(f.ctx, f.planner.LabourAccount)
	if err != nil {
		t.Fatalf("Failed to list transactions: %v", err)
	}
	return txs
}
