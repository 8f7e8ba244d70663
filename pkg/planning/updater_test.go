package planning

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/ledger"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const day = 24 * time.Hour

func TestRun_PaysAtMostOncePerDay(t *testing.T) {
	f := newFixture(t)
	f.activePlan(t, costs(0, 0, 10), 5, false)
	u := f.updater(nil, nil)

	f.clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		if _, err := u.Run(f.ctx); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
		f.clock.Advance(time.Hour)
	}
	if n := len(f.labourTransactions(t)); n != 1 {
		t.Fatalf("Expected 1 payout on day D, got %d", n)
	}

	f.clock.Advance(day)
	report, err := u.Run(f.ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n := len(f.labourTransactions(t)); n != 2 {
		t.Errorf("Expected 2 payouts after day D+1, got %d", n)
	}
	if report.Payouts != 1 || report.SkippedAlreadyPaid != 0 {
		t.Errorf("Expected one fresh payout on D+1, got %+v", report)
	}
}

func TestRun_SkipsWhenIdempotencyKeyTaken(t *testing.T) {
	f := newFixture(t)
	plan := f.activePlan(t, costs(0, 0, 10), 5, false)

	// A payout recorded by another writer without updating the plan.
	_, err := f.ledger.Transfer(f.ctx, ledgerEntry(f, plan.ID))
	if err != nil {
		t.Fatalf("Failed to seed payout: %v", err)
	}

	report, err := f.updater(nil, nil).Run(f.ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.SkippedAlreadyPaid != 1 || report.Payouts != 0 {
		t.Errorf("Expected the payout to be skipped, got %+v", report)
	}
	if n := len(f.labourTransactions(t)); n != 1 {
		t.Errorf("Expected 1 labour transaction, got %d", n)
	}
}

func TestRun_NoPayoutOnExpirationDay(t *testing.T) {
	f := newFixture(t)
	plan := f.activePlan(t, costs(0, 0, 10), 1, false)

	f.clock.Advance(day)
	report, err := f.updater(nil, nil).Run(f.ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n := len(f.labourTransactions(t)); n != 0 {
		t.Errorf("Expected no certificate transactions, got %d", n)
	}
	if report.SkippedExpirationDay != 1 {
		t.Errorf("Expected one expiration-day skip, got %+v", report)
	}
	fetched, _ := f.store.GetPlan(f.ctx, plan.ID)
	if fetched.Expired {
		t.Error("Plan must not expire before its expiration date has passed")
	}
}

func TestRun_ExpiresPlansAndDeletesOffers(t *testing.T) {
	f := newFixture(t)
	plan := f.activePlan(t, costs(1, 1, 1), 5, false)
	for i := 0; i < 2; i++ {
		offer := &models.Offer{ID: uuid.New(), PlanID: plan.ID, Name: "bread", CreatedAt: start}
		if err := f.store.CreateOffer(f.ctx, offer); err != nil {
			t.Fatalf("Failed to create offer: %v", err)
		}
	}
	coop := &models.Cooperation{ID: uuid.New(), Name: "bakers", Coordinator: f.planner.ID, CreatedAt: start}
	f.store.CreateCooperation(f.ctx, coop)
	f.store.SetCooperation(f.ctx, plan, &coop.ID)

	f.clock.Advance(6 * day)
	report, err := f.updater(nil, nil).Run(f.ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.PlansExpired != 1 {
		t.Errorf("Expected 1 expired plan, got %d", report.PlansExpired)
	}

	fetched, _ := f.store.GetPlan(f.ctx, plan.ID)
	if !fetched.Expired || fetched.IsActive {
		t.Errorf("Expected expired and inactive, got expired=%v active=%v", fetched.Expired, fetched.IsActive)
	}
	if fetched.Cooperation != nil {
		t.Error("Expected cooperation to be cleared")
	}
	want := start.Add(5 * day)
	if fetched.ExpirationDate == nil || !fetched.ExpirationDate.Equal(want) {
		t.Errorf("Expected expiration date %s, got %v", want, fetched.ExpirationDate)
	}
	if fetched.ExpirationRelative == nil || *fetched.ExpirationRelative != -1 {
		t.Errorf("Expected expiration relative -1, got %v", fetched.ExpirationRelative)
	}
	offers, _ := f.store.GetAllOffersBelongingTo(f.ctx, plan.ID)
	if len(offers) != 0 {
		t.Errorf("Expected offers to be deleted, got %d", len(offers))
	}
	if n := len(f.labourTransactions(t)); n != 0 {
		t.Errorf("Expected no payout to an expired plan, got %d", n)
	}
}

func TestRun_RefreshesPresentationFields(t *testing.T) {
	f := newFixture(t)
	plan := f.activePlan(t, costs(1, 1, 1), 5, false)

	f.clock.Advance(2*day + time.Hour)
	if _, err := f.updater(nil, nil).Run(f.ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	fetched, _ := f.store.GetPlan(f.ctx, plan.ID)
	if fetched.ExpirationRelative == nil || *fetched.ExpirationRelative != 3 {
		t.Errorf("Expected 3 days remaining, got %v", fetched.ExpirationRelative)
	}
}

func TestRun_PayoutFactorAndAmount(t *testing.T) {
	f := newFixture(t)
	f.activePlan(t, costs(1, 1, 1), 2, false)
	f.activePlan(t, costs(3, 3, 3), 5, true)

	report, err := f.updater(nil, nil).Run(f.ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := decimal.RequireFromString("-0.636363636")
	if !report.PayoutFactor.Round(9).Equal(want) {
		t.Errorf("Expected payout factor %s, got %s", want, report.PayoutFactor)
	}
	latest, err := f.store.LatestPayoutFactor(f.ctx)
	if err != nil {
		t.Fatalf("Failed to load payout factor: %v", err)
	}
	if !latest.Value.Equal(report.PayoutFactor) || !latest.ComputedAt.Equal(start) {
		t.Errorf("Expected persisted factor %s at %s, got %+v", report.PayoutFactor, start, latest)
	}

	// Negative factors are paid as computed: -0.636... * 1/2 rounds to -0.32 and
	// -0.636... * 3/5 to -0.38.
	txs := f.labourTransactions(t)
	if len(txs) != 2 {
		t.Fatalf("Expected 2 payouts, got %d", len(txs))
	}
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.AmountReceived)
	}
	if !total.Equal(decimal.RequireFromString("-0.70")) {
		t.Errorf("Expected payouts -0.32 and -0.38, got total %s", total)
	}
}

func TestRun_AmountWithFactorOne(t *testing.T) {
	f := newFixture(t)
	plan := f.activePlan(t, costs(4, 4, 7), 5, false)

	report, err := f.updater(nil, nil).Run(f.ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.PayoutFactor.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("Expected payout factor 1, got %s", report.PayoutFactor)
	}
	txs := f.labourTransactions(t)
	if len(txs) != 1 {
		t.Fatalf("Expected 1 payout, got %d", len(txs))
	}
	if !txs[0].AmountSent.Equal(decimal.RequireFromString("1.40")) {
		t.Errorf("Expected payout 1.40, got %s", txs[0].AmountSent)
	}
	if txs[0].IdempotencyKey != PayoutKey(plan.ID, start) {
		t.Errorf("Expected key %s, got %s", PayoutKey(plan.ID, start), txs[0].IdempotencyKey)
	}
	if b := f.balance(t, f.planner.LabourAccount); !b.Equal(decimal.RequireFromString("1.4")) {
		t.Errorf("Expected labour balance 1.4, got %s", b)
	}
	fetched, _ := f.store.GetPlan(f.ctx, plan.ID)
	if fetched.LastCertificatePayout == nil || !fetched.LastCertificatePayout.Equal(start) {
		t.Errorf("Expected last payout %s, got %v", start, fetched.LastCertificatePayout)
	}
}

// corruptStore hands out one plan without its activation date, breaking the
// active-plan invariant.
type corruptStore struct {
	store.Storage
	broken uuid.UUID
}

func (c *corruptStore) LockPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	plan, err := c.Storage.LockPlan(ctx, id)
	if err == nil && id == c.broken {
		plan.ActivationDate = nil
	}
	return plan, err
}

func (c *corruptStore) WithinTransaction(ctx context.Context, fn func(store.Storage) error) error {
	return c.Storage.WithinTransaction(ctx, func(tx store.Storage) error {
		return fn(&corruptStore{Storage: tx, broken: c.broken})
	})
}

func TestRun_IsolatesFailingPlans(t *testing.T) {
	cs := &corruptStore{Storage: store.NewMemoryStore()}
	f := newFixtureWithStore(t, cs)
	broken := f.activePlan(t, costs(0, 0, 5), 5, false)
	healthy := f.activePlan(t, costs(0, 0, 5), 5, false)
	cs.broken = broken.ID

	core, logs := observer.New(zap.ErrorLevel)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	report, err := f.updater(metrics, zap.New(core)).Run(f.ctx)

	if err == nil {
		t.Fatal("Expected the run to report the broken plan")
	}
	if len(report.Failures) != 2 {
		t.Fatalf("Expected failures in both phases, got %+v", report.Failures)
	}
	for _, failure := range report.Failures {
		if failure.PlanID != broken.ID {
			t.Errorf("Expected failure for %s, got %s", broken.ID, failure.PlanID)
		}
	}
	if report.Payouts != 1 {
		t.Errorf("Expected the healthy plan to be paid, got %d payouts", report.Payouts)
	}
	fetched, _ := f.store.GetPlan(f.ctx, healthy.ID)
	if fetched.LastCertificatePayout == nil {
		t.Error("Expected healthy plan to record its payout")
	}

	failed := logs.FilterMessage("plan update failed").FilterField(zap.String("plan_id", broken.ID.String()))
	if failed.Len() != 2 {
		t.Errorf("Expected 2 failure logs for the broken plan, got %d", failed.Len())
	}
	if got := testutil.ToFloat64(metrics.PlanFailures.WithLabelValues(models.PhasePayout)); got != 1 {
		t.Errorf("Expected 1 payout failure metric, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Payouts); got != 1 {
		t.Errorf("Expected 1 payout metric, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Runs); got != 1 {
		t.Errorf("Expected 1 run metric, got %v", got)
	}
}

func TestRun_EmptyEconomy(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	report, err := f.updater(metrics, nil).Run(f.ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.PayoutFactor.IsZero() {
		t.Errorf("Expected payout factor 0, got %s", report.PayoutFactor)
	}
	if got := testutil.ToFloat64(metrics.PayoutFactor); got != 0 {
		t.Errorf("Expected gauge 0, got %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "laborledger_update_run_duration_seconds"); err != nil || n != 1 {
		t.Errorf("Expected run duration histogram, got %d (%v)", n, err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.activePlan(t, costs(0, 0, 5), 5, false)
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	_, err := f.updater(nil, nil).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func ledgerEntry(f *fixture, planID uuid.UUID) ledger.Entry {
	return ledger.Entry{
		Date:           start,
		From:           f.social.Account,
		To:             f.planner.LabourAccount,
		Amount:         decimal.NewFromInt(2),
		Purpose:        "manual payout",
		IdempotencyKey: PayoutKey(planID, start),
	}
}

func TestRun_NegativeFactorPaysEveryPlan(t *testing.T) {
	f := newFixture(t)
	first := f.activePlan(t, costs(0, 0, 10), 5, false)
	second := f.activePlan(t, costs(0, 0, 10), 5, false)
	public := f.activePlan(t, costs(100, 100, 1), 5, true)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	report, err := f.updater(metrics, nil).Run(f.ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// (4 - 40) / (4 + 0.2)
	if !report.PayoutFactor.IsNegative() {
		t.Fatalf("Expected a negative payout factor, got %s", report.PayoutFactor)
	}
	if report.Payouts != 3 || len(report.Failures) != 0 {
		t.Fatalf("Expected every plan paid without failures, got %+v", report)
	}
	for _, plan := range []*models.Plan{first, second, public} {
		fetched, _ := f.store.GetPlan(f.ctx, plan.ID)
		if fetched.LastCertificatePayout == nil {
			t.Errorf("Expected plan %s to record its payout", plan.ID)
		}
	}

	want := decimal.RequireFromString("-35.99")
	if !report.CertificatesPaid.Equal(want) {
		t.Errorf("Expected certificates paid %s, got %s", want, report.CertificatesPaid)
	}
	if b := f.balance(t, f.planner.LabourAccount); !b.Equal(want) {
		t.Errorf("Expected labour balance %s, got %s", want, b)
	}

	if got := testutil.ToFloat64(metrics.Payouts); got != 3 {
		t.Errorf("Expected 3 payout metrics, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.CertificatesPaid.WithLabelValues(directionDebited)); math.Abs(got-35.99) > 1e-9 {
		t.Errorf("Expected 35.99 debited, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.CertificatesPaid.WithLabelValues(directionCredited)); got != 0 {
		t.Errorf("Expected nothing credited, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.CertificatesPaidLastRun); math.Abs(got+35.99) > 1e-9 {
		t.Errorf("Expected last run gauge -35.99, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Runs); got != 1 {
		t.Errorf("Expected 1 run metric, got %v", got)
	}
}

// failingListStore cannot list active plans.
type failingListStore struct {
	store.Storage
}

func (failingListStore) AllActivePlans(ctx context.Context) ([]*models.Plan, error) {
	return nil, errors.New("connection lost")
}

func TestRun_LoadFailureStillFinishesRun(t *testing.T) {
	f := newFixtureWithStore(t, failingListStore{Storage: store.NewMemoryStore()})
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	core, logs := observer.New(zap.InfoLevel)

	report, err := f.updater(metrics, zap.New(core)).Run(f.ctx)
	if err == nil {
		t.Fatal("Expected the load failure to be reported")
	}
	if report.FinishedAt.IsZero() {
		t.Error("Expected FinishedAt to be set")
	}
	if got := testutil.ToFloat64(metrics.Runs); got != 1 {
		t.Errorf("Expected 1 run metric, got %v", got)
	}
	if logs.FilterMessage("plan update run finished").Len() != 1 {
		t.Error("Expected the run summary to be logged")
	}
}

func TestRun_SQLiteStore(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "updater.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	f := newFixtureWithStore(t, s)
	plan := f.activePlan(t, costs(0, 0, 10), 5, false)
	u := f.updater(nil, nil)

	f.clock.Advance(time.Hour)
	for i := 0; i < 2; i++ {
		if _, err := u.Run(f.ctx); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
	}
	if n := len(f.labourTransactions(t)); n != 1 {
		t.Fatalf("Expected 1 payout on day D, got %d", n)
	}

	f.clock.Advance(day)
	if _, err := u.Run(f.ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n := len(f.labourTransactions(t)); n != 2 {
		t.Fatalf("Expected 2 payouts by day D+1, got %d", n)
	}
	if b := f.balance(t, f.planner.LabourAccount); !b.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected labour balance 4, got %s", b)
	}

	f.clock.Set(start.Add(7 * day))
	report, err := u.Run(f.ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.PlansExpired != 1 || report.Payouts != 0 {
		t.Errorf("Expected the plan to expire unpaid, got %+v", report)
	}
	fetched, err := f.store.GetPlan(f.ctx, plan.ID)
	if err != nil {
		t.Fatalf("Failed to load plan: %v", err)
	}
	if !fetched.Expired || fetched.IsActive {
		t.Errorf("Expected expired and inactive, got expired=%v active=%v", fetched.Expired, fetched.IsActive)
	}
	if n := len(f.labourTransactions(t)); n != 2 {
		t.Errorf("Expected no payout after expiry, got %d", n)
	}
}
