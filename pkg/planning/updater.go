package planning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/clock"
	"github.com/mcclellann/laborledger/pkg/ledger"
	"github.com/mcclellann/laborledger/pkg/logger"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/payout"
	"github.com/mcclellann/laborledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	skipAlreadyPaid   = "already_paid"
	skipExpirationDay = "expiration_day"
	skipNotRunning    = "not_running"
)

// errAlreadyPaid rolls back a payout unit whose idempotency key is taken.
var errAlreadyPaid = errors.New("certificates already paid today")

// PlanUpdater expires plans that ran out and pays daily labour certificates to
// the ones still running.
type PlanUpdater struct {
	storage store.Storage
	ledger  *ledger.Ledger
	social  models.SocialAccounting
	clock   clock.DatetimeService
	metrics *Metrics
	logger  *zap.Logger

	// mu makes runs in this process strictly serial.
	mu sync.Mutex
}

func NewPlanUpdater(s store.Storage, led *ledger.Ledger, social models.SocialAccounting, c clock.DatetimeService, metrics *Metrics, log *zap.Logger) *PlanUpdater {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &PlanUpdater{
		storage: s,
		ledger:  led,
		social:  social,
		clock:   c,
		metrics: metrics,
		logger:  log,
	}
}

// Run performs one update pass. Expiration runs first so the payout factor and
// payouts only see plans that are still running. Each plan is handled in its own
// unit of work; a plan that fails is logged and reported, and the run continues.
// The returned error joins every per-plan failure.
func (u *PlanUpdater) Run(ctx context.Context) (models.RunReport, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	started := time.Now()
	now := u.clock.Now()
	report := models.RunReport{
		ID:               uuid.New(),
		StartedAt:        now,
		CertificatesPaid: decimal.Zero,
	}
	defer func() {
		u.metrics.RunDuration.Observe(time.Since(started).Seconds())
	}()

	var errs []error
	fail := func(planID uuid.UUID, phase string, err error) {
		report.Failures = append(report.Failures, models.PlanFailure{PlanID: planID, Phase: phase, Error: err.Error()})
		errs = append(errs, fmt.Errorf("plan %s %s: %w", planID, phase, err))
		u.metrics.PlanFailures.WithLabelValues(phase).Inc()
		logger.ForPlan(u.logger, planID).Error("plan update failed", zap.String("phase", phase), zap.Error(err))
	}

	active, err := u.storage.AllActivePlans(ctx)
	if err != nil {
		return u.finish(report, append(errs, fmt.Errorf("failed to load active plans: %w", err)))
	}
	for _, plan := range active {
		if err := ctx.Err(); err != nil {
			return u.finish(report, append(errs, err))
		}
		if err := u.isolate(func() error { return u.expireAndRecord(ctx, &report, plan.ID, now) }); err != nil {
			fail(plan.ID, models.PhaseExpiration, err)
		}
	}

	factor, err := payout.NewCalculator(u.storage).Calculate(ctx)
	if err != nil {
		return u.finish(report, append(errs, fmt.Errorf("failed to calculate payout factor: %w", err)))
	}
	report.PayoutFactor = factor
	u.metrics.PayoutFactor.Set(factor.InexactFloat64())
	if err := u.storage.CreatePayoutFactor(ctx, &models.PayoutFactor{ID: uuid.New(), Value: factor, ComputedAt: now}); err != nil {
		return u.finish(report, append(errs, fmt.Errorf("failed to store payout factor: %w", err)))
	}

	running, err := u.storage.AllPlansApprovedActiveAndNotExpired(ctx)
	if err != nil {
		return u.finish(report, append(errs, fmt.Errorf("failed to load running plans: %w", err)))
	}
	for _, plan := range running {
		if err := ctx.Err(); err != nil {
			return u.finish(report, append(errs, err))
		}
		if err := u.isolate(func() error { return u.payAndRecord(ctx, &report, plan.ID, factor, now) }); err != nil {
			fail(plan.ID, models.PhasePayout, err)
		}
	}

	return u.finish(report, errs)
}

func (u *PlanUpdater) finish(report models.RunReport, errs []error) (models.RunReport, error) {
	report.FinishedAt = u.clock.Now()
	u.metrics.Runs.Inc()
	u.metrics.CertificatesPaidLastRun.Set(report.CertificatesPaid.InexactFloat64())
	u.logger.Info("plan update run finished",
		zap.String("run_id", report.ID.String()),
		zap.String("payout_factor", report.PayoutFactor.String()),
		zap.Int("plans_expired", report.PlansExpired),
		zap.Int("payouts", report.Payouts),
		zap.String("certificates_paid", report.CertificatesPaid.String()),
		zap.Int("skipped_already_paid", report.SkippedAlreadyPaid),
		zap.Int("skipped_expiration_day", report.SkippedExpirationDay),
		zap.Int("failures", len(report.Failures)),
	)
	return report, errors.Join(errs...)
}

// isolate turns a panic inside fn into an error so one broken plan cannot abort
// the run.
func (u *PlanUpdater) isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("plan update panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// expireAndRecord expires one plan and counts it in the report.
func (u *PlanUpdater) expireAndRecord(ctx context.Context, report *models.RunReport, planID uuid.UUID, now time.Time) error {
	expired, err := u.expirePlan(ctx, planID, now)
	if err != nil {
		return err
	}
	if expired {
		report.PlansExpired++
		u.metrics.PlansExpired.Inc()
	}
	return nil
}

// payAndRecord pays one plan and counts the payout or the skip in the report.
func (u *PlanUpdater) payAndRecord(ctx context.Context, report *models.RunReport, planID uuid.UUID, factor decimal.Decimal, now time.Time) error {
	amount, skipped, err := u.payPlan(ctx, planID, factor, now)
	if err != nil {
		return err
	}
	switch skipped {
	case "":
		report.Payouts++
		report.CertificatesPaid = report.CertificatesPaid.Add(amount)
		u.metrics.Payouts.Inc()
		u.metrics.observeCertificates(amount.InexactFloat64())
		return nil
	case skipAlreadyPaid:
		report.SkippedAlreadyPaid++
	case skipExpirationDay:
		report.SkippedExpirationDay++
	}
	u.metrics.PayoutsSkipped.WithLabelValues(skipped).Inc()
	return nil
}

// expirePlan refreshes the presentation fields of an active plan and expires it
// once now is past its expiration date, deleting its offers.
func (u *PlanUpdater) expirePlan(ctx context.Context, planID uuid.UUID, now time.Time) (bool, error) {
	var expired bool
	err := u.storage.WithinTransaction(ctx, func(tx store.Storage) error {
		plan, err := tx.LockPlan(ctx, planID)
		if err != nil {
			return err
		}
		if !plan.IsActive {
			return nil
		}

		expiration := plan.ComputedExpirationDate()
		if err := tx.SetExpirationDate(ctx, plan, expiration); err != nil {
			return err
		}
		if err := tx.SetExpirationRelative(ctx, plan, daysRemaining(plan, now)); err != nil {
			return err
		}
		if !now.After(expiration) {
			return nil
		}

		offers, err := tx.GetAllOffersBelongingTo(ctx, plan.ID)
		if err != nil {
			return err
		}
		for _, offer := range offers {
			if err := tx.DeleteOffer(ctx, offer.ID); err != nil {
				return fmt.Errorf("failed to delete offer %s: %w", offer.ID, err)
			}
		}
		if err := tx.SetPlanAsExpired(ctx, plan); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		logger.ForPlan(u.logger, planID).Info("plan expired")
	}
	return expired, nil
}

// daysRemaining is the timeframe minus the whole days elapsed since activation.
func daysRemaining(plan *models.Plan, now time.Time) int {
	elapsed := now.Sub(*plan.ActivationDate).Hours() / 24
	return plan.TimeframeDays - int(math.Floor(elapsed))
}

// payPlan credits one day of labour certificates to a running plan. It returns
// the skip reason when a guard applies.
func (u *PlanUpdater) payPlan(ctx context.Context, planID uuid.UUID, factor decimal.Decimal, now time.Time) (decimal.Decimal, string, error) {
	var amount decimal.Decimal
	var skipped string

	err := u.ledger.InTransaction(ctx, u.storage, func(tx store.Storage, led *ledger.Ledger) error {
		plan, err := tx.LockPlan(ctx, planID)
		if err != nil {
			return err
		}
		if !plan.IsRunning() {
			skipped = skipNotRunning
			return nil
		}
		if plan.LastCertificatePayout != nil && clock.SameDay(*plan.LastCertificatePayout, now, now.Location()) {
			skipped = skipAlreadyPaid
			return nil
		}
		if clock.SameDay(plan.ComputedExpirationDate(), now, now.Location()) {
			skipped = skipExpirationDay
			return nil
		}

		planner, err := tx.GetCompany(ctx, plan.Planner)
		if err != nil {
			return fmt.Errorf("failed to load planner %s: %w", plan.Planner, err)
		}
		amount = payout.Amount(factor, plan)
		_, err = led.Transfer(ctx, ledger.Entry{
			Date:           now,
			From:           u.social.Account,
			To:             planner.LabourAccount,
			Amount:         amount,
			Purpose:        fmt.Sprintf("Labour certificates for plan %s", plan.ID),
			IdempotencyKey: PayoutKey(plan.ID, now),
		})
		if errors.Is(err, store.ErrDuplicateTransaction) {
			return errAlreadyPaid
		}
		if err != nil {
			return err
		}
		return tx.SetLastCertificatePayout(ctx, plan, now)
	})
	if errors.Is(err, errAlreadyPaid) {
		return decimal.Zero, skipAlreadyPaid, nil
	}
	if err != nil {
		return decimal.Zero, "", err
	}
	return amount, skipped, nil
}

// PayoutKey identifies the single payout a plan may receive on now's calendar day.
func PayoutKey(planID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("payout:%s:%s", planID, now.Format(time.DateOnly))
}
