package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/shopspring/decimal"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newDraft(planner uuid.UUID, public bool) *models.Draft {
	return &models.Draft{
		ID:              uuid.New(),
		CreationDate:    baseTime,
		Planner:         planner,
		Costs:           models.NewProductionCosts(decimal.NewFromInt(10), decimal.NewFromInt(20), decimal.NewFromInt(30)),
		ProductName:     "bread",
		Description:     "whole grain",
		Unit:            "loaf",
		AmountProduced:  60,
		TimeframeDays:   5,
		IsPublicService: public,
	}
}

func runStorageContract(t *testing.T, newStore func(t *testing.T) Storage) {
	t.Run("ApproveMovesDraftToPlan", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		company, err := s.CreateCompany(ctx, "bakery", "bakery@example.org", baseTime)
		if err != nil {
			t.Fatalf("Failed to create company: %v", err)
		}
		draft := newDraft(company.ID, false)
		if err := s.CreateDraft(ctx, draft); err != nil {
			t.Fatalf("Failed to create draft: %v", err)
		}

		plan, err := s.ApprovePlan(ctx, *draft, baseTime, "approved")
		if err != nil {
			t.Fatalf("Failed to approve plan: %v", err)
		}
		if plan.ID != draft.ID {
			t.Errorf("Expected plan id %s, got %s", draft.ID, plan.ID)
		}
		if _, err := s.GetDraft(ctx, draft.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected draft to be deleted, got %v", err)
		}

		fetched, err := s.GetPlan(ctx, plan.ID)
		if err != nil {
			t.Fatalf("Failed to get plan: %v", err)
		}
		if !fetched.Approved || fetched.ApprovalDate == nil || !fetched.ApprovalDate.Equal(baseTime) {
			t.Errorf("Expected approved plan with approval date %s, got %+v", baseTime, fetched)
		}
		if !fetched.Costs.Total().Equal(decimal.NewFromInt(60)) {
			t.Errorf("Expected total cost 60, got %s", fetched.Costs.Total())
		}
		if fetched.IsActive || fetched.ActivationDate != nil {
			t.Error("Approved plan must not be active yet")
		}
	})

	t.Run("ActivateAndExpireFilters", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		company, _ := s.CreateCompany(ctx, "works", "works@example.org", baseTime)
		productive := newDraft(company.ID, false)
		public := newDraft(company.ID, true)
		s.CreateDraft(ctx, productive)
		s.CreateDraft(ctx, public)
		p1, _ := s.ApprovePlan(ctx, *productive, baseTime, "")
		p2, _ := s.ApprovePlan(ctx, *public, baseTime, "")

		if err := s.ActivatePlan(ctx, p1, baseTime); err != nil {
			t.Fatalf("Failed to activate plan: %v", err)
		}
		if err := s.ActivatePlan(ctx, p2, baseTime); err != nil {
			t.Fatalf("Failed to activate plan: %v", err)
		}
		if !p1.IsActive || p1.ActivationDate == nil {
			t.Error("Expected caller's plan to reflect activation")
		}

		active, _ := s.AllActivePlans(ctx)
		if len(active) != 2 {
			t.Errorf("Expected 2 active plans, got %d", len(active))
		}
		prod, _ := s.AllProductivePlansApprovedActiveAndNotExpired(ctx)
		if len(prod) != 1 || prod[0].ID != p1.ID {
			t.Errorf("Expected productive plan %s, got %v", p1.ID, prod)
		}
		pub, _ := s.AllPublicPlansApprovedActiveAndNotExpired(ctx)
		if len(pub) != 1 || pub[0].ID != p2.ID {
			t.Errorf("Expected public plan %s, got %v", p2.ID, pub)
		}

		if err := s.SetPlanAsExpired(ctx, p1); err != nil {
			t.Fatalf("Failed to expire plan: %v", err)
		}
		running, _ := s.AllPlansApprovedActiveAndNotExpired(ctx)
		if len(running) != 1 || running[0].ID != p2.ID {
			t.Errorf("Expected only plan %s running, got %v", p2.ID, running)
		}
		fetched, _ := s.GetPlan(ctx, p1.ID)
		if !fetched.Expired || fetched.IsActive {
			t.Errorf("Expected expired inactive plan, got expired=%v active=%v", fetched.Expired, fetched.IsActive)
		}
	})

	t.Run("PresentationFieldsAndPayoutDate", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		company, _ := s.CreateCompany(ctx, "works", "works@example.org", baseTime)
		d := newDraft(company.ID, false)
		s.CreateDraft(ctx, d)
		plan, _ := s.ApprovePlan(ctx, *d, baseTime, "")
		s.ActivatePlan(ctx, plan, baseTime)

		exp := baseTime.AddDate(0, 0, 5)
		payout := baseTime.Add(2 * time.Hour)
		if err := s.SetExpirationDate(ctx, plan, exp); err != nil {
			t.Fatalf("Failed to set expiration date: %v", err)
		}
		if err := s.SetExpirationRelative(ctx, plan, 4); err != nil {
			t.Fatalf("Failed to set expiration relative: %v", err)
		}
		if err := s.SetLastCertificatePayout(ctx, plan, payout); err != nil {
			t.Fatalf("Failed to set payout date: %v", err)
		}

		fetched, _ := s.GetPlan(ctx, plan.ID)
		if fetched.ExpirationDate == nil || !fetched.ExpirationDate.Equal(exp) {
			t.Errorf("Expected expiration date %s, got %v", exp, fetched.ExpirationDate)
		}
		if fetched.ExpirationRelative == nil || *fetched.ExpirationRelative != 4 {
			t.Errorf("Expected expiration relative 4, got %v", fetched.ExpirationRelative)
		}
		if fetched.LastCertificatePayout == nil || !fetched.LastCertificatePayout.Equal(payout) {
			t.Errorf("Expected last payout %s, got %v", payout, fetched.LastCertificatePayout)
		}
	})

	t.Run("TransactionsAreIdempotentByKey", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		sa, err := s.CreateSocialAccounting(ctx)
		if err != nil {
			t.Fatalf("Failed to create social accounting: %v", err)
		}
		company, _ := s.CreateCompany(ctx, "works", "works@example.org", baseTime)

		tx := &models.Transaction{
			ID:               uuid.New(),
			Date:             baseTime,
			SendingAccount:   sa.Account,
			ReceivingAccount: company.LabourAccount,
			AmountSent:       decimal.NewFromFloat(12.5),
			AmountReceived:   decimal.NewFromFloat(12.5),
			Purpose:          "payout",
			IdempotencyKey:   "payout:test:2024-03-01",
		}
		if err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("Failed to create transaction: %v", err)
		}
		dup := *tx
		dup.ID = uuid.New()
		if err := s.CreateTransaction(ctx, &dup); !errors.Is(err, ErrDuplicateTransaction) {
			t.Errorf("Expected ErrDuplicateTransaction, got %v", err)
		}

		received, _ := s.AllTransactionsReceivedByAccount(ctx, company.LabourAccount)
		if len(received) != 1 {
			t.Fatalf("Expected 1 received transaction, got %d", len(received))
		}
		if !received[0].AmountReceived.Equal(decimal.NewFromFloat(12.5)) {
			t.Errorf("Expected amount 12.5, got %s", received[0].AmountReceived)
		}
		sent, _ := s.AllTransactionsSentByAccount(ctx, sa.Account)
		if len(sent) != 1 {
			t.Errorf("Expected 1 sent transaction, got %d", len(sent))
		}
	})

	t.Run("DivergentTransactions", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		sa, _ := s.CreateSocialAccounting(ctx)
		company, _ := s.CreateCompany(ctx, "works", "works@example.org", baseTime)
		s.CreateTransaction(ctx, &models.Transaction{
			ID: uuid.New(), Date: baseTime, SendingAccount: sa.Account, ReceivingAccount: company.MeansAccount,
			AmountSent: decimal.NewFromInt(5), AmountReceived: decimal.RequireFromString("5.00"), Purpose: "same",
		})
		s.CreateTransaction(ctx, &models.Transaction{
			ID: uuid.New(), Date: baseTime, SendingAccount: sa.Account, ReceivingAccount: company.MeansAccount,
			AmountSent: decimal.NewFromInt(5), AmountReceived: decimal.NewFromInt(4), Purpose: "different",
		})

		divergent, err := s.DivergentTransactions(ctx)
		if err != nil {
			t.Fatalf("Failed to list divergent transactions: %v", err)
		}
		if len(divergent) != 1 || divergent[0].Purpose != "different" {
			t.Errorf("Expected only the divergent transaction, got %v", divergent)
		}
	})

	t.Run("AccountOwners", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		member, err := s.CreateMember(ctx, "ada", "ada@example.org", baseTime)
		if err != nil {
			t.Fatalf("Failed to create member: %v", err)
		}
		acc, err := s.GetAccount(ctx, member.Account)
		if err != nil {
			t.Fatalf("Failed to get account: %v", err)
		}
		if acc.Type != models.AccountTypeMember {
			t.Errorf("Expected member account, got %s", acc.Type)
		}
		owner, ok := acc.Owner.(models.MemberOwner)
		if !ok || owner.ID != member.ID {
			t.Errorf("Expected member owner %s, got %#v", member.ID, acc.Owner)
		}
		if _, err := s.CreateSocialAccounting(ctx); err != nil {
			t.Fatalf("Failed to create social accounting: %v", err)
		}
		if _, err := s.CreateSocialAccounting(ctx); err == nil {
			t.Error("Expected second social accounting to be refused")
		}
	})

	t.Run("OffersAndCooperation", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		company, _ := s.CreateCompany(ctx, "works", "works@example.org", baseTime)
		d := newDraft(company.ID, false)
		s.CreateDraft(ctx, d)
		plan, _ := s.ApprovePlan(ctx, *d, baseTime, "")

		offer := &models.Offer{ID: uuid.New(), PlanID: plan.ID, Name: "bread", Description: "fresh", CreatedAt: baseTime}
		if err := s.CreateOffer(ctx, offer); err != nil {
			t.Fatalf("Failed to create offer: %v", err)
		}
		offers, _ := s.GetAllOffersBelongingTo(ctx, plan.ID)
		if len(offers) != 1 {
			t.Fatalf("Expected 1 offer, got %d", len(offers))
		}
		if err := s.DeleteOffer(ctx, offer.ID); err != nil {
			t.Fatalf("Failed to delete offer: %v", err)
		}
		offers, _ = s.GetAllOffersBelongingTo(ctx, plan.ID)
		if len(offers) != 0 {
			t.Errorf("Expected no offers, got %d", len(offers))
		}

		coop := &models.Cooperation{ID: uuid.New(), Name: "bakers", Definition: "bread", Coordinator: company.ID, CreatedAt: baseTime}
		if err := s.CreateCooperation(ctx, coop); err != nil {
			t.Fatalf("Failed to create cooperation: %v", err)
		}
		if err := s.SetRequestedCooperation(ctx, plan, &coop.ID); err != nil {
			t.Fatalf("Failed to request cooperation: %v", err)
		}
		if err := s.SetCooperation(ctx, plan, &coop.ID); err != nil {
			t.Fatalf("Failed to set cooperation: %v", err)
		}
		members, _ := s.PlansByCooperation(ctx, coop.ID)
		if len(members) != 1 || members[0].RequestedCooperation != nil {
			t.Errorf("Expected one cooperating plan with request cleared, got %v", members)
		}
	})

	t.Run("PayoutFactorHistory", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		if _, err := s.LatestPayoutFactor(ctx); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
		s.CreatePayoutFactor(ctx, &models.PayoutFactor{ID: uuid.New(), Value: decimal.NewFromFloat(0.5), ComputedAt: baseTime})
		s.CreatePayoutFactor(ctx, &models.PayoutFactor{ID: uuid.New(), Value: decimal.NewFromFloat(0.75), ComputedAt: baseTime.Add(time.Hour)})
		latest, err := s.LatestPayoutFactor(ctx)
		if err != nil {
			t.Fatalf("Failed to get latest payout factor: %v", err)
		}
		if !latest.Value.Equal(decimal.NewFromFloat(0.75)) {
			t.Errorf("Expected latest payout factor 0.75, got %s", latest.Value)
		}
	})

	t.Run("WithinTransactionRollsBack", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		company, _ := s.CreateCompany(ctx, "works", "works@example.org", baseTime)
		d := newDraft(company.ID, false)
		s.CreateDraft(ctx, d)
		plan, _ := s.ApprovePlan(ctx, *d, baseTime, "")

		boom := errors.New("boom")
		err := s.WithinTransaction(ctx, func(tx Storage) error {
			locked, err := tx.LockPlan(ctx, plan.ID)
			if err != nil {
				return err
			}
			if err := tx.ActivatePlan(ctx, locked, baseTime); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Expected boom, got %v", err)
		}
		fetched, _ := s.GetPlan(ctx, plan.ID)
		if fetched.IsActive {
			t.Error("Expected activation to be rolled back")
		}

		err = s.WithinTransaction(ctx, func(tx Storage) error {
			locked, err := tx.LockPlan(ctx, plan.ID)
			if err != nil {
				return err
			}
			return tx.ActivatePlan(ctx, locked, baseTime)
		})
		if err != nil {
			t.Fatalf("Failed to commit unit of work: %v", err)
		}
		fetched, _ = s.GetPlan(ctx, plan.ID)
		if !fetched.IsActive {
			t.Error("Expected activation to be committed")
		}
	})

	t.Run("RejectAndDelete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		company, _ := s.CreateCompany(ctx, "works", "works@example.org", baseTime)
		d := newDraft(company.ID, false)
		s.CreateDraft(ctx, d)
		plan, err := s.RejectPlan(ctx, *d, baseTime, "costs too high")
		if err != nil {
			t.Fatalf("Failed to reject plan: %v", err)
		}
		if plan.Approved || plan.RejectionDate == nil || plan.Status() != models.PlanStatusRejected {
			t.Errorf("Expected rejected plan, got %+v", plan)
		}
		if err := s.DeletePlan(ctx, plan.ID); err != nil {
			t.Fatalf("Failed to delete plan: %v", err)
		}
		if _, err := s.GetPlan(ctx, plan.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		return NewMemoryStore()
	})
}
