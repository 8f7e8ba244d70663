package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/clock"
	"github.com/mcclellann/laborledger/pkg/cooperation"
	"github.com/mcclellann/laborledger/pkg/ledger"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service pays for products out of running plans.
type Service struct {
	storage store.Storage
	ledger  *ledger.Ledger
	clock   clock.DatetimeService
	logger  *zap.Logger
}

func NewService(s store.Storage, led *ledger.Ledger, c clock.DatetimeService, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: s, ledger: led, clock: c, logger: logger}
}

type Response struct {
	Rejection   models.RejectionReason
	Transaction *models.Transaction
}

func (r Response) IsRejected() bool { return r.Rejection != models.RejectionNone }

type MeansOfProductionRequest struct {
	Buyer   uuid.UUID
	PlanID  uuid.UUID
	Amount  int
	Purpose models.AccountType
}

// PayMeansOfProduction moves price times amount from the buying company's means
// or resource account to the planner's product account.
func (s *Service) PayMeansOfProduction(ctx context.Context, req MeansOfProductionRequest) (Response, error) {
	return s.pay(ctx, req.PlanID, func(tx store.Storage, plan *models.Plan) (uuid.UUID, models.RejectionReason, error) {
		if plan.IsPublicService {
			return uuid.Nil, models.RejectionCantBuyPublicServices, nil
		}
		buyer, err := tx.GetCompany(ctx, req.Buyer)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return uuid.Nil, models.RejectionBuyerNotFound, nil
			}
			return uuid.Nil, models.RejectionNone, err
		}
		if buyer.ID == plan.Planner {
			return uuid.Nil, models.RejectionBuyerIsPlanner, nil
		}
		if req.Amount <= 0 {
			return uuid.Nil, models.RejectionInvalidAmount, nil
		}
		switch req.Purpose {
		case models.AccountTypeMeans:
			return buyer.MeansAccount, models.RejectionNone, nil
		case models.AccountTypeResources:
			return buyer.ResourceAccount, models.RejectionNone, nil
		default:
			return uuid.Nil, models.RejectionInvalidPurpose, nil
		}
	}, req.Amount, fmt.Sprintf("Purchase of %d units (%s)", req.Amount, req.Purpose))
}

type ConsumerProductRequest struct {
	Member uuid.UUID
	PlanID uuid.UUID
	Amount int
}

// PayConsumerProduct moves price times amount from a member's certificate account
// to the planner's product account. Members cannot overdraw.
func (s *Service) PayConsumerProduct(ctx context.Context, req ConsumerProductRequest) (Response, error) {
	return s.pay(ctx, req.PlanID, func(tx store.Storage, plan *models.Plan) (uuid.UUID, models.RejectionReason, error) {
		member, err := tx.GetMember(ctx, req.Member)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return uuid.Nil, models.RejectionBuyerNotFound, nil
			}
			return uuid.Nil, models.RejectionNone, err
		}
		if req.Amount <= 0 {
			return uuid.Nil, models.RejectionInvalidAmount, nil
		}
		return member.Account, models.RejectionNone, nil
	}, req.Amount, fmt.Sprintf("Consumer purchase of %d units", req.Amount))
}

type payerFunc func(tx store.Storage, plan *models.Plan) (uuid.UUID, models.RejectionReason, error)

func (s *Service) pay(ctx context.Context, planID uuid.UUID, payer payerFunc, amount int, purpose string) (Response, error) {
	var resp Response
	consumer := false
	err := s.ledger.InTransaction(ctx, s.storage, func(tx store.Storage, led *ledger.Ledger) error {
		plan, err := tx.LockPlan(ctx, planID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.Rejection = models.RejectionPlanNotFound
				return nil
			}
			return err
		}
		if !plan.IsRunning() {
			resp.Rejection = models.RejectionPlanInactive
			return nil
		}

		from, reason, err := payer(tx, plan)
		if err != nil || reason != models.RejectionNone {
			resp.Rejection = reason
			return err
		}
		acc, err := tx.GetAccount(ctx, from)
		if err != nil {
			return fmt.Errorf("failed to load paying account: %w", err)
		}
		planner, err := tx.GetCompany(ctx, plan.Planner)
		if err != nil {
			return fmt.Errorf("failed to load planner %s: %w", plan.Planner, err)
		}

		price, err := cooperation.PlanPrice(ctx, tx, plan)
		if err != nil {
			return err
		}
		cost := price.Mul(decimal.NewFromInt(int64(amount)))

		if acc.Type == models.AccountTypeMember {
			consumer = true
			balance, err := led.Balance(ctx, from)
			if err != nil {
				return err
			}
			if balance.LessThan(cost) {
				resp.Rejection = models.RejectionInsufficientBalance
				return nil
			}
		}

		resp.Transaction, err = led.Transfer(ctx, ledger.Entry{
			Date:    s.clock.Now(),
			From:    from,
			To:      planner.ProductAccount,
			Amount:  cost,
			Purpose: purpose,
		})
		return err
	})
	if err != nil {
		return Response{}, err
	}
	if resp.Transaction != nil {
		s.logger.Info("purchase paid",
			zap.String("plan_id", planID.String()),
			zap.Bool("consumer", consumer),
			zap.String("amount", resp.Transaction.AmountSent.String()),
		)
	}
	return resp, nil
}
