package cooperation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/clock"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service manages cooperations and the requests of plans to join them.
type Service struct {
	storage store.Storage
	clock   clock.DatetimeService
	logger  *zap.Logger
}

func NewService(s store.Storage, c clock.DatetimeService, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: s, clock: c, logger: logger}
}

type CreateCooperationRequest struct {
	Coordinator uuid.UUID
	Name        string
	Definition  string
}

type CreateCooperationResponse struct {
	Rejection     models.RejectionReason
	CooperationID uuid.UUID
}

func (r CreateCooperationResponse) IsRejected() bool { return r.Rejection != models.RejectionNone }

// CreateCooperation registers a new cooperation coordinated by an existing company.
func (s *Service) CreateCooperation(ctx context.Context, req CreateCooperationRequest) (CreateCooperationResponse, error) {
	if _, err := s.storage.GetCompany(ctx, req.Coordinator); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CreateCooperationResponse{Rejection: models.RejectionCompanyNotFound}, nil
		}
		return CreateCooperationResponse{}, err
	}
	coop := &models.Cooperation{
		ID:          uuid.New(),
		Name:        req.Name,
		Definition:  req.Definition,
		Coordinator: req.Coordinator,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.storage.CreateCooperation(ctx, coop); err != nil {
		return CreateCooperationResponse{}, fmt.Errorf("failed to store cooperation: %w", err)
	}
	s.logger.Info("cooperation created", zap.String("cooperation_id", coop.ID.String()), zap.String("coordinator", req.Coordinator.String()))
	return CreateCooperationResponse{CooperationID: coop.ID}, nil
}

// Request identifies a plan, a cooperation and the company acting on them.
type Request struct {
	Requester     uuid.UUID
	PlanID        uuid.UUID
	CooperationID uuid.UUID
}

type Response struct {
	Rejection models.RejectionReason
}

func (r Response) IsRejected() bool { return r.Rejection != models.RejectionNone }

func rejected(reason models.RejectionReason) (Response, error) {
	return Response{Rejection: reason}, nil
}

// loadPlan reads and locks a plan inside tx, mapping a missing plan to a rejection.
func loadPlan(ctx context.Context, tx store.Storage, id uuid.UUID) (*models.Plan, models.RejectionReason, error) {
	plan, err := tx.LockPlan(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.RejectionPlanNotFound, nil
		}
		return nil, models.RejectionNone, err
	}
	return plan, models.RejectionNone, nil
}

func loadCooperation(ctx context.Context, tx store.Storage, id uuid.UUID) (*models.Cooperation, models.RejectionReason, error) {
	coop, err := tx.GetCooperation(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.RejectionCooperationNotFound, nil
		}
		return nil, models.RejectionNone, err
	}
	return coop, models.RejectionNone, nil
}

// run executes decide in one unit of work; a rejection leaves storage untouched.
func (s *Service) run(ctx context.Context, decide func(tx store.Storage) (models.RejectionReason, error)) (Response, error) {
	var resp Response
	err := s.storage.WithinTransaction(ctx, func(tx store.Storage) error {
		reason, err := decide(tx)
		resp.Rejection = reason
		return err
	})
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// RequestCooperation asks the coordinator of a cooperation to admit one of the
// requester's running, productive plans.
func (s *Service) RequestCooperation(ctx context.Context, req Request) (Response, error) {
	return s.run(ctx, func(tx store.Storage) (models.RejectionReason, error) {
		plan, reason, err := loadPlan(ctx, tx, req.PlanID)
		if err != nil || reason != models.RejectionNone {
			return reason, err
		}
		if _, reason, err := loadCooperation(ctx, tx, req.CooperationID); err != nil || reason != models.RejectionNone {
			return reason, err
		}
		switch {
		case plan.Planner != req.Requester:
			return models.RejectionNotPlanner, nil
		case !plan.IsRunning():
			return models.RejectionPlanInactive, nil
		case plan.IsPublicService:
			return models.RejectionPublicServicePlan, nil
		case plan.IsCooperating():
			return models.RejectionAlreadyCooperating, nil
		case plan.RequestedCooperation != nil:
			return models.RejectionAlreadyRequested, nil
		}
		if err := tx.SetRequestedCooperation(ctx, plan, &req.CooperationID); err != nil {
			return models.RejectionNone, fmt.Errorf("failed to request cooperation: %w", err)
		}
		s.logger.Info("cooperation requested", zap.String("plan_id", plan.ID.String()), zap.String("cooperation_id", req.CooperationID.String()))
		return models.RejectionNone, nil
	})
}

// AcceptCooperation lets the coordinator admit a plan that requested membership.
func (s *Service) AcceptCooperation(ctx context.Context, req Request) (Response, error) {
	return s.run(ctx, func(tx store.Storage) (models.RejectionReason, error) {
		plan, coop, reason, err := s.pendingRequest(ctx, tx, req)
		if err != nil || reason != models.RejectionNone {
			return reason, err
		}
		if plan.IsPublicService {
			return models.RejectionPublicServicePlan, nil
		}
		if err := tx.SetCooperation(ctx, plan, &coop.ID); err != nil {
			return models.RejectionNone, fmt.Errorf("failed to accept cooperation: %w", err)
		}
		s.logger.Info("cooperation accepted", zap.String("plan_id", plan.ID.String()), zap.String("cooperation_id", coop.ID.String()))
		return models.RejectionNone, nil
	})
}

// DenyCooperation lets the coordinator turn a pending request down.
func (s *Service) DenyCooperation(ctx context.Context, req Request) (Response, error) {
	return s.run(ctx, func(tx store.Storage) (models.RejectionReason, error) {
		plan, _, reason, err := s.pendingRequest(ctx, tx, req)
		if err != nil || reason != models.RejectionNone {
			return reason, err
		}
		if err := tx.SetRequestedCooperation(ctx, plan, nil); err != nil {
			return models.RejectionNone, fmt.Errorf("failed to deny cooperation: %w", err)
		}
		return models.RejectionNone, nil
	})
}

func (s *Service) pendingRequest(ctx context.Context, tx store.Storage, req Request) (*models.Plan, *models.Cooperation, models.RejectionReason, error) {
	plan, reason, err := loadPlan(ctx, tx, req.PlanID)
	if err != nil || reason != models.RejectionNone {
		return nil, nil, reason, err
	}
	coop, reason, err := loadCooperation(ctx, tx, req.CooperationID)
	if err != nil || reason != models.RejectionNone {
		return nil, nil, reason, err
	}
	if coop.Coordinator != req.Requester {
		return nil, nil, models.RejectionNotCoordinator, nil
	}
	if plan.RequestedCooperation == nil || *plan.RequestedCooperation != coop.ID {
		return nil, nil, models.RejectionNotRequested, nil
	}
	return plan, coop, models.RejectionNone, nil
}

// CancelRequest withdraws the planner's pending request.
func (s *Service) CancelRequest(ctx context.Context, req Request) (Response, error) {
	return s.run(ctx, func(tx store.Storage) (models.RejectionReason, error) {
		plan, reason, err := loadPlan(ctx, tx, req.PlanID)
		if err != nil || reason != models.RejectionNone {
			return reason, err
		}
		if plan.Planner != req.Requester {
			return models.RejectionNotPlanner, nil
		}
		if plan.RequestedCooperation == nil {
			return models.RejectionNotRequested, nil
		}
		if err := tx.SetRequestedCooperation(ctx, plan, nil); err != nil {
			return models.RejectionNone, fmt.Errorf("failed to cancel request: %w", err)
		}
		return models.RejectionNone, nil
	})
}

// EndCooperation removes a plan from its cooperation. Either the planner or the
// coordinator may do so.
func (s *Service) EndCooperation(ctx context.Context, req Request) (Response, error) {
	return s.run(ctx, func(tx store.Storage) (models.RejectionReason, error) {
		plan, reason, err := loadPlan(ctx, tx, req.PlanID)
		if err != nil || reason != models.RejectionNone {
			return reason, err
		}
		coop, reason, err := loadCooperation(ctx, tx, req.CooperationID)
		if err != nil || reason != models.RejectionNone {
			return reason, err
		}
		if plan.Cooperation == nil || *plan.Cooperation != coop.ID {
			return models.RejectionNotCooperating, nil
		}
		if req.Requester != plan.Planner && req.Requester != coop.Coordinator {
			return models.RejectionNotCoordinator, nil
		}
		if err := tx.SetCooperation(ctx, plan, nil); err != nil {
			return models.RejectionNone, fmt.Errorf("failed to end cooperation: %w", err)
		}
		s.logger.Info("cooperation ended", zap.String("plan_id", plan.ID.String()), zap.String("cooperation_id", coop.ID.String()))
		return models.RejectionNone, nil
	})
}

// PlanPrice is the price per unit a plan sells at: the cooperation's blended
// price while it cooperates, its own price otherwise.
func (s *Service) PlanPrice(ctx context.Context, plan *models.Plan) (decimal.Decimal, error) {
	return PlanPrice(ctx, s.storage, plan)
}

// PlanPrice resolves a plan's selling price against repo.
func PlanPrice(ctx context.Context, repo store.PlanRepository, plan *models.Plan) (decimal.Decimal, error) {
	if plan.IsPublicService || plan.Cooperation == nil {
		return plan.PricePerUnit(), nil
	}
	members, err := repo.PlansByCooperation(ctx, *plan.Cooperation)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load cooperating plans: %w", err)
	}
	return PricePerUnit(members), nil
}
