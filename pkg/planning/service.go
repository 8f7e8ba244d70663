package planning

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/clock"
	"github.com/mcclellann/laborledger/pkg/ledger"
	"github.com/mcclellann/laborledger/pkg/models"
	"github.com/mcclellann/laborledger/pkg/store"
	"go.uber.org/zap"
)

// Decision is the outcome of an approval review.
type Decision struct {
	Approved bool
	Reason   string
}

// ApprovalPolicy reviews a draft on behalf of the accounting authority.
type ApprovalPolicy interface {
	Review(ctx context.Context, draft models.Draft) (Decision, error)
}

// ApprovalPolicyFunc adapts a function to ApprovalPolicy.
type ApprovalPolicyFunc func(ctx context.Context, draft models.Draft) (Decision, error)

func (f ApprovalPolicyFunc) Review(ctx context.Context, draft models.Draft) (Decision, error) {
	return f(ctx, draft)
}

// ApproveAll approves every draft it is shown.
var ApproveAll = ApprovalPolicyFunc(func(context.Context, models.Draft) (Decision, error) {
	return Decision{Approved: true, Reason: "approved by social accounting"}, nil
})

// Service implements the draft, approval and activation use cases.
type Service struct {
	storage store.Storage
	ledger  *ledger.Ledger
	social  models.SocialAccounting
	clock   clock.DatetimeService
	policy  ApprovalPolicy
	logger  *zap.Logger
}

type Option func(*Service)

func WithApprovalPolicy(p ApprovalPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService wires the planning use cases. social is the economy's single
// social accounting, the counterparty of every credit made here.
func NewService(s store.Storage, led *ledger.Ledger, social models.SocialAccounting, c clock.DatetimeService, opts ...Option) *Service {
	svc := &Service{
		storage: s,
		ledger:  led,
		social:  social,
		clock:   c,
		policy:  ApproveAll,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Drafts

type CreateDraftRequest struct {
	Planner         uuid.UUID
	Costs           models.ProductionCosts
	ProductName     string
	Description     string
	Unit            string
	AmountProduced  int
	TimeframeDays   int
	IsPublicService bool
}

type DraftResponse struct {
	Rejection models.RejectionReason
	DraftID   uuid.UUID
}

func (r DraftResponse) IsRejected() bool { return r.Rejection != models.RejectionNone }

// CreateDraft files a new draft for an existing company.
func (s *Service) CreateDraft(ctx context.Context, req CreateDraftRequest) (DraftResponse, error) {
	switch {
	case req.AmountProduced <= 0:
		return DraftResponse{Rejection: models.RejectionInvalidAmount}, nil
	case req.TimeframeDays <= 0:
		return DraftResponse{Rejection: models.RejectionInvalidTimeframe}, nil
	case req.Costs.IsNegative():
		return DraftResponse{Rejection: models.RejectionNegativeCosts}, nil
	}
	if _, err := s.storage.GetCompany(ctx, req.Planner); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DraftResponse{Rejection: models.RejectionPlannerNotFound}, nil
		}
		return DraftResponse{}, err
	}

	draft := &models.Draft{
		ID:              uuid.New(),
		CreationDate:    s.clock.Now(),
		Planner:         req.Planner,
		Costs:           req.Costs,
		ProductName:     req.ProductName,
		Description:     req.Description,
		Unit:            req.Unit,
		AmountProduced:  req.AmountProduced,
		TimeframeDays:   req.TimeframeDays,
		IsPublicService: req.IsPublicService,
	}
	if err := s.storage.CreateDraft(ctx, draft); err != nil {
		return DraftResponse{}, fmt.Errorf("failed to store draft: %w", err)
	}
	s.logger.Info("draft created", zap.String("draft_id", draft.ID.String()), zap.String("planner", req.Planner.String()))
	return DraftResponse{DraftID: draft.ID}, nil
}

// DraftFromPlan copies an expired plan into a new draft so the planner can file
// its renewal.
func (s *Service) DraftFromPlan(ctx context.Context, requester, planID uuid.UUID) (DraftResponse, error) {
	plan, err := s.storage.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DraftResponse{Rejection: models.RejectionPlanNotFound}, nil
		}
		return DraftResponse{}, err
	}
	if plan.Planner != requester {
		return DraftResponse{Rejection: models.RejectionNotPlanner}, nil
	}
	if !plan.Expired {
		return DraftResponse{Rejection: models.RejectionPlanNotExpired}, nil
	}

	draft := plan.ToDraft(uuid.New(), s.clock.Now())
	if err := s.storage.CreateDraft(ctx, &draft); err != nil {
		return DraftResponse{}, fmt.Errorf("failed to store draft: %w", err)
	}
	return DraftResponse{DraftID: draft.ID}, nil
}

// ReviseRejectedPlan turns a rejected plan back into an editable draft with the
// same ID.
func (s *Service) ReviseRejectedPlan(ctx context.Context, requester, planID uuid.UUID) (DraftResponse, error) {
	var resp DraftResponse
	err := s.storage.WithinTransaction(ctx, func(tx store.Storage) error {
		plan, err := tx.LockPlan(ctx, planID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.Rejection = models.RejectionPlanNotFound
				return nil
			}
			return err
		}
		if plan.Planner != requester {
			resp.Rejection = models.RejectionNotPlanner
			return nil
		}
		if plan.Status() != models.PlanStatusRejected {
			resp.Rejection = models.RejectionPlanNotRejected
			return nil
		}
		if err := tx.DeletePlan(ctx, plan.ID); err != nil {
			return fmt.Errorf("failed to delete rejected plan: %w", err)
		}
		draft := plan.ToDraft(plan.ID, s.clock.Now())
		if err := tx.CreateDraft(ctx, &draft); err != nil {
			return fmt.Errorf("failed to store draft: %w", err)
		}
		resp.DraftID = draft.ID
		return nil
	})
	if err != nil {
		return DraftResponse{}, err
	}
	return resp, nil
}

// Approval

type ApprovalResponse struct {
	Rejection models.RejectionReason
	PlanID    uuid.UUID
	Approved  bool
	Reason    string
}

func (r ApprovalResponse) IsRejected() bool { return r.Rejection != models.RejectionNone }

// SeekApproval submits a draft to the approval policy. Either way a plan with the
// draft's ID replaces the draft. When renewedPlanID is set and the draft is
// approved, that plan is flagged as renewed.
func (s *Service) SeekApproval(ctx context.Context, draftID uuid.UUID, renewedPlanID *uuid.UUID) (ApprovalResponse, error) {
	draft, err := s.storage.GetDraft(ctx, draftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ApprovalResponse{Rejection: models.RejectionDraftNotFound}, nil
		}
		return ApprovalResponse{}, err
	}
	decision, err := s.policy.Review(ctx, *draft)
	if err != nil {
		return ApprovalResponse{}, fmt.Errorf("approval review failed: %w", err)
	}

	resp, err := s.decide(ctx, *draft, decision, renewedPlanID)
	if err != nil {
		return ApprovalResponse{}, err
	}
	if !decision.Approved && resp.Rejection == models.RejectionNone {
		resp.Rejection = models.RejectionApprovalDenied
	}
	return resp, nil
}

// SelfApprovePlan lets the planner approve its own draft, with the same effects
// as an approval through SeekApproval.
func (s *Service) SelfApprovePlan(ctx context.Context, draftID, planner uuid.UUID) (ApprovalResponse, error) {
	draft, err := s.storage.GetDraft(ctx, draftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ApprovalResponse{Rejection: models.RejectionDraftNotFound}, nil
		}
		return ApprovalResponse{}, err
	}
	if draft.Planner != planner {
		return ApprovalResponse{Rejection: models.RejectionNotPlanner}, nil
	}
	return s.decide(ctx, *draft, Decision{Approved: true, Reason: "self-approved"}, nil)
}

func (s *Service) decide(ctx context.Context, draft models.Draft, decision Decision, renewedPlanID *uuid.UUID) (ApprovalResponse, error) {
	now := s.clock.Now()
	resp := ApprovalResponse{Approved: decision.Approved, Reason: decision.Reason}

	err := s.storage.WithinTransaction(ctx, func(tx store.Storage) error {
		var plan *models.Plan
		var err error
		if decision.Approved {
			plan, err = tx.ApprovePlan(ctx, draft, now, decision.Reason)
		} else {
			plan, err = tx.RejectPlan(ctx, draft, now, decision.Reason)
		}
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.Rejection = models.RejectionDraftNotFound
				return nil
			}
			return fmt.Errorf("failed to record decision: %w", err)
		}
		resp.PlanID = plan.ID

		if !decision.Approved || renewedPlanID == nil {
			return nil
		}
		renewed, err := tx.LockPlan(ctx, *renewedPlanID)
		if err != nil {
			return fmt.Errorf("failed to load renewed plan: %w", err)
		}
		return tx.SetPlanAsRenewed(ctx, renewed)
	})
	if err != nil {
		return ApprovalResponse{}, err
	}
	if resp.Rejection == models.RejectionNone {
		s.logger.Info("plan decided",
			zap.String("plan_id", resp.PlanID.String()),
			zap.Bool("approved", decision.Approved),
			zap.String("reason", decision.Reason),
		)
	}
	return resp, nil
}

// Activation

type ActivationResponse struct {
	Rejection models.RejectionReason
}

func (r ActivationResponse) IsRejected() bool { return r.Rejection != models.RejectionNone }

// ActivatePlan starts an approved plan: the activation date is set to now, means
// and resource costs are credited from social accounting, and the product account
// is debited by the expected sales value. Labour is paid later, day by day.
func (s *Service) ActivatePlan(ctx context.Context, planID uuid.UUID) (ActivationResponse, error) {
	now := s.clock.Now()
	var resp ActivationResponse

	err := s.ledger.InTransaction(ctx, s.storage, func(tx store.Storage, led *ledger.Ledger) error {
		plan, err := tx.LockPlan(ctx, planID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.Rejection = models.RejectionPlanNotFound
				return nil
			}
			return err
		}
		switch {
		case !plan.Approved:
			resp.Rejection = models.RejectionPlanNotApproved
			return nil
		case plan.ActivationDate != nil || plan.IsActive:
			resp.Rejection = models.RejectionPlanAlreadyActive
			return nil
		}

		planner, err := tx.GetCompany(ctx, plan.Planner)
		if err != nil {
			return fmt.Errorf("failed to load planner %s: %w", plan.Planner, err)
		}
		if err := tx.ActivatePlan(ctx, plan, now); err != nil {
			return fmt.Errorf("failed to activate plan: %w", err)
		}

		credits := []ledger.Entry{
			{To: planner.MeansAccount, Amount: plan.Costs.Means, Purpose: fmt.Sprintf("Means of production for plan %s", plan.ID)},
			{To: planner.ResourceAccount, Amount: plan.Costs.Resources, Purpose: fmt.Sprintf("Resources for plan %s", plan.ID)},
		}
		if sales := plan.ExpectedSalesValue(); !sales.IsZero() {
			credits = append(credits, ledger.Entry{
				To: planner.ProductAccount, Amount: sales.Neg(), Purpose: fmt.Sprintf("Expected sales of plan %s", plan.ID),
			})
		}
		for _, e := range credits {
			e.Date = now
			e.From = s.social.Account
			if _, err := led.Transfer(ctx, e); err != nil {
				return fmt.Errorf("failed to credit planner: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return ActivationResponse{}, err
	}
	if resp.Rejection == models.RejectionNone {
		s.logger.Info("plan activated", zap.String("plan_id", planID.String()))
	}
	return resp, nil
}
