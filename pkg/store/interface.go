package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/laborledger/pkg/models"
)

var (
	// ErrNotFound is returned when a lookup by ID matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTransaction is returned when a transaction reuses an idempotency key.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// PlanRepository persists plans and their lifecycle transitions.
type PlanRepository interface {
	// ApprovePlan creates an approved plan carrying the draft's ID and deletes the draft.
	ApprovePlan(ctx context.Context, draft models.Draft, ts time.Time, reason string) (*models.Plan, error)
	// RejectPlan records a rejected plan carrying the draft's ID and deletes the draft.
	RejectPlan(ctx context.Context, draft models.Draft, ts time.Time, reason string) (*models.Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	// LockPlan reads a plan and, inside WithinTransaction, holds it until commit.
	LockPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	DeletePlan(ctx context.Context, id uuid.UUID) error

	AllActivePlans(ctx context.Context) ([]*models.Plan, error)
	AllPlansApprovedActiveAndNotExpired(ctx context.Context) ([]*models.Plan, error)
	AllProductivePlansApprovedActiveAndNotExpired(ctx context.Context) ([]*models.Plan, error)
	AllPublicPlansApprovedActiveAndNotExpired(ctx context.Context) ([]*models.Plan, error)
	PlansByCooperation(ctx context.Context, cooperationID uuid.UUID) ([]*models.Plan, error)

	ActivatePlan(ctx context.Context, plan *models.Plan, ts time.Time) error
	SetPlanAsExpired(ctx context.Context, plan *models.Plan) error
	SetPlanAsRenewed(ctx context.Context, plan *models.Plan) error
	SetExpirationDate(ctx context.Context, plan *models.Plan, date time.Time) error
	SetExpirationRelative(ctx context.Context, plan *models.Plan, days int) error
	SetLastCertificatePayout(ctx context.Context, plan *models.Plan, ts time.Time) error
	SetCooperation(ctx context.Context, plan *models.Plan, cooperationID *uuid.UUID) error
	SetRequestedCooperation(ctx context.Context, plan *models.Plan, cooperationID *uuid.UUID) error
}

type DraftRepository interface {
	CreateDraft(ctx context.Context, draft *models.Draft) error
	GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	DeleteDraft(ctx context.Context, id uuid.UUID) error
}

// TransactionRepository is the append-only ledger log.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	AllTransactionsSentByAccount(ctx context.Context, account uuid.UUID) ([]*models.Transaction, error)
	AllTransactionsReceivedByAccount(ctx context.Context, account uuid.UUID) ([]*models.Transaction, error)
	DivergentTransactions(ctx context.Context) ([]*models.Transaction, error)
}

// AccountRepository owns accounts and the parties holding them.
type AccountRepository interface {
	CreateCompany(ctx context.Context, name, email string, registered time.Time) (*models.Company, error)
	GetCompany(ctx context.Context, id uuid.UUID) (*models.Company, error)
	CreateMember(ctx context.Context, name, email string, registered time.Time) (*models.Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*models.Member, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	CreateSocialAccounting(ctx context.Context) (*models.SocialAccounting, error)
	GetSocialAccounting(ctx context.Context) (*models.SocialAccounting, error)
}

type OfferRepository interface {
	CreateOffer(ctx context.Context, offer *models.Offer) error
	GetAllOffersBelongingTo(ctx context.Context, planID uuid.UUID) ([]*models.Offer, error)
	DeleteOffer(ctx context.Context, id uuid.UUID) error
}

type CooperationRepository interface {
	CreateCooperation(ctx context.Context, coop *models.Cooperation) error
	GetCooperation(ctx context.Context, id uuid.UUID) (*models.Cooperation, error)
}

// PayoutFactorRepository keeps the append-only history of payout factors.
type PayoutFactorRepository interface {
	CreatePayoutFactor(ctx context.Context, factor *models.PayoutFactor) error
	LatestPayoutFactor(ctx context.Context) (*models.PayoutFactor, error)
}

// Storage defines every repository the engine depends on plus unit-of-work support.
type Storage interface {
	PlanRepository
	DraftRepository
	TransactionRepository
	AccountRepository
	OfferRepository
	CooperationRepository
	PayoutFactorRepository

	// WithinTransaction runs fn against a Storage bound to one atomic unit of work.
	// The unit commits when fn returns nil and rolls back otherwise.
	WithinTransaction(ctx context.Context, fn func(Storage) error) error

	Close() error
}
