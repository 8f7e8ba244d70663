package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Company plans production and holds one account per account type.
type Company struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	MeansAccount     uuid.UUID `json:"means_account"`
	ResourceAccount  uuid.UUID `json:"resource_account"`
	LabourAccount    uuid.UUID `json:"labour_account"`
	ProductAccount   uuid.UUID `json:"product_account"`
	RegistrationDate time.Time `json:"registration_date"`
}

// Member is a worker holding a single certificate account.
type Member struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Account          uuid.UUID `json:"account"`
	RegistrationDate time.Time `json:"registration_date"`
}

// SocialAccounting is the economy-wide counterparty of cost credits and
// certificate payouts.
type SocialAccounting struct {
	ID      uuid.UUID `json:"id"`
	Account uuid.UUID `json:"account"`
}

type Offer struct {
	ID          uuid.UUID `json:"id"`
	PlanID      uuid.UUID `json:"plan_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Cooperation groups plans that sell at one blended price per unit.
type Cooperation struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Definition  string    `json:"definition"`
	Coordinator uuid.UUID `json:"coordinator"`
	CreatedAt   time.Time `json:"created_at"`
}

// PayoutFactor is one computed value of the economy-wide payout factor. The most
// recent record is authoritative.
type PayoutFactor struct {
	ID         uuid.UUID       `json:"id"`
	Value      decimal.Decimal `json:"value"`
	ComputedAt time.Time       `json:"computed_at"`
}
