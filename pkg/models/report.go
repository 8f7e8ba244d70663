package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Phases of an update run.
const (
	PhaseExpiration = "expiration"
	PhasePayout     = "payout"
)

// PlanFailure records a plan whose processing failed during a run.
type PlanFailure struct {
	PlanID uuid.UUID `json:"plan_id"`
	Phase  string    `json:"phase"`
	Error  string    `json:"error"`
}

// RunReport summarizes one expiration and payout run.
type RunReport struct {
	ID                   uuid.UUID       `json:"id"`
	StartedAt            time.Time       `json:"started_at"`
	FinishedAt           time.Time       `json:"finished_at"`
	PayoutFactor         decimal.Decimal `json:"payout_factor"`
	PlansExpired         int             `json:"plans_expired"`
	Payouts              int             `json:"payouts"`
	CertificatesPaid     decimal.Decimal `json:"certificates_paid"`
	SkippedAlreadyPaid   int             `json:"skipped_already_paid"`
	SkippedExpirationDay int             `json:"skipped_expiration_day"`
	Failures             []PlanFailure   `json:"failures,omitempty"`
}
