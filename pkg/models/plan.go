package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanStatus is derived from the lifecycle flags of a plan.
type PlanStatus string

const (
	PlanStatusRejected PlanStatus = "rejected"
	PlanStatusApproved PlanStatus = "approved"
	PlanStatusActive   PlanStatus = "active"
	PlanStatusExpired  PlanStatus = "expired"
)

// Draft is an editable plan proposal owned by its planner. Approval turns it into a
// Plan with the same ID and deletes the draft.
type Draft struct {
	ID              uuid.UUID       `json:"id"`
	CreationDate    time.Time       `json:"creation_date"`
	Planner         uuid.UUID       `json:"planner"`
	Costs           ProductionCosts `json:"production_costs"`
	ProductName     string          `json:"product_name"`
	Description     string          `json:"description"`
	Unit            string          `json:"unit"`
	AmountProduced  int             `json:"amount_produced"`
	TimeframeDays   int             `json:"timeframe_days"`
	IsPublicService bool            `json:"is_public_service"`
}

type Plan struct {
	ID              uuid.UUID       `json:"id"`
	CreationDate    time.Time       `json:"creation_date"`
	Planner         uuid.UUID       `json:"planner"`
	Costs           ProductionCosts `json:"production_costs"`
	ProductName     string          `json:"product_name"`
	Description     string          `json:"description"`
	Unit            string          `json:"unit"`
	AmountProduced  int             `json:"amount_produced"`
	TimeframeDays   int             `json:"timeframe_days"`
	IsPublicService bool            `json:"is_public_service"`

	Approved       bool       `json:"approved"`
	ApprovalDate   *time.Time `json:"approval_date,omitempty"`
	ApprovalReason string     `json:"approval_reason,omitempty"`
	RejectionDate  *time.Time `json:"rejection_date,omitempty"`

	IsActive       bool       `json:"is_active"`
	ActivationDate *time.Time `json:"activation_date,omitempty"`
	Expired        bool       `json:"expired"`
	Renewed        bool       `json:"renewed"`

	// Presentation fields, recomputed by every update run.
	ExpirationDate     *time.Time `json:"expiration_date,omitempty"`
	ExpirationRelative *int       `json:"expiration_relative,omitempty"`

	LastCertificatePayout *time.Time `json:"last_certificate_payout,omitempty"`

	Cooperation          *uuid.UUID `json:"cooperation,omitempty"`
	RequestedCooperation *uuid.UUID `json:"requested_cooperation,omitempty"`
}

// NewPlanFromDraft copies the draft's attributes into an unapproved plan with the
// draft's ID.
func NewPlanFromDraft(d Draft) *Plan {
	return &Plan{
		ID:              d.ID,
		CreationDate:    d.CreationDate,
		Planner:         d.Planner,
		Costs:           d.Costs,
		ProductName:     d.ProductName,
		Description:     d.Description,
		Unit:            d.Unit,
		AmountProduced:  d.AmountProduced,
		TimeframeDays:   d.TimeframeDays,
		IsPublicService: d.IsPublicService,
	}
}

// ToDraft returns an editable draft carrying the plan's attributes.
func (p *Plan) ToDraft(id uuid.UUID, created time.Time) Draft {
	return Draft{
		ID:              id,
		CreationDate:    created,
		Planner:         p.Planner,
		Costs:           p.Costs,
		ProductName:     p.ProductName,
		Description:     p.Description,
		Unit:            p.Unit,
		AmountProduced:  p.AmountProduced,
		TimeframeDays:   p.TimeframeDays,
		IsPublicService: p.IsPublicService,
	}
}

// PricePerUnit is total cost over amount produced; public services are free.
func (p *Plan) PricePerUnit() decimal.Decimal {
	if p.IsPublicService {
		return decimal.Zero
	}
	return p.Costs.Total().Div(decimal.NewFromInt(int64(p.AmountProduced)))
}

// ExpectedSalesValue is what sales are expected to recoup.
func (p *Plan) ExpectedSalesValue() decimal.Decimal {
	if p.IsPublicService {
		return decimal.Zero
	}
	return p.Costs.Total()
}

// DailyCosts spreads the production costs evenly over the timeframe.
func (p *Plan) DailyCosts() ProductionCosts {
	return p.Costs.Div(decimal.NewFromInt(int64(p.TimeframeDays)))
}

func (p *Plan) IsCooperating() bool {
	return p.Cooperation != nil
}

// IsRunning reports approved, active and not expired.
func (p *Plan) IsRunning() bool {
	return p.Approved && p.IsActive && !p.Expired
}

func (p *Plan) Status() PlanStatus {
	switch {
	case p.Expired:
		return PlanStatusExpired
	case p.IsActive:
		return PlanStatusActive
	case p.Approved:
		return PlanStatusApproved
	default:
		return PlanStatusRejected
	}
}

// ComputedExpirationDate is activation date plus timeframe. It panics for a plan
// that was never activated.
func (p *Plan) ComputedExpirationDate() time.Time {
	if p.ActivationDate == nil {
		panic(fmt.Sprintf("plan %s has no activation date", p.ID))
	}
	return p.ActivationDate.AddDate(0, 0, p.TimeframeDays)
}

// Approve marks the plan as approved. Approving twice is a programming error.
func (p *Plan) Approve(ts time.Time, reason string) {
	if p.Approved {
		panic(fmt.Sprintf("plan %s is already approved", p.ID))
	}
	p.Approved = true
	p.ApprovalDate = &ts
	p.ApprovalReason = reason
	p.RejectionDate = nil
}

// Reject records a rejection on a plan that was never approved.
func (p *Plan) Reject(ts time.Time, reason string) {
	if p.Approved {
		panic(fmt.Sprintf("plan %s is approved and cannot be rejected", p.ID))
	}
	p.RejectionDate = &ts
	p.ApprovalReason = reason
}

// Activate sets the activation date once, after approval.
func (p *Plan) Activate(ts time.Time) {
	if !p.Approved {
		panic(fmt.Sprintf("plan %s activated before approval", p.ID))
	}
	if p.ActivationDate != nil || p.IsActive {
		panic(fmt.Sprintf("plan %s is already activated", p.ID))
	}
	p.IsActive = true
	p.ActivationDate = &ts
}

// Expire ends an active plan and drops any cooperation association.
func (p *Plan) Expire() {
	if !p.IsActive || p.Expired {
		panic(fmt.Sprintf("plan %s is not active and cannot expire", p.ID))
	}
	p.Expired = true
	p.IsActive = false
	p.Cooperation = nil
	p.RequestedCooperation = nil
}
