package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType is fixed when an account is created.
type AccountType string

const (
	AccountTypeMeans            AccountType = "p"
	AccountTypeResources        AccountType = "r"
	AccountTypeLabour           AccountType = "a"
	AccountTypeProduct          AccountType = "prd"
	AccountTypeMember           AccountType = "member"
	AccountTypeSocialAccounting AccountType = "accounting"
)

// OwnerKind is the persisted tag of an AccountOwner variant.
type OwnerKind string

const (
	OwnerKindMember           OwnerKind = "member"
	OwnerKindCompany          OwnerKind = "company"
	OwnerKindSocialAccounting OwnerKind = "social_accounting"
)

// AccountOwner is one of MemberOwner, CompanyOwner or SocialAccountingOwner.
// The set is closed: the interface cannot be implemented outside this package.
type AccountOwner interface {
	Kind() OwnerKind
	OwnerID() uuid.UUID
	isAccountOwner()
}

type MemberOwner struct{ ID uuid.UUID }

type CompanyOwner struct{ ID uuid.UUID }

type SocialAccountingOwner struct{ ID uuid.UUID }

func (o MemberOwner) Kind() OwnerKind    { return OwnerKindMember }
func (o MemberOwner) OwnerID() uuid.UUID { return o.ID }
func (MemberOwner) isAccountOwner()      {}

func (o CompanyOwner) Kind() OwnerKind    { return OwnerKindCompany }
func (o CompanyOwner) OwnerID() uuid.UUID { return o.ID }
func (CompanyOwner) isAccountOwner()      {}

func (o SocialAccountingOwner) Kind() OwnerKind    { return OwnerKindSocialAccounting }
func (o SocialAccountingOwner) OwnerID() uuid.UUID { return o.ID }
func (SocialAccountingOwner) isAccountOwner()      {}

// NewAccountOwner rebuilds an owner variant from its persisted tag.
func NewAccountOwner(kind OwnerKind, id uuid.UUID) (AccountOwner, error) {
	switch kind {
	case OwnerKindMember:
		return MemberOwner{ID: id}, nil
	case OwnerKindCompany:
		return CompanyOwner{ID: id}, nil
	case OwnerKindSocialAccounting:
		return SocialAccountingOwner{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown account owner kind %q", kind)
	}
}

type Account struct {
	ID    uuid.UUID    `json:"id"`
	Type  AccountType  `json:"account_type"`
	Owner AccountOwner `json:"-"`
}

// Transaction is an append-only transfer between two accounts. Stored records are
// never modified.
type Transaction struct {
	ID               uuid.UUID       `json:"id"`
	Date             time.Time       `json:"date"`
	SendingAccount   uuid.UUID       `json:"sending_account"`
	ReceivingAccount uuid.UUID       `json:"receiving_account"`
	AmountSent       decimal.Decimal `json:"amount_sent"`
	AmountReceived   decimal.Decimal `json:"amount_received"`
	Purpose          string          `json:"purpose"`
	IdempotencyKey   string          `json:"idempotency_key,omitempty"`
}

// Diverges reports a transaction whose sent and received amounts differ. Such
// records are kept as written and surfaced for review.
func (t Transaction) Diverges() bool {
	return !t.AmountSent.Equal(t.AmountReceived)
}
