package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusApproved  PaymentStatus = "APPROVED"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCanceled  PaymentStatus = "CANCELED"
)

// paymentStatusRank orders the forward-only lattice
// PENDING < APPROVED < COMPLETED. Terminal failure states sit outside the
// lattice and are never left once entered.
var paymentStatusRank = map[PaymentStatus]int{
	PaymentStatusPending:   0,
	PaymentStatusApproved:  1,
	PaymentStatusCompleted: 2,
}

// IsTerminal reports whether no further transition may leave this status.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a forward move.
// Backward moves and any move out of a terminal state are rejected;
// re-applying the current status is not a forward move either.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == PaymentStatusFailed || next == PaymentStatusCanceled {
		return true
	}
	return paymentStatusRank[next] > paymentStatusRank[s]
}

type SourceType string

const (
	SourceTypeGiftCard SourceType = "gift_card"
	SourceTypeCard     SourceType = "card"
	SourceTypeWallet   SourceType = "wallet"
)

// PaymentRecord tracks one funding step against the external gateway (or a
// stored-value reservation batch). Never deleted; audit trail.
type PaymentRecord struct {
	BaseModel
	// Assigned by the gateway; nil until the authorize call returns, and
	// possibly filled first by a webhook that raced ahead of it.
	ExternalPaymentID *string `gorm:"size:128;index"`

	OrderRef string `gorm:"size:64;index;not null"`

	RequestedAmountMinor int64  `gorm:"not null"`
	ApprovedAmountMinor  int64  `gorm:"not null;default:0"`
	Currency             string `gorm:"size:3;not null;default:'USD'"`

	Status     PaymentStatus `gorm:"size:16;index;not null;default:'PENDING'"`
	SourceType SourceType    `gorm:"size:16;not null"`

	// Target card of the settlement (the purchased or recharged card).
	GiftCardID *uuid.UUID `gorm:"index"`

	Metadata datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}
