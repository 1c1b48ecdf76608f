package db_models

import (
	"github.com/google/uuid"
)

type TransactionType string

const (
	TxnTypeIssue    TransactionType = "issue"
	TxnTypeRedeem   TransactionType = "redeem"
	TxnTypeRecharge TransactionType = "recharge"
	TxnTypeRefund   TransactionType = "refund"
)

type TransactionStatus string

const (
	// TxnStatusPending marks a reservation: the balance is already
	// decremented but the settlement it belongs to has not concluded.
	TxnStatusPending  TransactionStatus = "pending"
	TxnStatusSettled  TransactionStatus = "settled"
	TxnStatusReversed TransactionStatus = "reversed"
)

// LedgerTransaction is the append-only record of every balance mutation.
// Amounts and balance snapshots are immutable once written; only Status
// moves (pending -> settled, pending -> reversed).
type LedgerTransaction struct {
	BaseModel
	GiftCardID uuid.UUID       `gorm:"index;not null"`
	Type       TransactionType `gorm:"size:16;index;not null"`

	// Positive magnitude; the sign is derived from Type (redeem debits,
	// everything else credits).
	AmountMinor       int64 `gorm:"not null"`
	BalanceAfterMinor int64 `gorm:"not null"`

	Status TransactionStatus `gorm:"size:16;index;not null;default:'settled'"`

	// Links back to the settlement that produced this entry, if any.
	PaymentRecordID   *uuid.UUID `gorm:"index"`
	OrderRef          string     `gorm:"size:64;index"`
	ExternalPaymentID string     `gorm:"size:128"`

	// Funding-source descriptor, e.g. "VISA" / "4242".
	SourceBrand string `gorm:"size:24"`
	SourceLast4 string `gorm:"size:4"`

	Note           string     `gorm:"size:255"`
	PerformedByID  *uuid.UUID `gorm:"index"`
	IdempotencyKey *string    `gorm:"size:64;uniqueIndex"`

	GiftCard GiftCard `gorm:"foreignKey:GiftCardID"`
}

func (LedgerTransaction) TableName() string {
	return "ledger_transactions"
}

// SignedAmountMinor returns the amount with the sign the type implies,
// which is what balance replay sums over.
func (t *LedgerTransaction) SignedAmountMinor() int64 {
	if t.Type == TxnTypeRedeem {
		return -t.AmountMinor
	}
	return t.AmountMinor
}
