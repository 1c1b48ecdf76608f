package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftvault/internal/models/db_models"
	"giftvault/pkg/utils"
)

// ApplyTransactionInput carries everything needed to append one ledger
// entry to a card.
type ApplyTransactionInput struct {
	CardID      uuid.UUID
	Type        db_models.TransactionType
	AmountMinor int64

	// Status defaults to settled; the orchestrator passes pending for
	// reservations.
	Status db_models.TransactionStatus

	PaymentRecordID   *uuid.UUID
	OrderRef          string
	ExternalPaymentID string
	SourceBrand       string
	SourceLast4       string
	Note              string
	PerformedByID     *uuid.UUID
	IdempotencyKey    *string
}

// ReplayReport is the result of recomputing a card's balance from its
// transaction history.
type ReplayReport struct {
	StoredBalanceMinor  int64
	ReplayBalanceMinor  int64
	TransactionCount    int
	FirstInconsistentID *uuid.UUID
}

func (r *ReplayReport) Consistent() bool {
	return r.FirstInconsistentID == nil && r.StoredBalanceMinor == r.ReplayBalanceMinor
}

// ICardRepository is the ledger store: the single source of truth for card
// balances. Every balance mutation goes through ApplyTransaction or
// ReserveUpTo, each of which is one atomic unit (row lock, precondition
// check, balance write, transaction insert).
type ICardRepository interface {
	// CreateCard inserts the card and its issue transaction atomically.
	// idempotencyKey, when set, lands on the issue transaction so a retried
	// purchase can find the card it already created.
	CreateCard(ctx context.Context, card *db_models.GiftCard, performedBy *uuid.UUID, idempotencyKey *string) error
	GetCardByCode(ctx context.Context, code string) (*db_models.GiftCard, error)
	GetCardByID(ctx context.Context, id uuid.UUID) (*db_models.GiftCard, error)

	ApplyTransaction(ctx context.Context, in ApplyTransactionInput) (*db_models.LedgerTransaction, error)

	// ReserveUpTo reserves min(available, requested) as a pending redeem,
	// re-validating the balance under the row lock rather than trusting
	// the caller's plan snapshot. Returns nil when nothing is available.
	ReserveUpTo(ctx context.Context, in ApplyTransactionInput) (*db_models.LedgerTransaction, error)

	FinalizeReservationsForOrder(ctx context.Context, orderRef string) error
	ReverseReservationsForOrder(ctx context.Context, orderRef string, note string) error

	SetActive(ctx context.Context, cardID uuid.UUID, active bool) error
	ListTransactions(ctx context.Context, cardID uuid.UUID) ([]db_models.LedgerTransaction, error)
	FindTransactionsByOrder(ctx context.Context, orderRef string) ([]db_models.LedgerTransaction, error)
	FindTransactionByIdempotencyKey(ctx context.Context, key string) (*db_models.LedgerTransaction, error)
	ReplayBalance(ctx context.Context, cardID uuid.UUID) (*ReplayReport, error)
}

type CardRepository struct {
	db *gorm.DB
}

func NewCardRepository(db *gorm.DB) ICardRepository {
	return &CardRepository{db: db}
}

func (r *CardRepository) CreateCard(ctx context.Context, card *db_models.GiftCard, performedBy *uuid.UUID, idempotencyKey *string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(card).Error; err != nil {
			return err
		}

		issue := &db_models.LedgerTransaction{
			GiftCardID:        card.ID,
			Type:              db_models.TxnTypeIssue,
			AmountMinor:       card.InitialAmountMinor,
			BalanceAfterMinor: card.CurrentBalanceMinor,
			Status:            db_models.TxnStatusSettled,
			Note:              "card issued",
			PerformedByID:     performedBy,
			IdempotencyKey:    idempotencyKey,
		}
		return tx.Create(issue).Error
	})
}

func (r *CardRepository) GetCardByCode(ctx context.Context, code string) (*db_models.GiftCard, error) {
	var card db_models.GiftCard
	err := r.db.WithContext(ctx).First(&card, "code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

func (r *CardRepository) GetCardByID(ctx context.Context, id uuid.UUID) (*db_models.GiftCard, error) {
	var card db_models.GiftCard
	err := r.db.WithContext(ctx).First(&card, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

// ApplyTransaction is the atomic ledger mutation: the balance read, the
// arithmetic, the balance write and the transaction insert happen inside a
// single DB transaction holding the card row lock, so no other mutation on
// the same card can interleave.
func (r *CardRepository) ApplyTransaction(ctx context.Context, in ApplyTransactionInput) (*db_models.LedgerTransaction, error) {
	if in.AmountMinor <= 0 {
		return nil, utils.ErrInvalidAmount
	}
	if in.Status == "" {
		in.Status = db_models.TxnStatusSettled
	}

	var txn *db_models.LedgerTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, err := lockCard(tx, in.CardID)
		if err != nil {
			return err
		}

		newBalance := card.CurrentBalanceMinor
		switch in.Type {
		case db_models.TxnTypeRedeem:
			if in.AmountMinor > card.CurrentBalanceMinor {
				return utils.ErrInsufficientBalance
			}
			newBalance -= in.AmountMinor
		case db_models.TxnTypeRecharge, db_models.TxnTypeRefund, db_models.TxnTypeIssue:
			newBalance += in.AmountMinor
		default:
			return fmt.Errorf("%w: unknown transaction type %q", utils.ErrValidation, in.Type)
		}

		txn = newLedgerTransaction(card, in, in.AmountMinor, newBalance)
		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		return tx.Model(card).Update("current_balance_minor", newBalance).Error
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *CardRepository) ReserveUpTo(ctx context.Context, in ApplyTransactionInput) (*db_models.LedgerTransaction, error) {
	if in.AmountMinor <= 0 {
		return nil, utils.ErrInvalidAmount
	}

	var txn *db_models.LedgerTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, err := lockCard(tx, in.CardID)
		if err != nil {
			return err
		}
		if !card.IsActive {
			return utils.ErrCardInactive
		}

		reserve := in.AmountMinor
		if card.CurrentBalanceMinor < reserve {
			reserve = card.CurrentBalanceMinor
		}
		if reserve == 0 {
			return nil
		}

		newBalance := card.CurrentBalanceMinor - reserve
		in.Type = db_models.TxnTypeRedeem
		in.Status = db_models.TxnStatusPending
		txn = newLedgerTransaction(card, in, reserve, newBalance)
		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		return tx.Model(card).Update("current_balance_minor", newBalance).Error
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// FinalizeReservationsForOrder flips an order's pending reservations to
// settled. No balance change; the debit was applied at reservation time.
// Idempotent: already-settled rows are untouched.
func (r *CardRepository) FinalizeReservationsForOrder(ctx context.Context, orderRef string) error {
	return r.db.WithContext(ctx).
		Model(&db_models.LedgerTransaction{}).
		Where("order_ref = ? AND status = ?", orderRef, db_models.TxnStatusPending).
		Update("status", db_models.TxnStatusSettled).Error
}

// ReverseReservationsForOrder compensates every pending reservation of an
// order with a matching refund transaction and marks the original reversed.
// Idempotent: reservations already finalized or reversed are skipped.
func (r *CardRepository) ReverseReservationsForOrder(ctx context.Context, orderRef string, note string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []db_models.LedgerTransaction
		if err := tx.
			Where("order_ref = ? AND status = ?", orderRef, db_models.TxnStatusPending).
			Order("created_at ASC").
			Find(&pending).Error; err != nil {
			return err
		}

		for i := range pending {
			res := &pending[i]
			card, err := lockCard(tx, res.GiftCardID)
			if err != nil {
				return err
			}

			newBalance := card.CurrentBalanceMinor + res.AmountMinor
			refund := &db_models.LedgerTransaction{
				GiftCardID:        res.GiftCardID,
				Type:              db_models.TxnTypeRefund,
				AmountMinor:       res.AmountMinor,
				BalanceAfterMinor: newBalance,
				Status:            db_models.TxnStatusSettled,
				PaymentRecordID:   res.PaymentRecordID,
				OrderRef:          res.OrderRef,
				ExternalPaymentID: res.ExternalPaymentID,
				Note:              note,
				PerformedByID:     res.PerformedByID,
			}
			if err := tx.Create(refund).Error; err != nil {
				return err
			}
			if err := tx.Model(card).Update("current_balance_minor", newBalance).Error; err != nil {
				return err
			}
			if err := tx.Model(res).Update("status", db_models.TxnStatusReversed).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *CardRepository) SetActive(ctx context.Context, cardID uuid.UUID, active bool) error {
	updates := map[string]interface{}{"is_active": active}
	if active {
		updates["activated_at"] = utils.NowUnixSeconds()
	}
	return r.db.WithContext(ctx).
		Model(&db_models.GiftCard{BaseModel: db_models.BaseModel{ID: cardID}}).
		Updates(updates).Error
}

func (r *CardRepository) ListTransactions(ctx context.Context, cardID uuid.UUID) ([]db_models.LedgerTransaction, error) {
	var txns []db_models.LedgerTransaction
	err := r.db.WithContext(ctx).
		Where("gift_card_id = ?", cardID).
		Order("created_at ASC, id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *CardRepository) FindTransactionsByOrder(ctx context.Context, orderRef string) ([]db_models.LedgerTransaction, error) {
	var txns []db_models.LedgerTransaction
	err := r.db.WithContext(ctx).
		Where("order_ref = ?", orderRef).
		Order("created_at ASC, id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *CardRepository) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*db_models.LedgerTransaction, error) {
	var txn db_models.LedgerTransaction
	err := r.db.WithContext(ctx).First(&txn, "idempotency_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// ReplayBalance recomputes the balance by summing signed amounts in
// creation order, checking every BalanceAfterMinor snapshot along the way.
func (r *CardRepository) ReplayBalance(ctx context.Context, cardID uuid.UUID) (*ReplayReport, error) {
	card, err := r.GetCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, utils.ErrCardNotFound
	}

	txns, err := r.ListTransactions(ctx, cardID)
	if err != nil {
		return nil, err
	}

	report := &ReplayReport{
		StoredBalanceMinor: card.CurrentBalanceMinor,
		TransactionCount:   len(txns),
	}

	var running int64
	for i := range txns {
		running += txns[i].SignedAmountMinor()
		if txns[i].BalanceAfterMinor != running && report.FirstInconsistentID == nil {
			id := txns[i].ID
			report.FirstInconsistentID = &id
		}
	}
	report.ReplayBalanceMinor = running
	return report, nil
}

func lockCard(tx *gorm.DB, cardID uuid.UUID) (*db_models.GiftCard, error) {
	var card db_models.GiftCard
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&card, "id = ?", cardID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

func newLedgerTransaction(card *db_models.GiftCard, in ApplyTransactionInput, amount, balanceAfter int64) *db_models.LedgerTransaction {
	return &db_models.LedgerTransaction{
		GiftCardID:        card.ID,
		Type:              in.Type,
		AmountMinor:       amount,
		BalanceAfterMinor: balanceAfter,
		Status:            in.Status,
		PaymentRecordID:   in.PaymentRecordID,
		OrderRef:          in.OrderRef,
		ExternalPaymentID: in.ExternalPaymentID,
		SourceBrand:       in.SourceBrand,
		SourceLast4:       in.SourceLast4,
		Note:              in.Note,
		PerformedByID:     in.PerformedByID,
		IdempotencyKey:    in.IdempotencyKey,
	}
}
