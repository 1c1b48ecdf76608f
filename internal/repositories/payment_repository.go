package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftvault/internal/models/db_models"
	"giftvault/pkg/utils"
)

type IPaymentRepository interface {
	Create(ctx context.Context, record *db_models.PaymentRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.PaymentRecord, error)
	FindByExternalPaymentID(ctx context.Context, externalID string) (*db_models.PaymentRecord, error)
	FindByOrderRef(ctx context.Context, orderRef string) ([]db_models.PaymentRecord, error)

	AttachExternalID(ctx context.Context, id uuid.UUID, externalID string, approvedMinor int64) error

	// TransitionForward applies newStatus only if the fixed lattice allows
	// it, under the record's row lock. Returns false (no error) when the
	// move is not a forward transition; the caller logs and ignores it.
	TransitionForward(ctx context.Context, id uuid.UUID, newStatus db_models.PaymentStatus) (bool, error)
}

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) IPaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, record *db_models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.PaymentRecord, error) {
	var record db_models.PaymentRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *PaymentRepository) FindByExternalPaymentID(ctx context.Context, externalID string) (*db_models.PaymentRecord, error) {
	var record db_models.PaymentRecord
	err := r.db.WithContext(ctx).First(&record, "external_payment_id = ?", externalID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *PaymentRepository) FindByOrderRef(ctx context.Context, orderRef string) ([]db_models.PaymentRecord, error) {
	var records []db_models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("order_ref = ?", orderRef).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PaymentRepository) AttachExternalID(ctx context.Context, id uuid.UUID, externalID string, approvedMinor int64) error {
	return r.db.WithContext(ctx).
		Model(&db_models.PaymentRecord{BaseModel: db_models.BaseModel{ID: id}}).
		Updates(map[string]interface{}{
			"external_payment_id":   externalID,
			"approved_amount_minor": approvedMinor,
		}).Error
}

func (r *PaymentRepository) TransitionForward(ctx context.Context, id uuid.UUID, newStatus db_models.PaymentStatus) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record db_models.PaymentRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&record, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrStateConflict
			}
			return err
		}

		if !record.Status.CanTransitionTo(newStatus) {
			return nil
		}

		if err := tx.Model(&record).Update("status", newStatus).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}
