package repositories

import (
	"context"

	"gorm.io/gorm"

	"giftvault/internal/models/db_models"
)

type IFraudAlertRepository interface {
	Create(ctx context.Context, alert *db_models.FraudAlert) error
	ListByExternalPaymentID(ctx context.Context, externalPaymentID string) ([]db_models.FraudAlert, error)
}

type FraudAlertRepository struct {
	db *gorm.DB
}

func NewFraudAlertRepository(db *gorm.DB) IFraudAlertRepository {
	return &FraudAlertRepository{db: db}
}

func (r *FraudAlertRepository) Create(ctx context.Context, alert *db_models.FraudAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *FraudAlertRepository) ListByExternalPaymentID(ctx context.Context, externalPaymentID string) ([]db_models.FraudAlert, error) {
	var alerts []db_models.FraudAlert
	err := r.db.WithContext(ctx).
		Where("external_payment_id = ?", externalPaymentID).
		Order("created_at ASC").
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
