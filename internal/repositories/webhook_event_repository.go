package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"giftvault/internal/models/db_models"
	"giftvault/pkg/utils"
)

type IWebhookEventRepository interface {
	FindByExternalID(ctx context.Context, externalEventID string) (*db_models.WebhookEvent, error)
	Create(ctx context.Context, event *db_models.WebhookEvent) error

	// MarkProcessed is always the LAST step of event processing: an event
	// row left unprocessed after a crash is picked up again by
	// ListUnprocessed and replayed (every processing step is idempotent).
	MarkProcessed(ctx context.Context, id uuid.UUID, processingError string) error

	// RecordError notes a processing failure while leaving the event
	// unprocessed so a later replay can pick it up.
	RecordError(ctx context.Context, id uuid.UUID, processingError string) error

	ListUnprocessed(ctx context.Context, limit int) ([]db_models.WebhookEvent, error)
}

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) IWebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) FindByExternalID(ctx context.Context, externalEventID string) (*db_models.WebhookEvent, error) {
	var event db_models.WebhookEvent
	err := r.db.WithContext(ctx).First(&event, "external_event_id = ?", externalEventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *WebhookEventRepository) Create(ctx context.Context, event *db_models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processingError string) error {
	return r.db.WithContext(ctx).
		Model(&db_models.WebhookEvent{BaseModel: db_models.BaseModel{ID: id}}).
		Updates(map[string]interface{}{
			"processed":        true,
			"processing_error": processingError,
			"processed_at":     utils.NowUnixSeconds(),
		}).Error
}

func (r *WebhookEventRepository) RecordError(ctx context.Context, id uuid.UUID, processingError string) error {
	return r.db.WithContext(ctx).
		Model(&db_models.WebhookEvent{BaseModel: db_models.BaseModel{ID: id}}).
		Update("processing_error", processingError).Error
}

func (r *WebhookEventRepository) ListUnprocessed(ctx context.Context, limit int) ([]db_models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []db_models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("processed = FALSE").
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
