package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type FraudAlertKind string

const (
	FraudKindAuthorizationRevoked FraudAlertKind = "authorization_revoked"
	FraudKindFulfillmentFailure   FraudAlertKind = "fulfillment_failure"
)

type FraudSeverity string

const (
	FraudSeverityLow    FraudSeverity = "low"
	FraudSeverityMedium FraudSeverity = "medium"
	FraudSeverityHigh   FraudSeverity = "high"
)

// FraudAlert is raised by the event reconciler on anomalous gateway events.
// Operator-facing only; raising one never blocks event processing.
type FraudAlert struct {
	BaseModel
	PaymentRecordID   *uuid.UUID     `gorm:"index"`
	ExternalPaymentID string         `gorm:"size:128;index"`
	Kind              FraudAlertKind `gorm:"size:32;index;not null"`
	Severity          FraudSeverity  `gorm:"size:8;index;not null"`
	Details           datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
}

func (FraudAlert) TableName() string {
	return "fraud_alerts"
}
