package gateway

import (
	"encoding/json"
	"fmt"
)

// EventType is the closed set of gateway notifications this service
// handles. Anything else is stored for audit and acked without effect.
type EventType string

const (
	EventPaymentCreated        EventType = "payment.created"
	EventPaymentApproved       EventType = "payment.approved"
	EventPaymentCompleted      EventType = "payment.completed"
	EventPaymentCanceled       EventType = "payment.canceled"
	EventPaymentFailed         EventType = "payment.failed"
	EventAuthorizationRevoked  EventType = "authorization.revoked"
	EventFulfillmentFailed     EventType = "fulfillment.failed"
)

func (t EventType) Known() bool {
	switch t {
	case EventPaymentCreated, EventPaymentApproved, EventPaymentCompleted,
		EventPaymentCanceled, EventPaymentFailed,
		EventAuthorizationRevoked, EventFulfillmentFailed:
		return true
	}
	return false
}

// Event is the domain view of one gateway notification, mapped from the
// loosely-typed wire payload at the boundary.
type Event struct {
	ID        string
	Type      EventType
	CreatedAt string
	Payment   EventPayment
}

type EventPayment struct {
	PaymentID           string `json:"payment_id"`
	Reference           string `json:"reference"`
	Status              string `json:"status"`
	AmountMinor         int64  `json:"amount_minor"`
	ApprovedAmountMinor int64  `json:"approved_amount_minor"`
	Currency            string `json:"currency"`
	SourceBrand         string `json:"source_brand"`
	SourceLast4         string `json:"source_last4"`
	FailureCount        int    `json:"failure_count"`
}

type wireEvent struct {
	Type      string `json:"type"`
	EventID   string `json:"event_id"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		Object struct {
			Payment *EventPayment `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// ParseEvent maps the raw webhook body onto the closed Event type.
// It rejects structurally invalid payloads; unknown event types parse fine
// and are left to the reconciler to ignore.
func ParseEvent(raw []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	if w.EventID == "" {
		return nil, fmt.Errorf("event payload missing event_id")
	}
	if w.Type == "" {
		return nil, fmt.Errorf("event payload missing type")
	}

	ev := &Event{
		ID:        w.EventID,
		Type:      EventType(w.Type),
		CreatedAt: w.CreatedAt,
	}
	if w.Data.Object.Payment != nil {
		ev.Payment = *w.Data.Object.Payment
	}
	if ev.Type.Known() && ev.Payment.PaymentID == "" {
		return nil, fmt.Errorf("event %s missing payment object", w.EventID)
	}
	return ev, nil
}
