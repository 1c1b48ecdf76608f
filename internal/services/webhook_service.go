package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gorm.io/datatypes"

	"giftvault/internal/gateway"
	"giftvault/internal/models/db_models"
	"giftvault/internal/repositories"
	"giftvault/pkg/utils"
)

// IWebhookService is the event reconciler: it converges local payment and
// ledger state with the gateway's authoritative view, one notification at a
// time, tolerating duplicates and arbitrary ordering.
type IWebhookService interface {
	// IngestEvent verifies, stores and processes one raw gateway event.
	// Signature and payload problems are returned so the handler can
	// reject; processing failures are recorded on the event row and NOT
	// returned — the gateway gets its ack either way.
	IngestEvent(ctx context.Context, rawBody []byte, signatureHeader string) error

	// ReprocessPending replays stored events that never finished
	// processing (crash recovery). Returns how many were attempted.
	ReprocessPending(ctx context.Context) int
}

type WebhookService struct {
	webhookSecret string
	eventRepo     repositories.IWebhookEventRepository
	paymentRepo   repositories.IPaymentRepository
	cardRepo      repositories.ICardRepository
	fraudRepo     repositories.IFraudAlertRepository
}

func NewWebhookService(
	webhookSecret string,
	eventRepo repositories.IWebhookEventRepository,
	paymentRepo repositories.IPaymentRepository,
	cardRepo repositories.ICardRepository,
	fraudRepo repositories.IFraudAlertRepository) IWebhookService {
	return &WebhookService{
		webhookSecret: webhookSecret,
		eventRepo:     eventRepo,
		paymentRepo:   paymentRepo,
		cardRepo:      cardRepo,
		fraudRepo:     fraudRepo,
	}
}

func (s *WebhookService) IngestEvent(ctx context.Context, rawBody []byte, signatureHeader string) error {
	if !gateway.VerifySignature(rawBody, signatureHeader, s.webhookSecret) {
		log.Printf("webhook: rejected event with invalid signature")
		return utils.ErrSignatureInvalid
	}

	ev, err := gateway.ParseEvent(rawBody)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrValidation, err)
	}

	// Dedup by external event id: a replayed, already-processed event is
	// acknowledged without any further effect.
	row, err := s.eventRepo.FindByExternalID(ctx, ev.ID)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if row != nil && row.Processed {
		log.Printf("webhook: duplicate event %s, already processed", ev.ID)
		return nil
	}
	if row == nil {
		row = &db_models.WebhookEvent{
			ExternalEventID: ev.ID,
			EventType:       string(ev.Type),
			Payload:         datatypes.JSON(rawBody),
			ReceivedAt:      utils.NowUnixSeconds(),
		}
		if err := s.eventRepo.Create(ctx, row); err != nil {
			return utils.ErrDatabaseError
		}
	}

	s.process(ctx, ev, row)
	return nil
}

func (s *WebhookService) ReprocessPending(ctx context.Context) int {
	events, err := s.eventRepo.ListUnprocessed(ctx, 100)
	if err != nil {
		log.Printf("webhook replay: list unprocessed: %v", err)
		return 0
	}

	for i := range events {
		ev, err := gateway.ParseEvent(events[i].Payload)
		if err != nil {
			// Stored but unparseable; close it out so it stops clogging
			// the replay queue.
			_ = s.eventRepo.MarkProcessed(ctx, events[i].ID, err.Error())
			continue
		}
		s.process(ctx, ev, &events[i])
	}
	return len(events)
}

// process applies one event. Every step is idempotent and the processed
// flag is flipped last, so replaying after a crash converges to the same
// state without double-applying ledger effects.
func (s *WebhookService) process(ctx context.Context, ev *gateway.Event, row *db_models.WebhookEvent) {
	if !ev.Type.Known() {
		log.Printf("webhook: ignoring unhandled event type %q (%s)", ev.Type, ev.ID)
		s.finish(ctx, row, "")
		return
	}

	record, err := s.resolvePayment(ctx, ev)
	if err != nil {
		s.recordFailure(ctx, row, err)
		return
	}

	switch ev.Type {
	case gateway.EventPaymentCreated:
		err = s.transition(ctx, ev, record, db_models.PaymentStatusPending)
	case gateway.EventPaymentApproved:
		err = s.transition(ctx, ev, record, db_models.PaymentStatusApproved)
	case gateway.EventPaymentCompleted:
		err = s.complete(ctx, ev, record)
	case gateway.EventPaymentCanceled:
		err = s.cancel(ctx, ev, record, db_models.PaymentStatusCanceled)
	case gateway.EventPaymentFailed:
		err = s.cancel(ctx, ev, record, db_models.PaymentStatusFailed)
	case gateway.EventAuthorizationRevoked:
		s.raiseFraudAlert(ctx, ev, record, db_models.FraudKindAuthorizationRevoked, db_models.FraudSeverityHigh)
		err = s.cancel(ctx, ev, record, db_models.PaymentStatusCanceled)
	case gateway.EventFulfillmentFailed:
		s.raiseFraudAlert(ctx, ev, record, db_models.FraudKindFulfillmentFailure, fulfillmentSeverity(ev.Payment.FailureCount))
	}

	if err != nil {
		s.recordFailure(ctx, row, err)
		return
	}
	s.finish(ctx, row, "")
}

// resolvePayment finds the PaymentRecord the event refers to, creating a
// provisional PENDING record when the event outran the synchronous path.
func (s *WebhookService) resolvePayment(ctx context.Context, ev *gateway.Event) (*db_models.PaymentRecord, error) {
	record, err := s.paymentRepo.FindByExternalPaymentID(ctx, ev.Payment.PaymentID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if record != nil {
		return record, nil
	}

	externalID := ev.Payment.PaymentID
	record = &db_models.PaymentRecord{
		ExternalPaymentID:    &externalID,
		OrderRef:             ev.Payment.Reference,
		RequestedAmountMinor: ev.Payment.AmountMinor,
		ApprovedAmountMinor:  ev.Payment.ApprovedAmountMinor,
		Currency:             ev.Payment.Currency,
		Status:               db_models.PaymentStatusPending,
		SourceType:           db_models.SourceTypeCard,
		Metadata:             mustJSON(map[string]any{"provisional": true, "created_by_event": ev.ID}),
	}
	log.Printf("webhook: event %s arrived before payment %s existed, creating provisional record",
		ev.ID, ev.Payment.PaymentID)
	if err := s.paymentRepo.Create(ctx, record); err != nil {
		return nil, utils.ErrDatabaseError
	}
	return record, nil
}

func (s *WebhookService) transition(ctx context.Context, ev *gateway.Event, record *db_models.PaymentRecord, next db_models.PaymentStatus) error {
	applied, err := s.paymentRepo.TransitionForward(ctx, record.ID, next)
	if err != nil && !errors.Is(err, utils.ErrStateConflict) {
		return err
	}
	if !applied {
		// Backward or redundant move in the lattice: logged and ignored,
		// never an error to the gateway.
		current, cerr := s.currentStatus(ctx, record)
		if cerr != nil {
			current = record.Status
		}
		log.Printf("webhook: event %s would move payment %s %s -> %s, ignored",
			ev.ID, record.ID, current, next)
	}
	return nil
}

// currentStatus re-reads the record so decisions and logs reflect the
// status as of after the transition attempt, not the stale copy the caller
// fetched earlier.
func (s *WebhookService) currentStatus(ctx context.Context, record *db_models.PaymentRecord) (db_models.PaymentStatus, error) {
	fresh, err := s.paymentRepo.FindByID(ctx, record.ID)
	if err != nil {
		return record.Status, utils.ErrDatabaseError
	}
	if fresh == nil {
		return record.Status, nil
	}
	return fresh.Status, nil
}

// complete is the only place a payment's ledger effects are finalized:
// pending reservations settle and the purchased card becomes redeemable.
func (s *WebhookService) complete(ctx context.Context, ev *gateway.Event, record *db_models.PaymentRecord) error {
	applied, err := s.paymentRepo.TransitionForward(ctx, record.ID, db_models.PaymentStatusCompleted)
	if err != nil && !errors.Is(err, utils.ErrStateConflict) {
		return err
	}
	if !applied {
		current, err := s.currentStatus(ctx, record)
		if err != nil {
			return err
		}
		if current != db_models.PaymentStatusCompleted {
			log.Printf("webhook: event %s completion for payment %s ignored (status %s)",
				ev.ID, record.ID, current)
			return nil
		}
		// Already COMPLETED: an earlier attempt died between the transition
		// and its ledger effects. Fall through and re-run them; finalize and
		// activation are idempotent.
	}

	if err := s.cardRepo.FinalizeReservationsForOrder(ctx, record.OrderRef); err != nil {
		return utils.ErrDatabaseError
	}

	if record.GiftCardID != nil {
		card, err := s.cardRepo.GetCardByID(ctx, *record.GiftCardID)
		if err != nil {
			return utils.ErrDatabaseError
		}
		if card != nil && !card.IsActive && card.ActivatedAt == nil {
			if err := s.cardRepo.SetActive(ctx, card.ID, true); err != nil {
				return utils.ErrDatabaseError
			}
			log.Printf("webhook: payment %s completed, card %s activated", record.ID, card.ID)
		}
	}
	return nil
}

// cancel handles terminal gateway outcomes: reverse whatever this order
// still holds reserved, and claw back settled recharge credits.
func (s *WebhookService) cancel(ctx context.Context, ev *gateway.Event, record *db_models.PaymentRecord, terminal db_models.PaymentStatus) error {
	applied, err := s.paymentRepo.TransitionForward(ctx, record.ID, terminal)
	if err != nil && !errors.Is(err, utils.ErrStateConflict) {
		return err
	}
	if !applied {
		current, err := s.currentStatus(ctx, record)
		if err != nil {
			return err
		}
		if current != terminal {
			log.Printf("webhook: event %s %s for payment %s ignored (status %s)",
				ev.ID, terminal, record.ID, current)
			return nil
		}
		// Already in this terminal state: re-run the compensation steps in
		// case an earlier attempt was interrupted before they finished.
	}

	if err := s.cardRepo.ReverseReservationsForOrder(ctx, record.OrderRef, "gateway "+string(terminal)); err != nil {
		return utils.ErrDatabaseError
	}

	txns, err := s.cardRepo.FindTransactionsByOrder(ctx, record.OrderRef)
	if err != nil {
		return utils.ErrDatabaseError
	}

	// A settled redeem carrying this order ref can only be a previous
	// clawback (reservations in a canceled order end up reversed, never
	// settled), so its presence means compensation already ran.
	clawedBack := false
	for i := range txns {
		if txns[i].Type == db_models.TxnTypeRedeem && txns[i].Status == db_models.TxnStatusSettled {
			clawedBack = true
		}
	}
	if clawedBack {
		return nil
	}

	for i := range txns {
		t := &txns[i]
		if t.Type != db_models.TxnTypeRecharge || t.Status != db_models.TxnStatusSettled {
			continue
		}
		_, err := s.cardRepo.ApplyTransaction(ctx, repositories.ApplyTransactionInput{
			CardID:      t.GiftCardID,
			Type:        db_models.TxnTypeRedeem,
			AmountMinor: t.AmountMinor,
			OrderRef:    record.OrderRef,
			Note:        "recharge reversed after gateway " + string(terminal),
		})
		if errors.Is(err, utils.ErrInsufficientBalance) {
			// The credited funds were already spent. Freeze the card and
			// let an operator sort it out.
			log.Printf("webhook: cannot claw back recharge on card %s, balance already spent; deactivating", t.GiftCardID)
			if derr := s.cardRepo.SetActive(ctx, t.GiftCardID, false); derr != nil {
				return utils.ErrDatabaseError
			}
			s.raiseFraudAlert(ctx, ev, record, db_models.FraudKindFulfillmentFailure, db_models.FraudSeverityMedium)
			continue
		}
		if err != nil {
			return utils.ErrDatabaseError
		}
	}
	return nil
}

func (s *WebhookService) raiseFraudAlert(ctx context.Context, ev *gateway.Event, record *db_models.PaymentRecord, kind db_models.FraudAlertKind, severity db_models.FraudSeverity) {
	alert := &db_models.FraudAlert{
		ExternalPaymentID: ev.Payment.PaymentID,
		Kind:              kind,
		Severity:          severity,
		Details: mustJSON(map[string]any{
			"event_id":      ev.ID,
			"event_type":    string(ev.Type),
			"failure_count": ev.Payment.FailureCount,
		}),
	}
	if record != nil {
		id := record.ID
		alert.PaymentRecordID = &id
	}
	// Side effect only; a failed insert never blocks event processing.
	if err := s.fraudRepo.Create(ctx, alert); err != nil {
		log.Printf("webhook: fraud alert insert failed for event %s: %v", ev.ID, err)
	}
}

func (s *WebhookService) finish(ctx context.Context, row *db_models.WebhookEvent, procErr string) {
	if err := s.eventRepo.MarkProcessed(ctx, row.ID, procErr); err != nil {
		log.Printf("webhook: mark processed failed for event %s: %v", row.ExternalEventID, err)
	}
}

func (s *WebhookService) recordFailure(ctx context.Context, row *db_models.WebhookEvent, cause error) {
	log.Printf("webhook: processing event %s failed: %v", row.ExternalEventID, cause)
	if err := s.eventRepo.RecordError(ctx, row.ID, cause.Error()); err != nil {
		log.Printf("webhook: record error failed for event %s: %v", row.ExternalEventID, err)
	}
}

func fulfillmentSeverity(failureCount int) db_models.FraudSeverity {
	switch {
	case failureCount >= 3:
		return db_models.FraudSeverityHigh
	case failureCount == 2:
		return db_models.FraudSeverityMedium
	}
	return db_models.FraudSeverityLow
}

func mustJSON(v map[string]any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}
