package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"giftvault/internal/gateway"
	"giftvault/internal/models/db_models"
	"giftvault/internal/repositories"
	"giftvault/pkg/utils"
)

// fakeCardRepo mirrors the gorm ledger store's semantics in memory: every
// mutation runs under one lock, so the atomicity contract matches.
type fakeCardRepo struct {
	mu    sync.Mutex
	seq   int64
	cards map[uuid.UUID]*db_models.GiftCard
	txns  []*db_models.LedgerTransaction
}

func newFakeCardRepo() *fakeCardRepo {
	return &fakeCardRepo{cards: make(map[uuid.UUID]*db_models.GiftCard)}
}

func (f *fakeCardRepo) addCard(card *db_models.GiftCard) *db_models.GiftCard {
	f.mu.Lock()
	defer f.mu.Unlock()
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	f.cards[card.ID] = card
	return card
}

func (f *fakeCardRepo) nextSeq() int64 {
	f.seq++
	return f.seq
}

func (f *fakeCardRepo) CreateCard(ctx context.Context, card *db_models.GiftCard, performedBy *uuid.UUID, idempotencyKey *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	for _, existing := range f.cards {
		if existing.Code == card.Code {
			return fmt.Errorf("duplicate code %s", card.Code)
		}
	}
	f.cards[card.ID] = card
	f.txns = append(f.txns, &db_models.LedgerTransaction{
		BaseModel:         db_models.BaseModel{ID: uuid.New(), CreatedAt: f.nextSeq()},
		GiftCardID:        card.ID,
		Type:              db_models.TxnTypeIssue,
		AmountMinor:       card.InitialAmountMinor,
		BalanceAfterMinor: card.CurrentBalanceMinor,
		Status:            db_models.TxnStatusSettled,
		PerformedByID:     performedBy,
		IdempotencyKey:    idempotencyKey,
	})
	return nil
}

func (f *fakeCardRepo) GetCardByCode(ctx context.Context, code string) (*db_models.GiftCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, card := range f.cards {
		if card.Code == code {
			copied := *card
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeCardRepo) GetCardByID(ctx context.Context, id uuid.UUID) (*db_models.GiftCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[id]
	if !ok {
		return nil, nil
	}
	copied := *card
	return &copied, nil
}

func (f *fakeCardRepo) ApplyTransaction(ctx context.Context, in repositories.ApplyTransactionInput) (*db_models.LedgerTransaction, error) {
	if in.AmountMinor <= 0 {
		return nil, utils.ErrInvalidAmount
	}
	if in.Status == "" {
		in.Status = db_models.TxnStatusSettled
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	card, ok := f.cards[in.CardID]
	if !ok {
		return nil, utils.ErrCardNotFound
	}

	newBalance := card.CurrentBalanceMinor
	switch in.Type {
	case db_models.TxnTypeRedeem:
		if in.AmountMinor > card.CurrentBalanceMinor {
			return nil, utils.ErrInsufficientBalance
		}
		newBalance -= in.AmountMinor
	default:
		newBalance += in.AmountMinor
	}

	txn := &db_models.LedgerTransaction{
		BaseModel:         db_models.BaseModel{ID: uuid.New(), CreatedAt: f.nextSeq()},
		GiftCardID:        card.ID,
		Type:              in.Type,
		AmountMinor:       in.AmountMinor,
		BalanceAfterMinor: newBalance,
		Status:            in.Status,
		PaymentRecordID:   in.PaymentRecordID,
		OrderRef:          in.OrderRef,
		ExternalPaymentID: in.ExternalPaymentID,
		Note:              in.Note,
		PerformedByID:     in.PerformedByID,
		IdempotencyKey:    in.IdempotencyKey,
	}
	f.txns = append(f.txns, txn)
	card.CurrentBalanceMinor = newBalance
	copied := *txn
	return &copied, nil
}

func (f *fakeCardRepo) ReserveUpTo(ctx context.Context, in repositories.ApplyTransactionInput) (*db_models.LedgerTransaction, error) {
	if in.AmountMinor <= 0 {
		return nil, utils.ErrInvalidAmount
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	card, ok := f.cards[in.CardID]
	if !ok {
		return nil, utils.ErrCardNotFound
	}
	if !card.IsActive {
		return nil, utils.ErrCardInactive
	}

	reserve := in.AmountMinor
	if card.CurrentBalanceMinor < reserve {
		reserve = card.CurrentBalanceMinor
	}
	if reserve == 0 {
		return nil, nil
	}

	newBalance := card.CurrentBalanceMinor - reserve
	txn := &db_models.LedgerTransaction{
		BaseModel:         db_models.BaseModel{ID: uuid.New(), CreatedAt: f.nextSeq()},
		GiftCardID:        card.ID,
		Type:              db_models.TxnTypeRedeem,
		AmountMinor:       reserve,
		BalanceAfterMinor: newBalance,
		Status:            db_models.TxnStatusPending,
		OrderRef:          in.OrderRef,
		Note:              in.Note,
		PerformedByID:     in.PerformedByID,
	}
	f.txns = append(f.txns, txn)
	card.CurrentBalanceMinor = newBalance
	copied := *txn
	return &copied, nil
}

func (f *fakeCardRepo) FinalizeReservationsForOrder(ctx context.Context, orderRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, txn := range f.txns {
		if txn.OrderRef == orderRef && txn.Status == db_models.TxnStatusPending {
			txn.Status = db_models.TxnStatusSettled
		}
	}
	return nil
}

func (f *fakeCardRepo) ReverseReservationsForOrder(ctx context.Context, orderRef string, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []*db_models.LedgerTransaction
	for _, txn := range f.txns {
		if txn.OrderRef == orderRef && txn.Status == db_models.TxnStatusPending {
			pending = append(pending, txn)
		}
	}
	for _, res := range pending {
		card := f.cards[res.GiftCardID]
		newBalance := card.CurrentBalanceMinor + res.AmountMinor
		f.txns = append(f.txns, &db_models.LedgerTransaction{
			BaseModel:         db_models.BaseModel{ID: uuid.New(), CreatedAt: f.nextSeq()},
			GiftCardID:        res.GiftCardID,
			Type:              db_models.TxnTypeRefund,
			AmountMinor:       res.AmountMinor,
			BalanceAfterMinor: newBalance,
			Status:            db_models.TxnStatusSettled,
			OrderRef:          orderRef,
			Note:              note,
		})
		card.CurrentBalanceMinor = newBalance
		res.Status = db_models.TxnStatusReversed
	}
	return nil
}

func (f *fakeCardRepo) SetActive(ctx context.Context, cardID uuid.UUID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[cardID]
	if !ok {
		return utils.ErrCardNotFound
	}
	card.IsActive = active
	if active {
		now := utils.NowUnixSeconds()
		card.ActivatedAt = &now
	}
	return nil
}

func (f *fakeCardRepo) ListTransactions(ctx context.Context, cardID uuid.UUID) ([]db_models.LedgerTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db_models.LedgerTransaction
	for _, txn := range f.txns {
		if txn.GiftCardID == cardID {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (f *fakeCardRepo) FindTransactionsByOrder(ctx context.Context, orderRef string) ([]db_models.LedgerTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db_models.LedgerTransaction
	for _, txn := range f.txns {
		if txn.OrderRef == orderRef {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (f *fakeCardRepo) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*db_models.LedgerTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, txn := range f.txns {
		if txn.IdempotencyKey != nil && *txn.IdempotencyKey == key {
			copied := *txn
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeCardRepo) ReplayBalance(ctx context.Context, cardID uuid.UUID) (*repositories.ReplayReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	card, ok := f.cards[cardID]
	if !ok {
		return nil, utils.ErrCardNotFound
	}

	report := &repositories.ReplayReport{StoredBalanceMinor: card.CurrentBalanceMinor}
	var running int64
	for _, txn := range f.txns {
		if txn.GiftCardID != cardID {
			continue
		}
		report.TransactionCount++
		running += txn.SignedAmountMinor()
		if txn.BalanceAfterMinor != running && report.FirstInconsistentID == nil {
			id := txn.ID
			report.FirstInconsistentID = &id
		}
	}
	report.ReplayBalanceMinor = running
	return report, nil
}

type fakePaymentRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*db_models.PaymentRecord
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{records: make(map[uuid.UUID]*db_models.PaymentRecord)}
}

func (f *fakePaymentRepo) Create(ctx context.Context, record *db_models.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	copied := *record
	f.records[record.ID] = &copied
	return nil
}

func (f *fakePaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*db_models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (f *fakePaymentRepo) FindByExternalPaymentID(ctx context.Context, externalID string) (*db_models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, record := range f.records {
		if record.ExternalPaymentID != nil && *record.ExternalPaymentID == externalID {
			copied := *record
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakePaymentRepo) FindByOrderRef(ctx context.Context, orderRef string) ([]db_models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db_models.PaymentRecord
	for _, record := range f.records {
		if record.OrderRef == orderRef {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) AttachExternalID(ctx context.Context, id uuid.UUID, externalID string, approvedMinor int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return utils.ErrStateConflict
	}
	record.ExternalPaymentID = &externalID
	record.ApprovedAmountMinor = approvedMinor
	return nil
}

func (f *fakePaymentRepo) TransitionForward(ctx context.Context, id uuid.UUID, newStatus db_models.PaymentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return false, utils.ErrStateConflict
	}
	if !record.Status.CanTransitionTo(newStatus) {
		return false, nil
	}
	record.Status = newStatus
	return true, nil
}

type fakeWebhookEventRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*db_models.WebhookEvent
}

func newFakeWebhookEventRepo() *fakeWebhookEventRepo {
	return &fakeWebhookEventRepo{events: make(map[uuid.UUID]*db_models.WebhookEvent)}
}

func (f *fakeWebhookEventRepo) FindByExternalID(ctx context.Context, externalEventID string) (*db_models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, event := range f.events {
		if event.ExternalEventID == externalEventID {
			copied := *event
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeWebhookEventRepo) Create(ctx context.Context, event *db_models.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	copied := *event
	f.events[event.ID] = &copied
	return nil
}

func (f *fakeWebhookEventRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[id]
	if !ok {
		return utils.ErrDatabaseError
	}
	event.Processed = true
	event.ProcessingError = processingError
	now := utils.NowUnixSeconds()
	event.ProcessedAt = &now
	return nil
}

func (f *fakeWebhookEventRepo) RecordError(ctx context.Context, id uuid.UUID, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[id]
	if !ok {
		return utils.ErrDatabaseError
	}
	event.ProcessingError = processingError
	return nil
}

func (f *fakeWebhookEventRepo) ListUnprocessed(ctx context.Context, limit int) ([]db_models.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db_models.WebhookEvent
	for _, event := range f.events {
		if !event.Processed {
			out = append(out, *event)
		}
	}
	return out, nil
}

type fakeFraudRepo struct {
	mu     sync.Mutex
	alerts []db_models.FraudAlert
}

func newFakeFraudRepo() *fakeFraudRepo {
	return &fakeFraudRepo{}
}

func (f *fakeFraudRepo) Create(ctx context.Context, alert *db_models.FraudAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	f.alerts = append(f.alerts, *alert)
	return nil
}

func (f *fakeFraudRepo) ListByExternalPaymentID(ctx context.Context, externalPaymentID string) ([]db_models.FraudAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db_models.FraudAlert
	for _, alert := range f.alerts {
		if alert.ExternalPaymentID == externalPaymentID {
			out = append(out, alert)
		}
	}
	return out, nil
}

// fakeGateway scripts Authorize responses per source token.
type fakeGateway struct {
	mu        sync.Mutex
	authorize func(req gateway.AuthorizeRequest) (*gateway.AuthorizeResult, error)
	calls     []gateway.AuthorizeRequest
}

func (f *fakeGateway) Authorize(ctx context.Context, req gateway.AuthorizeRequest) (*gateway.AuthorizeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.authorize
	f.mu.Unlock()
	if fn == nil {
		return &gateway.AuthorizeResult{
			PaymentID:           "pay_" + uuid.NewString()[:8],
			Status:              "APPROVED",
			ApprovedAmountMinor: req.AmountMinor,
		}, nil
	}
	return fn(req)
}

func (f *fakeGateway) GetPayment(ctx context.Context, paymentID string) (*gateway.PaymentDetails, error) {
	return &gateway.PaymentDetails{PaymentID: paymentID, Status: "COMPLETED"}, nil
}
