package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"giftvault/internal/gateway"
	"giftvault/internal/models/db_models"
	"giftvault/internal/repositories"
	"giftvault/pkg/utils"
)

type SettlementState string

const (
	StatePlanned          SettlementState = "PLANNED"
	StateExecuting        SettlementState = "EXECUTING"
	StatePartiallySettled SettlementState = "PARTIALLY_SETTLED"
	StateSettled          SettlementState = "SETTLED"
	StateFailed           SettlementState = "FAILED"
)

type SettlementStep struct {
	SourceID             string
	SourceKind           db_models.SourceType
	SourceLabel          string
	RequestedAmountMinor int64
	ApprovedAmountMinor  int64
	Partial              bool
	FailureReason        string
}

type SettlementSummary struct {
	State             SettlementState
	OrderRef          string
	TotalMinor        int64
	SettledMinor      int64
	RemainingMinor    int64
	Steps             []SettlementStep
	FailureReasons    []string
	ExternalPaymentID string

	// True when an external gateway payment participates; reservations
	// then stay pending until the gateway's COMPLETED event finalizes
	// them.
	AwaitingGateway bool
}

type SettlementRequest struct {
	OrderRef      string
	TotalMinor    int64
	Currency      string
	Sources       []FundingSource
	TargetCardID  *uuid.UUID
	PerformedByID *uuid.UUID
}

// IPaymentOrchestrator drives a settlement attempt as a saga: stored-value
// debits are two-phase reservations, external sources are authorized with
// partial approval allowed, and any overall failure compensates every
// reservation before the error is reported.
type IPaymentOrchestrator interface {
	Settle(ctx context.Context, req SettlementRequest) (*SettlementSummary, error)
}

type PaymentOrchestrator struct {
	cardRepo    repositories.ICardRepository
	paymentRepo repositories.IPaymentRepository
	gw          gateway.PaymentGateway
}

func NewPaymentOrchestrator(
	cardRepo repositories.ICardRepository,
	paymentRepo repositories.IPaymentRepository,
	gw gateway.PaymentGateway) IPaymentOrchestrator {
	return &PaymentOrchestrator{
		cardRepo:    cardRepo,
		paymentRepo: paymentRepo,
		gw:          gw,
	}
}

func (o *PaymentOrchestrator) Settle(ctx context.Context, req SettlementRequest) (*SettlementSummary, error) {
	if req.TotalMinor <= 0 {
		return nil, utils.ErrInvalidAmount
	}
	if req.OrderRef == "" {
		req.OrderRef = uuid.New().String()
	}

	summary := &SettlementSummary{
		State:          StatePlanned,
		OrderRef:       req.OrderRef,
		TotalMinor:     req.TotalMinor,
		RemainingMinor: req.TotalMinor,
	}

	pool := make([]FundingSource, len(req.Sources))
	copy(pool, req.Sources)

	summary.State = StateExecuting

	// Each pass re-plans over the sources not yet tried, so a partial
	// approval or mid-flight balance change never leaves us executing a
	// stale plan.
	for summary.RemainingMinor > 0 {
		plan := SplitPayment(pool, summary.RemainingMinor)
		if len(plan.Splits) == 0 {
			break
		}

		split := plan.Splits[0]
		src, rest := takeSource(pool, split.SourceID)
		pool = rest

		var step SettlementStep
		if src.Kind == db_models.SourceTypeGiftCard {
			step = o.reserveFromCard(ctx, req, src, split.AmountMinor)
		} else {
			step = o.authorizeExternal(ctx, req, src, split.AmountMinor, summary)
		}

		summary.Steps = append(summary.Steps, step)
		summary.SettledMinor += step.ApprovedAmountMinor
		summary.RemainingMinor -= step.ApprovedAmountMinor
		if step.FailureReason != "" {
			summary.FailureReasons = append(summary.FailureReasons, step.FailureReason)
		}
		if summary.SettledMinor > 0 && summary.RemainingMinor > 0 {
			summary.State = StatePartiallySettled
		}
	}

	if summary.RemainingMinor > 0 {
		return o.fail(ctx, summary)
	}

	summary.State = StateSettled
	if !summary.AwaitingGateway {
		// Fully stored-value settlement: nothing external to wait for,
		// finalize the reservations now.
		if err := o.cardRepo.FinalizeReservationsForOrder(ctx, summary.OrderRef); err != nil {
			log.Printf("settlement %s: finalize reservations failed: %v", summary.OrderRef, err)
			return nil, utils.ErrDatabaseError
		}
	}
	return summary, nil
}

func (o *PaymentOrchestrator) reserveFromCard(ctx context.Context, req SettlementRequest, src FundingSource, amountMinor int64) SettlementStep {
	step := SettlementStep{
		SourceID:             src.ID,
		SourceKind:           src.Kind,
		SourceLabel:          "gift card",
		RequestedAmountMinor: amountMinor,
	}

	txn, err := o.cardRepo.ReserveUpTo(ctx, repositories.ApplyTransactionInput{
		CardID:        src.CardID,
		AmountMinor:   amountMinor,
		OrderRef:      req.OrderRef,
		Note:          "settlement reservation",
		PerformedByID: req.PerformedByID,
	})
	if err != nil {
		step.FailureReason = fmt.Sprintf("gift card source unavailable: %v", err)
		log.Printf("settlement %s: reservation on card %s failed: %v", req.OrderRef, src.CardID, err)
		return step
	}
	if txn == nil {
		// Balance drained by a concurrent transaction between planning
		// and reservation.
		step.FailureReason = "gift card source exhausted"
		return step
	}

	step.ApprovedAmountMinor = txn.AmountMinor
	step.Partial = txn.AmountMinor < amountMinor
	if step.Partial {
		log.Printf("settlement %s: card %s reserved %d of requested %d, covering shortfall from next source",
			req.OrderRef, src.CardID, txn.AmountMinor, amountMinor)
	}
	return step
}

func (o *PaymentOrchestrator) authorizeExternal(ctx context.Context, req SettlementRequest, src FundingSource, amountMinor int64, summary *SettlementSummary) SettlementStep {
	step := SettlementStep{
		SourceID:             src.ID,
		SourceKind:           src.Kind,
		SourceLabel:          strings.TrimSpace(src.Brand + " " + src.Last4),
		RequestedAmountMinor: amountMinor,
	}

	record := &db_models.PaymentRecord{
		OrderRef:             req.OrderRef,
		RequestedAmountMinor: amountMinor,
		Currency:             req.Currency,
		Status:               db_models.PaymentStatusPending,
		SourceType:           src.Kind,
		GiftCardID:           req.TargetCardID,
	}
	if err := o.paymentRepo.Create(ctx, record); err != nil {
		step.FailureReason = fmt.Sprintf("payment record create failed: %v", err)
		return step
	}

	result, err := o.gw.Authorize(ctx, gateway.AuthorizeRequest{
		SourceToken:   src.Token,
		AmountMinor:   amountMinor,
		Currency:      req.Currency,
		Reference:     req.OrderRef,
		AcceptPartial: true,
		// Deterministic per order and source so a network-level retry
		// replays instead of double-charging.
		IdempotencyKey: req.OrderRef + ":" + src.ID,
	})
	if err != nil {
		if _, terr := o.paymentRepo.TransitionForward(ctx, record.ID, db_models.PaymentStatusFailed); terr != nil {
			log.Printf("settlement %s: mark payment failed: %v", req.OrderRef, terr)
		}
		if errors.Is(err, utils.ErrGatewayDeclined) {
			step.FailureReason = "gateway declined"
		} else {
			step.FailureReason = "gateway unavailable"
		}
		log.Printf("settlement %s: external authorization failed: %v", req.OrderRef, err)
		return step
	}

	if err := o.paymentRepo.AttachExternalID(ctx, record.ID, result.PaymentID, result.ApprovedAmountMinor); err != nil {
		log.Printf("settlement %s: attach external id: %v", req.OrderRef, err)
	}
	if _, err := o.paymentRepo.TransitionForward(ctx, record.ID, db_models.PaymentStatusApproved); err != nil {
		log.Printf("settlement %s: mark payment approved: %v", req.OrderRef, err)
	}

	step.ApprovedAmountMinor = result.ApprovedAmountMinor
	step.Partial = result.IsPartial(amountMinor)
	summary.AwaitingGateway = true
	summary.ExternalPaymentID = result.PaymentID
	return step
}

// fail rolls the settlement back: every pending reservation gets a
// compensating refund before the aggregated failure is returned, so no
// debit survives without a completed settlement or a matching refund.
func (o *PaymentOrchestrator) fail(ctx context.Context, summary *SettlementSummary) (*SettlementSummary, error) {
	summary.State = StateFailed

	if err := o.cardRepo.ReverseReservationsForOrder(ctx, summary.OrderRef, "settlement failed"); err != nil {
		// Compensation must not be silently lost; surface loudly.
		log.Printf("settlement %s: CRITICAL: compensation failed: %v", summary.OrderRef, err)
		return summary, utils.ErrDatabaseError
	}

	records, err := o.paymentRepo.FindByOrderRef(ctx, summary.OrderRef)
	if err != nil {
		log.Printf("settlement %s: list payment records: %v", summary.OrderRef, err)
	}
	for i := range records {
		if records[i].Status.IsTerminal() {
			continue
		}
		if _, err := o.paymentRepo.TransitionForward(ctx, records[i].ID, db_models.PaymentStatusCanceled); err != nil {
			log.Printf("settlement %s: cancel payment %s: %v", summary.OrderRef, records[i].ID, err)
		}
	}

	if len(summary.FailureReasons) == 0 {
		summary.FailureReasons = append(summary.FailureReasons, "funding sources exhausted")
	}
	return summary, fmt.Errorf("%w: %s", utils.ErrSettlementFailed, strings.Join(summary.FailureReasons, "; "))
}

func takeSource(pool []FundingSource, id string) (FundingSource, []FundingSource) {
	for i := range pool {
		if pool[i].ID == id {
			src := pool[i]
			rest := append(pool[:i:i], pool[i+1:]...)
			return src, rest
		}
	}
	return FundingSource{}, pool
}
