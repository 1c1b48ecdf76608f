package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"giftvault/internal/models/db_models"
	"giftvault/internal/models/request_models"
	"giftvault/internal/models/response_models"
	"giftvault/internal/repositories"
	mem "giftvault/pkg/memcache"
	"giftvault/pkg/utils"
)

const idempotencyTTL = time.Hour

type ICardService interface {
	CheckBalance(ctx context.Context, code string) (*response_models.BalanceResponse, error)
	Redeem(ctx context.Context, req request_models.RedeemRequest, performedBy *uuid.UUID) (*response_models.RedeemResponse, error)
	Recharge(ctx context.Context, req request_models.RechargeRequest, performedBy *uuid.UUID) (*response_models.RechargeResponse, error)
	Purchase(ctx context.Context, req request_models.PurchaseRequest, performedBy *uuid.UUID) (*response_models.PurchaseResponse, error)
	History(ctx context.Context, code string) (*response_models.TransactionHistoryResponse, error)
	Audit(ctx context.Context, code string) (*response_models.AuditResponse, error)
	Deactivate(ctx context.Context, code string) error
}

type CardService struct {
	cardRepo     repositories.ICardRepository
	paymentRepo  repositories.IPaymentRepository
	orchestrator IPaymentOrchestrator
	locks        *mem.CardLocks
	idemCache    mem.IdempotencyStore
}

func NewCardService(
	cardRepo repositories.ICardRepository,
	paymentRepo repositories.IPaymentRepository,
	orchestrator IPaymentOrchestrator,
	locks *mem.CardLocks,
	idemCache mem.IdempotencyStore) ICardService {
	return &CardService{
		cardRepo:     cardRepo,
		paymentRepo:  paymentRepo,
		orchestrator: orchestrator,
		locks:        locks,
		idemCache:    idemCache,
	}
}

func (s *CardService) CheckBalance(ctx context.Context, code string) (*response_models.BalanceResponse, error) {
	card, err := s.cardRepo.GetCardByCode(ctx, code)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if card == nil {
		return nil, utils.ErrCardNotFound
	}

	return &response_models.BalanceResponse{
		Code:         card.Code,
		BalanceMinor: card.CurrentBalanceMinor,
		Currency:     card.Currency,
		DesignTheme:  card.DesignTheme,
		DesignTags:   card.DesignTags,
		IsActive:     card.IsActive,
	}, nil
}

func (s *CardService) Redeem(ctx context.Context, req request_models.RedeemRequest, performedBy *uuid.UUID) (*response_models.RedeemResponse, error) {
	if req.AmountMinor <= 0 {
		return nil, utils.ErrInvalidAmount
	}

	if cached, ok := s.idemCache.Get(req.IdempotencyKey); ok {
		if resp, ok := cached.(*response_models.RedeemResponse); ok {
			return resp, nil
		}
	}

	card, err := s.cardRepo.GetCardByCode(ctx, req.Code)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if card == nil {
		return nil, utils.ErrCardNotFound
	}
	if !card.IsActive {
		return nil, utils.ErrCardInactive
	}
	if card.PinHash != "" {
		if err := utils.ComparePin(card.PinHash, req.Pin); err != nil {
			return nil, utils.ErrInvalidPin
		}
	}

	// Durable idempotency backstop: a retried request whose first attempt
	// committed gets the original transaction back.
	if req.IdempotencyKey != "" {
		existing, err := s.cardRepo.FindTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, utils.ErrDatabaseError
		}
		if existing != nil {
			return &response_models.RedeemResponse{
				TransactionID:   existing.ID.String(),
				NewBalanceMinor: existing.BalanceAfterMinor,
			}, nil
		}
	}

	s.locks.Lock(card.ID)
	defer s.locks.Unlock(card.ID)

	in := repositories.ApplyTransactionInput{
		CardID:        card.ID,
		Type:          db_models.TxnTypeRedeem,
		AmountMinor:   req.AmountMinor,
		Note:          req.Note,
		PerformedByID: performedBy,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		in.IdempotencyKey = &key
	}

	txn, err := s.cardRepo.ApplyTransaction(ctx, in)
	if err != nil {
		return nil, err
	}

	resp := &response_models.RedeemResponse{
		TransactionID:   txn.ID.String(),
		NewBalanceMinor: txn.BalanceAfterMinor,
	}
	s.idemCache.Put(req.IdempotencyKey, resp, idempotencyTTL)
	return resp, nil
}

func (s *CardService) Recharge(ctx context.Context, req request_models.RechargeRequest, performedBy *uuid.UUID) (*response_models.RechargeResponse, error) {
	if req.AmountMinor <= 0 {
		return nil, utils.ErrInvalidAmount
	}

	if cached, ok := s.idemCache.Get(req.IdempotencyKey); ok {
		if resp, ok := cached.(*response_models.RechargeResponse); ok {
			return resp, nil
		}
	}

	card, err := s.cardRepo.GetCardByCode(ctx, req.Code)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if card == nil {
		return nil, utils.ErrCardNotFound
	}
	if !card.IsActive {
		return nil, utils.ErrCardInactive
	}

	// Durable idempotency backstop: if the first attempt already credited
	// the card, return the original outcome instead of settling again.
	if req.IdempotencyKey != "" {
		existing, err := s.cardRepo.FindTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, utils.ErrDatabaseError
		}
		if existing != nil && existing.Type == db_models.TxnTypeRecharge {
			return &response_models.RechargeResponse{
				Code:            card.Code,
				NewBalanceMinor: existing.BalanceAfterMinor,
				Settlement: response_models.SettlementSummaryResponse{
					State:    string(StateSettled),
					OrderRef: existing.OrderRef,
				},
			}, nil
		}
	}

	sources, err := s.resolveSources(ctx, req.FundingSources, &card.ID)
	if err != nil {
		return nil, err
	}

	summary, err := s.orchestrator.Settle(ctx, SettlementRequest{
		TotalMinor:    req.AmountMinor,
		Currency:      card.Currency,
		Sources:       sources,
		TargetCardID:  &card.ID,
		PerformedByID: performedBy,
	})
	if err != nil {
		return nil, err
	}

	// The reconciler may have learned of a terminal gateway outcome between
	// the authorization and this credit; crediting now would hand out funds
	// the clawback already ran for.
	if summary.AwaitingGateway {
		records, err := s.paymentRepo.FindByOrderRef(ctx, summary.OrderRef)
		if err != nil {
			return nil, utils.ErrDatabaseError
		}
		for i := range records {
			switch records[i].Status {
			case db_models.PaymentStatusCanceled, db_models.PaymentStatusFailed:
				return nil, fmt.Errorf("%w: payment reached %s before the credit was applied",
					utils.ErrSettlementFailed, records[i].Status)
			}
		}
	}

	in := repositories.ApplyTransactionInput{
		CardID:        card.ID,
		Type:          db_models.TxnTypeRecharge,
		AmountMinor:   req.AmountMinor,
		OrderRef:      summary.OrderRef,
		Note:          "card recharged",
		PerformedByID: performedBy,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		in.IdempotencyKey = &key
	}

	txn, err := s.cardRepo.ApplyTransaction(ctx, in)
	if err != nil {
		log.Printf("recharge %s: settlement succeeded but credit failed: %v", summary.OrderRef, err)
		return nil, utils.ErrDatabaseError
	}

	resp := &response_models.RechargeResponse{
		Code:            card.Code,
		NewBalanceMinor: txn.BalanceAfterMinor,
		Settlement:      toSettlementResponse(summary),
	}
	s.idemCache.Put(req.IdempotencyKey, resp, idempotencyTTL)
	return resp, nil
}

func (s *CardService) Purchase(ctx context.Context, req request_models.PurchaseRequest, performedBy *uuid.UUID) (*response_models.PurchaseResponse, error) {
	if req.AmountMinor <= 0 {
		return nil, utils.ErrInvalidAmount
	}

	if cached, ok := s.idemCache.Get(req.IdempotencyKey); ok {
		if resp, ok := cached.(*response_models.PurchaseResponse); ok {
			return resp, nil
		}
	}

	// Durable idempotency backstop: the issue transaction carries the key,
	// so a retried purchase finds the card it already created instead of
	// minting and charging for a second one.
	if req.IdempotencyKey != "" {
		existing, err := s.cardRepo.FindTransactionByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, utils.ErrDatabaseError
		}
		if existing != nil && existing.Type == db_models.TxnTypeIssue {
			issued, err := s.cardRepo.GetCardByID(ctx, existing.GiftCardID)
			if err != nil || issued == nil {
				return nil, utils.ErrDatabaseError
			}
			resp := &response_models.PurchaseResponse{
				GiftCardID: issued.ID.String(),
				Code:       issued.Code,
				IsActive:   issued.IsActive,
			}
			if issued.IsActive {
				resp.Settlement.State = string(StateSettled)
			}
			return resp, nil
		}
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	card := &db_models.GiftCard{
		InitialAmountMinor:  req.AmountMinor,
		CurrentBalanceMinor: req.AmountMinor,
		Currency:            currency,
		DesignTheme:         req.DesignTheme,
		DesignTags:          req.DesignTags,
		RecipientName:       req.RecipientName,
		RecipientEmail:      req.RecipientEmail,
		IsActive:            false,
		IssuedByID:          performedBy,
	}
	if req.Pin != "" {
		hash, err := utils.HashPin(req.Pin)
		if err != nil {
			return nil, utils.ErrDatabaseError
		}
		card.PinHash = hash
	}

	var issueKey *string
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		issueKey = &key
	}
	if err := s.createWithFreshCode(ctx, card, performedBy, issueKey); err != nil {
		return nil, err
	}

	sources, err := s.resolveSources(ctx, req.FundingSources, &card.ID)
	if err != nil {
		return nil, err
	}

	summary, err := s.orchestrator.Settle(ctx, SettlementRequest{
		TotalMinor:    req.AmountMinor,
		Currency:      currency,
		Sources:       sources,
		TargetCardID:  &card.ID,
		PerformedByID: performedBy,
	})
	if err != nil {
		// The card stays inactive forever; its issue entry remains for
		// audit but it can never be redeemed.
		return nil, err
	}

	// Cards funded purely by stored value activate immediately; otherwise
	// activation is the reconciler's job once the gateway completes.
	if !summary.AwaitingGateway {
		if err := s.cardRepo.SetActive(ctx, card.ID, true); err != nil {
			log.Printf("purchase %s: card activation failed: %v", summary.OrderRef, err)
			return nil, utils.ErrDatabaseError
		}
		card.IsActive = true
	}

	resp := &response_models.PurchaseResponse{
		GiftCardID: card.ID.String(),
		Code:       card.Code,
		IsActive:   card.IsActive,
		Settlement: toSettlementResponse(summary),
	}
	s.idemCache.Put(req.IdempotencyKey, resp, idempotencyTTL)
	return resp, nil
}

func (s *CardService) History(ctx context.Context, code string) (*response_models.TransactionHistoryResponse, error) {
	card, err := s.cardRepo.GetCardByCode(ctx, code)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if card == nil {
		return nil, utils.ErrCardNotFound
	}

	txns, err := s.cardRepo.ListTransactions(ctx, card.ID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	resp := &response_models.TransactionHistoryResponse{Code: card.Code}
	for i := range txns {
		resp.Transactions = append(resp.Transactions, response_models.TransactionResponse{
			ID:                txns[i].ID.String(),
			Type:              string(txns[i].Type),
			AmountMinor:       txns[i].AmountMinor,
			BalanceAfterMinor: txns[i].BalanceAfterMinor,
			Status:            string(txns[i].Status),
			SourceBrand:       txns[i].SourceBrand,
			SourceLast4:       txns[i].SourceLast4,
			Note:              txns[i].Note,
			CreatedAt:         txns[i].CreatedAt,
		})
	}
	return resp, nil
}

func (s *CardService) Audit(ctx context.Context, code string) (*response_models.AuditResponse, error) {
	card, err := s.cardRepo.GetCardByCode(ctx, code)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if card == nil {
		return nil, utils.ErrCardNotFound
	}

	report, err := s.cardRepo.ReplayBalance(ctx, card.ID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	resp := &response_models.AuditResponse{
		Code:               card.Code,
		StoredBalanceMinor: report.StoredBalanceMinor,
		ReplayBalanceMinor: report.ReplayBalanceMinor,
		TransactionCount:   report.TransactionCount,
		Consistent:         report.Consistent(),
	}
	if report.FirstInconsistentID != nil {
		resp.FirstInconsistentID = report.FirstInconsistentID.String()
	}
	return resp, nil
}

func (s *CardService) Deactivate(ctx context.Context, code string) error {
	card, err := s.cardRepo.GetCardByCode(ctx, code)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if card == nil {
		return utils.ErrCardNotFound
	}
	if err := s.cardRepo.SetActive(ctx, card.ID, false); err != nil {
		return utils.ErrDatabaseError
	}
	return nil
}

// createWithFreshCode retries code generation on the (unlikely) unique
// collision instead of surfacing it to the buyer.
func (s *CardService) createWithFreshCode(ctx context.Context, card *db_models.GiftCard, performedBy *uuid.UUID, idempotencyKey *string) error {
	for attempt := 0; attempt < 3; attempt++ {
		code, err := utils.GenerateCardCode(3)
		if err != nil {
			return utils.ErrDatabaseError
		}
		card.Code = code

		err = s.cardRepo.CreateCard(ctx, card, performedBy, idempotencyKey)
		if err == nil {
			return nil
		}
		log.Printf("card create attempt %d failed: %v", attempt+1, err)
	}
	return utils.ErrDatabaseError
}

// resolveSources maps caller funding inputs to settlement sources,
// re-reading gift-card balances so the plan starts from fresh numbers.
// The target card itself can never fund its own settlement.
func (s *CardService) resolveSources(ctx context.Context, inputs []request_models.FundingSourceInput, excludeCardID *uuid.UUID) ([]FundingSource, error) {
	var sources []FundingSource
	externalCount := 0
	for i, in := range inputs {
		switch db_models.SourceType(in.Kind) {
		case db_models.SourceTypeGiftCard:
			if in.Code == "" {
				return nil, fmt.Errorf("%w: gift card funding source requires code", utils.ErrValidation)
			}
			card, err := s.cardRepo.GetCardByCode(ctx, in.Code)
			if err != nil {
				return nil, utils.ErrDatabaseError
			}
			if card == nil {
				return nil, utils.ErrCardNotFound
			}
			if excludeCardID != nil && card.ID == *excludeCardID {
				return nil, fmt.Errorf("%w: a card cannot fund itself", utils.ErrValidation)
			}
			if !card.IsActive {
				return nil, utils.ErrCardInactive
			}
			sources = append(sources, FundingSource{
				ID:             card.Code,
				Kind:           db_models.SourceTypeGiftCard,
				AvailableMinor: card.CurrentBalanceMinor,
				CardID:         card.ID,
			})
		case db_models.SourceTypeCard, db_models.SourceTypeWallet:
			if in.Token == "" {
				return nil, fmt.Errorf("%w: external funding source requires token", utils.ErrValidation)
			}
			externalCount++
			sources = append(sources, FundingSource{
				ID:    fmt.Sprintf("external-%d", i+1),
				Kind:  db_models.SourceType(in.Kind),
				Token: in.Token,
				Brand: in.Brand,
				Last4: in.Last4,
			})
		default:
			return nil, fmt.Errorf("%w: unknown funding source kind %q", utils.ErrValidation, in.Kind)
		}
	}
	if externalCount > 1 {
		return nil, fmt.Errorf("%w: at most one external funding source is supported", utils.ErrValidation)
	}
	return sources, nil
}

func toSettlementResponse(summary *SettlementSummary) response_models.SettlementSummaryResponse {
	resp := response_models.SettlementSummaryResponse{
		State:          string(summary.State),
		OrderRef:       summary.OrderRef,
		TotalMinor:     summary.TotalMinor,
		SettledMinor:   summary.SettledMinor,
		RemainingMinor: summary.RemainingMinor,
		FailureReasons: summary.FailureReasons,
	}
	for _, step := range summary.Steps {
		resp.Steps = append(resp.Steps, response_models.SettlementStepResponse{
			SourceKind:           string(step.SourceKind),
			SourceLabel:          step.SourceLabel,
			RequestedAmountMinor: step.RequestedAmountMinor,
			ApprovedAmountMinor:  step.ApprovedAmountMinor,
			Partial:              step.Partial,
			FailureReason:        step.FailureReason,
		})
	}
	return resp
}
