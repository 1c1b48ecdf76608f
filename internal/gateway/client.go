package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"giftvault/pkg/utils"
)

// Config holds the external payment gateway connection settings.
type Config struct {
	BaseURL       string // e.g. https://gateway.example.com
	APIKey        string // bearer key for outbound calls
	WebhookSecret string // shared secret for inbound event signatures
	Timeout       time.Duration
}

type AuthorizeRequest struct {
	SourceToken    string `json:"source_token"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	Reference      string `json:"reference"`
	AcceptPartial  bool   `json:"accept_partial_authorization"`
	IdempotencyKey string `json:"-"`
}

type AuthorizeResult struct {
	PaymentID           string `json:"payment_id"`
	Status              string `json:"status"` // APPROVED | DECLINED
	ApprovedAmountMinor int64  `json:"approved_amount_minor"`
}

// IsPartial reports whether the gateway approved less than requested.
func (r *AuthorizeResult) IsPartial(requestedMinor int64) bool {
	return r.Status == "APPROVED" && r.ApprovedAmountMinor < requestedMinor
}

type PaymentDetails struct {
	PaymentID           string `json:"payment_id"`
	Status              string `json:"status"`
	AmountMinor         int64  `json:"amount_minor"`
	ApprovedAmountMinor int64  `json:"approved_amount_minor"`
	SourceBrand         string `json:"source_brand"`
	SourceLast4         string `json:"source_last4"`
}

// PaymentGateway is the narrow settlement API this service consumes.
// Authorize is never blindly retried; GetPayment is a safe read.
type PaymentGateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)
	GetPayment(ctx context.Context, paymentID string) (*PaymentDetails, error)
}

type httpGateway struct {
	cfg    Config
	client *http.Client
}

func NewHTTPGateway(cfg Config) PaymentGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *httpGateway) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/v1/authorizations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// Timeouts and transport failures resolve the step to FAILED for
		// the caller, never to an indefinite pending state.
		return nil, fmt.Errorf("%w: authorize: %v", utils.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: authorize returned %d", utils.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: authorize returned %d", utils.ErrGatewayDeclined, resp.StatusCode)
	}

	var result AuthorizeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode authorize response: %v", utils.ErrGatewayUnavailable, err)
	}
	if result.Status != "APPROVED" {
		return &result, utils.ErrGatewayDeclined
	}
	return &result, nil
}

func (g *httpGateway) GetPayment(ctx context.Context, paymentID string) (*PaymentDetails, error) {
	if paymentID == "" {
		return nil, errors.New("payment id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.cfg.BaseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	// Reads are idempotent, so one retry on transport failure is safe.
	var resp *http.Response
	for attempt := 0; attempt < 2; attempt++ {
		resp, err = g.client.Do(httpReq)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get payment: %v", utils.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: get payment returned %d: %s", utils.ErrGatewayUnavailable, resp.StatusCode, raw)
	}

	var details PaymentDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("%w: decode payment: %v", utils.ErrGatewayUnavailable, err)
	}
	return &details, nil
}
