package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftvault/pkg/utils"
)

func testGateway(t *testing.T, handler http.HandlerFunc) PaymentGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPGateway(Config{
		BaseURL: srv.URL,
		APIKey:  "sk_test",
		Timeout: 2 * time.Second,
	})
}

func TestAuthorize_Approved(t *testing.T) {
	var gotReq AuthorizeRequest
	var gotIdemKey, gotAuth string

	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/authorizations", r.URL.Path)
		gotIdemKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(AuthorizeResult{
			PaymentID:           "pay_1",
			Status:              "APPROVED",
			ApprovedAmountMinor: 2000,
		})
	})

	result, err := gw.Authorize(context.Background(), AuthorizeRequest{
		SourceToken:    "tok_visa",
		AmountMinor:    2000,
		Currency:       "USD",
		Reference:      "ord-1",
		AcceptPartial:  true,
		IdempotencyKey: "ord-1:visa",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", result.PaymentID)
	assert.False(t, result.IsPartial(2000))

	assert.Equal(t, "ord-1:visa", gotIdemKey)
	assert.Equal(t, "Bearer sk_test", gotAuth)
	assert.True(t, gotReq.AcceptPartial)
	// The idempotency key travels in the header, never the body.
	assert.Empty(t, gotReq.IdempotencyKey)
}

func TestAuthorize_PartialApproval(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(AuthorizeResult{
			PaymentID:           "pay_2",
			Status:              "APPROVED",
			ApprovedAmountMinor: 1200,
		})
	})

	result, err := gw.Authorize(context.Background(), AuthorizeRequest{
		SourceToken: "tok_visa",
		AmountMinor: 2000,
	})
	require.NoError(t, err)
	assert.True(t, result.IsPartial(2000))
	assert.Equal(t, int64(1200), result.ApprovedAmountMinor)
}

func TestAuthorize_Declined(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	})

	_, err := gw.Authorize(context.Background(), AuthorizeRequest{AmountMinor: 2000})
	assert.ErrorIs(t, err, utils.ErrGatewayDeclined)
}

func TestAuthorize_DeclinedStatusInBody(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(AuthorizeResult{PaymentID: "pay_3", Status: "DECLINED"})
	})

	_, err := gw.Authorize(context.Background(), AuthorizeRequest{AmountMinor: 2000})
	assert.ErrorIs(t, err, utils.ErrGatewayDeclined)
}

func TestAuthorize_ServerError(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := gw.Authorize(context.Background(), AuthorizeRequest{AmountMinor: 2000})
	assert.ErrorIs(t, err, utils.ErrGatewayUnavailable)
}

func TestAuthorize_Timeout(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := gw.Authorize(ctx, AuthorizeRequest{AmountMinor: 2000})
	assert.ErrorIs(t, err, utils.ErrGatewayUnavailable)
}

func TestGetPayment(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay_1", r.URL.Path)
		json.NewEncoder(w).Encode(PaymentDetails{
			PaymentID:   "pay_1",
			Status:      "COMPLETED",
			AmountMinor: 5000,
		})
	})

	details, err := gw.GetPayment(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", details.Status)
}

func TestGetPayment_NotFound(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := gw.GetPayment(context.Background(), "pay_missing")
	assert.ErrorIs(t, err, utils.ErrGatewayUnavailable)
}

func TestGetPayment_RequiresID(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := gw.GetPayment(context.Background(), "")
	assert.Error(t, err)
}
