package request_models

// FundingSourceInput describes one funding source offered by the caller for
// a settlement. Gift-card sources are referenced by code; card/wallet
// sources carry an opaque gateway token (the service never sees PANs).
type FundingSourceInput struct {
	Kind string `json:"kind" binding:"required,oneof=gift_card card wallet"`

	// Set when kind == "gift_card".
	Code string `json:"code,omitempty"`

	// Set for card/wallet sources.
	Token string `json:"token,omitempty"`
	Brand string `json:"brand,omitempty"`
	Last4 string `json:"last4,omitempty"`
}

type RedeemRequest struct {
	Code        string `json:"code" binding:"required"`
	AmountMinor int64  `json:"amount_minor" binding:"required,gt=0"`
	Pin         string `json:"pin,omitempty"`
	Note        string `json:"note,omitempty"`

	// Caller-supplied key so network retries never double-debit.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type RechargeRequest struct {
	Code           string               `json:"code" binding:"required"`
	AmountMinor    int64                `json:"amount_minor" binding:"required,gt=0"`
	FundingSources []FundingSourceInput `json:"funding_sources" binding:"required,min=1,dive"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
}

type PurchaseRequest struct {
	AmountMinor    int64                `json:"amount_minor" binding:"required,gt=0"`
	Currency       string               `json:"currency,omitempty"`
	FundingSources []FundingSourceInput `json:"funding_sources" binding:"required,min=1,dive"`

	DesignTheme    string   `json:"design_theme,omitempty"`
	DesignTags     []string `json:"design_tags,omitempty"`
	RecipientName  string   `json:"recipient_name,omitempty"`
	RecipientEmail string   `json:"recipient_email,omitempty"`
	Pin            string   `json:"pin,omitempty"`

	IdempotencyKey string `json:"idempotency_key,omitempty"`
}
