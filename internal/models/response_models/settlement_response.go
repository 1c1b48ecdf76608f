package response_models

type SettlementStepResponse struct {
	SourceKind          string `json:"source_kind"`
	SourceLabel         string `json:"source_label,omitempty"`
	RequestedAmountMinor int64 `json:"requested_amount_minor"`
	ApprovedAmountMinor  int64 `json:"approved_amount_minor"`
	Partial             bool   `json:"partial,omitempty"`
	FailureReason       string `json:"failure_reason,omitempty"`
}

type SettlementSummaryResponse struct {
	State          string                   `json:"state"`
	OrderRef       string                   `json:"order_ref"`
	TotalMinor     int64                    `json:"total_minor"`
	SettledMinor   int64                    `json:"settled_minor"`
	RemainingMinor int64                    `json:"remaining_minor"`
	Steps          []SettlementStepResponse `json:"steps"`
	FailureReasons []string                 `json:"failure_reasons,omitempty"`
}

type RechargeResponse struct {
	Code            string                    `json:"code"`
	NewBalanceMinor int64                     `json:"new_balance_minor"`
	Settlement      SettlementSummaryResponse `json:"settlement"`
}

type PurchaseResponse struct {
	GiftCardID string                    `json:"gift_card_id"`
	Code       string                    `json:"code"`
	IsActive   bool                      `json:"is_active"`
	Settlement SettlementSummaryResponse `json:"settlement"`
}
