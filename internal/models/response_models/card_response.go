package response_models

type BalanceResponse struct {
	Code         string   `json:"code"`
	BalanceMinor int64    `json:"balance_minor"`
	Currency     string   `json:"currency"`
	DesignTheme  string   `json:"design_theme,omitempty"`
	DesignTags   []string `json:"design_tags,omitempty"`
	IsActive     bool     `json:"is_active"`
}

type RedeemResponse struct {
	TransactionID   string `json:"transaction_id"`
	NewBalanceMinor int64  `json:"new_balance_minor"`
}

type TransactionResponse struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	AmountMinor       int64  `json:"amount_minor"`
	BalanceAfterMinor int64  `json:"balance_after_minor"`
	Status            string `json:"status"`
	SourceBrand       string `json:"source_brand,omitempty"`
	SourceLast4       string `json:"source_last4,omitempty"`
	Note              string `json:"note,omitempty"`
	CreatedAt         int64  `json:"created_at"`
}

type TransactionHistoryResponse struct {
	Code         string                `json:"code"`
	Transactions []TransactionResponse `json:"transactions"`
}

// AuditResponse reports the replay integrity check: the stored balance next
// to the balance recomputed from the transaction history.
type AuditResponse struct {
	Code                string `json:"code"`
	StoredBalanceMinor  int64  `json:"stored_balance_minor"`
	ReplayBalanceMinor  int64  `json:"replay_balance_minor"`
	TransactionCount    int    `json:"transaction_count"`
	Consistent          bool   `json:"consistent"`
	FirstInconsistentID string `json:"first_inconsistent_id,omitempty"`
}
