package types

type Transaction struct {
	Id                uint64 `json:"id"`
	AccountId         string `json:"account_id"`
	Kind              string `json:"kind"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	Provider          string `json:"provider"`
	ExternalId        string `json:"external_id"`
	Reference         string `json:"reference"`
	ParentId          uint64 `json:"parent_id,omitempty"`
	RefundedCents     int64  `json:"refunded_cents"`
	ClientAction      string `json:"client_action"`
	CheckoutUrl       string `json:"checkout_url,omitempty"`
	ClientSecret      string `json:"client_secret,omitempty"`
	StatusCallbackUrl string `json:"status_callback_url,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

type TransactionEnvelopeResponse struct {
	Transaction *Transaction `json:"transaction"`
}

type ListTransactionsResponse struct {
	Transactions []*Transaction `json:"transactions"`
}

type Wallet struct {
	AccountId    string `json:"account_id"`
	BalanceCents int64  `json:"balance_cents"`
	UpdatedAt    string `json:"updated_at"`
}

type WalletEnvelopeResponse struct {
	Wallet *Wallet `json:"wallet"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
