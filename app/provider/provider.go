package provider

import (
	"context"

	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

type CreateInput struct {
	AccountID    string
	CallbackHash string
	Reference    string
	Description  string
	AmountCents  int64
	Currency     string
}

// CreateOutput is the transient payment handle returned by an adapter:
// the provider's own transaction identifier plus the client action the
// caller has to perform next.
type CreateOutput struct {
	ExternalID          string
	ClientAction        types.ClientActionType
	CheckoutURL         *string
	ClientSecret        *string
	ProviderCallbackURL string
	InitialStatus       int32
}

type CallbackEvent struct {
	ProviderEventID *string
	ExternalID      string
	EventType       string
	NewStatus       int32
	AmountCents     int64
}

type RefundResult struct {
	RefundExternalID string
}

type Provider interface {
	Code() int32
	CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error)
	Refund(ctx context.Context, externalID string, amountCents int64) (*RefundResult, error)
	VerifyAndParseCallback(ctx context.Context, payload []byte, signature string) (*CallbackEvent, error)
	GetPaymentStatus(ctx context.Context, externalID string) (int32, error)
}
