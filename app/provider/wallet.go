package provider

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

// BalanceManager is the wallet balance mutator the wallet adapter charges
// against. Implemented by the wallet service; injected to keep this package
// free of persistence concerns.
type BalanceManager interface {
	Debit(ctx context.Context, accountID string, amountCents int64) (int64, error)
	Credit(ctx context.Context, accountID string, amountCents int64) (int64, error)
}

// WalletProvider settles synchronously against the internal wallet. There is
// no external round trip, so the external id is generated locally and the
// initial status is already terminal.
type WalletProvider struct {
	balances BalanceManager
}

func NewWalletProvider(balances BalanceManager) *WalletProvider {
	return &WalletProvider{balances: balances}
}

func (p *WalletProvider) Code() int32 {
	return int32(types.ProviderTypeWallet)
}

func (p *WalletProvider) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if _, err := p.balances.Debit(ctx, input.AccountID, input.AmountCents); err != nil {
		return nil, err
	}

	return &CreateOutput{
		ExternalID:    "wlt_" + uuid.NewString(),
		ClientAction:  types.ClientActionNone,
		InitialStatus: int32(types.TransactionStatusCompleted),
	}, nil
}

func (p *WalletProvider) Refund(_ context.Context, _ string, _ int64) (*RefundResult, error) {
	// A wallet external id names no provider-side transaction to reverse;
	// the refund coordinator credits the wallet directly.
	return nil, errors.New("wallet refunds are settled by the refund coordinator")
}

func (p *WalletProvider) VerifyAndParseCallback(_ context.Context, _ []byte, _ string) (*CallbackEvent, error) {
	return nil, errors.New("wallet provider does not deliver callbacks")
}

func (p *WalletProvider) GetPaymentStatus(_ context.Context, _ string) (int32, error) {
	return 0, nil
}
