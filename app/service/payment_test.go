package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vibast-solutions/ms-go-ledger/app/provider"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

func createRequest(overrides func(*types.CreatePaymentRequest)) *types.CreatePaymentRequest {
	req := &types.CreatePaymentRequest{
		RequestId:         "req-1",
		CallerService:     "orders-service",
		AccountId:         "acct-1",
		Reference:         "order-1",
		Kind:              "payment",
		AmountCents:       1000,
		Currency:          "USD",
		Provider:          "stripe",
		StatusCallbackUrl: "https://caller.example/status",
	}
	if overrides != nil {
		overrides(req)
	}
	return req
}

func TestCreatePaymentExternalProviderStartsPending(t *testing.T) {
	env := newTestEnv(&fakeProvider{})

	item, err := env.payments.CreatePayment(context.Background(), createRequest(nil))
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if item.Status != int32(types.TransactionStatusPending) {
		t.Fatalf("expected pending status, got %d", item.Status)
	}
	if item.ExternalID != "pi_test_123" {
		t.Fatalf("expected provider external id, got %q", item.ExternalID)
	}
	if item.ClientSecret == nil || *item.ClientSecret == "" {
		t.Fatal("expected client secret on stripe payment")
	}
	if len(env.eventRepo.byType("payment_created")) != 1 {
		t.Fatal("expected payment_created event")
	}
}

func TestCreatePaymentIdempotentByRequestIDAndCallerService(t *testing.T) {
	env := newTestEnv(&fakeProvider{})

	first, err := env.payments.CreatePayment(context.Background(), createRequest(nil))
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	second, err := env.payments.CreatePayment(context.Background(), createRequest(nil))
	if err != nil {
		t.Fatalf("second create payment failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same transaction id for replayed request, first=%d second=%d", first.ID, second.ID)
	}
}

func TestCreatePaymentRejectsAmountOutsideBounds(t *testing.T) {
	env := newTestEnv(&fakeProvider{})

	for _, amount := range []int64{0, -500, 50, 2000000} {
		_, err := env.payments.CreatePayment(context.Background(), createRequest(func(req *types.CreatePaymentRequest) {
			req.AmountCents = amount
		}))
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if len(env.repo.transactions) != 0 {
		t.Fatal("rejected amounts must not produce ledger rows")
	}
}

func TestCreatePaymentProviderFailureLeavesNoRow(t *testing.T) {
	providerErr := &provider.Error{Provider: "stripe", Retryable: true, Err: errors.New("timeout")}
	env := newTestEnv(&fakeProvider{createErr: providerErr})

	_, err := env.payments.CreatePayment(context.Background(), createRequest(nil))
	var got *provider.Error
	if !errors.As(err, &got) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !got.Retryable {
		t.Fatal("expected retryable provider error")
	}
	if len(env.repo.transactions) != 0 {
		t.Fatal("failed provider call must not produce ledger rows")
	}
}

func TestCreatePaymentLedgerWriteFailureIsDivergence(t *testing.T) {
	env := newTestEnv(&fakeProvider{})
	env.repo.createErr = errors.New("connection reset")

	_, err := env.payments.CreatePayment(context.Background(), createRequest(nil))
	if !errors.Is(err, ErrLedgerDiverged) {
		t.Fatalf("expected ErrLedgerDiverged, got %v", err)
	}
}

func TestCreatePaymentWalletDebitsAndCompletesSynchronously(t *testing.T) {
	env := newTestEnv(&fakeProvider{})
	env.walletRepo.balances["acct-1"] = 5000

	item, err := env.payments.CreatePayment(context.Background(), createRequest(func(req *types.CreatePaymentRequest) {
		req.Provider = "wallet"
		req.StatusCallbackUrl = ""
	}))
	if err != nil {
		t.Fatalf("wallet payment failed: %v", err)
	}
	if item.Status != int32(types.TransactionStatusCompleted) {
		t.Fatalf("expected completed status, got %d", item.Status)
	}
	if balance := env.walletRepo.balances["acct-1"]; balance != 4000 {
		t.Fatalf("expected balance 4000 after debit, got %d", balance)
	}
}

func TestCreatePaymentWalletInsufficientBalance(t *testing.T) {
	env := newTestEnv(&fakeProvider{})
	env.walletRepo.balances["acct-1"] = 500

	_, err := env.payments.CreatePayment(context.Background(), createRequest(func(req *types.CreatePaymentRequest) {
		req.Provider = "wallet"
		req.StatusCallbackUrl = ""
	}))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if balance := env.walletRepo.balances["acct-1"]; balance != 500 {
		t.Fatalf("rejected debit must leave balance unchanged, got %d", balance)
	}
	if len(env.repo.transactions) != 0 {
		t.Fatal("rejected wallet payment must not produce ledger rows")
	}
}

func TestCreatePaymentUnsupportedProvider(t *testing.T) {
	env := newTestEnv(nil)

	_, err := env.payments.CreatePayment(context.Background(), createRequest(nil))
	if !errors.Is(err, ErrProviderUnsupported) {
		t.Fatalf("expected ErrProviderUnsupported, got %v", err)
	}
}

func TestPayoutDebitsWalletAndWritesCompletedRow(t *testing.T) {
	env := newTestEnv(&fakeProvider{})
	env.walletRepo.balances["acct-1"] = 10000

	item, err := env.payments.Payout(context.Background(), &types.PayoutRequest{
		AccountId:   "acct-1",
		RequestId:   "payout-1",
		AmountCents: 2500,
		Currency:    "USD",
		Destination: "bank-xyz",
	})
	if err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	if item.Status != int32(types.TransactionStatusCompleted) {
		t.Fatalf("expected completed payout, got status %d", item.Status)
	}
	if item.Kind != int32(types.TransactionKindPayout) {
		t.Fatalf("expected payout kind, got %d", item.Kind)
	}
	if balance := env.walletRepo.balances["acct-1"]; balance != 7500 {
		t.Fatalf("expected balance 7500 after payout, got %d", balance)
	}
}

func TestPayoutIdempotentByRequestID(t *testing.T) {
	env := newTestEnv(&fakeProvider{})
	env.walletRepo.balances["acct-1"] = 10000

	req := &types.PayoutRequest{
		AccountId:   "acct-1",
		RequestId:   "payout-1",
		AmountCents: 2500,
		Currency:    "USD",
		Destination: "bank-xyz",
	}
	first, err := env.payments.Payout(context.Background(), req)
	if err != nil {
		t.Fatalf("payout failed: %v", err)
	}
	second, err := env.payments.Payout(context.Background(), req)
	if err != nil {
		t.Fatalf("replayed payout failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected replay to return original payout, first=%d second=%d", first.ID, second.ID)
	}
	if balance := env.walletRepo.balances["acct-1"]; balance != 7500 {
		t.Fatalf("replay must not debit twice, balance %d", balance)
	}
}

func TestConcurrentWalletPaymentsNeverOverdraw(t *testing.T) {
	env := newTestEnv(&fakeProvider{})
	env.walletRepo.balances["acct-1"] = 1000

	const attempts = 10
	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.payments.CreatePayment(context.Background(), createRequest(func(req *types.CreatePaymentRequest) {
				req.RequestId = "req-" + string(rune('a'+n))
				req.Provider = "wallet"
				req.StatusCallbackUrl = ""
				req.AmountCents = 400
			}))
			if err == nil {
				successes <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(successes)

	succeeded := len(successes)
	if succeeded != 2 {
		t.Fatalf("expected exactly 2 debits of 400 from balance 1000, got %d", succeeded)
	}
	if balance := env.walletRepo.balances["acct-1"]; balance != 200 {
		t.Fatalf("expected balance 200, got %d", balance)
	}
}
