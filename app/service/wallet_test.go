package service

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestWalletDebitAndCredit(t *testing.T) {
	repo := newFakeWalletRepo()
	repo.balances["acct-1"] = 1000
	svc := NewWalletService(repo)

	balance, err := svc.Debit(context.Background(), "acct-1", 400)
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if balance != 600 {
		t.Fatalf("expected balance 600, got %d", balance)
	}

	balance, err = svc.Credit(context.Background(), "acct-1", 250)
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if balance != 850 {
		t.Fatalf("expected balance 850, got %d", balance)
	}
}

func TestWalletDebitInsufficientBalance(t *testing.T) {
	repo := newFakeWalletRepo()
	repo.balances["acct-1"] = 300
	svc := NewWalletService(repo)

	_, err := svc.Debit(context.Background(), "acct-1", 400)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if repo.balances["acct-1"] != 300 {
		t.Fatalf("rejected debit must leave balance unchanged, got %d", repo.balances["acct-1"])
	}
}

func TestWalletDebitUnknownAccount(t *testing.T) {
	svc := NewWalletService(newFakeWalletRepo())

	_, err := svc.Debit(context.Background(), "acct-missing", 100)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for unknown account, got %v", err)
	}
}

func TestWalletRejectsNonPositiveAmounts(t *testing.T) {
	repo := newFakeWalletRepo()
	repo.balances["acct-1"] = 1000
	svc := NewWalletService(repo)

	for _, amount := range []int64{0, -100} {
		if _, err := svc.Debit(context.Background(), "acct-1", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("debit %d: expected ErrInvalidAmount, got %v", amount, err)
		}
		if _, err := svc.Credit(context.Background(), "acct-1", amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("credit %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestWalletCreditCreatesWalletOnFirstUse(t *testing.T) {
	repo := newFakeWalletRepo()
	svc := NewWalletService(repo)

	balance, err := svc.Credit(context.Background(), "acct-new", 500)
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if balance != 500 {
		t.Fatalf("expected balance 500, got %d", balance)
	}
}

func TestWalletBalanceUnknownAccount(t *testing.T) {
	svc := NewWalletService(newFakeWalletRepo())

	_, err := svc.Balance(context.Background(), "acct-missing")
	if !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestWalletConcurrentMixedOperationsConserveBalance(t *testing.T) {
	repo := newFakeWalletRepo()
	repo.balances["acct-1"] = 10000
	svc := NewWalletService(repo)

	const workers = 20
	var wg sync.WaitGroup
	debits := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				if _, err := svc.Debit(context.Background(), "acct-1", 300); err == nil {
					debits <- 300
				}
				return
			}
			if _, err := svc.Credit(context.Background(), "acct-1", 100); err != nil {
				t.Errorf("credit failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(debits)

	var debited int64
	for amount := range debits {
		debited += amount
	}

	expected := 10000 + 10*100 - debited
	if repo.balances["acct-1"] != expected {
		t.Fatalf("expected balance %d, got %d", expected, repo.balances["acct-1"])
	}
	if repo.balances["acct-1"] < 0 {
		t.Fatal("balance must never go negative")
	}
}
