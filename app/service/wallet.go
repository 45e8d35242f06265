package service

import (
	"context"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-ledger/app/entity"
	"github.com/vibast-solutions/ms-go-ledger/app/repository"
)

type walletRepository interface {
	Find(ctx context.Context, accountID string) (*entity.Wallet, error)
	Debit(ctx context.Context, accountID string, amountCents int64, now time.Time) error
	Credit(ctx context.Context, accountID string, amountCents int64, now time.Time) error
}

// WalletService is the only component that mutates wallet balances. Both
// operations are single atomic read-modify-write steps per account row; the
// repository's conditional statements provide the per-account serialization.
type WalletService struct {
	walletRepo walletRepository
}

func NewWalletService(walletRepo walletRepository) *WalletService {
	return &WalletService{walletRepo: walletRepo}
}

// Debit subtracts amountCents if the balance covers it, returning the new
// balance. A debit that would go negative is rejected and leaves the
// balance unchanged.
func (s *WalletService) Debit(ctx context.Context, accountID string, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}

	err := s.walletRepo.Debit(ctx, accountID, amountCents, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) || errors.Is(err, repository.ErrWalletNotFound) {
			return 0, ErrInsufficientBalance
		}
		return 0, err
	}

	return s.currentBalance(ctx, accountID)
}

// Credit adds amountCents, creating the wallet on first use.
func (s *WalletService) Credit(ctx context.Context, accountID string, amountCents int64) (int64, error) {
	if amountCents <= 0 {
		return 0, ErrInvalidAmount
	}

	if err := s.walletRepo.Credit(ctx, accountID, amountCents, time.Now().UTC()); err != nil {
		return 0, err
	}

	return s.currentBalance(ctx, accountID)
}

func (s *WalletService) Balance(ctx context.Context, accountID string) (*entity.Wallet, error) {
	wallet, err := s.walletRepo.Find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}
	return wallet, nil
}

func (s *WalletService) currentBalance(ctx context.Context, accountID string) (int64, error) {
	wallet, err := s.walletRepo.Find(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if wallet == nil {
		return 0, ErrWalletNotFound
	}
	return wallet.BalanceCents, nil
}
