package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-ledger/app/entity"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type WalletRepository struct {
	db DBTX
}

func NewWalletRepository(db DBTX) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Find(ctx context.Context, accountID string) (*entity.Wallet, error) {
	query := `
		SELECT account_id, balance_cents, created_at, updated_at
		FROM wallets
		WHERE account_id = ?
	`

	wallet := &entity.Wallet{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&wallet.AccountID,
		&wallet.BalanceCents,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return wallet, nil
}

// Debit subtracts in a single conditional statement. The balance guard in
// the WHERE clause makes check-and-subtract one atomic step per account row,
// so a debit can never observe a stale balance.
func (r *WalletRepository) Debit(ctx context.Context, accountID string, amountCents int64, now time.Time) error {
	query := `
		UPDATE wallets
		SET balance_cents = balance_cents - ?, updated_at = ?
		WHERE account_id = ? AND balance_cents >= ?
	`

	result, err := r.db.ExecContext(ctx, query, amountCents, now, accountID, amountCents)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	wallet, err := r.Find(ctx, accountID)
	if err != nil {
		return err
	}
	if wallet == nil {
		return ErrWalletNotFound
	}
	return ErrInsufficientBalance
}

// Credit adds, creating the wallet row on first use.
func (r *WalletRepository) Credit(ctx context.Context, accountID string, amountCents int64, now time.Time) error {
	query := `
		INSERT INTO wallets (account_id, balance_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			balance_cents = balance_cents + VALUES(balance_cents),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query, accountID, amountCents, now, now)
	return err
}
