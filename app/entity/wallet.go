package entity

import "time"

// Wallet is the stored-value balance for one account, in integer minor
// units. BalanceCents never goes below zero.
type Wallet struct {
	AccountID    string
	BalanceCents int64

	CreatedAt time.Time
	UpdatedAt time.Time
}
