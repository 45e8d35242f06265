package service

import "errors"

var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
	ErrProviderUnsupported      = errors.New("provider is not supported")
	ErrCallbackRejected         = errors.New("callback rejected")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrWalletNotFound           = errors.New("wallet not found")
	ErrRefundNotAllowed         = errors.New("transaction is not refundable")
	ErrRefundExceedsRemaining   = errors.New("refund exceeds remaining refundable amount")

	// ErrLedgerDiverged means money may have moved at a provider while the
	// ledger write failed. Operational, never a caller mistake; always
	// logged before being returned.
	ErrLedgerDiverged = errors.New("ledger diverged from provider state")
)
