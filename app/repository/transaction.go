package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-ledger/app/entity"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
)

type TransactionFilter struct {
	AccountID string
	Reference string
	HasStatus bool
	Status    int32
	HasKind   bool
	Kind      int32
	Provider  int32
	Limit     int32
	Offset    int32
}

const transactionColumns = `
	id, request_id, caller_service, account_id, kind,
	amount_cents, currency, status, provider, external_id,
	reference, parent_id, refunded_cents, reason,
	checkout_url, client_secret, callback_hash,
	notify_url, notify_delivery_status, notify_delivery_attempts, notify_delivery_next_at, notify_delivery_last_error,
	created_at, updated_at
`

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *entity.Transaction) error {
	query := `
		INSERT INTO transactions (
			request_id, caller_service, account_id, kind,
			amount_cents, currency, status, provider, external_id,
			reference, parent_id, refunded_cents, reason,
			checkout_url, client_secret, callback_hash,
			notify_url, notify_delivery_status, notify_delivery_attempts, notify_delivery_next_at, notify_delivery_last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		tx.RequestID,
		tx.CallerService,
		tx.AccountID,
		tx.Kind,
		tx.AmountCents,
		tx.Currency,
		tx.Status,
		tx.Provider,
		tx.ExternalID,
		tx.Reference,
		nullableUint64Value(tx.ParentID),
		tx.RefundedCents,
		nullableStringValue(tx.Reason),
		nullableStringValue(tx.CheckoutURL),
		nullableStringValue(tx.ClientSecret),
		tx.CallbackHash,
		tx.NotifyURL,
		tx.NotifyDeliveryStatus,
		tx.NotifyDeliveryAttempts,
		nullableTimeValue(tx.NotifyDeliveryNextAt),
		nullableStringValue(tx.NotifyDeliveryLastErr),
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTransactionAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	tx.ID = uint64(id)
	return nil
}

// Update rewrites the mutable columns. Status transitions out of pending and
// refund accumulation do NOT go through here; they use the conditional
// Finalize and ApplyRefund statements below.
func (r *TransactionRepository) Update(ctx context.Context, tx *entity.Transaction) error {
	query := `
		UPDATE transactions SET
			status = ?,
			refunded_cents = ?,
			reason = ?,
			checkout_url = ?,
			client_secret = ?,
			notify_url = ?,
			notify_delivery_status = ?,
			notify_delivery_attempts = ?,
			notify_delivery_next_at = ?,
			notify_delivery_last_error = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		tx.Status,
		tx.RefundedCents,
		nullableStringValue(tx.Reason),
		nullableStringValue(tx.CheckoutURL),
		nullableStringValue(tx.ClientSecret),
		tx.NotifyURL,
		tx.NotifyDeliveryStatus,
		tx.NotifyDeliveryAttempts,
		nullableTimeValue(tx.NotifyDeliveryNextAt),
		nullableStringValue(tx.NotifyDeliveryLastErr),
		tx.UpdatedAt,
		tx.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	return nil
}

// Finalize moves a pending transaction to a terminal status. The WHERE
// clause only matches status=pending, so of N concurrent deliveries exactly
// one observes applied=true.
func (r *TransactionRepository) Finalize(ctx context.Context, id uint64, newStatus int32, now time.Time) (bool, error) {
	query := `
		UPDATE transactions
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, newStatus, now, id, int32(types.TransactionStatusPending))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ApplyRefund accumulates refunded_cents and derives the new status in one
// conditional statement, so concurrent refunds can never push the total past
// amount_cents. Status is assigned before refunded_cents on purpose: MySQL
// evaluates SET clauses left to right.
func (r *TransactionRepository) ApplyRefund(ctx context.Context, id uint64, amountCents int64, now time.Time) (bool, error) {
	query := `
		UPDATE transactions
		SET status = CASE WHEN refunded_cents + ? >= amount_cents THEN ? ELSE ? END,
			refunded_cents = refunded_cents + ?,
			updated_at = ?
		WHERE id = ?
		  AND status IN (?, ?)
		  AND refunded_cents + ? <= amount_cents
	`

	result, err := r.db.ExecContext(ctx, query,
		amountCents,
		int32(types.TransactionStatusRefunded),
		int32(types.TransactionStatusPartiallyRefunded),
		amountCents,
		now,
		id,
		int32(types.TransactionStatusCompleted),
		int32(types.TransactionStatusPartiallyRefunded),
		amountCents,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uint64) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, id), tx); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return tx, nil
}

func (r *TransactionRepository) FindByCallerRequestID(ctx context.Context, callerService, requestID string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE caller_service = ? AND request_id = ? LIMIT 1`

	tx := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, callerService, requestID), tx); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return tx, nil
}

func (r *TransactionRepository) FindByProviderExternalID(ctx context.Context, provider int32, externalID string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider = ? AND external_id = ? LIMIT 1`

	tx := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, provider, externalID), tx); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return tx, nil
}

func (r *TransactionRepository) FindByCallbackHash(ctx context.Context, provider int32, callbackHash string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE provider = ? AND callback_hash = ? LIMIT 1`

	tx := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, provider, callbackHash), tx); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return tx, nil
}

func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions`

	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 7)

	if strings.TrimSpace(filter.AccountID) != "" {
		conditions = append(conditions, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if strings.TrimSpace(filter.Reference) != "" {
		conditions = append(conditions, "reference = ?")
		args = append(args, filter.Reference)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.HasKind {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Provider > 0 {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	return r.queryTransactions(ctx, query, args...)
}

func (r *TransactionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = ?
		  AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	return r.queryTransactions(ctx, query, int32(types.TransactionStatusPending), cutoff, limit)
}

func (r *TransactionRepository) ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = ?
		  AND provider <> ?
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	return r.queryTransactions(ctx, query,
		int32(types.TransactionStatusPending),
		int32(types.ProviderTypeWallet),
		before,
		limit,
	)
}

func (r *TransactionRepository) ListDueNotifyDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE notify_delivery_status = ?
		  AND notify_delivery_next_at IS NOT NULL
		  AND notify_delivery_next_at <= ?
		ORDER BY notify_delivery_next_at ASC
		LIMIT ?
	`

	return r.queryTransactions(ctx, query, entity.NotifyDeliveryPending, now, limit)
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*entity.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*entity.Transaction, 0)
	for rows.Next() {
		item := &entity.Transaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		transactions = append(transactions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(scan rowScanner, tx *entity.Transaction) error {
	var parentID sql.NullInt64
	var reason sql.NullString
	var checkoutURL sql.NullString
	var clientSecret sql.NullString
	var notifyNextAt sql.NullTime
	var notifyLastErr sql.NullString

	err := scan.Scan(
		&tx.ID,
		&tx.RequestID,
		&tx.CallerService,
		&tx.AccountID,
		&tx.Kind,
		&tx.AmountCents,
		&tx.Currency,
		&tx.Status,
		&tx.Provider,
		&tx.ExternalID,
		&tx.Reference,
		&parentID,
		&tx.RefundedCents,
		&reason,
		&checkoutURL,
		&clientSecret,
		&tx.CallbackHash,
		&tx.NotifyURL,
		&tx.NotifyDeliveryStatus,
		&tx.NotifyDeliveryAttempts,
		&notifyNextAt,
		&notifyLastErr,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return err
	}

	tx.ParentID = uint64PtrFromNull(parentID)
	tx.Reason = stringPtrFromNull(reason)
	tx.CheckoutURL = stringPtrFromNull(checkoutURL)
	tx.ClientSecret = stringPtrFromNull(clientSecret)
	tx.NotifyDeliveryNextAt = timePtrFromNull(notifyNextAt)
	tx.NotifyDeliveryLastErr = stringPtrFromNull(notifyLastErr)

	return nil
}
