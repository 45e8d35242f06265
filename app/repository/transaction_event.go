package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-ledger/app/entity"
)

type TransactionEventRepository struct {
	db DBTX
}

func NewTransactionEventRepository(db DBTX) *TransactionEventRepository {
	return &TransactionEventRepository{db: db}
}

func (r *TransactionEventRepository) Create(ctx context.Context, event *entity.TransactionEvent) error {
	query := `
		INSERT INTO transaction_events (
			transaction_id, event_type, old_status, new_status, provider_event_id, payload_json, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.TransactionID,
		event.EventType,
		nullableInt32Value(event.OldStatus),
		event.NewStatus,
		nullableStringValue(event.ProviderEventID),
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}
