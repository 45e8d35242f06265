package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-ledger/app/entity"
)

type ProviderCallbackRepository struct {
	db DBTX
}

func NewProviderCallbackRepository(db DBTX) *ProviderCallbackRepository {
	return &ProviderCallbackRepository{db: db}
}

func (r *ProviderCallbackRepository) Create(ctx context.Context, callback *entity.ProviderCallback) error {
	query := `
		INSERT INTO provider_callbacks (
			transaction_id, provider, callback_hash, signature, payload_json, status, error, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableUint64Value(callback.TransactionID),
		callback.Provider,
		callback.CallbackHash,
		callback.Signature,
		callback.PayloadJSON,
		callback.Status,
		nullableStringValue(callback.Error),
		callback.CreatedAt,
		callback.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	callback.ID = uint64(id)

	return nil
}
