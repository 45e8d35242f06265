package entity

import "time"

const (
	NotifyDeliveryNone    int32 = 0
	NotifyDeliveryPending int32 = 1
	NotifyDeliverySuccess int32 = 10
	NotifyDeliveryFailed  int32 = 20
)

// Transaction is a ledger row. Rows are append-mostly: once a terminal
// status is reached only the refund bookkeeping fields and the notification
// delivery fields may still change.
type Transaction struct {
	ID uint64

	RequestID     string
	CallerService string

	AccountID string
	Kind      int32

	AmountCents int64
	Currency    string

	Status   int32
	Provider int32

	// ExternalID is the provider's transaction identifier. Unique per
	// provider; the idempotency key for callback processing.
	ExternalID string

	// Reference links back to the order/reservation that requested the
	// charge. ParentID links a refund row to the original transaction.
	Reference string
	ParentID  *uint64

	RefundedCents int64
	Reason        *string

	CheckoutURL  *string
	ClientSecret *string

	CallbackHash string

	NotifyURL              string
	NotifyDeliveryStatus   int32
	NotifyDeliveryAttempts int32
	NotifyDeliveryNextAt   *time.Time
	NotifyDeliveryLastErr  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
