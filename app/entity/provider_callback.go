package entity

import "time"

const (
	ProviderCallbackProcessed int32 = 10
	ProviderCallbackIgnored   int32 = 15
	ProviderCallbackRejected  int32 = 20
)

// ProviderCallback records every webhook delivery, including rejected and
// unknown ones, so unauthenticated attempts stay visible to monitoring.
type ProviderCallback struct {
	ID uint64

	TransactionID *uint64

	Provider     string
	CallbackHash string
	Signature    string
	PayloadJSON  string
	Status       int32
	Error        *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
