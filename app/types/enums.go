package types

import "errors"

var ErrInvalidProvider = errors.New("invalid provider")

type ProviderType int32

const (
	ProviderTypeUnspecified ProviderType = 0
	ProviderTypePaymob      ProviderType = 1
	ProviderTypeStripe      ProviderType = 2
	ProviderTypeWallet      ProviderType = 3
)

func ParseProviderType(raw string) (ProviderType, error) {
	switch raw {
	case "paymob", "1":
		return ProviderTypePaymob, nil
	case "stripe", "2":
		return ProviderTypeStripe, nil
	case "wallet", "3":
		return ProviderTypeWallet, nil
	default:
		return ProviderTypeUnspecified, ErrInvalidProvider
	}
}

func (p ProviderType) String() string {
	switch p {
	case ProviderTypePaymob:
		return "paymob"
	case ProviderTypeStripe:
		return "stripe"
	case ProviderTypeWallet:
		return "wallet"
	default:
		return "unspecified"
	}
}

type TransactionStatus int32

const (
	TransactionStatusUnspecified       TransactionStatus = 0
	TransactionStatusPending           TransactionStatus = 1
	TransactionStatusCompleted         TransactionStatus = 2
	TransactionStatusFailed            TransactionStatus = 3
	TransactionStatusPartiallyRefunded TransactionStatus = 4
	TransactionStatusRefunded          TransactionStatus = 5
)

func (s TransactionStatus) String() string {
	switch s {
	case TransactionStatusPending:
		return "pending"
	case TransactionStatusCompleted:
		return "completed"
	case TransactionStatusFailed:
		return "failed"
	case TransactionStatusPartiallyRefunded:
		return "partially_refunded"
	case TransactionStatusRefunded:
		return "refunded"
	default:
		return "unspecified"
	}
}

type TransactionKind int32

const (
	TransactionKindUnspecified TransactionKind = 0
	TransactionKindPayment     TransactionKind = 1
	TransactionKindRefund      TransactionKind = 2
	TransactionKindPayout      TransactionKind = 3
	TransactionKindWalletTopup TransactionKind = 4
)

func ParseTransactionKind(raw string) (TransactionKind, error) {
	switch raw {
	case "", "payment", "1":
		return TransactionKindPayment, nil
	case "wallet_topup", "4":
		return TransactionKindWalletTopup, nil
	default:
		return TransactionKindUnspecified, errors.New("invalid transaction kind")
	}
}

func (k TransactionKind) String() string {
	switch k {
	case TransactionKindPayment:
		return "payment"
	case TransactionKindRefund:
		return "refund"
	case TransactionKindPayout:
		return "payout"
	case TransactionKindWalletTopup:
		return "wallet_topup"
	default:
		return "unspecified"
	}
}

// ClientActionType tells the caller what to do next with a freshly created
// payment: follow a redirect, confirm with a client secret, or nothing
// (synchronous wallet path).
type ClientActionType string

const (
	ClientActionNone         ClientActionType = "none"
	ClientActionRedirect     ClientActionType = "redirect"
	ClientActionClientSecret ClientActionType = "client_secret"
)
