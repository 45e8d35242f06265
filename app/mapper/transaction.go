package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-ledger/app/entity"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

func TransactionToResponse(item *entity.Transaction) *types.Transaction {
	if item == nil {
		return nil
	}

	return &types.Transaction{
		Id:                item.ID,
		AccountId:         item.AccountID,
		Kind:              types.TransactionKind(item.Kind).String(),
		AmountCents:       item.AmountCents,
		Currency:          item.Currency,
		Status:            types.TransactionStatus(item.Status).String(),
		Provider:          types.ProviderType(item.Provider).String(),
		ExternalId:        item.ExternalID,
		Reference:         item.Reference,
		ParentId:          derefUint64(item.ParentID),
		RefundedCents:     item.RefundedCents,
		ClientAction:      string(clientAction(item)),
		CheckoutUrl:       derefString(item.CheckoutURL),
		ClientSecret:      derefString(item.ClientSecret),
		StatusCallbackUrl: item.NotifyURL,
		CreatedAt:         item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func TransactionsToResponse(items []*entity.Transaction) []*types.Transaction {
	result := make([]*types.Transaction, 0, len(items))
	for _, item := range items {
		result = append(result, TransactionToResponse(item))
	}
	return result
}

func WalletToResponse(item *entity.Wallet) *types.Wallet {
	if item == nil {
		return nil
	}

	return &types.Wallet{
		AccountId:    item.AccountID,
		BalanceCents: item.BalanceCents,
		UpdatedAt:    item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// clientAction derives what the caller must do next from the provider
// artifacts stored on the row.
func clientAction(item *entity.Transaction) types.ClientActionType {
	switch {
	case item.CheckoutURL != nil && *item.CheckoutURL != "":
		return types.ClientActionRedirect
	case item.ClientSecret != nil && *item.ClientSecret != "":
		return types.ClientActionClientSecret
	default:
		return types.ClientActionNone
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefUint64(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}
