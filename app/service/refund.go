package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ledger/app/entity"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

// RefundPayment refunds part or all of a completed payment. A zero amount
// means the full remaining refundable amount. The running refunded total is
// advanced by a guarded update, so concurrent refunds can never push it past
// the original amount.
func (s *PaymentService) RefundPayment(ctx context.Context, req *types.RefundPaymentRequest) (*entity.Transaction, error) {
	original, err := s.transactionRepo.FindByID(ctx, req.Id)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, ErrTransactionNotFound
	}

	switch types.TransactionKind(original.Kind) {
	case types.TransactionKindRefund, types.TransactionKindPayout:
		return nil, ErrRefundNotAllowed
	}

	switch types.TransactionStatus(original.Status) {
	case types.TransactionStatusCompleted, types.TransactionStatusPartiallyRefunded:
	default:
		return nil, ErrRefundNotAllowed
	}

	remaining := original.AmountCents - original.RefundedCents
	requested := req.AmountCents
	if requested == 0 {
		requested = remaining
	}
	if requested < 0 {
		return nil, ErrInvalidAmount
	}
	if requested > remaining {
		return nil, ErrRefundExceedsRemaining
	}

	providerType := types.ProviderType(original.Provider)
	refundExternalID := "rfd_" + uuid.NewString()

	if providerType == types.ProviderTypeWallet {
		// Wallet payments were debited up front; the refund settles by
		// crediting the balance back.
		if _, err := s.wallets.Credit(ctx, original.AccountID, requested); err != nil {
			return nil, err
		}
	} else {
		providerClient, err := s.providerReg.Get(original.Provider)
		if err != nil {
			return nil, ErrProviderUnsupported
		}
		result, err := providerClient.Refund(ctx, original.ExternalID, requested)
		if err != nil {
			return nil, err
		}
		if result != nil && strings.TrimSpace(result.RefundExternalID) != "" {
			refundExternalID = result.RefundExternalID
		}
	}

	now := time.Now().UTC()

	applied, err := s.transactionRepo.ApplyRefund(ctx, original.ID, requested, now)
	if err != nil {
		return nil, s.reportLedgerDivergence(err, original)
	}
	if !applied {
		// The guarded update found the bound already consumed by a
		// concurrent refund, but the provider-side refund went through.
		s.logger.WithFields(logrus.Fields{
			"transaction_id": original.ID,
			"amount_cents":   requested,
		}).Error("refund_applied_at_provider_but_bound_exhausted")
		return nil, ErrLedgerDiverged
	}

	oldStatus := original.Status
	original.RefundedCents += requested
	if original.RefundedCents >= original.AmountCents {
		original.Status = int32(types.TransactionStatusRefunded)
	} else {
		original.Status = int32(types.TransactionStatusPartiallyRefunded)
	}
	original.UpdatedAt = now

	refund := &entity.Transaction{
		RequestID:     uuid.NewString(),
		CallerService: original.CallerService,
		AccountID:     original.AccountID,
		Kind:          int32(types.TransactionKindRefund),
		AmountCents:   requested,
		Currency:      original.Currency,
		Status:        int32(types.TransactionStatusCompleted),
		Provider:      original.Provider,
		ExternalID:    refundExternalID,
		Reference:     original.Reference,
		ParentID:      &original.ID,
		CallbackHash:  uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		refund.Reason = &reason
	}

	if err := s.transactionRepo.Create(ctx, refund); err != nil {
		return nil, s.reportLedgerDivergence(err, refund)
	}

	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID: refund.ID,
		EventType:     "refund_created",
		NewStatus:     refund.Status,
		CreatedAt:     now,
	})
	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID: original.ID,
		EventType:     "transaction_refunded",
		OldStatus:     &oldStatus,
		NewStatus:     original.Status,
		CreatedAt:     now,
	})

	s.markForNotifyDispatch(original, now)
	if err := s.transactionRepo.Update(ctx, original); err != nil {
		s.logger.WithError(err).WithField("transaction_id", original.ID).Error("notify_bookkeeping_update_failed")
	}

	return refund, nil
}
