package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-ledger/app/entity"
	"github.com/vibast-solutions/ms-go-ledger/app/provider"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

// HandleProviderCallback resolves an asynchronous provider notification into
// a definitive transaction status. Redelivery of the same event is a no-op
// that reports the recorded outcome; the pending->terminal transition is a
// conditional update, so concurrent deliveries race safely.
func (s *PaymentService) HandleProviderCallback(ctx context.Context, req *types.HandleProviderCallbackRequest) (*entity.Transaction, error) {
	providerType, err := types.ParseProviderType(req.Provider)
	if err != nil || providerType == types.ProviderTypeWallet {
		return nil, ErrProviderUnsupported
	}

	providerClient, err := s.providerReg.Get(int32(providerType))
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	payload := []byte(req.Payload)
	signature := strings.TrimSpace(req.Signature)
	parsedEvent, err := providerClient.VerifyAndParseCallback(ctx, payload, signature)
	if err != nil {
		s.recordCallback(ctx, nil, req, entity.ProviderCallbackRejected, fmt.Sprintf("callback verification failed: %v", err))
		s.logger.WithError(err).WithField("provider", providerType.String()).Warn("unauthenticated_callback_rejected")
		return nil, ErrCallbackRejected
	}

	transaction, err := s.lookupCallbackTransaction(ctx, providerType, parsedEvent, req)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		// Unknown or foreign event. Recorded for monitoring, discarded
		// towards the provider.
		s.recordCallback(ctx, nil, req, entity.ProviderCallbackIgnored, "no transaction for external id")
		s.logger.WithFields(map[string]interface{}{
			"provider":    providerType.String(),
			"external_id": parsedEvent.ExternalID,
		}).Info("callback_for_unknown_transaction_discarded")
		return nil, nil
	}

	if transaction.CallbackHash != req.CallbackHash {
		s.recordCallback(ctx, &transaction.ID, req, entity.ProviderCallbackRejected, "callback hash mismatch")
		return nil, ErrCallbackRejected
	}

	now := time.Now().UTC()

	if transaction.Status != int32(types.TransactionStatusPending) {
		// Duplicate delivery: exactly one terminal transition already
		// happened, report the recorded outcome.
		s.recordCallback(ctx, &transaction.ID, req, entity.ProviderCallbackProcessed, "")
		return transaction, nil
	}

	if parsedEvent.NewStatus == 0 {
		// Informational event, no transition.
		s.recordCallback(ctx, &transaction.ID, req, entity.ProviderCallbackProcessed, "")
		return transaction, nil
	}

	applied, err := s.transactionRepo.Finalize(ctx, transaction.ID, parsedEvent.NewStatus, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent delivery won the race; return what it recorded.
		current, err := s.transactionRepo.FindByID(ctx, transaction.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrTransactionNotFound
		}
		s.recordCallback(ctx, &current.ID, req, entity.ProviderCallbackProcessed, "")
		return current, nil
	}

	oldStatus := transaction.Status
	transaction.Status = parsedEvent.NewStatus
	transaction.UpdatedAt = now

	if transaction.Status == int32(types.TransactionStatusCompleted) {
		s.applyCompletionEffects(ctx, transaction)
	}

	s.markForNotifyDispatch(transaction, now)
	if err := s.transactionRepo.Update(ctx, transaction); err != nil {
		s.logger.WithError(err).WithField("transaction_id", transaction.ID).Error("notify_bookkeeping_update_failed")
	}

	payloadJSON := string(payload)
	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID:   transaction.ID,
		EventType:       eventTypeOrDefault(parsedEvent.EventType),
		OldStatus:       &oldStatus,
		NewStatus:       transaction.Status,
		ProviderEventID: parsedEvent.ProviderEventID,
		PayloadJSON:     &payloadJSON,
		CreatedAt:       now,
	})

	s.recordCallback(ctx, &transaction.ID, req, entity.ProviderCallbackProcessed, "")

	return transaction, nil
}

func (s *PaymentService) lookupCallbackTransaction(
	ctx context.Context,
	providerType types.ProviderType,
	parsedEvent *provider.CallbackEvent,
	req *types.HandleProviderCallbackRequest,
) (*entity.Transaction, error) {
	if strings.TrimSpace(parsedEvent.ExternalID) != "" {
		return s.transactionRepo.FindByProviderExternalID(ctx, int32(providerType), parsedEvent.ExternalID)
	}
	return s.transactionRepo.FindByCallbackHash(ctx, int32(providerType), strings.TrimSpace(req.CallbackHash))
}

// applyCompletionEffects applies the wallet side of a completed transition.
// Failures are logged and recorded, never rolled back into the ledger
// transition that already happened.
func (s *PaymentService) applyCompletionEffects(ctx context.Context, transaction *entity.Transaction) {
	switch types.TransactionKind(transaction.Kind) {
	case types.TransactionKindWalletTopup:
		if _, err := s.wallets.Credit(ctx, transaction.AccountID, transaction.AmountCents); err != nil {
			s.logger.WithError(err).WithFields(map[string]interface{}{
				"transaction_id": transaction.ID,
				"account_id":     transaction.AccountID,
			}).Error("wallet_topup_credit_failed")
			_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
				TransactionID: transaction.ID,
				EventType:     "wallet_credit_failed",
				NewStatus:     transaction.Status,
				CreatedAt:     time.Now().UTC(),
			})
		}
	default:
		// Externally funded payments settle at the provider; the wallet is
		// untouched.
	}
}

func (s *PaymentService) recordCallback(
	ctx context.Context,
	transactionID *uint64,
	req *types.HandleProviderCallbackRequest,
	status int32,
	reason string,
) {
	now := time.Now().UTC()
	callback := &entity.ProviderCallback{
		TransactionID: transactionID,
		Provider:      strings.ToLower(strings.TrimSpace(req.Provider)),
		CallbackHash:  strings.TrimSpace(req.CallbackHash),
		Signature:     strings.TrimSpace(req.Signature),
		PayloadJSON:   req.Payload,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		trimmed := truncate(reason, 1024)
		callback.Error = &trimmed
	}
	if err := s.callbackRepo.Create(ctx, callback); err != nil {
		s.logger.WithError(err).Warn("provider_callback_audit_write_failed")
	}
}

func eventTypeOrDefault(eventType string) string {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return "provider_callback"
	}
	return eventType
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
