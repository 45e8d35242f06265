package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ledger/app/entity"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

// RunReconcileBatch polls the provider for transactions still pending after
// the stale window. Callbacks can be lost; reconciliation is the backstop
// that converges the ledger on provider truth.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	before := time.Now().UTC().Add(-s.paymentsCfg.ReconcileStaleAfter)
	transactions, err := s.transactionRepo.ListForReconcile(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, transaction := range transactions {
		if err := s.reconcileOne(ctx, transaction); err != nil {
			s.logger.WithError(err).WithField("transaction_id", transaction.ID).Warn("reconcile_failed")
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func (s *PaymentService) reconcileOne(ctx context.Context, transaction *entity.Transaction) error {
	providerClient, err := s.providerReg.Get(transaction.Provider)
	if err != nil {
		return err
	}

	newStatus, err := providerClient.GetPaymentStatus(ctx, transaction.ExternalID)
	if err != nil {
		return err
	}
	if newStatus == 0 {
		// Still pending at the provider as well.
		return nil
	}

	now := time.Now().UTC()
	applied, err := s.transactionRepo.Finalize(ctx, transaction.ID, newStatus, now)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	oldStatus := transaction.Status
	transaction.Status = newStatus
	transaction.UpdatedAt = now

	if transaction.Status == int32(types.TransactionStatusCompleted) {
		s.applyCompletionEffects(ctx, transaction)
	}

	s.markForNotifyDispatch(transaction, now)
	if err := s.transactionRepo.Update(ctx, transaction); err != nil {
		s.logger.WithError(err).WithField("transaction_id", transaction.ID).Error("notify_bookkeeping_update_failed")
	}

	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID: transaction.ID,
		EventType:     "transaction_reconciled",
		OldStatus:     &oldStatus,
		NewStatus:     transaction.Status,
		CreatedAt:     now,
	})

	return nil
}

// RunSweepPendingBatch fails transactions that stayed pending past the
// abandonment window. A late provider callback for a swept transaction is a
// duplicate delivery and changes nothing.
func (s *PaymentService) RunSweepPendingBatch(ctx context.Context) error {
	now := time.Now().UTC()
	cutoff := now.Add(-s.paymentsCfg.PendingTimeout)
	transactions, err := s.transactionRepo.ListStalePending(ctx, cutoff, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, transaction := range transactions {
		applied, err := s.transactionRepo.Finalize(ctx, transaction.ID, int32(types.TransactionStatusFailed), now)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if !applied {
			continue
		}

		oldStatus := transaction.Status
		transaction.Status = int32(types.TransactionStatusFailed)
		transaction.UpdatedAt = now

		s.markForNotifyDispatch(transaction, now)
		if err := s.transactionRepo.Update(ctx, transaction); err != nil {
			s.logger.WithError(err).WithField("transaction_id", transaction.ID).Error("notify_bookkeeping_update_failed")
		}

		_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
			TransactionID: transaction.ID,
			EventType:     "pending_transaction_swept",
			OldStatus:     &oldStatus,
			NewStatus:     transaction.Status,
			CreatedAt:     now,
		})

		s.logger.WithFields(logrus.Fields{
			"transaction_id": transaction.ID,
			"created_at":     transaction.CreatedAt,
		}).Info("stale_pending_transaction_failed")
	}

	return firstErr
}

// RunNotifyDispatchBatch delivers status notifications to caller services
// over HTTP, retrying failures with a fixed interval until the attempt cap.
func (s *PaymentService) RunNotifyDispatchBatch(ctx context.Context) error {
	now := time.Now().UTC()
	transactions, err := s.transactionRepo.ListDueNotifyDispatch(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, transaction := range transactions {
		if err := s.dispatchNotify(ctx, transaction); err != nil {
			s.recordDispatchFailure(ctx, transaction, err)
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		transaction.NotifyDeliveryStatus = entity.NotifyDeliverySuccess
		transaction.NotifyDeliveryNextAt = nil
		transaction.NotifyDeliveryLastErr = nil
		transaction.UpdatedAt = time.Now().UTC()
		if err := s.transactionRepo.Update(ctx, transaction); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

type notifyPayload struct {
	TransactionID uint64 `json:"transaction_id"`
	RequestID     string `json:"request_id"`
	AccountID     string `json:"account_id"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Provider      string `json:"provider"`
	AmountCents   int64  `json:"amount_cents"`
	RefundedCents int64  `json:"refunded_cents"`
	Currency      string `json:"currency"`
	Reference     string `json:"reference"`
	ExternalID    string `json:"external_id"`
}

func (s *PaymentService) dispatchNotify(ctx context.Context, transaction *entity.Transaction) error {
	body, err := json.Marshal(notifyPayload{
		TransactionID: transaction.ID,
		RequestID:     transaction.RequestID,
		AccountID:     transaction.AccountID,
		Kind:          types.TransactionKind(transaction.Kind).String(),
		Status:        types.TransactionStatus(transaction.Status).String(),
		Provider:      types.ProviderType(transaction.Provider).String(),
		AmountCents:   transaction.AmountCents,
		RefundedCents: transaction.RefundedCents,
		Currency:      transaction.Currency,
		Reference:     transaction.Reference,
		ExternalID:    transaction.ExternalID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, transaction.NotifyURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", transaction.RequestID)
	if s.appAPIKey != "" {
		req.Header.Set("X-API-Key", s.appAPIKey)
	}

	resp, err := s.notifyHTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *PaymentService) recordDispatchFailure(ctx context.Context, transaction *entity.Transaction, cause error) {
	now := time.Now().UTC()
	transaction.NotifyDeliveryAttempts++
	lastErr := truncate(cause.Error(), 1024)
	transaction.NotifyDeliveryLastErr = &lastErr
	transaction.UpdatedAt = now

	if transaction.NotifyDeliveryAttempts >= s.paymentsCfg.NotifyMaxAttempts {
		transaction.NotifyDeliveryStatus = entity.NotifyDeliveryFailed
		transaction.NotifyDeliveryNextAt = nil
		s.logger.WithError(cause).WithFields(logrus.Fields{
			"transaction_id": transaction.ID,
			"attempts":       transaction.NotifyDeliveryAttempts,
		}).Error("notify_delivery_abandoned")
	} else {
		nextAt := now.Add(s.paymentsCfg.NotifyRetryInterval)
		transaction.NotifyDeliveryNextAt = &nextAt
		s.logger.WithError(cause).WithFields(logrus.Fields{
			"transaction_id": transaction.ID,
			"attempts":       transaction.NotifyDeliveryAttempts,
		}).Warn("notify_delivery_failed")
	}

	if err := s.transactionRepo.Update(ctx, transaction); err != nil {
		s.logger.WithError(err).WithField("transaction_id", transaction.ID).Error("notify_bookkeeping_update_failed")
	}
}

func keepFirstErr(current, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
