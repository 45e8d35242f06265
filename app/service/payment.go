package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-ledger/app/entity"
	"github.com/vibast-solutions/ms-go-ledger/app/factory"
	"github.com/vibast-solutions/ms-go-ledger/app/provider"
	"github.com/vibast-solutions/ms-go-ledger/app/repository"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
	"github.com/vibast-solutions/ms-go-ledger/config"
)

const defaultBatchSize = int32(100)

type transactionRepository interface {
	Create(ctx context.Context, tx *entity.Transaction) error
	Update(ctx context.Context, tx *entity.Transaction) error
	Finalize(ctx context.Context, id uint64, newStatus int32, now time.Time) (bool, error)
	ApplyRefund(ctx context.Context, id uint64, amountCents int64, now time.Time) (bool, error)
	FindByID(ctx context.Context, id uint64) (*entity.Transaction, error)
	FindByCallerRequestID(ctx context.Context, callerService, requestID string) (*entity.Transaction, error)
	FindByProviderExternalID(ctx context.Context, provider int32, externalID string) (*entity.Transaction, error)
	FindByCallbackHash(ctx context.Context, provider int32, callbackHash string) (*entity.Transaction, error)
	List(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Transaction, error)
	ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Transaction, error)
	ListDueNotifyDispatch(ctx context.Context, now time.Time, limit int32) ([]*entity.Transaction, error)
}

type transactionEventRepository interface {
	Create(ctx context.Context, event *entity.TransactionEvent) error
}

type providerCallbackRepository interface {
	Create(ctx context.Context, callback *entity.ProviderCallback) error
}

// PaymentService orchestrates payment creation, callback resolution,
// refunds, and the lifecycle jobs. Balance mutations go through the wallet
// service exclusively.
type PaymentService struct {
	transactionRepo transactionRepository
	eventRepo       transactionEventRepository
	callbackRepo    providerCallbackRepository
	wallets         *WalletService
	providerReg     *provider.Registry
	paymentsCfg     config.PaymentsConfig
	appAPIKey       string
	notifyHTTP      *http.Client
	logger          logrus.FieldLogger
}

func NewPaymentService(
	transactionRepo transactionRepository,
	eventRepo transactionEventRepository,
	callbackRepo providerCallbackRepository,
	wallets *WalletService,
	providerReg *provider.Registry,
	paymentsCfg config.PaymentsConfig,
	appAPIKey string,
) *PaymentService {
	timeout := paymentsCfg.NotifyHTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PaymentService{
		transactionRepo: transactionRepo,
		eventRepo:       eventRepo,
		callbackRepo:    callbackRepo,
		wallets:         wallets,
		providerReg:     providerReg,
		paymentsCfg:     paymentsCfg,
		appAPIKey:       strings.TrimSpace(appAPIKey),
		notifyHTTP:      &http.Client{Timeout: timeout},
		logger:          factory.NewModuleLogger("payment-service"),
	}
}

func (s *PaymentService) CreatePayment(ctx context.Context, req *types.CreatePaymentRequest) (*entity.Transaction, error) {
	if req.RequestId == "" || req.CallerService == "" || req.AccountId == "" {
		return nil, ErrInvalidRequest
	}

	existing, err := s.transactionRepo.FindByCallerRequestID(ctx, req.CallerService, req.RequestId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	// Bounds are checked before any provider call; a bad amount must not
	// produce side effects anywhere.
	if err := s.validateAmountBounds(req.AmountCents); err != nil {
		return nil, err
	}

	providerType := req.ProviderType()
	providerClient, err := s.providerReg.Get(int32(providerType))
	if err != nil {
		if errors.Is(err, provider.ErrProviderNotSupported) {
			return nil, ErrProviderUnsupported
		}
		return nil, err
	}

	callbackHash := uuid.NewString()
	providerOutput, err := providerClient.CreatePayment(ctx, &provider.CreateInput{
		AccountID:    req.AccountId,
		CallbackHash: callbackHash,
		Reference:    req.Reference,
		Description:  req.Description,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	transaction := &entity.Transaction{
		RequestID:     req.RequestId,
		CallerService: req.CallerService,
		AccountID:     req.AccountId,
		Kind:          int32(req.TransactionKind()),
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		Status:        providerOutput.InitialStatus,
		Provider:      int32(providerType),
		ExternalID:    providerOutput.ExternalID,
		Reference:     req.Reference,
		RefundedCents: 0,
		CheckoutURL:   providerOutput.CheckoutURL,
		ClientSecret:  providerOutput.ClientSecret,
		CallbackHash:  callbackHash,
		NotifyURL:     req.StatusCallbackUrl,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if terminalStatus(transaction.Status) {
		s.markForNotifyDispatch(transaction, now)
	}

	if err := s.transactionRepo.Create(ctx, transaction); err != nil {
		if errors.Is(err, repository.ErrTransactionAlreadyExists) {
			return nil, ErrTransactionAlreadyExists
		}
		// The provider accepted the charge but the ledger has no record of
		// it. Surface loudly for reconciliation, never as a plain error.
		return nil, s.reportLedgerDivergence(err, transaction)
	}

	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID: transaction.ID,
		EventType:     "payment_created",
		NewStatus:     transaction.Status,
		CreatedAt:     now,
	})

	return transaction, nil
}

// Payout withdraws from the wallet: the debit settles synchronously, so the
// ledger row is written already completed.
func (s *PaymentService) Payout(ctx context.Context, req *types.PayoutRequest) (*entity.Transaction, error) {
	if req.RequestId == "" || req.AccountId == "" {
		return nil, ErrInvalidRequest
	}

	existing, err := s.transactionRepo.FindByCallerRequestID(ctx, payoutCallerService, req.RequestId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := s.validateAmountBounds(req.AmountCents); err != nil {
		return nil, err
	}

	if _, err := s.wallets.Debit(ctx, req.AccountId, req.AmountCents); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	transaction := &entity.Transaction{
		RequestID:     req.RequestId,
		CallerService: payoutCallerService,
		AccountID:     req.AccountId,
		Kind:          int32(types.TransactionKindPayout),
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		Status:        int32(types.TransactionStatusCompleted),
		Provider:      int32(types.ProviderTypeWallet),
		ExternalID:    "pyt_" + uuid.NewString(),
		Reference:     req.Destination,
		CallbackHash:  uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.transactionRepo.Create(ctx, transaction); err != nil {
		return nil, s.reportLedgerDivergence(err, transaction)
	}

	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID: transaction.ID,
		EventType:     "payout_created",
		NewStatus:     transaction.Status,
		CreatedAt:     now,
	})

	return transaction, nil
}

func (s *PaymentService) GetTransaction(ctx context.Context, id uint64) (*entity.Transaction, error) {
	transaction, err := s.transactionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, ErrTransactionNotFound
	}
	return transaction, nil
}

func (s *PaymentService) ListTransactions(ctx context.Context, req *types.ListTransactionsRequest) ([]*entity.Transaction, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}

	filter := repository.TransactionFilter{
		AccountID: req.AccountId,
		Reference: req.Reference,
		HasStatus: req.HasStatus,
		Status:    int32(req.Status),
		HasKind:   req.HasKind,
		Kind:      int32(req.Kind),
		Provider:  int32(req.Provider),
		Limit:     limit,
		Offset:    req.Offset,
	}

	return s.transactionRepo.List(ctx, filter)
}

const payoutCallerService = "wallet-payout"

func (s *PaymentService) validateAmountBounds(amountCents int64) error {
	if amountCents <= 0 {
		return ErrInvalidAmount
	}
	if s.paymentsCfg.MinAmountCents > 0 && amountCents < s.paymentsCfg.MinAmountCents {
		return ErrInvalidAmount
	}
	if s.paymentsCfg.MaxAmountCents > 0 && amountCents > s.paymentsCfg.MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

func (s *PaymentService) reportLedgerDivergence(cause error, transaction *entity.Transaction) error {
	s.logger.WithError(cause).WithFields(logrus.Fields{
		"provider":     types.ProviderType(transaction.Provider).String(),
		"external_id":  transaction.ExternalID,
		"account_id":   transaction.AccountID,
		"amount_cents": transaction.AmountCents,
	}).Error("ledger_write_failed_after_provider_call")
	return ErrLedgerDiverged
}

func (s *PaymentService) markForNotifyDispatch(transaction *entity.Transaction, now time.Time) {
	if strings.TrimSpace(transaction.NotifyURL) == "" {
		return
	}
	transaction.NotifyDeliveryStatus = entity.NotifyDeliveryPending
	transaction.NotifyDeliveryAttempts = 0
	transaction.NotifyDeliveryNextAt = &now
	transaction.NotifyDeliveryLastErr = nil
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func terminalStatus(status int32) bool {
	switch status {
	case int32(types.TransactionStatusCompleted),
		int32(types.TransactionStatusFailed),
		int32(types.TransactionStatusPartiallyRefunded),
		int32(types.TransactionStatusRefunded):
		return true
	default:
		return false
	}
}
