package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-ledger/app/entity"
	"github.com/vibast-solutions/ms-go-ledger/app/provider"
	"github.com/vibast-solutions/ms-go-ledger/app/repository"
	"github.com/vibast-solutions/ms-go-ledger/app/types"
	"github.com/vibast-solutions/ms-go-ledger/config"
)

type fakeTransactionRepo struct {
	mu           sync.Mutex
	transactions map[uint64]*entity.Transaction
	nextID       uint64
	createErr    error
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{
		transactions: map[uint64]*entity.Transaction{},
		nextID:       1,
	}
}

func (r *fakeTransactionRepo) Create(_ context.Context, tx *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, item := range r.transactions {
		if item.CallerService == tx.CallerService && item.RequestID == tx.RequestID {
			return repository.ErrTransactionAlreadyExists
		}
		if item.Provider == tx.Provider && item.ExternalID == tx.ExternalID {
			return repository.ErrTransactionAlreadyExists
		}
	}
	id := r.nextID
	r.nextID++
	copyItem := *tx
	copyItem.ID = id
	r.transactions[id] = &copyItem
	tx.ID = id
	return nil
}

func (r *fakeTransactionRepo) Update(_ context.Context, tx *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transactions[tx.ID]; !ok {
		return repository.ErrTransactionNotFound
	}
	copyItem := *tx
	r.transactions[tx.ID] = &copyItem
	return nil
}

func (r *fakeTransactionRepo) Finalize(_ context.Context, id uint64, newStatus int32, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.transactions[id]
	if !ok || item.Status != int32(types.TransactionStatusPending) {
		return false, nil
	}
	item.Status = newStatus
	item.UpdatedAt = now
	return true, nil
}

func (r *fakeTransactionRepo) ApplyRefund(_ context.Context, id uint64, amountCents int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.transactions[id]
	if !ok {
		return false, nil
	}
	refundable := item.Status == int32(types.TransactionStatusCompleted) ||
		item.Status == int32(types.TransactionStatusPartiallyRefunded)
	if !refundable || item.RefundedCents+amountCents > item.AmountCents {
		return false, nil
	}
	item.RefundedCents += amountCents
	if item.RefundedCents >= item.AmountCents {
		item.Status = int32(types.TransactionStatusRefunded)
	} else {
		item.Status = int32(types.TransactionStatusPartiallyRefunded)
	}
	item.UpdatedAt = now
	return true, nil
}

func (r *fakeTransactionRepo) FindByID(_ context.Context, id uint64) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *fakeTransactionRepo) FindByCallerRequestID(_ context.Context, callerService, requestID string) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.transactions {
		if item.CallerService == callerService && item.RequestID == requestID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeTransactionRepo) FindByProviderExternalID(_ context.Context, providerCode int32, externalID string) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.transactions {
		if item.Provider == providerCode && item.ExternalID == externalID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeTransactionRepo) FindByCallbackHash(_ context.Context, providerCode int32, callbackHash string) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.transactions {
		if item.Provider == providerCode && item.CallbackHash == callbackHash {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeTransactionRepo) List(_ context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Transaction, 0)
	for _, item := range r.transactions {
		if filter.AccountID != "" && item.AccountID != filter.AccountID {
			continue
		}
		if filter.Reference != "" && item.Reference != filter.Reference {
			continue
		}
		if filter.HasStatus && item.Status != filter.Status {
			continue
		}
		if filter.HasKind && item.Kind != filter.Kind {
			continue
		}
		if filter.Provider > 0 && item.Provider != filter.Provider {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })

	start := int(filter.Offset)
	if start > len(items) {
		return []*entity.Transaction{}, nil
	}
	end := start + int(filter.Limit)
	if end > len(items) {
		end = len(items)
	}
	if filter.Limit <= 0 {
		return items, nil
	}
	return items[start:end], nil
}

func (r *fakeTransactionRepo) ListStalePending(_ context.Context, cutoff time.Time, limit int32) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Transaction, 0)
	for _, item := range r.transactions {
		if item.Status == int32(types.TransactionStatusPending) && !item.CreatedAt.After(cutoff) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return limitItems(items, limit), nil
}

func (r *fakeTransactionRepo) ListForReconcile(_ context.Context, before time.Time, limit int32) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Transaction, 0)
	for _, item := range r.transactions {
		if item.Status == int32(types.TransactionStatusPending) &&
			item.Provider != int32(types.ProviderTypeWallet) &&
			!item.UpdatedAt.After(before) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return limitItems(items, limit), nil
}

func (r *fakeTransactionRepo) ListDueNotifyDispatch(_ context.Context, now time.Time, limit int32) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Transaction, 0)
	for _, item := range r.transactions {
		if item.NotifyDeliveryStatus == entity.NotifyDeliveryPending &&
			item.NotifyDeliveryNextAt != nil && !item.NotifyDeliveryNextAt.After(now) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return limitItems(items, limit), nil
}

func limitItems(items []*entity.Transaction, limit int32) []*entity.Transaction {
	if limit <= 0 || int(limit) >= len(items) {
		return items
	}
	return items[:limit]
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*entity.TransactionEvent
}

func (r *fakeEventRepo) Create(_ context.Context, event *entity.TransactionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

func (r *fakeEventRepo) byType(eventType string) []*entity.TransactionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]*entity.TransactionEvent, 0)
	for _, event := range r.events {
		if event.EventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type fakeCallbackRepo struct {
	mu        sync.Mutex
	callbacks []*entity.ProviderCallback
}

func (r *fakeCallbackRepo) Create(_ context.Context, callback *entity.ProviderCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *callback
	r.callbacks = append(r.callbacks, &copyItem)
	return nil
}

func (r *fakeCallbackRepo) withStatus(status int32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, callback := range r.callbacks {
		if callback.Status == status {
			count++
		}
	}
	return count
}

type fakeWalletRepo struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{balances: map[string]int64{}}
}

func (r *fakeWalletRepo) Find(_ context.Context, accountID string) (*entity.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, ok := r.balances[accountID]
	if !ok {
		return nil, nil
	}
	return &entity.Wallet{AccountID: accountID, BalanceCents: balance}, nil
}

func (r *fakeWalletRepo) Debit(_ context.Context, accountID string, amountCents int64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	balance, ok := r.balances[accountID]
	if !ok {
		return repository.ErrWalletNotFound
	}
	if balance < amountCents {
		return repository.ErrInsufficientBalance
	}
	r.balances[accountID] = balance - amountCents
	return nil
}

func (r *fakeWalletRepo) Credit(_ context.Context, accountID string, amountCents int64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[accountID] += amountCents
	return nil
}

type fakeProvider struct {
	code         int32
	createOutput *provider.CreateOutput
	createErr    error
	refundResult *provider.RefundResult
	refundErr    error
	callbackEvt  *provider.CallbackEvent
	callbackErr  error
	reconcile    int32
	reconcileErr error

	mu          sync.Mutex
	refundCalls int
}

func (p *fakeProvider) Code() int32 {
	if p.code != 0 {
		return p.code
	}
	return int32(types.ProviderTypeStripe)
}

func (p *fakeProvider) CreatePayment(context.Context, *provider.CreateInput) (*provider.CreateOutput, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.createOutput != nil {
		return p.createOutput, nil
	}
	secret := "pi_test_123_secret_abc"
	return &provider.CreateOutput{
		ExternalID:    "pi_test_123",
		ClientAction:  types.ClientActionClientSecret,
		ClientSecret:  &secret,
		InitialStatus: int32(types.TransactionStatusPending),
	}, nil
}

func (p *fakeProvider) Refund(context.Context, string, int64) (*provider.RefundResult, error) {
	p.mu.Lock()
	p.refundCalls++
	p.mu.Unlock()
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	if p.refundResult != nil {
		return p.refundResult, nil
	}
	return &provider.RefundResult{RefundExternalID: "re_test_123"}, nil
}

func (p *fakeProvider) VerifyAndParseCallback(context.Context, []byte, string) (*provider.CallbackEvent, error) {
	if p.callbackErr != nil {
		return nil, p.callbackErr
	}
	if p.callbackEvt != nil {
		return p.callbackEvt, nil
	}
	return &provider.CallbackEvent{
		ExternalID: "pi_test_123",
		EventType:  "payment_intent.succeeded",
		NewStatus:  int32(types.TransactionStatusCompleted),
	}, nil
}

func (p *fakeProvider) GetPaymentStatus(context.Context, string) (int32, error) {
	if p.reconcileErr != nil {
		return 0, p.reconcileErr
	}
	return p.reconcile, nil
}

func (p *fakeProvider) refundCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refundCalls
}

func testPaymentsConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		MinAmountCents:      100,
		MaxAmountCents:      1000000,
		NotifyMaxAttempts:   3,
		NotifyRetryInterval: time.Second,
		NotifyHTTPTimeout:   time.Second,
		PendingTimeout:      time.Minute,
		ReconcileStaleAfter: time.Minute,
		JobBatchSize:        100,
	}
}

type testEnv struct {
	repo         *fakeTransactionRepo
	eventRepo    *fakeEventRepo
	callbackRepo *fakeCallbackRepo
	walletRepo   *fakeWalletRepo
	wallets      *WalletService
	payments     *PaymentService
}

func newTestEnv(p provider.Provider) *testEnv {
	repo := newFakeTransactionRepo()
	eventRepo := &fakeEventRepo{}
	callbackRepo := &fakeCallbackRepo{}
	walletRepo := newFakeWalletRepo()
	wallets := NewWalletService(walletRepo)

	providers := []provider.Provider{provider.NewWalletProvider(wallets)}
	if p != nil {
		providers = append(providers, p)
	}

	payments := NewPaymentService(
		repo,
		eventRepo,
		callbackRepo,
		wallets,
		provider.NewRegistry(providers...),
		testPaymentsConfig(),
		"ledger-app-key",
	)

	return &testEnv{
		repo:         repo,
		eventRepo:    eventRepo,
		callbackRepo: callbackRepo,
		walletRepo:   walletRepo,
		wallets:      wallets,
		payments:     payments,
	}
}
