package types

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type CreatePaymentRequest struct {
	RequestId         string `json:"request_id"`
	CallerService     string `json:"caller_service"`
	AccountId         string `json:"account_id"`
	Reference         string `json:"reference"`
	Kind              string `json:"kind"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
	Description       string `json:"description"`
	Provider          string `json:"provider"`
	StatusCallbackUrl string `json:"status_callback_url"`
}

func NewCreatePaymentRequestFromContext(ctx echo.Context) (*CreatePaymentRequest, error) {
	var body CreatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.RequestId = strings.TrimSpace(body.RequestId)
	if body.RequestId == "" {
		body.RequestId = strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	}
	body.CallerService = strings.TrimSpace(body.CallerService)
	body.AccountId = strings.TrimSpace(body.AccountId)
	body.Reference = strings.TrimSpace(body.Reference)
	body.Kind = strings.ToLower(strings.TrimSpace(body.Kind))
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.Description = strings.TrimSpace(body.Description)
	body.Provider = strings.ToLower(strings.TrimSpace(body.Provider))
	body.StatusCallbackUrl = strings.TrimSpace(body.StatusCallbackUrl)

	return &body, nil
}

func (r *CreatePaymentRequest) Validate() error {
	if r.RequestId == "" {
		return errors.New("request_id is required")
	}
	if r.CallerService == "" {
		return errors.New("caller_service is required")
	}
	if r.AccountId == "" {
		return errors.New("account_id is required")
	}
	if r.Reference == "" {
		return errors.New("reference is required")
	}
	if r.AmountCents <= 0 {
		return errors.New("amount_cents must be > 0")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	kind, err := ParseTransactionKind(r.Kind)
	if err != nil {
		return errors.New("kind must be payment or wallet_topup")
	}
	provider, err := ParseProviderType(r.Provider)
	if err != nil {
		return errors.New("provider must be paymob, stripe, or wallet")
	}
	if kind == TransactionKindWalletTopup && provider == ProviderTypeWallet {
		return errors.New("wallet_topup must use an external provider")
	}
	if r.StatusCallbackUrl == "" && provider != ProviderTypeWallet {
		return errors.New("status_callback_url is required")
	}
	return nil
}

func (r *CreatePaymentRequest) TransactionKind() TransactionKind {
	kind, _ := ParseTransactionKind(r.Kind)
	return kind
}

func (r *CreatePaymentRequest) ProviderType() ProviderType {
	provider, _ := ParseProviderType(r.Provider)
	return provider
}

type GetTransactionRequest struct {
	Id uint64
}

func NewGetTransactionRequestFromContext(ctx echo.Context) (*GetTransactionRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetTransactionRequest{Id: id}, nil
}

func (r *GetTransactionRequest) Validate() error {
	if r.Id == 0 {
		return errors.New("invalid transaction id")
	}
	return nil
}

type ListTransactionsRequest struct {
	AccountId string
	Reference string
	HasStatus bool
	Status    TransactionStatus
	HasKind   bool
	Kind      TransactionKind
	Provider  ProviderType
	Limit     int32
	Offset    int32
}

func NewListTransactionsRequestFromContext(ctx echo.Context) (*ListTransactionsRequest, error) {
	req := &ListTransactionsRequest{
		AccountId: strings.TrimSpace(ctx.QueryParam("account_id")),
		Reference: strings.TrimSpace(ctx.QueryParam("reference")),
		Limit:     100,
		Offset:    0,
	}

	if statusRaw := strings.TrimSpace(ctx.QueryParam("status")); statusRaw != "" {
		status, err := strconv.ParseInt(statusRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.HasStatus = true
		req.Status = TransactionStatus(status)
	}

	if kindRaw := strings.TrimSpace(ctx.QueryParam("kind")); kindRaw != "" {
		kind, err := strconv.ParseInt(kindRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.HasKind = true
		req.Kind = TransactionKind(kind)
	}

	if providerRaw := strings.TrimSpace(strings.ToLower(ctx.QueryParam("provider"))); providerRaw != "" {
		provider, err := ParseProviderType(providerRaw)
		if err != nil {
			return nil, err
		}
		req.Provider = provider
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListTransactionsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = 100
	}
	if r.Limit <= 0 || r.Limit > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	if r.HasStatus && !isValidTransactionStatus(r.Status) {
		return errors.New("invalid status")
	}
	if r.HasKind && !isValidTransactionKind(r.Kind) {
		return errors.New("invalid kind")
	}
	return nil
}

type RefundPaymentRequest struct {
	Id          uint64 `json:"-"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

func NewRefundPaymentRequestFromContext(ctx echo.Context) (*RefundPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body RefundPaymentRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.Id = id
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *RefundPaymentRequest) Validate() error {
	if r.Id == 0 {
		return errors.New("invalid transaction id")
	}
	// AmountCents == 0 means refund the full remaining amount.
	if r.AmountCents < 0 {
		return errors.New("amount_cents must be >= 0")
	}
	return nil
}

type PayoutRequest struct {
	AccountId   string `json:"-"`
	RequestId   string `json:"request_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

func NewPayoutRequestFromContext(ctx echo.Context) (*PayoutRequest, error) {
	var body PayoutRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.AccountId = strings.TrimSpace(ctx.Param("account_id"))
	body.RequestId = strings.TrimSpace(body.RequestId)
	if body.RequestId == "" {
		body.RequestId = strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	}
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.Destination = strings.TrimSpace(body.Destination)

	return &body, nil
}

func (r *PayoutRequest) Validate() error {
	if r.AccountId == "" {
		return errors.New("account_id is required")
	}
	if r.RequestId == "" {
		return errors.New("request_id is required")
	}
	if r.AmountCents <= 0 {
		return errors.New("amount_cents must be > 0")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if r.Destination == "" {
		return errors.New("destination is required")
	}
	return nil
}

type GetWalletRequest struct {
	AccountId string
}

func NewGetWalletRequestFromContext(ctx echo.Context) (*GetWalletRequest, error) {
	return &GetWalletRequest{AccountId: strings.TrimSpace(ctx.Param("account_id"))}, nil
}

func (r *GetWalletRequest) Validate() error {
	if r.AccountId == "" {
		return errors.New("account_id is required")
	}
	return nil
}

type HandleProviderCallbackRequest struct {
	RequestId    string
	Provider     string
	CallbackHash string
	Signature    string
	Payload      string
}

func NewHandleProviderCallbackRequestFromContext(ctx echo.Context) (*HandleProviderCallbackRequest, error) {
	provider := strings.TrimSpace(strings.ToLower(ctx.Param("provider")))
	hash := strings.TrimSpace(ctx.Param("hash"))
	requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	signature := strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("X-Provider-Signature"))
	}

	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	req := &HandleProviderCallbackRequest{
		RequestId:    requestID,
		Provider:     provider,
		CallbackHash: hash,
		Signature:    signature,
		Payload:      string(rawBody),
	}

	// Some providers are fronted by a gateway that re-wraps the original
	// payload and signature; unwrap when that envelope is present.
	var body struct {
		Payload   string `json:"payload"`
		Signature string `json:"signature"`
	}
	if len(rawBody) > 0 && json.Unmarshal(rawBody, &body) == nil {
		if strings.TrimSpace(body.Payload) != "" {
			req.Payload = body.Payload
		}
		if strings.TrimSpace(body.Signature) != "" {
			req.Signature = strings.TrimSpace(body.Signature)
		}
	}

	return req, nil
}

func (r *HandleProviderCallbackRequest) Validate() error {
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if r.CallbackHash == "" {
		return errors.New("callback hash is required")
	}
	if r.Signature == "" {
		return errors.New("provider signature is required")
	}
	if strings.TrimSpace(r.Payload) == "" {
		return errors.New("payload is required")
	}
	return nil
}

func isValidTransactionStatus(status TransactionStatus) bool {
	switch status {
	case TransactionStatusPending,
		TransactionStatusCompleted,
		TransactionStatusFailed,
		TransactionStatusPartiallyRefunded,
		TransactionStatusRefunded:
		return true
	default:
		return false
	}
}

func isValidTransactionKind(kind TransactionKind) bool {
	switch kind {
	case TransactionKindPayment,
		TransactionKindRefund,
		TransactionKindPayout,
		TransactionKindWalletTopup:
		return true
	default:
		return false
	}
}
