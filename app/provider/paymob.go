package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

type PaymobConfig struct {
	APIKey                  string
	IntegrationID           string
	IframeID                string
	HMACSecret              string
	APIBaseURL              string
	ProviderCallbackBaseURL string
	HTTPTimeout             time.Duration
}

// PaymobProvider drives the three-step hosted payment flow: auth token,
// order registration, payment key. Any step failing aborts the whole
// operation; only transport failures are retryable.
type PaymobProvider struct {
	cfg    PaymobConfig
	client *http.Client
}

func NewPaymobProvider(cfg PaymobConfig) *PaymobProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")

	return &PaymobProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *PaymobProvider) Code() int32 {
	return int32(types.ProviderTypePaymob)
}

func (p *PaymobProvider) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("paymob api key is not configured")
	}

	callbackURL := joinCallbackURL(p.cfg.ProviderCallbackBaseURL, input.CallbackHash)

	authToken, err := p.obtainAuthToken(ctx)
	if err != nil {
		return nil, err
	}

	orderID, err := p.registerOrder(ctx, authToken, input)
	if err != nil {
		return nil, err
	}

	paymentKey, err := p.obtainPaymentKey(ctx, authToken, orderID, input)
	if err != nil {
		return nil, err
	}

	checkoutURL := p.cfg.APIBaseURL + "/api/acceptance/iframes/" + p.cfg.IframeID + "?payment_token=" + paymentKey

	return &CreateOutput{
		ExternalID:          strconv.FormatInt(orderID, 10),
		ClientAction:        types.ClientActionRedirect,
		CheckoutURL:         &checkoutURL,
		ProviderCallbackURL: callbackURL,
		InitialStatus:       int32(types.TransactionStatusPending),
	}, nil
}

func (p *PaymobProvider) Refund(ctx context.Context, externalID string, amountCents int64) (*RefundResult, error) {
	authToken, err := p.obtainAuthToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := p.postJSON(ctx, "/api/acceptance/void_refund/refund", map[string]interface{}{
		"auth_token":     authToken,
		"transaction_id": externalID,
		"amount_cents":   amountCents,
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	return &RefundResult{RefundExternalID: strconv.FormatInt(payload.ID, 10)}, nil
}

func (p *PaymobProvider) GetPaymentStatus(ctx context.Context, externalID string) (int32, error) {
	authToken, err := p.obtainAuthToken(ctx)
	if err != nil {
		return 0, err
	}

	body, err := p.postJSON(ctx, "/api/ecommerce/orders/transaction_inquiry", map[string]interface{}{
		"auth_token": authToken,
		"order_id":   externalID,
	})
	if err != nil {
		return 0, err
	}

	var payload struct {
		Success bool `json:"success"`
		Pending bool `json:"pending"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}

	switch {
	case payload.Pending:
		return 0, nil
	case payload.Success:
		return int32(types.TransactionStatusCompleted), nil
	default:
		return int32(types.TransactionStatusFailed), nil
	}
}

func (p *PaymobProvider) VerifyAndParseCallback(_ context.Context, payload []byte, signature string) (*CallbackEvent, error) {
	if strings.TrimSpace(p.cfg.HMACSecret) == "" {
		return nil, errors.New("paymob hmac secret is not configured")
	}

	var event struct {
		Type string `json:"type"`
		Obj  struct {
			ID                   int64  `json:"id"`
			AmountCents          int64  `json:"amount_cents"`
			CreatedAt            string `json:"created_at"`
			Currency             string `json:"currency"`
			ErrorOccured         bool   `json:"error_occured"`
			HasParentTransaction bool   `json:"has_parent_transaction"`
			IntegrationID        int64  `json:"integration_id"`
			Is3DSecure           bool   `json:"is_3d_secure"`
			IsAuth               bool   `json:"is_auth"`
			IsCapture            bool   `json:"is_capture"`
			IsRefunded           bool   `json:"is_refunded"`
			IsStandalonePayment  bool   `json:"is_standalone_payment"`
			IsVoided             bool   `json:"is_voided"`
			Order                struct {
				ID int64 `json:"id"`
			} `json:"order"`
			Owner      int64 `json:"owner"`
			Pending    bool  `json:"pending"`
			SourceData struct {
				Pan     string `json:"pan"`
				SubType string `json:"sub_type"`
				Type    string `json:"type"`
			} `json:"source_data"`
			Success bool `json:"success"`
		} `json:"obj"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	// Paymob signs the lexically ordered concatenation of these transaction
	// fields with HMAC-SHA512.
	signed := strings.Join([]string{
		strconv.FormatInt(event.Obj.AmountCents, 10),
		event.Obj.CreatedAt,
		event.Obj.Currency,
		strconv.FormatBool(event.Obj.ErrorOccured),
		strconv.FormatBool(event.Obj.HasParentTransaction),
		strconv.FormatInt(event.Obj.ID, 10),
		strconv.FormatInt(event.Obj.IntegrationID, 10),
		strconv.FormatBool(event.Obj.Is3DSecure),
		strconv.FormatBool(event.Obj.IsAuth),
		strconv.FormatBool(event.Obj.IsCapture),
		strconv.FormatBool(event.Obj.IsRefunded),
		strconv.FormatBool(event.Obj.IsStandalonePayment),
		strconv.FormatBool(event.Obj.IsVoided),
		strconv.FormatInt(event.Obj.Order.ID, 10),
		strconv.FormatInt(event.Obj.Owner, 10),
		strconv.FormatBool(event.Obj.Pending),
		event.Obj.SourceData.Pan,
		event.Obj.SourceData.SubType,
		event.Obj.SourceData.Type,
		strconv.FormatBool(event.Obj.Success),
	}, "")

	mac := hmac.New(sha512.New, []byte(p.cfg.HMACSecret))
	_, _ = mac.Write([]byte(signed))
	expected := hex.EncodeToString(mac.Sum(nil))

	candidate := strings.ToLower(strings.TrimSpace(signature))
	if !hmac.Equal([]byte(candidate), []byte(expected)) {
		return nil, errors.New("invalid paymob hmac signature")
	}

	result := &CallbackEvent{
		ExternalID:  strconv.FormatInt(event.Obj.Order.ID, 10),
		EventType:   strings.ToLower(strings.TrimSpace(event.Type)),
		AmountCents: event.Obj.AmountCents,
	}
	if event.Obj.ID > 0 {
		eventID := strconv.FormatInt(event.Obj.ID, 10)
		result.ProviderEventID = &eventID
	}
	if result.EventType == "" {
		result.EventType = "transaction"
	}

	switch {
	case event.Obj.Pending:
		result.NewStatus = 0
	case event.Obj.Success:
		result.NewStatus = int32(types.TransactionStatusCompleted)
	default:
		result.NewStatus = int32(types.TransactionStatusFailed)
	}

	return result, nil
}

func (p *PaymobProvider) obtainAuthToken(ctx context.Context) (string, error) {
	body, err := p.postJSON(ctx, "/api/auth/tokens", map[string]interface{}{
		"api_key": p.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Token) == "" {
		return "", &Error{Provider: "paymob", Err: errors.New("auth token missing in response")}
	}

	return payload.Token, nil
}

func (p *PaymobProvider) registerOrder(ctx context.Context, authToken string, input *CreateInput) (int64, error) {
	body, err := p.postJSON(ctx, "/api/ecommerce/orders", map[string]interface{}{
		"auth_token":        authToken,
		"amount_cents":      input.AmountCents,
		"currency":          input.Currency,
		"merchant_order_id": input.Reference,
		"delivery_needed":   false,
		"items":             []interface{}{},
	})
	if err != nil {
		return 0, err
	}

	var payload struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	if payload.ID == 0 {
		return 0, &Error{Provider: "paymob", Err: errors.New("order id missing in response")}
	}

	return payload.ID, nil
}

func (p *PaymobProvider) obtainPaymentKey(ctx context.Context, authToken string, orderID int64, input *CreateInput) (string, error) {
	body, err := p.postJSON(ctx, "/api/acceptance/payment_keys", map[string]interface{}{
		"auth_token":     authToken,
		"amount_cents":   input.AmountCents,
		"currency":       input.Currency,
		"order_id":       orderID,
		"integration_id": p.cfg.IntegrationID,
		"expiration":     3600,
		"billing_data": map[string]interface{}{
			"email": "NA", "phone_number": "NA", "first_name": "NA", "last_name": "NA",
			"street": "NA", "building": "NA", "floor": "NA", "apartment": "NA",
			"city": "NA", "country": "NA",
		},
	})
	if err != nil {
		return "", err
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.Token) == "" {
		return "", &Error{Provider: "paymob", Err: errors.New("payment key missing in response")}
	}

	return payload.Token, nil
}

func (p *PaymobProvider) postJSON(ctx context.Context, path string, body map[string]interface{}) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapTransportError("paymob", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransportError("paymob", err)
	}
	if resp.StatusCode >= 400 {
		return nil, wrapStatusError("paymob", path, resp.StatusCode, responseBody)
	}

	return responseBody, nil
}

func joinCallbackURL(baseURL, callbackHash string) string {
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	callbackHash = strings.TrimSpace(callbackHash)
	if baseURL == "" || callbackHash == "" {
		return ""
	}
	return baseURL + "/" + callbackHash
}
