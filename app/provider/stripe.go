package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	APIBaseURL                string
	ProviderCallbackBaseURL   string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

// StripeProvider creates a payment intent in a single call and hands the
// client secret back as the client action.
type StripeProvider struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tolerance := cfg.SignatureToleranceSeconds
	if tolerance <= 0 {
		tolerance = 300
	}
	cfg.SignatureToleranceSeconds = tolerance
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = "https://api.stripe.com"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")

	return &StripeProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *StripeProvider) Code() int32 {
	return int32(types.ProviderTypeStripe)
}

func (p *StripeProvider) CreatePayment(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if strings.TrimSpace(p.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	callbackURL := joinCallbackURL(p.cfg.ProviderCallbackBaseURL, input.CallbackHash)

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(input.AmountCents, 10))
	values.Set("currency", strings.ToLower(input.Currency))
	if strings.TrimSpace(input.Description) != "" {
		values.Set("description", input.Description)
	}
	values.Set("automatic_payment_methods[enabled]", "true")
	values.Set("metadata[reference]", input.Reference)
	values.Set("metadata[account_id]", input.AccountID)
	values.Set("metadata[callback_hash]", input.CallbackHash)

	body, err := p.postForm(ctx, "/v1/payment_intents", values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	intentID := strings.TrimSpace(payload.ID)
	if intentID == "" {
		return nil, &Error{Provider: "stripe", Err: errors.New("payment intent id missing in response")}
	}

	result := &CreateOutput{
		ExternalID:          intentID,
		ClientAction:        types.ClientActionClientSecret,
		ProviderCallbackURL: callbackURL,
		InitialStatus:       int32(types.TransactionStatusPending),
	}
	if s := strings.TrimSpace(payload.ClientSecret); s != "" {
		result.ClientSecret = &s
	}

	return result, nil
}

func (p *StripeProvider) Refund(ctx context.Context, externalID string, amountCents int64) (*RefundResult, error) {
	values := url.Values{}
	values.Set("payment_intent", externalID)
	values.Set("amount", strconv.FormatInt(amountCents, 10))

	body, err := p.postForm(ctx, "/v1/refunds", values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	return &RefundResult{RefundExternalID: strings.TrimSpace(payload.ID)}, nil
}

func (p *StripeProvider) GetPaymentStatus(ctx context.Context, externalID string) (int32, error) {
	if strings.TrimSpace(externalID) == "" {
		return 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBaseURL+"/v1/payment_intents/"+url.PathEscape(externalID), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, wrapTransportError("stripe", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, wrapTransportError("stripe", err)
	}
	if resp.StatusCode >= 400 {
		return 0, wrapStatusError("stripe", "/v1/payment_intents", resp.StatusCode, body)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}

	switch payload.Status {
	case "succeeded":
		return int32(types.TransactionStatusCompleted), nil
	case "canceled":
		return int32(types.TransactionStatusFailed), nil
	default:
		return 0, nil
	}
}

func (p *StripeProvider) VerifyAndParseCallback(_ context.Context, payload []byte, signature string) (*CallbackEvent, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	if !verifyStripeSignature(payload, signature, p.cfg.WebhookSecret, p.cfg.SignatureToleranceSeconds) {
		return nil, errors.New("invalid stripe signature")
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID     string `json:"id"`
				Amount int64  `json:"amount"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &CallbackEvent{
		ExternalID:  strings.TrimSpace(event.Data.Object.ID),
		EventType:   event.Type,
		AmountCents: event.Data.Object.Amount,
	}
	if s := strings.TrimSpace(event.ID); s != "" {
		result.ProviderEventID = &s
	}

	switch event.Type {
	case "payment_intent.succeeded":
		result.NewStatus = int32(types.TransactionStatusCompleted)
	case "payment_intent.payment_failed", "payment_intent.canceled":
		result.NewStatus = int32(types.TransactionStatusFailed)
	default:
		result.NewStatus = 0
	}

	return result, nil
}

func (p *StripeProvider) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIBaseURL+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, wrapTransportError("stripe", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransportError("stripe", err)
	}
	if resp.StatusCode >= 400 {
		return nil, wrapStatusError("stripe", path, resp.StatusCode, body)
	}

	return body, nil
}

func verifyStripeSignature(payload []byte, signatureHeader string, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}
