package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vibast-solutions/ms-go-ledger/app/types"
)

func paymobTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body failed: %v", err)
		}

		switch r.URL.Path {
		case "/api/auth/tokens":
			if body["api_key"] != "pk_test" {
				t.Fatalf("unexpected api key %v", body["api_key"])
			}
			fmt.Fprint(w, `{"token":"auth-token-1"}`)
		case "/api/ecommerce/orders":
			if body["auth_token"] != "auth-token-1" {
				t.Fatalf("expected auth token, got %v", body["auth_token"])
			}
			if body["merchant_order_id"] != "order-1" {
				t.Fatalf("expected merchant order id, got %v", body["merchant_order_id"])
			}
			fmt.Fprint(w, `{"id":777}`)
		case "/api/acceptance/payment_keys":
			if body["order_id"] != float64(777) {
				t.Fatalf("expected order id 777, got %v", body["order_id"])
			}
			fmt.Fprint(w, `{"token":"payment-key-1"}`)
		case "/api/acceptance/void_refund/refund":
			if body["transaction_id"] != "777" {
				t.Fatalf("expected transaction id, got %v", body["transaction_id"])
			}
			fmt.Fprint(w, `{"id":888}`)
		case "/api/ecommerce/orders/transaction_inquiry":
			fmt.Fprint(w, `{"success":true,"pending":false}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
}

func TestPaymobCreatePaymentThreeStepFlow(t *testing.T) {
	server := paymobTestServer(t)
	defer server.Close()

	p := NewPaymobProvider(PaymobConfig{
		APIKey:                  "pk_test",
		IntegrationID:           "42",
		IframeID:                "99",
		APIBaseURL:              server.URL,
		ProviderCallbackBaseURL: "https://ledger.example/webhooks/providers/paymob",
	})

	out, err := p.CreatePayment(context.Background(), &CreateInput{
		AccountID:    "acct-1",
		CallbackHash: "hash-1",
		Reference:    "order-1",
		AmountCents:  1000,
		Currency:     "EGP",
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if out.ExternalID != "777" {
		t.Fatalf("expected order id as external id, got %q", out.ExternalID)
	}
	if out.ClientAction != types.ClientActionRedirect {
		t.Fatalf("expected redirect action, got %q", out.ClientAction)
	}
	if out.CheckoutURL == nil || !strings.Contains(*out.CheckoutURL, "/api/acceptance/iframes/99?payment_token=payment-key-1") {
		t.Fatalf("unexpected checkout url %v", out.CheckoutURL)
	}
	if out.InitialStatus != int32(types.TransactionStatusPending) {
		t.Fatalf("expected pending initial status, got %d", out.InitialStatus)
	}
}

func TestPaymobRefund(t *testing.T) {
	server := paymobTestServer(t)
	defer server.Close()

	p := NewPaymobProvider(PaymobConfig{APIKey: "pk_test", APIBaseURL: server.URL})

	result, err := p.Refund(context.Background(), "777", 400)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if result.RefundExternalID != "888" {
		t.Fatalf("unexpected refund id %q", result.RefundExternalID)
	}
}

func TestPaymobGetPaymentStatus(t *testing.T) {
	server := paymobTestServer(t)
	defer server.Close()

	p := NewPaymobProvider(PaymobConfig{APIKey: "pk_test", APIBaseURL: server.URL})

	status, err := p.GetPaymentStatus(context.Background(), "777")
	if err != nil {
		t.Fatalf("get status failed: %v", err)
	}
	if status != int32(types.TransactionStatusCompleted) {
		t.Fatalf("expected completed, got %d", status)
	}
}

func paymobCallbackPayload() []byte {
	return []byte(`{
		"type": "TRANSACTION",
		"obj": {
			"id": 555,
			"amount_cents": 1000,
			"created_at": "2026-08-30T10:00:00",
			"currency": "EGP",
			"error_occured": false,
			"has_parent_transaction": false,
			"integration_id": 42,
			"is_3d_secure": true,
			"is_auth": false,
			"is_capture": false,
			"is_refunded": false,
			"is_standalone_payment": true,
			"is_voided": false,
			"order": {"id": 777},
			"owner": 13,
			"pending": false,
			"source_data": {"pan": "1234", "sub_type": "MasterCard", "type": "card"},
			"success": true
		}
	}`)
}

func signPaymobPayload(t *testing.T, secret string) string {
	t.Helper()
	signed := strings.Join([]string{
		"1000",
		"2026-08-30T10:00:00",
		"EGP",
		"false",
		"false",
		"555",
		"42",
		"true",
		"false",
		"false",
		"false",
		"true",
		"false",
		"777",
		"13",
		"false",
		"1234",
		"MasterCard",
		"card",
		"true",
	}, "")
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymobVerifyAndParseCallback(t *testing.T) {
	secret := "hmac-secret"
	p := NewPaymobProvider(PaymobConfig{APIKey: "pk_test", HMACSecret: secret})

	event, err := p.VerifyAndParseCallback(context.Background(), paymobCallbackPayload(), signPaymobPayload(t, secret))
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if event.ExternalID != "777" {
		t.Fatalf("expected order id as external id, got %q", event.ExternalID)
	}
	if event.NewStatus != int32(types.TransactionStatusCompleted) {
		t.Fatalf("expected completed, got %d", event.NewStatus)
	}
	if event.ProviderEventID == nil || *event.ProviderEventID != "555" {
		t.Fatal("expected provider event id from transaction id")
	}
}

func TestPaymobVerifyAndParseCallbackRejectsBadSignature(t *testing.T) {
	p := NewPaymobProvider(PaymobConfig{APIKey: "pk_test", HMACSecret: "hmac-secret"})

	if _, err := p.VerifyAndParseCallback(context.Background(), paymobCallbackPayload(), "deadbeef"); err == nil {
		t.Fatal("expected invalid signature to fail")
	}
}
