package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/payflow/internal/payment/domain"
)

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := New(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		WebhookID:    "wh-123",
		Environment:  "sandbox",
	})
	require.NoError(t, err)
	adapter.baseURL = server.URL
	return adapter
}

func tokenHandler(mux *http.ServeMux) {
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-abc",
			"expires_in":   3600,
		})
	})
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		in   string
		want domain.SessionStatus
	}{
		{"CREATED", domain.StatusPending},
		{"SAVED", domain.StatusPending},
		{"APPROVED", domain.StatusPending},
		{"COMPLETED", domain.StatusCompleted},
		{"ACTIVE", domain.StatusCompleted},
		{"CANCELLED", domain.StatusCancelled},
		{"EXPIRED", domain.StatusCancelled},
		{"SUSPENDED", domain.StatusFailed},
		{"SOMETHING_NEW", domain.StatusPending},
		{"", domain.StatusPending},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, MapStatus(tc.in), "status %q", tc.in)
	}
}

func TestAmountRoundTrip(t *testing.T) {
	require.Equal(t, "19.90", formatAmount(1990))
	require.Equal(t, "0.50", formatAmount(50))
	require.Equal(t, int64(1990), parseAmount("19.90"))
	require.Equal(t, int64(0), parseAmount("not-a-number"))
}

func TestCreateOrder(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(mux)

	var captured map[string]any
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "CREATED",
			"links": []map[string]string{
				{"rel": "self", "href": "https://api.example/self"},
				{"rel": "approve", "href": "https://paypal.example/approve/ORDER-1"},
			},
		})
	})

	adapter := newTestAdapter(t, mux)
	session, err := adapter.CreatePayment(context.Background(), domain.CheckoutRequest{
		OrderNo:     "1849300123456",
		Type:        "one-time",
		ProductName: "Credit Pack",
		Price:       domain.Price{Amount: 1990, Currency: "usd"},
		SuccessURL:  "https://app.example/api/checkout/callback?order_no=1849300123456",
		CancelURL:   "https://app.example/pricing",
	})
	require.NoError(t, err)
	require.Equal(t, "ORDER-1", session.ID)
	require.Equal(t, "https://paypal.example/approve/ORDER-1", session.URL)
	require.Equal(t, domain.StatusPending, session.Status)

	require.Equal(t, "CAPTURE", captured["intent"])
	units := captured["purchase_units"].([]any)
	unit := units[0].(map[string]any)
	require.Equal(t, "1849300123456", unit["custom_id"])
	amount := unit["amount"].(map[string]any)
	require.Equal(t, "USD", amount["currency_code"])
	require.Equal(t, "19.90", amount["value"])
}

func TestGetSessionCapturesApprovedOrder(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(mux)

	mux.HandleFunc("/v2/checkout/orders/ORDER-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "APPROVED",
		})
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "ORDER-1",
			"status": "COMPLETED",
			"payer":  map[string]string{"email_address": "buyer@example.com"},
			"purchase_units": []map[string]any{
				{
					"custom_id": "1849300123456",
					"payments": map[string]any{
						"captures": []map[string]any{
							{
								"id":          "CAP-1",
								"status":      "COMPLETED",
								"amount":      map[string]string{"currency_code": "USD", "value": "19.90"},
								"create_time": time.Now().UTC().Format(time.RFC3339),
							},
						},
					},
				},
			},
		})
	})

	adapter := newTestAdapter(t, mux)
	session, err := adapter.GetSession(context.Background(), domain.SessionQuery{
		Params: url.Values{"token": []string{"ORDER-1"}},
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, session.Status)
	require.Equal(t, "1849300123456", session.OrderNo)
	require.NotNil(t, session.Payment)
	require.Equal(t, int64(1990), session.Payment.Amount)
	require.Equal(t, "USD", session.Payment.Currency)
	require.Equal(t, "buyer@example.com", session.Payment.Email)
}

func TestGetSessionFallsBackToSubscription(t *testing.T) {
	mux := http.NewServeMux()
	tokenHandler(mux)

	mux.HandleFunc("/v2/checkout/orders/I-SUB1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"name": "RESOURCE_NOT_FOUND"})
	})
	mux.HandleFunc("/v1/billing/subscriptions/I-SUB1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":        "I-SUB1",
			"status":    "ACTIVE",
			"custom_id": "1849300123456",
			"billing_info": map[string]any{
				"next_billing_time": time.Now().Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339),
			},
		})
	})

	adapter := newTestAdapter(t, mux)
	session, err := adapter.GetSession(context.Background(), domain.SessionQuery{SessionID: "I-SUB1"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, session.Status)
	require.NotNil(t, session.Subscription)
	require.Equal(t, "I-SUB1", session.Subscription.ID)
	require.Equal(t, "1849300123456", session.OrderNo)
}

func TestGetSessionWithoutReference(t *testing.T) {
	adapter := newTestAdapter(t, http.NewServeMux())
	_, err := adapter.GetSession(context.Background(), domain.SessionQuery{})
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestHandleWebhookVerification(t *testing.T) {
	verdict := "SUCCESS"
	mux := http.NewServeMux()
	tokenHandler(mux)
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "wh-123", body["webhook_id"])
		json.NewEncoder(w).Encode(map[string]string{"verification_status": verdict})
	})

	adapter := newTestAdapter(t, mux)
	payload := []byte(`{
		"id": "WH-EVT-1",
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {"id": "CAP-1", "custom_id": "1849300123456"}
	}`)
	headers := map[string]string{
		"Paypal-Transmission-Id":   "tid",
		"Paypal-Transmission-Sig":  "sig",
		"Paypal-Transmission-Time": "now",
		"Paypal-Cert-Url":          "https://paypal.example/cert",
		"Paypal-Auth-Algo":         "SHA256withRSA",
	}

	event, err := adapter.HandleWebhook(context.Background(), payload, headers)
	require.NoError(t, err)
	require.Equal(t, "paypal", event.Provider)
	require.Equal(t, "WH-EVT-1", event.EventID)
	require.Equal(t, "1849300123456", event.OrderNo)

	verdict = "FAILURE"
	_, err = adapter.HandleWebhook(context.Background(), payload, headers)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestHandleWebhookRequiresWebhookID(t *testing.T) {
	adapter, err := New(Config{ClientID: "client", ClientSecret: "secret"})
	require.NoError(t, err)
	_, err = adapter.HandleWebhook(context.Background(), []byte(`{}`), nil)
	require.ErrorIs(t, err, domain.ErrWebhookSecretMissing)
}
