package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v83"

	"github.com/smallbiznis/payflow/internal/payment/domain"
)

const testWebhookSecret = "whsec_test_secret"

func signPayload(t *testing.T, payload []byte) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(Config{SecretKey: "sk_test_123"})
	require.ErrorIs(t, err, domain.ErrWebhookSecretMissing)
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		name          string
		status        stripeapi.CheckoutSessionStatus
		paymentStatus stripeapi.CheckoutSessionPaymentStatus
		want          domain.SessionStatus
	}{
		{"open stays pending", stripeapi.CheckoutSessionStatusOpen, stripeapi.CheckoutSessionPaymentStatusUnpaid, domain.StatusPending},
		{"expired is cancelled", stripeapi.CheckoutSessionStatusExpired, stripeapi.CheckoutSessionPaymentStatusUnpaid, domain.StatusCancelled},
		{"complete and paid", stripeapi.CheckoutSessionStatusComplete, stripeapi.CheckoutSessionPaymentStatusPaid, domain.StatusCompleted},
		{"complete with trial", stripeapi.CheckoutSessionStatusComplete, stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired, domain.StatusCompleted},
		{"complete but unpaid", stripeapi.CheckoutSessionStatusComplete, stripeapi.CheckoutSessionPaymentStatusUnpaid, domain.StatusProcessing},
		{"unknown defaults to pending", stripeapi.CheckoutSessionStatus("mystery"), "", domain.StatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapStatus(&stripeapi.CheckoutSession{Status: tc.status, PaymentStatus: tc.paymentStatus})
			require.Equal(t, tc.want, got)
		})
	}
}

func TestHandleWebhookRejectsMissingSignature(t *testing.T) {
	adapter := &Adapter{webhookSecret: testWebhookSecret}
	_, err := adapter.HandleWebhook(context.Background(), []byte(`{}`), map[string]string{})
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestHandleWebhookRejectsForgedSignature(t *testing.T) {
	adapter := &Adapter{webhookSecret: testWebhookSecret}
	headers := map[string]string{"Stripe-Signature": "t=12345,v1=deadbeef"}
	_, err := adapter.HandleWebhook(context.Background(), []byte(`{}`), headers)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestHandleWebhookParsesCompletedSession(t *testing.T) {
	adapter := &Adapter{webhookSecret: testWebhookSecret}
	payload := []byte(`{
		"id": "evt_123",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_123",
				"client_reference_id": "1849300123456",
				"metadata": {"order_no": "1849300123456"}
			}
		}
	}`)
	headers := map[string]string{"Stripe-Signature": signPayload(t, payload)}

	event, err := adapter.HandleWebhook(context.Background(), payload, headers)
	require.NoError(t, err)
	require.Equal(t, "stripe", event.Provider)
	require.Equal(t, "evt_123", event.EventID)
	require.Equal(t, "checkout.session.completed", event.Type)
	require.Equal(t, "cs_test_123", event.SessionID)
	require.Equal(t, "1849300123456", event.OrderNo)
}

func TestHandleWebhookIgnoresUnrelatedEvents(t *testing.T) {
	adapter := &Adapter{webhookSecret: testWebhookSecret}
	payload := []byte(`{"id":"evt_456","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`)
	headers := map[string]string{"Stripe-Signature": signPayload(t, payload)}

	_, err := adapter.HandleWebhook(context.Background(), payload, headers)
	require.ErrorIs(t, err, domain.ErrEventIgnored)
}
