package creem

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/payflow/internal/payment/domain"
)

const (
	sandboxBaseURL    = "https://test-api.creem.io"
	productionBaseURL = "https://api.creem.io"
)

// Config carries the Creem credentials.
type Config struct {
	APIKey        string
	WebhookSecret string
	Environment   string
}

type Adapter struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

func New(cfg Config) (*Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := sandboxBaseURL
	if strings.EqualFold(strings.TrimSpace(cfg.Environment), "production") {
		baseURL = productionBaseURL
	}

	return &Adapter{
		apiKey:        apiKey,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (a *Adapter) Name() string { return "creem" }

// CreatePayment opens a Creem checkout. Creem sells against pre-created
// products, so the request must carry the Creem product id resolved from
// the pricing catalog's provider_product_ids.
func (a *Adapter) CreatePayment(ctx context.Context, req domain.CheckoutRequest) (*domain.Session, error) {
	productID := strings.TrimSpace(req.Metadata["creem_product_id"])
	if productID == "" {
		productID = strings.TrimSpace(req.ProductID)
	}
	if productID == "" || strings.TrimSpace(req.OrderNo) == "" {
		return nil, domain.ErrInvalidRequest
	}

	payload := map[string]any{
		"product_id":  productID,
		"request_id":  req.OrderNo,
		"units":       1,
		"success_url": req.SuccessURL,
		"metadata":    mergeMetadata(req.Metadata, req.OrderNo),
	}
	if email := strings.TrimSpace(req.Customer.Email); email != "" {
		payload["customer"] = map[string]string{"email": email}
	}

	var checkout checkoutResponse
	if err := a.do(ctx, http.MethodPost, "/v1/checkouts", payload, &checkout); err != nil {
		return nil, err
	}

	return checkout.toSession(req.OrderNo), nil
}

func (a *Adapter) GetSession(ctx context.Context, query domain.SessionQuery) (*domain.Session, error) {
	sessionID := strings.TrimSpace(query.SessionID)
	if sessionID == "" && query.Params != nil {
		sessionID = strings.TrimSpace(query.Params.Get("checkout_id"))
	}
	if sessionID == "" {
		return nil, domain.ErrSessionNotFound
	}

	var checkout checkoutResponse
	path := "/v1/checkouts?checkout_id=" + url.QueryEscape(sessionID)
	if err := a.do(ctx, http.MethodGet, path, nil, &checkout); err != nil {
		// Retrieval failure means "not yet determinable", not a verdict.
		if apiErr, ok := err.(*apiError); ok && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	return checkout.toSession(""), nil
}

// HandleWebhook verifies the creem-signature header, an HMAC-SHA256 hex
// digest of the raw body keyed with the webhook secret.
func (a *Adapter) HandleWebhook(ctx context.Context, payload []byte, headers map[string]string) (*domain.WebhookEvent, error) {
	if a.webhookSecret == "" {
		return nil, domain.ErrWebhookSecretMissing
	}

	signature := strings.TrimSpace(headerValue(headers, "Creem-Signature"))
	if signature == "" {
		return nil, domain.ErrInvalidSignature
	}
	if !verifySignature(payload, signature, a.webhookSecret) {
		return nil, domain.ErrInvalidSignature
	}

	var event struct {
		ID        string `json:"id"`
		EventType string `json:"eventType"`
		Object    struct {
			ID        string            `json:"id"`
			RequestID string            `json:"request_id"`
			Status    string            `json:"status"`
			Metadata  map[string]string `json:"metadata"`
		} `json:"object"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrEventIgnored
	}

	switch event.EventType {
	case "checkout.completed", "subscription.active", "subscription.paid",
		"subscription.canceled", "refund.created":
	default:
		return nil, domain.ErrEventIgnored
	}

	orderNo := strings.TrimSpace(event.Object.RequestID)
	if orderNo == "" && event.Object.Metadata != nil {
		orderNo = strings.TrimSpace(event.Object.Metadata["order_no"])
	}

	return &domain.WebhookEvent{
		Provider:  a.Name(),
		EventID:   event.ID,
		Type:      event.EventType,
		SessionID: event.Object.ID,
		OrderNo:   orderNo,
		Raw:       payload,
	}, nil
}

func verifySignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("creem: request failed (%d): %s", e.StatusCode, e.Message)
}

func (a *Adapter) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &detail)
		return &apiError{StatusCode: resp.StatusCode, Message: detail.Message}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

type checkoutResponse struct {
	ID          string            `json:"id"`
	CheckoutURL string            `json:"checkout_url"`
	Status      string            `json:"status"`
	RequestID   string            `json:"request_id"`
	Metadata    map[string]string `json:"metadata"`
	Order       struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"order"`
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
	Subscription struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		CurrentPeriodEnd string `json:"current_period_end_date"`
		StartDate        string `json:"current_period_start_date"`
	} `json:"subscription"`
}

func (c checkoutResponse) toSession(orderNo string) *domain.Session {
	if orderNo == "" {
		orderNo = strings.TrimSpace(c.RequestID)
	}
	if orderNo == "" && c.Metadata != nil {
		orderNo = strings.TrimSpace(c.Metadata["order_no"])
	}

	out := &domain.Session{
		ID:      c.ID,
		URL:     c.CheckoutURL,
		OrderNo: orderNo,
		Status:  MapStatus(c.Status),
	}

	if out.Status == domain.StatusCompleted {
		out.Payment = &domain.PaymentInfo{
			Amount:   c.Order.Amount,
			Currency: strings.ToUpper(c.Order.Currency),
			Email:    c.Customer.Email,
			PaidAt:   time.Now().UTC(),
		}
	}

	if c.Subscription.ID != "" {
		info := &domain.SubscriptionInfo{
			ID:     c.Subscription.ID,
			Status: strings.ToLower(c.Subscription.Status),
		}
		if start, err := time.Parse(time.RFC3339, c.Subscription.StartDate); err == nil {
			info.CurrentPeriodStart = start.UTC()
		}
		if end, err := time.Parse(time.RFC3339, c.Subscription.CurrentPeriodEnd); err == nil {
			info.CurrentPeriodEnd = end.UTC()
		}
		out.Subscription = info
	}

	if raw, err := json.Marshal(c); err == nil {
		out.Raw = raw
	}
	return out
}

// MapStatus folds Creem checkout statuses into the neutral set.
// Unrecognized statuses stay pending.
func MapStatus(status string) domain.SessionStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pending":
		return domain.StatusPending
	case "processing":
		return domain.StatusProcessing
	case "completed", "paid":
		return domain.StatusCompleted
	case "failed":
		return domain.StatusFailed
	case "cancelled", "canceled", "expired":
		return domain.StatusCancelled
	default:
		return domain.StatusPending
	}
}

func headerValue(headers map[string]string, key string) string {
	if value, ok := headers[key]; ok {
		return value
	}
	return headers[strings.ToLower(key)]
}

func mergeMetadata(metadata map[string]string, orderNo string) map[string]string {
	merged := map[string]string{"order_no": orderNo}
	for key, value := range metadata {
		merged[key] = value
	}
	return merged
}
