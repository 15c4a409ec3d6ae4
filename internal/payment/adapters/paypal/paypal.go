package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/payflow/internal/payment/domain"
)

const (
	sandboxBaseURL    = "https://api-m.sandbox.paypal.com"
	productionBaseURL = "https://api-m.paypal.com"
)

// Config carries the PayPal REST credentials. WebhookID is the webhook
// registration id used by the verify-webhook-signature API.
type Config struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	Environment  string
}

type Adapter struct {
	clientID     string
	clientSecret string
	webhookID    string
	baseURL      string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func New(cfg Config) (*Adapter, error) {
	clientID := strings.TrimSpace(cfg.ClientID)
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientID == "" || clientSecret == "" {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := sandboxBaseURL
	if strings.EqualFold(strings.TrimSpace(cfg.Environment), "production") {
		baseURL = productionBaseURL
	}

	return &Adapter{
		clientID:     clientID,
		clientSecret: clientSecret,
		webhookID:    strings.TrimSpace(cfg.WebhookID),
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (a *Adapter) Name() string { return "paypal" }

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CheckoutRequest) (*domain.Session, error) {
	if strings.TrimSpace(req.OrderNo) == "" || req.Price.Amount <= 0 {
		return nil, domain.ErrInvalidRequest
	}
	if req.IsSubscription() {
		if req.Plan == nil {
			return nil, domain.ErrInvalidRequest
		}
		return a.createSubscription(ctx, req)
	}
	return a.createOrder(ctx, req)
}

func (a *Adapter) createOrder(ctx context.Context, req domain.CheckoutRequest) (*domain.Session, error) {
	currency := strings.ToUpper(req.Price.Currency)
	value := formatAmount(req.Price.Amount)

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"custom_id": req.OrderNo,
				"items": []map[string]any{
					{
						"name":     orDefault(req.ProductName, "Payment"),
						"quantity": "1",
						"unit_amount": map[string]string{
							"currency_code": currency,
							"value":         value,
						},
					},
				},
				"amount": map[string]any{
					"currency_code": currency,
					"value":         value,
					"breakdown": map[string]any{
						"item_total": map[string]string{
							"currency_code": currency,
							"value":         value,
						},
					},
				},
			},
		},
		"application_context": map[string]any{
			"return_url":  req.SuccessURL,
			"cancel_url":  req.CancelURL,
			"user_action": "PAY_NOW",
		},
	}

	var order orderResponse
	if err := a.do(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}

	return order.toSession(req.OrderNo), nil
}

// createSubscription walks PayPal's catalog chain: a product, then a
// billing plan, then the subscription itself. Pre-created plans can be
// supplied through the pricing catalog's provider_product_ids to skip the
// first two calls.
func (a *Adapter) createSubscription(ctx context.Context, req domain.CheckoutRequest) (*domain.Session, error) {
	planID := strings.TrimSpace(req.Metadata["paypal_plan_id"])
	if planID == "" {
		var err error
		planID, err = a.createBillingPlan(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	payload := map[string]any{
		"plan_id":   planID,
		"custom_id": req.OrderNo,
		"application_context": map[string]any{
			"shipping_preference": "NO_SHIPPING",
			"user_action":         "SUBSCRIBE_NOW",
			"payment_method": map[string]string{
				"payer_selected":  "PAYPAL",
				"payee_preferred": "IMMEDIATE_PAYMENT_REQUIRED",
			},
			"return_url": req.SuccessURL,
			"cancel_url": req.CancelURL,
		},
	}
	if email := strings.TrimSpace(req.Customer.Email); email != "" {
		subscriber := map[string]any{"email_address": email}
		if name := strings.TrimSpace(req.Customer.Name); name != "" {
			parts := strings.Fields(name)
			subscriberName := map[string]string{"given_name": parts[0]}
			if len(parts) > 1 {
				subscriberName["surname"] = strings.Join(parts[1:], " ")
			}
			subscriber["name"] = subscriberName
		}
		payload["subscriber"] = subscriber
	}

	var sub subscriptionResponse
	if err := a.do(ctx, http.MethodPost, "/v1/billing/subscriptions", payload, &sub); err != nil {
		return nil, err
	}

	return sub.toSession(req.OrderNo), nil
}

func (a *Adapter) createBillingPlan(ctx context.Context, req domain.CheckoutRequest) (string, error) {
	productPayload := map[string]any{
		"name":     req.Plan.Name,
		"type":     "SERVICE",
		"category": "SOFTWARE",
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		productPayload["description"] = desc
	}

	var product struct {
		ID string `json:"id"`
	}
	if err := a.do(ctx, http.MethodPost, "/v1/catalogs/products", productPayload, &product); err != nil {
		return "", err
	}

	currency := strings.ToUpper(req.Plan.Price.Currency)
	intervalCount := req.Plan.IntervalCount
	if intervalCount <= 0 {
		intervalCount = 1
	}

	cycles := []map[string]any{}
	sequence := 1
	if req.Plan.TrialPeriodDays > 0 {
		cycles = append(cycles, map[string]any{
			"frequency":    map[string]any{"interval_unit": "DAY", "interval_count": 1},
			"tenure_type":  "TRIAL",
			"sequence":     sequence,
			"total_cycles": req.Plan.TrialPeriodDays,
			"pricing_scheme": map[string]any{
				"fixed_price": map[string]string{"value": "0.00", "currency_code": currency},
			},
		})
		sequence++
	}
	cycles = append(cycles, map[string]any{
		"frequency": map[string]any{
			"interval_unit":  strings.ToUpper(req.Plan.Interval),
			"interval_count": intervalCount,
		},
		"tenure_type":  "REGULAR",
		"sequence":     sequence,
		"total_cycles": 0,
		"pricing_scheme": map[string]any{
			"fixed_price": map[string]string{
				"value":         formatAmount(req.Plan.Price.Amount),
				"currency_code": currency,
			},
		},
	})

	planPayload := map[string]any{
		"product_id":     product.ID,
		"name":           req.Plan.Name,
		"billing_cycles": cycles,
		"payment_preferences": map[string]any{
			"auto_bill_outstanding":     true,
			"setup_fee_failure_action":  "CONTINUE",
			"payment_failure_threshold": 3,
		},
	}

	var plan struct {
		ID string `json:"id"`
	}
	if err := a.do(ctx, http.MethodPost, "/v1/billing/plans", planPayload, &plan); err != nil {
		return "", err
	}
	return plan.ID, nil
}

// GetSession resolves the callback reference as an order first and falls
// back to a billing subscription. PayPal returns the order id under the
// "token" query parameter and subscriptions under "subscription_id".
func (a *Adapter) GetSession(ctx context.Context, query domain.SessionQuery) (*domain.Session, error) {
	sessionID := strings.TrimSpace(query.SessionID)
	subscriptionID := ""
	if query.Params != nil {
		if sessionID == "" {
			sessionID = strings.TrimSpace(query.Params.Get("token"))
		}
		subscriptionID = strings.TrimSpace(query.Params.Get("subscription_id"))
	}
	if sessionID == "" && subscriptionID == "" {
		return nil, domain.ErrSessionNotFound
	}

	if subscriptionID != "" {
		var sub subscriptionResponse
		err := a.do(ctx, http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(subscriptionID), nil, &sub)
		if err == nil {
			return sub.toSession(""), nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}

	var order orderResponse
	err := a.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(sessionID), nil, &order)
	if err != nil {
		if isNotFound(err) {
			var sub subscriptionResponse
			if subErr := a.do(ctx, http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(sessionID), nil, &sub); subErr == nil {
				return sub.toSession(""), nil
			}
			// Neither an order nor a subscription: not yet determinable.
			return nil, nil
		}
		return nil, err
	}

	// An approved order has not moved money yet. Capture it here so the
	// caller observes a settled state instead of waiting on a webhook.
	if strings.EqualFold(order.Status, "APPROVED") {
		var captured orderResponse
		captureErr := a.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(sessionID)+"/capture", map[string]any{}, &captured)
		if captureErr == nil {
			return captured.toSession(""), nil
		}
	}

	return order.toSession(""), nil
}

func (a *Adapter) HandleWebhook(ctx context.Context, payload []byte, headers map[string]string) (*domain.WebhookEvent, error) {
	if a.webhookID == "" {
		return nil, domain.ErrWebhookSecretMissing
	}

	var event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID       string `json:"id"`
			CustomID string `json:"custom_id"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidSignature
	}

	verifyPayload := map[string]any{
		"auth_algo":         headerValue(headers, "Paypal-Auth-Algo"),
		"cert_url":          headerValue(headers, "Paypal-Cert-Url"),
		"transmission_id":   headerValue(headers, "Paypal-Transmission-Id"),
		"transmission_sig":  headerValue(headers, "Paypal-Transmission-Sig"),
		"transmission_time": headerValue(headers, "Paypal-Transmission-Time"),
		"webhook_id":        a.webhookID,
		"webhook_event":     json.RawMessage(payload),
	}

	var verification struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := a.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", verifyPayload, &verification); err != nil {
		return nil, domain.ErrInvalidSignature
	}
	if verification.VerificationStatus != "SUCCESS" {
		return nil, domain.ErrInvalidSignature
	}

	switch event.EventType {
	case "CHECKOUT.ORDER.APPROVED", "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.DENIED",
		"BILLING.SUBSCRIPTION.ACTIVATED", "BILLING.SUBSCRIPTION.CANCELLED",
		"BILLING.SUBSCRIPTION.SUSPENDED":
	default:
		return nil, domain.ErrEventIgnored
	}

	return &domain.WebhookEvent{
		Provider:  a.Name(),
		EventID:   event.ID,
		Type:      event.EventType,
		SessionID: event.Resource.ID,
		OrderNo:   strings.TrimSpace(event.Resource.CustomID),
		Raw:       payload,
	}, nil
}

type apiError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("paypal: %s (%d): %s", e.Name, e.StatusCode, e.Message)
}

func isNotFound(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && (apiErr.StatusCode == http.StatusNotFound || apiErr.Name == "RESOURCE_NOT_FOUND")
}

func (a *Adapter) do(ctx context.Context, method, path string, payload any, out any) error {
	token, err := a.ensureAccessToken(ctx)
	if err != nil {
		return err
	}

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
	req.Header.Set("Authorization", "Bearer "+token)
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
			Name    string `json:"name"`
			Message string `json:"message"`
			Details []struct {
				Issue string `json:"issue"`
			} `json:"details"`
		}
		_ = json.Unmarshal(raw, &detail)
		message := detail.Message
		for _, d := range detail.Details {
			message += "; " + d.Issue
		}
		return &apiError{StatusCode: resp.StatusCode, Name: detail.Name, Message: message}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (a *Adapter) ensureAccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var token struct {
		AccessToken      string `json:"access_token"`
		ExpiresIn        int64  `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", err
	}
	if token.Error != "" || token.AccessToken == "" {
		return "", fmt.Errorf("paypal: authentication failed: %s", token.ErrorDescription)
	}

	a.accessToken = token.AccessToken
	// Refresh a minute early to avoid using a token mid-expiry.
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)
	return a.accessToken, nil
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

func approvalURL(links []link) string {
	for _, l := range links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []link `json:"links"`
	Payer         payer  `json:"payer"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Amount   amount `json:"amount"`
		Payments struct {
			Captures []struct {
				ID         string `json:"id"`
				Status     string `json:"status"`
				Amount     amount `json:"amount"`
				CreateTime string `json:"create_time"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type payer struct {
	EmailAddress string `json:"email_address"`
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func (o orderResponse) toSession(orderNo string) *domain.Session {
	if orderNo == "" && len(o.PurchaseUnits) > 0 {
		orderNo = strings.TrimSpace(o.PurchaseUnits[0].CustomID)
	}

	out := &domain.Session{
		ID:      o.ID,
		URL:     approvalURL(o.Links),
		OrderNo: orderNo,
		Status:  MapStatus(o.Status),
	}

	if out.Status == domain.StatusCompleted && len(o.PurchaseUnits) > 0 {
		unit := o.PurchaseUnits[0]
		info := &domain.PaymentInfo{Email: o.Payer.EmailAddress}
		if len(unit.Payments.Captures) > 0 {
			capture := unit.Payments.Captures[0]
			info.Amount = parseAmount(capture.Amount.Value)
			info.Currency = strings.ToUpper(capture.Amount.CurrencyCode)
			if paidAt, err := time.Parse(time.RFC3339, capture.CreateTime); err == nil {
				info.PaidAt = paidAt.UTC()
			}
		} else {
			info.Amount = parseAmount(unit.Amount.Value)
			info.Currency = strings.ToUpper(unit.Amount.CurrencyCode)
		}
		if info.PaidAt.IsZero() {
			info.PaidAt = time.Now().UTC()
		}
		out.Payment = info
	}

	if raw, err := json.Marshal(o); err == nil {
		out.Raw = raw
	}
	return out
}

type subscriptionResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CustomID    string `json:"custom_id"`
	Links       []link `json:"links"`
	StartTime   string `json:"start_time"`
	Subscriber  payer  `json:"subscriber"`
	BillingInfo struct {
		NextBillingTime string `json:"next_billing_time"`
	} `json:"billing_info"`
}

func (s subscriptionResponse) toSession(orderNo string) *domain.Session {
	if orderNo == "" {
		orderNo = strings.TrimSpace(s.CustomID)
	}

	out := &domain.Session{
		ID:      s.ID,
		URL:     approvalURL(s.Links),
		OrderNo: orderNo,
		Status:  MapStatus(s.Status),
	}

	info := &domain.SubscriptionInfo{ID: s.ID, Status: strings.ToLower(s.Status)}
	if start, err := time.Parse(time.RFC3339, s.StartTime); err == nil {
		info.CurrentPeriodStart = start.UTC()
	}
	if end, err := time.Parse(time.RFC3339, s.BillingInfo.NextBillingTime); err == nil {
		info.CurrentPeriodEnd = end.UTC()
	}
	out.Subscription = info

	if out.Status == domain.StatusCompleted {
		out.Payment = &domain.PaymentInfo{
			Email:  s.Subscriber.EmailAddress,
			PaidAt: time.Now().UTC(),
		}
	}

	if raw, err := json.Marshal(s); err == nil {
		out.Raw = raw
	}
	return out
}

// MapStatus folds PayPal order and subscription statuses into the neutral
// set. Unrecognized statuses stay pending.
func MapStatus(status string) domain.SessionStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "CREATED", "SAVED", "APPROVED", "APPROVAL_PENDING", "PAYER_ACTION_REQUIRED":
		return domain.StatusPending
	case "COMPLETED", "ACTIVE":
		return domain.StatusCompleted
	case "CANCELLED", "EXPIRED":
		return domain.StatusCancelled
	case "SUSPENDED":
		return domain.StatusFailed
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

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// formatAmount renders cents as PayPal's decimal string.
func formatAmount(cents int64) string {
	return strconv.FormatFloat(float64(cents)/100, 'f', 2, 64)
}

// parseAmount converts PayPal's decimal string back to cents.
func parseAmount(value string) int64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return int64(parsed*100 + 0.5)
}
