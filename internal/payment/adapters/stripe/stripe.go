package stripe

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/smallbiznis/payflow/internal/payment/domain"
)

// Config carries the Stripe credentials.
type Config struct {
	SecretKey     string
	WebhookSecret string
}

type Adapter struct {
	webhookSecret string
}

// New configures the Stripe client and returns the adapter. The webhook
// secret is required up front so signature verification can never silently
// degrade into accepting unsigned payloads.
func New(cfg Config) (*Adapter, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, domain.ErrInvalidConfig
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, domain.ErrWebhookSecretMissing
	}

	stripe.Key = secretKey

	return &Adapter{webhookSecret: webhookSecret}, nil
}

func (a *Adapter) Name() string { return "stripe" }

func (a *Adapter) CreatePayment(ctx context.Context, req domain.CheckoutRequest) (*domain.Session, error) {
	if strings.TrimSpace(req.OrderNo) == "" || req.Price.Amount <= 0 {
		return nil, domain.ErrInvalidRequest
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(strings.ToLower(req.Price.Currency)),
		UnitAmount: stripe.Int64(req.Price.Amount),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(req.ProductName),
		},
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		priceData.ProductData.Description = stripe.String(desc)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderNo),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	if email := strings.TrimSpace(req.Customer.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}

	params.AddMetadata("order_no", req.OrderNo)
	params.AddMetadata("product_id", req.ProductID)
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	if req.IsSubscription() && req.Plan != nil {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		intervalCount := req.Plan.IntervalCount
		if intervalCount <= 0 {
			intervalCount = 1
		}
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval:      stripe.String(strings.ToLower(req.Plan.Interval)),
			IntervalCount: stripe.Int64(intervalCount),
		}
		subscriptionData := &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"order_no": req.OrderNo},
		}
		if req.Plan.TrialPeriodDays > 0 {
			subscriptionData.TrialPeriodDays = stripe.Int64(req.Plan.TrialPeriodDays)
		}
		params.SubscriptionData = subscriptionData
	}

	created, err := session.New(params)
	if err != nil {
		return nil, err
	}

	return a.toSession(created), nil
}

func (a *Adapter) GetSession(ctx context.Context, query domain.SessionQuery) (*domain.Session, error) {
	sessionID := strings.TrimSpace(query.SessionID)
	if sessionID == "" && query.Params != nil {
		sessionID = strings.TrimSpace(query.Params.Get("session_id"))
	}
	if sessionID == "" {
		return nil, domain.ErrSessionNotFound
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")

	fetched, err := session.Get(sessionID, params)
	if err != nil {
		// Retrieval failure means "not yet determinable", not a verdict.
		if stripeErr, ok := err.(*stripe.Error); ok && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, nil
		}
		return nil, err
	}

	return a.toSession(fetched), nil
}

func (a *Adapter) HandleWebhook(ctx context.Context, payload []byte, headers map[string]string) (*domain.WebhookEvent, error) {
	signature := strings.TrimSpace(headers["Stripe-Signature"])
	if signature == "" {
		return nil, domain.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, domain.ErrInvalidSignature
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
	default:
		return nil, domain.ErrEventIgnored
	}

	var object struct {
		ID                string            `json:"id"`
		ClientReferenceID string            `json:"client_reference_id"`
		Metadata          map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &object); err != nil {
		return nil, domain.ErrEventIgnored
	}

	orderNo := strings.TrimSpace(object.ClientReferenceID)
	if orderNo == "" {
		orderNo = strings.TrimSpace(object.Metadata["order_no"])
	}

	return &domain.WebhookEvent{
		Provider:  a.Name(),
		EventID:   event.ID,
		Type:      string(event.Type),
		SessionID: object.ID,
		OrderNo:   orderNo,
		Raw:       payload,
	}, nil
}

func (a *Adapter) toSession(s *stripe.CheckoutSession) *domain.Session {
	out := &domain.Session{
		ID:      s.ID,
		URL:     s.URL,
		OrderNo: s.ClientReferenceID,
		Status:  mapStatus(s),
	}
	if out.OrderNo == "" && s.Metadata != nil {
		out.OrderNo = s.Metadata["order_no"]
	}

	if out.Status == domain.StatusCompleted {
		info := &domain.PaymentInfo{
			Amount:   s.AmountTotal,
			Currency: strings.ToUpper(string(s.Currency)),
			PaidAt:   time.Unix(s.Created, 0).UTC(),
		}
		if s.CustomerDetails != nil {
			info.Email = s.CustomerDetails.Email
		}
		out.Payment = info
	}

	if sub := s.Subscription; sub != nil {
		info := &domain.SubscriptionInfo{
			ID:     sub.ID,
			Status: string(sub.Status),
		}
		if sub.Items != nil {
			for _, item := range sub.Items.Data {
				info.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
				info.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
				break
			}
		}
		out.Subscription = info
	}

	if raw, err := json.Marshal(s); err == nil {
		out.Raw = raw
	}

	return out
}

// mapStatus folds Stripe's session status and payment status into the
// neutral set. An open session stays pending; a complete session is only
// completed once Stripe reports it paid (or no payment was required, as
// with trials).
func mapStatus(s *stripe.CheckoutSession) domain.SessionStatus {
	switch s.Status {
	case stripe.CheckoutSessionStatusExpired:
		return domain.StatusCancelled
	case stripe.CheckoutSessionStatusOpen:
		return domain.StatusPending
	case stripe.CheckoutSessionStatusComplete:
		switch s.PaymentStatus {
		case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
			return domain.StatusCompleted
		default:
			return domain.StatusProcessing
		}
	default:
		return domain.StatusPending
	}
}
