package domain

import (
	"context"
	"net/url"
	"time"
)

// SessionStatus is the provider-neutral state of a checkout session. Every
// adapter maps its vendor statuses onto this set; anything unrecognized
// maps to StatusPending so the caller keeps polling instead of guessing.
type SessionStatus string

const (
	StatusPending    SessionStatus = "pending"
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether the session can no longer change state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Price is an amount in the currency's smallest unit.
type Price struct {
	Amount   int64
	Currency string
}

// Plan describes the recurring terms of a subscription checkout.
type Plan struct {
	Name            string
	Interval        string
	IntervalCount   int64
	TrialPeriodDays int64
	Price           Price
}

// Customer identifies the paying user as known to this system.
type Customer struct {
	Name  string
	Email string
}

// CheckoutRequest carries everything an adapter needs to create a hosted
// checkout session. OrderNo ties the provider session back to the local
// order for webhook and callback reconciliation.
type CheckoutRequest struct {
	OrderNo     string
	Description string

	// Type is "one-time" or "subscription".
	Type string

	ProductID   string
	ProductName string
	Price       Price
	Plan        *Plan

	Customer Customer
	Metadata map[string]string

	SuccessURL string
	CancelURL  string
}

// IsSubscription reports whether the request creates a recurring plan.
func (r CheckoutRequest) IsSubscription() bool {
	return r.Type == "subscription"
}

// PaymentInfo is the settled payment detail extracted from a completed
// session.
type PaymentInfo struct {
	Amount   int64
	Currency string
	Email    string
	PaidAt   time.Time
}

// SubscriptionInfo is the provider-side subscription detail attached to a
// completed subscription session.
type SubscriptionInfo struct {
	ID                 string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
}

// Session is an adapter's provider-neutral view of a checkout session.
type Session struct {
	ID      string
	URL     string
	OrderNo string
	Status  SessionStatus

	Payment      *PaymentInfo
	Subscription *SubscriptionInfo

	// Raw holds the provider's own representation for auditing.
	Raw []byte
}

// SessionQuery locates a provider session from callback parameters. Params
// carries the full callback query string because some providers return the
// session reference under vendor-specific keys.
type SessionQuery struct {
	SessionID string
	Params    url.Values
}

// WebhookEvent is a verified, provider-neutral webhook notification.
type WebhookEvent struct {
	Provider  string
	EventID   string
	Type      string
	SessionID string
	OrderNo   string
	Raw       []byte
}

// Adapter is the uniform provider contract. Implementations verify webhook
// signatures before returning an event; an unverifiable payload is an
// ErrInvalidSignature, never a parsed event.
type Adapter interface {
	Name() string
	CreatePayment(ctx context.Context, req CheckoutRequest) (*Session, error)
	GetSession(ctx context.Context, query SessionQuery) (*Session, error)
	HandleWebhook(ctx context.Context, payload []byte, headers map[string]string) (*WebhookEvent, error)
}
