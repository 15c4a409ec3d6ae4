package domain

import "errors"

var (
	ErrInvalidProduct        = errors.New("checkout: invalid product")
	ErrUnauthenticated       = errors.New("checkout: unauthenticated")
	ErrOwnershipMismatch     = errors.New("checkout: order does not belong to the requesting user")
	ErrProviderUnavailable   = errors.New("checkout: payment provider unavailable")
	ErrProviderNotFound      = errors.New("checkout: payment provider not found")
	ErrProviderRequestFailed = errors.New("checkout: provider request failed")
	ErrUnknownPaymentStatus  = errors.New("checkout: payment status not determinable")
	ErrOrderNotFound         = errors.New("checkout: order not found")
)

// CheckoutRequest is the service-boundary input for starting a checkout.
type CheckoutRequest struct {
	ProductID string            `json:"product_id" binding:"required"`
	Currency  string            `json:"currency"`
	Locale    string            `json:"locale"`
	Provider  string            `json:"payment_provider"`
	Metadata  map[string]string `json:"metadata"`
}

// CheckoutResult carries what the browser needs to continue the payment.
type CheckoutResult struct {
	OrderNo     string `json:"order_no"`
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	Provider    string `json:"provider"`
}
