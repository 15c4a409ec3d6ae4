package domain

import "errors"

var (
	ErrInvalidRequest       = errors.New("payment: invalid checkout request")
	ErrInvalidConfig        = errors.New("payment: provider not configured")
	ErrProviderNotFound     = errors.New("payment: provider not found")
	ErrSessionNotFound      = errors.New("payment: session not found")
	ErrInvalidSignature     = errors.New("payment: invalid webhook signature")
	ErrWebhookSecretMissing = errors.New("payment: webhook secret not configured")

	// ErrEventIgnored marks webhook events the reconciler has no interest
	// in. The ingestion endpoint still acknowledges them.
	ErrEventIgnored = errors.New("payment: event ignored")
)
