package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	// StatusPending is set before any provider network call.
	StatusPending Status = "pending"
	// StatusCreated means the provider session exists and payment is in
	// flight.
	StatusCreated Status = "created"
	// StatusPaid and StatusFailed are the reconciler's terminal verdicts.
	StatusPaid   Status = "paid"
	StatusFailed Status = "failed"
	// StatusCompleted means checkout setup itself failed, before a session
	// existed. Terminal.
	StatusCompleted Status = "completed"
)

// Terminal reports whether the order can no longer change status.
func (s Status) Terminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusCompleted:
		return true
	default:
		return false
	}
}

const (
	PaymentTypeOneTime      = "one_time"
	PaymentTypeSubscription = "subscription"
)

// Order records one checkout attempt. The JSON columns are opaque audit
// blobs: written by the initiator and reconciler, never re-parsed.
type Order struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	OrderNo   string    `json:"order_no" gorm:"type:text;not null;uniqueIndex"`
	UserID    string    `json:"user_id" gorm:"type:text;not null;index"`
	UserEmail string    `json:"user_email" gorm:"type:text"`
	Status    Status    `json:"status" gorm:"type:text;not null"`

	Amount      int64  `json:"amount" gorm:"not null"`
	Currency    string `json:"currency" gorm:"type:text;not null"`
	ProductID   string `json:"product_id" gorm:"type:text;not null"`
	ProductName string `json:"product_name" gorm:"type:text"`
	Description string `json:"description" gorm:"type:text"`

	PaymentType      string `json:"payment_type" gorm:"type:text;not null"`
	PaymentInterval  string `json:"payment_interval" gorm:"type:text"`
	PaymentProvider  string `json:"payment_provider" gorm:"type:text;not null"`
	PaymentProductID string `json:"payment_product_id" gorm:"type:text"`
	PaymentSessionID string `json:"payment_session_id" gorm:"type:text;index"`
	CheckoutURL      string `json:"checkout_url" gorm:"type:text"`

	CheckoutInfo   datatypes.JSON `json:"checkout_info" gorm:"type:jsonb"`
	CheckoutResult datatypes.JSON `json:"checkout_result" gorm:"type:jsonb"`
	PaymentResult  datatypes.JSON `json:"payment_result" gorm:"type:jsonb"`

	PaymentAmount   int64      `json:"payment_amount"`
	PaymentCurrency string     `json:"payment_currency" gorm:"type:text"`
	PaymentEmail    string     `json:"payment_email" gorm:"type:text"`
	PaidAt          *time.Time `json:"paid_at"`

	SubscriptionID     string         `json:"subscription_id" gorm:"type:text"`
	SubscriptionResult datatypes.JSON `json:"subscription_result" gorm:"type:jsonb"`

	CallbackURL      string `json:"callback_url" gorm:"type:text"`
	CreditsAmount    int64  `json:"credits_amount"`
	CreditsValidDays int64  `json:"credits_valid_days"`
	PlanName         string `json:"plan_name" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByOrderNo(ctx context.Context, db *gorm.DB, orderNo string) (*Order, error)
	ListByUserID(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]Order, error)
	UpdateByOrderNo(ctx context.Context, db *gorm.DB, orderNo string, fields map[string]any) error
}
