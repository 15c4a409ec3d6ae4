package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Subscription is a recurring billing agreement created by the reconciler
// when a subscription order settles. SubscriptionID is the provider-side id;
// at most one row exists per (payment_provider, subscription_id).
type Subscription struct {
	ID             string `json:"id" gorm:"type:uuid;primaryKey"`
	SubscriptionNo string `json:"subscription_no" gorm:"type:text;not null;uniqueIndex"`
	UserID         string `json:"user_id" gorm:"type:text;not null;index"`
	UserEmail      string `json:"user_email" gorm:"type:text"`
	Status         Status `json:"status" gorm:"type:text;not null"`

	PaymentProvider    string         `json:"payment_provider" gorm:"type:text;not null;uniqueIndex:idx_provider_subscription"`
	SubscriptionID     string         `json:"subscription_id" gorm:"type:text;not null;uniqueIndex:idx_provider_subscription"`
	SubscriptionResult datatypes.JSON `json:"subscription_result" gorm:"type:jsonb"`

	ProductID   string `json:"product_id" gorm:"type:text"`
	Description string `json:"description" gorm:"type:text"`
	PlanName    string `json:"plan_name" gorm:"type:text"`

	Amount          int64  `json:"amount"`
	Currency        string `json:"currency" gorm:"type:text"`
	Interval        string `json:"interval" gorm:"type:text"`
	IntervalCount   int64  `json:"interval_count"`
	TrialPeriodDays int64  `json:"trial_period_days"`

	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

type Repository interface {
	// Insert is idempotent on (payment_provider, subscription_id). It
	// reports whether a new row was written.
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) (bool, error)
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, provider, subscriptionID string) (*Subscription, error)
	ListByUserID(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]Subscription, error)
}
