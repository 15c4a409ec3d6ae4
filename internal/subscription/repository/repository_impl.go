package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/smallbiznis/payflow/internal/subscription/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, subscription_no, user_id, user_email, status, payment_provider,
			subscription_id, subscription_result, product_id, description, plan_name,
			amount, currency, interval, interval_count, trial_period_days,
			current_period_start, current_period_end, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (payment_provider, subscription_id) DO NOTHING`,
		subscription.ID,
		subscription.SubscriptionNo,
		subscription.UserID,
		subscription.UserEmail,
		subscription.Status,
		subscription.PaymentProvider,
		subscription.SubscriptionID,
		subscription.SubscriptionResult,
		subscription.ProductID,
		subscription.Description,
		subscription.PlanName,
		subscription.Amount,
		subscription.Currency,
		subscription.Interval,
		subscription.IntervalCount,
		subscription.TrialPeriodDays,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, provider, subscriptionID string) (*domain.Subscription, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	subscriptionID = strings.TrimSpace(subscriptionID)
	if provider == "" || subscriptionID == "" {
		return nil, nil
	}

	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_no, user_id, user_email, status, payment_provider,
		 subscription_id, subscription_result, product_id, description, plan_name,
		 amount, currency, interval, interval_count, trial_period_days,
		 current_period_start, current_period_end, created_at, updated_at
		 FROM subscriptions
		 WHERE payment_provider = ? AND subscription_id = ?
		 LIMIT 1`,
		provider,
		subscriptionID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == "" {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) ListByUserID(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]domain.Subscription, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var subscriptions []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_no, user_id, user_email, status, payment_provider,
		 subscription_id, subscription_result, product_id, description, plan_name,
		 amount, currency, interval, interval_count, trial_period_days,
		 current_period_start, current_period_end, created_at, updated_at
		 FROM subscriptions WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		userID,
		limit,
		offset,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
