package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/smallbiznis/payflow/internal/order/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, order_no, user_id, user_email, status, amount, currency, product_id,
			product_name, description, payment_type, payment_interval, payment_provider,
			payment_product_id, payment_session_id, checkout_url, checkout_info,
			checkout_result, payment_result, payment_amount, payment_currency,
			payment_email, paid_at, subscription_id, subscription_result, callback_url,
			credits_amount, credits_valid_days, plan_name, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.OrderNo,
		order.UserID,
		order.UserEmail,
		order.Status,
		order.Amount,
		order.Currency,
		order.ProductID,
		order.ProductName,
		order.Description,
		order.PaymentType,
		order.PaymentInterval,
		order.PaymentProvider,
		order.PaymentProductID,
		order.PaymentSessionID,
		order.CheckoutURL,
		order.CheckoutInfo,
		order.CheckoutResult,
		order.PaymentResult,
		order.PaymentAmount,
		order.PaymentCurrency,
		order.PaymentEmail,
		order.PaidAt,
		order.SubscriptionID,
		order.SubscriptionResult,
		order.CallbackURL,
		order.CreditsAmount,
		order.CreditsValidDays,
		order.PlanName,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByOrderNo(ctx context.Context, db *gorm.DB, orderNo string) (*domain.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}

	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_no, user_id, user_email, status, amount, currency, product_id,
		 product_name, description, payment_type, payment_interval, payment_provider,
		 payment_product_id, payment_session_id, checkout_url, checkout_info,
		 checkout_result, payment_result, payment_amount, payment_currency,
		 payment_email, paid_at, subscription_id, subscription_result, callback_url,
		 credits_amount, credits_valid_days, plan_name, created_at, updated_at
		 FROM orders WHERE order_no = ? LIMIT 1`,
		orderNo,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListByUserID(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var orders []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_no, user_id, user_email, status, amount, currency, product_id,
		 product_name, description, payment_type, payment_interval, payment_provider,
		 payment_product_id, payment_session_id, checkout_url, checkout_info,
		 checkout_result, payment_result, payment_amount, payment_currency,
		 payment_email, paid_at, subscription_id, subscription_result, callback_url,
		 credits_amount, credits_valid_days, plan_name, created_at, updated_at
		 FROM orders WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		userID,
		limit,
		offset,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) UpdateByOrderNo(ctx context.Context, db *gorm.DB, orderNo string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("order_no = ?", orderNo).
		Updates(fields).Error
}
