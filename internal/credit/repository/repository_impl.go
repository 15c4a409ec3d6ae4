package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/smallbiznis/payflow/internal/credit/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, credit *domain.Credit) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO credits (
			id, user_id, order_no, amount, valid_days, expired_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (order_no) DO NOTHING`,
		credit.ID,
		credit.UserID,
		credit.OrderNo,
		credit.Amount,
		credit.ValidDays,
		credit.ExpiredAt,
		credit.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByOrderNo(ctx context.Context, db *gorm.DB, orderNo string) (*domain.Credit, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}

	var credit domain.Credit
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, order_no, amount, valid_days, expired_at, created_at
		 FROM credits WHERE order_no = ? LIMIT 1`,
		orderNo,
	).Scan(&credit).Error
	if err != nil {
		return nil, err
	}
	if credit.ID == "" {
		return nil, nil
	}
	return &credit, nil
}
