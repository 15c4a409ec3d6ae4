package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Credit is a one-shot credit grant tied to a settled order. OrderNo is
// unique, which makes the grant idempotent per order.
type Credit struct {
	ID        string     `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    string     `json:"user_id" gorm:"type:text;not null;index"`
	OrderNo   string     `json:"order_no" gorm:"type:text;not null;uniqueIndex"`
	Amount    int64      `json:"amount" gorm:"not null"`
	ValidDays int64      `json:"valid_days"`
	ExpiredAt *time.Time `json:"expired_at"`
	CreatedAt time.Time  `json:"created_at" gorm:"not null"`
}

func (Credit) TableName() string { return "credits" }

type Repository interface {
	// Insert is idempotent on order_no. It reports whether a new row was
	// written.
	Insert(ctx context.Context, db *gorm.DB, credit *Credit) (bool, error)
	FindByOrderNo(ctx context.Context, db *gorm.DB, orderNo string) (*Credit, error)
}
