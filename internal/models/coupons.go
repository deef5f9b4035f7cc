package rewards

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	CouponCodePrefix  = "SAVE100-"
	CouponCost        = int64(5000)
	CouponValidMonths = 3
)

var CouponValue = decimal.NewFromInt(100)

type Coupon struct {
	ID          uuid.UUID       `json:"id"`
	Code        string          `json:"code"`
	UserID      string          `json:"user_id"`
	Value       decimal.Decimal `json:"value"`
	PointsSpent int64           `json:"points_spent"`
	Used        bool            `json:"used"`
	UsedAt      *time.Time      `json:"used_at,omitempty"`
	OrderID     uuid.NullUUID   `json:"order_id"`
	ExpiresAt   time.Time       `json:"expires_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (c Coupon) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

type CouponCheck struct {
	CouponID uuid.UUID       `json:"coupon_id"`
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
}
