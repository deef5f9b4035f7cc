package rewards

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReferralCodePrefix = "REF"
	ReferrerReward     = int64(100) // рефереру после первой покупки
	ReferredBonus      = int64(50)  // приглашенному при регистрации
)

type ReferralCode struct {
	UserID    string    `json:"user_id"`
	Code      string    `json:"code"`
	Uses      int       `json:"uses"`
	CreatedAt time.Time `json:"created_at"`
}

type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
)

type Referral struct {
	ID          uuid.UUID      `json:"id"`
	ReferrerID  string         `json:"referrer_id"`
	ReferredID  string         `json:"referred_id"`
	Code        string         `json:"code"`
	Status      ReferralStatus `json:"status"`
	RewardGiven bool           `json:"reward_given"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

type ReferralResult struct {
	ReferralID  uuid.UUID `json:"referral_id"`
	ReferrerID  string    `json:"referrer_id"`
	BonusPoints int64     `json:"bonus_points"`
}

type ReferralStats struct {
	Code         string `json:"code"`
	Total        int    `json:"total"`
	Pending      int    `json:"pending"`
	Completed    int    `json:"completed"`
	PointsEarned int64  `json:"points_earned"`
}
