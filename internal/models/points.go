package rewards

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Счет баллов. Total/Lifetime/Tier всегда вычисляются из журнала транзакций (Fold)
type LoyaltyAccount struct {
	UserID    string    `json:"user_id"`
	Total     int64     `json:"total"`    // доступные баллы
	Lifetime  int64     `json:"lifetime"` // все начисленные баллы, не уменьшаются при списании
	Tier      Tier      `json:"tier"`
	Version   int64     `json:"version"` // версия для compare-and-swap
	UpdatedAt time.Time `json:"updated_at"`
}

type TnxType string

const (
	TnxEarned   TnxType = "earned"
	TnxRedeemed TnxType = "redeemed"
	TnxBonus    TnxType = "bonus"
	TnxReferral TnxType = "referral"
)

// Транзакции
type PointTransaction struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Points    int64     `json:"points"` // со знаком: списание отрицательное
	Type      TnxType   `json:"type"`
	Reason    string    `json:"reason"`
	Ref       string    `json:"ref,omitempty"` // ID заказа, реферала или купона
	Reversed  bool      `json:"reversed"`
	CreatedAt time.Time `json:"created_at"`
}

// Изменение журнала, применяется хранилищем атомарно при совпадении версии счета
type LedgerChange struct {
	UserID          string
	ExpectedVersion int64
	Account         LoyaltyAccount // счет после изменения
	Append          *PointTransaction
	Reverse         []uuid.UUID
}

// Apply возвращает новый журнал с учетом изменения, исходный слайс не меняется
func (c LedgerChange) Apply(log []PointTransaction) []PointTransaction {
	out := make([]PointTransaction, 0, len(log)+1)
	for _, t := range log {
		for _, id := range c.Reverse {
			if t.ID == id {
				t.Reversed = true
			}
		}
		out = append(out, t)
	}
	if c.Append != nil {
		out = append(out, *c.Append)
	}
	return out
}

// Fold - свертка журнала в счет
func Fold(userID string, log []PointTransaction) LoyaltyAccount {
	acc := LoyaltyAccount{UserID: userID}
	for _, t := range log {
		if t.Reversed {
			continue
		}
		acc.Total += t.Points
		if t.Points > 0 {
			acc.Lifetime += t.Points
		}
		if t.CreatedAt.After(acc.UpdatedAt) {
			acc.UpdatedAt = t.CreatedAt
		}
	}
	acc.Tier = TierFor(acc.Lifetime)
	return acc
}

// FindRef ищет транзакцию с тем же ключом идемпотентности
func FindRef(log []PointTransaction, ref string, typ TnxType) (PointTransaction, bool) {
	if ref == "" {
		return PointTransaction{}, false
	}
	for _, t := range log {
		if t.Ref == ref && t.Type == typ {
			return t, true
		}
	}
	return PointTransaction{}, false
}

// Уровни
type Tier string

const (
	Bronze   Tier = "bronze"
	Silver   Tier = "silver"
	Gold     Tier = "gold"
	Platinum Tier = "platinum"
)

type tierThreshold struct {
	tier Tier
	min  int64
}

// пороги по lifetime, по возрастанию
var tierThresholds = []tierThreshold{
	{Bronze, 0},
	{Silver, 500},
	{Gold, 1500},
	{Platinum, 5000},
}

// TierFor - наибольший порог, не превышающий lifetime
func TierFor(lifetime int64) Tier {
	tier := Bronze
	for _, t := range tierThresholds {
		if lifetime >= t.min {
			tier = t.tier
		}
	}
	return tier
}

// NextTier - следующий уровень и сколько баллов до него. Для platinum возвращает "", 0
func NextTier(lifetime int64) (Tier, int64) {
	for _, t := range tierThresholds {
		if lifetime < t.min {
			return t.tier, t.min - lifetime
		}
	}
	return "", 0
}

// Привилегии уровня
type TierBenefits struct {
	Tier            Tier            `json:"tier"`
	DiscountPercent int64           `json:"discount_percent"`
	EarnMultiplier  decimal.Decimal `json:"earn_multiplier"`
}

var tierBenefits = map[Tier]TierBenefits{
	Bronze:   {Bronze, 0, decimal.NewFromInt(1)},
	Silver:   {Silver, 5, decimal.RequireFromString("1.25")},
	Gold:     {Gold, 10, decimal.RequireFromString("1.5")},
	Platinum: {Platinum, 15, decimal.NewFromInt(2)},
}

func BenefitsFor(tier Tier) TierBenefits {
	b, ok := tierBenefits[tier]
	if !ok {
		return tierBenefits[Bronze]
	}
	return b
}

// Earn - баллы с учетом множителя, округление вниз
func (b TierBenefits) Earn(base int64) int64 {
	return decimal.NewFromInt(base).Mul(b.EarnMultiplier).Floor().IntPart()
}

// Discount - скидка уровня от цены
func (b TierBenefits) Discount(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(b.DiscountPercent)).Div(decimal.NewFromInt(100)).Round(2)
}
