package rewards

import (
	"context"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=./../services/mock_rewards_test.go -package=rewards . EventPublisher,Catalog,CacheStorage

// Заказы. UpdateOrder - compare-and-swap по Version, при несовпадении ErrConflict
type OrderStorage interface {
	CreateOrder(ctx context.Context, order model.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error)
	UpdateOrder(ctx context.Context, order model.Order) (model.Order, error)
	ListOrders(ctx context.Context, buyer string) ([]model.Order, error)
}

// Журнал баллов
type LedgerStorage interface {
	// версия счета (0 - счета еще нет) и весь журнал пользователя из одного снимка
	LoadLedger(ctx context.Context, user string) (version int64, log []model.PointTransaction, err error)
	// атомарно: проверка версии, сохранение счета, сторно и добавление транзакции.
	// ErrConflict - версия изменилась, ErrDuplicate - транзакция с тем же Ref уже есть
	CommitLedger(ctx context.Context, change model.LedgerChange) error
	GetTnx(ctx context.Context, user string, from time.Time, to time.Time) ([]model.PointTransaction, error)
}

type ReferralStorage interface {
	GetCodeByUser(ctx context.Context, user string) (model.ReferralCode, error)
	GetCode(ctx context.Context, code string) (model.ReferralCode, error)
	CreateCode(ctx context.Context, code model.ReferralCode) error
	// создание реферала и увеличение счетчика кода одной операцией. ErrDuplicate - приглашенный уже есть
	CreateReferral(ctx context.Context, ref model.Referral) error
	GetReferralByReferred(ctx context.Context, user string) (model.Referral, error)
	ListReferrals(ctx context.Context, referrer string) ([]model.Referral, error)
	// pending -> completed, false если статус уже другой
	CompleteReferral(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkRewardGiven(ctx context.Context, id uuid.UUID) error
}

type CouponStorage interface {
	CreateCoupon(ctx context.Context, coupon model.Coupon) error
	GetCoupon(ctx context.Context, id uuid.UUID) (model.Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (model.Coupon, error)
	ListCoupons(ctx context.Context, user string) ([]model.Coupon, error)
	// used false -> true, только для непросроченного купона владельца user
	RedeemCoupon(ctx context.Context, id uuid.UUID, user string, orderID uuid.UUID, at time.Time) (bool, error)
}

type FlashSaleStorage interface {
	GetFlashSale(ctx context.Context) (model.FlashSaleConfig, error)
	SaveFlashSale(ctx context.Context, cfg model.FlashSaleConfig) error
}

// Кэш счета для отображения, не используется при изменениях
type CacheStorage interface {
	GetAccount(ctx context.Context, user string) (model.LoyaltyAccount, error)
	SetAccount(ctx context.Context, account model.LoyaltyAccount) error
	InvalidateAccount(ctx context.Context, user string) error
}

// Публикация события завершения заказа
type EventPublisher interface {
	PublishCompleted(ctx context.Context, evt model.OrderCompletedEvent) error
}

type CompletionConsumer interface {
	HandleCompleted(ctx context.Context, evt model.OrderCompletedEvent) error
}

type Limiter interface {
	Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (model.RateDecision, error)
	Reset(ctx context.Context, key string) error
}

// Каталог - внешний сервис
type Catalog interface {
	Price(ctx context.Context, itemID string, variantID string) (decimal.Decimal, error)
}

type Clock interface {
	Now() time.Time
}
