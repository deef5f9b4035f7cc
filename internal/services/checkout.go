package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultSubmitAttempts = 5
	DefaultSubmitWindow   = time.Minute
)

// Оформление заказа: цена из каталога, распродажа, скидка уровня, купон
type CheckoutService struct {
	logger   *zap.Logger
	catalog  interf.Catalog
	flash    *FlashSaleResolver
	ledger   *LoyaltyService
	coupons  *CouponService
	orders   *OrderService
	limiter  interf.Limiter
	attempts int
	window   time.Duration
}

func NewCheckoutService(logger *zap.Logger, catalog interf.Catalog, flash *FlashSaleResolver, ledger *LoyaltyService,
	coupons *CouponService, orders *OrderService, limiter interf.Limiter, attempts int, window time.Duration) *CheckoutService {
	if attempts <= 0 {
		attempts = DefaultSubmitAttempts
	}
	if window <= 0 {
		window = DefaultSubmitWindow
	}
	return &CheckoutService{logger, catalog, flash, ledger, coupons, orders, limiter, attempts, window}
}

// Расчет стоимости без создания заказа
func (s *CheckoutService) Quote(ctx context.Context, req model.CheckoutRequest) (model.Quote, error) {
	price, err := s.catalog.Price(ctx, req.ItemID, req.VariantID)
	if err != nil {
		return model.Quote{}, fmt.Errorf("catalog price %s: %w", req.ItemID, err)
	}
	q := model.Quote{ItemID: req.ItemID, VariantID: req.VariantID, BasePrice: price}

	q.FlashSale, err = s.flash.Resolve(ctx, req.ItemID, price)
	if err != nil {
		return model.Quote{}, err
	}
	total := q.FlashSale.Price

	benefits, err := s.ledger.Benefits(ctx, req.BuyerID)
	if err != nil {
		return model.Quote{}, err
	}
	q.Tier = benefits.Tier
	q.TierDiscount = benefits.Discount(total)
	total = total.Sub(q.TierDiscount)

	q.CouponDiscount = decimal.Zero
	if req.CouponCode != "" {
		check, err := s.coupons.Validate(ctx, req.BuyerID, req.CouponCode)
		if err != nil {
			return model.Quote{}, err
		}
		q.Coupon = &check
		q.CouponDiscount = decimal.Min(check.Discount, total)
		total = total.Sub(q.CouponDiscount)
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	q.Total = total
	return q, nil
}

// Создание заказа по расчету. Если купон использовать не удалось, заказ отменяется
func (s *CheckoutService) Checkout(ctx context.Context, req model.CheckoutRequest) (model.Order, model.Quote, error) {
	key := "order-submit:" + req.BuyerID
	decision, err := s.limiter.Check(ctx, key, s.attempts, s.window)
	if err != nil {
		return model.Order{}, model.Quote{}, err
	}
	if decision.Limited {
		rateLimited.WithLabelValues("order-submit").Inc()
		return model.Order{}, model.Quote{}, fmt.Errorf("%w: retry in %s", model.ErrRateLimited, decision.ResetIn.Round(time.Second))
	}

	q, err := s.Quote(ctx, req)
	if err != nil {
		return model.Order{}, model.Quote{}, err
	}
	in := model.NewOrder{
		BuyerID:         req.BuyerID,
		ItemID:          req.ItemID,
		VariantID:       req.VariantID,
		ActivationInput: req.ActivationInput,
		Total:           q.Total,
	}
	if q.Coupon != nil {
		in.CouponID = uuid.NullUUID{UUID: q.Coupon.CouponID, Valid: true}
	}
	order, err := s.orders.Create(ctx, in)
	if err != nil {
		return model.Order{}, model.Quote{}, err
	}
	if q.Coupon == nil {
		return order, q, nil
	}

	if err := s.coupons.Redeem(ctx, req.BuyerID, q.Coupon.CouponID, order.ID); err != nil {
		s.logger.Warn("coupon redeem failed, cancelling order",
			zap.String("order", order.ID.String()),
			zap.String("coupon", q.Coupon.Code),
			zap.Error(err),
		)
		if _, cerr := s.orders.Cancel(ctx, order.ID, "coupon: "+err.Error()); cerr != nil {
			return model.Order{}, model.Quote{}, errors.Join(err, cerr)
		}
		return model.Order{}, model.Quote{}, err
	}
	return order, q, nil
}
