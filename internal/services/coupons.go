package rewards

import (
	"context"
	"errors"
	"fmt"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ID купона выводится из пользователя и ID запроса: повтор запроса находит тот же купон
var couponNamespace = uuid.MustParse("3f1d7c52-8a0e-4d8b-9a51-6c2f0b7e4d19")

// Купоны за баллы
type CouponService struct {
	logger *zap.Logger
	db     interf.CouponStorage
	ledger *LoyaltyService
	clock  interf.Clock
}

func NewCouponService(logger *zap.Logger, db interf.CouponStorage, ledger *LoyaltyService, clock interf.Clock) *CouponService {
	return &CouponService{logger, db, ledger, clock}
}

// Выпуск купона: сначала списание, потом сохранение купона.
// requestID - ключ идемпотентности, пустой - новый запрос.
// Если купон сохранить не удалось - списание сторнируется
func (s *CouponService) Mint(ctx context.Context, user string, requestID string) (model.Coupon, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	id := uuid.NewSHA1(couponNamespace, []byte(user+"/"+requestID))
	if existing, err := s.db.GetCoupon(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.Coupon{}, err
	}

	now := s.clock.Now()
	coupon := model.Coupon{
		ID:          id,
		UserID:      user,
		Value:       model.CouponValue,
		PointsSpent: model.CouponCost,
		ExpiresAt:   now.AddDate(0, model.CouponValidMonths, 0),
		CreatedAt:   now,
	}

	tnx, _, err := s.ledger.Redeem(ctx, user, model.CouponCost, "coupon", requestID)
	if err != nil {
		return model.Coupon{}, err
	}
	if tnx.Reversed {
		// прошлая попытка с этим ID откатилась
		return model.Coupon{}, fmt.Errorf("coupon request %s: %w", requestID, model.ErrRequestRolledBack)
	}

	coupon, err = s.persist(ctx, coupon)
	if err != nil {
		s.logger.Error("coupon not saved, reversing debit",
			zap.String("user", user),
			zap.String("tnx", tnx.ID.String()),
			zap.Error(err),
		)
		if _, rerr := s.ledger.Reverse(ctx, user, tnx.ID); rerr != nil {
			s.logger.Error("debit reversal failed",
				zap.String("user", user),
				zap.String("tnx", tnx.ID.String()),
				zap.Error(rerr),
			)
			return model.Coupon{}, errors.Join(err, rerr)
		}
		return model.Coupon{}, err
	}
	couponsMinted.Inc()
	return coupon, nil
}

// сохранение с новым кодом при совпадении кода.
// Купон с тем же ID мог сохранить параллельный повтор запроса
func (s *CouponService) persist(ctx context.Context, coupon model.Coupon) (model.Coupon, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode(model.CouponCodePrefix)
		if err != nil {
			return model.Coupon{}, err
		}
		coupon.Code = code
		err = s.db.CreateCoupon(ctx, coupon)
		if err == nil {
			return coupon, nil
		}
		if !errors.Is(err, model.ErrDuplicate) {
			return model.Coupon{}, err
		}
		if existing, err := s.db.GetCoupon(ctx, coupon.ID); err == nil {
			return existing, nil
		}
	}
	return model.Coupon{}, fmt.Errorf("coupon code: %w after %d attempts", model.ErrDuplicate, maxCodeAttempts)
}

// Проверка купона покупателя без использования. Чужой купон не отличается от несуществующего
func (s *CouponService) Validate(ctx context.Context, user string, code string) (model.CouponCheck, error) {
	code = NormalizeCode(code)
	coupon, err := s.db.GetCouponByCode(ctx, code)
	if errors.Is(err, model.ErrNotFound) || (err == nil && coupon.UserID != user) {
		return model.CouponCheck{}, fmt.Errorf("%w: %s", model.ErrInvalidOrExpiredCoupon, code)
	}
	if err != nil {
		return model.CouponCheck{}, err
	}
	if coupon.Used {
		return model.CouponCheck{}, fmt.Errorf("%w: %s", model.ErrCouponAlreadyUsed, code)
	}
	if coupon.Expired(s.clock.Now()) {
		return model.CouponCheck{}, fmt.Errorf("%w: %s", model.ErrCouponExpired, code)
	}
	return model.CouponCheck{CouponID: coupon.ID, Code: coupon.Code, Discount: coupon.Value}, nil
}

// Использование купона владельцем в заказе, один раз
func (s *CouponService) Redeem(ctx context.Context, user string, couponID uuid.UUID, orderID uuid.UUID) error {
	ok, err := s.db.RedeemCoupon(ctx, couponID, user, orderID, s.clock.Now())
	if err != nil {
		return err
	}
	if ok {
		couponsRedeemed.Inc()
		return nil
	}
	coupon, err := s.db.GetCoupon(ctx, couponID)
	if errors.Is(err, model.ErrNotFound) || (err == nil && coupon.UserID != user) {
		return fmt.Errorf("%w: %s", model.ErrInvalidOrExpiredCoupon, couponID)
	}
	if err != nil {
		return err
	}
	if coupon.Used {
		return fmt.Errorf("%w: %s", model.ErrCouponAlreadyUsed, coupon.Code)
	}
	return fmt.Errorf("%w: %s", model.ErrCouponExpired, coupon.Code)
}

func (s *CouponService) List(ctx context.Context, user string) ([]model.Coupon, error) {
	return s.db.ListCoupons(ctx, user)
}
