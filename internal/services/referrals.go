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

const maxCodeAttempts = 5

// Реферальная программа: рефереру платим после первой покупки приглашенного,
// приглашенному - при регистрации
type ReferralService struct {
	logger *zap.Logger
	db     interf.ReferralStorage
	ledger *LoyaltyService
	clock  interf.Clock
}

func NewReferralService(logger *zap.Logger, db interf.ReferralStorage, ledger *LoyaltyService, clock interf.Clock) *ReferralService {
	return &ReferralService{logger, db, ledger, clock}
}

// Код пользователя, создается при первом обращении
func (s *ReferralService) IssueCode(ctx context.Context, user string) (model.ReferralCode, error) {
	code, err := s.db.GetCodeByUser(ctx, user)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.ReferralCode{}, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		value, err := randomCode(model.ReferralCodePrefix)
		if err != nil {
			return model.ReferralCode{}, err
		}
		if _, err := s.db.GetCode(ctx, value); err == nil {
			continue
		} else if !errors.Is(err, model.ErrNotFound) {
			return model.ReferralCode{}, err
		}

		code = model.ReferralCode{UserID: user, Code: value, CreatedAt: s.clock.Now()}
		err = s.db.CreateCode(ctx, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, model.ErrDuplicate) {
			return model.ReferralCode{}, err
		}
		// параллельный запрос мог создать код этому же пользователю
		if existing, err := s.db.GetCodeByUser(ctx, user); err == nil {
			return existing, nil
		}
	}
	return model.ReferralCode{}, fmt.Errorf("referral code for %s: %w after %d attempts", user, model.ErrDuplicate, maxCodeAttempts)
}

// Применение кода новым пользователем. Баллы здесь не начисляются
func (s *ReferralService) Apply(ctx context.Context, newUser string, code string) (model.ReferralResult, error) {
	rc, err := s.db.GetCode(ctx, NormalizeCode(code))
	if errors.Is(err, model.ErrNotFound) {
		return model.ReferralResult{}, fmt.Errorf("%w: %s", model.ErrInvalidCode, code)
	}
	if err != nil {
		return model.ReferralResult{}, err
	}
	if rc.UserID == newUser {
		return model.ReferralResult{}, model.ErrSelfReferral
	}
	if _, err := s.db.GetReferralByReferred(ctx, newUser); err == nil {
		return model.ReferralResult{}, model.ErrAlreadyReferred
	} else if !errors.Is(err, model.ErrNotFound) {
		return model.ReferralResult{}, err
	}

	ref := model.Referral{
		ID:         uuid.New(),
		ReferrerID: rc.UserID,
		ReferredID: newUser,
		Code:       rc.Code,
		Status:     model.ReferralPending,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.db.CreateReferral(ctx, ref); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			return model.ReferralResult{}, model.ErrAlreadyReferred
		}
		return model.ReferralResult{}, err
	}
	s.logger.Info("referral applied",
		zap.String("referrer", rc.UserID),
		zap.String("user", newUser),
	)
	return model.ReferralResult{ReferralID: ref.ID, ReferrerID: rc.UserID, BonusPoints: model.ReferredBonus}, nil
}

// Бонус приглашенному при регистрации, повтор ничего не меняет
func (s *ReferralService) CreditSignupBonus(ctx context.Context, res model.ReferralResult, newUser string) (model.LoyaltyAccount, error) {
	return s.ledger.Credit(ctx, newUser, res.BonusPoints, model.TnxBonus, "referral signup bonus", res.ReferralID.String())
}

// Завершение реферала после первой покупки приглашенного.
// true - рефереру начислено в этом вызове
func (s *ReferralService) CompleteOnFirstPurchase(ctx context.Context, referredUser string) (bool, error) {
	ref, err := s.db.GetReferralByReferred(ctx, referredUser)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	switch {
	case ref.Status == model.ReferralPending:
		ok, err := s.db.CompleteReferral(ctx, ref.ID, s.clock.Now())
		if err != nil {
			return false, err
		}
		if !ok {
			// другой обработчик успел раньше
			return false, nil
		}
		referralsCompleted.Inc()
	case ref.RewardGiven:
		return false, nil
	}

	// completed без отметки о выплате - прошлый вызов упал после смены статуса
	if _, err := s.ledger.Credit(ctx, ref.ReferrerID, model.ReferrerReward, model.TnxReferral,
		"referral "+referredUser, ref.ID.String()); err != nil {
		return false, err
	}
	if err := s.db.MarkRewardGiven(ctx, ref.ID); err != nil {
		return false, err
	}
	s.logger.Info("referral completed",
		zap.String("referrer", ref.ReferrerID),
		zap.String("user", referredUser),
	)
	return true, nil
}

func (s *ReferralService) Stats(ctx context.Context, user string) (model.ReferralStats, error) {
	code, err := s.IssueCode(ctx, user)
	if err != nil {
		return model.ReferralStats{}, err
	}
	refs, err := s.db.ListReferrals(ctx, user)
	if err != nil {
		return model.ReferralStats{}, err
	}
	stats := model.ReferralStats{Code: code.Code, Total: len(refs)}
	for _, r := range refs {
		if r.Status == model.ReferralCompleted {
			stats.Completed++
		} else {
			stats.Pending++
		}
		if r.RewardGiven {
			stats.PointsEarned += model.ReferrerReward
		}
	}
	return stats, nil
}
