package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCommitAttempts = 5

type LoyaltyService struct {
	logger *zap.Logger
	db     interf.LedgerStorage
	cache  interf.CacheStorage
	clock  interf.Clock
}

func NewLoyaltyService(logger *zap.Logger, db interf.LedgerStorage, cache interf.CacheStorage, clock interf.Clock) *LoyaltyService {
	return &LoyaltyService{logger, db, cache, clock}
}

// операция над журналом: по текущему счету и журналу возвращает изменение, nil - ничего не делать
type ledgerOp func(acc model.LoyaltyAccount, log []model.PointTransaction) (*model.LedgerChange, error)

// Начисление баллов
func (p *LoyaltyService) Earn(ctx context.Context, userId string, points int64, reason string, orderId string) (model.LoyaltyAccount, error) {
	return p.Credit(ctx, userId, points, model.TnxEarned, reason, orderId)
}

// Начисление с указанным типом (earned, bonus, referral). Повтор с тем же ref ничего не меняет
func (p *LoyaltyService) Credit(ctx context.Context, userId string, points int64, typ model.TnxType, reason string, ref string) (model.LoyaltyAccount, error) {
	if points <= 0 {
		return model.LoyaltyAccount{}, model.ErrInvalidPoints
	}
	acc, _, err := p.appendTnx(ctx, userId, ref, typ, func(model.LoyaltyAccount) (model.PointTransaction, error) {
		return p.newTnx(userId, points, typ, reason, ref), nil
	})
	return acc, err
}

// Списание баллов. Возвращает транзакцию списания, она нужна для компенсации
func (p *LoyaltyService) Redeem(ctx context.Context, userId string, points int64, reason string, ref string) (model.PointTransaction, model.LoyaltyAccount, error) {
	if points <= 0 {
		return model.PointTransaction{}, model.LoyaltyAccount{}, model.ErrInvalidPoints
	}
	acc, tnx, err := p.appendTnx(ctx, userId, ref, model.TnxRedeemed, func(current model.LoyaltyAccount) (model.PointTransaction, error) {
		if points > current.Total {
			return model.PointTransaction{}, fmt.Errorf("%w: need %d, have %d", model.ErrInsufficientPoints, points, current.Total)
		}
		return p.newTnx(userId, -points, model.TnxRedeemed, reason, ref), nil
	})
	return tnx, acc, err
}

// Начисление по завершенному заказу: 1 балл за целую единицу суммы с множителем текущего уровня.
// Множитель берется до начисления, новый уровень действует со следующего заказа
func (p *LoyaltyService) AccrueOrder(ctx context.Context, evt model.OrderCompletedEvent) (int64, error) {
	base := evt.Total.Floor().IntPart()
	if base <= 0 {
		return 0, nil
	}
	ref := evt.OrderID.String()
	_, tnx, err := p.appendTnx(ctx, evt.BuyerID, ref, model.TnxEarned, func(current model.LoyaltyAccount) (model.PointTransaction, error) {
		earned := model.BenefitsFor(current.Tier).Earn(base)
		return p.newTnx(evt.BuyerID, earned, model.TnxEarned, "order "+ref, ref), nil
	})
	if err != nil {
		return 0, err
	}
	return tnx.Points, nil
}

// Сторно транзакции
func (p *LoyaltyService) Reverse(ctx context.Context, userId string, tnxId uuid.UUID) (model.LoyaltyAccount, error) {
	return p.commit(ctx, userId, func(acc model.LoyaltyAccount, log []model.PointTransaction) (*model.LedgerChange, error) {
		for _, t := range log {
			if t.ID != tnxId {
				continue
			}
			if t.Reversed {
				return nil, nil
			}
			if acc.Total-t.Points < 0 {
				return nil, fmt.Errorf("%w: reversal of %s leaves negative balance", model.ErrInsufficientPoints, tnxId)
			}
			return &model.LedgerChange{Reverse: []uuid.UUID{tnxId}}, nil
		}
		return nil, fmt.Errorf("transaction %s %w", tnxId, model.ErrNotFound)
	})
}

// Возврат заказа: сторно начисления по заказу
func (p *LoyaltyService) ReverseOrder(ctx context.Context, userId string, orderId string) (model.LoyaltyAccount, error) {
	return p.commit(ctx, userId, func(acc model.LoyaltyAccount, log []model.PointTransaction) (*model.LedgerChange, error) {
		t, ok := model.FindRef(log, orderId, model.TnxEarned)
		if !ok || t.Reversed {
			return nil, nil
		}
		if acc.Total-t.Points < 0 {
			return nil, fmt.Errorf("%w: points of order %s already spent", model.ErrInsufficientPoints, orderId)
		}
		return &model.LedgerChange{Reverse: []uuid.UUID{t.ID}}, nil
	})
}

func (p *LoyaltyService) newTnx(userId string, points int64, typ model.TnxType, reason string, ref string) model.PointTransaction {
	return model.PointTransaction{
		ID:        uuid.New(),
		UserID:    userId,
		Points:    points,
		Type:      typ,
		Reason:    reason,
		Ref:       ref,
		CreatedAt: p.clock.Now(),
	}
}

// добавление транзакции, повтор с тем же ref и типом возвращает существующую
func (p *LoyaltyService) appendTnx(ctx context.Context, userId string, ref string, typ model.TnxType, build func(model.LoyaltyAccount) (model.PointTransaction, error)) (model.LoyaltyAccount, model.PointTransaction, error) {
	var result model.PointTransaction
	acc, err := p.commit(ctx, userId, func(acc model.LoyaltyAccount, log []model.PointTransaction) (*model.LedgerChange, error) {
		if existing, ok := model.FindRef(log, ref, typ); ok {
			result = existing
			return nil, nil
		}
		tnx, err := build(acc)
		if err != nil {
			return nil, err
		}
		result = tnx
		return &model.LedgerChange{Append: &tnx}, nil
	})
	if err != nil {
		return model.LoyaltyAccount{}, model.PointTransaction{}, err
	}
	return acc, result, nil
}

// чтение журнала, расчет и запись с проверкой версии; при конфликте повтор
func (p *LoyaltyService) commit(ctx context.Context, userId string, op ledgerOp) (model.LoyaltyAccount, error) {
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		version, log, err := p.db.LoadLedger(ctx, userId)
		if err != nil {
			return model.LoyaltyAccount{}, err
		}
		current := model.Fold(userId, log)
		current.Version = version

		change, err := op(current, log)
		if err != nil {
			return model.LoyaltyAccount{}, err
		}
		if change == nil {
			return current, nil
		}
		change.UserID = userId
		change.ExpectedVersion = version
		change.Account = model.Fold(userId, change.Apply(log))
		change.Account.Version = version + 1

		err = p.db.CommitLedger(ctx, *change)
		switch {
		case err == nil:
			if t := change.Append; t != nil {
				points := t.Points
				if points < 0 {
					points = -points
				}
				pointsCommitted.WithLabelValues(string(t.Type)).Add(float64(points))
			}
			if change.Account.Tier != current.Tier {
				p.logger.Info("tier changed",
					zap.String("user", userId),
					zap.String("from", string(current.Tier)),
					zap.String("to", string(change.Account.Tier)),
				)
			}
			p.InvalidateBalance(ctx, userId)
			return change.Account, nil
		case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrDuplicate):
			// перечитываем журнал: дубль найдется по Ref
			ledgerConflicts.Inc()
			continue
		default:
			return model.LoyaltyAccount{}, err
		}
	}
	return model.LoyaltyAccount{}, fmt.Errorf("ledger of %s: %w after %d attempts", userId, model.ErrConflict, maxCommitAttempts)
}

// Счет по журналу
func (p *LoyaltyService) Account(ctx context.Context, userId string) (model.LoyaltyAccount, error) {
	version, log, err := p.db.LoadLedger(ctx, userId)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	acc := model.Fold(userId, log)
	acc.Version = version
	return acc, nil
}

// Баланс для отображения: кэш, при промахе - журнал
func (p *LoyaltyService) Balance(ctx context.Context, userId string) (model.LoyaltyAccount, error) {
	if p.cache != nil {
		acc, err := p.cache.GetAccount(ctx, userId)
		if err == nil {
			return acc, nil
		}
	}
	acc, err := p.Account(ctx, userId)
	if err != nil {
		return model.LoyaltyAccount{}, err
	}
	if p.cache != nil {
		if err := p.cache.SetAccount(ctx, acc); err != nil {
			p.logger.Warn("cache set", zap.String("user", userId), zap.Error(err))
		}
	}
	return acc, nil
}

// инвалидировать кэш баланса
func (p *LoyaltyService) InvalidateBalance(ctx context.Context, userId string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.InvalidateAccount(ctx, userId); err != nil {
		p.logger.Error("cache invalidate", zap.String("user", userId), zap.Error(err))
	}
}

// Привилегии текущего уровня
func (p *LoyaltyService) Benefits(ctx context.Context, userId string) (model.TierBenefits, error) {
	acc, err := p.Account(ctx, userId)
	if err != nil {
		return model.TierBenefits{}, err
	}
	return model.BenefitsFor(acc.Tier), nil
}

// транзакции
func (p *LoyaltyService) History(ctx context.Context, userId string, from time.Time, to time.Time) ([]model.PointTransaction, error) {
	return p.db.GetTnx(ctx, userId, from, to)
}
