package rewards

import (
	"context"
	"errors"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Обработка завершения заказа: начисление баллов и завершение реферала
type CompletionHandler struct {
	logger    *zap.Logger
	ledger    *LoyaltyService
	referrals *ReferralService
}

func NewCompletionHandler(logger *zap.Logger, ledger *LoyaltyService, referrals *ReferralService) *CompletionHandler {
	return &CompletionHandler{logger, ledger, referrals}
}

func (h *CompletionHandler) HandleCompleted(ctx context.Context, evt model.OrderCompletedEvent) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		points, err := h.ledger.AccrueOrder(gctx, evt)
		if err != nil {
			return err
		}
		h.logger.Info("order accrual",
			zap.String("order", evt.OrderID.String()),
			zap.String("user", evt.BuyerID),
			zap.Int64("points", points),
		)
		return nil
	})
	g.Go(func() error {
		_, err := h.referrals.CompleteOnFirstPurchase(gctx, evt.BuyerID)
		return err
	})
	return g.Wait()
}

// Dispatcher - синхронная доставка события в процессе, без брокера
type Dispatcher struct {
	consumers []interf.CompletionConsumer
}

func NewDispatcher(consumers ...interf.CompletionConsumer) *Dispatcher {
	return &Dispatcher{consumers}
}

func (d *Dispatcher) PublishCompleted(ctx context.Context, evt model.OrderCompletedEvent) error {
	var errs []error
	for _, c := range d.consumers {
		if err := c.HandleCompleted(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
