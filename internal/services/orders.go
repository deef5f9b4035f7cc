package rewards

import (
	"context"
	"errors"
	"fmt"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("rewards")

// Жизненный цикл заказа: PENDING -> SUBMITTED -> COMPLETED, отмена из PENDING и SUBMITTED
type OrderService struct {
	logger *zap.Logger
	db     interf.OrderStorage
	events interf.EventPublisher
	clock  interf.Clock
}

func NewOrderService(logger *zap.Logger, db interf.OrderStorage, events interf.EventPublisher, clock interf.Clock) *OrderService {
	return &OrderService{logger, db, events, clock}
}

func (s *OrderService) Create(ctx context.Context, in model.NewOrder) (model.Order, error) {
	if in.BuyerID == "" || in.ItemID == "" {
		return model.Order{}, fmt.Errorf("invalid order: buyer and item are required")
	}
	now := s.clock.Now()
	order := model.Order{
		ID:              uuid.New(),
		BuyerID:         in.BuyerID,
		ItemID:          in.ItemID,
		VariantID:       in.VariantID,
		Status:          model.OrderPending,
		Total:           in.Total,
		CouponID:        in.CouponID,
		ActivationInput: in.ActivationInput,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.CreateOrder(ctx, order); err != nil {
		return model.Order{}, err
	}
	orderTransitions.WithLabelValues(string(model.OrderPending)).Inc()
	return order, nil
}

// Подтверждение оплаты
func (s *OrderService) SubmitPayment(ctx context.Context, id uuid.UUID, proof string) (model.Order, error) {
	order, _, err := s.transition(ctx, id, model.OrderSubmitted, func(o *model.Order) {
		o.PaymentProof = proof
	})
	return order, err
}

// Выдача заказа. Повторный вызов для выданного заказа не меняет его, но снова публикует событие:
// получатели события проверяют ID заказа
func (s *OrderService) Complete(ctx context.Context, id uuid.UUID, payload model.Fulfillment) (model.Order, error) {
	ctx, span := tracer.Start(ctx, "order.complete")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id.String()))

	order, changed, err := s.transition(ctx, id, model.OrderCompleted, func(o *model.Order) {
		o.Fulfillment = &payload
	})
	if err != nil {
		return model.Order{}, err
	}
	if !changed {
		s.logger.Info("order already completed, republishing event", zap.String("order", id.String()))
	}
	evt := model.OrderCompletedEvent{
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		Total:       order.Total,
		CompletedAt: order.UpdatedAt,
	}
	if err := s.events.PublishCompleted(ctx, evt); err != nil {
		s.logger.Error("publish completed",
			zap.String("order", id.String()),
			zap.Error(err),
		)
		return order, fmt.Errorf("order %s completed, event not delivered: %w", id, err)
	}
	return order, nil
}

func (s *OrderService) Cancel(ctx context.Context, id uuid.UUID, reason string) (model.Order, error) {
	order, _, err := s.transition(ctx, id, model.OrderCancelled, func(o *model.Order) {
		o.CancelReason = reason
	})
	return order, err
}

func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (model.Order, error) {
	return s.db.GetOrder(ctx, id)
}

func (s *OrderService) ListByBuyer(ctx context.Context, buyer string) ([]model.Order, error) {
	return s.db.ListOrders(ctx, buyer)
}

// переход статуса с compare-and-swap по версии. changed=false - заказ уже выдан
func (s *OrderService) transition(ctx context.Context, id uuid.UUID, to model.OrderStatus, mutate func(*model.Order)) (model.Order, bool, error) {
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		order, err := s.db.GetOrder(ctx, id)
		if err != nil {
			return model.Order{}, false, err
		}
		if to == model.OrderCompleted && order.Status == model.OrderCompleted {
			return order, false, nil
		}
		if !order.Status.CanTransition(to) {
			return model.Order{}, false, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, order.Status, to)
		}
		next := order
		mutate(&next)
		next.Status = to
		next.UpdatedAt = s.clock.Now()

		updated, err := s.db.UpdateOrder(ctx, next)
		if errors.Is(err, model.ErrConflict) {
			continue
		}
		if err != nil {
			return model.Order{}, false, err
		}
		orderTransitions.WithLabelValues(string(to)).Inc()
		s.logger.Info("order status",
			zap.String("order", id.String()),
			zap.String("from", string(order.Status)),
			zap.String("to", string(to)),
		)
		return updated, true, nil
	}
	return model.Order{}, false, fmt.Errorf("order %s: %w after %d attempts", id, model.ErrConflict, maxCommitAttempts)
}
