package rewards

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"   // создан, ждет подтверждения оплаты
	OrderSubmitted OrderStatus = "SUBMITTED" // подтверждение оплаты приложено
	OrderCompleted OrderStatus = "COMPLETED" // выдан
	OrderCancelled OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderSubmitted, OrderCancelled},
	OrderSubmitted: {OrderCompleted, OrderCancelled},
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, v := range orderTransitions[s] {
		if v == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Данные выдачи, состав зависит от типа доставки
type Fulfillment struct {
	DeliveryType string `json:"delivery_type"` // credentials, key, activation
	Login        string `json:"login,omitempty"`
	Password     string `json:"password,omitempty"`
	Key          string `json:"key,omitempty"`
	Note         string `json:"note,omitempty"`
}

// Заказ
type Order struct {
	ID              uuid.UUID       `json:"id"`
	BuyerID         string          `json:"buyer_id"`
	ItemID          string          `json:"item_id"`
	VariantID       string          `json:"variant_id,omitempty"`
	Status          OrderStatus     `json:"status"`
	Total           decimal.Decimal `json:"total"`
	CouponID        uuid.NullUUID   `json:"coupon_id"`
	ActivationInput string          `json:"activation_input,omitempty"`
	PaymentProof    string          `json:"payment_proof,omitempty"`
	Fulfillment     *Fulfillment    `json:"fulfillment,omitempty"`
	CancelReason    string          `json:"cancel_reason,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type NewOrder struct {
	BuyerID         string
	ItemID          string
	VariantID       string
	ActivationInput string
	Total           decimal.Decimal
	CouponID        uuid.NullUUID
}

// Событие завершения заказа
type OrderCompletedEvent struct {
	OrderID     uuid.UUID       `json:"orderId"`
	BuyerID     string          `json:"userId"`
	Total       decimal.Decimal `json:"total"`
	CompletedAt time.Time       `json:"completedAt"`
}

// Событие возврата
type OrderReturned struct {
	OrderID uuid.UUID `json:"orderId"`
	BuyerID string    `json:"userId"`
}

// Запрос на оформление заказа
type CheckoutRequest struct {
	BuyerID         string `json:"buyer_id"`
	ItemID          string `json:"item_id"`
	VariantID       string `json:"variant_id,omitempty"`
	ActivationInput string `json:"activation_input,omitempty"`
	CouponCode      string `json:"coupon_code,omitempty"`
}
