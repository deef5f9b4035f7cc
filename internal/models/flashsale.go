package rewards

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type FlashSaleProduct struct {
	ProductID      string          `json:"productId"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// Настройки флеш-распродажи, одна на весь магазин
type FlashSaleConfig struct {
	Enabled            bool               `json:"enabled"`
	DurationHours      float64            `json:"duration_hours"`
	MinDiscountPercent float64            `json:"min_discount_percent"`
	MaxProducts        int                `json:"max_products"`
	ProductIDs         []string           `json:"product_ids"`
	Products           []FlashSaleProduct `json:"flash_sale_products"`
	EndTime            *time.Time         `json:"end_time,omitempty"`
}

// Discount - скидка на товар, если он участвует в распродаже
func (c FlashSaleConfig) Discount(itemID string) (decimal.Decimal, bool) {
	for _, p := range c.Products {
		if p.ProductID == itemID {
			return p.DiscountAmount, true
		}
	}
	return decimal.Zero, false
}

// Start включает распродажу на DurationHours от now
func (c FlashSaleConfig) Start(now time.Time) FlashSaleConfig {
	end := now.Add(time.Duration(c.DurationHours * float64(time.Hour)))
	c.Enabled = true
	c.EndTime = &end
	return c
}

func (c FlashSaleConfig) Validate() error {
	if c.DurationHours < 0 {
		return fmt.Errorf("%w: duration_hours must not be negative", ErrInvalidFlashSale)
	}
	if c.MaxProducts > 0 && len(c.Products) > c.MaxProducts {
		return fmt.Errorf("%w: %d products, max %d", ErrInvalidFlashSale, len(c.Products), c.MaxProducts)
	}
	seen := make(map[string]struct{}, len(c.Products))
	for _, p := range c.Products {
		if p.ProductID == "" {
			return fmt.Errorf("%w: productId is required", ErrInvalidFlashSale)
		}
		if p.DiscountAmount.IsNegative() {
			return fmt.Errorf("%w: negative discount for %s", ErrInvalidFlashSale, p.ProductID)
		}
		if _, ok := seen[p.ProductID]; ok {
			return fmt.Errorf("%w: duplicate product %s", ErrInvalidFlashSale, p.ProductID)
		}
		seen[p.ProductID] = struct{}{}
	}
	if c.Enabled && c.EndTime == nil {
		return fmt.Errorf("%w: end_time is required for enabled sale", ErrInvalidFlashSale)
	}
	return nil
}

// Результат расчета цены по распродаже
type FlashSaleQuote struct {
	Active        bool            `json:"active"`
	ItemID        string          `json:"item_id"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Discount      decimal.Decimal `json:"discount"`
	Price         decimal.Decimal `json:"price"`
	EndsIn        time.Duration   `json:"ends_in"`
}

// Решение ограничителя частоты
type RateDecision struct {
	Limited   bool          `json:"is_limited"`
	Remaining int           `json:"remaining_attempts"`
	ResetIn   time.Duration `json:"reset_in"`
}

// Расчет стоимости заказа
type Quote struct {
	ItemID         string          `json:"item_id"`
	VariantID      string          `json:"variant_id,omitempty"`
	BasePrice      decimal.Decimal `json:"base_price"`
	FlashSale      FlashSaleQuote  `json:"flash_sale"`
	Tier           Tier            `json:"tier"`
	TierDiscount   decimal.Decimal `json:"tier_discount"`
	Coupon         *CouponCheck    `json:"coupon,omitempty"`
	CouponDiscount decimal.Decimal `json:"coupon_discount"`
	Total          decimal.Decimal `json:"total"`
}
