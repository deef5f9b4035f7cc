package rewards

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	db "github.com/glkeru/loyalty/rewards/internal/db"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	services "github.com/glkeru/loyalty/rewards/internal/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type priceList map[string]decimal.Decimal

func (p priceList) Price(_ context.Context, itemID string, _ string) (decimal.Decimal, error) {
	price, ok := p[itemID]
	if !ok {
		return decimal.Zero, model.ErrNotFound
	}
	return price, nil
}

func newTestHandler(t *testing.T) *RewardsHandler {
	t.Helper()
	logger := zap.NewNop()
	store := db.NewMemoryStore()
	clock := services.SystemClock{}
	catalog := priceList{
		"game-1":    decimal.NewFromInt(1000),
		"sticker":   decimal.NewFromInt(50),
		"gift-card": decimal.NewFromInt(5000),
	}

	loyalty := services.NewLoyaltyService(logger, store, nil, clock)
	referrals := services.NewReferralService(logger, store, loyalty, clock)
	coupons := services.NewCouponService(logger, store, loyalty, clock)
	orders := services.NewOrderService(logger, store, services.NewDispatcher(services.NewCompletionHandler(logger, loyalty, referrals)), clock)
	flash := services.NewFlashSaleResolver(logger, store, clock, time.Second)
	limiter := services.NewRateLimiter(clock, 0)
	checkout := services.NewCheckoutService(logger, catalog, flash, loyalty, coupons, orders, limiter, 2, time.Minute)

	return NewHandler(Services{
		Orders:    orders,
		Loyalty:   loyalty,
		Referrals: referrals,
		Coupons:   coupons,
		FlashSale: flash,
		Checkout:  checkout,
	}, logger)
}

func do(t *testing.T, h http.Handler, method string, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code < http.StatusBadRequest {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestOrderFlow(t *testing.T) {
	h := newTestHandler(t)

	end := time.Now().Add(time.Hour)
	sale := model.FlashSaleConfig{
		Enabled:  true,
		Products: []model.FlashSaleProduct{{ProductID: "game-1", DiscountAmount: decimal.NewFromInt(200)}},
		EndTime:  &end,
	}
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/flash-sale", sale, nil))

	var quote model.Quote
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/checkout/quote", model.CheckoutRequest{BuyerID: "b", ItemID: "game-1"}, &quote))
	require.True(t, quote.FlashSale.Active)
	require.True(t, quote.Total.Equal(decimal.NewFromInt(800)))

	var created CheckoutResponse
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/checkout", model.CheckoutRequest{BuyerID: "b", ItemID: "game-1"}, &created))
	require.Equal(t, model.OrderPending, created.Order.Status)
	id := created.Order.ID.String()

	// выдача до оплаты
	require.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/orders/"+id+"/complete", model.Fulfillment{DeliveryType: "key"}, nil))

	var order model.Order
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/orders/"+id+"/payment", PaymentRequest{Proof: "receipt.png"}, &order))
	require.Equal(t, model.OrderSubmitted, order.Status)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/orders/"+id+"/complete", model.Fulfillment{DeliveryType: "key", Key: "AAAA-BBBB"}, &order))
	require.Equal(t, model.OrderCompleted, order.Status)
	require.Equal(t, "AAAA-BBBB", order.Fulfillment.Key)

	var acc AccountResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/users/b/account", nil, &acc))
	require.Equal(t, int64(800), acc.Total)
	require.Equal(t, model.Silver, acc.Tier)
	require.Equal(t, model.Gold, acc.NextTier)
	require.Equal(t, int64(700), acc.PointsToNext)

	var orders []model.Order
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/users/b/orders", nil, &orders))
	require.Len(t, orders, 1)

	day := time.Now().UTC().Format(time.DateOnly)
	var tnxs []model.PointTransaction
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/users/b/history?from="+day+"&to="+day, nil, &tnxs))
	require.Len(t, tnxs, 1)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/users/b/history?from=yesterday&to="+day, nil, nil))
}

func TestCheckoutErrors(t *testing.T) {
	h := newTestHandler(t)

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/checkout/quote", model.CheckoutRequest{BuyerID: "b", ItemID: "missing"}, nil))
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/checkout/quote", model.CheckoutRequest{BuyerID: "b", ItemID: "sticker", CouponCode: "SAVE100-NOPE00"}, nil))

	req := model.CheckoutRequest{BuyerID: "b", ItemID: "sticker"}
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/checkout", req, nil))
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/checkout", req, nil))
	require.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/checkout", req, nil))

	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/orders/"+uuid.NewString(), nil, nil))
	require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/orders/not-an-id", nil, nil))

	r := httptest.NewRequest(http.MethodPost, "/checkout", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReferralAndCoupons(t *testing.T) {
	h := newTestHandler(t)

	var stats model.ReferralStats
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/users/alice/referral", nil, &stats))
	require.Regexp(t, `^REF[A-Z0-9]{6}$`, stats.Code)

	var res model.ReferralResult
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/referrals/apply", ApplyRequest{UserID: "carol", Code: stats.Code}, &res))
	require.Equal(t, "alice", res.ReferrerID)
	require.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/referrals/apply", ApplyRequest{UserID: "carol", Code: stats.Code}, nil))
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/referrals/apply", ApplyRequest{UserID: "alice", Code: stats.Code}, nil))
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/referrals/apply", ApplyRequest{UserID: "dave", Code: "REF000000"}, nil))

	var acc AccountResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/users/carol/account", nil, &acc))
	require.Equal(t, int64(50), acc.Total)

	// 50 баллов на купон не хватает
	require.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/users/carol/coupons", nil, nil))
	var coupons []model.Coupon
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/users/carol/coupons", nil, &coupons))
	require.Empty(t, coupons)

	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/users/carol/coupons/SAVE100-NOPE00", nil, nil))
}

func mintCoupon(t *testing.T, h http.Handler, user string, key string) (int, model.Coupon) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/users/"+user+"/coupons", nil)
	req.Header.Set("Idempotency-Key", key)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var coupon model.Coupon
	if rec.Code == http.StatusCreated {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &coupon))
	}
	return rec.Code, coupon
}

func TestMintRetryAndOwnership(t *testing.T) {
	h := newTestHandler(t)

	// 5000 баллов за заказ на 5000
	var created CheckoutResponse
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/checkout", model.CheckoutRequest{BuyerID: "alice", ItemID: "gift-card"}, &created))
	id := created.Order.ID.String()
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/orders/"+id+"/payment", PaymentRequest{Proof: "receipt"}, nil))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/orders/"+id+"/complete", model.Fulfillment{DeliveryType: "key"}, nil))

	code, first := mintCoupon(t, h, "alice", "req-1")
	require.Equal(t, http.StatusCreated, code)
	code, again := mintCoupon(t, h, "alice", "req-1")
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, first.Code, again.Code)

	var acc AccountResponse
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/users/alice/account", nil, &acc))
	require.Equal(t, int64(0), acc.Total)

	var check model.CouponCheck
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/users/alice/coupons/"+first.Code, nil, &check))
	require.Equal(t, first.ID, check.CouponID)
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/users/bob/coupons/"+first.Code, nil, nil))

	// чужой купон при оформлении
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/checkout", model.CheckoutRequest{BuyerID: "bob", ItemID: "sticker", CouponCode: first.Code}, nil))
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/checkout", model.CheckoutRequest{BuyerID: "alice", ItemID: "sticker", CouponCode: first.Code}, nil))
}

func TestFlashSaleAdmin(t *testing.T) {
	h := newTestHandler(t)

	var cfg model.FlashSaleConfig
	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/flash-sale", nil, &cfg))
	require.False(t, cfg.Enabled)

	// включенная распродажа без end_time
	bad := model.FlashSaleConfig{Enabled: true}
	require.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/flash-sale", bad, nil))

	draft := model.FlashSaleConfig{
		DurationHours: 1,
		Products:      []model.FlashSaleProduct{{ProductID: "sticker", DiscountAmount: decimal.NewFromInt(10)}},
	}
	require.Equal(t, http.StatusNoContent, do(t, h, http.MethodPut, "/flash-sale", draft, nil))
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/flash-sale/start", nil, &cfg))
	require.True(t, cfg.Enabled)
	require.NotNil(t, cfg.EndTime)

	var quote model.Quote
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/checkout/quote", model.CheckoutRequest{BuyerID: "b", ItemID: "sticker"}, &quote))
	require.True(t, quote.Total.Equal(decimal.NewFromInt(40)))
}
