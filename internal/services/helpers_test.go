package rewards

import (
	"sync"
	"testing"
	"time"

	db "github.com/glkeru/loyalty/rewards/internal/db"
	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	store      *db.MemoryStore
	clock      *fakeClock
	loyalty    *LoyaltyService
	referrals  *ReferralService
	coupons    *CouponService
	orders     *OrderService
	completion *CompletionHandler
}

// сервисы над хранилищем в памяти; events == nil - доставка в процессе
func newTestEnv(t *testing.T, events interf.EventPublisher) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	e := &testEnv{store: db.NewMemoryStore(), clock: newFakeClock()}
	e.loyalty = NewLoyaltyService(logger, e.store, nil, e.clock)
	e.referrals = NewReferralService(logger, e.store, e.loyalty, e.clock)
	e.coupons = NewCouponService(logger, e.store, e.loyalty, e.clock)
	e.completion = NewCompletionHandler(logger, e.loyalty, e.referrals)
	if events == nil {
		events = NewDispatcher(e.completion)
	}
	e.orders = NewOrderService(logger, e.store, events, e.clock)
	return e
}
