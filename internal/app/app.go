// Сборка сервисов для бинарников: хранилища по конфигу, сервисы, публикация событий
package app

import (
	"context"

	"github.com/glkeru/loyalty/rewards/internal/config"
	db "github.com/glkeru/loyalty/rewards/internal/db"
	catalog "github.com/glkeru/loyalty/rewards/internal/external/catalog"
	kafka "github.com/glkeru/loyalty/rewards/internal/external/kafka"
	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	services "github.com/glkeru/loyalty/rewards/internal/services"
	"go.uber.org/zap"
)

type App struct {
	Orders     *services.OrderService
	Loyalty    *services.LoyaltyService
	Referrals  *services.ReferralService
	Coupons    *services.CouponService
	FlashSale  *services.FlashSaleResolver
	Checkout   *services.CheckoutService
	Completion *services.CompletionHandler

	closers []func()
}

// New собирает сервисы. Без REWARDS_DB_URL данные хранятся в памяти процесса,
// без Kafka событие завершения обрабатывается в процессе
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}
	clock := services.SystemClock{}

	// database
	var orders interf.OrderStorage
	var ledger interf.LedgerStorage
	var referrals interf.ReferralStorage
	var coupons interf.CouponStorage
	var flash interf.FlashSaleStorage
	memory := db.NewMemoryStore()
	orders, ledger, referrals, coupons, flash = memory, memory, memory, memory, memory

	if cfg.DatabaseURL != "" {
		if err := db.Migrate(logger, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		pg, err := db.NewRewardsDB(ctx, logger, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		orders, ledger, referrals, coupons = pg, pg, pg, pg
	} else {
		logger.Warn("env REWARDS_DB_URL is not set, using in-memory store")
	}

	if cfg.MongoURI != "" {
		mgo, err := db.NewFlashSaleDB(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = mgo.Close(context.Background()) })
		flash = mgo
	}

	// cache, limiter
	var cache interf.CacheStorage
	var limiter interf.Limiter = services.NewRateLimiter(clock, cfg.RateLimitKeys)
	if cfg.RedisAddr != "" {
		client, err := db.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUser, cfg.RedisPassword)
		if err != nil {
			// кэш необязателен
			logger.Error("redis", zap.Error(err))
		} else {
			a.closers = append(a.closers, func() { _ = client.Close() })
			cache = db.NewCacheService(client)
			limiter = db.NewRedisLimiter(client)
		}
	}

	// services
	a.Loyalty = services.NewLoyaltyService(logger, ledger, cache, clock)
	a.Referrals = services.NewReferralService(logger, referrals, a.Loyalty, clock)
	a.Coupons = services.NewCouponService(logger, coupons, a.Loyalty, clock)
	a.FlashSale = services.NewFlashSaleResolver(logger, flash, clock, cfg.FlashSaleRefresh)
	a.Completion = services.NewCompletionHandler(logger, a.Loyalty, a.Referrals)

	var events interf.EventPublisher = services.NewDispatcher(a.Completion)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.CompletedTopic)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = producer.Close() })
		events = producer
	}
	a.Orders = services.NewOrderService(logger, orders, events, clock)

	var cat interf.Catalog = missingCatalog{}
	if cfg.CatalogURL != "" {
		client, err := catalog.NewCatalogClient(cfg.CatalogURL, cfg.CatalogTimeout)
		if err != nil {
			a.Close()
			return nil, err
		}
		cat = client
	}
	a.Checkout = services.NewCheckoutService(logger, cat, a.FlashSale, a.Loyalty, a.Coupons, a.Orders,
		limiter, cfg.SubmitAttempts, cfg.SubmitWindow)
	return a, nil
}

// Close закрывает соединения в обратном порядке
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

