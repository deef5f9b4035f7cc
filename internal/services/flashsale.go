package rewards

import (
	"context"
	"strconv"
	"sync"
	"time"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultFlashSaleRefresh = time.Second
	flashSaleLoadTimeout    = 5 * time.Second
)

// Цена товара по распродаже на момент now. Распродажа активна только если включена и now < end_time
func ResolveFlashSale(cfg model.FlashSaleConfig, itemID string, price decimal.Decimal, now time.Time) model.FlashSaleQuote {
	quote := model.FlashSaleQuote{
		ItemID:        itemID,
		OriginalPrice: price,
		Discount:      decimal.Zero,
		Price:         price,
	}
	if !cfg.Enabled || cfg.EndTime == nil || !now.Before(*cfg.EndTime) {
		return quote
	}
	discount, ok := cfg.Discount(itemID)
	if !ok {
		return quote
	}
	final := price.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	quote.Active = true
	quote.Discount = discount
	quote.Price = final
	quote.EndsIn = cfg.EndTime.Sub(now)
	return quote
}

// Снимок настроек распродажи. Снимок обновляется не чаще refresh,
// активность всегда проверяется по текущим часам.
// gen растет при сбросе снимка: загрузка, начатая до сброса, снимок не устанавливает
type FlashSaleResolver struct {
	logger  *zap.Logger
	db      interf.FlashSaleStorage
	clock   interf.Clock
	refresh time.Duration

	group    singleflight.Group
	mu       sync.RWMutex
	snapshot *model.FlashSaleConfig
	loadedAt time.Time
	gen      uint64
}

func NewFlashSaleResolver(logger *zap.Logger, db interf.FlashSaleStorage, clock interf.Clock, refresh time.Duration) *FlashSaleResolver {
	if refresh <= 0 {
		refresh = DefaultFlashSaleRefresh
	}
	return &FlashSaleResolver{logger: logger, db: db, clock: clock, refresh: refresh}
}

// Текущий снимок. При ошибке загрузки отдается предыдущий, если он есть
func (r *FlashSaleResolver) Snapshot(ctx context.Context) (model.FlashSaleConfig, error) {
	now := r.clock.Now()
	r.mu.RLock()
	cur, loadedAt, gen := r.snapshot, r.loadedAt, r.gen
	r.mu.RUnlock()
	if cur != nil && now.Sub(loadedAt) < r.refresh {
		return *cur, nil
	}

	// загрузка общая для всех ожидающих, отмена одного из них ее не прерывает
	v, err, _ := r.group.Do("flash_sale:"+strconv.FormatUint(gen, 10), func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flashSaleLoadTimeout)
		defer cancel()
		cfg, err := r.db.GetFlashSale(lctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.gen == gen {
			r.snapshot = &cfg
			r.loadedAt = now
		}
		r.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		if cur != nil {
			r.logger.Warn("flash sale refresh failed, using previous snapshot", zap.Error(err))
			return *cur, nil
		}
		return model.FlashSaleConfig{}, err
	}
	return v.(model.FlashSaleConfig), nil
}

func (r *FlashSaleResolver) Resolve(ctx context.Context, itemID string, price decimal.Decimal) (model.FlashSaleQuote, error) {
	cfg, err := r.Snapshot(ctx)
	if err != nil {
		return model.FlashSaleQuote{}, err
	}
	return ResolveFlashSale(cfg, itemID, price, r.clock.Now()), nil
}

// Сохранение настроек администратором
func (r *FlashSaleResolver) Save(ctx context.Context, cfg model.FlashSaleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := r.db.SaveFlashSale(ctx, cfg); err != nil {
		return err
	}
	r.Invalidate()
	return nil
}

// Запуск распродажи на duration_hours от текущего момента
func (r *FlashSaleResolver) Start(ctx context.Context) (model.FlashSaleConfig, error) {
	cfg, err := r.db.GetFlashSale(ctx)
	if err != nil {
		return model.FlashSaleConfig{}, err
	}
	cfg = cfg.Start(r.clock.Now())
	if err := r.Save(ctx, cfg); err != nil {
		return model.FlashSaleConfig{}, err
	}
	r.logger.Info("flash sale started", zap.Time("end_time", *cfg.EndTime))
	return cfg, nil
}

func (r *FlashSaleResolver) Invalidate() {
	r.mu.Lock()
	r.snapshot = nil
	r.gen++
	r.mu.Unlock()
}
