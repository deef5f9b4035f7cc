package rewards

import (
	"context"
	"sync"
	"time"

	interf "github.com/glkeru/loyalty/rewards/internal/interfaces"
	model "github.com/glkeru/loyalty/rewards/internal/models"
)

const DefaultRateLimitKeys = 10000

type rateWindow struct {
	count int
	reset time.Time
}

// Ограничитель частоты в памяти процесса, фиксированное окно.
// Истекшие окна удаляются, число ключей ограничено
type RateLimiter struct {
	clock   interf.Clock
	maxKeys int

	mu      sync.Mutex
	windows map[string]*rateWindow
}

func NewRateLimiter(clock interf.Clock, maxKeys int) *RateLimiter {
	if maxKeys <= 0 {
		maxKeys = DefaultRateLimitKeys
	}
	return &RateLimiter{clock: clock, maxKeys: maxKeys, windows: make(map[string]*rateWindow)}
}

func (l *RateLimiter) Check(_ context.Context, key string, maxAttempts int, window time.Duration) (model.RateDecision, error) {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.reset) {
		if !ok && len(l.windows) >= l.maxKeys {
			l.evict(now)
		}
		w = &rateWindow{reset: now.Add(window)}
		l.windows[key] = w
	}

	resetIn := w.reset.Sub(now)
	if w.count >= maxAttempts {
		return model.RateDecision{Limited: true, Remaining: 0, ResetIn: resetIn}, nil
	}
	w.count++
	return model.RateDecision{Limited: false, Remaining: maxAttempts - w.count, ResetIn: resetIn}, nil
}

func (l *RateLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// удаление истекших окон, если не помогло - окна с самым ранним сбросом
func (l *RateLimiter) evict(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, k)
		}
	}
	if len(l.windows) < l.maxKeys {
		return
	}
	var oldest string
	var oldestReset time.Time
	for k, w := range l.windows {
		if oldest == "" || w.reset.Before(oldestReset) {
			oldest, oldestReset = k, w.reset
		}
	}
	delete(l.windows, oldest)
}
