package rewards

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// метрики

var (
	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_order_transitions_total",
			Help: "Кол-во переходов статусов заказов",
		},
		[]string{"status"},
	)

	pointsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_points_total",
			Help: "Сумма баллов по типам транзакций",
		},
		[]string{"type"},
	)

	ledgerConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_ledger_conflicts_total",
			Help: "Кол-во повторов из-за конкурентного изменения счета",
		},
	)

	couponsMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_coupons_minted_total",
			Help: "Кол-во выпущенных купонов",
		},
	)

	couponsRedeemed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_coupons_redeemed_total",
			Help: "Кол-во использованных купонов",
		},
	)

	referralsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_referrals_completed_total",
			Help: "Кол-во завершенных рефералов",
		},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_rate_limited_total",
			Help: "Кол-во отклоненных попыток",
		},
		[]string{"action"},
	)
)
