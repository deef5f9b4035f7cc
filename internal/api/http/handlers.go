package rewards

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	services "github.com/glkeru/loyalty/rewards/internal/services"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Services struct {
	Orders    *services.OrderService
	Loyalty   *services.LoyaltyService
	Referrals *services.ReferralService
	Coupons   *services.CouponService
	FlashSale *services.FlashSaleResolver
	Checkout  *services.CheckoutService
}

type RewardsHandler struct {
	router *mux.Router
	serv   Services
	logger *zap.Logger
}

func NewHandler(serv Services, logger *zap.Logger) *RewardsHandler {
	router := mux.NewRouter()
	handler := &RewardsHandler{router, serv, logger}
	router.Use(MiddlewareLog())

	router.HandleFunc("/checkout/quote", handler.QuoteHandler).Methods(http.MethodPost)
	router.HandleFunc("/checkout", handler.CheckoutHandler).Methods(http.MethodPost)

	router.HandleFunc("/orders/{id}", handler.GetOrderHandler).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id}/payment", handler.SubmitPaymentHandler).Methods(http.MethodPost)
	router.HandleFunc("/orders/{id}/complete", handler.CompleteHandler).Methods(http.MethodPost)
	router.HandleFunc("/orders/{id}/cancel", handler.CancelHandler).Methods(http.MethodPost)

	router.HandleFunc("/users/{user}/orders", handler.ListOrdersHandler).Methods(http.MethodGet)
	router.HandleFunc("/users/{user}/account", handler.AccountHandler).Methods(http.MethodGet)
	router.HandleFunc("/users/{user}/history", handler.HistoryHandler).Methods(http.MethodGet)
	router.HandleFunc("/users/{user}/referral", handler.ReferralStatsHandler).Methods(http.MethodGet)
	router.HandleFunc("/users/{user}/coupons", handler.ListCouponsHandler).Methods(http.MethodGet)
	router.HandleFunc("/users/{user}/coupons", handler.MintCouponHandler).Methods(http.MethodPost)
	router.HandleFunc("/users/{user}/coupons/{code}", handler.ValidateCouponHandler).Methods(http.MethodGet)

	router.HandleFunc("/referrals/apply", handler.ApplyReferralHandler).Methods(http.MethodPost)

	router.HandleFunc("/flash-sale", handler.GetFlashSaleHandler).Methods(http.MethodGet)
	router.HandleFunc("/flash-sale", handler.SaveFlashSaleHandler).Methods(http.MethodPut)
	router.HandleFunc("/flash-sale/start", handler.StartFlashSaleHandler).Methods(http.MethodPost)

	return handler
}

func (r *RewardsHandler) ServeHTTP(w http.ResponseWriter, res *http.Request) {
	r.router.ServeHTTP(w, res)
}

func (r *RewardsHandler) Log(msg string, service string, err error) {
	r.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

// ошибки предметной области возвращаются клиенту как есть, остальные - 500
func (r *RewardsHandler) writeError(w http.ResponseWriter, service string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, model.ErrRateLimited):
		code = http.StatusTooManyRequests
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrAlreadyReferred),
		errors.Is(err, model.ErrInsufficientPoints),
		errors.Is(err, model.ErrConflict):
		code = http.StatusConflict
	case model.IsDomainError(err):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		r.Log("Internal", service, err)
		http.Error(w, "internal error", code)
		return
	}
	http.Error(w, err.Error(), code)
}

func (r *RewardsHandler) writeJSON(w http.ResponseWriter, service string, code int, v any) {
	j, err := json.Marshal(v)
	if err != nil {
		r.Log("Marshal", service, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(j)
}

func (r *RewardsHandler) readJSON(w http.ResponseWriter, req *http.Request, service string, v any) bool {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		r.Log("Get request body", service, err)
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return false
	}
	defer req.Body.Close()
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return false
	}
	return true
}

func orderID(w http.ResponseWriter, req *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(req)["id"])
	if err != nil {
		http.Error(w, "Order not found", http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// Расчет стоимости
func (r *RewardsHandler) QuoteHandler(w http.ResponseWriter, req *http.Request) {
	var in model.CheckoutRequest
	if !r.readJSON(w, req, "QuoteHandler", &in) {
		return
	}
	q, err := r.serv.Checkout.Quote(req.Context(), in)
	if err != nil {
		r.writeError(w, "QuoteHandler", err)
		return
	}
	r.writeJSON(w, "QuoteHandler", http.StatusOK, q)
}

type CheckoutResponse struct {
	Order model.Order `json:"order"`
	Quote model.Quote `json:"quote"`
}

// Оформление заказа
func (r *RewardsHandler) CheckoutHandler(w http.ResponseWriter, req *http.Request) {
	var in model.CheckoutRequest
	if !r.readJSON(w, req, "CheckoutHandler", &in) {
		return
	}
	order, q, err := r.serv.Checkout.Checkout(req.Context(), in)
	if err != nil {
		r.writeError(w, "CheckoutHandler", err)
		return
	}
	r.writeJSON(w, "CheckoutHandler", http.StatusCreated, CheckoutResponse{order, q})
}

func (r *RewardsHandler) GetOrderHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := orderID(w, req)
	if !ok {
		return
	}
	order, err := r.serv.Orders.Get(req.Context(), id)
	if err != nil {
		r.writeError(w, "GetOrderHandler", err)
		return
	}
	r.writeJSON(w, "GetOrderHandler", http.StatusOK, order)
}

func (r *RewardsHandler) ListOrdersHandler(w http.ResponseWriter, req *http.Request) {
	orders, err := r.serv.Orders.ListByBuyer(req.Context(), mux.Vars(req)["user"])
	if err != nil {
		r.writeError(w, "ListOrdersHandler", err)
		return
	}
	r.writeJSON(w, "ListOrdersHandler", http.StatusOK, orders)
}

type PaymentRequest struct {
	Proof string `json:"proof"`
}

// Подтверждение оплаты
func (r *RewardsHandler) SubmitPaymentHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := orderID(w, req)
	if !ok {
		return
	}
	var in PaymentRequest
	if !r.readJSON(w, req, "SubmitPaymentHandler", &in) {
		return
	}
	order, err := r.serv.Orders.SubmitPayment(req.Context(), id, in.Proof)
	if err != nil {
		r.writeError(w, "SubmitPaymentHandler", err)
		return
	}
	r.writeJSON(w, "SubmitPaymentHandler", http.StatusOK, order)
}

// Выдача заказа
func (r *RewardsHandler) CompleteHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := orderID(w, req)
	if !ok {
		return
	}
	var in model.Fulfillment
	if !r.readJSON(w, req, "CompleteHandler", &in) {
		return
	}
	order, err := r.serv.Orders.Complete(req.Context(), id, in)
	if err != nil {
		r.writeError(w, "CompleteHandler", err)
		return
	}
	r.writeJSON(w, "CompleteHandler", http.StatusOK, order)
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

func (r *RewardsHandler) CancelHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := orderID(w, req)
	if !ok {
		return
	}
	var in CancelRequest
	if !r.readJSON(w, req, "CancelHandler", &in) {
		return
	}
	order, err := r.serv.Orders.Cancel(req.Context(), id, in.Reason)
	if err != nil {
		r.writeError(w, "CancelHandler", err)
		return
	}
	r.writeJSON(w, "CancelHandler", http.StatusOK, order)
}

type AccountResponse struct {
	model.LoyaltyAccount
	Benefits     model.TierBenefits `json:"benefits"`
	NextTier     model.Tier         `json:"next_tier,omitempty"`
	PointsToNext int64              `json:"points_to_next"`
}

// Счет баллов
func (r *RewardsHandler) AccountHandler(w http.ResponseWriter, req *http.Request) {
	acc, err := r.serv.Loyalty.Balance(req.Context(), mux.Vars(req)["user"])
	if err != nil {
		r.writeError(w, "AccountHandler", err)
		return
	}
	next, toNext := model.NextTier(acc.Lifetime)
	r.writeJSON(w, "AccountHandler", http.StatusOK, AccountResponse{acc, model.BenefitsFor(acc.Tier), next, toNext})
}

// История транзакций, даты в формате 2006-01-02
func (r *RewardsHandler) HistoryHandler(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	from, err := time.Parse(time.DateOnly, q.Get("from"))
	if err != nil {
		http.Error(w, "from is not correct", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(time.DateOnly, q.Get("to"))
	if err != nil {
		http.Error(w, "to is not correct", http.StatusBadRequest)
		return
	}
	to = to.Add(24*time.Hour - time.Nanosecond)
	tnxs, err := r.serv.Loyalty.History(req.Context(), mux.Vars(req)["user"], from, to)
	if err != nil {
		r.writeError(w, "HistoryHandler", err)
		return
	}
	r.writeJSON(w, "HistoryHandler", http.StatusOK, tnxs)
}

func (r *RewardsHandler) ReferralStatsHandler(w http.ResponseWriter, req *http.Request) {
	stats, err := r.serv.Referrals.Stats(req.Context(), mux.Vars(req)["user"])
	if err != nil {
		r.writeError(w, "ReferralStatsHandler", err)
		return
	}
	r.writeJSON(w, "ReferralStatsHandler", http.StatusOK, stats)
}

type ApplyRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// Регистрация по реферальной ссылке: код и бонус приглашенному
func (r *RewardsHandler) ApplyReferralHandler(w http.ResponseWriter, req *http.Request) {
	var in ApplyRequest
	if !r.readJSON(w, req, "ApplyReferralHandler", &in) {
		return
	}
	res, err := r.serv.Referrals.Apply(req.Context(), in.UserID, in.Code)
	if err != nil {
		r.writeError(w, "ApplyReferralHandler", err)
		return
	}
	if _, err := r.serv.Referrals.CreditSignupBonus(req.Context(), res, in.UserID); err != nil {
		r.writeError(w, "ApplyReferralHandler", err)
		return
	}
	r.writeJSON(w, "ApplyReferralHandler", http.StatusCreated, res)
}

// Выпуск купона, повтор с тем же Idempotency-Key возвращает выпущенный купон
func (r *RewardsHandler) MintCouponHandler(w http.ResponseWriter, req *http.Request) {
	coupon, err := r.serv.Coupons.Mint(req.Context(), mux.Vars(req)["user"], req.Header.Get("Idempotency-Key"))
	if err != nil {
		r.writeError(w, "MintCouponHandler", err)
		return
	}
	r.writeJSON(w, "MintCouponHandler", http.StatusCreated, coupon)
}

func (r *RewardsHandler) ListCouponsHandler(w http.ResponseWriter, req *http.Request) {
	coupons, err := r.serv.Coupons.List(req.Context(), mux.Vars(req)["user"])
	if err != nil {
		r.writeError(w, "ListCouponsHandler", err)
		return
	}
	r.writeJSON(w, "ListCouponsHandler", http.StatusOK, coupons)
}

func (r *RewardsHandler) ValidateCouponHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	check, err := r.serv.Coupons.Validate(req.Context(), vars["user"], vars["code"])
	if err != nil {
		r.writeError(w, "ValidateCouponHandler", err)
		return
	}
	r.writeJSON(w, "ValidateCouponHandler", http.StatusOK, check)
}

func (r *RewardsHandler) GetFlashSaleHandler(w http.ResponseWriter, req *http.Request) {
	cfg, err := r.serv.FlashSale.Snapshot(req.Context())
	if err != nil {
		r.writeError(w, "GetFlashSaleHandler", err)
		return
	}
	r.writeJSON(w, "GetFlashSaleHandler", http.StatusOK, cfg)
}

func (r *RewardsHandler) SaveFlashSaleHandler(w http.ResponseWriter, req *http.Request) {
	var cfg model.FlashSaleConfig
	if !r.readJSON(w, req, "SaveFlashSaleHandler", &cfg) {
		return
	}
	if err := r.serv.FlashSale.Save(req.Context(), cfg); err != nil {
		r.writeError(w, "SaveFlashSaleHandler", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *RewardsHandler) StartFlashSaleHandler(w http.ResponseWriter, req *http.Request) {
	cfg, err := r.serv.FlashSale.Start(req.Context())
	if err != nil {
		r.writeError(w, "StartFlashSaleHandler", err)
		return
	}
	r.writeJSON(w, "StartFlashSaleHandler", http.StatusOK, cfg)
}
