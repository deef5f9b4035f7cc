package rewards

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
)

type ledger struct {
	version int64
	account model.LoyaltyAccount
	log     []model.PointTransaction
}

// Хранилище в памяти процесса: тесты и локальный запуск.
// Все операции под одним мьютексом, поэтому CAS атомарен
type MemoryStore struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]model.Order
	ledgers   map[string]*ledger
	codes     map[string]model.ReferralCode // по коду
	userCodes map[string]string             // пользователь -> код
	referrals map[uuid.UUID]model.Referral
	referred  map[string]uuid.UUID // приглашенный -> реферал
	coupons   map[uuid.UUID]model.Coupon
	couponIdx map[string]uuid.UUID
	flashSale model.FlashSaleConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[uuid.UUID]model.Order),
		ledgers:   make(map[string]*ledger),
		codes:     make(map[string]model.ReferralCode),
		userCodes: make(map[string]string),
		referrals: make(map[uuid.UUID]model.Referral),
		referred:  make(map[string]uuid.UUID),
		coupons:   make(map[uuid.UUID]model.Coupon),
		couponIdx: make(map[string]uuid.UUID),
	}
}

// заказы

func (m *MemoryStore) CreateOrder(_ context.Context, order model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return fmt.Errorf("order %s %w", order.ID, model.ErrDuplicate)
	}
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id uuid.UUID) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("order %s %w", id, model.ErrNotFound)
	}
	return copyOrder(o), nil
}

func (m *MemoryStore) UpdateOrder(_ context.Context, order model.Order) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[order.ID]
	if !ok {
		return model.Order{}, fmt.Errorf("order %s %w", order.ID, model.ErrNotFound)
	}
	if cur.Version != order.Version {
		return model.Order{}, fmt.Errorf("order %s %w", order.ID, model.ErrConflict)
	}
	order.Version++
	m.orders[order.ID] = copyOrder(order)
	return copyOrder(order), nil
}

func (m *MemoryStore) ListOrders(_ context.Context, buyer string) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if o.BuyerID == buyer {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func copyOrder(o model.Order) model.Order {
	if o.Fulfillment != nil {
		f := *o.Fulfillment
		o.Fulfillment = &f
	}
	return o
}

// журнал баллов

func (m *MemoryStore) LoadLedger(_ context.Context, user string) (int64, []model.PointTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[user]
	if !ok {
		return 0, nil, nil
	}
	return l.version, append([]model.PointTransaction(nil), l.log...), nil
}

func (m *MemoryStore) CommitLedger(_ context.Context, change model.LedgerChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[change.UserID]
	if !ok {
		l = &ledger{}
	}
	if l.version != change.ExpectedVersion {
		return fmt.Errorf("ledger %s %w", change.UserID, model.ErrConflict)
	}
	if t := change.Append; t != nil && t.Ref != "" {
		if _, dup := model.FindRef(l.log, t.Ref, t.Type); dup {
			return fmt.Errorf("tnx %s/%s %w", t.Type, t.Ref, model.ErrDuplicate)
		}
	}
	for _, id := range change.Reverse {
		found := false
		for _, t := range l.log {
			if t.ID == id {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("tnx %s %w", id, model.ErrNotFound)
		}
	}
	l.log = change.Apply(l.log)
	l.account = change.Account
	l.version = change.Account.Version
	m.ledgers[change.UserID] = l
	return nil
}

func (m *MemoryStore) GetTnx(_ context.Context, user string, from time.Time, to time.Time) ([]model.PointTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[user]
	if !ok {
		return nil, nil
	}
	var out []model.PointTransaction
	for _, t := range l.log {
		if t.CreatedAt.Before(from) || t.CreatedAt.After(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// рефералы

func (m *MemoryStore) GetCodeByUser(_ context.Context, user string) (model.ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.userCodes[user]
	if !ok {
		return model.ReferralCode{}, fmt.Errorf("referral code of %s %w", user, model.ErrNotFound)
	}
	return m.codes[code], nil
}

func (m *MemoryStore) GetCode(_ context.Context, code string) (model.ReferralCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.codes[code]
	if !ok {
		return model.ReferralCode{}, fmt.Errorf("referral code %s %w", code, model.ErrNotFound)
	}
	return rc, nil
}

func (m *MemoryStore) CreateCode(_ context.Context, code model.ReferralCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[code.Code]; ok {
		return fmt.Errorf("referral code %s %w", code.Code, model.ErrDuplicate)
	}
	if _, ok := m.userCodes[code.UserID]; ok {
		return fmt.Errorf("referral code of %s %w", code.UserID, model.ErrDuplicate)
	}
	m.codes[code.Code] = code
	m.userCodes[code.UserID] = code.Code
	return nil
}

func (m *MemoryStore) CreateReferral(_ context.Context, ref model.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.referred[ref.ReferredID]; ok {
		return fmt.Errorf("referral of %s %w", ref.ReferredID, model.ErrDuplicate)
	}
	rc, ok := m.codes[ref.Code]
	if !ok {
		return fmt.Errorf("referral code %s %w", ref.Code, model.ErrNotFound)
	}
	rc.Uses++
	m.codes[ref.Code] = rc
	m.referrals[ref.ID] = ref
	m.referred[ref.ReferredID] = ref.ID
	return nil
}

func (m *MemoryStore) GetReferralByReferred(_ context.Context, user string) (model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.referred[user]
	if !ok {
		return model.Referral{}, fmt.Errorf("referral of %s %w", user, model.ErrNotFound)
	}
	return m.referrals[id], nil
}

func (m *MemoryStore) ListReferrals(_ context.Context, referrer string) ([]model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Referral
	for _, r := range m.referrals {
		if r.ReferrerID == referrer {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) CompleteReferral(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.referrals[id]
	if !ok {
		return false, fmt.Errorf("referral %s %w", id, model.ErrNotFound)
	}
	if r.Status != model.ReferralPending {
		return false, nil
	}
	r.Status = model.ReferralCompleted
	r.CompletedAt = &at
	m.referrals[id] = r
	return true, nil
}

func (m *MemoryStore) MarkRewardGiven(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.referrals[id]
	if !ok {
		return fmt.Errorf("referral %s %w", id, model.ErrNotFound)
	}
	r.RewardGiven = true
	m.referrals[id] = r
	return nil
}

// купоны

func (m *MemoryStore) CreateCoupon(_ context.Context, coupon model.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.couponIdx[coupon.Code]; ok {
		return fmt.Errorf("coupon %s %w", coupon.Code, model.ErrDuplicate)
	}
	if _, ok := m.coupons[coupon.ID]; ok {
		return fmt.Errorf("coupon %s %w", coupon.ID, model.ErrDuplicate)
	}
	m.coupons[coupon.ID] = coupon
	m.couponIdx[coupon.Code] = coupon.ID
	return nil
}

func (m *MemoryStore) GetCoupon(_ context.Context, id uuid.UUID) (model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return model.Coupon{}, fmt.Errorf("coupon %s %w", id, model.ErrNotFound)
	}
	return c, nil
}

func (m *MemoryStore) GetCouponByCode(_ context.Context, code string) (model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.couponIdx[code]
	if !ok {
		return model.Coupon{}, fmt.Errorf("coupon %s %w", code, model.ErrNotFound)
	}
	return m.coupons[id], nil
}

func (m *MemoryStore) ListCoupons(_ context.Context, user string) ([]model.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Coupon
	for _, c := range m.coupons {
		if c.UserID == user {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) RedeemCoupon(_ context.Context, id uuid.UUID, user string, orderID uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok || c.UserID != user || c.Used || c.Expired(at) {
		return false, nil
	}
	c.Used = true
	c.UsedAt = &at
	c.OrderID = uuid.NullUUID{UUID: orderID, Valid: true}
	m.coupons[id] = c
	return true, nil
}

// распродажа

func (m *MemoryStore) GetFlashSale(_ context.Context) (model.FlashSaleConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flashSale, nil
}

func (m *MemoryStore) SaveFlashSale(_ context.Context, cfg model.FlashSaleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flashSale = cfg
	return nil
}
