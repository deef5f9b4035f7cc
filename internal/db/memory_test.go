package rewards

import (
	"context"
	"errors"
	"testing"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func earnChange(user string, version int64, log []model.PointTransaction, points int64, ref string) model.LedgerChange {
	tnx := model.PointTransaction{ID: uuid.New(), UserID: user, Points: points, Type: model.TnxEarned, Ref: ref, CreatedAt: time.Now()}
	change := model.LedgerChange{UserID: user, ExpectedVersion: version, Append: &tnx}
	change.Account = model.Fold(user, change.Apply(log))
	change.Account.Version = version + 1
	return change
}

func TestMemoryLedgerCAS(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	version, log, err := m.LoadLedger(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, int64(0), version)
	require.Empty(t, log)

	first := earnChange("u", 0, nil, 100, "o1")
	require.NoError(t, m.CommitLedger(ctx, first))

	// та же версия второй раз
	stale := earnChange("u", 0, nil, 50, "o2")
	require.True(t, errors.Is(m.CommitLedger(ctx, stale), model.ErrConflict))

	version, log, err = m.LoadLedger(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, int64(1), version)
	require.Len(t, log, 1)

	dup := earnChange("u", version, log, 100, "o1")
	require.True(t, errors.Is(m.CommitLedger(ctx, dup), model.ErrDuplicate))

	missing := model.LedgerChange{UserID: "u", ExpectedVersion: version, Reverse: []uuid.UUID{uuid.New()}}
	require.True(t, errors.Is(m.CommitLedger(ctx, missing), model.ErrNotFound))

	rev := model.LedgerChange{UserID: "u", ExpectedVersion: version, Reverse: []uuid.UUID{log[0].ID}}
	rev.Account = model.Fold("u", rev.Apply(log))
	rev.Account.Version = version + 1
	require.NoError(t, m.CommitLedger(ctx, rev))

	_, log, err = m.LoadLedger(ctx, "u")
	require.NoError(t, err)
	require.True(t, log[0].Reversed)
	require.Equal(t, int64(0), model.Fold("u", log).Total)
}

func TestMemoryOrderCAS(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	order := model.Order{ID: uuid.New(), BuyerID: "b", ItemID: "i", Status: model.OrderPending, Total: decimal.NewFromInt(10), Version: 1}
	require.NoError(t, m.CreateOrder(ctx, order))
	require.True(t, errors.Is(m.CreateOrder(ctx, order), model.ErrDuplicate))

	order.Status = model.OrderSubmitted
	updated, err := m.UpdateOrder(ctx, order)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated.Version)

	// старая версия
	order.Status = model.OrderCancelled
	_, err = m.UpdateOrder(ctx, order)
	require.True(t, errors.Is(err, model.ErrConflict))

	got, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderSubmitted, got.Status)

	_, err = m.GetOrder(ctx, uuid.New())
	require.True(t, errors.Is(err, model.ErrNotFound))
}

func TestMemoryReferrals(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateCode(ctx, model.ReferralCode{UserID: "a", Code: "REFAAAAAA"}))
	require.True(t, errors.Is(m.CreateCode(ctx, model.ReferralCode{UserID: "b", Code: "REFAAAAAA"}), model.ErrDuplicate))
	require.True(t, errors.Is(m.CreateCode(ctx, model.ReferralCode{UserID: "a", Code: "REFBBBBBB"}), model.ErrDuplicate))

	ref := model.Referral{ID: uuid.New(), ReferrerID: "a", ReferredID: "c", Code: "REFAAAAAA", Status: model.ReferralPending}
	require.NoError(t, m.CreateReferral(ctx, ref))
	again := ref
	again.ID = uuid.New()
	require.True(t, errors.Is(m.CreateReferral(ctx, again), model.ErrDuplicate))

	code, err := m.GetCode(ctx, "REFAAAAAA")
	require.NoError(t, err)
	require.Equal(t, 1, code.Uses)

	now := time.Now()
	ok, err := m.CompleteReferral(ctx, ref.ID, now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.CompleteReferral(ctx, ref.ID, now)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.MarkRewardGiven(ctx, ref.ID))
	list, err := m.ListReferrals(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].RewardGiven)
}

func TestMemoryRedeemCoupon(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	coupon := model.Coupon{ID: uuid.New(), Code: "SAVE100-AAAAAA", UserID: "u", ExpiresAt: now.AddDate(0, 3, 0)}
	require.NoError(t, m.CreateCoupon(ctx, coupon))
	dup := coupon
	dup.ID = uuid.New()
	require.True(t, errors.Is(m.CreateCoupon(ctx, dup), model.ErrDuplicate))

	ok, err := m.RedeemCoupon(ctx, coupon.ID, "u", uuid.New(), coupon.ExpiresAt)
	require.NoError(t, err)
	require.False(t, ok)

	// чужой купон
	ok, err = m.RedeemCoupon(ctx, coupon.ID, "x", uuid.New(), now)
	require.NoError(t, err)
	require.False(t, ok)

	order := uuid.New()
	ok, err = m.RedeemCoupon(ctx, coupon.ID, "u", order, now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.RedeemCoupon(ctx, coupon.ID, "u", uuid.New(), now)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := m.GetCouponByCode(ctx, coupon.Code)
	require.NoError(t, err)
	require.True(t, got.Used)
	require.Equal(t, order, got.OrderID.UUID)
}
