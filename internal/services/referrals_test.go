package rewards

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/stretchr/testify/require"
)

var referralCodeRe = regexp.MustCompile(`^REF[A-Z0-9]{6}$`)

func TestIssueCode(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	code, err := e.referrals.IssueCode(ctx, "alice")
	require.NoError(t, err)
	require.Regexp(t, referralCodeRe, code.Code)
	require.Equal(t, "alice", code.UserID)

	again, err := e.referrals.IssueCode(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, code.Code, again.Code)

	other, err := e.referrals.IssueCode(ctx, "bob")
	require.NoError(t, err)
	require.NotEqual(t, code.Code, other.Code)
}

func TestApplyReferral(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	alice, err := e.referrals.IssueCode(ctx, "alice")
	require.NoError(t, err)
	bob, err := e.referrals.IssueCode(ctx, "bob")
	require.NoError(t, err)

	_, err = e.referrals.Apply(ctx, "carol", "REFXXXXXX")
	require.True(t, errors.Is(err, model.ErrInvalidCode))

	_, err = e.referrals.Apply(ctx, "alice", alice.Code)
	require.True(t, errors.Is(err, model.ErrSelfReferral))

	// код из ссылки в нижнем регистре
	res, err := e.referrals.Apply(ctx, "carol", " "+strings.ToLower(alice.Code))
	require.NoError(t, err)
	require.Equal(t, "alice", res.ReferrerID)
	require.Equal(t, model.ReferredBonus, res.BonusPoints)

	_, err = e.referrals.Apply(ctx, "carol", bob.Code)
	require.True(t, errors.Is(err, model.ErrAlreadyReferred))

	stored, err := e.store.GetCode(ctx, alice.Code)
	require.NoError(t, err)
	require.Equal(t, 1, stored.Uses)

	// apply никому не платит
	acc, err := e.loyalty.Account(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(0), acc.Total)
	acc, err = e.loyalty.Account(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, int64(0), acc.Total)
}

func TestSignupBonusOnce(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	code, err := e.referrals.IssueCode(ctx, "alice")
	require.NoError(t, err)
	res, err := e.referrals.Apply(ctx, "carol", code.Code)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		acc, err := e.referrals.CreditSignupBonus(ctx, res, "carol")
		require.NoError(t, err)
		require.Equal(t, int64(50), acc.Total)
	}
}

func TestCompleteOnFirstPurchase(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	paid, err := e.referrals.CompleteOnFirstPurchase(ctx, "nobody")
	require.NoError(t, err)
	require.False(t, paid)

	code, err := e.referrals.IssueCode(ctx, "alice")
	require.NoError(t, err)
	_, err = e.referrals.Apply(ctx, "carol", code.Code)
	require.NoError(t, err)

	paid, err = e.referrals.CompleteOnFirstPurchase(ctx, "carol")
	require.NoError(t, err)
	require.True(t, paid)

	paid, err = e.referrals.CompleteOnFirstPurchase(ctx, "carol")
	require.NoError(t, err)
	require.False(t, paid)

	acc, err := e.loyalty.Account(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(100), acc.Total)

	ref, err := e.store.GetReferralByReferred(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, model.ReferralCompleted, ref.Status)
	require.True(t, ref.RewardGiven)
	require.NotNil(t, ref.CompletedAt)
}

func TestCompleteRepaysMissingReward(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	code, err := e.referrals.IssueCode(ctx, "alice")
	require.NoError(t, err)
	res, err := e.referrals.Apply(ctx, "carol", code.Code)
	require.NoError(t, err)

	// статус сменился, а начисление не прошло
	ok, err := e.store.CompleteReferral(ctx, res.ReferralID, e.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	paid, err := e.referrals.CompleteOnFirstPurchase(ctx, "carol")
	require.NoError(t, err)
	require.True(t, paid)
	paid, err = e.referrals.CompleteOnFirstPurchase(ctx, "carol")
	require.NoError(t, err)
	require.False(t, paid)

	tnxs, err := e.loyalty.History(ctx, "alice", time.Time{}, e.clock.Now())
	require.NoError(t, err)
	require.Len(t, tnxs, 1)
	require.Equal(t, model.TnxReferral, tnxs[0].Type)
	require.Equal(t, res.ReferralID.String(), tnxs[0].Ref)
}

func TestReferralStats(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	code, err := e.referrals.IssueCode(ctx, "alice")
	require.NoError(t, err)
	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := e.referrals.Apply(ctx, u, code.Code)
		require.NoError(t, err)
	}
	_, err = e.referrals.CompleteOnFirstPurchase(ctx, "u2")
	require.NoError(t, err)

	stats, err := e.referrals.Stats(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, model.ReferralStats{Code: code.Code, Total: 3, Pending: 2, Completed: 1, PointsEarned: 100}, stats)
}
