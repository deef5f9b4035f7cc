package rewards

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		lifetime int64
		tier     Tier
	}{
		{0, Bronze},
		{499, Bronze},
		{500, Silver},
		{1499, Silver},
		{1500, Gold},
		{4999, Gold},
		{5000, Platinum},
		{1000000, Platinum},
	}
	for _, c := range cases {
		require.Equal(t, c.tier, TierFor(c.lifetime), c.lifetime)
	}
}

func TestNextTier(t *testing.T) {
	tier, left := NextTier(450)
	require.Equal(t, Silver, tier)
	require.Equal(t, int64(50), left)

	tier, left = NextTier(1500)
	require.Equal(t, Platinum, tier)
	require.Equal(t, int64(3500), left)

	tier, left = NextTier(5000)
	require.Equal(t, Tier(""), tier)
	require.Equal(t, int64(0), left)
}

func TestBenefits(t *testing.T) {
	require.Equal(t, int64(100), BenefitsFor(Bronze).Earn(100))
	require.Equal(t, int64(125), BenefitsFor(Silver).Earn(100))
	require.Equal(t, int64(150), BenefitsFor(Gold).Earn(100))
	require.Equal(t, int64(200), BenefitsFor(Platinum).Earn(100))
	// округление вниз
	require.Equal(t, int64(3), BenefitsFor(Silver).Earn(3))
	require.Equal(t, int64(1), BenefitsFor(Gold).Earn(1))

	require.True(t, BenefitsFor(Silver).Discount(decimal.RequireFromString("99.99")).Equal(decimal.RequireFromString("5")))
	require.True(t, BenefitsFor(Bronze).Discount(decimal.NewFromInt(100)).IsZero())
	require.Equal(t, Bronze, BenefitsFor("unknown").Tier)
}

func TestFold(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	earn := PointTransaction{ID: uuid.New(), Points: 600, Type: TnxEarned, Ref: "o1", CreatedAt: t0}
	bonus := PointTransaction{ID: uuid.New(), Points: 50, Type: TnxBonus, CreatedAt: t0.Add(time.Hour)}
	spend := PointTransaction{ID: uuid.New(), Points: -300, Type: TnxRedeemed, Ref: "c1", CreatedAt: t0.Add(2 * time.Hour)}
	log := []PointTransaction{earn, bonus, spend}

	acc := Fold("u", log)
	require.Equal(t, int64(350), acc.Total)
	require.Equal(t, int64(650), acc.Lifetime)
	require.Equal(t, Silver, acc.Tier)
	require.Equal(t, spend.CreatedAt, acc.UpdatedAt)

	reversed := LedgerChange{Reverse: []uuid.UUID{spend.ID}}.Apply(log)
	require.False(t, log[2].Reversed)
	acc = Fold("u", reversed)
	require.Equal(t, int64(650), acc.Total)

	reversed = LedgerChange{Reverse: []uuid.UUID{earn.ID}}.Apply(log)
	acc = Fold("u", reversed)
	require.Equal(t, int64(-250), acc.Total)
	require.Equal(t, int64(50), acc.Lifetime)
	require.Equal(t, Bronze, acc.Tier)
}

func TestFindRef(t *testing.T) {
	log := []PointTransaction{
		{ID: uuid.New(), Points: 10, Type: TnxEarned, Ref: "o1"},
		{ID: uuid.New(), Points: 10, Type: TnxEarned},
	}
	_, ok := FindRef(log, "o1", TnxEarned)
	require.True(t, ok)
	_, ok = FindRef(log, "o1", TnxRedeemed)
	require.False(t, ok)
	_, ok = FindRef(log, "", TnxEarned)
	require.False(t, ok)
}
