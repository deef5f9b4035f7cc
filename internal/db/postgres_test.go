package rewards

import (
	"errors"
	"fmt"
	"testing"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	require.NoError(t, mapError(nil, "order"))

	err := mapError(fmt.Errorf("scan: %w", pgx.ErrNoRows), "order 1")
	require.True(t, errors.Is(err, model.ErrNotFound))

	err = mapError(&pgconn.PgError{Code: "23505", ConstraintName: "coupons_code_key"}, "coupon")
	require.True(t, errors.Is(err, model.ErrDuplicate))
	require.Contains(t, err.Error(), "coupons_code_key")

	other := &pgconn.PgError{Code: "40001"}
	err = mapError(other, "ledger")
	require.False(t, model.IsDomainError(err))
	require.True(t, errors.As(err, &other))
}
