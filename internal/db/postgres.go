package rewards

import (
	"context"
	"errors"
	"fmt"

	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

// Хранилище Postgres: заказы, журнал баллов, рефералы, купоны
type RewardsDB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewRewardsDB(ctx context.Context, logger *zap.Logger, dsn string) (*RewardsDB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("env REWARDS_DB_URL is not set")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &RewardsDB{pool, logger}, nil
}

func (p *RewardsDB) Close() {
	p.pool.Close()
}

func (p *RewardsDB) sqlError(err error, query string, args []any) {
	p.logger.Error("SQL error",
		zap.Error(err),
		zap.String("query", query),
		zap.Any("args", args),
	)
}

// ошибки драйвера в ошибки хранилища
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %w", what, model.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s %w: %s", what, model.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
