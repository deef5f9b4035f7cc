package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var tnxColumns = []string{"id", "user_id", "points", "type", "reason", "ref", "reversed", "created_at"}

// Версия счета и журнал из одного снимка
func (p *RewardsDB) LoadLedger(ctx context.Context, user string) (version int64, log []model.PointTransaction, err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return 0, nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, "SELECT version FROM accounts WHERE user_id = $1", user)
	if err = row.Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// счета еще нет
			return 0, nil, nil
		}
		return 0, nil, err
	}

	sql, args, err := sq.Select(tnxColumns...).
		From("tnx").
		Where(sq.Eq{"user_id": user}).
		OrderBy("created_at", "id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, nil, err
	}
	log, err = p.queryTnx(ctx, tx, sql, args)
	if err != nil {
		return 0, nil, err
	}
	return version, log, tx.Commit(ctx)
}

// Запись изменения журнала с проверкой версии счета
func (p *RewardsDB) CommitLedger(ctx context.Context, change model.LedgerChange) (err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	acc := change.Account
	var sql string
	var args []any
	if change.ExpectedVersion == 0 {
		sql, args, err = sq.Insert("accounts").
			Columns("user_id", "total", "lifetime", "tier", "version", "updated_at").
			Values(change.UserID, acc.Total, acc.Lifetime, acc.Tier, acc.Version, acc.UpdatedAt).
			Suffix("ON CONFLICT (user_id) DO NOTHING").
			PlaceholderFormat(sq.Dollar).
			ToSql()
	} else {
		sql, args, err = sq.Update("accounts").
			Set("total", acc.Total).
			Set("lifetime", acc.Lifetime).
			Set("tier", acc.Tier).
			Set("version", acc.Version).
			Set("updated_at", acc.UpdatedAt).
			Where(sq.Eq{"user_id": change.UserID, "version": change.ExpectedVersion}).
			PlaceholderFormat(sq.Dollar).
			ToSql()
	}
	if err != nil {
		p.sqlError(err, sql, args)
		return err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		p.sqlError(err, sql, args)
		return err
	}
	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("ledger %s %w", change.UserID, model.ErrConflict)
		return err
	}

	if len(change.Reverse) > 0 {
		sql, args, err = sq.Update("tnx").
			Set("reversed", true).
			Where(sq.Eq{"user_id": change.UserID, "id": change.Reverse}).
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return err
		}
		tag, err = tx.Exec(ctx, sql, args...)
		if err != nil {
			p.sqlError(err, sql, args)
			return err
		}
		if tag.RowsAffected() != int64(len(change.Reverse)) {
			err = fmt.Errorf("reversed tnx %w", model.ErrNotFound)
			return err
		}
	}

	if t := change.Append; t != nil {
		sql, args, err = sq.Insert("tnx").
			Columns(tnxColumns...).
			Values(t.ID, t.UserID, t.Points, t.Type, t.Reason, t.Ref, t.Reversed, t.CreatedAt).
			PlaceholderFormat(sq.Dollar).
			ToSql()
		if err != nil {
			return err
		}
		if _, err = tx.Exec(ctx, sql, args...); err != nil {
			err = mapError(err, "tnx "+string(t.Type)+"/"+t.Ref)
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	p.logger.Debug("ledger committed",
		zap.String("user", change.UserID),
		zap.Int64("version", acc.Version),
	)
	return nil
}

// Получить транзакции
func (p *RewardsDB) GetTnx(ctx context.Context, user string, from time.Time, to time.Time) ([]model.PointTransaction, error) {
	sql, args, err := sq.Select(tnxColumns...).
		From("tnx").
		Where(sq.Eq{"user_id": user}).
		Where(sq.GtOrEq{"created_at": from}).
		Where(sq.LtOrEq{"created_at": to}).
		OrderBy("created_at", "id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	return p.queryTnx(ctx, p.pool, sql, args)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (p *RewardsDB) queryTnx(ctx context.Context, q querier, sql string, args []any) ([]model.PointTransaction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		p.sqlError(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var tnxs []model.PointTransaction
	for rows.Next() {
		var t model.PointTransaction
		var reason, ref pgtype.Text
		if err := rows.Scan(&t.ID, &t.UserID, &t.Points, &t.Type, &reason, &ref, &t.Reversed, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Reason = reason.String
		t.Ref = ref.String
		tnxs = append(tnxs, t)
	}
	return tnxs, rows.Err()
}
