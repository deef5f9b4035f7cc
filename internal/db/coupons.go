package rewards

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
)

var couponColumns = []string{"id", "code", "user_id", "value", "points_spent", "used", "used_at", "order_id", "expires_at", "created_at"}

func (p *RewardsDB) CreateCoupon(ctx context.Context, c model.Coupon) error {
	sql, args, err := sq.Insert("coupons").
		Columns(couponColumns...).
		Values(c.ID, c.Code, c.UserID, c.Value, c.PointsSpent, c.Used, c.UsedAt, c.OrderID, c.ExpiresAt, c.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err = p.pool.Exec(ctx, sql, args...); err != nil {
		p.sqlError(err, sql, args)
		return mapError(err, "coupon "+c.Code)
	}
	return nil
}

func (p *RewardsDB) GetCoupon(ctx context.Context, id uuid.UUID) (model.Coupon, error) {
	return p.getCoupon(ctx, sq.Eq{"id": id}, "coupon "+id.String())
}

func (p *RewardsDB) GetCouponByCode(ctx context.Context, code string) (model.Coupon, error) {
	return p.getCoupon(ctx, sq.Eq{"code": code}, "coupon "+code)
}

func (p *RewardsDB) getCoupon(ctx context.Context, where sq.Eq, what string) (model.Coupon, error) {
	sql, args, err := sq.Select(couponColumns...).
		From("coupons").
		Where(where).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return model.Coupon{}, err
	}
	c, err := scanCoupon(p.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return model.Coupon{}, mapError(err, what)
	}
	return c, nil
}

func (p *RewardsDB) ListCoupons(ctx context.Context, user string) ([]model.Coupon, error) {
	sql, args, err := sq.Select(couponColumns...).
		From("coupons").
		Where(sq.Eq{"user_id": user}).
		OrderBy("created_at").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		p.sqlError(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	var coupons []model.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

// used false -> true одним условным UPDATE, чужой или просроченный купон не меняется
func (p *RewardsDB) RedeemCoupon(ctx context.Context, id uuid.UUID, user string, orderID uuid.UUID, at time.Time) (bool, error) {
	sql, args, err := sq.Update("coupons").
		Set("used", true).
		Set("used_at", at).
		Set("order_id", orderID).
		Where(sq.Eq{"id": id, "user_id": user, "used": false}).
		Where(sq.Gt{"expires_at": at}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, err
	}
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		p.sqlError(err, sql, args)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanCoupon(row pgx.Row) (model.Coupon, error) {
	var c model.Coupon
	var usedAt pgtype.Timestamptz
	err := row.Scan(&c.ID, &c.Code, &c.UserID, &c.Value, &c.PointsSpent, &c.Used, &usedAt, &c.OrderID, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return model.Coupon{}, err
	}
	if usedAt.Status == pgtype.Present {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return c, nil
}
