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

var referralColumns = []string{"id", "referrer_id", "referred_id", "code", "status", "reward_given", "created_at", "completed_at"}

func (p *RewardsDB) GetCodeByUser(ctx context.Context, user string) (model.ReferralCode, error) {
	return p.getCode(ctx, sq.Eq{"user_id": user}, "referral code of "+user)
}

func (p *RewardsDB) GetCode(ctx context.Context, code string) (model.ReferralCode, error) {
	return p.getCode(ctx, sq.Eq{"code": code}, "referral code "+code)
}

func (p *RewardsDB) getCode(ctx context.Context, where sq.Eq, what string) (model.ReferralCode, error) {
	sql, args, err := sq.Select("user_id", "code", "uses", "created_at").
		From("referral_codes").
		Where(where).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return model.ReferralCode{}, err
	}
	var rc model.ReferralCode
	err = p.pool.QueryRow(ctx, sql, args...).Scan(&rc.UserID, &rc.Code, &rc.Uses, &rc.CreatedAt)
	if err != nil {
		return model.ReferralCode{}, mapError(err, what)
	}
	return rc, nil
}

// Уникальность кода и пользователя - индексы таблицы
func (p *RewardsDB) CreateCode(ctx context.Context, code model.ReferralCode) error {
	sql, args, err := sq.Insert("referral_codes").
		Columns("user_id", "code", "uses", "created_at").
		Values(code.UserID, code.Code, code.Uses, code.CreatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err = p.pool.Exec(ctx, sql, args...); err != nil {
		return mapError(err, "referral code "+code.Code)
	}
	return nil
}

// Реферал и счетчик использований кода в одной транзакции
func (p *RewardsDB) CreateReferral(ctx context.Context, ref model.Referral) (err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	sql, args, err := sq.Insert("referrals").
		Columns(referralColumns...).
		Values(ref.ID, ref.ReferrerID, ref.ReferredID, ref.Code, ref.Status, ref.RewardGiven, ref.CreatedAt, ref.CompletedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, sql, args...); err != nil {
		err = mapError(err, "referral of "+ref.ReferredID)
		return err
	}

	sql, args, err = sq.Update("referral_codes").
		Set("uses", sq.Expr("uses + 1")).
		Where(sq.Eq{"code": ref.Code}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, sql, args...); err != nil {
		p.sqlError(err, sql, args)
		return err
	}
	err = tx.Commit(ctx)
	return err
}

func (p *RewardsDB) GetReferralByReferred(ctx context.Context, user string) (model.Referral, error) {
	sql, args, err := sq.Select(referralColumns...).
		From("referrals").
		Where(sq.Eq{"referred_id": user}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return model.Referral{}, err
	}
	ref, err := scanReferral(p.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return model.Referral{}, mapError(err, "referral of "+user)
	}
	return ref, nil
}

func (p *RewardsDB) ListReferrals(ctx context.Context, referrer string) ([]model.Referral, error) {
	sql, args, err := sq.Select(referralColumns...).
		From("referrals").
		Where(sq.Eq{"referrer_id": referrer}).
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

	var refs []model.Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// pending -> completed одним условным UPDATE
func (p *RewardsDB) CompleteReferral(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	sql, args, err := sq.Update("referrals").
		Set("status", model.ReferralCompleted).
		Set("completed_at", at).
		Where(sq.Eq{"id": id, "status": model.ReferralPending}).
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

func (p *RewardsDB) MarkRewardGiven(ctx context.Context, id uuid.UUID) error {
	sql, args, err := sq.Update("referrals").
		Set("reward_given", true).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, sql, args...)
	return err
}

func scanReferral(row pgx.Row) (model.Referral, error) {
	var r model.Referral
	var completed pgtype.Timestamptz
	err := row.Scan(&r.ID, &r.ReferrerID, &r.ReferredID, &r.Code, &r.Status, &r.RewardGiven, &r.CreatedAt, &completed)
	if err != nil {
		return model.Referral{}, err
	}
	if completed.Status == pgtype.Present {
		t := completed.Time
		r.CompletedAt = &t
	}
	return r, nil
}
