package rewards

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	model "github.com/glkeru/loyalty/rewards/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
)

var orderColumns = []string{"id", "buyer_id", "item_id", "variant_id", "status", "total", "coupon_id",
	"activation_input", "payment_proof", "fulfillment", "cancel_reason", "version", "created_at", "updated_at"}

// Создание заказа
func (p *RewardsDB) CreateOrder(ctx context.Context, order model.Order) error {
	fulfillment, err := marshalFulfillment(order.Fulfillment)
	if err != nil {
		return err
	}
	sql, args, err := sq.Insert("orders").
		Columns(orderColumns...).
		Values(order.ID, order.BuyerID, order.ItemID, order.VariantID, order.Status, order.Total, order.CouponID,
			order.ActivationInput, order.PaymentProof, fulfillment, order.CancelReason, order.Version,
			order.CreatedAt, order.UpdatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		p.sqlError(err, sql, args)
		return err
	}
	if _, err = p.pool.Exec(ctx, sql, args...); err != nil {
		p.sqlError(err, sql, args)
		return mapError(err, "order "+order.ID.String())
	}
	return nil
}

func (p *RewardsDB) GetOrder(ctx context.Context, id uuid.UUID) (model.Order, error) {
	sql, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return model.Order{}, err
	}
	order, err := scanOrder(p.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return model.Order{}, mapError(err, "order "+id.String())
	}
	return order, nil
}

// Обновление заказа при совпадении версии
func (p *RewardsDB) UpdateOrder(ctx context.Context, order model.Order) (model.Order, error) {
	fulfillment, err := marshalFulfillment(order.Fulfillment)
	if err != nil {
		return model.Order{}, err
	}
	sql, args, err := sq.Update("orders").
		Set("status", order.Status).
		Set("total", order.Total).
		Set("coupon_id", order.CouponID).
		Set("payment_proof", order.PaymentProof).
		Set("fulfillment", fulfillment).
		Set("cancel_reason", order.CancelReason).
		Set("updated_at", order.UpdatedAt).
		Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": order.ID, "version": order.Version}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		p.sqlError(err, sql, args)
		return model.Order{}, err
	}
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		p.sqlError(err, sql, args)
		return model.Order{}, err
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetOrder(ctx, order.ID); err != nil {
			return model.Order{}, err
		}
		return model.Order{}, fmt.Errorf("order %s %w", order.ID, model.ErrConflict)
	}
	order.Version++
	return order, nil
}

func (p *RewardsDB) ListOrders(ctx context.Context, buyer string) ([]model.Order, error) {
	sql, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"buyer_id": buyer}).
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

	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var variant, activation, proof, reason pgtype.Text
	var fulfillment []byte
	err := row.Scan(&o.ID, &o.BuyerID, &o.ItemID, &variant, &o.Status, &o.Total, &o.CouponID,
		&activation, &proof, &fulfillment, &reason, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.VariantID = variant.String
	o.ActivationInput = activation.String
	o.PaymentProof = proof.String
	o.CancelReason = reason.String
	if len(fulfillment) > 0 {
		o.Fulfillment = &model.Fulfillment{}
		if err := json.Unmarshal(fulfillment, o.Fulfillment); err != nil {
			return model.Order{}, fmt.Errorf("order %s fulfillment: %w", o.ID, err)
		}
	}
	return o, nil
}

func marshalFulfillment(f *model.Fulfillment) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}
