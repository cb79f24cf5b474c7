package repository

import (
	"context"

	orderdomain "github.com/suscribo/paygate/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

const orderColumns = `id, status, date_created_gmt, billing_email, total_amount, payment_method`

func (r *repo) FindParentCandidates(ctx context.Context, db *gorm.DB, email string) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	// Identifier is the sort key, not the timestamp: identifiers are
	// assigned monotonically while backfilled rows may share a timestamp.
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM wp_wc_orders o
		 WHERE o.billing_email = ?
		   AND NOT EXISTS (
		     SELECT 1 FROM wp_wc_orders_meta m
		     WHERE m.order_id = o.id AND m.meta_key = ?
		   )
		 ORDER BY o.id DESC`,
		email,
		orderdomain.MetaKeySchedulePayment,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) FindInstallmentsByPointer(ctx context.Context, db *gorm.DB, parentID int64) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT o.id, o.status, o.date_created_gmt, o.billing_email, o.total_amount, o.payment_method
		 FROM wp_wc_orders o
		 INNER JOIN wp_wc_orders_meta m ON m.order_id = o.id
		 WHERE m.meta_key = ? AND m.meta_value = ?
		 ORDER BY o.id ASC`,
		orderdomain.MetaKeySchedulePayment,
		parentID,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) FindOrderByID(ctx context.Context, db *gorm.DB, id int64) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM wp_wc_orders
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindOrderMeta(ctx context.Context, db *gorm.DB, orderID int64) ([]orderdomain.OrderMeta, error) {
	var rows []orderdomain.OrderMeta
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, meta_key, meta_value
		 FROM wp_wc_orders_meta
		 WHERE order_id = ?
		 ORDER BY meta_key`,
		orderID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) UpsertOrderMeta(ctx context.Context, db *gorm.DB, orderID int64, key, value string) (string, error) {
	var existing orderdomain.OrderMeta
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, meta_key, meta_value
		 FROM wp_wc_orders_meta
		 WHERE order_id = ? AND meta_key = ?
		 LIMIT 1`,
		orderID,
		key,
	).Scan(&existing).Error
	if err != nil {
		return "", err
	}

	if existing.ID != 0 {
		err = db.WithContext(ctx).Exec(
			`UPDATE wp_wc_orders_meta
			 SET meta_value = ?
			 WHERE order_id = ? AND meta_key = ?`,
			value,
			orderID,
			key,
		).Error
		if err != nil {
			return "", err
		}
		return "updated", nil
	}

	err = db.WithContext(ctx).Exec(
		`INSERT INTO wp_wc_orders_meta (order_id, meta_key, meta_value)
		 VALUES (?, ?, ?)`,
		orderID,
		key,
		value,
	).Error
	if err != nil {
		return "", err
	}
	return "inserted", nil
}

func (r *repo) FindMetaByEmail(ctx context.Context, db *gorm.DB, email, key string) ([]orderdomain.MetaValueRow, error) {
	var rows []orderdomain.MetaValueRow
	err := db.WithContext(ctx).Raw(
		`SELECT m.order_id, m.meta_value
		 FROM wp_wc_orders o
		 INNER JOIN wp_wc_orders_meta m ON m.order_id = o.id
		 WHERE o.billing_email = ? AND m.meta_key = ?`,
		email,
		key,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) UpdateMetaByEmail(ctx context.Context, db *gorm.DB, email, key, value string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE wp_wc_orders_meta
		 SET meta_value = ?
		 WHERE meta_key = ?
		   AND order_id IN (SELECT id FROM wp_wc_orders WHERE billing_email = ?)`,
		value,
		key,
		email,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
