package domain

import (
	"context"

	"gorm.io/gorm"
)

// MetaValueRow pairs an order with the value one of its meta keys holds.
type MetaValueRow struct {
	OrderID   int64  `gorm:"column:order_id"`
	MetaValue string `gorm:"column:meta_value"`
}

type Repository interface {
	// FindParentCandidates returns the customer's orders that do not
	// reference another order via the schedule-payment pointer, newest
	// identifier first. First installments linked only by the id-minus-one
	// convention are still in this set; the loader reclassifies them.
	FindParentCandidates(ctx context.Context, db *gorm.DB, email string) ([]Order, error)

	// FindInstallmentsByPointer returns orders whose schedule-payment
	// pointer references the given plan order.
	FindInstallmentsByPointer(ctx context.Context, db *gorm.DB, parentID int64) ([]Order, error)

	FindOrderByID(ctx context.Context, db *gorm.DB, id int64) (*Order, error)

	// FindOrderMeta returns every metadata row of one order. One query per
	// order on purpose: concatenated aggregation in the store truncates
	// beyond a size limit and silently drops keys.
	FindOrderMeta(ctx context.Context, db *gorm.DB, orderID int64) ([]OrderMeta, error)

	// UpsertOrderMeta writes a single key, returning "inserted" or "updated".
	UpsertOrderMeta(ctx context.Context, db *gorm.DB, orderID int64, key, value string) (string, error)

	// FindMetaByEmail returns the value of one meta key across all of the
	// customer's orders that carry it.
	FindMetaByEmail(ctx context.Context, db *gorm.DB, email, key string) ([]MetaValueRow, error)

	// UpdateMetaByEmail rewrites one meta key for every order of the
	// customer that already carries it. It never inserts.
	UpdateMetaByEmail(ctx context.Context, db *gorm.DB, email, key, value string) (int64, error)
}
