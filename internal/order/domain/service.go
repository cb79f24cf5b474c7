package domain

import (
	"context"
	"errors"
)

var (
	ErrStoreUnavailable = errors.New("store_unavailable")
	ErrOrderNotFound    = errors.New("order_not_found")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidMetaKey   = errors.New("invalid_meta_key")
)

// RotateResult reports a stripe source rotation across a customer's orders.
type RotateResult struct {
	OrdersFound  int   `json:"orders_found"`
	UpdatedCount int64 `json:"updated_count"`
}

type Service interface {
	// Load reconstructs the customer's order hierarchy. A customer with no
	// orders yields an empty view, not an error; only a failing top-level
	// store query returns ErrStoreUnavailable.
	Load(ctx context.Context, email string) (CustomerView, error)

	// WriteOrderMeta upserts one metadata key on one order.
	WriteOrderMeta(ctx context.Context, orderID int64, key, value string) (string, error)

	// RotateStripeSource points every order of the customer that carries a
	// stripe source at the new payment method, preserving each previous
	// value under the old-source key first.
	RotateStripeSource(ctx context.Context, email, newSourceID string) (RotateResult, error)
}
