// Package domain contains the storefront order models and the structured
// customer view built from them.
package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Metadata keys written by the storefront and the gateway plugins. The
// store is append-only in practice, so superseded values survive under
// keys like _old_stripe_source_id and must never be read as current.
const (
	MetaKeyPaymentNumber   = "_asp_upp_payment_number"
	MetaKeySchedulePayment = "_asp_upp_schedule_payment"

	MetaKeyStripeCustomerID  = "_stripe_customer_id"
	MetaKeyStripeSourceID    = "_stripe_source_id"
	MetaKeyOldStripeSourceID = "_old_stripe_source_id"

	MetaKeyDLocalPlanID         = "_dlocal_current_plan_id"
	MetaKeyDLocalSubscriptionID = "_dlocal_current_subscription_id"
	MetaKeyDLocalPaymentID      = "_dlocal_payment_id"
)

const (
	PaymentMethodStripe = "stripe"
	PaymentMethodDLocal = "dlocal"
)

// Order is a row of the storefront order table. A row is either a plan
// ("subscription") order or one of its installments; the distinction is
// carried by metadata linkage, not by the row itself.
type Order struct {
	ID             int64           `gorm:"column:id;primaryKey"`
	Status         string          `gorm:"column:status;type:text"`
	DateCreatedGMT time.Time       `gorm:"column:date_created_gmt"`
	BillingEmail   string          `gorm:"column:billing_email;type:text;index"`
	TotalAmount    decimal.Decimal `gorm:"column:total_amount;type:decimal(26,8)"`
	PaymentMethod  string          `gorm:"column:payment_method;type:text"`

	// Derived, never persisted.
	Meta          MetaMap `gorm:"-" json:"meta,omitempty"`
	PaymentNumber int     `gorm:"-" json:"payment_number"`
}

func (Order) TableName() string { return "wp_wc_orders" }

// IsProcessing reports whether the order is in the active in-flight state.
// The storefront stores statuses with a "wc-" prefix; historical rows
// imported from the legacy store omit it.
func (o Order) IsProcessing() bool {
	return strings.TrimPrefix(o.Status, "wc-") == "processing"
}

// OrderMeta is one key/value row of the storefront order metadata table.
type OrderMeta struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   int64  `gorm:"column:order_id;index"`
	MetaKey   string `gorm:"column:meta_key;type:text"`
	MetaValue string `gorm:"column:meta_value;type:text"`
}

func (OrderMeta) TableName() string { return "wp_wc_orders_meta" }

// MetaMap is an order's metadata flattened to a single map, last write wins.
type MetaMap map[string]string

func NewMetaMap(rows []OrderMeta) MetaMap {
	m := make(MetaMap, len(rows))
	for _, row := range rows {
		m[row.MetaKey] = row.MetaValue
	}
	return m
}

func (m MetaMap) Get(key string) string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[key])
}

func (m MetaMap) Has(key string) bool {
	return m.Get(key) != ""
}

// PaymentNumber parses the installment sequence index, defaulting to 0 on
// absence or parse failure. Upstream data is inconsistent by design of the
// legacy store; this never fails.
func (m MetaMap) PaymentNumber() int {
	raw := m.Get(MetaKeyPaymentNumber)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// OrderGroup is one plan order with its installments ordered ascending by
// payment number.
type OrderGroup struct {
	Parent       Order   `json:"parent"`
	Installments []Order `json:"installments"`
}

// ViewSummary aggregates the customer view for quick boundary decisions.
type ViewSummary struct {
	ParentCount      int  `json:"parent_count"`
	InstallmentCount int  `json:"installment_count"`
	HasStripeMeta    bool `json:"has_stripe_meta"`
	HasDLocalMeta    bool `json:"has_dlocal_meta"`
}

// CustomerView is the loader's output: plan orders newest-identifier-first,
// each with its installments. Constructed fresh per request, never cached.
type CustomerView struct {
	Email   string       `json:"email"`
	Groups  []OrderGroup `json:"groups"`
	Summary ViewSummary  `json:"summary"`
}

// NextInstallment finds the installment whose payment number is current+1,
// scanning groups in view order. The platform's own future installments are
// always preferred over a gateway's generic amount projection, so callers
// use this to override estimates. Returns nil when no continuation exists.
func (v CustomerView) NextInstallment(current int) *Order {
	want := current + 1
	for gi := range v.Groups {
		for ii := range v.Groups[gi].Installments {
			if v.Groups[gi].Installments[ii].PaymentNumber == want {
				return &v.Groups[gi].Installments[ii]
			}
		}
	}
	return nil
}
