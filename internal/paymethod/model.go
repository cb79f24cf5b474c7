// Package paymethod decides which payment gateway currently governs a
// customer's subscription from the reconstructed order hierarchy.
package paymethod

import (
	orderdomain "github.com/suscribo/paygate/internal/order/domain"
)

// Method is the resolved gateway.
type Method string

const (
	MethodStripe  Method = "stripe"
	MethodDLocal  Method = "dlocal"
	MethodOther   Method = "other"
	MethodUnknown Method = "unknown"
)

// Detail keys populated in Resolution.Details.
const (
	DetailCustomerID     = "customer_id"
	DetailSourceID       = "source_id"
	DetailPlanID         = "current_plan_id"
	DetailSubscriptionID = "current_subscription_id"
	DetailDeclaredMethod = "declared_method"
)

// Resolution is the outcome of a single resolve pass. Produced once per
// request and consumed read-only.
type Resolution struct {
	Method                   Method             `json:"payment_method"`
	Details                  map[string]string  `json:"payment_details"`
	LatestProcessing         *orderdomain.Order `json:"latest_processing_installment,omitempty"`
	LatestProcessingParentID int64              `json:"latest_processing_parent_id,omitempty"`
	HasActivePayment         bool               `json:"has_active_payment"`
}
