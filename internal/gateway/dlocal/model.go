// Package dlocal is the client and estimation logic for the dLocal Go
// subscription API.
package dlocal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution statuses reported by the subscription API.
const (
	ExecutionStatusCompleted = "COMPLETED"
	ExecutionStatusPending   = "PENDING"
	ExecutionStatusFailed    = "FAILED"
)

// Plan frequency types. Anything else is treated as unrecognized and the
// estimator declines rather than guessing.
const (
	FrequencyDaily   = "DAILY"
	FrequencyWeekly  = "WEEKLY"
	FrequencyMonthly = "MONTHLY"
	FrequencyYearly  = "YEARLY"
)

// Plan is a recurring billing plan.
type Plan struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Country        string          `json:"country,omitempty"`
	FrequencyType  string          `json:"frequency_type"`
	FrequencyValue int             `json:"frequency_value"`
	Active         bool            `json:"active,omitempty"`
}

// Subscription is an enrollment of a customer into a plan.
type Subscription struct {
	ID            int64  `json:"id"`
	Status        string `json:"status,omitempty"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
	ClientEmail   string `json:"client_email,omitempty"`
	Plan          *Plan  `json:"plan,omitempty"`
}

// Execution is one charge attempt of a subscription.
type Execution struct {
	ID            int64           `json:"id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	CreatedAt     string          `json:"created_at"`
	ScheduledDate string          `json:"scheduled_date,omitempty"`
	Subscription  *Subscription   `json:"subscription,omitempty"`
}

// NextPaymentEstimate is the projected next charge. CanEstimate false
// means the inputs do not support a projection; Reason says why.
type NextPaymentEstimate struct {
	EstimatedDate  *time.Time      `json:"estimated_date,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	IsFirstPayment bool            `json:"is_first_payment"`
	CanEstimate    bool            `json:"can_estimate"`
	Reason         string          `json:"reason,omitempty"`
}
