package dlocal

import (
	"fmt"
	"strings"
	"time"
)

// EstimateNextPayment projects the next charge of a subscription from its
// execution history and plan cadence. Pure over its inputs and total: bad
// data yields CanEstimate false with a reason, never an error or panic.
func EstimateNextPayment(plan *Plan, sub *Subscription, executions []Execution) NextPaymentEstimate {
	estimate := NextPaymentEstimate{}
	if plan == nil {
		estimate.Reason = "plan details unavailable"
		return estimate
	}
	if plan.FrequencyType == "" && plan.Amount.IsZero() {
		estimate.Reason = "insufficient information"
		return estimate
	}
	estimate.Amount = plan.Amount
	estimate.Currency = plan.Currency

	latest, found := latestCompleted(executions)
	if !found {
		// Nothing charged yet: the enrollment's own scheduled date is the
		// first payment date.
		estimate.IsFirstPayment = true
		if sub == nil || sub.ScheduledDate == "" {
			estimate.Reason = "no completed executions and no scheduled date"
			return estimate
		}
		scheduled, ok := parseGatewayDate(sub.ScheduledDate)
		if !ok {
			estimate.Reason = fmt.Sprintf("unparseable scheduled date %q", sub.ScheduledDate)
			return estimate
		}
		estimate.EstimatedDate = &scheduled
		estimate.CanEstimate = true
		return estimate
	}

	base, ok := parseGatewayDate(latest.CreatedAt)
	if !ok {
		estimate.Reason = fmt.Sprintf("unparseable execution date %q", latest.CreatedAt)
		return estimate
	}

	next, ok := addCadence(base, plan.FrequencyType, plan.FrequencyValue)
	if !ok {
		estimate.Reason = fmt.Sprintf("unrecognized frequency type %q", plan.FrequencyType)
		return estimate
	}

	estimate.EstimatedDate = &next
	estimate.CanEstimate = true
	return estimate
}

// latestCompleted picks the completed execution with the greatest creation
// date. Executions whose dates do not parse still count by list position,
// so a history of unparseable rows does not look like a first payment.
func latestCompleted(executions []Execution) (Execution, bool) {
	var (
		best     Execution
		bestTime time.Time
		bestOK   bool
		found    bool
	)
	for _, exec := range executions {
		if exec.Status != ExecutionStatusCompleted {
			continue
		}
		t, ok := parseGatewayDate(exec.CreatedAt)
		switch {
		case !found:
			best, bestTime, bestOK = exec, t, ok
		case ok && (!bestOK || t.After(bestTime)):
			best, bestTime, bestOK = exec, t, ok
		}
		found = true
	}
	return best, found
}

// addCadence advances a date by one plan period. Weeks and days are exact;
// months and years use the fixed 30 and 365 day approximations the billing
// plans were sold under. Frequency types match case-insensitively; the
// caller names the raw value when declining.
func addCadence(base time.Time, frequencyType string, frequencyValue int) (time.Time, bool) {
	if frequencyValue <= 0 {
		frequencyValue = 1
	}
	var days int
	switch strings.ToUpper(frequencyType) {
	case FrequencyDaily:
		days = frequencyValue
	case FrequencyWeekly:
		days = 7 * frequencyValue
	case FrequencyMonthly:
		days = 30 * frequencyValue
	case FrequencyYearly:
		days = 365 * frequencyValue
	default:
		return time.Time{}, false
	}
	return base.AddDate(0, 0, days), true
}

var gatewayDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseGatewayDate(raw string) (time.Time, bool) {
	for _, layout := range gatewayDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
