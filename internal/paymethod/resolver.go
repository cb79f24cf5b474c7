package paymethod

import (
	"strings"

	"github.com/suscribo/paygate/internal/observability/metrics"
	orderdomain "github.com/suscribo/paygate/internal/order/domain"
	"go.uber.org/zap"
)

// Resolver turns a customer view into a gateway resolution. It is pure:
// no I/O, every input already materialized by the loader.
type Resolver struct {
	log *zap.Logger
}

func NewResolver(log *zap.Logger) *Resolver {
	return &Resolver{log: log.Named("paymethod.resolver")}
}

// candidate is the order pair a rule inspects: the most recent in-flight
// installment and the plan order that owns it.
type candidate struct {
	installment orderdomain.Order
	parent      orderdomain.Order
}

// rule is one prioritized resolution step. The first rule whose match
// returns true wins; later rules are never consulted.
type rule struct {
	name  string
	match func(c candidate) (Method, map[string]string, bool)
}

var rules = []rule{
	{name: "declared_dlocal", match: matchDeclaredDLocal},
	{name: "declared_stripe", match: matchDeclaredStripe},
	{name: "stripe_meta_pair", match: matchStripeMetaPair},
	{name: "dlocal_meta_pair", match: matchDLocalMetaPair},
	{name: "declared_other", match: matchDeclaredOther},
}

// Resolve walks the rule list against the most recent in-flight
// installment. A view with no in-flight installment resolves to unknown.
func (r *Resolver) Resolve(view orderdomain.CustomerView) Resolution {
	c, ok := latestProcessing(view)
	if !ok {
		r.log.Debug("no in-flight installment", zap.String("email", view.Email))
		metrics.Default().IncResolution(string(MethodUnknown))
		return Resolution{Method: MethodUnknown, Details: map[string]string{}}
	}

	resolution := Resolution{
		Method:                   MethodUnknown,
		Details:                  map[string]string{},
		LatestProcessing:         &c.installment,
		LatestProcessingParentID: c.parent.ID,
	}
	for _, rl := range rules {
		method, details, matched := rl.match(c)
		if !matched {
			continue
		}
		resolution.Method = method
		resolution.Details = details
		r.log.Debug("payment method resolved",
			zap.String("email", view.Email),
			zap.String("rule", rl.name),
			zap.String("method", string(method)),
			zap.Int64("installment_id", c.installment.ID))
		break
	}

	// An in-flight installment alone is not an active payment; the method
	// has to actually resolve.
	resolution.HasActivePayment = resolution.Method != MethodUnknown

	metrics.Default().IncResolution(string(resolution.Method))
	return resolution
}

// latestProcessing selects the in-flight installment to resolve against:
// the latest creation timestamp wins, ties go to the highest payment
// number, remaining ties to the first encountered in view order.
func latestProcessing(view orderdomain.CustomerView) (candidate, bool) {
	var best candidate
	found := false
	for _, group := range view.Groups {
		for _, inst := range group.Installments {
			if !inst.IsProcessing() {
				continue
			}
			if !found || newer(inst, best.installment) {
				best = candidate{installment: inst, parent: group.Parent}
				found = true
			}
		}
	}
	return best, found
}

func newer(a, b orderdomain.Order) bool {
	if !a.DateCreatedGMT.Equal(b.DateCreatedGMT) {
		return a.DateCreatedGMT.After(b.DateCreatedGMT)
	}
	return a.PaymentNumber > b.PaymentNumber
}

func declaredMethod(o orderdomain.Order) string {
	return strings.ToLower(strings.TrimSpace(o.PaymentMethod))
}

func matchDeclaredDLocal(c candidate) (Method, map[string]string, bool) {
	if declaredMethod(c.installment) != orderdomain.PaymentMethodDLocal {
		return "", nil, false
	}
	return MethodDLocal, dlocalDetails(c), true
}

func matchDeclaredStripe(c candidate) (Method, map[string]string, bool) {
	if declaredMethod(c.installment) != orderdomain.PaymentMethodStripe {
		return "", nil, false
	}
	return MethodStripe, stripeDetails(c), true
}

// matchStripeMetaPair catches rows whose declared method was lost or
// mangled but whose Stripe identifiers survive on the installment itself.
func matchStripeMetaPair(c candidate) (Method, map[string]string, bool) {
	if !c.installment.Meta.Has(orderdomain.MetaKeyStripeCustomerID) ||
		!c.installment.Meta.Has(orderdomain.MetaKeyStripeSourceID) {
		return "", nil, false
	}
	return MethodStripe, stripeDetails(c), true
}

// matchDLocalMetaPair accepts the identifier pair from either the
// installment or its plan order; dLocal's plugin historically wrote plan
// identifiers on the parent only.
func matchDLocalMetaPair(c candidate) (Method, map[string]string, bool) {
	planID, subscriptionID := dlocalIDs(c)
	if planID == "" || subscriptionID == "" {
		return "", nil, false
	}
	return MethodDLocal, dlocalDetails(c), true
}

func matchDeclaredOther(c candidate) (Method, map[string]string, bool) {
	declared := declaredMethod(c.installment)
	if declared == "" {
		return "", nil, false
	}
	return MethodOther, map[string]string{DetailDeclaredMethod: declared}, true
}

// dlocalIDs reads the plan and subscription identifiers, installment
// first, falling back to the plan order.
func dlocalIDs(c candidate) (planID, subscriptionID string) {
	planID = c.installment.Meta.Get(orderdomain.MetaKeyDLocalPlanID)
	if planID == "" {
		planID = c.parent.Meta.Get(orderdomain.MetaKeyDLocalPlanID)
	}
	subscriptionID = c.installment.Meta.Get(orderdomain.MetaKeyDLocalSubscriptionID)
	if subscriptionID == "" {
		subscriptionID = c.parent.Meta.Get(orderdomain.MetaKeyDLocalSubscriptionID)
	}
	return planID, subscriptionID
}

func dlocalDetails(c candidate) map[string]string {
	details := map[string]string{}
	planID, subscriptionID := dlocalIDs(c)
	if planID != "" {
		details[DetailPlanID] = planID
	}
	if subscriptionID != "" {
		details[DetailSubscriptionID] = subscriptionID
	}
	return details
}

func stripeDetails(c candidate) map[string]string {
	details := map[string]string{}
	if v := c.installment.Meta.Get(orderdomain.MetaKeyStripeCustomerID); v != "" {
		details[DetailCustomerID] = v
	}
	if v := c.installment.Meta.Get(orderdomain.MetaKeyStripeSourceID); v != "" {
		details[DetailSourceID] = v
	}
	return details
}
