package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/suscribo/paygate/internal/audit"
	dlocalgw "github.com/suscribo/paygate/internal/gateway/dlocal"
	stripegw "github.com/suscribo/paygate/internal/gateway/stripe"
	orderdomain "github.com/suscribo/paygate/internal/order/domain"
	"github.com/suscribo/paygate/internal/paymethod"
	"github.com/suscribo/paygate/pkg/db/pagination"
	"go.uber.org/zap"
)

type nextPaymentResponse struct {
	dlocalgw.NextPaymentEstimate
	AmountSource string `json:"amount_source,omitempty"`
}

type paymentMethodResponse struct {
	Email       string                  `json:"email"`
	AsOf        time.Time               `json:"as_of"`
	Resolution  paymethod.Resolution    `json:"resolution"`
	Summary     orderdomain.ViewSummary `json:"summary"`
	NextPayment *nextPaymentResponse    `json:"next_payment,omitempty"`
}

// GetPaymentMethod resolves the customer's current gateway from their
// order history and, for dLocal, projects the next charge.
func (s *Server) GetPaymentMethod(c *gin.Context) {
	email, err := s.tokens.Decrypt(c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := s.orderSvc.Load(c.Request.Context(), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resolution := s.resolver.Resolve(view)
	resp := paymentMethodResponse{
		Email:      email,
		AsOf:       s.timeClock.Now().UTC(),
		Resolution: resolution,
		Summary:    view.Summary,
	}
	if resolution.Method == paymethod.MethodDLocal {
		resp.NextPayment = s.estimateNextPayment(c.Request.Context(), resolution, view)
	}

	c.JSON(http.StatusOK, resp)
}

// estimateNextPayment fetches the dLocal subscription state and projects
// the next charge. Gateway trouble degrades to a reasoned non-estimate;
// resolution output is already on the wire path and must not fail here.
func (s *Server) estimateNextPayment(ctx context.Context, resolution paymethod.Resolution, view orderdomain.CustomerView) *nextPaymentResponse {
	planID := resolution.Details[paymethod.DetailPlanID]
	subscriptionID := resolution.Details[paymethod.DetailSubscriptionID]
	if planID == "" || subscriptionID == "" {
		return &nextPaymentResponse{NextPaymentEstimate: dlocalgw.NextPaymentEstimate{
			Reason: "missing dlocal identifiers",
		}}
	}

	sub, err := s.dlocal.SubscriptionDetails(ctx, planID, subscriptionID)
	if err != nil || sub == nil {
		s.log.Warn("dlocal subscription lookup failed",
			zap.String("plan_id", planID), zap.Error(err))
		return &nextPaymentResponse{NextPaymentEstimate: dlocalgw.NextPaymentEstimate{
			Reason: "subscription details unavailable",
		}}
	}

	executions, err := s.dlocal.ListExecutions(ctx, planID, subscriptionID)
	if err != nil {
		s.log.Warn("dlocal execution history lookup failed",
			zap.String("plan_id", planID), zap.Error(err))
		return &nextPaymentResponse{NextPaymentEstimate: dlocalgw.NextPaymentEstimate{
			Reason: "execution history unavailable",
		}}
	}

	estimate := dlocalgw.EstimateNextPayment(sub.Plan, sub, executions)
	resp := &nextPaymentResponse{NextPaymentEstimate: estimate, AmountSource: "plan"}

	// The platform's own scheduled installments carry the contractual
	// amount; they win over the plan's generic amount when one exists.
	if resolution.LatestProcessing != nil {
		if next := view.NextInstallment(resolution.LatestProcessing.PaymentNumber); next != nil {
			resp.Amount = next.TotalAmount
			resp.AmountSource = "installment_schedule"
		}
	}
	return resp
}

// CreateStripeSetupIntent opens a card collection handshake for the
// customer behind the token.
func (s *Server) CreateStripeSetupIntent(c *gin.Context) {
	email, err := s.tokens.Decrypt(c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ctx := c.Request.Context()

	customer, err := s.stripe.FindCustomerByEmail(ctx, email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	intent, err := s.stripe.CreateSetupIntent(ctx, customer.ID)
	if err != nil {
		s.auditSvc.Record(ctx, email, "stripe", "create_setup_intent", audit.OutcomeFailed, nil)
		AbortWithError(c, err)
		return
	}

	s.auditSvc.Record(ctx, email, "stripe", "create_setup_intent", audit.OutcomeSucceeded, map[string]any{
		"setup_intent": intent.ID,
		"customer":     customer.ID,
	})
	c.JSON(http.StatusOK, gin.H{
		"setup_intent_id": intent.ID,
		"client_secret":   intent.ClientSecret,
	})
}

type confirmStripeRequest struct {
	SetupIntentID string `json:"setup_intent_id" binding:"required"`
}

// ConfirmStripeSetupIntent verifies a completed setup intent server side,
// promotes the collected card and rotates the stored source ids.
func (s *Server) ConfirmStripeSetupIntent(c *gin.Context) {
	email, err := s.tokens.Decrypt(c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req confirmStripeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("setup_intent_id", "invalid_setup_intent_id", "setup_intent_id is required"))
		return
	}
	ctx := c.Request.Context()

	intent, err := s.stripe.GetSetupIntent(ctx, req.SetupIntentID)
	if err != nil {
		s.auditSvc.Record(ctx, email, "stripe", "confirm_setup_intent", audit.OutcomeFailed, map[string]any{
			"setup_intent": req.SetupIntentID,
		})
		AbortWithError(c, err)
		return
	}
	if intent.Status != stripegw.SetupIntentStatusSucceeded || intent.PaymentMethod == "" {
		s.auditSvc.Record(ctx, email, "stripe", "confirm_setup_intent", audit.OutcomeFailed, map[string]any{
			"setup_intent": intent.ID,
			"status":       intent.Status,
		})
		AbortWithError(c, newValidationError("setup_intent_id", "setup_intent_not_succeeded", "setup intent has not succeeded"))
		return
	}

	if _, err := s.stripe.SetDefaultPaymentMethod(ctx, intent.Customer, intent.PaymentMethod); err != nil {
		s.auditSvc.Record(ctx, email, "stripe", "set_default_payment_method", audit.OutcomeFailed, map[string]any{
			"customer": intent.Customer,
		})
		AbortWithError(c, err)
		return
	}

	rotated, err := s.orderSvc.RotateStripeSource(ctx, email, intent.PaymentMethod)
	if err != nil {
		s.auditSvc.Record(ctx, email, "stripe", "rotate_source", audit.OutcomeFailed, nil)
		AbortWithError(c, err)
		return
	}

	s.auditSvc.Record(ctx, email, "stripe", "confirm_setup_intent", audit.OutcomeSucceeded, map[string]any{
		"setup_intent":   intent.ID,
		"payment_method": intent.PaymentMethod,
		"orders_found":   rotated.OrdersFound,
		"updated_count":  rotated.UpdatedCount,
	})
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"orders_found":  rotated.OrdersFound,
		"updated_count": rotated.UpdatedCount,
	})
}

type createDLocalPlanRequest struct {
	Name           string          `json:"name" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Currency       string          `json:"currency" binding:"required"`
	Country        string          `json:"country"`
	FrequencyType  string          `json:"frequency_type" binding:"required"`
	FrequencyValue int             `json:"frequency_value"`
}

// CreateDLocalPlan provisions a recurring plan at dLocal and records its
// identifier on the customer's current plan order.
func (s *Server) CreateDLocalPlan(c *gin.Context) {
	email, err := s.tokens.Decrypt(c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createDLocalPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid plan request"))
		return
	}
	if !req.Amount.IsPositive() {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
		return
	}
	switch req.FrequencyType {
	case dlocalgw.FrequencyDaily, dlocalgw.FrequencyWeekly, dlocalgw.FrequencyMonthly, dlocalgw.FrequencyYearly:
	default:
		AbortWithError(c, newValidationError("frequency_type", "invalid_frequency_type", "unrecognized frequency type"))
		return
	}
	ctx := c.Request.Context()

	created, err := s.dlocal.CreatePlan(ctx, dlocalgw.Plan{
		Name:           req.Name,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Country:        req.Country,
		FrequencyType:  req.FrequencyType,
		FrequencyValue: req.FrequencyValue,
	})
	if err != nil {
		s.auditSvc.Record(ctx, email, "dlocal", "create_plan", audit.OutcomeFailed, nil)
		AbortWithError(c, err)
		return
	}

	metaWritten := s.recordPlanOnParent(ctx, email, created.ID)
	s.auditSvc.Record(ctx, email, "dlocal", "create_plan", audit.OutcomeSucceeded, map[string]any{
		"plan_id":      created.ID,
		"meta_written": metaWritten,
	})
	c.JSON(http.StatusOK, gin.H{
		"plan":         created,
		"meta_written": metaWritten,
	})
}

// recordPlanOnParent stores the new plan id on the plan order owning the
// latest in-flight installment. Without one the plan still exists at the
// gateway; the caller reports meta_written false and support follows up.
func (s *Server) recordPlanOnParent(ctx context.Context, email string, planID int64) bool {
	view, err := s.orderSvc.Load(ctx, email)
	if err != nil {
		s.log.Warn("loading orders for plan meta write failed",
			zap.String("email", email), zap.Error(err))
		return false
	}
	resolution := s.resolver.Resolve(view)
	if !resolution.HasActivePayment || resolution.LatestProcessingParentID == 0 {
		return false
	}

	_, err = s.orderSvc.WriteOrderMeta(ctx, resolution.LatestProcessingParentID,
		orderdomain.MetaKeyDLocalPlanID, strconv.FormatInt(planID, 10))
	if err != nil {
		s.log.Warn("writing plan id meta failed",
			zap.Int64("order_id", resolution.LatestProcessingParentID), zap.Error(err))
		return false
	}
	return true
}

// ListChangeHistory returns one page of recorded change attempts for the
// customer.
func (s *Server) ListChangeHistory(c *gin.Context) {
	email, err := s.tokens.Decrypt(c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Params
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid paging parameters"))
		return
	}

	attempts, info, err := s.auditSvc.HistoryByEmail(c.Request.Context(), email, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"attempts":  attempts,
		"page_info": info,
	})
}
