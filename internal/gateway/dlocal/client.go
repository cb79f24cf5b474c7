package dlocal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/suscribo/paygate/internal/config"
	"github.com/suscribo/paygate/internal/observability/metrics"
	"go.uber.org/zap"
)

var (
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrNotFound           = errors.New("resource_not_found")
)

// ConfigSource yields the current gateway credentials. The holder behind
// it reloads on file change, so credentials are read per request.
type ConfigSource interface {
	Get() config.GatewayConfig
}

// Client calls the dLocal Go subscription API.
type Client struct {
	http   *http.Client
	source ConfigSource
	log    *zap.Logger
}

func NewClient(source ConfigSource, log *zap.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		source: source,
		log:    log.Named("gateway.dlocal"),
	}
}

// MerchantInfo is the authenticated merchant account summary.
type MerchantInfo struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Email   string `json:"email,omitempty"`
}

type executionsResponse struct {
	Data []Execution `json:"data"`
}

// Me verifies the configured credentials against the account endpoint.
func (c *Client) Me(ctx context.Context) (*MerchantInfo, error) {
	var info MerchantInfo
	if err := c.do(ctx, "me", http.MethodGet, "/v1/me", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CreatePlan registers a recurring billing plan.
func (c *Client) CreatePlan(ctx context.Context, plan Plan) (*Plan, error) {
	var created Plan
	if err := c.do(ctx, "create_plan", http.MethodPost, "/v1/subscription/plan", plan, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// SubscriptionDetails fetches one subscription with its plan embedded.
func (c *Client) SubscriptionDetails(ctx context.Context, planID, subscriptionID string) (*Subscription, error) {
	path := fmt.Sprintf("/v1/subscription/plan/%s/subscription/%s", planID, subscriptionID)
	var sub Subscription
	if err := c.do(ctx, "subscription_details", http.MethodGet, path, nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListExecutions fetches every charge attempt of a subscription.
func (c *Client) ListExecutions(ctx context.Context, planID, subscriptionID string) ([]Execution, error) {
	path := fmt.Sprintf("/v1/subscription/plan/%s/subscription/%s/execution/all", planID, subscriptionID)
	var resp executionsResponse
	if err := c.do(ctx, "list_executions", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetExecution fetches a single charge attempt.
func (c *Client) GetExecution(ctx context.Context, planID, subscriptionID, executionID string) (*Execution, error) {
	path := fmt.Sprintf("/v1/subscription/plan/%s/subscription/%s/execution/%s", planID, subscriptionID, executionID)
	var exec Execution
	if err := c.do(ctx, "get_execution", http.MethodGet, path, nil, &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// DeactivateSubscription stops future charges of a subscription.
func (c *Client) DeactivateSubscription(ctx context.Context, planID, subscriptionID string) error {
	path := fmt.Sprintf("/v1/subscription/plan/%s/subscription/%s/deactivate", planID, subscriptionID)
	return c.do(ctx, "deactivate_subscription", http.MethodPatch, path, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	cfg := c.source.Get().DLocal

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey+":"+cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.Default().IncGatewayRequest("dlocal", op, "error")
		c.log.Error("dlocal request failed",
			zap.String("op", op), zap.String("path", path), zap.Error(err))
		return ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.Default().IncGatewayRequest("dlocal", op, "not_found")
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		metrics.Default().IncGatewayRequest("dlocal", op, "error")
		c.log.Error("dlocal request rejected",
			zap.String("op", op), zap.String("path", path), zap.Int("status", resp.StatusCode))
		return ErrGatewayUnavailable
	}

	metrics.Default().IncGatewayRequest("dlocal", op, "ok")
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
