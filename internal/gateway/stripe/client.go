// Package stripe is a minimal client for the Stripe endpoints the payment
// method change flow needs.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/suscribo/paygate/internal/config"
	"github.com/suscribo/paygate/internal/observability/metrics"
	"go.uber.org/zap"
)

var (
	ErrCustomerNotFound   = errors.New("customer_not_found")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
)

// SetupIntent statuses the confirm flow cares about.
const SetupIntentStatusSucceeded = "succeeded"

// ConfigSource yields the current gateway credentials.
type ConfigSource interface {
	Get() config.GatewayConfig
}

// Client calls the Stripe API. Requests are form encoded per the Stripe
// wire format; responses are JSON.
type Client struct {
	http   *http.Client
	source ConfigSource
	log    *zap.Logger
}

func NewClient(source ConfigSource, log *zap.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		source: source,
		log:    log.Named("gateway.stripe"),
	}
}

// Customer is a Stripe customer record.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SetupIntent is the card collection handshake object.
type SetupIntent struct {
	ID            string `json:"id"`
	ClientSecret  string `json:"client_secret"`
	Status        string `json:"status"`
	Customer      string `json:"customer"`
	PaymentMethod string `json:"payment_method"`
}

type customerList struct {
	Data []Customer `json:"data"`
}

// FindCustomerByEmail looks up the newest customer registered under an
// email address.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	query := url.Values{}
	query.Set("email", email)
	query.Set("limit", "1")

	var list customerList
	if err := c.do(ctx, "find_customer", http.MethodGet, "/v1/customers?"+query.Encode(), nil, &list); err != nil {
		return nil, err
	}
	if len(list.Data) == 0 {
		return nil, ErrCustomerNotFound
	}
	return &list.Data[0], nil
}

// CreateSetupIntent opens a card collection handshake for off-session
// recurring charges.
func (c *Client) CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Add("payment_method_types[]", "card")
	form.Set("usage", "off_session")

	var intent SetupIntent
	if err := c.do(ctx, "create_setup_intent", http.MethodPost, "/v1/setup_intents", form, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// GetSetupIntent fetches a setup intent so its status and collected
// payment method can be verified server side.
func (c *Client) GetSetupIntent(ctx context.Context, intentID string) (*SetupIntent, error) {
	var intent SetupIntent
	if err := c.do(ctx, "get_setup_intent", http.MethodGet, "/v1/setup_intents/"+url.PathEscape(intentID), nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// SetDefaultPaymentMethod points future invoices of a customer at a
// collected payment method.
func (c *Client) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*Customer, error) {
	form := url.Values{}
	form.Set("invoice_settings[default_payment_method]", paymentMethodID)

	var customer Customer
	if err := c.do(ctx, "set_default_payment_method", http.MethodPost, "/v1/customers/"+url.PathEscape(customerID), form, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, out any) error {
	cfg := c.source.Get().Stripe

	var body string
	if form != nil {
		body = form.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.Default().IncGatewayRequest("stripe", op, "error")
		c.log.Error("stripe request failed",
			zap.String("op", op), zap.String("path", path), zap.Error(err))
		return ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.Default().IncGatewayRequest("stripe", op, "not_found")
		return ErrCustomerNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		metrics.Default().IncGatewayRequest("stripe", op, "error")
		c.log.Error("stripe request rejected",
			zap.String("op", op), zap.String("path", path), zap.Int("status", resp.StatusCode))
		return ErrGatewayUnavailable
	}

	metrics.Default().IncGatewayRequest("stripe", op, "ok")
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
