package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suscribo/paygate/internal/audit"
	"github.com/suscribo/paygate/internal/clock"
	"github.com/suscribo/paygate/internal/config"
	dlocalgw "github.com/suscribo/paygate/internal/gateway/dlocal"
	stripegw "github.com/suscribo/paygate/internal/gateway/stripe"
	orderdomain "github.com/suscribo/paygate/internal/order/domain"
	"github.com/suscribo/paygate/internal/paymethod"
	"github.com/suscribo/paygate/pkg/db/pagination"
	"github.com/suscribo/paygate/pkg/emailtoken"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOrderService struct {
	view        orderdomain.CustomerView
	loadErr     error
	rotated     orderdomain.RotateResult
	rotateErr   error
	wroteMeta   map[int64]map[string]string
	writeMetaOp string
}

func (f *fakeOrderService) Load(ctx context.Context, email string) (orderdomain.CustomerView, error) {
	if f.loadErr != nil {
		return orderdomain.CustomerView{}, f.loadErr
	}
	return f.view, nil
}

func (f *fakeOrderService) WriteOrderMeta(ctx context.Context, orderID int64, key, value string) (string, error) {
	if f.wroteMeta == nil {
		f.wroteMeta = map[int64]map[string]string{}
	}
	if f.wroteMeta[orderID] == nil {
		f.wroteMeta[orderID] = map[string]string{}
	}
	f.wroteMeta[orderID][key] = value
	if f.writeMetaOp == "" {
		return "inserted", nil
	}
	return f.writeMetaOp, nil
}

func (f *fakeOrderService) RotateStripeSource(ctx context.Context, email, newSourceID string) (orderdomain.RotateResult, error) {
	if f.rotateErr != nil {
		return orderdomain.RotateResult{}, f.rotateErr
	}
	return f.rotated, nil
}

type fakeDLocal struct {
	sub        *dlocalgw.Subscription
	subErr     error
	executions []dlocalgw.Execution
	execErr    error
	created    *dlocalgw.Plan
	createErr  error
}

func (f *fakeDLocal) SubscriptionDetails(ctx context.Context, planID, subscriptionID string) (*dlocalgw.Subscription, error) {
	return f.sub, f.subErr
}

func (f *fakeDLocal) ListExecutions(ctx context.Context, planID, subscriptionID string) ([]dlocalgw.Execution, error) {
	return f.executions, f.execErr
}

func (f *fakeDLocal) CreatePlan(ctx context.Context, plan dlocalgw.Plan) (*dlocalgw.Plan, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.created != nil {
		return f.created, nil
	}
	plan.ID = 42
	return &plan, nil
}

type fakeStripe struct {
	customer   *stripegw.Customer
	findErr    error
	intent     *stripegw.SetupIntent
	createErr  error
	getErr     error
	defaultErr error
}

func (f *fakeStripe) FindCustomerByEmail(ctx context.Context, email string) (*stripegw.Customer, error) {
	return f.customer, f.findErr
}

func (f *fakeStripe) CreateSetupIntent(ctx context.Context, customerID string) (*stripegw.SetupIntent, error) {
	return f.intent, f.createErr
}

func (f *fakeStripe) GetSetupIntent(ctx context.Context, intentID string) (*stripegw.SetupIntent, error) {
	return f.intent, f.getErr
}

func (f *fakeStripe) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*stripegw.Customer, error) {
	if f.defaultErr != nil {
		return nil, f.defaultErr
	}
	return &stripegw.Customer{ID: customerID}, nil
}

type testServer struct {
	srv    *Server
	orders *fakeOrderService
	dlocal *fakeDLocal
	stripe *fakeStripe
	token  string
}

func newTestServer(t *testing.T, orders *fakeOrderService, dl *fakeDLocal, st *fakeStripe) *testServer {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, audit.Migrate(gdb))
	auditSvc, err := audit.NewService(audit.ServiceParam{DB: gdb, Log: zap.NewNop()})
	require.NoError(t, err)

	codec, err := emailtoken.NewCodec("test-secret")
	require.NoError(t, err)
	token, err := codec.Encrypt("buyer@example.com")
	require.NoError(t, err)

	srv := &Server{
		engine:    NewEngine(),
		cfg:       config.Config{},
		log:       zap.NewNop(),
		orderSvc:  orders,
		resolver:  paymethod.NewResolver(zap.NewNop()),
		dlocal:    dl,
		stripe:    st,
		auditSvc:  auditSvc,
		tokens:    codec,
		timeClock: clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	srv.registerAPIRoutes()

	return &testServer{srv: srv, orders: orders, dlocal: dl, stripe: st, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(w, req)
	return w
}

func dlocalView() orderdomain.CustomerView {
	return orderdomain.CustomerView{
		Email: "buyer@example.com",
		Groups: []orderdomain.OrderGroup{{
			Parent: orderdomain.Order{ID: 100, Meta: orderdomain.MetaMap{
				orderdomain.MetaKeyDLocalPlanID:         "5",
				orderdomain.MetaKeyDLocalSubscriptionID: "9",
			}},
			Installments: []orderdomain.Order{
				{
					ID:             105,
					Status:         "wc-processing",
					PaymentMethod:  "dlocal",
					DateCreatedGMT: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
					Meta:           orderdomain.MetaMap{},
					PaymentNumber:  2,
				},
				{
					ID:            106,
					Status:        "wc-pending",
					TotalAmount:   decimal.RequireFromString("24.90"),
					Meta:          orderdomain.MetaMap{},
					PaymentNumber: 3,
				},
			},
		}},
	}
}

func TestGetPaymentMethodDLocal(t *testing.T) {
	dl := &fakeDLocal{
		sub: &dlocalgw.Subscription{
			ID: 9,
			Plan: &dlocalgw.Plan{
				ID:             5,
				Amount:         decimal.RequireFromString("19.90"),
				Currency:       "BRL",
				FrequencyType:  dlocalgw.FrequencyMonthly,
				FrequencyValue: 1,
			},
		},
		executions: []dlocalgw.Execution{
			{Status: dlocalgw.ExecutionStatusCompleted, CreatedAt: "2024-05-01T00:00:00Z"},
		},
	}
	ts := newTestServer(t, &fakeOrderService{view: dlocalView()}, dl, &fakeStripe{})

	w := ts.do(t, http.MethodGet, "/api/payment-methods/"+ts.token, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp paymentMethodResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "buyer@example.com", resp.Email)
	assert.Equal(t, paymethod.MethodDLocal, resp.Resolution.Method)
	assert.Equal(t, "5", resp.Resolution.Details[paymethod.DetailPlanID])
	require.NotNil(t, resp.NextPayment)
	assert.True(t, resp.NextPayment.CanEstimate)
	require.NotNil(t, resp.NextPayment.EstimatedDate)
	assert.Equal(t, "2024-05-31", resp.NextPayment.EstimatedDate.Format("2006-01-02"))
	// Installment 106 is payment number 3, the continuation of number 2.
	assert.Equal(t, "installment_schedule", resp.NextPayment.AmountSource)
	assert.Equal(t, "24.9", resp.NextPayment.Amount.String())
}

func TestGetPaymentMethodGatewayDegrades(t *testing.T) {
	dl := &fakeDLocal{subErr: dlocalgw.ErrGatewayUnavailable}
	ts := newTestServer(t, &fakeOrderService{view: dlocalView()}, dl, &fakeStripe{})

	w := ts.do(t, http.MethodGet, "/api/payment-methods/"+ts.token, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp paymentMethodResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, paymethod.MethodDLocal, resp.Resolution.Method)
	require.NotNil(t, resp.NextPayment)
	assert.False(t, resp.NextPayment.CanEstimate)
	assert.Equal(t, "subscription details unavailable", resp.NextPayment.Reason)
}

func TestGetPaymentMethodInvalidToken(t *testing.T) {
	ts := newTestServer(t, &fakeOrderService{}, &fakeDLocal{}, &fakeStripe{})

	w := ts.do(t, http.MethodGet, "/api/payment-methods/garbage", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPaymentMethodStoreUnavailable(t *testing.T) {
	ts := newTestServer(t, &fakeOrderService{loadErr: orderdomain.ErrStoreUnavailable}, &fakeDLocal{}, &fakeStripe{})

	w := ts.do(t, http.MethodGet, "/api/payment-methods/"+ts.token, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateStripeSetupIntent(t *testing.T) {
	st := &fakeStripe{
		customer: &stripegw.Customer{ID: "cus_1", Email: "buyer@example.com"},
		intent:   &stripegw.SetupIntent{ID: "seti_1", ClientSecret: "seti_1_secret"},
	}
	ts := newTestServer(t, &fakeOrderService{}, &fakeDLocal{}, st)

	w := ts.do(t, http.MethodPost, "/api/payment-methods/"+ts.token+"/stripe/setup-intent", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "seti_1", resp["setup_intent_id"])
	assert.Equal(t, "seti_1_secret", resp["client_secret"])
}

func TestCreateStripeSetupIntentUnknownCustomer(t *testing.T) {
	st := &fakeStripe{findErr: stripegw.ErrCustomerNotFound}
	ts := newTestServer(t, &fakeOrderService{}, &fakeDLocal{}, st)

	w := ts.do(t, http.MethodPost, "/api/payment-methods/"+ts.token+"/stripe/setup-intent", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfirmStripeSetupIntent(t *testing.T) {
	st := &fakeStripe{
		intent: &stripegw.SetupIntent{
			ID:            "seti_1",
			Status:        stripegw.SetupIntentStatusSucceeded,
			Customer:      "cus_1",
			PaymentMethod: "pm_9",
		},
	}
	orders := &fakeOrderService{rotated: orderdomain.RotateResult{OrdersFound: 3, UpdatedCount: 3}}
	ts := newTestServer(t, orders, &fakeDLocal{}, st)

	w := ts.do(t, http.MethodPost, "/api/payment-methods/"+ts.token+"/stripe/confirm",
		confirmStripeRequest{SetupIntentID: "seti_1"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.EqualValues(t, 3, resp["orders_found"])

	attempts, _, err := ts.srv.auditSvc.HistoryByEmail(context.Background(), "buyer@example.com", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, audit.OutcomeSucceeded, attempts[0].Outcome)
}

func TestConfirmStripeSetupIntentNotSucceeded(t *testing.T) {
	st := &fakeStripe{
		intent: &stripegw.SetupIntent{ID: "seti_1", Status: "requires_payment_method"},
	}
	ts := newTestServer(t, &fakeOrderService{}, &fakeDLocal{}, st)

	w := ts.do(t, http.MethodPost, "/api/payment-methods/"+ts.token+"/stripe/confirm",
		confirmStripeRequest{SetupIntentID: "seti_1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	attempts, _, err := ts.srv.auditSvc.HistoryByEmail(context.Background(), "buyer@example.com", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, audit.OutcomeFailed, attempts[0].Outcome)
}

func TestConfirmStripeSetupIntentMissingBody(t *testing.T) {
	ts := newTestServer(t, &fakeOrderService{}, &fakeDLocal{}, &fakeStripe{})

	w := ts.do(t, http.MethodPost, "/api/payment-methods/"+ts.token+"/stripe/confirm", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmStripeSetupIntentRotationFails(t *testing.T) {
	st := &fakeStripe{
		intent: &stripegw.SetupIntent{
			ID:            "seti_1",
			Status:        stripegw.SetupIntentStatusSucceeded,
			Customer:      "cus_1",
			PaymentMethod: "pm_9",
		},
	}
	orders := &fakeOrderService{rotateErr: orderdomain.ErrStoreUnavailable}
	ts := newTestServer(t, orders, &fakeDLocal{}, st)

	w := ts.do(t, http.MethodPost, "/api/payment-methods/"+ts.token+"/stripe/confirm",
		confirmStripeRequest{SetupIntentID: "seti_1"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateDLocalPlan(t *testing.T) {
	orders := &fakeOrderService{view: dlocalView()}
	ts := newTestServer(t, orders, &fakeDLocal{}, &fakeStripe{})

	w := ts.do(t, http.MethodPost, "/api/payment-methods/"+ts.token+"/dlocal/plan",
		createDLocalPlanRequest{
			Name:           "monthly",
			Amount:         decimal.RequireFromString("19.90"),
			Currency:       "BRL",
			Country:        "BR",
			FrequencyType:  dlocalgw.FrequencyMonthly,
			FrequencyValue: 1,
		})

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Plan        dlocalgw.Plan `json:"plan"`
		MetaWritten bool          `json:"meta_written"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.Plan.ID)
	assert.True(t, resp.MetaWritten)
	assert.Equal(t, "42", orders.wroteMeta[100][orderdomain.MetaKeyDLocalPlanID])
}

func TestCreateDLocalPlanInvalidFrequency(t *testing.T) {
	ts := newTestServer(t, &fakeOrderService{}, &fakeDLocal{}, &fakeStripe{})

	w := ts.do(t, http.MethodPost, "/api/payment-methods/"+ts.token+"/dlocal/plan",
		createDLocalPlanRequest{
			Name:          "monthly",
			Amount:        decimal.RequireFromString("19.90"),
			Currency:      "BRL",
			FrequencyType: "QUARTERLY",
		})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateDLocalPlanGatewayError(t *testing.T) {
	dl := &fakeDLocal{createErr: dlocalgw.ErrGatewayUnavailable}
	ts := newTestServer(t, &fakeOrderService{}, dl, &fakeStripe{})

	w := ts.do(t, http.MethodPost, "/api/payment-methods/"+ts.token+"/dlocal/plan",
		createDLocalPlanRequest{
			Name:          "monthly",
			Amount:        decimal.RequireFromString("19.90"),
			Currency:      "BRL",
			FrequencyType: dlocalgw.FrequencyMonthly,
		})

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestListChangeHistory(t *testing.T) {
	ts := newTestServer(t, &fakeOrderService{}, &fakeDLocal{}, &fakeStripe{})
	ts.srv.auditSvc.Record(context.Background(), "buyer@example.com", "stripe", "rotate_source", audit.OutcomeSucceeded, nil)

	w := ts.do(t, http.MethodGet, "/api/payment-methods/"+ts.token+"/history", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Attempts []audit.ChangeAttempt `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Attempts, 1)
	assert.Equal(t, "rotate_source", resp.Attempts[0].Action)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &fakeOrderService{}, &fakeDLocal{}, &fakeStripe{})

	w := ts.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
}
