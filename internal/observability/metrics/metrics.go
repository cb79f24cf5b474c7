package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes application-level instruments for the resolution flow.
type Metrics struct {
	resolutions     *prometheus.CounterVec
	storeErrors     *prometheus.CounterVec
	gatewayRequests *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		metrics = New(prometheus.DefaultRegisterer)
	})
	return metrics
}

// ResetForTest resets the metrics singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_resolutions_total",
		Help: "Payment method resolutions by resolved method.",
	}, []string{"method"})
	storeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_store_errors_total",
		Help: "Storefront database errors by operation, including degraded reads.",
	}, []string{"op"})
	gatewayRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_gateway_requests_total",
		Help: "Outbound gateway API requests by gateway, operation and outcome.",
	}, []string{"gateway", "op", "outcome"})

	registerer.MustRegister(
		resolutions,
		storeErrors,
		gatewayRequests,
	)

	return &Metrics{
		resolutions:     resolutions,
		storeErrors:     storeErrors,
		gatewayRequests: gatewayRequests,
	}
}

// IncResolution increments the resolution counter for a resolved method.
func (m *Metrics) IncResolution(method string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(method).Inc()
}

// IncStoreError increments the store error counter for an operation.
func (m *Metrics) IncStoreError(op string) {
	if m == nil || m.storeErrors == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// IncGatewayRequest increments the gateway request counter.
func (m *Metrics) IncGatewayRequest(gateway, op, outcome string) {
	if m == nil || m.gatewayRequests == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(gateway, op, outcome).Inc()
}
