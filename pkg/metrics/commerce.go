package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
)

const resultOK = "ok"

// CommerceMetrics records cart, checkout and stock ledger outcomes.
type CommerceMetrics struct {
	cartOps          *prometheus.CounterVec
	checkouts        *prometheus.CounterVec
	cancellations    *prometheus.CounterVec
	stockRejections  *prometheus.CounterVec
	stockUnits       *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
}

// NewCommerceMetrics registers the commerce metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCommerceMetrics(reg prometheus.Registerer) *CommerceMetrics {
	if reg == nil {
		return &CommerceMetrics{}
	}
	m := &CommerceMetrics{
		cartOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_operations_total",
			Help: "Cart mutations by operation and result.",
		}, []string{"op", "result"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout attempts by result.",
		}, []string{"result"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_cancellations_total",
			Help: "Order cancellation attempts by result.",
		}, []string{"result"}),
		stockRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_rejections_total",
			Help: "Stock deductions refused because they would drive stock negative.",
		}, []string{"reason"}),
		stockUnits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_units_total",
			Help: "Units moved by the stock ledger.",
		}, []string{"direction"}),
		checkoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "Wall time of checkout transactions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.cartOps, m.checkouts, m.cancellations, m.stockRejections, m.stockUnits, m.checkoutDuration)
	return m
}

// ObserveCartOp counts a cart mutation outcome.
func (m *CommerceMetrics) ObserveCartOp(op string, err error) {
	if m == nil || m.cartOps == nil {
		return
	}
	m.cartOps.WithLabelValues(normalizeLabel(op), resultLabel(err)).Inc()
}

// ObserveCheckout counts a checkout outcome and its latency.
func (m *CommerceMetrics) ObserveCheckout(duration time.Duration, err error) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(resultLabel(err)).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// ObserveCancel counts an order cancellation outcome.
func (m *CommerceMetrics) ObserveCancel(err error) {
	if m == nil || m.cancellations == nil {
		return
	}
	m.cancellations.WithLabelValues(resultLabel(err)).Inc()
}

// IncStockRejection counts a refused deduction, labelled by ledger reason.
func (m *CommerceMetrics) IncStockRejection(reason string) {
	if m == nil || m.stockRejections == nil {
		return
	}
	m.stockRejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

// AddStockUnits tracks units deducted or restored.
func (m *CommerceMetrics) AddStockUnits(direction string, units int) {
	if m == nil || m.stockUnits == nil || units <= 0 {
		return
	}
	m.stockUnits.WithLabelValues(normalizeLabel(direction)).Add(float64(units))
}

func resultLabel(err error) string {
	if err == nil {
		return resultOK
	}
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return strings.ToLower(string(pkgerrors.CodeInternal))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
