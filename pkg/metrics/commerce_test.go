package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
)

func TestCommerceMetricsLabelsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCommerceMetrics(reg)

	m.ObserveCartOp("add", nil)
	m.ObserveCartOp("add", pkgerrors.New(pkgerrors.CodeInsufficientStock, "Insufficient stock for product: Widget"))
	m.ObserveCheckout(120*time.Millisecond, nil)
	m.ObserveCancel(errors.New("driver: bad connection"))
	m.IncStockRejection("cart_add")
	m.AddStockUnits("deducted", 3)
	m.AddStockUnits("deducted", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	assertCounter(t, mfs, "cart_operations_total", map[string]string{"op": "add", "result": "ok"}, 1)
	assertCounter(t, mfs, "cart_operations_total", map[string]string{"op": "add", "result": "insufficient_stock"}, 1)
	assertCounter(t, mfs, "checkouts_total", map[string]string{"result": "ok"}, 1)
	assertCounter(t, mfs, "order_cancellations_total", map[string]string{"result": "internal_error"}, 1)
	assertCounter(t, mfs, "stock_rejections_total", map[string]string{"reason": "cart_add"}, 1)
	assertCounter(t, mfs, "stock_units_total", map[string]string{"direction": "deducted"}, 3)

	mf := findMetricFamily(mfs, "checkout_duration_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleSum() <= 0 {
		t.Fatalf("expected checkout duration to be observed")
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *CommerceMetrics
	m.ObserveCartOp("add", nil)
	m.ObserveCheckout(time.Second, nil)
	m.IncStockRejection("x")

	empty := NewCommerceMetrics(nil)
	empty.ObserveCancel(nil)
	empty.AddStockUnits("restored", 2)

	var o *OutboxMetrics
	o.IncPublished("order_placed")
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("order_placed")
	m.IncFailed("order_placed")
	m.IncTerminal("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	assertCounter(t, mfs, "outbox_published_total", map[string]string{"event_type": "order_placed"}, 1)
	assertCounter(t, mfs, "outbox_terminal_total", map[string]string{"event_type": "unknown"}, 1)
}

func assertCounter(t *testing.T, mfs []*dto.MetricFamily, name string, labels map[string]string, want float64) {
	t.Helper()
	got, err := fetchCounterValue(mfs, name, labels)
	if err != nil {
		t.Fatalf("fetch %s: %v", name, err)
	}
	if got != want {
		t.Fatalf("expected %s%v=%v, got %v", name, labels, want, got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok {
			if v != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}
