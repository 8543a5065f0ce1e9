package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are the order lifecycle counters.
type Metrics struct {
	placed          metric.Int64Counter
	statusChanges   metric.Int64Counter
	couponsRedeemed metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.placed, err = meter.Int64Counter("hemenye.orders.placed",
		metric.WithDescription("Orders placed at checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.placed")
	}
	if m.statusChanges, err = meter.Int64Counter("hemenye.orders.status_changes",
		metric.WithDescription("Order status transitions by target status"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.status_changes")
	}
	if m.couponsRedeemed, err = meter.Int64Counter("hemenye.coupons.redeemed",
		metric.WithDescription("Coupons applied to placed orders"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons.redeemed")
	}
	return &m, nil
}

func (m *Metrics) orderPlaced(ctx context.Context, couponApplied bool) {
	m.placed.Add(ctx, 1)
	if couponApplied {
		m.couponsRedeemed.Add(ctx, 1)
	}
}

func (m *Metrics) statusChanged(ctx context.Context, to Status) {
	m.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))
}
