package order

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventKind names a committed lifecycle change.
type EventKind string

const (
	EventPlaced        EventKind = "order.placed"
	EventStatusChanged EventKind = "order.status_changed"
)

// Event describes a committed order change for downstream consumers.
type Event struct {
	Kind         EventKind
	OrderID      int64
	UserID       int64
	RestaurantID int64
	From         Status
	To           Status
	FinalAmount  decimal.Decimal
	ActorID      int64
	At           time.Time
}

// Publisher delivers events after the originating transaction commits.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// WithPublisher announces placed orders and status changes on p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// publish never fails the caller: the change is already committed.
func (s *Service) publish(ctx context.Context, e Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, e); err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("kind", string(e.Kind)),
			zap.Int64("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}
