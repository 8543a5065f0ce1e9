package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/hemenye/internal/domain/auth"
	"github.com/xenking/hemenye/internal/domain/cart"
	"github.com/xenking/hemenye/internal/domain/pricing"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/restaurant"
)

const defaultPageSize = 12

// Service implements checkout and the order lifecycle.
type Service struct {
	store    Store
	pricing  *pricing.Engine
	carts    cart.Store
	now      func() time.Time
	pageSize int
	metrics  *Metrics
	tracer   trace.Tracer
	events   Publisher
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records lifecycle counters on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracerProvider traces service operations.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("hemenye/order") }
}

// WithPageSize sets the listing page size.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewService creates an order Service.
func NewService(store Store, engine *pricing.Engine, carts cart.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		pricing:  engine,
		carts:    carts,
		now:      time.Now,
		pageSize: defaultPageSize,
		tracer:   tracenoop.NewTracerProvider().Tracer(""),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		// Instrument creation on the noop meter cannot fail.
		s.metrics, _ = NewMetrics(metricnoop.NewMeterProvider().Meter(""))
	}
	return s
}

// PlaceOrderRequest is the input of order assembly.
type PlaceOrderRequest struct {
	Cart       cart.Cart
	CouponCode string
	// AddressID selects a delivery address; zero picks the default one.
	AddressID int64
}

// Receipt is the result of a successful checkout.
type Receipt struct {
	Order *Order
	// Quote is the authoritative pricing the order was created with.
	// Quote.CouponErr tells why a requested coupon was not applied.
	Quote *pricing.Quote
}

// Checkout places an order from the actor's session cart and clears the
// session once the order is committed.
func (s *Service) Checkout(ctx context.Context, actor auth.Actor, addressID int64) (*Receipt, error) {
	if err := auth.Authorize(actor, auth.ActionCheckout, auth.Resource{}); err != nil {
		return nil, err
	}
	sess, err := s.carts.Load(ctx, actor.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	receipt, err := s.PlaceOrder(ctx, actor, PlaceOrderRequest{
		Cart:       sess.Cart,
		CouponCode: sess.CouponCode,
		AddressID:  addressID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.carts.Clear(ctx, actor.UserID); err != nil {
		// The order is committed; a stale cart is only an inconvenience.
		zctx.From(ctx).Error("Clear cart after checkout",
			zap.Int64("user_id", actor.UserID),
			zap.Int64("order_id", receipt.Order.ID),
			zap.Error(err),
		)
	}
	return receipt, nil
}

// PlaceOrder assembles and persists an order from req in one transaction:
// items at current prices, authoritative totals, coupon usage and the
// initial status record. Nothing is written when any step fails.
func (s *Service) PlaceOrder(ctx context.Context, actor auth.Actor, req PlaceOrderRequest) (_ *Receipt, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := auth.Authorize(actor, auth.ActionCheckout, auth.Resource{}); err != nil {
		return nil, err
	}
	if req.Cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	var receipt Receipt
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		restaurantID, err := resolveRestaurant(ctx, tx, req.Cart)
		if err != nil {
			return err
		}

		branch, err := tx.DeliverableBranch(ctx, restaurantID)
		if err != nil {
			return err
		}

		var addr *restaurant.Address
		if req.AddressID != 0 {
			addr, err = tx.Address(ctx, actor.UserID, req.AddressID)
		} else {
			addr, err = tx.DefaultAddress(ctx, actor.UserID)
		}
		if err != nil {
			return err
		}

		quote, err := s.pricing.Quote(ctx, tx, req.Cart, req.CouponCode, actor.UserID)
		if err != nil {
			return errors.Wrap(err, "price cart")
		}

		o := &Order{
			UserID:       actor.UserID,
			RestaurantID: restaurantID,
			BranchID:     branch.ID,
			AddressID:    addr.ID,
			Status:       InitialStatus,
			TotalAmount:  quote.Subtotal,
			FinalAmount:  quote.Total,
			CreatedAt:    s.now().UTC(),
			Items:        make([]Item, len(quote.Lines)),
		}
		for i, l := range quote.Lines {
			o.Items[i] = Item{
				ProductID:   l.Product.ID,
				ProductName: l.Product.Name,
				UnitPrice:   l.Product.Price,
				Quantity:    l.Quantity,
			}
		}
		if quote.Coupon != nil {
			o.CouponID = &quote.Coupon.ID
		}

		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if quote.Coupon != nil {
			if err := tx.IncrementCouponUsage(ctx, actor.UserID, quote.Coupon.ID); err != nil {
				return errors.Wrap(err, "increment coupon usage")
			}
		}
		if err := tx.AppendStatusChange(ctx, &StatusChange{
			OrderID:   o.ID,
			OldStatus: InitialStatus,
			NewStatus: InitialStatus,
			ChangedAt: o.CreatedAt,
			ChangedBy: actor.UserID,
		}); err != nil {
			return errors.Wrap(err, "append status history")
		}

		receipt = Receipt{Order: o, Quote: quote}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.orderPlaced(ctx, receipt.Quote.Coupon != nil)
	zctx.From(ctx).Info("Order placed",
		zap.Int64("order_id", receipt.Order.ID),
		zap.Int64("user_id", actor.UserID),
		zap.Int64("restaurant_id", receipt.Order.RestaurantID),
		zap.String("final_amount", receipt.Order.FinalAmount.StringFixed(2)),
		zap.Bool("coupon_applied", receipt.Quote.Coupon != nil),
	)
	s.publish(ctx, Event{
		Kind:         EventPlaced,
		OrderID:      receipt.Order.ID,
		UserID:       actor.UserID,
		RestaurantID: receipt.Order.RestaurantID,
		To:           InitialStatus,
		FinalAmount:  receipt.Order.FinalAmount,
		ActorID:      actor.UserID,
		At:           receipt.Order.CreatedAt,
	})
	return &receipt, nil
}

// resolveRestaurant checks that every cart product exists, is active and
// belongs to one restaurant, and returns that restaurant.
func resolveRestaurant(ctx context.Context, tx Tx, c cart.Cart) (int64, error) {
	ids := c.ProductIDs()
	products, err := tx.GetByIDs(ctx, ids)
	if err != nil {
		return 0, errors.Wrap(err, "get cart products")
	}
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var restaurantID int64
	for _, id := range ids {
		p, ok := byID[id]
		switch {
		case !ok:
			return 0, &InvalidCartItemError{ProductID: id, Reason: "product no longer exists"}
		case !p.Active:
			return 0, &InvalidCartItemError{ProductID: id, Reason: "product is not available"}
		case restaurantID == 0:
			restaurantID = p.RestaurantID
		case p.RestaurantID != restaurantID:
			return 0, &InvalidCartItemError{ProductID: id, Reason: "product belongs to another restaurant"}
		}
	}
	return restaurantID, nil
}
