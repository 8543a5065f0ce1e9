package order_test

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/pricing"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []order.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e order.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func TestService_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	f.svc = order.NewService(f.db.Orders(), pricing.NewEngine(coupon.NewValidator(nil)), f.carts,
		order.WithPublisher(pub),
	)

	r := f.place(t, "TEN")
	_, err := f.svc.ChangeStatus(t.Context(), f.owner, r.Order.ID, "accepted")
	require.NoError(t, err)
	// No-op transitions are not announced.
	_, err = f.svc.ChangeStatus(t.Context(), f.owner, r.Order.ID, "accepted")
	require.NoError(t, err)
	// Rejected transitions are not announced either.
	_, err = f.svc.ChangeStatus(t.Context(), f.owner, r.Order.ID, "delivered")
	require.Error(t, err)

	require.Len(t, pub.events, 2)

	placed := pub.events[0]
	assert.Equal(t, order.EventPlaced, placed.Kind)
	assert.Equal(t, r.Order.ID, placed.OrderID)
	assert.Equal(t, f.customer.UserID, placed.UserID)
	assert.Equal(t, f.restaurant.ID, placed.RestaurantID)
	assert.Equal(t, order.StatusPending, placed.To)
	assert.True(t, d("90.00").Equal(placed.FinalAmount))

	changed := pub.events[1]
	assert.Equal(t, order.EventStatusChanged, changed.Kind)
	assert.Equal(t, order.StatusPending, changed.From)
	assert.Equal(t, order.StatusAccepted, changed.To)
	assert.Equal(t, f.owner.UserID, changed.ActorID)
	assert.Equal(t, f.customer.UserID, changed.UserID)
	assert.False(t, changed.At.IsZero())
}

func TestService_PublishFailureDoesNotFailCommit(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	f.svc = order.NewService(f.db.Orders(), pricing.NewEngine(coupon.NewValidator(nil)), f.carts,
		order.WithPublisher(pub),
	)

	r := f.place(t, "")
	tr, err := f.svc.ChangeStatus(t.Context(), f.owner, r.Order.ID, "canceled")
	require.NoError(t, err)
	assert.True(t, tr.Changed())

	got, err := f.svc.Get(t.Context(), f.customer, r.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCanceled, got.Order.Status)
	assert.Len(t, pub.events, 2)
}
