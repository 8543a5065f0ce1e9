package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/restaurant"
)

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = orderTx{}
)

// OrderStore persists orders.
type OrderStore struct {
	db *DB
}

func (o *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return o.db.tx(ctx, func(s *state) error {
		return fn(ctx, orderTx{s})
	})
}

func (o *OrderStore) Get(_ context.Context, id int64) (*order.Order, error) {
	var (
		out order.Order
		ok  bool
	)
	o.db.locked(func(s *state) {
		out, ok = s.orders[id]
		out.RestaurantOwnerID = s.ownerOf(out.RestaurantID)
		out.Items = slices.Clone(out.Items)
	})
	if !ok {
		return nil, order.ErrNotFound
	}
	return &out, nil
}

func (o *OrderStore) History(_ context.Context, orderID int64) ([]order.StatusChange, error) {
	var out []order.StatusChange
	o.db.locked(func(s *state) {
		for _, c := range s.history {
			if c.OrderID == orderID {
				out = append(out, c)
			}
		}
	})
	return out, nil
}

func (o *OrderStore) List(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var matched []order.Order
	o.db.locked(func(s *state) {
		for _, ord := range s.orders {
			ord.RestaurantOwnerID = s.ownerOf(ord.RestaurantID)
			switch {
			case f.CustomerID != 0 && ord.UserID != f.CustomerID:
				continue
			case f.RestaurantOwnerID != 0 && ord.RestaurantOwnerID != f.RestaurantOwnerID:
				continue
			case f.Status != "" && ord.Status != f.Status:
				continue
			}
			ord.Items = slices.Clone(ord.Items)
			matched = append(matched, ord)
		}
	})

	slices.SortFunc(matched, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	total := len(matched)
	start := min(f.Offset, total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	return matched[start:end], total, nil
}

type orderTx struct {
	s *state
}

func (t orderTx) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	return t.s.productsByIDs(ids), nil
}

func (t orderTx) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	return t.s.couponByCode(code)
}

// UsageCount needs no extra locking: transactions are serialized.
func (t orderTx) UsageCount(_ context.Context, userID, couponID int64) (int, error) {
	return t.s.usage[usageKey{userID, couponID}], nil
}

func (t orderTx) DeliverableBranch(_ context.Context, restaurantID int64) (*restaurant.Branch, error) {
	if !t.s.restaurants[restaurantID].Active {
		return nil, restaurant.ErrNoDeliverableBranch
	}
	var best *restaurant.Branch
	for _, b := range t.s.branches {
		if b.RestaurantID != restaurantID || !b.Deliverable() {
			continue
		}
		if best == nil || b.ID < best.ID {
			best = &b
		}
	}
	if best == nil {
		return nil, restaurant.ErrNoDeliverableBranch
	}
	return best, nil
}

func (t orderTx) Address(_ context.Context, userID, addressID int64) (*restaurant.Address, error) {
	a, ok := t.s.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, restaurant.ErrAddressNotFound
	}
	return &a, nil
}

func (t orderTx) DefaultAddress(_ context.Context, userID int64) (*restaurant.Address, error) {
	var best *restaurant.Address
	for _, a := range t.s.addresses {
		if a.UserID != userID {
			continue
		}
		if best == nil ||
			(a.IsDefault && !best.IsDefault) ||
			(a.IsDefault == best.IsDefault && a.ID < best.ID) {
			best = &a
		}
	}
	if best == nil {
		return nil, restaurant.ErrNoDeliveryAddress
	}
	return best, nil
}

func (t orderTx) CreateOrder(_ context.Context, o *order.Order) error {
	o.ID = t.s.nextID()
	for i := range o.Items {
		o.Items[i].ID = t.s.nextID()
		o.Items[i].OrderID = o.ID
	}
	stored := *o
	stored.Items = slices.Clone(o.Items)
	t.s.orders[o.ID] = stored
	return nil
}

func (t orderTx) IncrementCouponUsage(_ context.Context, userID, couponID int64) error {
	t.s.usage[usageKey{userID, couponID}]++
	return nil
}

func (t orderTx) LockOrder(_ context.Context, id int64) (*order.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.RestaurantOwnerID = t.s.ownerOf(o.RestaurantID)
	o.Items = nil
	return &o, nil
}

func (t orderTx) SetStatus(_ context.Context, id int64, st order.Status) error {
	o, ok := t.s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = st
	t.s.orders[id] = o
	return nil
}

func (t orderTx) AppendStatusChange(_ context.Context, c *order.StatusChange) error {
	c.ID = t.s.nextID()
	t.s.history = append(t.s.history, *c)
	return nil
}

func (t orderTx) ReviewExists(_ context.Context, orderID int64) (bool, error) {
	_, ok := t.s.reviews[orderID]
	return ok, nil
}

func (t orderTx) CreateReview(_ context.Context, r *order.Review) error {
	r.ID = t.s.nextID()
	t.s.reviews[r.OrderID] = *r
	return nil
}
