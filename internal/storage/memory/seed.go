package memory

import (
	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/restaurant"
)

// AddRestaurant stores r and returns it with its id.
func (db *DB) AddRestaurant(r restaurant.Restaurant) restaurant.Restaurant {
	db.locked(func(s *state) {
		r.ID = s.nextID()
		s.restaurants[r.ID] = r
	})
	return r
}

func (db *DB) AddBranch(b restaurant.Branch) restaurant.Branch {
	db.locked(func(s *state) {
		b.ID = s.nextID()
		s.branches[b.ID] = b
	})
	return b
}

func (db *DB) AddAddress(a restaurant.Address) restaurant.Address {
	db.locked(func(s *state) {
		a.ID = s.nextID()
		s.addresses[a.ID] = a
	})
	return a
}

func (db *DB) AddProduct(p product.Product) product.Product {
	db.locked(func(s *state) {
		p.ID = s.nextID()
		p.RestaurantOwnerID = s.ownerOf(p.RestaurantID)
		s.products[p.ID] = p
	})
	return p
}

// AddCoupon stores c with a normalized code.
func (db *DB) AddCoupon(c coupon.Coupon) coupon.Coupon {
	db.locked(func(s *state) {
		c.ID = s.nextID()
		c.Code = coupon.NormalizeCode(c.Code)
		s.coupons[c.ID] = c
	})
	return c
}

// UsageOf returns the stored usage counter and whether it exists.
func (db *DB) UsageOf(userID, couponID int64) (int, bool) {
	var (
		n  int
		ok bool
	)
	db.locked(func(s *state) {
		n, ok = s.usage[usageKey{userID, couponID}]
	})
	return n, ok
}

// Counts reports row counts of the order tables.
func (db *DB) Counts() (orders, items, history int) {
	db.locked(func(s *state) {
		orders = len(s.orders)
		for _, o := range s.orders {
			items += len(o.Items)
		}
		history = len(s.history)
	})
	return orders, items, history
}

// SetOrderStatus forces a status without history, for test setup.
func (db *DB) SetOrderStatus(id int64, st order.Status) {
	db.locked(func(s *state) {
		o := s.orders[id]
		o.Status = st
		s.orders[id] = o
	})
}
