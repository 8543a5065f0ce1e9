// Package memory is an in-process implementation of the storage contracts.
// Transactions are serialized and copy-on-write: a transaction works on a
// private copy of the dataset that replaces the shared one only on commit.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/restaurant"
)

type usageKey struct {
	userID, couponID int64
}

type state struct {
	seq int64

	restaurants  map[int64]restaurant.Restaurant
	branches     map[int64]restaurant.Branch
	addresses    map[int64]restaurant.Address
	products     map[int64]product.Product
	priceHistory []product.PriceChange
	coupons      map[int64]coupon.Coupon
	usage        map[usageKey]int
	orders       map[int64]order.Order
	history      []order.StatusChange
	reviews      map[int64]order.Review
}

func (s *state) clone() *state {
	next := *s
	next.restaurants = maps.Clone(s.restaurants)
	next.branches = maps.Clone(s.branches)
	next.addresses = maps.Clone(s.addresses)
	next.products = maps.Clone(s.products)
	next.priceHistory = slices.Clone(s.priceHistory)
	next.coupons = maps.Clone(s.coupons)
	next.usage = maps.Clone(s.usage)
	next.orders = maps.Clone(s.orders)
	next.history = slices.Clone(s.history)
	next.reviews = maps.Clone(s.reviews)
	return &next
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *state) ownerOf(restaurantID int64) int64 {
	return s.restaurants[restaurantID].OwnerID
}

// DB holds the dataset.
type DB struct {
	mu sync.Mutex
	st *state
}

// New creates an empty DB.
func New() *DB {
	return &DB{st: &state{
		restaurants: map[int64]restaurant.Restaurant{},
		branches:    map[int64]restaurant.Branch{},
		addresses:   map[int64]restaurant.Address{},
		products:    map[int64]product.Product{},
		coupons:     map[int64]coupon.Coupon{},
		usage:       map[usageKey]int{},
		orders:      map[int64]order.Order{},
		reviews:     map[int64]order.Review{},
	}}
}

// tx runs fn on a private copy and publishes it when fn succeeds.
func (db *DB) tx(ctx context.Context, fn func(s *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	next := db.st.clone()
	if err := fn(next); err != nil {
		return err
	}
	db.st = next
	return nil
}

func (db *DB) locked(fn func(s *state)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	fn(db.st)
}

// Orders returns the order.Store view.
func (db *DB) Orders() *OrderStore { return &OrderStore{db: db} }

// Products returns the product.Store and product.Repository view.
func (db *DB) Products() *ProductStore { return &ProductStore{db: db} }

// Catalog returns the non-transactional pricing.Source view.
func (db *DB) Catalog() *Catalog { return &Catalog{db: db} }
