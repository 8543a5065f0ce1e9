package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/hemenye/internal/domain/product"
)

var (
	_ product.Store      = (*ProductStore)(nil)
	_ product.Repository = (*ProductStore)(nil)
)

// ProductStore serves the catalog.
type ProductStore struct {
	db *DB
}

func (p *ProductStore) InTx(ctx context.Context, fn func(ctx context.Context, tx product.Tx) error) error {
	return p.db.tx(ctx, func(s *state) error {
		return fn(ctx, productTx{s})
	})
}

func (p *ProductStore) GetByID(_ context.Context, id int64) (*product.Product, error) {
	var out []product.Product
	p.db.locked(func(s *state) { out = s.productsByIDs([]int64{id}) })
	if len(out) == 0 {
		return nil, product.ErrNotFound
	}
	return &out[0], nil
}

func (p *ProductStore) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	p.db.locked(func(s *state) { out = s.productsByIDs(ids) })
	return out, nil
}

func (p *ProductStore) ListByRestaurant(_ context.Context, restaurantID int64) ([]product.Product, error) {
	var out []product.Product
	p.db.locked(func(s *state) {
		if !s.restaurants[restaurantID].Active {
			return
		}
		for _, pr := range s.products {
			if pr.RestaurantID == restaurantID {
				pr.RestaurantOwnerID = s.ownerOf(pr.RestaurantID)
				out = append(out, pr)
			}
		}
	})
	slices.SortFunc(out, func(a, b product.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (p *ProductStore) PriceHistory(_ context.Context, productID int64) ([]product.PriceChange, error) {
	var out []product.PriceChange
	p.db.locked(func(s *state) {
		for _, c := range s.priceHistory {
			if c.ProductID == productID {
				out = append(out, c)
			}
		}
	})
	return out, nil
}

type productTx struct {
	s *state
}

func (t productTx) LockProduct(_ context.Context, id int64) (*product.Product, error) {
	out := t.s.productsByIDs([]int64{id})
	if len(out) == 0 {
		return nil, product.ErrNotFound
	}
	return &out[0], nil
}

func (t productTx) SetPrice(_ context.Context, id int64, price decimal.Decimal) error {
	p, ok := t.s.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Price = price
	t.s.products[id] = p
	return nil
}

func (t productTx) SetActive(_ context.Context, id int64, active bool) error {
	p, ok := t.s.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.Active = active
	t.s.products[id] = p
	return nil
}

func (t productTx) AppendPriceChange(_ context.Context, c *product.PriceChange) error {
	c.ID = t.s.nextID()
	t.s.priceHistory = append(t.s.priceHistory, *c)
	return nil
}
