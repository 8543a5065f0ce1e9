package memory

import (
	"context"
	"slices"

	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/pricing"
	"github.com/xenking/hemenye/internal/domain/product"
)

var _ pricing.Source = (*Catalog)(nil)

// Catalog serves reads outside transactions.
type Catalog struct {
	db *DB
}

func (c *Catalog) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	c.db.locked(func(s *state) { out = s.productsByIDs(ids) })
	return out, nil
}

func (c *Catalog) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	var (
		found *coupon.Coupon
		err   error
	)
	c.db.locked(func(s *state) { found, err = s.couponByCode(code) })
	return found, err
}

func (c *Catalog) UsageCount(_ context.Context, userID, couponID int64) (int, error) {
	var n int
	c.db.locked(func(s *state) { n = s.usage[usageKey{userID, couponID}] })
	return n, nil
}

// ListCodes returns every coupon code.
func (c *Catalog) ListCodes(_ context.Context) ([]string, error) {
	var codes []string
	c.db.locked(func(s *state) {
		for _, cp := range s.coupons {
			codes = append(codes, cp.Code)
		}
	})
	slices.Sort(codes)
	return codes, nil
}

func (s *state) productsByIDs(ids []int64) []product.Product {
	var out []product.Product
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			p.RestaurantOwnerID = s.ownerOf(p.RestaurantID)
			out = append(out, p)
		}
	}
	return out
}

func (s *state) couponByCode(code string) (*coupon.Coupon, error) {
	code = coupon.NormalizeCode(code)
	for _, c := range s.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}
