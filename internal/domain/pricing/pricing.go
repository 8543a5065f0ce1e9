// Package pricing is the single place cart totals are computed. Cart display,
// checkout and order recompute all go through Engine.Quote.
package pricing

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/hemenye/internal/domain/cart"
	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/product"
)

// Catalog resolves cart products.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error)
}

// Source is everything a quote reads. Checkout passes a transactional
// source so that the quote and the order it produces see the same state.
type Source interface {
	Catalog
	coupon.Repository
}

type source struct {
	Catalog
	coupon.Repository
}

// Combine serves products from c and coupons from coupons.
func Combine(c Catalog, coupons coupon.Repository) Source {
	return source{Catalog: c, Repository: coupons}
}

// Line is a priced cart entry.
type Line struct {
	Product  product.Product
	Quantity int
	Total    decimal.Decimal
}

// Quote is the outcome of pricing a cart.
type Quote struct {
	Lines []Line
	// Skipped lists cart products that no longer resolve or are inactive.
	// They do not contribute to the subtotal.
	Skipped  []int64
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
	// Coupon is the applied coupon, nil when none applies.
	Coupon *coupon.Coupon
	// CouponErr explains why a requested coupon was not applied. Callers
	// holding the code should forget it when this is set.
	CouponErr error
}

// Engine prices carts.
type Engine struct {
	coupons *coupon.Validator
}

// NewEngine creates an Engine validating coupons with v.
func NewEngine(v *coupon.Validator) *Engine {
	return &Engine{coupons: v}
}

// Quote prices c with live catalog prices from src and, if couponCode is not
// empty, applies the coupon when it is eligible for userID. An ineligible
// coupon is reported in Quote.CouponErr and never fails the quote.
func (e *Engine) Quote(ctx context.Context, src Source, c cart.Cart, couponCode string, userID int64) (*Quote, error) {
	q := &Quote{}
	if !c.IsEmpty() {
		products, err := src.GetByIDs(ctx, c.ProductIDs())
		if err != nil {
			return nil, errors.Wrap(err, "get cart products")
		}
		q.Lines, q.Skipped = buildLines(c, products)
	}

	subtotal := Subtotal(q.Lines)
	if couponCode != "" {
		applied, err := e.coupons.Validate(ctx, src, couponCode, userID, subtotal)
		switch {
		case err == nil:
			q.Coupon = applied
		case coupon.IsIneligible(err):
			q.CouponErr = err
		default:
			return nil, err
		}
	}

	q.Subtotal, q.Discount, q.Total = Totals(subtotal, q.Coupon)
	return q, nil
}

func buildLines(c cart.Cart, products []product.Product) ([]Line, []int64) {
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var (
		lines   []Line
		skipped []int64
	)
	for _, item := range c.Items() {
		p, ok := byID[item.ProductID]
		if !ok || !p.Active {
			skipped = append(skipped, item.ProductID)
			continue
		}
		lines = append(lines, Line{
			Product:  p,
			Quantity: item.Quantity,
			Total:    p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	return lines, skipped
}

// Subtotal sums line totals.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total)
	}
	return sum.Round(2)
}

// Totals derives discount and final total. applied must already be known
// to be eligible; nil means no coupon.
func Totals(subtotal decimal.Decimal, applied *coupon.Coupon) (sub, discount, total decimal.Decimal) {
	discount = decimal.Zero
	if applied != nil {
		discount = coupon.Discount(applied, subtotal)
	}
	total = subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return subtotal, discount, total.Round(2)
}
