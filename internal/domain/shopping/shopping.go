// Package shopping implements the customer's cart workflow on top of the
// session store and the pricing engine.
package shopping

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/hemenye/internal/domain/auth"
	"github.com/xenking/hemenye/internal/domain/cart"
	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/pricing"
	"github.com/xenking/hemenye/internal/domain/product"
)

var (
	ErrProductUnavailable = errors.New("product is not available")
	ErrOtherRestaurant    = errors.New("cart already holds products of another restaurant")
	ErrCouponCodeRequired = errors.New("coupon code required")
)

// View is a priced cart.
type View struct {
	Cart cart.Cart
	// CouponCode is the stored code; empty once a coupon stops applying.
	CouponCode string
	Quote      *pricing.Quote
}

// Service manages session carts.
type Service struct {
	catalog pricing.Source
	engine  *pricing.Engine
	carts   cart.Store
}

// NewService creates a Service reading products and coupons from catalog.
func NewService(catalog pricing.Source, engine *pricing.Engine, carts cart.Store) *Service {
	return &Service{catalog: catalog, engine: engine, carts: carts}
}

// View prices the actor's cart. Entries whose products vanished and coupons
// that no longer apply are dropped from the session.
func (s *Service) View(ctx context.Context, actor auth.Actor) (*View, error) {
	sess, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.price(ctx, actor, sess)
}

// AddItem adds qty units of productID.
func (s *Service) AddItem(ctx context.Context, actor auth.Actor, productID int64, qty int) (*View, error) {
	sess, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	if qty < 1 || qty > cart.MaxQuantity {
		return nil, cart.ErrInvalidQuantity
	}
	if err := s.checkAddable(ctx, sess.Cart, productID); err != nil {
		return nil, err
	}

	sess.Cart, err = sess.Cart.Add(productID, qty)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, actor, sess)
}

// Increase adds one unit of a product already in the cart.
func (s *Service) Increase(ctx context.Context, actor auth.Actor, productID int64) (*View, error) {
	return s.mutate(ctx, actor, productID, cart.Cart.Increase)
}

// Decrease removes one unit; the entry disappears at zero.
func (s *Service) Decrease(ctx context.Context, actor auth.Actor, productID int64) (*View, error) {
	return s.mutate(ctx, actor, productID, cart.Cart.Decrease)
}

// Remove drops a product from the cart.
func (s *Service) Remove(ctx context.Context, actor auth.Actor, productID int64) (*View, error) {
	return s.mutate(ctx, actor, productID, cart.Cart.Remove)
}

func (s *Service) mutate(ctx context.Context, actor auth.Actor, productID int64, op func(cart.Cart, int64) cart.Cart) (*View, error) {
	sess, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	if sess.Cart.Quantity(productID) == 0 {
		return nil, product.ErrNotFound
	}
	sess.Cart = op(sess.Cart, productID)
	return s.save(ctx, actor, sess)
}

// ApplyCoupon validates code against the current cart and stores it when it
// applies. An ineligible coupon is returned as its reason error and any
// previously stored code is dropped.
func (s *Service) ApplyCoupon(ctx context.Context, actor auth.Actor, code string) (*View, error) {
	sess, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	code = coupon.NormalizeCode(code)
	if code == "" {
		return nil, ErrCouponCodeRequired
	}

	q, err := s.engine.Quote(ctx, s.catalog, sess.Cart, code, actor.UserID)
	if err != nil {
		return nil, err
	}
	if q.CouponErr != nil {
		if sess.CouponCode != "" {
			sess.CouponCode = ""
			if err := s.carts.Save(ctx, actor.UserID, sess); err != nil {
				return nil, errors.Wrap(err, "save cart")
			}
		}
		return nil, q.CouponErr
	}

	sess.CouponCode = code
	if err := s.carts.Save(ctx, actor.UserID, sess); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return &View{Cart: sess.Cart, CouponCode: code, Quote: q}, nil
}

// RemoveCoupon forgets the stored coupon code.
func (s *Service) RemoveCoupon(ctx context.Context, actor auth.Actor) (*View, error) {
	sess, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	sess.CouponCode = ""
	return s.save(ctx, actor, sess)
}

func (s *Service) load(ctx context.Context, actor auth.Actor) (cart.Session, error) {
	if err := auth.Authorize(actor, auth.ActionManageCart, auth.Resource{}); err != nil {
		return cart.Session{}, err
	}
	sess, err := s.carts.Load(ctx, actor.UserID)
	if err != nil {
		return cart.Session{}, errors.Wrap(err, "load cart")
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, actor auth.Actor, sess cart.Session) (*View, error) {
	if err := s.carts.Save(ctx, actor.UserID, sess); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return s.price(ctx, actor, sess)
}

func (s *Service) price(ctx context.Context, actor auth.Actor, sess cart.Session) (*View, error) {
	q, err := s.engine.Quote(ctx, s.catalog, sess.Cart, sess.CouponCode, actor.UserID)
	if err != nil {
		return nil, err
	}

	dirty := false
	for _, id := range q.Skipped {
		sess.Cart = sess.Cart.Remove(id)
		dirty = true
	}
	if q.CouponErr != nil {
		sess.CouponCode = ""
		dirty = true
	}
	if dirty {
		if err := s.carts.Save(ctx, actor.UserID, sess); err != nil {
			return nil, errors.Wrap(err, "save cart")
		}
	}
	return &View{Cart: sess.Cart, CouponCode: sess.CouponCode, Quote: q}, nil
}

// checkAddable rejects unknown, inactive and cross-restaurant products.
func (s *Service) checkAddable(ctx context.Context, c cart.Cart, productID int64) error {
	ids := append([]int64{productID}, c.ProductIDs()...)
	products, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	p, ok := byID[productID]
	if !ok {
		return product.ErrNotFound
	}
	if !p.Active {
		return ErrProductUnavailable
	}
	for _, id := range c.ProductIDs() {
		if other, ok := byID[id]; ok && other.RestaurantID != p.RestaurantID {
			return ErrOtherRestaurant
		}
	}
	return nil
}
