package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/hemenye/internal/domain/auth"
)

// Service implements catalog writes that need authorization and history.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// UpdatePrice sets the price of product id and records the change in its
// price history, both in one transaction. Order items keep the price frozen
// at purchase time. Setting the current price again is a no-op and returns a
// nil change.
func (s *Service) UpdatePrice(ctx context.Context, actor auth.Actor, id int64, price decimal.Decimal) (*PriceChange, error) {
	var change *PriceChange
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if err := auth.Authorize(actor, auth.ActionUpdateProduct, auth.Resource{
			RestaurantOwnerID: p.RestaurantOwnerID,
		}); err != nil {
			return err
		}
		if !ValidPrice(price) {
			return ErrInvalidPrice
		}
		if p.Price.Equal(price) {
			return nil
		}

		if err := tx.SetPrice(ctx, id, price); err != nil {
			return errors.Wrap(err, "set price")
		}
		change = &PriceChange{
			ProductID: id,
			OldPrice:  p.Price,
			NewPrice:  price,
			ChangedBy: actor.UserID,
			ChangedAt: s.now().UTC(),
		}
		if err := tx.AppendPriceChange(ctx, change); err != nil {
			return errors.Wrap(err, "append price history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if change != nil {
		zctx.From(ctx).Info("Product price changed",
			zap.Int64("product_id", id),
			zap.String("old_price", change.OldPrice.StringFixed(2)),
			zap.String("new_price", change.NewPrice.StringFixed(2)),
			zap.Int64("changed_by", actor.UserID),
		)
	}
	return change, nil
}

// SetActive toggles whether product id can be added to carts and ordered.
// It reports whether the flag actually changed. Carts already holding an
// inactive product drop it on their next view and checkout rejects it.
func (s *Service) SetActive(ctx context.Context, actor auth.Actor, id int64, active bool) (bool, error) {
	var changed bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		p, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if err := auth.Authorize(actor, auth.ActionUpdateProduct, auth.Resource{
			RestaurantOwnerID: p.RestaurantOwnerID,
		}); err != nil {
			return err
		}
		if p.Active == active {
			return nil
		}
		if err := tx.SetActive(ctx, id, active); err != nil {
			return errors.Wrap(err, "set active")
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		zctx.From(ctx).Info("Product availability changed",
			zap.Int64("product_id", id),
			zap.Bool("active", active),
			zap.Int64("changed_by", actor.UserID),
		)
	}
	return changed, nil
}
