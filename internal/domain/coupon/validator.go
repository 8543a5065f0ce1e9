package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Check reports whether c may be applied to an order with the given subtotal
// by a user who already redeemed it usage times. It returns nil when eligible
// or the first failing reason.
func Check(c *Coupon, subtotal decimal.Decimal, usage int, now time.Time) error {
	switch {
	case !c.Active:
		return ErrInactive
	case c.ValidFrom != nil && now.Before(*c.ValidFrom):
		return ErrNotYetValid
	case c.ValidTo != nil && now.After(*c.ValidTo):
		return ErrExpired
	case subtotal.LessThan(c.MinOrderAmount):
		return ErrMinOrderNotMet
	case c.MaxUsagePerUser != nil && usage >= *c.MaxUsagePerUser:
		return ErrUsageLimitReached
	}
	return nil
}

// Validator resolves a coupon code and checks it for a user.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a Validator reading time from now, or from the wall
// clock when now is nil.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Now returns the validator's current time.
func (v *Validator) Now() time.Time {
	return v.now()
}

// Validate looks code up in repo and checks it against subtotal for userID.
// Ineligible coupons yield one of the reason errors (see IsIneligible);
// storage failures are wrapped.
//
// The usage counter is read only for capped coupons. Inside a checkout
// transaction repo is expected to lock the counter while reading it.
func (v *Validator) Validate(
	ctx context.Context,
	repo Repository,
	code string,
	userID int64,
	subtotal decimal.Decimal,
) (*Coupon, error) {
	c, err := repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	var usage int
	if c.MaxUsagePerUser != nil {
		usage, err = repo.UsageCount(ctx, userID, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "read coupon usage")
		}
	}

	if err := Check(c, subtotal, usage, v.now()); err != nil {
		return c, err
	}
	return c, nil
}
