package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType determines how a coupon's Value is interpreted.
type DiscountType string

const (
	// DiscountPercent takes Value percent off the subtotal.
	DiscountPercent DiscountType = "percent"
	// DiscountAmount takes a fixed Value off the subtotal.
	DiscountAmount DiscountType = "amount"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercent || t == DiscountAmount
}

// Reasons a coupon is not applied. Each maps to distinct user feedback.
var (
	ErrNotFound          = errors.New("coupon not found")
	ErrInactive          = errors.New("coupon is not active")
	ErrNotYetValid       = errors.New("coupon is not valid yet")
	ErrExpired           = errors.New("coupon has expired")
	ErrMinOrderNotMet    = errors.New("minimum order amount not met")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

// IsIneligible reports whether err is one of the coupon rejection reasons,
// as opposed to a storage failure.
func IsIneligible(err error) bool {
	for _, reason := range []error{
		ErrNotFound, ErrInactive, ErrNotYetValid, ErrExpired, ErrMinOrderNotMet, ErrUsageLimitReached,
	} {
		if errors.Is(err, reason) {
			return true
		}
	}
	return false
}

// Coupon is a named discount rule.
type Coupon struct {
	ID             int64
	Code           string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	ValidFrom      *time.Time
	ValidTo        *time.Time
	// MaxUsagePerUser caps redemptions per user; nil means unlimited.
	MaxUsagePerUser *int
	Active          bool
}

// Repository provides read access to coupons and per-user usage counters.
type Repository interface {
	// FindByCode returns ErrNotFound when no coupon has the code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// UsageCount returns how often userID redeemed couponID. A missing
	// counter reads as zero.
	UsageCount(ctx context.Context, userID, couponID int64) (int, error)
}

// NormalizeCode canonicalizes user input; codes are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
