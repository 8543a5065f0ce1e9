package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount computes the amount c takes off subtotal, rounded to cents and
// clamped to [0, subtotal]. Eligibility is not checked here.
func Discount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercent:
		amount = subtotal.Mul(c.Value).Div(hundred)
	case DiscountAmount:
		amount = c.Value
	default:
		return decimal.Zero
	}
	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}
