package pricing

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hemenye/internal/domain/cart"
	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/product"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockSource struct {
	products map[int64]product.Product
	coupons  map[string]*coupon.Coupon
	usage    map[int64]int
	err      error
}

func (m *mockSource) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockSource) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (m *mockSource) UsageCount(_ context.Context, _, couponID int64) (int, error) {
	return m.usage[couponID], nil
}

// --- Helpers ---

func newEngine() *Engine {
	return NewEngine(coupon.NewValidator(func() time.Time { return fixedNow }))
}

func newCart(t *testing.T, items ...cart.Item) cart.Cart {
	t.Helper()
	c, err := cart.New(items...)
	require.NoError(t, err)
	return c
}

func newSource() *mockSource {
	one := 1
	past := fixedNow.Add(-time.Hour)
	return &mockSource{
		products: map[int64]product.Product{
			1: {ID: 1, Name: "Pide", Price: d("50.00"), Active: true},
			2: {ID: 2, Name: "Ayran", Price: d("25.00"), Active: true},
			3: {ID: 3, Name: "Retired", Price: d("10.00"), Active: false},
		},
		coupons: map[string]*coupon.Coupon{
			"TEN":      {ID: 1, Code: "TEN", DiscountType: coupon.DiscountPercent, Value: d("10"), Active: true},
			"TWENTY":   {ID: 2, Code: "TWENTY", DiscountType: coupon.DiscountAmount, Value: d("20"), Active: true},
			"HUGE":     {ID: 3, Code: "HUGE", DiscountType: coupon.DiscountAmount, Value: d("150"), Active: true},
			"OLD":      {ID: 4, Code: "OLD", DiscountType: coupon.DiscountPercent, Value: d("50"), Active: true, ValidTo: &past},
			"ONCE":     {ID: 5, Code: "ONCE", DiscountType: coupon.DiscountAmount, Value: d("5"), Active: true, MaxUsagePerUser: &one},
			"BIGSPEND": {ID: 6, Code: "BIGSPEND", DiscountType: coupon.DiscountAmount, Value: d("5"), Active: true, MinOrderAmount: d("500")},
		},
		usage: map[int64]int{5: 1},
	}
}

// --- Tests ---

func TestEngine_Quote(t *testing.T) {
	hundred := []cart.Item{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 2}}

	tests := []struct {
		name         string
		items        []cart.Item
		code         string
		wantSubtotal string
		wantDiscount string
		wantTotal    string
		wantCoupon   string
		wantErr      error
		wantSkipped  []int64
	}{
		{name: "no coupon", items: hundred, wantSubtotal: "100.00", wantDiscount: "0", wantTotal: "100.00"},
		{name: "ten percent", items: hundred, code: "TEN", wantSubtotal: "100.00", wantDiscount: "10.00", wantTotal: "90.00", wantCoupon: "TEN"},
		{name: "fixed twenty", items: hundred, code: "twenty", wantSubtotal: "100.00", wantDiscount: "20.00", wantTotal: "80.00", wantCoupon: "TWENTY"},
		{name: "fixed clamped", items: hundred, code: "HUGE", wantSubtotal: "100.00", wantDiscount: "100.00", wantTotal: "0.00", wantCoupon: "HUGE"},
		{name: "expired coupon ignored", items: hundred, code: "OLD", wantSubtotal: "100.00", wantDiscount: "0", wantTotal: "100.00", wantErr: coupon.ErrExpired},
		{name: "exhausted coupon ignored", items: hundred, code: "ONCE", wantSubtotal: "100.00", wantDiscount: "0", wantTotal: "100.00", wantErr: coupon.ErrUsageLimitReached},
		{name: "min order not met", items: hundred, code: "BIGSPEND", wantSubtotal: "100.00", wantDiscount: "0", wantTotal: "100.00", wantErr: coupon.ErrMinOrderNotMet},
		{name: "unknown coupon", items: hundred, code: "NOPE", wantSubtotal: "100.00", wantDiscount: "0", wantTotal: "100.00", wantErr: coupon.ErrNotFound},
		{
			name:         "missing and inactive products skipped",
			items:        []cart.Item{{ProductID: 1, Quantity: 1}, {ProductID: 3, Quantity: 4}, {ProductID: 99, Quantity: 1}},
			wantSubtotal: "50.00", wantDiscount: "0", wantTotal: "50.00",
			wantSkipped: []int64{3, 99},
		},
		{name: "empty cart", wantSubtotal: "0", wantDiscount: "0", wantTotal: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := newEngine().Quote(t.Context(), newSource(), newCart(t, tt.items...), tt.code, 42)
			require.NoError(t, err)

			assert.True(t, d(tt.wantSubtotal).Equal(q.Subtotal), "subtotal %s", q.Subtotal)
			assert.True(t, d(tt.wantDiscount).Equal(q.Discount), "discount %s", q.Discount)
			assert.True(t, d(tt.wantTotal).Equal(q.Total), "total %s", q.Total)
			assert.Equal(t, tt.wantSkipped, q.Skipped)

			if tt.wantCoupon != "" {
				require.NotNil(t, q.Coupon)
				assert.Equal(t, tt.wantCoupon, q.Coupon.Code)
			} else {
				assert.Nil(t, q.Coupon)
			}
			if tt.wantErr != nil {
				require.ErrorIs(t, q.CouponErr, tt.wantErr)
			} else {
				require.NoError(t, q.CouponErr)
			}
		})
	}
}

func TestEngine_QuoteStorageFailure(t *testing.T) {
	src := newSource()
	src.err = errors.New("connection refused")

	_, err := newEngine().Quote(t.Context(), src, newCart(t, cart.Item{ProductID: 1, Quantity: 1}), "", 1)
	require.Error(t, err)
	assert.False(t, coupon.IsIneligible(err))
}

func TestTotals_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for range 500 {
		subtotal := decimal.New(rng.Int64N(100_000), -2)

		_, discount, total := Totals(subtotal, nil)
		require.True(t, discount.IsZero())
		require.True(t, total.Equal(subtotal), "no coupon: total %s != subtotal %s", total, subtotal)

		kind := coupon.DiscountPercent
		if rng.IntN(2) == 0 {
			kind = coupon.DiscountAmount
		}
		c := &coupon.Coupon{DiscountType: kind, Value: decimal.New(rng.Int64N(30_000), -2)}

		_, discount, total = Totals(subtotal, c)
		require.False(t, discount.IsNegative())
		require.True(t, discount.LessThanOrEqual(subtotal), "discount %s exceeds subtotal %s", discount, subtotal)
		require.False(t, total.IsNegative())
		require.True(t, total.Equal(subtotal.Sub(discount)))
	}
}

func TestCombine_FilteredCoupons(t *testing.T) {
	src := newSource()
	filter := coupon.NewCodeFilter([]string{"TEN"})
	combined := Combine(src, coupon.FilteredRepository{Repository: src, Filter: filter})
	c := newCart(t, cart.Item{ProductID: 1, Quantity: 2})

	q, err := newEngine().Quote(t.Context(), combined, c, "ten", 1)
	require.NoError(t, err)
	require.NotNil(t, q.Coupon)
	assert.True(t, d("90.00").Equal(q.Total))

	// TWENTY exists in the source but was never added to the filter.
	q, err = newEngine().Quote(t.Context(), combined, c, "TWENTY", 1)
	require.NoError(t, err)
	assert.ErrorIs(t, q.CouponErr, coupon.ErrNotFound)
	assert.True(t, d("100.00").Equal(q.Total))
}
