package cart

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		entries []Item
		want    []Item
		wantErr error
	}{
		{name: "empty", want: []Item{}},
		{
			name:    "sorted and merged",
			entries: []Item{{ProductID: 3, Quantity: 1}, {ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 4}},
			want:    []Item{{ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 5}},
		},
		{name: "zero quantity", entries: []Item{{ProductID: 1, Quantity: 0}}, wantErr: ErrInvalidQuantity},
		{name: "negative quantity", entries: []Item{{ProductID: 1, Quantity: -2}}, wantErr: ErrInvalidQuantity},
		{name: "at max", entries: []Item{{ProductID: 1, Quantity: MaxQuantity}}, want: []Item{{ProductID: 1, Quantity: MaxQuantity}}},
		{name: "above max", entries: []Item{{ProductID: 1, Quantity: MaxQuantity + 1}}, wantErr: ErrInvalidQuantity},
		{name: "max int", entries: []Item{{ProductID: 1, Quantity: math.MaxInt}}, wantErr: ErrInvalidQuantity},
		{
			name:    "merged sum above max",
			entries: []Item{{ProductID: 1, Quantity: 60}, {ProductID: 1, Quantity: 40}},
			wantErr: ErrInvalidQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.entries...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Items())
		})
	}
}

func TestCartMutations(t *testing.T) {
	var c Cart
	require.True(t, c.IsEmpty())

	c, err := c.Add(7, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Quantity(7))

	_, err = c.Add(7, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	c = c.Increase(7).Increase(8)
	assert.Equal(t, 3, c.Quantity(7))
	assert.Equal(t, 1, c.Quantity(8))
	assert.Equal(t, []int64{7, 8}, c.ProductIDs())

	c = c.Decrease(8)
	assert.Equal(t, 0, c.Quantity(8))
	assert.Equal(t, 1, c.Len(), "decrement to zero removes the entry")

	c = c.Decrease(42)
	assert.Equal(t, 1, c.Len())

	c = c.Remove(7)
	assert.True(t, c.IsEmpty())
}

func TestCartQuantityCap(t *testing.T) {
	c, err := New(Item{ProductID: 1, Quantity: MaxQuantity})
	require.NoError(t, err)

	_, err = c.Add(1, 1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = c.Add(2, math.MaxInt)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	var empty Cart
	_, err = empty.Add(1, math.MaxInt)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	c = c.Increase(1)
	assert.Equal(t, MaxQuantity, c.Quantity(1), "increase stops at the cap")

	c, err = c.Decrease(1).Add(1, 1)
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, c.Quantity(1))
}

func TestCartIsValue(t *testing.T) {
	orig, err := New(Item{ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	bumped := orig.Increase(1)
	removed := orig.Remove(1)

	assert.Equal(t, 1, orig.Quantity(1))
	assert.Equal(t, 2, bumped.Quantity(1))
	assert.True(t, removed.IsEmpty())
}

func TestMemoryStore(t *testing.T) {
	ctx := t.Context()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }

	got, err := s.Load(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Cart.IsEmpty())

	c, err := New(Item{ProductID: 5, Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, 1, Session{Cart: c, CouponCode: "WELCOME10"}))

	got, err = s.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Cart.Quantity(5))
	assert.Equal(t, "WELCOME10", got.CouponCode)

	now = now.Add(2 * time.Hour)
	got, err = s.Load(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Cart.IsEmpty(), "expired session is dropped")

	require.NoError(t, s.Save(ctx, 2, Session{Cart: c}))
	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, s.Sweep())

	require.NoError(t, s.Save(ctx, 3, Session{Cart: c}))
	require.NoError(t, s.Clear(ctx, 3))
	got, err = s.Load(ctx, 3)
	require.NoError(t, err)
	assert.True(t, got.Cart.IsEmpty())
}
