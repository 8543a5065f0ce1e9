// Package cart holds the customer's shopping cart: a value type mapping
// product ids to positive quantities, and the session store that keeps it
// between requests.
package cart

import (
	"maps"
	"slices"

	"github.com/go-faster/errors"
)

// MaxQuantity caps the quantity of a single cart entry.
const MaxQuantity = 99

// ErrInvalidQuantity is returned when a quantity falls outside
// [1, MaxQuantity].
var ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")

// Item is a single cart entry.
type Item struct {
	ProductID int64
	Quantity  int
}

// Cart maps product ids to quantities. Every stored quantity is in
// [1, MaxQuantity].
// Cart is immutable: mutating methods return a new Cart.
type Cart struct {
	items map[int64]int
}

// New builds a cart from entries, rejecting quantities outside
// [1, MaxQuantity]. Duplicate product ids are summed and the sum is capped
// the same way.
func New(entries ...Item) (Cart, error) {
	c := Cart{items: make(map[int64]int, len(entries))}
	for _, e := range entries {
		q, ok := sum(c.items[e.ProductID], e.Quantity)
		if !ok {
			return Cart{}, errors.Wrapf(ErrInvalidQuantity, "product %d", e.ProductID)
		}
		c.items[e.ProductID] = q
	}
	return c, nil
}

// sum adds qty to current, reporting false when qty is not positive or the
// result exceeds MaxQuantity. Both operands are checked before adding so
// the sum cannot overflow.
func sum(current, qty int) (int, bool) {
	if qty < 1 || qty > MaxQuantity || current > MaxQuantity-qty {
		return 0, false
	}
	return current + qty, true
}

func (c Cart) clone() Cart {
	return Cart{items: maps.Clone(c.items)}
}

// Add increases the quantity of productID by qty, inserting it if absent.
// The resulting quantity must not exceed MaxQuantity.
func (c Cart) Add(productID int64, qty int) (Cart, error) {
	q, ok := sum(c.items[productID], qty)
	if !ok {
		return c, ErrInvalidQuantity
	}
	next := c.clone()
	if next.items == nil {
		next.items = make(map[int64]int, 1)
	}
	next.items[productID] = q
	return next, nil
}

// Increase adds one unit of productID. A quantity already at MaxQuantity
// is left unchanged.
func (c Cart) Increase(productID int64) Cart {
	next, _ := c.Add(productID, 1)
	return next
}

// Decrease removes one unit of productID. The entry disappears when its
// quantity reaches zero. Absent products are ignored.
func (c Cart) Decrease(productID int64) Cart {
	q, ok := c.items[productID]
	if !ok {
		return c
	}
	next := c.clone()
	if q <= 1 {
		delete(next.items, productID)
	} else {
		next.items[productID] = q - 1
	}
	return next
}

// Remove drops productID from the cart.
func (c Cart) Remove(productID int64) Cart {
	if _, ok := c.items[productID]; !ok {
		return c
	}
	next := c.clone()
	delete(next.items, productID)
	return next
}

// Quantity returns the quantity of productID, zero when absent.
func (c Cart) Quantity(productID int64) int {
	return c.items[productID]
}

func (c Cart) Len() int { return len(c.items) }

func (c Cart) IsEmpty() bool { return len(c.items) == 0 }

// ProductIDs returns the ids in ascending order.
func (c Cart) ProductIDs() []int64 {
	return slices.Sorted(maps.Keys(c.items))
}

// Items returns the entries ordered by product id.
func (c Cart) Items() []Item {
	ids := c.ProductIDs()
	out := make([]Item, len(ids))
	for i, id := range ids {
		out[i] = Item{ProductID: id, Quantity: c.items[id]}
	}
	return out
}
