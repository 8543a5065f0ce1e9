package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInvalidPrice is returned for negative prices or sub-cent precision.
	ErrInvalidPrice = errors.New("price must be a non-negative amount with at most two decimals")
)

// Product is a menu item of one restaurant.
type Product struct {
	ID           int64
	RestaurantID int64
	// RestaurantOwnerID is the user owning RestaurantID; loaded for
	// authorization, not stored on the product.
	RestaurantOwnerID int64
	CategoryID        int64
	Name              string
	Description       string
	Price             decimal.Decimal
	Active            bool
}

// PriceChange is an entry of a product's price history.
type PriceChange struct {
	ID        int64
	ProductID int64
	OldPrice  decimal.Decimal
	NewPrice  decimal.Decimal
	ChangedBy int64
	ChangedAt time.Time
}

// Repository defines read operations for the catalog.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	// GetByIDs returns the products that exist among ids, in no particular
	// order. Missing ids are not an error.
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	// ListByRestaurant returns the menu of restaurantID, empty when the
	// restaurant is inactive.
	ListByRestaurant(ctx context.Context, restaurantID int64) ([]Product, error)
	PriceHistory(ctx context.Context, productID int64) ([]PriceChange, error)
}

// Tx is the transactional view used by catalog edits.
type Tx interface {
	// LockProduct reads the product and holds it until the transaction ends.
	LockProduct(ctx context.Context, id int64) (*Product, error)
	SetPrice(ctx context.Context, id int64, price decimal.Decimal) error
	SetActive(ctx context.Context, id int64, active bool) error
	AppendPriceChange(ctx context.Context, c *PriceChange) error
}

// Store runs fn inside a transaction. fn's error rolls everything back.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ValidPrice reports whether p can be stored as a catalog price.
func ValidPrice(p decimal.Decimal) bool {
	return !p.IsNegative() && p.Equal(p.Round(2))
}
