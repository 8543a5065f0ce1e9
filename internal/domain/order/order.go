package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/hemenye/internal/domain/pricing"
	"github.com/xenking/hemenye/internal/domain/restaurant"
)

// Sentinel errors for order operations.
var (
	ErrNotFound        = errors.New("order not found")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrNotReviewable   = errors.New("only delivered orders can be reviewed")
	ErrAlreadyReviewed = errors.New("order already reviewed")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrPageOutOfRange  = errors.New("page out of range")
)

// InvalidCartItemError indicates a cart entry that cannot be ordered.
type InvalidCartItemError struct {
	ProductID int64
	Reason    string
}

func (e *InvalidCartItemError) Error() string {
	return fmt.Sprintf("product %d cannot be ordered: %s", e.ProductID, e.Reason)
}

// Order is a placed order. Only Status changes after creation.
type Order struct {
	ID           int64
	UserID       int64
	RestaurantID int64
	// RestaurantOwnerID is loaded for authorization, not stored.
	RestaurantOwnerID int64
	BranchID          int64
	AddressID         int64
	CouponID          *int64
	Status            Status
	// TotalAmount is the subtotal before discount.
	TotalAmount decimal.Decimal
	// FinalAmount is the amount charged.
	FinalAmount decimal.Decimal
	CreatedAt   time.Time
	Items       []Item
}

// Discount is the amount the coupon took off.
func (o *Order) Discount() decimal.Decimal {
	return o.TotalAmount.Sub(o.FinalAmount)
}

// Item is an order line. UnitPrice is frozen at purchase time.
type Item struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StatusChange is an append-only audit record of a status transition.
// Order creation is recorded with OldStatus == NewStatus.
type StatusChange struct {
	ID        int64
	OrderID   int64
	OldStatus Status
	NewStatus Status
	ChangedAt time.Time
	ChangedBy int64
}

// Review is a customer's rating of a delivered order.
type Review struct {
	ID           int64
	OrderID      int64
	UserID       int64
	RestaurantID int64
	Rating       int
	Comment      string
	CreatedAt    time.Time
}

// ListFilter narrows order listings. Zero fields do not filter.
type ListFilter struct {
	CustomerID        int64
	RestaurantOwnerID int64
	Status            Status
	Limit             int
	Offset            int
}

// Tx is the transactional view of the store used by order workflows.
//
// UsageCount (from pricing.Source) must lock the (user, coupon) counter
// until the transaction ends so that concurrent checkouts serialize on it.
type Tx interface {
	pricing.Source

	// DeliverableBranch returns an active branch with a delivery
	// neighborhood, or restaurant.ErrNoDeliverableBranch.
	DeliverableBranch(ctx context.Context, restaurantID int64) (*restaurant.Branch, error)
	// Address returns addressID if it belongs to userID, or
	// restaurant.ErrAddressNotFound.
	Address(ctx context.Context, userID, addressID int64) (*restaurant.Address, error)
	// DefaultAddress returns the user's default address, falling back to
	// the oldest one, or restaurant.ErrNoDeliveryAddress.
	DefaultAddress(ctx context.Context, userID int64) (*restaurant.Address, error)

	// CreateOrder inserts o with its items and assigns their ids.
	CreateOrder(ctx context.Context, o *Order) error
	// IncrementCouponUsage bumps the counter, creating it at 1.
	IncrementCouponUsage(ctx context.Context, userID, couponID int64) error

	// LockOrder reads the order without items and holds it until the
	// transaction ends. Returns ErrNotFound.
	LockOrder(ctx context.Context, id int64) (*Order, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	AppendStatusChange(ctx context.Context, c *StatusChange) error

	ReviewExists(ctx context.Context, orderID int64) (bool, error)
	CreateReview(ctx context.Context, r *Review) error
}

// Store persists orders. InTx runs fn in a transaction; an error from fn
// rolls back every write made through tx.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Get returns the order with its items, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Order, error)
	// History returns status changes in chronological order.
	History(ctx context.Context, orderID int64) ([]StatusChange, error)
	// List returns a page of orders, newest first, and the total match count.
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
}
