// Package restaurant holds the delivery topology: restaurants, their branches
// and customer delivery addresses.
package restaurant

import "github.com/go-faster/errors"

var (
	// ErrNoDeliverableBranch means the restaurant is inactive or has no
	// active branch with a delivery neighborhood.
	ErrNoDeliverableBranch = errors.New("restaurant has no deliverable branch")
	// ErrNoDeliveryAddress means the customer has no usable address.
	ErrNoDeliveryAddress = errors.New("no delivery address")
	// ErrAddressNotFound is returned for unknown or foreign address ids.
	ErrAddressNotFound = errors.New("address not found")
)

// Restaurant owns branches and a menu. An inactive restaurant lists no
// products and accepts no orders.
type Restaurant struct {
	ID      int64
	OwnerID int64
	Name    string
	Active  bool
}

// Branch is a deliverable location of a restaurant.
type Branch struct {
	ID             int64
	RestaurantID   int64
	NeighborhoodID *int64
	AddressLine    string
	Active         bool
}

// Deliverable reports whether orders may be routed to b.
func (b Branch) Deliverable() bool {
	return b.Active && b.NeighborhoodID != nil
}

// Address is a customer's delivery address.
type Address struct {
	ID             int64
	UserID         int64
	NeighborhoodID *int64
	Title          string
	AddressLine    string
	IsDefault      bool
}
