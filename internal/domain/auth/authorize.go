package auth

// Action names an operation guarded by Authorize.
type Action string

const (
	ActionManageCart    Action = "cart.manage"
	ActionCheckout      Action = "order.checkout"
	ActionViewOrder     Action = "order.view"
	ActionChangeStatus  Action = "order.change_status"
	ActionReviewOrder   Action = "order.review"
	ActionUpdateProduct Action = "product.update"
	ActionListAllOrders Action = "order.list_all"
)

// Resource describes ownership of the object an action targets. Zero values
// mean "no owner of that kind".
type Resource struct {
	// CustomerID is the user who placed the order.
	CustomerID int64
	// RestaurantOwnerID is the owner of the restaurant the object belongs to.
	RestaurantOwnerID int64
}

// Authorize decides whether actor may perform action on res. It returns nil
// when allowed and ErrForbidden otherwise. Callers run it before any business
// validation so a denied actor learns nothing about the target's state.
func Authorize(actor Actor, action Action, res Resource) error {
	if actor.UserID == 0 || !actor.Role.Valid() {
		return ErrForbidden
	}
	if allowed(actor, action, res) {
		return nil
	}
	return ErrForbidden
}

func allowed(actor Actor, action Action, res Resource) bool {
	switch action {
	case ActionManageCart, ActionCheckout:
		return actor.Role == RoleCustomer
	case ActionReviewOrder:
		return actor.Role == RoleCustomer && res.CustomerID == actor.UserID
	case ActionViewOrder:
		switch actor.Role {
		case RoleAdmin:
			return true
		case RoleCustomer:
			return res.CustomerID == actor.UserID
		case RoleRestaurantOwner:
			return res.RestaurantOwnerID == actor.UserID
		}
	case ActionChangeStatus, ActionUpdateProduct:
		switch actor.Role {
		case RoleAdmin:
			return true
		case RoleRestaurantOwner:
			return res.RestaurantOwnerID == actor.UserID
		}
	case ActionListAllOrders:
		return actor.Role == RoleAdmin
	}
	return false
}
