package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hemenye/internal/domain/auth"
	"github.com/xenking/hemenye/internal/domain/cart"
	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/restaurant"
	"github.com/xenking/hemenye/internal/domain/shopping"
	"github.com/xenking/hemenye/pkg/httpmiddleware"
)

// badRequestError is a malformed body, path or query parameter.
type badRequestError struct {
	err error
}

func badRequest(format string, args ...any) error {
	return &badRequestError{err: errors.Errorf(format, args...)}
}

func (e *badRequestError) Error() string { return e.err.Error() }

func (e *badRequestError) Unwrap() error { return e.err }

// errorStatus maps domain errors to HTTP statuses:
// validation 400/422, not found 404, authorization 401/403,
// consistency 409, everything else 500.
func errorStatus(err error) int {
	var (
		bad        *badRequestError
		cartItem   *order.InvalidCartItemError
		transition *order.InvalidTransitionError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.As(err, &bad),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, order.ErrInvalidRating),
		errors.Is(err, order.ErrPageOutOfRange),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, shopping.ErrCouponCodeRequired):
		return http.StatusBadRequest
	// Checked before not-found: an unknown coupon code is a rejected
	// coupon, not a missing resource.
	case coupon.IsIneligible(err),
		errors.As(err, &cartItem),
		errors.As(err, &transition),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, shopping.ErrProductUnavailable),
		errors.Is(err, shopping.ErrOtherRestaurant):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, restaurant.ErrAddressNotFound):
		return http.StatusNotFound
	case errors.Is(err, restaurant.ErrNoDeliverableBranch),
		errors.Is(err, restaurant.ErrNoDeliveryAddress),
		errors.Is(err, order.ErrNotReviewable),
		errors.Is(err, order.ErrAlreadyReviewed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	}
	httpmiddleware.WriteError(w, status, msg)
}
