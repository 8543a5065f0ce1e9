// Package handler exposes the ordering domain as a JSON HTTP API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/hemenye/internal/domain/auth"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/shopping"
	"github.com/xenking/hemenye/pkg/httpmiddleware"
)

// Handler serves the /api routes.
type Handler struct {
	auth     *Authenticator
	shopping *shopping.Service
	orders   *order.Service
	products *product.Service
	catalog  product.Repository
}

// NewHandler creates a Handler.
func NewHandler(
	authn *Authenticator,
	shop *shopping.Service,
	orders *order.Service,
	products *product.Service,
	catalog product.Repository,
) *Handler {
	return &Handler{
		auth:     authn,
		shopping: shop,
		orders:   orders,
		products: products,
		catalog:  catalog,
	}
}

// Router returns a mux with every API route mounted under /api.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Get("/restaurants/{id}/products", h.listMenu)
		r.Get("/products/{id}", h.getProduct)
		r.Get("/products/{id}/price-history", h.priceHistory)
		r.Put("/products/{id}/price", h.updatePrice)
		r.Put("/products/{id}/active", h.setProductActive)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.getCart)
			r.Post("/items", h.addCartItem)
			r.Post("/items/{id}/increase", h.increaseCartItem)
			r.Post("/items/{id}/decrease", h.decreaseCartItem)
			r.Delete("/items/{id}", h.removeCartItem)
			r.Post("/coupon", h.applyCoupon)
			r.Delete("/coupon", h.removeCoupon)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.checkout)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Post("/{id}/status", h.changeStatus)
			r.Post("/{id}/review", h.reviewOrder)
		})
	})
	return r
}

// RouteFinder resolves request paths to mux route patterns for logs and
// span names.
func RouteFinder(mux *chi.Mux) httpmiddleware.RouteFinder {
	return func(r *http.Request) string {
		return mux.Find(chi.NewRouteContext(), r.Method, r.URL.Path)
	}
}

// actor returns the authenticated actor or writes a 401.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	a, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeError(w, r, auth.ErrUnauthenticated)
	}
	return a, ok
}
