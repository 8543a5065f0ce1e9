package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/hemenye/internal/domain/auth"
)

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// listMenu returns the active products of a restaurant.
func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	products, err := h.catalog.ListByRestaurant(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				if products[i].Active {
					encodeProduct(e, &products[i])
				}
			}
		})
	})
}

func (h *Handler) priceHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := auth.Authorize(actor, auth.ActionUpdateProduct, auth.Resource{
		RestaurantOwnerID: p.RestaurantOwnerID,
	}); err != nil {
		writeError(w, r, err)
		return
	}

	history, err := h.catalog.PriceHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range history {
				encodePriceChange(e, &history[i])
			}
		})
	})
}

func (h *Handler) updatePrice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var (
		price decimal.Decimal
		set   bool
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "price" {
			return d.Skip()
		}
		var err error
		price, err = decodeDecimal(d)
		set = err == nil
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if !set {
		writeError(w, r, badRequest("price is required"))
		return
	}

	change, err := h.products.UpdatePrice(r.Context(), actor, id, price)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("product_id", func(e *jx.Encoder) { e.Int64(id) })
			e.Field("price", func(e *jx.Encoder) { money(e, price) })
			e.Field("changed", func(e *jx.Encoder) { e.Bool(change != nil) })
			if change != nil {
				e.Field("change", func(e *jx.Encoder) { encodePriceChange(e, change) })
			}
		})
	})
}

func (h *Handler) setProductActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var active, set bool
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "active" {
			return d.Skip()
		}
		var err error
		active, err = d.Bool()
		set = err == nil
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if !set {
		writeError(w, r, badRequest("active is required"))
		return
	}

	changed, err := h.products.SetActive(r.Context(), actor, id, active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("product_id", func(e *jx.Encoder) { e.Int64(id) })
			e.Field("active", func(e *jx.Encoder) { e.Bool(active) })
			e.Field("changed", func(e *jx.Encoder) { e.Bool(changed) })
		})
	})
}
