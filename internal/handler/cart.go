package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/hemenye/internal/domain/auth"
	"github.com/xenking/hemenye/internal/domain/shopping"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.writeCart(w, r)(h.shopping.View(r.Context(), actor))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var (
		productID int64
		quantity  = 1
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			productID, err = d.Int64()
		case "quantity":
			quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if productID <= 0 {
		writeError(w, r, badRequest("product_id is required"))
		return
	}

	h.writeCart(w, r)(h.shopping.AddItem(r.Context(), actor, productID, quantity))
}

func (h *Handler) increaseCartItem(w http.ResponseWriter, r *http.Request) {
	h.cartItem(w, r, h.shopping.Increase)
}

func (h *Handler) decreaseCartItem(w http.ResponseWriter, r *http.Request) {
	h.cartItem(w, r, h.shopping.Decrease)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	h.cartItem(w, r, h.shopping.Remove)
}

type cartItemOp func(ctx context.Context, actor auth.Actor, productID int64) (*shopping.View, error)

func (h *Handler) cartItem(w http.ResponseWriter, r *http.Request, op cartItemOp) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeCart(w, r)(op(r.Context(), actor, id))
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var code string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	h.writeCart(w, r)(h.shopping.ApplyCoupon(r.Context(), actor, code))
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	h.writeCart(w, r)(h.shopping.RemoveCoupon(r.Context(), actor))
}

// writeCart returns a sink for a shopping call result.
func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request) func(*shopping.View, error) {
	return func(v *shopping.View, err error) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCart(e, v) })
	}
}
