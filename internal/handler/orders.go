package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/hemenye/internal/domain/order"
)

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var addressID int64
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "address_id" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		addressID, err = d.Int64()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	receipt, err := h.orders.Checkout(r.Context(), actor, addressID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeReceipt(e, receipt) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	q := order.ListQuery{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, badRequest("invalid page %q", raw))
			return
		}
		q.Page = page
	}

	page, err := h.orders.List(r.Context(), actor, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePage(e, page) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := h.orders.Get(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDetails(e, d) })
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var target string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		var err error
		target, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.orders.ChangeStatus(r.Context(), actor, id, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order_id", func(e *jx.Encoder) { e.Int64(id) })
			e.Field("from", func(e *jx.Encoder) { e.Str(string(t.From)) })
			e.Field("to", func(e *jx.Encoder) { e.Str(string(t.To)) })
			e.Field("changed", func(e *jx.Encoder) { e.Bool(t.Changed()) })
			e.Field("next_statuses", func(e *jx.Encoder) { statuses(e, order.Choices(t.To)) })
		})
	})
}

func (h *Handler) reviewOrder(w http.ResponseWriter, r *http.Request) {
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
		rating  int
		comment string
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "rating":
			rating, err = d.Int()
		case "comment":
			comment, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	rv, err := h.orders.Review(r.Context(), actor, id, rating, comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Int64(rv.ID) })
			e.Field("order_id", func(e *jx.Encoder) { e.Int64(rv.OrderID) })
			e.Field("rating", func(e *jx.Encoder) { e.Int(rv.Rating) })
			e.Field("comment", func(e *jx.Encoder) { e.Str(rv.Comment) })
			e.Field("created_at", func(e *jx.Encoder) { timestamp(e, rv.CreatedAt) })
		})
	})
}
