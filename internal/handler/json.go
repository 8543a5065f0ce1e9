package handler

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/pricing"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/shopping"
)

const maxBodySize = 64 << 10

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeObject calls field for every key of the JSON object in the body.
// An empty body is an empty object. field must consume or skip the value.
func decodeObject(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(body) > maxBodySize {
		return badRequest("body exceeds %d bytes", maxBodySize)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

// decodeDecimal accepts both "12.50" and 12.50.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		raw = n.String()
	default:
		return decimal.Decimal{}, badRequest("amount must be a string or a number")
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, badRequest("invalid amount %q", raw)
	}
	return v, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id %q", raw)
	}
	return id, nil
}

func money(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func statuses(e *jx.Encoder, ss []order.Status) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range ss {
			e.Str(string(s))
		}
	})
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("restaurant_id", func(e *jx.Encoder) { e.Int64(p.RestaurantID) })
		if p.CategoryID != 0 {
			e.Field("category_id", func(e *jx.Encoder) { e.Int64(p.CategoryID) })
		}
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { money(e, p.Price) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(p.Active) })
	})
}

func encodePriceChange(e *jx.Encoder, c *product.PriceChange) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("product_id", func(e *jx.Encoder) { e.Int64(c.ProductID) })
		e.Field("old_price", func(e *jx.Encoder) { money(e, c.OldPrice) })
		e.Field("new_price", func(e *jx.Encoder) { money(e, c.NewPrice) })
		e.Field("changed_by", func(e *jx.Encoder) { e.Int64(c.ChangedBy) })
		e.Field("changed_at", func(e *jx.Encoder) { timestamp(e, c.ChangedAt) })
	})
}

// encodeTotals writes the quote amounts into the enclosing object.
func encodeTotals(e *jx.Encoder, q *pricing.Quote) {
	e.Field("subtotal", func(e *jx.Encoder) { money(e, q.Subtotal) })
	e.Field("discount", func(e *jx.Encoder) { money(e, q.Discount) })
	e.Field("total", func(e *jx.Encoder) { money(e, q.Total) })
}

func encodeCart(e *jx.Encoder, v *shopping.View) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range v.Quote.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("product_id", func(e *jx.Encoder) { e.Int64(l.Product.ID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(l.Product.Name) })
						e.Field("unit_price", func(e *jx.Encoder) { money(e, l.Product.Price) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("total", func(e *jx.Encoder) { money(e, l.Total) })
					})
				}
			})
		})
		if len(v.Quote.Skipped) > 0 {
			e.Field("removed", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, id := range v.Quote.Skipped {
						e.Int64(id)
					}
				})
			})
		}
		if v.CouponCode != "" {
			e.Field("coupon_code", func(e *jx.Encoder) { e.Str(v.CouponCode) })
		}
		if v.Quote.CouponErr != nil {
			e.Field("coupon_error", func(e *jx.Encoder) { e.Str(v.Quote.CouponErr.Error()) })
		}
		encodeTotals(e, v.Quote)
	})
}

// encodeOrderFields writes o into the enclosing object.
func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
	e.Field("user_id", func(e *jx.Encoder) { e.Int64(o.UserID) })
	e.Field("restaurant_id", func(e *jx.Encoder) { e.Int64(o.RestaurantID) })
	e.Field("branch_id", func(e *jx.Encoder) { e.Int64(o.BranchID) })
	e.Field("address_id", func(e *jx.Encoder) { e.Int64(o.AddressID) })
	if o.CouponID != nil {
		e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(*o.CouponID) })
	}
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("total_amount", func(e *jx.Encoder) { money(e, o.TotalAmount) })
	e.Field("discount", func(e *jx.Encoder) { money(e, o.Discount()) })
	e.Field("final_amount", func(e *jx.Encoder) { money(e, o.FinalAmount) })
	e.Field("created_at", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
	if o.Items == nil {
		return
	}
	e.Field("items", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
					e.Field("product_id", func(e *jx.Encoder) { e.Int64(it.ProductID) })
					e.Field("product_name", func(e *jx.Encoder) { e.Str(it.ProductName) })
					e.Field("unit_price", func(e *jx.Encoder) { money(e, it.UnitPrice) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					e.Field("total", func(e *jx.Encoder) { money(e, it.Total()) })
				})
			}
		})
	})
}

func encodeReceipt(e *jx.Encoder, r *order.Receipt) {
	e.Obj(func(e *jx.Encoder) {
		encodeOrderFields(e, r.Order)
		if r.Quote != nil && r.Quote.CouponErr != nil {
			e.Field("coupon_error", func(e *jx.Encoder) { e.Str(r.Quote.CouponErr.Error()) })
		}
	})
}

func encodeDetails(e *jx.Encoder, d *order.Details) {
	e.Obj(func(e *jx.Encoder) {
		encodeOrderFields(e, d.Order)
		e.Field("next_statuses", func(e *jx.Encoder) { statuses(e, d.NextStatuses) })
		e.Field("history", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range d.History {
					e.Obj(func(e *jx.Encoder) {
						e.Field("old_status", func(e *jx.Encoder) { e.Str(string(c.OldStatus)) })
						e.Field("new_status", func(e *jx.Encoder) { e.Str(string(c.NewStatus)) })
						e.Field("changed_by", func(e *jx.Encoder) { e.Int64(c.ChangedBy) })
						e.Field("changed_at", func(e *jx.Encoder) { timestamp(e, c.ChangedAt) })
					})
				}
			})
		})
	})
}

func encodePage(e *jx.Encoder, p *order.Page) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orders", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range p.Orders {
					e.Obj(func(e *jx.Encoder) { encodeOrderFields(e, &p.Orders[i]) })
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { e.Int(p.Total) })
		e.Field("page", func(e *jx.Encoder) { e.Int(p.Page) })
		e.Field("page_size", func(e *jx.Encoder) { e.Int(p.PageSize) })
		e.Field("pages", func(e *jx.Encoder) { e.Int(p.Pages()) })
	})
}
