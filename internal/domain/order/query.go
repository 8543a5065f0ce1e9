package order

import (
	"context"
	"math"

	"github.com/go-faster/errors"

	"github.com/xenking/hemenye/internal/domain/auth"
)

// Details is an order as shown to one actor.
type Details struct {
	Order   *Order
	History []StatusChange
	// NextStatuses are the statuses the actor may pick, current first.
	// Empty when the actor may not change the status.
	NextStatuses []Status
}

// Get returns order id with items and history if actor may view it.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id int64) (*Details, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, auth.ActionViewOrder, resourceOf(o)); err != nil {
		return nil, err
	}

	history, err := s.store.History(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get history")
	}

	d := &Details{Order: o, History: history}
	if auth.Authorize(actor, auth.ActionChangeStatus, resourceOf(o)) == nil {
		d.NextStatuses = Choices(o.Status)
	}
	return d, nil
}

// ListQuery selects a page of orders.
type ListQuery struct {
	// Status filters by status when not empty.
	Status string
	// Page is 1-based; values below 1 mean the first page.
	Page int
}

// Page is one page of an order listing.
type Page struct {
	Orders   []Order
	Total    int
	Page     int
	PageSize int
}

// Pages returns the number of pages, at least 1.
func (p *Page) Pages() int {
	if p.Total == 0 || p.PageSize == 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// List returns the orders visible to actor: their own for customers, their
// restaurant's for owners, all for admins.
func (s *Service) List(ctx context.Context, actor auth.Actor, q ListQuery) (*Page, error) {
	f := ListFilter{Limit: s.pageSize}
	switch {
	case auth.Authorize(actor, auth.ActionListAllOrders, auth.Resource{}) == nil:
	case actor.Role == auth.RoleCustomer && actor.UserID != 0:
		f.CustomerID = actor.UserID
	case actor.Role == auth.RoleRestaurantOwner && actor.UserID != 0:
		f.RestaurantOwnerID = actor.UserID
	default:
		return nil, auth.ErrForbidden
	}

	if q.Status != "" {
		st, err := ParseStatus(q.Status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}

	page := max(q.Page, 1)
	// Offsets stay within a Postgres INTEGER.
	if page-1 > math.MaxInt32/s.pageSize {
		return nil, ErrPageOutOfRange
	}
	f.Offset = (page - 1) * s.pageSize

	orders, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return &Page{Orders: orders, Total: total, Page: page, PageSize: s.pageSize}, nil
}
