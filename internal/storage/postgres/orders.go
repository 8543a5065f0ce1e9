package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/restaurant"
)

const (
	orderColumns = `o.id, o.user_id, b.restaurant_id, r.owner_id, o.branch_id, o.address_id,
		o.coupon_id, o.status, o.total_amount, o.final_amount, o.created_at`

	orderFrom = ` FROM orders o
		JOIN restaurant_branches b ON b.id = o.branch_id
		JOIN restaurants r ON r.id = b.restaurant_id`

	orderByIDSQL = `SELECT ` + orderColumns + orderFrom + ` WHERE o.id = $1`

	lockOrderSQL = orderByIDSQL + ` FOR UPDATE OF o`

	orderFilter = ` WHERE ($1::bigint = 0 OR o.user_id = $1)
		AND ($2::bigint = 0 OR r.owner_id = $2)
		AND ($3::text = '' OR o.status = $3)`

	listOrdersSQL = `SELECT ` + orderColumns + orderFrom + orderFilter + `
		ORDER BY o.created_at DESC, o.id DESC LIMIT $4 OFFSET $5`

	countOrdersSQL = `SELECT count(*)` + orderFrom + orderFilter

	orderItemsSQL = `SELECT i.id, i.order_id, i.product_id, p.name, i.unit_price, i.quantity
		FROM order_items i JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1 ORDER BY i.id`

	historySQL = `SELECT id, order_id, old_status, new_status, changed_at, changed_by
		FROM order_status_history WHERE order_id = $1 ORDER BY id`

	deliverableBranchSQL = `SELECT b.id, b.restaurant_id, b.neighborhood_id, b.address_line, b.is_active
		FROM restaurant_branches b JOIN restaurants r ON r.id = b.restaurant_id
		WHERE b.restaurant_id = $1 AND r.is_active AND b.is_active AND b.neighborhood_id IS NOT NULL
		ORDER BY b.id LIMIT 1`

	addressColumns = `id, user_id, neighborhood_id, title, address_line, is_default`

	addressSQL = `SELECT ` + addressColumns + ` FROM user_addresses WHERE id = $1 AND user_id = $2`

	defaultAddressSQL = `SELECT ` + addressColumns + ` FROM user_addresses
		WHERE user_id = $1 ORDER BY is_default DESC, id LIMIT 1`

	insertOrderSQL = `INSERT INTO orders
		(user_id, branch_id, address_id, coupon_id, status, total_amount, final_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	insertItemSQL = `INSERT INTO order_items (order_id, product_id, unit_price, quantity)
		VALUES ($1, $2, $3, $4) RETURNING id`

	setStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	insertHistorySQL = `INSERT INTO order_status_history (order_id, old_status, new_status, changed_at, changed_by)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	reviewExistsSQL = `SELECT EXISTS (SELECT 1 FROM reviews WHERE order_id = $1)`

	insertReviewSQL = `INSERT INTO reviews (order_id, user_id, restaurant_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
)

var (
	_ order.Store = (*OrderRepository)(nil)
	_ order.Tx    = orderTx{}
)

// OrderRepository implements order.Store backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, orderTx{tx: tx})
	})
}

// Get returns the order with its items.
func (r *OrderRepository) Get(ctx context.Context, id int64) (*order.Order, error) {
	o, err := orderByID(ctx, r.pool, orderByIDSQL, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, orderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get items of order %d", id)
	}
	o.Items, err = pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, errors.Wrapf(err, "get items of order %d", id)
	}
	return o, nil
}

func (r *OrderRepository) History(ctx context.Context, orderID int64) ([]order.StatusChange, error) {
	rows, err := r.pool.Query(ctx, historySQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get history of order %d", orderID)
	}
	return pgx.CollectRows(rows, scanStatusChange)
}

// List returns orders without items.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countOrdersSQL,
		f.CustomerID, f.RestaurantOwnerID, string(f.Status),
	).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	var limit any
	if f.Limit > 0 {
		limit = f.Limit
	}
	rows, err := r.pool.Query(ctx, listOrdersSQL,
		f.CustomerID, f.RestaurantOwnerID, string(f.Status), limit, f.Offset,
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, total, nil
}

func orderByID(ctx context.Context, q querier, sql string, id int64) (*order.Order, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return &o, nil
}

type orderTx struct {
	tx pgx.Tx
}

func (t orderTx) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	return productsByIDs(ctx, t.tx, ids)
}

func (t orderTx) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return couponByCode(ctx, t.tx, code)
}

// UsageCount locks the (user, coupon) counter for the rest of the
// transaction before reading it.
func (t orderTx) UsageCount(ctx context.Context, userID, couponID int64) (int, error) {
	if _, err := t.tx.Exec(ctx, lockUsageSQL, userID, couponID); err != nil {
		return 0, errors.Wrap(err, "lock coupon usage")
	}
	return usageCount(ctx, t.tx, userID, couponID)
}

func (t orderTx) IncrementCouponUsage(ctx context.Context, userID, couponID int64) error {
	if _, err := t.tx.Exec(ctx, incrementUsageSQL, userID, couponID); err != nil {
		return errors.Wrap(err, "increment coupon usage")
	}
	return nil
}

func (t orderTx) DeliverableBranch(ctx context.Context, restaurantID int64) (*restaurant.Branch, error) {
	rows, err := t.tx.Query(ctx, deliverableBranchSQL, restaurantID)
	if err != nil {
		return nil, errors.Wrapf(err, "find branch of restaurant %d", restaurantID)
	}
	b, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (restaurant.Branch, error) {
		var b restaurant.Branch
		err := row.Scan(&b.ID, &b.RestaurantID, &b.NeighborhoodID, &b.AddressLine, &b.Active)
		return b, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, restaurant.ErrNoDeliverableBranch
		}
		return nil, errors.Wrapf(err, "find branch of restaurant %d", restaurantID)
	}
	return &b, nil
}

func (t orderTx) Address(ctx context.Context, userID, addressID int64) (*restaurant.Address, error) {
	a, err := t.address(ctx, addressSQL, addressID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, restaurant.ErrAddressNotFound
	}
	return a, err
}

func (t orderTx) DefaultAddress(ctx context.Context, userID int64) (*restaurant.Address, error) {
	a, err := t.address(ctx, defaultAddressSQL, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, restaurant.ErrNoDeliveryAddress
	}
	return a, err
}

func (t orderTx) address(ctx context.Context, sql string, args ...any) (*restaurant.Address, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "find address")
	}
	a, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (restaurant.Address, error) {
		var a restaurant.Address
		err := row.Scan(&a.ID, &a.UserID, &a.NeighborhoodID, &a.Title, &a.AddressLine, &a.IsDefault)
		return a, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "find address")
	}
	return &a, nil
}

func (t orderTx) CreateOrder(ctx context.Context, o *order.Order) error {
	if err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.UserID, o.BranchID, o.AddressID, o.CouponID, string(o.Status),
		o.TotalAmount, o.FinalAmount, o.CreatedAt,
	).Scan(&o.ID); err != nil {
		return errors.Wrap(err, "insert order")
	}

	batch := &pgx.Batch{}
	for _, it := range o.Items {
		batch.Queue(insertItemSQL, o.ID, it.ProductID, it.UnitPrice, it.Quantity)
	}
	br := t.tx.SendBatch(ctx, batch)
	for i := range o.Items {
		if err := br.QueryRow().Scan(&o.Items[i].ID); err != nil {
			_ = br.Close()
			return errors.Wrapf(err, "insert item %d of order %d", o.Items[i].ProductID, o.ID)
		}
		o.Items[i].OrderID = o.ID
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, "insert order items")
	}
	return nil
}

func (t orderTx) LockOrder(ctx context.Context, id int64) (*order.Order, error) {
	return orderByID(ctx, t.tx, lockOrderSQL, id)
}

func (t orderTx) SetStatus(ctx context.Context, id int64, status order.Status) error {
	tag, err := t.tx.Exec(ctx, setStatusSQL, id, string(status))
	if err != nil {
		return errors.Wrapf(err, "set status of order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (t orderTx) AppendStatusChange(ctx context.Context, c *order.StatusChange) error {
	err := t.tx.QueryRow(ctx, insertHistorySQL,
		c.OrderID, string(c.OldStatus), string(c.NewStatus), c.ChangedAt, c.ChangedBy,
	).Scan(&c.ID)
	if err != nil {
		return errors.Wrapf(err, "insert history of order %d", c.OrderID)
	}
	return nil
}

func (t orderTx) ReviewExists(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, reviewExistsSQL, orderID).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "check review of order %d", orderID)
	}
	return exists, nil
}

func (t orderTx) CreateReview(ctx context.Context, r *order.Review) error {
	err := t.tx.QueryRow(ctx, insertReviewSQL,
		r.OrderID, r.UserID, r.RestaurantID, r.Rating, r.Comment, r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		return errors.Wrapf(err, "insert review of order %d", r.OrderID)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.RestaurantID, &o.RestaurantOwnerID, &o.BranchID, &o.AddressID,
		&o.CouponID, &status, &o.TotalAmount, &o.FinalAmount, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity)
	return it, err
}

func scanStatusChange(row pgx.CollectableRow) (order.StatusChange, error) {
	var (
		c        order.StatusChange
		from, to string
	)
	err := row.Scan(&c.ID, &c.OrderID, &from, &to, &c.ChangedAt, &c.ChangedBy)
	c.OldStatus, c.NewStatus = order.Status(from), order.Status(to)
	return c, err
}
