package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/hemenye/internal/domain/product"
)

const (
	productByIDSQL = `SELECT ` + productColumns + `
		FROM products p JOIN restaurants r ON r.id = p.restaurant_id
		WHERE p.id = $1`

	lockProductSQL = productByIDSQL + ` FOR UPDATE OF p`

	productsByRestaurantSQL = `SELECT ` + productColumns + `
		FROM products p JOIN restaurants r ON r.id = p.restaurant_id
		WHERE p.restaurant_id = $1 AND r.is_active ORDER BY p.id`

	setPriceSQL = `UPDATE products SET price = $2 WHERE id = $1`

	setActiveSQL = `UPDATE products SET is_active = $2 WHERE id = $1`

	insertPriceChangeSQL = `INSERT INTO product_price_history (product_id, old_price, new_price, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	priceHistorySQL = `SELECT id, product_id, old_price, new_price, changed_by, changed_at
		FROM product_price_history WHERE product_id = $1 ORDER BY id`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.Store      = (*ProductRepository)(nil)
)

// ProductRepository implements product.Repository and product.Store.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx product.Tx) error) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, productTx{tx: tx})
	})
}

// GetByID returns product.ErrNotFound for unknown ids.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	return productByID(ctx, r.pool, productByIDSQL, id)
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	return productsByIDs(ctx, r.pool, ids)
}

func (r *ProductRepository) ListByRestaurant(ctx context.Context, restaurantID int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, productsByRestaurantSQL, restaurantID)
	if err != nil {
		return nil, errors.Wrapf(err, "list products of restaurant %d", restaurantID)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) PriceHistory(ctx context.Context, productID int64) ([]product.PriceChange, error) {
	rows, err := r.pool.Query(ctx, priceHistorySQL, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "price history of product %d", productID)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.PriceChange, error) {
		var c product.PriceChange
		err := row.Scan(&c.ID, &c.ProductID, &c.OldPrice, &c.NewPrice, &c.ChangedBy, &c.ChangedAt)
		return c, err
	})
}

func productByID(ctx context.Context, q querier, sql string, id int64) (*product.Product, error) {
	rows, err := q.Query(ctx, sql, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &p, nil
}

type productTx struct {
	tx pgx.Tx
}

func (t productTx) LockProduct(ctx context.Context, id int64) (*product.Product, error) {
	return productByID(ctx, t.tx, lockProductSQL, id)
}

func (t productTx) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	if _, err := t.tx.Exec(ctx, setPriceSQL, id, price); err != nil {
		return errors.Wrapf(err, "set price of product %d", id)
	}
	return nil
}

func (t productTx) SetActive(ctx context.Context, id int64, active bool) error {
	if _, err := t.tx.Exec(ctx, setActiveSQL, id, active); err != nil {
		return errors.Wrapf(err, "set active flag of product %d", id)
	}
	return nil
}

func (t productTx) AppendPriceChange(ctx context.Context, c *product.PriceChange) error {
	err := t.tx.QueryRow(ctx, insertPriceChangeSQL,
		c.ProductID, c.OldPrice, c.NewPrice, c.ChangedBy, c.ChangedAt,
	).Scan(&c.ID)
	if err != nil {
		return errors.Wrapf(err, "insert price change of product %d", c.ProductID)
	}
	return nil
}
