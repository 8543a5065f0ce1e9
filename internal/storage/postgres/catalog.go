package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/pricing"
	"github.com/xenking/hemenye/internal/domain/product"
)

const (
	productColumns = `p.id, p.restaurant_id, r.owner_id, COALESCE(p.category_id, 0),
		p.name, p.description, p.price, p.is_active`

	productsByIDsSQL = `SELECT ` + productColumns + `
		FROM products p JOIN restaurants r ON r.id = p.restaurant_id
		WHERE p.id = ANY($1)`

	couponByCodeSQL = `SELECT id, code, discount_type, value, min_order_amount,
		valid_from, valid_to, max_usage_per_user, is_active
		FROM coupons WHERE code = UPPER($1)`

	couponCodesSQL = `SELECT code FROM coupons`

	usageCountSQL = `SELECT usage_count FROM user_coupons WHERE user_id = $1 AND coupon_id = $2`

	// The counter row may not exist yet, so the lock is taken on its key.
	lockUsageSQL = `SELECT pg_advisory_xact_lock(
		hashtextextended('user_coupon:' || $1::bigint::text || ':' || $2::bigint::text, 0))`

	incrementUsageSQL = `INSERT INTO user_coupons (user_id, coupon_id, usage_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, coupon_id) DO UPDATE SET usage_count = user_coupons.usage_count + 1`
)

var _ pricing.Source = (*Catalog)(nil)

// Catalog serves product and coupon reads outside transactions.
type Catalog struct {
	pool *pgxpool.Pool
}

// NewCatalog returns a Catalog that uses the given pool.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	return productsByIDs(ctx, c.pool, ids)
}

func (c *Catalog) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return couponByCode(ctx, c.pool, code)
}

func (c *Catalog) UsageCount(ctx context.Context, userID, couponID int64) (int, error) {
	return usageCount(ctx, c.pool, userID, couponID)
}

// ListCodes returns every coupon code, for the code filter.
func (c *Catalog) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, couponCodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupon codes")
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func productsByIDs(ctx context.Context, q querier, ids []int64) ([]product.Product, error) {
	rows, err := q.Query(ctx, productsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func couponByCode(ctx context.Context, q querier, code string) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, couponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &c, nil
}

func usageCount(ctx context.Context, q querier, userID, couponID int64) (int, error) {
	var n int
	err := q.QueryRow(ctx, usageCountSQL, userID, couponID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read coupon usage")
	}
	return n, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.RestaurantID, &p.RestaurantOwnerID, &p.CategoryID,
		&p.Name, &p.Description, &p.Price, &p.Active,
	)
	return p, err
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.Value, &c.MinOrderAmount,
		&c.ValidFrom, &c.ValidTo, &c.MaxUsagePerUser, &c.Active,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
