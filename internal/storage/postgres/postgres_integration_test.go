//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/hemenye/internal/domain/auth"
	"github.com/xenking/hemenye/internal/domain/cart"
	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/pricing"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/restaurant"
	"github.com/xenking/hemenye/internal/storage/postgres"
)

const seedSQL = `
INSERT INTO users (id, email, role) VALUES
	(1, 'ayse@example.com', 'customer'),
	(10, 'owner@example.com', 'restaurant_owner'),
	(99, 'admin@example.com', 'admin');
INSERT INTO neighborhoods (id, name) VALUES (5, 'Moda');
INSERT INTO restaurants (id, owner_id, name) VALUES (1, 10, 'Pideci');
INSERT INTO restaurant_branches (id, restaurant_id, neighborhood_id) VALUES (1, 1, 5);
INSERT INTO products (id, restaurant_id, name, price) VALUES
	(1, 1, 'Pide', 50.00),
	(2, 1, 'Ayran', 25.00);
INSERT INTO coupons (id, code, discount_type, value, max_usage_per_user) VALUES
	(1, 'TEN', 'percent', 10, NULL),
	(2, 'ONCE', 'amount', 20, 1);
INSERT INTO user_addresses (id, user_id, neighborhood_id, address_line, is_default) VALUES
	(1, 1, 5, 'Bahariye Cd. 1', TRUE);
`

var (
	customer = auth.Actor{UserID: 1, Role: auth.RoleCustomer}
	owner    = auth.Actor{UserID: 10, Role: auth.RoleRestaurantOwner}
)

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := t.Context()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "hemenye",
				"POSTGRES_PASSWORD": "hemenye",
				"POSTGRES_DB":       "hemenye",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithDeadline(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pg.Terminate(context.Background())
	})

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://hemenye:hemenye@%s:%s/hemenye?sslmode=disable", host, port.Port())
	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.RunMigrations(ctx, pool))
	// Migrations are idempotent.
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	_, err = pool.Exec(ctx, seedSQL)
	require.NoError(t, err)
	return pool
}

func hundred(t *testing.T) cart.Cart {
	t.Helper()
	c, err := cart.New(cart.Item{ProductID: 1, Quantity: 1}, cart.Item{ProductID: 2, Quantity: 2})
	require.NoError(t, err)
	return c
}

func TestPostgres(t *testing.T) {
	pool := setupDB(t)

	catalog := postgres.NewCatalog(pool)
	orders := postgres.NewOrderRepository(pool)
	products := postgres.NewProductRepository(pool)
	engine := pricing.NewEngine(coupon.NewValidator(nil))
	svc := order.NewService(orders, engine, cart.NewMemoryStore(time.Hour))

	t.Run("Catalog", func(t *testing.T) {
		ctx := t.Context()

		ps, err := catalog.GetByIDs(ctx, []int64{1, 2, 404})
		require.NoError(t, err)
		require.Len(t, ps, 2)
		for _, p := range ps {
			assert.Equal(t, int64(10), p.RestaurantOwnerID)
		}

		c, err := catalog.FindByCode(ctx, "once")
		require.NoError(t, err)
		require.NotNil(t, c.MaxUsagePerUser)
		assert.Equal(t, 1, *c.MaxUsagePerUser)
		assert.Nil(t, c.ValidFrom)

		_, err = catalog.FindByCode(ctx, "NOPE")
		assert.ErrorIs(t, err, coupon.ErrNotFound)

		codes, err := catalog.ListCodes(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"TEN", "ONCE"}, codes)
	})

	t.Run("PlaceAndTransition", func(t *testing.T) {
		ctx := t.Context()

		r, err := svc.PlaceOrder(ctx, customer, order.PlaceOrderRequest{Cart: hundred(t), CouponCode: "TEN"})
		require.NoError(t, err)
		o := r.Order
		assert.True(t, decimal.RequireFromString("90.00").Equal(o.FinalAmount), "final %s", o.FinalAmount)
		require.Len(t, o.Items, 2)
		assert.NotZero(t, o.Items[0].ID)

		stored, err := orders.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stored.RestaurantID)
		assert.Equal(t, "Pide", stored.Items[0].ProductName)

		for _, s := range []order.Status{order.StatusAccepted, order.StatusPreparing, order.StatusOnTheWay, order.StatusDelivered} {
			_, err := svc.ChangeStatus(ctx, owner, o.ID, string(s))
			require.NoError(t, err, s)
		}
		_, err = svc.ChangeStatus(ctx, owner, o.ID, string(order.StatusCanceled))
		var invalid *order.InvalidTransitionError
		require.ErrorAs(t, err, &invalid)

		history, err := orders.History(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, history, 5)
		assert.Equal(t, order.StatusPending, history[0].OldStatus)
		assert.Equal(t, order.StatusPending, history[0].NewStatus)
		assert.Equal(t, order.StatusDelivered, history[4].NewStatus)

		_, err = pool.Exec(ctx, `UPDATE order_status_history SET new_status = 'canceled' WHERE order_id = $1`, o.ID)
		assert.Error(t, err, "history rows are append-only")
		_, err = pool.Exec(ctx, `DELETE FROM order_status_history WHERE order_id = $1`, o.ID)
		assert.Error(t, err, "history rows cannot be deleted directly")

		doomed, err := svc.PlaceOrder(ctx, customer, order.PlaceOrderRequest{Cart: hundred(t)})
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, doomed.Order.ID)
		require.NoError(t, err, "deleting an order cascades to its history")
		gone, err := orders.History(ctx, doomed.Order.ID)
		require.NoError(t, err)
		assert.Empty(t, gone)

		rv, err := svc.Review(ctx, customer, o.ID, 5, "great")
		require.NoError(t, err)
		assert.NotZero(t, rv.ID)
		_, err = svc.Review(ctx, customer, o.ID, 4, "again")
		assert.ErrorIs(t, err, order.ErrAlreadyReviewed)
	})

	t.Run("UsageCapUnderConcurrency", func(t *testing.T) {
		ctx := t.Context()

		const n = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			applied int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := svc.PlaceOrder(ctx, customer, order.PlaceOrderRequest{Cart: hundred(t), CouponCode: "ONCE"})
				if !assert.NoError(t, err) {
					return
				}
				if r.Order.CouponID != nil {
					mu.Lock()
					applied++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, applied)

		usage, err := catalog.UsageCount(ctx, customer.UserID, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, usage)
	})

	t.Run("List", func(t *testing.T) {
		ctx := t.Context()

		all, total, err := orders.List(ctx, order.ListFilter{CustomerID: customer.UserID})
		require.NoError(t, err)
		assert.Equal(t, len(all), total)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "newest first")
		}

		page, total2, err := orders.List(ctx, order.ListFilter{RestaurantOwnerID: owner.UserID, Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, total, total2)
		assert.Len(t, page, 2)

		delivered, n, err := orders.List(ctx, order.ListFilter{Status: order.StatusDelivered})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Len(t, delivered, 1)
	})

	t.Run("UpdatePrice", func(t *testing.T) {
		ctx := t.Context()
		ps := product.NewService(products)

		change, err := ps.UpdatePrice(ctx, owner, 1, decimal.RequireFromString("55.00"))
		require.NoError(t, err)
		require.NotNil(t, change)
		assert.NotZero(t, change.ID)

		p, err := products.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("55.00").Equal(p.Price))

		history, err := products.PriceHistory(ctx, 1)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.True(t, decimal.RequireFromString("50.00").Equal(history[0].OldPrice))

		listed, err := products.ListByRestaurant(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, listed, 2)

		_, err = products.GetByID(ctx, 404)
		assert.ErrorIs(t, err, product.ErrNotFound)
	})

	t.Run("Availability", func(t *testing.T) {
		ctx := t.Context()
		ps := product.NewService(products)

		changed, err := ps.SetActive(ctx, owner, 2, false)
		require.NoError(t, err)
		assert.True(t, changed)

		_, err = svc.PlaceOrder(ctx, customer, order.PlaceOrderRequest{Cart: hundred(t)})
		var invalid *order.InvalidCartItemError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, int64(2), invalid.ProductID)

		changed, err = ps.SetActive(ctx, owner, 2, true)
		require.NoError(t, err)
		assert.True(t, changed)

		_, err = pool.Exec(ctx, `UPDATE restaurants SET is_active = false WHERE id = 1`)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = pool.Exec(context.Background(), `UPDATE restaurants SET is_active = true WHERE id = 1`)
		})

		listed, err := products.ListByRestaurant(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, listed)

		_, err = svc.PlaceOrder(ctx, customer, order.PlaceOrderRequest{Cart: hundred(t)})
		assert.ErrorIs(t, err, restaurant.ErrNoDeliverableBranch)
	})
}
