package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/hemenye/internal/domain/auth"
	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/handler"
	"github.com/xenking/hemenye/internal/storage/postgres"
)

type options struct {
	databaseURL string
	seedFile    string
	codeFiles   []string
	campaign    Coupon
	jwtSecret   string
	tokenTTL    time.Duration
}

func main() {
	var (
		opts      options
		codeFiles string
		campaign  string
		value     string
		maxUsage  int
	)

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.seedFile, "seed-file", "db/seed/seed.json", "path to seed JSON file, optionally gzipped")
	flag.StringVar(&codeFiles, "coupon-codes", "", "comma-separated code list files (one code per line, .gz allowed)")
	flag.StringVar(&campaign, "campaign-type", string(coupon.DiscountPercent), "discount type for imported codes")
	flag.StringVar(&value, "campaign-value", "10", "discount value for imported codes")
	flag.IntVar(&maxUsage, "campaign-max-usage", 1, "per-user usage cap for imported codes")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "print bearer tokens for seeded users signed with this secret (or HEMENYE_JWT_SECRET env)")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 30*24*time.Hour, "lifetime of printed tokens")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("HEMENYE_JWT_SECRET")
	}
	if codeFiles != "" {
		opts.codeFiles = strings.Split(codeFiles, ",")
		v, err := decimal.NewFromString(value)
		if err != nil {
			slog.Error("invalid campaign value", slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts.campaign = Coupon{
			DiscountType:    coupon.DiscountType(campaign),
			Value:           v,
			MaxUsagePerUser: &maxUsage,
		}
		if !opts.campaign.DiscountType.Valid() || maxUsage < 1 {
			slog.Error("invalid campaign", slog.String("type", campaign), slog.Int("max_usage", maxUsage))
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("reading seed file", slog.String("path", opts.seedFile))

	seed, err := LoadSeed(opts.seedFile)
	if err != nil {
		return err
	}

	var codes []string
	if len(opts.codeFiles) > 0 {
		slog.Info("reading coupon code files", slog.Int("files", len(opts.codeFiles)))
		if codes, err = ReadCodes(ctx, opts.codeFiles); err != nil {
			return errors.Wrap(err, "read coupon codes")
		}
		slog.Info("read coupon codes", slog.Int("distinct", len(codes)))
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return seed.apply(ctx, tx)
	}); err != nil {
		return errors.Wrap(err, "apply seed")
	}

	if len(codes) > 0 {
		if err := importCodes(ctx, pool, codes, opts.campaign); err != nil {
			return errors.Wrap(err, "import coupon codes")
		}
	}

	if opts.jwtSecret != "" {
		return printTokens(seed.Users, []byte(opts.jwtSecret), opts.tokenTTL)
	}
	return nil
}

func (s *Seed) apply(ctx context.Context, tx pgx.Tx) error {
	for _, u := range s.Users {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, name, role) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, role = EXCLUDED.role`,
			u.ID, u.Email, u.Name, string(u.Role),
		); err != nil {
			return errors.Wrapf(err, "upsert user %d", u.ID)
		}
	}
	slog.Info("upserted users", slog.Int("count", len(s.Users)))

	for _, n := range s.Neighborhoods {
		if _, err := tx.Exec(ctx, `
			INSERT INTO neighborhoods (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			n.ID, n.Name,
		); err != nil {
			return errors.Wrapf(err, "upsert neighborhood %d", n.ID)
		}
	}
	slog.Info("upserted neighborhoods", slog.Int("count", len(s.Neighborhoods)))

	for _, r := range s.Restaurants {
		if err := r.apply(ctx, tx); err != nil {
			return errors.Wrapf(err, "restaurant %d", r.ID)
		}
		slog.Info("upserted restaurant", slog.Int64("id", r.ID), slog.String("name", r.Name))
	}

	for _, c := range s.Coupons {
		if err := upsertCoupon(ctx, tx, c); err != nil {
			return err
		}
		slog.Info("upserted coupon", slog.String("code", c.Code))
	}

	for _, a := range s.Addresses {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_addresses (id, user_id, neighborhood_id, title, address_line, is_default)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET neighborhood_id = EXCLUDED.neighborhood_id, title = EXCLUDED.title,
				address_line = EXCLUDED.address_line, is_default = EXCLUDED.is_default`,
			a.ID, a.UserID, a.NeighborhoodID, a.Title, a.AddressLine, a.IsDefault,
		); err != nil {
			return errors.Wrapf(err, "upsert address %d", a.ID)
		}
	}
	slog.Info("upserted addresses", slog.Int("count", len(s.Addresses)))

	return resetSequences(ctx, tx)
}

func (r Restaurant) apply(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO restaurants (id, owner_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, name = EXCLUDED.name`,
		r.ID, r.OwnerID, r.Name,
	); err != nil {
		return errors.Wrap(err, "upsert restaurant")
	}

	for _, b := range r.Branches {
		if _, err := tx.Exec(ctx, `
			INSERT INTO restaurant_branches (id, restaurant_id, neighborhood_id, address_line) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET neighborhood_id = EXCLUDED.neighborhood_id, address_line = EXCLUDED.address_line`,
			b.ID, r.ID, b.NeighborhoodID, b.AddressLine,
		); err != nil {
			return errors.Wrapf(err, "upsert branch %d", b.ID)
		}
	}

	for _, c := range r.Categories {
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_categories (id, restaurant_id, name) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			c.ID, r.ID, c.Name,
		); err != nil {
			return errors.Wrapf(err, "upsert category %d", c.ID)
		}

		// Prices of existing products are left alone so the price history
		// stays consistent with the live price.
		batch := &pgx.Batch{}
		for _, p := range c.Products {
			batch.Queue(`
				INSERT INTO products (id, restaurant_id, category_id, name, description, price)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description`,
				p.ID, r.ID, c.ID, p.Name, p.Description, p.Price,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "upsert products of category %d", c.ID)
		}
	}
	return nil
}

func upsertCoupon(ctx context.Context, tx pgx.Tx, c Coupon) error {
	if _, err := tx.Exec(ctx, upsertCouponSQL,
		c.Code, string(c.DiscountType), c.Value, c.MinOrderAmount, c.ValidFrom, c.ValidTo, c.MaxUsagePerUser,
	); err != nil {
		return errors.Wrapf(err, "upsert coupon %s", c.Code)
	}
	return nil
}

const upsertCouponSQL = `
	INSERT INTO coupons (code, discount_type, value, min_order_amount, valid_from, valid_to, max_usage_per_user)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (code) DO UPDATE SET discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
		min_order_amount = EXCLUDED.min_order_amount, valid_from = EXCLUDED.valid_from,
		valid_to = EXCLUDED.valid_to, max_usage_per_user = EXCLUDED.max_usage_per_user`

// importBatchSize bounds the number of statements per round trip.
const importBatchSize = 1000

func importCodes(ctx context.Context, pool *pgxpool.Pool, codes []string, campaign Coupon) error {
	for start := 0; start < len(codes); start += importBatchSize {
		end := min(start+importBatchSize, len(codes))

		batch := &pgx.Batch{}
		for _, code := range codes[start:end] {
			batch.Queue(upsertCouponSQL,
				code, string(campaign.DiscountType), campaign.Value, campaign.MinOrderAmount,
				campaign.ValidFrom, campaign.ValidTo, campaign.MaxUsagePerUser,
			)
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrapf(err, "batch at %d", start)
		}
		slog.Info("imported coupon codes", slog.Int("done", end), slog.Int("total", len(codes)))
	}
	return nil
}

var identityTables = []string{
	"users", "neighborhoods", "restaurants", "restaurant_branches",
	"product_categories", "products", "user_addresses",
}

// resetSequences moves identity sequences past explicitly inserted ids.
func resetSequences(ctx context.Context, tx pgx.Tx) error {
	for _, table := range identityTables {
		q := fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT MAX(id) FROM %[1]s), 1))`,
			table,
		)
		if _, err := tx.Exec(ctx, q); err != nil {
			return errors.Wrapf(err, "reset sequence of %s", table)
		}
	}
	return nil
}

func printTokens(users []User, secret []byte, ttl time.Duration) error {
	authn := handler.NewAuthenticator(secret)
	for _, u := range users {
		token, err := authn.Issue(auth.Actor{UserID: u.ID, Role: u.Role}, ttl)
		if err != nil {
			return errors.Wrapf(err, "issue token for user %d", u.ID)
		}
		fmt.Printf("%d\t%s\t%s\t%s\n", u.ID, u.Role, u.Email, token)
	}
	return nil
}
