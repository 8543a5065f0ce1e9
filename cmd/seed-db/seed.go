package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/hemenye/internal/domain/auth"
	"github.com/xenking/hemenye/internal/domain/coupon"
)

// Seed is the reference data file layout.
type Seed struct {
	Users         []User         `json:"users"`
	Neighborhoods []Neighborhood `json:"neighborhoods"`
	Restaurants   []Restaurant   `json:"restaurants"`
	Coupons       []Coupon       `json:"coupons"`
	Addresses     []Address      `json:"addresses"`
}

type User struct {
	ID    int64     `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  auth.Role `json:"role"`
}

type Neighborhood struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Restaurant struct {
	ID         int64      `json:"id"`
	OwnerID    int64      `json:"owner_id"`
	Name       string     `json:"name"`
	Branches   []Branch   `json:"branches"`
	Categories []Category `json:"categories"`
}

type Branch struct {
	ID             int64  `json:"id"`
	NeighborhoodID *int64 `json:"neighborhood_id"`
	AddressLine    string `json:"address_line"`
}

type Category struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

type Coupon struct {
	Code            string              `json:"code"`
	DiscountType    coupon.DiscountType `json:"discount_type"`
	Value           decimal.Decimal     `json:"value"`
	MinOrderAmount  decimal.Decimal     `json:"min_order_amount"`
	ValidFrom       *time.Time          `json:"valid_from"`
	ValidTo         *time.Time          `json:"valid_to"`
	MaxUsagePerUser *int                `json:"max_usage_per_user"`
}

type Address struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	NeighborhoodID *int64 `json:"neighborhood_id"`
	Title          string `json:"title"`
	AddressLine    string `json:"address_line"`
	IsDefault      bool   `json:"is_default"`
}

// open returns a reader for path, transparently decompressing .gz files.
func open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	return gzipFile{Reader: gz, file: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	file *os.File
}

func (g gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var s Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validate %s", path)
	}
	return &s, nil
}

// Validate checks the rules the schema would otherwise reject mid-import.
func (s *Seed) Validate() error {
	for _, u := range s.Users {
		if !u.Role.Valid() {
			return errors.Errorf("user %d: unknown role %q", u.ID, u.Role)
		}
	}
	for _, r := range s.Restaurants {
		for _, c := range r.Categories {
			for _, p := range c.Products {
				if p.Price.IsNegative() || p.Price.Exponent() < -2 {
					return errors.Errorf("product %d: invalid price %s", p.ID, p.Price)
				}
			}
		}
	}
	for i := range s.Coupons {
		c := &s.Coupons[i]
		c.Code = coupon.NormalizeCode(c.Code)
		if c.Code == "" {
			return errors.Errorf("coupon %d: empty code", i)
		}
		if !c.DiscountType.Valid() {
			return errors.Errorf("coupon %s: unknown discount type %q", c.Code, c.DiscountType)
		}
		if c.MaxUsagePerUser != nil && *c.MaxUsagePerUser < 1 {
			return errors.Errorf("coupon %s: max usage must be positive", c.Code)
		}
	}
	return nil
}

// ReadCodes streams coupon code files concurrently, one code per line, and
// returns the distinct normalized codes in first-seen order per file.
func ReadCodes(ctx context.Context, paths []string) ([]string, error) {
	perFile := make([][]string, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			codes, err := readCodeFile(ctx, path)
			if err != nil {
				return err
			}
			perFile[i] = codes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	for _, codes := range perFile {
		for _, c := range codes {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out, nil
}

func readCodeFile(ctx context.Context, path string) ([]string, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var codes []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if code := coupon.NormalizeCode(scanner.Text()); code != "" {
			codes = append(codes, code)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	return codes, nil
}
