package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the application configuration, loadable from environment
// variables (HEMENYE_ prefix), flags, a .env file or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (HEMENYE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `usage:"HS256 secret verifying bearer tokens" flag:"jwt-secret"`
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
	Coupons     CouponsConfig
	Cart        CartConfig
	Orders      OrdersConfig
	Events      EventsConfig
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	RPS   float64 `default:"20" usage:"Sustained requests per second per client"`
	Burst int     `default:"40" usage:"Requests a client may burst above the rate"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

type CouponsConfig struct {
	FilterRefresh time.Duration `default:"1m" usage:"How often the coupon code filter is rebuilt" flag:"coupon-filter-refresh"`
}

type CartConfig struct {
	TTL           time.Duration `default:"24h" usage:"Idle time after which a cart is dropped" flag:"cart-ttl"`
	SweepInterval time.Duration `default:"5m" usage:"How often expired carts are swept" flag:"cart-sweep-interval"`
}

type OrdersConfig struct {
	PageSize int `default:"12" usage:"Orders per listing page" flag:"orders-page-size"`
}

// EventsConfig enables order event publishing. No brokers means disabled.
type EventsConfig struct {
	Brokers string `usage:"Comma-separated Kafka brokers for order events" flag:"kafka-brokers"`
	Topic   string `default:"hemenye.orders" usage:"Kafka topic for order events" flag:"kafka-topic"`
}

// LoadConfig reads .env, then configuration files, environment and flags.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(os.Args[1:], []string{"config.yaml", "/etc/hemenye/config.yaml"})
}

func loadConfig(args, files []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "HEMENYE",
		Args:      args,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set HEMENYE_DATABASE_URL or DATABASE_URL")
	case c.JWTSecret == "":
		return errors.New("JWT secret is required: set HEMENYE_JWT_SECRET")
	case c.Orders.PageSize < 1:
		return errors.Errorf("orders page size must be positive, got %d", c.Orders.PageSize)
	case c.RateLimit.RPS <= 0:
		return errors.Errorf("rate limit must be positive, got %v", c.RateLimit.RPS)
	}
	return nil
}

// applyPlatformDefaults honors DATABASE_URL and PORT as set by hosting
// platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
