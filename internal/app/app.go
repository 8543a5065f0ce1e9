package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/hemenye/internal/domain/cart"
	"github.com/xenking/hemenye/internal/domain/coupon"
	"github.com/xenking/hemenye/internal/domain/order"
	"github.com/xenking/hemenye/internal/domain/pricing"
	"github.com/xenking/hemenye/internal/domain/product"
	"github.com/xenking/hemenye/internal/domain/shopping"
	"github.com/xenking/hemenye/internal/events"
	"github.com/xenking/hemenye/internal/handler"
	"github.com/xenking/hemenye/internal/storage/postgres"
	"github.com/xenking/hemenye/pkg/health"
	"github.com/xenking/hemenye/pkg/httpmiddleware"
)

const meterName = "github.com/xenking/hemenye"

// Telemetry provides the OpenTelemetry providers. *app.Telemetry from
// go-faster/sdk satisfies it.
type Telemetry interface {
	MeterProvider() metric.MeterProvider
	TracerProvider() trace.TracerProvider
}

// Run creates all dependencies, serves HTTP until ctx is done and shuts
// down gracefully. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	catalog := postgres.NewCatalog(pool)
	products := postgres.NewProductRepository(pool)
	orders := postgres.NewOrderRepository(pool)

	codes, err := catalog.ListCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "load coupon codes")
	}
	filter := coupon.NewCodeFilter(codes)
	lg.Info("Coupon filter loaded", zap.Int("codes", len(codes)))

	metrics, err := order.NewMetrics(m.MeterProvider().Meter(meterName))
	if err != nil {
		return errors.Wrap(err, "create metrics")
	}

	orderOpts := []order.Option{
		order.WithMetrics(metrics),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithPageSize(cfg.Orders.PageSize),
	}
	if brokers := events.ParseBrokers(cfg.Events.Brokers); len(brokers) > 0 {
		publisher := events.NewKafkaPublisher(brokers, cfg.Events.Topic)
		defer func() {
			if err := publisher.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		orderOpts = append(orderOpts, order.WithPublisher(publisher))
		lg.Info("Publishing order events", zap.Strings("brokers", brokers), zap.String("topic", cfg.Events.Topic))
	}

	carts := cart.NewMemoryStore(cfg.Cart.TTL)
	engine := pricing.NewEngine(coupon.NewValidator(nil))
	orderService := order.NewService(orders, engine, carts, orderOpts...)
	shop := shopping.NewService(
		pricing.Combine(catalog, coupon.FilteredRepository{Repository: catalog, Filter: filter}),
		engine,
		carts,
	)

	h := handler.NewHandler(
		handler.NewAuthenticator([]byte(cfg.JWTSecret)),
		shop,
		orderService,
		product.NewService(products),
		products,
	)
	mux := h.Router()

	healthSvc := health.New(10 * time.Second)
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)

	routeFinder := handler.RouteFinder(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.Middleware(otelhttp.NewMiddleware("hemenye-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
				otelhttp.WithSpanNameFormatter(func(op string, r *http.Request) string {
					if route := routeFinder(r); route != "" {
						return r.Method + " " + route
					}
					return op
				}),
			)),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				RPS:   cfg.RateLimit.RPS,
				Burst: cfg.RateLimit.Burst,
			}),
		),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(ctx)
	})
	g.Go(func() error {
		every(ctx, cfg.Coupons.FilterRefresh, func() {
			codes, err := catalog.ListCodes(ctx)
			if err != nil {
				lg.Warn("Refresh coupon filter", zap.Error(err))
				return
			}
			filter.Reset(codes)
		})
		return nil
	})
	g.Go(func() error {
		every(ctx, cfg.Cart.SweepInterval, func() {
			if n := carts.Sweep(); n > 0 {
				lg.Debug("Swept expired carts", zap.Int("count", n))
			}
		})
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// every calls fn each interval until ctx is done. A non-positive interval
// disables the loop.
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
