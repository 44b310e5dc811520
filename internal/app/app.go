// Package app wires the storefront API server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/emoji-storefront/db"
	"github.com/xenking/emoji-storefront/internal/chain"
	"github.com/xenking/emoji-storefront/internal/domain/auth"
	"github.com/xenking/emoji-storefront/internal/domain/catalog"
	"github.com/xenking/emoji-storefront/internal/domain/checkout"
	"github.com/xenking/emoji-storefront/internal/domain/order"
	"github.com/xenking/emoji-storefront/internal/handler"
	"github.com/xenking/emoji-storefront/internal/storage/memory"
	"github.com/xenking/emoji-storefront/internal/storage/postgres"
	redisstore "github.com/xenking/emoji-storefront/internal/storage/redis"
	"github.com/xenking/emoji-storefront/pkg/health"
	"github.com/xenking/emoji-storefront/pkg/httpmiddleware"
)

// Telemetry provides the OpenTelemetry providers. *app.Telemetry from
// go-faster/sdk implements it.
type Telemetry = httpmiddleware.Telemetry

// Run creates all dependencies, serves HTTP and shuts down gracefully when
// ctx is cancelled. It is the single wiring point for the server.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("network", cfg.Solana.Network),
	)

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}
	recipient, err := solana.PublicKeyFromBase58(cfg.Solana.Recipient)
	if err != nil {
		return errors.Wrap(err, "parse recipient")
	}
	lg.Info("Catalog loaded", zap.Int("items", cat.Len()), zap.Stringer("recipient", recipient))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	chainClient := chain.NewClient(cfg.Solana.RPCURL)
	healthSvc.AddReadinessCheck("solana", 5*time.Second, chainClient.Health)

	// Order references are claimed in Redis when configured so replicas
	// agree, otherwise in memory.
	var (
		refs    checkout.ReferenceRegistry
		sweeper *memory.ReferenceRegistry
	)
	if cfg.Redis.URL != "" {
		rdb, err := redisstore.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		refs = redisstore.NewReferenceRegistry(rdb, cfg.Redis.ReferenceTTL)
	} else {
		sweeper = memory.NewReferenceRegistry(cfg.Redis.ReferenceTTL)
		refs = sweeper
	}

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	purchases := order.NewPurchaseFilter(orderRepo, cfg.Orders.FilterCapacity, cfg.Orders.FilterFPRate)
	warmed, err := purchases.Warm(ctx)
	if err != nil {
		return err
	}
	lg.Info("Purchase filter warmed", zap.Int("orders", warmed))

	// Domain services.
	builder, err := checkout.NewBuilder(cat, chainClient, refs, recipient,
		checkout.WithTracerProvider(m.TracerProvider()),
		checkout.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create transaction builder")
	}
	var orderOpts []order.Option
	if cfg.Solana.VerifyOrders {
		orderOpts = append(orderOpts, order.WithVerifier(ledgerVerifier{chainClient}, recipient.String()))
	}
	orderService := order.NewService(cat, purchases, orderOpts...)
	authn := auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))

	// HTTP handlers.
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL, Network: cfg.Solana.Network},
		cat,
		builder,
		orderService,
		handler.WithOrderLookup(orderRepo, authn),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			limiter.Middleware(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("storefront-api", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
		),
	}

	g, ctx := errgroup.WithContext(ctx)
	if sweeper != nil {
		g.Go(func() error {
			sweeper.Run(ctx, time.Minute)
			return nil
		})
	}
	healthSvc.SetReady(true)
	g.Go(func() error { return healthSvc.Run(ctx, 10*time.Second) })
	g.Go(func() error { return limiter.Run(ctx) })

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		cat, err := catalog.Parse(db.Products)
		if err != nil {
			return nil, errors.Wrap(err, "parse built-in catalog")
		}
		return cat, nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	return cat, nil
}
