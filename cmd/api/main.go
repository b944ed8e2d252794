// Command api serves the CRM HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/config"
	"tt360.co/crm/internal/httpapi"
	"tt360.co/crm/internal/inventory"
	"tt360.co/crm/internal/limiter"
	"tt360.co/crm/internal/migrate"
	"tt360.co/crm/internal/obs"
	"tt360.co/crm/internal/store/pg"
	"tt360.co/crm/internal/store/redisstore"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("CRM_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger("crm-api", cfg.Environment, cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.DSN == "" {
		logger.Fatal("missing DSN: provide database.dsn or CRM_PG_DSN")
	}
	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer pool.Close()
	store := pg.FromPool(pool)
	defer store.Close()

	if cfg.Database.MigrateOnStart {
		mgr, err := migrate.NewManager(store.DB())
		if err != nil {
			logger.Fatal("migrations", zap.Error(err))
		}
		if err := mgr.Up(ctx); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
	}

	tokens, err := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiration.Std())
	if err != nil {
		logger.Fatal("token service", zap.Error(err))
	}
	authOpts := []auth.ServiceOption{
		auth.WithLimiter(limiter.NewPG(pool, cfg.Login.Window.Std(), cfg.Login.MaxFailures, cfg.Login.LockFor.Std())),
	}
	if cfg.Redis.Addr != "" {
		client, err := redisstore.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("token denylist", zap.Error(err))
		}
		defer client.Close()
		authOpts = append(authOpts, auth.WithDenylist(redisstore.New(client)))
		logger.Info("token revocation enabled", zap.String("redis", cfg.Redis.Addr))
	} else {
		logger.Warn("redis not configured, logout does not revoke tokens")
	}

	authSvc, err := auth.NewService(store, tokens, authOpts...)
	if err != nil {
		logger.Fatal("auth service", zap.Error(err))
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		logger.Fatal("rbac service", zap.Error(err))
	}
	inv, err := inventory.NewService(store, inventory.WithTaxRate(cfg.Billing.TaxRateBasisPoints))
	if err != nil {
		logger.Fatal("inventory service", zap.Error(err))
	}

	trusted, err := httpapi.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	api := httpapi.New(httpapi.ReadyProbe{DB: store}, version,
		httpapi.Services{Auth: authSvc, RBAC: rbac, Inventory: inv},
		httpapi.WithRateLimit(cfg.Server.RateBurst, cfg.Server.RatePerSecond),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithCORSOrigins(cfg.Server.CORSOrigins),
		httpapi.WithTrustedProxies(trusted),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout.Std(),
		WriteTimeout:      cfg.Server.WriteTimeout.Std(),
		IdleTimeout:       cfg.Server.IdleTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting crm-api",
			zap.String("version", version),
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("listen", zap.Error(err))
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func openPool(ctx context.Context, db config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(db.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if db.MaxConns > 0 {
		pcfg.MaxConns = db.MaxConns
	}
	if db.MinConns > 0 {
		pcfg.MinConns = db.MinConns
	}
	if db.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = db.MaxConnLifetime.Std()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}
