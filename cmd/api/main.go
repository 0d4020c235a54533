package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/warung-orders/internal/config"
	"github.com/ariefcatur/warung-orders/internal/httpx"
	kafkax "github.com/ariefcatur/warung-orders/internal/kafka"
	"github.com/ariefcatur/warung-orders/internal/logger"
	"github.com/ariefcatur/warung-orders/internal/orders"
	"github.com/ariefcatur/warung-orders/internal/postgres"
	"github.com/ariefcatur/warung-orders/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("order-api").Error(context.Background(), "config_load_failed", "invalid configuration", err)
		os.Exit(1)
	}
	log := logger.New(cfg.ServiceName)

	if err := run(cfg, log); err != nil {
		log.Error(context.Background(), "service_stopped", "api exited with error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db, log); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := redisx.NewCache(rdb)
	if err := cache.Ping(ctx); err != nil {
		log.Warn(ctx, "redis_unavailable", "starting without cache", slog.String("error", err.Error()))
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	lifecycle := orders.NewLifecycle(&orders.Repo{DB: db},
		orders.WithLocation(loc),
		orders.WithLogger(log))

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Orders:   lifecycle,
		Cache:    cache,
		Producer: prod,
		Service:  cfg.ServiceName,
		Location: loc,
		Log:      log,
	}
	oh.Register(router, httpx.RequireAdmin([]byte(cfg.JWTSecret)))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "http_listening", "HTTP server started", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	log.Info(context.Background(), "shutdown", "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http_shutdown_failed", "server shutdown failed", err)
	}
	prod.Close()
	prod.WaitClosed()
	return nil
}
