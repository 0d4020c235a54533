package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/warung-orders/internal/config"
	kafkax "github.com/ariefcatur/warung-orders/internal/kafka"
	"github.com/ariefcatur/warung-orders/internal/logger"
	"github.com/ariefcatur/warung-orders/internal/orders"
	"github.com/ariefcatur/warung-orders/internal/projector"
	"github.com/ariefcatur/warung-orders/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("order-projector").Error(context.Background(), "config_load_failed", "invalid configuration", err)
		os.Exit(1)
	}
	name := cfg.ServiceName + "-projector"
	log := logger.New(name)

	loc, err := cfg.Location()
	if err != nil {
		log.Error(context.Background(), "config_load_failed", "invalid timezone", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &projector.Service{
		Cache:    redisx.NewCache(rdb),
		Name:     name,
		Location: loc,
		Log:      log,
	}

	topics := []string{orders.TopicOrderSubmitted, orders.TopicOrderStatusChanged}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, topics, cfg.ProjectorWorkers, log)

	log.Info(ctx, "consumer_started", "projector consuming",
		slog.String("group", cfg.ProjectorGroup),
		slog.Any("topics", topics),
		slog.Int("workers", cfg.ProjectorWorkers))
	if err := cons.Start(ctx, svc.HandleEvent); err != nil {
		log.Error(ctx, "consumer_exit", "consumer stopped with error", err)
		os.Exit(1)
	}
	log.Info(context.Background(), "shutdown", "projector stopped")
}
