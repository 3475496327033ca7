package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bellcorp/eventboard/internal/config"
	"github.com/bellcorp/eventboard/internal/notifications"
	"github.com/bellcorp/eventboard/internal/observability"
	"github.com/bellcorp/eventboard/internal/queue"
	"github.com/bellcorp/eventboard/internal/queue/redisclient"
	"github.com/bellcorp/eventboard/internal/queue/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	rdb := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	{
		ctx, cancel := config.WithTimeout(5 * time.Second)
		err := rdb.Ping(ctx)
		cancel()

		if err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
	}

	prom := observability.NewProm(prometheus.DefaultRegisterer)
	confirmations := queue.NewConfirmations(rdb, prom)

	w := worker.New(
		worker.Config{BlockTimeout: 5 * time.Second},
		confirmations,
		notifications.NewLogNotifier(),
		prom,
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("confirmation worker starting", "redis", cfg.RedisAddr)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
		os.Exit(1)
	}

	log.Info("worker stopped")
}
