package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bellcorp/eventboard/internal/config"
	"github.com/bellcorp/eventboard/internal/db"
	httpx "github.com/bellcorp/eventboard/internal/http"
	"github.com/bellcorp/eventboard/internal/observability"
	"github.com/bellcorp/eventboard/internal/queue"
	"github.com/bellcorp/eventboard/internal/queue/redisclient"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	shutdownTracer, err := observability.InitTracer(context.Background(), "eventboard-api", cfg.OTLPEndpoint)

	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	{
		ctx, cancel := config.WithTimeout(30 * time.Second)
		err = db.Migrate(ctx, pool)
		cancel()

		if err != nil {
			log.Error("migrate failed", "err", err)
			os.Exit(1)
		}
	}

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	rdb := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	var confirmations *queue.Confirmations

	{
		ctx, cancel := config.WithTimeout(2 * time.Second)
		err = rdb.Ping(ctx)
		cancel()

		if err != nil {
			// registration confirmations are best effort; the API keeps
			// serving without them.
			log.Warn("redis unavailable, confirmations disabled", "err", err)
		} else {
			confirmations = queue.NewConfirmations(rdb, prom)
		}
	}

	router := httpx.NewRouter(log, pool, confirmations, cfg, prom)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
