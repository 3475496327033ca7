package main

import (
	"os"
	"time"

	"github.com/bellcorp/eventboard/internal/config"
	"github.com/bellcorp/eventboard/internal/db"
	"github.com/bellcorp/eventboard/internal/observability"
	"github.com/joho/godotenv"
)

// seed resets the database to a known development dataset. Destructive:
// never point it at anything you care about.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("database connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	ctx, cancel := config.WithTimeout(60 * time.Second)
	defer cancel()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	if err := db.Seed(ctx, pool); err != nil {
		log.Error("seed failed", "err", err)
		os.Exit(1)
	}

	log.Info("seed complete")
}
