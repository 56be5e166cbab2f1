// cmd/historian/main.go drains the action queue into Postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/omi/internal/cache"
	"github.com/jason-s-yu/omi/internal/config"
	"github.com/jason-s-yu/omi/internal/database"
	"github.com/jason-s-yu/omi/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if !cfg.Postgres.Enabled() {
		logger.Fatal("historian needs PG_HOST")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cache.ConnectRedis(cfg.Redis.Addr, cfg.Redis.DB); err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer cache.Rdb.Close()

	if err := database.ConnectDB(ctx, cfg.Postgres.ConnString()); err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		logger.Fatalf("database: %v", err)
	}

	hs := historian.New(cache.Rdb, historian.DatabaseSink{}, historian.Options{
		Queue:      cfg.Historian.QueueName,
		BatchSize:  cfg.Historian.BatchSize,
		FlushDelay: time.Duration(cfg.Historian.FlushMs) * time.Millisecond,
		Inactivity: time.Duration(cfg.Historian.InactivitySec) * time.Second,
	}, logger)
	hs.Run(ctx)
	logger.Info("Historian shutdown complete.")
}
