// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/omi/internal/auth"
	"github.com/jason-s-yu/omi/internal/broadcast"
	"github.com/jason-s-yu/omi/internal/cache"
	"github.com/jason-s-yu/omi/internal/config"
	"github.com/jason-s-yu/omi/internal/database"
	"github.com/jason-s-yu/omi/internal/handlers"
	"github.com/jason-s-yu/omi/internal/room"
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

	ttl, _ := cfg.Auth.TokenTTL()
	if cfg.Auth.KeysFromFiles() {
		err = auth.InitFromPath(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath, ttl)
	} else {
		if cfg.Broadcast.Driver != "memory" {
			logger.Warn("no JWT key files configured, cookies will not be accepted by other processes")
		}
		err = auth.Init(ttl)
	}
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NeedsRedis() {
		if err := cache.ConnectRedis(cfg.Redis.Addr, cfg.Redis.DB); err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer cache.Rdb.Close()
	}

	bus, err := newBroadcaster(cfg, logger)
	if err != nil {
		logger.Fatalf("broadcast: %v", err)
	}
	defer bus.Close()

	opts := room.Options{
		Bus: bus,
		Timing: room.Timing{
			BotThink:   cfg.Timing.BotThink(),
			TrickPause: cfg.Timing.TrickPause(),
			RoundPause: cfg.Timing.RoundPause(),
		},
		Logger: logger,
	}
	switch cfg.Snapshot.Driver {
	case "redis":
		opts.Store = cache.NewRedisStore(cache.Rdb, cfg.Snapshot.TTL)
	default:
		opts.Store = cache.NewMemoryStore()
	}
	if cfg.Redis.ActionLog {
		opts.Actions = cache.NewActionLog(cache.Rdb, cfg.Historian.QueueName)
	}

	var profiles handlers.Profiles
	if cfg.Postgres.Enabled() {
		if err := database.ConnectDB(ctx, cfg.Postgres.ConnString()); err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer database.Close()
		if err := database.EnsureSchema(ctx); err != nil {
			logger.Fatalf("database: %v", err)
		}
		opts.Results = database.Results{}
		profiles = database.Profiles{}
		logger.Infof("connected to database at %s:%s", cfg.Postgres.Host, cfg.Postgres.Port)
	} else {
		logger.Warn("PG_HOST not set, game results will not be persisted")
	}

	rs := handlers.NewRoomServer(opts, profiles)
	rs.IdleTimeout = cfg.Server.RoomIdle
	mux := http.NewServeMux()
	rs.Register(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Running on %s (broadcast=%s, snapshots=%s)", srv.Addr, cfg.Broadcast.Driver, cfg.Snapshot.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	rs.Shutdown(shutdownCtx)
}

func newBroadcaster(cfg *config.Config, logger *logrus.Logger) (broadcast.Broadcaster, error) {
	switch cfg.Broadcast.Driver {
	case "nats":
		return broadcast.ConnectNATS(cfg.Broadcast.NATSURL, logger)
	case "redis":
		return broadcast.NewRedis(cache.Rdb, logger), nil
	}
	return broadcast.NewMemory(), nil
}
