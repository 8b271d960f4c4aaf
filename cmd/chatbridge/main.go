// Package main runs the chat bridge: it accepts line protocol clients,
// authenticates them against the auth database, binds them to a character,
// and routes their chat into the world over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatbridge/internal/bridge/chat"
	"github.com/cory-johannsen/chatbridge/internal/bridge/session"
	"github.com/cory-johannsen/chatbridge/internal/config"
	"github.com/cory-johannsen/chatbridge/internal/frontend/handlers"
	"github.com/cory-johannsen/chatbridge/internal/frontend/linewire"
	"github.com/cory-johannsen/chatbridge/internal/observability"
	"github.com/cory-johannsen/chatbridge/internal/scripting"
	"github.com/cory-johannsen/chatbridge/internal/server"
	"github.com/cory-johannsen/chatbridge/internal/storage/postgres"
	"github.com/cory-johannsen/chatbridge/internal/world"
)

const healthInterval = 30 * time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "chatbridge")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}

	// run releases everything it opened before returning, on failure too.
	err = run(start, cfg, logger)
	if err != nil {
		logger.Error("chat bridge stopped", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(start time.Time, cfg config.Config, logger *zap.Logger) error {
	if !cfg.Bridge.Enabled {
		logger.Info("chat bridge disabled, exiting")
		return nil
	}

	ctx := context.Background()
	authPool, err := connect(ctx, logger, "auth", cfg.AuthDatabase)
	if err != nil {
		return err
	}
	charPool, err := connect(ctx, logger, "characters", cfg.CharacterDatabase)
	if err != nil {
		authPool.Close()
		return err
	}

	worldClient, err := world.NewClient(cfg.World.Addr(), cfg.World.CallTimeout)
	if err != nil {
		authPool.Close()
		charPool.Close()
		return fmt.Errorf("creating world client: %w", err)
	}

	lifecycle := server.NewLifecycle(logger)
	lifecycle.AddCloser("auth-db", func() error { authPool.Close(); return nil })
	lifecycle.AddCloser("characters-db", func() error { charPool.Close(); return nil })
	lifecycle.AddCloser("world", worldClient.Close)

	var filter chat.Filter
	if cfg.Scripting.FilterScript != "" {
		f, err := scripting.NewFilter(cfg.Scripting.FilterScript, cfg.Scripting.InstructionLimit, logger)
		if err != nil {
			return errors.Join(fmt.Errorf("loading chat filter: %w", err), lifecycle.Release())
		}
		lifecycle.AddCloser("chat-filter", func() error { f.Close(); return nil })
		filter = f
		logger.Info("chat filter loaded", zap.String("script", cfg.Scripting.FilterScript))
	}

	registry := session.NewRegistry()
	router := chat.NewRouter(registry, worldClient, filter, logger)
	handler := handlers.NewBridgeHandler(
		postgres.NewAccountRepository(authPool.DB()),
		postgres.NewCharacterRepository(charPool.DB()),
		worldClient,
		registry,
		router,
		logger,
		handlers.WithLegacyListSeparator(cfg.Bridge.LegacyListSeparator),
	)
	acceptor := linewire.NewAcceptor(cfg.Bridge, handler, logger)

	lifecycle.Add("db-health", healthService(logger, map[string]*postgres.Pool{
		"auth":       authPool,
		"characters": charPool,
	}))
	lifecycle.Add("bridge", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("chat bridge initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("bridge_addr", cfg.Bridge.Addr()),
		zap.String("world_addr", cfg.World.Addr()),
	)

	return lifecycle.Run(ctx)
}

func connect(ctx context.Context, logger *zap.Logger, role string, cfg config.DatabaseConfig) (*postgres.Pool, error) {
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s database: %w", role, err)
	}
	logger.Info("database connected",
		zap.String("role", role),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	return pool, nil
}

// healthService pings every pool periodically until stopped.
func healthService(logger *zap.Logger, pools map[string]*postgres.Pool) server.Service {
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(healthInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-ticker.C:
					for role, pool := range pools {
						if err := pool.Health(context.Background(), 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.String("role", role), zap.Error(err))
						}
					}
				}
			}
		},
		StopFn: func() { close(done) },
	}
}
