// Package main serves an in-memory world over gRPC for local development of
// the chat bridge. Every delivered chat event is logged.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/chatbridge/internal/config"
	"github.com/cory-johannsen/chatbridge/internal/observability"
	"github.com/cory-johannsen/chatbridge/internal/server"
	"github.com/cory-johannsen/chatbridge/internal/world"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	guildID := flag.Int64("guild-id", 1, "id of the guild the stub world knows")
	guildName := flag.String("guild-name", "Developers", "name of that guild")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "worldstub")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	local := world.NewLocal(cfg.World.Motd, cfg.World.CrossFactionChat, logger)
	local.AddGuild(*guildID, *guildName)

	lis, err := net.Listen("tcp", cfg.World.Addr())
	if err != nil {
		logger.Fatal("listening", zap.String("addr", cfg.World.Addr()), zap.Error(err))
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(logCalls(logger)))
	world.RegisterService(grpcServer, local)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("world-grpc", &server.FuncService{
		StartFn: func() error { return grpcServer.Serve(lis) },
		StopFn:  grpcServer.GracefulStop,
	})

	logger.Info("world stub initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", lis.Addr().String()),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func logCalls(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		callStart := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("world call",
			zap.String("method", info.FullMethod),
			zap.Duration("elapsed", time.Since(callStart)),
			zap.Error(err),
		)
		return resp, err
	}
}
