package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"custody/internal/app"
	"custody/internal/config"
	httpinfra "custody/internal/infra/http"
	"custody/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()

	zl, err := logger.NewLogger(cfg.VaultEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vault, err := app.Build(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to build vault", zap.Error(err))
	}
	defer vault.Close()

	if err := vault.RecordStartup(ctx, "vaultd"); err != nil {
		zl.Fatal("failed to record startup", zap.Error(err))
	}

	srv := httpinfra.NewServerWithDeps(cfg, httpinfra.ServerDeps{
		Vault:       vault.Vault,
		Queries:     vault.Queries,
		RateLimiter: vault.RateLimiter,
		Logger:      zl,
		StoreMode:   vault.StoreMode,
	})
	zl.Info("vaultd listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", vault.StoreMode))
	if err := srv.Run(ctx); err != nil {
		zl.Error("server exited", zap.Error(err))
	}
}
