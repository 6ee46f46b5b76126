package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"custody/internal/app"
	"custody/internal/config"
	"custody/pkg/logger"

	"go.uber.org/zap"
)

var stdout io.Writer = os.Stdout

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "sweep":
		return runSweep(args[2:])
	case "verify-audit":
		return runVerifyAudit(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "vault-retention"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s sweep [--retention-days <n>] [--batch-size <n>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s verify-audit --from <rfc3339> --to <rfc3339> [--expect-root <hex>]\n", name)
}

func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var retentionDays int
	var batchSize int
	fs.IntVar(&retentionDays, "retention-days", 0, "override RETENTION_DAYS")
	fs.IntVar(&batchSize, "batch-size", 0, "override RETENTION_BATCH_SIZE")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := config.FromEnv()
	if retentionDays > 0 {
		cfg.RetentionDays = retentionDays
	}
	if batchSize > 0 {
		cfg.RetentionBatchSize = batchSize
	}

	return withApp(cfg, func(ctx context.Context, a *app.App) int {
		result, err := a.RetentionSweeper().Sweep(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
			return 1
		}
		printJSON(result)
		if result.Failed > 0 {
			return 1
		}
		return 0
	})
}

func runVerifyAudit(args []string) int {
	fs := flag.NewFlagSet("verify-audit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var fromRaw string
	var toRaw string
	var expectRoot string
	fs.StringVar(&fromRaw, "from", "", "window start (RFC3339)")
	fs.StringVar(&toRaw, "to", "", "window end (RFC3339)")
	fs.StringVar(&expectRoot, "expect-root", "", "root pinned by an earlier run over the same window")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fromRaw == "" || toRaw == "" {
		fmt.Fprintln(os.Stderr, "verify-audit requires --from and --to")
		return 1
	}
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --from: %v\n", err)
		return 1
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --to: %v\n", err)
		return 1
	}

	return withApp(config.FromEnv(), func(ctx context.Context, a *app.App) int {
		result, err := a.Trail.VerifyWindow(ctx, from, to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "verify audit: %v\n", err)
			return 1
		}
		rootOK := true
		if expectRoot != "" {
			rootOK = result.CompareRoot(expectRoot)
		}
		printJSON(result)
		if len(result.Tampered) > 0 || !rootOK {
			return 2
		}
		return 0
	})
}

func withApp(cfg config.Config, fn func(ctx context.Context, a *app.App) int) int {
	zl, err := logger.NewLogger(cfg.VaultEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		return 1
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, zl)
	if err != nil {
		zl.Error("failed to build vault", zap.Error(err))
		return 1
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
