package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trade-mirror-bot/internal/api"
	"trade-mirror-bot/internal/checkpoint"
	"trade-mirror-bot/internal/logger"
	"trade-mirror-bot/internal/mirror"
	"trade-mirror-bot/internal/registry"
	"trade-mirror-bot/internal/store"
	"trade-mirror-bot/internal/trace"
	"trade-mirror-bot/internal/tradelog"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API and restore checkpointed tasks",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders go to the paper gateway")
	} else {
		logger.Info(ctx, "Running in LIVE mode", "testnet", cfg.Exchange.Testnet)
	}

	cp, err := checkpoint.Open(cfg.CheckpointPath)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer cp.Close()

	compressOldLogs(ctx, cfg)
	tl := tradelog.New(cfg.TradeLogDir)
	defer tl.Close()

	// tasks outlive the signal context; Shutdown stops them explicitly
	base, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()

	reg := registry.New(base, mirror.NewFactory(cfg, tl), cp)
	n, err := reg.Restore(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to restore tasks", err)
	} else {
		logger.Info(ctx, "Restored tasks from checkpoint", "count", n)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(reg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info(ctx, "Control API listening", "addr", cfg.HTTPAddr, "driver", cfg.Source.Driver)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info(ctx, "Shutting down...")
	case serveErr = <-errCh:
		logger.ErrorWithErr(ctx, "Control API failed", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "HTTP shutdown incomplete", "error", err)
	}
	if err := reg.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Tasks still running at shutdown", "error", err)
	}
	_ = trace.Shutdown(shutdownCtx)
	return serveErr
}

// compressOldLogs gzips old order logs. TRADER_LOG_RETENTION_DAYS overrides the config value.
func compressOldLogs(ctx context.Context, cfg *store.Config) {
	days := cfg.TradeLogRetentionDays
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			logger.Warn(ctx, "Ignoring invalid TRADER_LOG_RETENTION_DAYS", "value", v)
		} else {
			days = n
		}
	}
	if days <= 0 {
		return
	}
	if err := tradelog.CompressOlder(cfg.TradeLogDir, days); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}
