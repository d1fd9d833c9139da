package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"trade-mirror-bot/internal/api"
	"trade-mirror-bot/internal/logger"
	"trade-mirror-bot/internal/store"
	"trade-mirror-bot/internal/trace"
)

var (
	configPath    string
	serverURL     string
	clientTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Mirror a public futures trader's history onto your own account",
	Long: `Mirror follows public leaderboard traders by polling their trade-history
page and placing scaled market orders on a Binance futures account.

Commands:
  serve        Run the control API and every checkpointed task
  start        Ask a running server to follow a trader
  stop         Stop a task by id
  running      List the tasks a server is running
  checkpoints  Show the tasks stored in the checkpoint database`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		if err := logger.Init(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if err := trace.Init(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("MIRROR_SERVER", "http://localhost:5000"), "control API base URL")
	// /stop waits up to 30s server side for the task loop to exit
	rootCmd.PersistentFlags().DurationVar(&clientTimeout, "timeout", 45*time.Second, "control API request timeout")
}

// newClient builds the control API client for the start, stop and running commands.
func newClient() *api.Client {
	return api.NewClient(
		api.WithBaseURL(serverURL),
		api.WithTimeout(clientTimeout),
		api.WithHeader("User-Agent", "mirror-cli"),
		api.WithLogging(true),
	)
}

// loadConfig reads configPath, falling back to defaults when the file is absent.
func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn(ctx, "Config file not found, using defaults", "path", configPath)
		return store.Default(), nil
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		return nil, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
