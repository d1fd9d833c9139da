package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trade-mirror-bot/internal/types"
)

var startCfg types.TaskConfig

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start mirroring a trader on a running server",
	Long: `Start asks the control API to create a task that follows one trader.

Credentials default to BINANCE_API_KEY and BINANCE_API_SECRET.

Example:
  mirror start --id alice --link https://www.binance.com/en/futures-activity/leaderboard/user?encryptedUid=... \
    --leverage 10 --trader-portfolio 50000 --your-portfolio 1000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if startCfg.APIKey == "" {
			startCfg.APIKey = os.Getenv("BINANCE_API_KEY")
		}
		if startCfg.APISecret == "" {
			startCfg.APISecret = os.Getenv("BINANCE_API_SECRET")
		}

		c := newClient()
		id, err := c.Start(cmd.Context(), startCfg)
		if err != nil {
			return fmt.Errorf("start task: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "started %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)

	f := startCmd.Flags()
	f.StringVar(&startCfg.ID, "id", "", "task id (unique per server)")
	f.StringVar(&startCfg.Link, "link", "", "trader's public profile URL")
	f.StringVar(&startCfg.APIKey, "api-key", "", "exchange API key")
	f.StringVar(&startCfg.APISecret, "api-secret", "", "exchange API secret")
	f.IntVar(&startCfg.Leverage, "leverage", 1, "leverage applied to mirrored orders")
	f.Float64Var(&startCfg.TraderPortfolioSize, "trader-portfolio", 0, "source trader's portfolio size")
	f.Float64Var(&startCfg.YourPortfolioSize, "your-portfolio", 0, "your portfolio size")
	f.BoolVar(&startCfg.CloseOnly, "close-only", false, "mirror only closing trades")
	f.BoolVar(&startCfg.ReverseCopy, "reverse", false, "take the opposite side of every trade")
	_ = startCmd.MarkFlagRequired("id")
	_ = startCmd.MarkFlagRequired("link")
}
