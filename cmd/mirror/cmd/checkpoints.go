package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trade-mirror-bot/internal/checkpoint"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Show tasks stored in the checkpoint database",
	Long: `Checkpoints reads the SQLite checkpoint store directly, so it works while
the server is down. Credentials are not printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		cp, err := checkpoint.Open(cfg.CheckpointPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer cp.Close()

		recs, err := cp.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("query checkpoints: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tRUNNING\tLEVERAGE\tTRADER\tYOURS\tCLOSE ONLY\tREVERSE\tUPDATED\tLINK")
		for _, r := range recs {
			c := r.Config
			fmt.Fprintf(w, "%s\t%t\t%d\t%g\t%g\t%t\t%t\t%s\t%s\n",
				c.ID, r.Running, c.Leverage, c.TraderPortfolioSize, c.YourPortfolioSize,
				c.CloseOnly, c.ReverseCopy, r.UpdatedAt.Format(time.RFC3339), c.Link)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
}
