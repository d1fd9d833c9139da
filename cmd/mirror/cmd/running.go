package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var runningCmd = &cobra.Command{
	Use:   "running",
	Short: "List tasks on a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c := newClient()
		tasks, err := c.Running(cmd.Context())
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tRUNNING\tCYCLES\tPROCESSED\tORDERS\tRECOVERIES\tLAST ERROR\tLINK")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%d\t%d\t%s\t%s\n",
				t.ID, t.Running, t.Cycles, t.Processed, t.Orders, t.Recoveries, t.LastError, t.Link)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runningCmd)
}
