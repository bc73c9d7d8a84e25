package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a one-shot reconciliation sweep",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.engine.Sweep(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Sweep finished in %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Printf("  indexed:        %d\n", stats.Indexed)
	fmt.Printf("  unchanged:      %d\n", stats.Unchanged)
	fmt.Printf("  pruned:         %d\n", stats.Pruned)
	fmt.Printf("  malformed:      %d\n", stats.Malformed)
	fmt.Printf("  embed failures: %d\n", stats.EmbedFailures)
	return nil
}
