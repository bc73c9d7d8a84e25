package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge base status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	indexed, err := a.idx.Count()
	if err != nil {
		return err
	}

	fmt.Printf("Document root:     %s\n", a.cfg.RootDir)
	fmt.Printf("Indexed documents: %d\n", indexed)

	if a.vec != nil {
		embedded, err := a.vec.Count()
		if err != nil {
			return err
		}
		fmt.Printf("Embedded vectors:  %d (dimension %d)\n", embedded, a.vec.Dimension())
		if pending := indexed - embedded; pending > 0 {
			fmt.Printf("Pending embeds:    %d (next sweep retries)\n", pending)
		}
	} else {
		fmt.Println("Semantic search:   disabled (no embedding provider)")
	}
	return nil
}
