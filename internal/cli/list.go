package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ansel/lore/pkg/document"
	"github.com/ansel/lore/pkg/index"
)

var (
	listType   string
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, most recently updated first",
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listType, "type", "", "filter by content type")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum number of documents")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	rows, err := a.kb.List(cmd.Context(), index.Filter{
		Type:   document.ContentType(listType),
		Status: document.Status(listStatus),
		Limit:  listLimit,
	})
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No documents.")
		return nil
	}
	for _, r := range rows {
		tags := ""
		if len(r.Tags) > 0 {
			tags = " [" + strings.Join(r.Tags, ", ") + "]"
		}
		fmt.Printf("%s  %-12s %-8s %s%s\n",
			r.UpdatedAt.Format("2006-01-02 15:04"), r.Type, r.Status, r.Title, tags)
	}
	return nil
}
