package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ansel/lore/pkg/document"
	"github.com/ansel/lore/pkg/index"
	"github.com/ansel/lore/pkg/search"
)

var (
	searchMode   string
	searchLimit  int
	searchType   string
	searchStatus string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "hybrid", "search mode (keyword, semantic, hybrid)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results")
	searchCmd.Flags().StringVar(&searchType, "type", "", "filter by content type")
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "filter by status")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	query := strings.Join(args, " ")
	filter := index.Filter{
		Type:   document.ContentType(searchType),
		Status: document.Status(searchStatus),
	}
	if searchLimit <= 0 {
		searchLimit = a.cfg.Search.DefaultLimit
	}

	results, err := a.search.Search(cmd.Context(), query, search.Mode(searchMode), filter, searchLimit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. %-8s %.4f  %s\n", i+1, r.Type, r.Score, r.Title)
		fmt.Printf("    id=%s path=%s\n", r.ID, r.Path)
		if r.Gist != "" {
			fmt.Printf("    %s\n", r.Gist)
		}
	}
	return nil
}
