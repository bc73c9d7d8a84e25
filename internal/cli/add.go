package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ansel/lore/pkg/document"
	"github.com/ansel/lore/pkg/knowledge"
)

var (
	addType     string
	addTitle    string
	addTags     []string
	addCategory string
	addGist     string
	addSource   string
)

var addCmd = &cobra.Command{
	Use:   "add [body]",
	Short: "Add a document to the knowledge base",
	Long: `Add saves a new document. The body comes from the argument, or from
stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVar(&addType, "type", "note", "content type (note, journal, article, video, reminder, conversation)")
	addCmd.Flags().StringVar(&addTitle, "title", "", "document title (required)")
	addCmd.Flags().StringSliceVar(&addTags, "tags", nil, "comma-separated tags")
	addCmd.Flags().StringVar(&addCategory, "category", "", "category")
	addCmd.Flags().StringVar(&addGist, "gist", "", "one-line summary")
	addCmd.Flags().StringVar(&addSource, "source", "", "source URL")
	addCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	var body string
	if len(args) == 1 {
		body = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read body from stdin: %w", err)
		}
		body = strings.TrimSpace(string(data))
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.kb.Save(cmd.Context(), knowledge.SaveParams{
		Type:      document.ContentType(addType),
		Title:     addTitle,
		Body:      body,
		Tags:      addTags,
		Category:  addCategory,
		Gist:      addGist,
		SourceURL: addSource,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Saved %s (%s)\n", doc.ID, doc.Path)
	return nil
}
