package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gamecatalog/internal/service"
)

func newImportCmd() *cobra.Command {
	var req service.ImportRequest

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import games from the metadata provider",
		Long: `Fetch games from the provider and add them to the catalog fully
reconciled. Sources can be combined: explicit ids, a search query, or a
discovery listing by tags and platforms.

Examples:
  catalogctl import --id 3328 --id 4200
  catalogctl import --query "hollow knight"
  catalogctl import --tags roguelike --platforms 4 --limit 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Import.Import(commandContext(cmd), req)
			if err != nil {
				return err
			}
			for _, item := range result.Items {
				fmt.Printf("  %s  %s\n", color.WhiteString(item.Title), color.CyanString("%s %s", item.Price.StringFixed(2), item.Currency))
			}
			for _, msg := range result.Errors {
				warn("%s", msg)
			}
			ok("created %d, updated %d, unchanged %d, failed %d",
				result.Created, result.Updated, result.Unchanged, result.Failed)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&req.ExternalIDs, "id", nil, "Provider game id (repeatable)")
	cmd.Flags().StringVar(&req.Query, "query", "", "Import the results of a provider search")
	cmd.Flags().StringVar(&req.Tags, "tags", "", "Discovery tags, comma separated")
	cmd.Flags().StringVar(&req.Platforms, "platforms", "", "Discovery platform ids, comma separated")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Maximum games to import from query or discovery")
	return cmd
}
