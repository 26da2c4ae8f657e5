package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gamecatalog/internal/service"
)

func newSearchCmd() *cobra.Command {
	var (
		req     service.SearchRequest
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog the way the storefront does",
		Long: `Search local entries and the metadata provider. Provider matches that
are not in the catalog yet are saved as pending discoveries, exactly as a
storefront search would.

Examples:
  catalogctl search cyberpunk
  catalogctl search "dark souls" --platform pc --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = args[0]
			result, err := app.Search.Search(commandContext(cmd), req)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			if len(result.Items) == 0 {
				warn("no games match %q", result.Query)
				return nil
			}
			for _, item := range result.Items {
				tag := ""
				if item.IsExternal {
					tag = " " + color.YellowString("[%s]", item.EnrichmentStatus)
				}
				fmt.Printf("  %s%s\n", color.WhiteString(item.Title), tag)
				if len(item.Platforms) > 0 || len(item.Genres) > 0 {
					fmt.Printf("      %s  %s\n",
						color.CyanString(strings.Join(item.Platforms, ", ")),
						strings.Join(item.Genres, ", "))
				}
			}
			fmt.Println()
			ok("%d results (%d local, %d from provider, %d new)",
				len(result.Items), result.Local, result.External, result.Discovered)
			if result.Degraded {
				warn("provider lookup failed or timed out; results may be incomplete")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Genre, "genre", "", "Only games with a matching genre")
	cmd.Flags().StringVar(&req.Platform, "platform", "", "Only games on a matching platform")
	cmd.Flags().StringVar(&req.Developer, "developer", "", "Only games from a matching developer")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
