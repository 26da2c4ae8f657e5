package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gamecatalog/internal/models"
	"gamecatalog/internal/repository"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show catalog size and the last sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			total, err := app.Store.CountEntries(ctx, repository.ListEntriesParams{IncludePending: true})
			if err != nil {
				return err
			}
			visible, err := app.Store.CountEntries(ctx, repository.ListEntriesParams{})
			if err != nil {
				return err
			}
			header("Catalog")
			fmt.Printf("  entries:  %d\n", total)
			fmt.Printf("  pending:  %d\n", total-visible)

			states, err := app.Store.ListSyncStates(ctx)
			if err != nil {
				return err
			}
			fmt.Println()
			header("Sync runs")
			if len(states) == 0 {
				fmt.Println("  none yet")
				return nil
			}
			for _, st := range states {
				fmt.Printf("  %-9s %s  updated %d, skipped %d, failed %d\n",
					st.Scope, statusLabel(st.Status),
					st.UpdatedCount, st.SkippedCount, st.FailedCount)
				if st.LastSuccessAt != nil {
					fmt.Printf("            last success %s\n", st.LastSuccessAt.Local().Format(time.DateTime))
				}
				if st.LastError != nil {
					fmt.Printf("            %s\n", color.RedString(*st.LastError))
				}
			}
			return nil
		},
	}
}

func statusLabel(s models.SyncRunStatus) string {
	switch s {
	case models.SyncCompleted:
		return color.GreenString("%-9s", s)
	case models.SyncAborted:
		return color.RedString("%-9s", s)
	case models.SyncRunning:
		return color.YellowString("%-9s", s)
	default:
		return fmt.Sprintf("%-9s", s)
	}
}
