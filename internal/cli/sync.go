package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gamecatalog/internal/service"
)

func newSyncCmd() *cobra.Command {
	var (
		scope           string
		limit           int
		checkpointEvery int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Enrich the catalog from the metadata and pricing providers",
		Long: `Walk every catalog entry and enrich the ones missing data for the
selected scope. Progress is checkpointed every --checkpoint-every changes,
so an interrupted run (Ctrl-C) keeps what it already fetched and a rerun
only picks up what is still missing.

Examples:
  catalogctl sync
  catalogctl sync --scope pricing
  catalogctl sync --scope metadata --limit 50 --checkpoint-every 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.Settings.IsEnabled(commandContext(cmd), service.FeatureCatalogSync, true) {
				warn("%s is off; running anyway because it was requested explicitly", service.FeatureCatalogSync)
			}
			header("Syncing catalog (scope %s)", scopeLabel(scope))
			result, err := app.Sync.Sync(commandContext(cmd), service.SyncOptions{
				Scope:           scope,
				Limit:           limit,
				CheckpointEvery: checkpointEvery,
			})
			if errors.Is(err, service.ErrInvalidScope) || errors.Is(err, service.ErrSyncInProgress) {
				return err
			}
			printSyncResult(result)
			if err != nil {
				if result.Canceled {
					warn("stopped early; progress up to the last item was saved")
					return nil
				}
				return err
			}
			ok("sync completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "all", "What to enrich: all, metadata or pricing")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after enriching this many entries (0 = no limit)")
	cmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 0, "Persist after this many changed entries (0 = config default)")
	return cmd
}

func printSyncResult(r service.SyncResult) {
	fmt.Printf("  entries:     %d\n", r.Total)
	fmt.Printf("  processed:   %d\n", r.Processed)
	fmt.Printf("  updated:     %s\n", color.GreenString("%d", r.Updated))
	fmt.Printf("  skipped:     %d\n", r.Skipped)
	failed := fmt.Sprintf("%d", r.Failed)
	if r.Failed > 0 {
		failed = color.RedString("%d", r.Failed)
	}
	fmt.Printf("  failed:      %s\n", failed)
	fmt.Printf("  checkpoints: %d\n", r.Checkpoints)
	if !r.FinishedAt.IsZero() {
		fmt.Printf("  elapsed:     %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
}

func scopeLabel(scope string) string {
	if scope == "" {
		return "all"
	}
	return scope
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize",
		Short: "Migrate legacy platform/genre fields without calling providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Sync.Normalize(commandContext(cmd))
			if err != nil {
				return err
			}
			if result.Changed == 0 {
				ok("all %d entries already use the current schema", result.Total)
				return nil
			}
			ok("normalized %d of %d entries", result.Changed, result.Total)
			return nil
		},
	}
}
