package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSwitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch [key on|off]",
		Short: "List feature switches or flip one",
		Example: `  catalogctl switch
  catalogctl switch feature.eager_discovery off`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or <key> on|off")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			if len(args) == 0 {
				items, err := app.Settings.List(ctx)
				if err != nil {
					return err
				}
				header("Settings")
				for _, item := range items {
					fmt.Printf("  %-28s %s\n", item.Key, string(item.Value))
				}
				return nil
			}

			key := strings.TrimSpace(args[0])
			if !strings.HasPrefix(key, "feature.") {
				return fmt.Errorf("%s is not a feature switch", key)
			}
			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on", "true", "1":
				enabled = true
			case "off", "false", "0":
			default:
				return fmt.Errorf("state must be on or off, got %q", args[1])
			}
			if err := app.Settings.SetEnabled(ctx, key, enabled); err != nil {
				return err
			}
			ok("%s = %t", key, enabled)
			return nil
		},
	}
	return cmd
}
