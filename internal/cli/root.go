// Package cli implements catalogctl, the maintenance command line for the
// catalog: batch sync, schema normalization, provider import and search.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gamecatalog/internal/bootstrap"
	"gamecatalog/internal/config"
	"gamecatalog/internal/logger"
)

var (
	app     *bootstrap.App
	version = "dev"

	flagConfig  string
	flagEnvOnly bool
	flagNoColor bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "catalogctl",
	Short: "Maintain the game catalog",
	Long: `catalogctl runs catalog maintenance against the configured store.

It reads the same config file as the server (GC_CONFIG, default
config/config.yaml) and shares the provider rate limit with it when
redis.addr is set.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the entry point called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if app != nil {
		app.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func init() {
	defaultConfig := os.Getenv("GC_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config/config.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", defaultConfig, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&flagEnvOnly, "env-only", false, "Read configuration from GC_* environment variables only")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log at debug level")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if flagNoColor {
			color.NoColor = true
		}
		envOnly := flagEnvOnly
		if raw := os.Getenv("GC_ENV_ONLY"); raw != "" {
			envOnly = envOnly || strings.EqualFold(raw, "true") || raw == "1"
		}
		cfg, err := config.Load(flagConfig, envOnly)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if flagVerbose {
			cfg.Log.Level = "debug"
		} else if !strings.EqualFold(cfg.Log.Level, "debug") {
			cfg.Log.Level = "warn"
		}
		log, err := logger.New(cfg.Log, cfg.App)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		app, err = bootstrap.New(cmd.Context(), cfg, log.Named("catalogctl"))
		if err != nil {
			log.Error("bootstrap failed", zap.Error(err))
			return err
		}
		return nil
	}

	rootCmd.AddCommand(
		newSyncCmd(),
		newNormalizeCmd(),
		newImportCmd(),
		newSearchCmd(),
		newStatusCmd(),
		newSwitchCmd(),
	)
}

// commandContext is cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// ok prints a green success line.
func ok(format string, a ...interface{}) {
	fmt.Println(color.GreenString("✓"), fmt.Sprintf(format, a...))
}

// warn prints a yellow warning line.
func warn(format string, a ...interface{}) {
	fmt.Fprintln(os.Stderr, color.YellowString("!"), fmt.Sprintf(format, a...))
}

// header prints a cyan section heading.
func header(format string, a ...interface{}) {
	fmt.Println(color.CyanString(fmt.Sprintf(format, a...)))
}
