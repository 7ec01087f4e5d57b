// Command entmoot runs Entish programs: batch loading, an interactive shell
// and a file watcher.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cognicore/entmoot/internal/console"
	"github.com/cognicore/entmoot/pkg/entmoot"
	"github.com/cognicore/entmoot/pkg/entmoot/config"
)

var (
	// Global flags
	configPath  string
	seed        string
	strict      bool
	storeKind   string
	propagation string
	verbose     bool

	// Resolved in PersistentPreRunE
	settings config.Config
	logger   *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "entmoot",
	Short: "Entish fact database and rules engine",
	Long: `entmoot loads Entish programs: facts, inference rules, claims, queries
and dice rolls. Files may be .ent sources or markdown documents whose
entish code blocks are executed in order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveSettings(cmd)
		if err != nil {
			return err
		}
		settings = cfg
		logger, err = buildLogger(cfg, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&seed, "seed", "", "Dice seed (default: random per session)")
	rootCmd.PersistentFlags().BoolVar(&strict, "strict", true, "Stop at the first claim that does not hold")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", config.StoreMemory, "Fact store: memory or sqlite")
	rootCmd.PersistentFlags().StringVar(&propagation, "propagation", "cascade", "Inference propagation: cascade or saturate")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveSettings reads --config, then applies the flags given explicitly
// on the command line.
func resolveSettings(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}
	if changed("seed") {
		cfg.Seed = seed
	}
	if changed("strict") {
		cfg.Strict = strict
	}
	if changed("store") {
		cfg.Store = storeKind
	}
	if changed("propagation") {
		cfg.Propagation = propagation
	}
	return cfg, cfg.Validate()
}

func buildLogger(cfg config.Config, verbose bool) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// openSession starts a session that prints every result through p.
func openSession(ctx context.Context, p *console.Printer) (*entmoot.Session, error) {
	log := logger
	if log == nil {
		log = zap.NewNop()
	}
	return entmoot.Open(ctx, settings, entmoot.Options{
		Logger:   log,
		OnResult: p.Result,
	})
}
