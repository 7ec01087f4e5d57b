package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/entmoot/internal/console"
)

var dump bool

var runCmd = &cobra.Command{
	Use:   "run PATH...",
	Short: "Load files or directories and report what they derive",
	Long: `Load each path in order into one session. Derived facts, query results
and failed claims are printed; with --strict (the default) the first claim
that does not hold stops the run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPaths(cmd.Context(), cmd.OutOrStdout(), args, dump)
	},
}

func init() {
	runCmd.Flags().BoolVar(&dump, "dump", false, "Print the final database as Entish source")
}

func runPaths(ctx context.Context, out io.Writer, paths []string, dump bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := console.New(out, false)
	s, err := openSession(ctx, p)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, path := range paths {
		if err := s.LoadPath(ctx, path); err != nil {
			return err
		}
	}
	if logger != nil {
		logger.Info("loaded", zap.Strings("files", s.Loaded()), zap.String("seed", s.Config.Seed))
	}
	if dump {
		return s.Export(ctx, out, true)
	}
	return nil
}
