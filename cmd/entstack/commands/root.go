package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/entstack/entstack/pkg/stack"
	"github.com/entstack/entstack/pkg/stores"
	"github.com/entstack/entstack/pkg/telemetry"
)

var (
	// Global flags
	modelPath string
	dbPath    string
	logLevel  string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "entstack",
		Short: "entstack - model-driven embedded entity store",
		Long: `entstack manages a model-driven SQLite entity store.

A YAML model file declares entity types and their properties; entstack
derives the store schema from it and exposes count, fetch, and delete
operations over the stored entities. Filter expressions are passed to
the engine verbatim as SQL WHERE clauses.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if level, err := zerolog.ParseLevel(logLevel); err == nil {
				zerolog.SetGlobalLevel(level)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&modelPath, "model", "m", "model.yaml", "model description file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "entstack.db", "database file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newCountCommand())
	rootCmd.AddCommand(newFetchCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newWipeCommand())

	return rootCmd
}

// openStack initializes a stack against the configured model and store,
// instrumented with the process telemetry. Model or store load failures
// are packaging defects; callers treat the returned error as fatal.
func openStack() (*stack.Stack, error) {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = logLevel
	cfg.Logging.Format = "console"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, err
	}

	s := stack.New(
		stack.WithLogger(tel.Logger.Zerolog()),
		stack.WithMetrics(tel.Metrics),
	)
	if err := s.Initialize(modelPath, dbPath); err != nil {
		return nil, err
	}
	return s, nil
}

// closeStack closes the engine without deleting the backing files.
func closeStack(s *stack.Stack) {
	_ = s.Shutdown()
}

// predicateFromFlags builds the optional filter predicate.
func predicateFromFlags(where string, args []string) *stores.Predicate {
	if where == "" {
		return nil
	}
	anyArgs := make([]any, len(args))
	for i, a := range args {
		anyArgs[i] = a
	}
	return stores.Where(where, anyArgs...)
}
