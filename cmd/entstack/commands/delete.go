package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newDeleteCommand() *cobra.Command {
	var (
		where string
		args  []string
		bulk  bool
	)

	cmd := &cobra.Command{
		Use:   "delete ENTITY",
		Short: "Delete stored instances of an entity",
		Long: `Delete every stored instance of an entity type matching the filter,
or all instances when no filter is given.

With --bulk the engine performs one batch delete instead of removing
instances individually. Bulk removal is only supported on disk-persisted
stores and falls back to per-instance removal elsewhere.`,
		Example: `  # Purge completed tasks in one engine request
  entstack delete Task --where "done = ?" --arg 1 --bulk`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			s, err := openStack()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to open store")
			}
			defer closeStack(s)

			n, err := s.DeleteAll(nil, cmdArgs[0], predicateFromFlags(where, args), bulk)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&where, "where", "", "filter expression (SQL WHERE clause)")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "filter argument (repeatable)")
	cmd.Flags().BoolVar(&bulk, "bulk", false, "use one engine-level batch delete")

	return cmd
}
