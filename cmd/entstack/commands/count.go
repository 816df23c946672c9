package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCountCommand() *cobra.Command {
	var (
		where string
		args  []string
	)

	cmd := &cobra.Command{
		Use:   "count ENTITY",
		Short: "Count stored instances of an entity",
		Long: `Count the stored instances of an entity type.

The filter expression is passed to the engine verbatim as a SQL WHERE
clause; use --arg for each ? placeholder.`,
		Example: `  # All tasks
  entstack count Task

  # Open tasks
  entstack count Task --where "done = ?" --arg 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			s, err := openStack()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to open store")
			}
			defer closeStack(s)

			n, err := s.Count(nil, cmdArgs[0], predicateFromFlags(where, args))
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}

	cmd.Flags().StringVar(&where, "where", "", "filter expression (SQL WHERE clause)")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "filter argument (repeatable)")

	return cmd
}
