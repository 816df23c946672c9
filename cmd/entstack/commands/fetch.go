package commands

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/entstack/entstack/pkg/stores"
)

func newFetchCommand() *cobra.Command {
	var (
		where string
		args  []string
		sort  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "fetch ENTITY",
		Short: "Fetch stored instances of an entity",
		Long: `Fetch the stored instances of an entity type and print them as
JSON lines. No matches prints nothing and exits successfully.`,
		Example: `  # Ten most urgent open tasks
  entstack fetch Task --where "done = ?" --arg 0 --sort "priority DESC" --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			s, err := openStack()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to open store")
			}
			defer closeStack(s)

			q := stores.Query{
				Predicate: predicateFromFlags(where, args),
				Limit:     limit,
			}
			if sort != "" {
				q.Sort = stores.SortBy(sort)
			}

			insts, err := s.FetchMultiple(nil, cmdArgs[0], q)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, inst := range insts {
				out := inst.Values()
				out["id"] = inst.ID()
				if err := enc.Encode(out); err != nil {
					return fmt.Errorf("failed to encode instance: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&where, "where", "", "filter expression (SQL WHERE clause)")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "filter argument (repeatable)")
	cmd.Flags().StringVar(&sort, "sort", "", "ordering expression (SQL ORDER BY clause)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0 = unbounded)")

	return cmd
}
