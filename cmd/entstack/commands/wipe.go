package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWipeCommand() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Tear the store down and delete its backing files",
		Long: `Tear the store down: detach the engine and delete the database file
together with its -shm and -wal side files. Files that do not exist
are skipped silently.`,
		Example: `  entstack wipe --yes`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				log.Warn().Msg("refusing to wipe without --yes")
				return nil
			}

			s, err := openStack()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to open store")
			}

			if err := s.Teardown(); err != nil {
				return err
			}
			log.Info().Str("db", dbPath).Msg("Store wiped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the wipe")

	return cmd
}
