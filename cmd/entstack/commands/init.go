package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a store from the model description",
		Long: `Initialize a disk-persisted store at the configured path.

The model file is loaded, the store schema is derived from it, and the
database files are created. Running init against an existing store is
harmless; the schema is created only where missing.`,
		Example: `  # Create ./entstack.db from ./model.yaml
  entstack init

  # Explicit locations
  entstack init --model ./schemas/crm.yaml --db /var/lib/crm/crm.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStack()
			if err != nil {
				// An unloadable model is a packaging defect, not a
				// runtime condition.
				log.Fatal().Err(err).Msg("failed to initialize store")
			}
			defer closeStack(s)

			log.Info().Str("model", modelPath).Str("db", dbPath).Msg("Store initialized")
			return nil
		},
	}

	return cmd
}
