package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
	"github.com/Ramsey-B/fern/pkg/database"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		version uint
		force   int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply postgres migrations",
		Long: `Apply the migrations in DB_MIGRATION_FOLDER_PATH to the configured database.

Example:
  fern migrate
  fern migrate --version 1
  fern migrate --force 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			if cmd.Flags().Changed("version") {
				cfg.DatabaseMigrationVersion = int(version)
			}
			if cmd.Flags().Changed("force") {
				cfg.DatabaseMigrationForce = force
			}

			a := app.New(cfg, rootOpts.logger)
			db, err := database.Connect(cmd.Context(), a.DatabaseConfig(), rootOpts.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return a.Migrate(db)
		},
	}

	cmd.Flags().UintVar(&version, "version", 0, "migrate to this version instead of the latest")
	cmd.Flags().IntVar(&force, "force", 0, "force the schema version before migrating")

	return cmd
}
