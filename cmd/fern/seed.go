package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/app"
	"github.com/Ramsey-B/fern/internal/seed"
)

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Load nodes and edges from a YAML seed file",
		Long: `Load nodes and edges into the configured store. Without a file the built-in
demo graph is loaded. Records that already exist are skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				f   *seed.File
				err error
			)
			if len(args) == 1 {
				f, err = seed.LoadFile(args[0])
			} else {
				f, err = seed.Demo()
			}
			if err != nil {
				return err
			}

			a := app.New(rootOpts.cfg, rootOpts.logger)
			if err := a.Start(cmd.Context(), app.Options{}); err != nil {
				return err
			}
			defer func() { _ = a.Stop(cmd.Context()) }()

			result, err := a.Seeder.Apply(cmd.Context(), f, actor)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "seed", "actor recorded on the audit entries")

	return cmd
}
