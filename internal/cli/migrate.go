package cli

import (
	"github.com/spf13/cobra"

	"github.com/isdelr/lab-portal/internal/app"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Create the database if needed and apply all pending schema migrations.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println("Running migrations...")
			db, err := app.OpenStore(cmd.Context(), opts.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			cmd.Println("Migrations completed successfully")
			return nil
		},
	}
}
