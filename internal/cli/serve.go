package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/isdelr/lab-portal/internal/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal web server",
		Long: `Start the HTTP server together with the live audit stream, the host
stats updater and the database maintenance scheduler. SIGINT or SIGTERM
triggers a graceful shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := app.New(ctx, opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)
			go func() {
				select {
				case <-quit:
					cancel()
				case <-ctx.Done():
				}
			}()

			return a.Run(ctx)
		},
	}
}
