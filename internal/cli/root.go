// Package cli implements the labportal command line: the web server and the
// operator console.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os/user"

	"github.com/rs/zerolog"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/isdelr/lab-portal/internal/app"
	"github.com/isdelr/lab-portal/internal/auth"
	"github.com/isdelr/lab-portal/internal/config"
	"github.com/isdelr/lab-portal/internal/logger"
	"github.com/isdelr/lab-portal/internal/services"
)

// rootOptions carries global flags and the state PersistentPreRunE derives
// from them.
type rootOptions struct {
	configFile string
	operator   string
	verbose    bool

	cfg *config.Config
	log zerolog.Logger
}

// NewRootCmd creates the root command for the labportal CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "labportal",
		Short: "Lab Portal - single sign-on dashboard for the lab's services",
		Long: `Lab Portal authenticates lab members, serves the link dashboard and
answers forward-auth checks for sibling services. The console commands
manage accounts, read the audit trail and operate the portal container.`,
		SilenceUsage:      true,
		PersistentPreRunE: opts.load,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&opts.operator, "operator", "", "operator name recorded in the audit trail (default: OS user)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log informational messages")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newUserCmd(opts))
	cmd.AddCommand(newAuditCmd(opts))
	cmd.AddCommand(newServiceCmd(opts))
	cmd.AddCommand(newSystemCmd(opts))

	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("path", o.configFile).Wrap(err)
	}

	// Console commands stay quiet unless asked; the server logs at the
	// configured level.
	if cmd.Name() != "serve" && !o.verbose {
		cfg.Log.Level = "warn"
	}

	o.cfg = cfg
	o.log = logger.New(cfg.Log)
	return nil
}

// operatorLabel names the console operator in audit entries.
func (o *rootOptions) operatorLabel() string {
	name := o.operator
	if name == "" {
		if u, err := user.Current(); err == nil {
			name = u.Username
		} else {
			name = "unknown"
		}
	}
	return "console:" + name
}

// openAdmin opens the store and returns the console's admin service.
func (o *rootOptions) openAdmin(ctx context.Context) (*services.AdminService, *sql.DB, error) {
	db, err := app.OpenStore(ctx, o.cfg.DatabasePath)
	if err != nil {
		return nil, nil, oops.Code("DB_CONNECT_FAILED").With("path", o.cfg.DatabasePath).Wrap(err)
	}
	hasher := auth.NewBcryptHasher(o.cfg.Password.Cost)
	return services.NewAdminService(db, hasher, nil, o.log), db, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
