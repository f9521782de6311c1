package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isdelr/lab-portal/internal/models"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var (
		filter models.AuditFilter
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit trail",
		Long: `Show audit entries, newest first. --actor and --action match substrings.
--limit 0 shows every entry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if filter.Limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}

			admin, db, err := opts.openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := admin.QueryAudit(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			if len(entries) == 0 {
				cmd.Println("No audit entries.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printfTo(tw, "TIME\tACTOR\tACTION\tSOURCE IP\n")
			for _, e := range entries {
				printfTo(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					e.ActorLabel, e.Action, e.SourceIP)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.Actor, "actor", "", "only entries whose actor contains this text")
	cmd.Flags().StringVar(&filter.Action, "action", "", "only entries whose action contains this text")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", models.DefaultAuditLimit, "maximum entries to show, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func printfTo(tw *tabwriter.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(tw, format, args...)
}
