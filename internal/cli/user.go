package cli

import (
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isdelr/lab-portal/internal/models"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage portal accounts",
	}
	cmd.AddCommand(newUserListCmd(opts))
	cmd.AddCommand(newUserAddCmd(opts))
	cmd.AddCommand(newUserDeleteCmd(opts))
	cmd.AddCommand(newUserPasswdCmd(opts))
	cmd.AddCommand(newUserRoleCmd(opts))
	return cmd
}

func newUserListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, db, err := opts.openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			accounts, err := admin.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				cmd.Println("No accounts.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printfTo(tw, "ACCOUNT ID\tDISPLAY NAME\tROLE\tCREATED\n")
			for _, a := range accounts {
				printfTo(tw, "%s\t%s\t%s\t%s\n", a.AccountID, a.DisplayName, a.Role,
					a.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func newUserAddCmd(opts *rootOptions) *cobra.Command {
	var (
		displayName   string
		role          string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "add <account-id>",
		Short: "Create an account",
		Long: `Create an account. The display name defaults to the account id. The
password is prompted for twice unless --password-stdin is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}
			password, err := readPasswordArg(newPrompter(cmd), passwordStdin)
			if err != nil {
				return err
			}

			admin, db, err := opts.openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			acct, err := admin.CreateAccount(cmd.Context(), opts.operatorLabel(), args[0], displayName, password, r)
			if err != nil {
				return err
			}
			printf(cmd, "Created %s (%s) with role %s\n", acct.AccountID, acct.DisplayName, acct.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "display name (default: account id)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleUser), "role: user or admin")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from one line of stdin")
	return cmd
}

func newUserDeleteCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Delete an account",
		Long:  `Delete an account. Its outstanding sessions stop working on their next check.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				ok, err := newPrompter(cmd).Confirm("Delete account " + args[0] + "?")
				if err != nil {
					return err
				}
				if !ok {
					cmd.Println("Aborted.")
					return nil
				}
			}

			admin, db, err := opts.openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := admin.DeleteAccount(cmd.Context(), opts.operatorLabel(), args[0]); err != nil {
				return err
			}
			printf(cmd, "Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newUserPasswdCmd(opts *rootOptions) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "passwd <account-id>",
		Short: "Reset an account's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPasswordArg(newPrompter(cmd), passwordStdin)
			if err != nil {
				return err
			}

			admin, db, err := opts.openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := admin.ResetPassword(cmd.Context(), opts.operatorLabel(), args[0], password); err != nil {
				return err
			}
			printf(cmd, "Password reset for %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from one line of stdin")
	return cmd
}

func newUserRoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "role <account-id> <user|admin>",
		Short:     "Change an account's role",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(models.RoleUser), string(models.RoleAdmin)},
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := models.ParseRole(args[1])
			if err != nil {
				return err
			}

			admin, db, err := opts.openAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := admin.ChangeRole(cmd.Context(), opts.operatorLabel(), args[0], role); err != nil {
				return err
			}
			printf(cmd, "%s is now %s\n", args[0], role)
			return nil
		},
	}
}
