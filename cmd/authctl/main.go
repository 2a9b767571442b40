package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/crm/internal/auth/app"
	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/internal/auth/service"
	"github.com/aussiebroadwan/crm/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/crm/pkg/cryptox"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// cli holds what every subcommand shares. The store is opened lazily in
// PersistentPreRunE so --help never touches the database.
type cli struct {
	dbFile     string
	pepperFile string
	out        io.Writer
	logger     *slog.Logger

	store *sqlite.Store
}

func (c *cli) open(cmd *cobra.Command, _ []string) error {
	if err := cryptox.LoadPepper(c.pepperFile); err != nil {
		return err
	}
	st, err := app.OpenStore(c.dbFile)
	if err != nil {
		return err
	}
	c.store = st
	return nil
}

func (c *cli) close() {
	if c.store != nil {
		_ = c.store.Close()
	}
}

func (c *cli) print(v any) {
	p, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(c.out, string(p))
}

func newRootCommand(out io.Writer) (*cobra.Command, *cli) {
	c := &cli{
		dbFile:     envOr("AUTH_DATABASE_FILE", "auth.db"),
		pepperFile: envOr("AUTH_PEPPER_FILE", "pepper"),
		out:        out,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}

	root := &cobra.Command{
		Use:               "authctl",
		Short:             "Operator tooling for the auth service database",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.open,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.dbFile, "db", c.dbFile, "SQLite database file (env AUTH_DATABASE_FILE)")
	root.PersistentFlags().StringVar(&c.pepperFile, "pepper", c.pepperFile, "pepper file shared with the service (env AUTH_PEPPER_FILE)")

	root.AddCommand(
		c.migrateCommand(),
		c.bootstrapCommand(),
		c.createUserCommand(),
		c.setPasswordCommand(),
		c.pruneCommand(),
	)
	return root, c
}

func (c *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// OpenStore already migrated.
			version, dirty, err := c.store.MigrationVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "migrations applied, schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func (c *cli) bootstrapCommand() *cobra.Command {
	var data domain.BootstrapData

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first tenant and its administrator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := &service.BootstrapService{Store: c.store}
			res, err := svc.Seed(cmd.Context(), data)
			if err != nil {
				return err
			}
			c.print(map[string]string{"tenant_id": res.TenantID, "admin_user_id": res.AdminUserID})
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&data.TenantName, "tenant", "", "tenant name")
	f.StringVar(&data.AdminEmail, "email", "", "administrator email")
	f.StringVar(&data.AdminPassword, "password", "", "administrator password")
	f.StringVar(&data.AdminFirstName, "first-name", "", "administrator first name")
	f.StringVar(&data.AdminLastName, "last-name", "", "administrator last name")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) createUserCommand() *cobra.Command {
	var (
		tenantID string
		role     string
		in       service.CreateUserInput
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Add a user to a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := c.store.Tenants().GetTenantByID(ctx, tenantID); err != nil {
				return fmt.Errorf("tenant %s: %w", tenantID, err)
			}

			in.Role = domain.Role(role)
			svc := &service.UserService{Store: c.store, Activity: service.LogActivity{Logger: c.logger}}
			operator := service.Actor{TenantID: tenantID, Role: domain.RoleAdmin}
			u, err := svc.Create(ctx, operator, in)
			if err != nil {
				return err
			}
			c.print(map[string]string{"id": u.ID, "email": u.Email, "role": string(u.Role)})
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&tenantID, "tenant-id", "", "tenant the user belongs to")
	f.StringVar(&in.Email, "email", "", "email address")
	f.StringVar(&in.Password, "password", "", "initial password")
	f.StringVar(&in.FirstName, "first-name", "", "first name")
	f.StringVar(&in.LastName, "last-name", "", "last name")
	f.StringVar(&role, "role", string(domain.RoleMember), "admin or member")
	_ = cmd.MarkFlagRequired("tenant-id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) setPasswordCommand() *cobra.Command {
	var tenantID, userID, password string

	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Replace a user's password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := &service.UserService{Store: c.store}
			if err := svc.SetPassword(cmd.Context(), tenantID, userID, password); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "password updated")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&tenantID, "tenant-id", "", "tenant of the user")
	f.StringVar(&userID, "user-id", "", "user to update")
	f.StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("tenant-id")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) pruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired refresh credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hk := service.NewHousekeepingService(c.store, c.logger, 0)
			n := hk.RunOnce(cmd.Context())
			fmt.Fprintf(c.out, "deleted %d expired refresh credentials\n", n)
			return nil
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	root, c := newRootCommand(os.Stdout)
	err := root.ExecuteContext(context.Background())
	c.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
