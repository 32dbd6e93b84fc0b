package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BradenHooton/alumnigate/internal/app"
	"github.com/BradenHooton/alumnigate/internal/config"
	"github.com/BradenHooton/alumnigate/internal/database"
	"github.com/BradenHooton/alumnigate/internal/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or inspect database migrations",
}

func migrateSubcommand(direction database.MigrateDirection, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(direction),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err := database.NewConnection(&cfg.Database, newLogger())
			if err != nil {
				return err
			}
			defer db.Close()

			// goose prints status to its logger, so keep it on for status
			return db.Migrate(cmd.Context(), direction, verbose || direction == database.MigrateStatus)
		},
	}
}

var threatCmd = &cobra.Command{
	Use:   "threat",
	Short: "Evaluate the current threat level",
}

var threatEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Print the current threat assessment without raising alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			assessment, err := a.Threat.Evaluate(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), assessment)
		})
	},
}

var threatCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one alert cycle: evaluate, raise alerts and notify admins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			cycle, err := a.Threat.CheckAndAlert(cmd.Context())
			if cycle != nil {
				if perr := printJSON(cmd.OutOrStdout(), map[string]any{
					"assessment":        cycle.Assessment,
					"alerts_created":    cycle.Created,
					"dispatch_failures": cycle.DispatchFailures,
				}); perr != nil {
					return perr
				}
			}
			return err
		})
	},
}

var (
	alertStatus string
	alertPage   int
	alertActor  string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List and manage security alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			page, err := a.Alerts.List(cmd.Context(), models.AlertStatus(alertStatus), alertPage, 0)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		})
	},
}

func alertTransitionCommand(use, short string, resolve bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <alert-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid alert ID: %w", err)
			}
			if alertActor == "" {
				return errors.New("--actor is required")
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				apply := a.Alerts.Acknowledge
				if resolve {
					apply = a.Alerts.Resolve
				}
				alert, err := apply(cmd.Context(), id, alertActor)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), alert)
			})
		},
	}
}

var (
	userEmail       string
	userName        string
	userRole        string
	userPasswordEnv string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage portal operators",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an operator account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv(userPasswordEnv)
		if password == "" {
			return fmt.Errorf("set the password in $%s", userPasswordEnv)
		}
		return withApp(cmd.Context(), func(a *app.App) error {
			user, err := a.Auth.CreateUser(cmd.Context(), userEmail, password, userName, userRole)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with id %s\n", user.Email, user.Role, user.ID)
			return nil
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run one retention cleanup pass",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			deleted := a.Cleanup.RunOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows\n", deleted)
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(
		migrateSubcommand(database.MigrateUp, "Run all pending migrations"),
		migrateSubcommand(database.MigrateDown, "Roll back the last migration"),
		migrateSubcommand(database.MigrateStatus, "Show migration status"),
	)

	threatCmd.AddCommand(threatEvaluateCmd, threatCheckCmd)

	alertsListCmd.Flags().StringVar(&alertStatus, "status", "", "filter by status (new, acknowledged, resolved)")
	alertsListCmd.Flags().IntVar(&alertPage, "page", 1, "page number")
	alertsCmd.PersistentFlags().StringVar(&alertActor, "actor", "", "operator recorded on the transition")
	alertsCmd.AddCommand(
		alertsListCmd,
		alertTransitionCommand("ack", "Acknowledge a new alert", false),
		alertTransitionCommand("resolve", "Resolve a new or acknowledged alert", true),
	)

	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "operator email")
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	usersCreateCmd.Flags().StringVar(&userRole, "role", models.RoleAdmin, "role (admin or staff)")
	usersCreateCmd.Flags().StringVar(&userPasswordEnv, "password-env", "ALUMNIGATE_PASSWORD", "environment variable holding the password")
	_ = usersCreateCmd.MarkFlagRequired("email")
	_ = usersCreateCmd.MarkFlagRequired("name")
	usersCmd.AddCommand(usersCreateCmd)
}
