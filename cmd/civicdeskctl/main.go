package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"civicdesk/internal/app"
	"civicdesk/internal/platform/config"
	"civicdesk/internal/platform/logger"
	"civicdesk/internal/platform/migrations"
	"civicdesk/internal/platform/postgres"
	id "civicdesk/pkg/domain"
	"civicdesk/pkg/requestcontext"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, errs := config.Load(configPath)
	if len(errs) > 0 {
		return nil, nil, fmt.Errorf("invalid configuration: %v", errs)
	}
	return cfg, logger.NewWithWriter(os.Stderr, cfg.Log, cfg.Server.Env), nil
}

// newApp builds the full object graph. The caller must defer a.Close().
func newApp(ctx context.Context) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// systemContext names the CLI as the actor in the activity log. It carries
// no user id, so services that require an authenticated actor still refuse.
func systemContext(ctx context.Context) context.Context {
	return requestcontext.WithActor(ctx, requestcontext.ActorInfo{Name: "civicdeskctl", Role: id.RoleAdmin})
}

var rootCmd = &cobra.Command{
	Use:          "civicdeskctl",
	Short:        "Administrative tasks for the civicdesk intake service",
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Postgres.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		db, err := postgres.Open(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.Up(db); err != nil {
			return err
		}
		version, dirty, err := migrations.Version(db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
		return nil
	},
}

var sweepDryRun bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge records past their retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Sweeper.Run(systemContext(cmd.Context()), sweepDryRun)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

var (
	adminUsername string
	adminPassword string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account unless the username is taken",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminPassword == "" {
			adminPassword = os.Getenv("CIVICDESK_ADMIN_PASSWORD")
		}
		if adminUsername == "" || adminPassword == "" {
			return fmt.Errorf("--username and a password (--password or CIVICDESK_ADMIN_PASSWORD) are required")
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		user, created, err := a.Auth.EnsureAdmin(systemContext(cmd.Context()), adminUsername, adminPassword)
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(cmd.OutOrStdout(), "user %s already exists (role %s)\n", user.Username, user.Role)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CIVICDESK_CONFIG"), "path to a YAML config file")

	migrateCmd.AddCommand(migrateUpCmd)

	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "count what would be deleted without deleting")

	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "admin username")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "admin password")

	rootCmd.AddCommand(migrateCmd, sweepCmd, createAdminCmd)
}
