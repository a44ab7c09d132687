/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/cosray/backend/config"
	"github.com/cosray/backend/internal/db"
	"github.com/cosray/backend/internal/devuser"
	"github.com/cosray/backend/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var openDatabase = db.Open

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := loadConfig()

		version, err := db.MigrateUp(db.DSN(cfg.Database))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		log.Info().Uint("version", version).Msg("migrations applied")

		if err := postMigrate(cmd.Context(), cfg, log); err != nil {
			fmt.Fprintf(os.Stderr, "post-migrate failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, log := loadConfig()

		version, err := db.MigrateDown(db.DSN(cfg.Database))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		log.Info().Uint("version", version).Msg("migration rolled back")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

// postMigrate provisions the local test account. It only runs in the local
// environment.
func postMigrate(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	if !cfg.IsLocal() {
		log.Debug().Str("env", string(cfg.Env)).Msg("skipping local test user provisioning")
		return nil
	}

	conn, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return &devuser.PersistenceError{Op: "connect", Err: err}
	}
	defer conn.Close()

	provisioner := devuser.NewProvisioner(
		devuser.ConfigFrom(cfg.TestUser),
		store.NewUserRepository(conn),
		devuser.WithLogger(log.With().Str("component", "devuser").Logger()),
	)
	outcome, err := provisioner.Provision(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("outcome", outcome.String()).Msg("local test user provisioning finished")
	return nil
}
