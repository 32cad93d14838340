package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dccollins/pet-chip-reader/internal/cli"
	"github.com/dccollins/pet-chip-reader/internal/config"
	"github.com/dccollins/pet-chip-reader/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

The run command migrates automatically on startup; this exists for
provisioning and for checking schema state with --status.`,
		RunE: runMigrateCmd,
	}

	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrateCmd(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if status {
		version, err := db.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		if version == storage.ExpectedSchemaVersion {
			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Schema is current (version %d)", version)))
		} else {
			fmt.Println(cli.FormatWarning(fmt.Sprintf("Schema at version %d, expected %d",
				version, storage.ExpectedSchemaVersion)))
		}
		return nil
	}

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	fmt.Println(cli.FormatSuccess("Database schema is up to date"))
	return nil
}
