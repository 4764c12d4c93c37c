// Package migrate provides the migrate command: it applies and reverts the
// generated migrations and writes the family table migrations.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/tenantopts/cmd/internal/app"
	"github.com/stokaro/tenantopts/dbschema"
	"github.com/stokaro/tenantopts/migration/generator"
	"github.com/stokaro/tenantopts/migration/migrator"
)

const (
	migrationDirFlag = "migration-dir"
	targetFlag       = "target"
	jsonFlag         = "json"
	familyFlag       = "family"
	groupFlag        = "group"
	dialectFlag      = "dialect"
	forceFlag        = "force"
)

func dirFlag() cobraflags.Flag {
	return &cobraflags.StringFlag{
		Name:  migrationDirFlag,
		Value: "./migrations",
		Usage: "Directory holding the migration files",
	}
}

var upFlags = map[string]cobraflags.Flag{
	migrationDirFlag: dirFlag(),
}

var downFlags = map[string]cobraflags.Flag{
	migrationDirFlag: dirFlag(),
	targetFlag: &cobraflags.IntFlag{
		Name:  targetFlag,
		Value: -1,
		Usage: "Version to migrate down to (default: revert the latest migration only)",
	},
}

var statusFlags = map[string]cobraflags.Flag{
	migrationDirFlag: dirFlag(),
	jsonFlag: &cobraflags.BoolFlag{
		Name:  jsonFlag,
		Value: false,
		Usage: "Print the status as JSON",
	},
}

var schemaFlags = map[string]cobraflags.Flag{
	migrationDirFlag: dirFlag(),
	familyFlag: &cobraflags.StringFlag{
		Name:  familyFlag,
		Value: "",
		Usage: "Only write the tables of this family",
	},
	groupFlag: &cobraflags.StringFlag{
		Name:  groupFlag,
		Value: "",
		Usage: "Only write the tables of this group",
	},
	dialectFlag: &cobraflags.StringFlag{
		Name:  dialectFlag,
		Value: "",
		Usage: "Target dialect; defaults to the family override or the database",
	},
	forceFlag: &cobraflags.BoolFlag{
		Name:  forceFlag,
		Value: false,
		Usage: "Write the migration even if the tables already have one",
	},
}

// NewMigrateCommand creates the migrate command and its subcommands.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status|schema]",
		Short: "Apply, revert and inspect the option family migrations",
	}
	cmd.AddCommand(newUpCommand(), newDownCommand(), newStatusCommand(), newSchemaCommand())
	return cmd
}

func newUpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(upFlags, func(ctx context.Context, m *migrator.Migrator) error {
				if err := m.MigrateUp(ctx); err != nil {
					return err
				}
				return printVersion(ctx, cmd, m)
			})
		},
	}
	cobraflags.RegisterMap(cmd, upFlags)
	return cmd
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the latest migration, or every migration above --target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(downFlags, func(ctx context.Context, m *migrator.Migrator) error {
				var err error
				if target := downFlags[targetFlag].GetInt(); target >= 0 {
					err = m.MigrateDownTo(ctx, target)
				} else {
					err = m.MigrateDown(ctx)
				}
				if err != nil {
					return err
				}
				return printVersion(ctx, cmd, m)
			})
		},
	}
	cobraflags.RegisterMap(cmd, downFlags)
	return cmd
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current version and the pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(statusFlags, func(ctx context.Context, m *migrator.Migrator) error {
				status, err := m.GetMigrationStatus(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if statusFlags[jsonFlag].GetBool() {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(status)
				}
				fmt.Fprintf(out, "Current version: %d\n", status.CurrentVersion)
				fmt.Fprintf(out, "Total migrations: %d\n", status.TotalMigrations)
				fmt.Fprintf(out, "Pending migrations: %d\n", len(status.PendingMigrations))
				for _, v := range status.PendingMigrations {
					fmt.Fprintf(out, "  - %d\n", v)
				}
				return nil
			})
		},
	}
	cobraflags.RegisterMap(cmd, statusFlags)
	return cmd
}

func newSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Write migrations creating the option and selection tables",
		Long: `Write one migration per family creating its option and selection tables.
The tenant table is expected to exist already.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := app.Load()
			if err != nil {
				return err
			}
			families, err := env.Families(schemaFlags[familyFlag].GetString(), schemaFlags[groupFlag].GetString())
			if err != nil {
				return err
			}
			artifacts, err := generator.GenerateSchema(generator.Options{
				Families:        families,
				Settings:        env.Settings,
				Dialect:         schemaFlags[dialectFlag].GetString(),
				FallbackDialect: env.Dialect(),
				OutputDir:       schemaFlags[migrationDirFlag].GetString(),
				Force:           schemaFlags[forceFlag].GetBool(),
				Logger:          env.Logger,
			})
			out := cmd.OutOrStdout()
			for _, a := range artifacts {
				if a.Skipped != "" {
					fmt.Fprintf(out, "%s: skipped, %s\n", a.Family, a.Skipped)
					continue
				}
				fmt.Fprintf(out, "%s: %s\n  UP:   %s\n  DOWN: %s\n", a.Family, a.Name, a.Files.UpFile, a.Files.DownFile)
			}
			return err
		},
	}
	cobraflags.RegisterMap(cmd, schemaFlags)
	return cmd
}

func withMigrator(flags map[string]cobraflags.Flag, fn func(context.Context, *migrator.Migrator) error) error {
	env, err := app.Load()
	if err != nil {
		return err
	}
	conn, err := env.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	m, err := newMigrator(conn, flags[migrationDirFlag].GetString())
	if err != nil {
		return err
	}
	return fn(context.Background(), m.WithLogger(env.Logger))
}

func newMigrator(conn *dbschema.DatabaseConnection, dir string) (*migrator.Migrator, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migration directory %s: %w", dir, err)
	}
	return migrator.NewFSMigrator(conn, os.DirFS(dir))
}

func printVersion(ctx context.Context, cmd *cobra.Command, m *migrator.Migrator) error {
	v, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Database is at version %d\n", v)
	return nil
}
