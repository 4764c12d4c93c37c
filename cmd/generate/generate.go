package generate

import (
	"fmt"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/tenantopts/cmd/internal/app"
	"github.com/stokaro/tenantopts/core/platform"
	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects"
	"github.com/stokaro/tenantopts/migration/generator"
)

var generateCmd = &cobra.Command{
	Use:   "generate [schema|migration]",
	Short: "Print the SQL of the option families or create empty migration files",
	Long: `Print the tables and triggers of the option families, or create empty
migration files for manual editing.

Default behavior (no subcommand): print the family SQL

Available subcommands:
  schema     - Print the tables and tenant check triggers of every family
  migration  - Generate empty migration files for manual editing

Examples:
  tenantopts generate                                  # Print the SQL for every dialect
  tenantopts generate schema --dialect postgres        # Print the SQL for one dialect
  tenantopts generate migration --name seed_priorities # Generate empty migration files`,
	RunE: schemaCommand,
}

// Schema flags
const (
	familyFlag  = "family"
	groupFlag   = "group"
	dialectFlag = "dialect"
)

var schemaFlags = map[string]cobraflags.Flag{
	familyFlag: &cobraflags.StringFlag{
		Name:  familyFlag,
		Value: "",
		Usage: "Only print this family",
	},
	groupFlag: &cobraflags.StringFlag{
		Name:  groupFlag,
		Value: "",
		Usage: "Only print the families of this group",
	},
	dialectFlag: &cobraflags.StringFlag{
		Name:  dialectFlag,
		Value: "",
		Usage: "Database dialect (postgres, mysql, mariadb, sqlite, oracle). If empty, prints every dialect",
	},
}

// Migration generation flags
const (
	nameFlag      = "name"
	outputDirFlag = "output-dir"
)

var migrationFlags = map[string]cobraflags.Flag{
	nameFlag: &cobraflags.StringFlag{
		Name:  nameFlag,
		Value: "",
		Usage: "Name for the migration (required)",
	},
	outputDirFlag: &cobraflags.StringFlag{
		Name:  outputDirFlag,
		Value: "./migrations",
		Usage: "Directory where migration files will be saved",
	},
}

func NewGenerateCommand() *cobra.Command {
	cobraflags.RegisterMap(generateCmd, schemaFlags)

	generateCmd.AddCommand(newSchemaCommand())
	generateCmd.AddCommand(newMigrationCommand())
	return generateCmd
}

func newSchemaCommand() *cobra.Command {
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the tables and tenant check triggers of every family",
		Long: `Print the option table, the selection table and the tenant check trigger
of every family in the manifest for the given dialect, or for every dialect.
Nothing is written; use "migrate schema" and "maketriggers" for migrations.`,
		RunE: schemaCommand,
	}

	cobraflags.RegisterMap(schemaCmd, schemaFlags)
	return schemaCmd
}

func newMigrationCommand() *cobra.Command {
	migrationCmd := &cobra.Command{
		Use:   "migration",
		Short: "Generate empty migration files for manual editing",
		Long: `Generate empty up and down migration files with the next version number.

Use them for data migrations or schema changes the generators do not cover.
Separate statements with a "--> statement-breakpoint" line.`,
		RunE: migrationCommand,
	}

	cobraflags.RegisterMap(migrationCmd, migrationFlags)
	return migrationCmd
}

func schemaCommand(cmd *cobra.Command, _ []string) error {
	env, err := app.Load()
	if err != nil {
		return err
	}
	families, err := env.Families(schemaFlags[familyFlag].GetString(), schemaFlags[groupFlag].GetString())
	if err != nil {
		return err
	}

	names := platform.Dialects
	if d := schemaFlags[dialectFlag].GetString(); d != "" {
		names = []string{d}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Found %d option families\n\n", len(families))

	for _, d := range names {
		r, err := dialects.GetRenderer(d)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "=== %s SCHEMA ===\n\n", strings.ToUpper(r.Dialect()))

		for i, f := range families {
			tables, err := renderer.NewTableContext(f, env.Settings)
			if err != nil {
				return err
			}
			trigger, err := renderer.NewTriggerContext(f, env.Settings, r)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "-- Family %d/%d: %s\n", i+1, len(families), f)
			fmt.Fprint(out, renderer.Join(r.CreateTables(tables)))
			fmt.Fprintf(out, "-- Trigger %s\n", trigger.Name)
			fmt.Fprint(out, renderer.Join(r.CreateTrigger(trigger)))
			fmt.Fprintln(out)
		}
	}

	return nil
}

func migrationCommand(cmd *cobra.Command, _ []string) error {
	migrationName := migrationFlags[nameFlag].GetString()
	outputDir := migrationFlags[outputDirFlag].GetString()

	if migrationName == "" {
		return fmt.Errorf("migration name is required (use --name flag)")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generating empty migration: %s\n", migrationName)
	fmt.Fprintf(out, "Output directory: %s\n\n", outputDir)

	files, err := generator.GenerateEmptyMigration(migrationName, outputDir)
	if err != nil {
		return fmt.Errorf("error generating migration files: %w", err)
	}

	fmt.Fprintf(out, "Generated migration files:\n")
	fmt.Fprintf(out, "  UP:   %s\n", files.UpFile)
	fmt.Fprintf(out, "  DOWN: %s\n", files.DownFile)
	fmt.Fprintf(out, "  Version: %d\n\n", files.Version)
	fmt.Fprintln(out, "✅ Empty migration files created successfully!")
	fmt.Fprintln(out, "You can now edit these files to add your custom SQL.")

	return nil
}
