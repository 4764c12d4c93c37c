// Package maketriggers provides the commands writing tenant check trigger
// migrations: maketriggers adds them and removetriggers drops them again.
package maketriggers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/tenantopts/cmd/internal/app"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/migration/generator"
)

const (
	familyFlag           = "family"
	groupFlag            = "group"
	forceFlag            = "force"
	dryRunFlag           = "dry-run"
	verboseFlag          = "verbose"
	interactiveFlag      = "interactive"
	migrationDirFlag     = "migration-dir"
	dbVendorOverrideFlag = "db-vendor-override"
	verifyFlag           = "verify"
)

func triggerFlags(verb string) map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		familyFlag: &cobraflags.StringFlag{
			Name:  familyFlag,
			Value: "",
			Usage: "Only " + verb + " the trigger of this family (name, group.name or selection table)",
		},
		groupFlag: &cobraflags.StringFlag{
			Name:  groupFlag,
			Value: "",
			Usage: "Only " + verb + " the triggers of this group",
		},
		forceFlag: &cobraflags.BoolFlag{
			Name:  forceFlag,
			Value: false,
			Usage: "Write the migration even if the migration directory says it is not needed",
		},
		dryRunFlag: &cobraflags.BoolFlag{
			Name:  dryRunFlag,
			Value: false,
			Usage: "Print the migrations instead of writing them",
		},
		verboseFlag: &cobraflags.BoolFlag{
			Name:  verboseFlag,
			Value: false,
			Usage: "Print the SQL of every migration",
		},
		interactiveFlag: &cobraflags.BoolFlag{
			Name:  interactiveFlag,
			Value: false,
			Usage: "Ask before writing each migration",
		},
		migrationDirFlag: &cobraflags.StringFlag{
			Name:  migrationDirFlag,
			Value: "./migrations",
			Usage: "Directory holding the migration files",
		},
		dbVendorOverrideFlag: &cobraflags.StringFlag{
			Name:  dbVendorOverrideFlag,
			Value: "",
			Usage: "Target dialect (postgres, mysql, mariadb, sqlite, oracle); defaults to the family override or the database",
		},
	}
}

var (
	makeFlags   = triggerFlags("add")
	removeFlags = withVerify(triggerFlags("remove"))
)

func withVerify(flags map[string]cobraflags.Flag) map[string]cobraflags.Flag {
	flags[verifyFlag] = &cobraflags.BoolFlag{
		Name:  verifyFlag,
		Value: false,
		Usage: "Skip families whose trigger is not installed in the database (needs --db-url)",
	}
	return flags
}

// NewMakeTriggersCommand creates the maketriggers command.
func NewMakeTriggersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maketriggers",
		Short: "Write migrations installing the tenant check triggers",
		Long: `Write one migration per family installing the trigger that rejects a
selection of another tenant's custom option.

A family whose trigger is already created by a migration in the migration
directory is skipped unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, opts, err := prepare(cmd, makeFlags)
			if err != nil {
				return err
			}
			artifacts, err := generator.GenerateTriggers(opts)
			report(cmd.OutOrStdout(), artifacts, makeFlags)
			return err
		},
	}
	cobraflags.RegisterMap(cmd, makeFlags)
	return cmd
}

// NewRemoveTriggersCommand creates the removetriggers command.
func NewRemoveTriggersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "removetriggers",
		Short: "Write migrations dropping the tenant check triggers",
		Long: `Write one migration per family dropping the trigger an earlier migration
installed. The down migration installs it again.

With --verify the database is asked whether the trigger is actually present.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, opts, err := prepare(cmd, removeFlags)
			if err != nil {
				return err
			}
			ro := generator.RemoveOptions{Options: opts, Verify: removeFlags[verifyFlag].GetBool()}
			if ro.Verify {
				conn, err := env.Connect()
				if err != nil {
					return err
				}
				defer conn.Close()
				ro.Conn = conn
			}
			artifacts, err := generator.RemoveTriggers(context.Background(), ro)
			report(cmd.OutOrStdout(), artifacts, removeFlags)
			return err
		},
	}
	cobraflags.RegisterMap(cmd, removeFlags)
	return cmd
}

func prepare(cmd *cobra.Command, flags map[string]cobraflags.Flag) (*app.Env, generator.Options, error) {
	env, err := app.Load()
	if err != nil {
		return nil, generator.Options{}, err
	}
	families, err := env.Families(flags[familyFlag].GetString(), flags[groupFlag].GetString())
	if err != nil {
		return nil, generator.Options{}, err
	}
	opts := generator.Options{
		Families:        families,
		Settings:        env.Settings,
		Dialect:         flags[dbVendorOverrideFlag].GetString(),
		FallbackDialect: env.Dialect(),
		OutputDir:       flags[migrationDirFlag].GetString(),
		Force:           flags[forceFlag].GetBool(),
		DryRun:          flags[dryRunFlag].GetBool(),
		Logger:          env.Logger,
	}
	if flags[interactiveFlag].GetBool() {
		opts.Confirm = confirmer(cmd.InOrStdin(), cmd.OutOrStdout())
	}
	return env, opts, nil
}

// confirmer asks "<action> <family>? [y/N]" and accepts y or yes.
func confirmer(in io.Reader, out io.Writer) func(*family.Family, string) bool {
	scanner := bufio.NewScanner(in)
	return func(f *family.Family, action string) bool {
		fmt.Fprintf(out, "%s tenant check trigger migration for %s? [y/N] ", strings.ToUpper(action[:1])+action[1:], f)
		if !scanner.Scan() {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		return answer == "y" || answer == "yes"
	}
}

func report(out io.Writer, artifacts []generator.Artifact, flags map[string]cobraflags.Flag) {
	dryRun, verbose := flags[dryRunFlag].GetBool(), flags[verboseFlag].GetBool()
	for _, a := range artifacts {
		switch {
		case a.Skipped != "":
			fmt.Fprintf(out, "%s: skipped, %s\n", a.Family, a.Skipped)
			continue
		case a.Files != nil:
			fmt.Fprintf(out, "%s: %s\n  UP:   %s\n  DOWN: %s\n", a.Family, a.Name, a.Files.UpFile, a.Files.DownFile)
		default:
			fmt.Fprintf(out, "%s: %s (%s, not written)\n", a.Family, a.Name, a.Dialect)
		}
		if dryRun || verbose {
			fmt.Fprintln(out, a.UpSQL)
		}
	}
}
