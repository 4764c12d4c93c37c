package generator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/dbschema"
	"github.com/stokaro/tenantopts/migration/generator"
	"github.com/stokaro/tenantopts/migration/migrator"
	"github.com/stokaro/tenantopts/store/storetest"
)

func priority() *family.Family {
	return family.New("priority", family.WithGroup("tasks"), family.WithDefaults(family.Mandatory("High")))
}

func listDir(c *qt.C, dir string) []string {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	c.Assert(err, qt.IsNil)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestGenerateTriggers_WritesOnceUnlessForced(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	opts := generator.Options{Families: []*family.Family{priority()}, Dialect: "sqlite", OutputDir: dir}

	artifacts, err := generator.GenerateTriggers(opts)
	c.Assert(err, qt.IsNil)
	c.Assert(artifacts, qt.HasLen, 1)
	a := artifacts[0]
	c.Assert(a.Family, qt.Equals, "priority")
	c.Assert(a.Dialect, qt.Equals, "sqlite")
	c.Assert(a.Name, qt.Equals, "add_priority_selections_tenant_check")
	c.Assert(a.Skipped, qt.Equals, "")
	c.Assert(a.Files, qt.IsNotNil)
	c.Assert(filepath.Base(a.Files.UpFile), qt.Matches, `\d{10}_add_priority_selections_tenant_check\.up\.sql`)

	up, err := os.ReadFile(a.Files.UpFile)
	c.Assert(err, qt.IsNil)
	c.Assert(string(up), qt.Contains, "-- Direction: UP")
	c.Assert(string(up), qt.Contains, "--> statement-breakpoint")
	c.Assert(string(up), qt.Contains, "CREATE TRIGGER")
	down, err := os.ReadFile(a.Files.DownFile)
	c.Assert(err, qt.IsNil)
	c.Assert(string(down), qt.Contains, "DROP TRIGGER IF EXISTS")

	artifacts, err = generator.GenerateTriggers(opts)
	c.Assert(err, qt.IsNil)
	c.Assert(artifacts[0].Files, qt.IsNil)
	c.Assert(artifacts[0].Skipped, qt.Matches, `trigger priority_selections_tenant_check_\w+ already exists in .*`)
	c.Assert(listDir(c, dir), qt.HasLen, 2)

	opts.Force = true
	artifacts, err = generator.GenerateTriggers(opts)
	c.Assert(err, qt.IsNil)
	c.Assert(artifacts[0].Files, qt.IsNotNil)
	c.Assert(artifacts[0].Files.Version > a.Files.Version, qt.IsTrue)
	c.Assert(listDir(c, dir), qt.HasLen, 4)
}

func TestGenerateTriggers_DryRunAndConfirm(t *testing.T) {
	c := qt.New(t)
	dir := filepath.Join(t.TempDir(), "migrations")

	artifacts, err := generator.GenerateTriggers(generator.Options{
		Families:  []*family.Family{priority()},
		Dialect:   "postgresql",
		OutputDir: dir,
		DryRun:    true,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(artifacts[0].Files, qt.IsNil)
	c.Assert(artifacts[0].Dialect, qt.Equals, "postgres")
	c.Assert(artifacts[0].UpSQL, qt.Contains, "CREATE OR REPLACE FUNCTION")
	c.Assert(artifacts[0].DownSQL, qt.Contains, "DROP FUNCTION IF EXISTS")
	c.Assert(listDir(c, dir), qt.HasLen, 0)

	var asked []string
	artifacts, err = generator.GenerateTriggers(generator.Options{
		Families:  []*family.Family{priority()},
		Dialect:   "sqlite",
		OutputDir: dir,
		Confirm: func(f *family.Family, action string) bool {
			asked = append(asked, action+" "+f.String())
			return false
		},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(asked, qt.DeepEquals, []string{"add tasks.priority"})
	c.Assert(artifacts[0].Skipped, qt.Equals, "declined")
	c.Assert(listDir(c, dir), qt.HasLen, 0)
}

func TestGenerateTriggers_Dialect(t *testing.T) {
	c := qt.New(t)

	oracle := "oracle"
	overridden := family.New("colour", family.WithOverrides(config.Overrides{DBVendorOverride: &oracle}))
	artifacts, err := generator.GenerateTriggers(generator.Options{Families: []*family.Family{overridden}, DryRun: true})
	c.Assert(err, qt.IsNil)
	c.Assert(artifacts[0].Dialect, qt.Equals, "oracle")

	global := config.DefaultSettings().WithDBVendorOverride("mysql")
	artifacts, err = generator.GenerateTriggers(generator.Options{Families: []*family.Family{priority()}, Settings: global, DryRun: true})
	c.Assert(err, qt.IsNil)
	c.Assert(artifacts[0].Dialect, qt.Equals, "mysql")

	_, err = generator.GenerateTriggers(generator.Options{Families: []*family.Family{priority()}, DryRun: true})
	c.Assert(err, qt.ErrorMatches, "family priority: no target dialect.*")

	_, err = generator.GenerateTriggers(generator.Options{Families: []*family.Family{priority()}, Dialect: "mssql", DryRun: true})
	c.Assert(err, qt.ErrorMatches, `family priority: unsupported dialect "mssql".*`)

	_, err = generator.GenerateTriggers(generator.Options{Dialect: "sqlite", DryRun: true})
	c.Assert(err, qt.ErrorMatches, "no families selected")

	_, err = generator.GenerateTriggers(generator.Options{Families: []*family.Family{priority()}, Dialect: "sqlite"})
	c.Assert(err, qt.ErrorMatches, "output directory is required")

	_, err = generator.RemoveTriggers(context.Background(), generator.RemoveOptions{
		Options: generator.Options{Families: []*family.Family{priority()}, Dialect: "sqlite", DryRun: true},
		Verify:  true,
	})
	c.Assert(err, qt.ErrorMatches, "verifying triggers requires a database connection")
}

func TestGeneratedMigrations_ApplyAndRemove(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	dir := t.TempDir()

	db := storetest.OpenDB(c.TB)
	conn, err := dbschema.NewDatabaseConnection(ctx, db, "sqlite")
	c.Assert(err, qt.IsNil)

	f := priority()
	opts := generator.Options{Families: []*family.Family{f}, Dialect: "sqlite", OutputDir: dir}

	schema, err := generator.GenerateSchema(opts)
	c.Assert(err, qt.IsNil)
	c.Assert(schema[0].Name, qt.Equals, "create_priority_option_tables")
	triggers, err := generator.GenerateTriggers(opts)
	c.Assert(err, qt.IsNil)
	c.Assert(triggers[0].Files.Version > schema[0].Files.Version, qt.IsTrue)

	again, err := generator.GenerateSchema(opts)
	c.Assert(err, qt.IsNil)
	c.Assert(again[0].Skipped, qt.Matches, "tables of family priority already exist in .*")

	migrate := func() *migrator.Migrator {
		m, err := migrator.NewFSMigrator(conn, os.DirFS(dir))
		c.Assert(err, qt.IsNil)
		return m
	}
	installed := func() int {
		list, err := conn.ListTriggers(ctx, f.SelectionTable)
		c.Assert(err, qt.IsNil)
		return len(list)
	}

	c.Assert(migrate().MigrateUp(ctx), qt.IsNil)
	c.Assert(installed(), qt.Equals, 2)

	removed, err := generator.RemoveTriggers(ctx, generator.RemoveOptions{Options: opts, Verify: true, Conn: conn})
	c.Assert(err, qt.IsNil)
	c.Assert(removed[0].Name, qt.Equals, "remove_priority_selections_tenant_check")
	c.Assert(removed[0].Files, qt.IsNotNil)
	c.Assert(removed[0].UpSQL, qt.Not(qt.Contains), "CREATE TRIGGER")

	m := migrate()
	c.Assert(m.MigrateUp(ctx), qt.IsNil)
	c.Assert(installed(), qt.Equals, 0)

	removed, err = generator.RemoveTriggers(ctx, generator.RemoveOptions{Options: opts})
	c.Assert(err, qt.IsNil)
	c.Assert(removed[0].Skipped, qt.Matches, "no migration creates trigger .*")

	// A trigger removed by a migration can be generated again.
	regenerated, err := generator.GenerateTriggers(generator.Options{Families: opts.Families, Dialect: "sqlite", OutputDir: dir, DryRun: true})
	c.Assert(err, qt.IsNil)
	c.Assert(regenerated[0].Skipped, qt.Equals, "")

	c.Assert(m.MigrateDown(ctx), qt.IsNil)
	c.Assert(installed(), qt.Equals, 2)

	// Verify skips triggers missing from the database.
	for range 2 {
		storetest.Exec(c.TB, db, `DROP TRIGGER "`+triggerName(c, conn, f.SelectionTable)+`"`)
	}
	forced := opts
	forced.Force = true
	removed, err = generator.RemoveTriggers(ctx, generator.RemoveOptions{Options: forced, Verify: true, Conn: conn})
	c.Assert(err, qt.IsNil)
	c.Assert(removed[0].Skipped, qt.Matches, "trigger .* is not installed on priority_selections")
}

func triggerName(c *qt.C, conn *dbschema.DatabaseConnection, table string) string {
	list, err := conn.ListTriggers(context.Background(), table)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.Not(qt.HasLen), 0)
	return list[0].Name
}

func TestGenerateEmptyMigration(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	files, err := generator.GenerateEmptyMigration("Backfill priorities", dir)
	c.Assert(err, qt.IsNil)
	c.Assert(filepath.Base(files.UpFile), qt.Matches, `\d{10}_backfill_priorities\.up\.sql`)

	up, err := os.ReadFile(files.UpFile)
	c.Assert(err, qt.IsNil)
	c.Assert(migrator.SplitSQLStatements(string(up)), qt.HasLen, 0)

	// An empty migration still loads and applies.
	provider, err := migrator.NewFSMigrationProvider(os.DirFS(dir))
	c.Assert(err, qt.IsNil)
	c.Assert(provider.Migrations(), qt.HasLen, 1)
	c.Assert(provider.Migrations()[0].Description, qt.Equals, "Backfill Priorities")

	_, err = generator.GenerateEmptyMigration(" ", dir)
	c.Assert(err, qt.ErrorMatches, "migration name is required")
}
