//go:build integration

package integration_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/dbschema"
	"github.com/stokaro/tenantopts/defaults"
	"github.com/stokaro/tenantopts/migration/generator"
	"github.com/stokaro/tenantopts/migration/migrator"
	"github.com/stokaro/tenantopts/store"
	"github.com/stokaro/tenantopts/tenancy"
)

// databases maps a test name to the environment variable holding its URL.
var databases = map[string]string{
	"postgres": "POSTGRES_TEST_DSN",
	"mysql":    "MYSQL_TEST_DSN",
	"mariadb":  "MARIADB_TEST_DSN",
}

func connect(t *testing.T, env string) *dbschema.DatabaseConnection {
	t.Helper()

	dsn := os.Getenv(env)
	if dsn == "" {
		t.Skipf("Skipping: %s environment variable not set", env)
	}
	conn, err := dbschema.ConnectToDatabase(dsn)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exec(t *testing.T, conn *dbschema.DatabaseConnection, query string) {
	t.Helper()

	if _, err := conn.DB().Exec(query); err != nil {
		t.Fatalf("Failed to execute %q: %v", query, err)
	}
}

// TestTenantCheckTrigger generates the table and trigger migrations of a family,
// applies them to a live database and checks that the trigger rejects a
// selection of another tenant's custom option.
func TestTenantCheckTrigger(t *testing.T) {
	for name, env := range databases {
		t.Run(name, func(t *testing.T) {
			c := qt.New(t)
			ctx := context.Background()
			conn := connect(t, env)

			f := family.New("it_priority", family.WithDefaults(family.Mandatory("High"), family.Optional("Low")))
			settings := config.DefaultSettings()

			exec(t, conn, "DROP TABLE IF EXISTS it_priority_selections")
			exec(t, conn, "DROP TABLE IF EXISTS it_priority_options")
			exec(t, conn, "DROP TABLE IF EXISTS tenants")
			exec(t, conn, "DROP TABLE IF EXISTS schema_migrations")
			exec(t, conn, "CREATE TABLE tenants (id BIGINT PRIMARY KEY, name VARCHAR(255) NOT NULL)")
			for _, id := range []int64{1, 2} {
				exec(t, conn, fmt.Sprintf("INSERT INTO tenants (id, name) VALUES (%d, 'tenant %d')", id, id))
			}
			t.Cleanup(func() {
				conn.DB().Exec("DROP TABLE IF EXISTS it_priority_selections")
				conn.DB().Exec("DROP TABLE IF EXISTS it_priority_options")
				conn.DB().Exec("DROP TABLE IF EXISTS tenants")
				conn.DB().Exec("DROP TABLE IF EXISTS schema_migrations")
			})

			dir := t.TempDir()
			opts := generator.Options{
				Families:        []*family.Family{f},
				Settings:        settings,
				FallbackDialect: conn.Dialect(),
				OutputDir:       dir,
			}
			_, err := generator.GenerateSchema(opts)
			c.Assert(err, qt.IsNil)
			_, err = generator.GenerateTriggers(opts)
			c.Assert(err, qt.IsNil)

			m, err := migrator.NewFSMigrator(conn, os.DirFS(dir))
			c.Assert(err, qt.IsNil)
			c.Assert(m.MigrateUp(ctx), qt.IsNil)

			triggers, err := conn.ListTriggers(ctx, f.SelectionTable)
			c.Assert(err, qt.IsNil)
			c.Assert(triggers, qt.Not(qt.HasLen), 0)

			s, err := store.New(conn.DB(), conn.Dialect())
			c.Assert(err, qt.IsNil)
			s = s.WithSettings(settings)

			_, err = defaults.New(s).Sync(ctx, f)
			c.Assert(err, qt.IsNil)

			custom, err := tenancy.New(s).CreateCustomOption(ctx, f, 1, "Mine")
			c.Assert(err, qt.IsNil)

			repo, err := s.For(f)
			c.Assert(err, qt.IsNil)
			c.Assert(repo.CreateSelection(ctx, &entity.Selection{TenantID: 1, OptionID: custom.ID}), qt.IsNil)

			err = repo.CreateSelection(ctx, &entity.Selection{TenantID: 2, OptionID: custom.ID})
			c.Assert(errors.Is(err, entity.ErrNotFound), qt.IsTrue)

			// Writes that bypass the store still hit the trigger.
			_, err = conn.DB().ExecContext(ctx, fmt.Sprintf("INSERT INTO it_priority_selections (tenant_id, option_id) VALUES (2, %d)", custom.ID))
			c.Assert(err, qt.ErrorMatches, "(?s).*"+settings.TriggerMessage+".*")

			c.Assert(m.MigrateDownTo(ctx, 0), qt.IsNil)
			version, err := m.GetCurrentVersion(ctx)
			c.Assert(err, qt.IsNil)
			c.Assert(version, qt.Equals, 0)
		})
	}
}
