package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	qt "github.com/frankban/quicktest"
	_ "modernc.org/sqlite"

	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects/sqlite"
)

func setupDB(c *qt.C) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	c.Assert(err, qt.IsNil)
	db.SetMaxOpenConns(1)
	c.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE tenants (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	c.Assert(err, qt.IsNil)
	_, err = db.Exec(`INSERT INTO tenants (id, name) VALUES (1, 'acme'), (2, 'globex')`)
	c.Assert(err, qt.IsNil)
	return db
}

func exec(c *qt.C, db *sql.DB, stmts []string) {
	for _, stmt := range stmts {
		_, err := db.ExecContext(context.Background(), stmt)
		c.Assert(err, qt.IsNil, qt.Commentf("statement:\n%s", stmt))
	}
}

func TestRenderer_TriggerEnforcesTenant(t *testing.T) {
	c := qt.New(t)
	db := setupDB(c)
	r := sqlite.New()

	tables := renderer.TableContext{
		TenantTable:    "tenants",
		TenantKey:      "id",
		OptionTable:    "priority_options",
		SelectionTable: "priority_selections",
		TenantOnDelete: "CASCADE",
		OptionOnDelete: "CASCADE",
	}
	name, err := renderer.TriggerName(tables.SelectionTable, r.TriggerNameLimit())
	c.Assert(err, qt.IsNil)
	trigger := renderer.TriggerContext{
		Name:           name,
		SelectionTable: tables.SelectionTable,
		OptionTable:    tables.OptionTable,
		Message:        "Tenant mismatch between options and selections",
	}

	exec(c, db, r.CreateTables(tables))
	// Creating twice must not fail.
	exec(c, db, r.CreateTables(tables))
	exec(c, db, r.CreateTrigger(trigger))
	exec(c, db, r.CreateTrigger(trigger))

	_, err = db.Exec(`INSERT INTO priority_options (id, name, option_type, tenant_id) VALUES
		(1, 'High', 'dm', NULL),
		(2, 'Blocked', 'cu', 1)`)
	c.Assert(err, qt.IsNil)

	// Default options may be selected by anyone, custom ones by their owner.
	_, err = db.Exec(`INSERT INTO priority_selections (tenant_id, option_id) VALUES (2, 1), (1, 2)`)
	c.Assert(err, qt.IsNil)

	_, err = db.Exec(`INSERT INTO priority_selections (tenant_id, option_id) VALUES (2, 2)`)
	c.Assert(err, qt.ErrorMatches, ".*Tenant mismatch between options and selections.*")

	_, err = db.Exec(`UPDATE priority_selections SET option_id = 2 WHERE tenant_id = 2`)
	c.Assert(err, qt.ErrorMatches, ".*Tenant mismatch between options and selections.*")

	// The row check rejects custom options without a tenant.
	_, err = db.Exec(`INSERT INTO priority_options (name, option_type, tenant_id) VALUES ('Orphan', 'cu', NULL)`)
	c.Assert(err, qt.ErrorMatches, ".*CHECK constraint failed.*")

	// Names are unique per tenant scope, ignoring case.
	_, err = db.Exec(`INSERT INTO priority_options (name, option_type, tenant_id) VALUES ('blocked', 'cu', 1)`)
	c.Assert(err, qt.ErrorMatches, ".*UNIQUE constraint failed.*")
	_, err = db.Exec(`INSERT INTO priority_options (name, option_type, tenant_id) VALUES ('blocked', 'cu', 2)`)
	c.Assert(err, qt.IsNil)

	// Defaults share the NULL tenant and still may not repeat a name.
	_, err = db.Exec(`INSERT INTO priority_options (name, option_type, tenant_id) VALUES ('high', 'do', NULL)`)
	c.Assert(err, qt.ErrorMatches, ".*UNIQUE constraint failed.*")
	_, err = db.Exec(`INSERT INTO priority_options (name, option_type, tenant_id) VALUES ('high', 'cu', 1)`)
	c.Assert(err, qt.IsNil)

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger'`).Scan(&count)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 2)

	exec(c, db, r.DropTrigger(trigger))
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger'`).Scan(&count)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 0)

	exec(c, db, r.DropTables(tables))
	exec(c, db, r.DropTables(tables))
}
