// Package storetest opens in-memory SQLite databases holding family tables,
// for tests of the store and the engines built on it.
package storetest

import (
	"database/sql"
	"fmt"
	"testing"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/core/platform"
	"github.com/stokaro/tenantopts/core/renderer"
	"github.com/stokaro/tenantopts/core/renderer/dialects/sqlite"
	"github.com/stokaro/tenantopts/store"
)

// Tenants are the tenant ids every database starts with.
var Tenants = []int64{1, 2, 3}

// OpenDB opens an in-memory database with foreign keys enabled and a tenants
// table holding Tenants. The database is closed when the test ends.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	Exec(t, db, "PRAGMA foreign_keys = ON")
	CreateTenantTable(t, db, "tenants")
	return db
}

// CreateTenantTable creates a tenant table with the ids in Tenants.
func CreateTenantTable(t testing.TB, db *sql.DB, table string) {
	t.Helper()

	Exec(t, db, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`, table))
	for _, id := range Tenants {
		Exec(t, db, fmt.Sprintf(`INSERT OR IGNORE INTO "%s" (id, name) VALUES (?, ?)`, table), id, fmt.Sprintf("tenant %d", id))
	}
}

// CreateFamilyTables creates the tables and the tenant check trigger of f.
func CreateFamilyTables(t testing.TB, db *sql.DB, settings *config.Settings, f *family.Family) {
	t.Helper()

	r := sqlite.New()
	tables, err := renderer.NewTableContext(f, settings)
	if err != nil {
		t.Fatalf("Failed to build table context: %v", err)
	}
	trigger, err := renderer.NewTriggerContext(f, settings, r)
	if err != nil {
		t.Fatalf("Failed to build trigger context: %v", err)
	}

	CreateTenantTable(t, db, tables.TenantTable)
	for _, stmt := range append(r.CreateTables(tables), r.CreateTrigger(trigger)...) {
		Exec(t, db, stmt)
	}
}

// New opens a database, creates the tables of families and returns a store on it.
func New(t testing.TB, families ...*family.Family) (*store.Store, *sql.DB) {
	t.Helper()

	db := OpenDB(t)
	settings := config.DefaultSettings()
	for _, f := range families {
		CreateFamilyTables(t, db, settings, f)
	}

	s, err := store.New(db, platform.SQLite)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s, db
}

// Exec runs a statement and fails the test on error.
func Exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()

	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("Failed to execute %q: %v", query, err)
	}
}

// Count runs a COUNT query and returns the result.
func Count(t testing.TB, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("Failed to count with %q: %v", query, err)
	}
	return n
}
