package migrator

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/stokaro/tenantopts/core/renderer"
)

//go:embed base/schema.sql
var migrationsSchemaSQL string

//go:embed base/get_version.sql
var getVersionSQL string

//go:embed base/record_migration.sql
var recordMigrationSQL string

//go:embed base/delete_migration.sql
var deleteMigrationSQL string

// Execer runs a statement. *sql.DB and *sql.Tx implement it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// MigrationFunc applies one direction of a migration inside the migration's transaction
type MigrationFunc func(context.Context, Execer) error

// SplitSQLStatements splits migration text into statements at
// "--> statement-breakpoint" lines. Text without breakpoints is one statement,
// so trigger bodies keep their semicolons. Comment lines are dropped.
func SplitSQLStatements(sql string) []string {
	statements := []string{}
	var current []string

	flush := func() {
		stmt := strings.TrimSpace(strings.Join(current, "\n"))
		current = current[:0]
		if stmt != "" {
			statements = append(statements, stmt)
		}
	}

	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == renderer.StatementBreakpoint:
			flush()
		case strings.HasPrefix(trimmed, "--"):
		default:
			current = append(current, line)
		}
	}
	flush()
	return statements
}

// MigrationFuncFromSQLFilename returns a migration function that reads SQL from a file
// in the provided filesystem and executes it
func MigrationFuncFromSQLFilename(filename string, fsys fs.FS) MigrationFunc {
	return func(ctx context.Context, exec Execer) error {
		sql, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}
		return executeSQLStatements(ctx, exec, string(sql))
	}
}

// NoopMigrationFunc is a no-op migration function
func NoopMigrationFunc(_ context.Context, _ Execer) error {
	return nil
}

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// CreateMigrationFromSQL creates a migration from SQL strings
func CreateMigrationFromSQL(version int, description, upSQL, downSQL string) *Migration {
	return &Migration{
		Version:     version,
		Description: description,
		Up: func(ctx context.Context, exec Execer) error {
			return executeSQLStatements(ctx, exec, upSQL)
		},
		Down: func(ctx context.Context, exec Execer) error {
			return executeSQLStatements(ctx, exec, downSQL)
		},
	}
}

// executeSQLStatements executes the statements of sql one at a time
func executeSQLStatements(ctx context.Context, exec Execer, sql string) error {
	for _, stmt := range SplitSQLStatements(sql) {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
