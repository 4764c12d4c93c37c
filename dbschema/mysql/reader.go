package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stokaro/tenantopts/dbschema/types"
)

// Reader reads schema from MySQL and MariaDB databases
type Reader struct {
	db     *sql.DB
	schema string
}

// NewMySQLReader creates a new MySQL schema reader. An empty schema means the
// connection's current database.
func NewMySQLReader(db *sql.DB, schema string) *Reader {
	return &Reader{
		db:     db,
		schema: schema,
	}
}

// ReadSchema reads the tables and triggers of the database
func (r *Reader) ReadSchema(ctx context.Context) (*types.DBSchema, error) {
	schema := &types.DBSchema{}

	tables, err := r.readTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	schema.Tables = tables

	triggers, err := r.readTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read triggers: %w", err)
	}
	schema.Triggers = triggers

	return schema, nil
}

func (r *Reader) schemaArg() any {
	if r.schema == "" {
		return nil
	}
	return r.schema
}

func (r *Reader) readTables(ctx context.Context) ([]types.DBTable, error) {
	tablesQuery := `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = COALESCE(?, DATABASE())
		AND table_name NOT IN ('schema_migrations')
		ORDER BY table_name`

	rows, err := r.db.QueryContext(ctx, tablesQuery, r.schemaArg())
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []types.DBTable
	for rows.Next() {
		var table types.DBTable
		if err := rows.Scan(&table.Name, &table.Type); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, table)
	}

	return tables, rows.Err()
}

// readTriggers lists triggers. MySQL triggers fire on exactly one event.
func (r *Reader) readTriggers(ctx context.Context) ([]types.DBTrigger, error) {
	triggersQuery := `
		SELECT trigger_name, event_object_table, action_timing, event_manipulation
		FROM information_schema.triggers
		WHERE trigger_schema = COALESCE(?, DATABASE())
		ORDER BY trigger_name`

	rows, err := r.db.QueryContext(ctx, triggersQuery, r.schemaArg())
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []types.DBTrigger
	for rows.Next() {
		var (
			trigger types.DBTrigger
			event   string
		)
		if err := rows.Scan(&trigger.Name, &trigger.Table, &trigger.Timing, &event); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		trigger.Events = []string{event}
		triggers = append(triggers, trigger)
	}

	return triggers, rows.Err()
}
