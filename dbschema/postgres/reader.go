package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stokaro/tenantopts/dbschema/types"
)

// Reader reads schema from PostgreSQL databases
type Reader struct {
	db     *sql.DB
	schema string
}

// NewPostgreSQLReader creates a new PostgreSQL schema reader
func NewPostgreSQLReader(db *sql.DB, schema string) *Reader {
	if schema == "" {
		schema = "public"
	}
	return &Reader{
		db:     db,
		schema: schema,
	}
}

// ReadSchema reads the tables and triggers of the schema
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

func (r *Reader) readTables(ctx context.Context) ([]types.DBTable, error) {
	// Exclude the migrator's bookkeeping table
	tablesQuery := `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_name NOT IN ('schema_migrations')
		ORDER BY table_name`

	rows, err := r.db.QueryContext(ctx, tablesQuery, r.schema)
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

// readTriggers lists user triggers. information_schema.triggers has one row per
// event, so events are aggregated per trigger.
func (r *Reader) readTriggers(ctx context.Context) ([]types.DBTrigger, error) {
	triggersQuery := `
		SELECT
			trigger_name,
			event_object_table,
			action_timing,
			string_agg(event_manipulation, ',' ORDER BY event_manipulation) AS events
		FROM information_schema.triggers
		WHERE trigger_schema = $1
		GROUP BY trigger_name, event_object_table, action_timing
		ORDER BY trigger_name`

	rows, err := r.db.QueryContext(ctx, triggersQuery, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []types.DBTrigger
	for rows.Next() {
		var (
			trigger types.DBTrigger
			events  string
		)
		err := rows.Scan(
			&trigger.Name,
			&trigger.Table,
			&trigger.Timing,
			&events,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		trigger.Events = strings.Split(events, ",")

		triggers = append(triggers, trigger)
	}

	return triggers, rows.Err()
}
