package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/stokaro/tenantopts/dbschema/types"
)

var triggerHeaderRe = regexp.MustCompile(`(?is)\b(BEFORE|AFTER|INSTEAD\s+OF)\s+(INSERT|UPDATE|DELETE)\b`)

// Reader reads schema from SQLite databases
type Reader struct {
	db *sql.DB
}

// NewSQLiteReader creates a new SQLite schema reader
func NewSQLiteReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// ReadSchema reads the tables and triggers from sqlite_master
func (r *Reader) ReadSchema(ctx context.Context) (*types.DBSchema, error) {
	schema := &types.DBSchema{}

	rows, err := r.db.QueryContext(ctx, `
		SELECT type, name, tbl_name, COALESCE(sql, '')
		FROM sqlite_master
		WHERE type IN ('table', 'view', 'trigger')
		AND name NOT LIKE 'sqlite_%'
		AND name NOT IN ('schema_migrations')
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sqlite_master: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, name, table, ddl string
		if err := rows.Scan(&kind, &name, &table, &ddl); err != nil {
			return nil, fmt.Errorf("failed to scan sqlite_master: %w", err)
		}
		switch kind {
		case "trigger":
			trigger := types.DBTrigger{Name: name, Table: table}
			if m := triggerHeaderRe.FindStringSubmatch(ddl); m != nil {
				trigger.Timing = strings.ToUpper(m[1])
				trigger.Events = []string{strings.ToUpper(m[2])}
			}
			schema.Triggers = append(schema.Triggers, trigger)
		case "view":
			schema.Tables = append(schema.Tables, types.DBTable{Name: name, Type: "VIEW"})
		default:
			schema.Tables = append(schema.Tables, types.DBTable{Name: name, Type: "BASE TABLE"})
		}
	}

	return schema, rows.Err()
}
