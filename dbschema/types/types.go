package types

import (
	"context"
	"strings"
)

// DBTable represents a database table
type DBTable struct {
	Name string `json:"name"`
	Type string `json:"type"` // BASE TABLE, VIEW, etc.
}

// DBTrigger represents a trigger installed in the database
type DBTrigger struct {
	Name   string   `json:"name"`
	Table  string   `json:"table"`
	Timing string   `json:"timing"` // BEFORE, AFTER
	Events []string `json:"events"` // INSERT, UPDATE
}

// DBSchema is the part of a database schema the option families depend on
type DBSchema struct {
	Tables   []DBTable   `json:"tables"`
	Triggers []DBTrigger `json:"triggers"`
}

// HasTable reports whether a table with the given name exists, ignoring case.
func (s *DBSchema) HasTable(name string) bool {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// Trigger returns the trigger with the given name, ignoring case.
func (s *DBSchema) Trigger(name string) (DBTrigger, bool) {
	for _, t := range s.Triggers {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return DBTrigger{}, false
}

// TriggersOn returns the triggers defined on a table.
func (s *DBSchema) TriggersOn(table string) []DBTrigger {
	var out []DBTrigger
	for _, t := range s.Triggers {
		if strings.EqualFold(t.Table, table) {
			out = append(out, t)
		}
	}
	return out
}

// DBInfo contains connection and metadata information
type DBInfo struct {
	Dialect string `json:"dialect"` // postgres, mysql, sqlite
	Version string `json:"version"`
	Schema  string `json:"schema"` // public, database name, main
	URL     string `json:"url"`    // database connection URL (for reference)
}

// SchemaReader interface for reading database schemas
type SchemaReader interface {
	ReadSchema(ctx context.Context) (*DBSchema, error)
}
