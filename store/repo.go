package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
)

// Repo reads and writes the rows of one family. Table names are quoted once
// when the repo is created.
type Repo struct {
	s      *Store
	family *family.Family

	optionScoper    entity.OptionScoper
	selectionScoper entity.Scoper[entity.Selection]

	optionTable    string
	selectionTable string
	tenantTable    string
	tenantKey      string
}

// Family returns the family the repo is bound to.
func (r *Repo) Family() *family.Family {
	return r.family
}

// Store returns the store the repo runs on.
func (r *Repo) Store() *Store {
	return r.s
}

// TenantExists reports whether a row with the given key exists in the tenant table.
func (r *Repo) TenantExists(ctx context.Context, tenant int64) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", r.tenantTable, r.tenantKey)
	var one int
	err := r.s.queryRow(ctx, query, tenant).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up tenant %d: %w", tenant, err)
	}
	return true, nil
}

// on returns a copy of r running on s, typically a transaction of r's store.
func (r *Repo) on(s *Store) *Repo {
	tmp := *r
	tmp.s = s
	return &tmp
}

// scopeCondition is the SQL counterpart of the scope's predicate.
func scopeCondition(scope entity.Scope) string {
	switch scope {
	case entity.ScopeActive:
		return "deleted IS NULL"
	case entity.ScopeDeleted:
		return "deleted IS NOT NULL"
	}
	return ""
}

// applyScope filters rows through the family's scoper predicates.
func applyScope[T any](items []T, scope entity.Scope, active, deleted entity.Predicate[T]) []T {
	switch scope {
	case entity.ScopeActive:
		return entity.Filter(items, active)
	case entity.ScopeDeleted:
		return entity.Filter(items, deleted)
	}
	return items
}

// timestamp returns the current time as stored in deleted columns.
func (r *Repo) timestamp() time.Time {
	return r.s.now().UTC().Truncate(time.Microsecond)
}

// DeleteOption configures DeleteOption and DeleteSelections.
type DeleteOption func(*deleteConfig)

type deleteConfig struct {
	hard bool
}

// WithOverride makes the delete remove rows instead of soft-deleting them.
// Business records referencing the option are not checked.
func WithOverride() DeleteOption {
	return func(c *deleteConfig) { c.hard = true }
}
