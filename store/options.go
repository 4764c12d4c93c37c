package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stokaro/tenantopts/core/entity"
)

const optionColumns = "id, name, option_type, tenant_id, deleted"

// OptionFilter narrows ListOptions. Zero values do not filter.
type OptionFilter struct {
	Scope entity.Scope
	Types []entity.OptionType
	// VisibleTo keeps default options and the custom options of one tenant.
	VisibleTo *int64
	// DefaultsOnly keeps options without a tenant.
	DefaultsOnly bool
	IDs          []int64
}

// ListOptions returns the options matching filter ordered by id. The family's
// option scoper is applied on top of the SQL filter.
func (r *Repo) ListOptions(ctx context.Context, filter OptionFilter) ([]entity.Option, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	if cond := scopeCondition(filter.Scope); cond != "" {
		where = append(where, cond)
	}
	if len(filter.Types) > 0 {
		where = append(where, fmt.Sprintf("option_type IN (%s)", placeholders(len(filter.Types))))
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if filter.VisibleTo != nil {
		where = append(where, "(option_type IN (?, ?) OR (option_type = ? AND tenant_id = ?))")
		args = append(args, string(entity.Mandatory), string(entity.Optional), string(entity.Custom), *filter.VisibleTo)
	}
	if filter.DefaultsOnly {
		where = append(where, "tenant_id IS NULL")
	}
	if len(filter.IDs) > 0 {
		where = append(where, fmt.Sprintf("id IN (%s)", placeholders(len(filter.IDs))))
		args = append(args, int64Args(filter.IDs)...)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", optionColumns, r.optionTable)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s options: %w", r.family.Name, err)
	}
	defer rows.Close()

	var options []entity.Option
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s option: %w", r.family.Name, err)
		}
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s options: %w", r.family.Name, err)
	}

	options = applyScope(options, filter.Scope, r.optionScoper.Active(), r.optionScoper.Deleted())
	if filter.VisibleTo != nil {
		custom, tenant := r.optionScoper.Custom(), *filter.VisibleTo
		options = entity.Filter(options, func(o entity.Option) bool {
			return !custom(o) || entity.TenantMatches(o, tenant)
		})
	}
	return options, nil
}

// GetOption returns one option. ScopeActive treats soft-deleted rows as missing.
func (r *Repo) GetOption(ctx context.Context, id int64, scope entity.Scope) (entity.Option, error) {
	options, err := r.ListOptions(ctx, OptionFilter{Scope: scope, IDs: []int64{id}})
	if err != nil {
		return entity.Option{}, err
	}
	if len(options) == 0 {
		return entity.Option{}, &entity.NotFoundError{Label: r.family.Name + " option", ID: id}
	}
	return options[0], nil
}

// CreateOption inserts o and sets its id. A deleted timestamp on o is kept.
func (r *Repo) CreateOption(ctx context.Context, o *entity.Option) error {
	if err := o.CheckTenant(); err != nil {
		return err
	}
	query := fmt.Sprintf("INSERT INTO %s (name, option_type, tenant_id, deleted) VALUES (?, ?, ?, ?)", r.optionTable)
	id, err := r.s.insert(ctx, query, o.Name, string(o.Type), nullableInt64(o.TenantID), nullTimeOf(o.Deleted))
	if err != nil {
		return fmt.Errorf("failed to create %s option %q: %w", r.family.Name, o.Name, err)
	}
	o.ID = id
	return nil
}

// UpdateOptionType changes the type of an option in place.
func (r *Repo) UpdateOptionType(ctx context.Context, id int64, t entity.OptionType) error {
	query := fmt.Sprintf("UPDATE %s SET option_type = ? WHERE id = ?", r.optionTable)
	res, err := r.s.exec(ctx, query, string(t), id)
	if err != nil {
		return fmt.Errorf("failed to update type of %s option %d: %w", r.family.Name, id, err)
	}
	return r.requireRow(ctx, res, id)
}

// DeleteOption soft-deletes an option. Deleting an already deleted option keeps
// its original timestamp. With WithOverride the option's selections are
// soft-deleted and the option row is removed.
func (r *Repo) DeleteOption(ctx context.Context, id int64, opts ...DeleteOption) error {
	var cfg deleteConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if !cfg.hard {
		return r.updateDeleted(ctx, id, func(o *entity.Option) { o.MarkDeleted(r.timestamp()) })
	}

	return r.s.WithTx(ctx, func(tx *Store) error {
		selections := fmt.Sprintf("UPDATE %s SET deleted = ? WHERE option_id = ? AND deleted IS NULL", r.selectionTable)
		if _, err := tx.exec(ctx, selections, r.timestamp(), id); err != nil {
			return fmt.Errorf("failed to delete selections of %s option %d: %w", r.family.Name, id, err)
		}
		res, err := tx.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.optionTable), id)
		if err != nil {
			return fmt.Errorf("failed to remove %s option %d: %w", r.family.Name, id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &entity.NotFoundError{Label: r.family.Name + " option", ID: id}
		}
		tx.logger.Warn("Hard-deleted option", "family", r.family.Name, "id", id)
		return nil
	})
}

// UndeleteOption clears the deleted timestamp. Active options are left alone.
func (r *Repo) UndeleteOption(ctx context.Context, id int64) error {
	return r.updateDeleted(ctx, id, func(o *entity.Option) { o.Undelete() })
}

// updateDeleted loads the option, applies change to its soft-delete state and
// writes the timestamp back if it changed.
func (r *Repo) updateDeleted(ctx context.Context, id int64, change func(*entity.Option)) error {
	return r.s.WithTx(ctx, func(tx *Store) error {
		o, err := r.on(tx).GetOption(ctx, id, entity.ScopeUnscoped)
		if err != nil {
			return err
		}
		before := o.Deleted
		change(&o)
		if (before == nil) == (o.Deleted == nil) {
			return nil
		}
		query := fmt.Sprintf("UPDATE %s SET deleted = ? WHERE id = ?", r.optionTable)
		if _, err := tx.exec(ctx, query, nullTimeOf(o.Deleted), id); err != nil {
			if o.IsActive() {
				return fmt.Errorf("failed to undelete %s option %d: %w", r.family.Name, id, err)
			}
			return fmt.Errorf("failed to delete %s option %d: %w", r.family.Name, id, err)
		}
		return nil
	})
}

// DuplicateDefaultNames returns the lower-cased names shared by more than one
// active default option.
func (r *Repo) DuplicateDefaultNames(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(
		"SELECT LOWER(name) FROM %s WHERE tenant_id IS NULL AND deleted IS NULL GROUP BY LOWER(name) HAVING COUNT(*) > 1 ORDER BY LOWER(name)",
		r.optionTable)
	rows, err := r.s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate %s defaults: %w", r.family.Name, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicate names: %w", err)
	}
	return names, nil
}

// requireRow turns a no-op update into NotFoundError when the option does not
// exist at all. An update matching zero rows of an existing option is fine.
func (r *Repo) requireRow(ctx context.Context, res sql.Result, id int64) error {
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	if _, err := r.GetOption(ctx, id, entity.ScopeUnscoped); err != nil {
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOption(row rowScanner) (entity.Option, error) {
	var (
		o        entity.Option
		typ      string
		tenantID sql.NullInt64
		deleted  nullTime
	)
	if err := row.Scan(&o.ID, &o.Name, &typ, &tenantID, &deleted); err != nil {
		return entity.Option{}, err
	}
	o.Type = entity.OptionType(typ)
	if tenantID.Valid {
		t := tenantID.Int64
		o.TenantID = &t
	}
	o.Deleted = deleted.Ptr()
	return o, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
