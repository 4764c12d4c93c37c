package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stokaro/tenantopts/core/entity"
)

const selectionColumns = "id, tenant_id, option_id, deleted"

// SelectionFilter narrows ListSelections. Zero values do not filter.
type SelectionFilter struct {
	Scope     entity.Scope
	TenantID  *int64
	OptionIDs []int64
}

// ListSelections returns the selections matching filter ordered by id.
func (r *Repo) ListSelections(ctx context.Context, filter SelectionFilter) ([]entity.Selection, error) {
	if filter.OptionIDs != nil && len(filter.OptionIDs) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	if cond := scopeCondition(filter.Scope); cond != "" {
		where = append(where, cond)
	}
	if filter.TenantID != nil {
		where = append(where, "tenant_id = ?")
		args = append(args, *filter.TenantID)
	}
	if len(filter.OptionIDs) > 0 {
		where = append(where, fmt.Sprintf("option_id IN (%s)", placeholders(len(filter.OptionIDs))))
		args = append(args, int64Args(filter.OptionIDs)...)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", selectionColumns, r.selectionTable)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	selections, err := r.scanSelections(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return applyScope(selections, filter.Scope, r.selectionScoper.Active(), r.selectionScoper.Deleted()), nil
}

// GetSelection returns one selection. ScopeActive treats soft-deleted rows as missing.
func (r *Repo) GetSelection(ctx context.Context, id int64, scope entity.Scope) (entity.Selection, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", selectionColumns, r.selectionTable)
	if cond := scopeCondition(scope); cond != "" {
		query += " AND " + cond
	}
	selections, err := r.scanSelections(ctx, query, id)
	if err != nil {
		return entity.Selection{}, err
	}
	selections = applyScope(selections, scope, r.selectionScoper.Active(), r.selectionScoper.Deleted())
	if len(selections) == 0 {
		return entity.Selection{}, &entity.NotFoundError{Label: r.family.Name + " selection", ID: id}
	}
	return selections[0], nil
}

// CreateSelection inserts sel and sets its id. The option must exist and be
// visible to the selecting tenant; otherwise OptionNotFoundError is returned
// and nothing is written. Soft-deleted options are accepted.
func (r *Repo) CreateSelection(ctx context.Context, sel *entity.Selection) error {
	if sel.TenantID == 0 {
		return &entity.InvalidTenantError{}
	}
	return r.s.WithTx(ctx, func(tx *Store) error {
		txRepo := r.on(tx)
		option, err := txRepo.GetOption(ctx, sel.OptionID, entity.ScopeUnscoped)
		switch {
		case errors.Is(err, entity.ErrNotFound):
			return &entity.OptionNotFoundError{Family: r.family.Name, TenantID: sel.TenantID, OptionID: sel.OptionID}
		case err != nil:
			return err
		case !entity.TenantMatches(option, sel.TenantID):
			return &entity.OptionNotFoundError{Family: r.family.Name, TenantID: sel.TenantID, OptionID: sel.OptionID}
		}

		query := fmt.Sprintf("INSERT INTO %s (tenant_id, option_id, deleted) VALUES (?, ?, ?)", r.selectionTable)
		id, err := tx.insert(ctx, query, sel.TenantID, sel.OptionID, nullTimeOf(sel.Deleted))
		if err != nil {
			return fmt.Errorf("failed to create %s selection of option %d for tenant %d: %w", r.family.Name, sel.OptionID, sel.TenantID, err)
		}
		sel.ID = id
		return nil
	})
}

// DeleteSelections soft-deletes the given selections. Already deleted rows keep
// their timestamp. With WithOverride the rows are removed instead. It returns
// the number of rows changed.
func (r *Repo) DeleteSelections(ctx context.Context, ids []int64, opts ...DeleteOption) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var cfg deleteConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.hard {
		query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", r.selectionTable, placeholders(len(ids)))
		res, err := r.s.exec(ctx, query, int64Args(ids)...)
		if err != nil {
			return 0, fmt.Errorf("failed to remove %s selections: %w", r.family.Name, err)
		}
		r.s.logger.Warn("Hard-deleted selections", "family", r.family.Name, "ids", ids)
		return res.RowsAffected()
	}

	query := fmt.Sprintf("UPDATE %s SET deleted = ? WHERE deleted IS NULL AND id IN (%s)", r.selectionTable, placeholders(len(ids)))
	args := append([]any{r.timestamp()}, int64Args(ids)...)
	res, err := r.s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s selections: %w", r.family.Name, err)
	}
	return res.RowsAffected()
}

// UndeleteSelections restores the given soft-deleted selections and returns
// the number of rows changed.
func (r *Repo) UndeleteSelections(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf("UPDATE %s SET deleted = NULL WHERE deleted IS NOT NULL AND id IN (%s)", r.selectionTable, placeholders(len(ids)))
	res, err := r.s.exec(ctx, query, int64Args(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to undelete %s selections: %w", r.family.Name, err)
	}
	return res.RowsAffected()
}

// OrphanedSelections returns the active selections whose option is soft-deleted.
func (r *Repo) OrphanedSelections(ctx context.Context) ([]entity.Selection, error) {
	options, err := r.ListOptions(ctx, OptionFilter{Scope: entity.ScopeDeleted})
	if err != nil {
		return nil, err
	}
	if len(options) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(options))
	for _, o := range options {
		ids = append(ids, o.ID)
	}
	return r.ListSelections(ctx, SelectionFilter{Scope: entity.ScopeActive, OptionIDs: ids})
}

func (r *Repo) scanSelections(ctx context.Context, query string, args ...any) ([]entity.Selection, error) {
	rows, err := r.s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s selections: %w", r.family.Name, err)
	}
	defer rows.Close()

	var selections []entity.Selection
	for rows.Next() {
		sel, err := scanSelection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s selection: %w", r.family.Name, err)
		}
		selections = append(selections, sel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s selections: %w", r.family.Name, err)
	}
	return selections, nil
}

func scanSelection(row rowScanner) (entity.Selection, error) {
	var (
		sel     entity.Selection
		deleted nullTime
	)
	if err := row.Scan(&sel.ID, &sel.TenantID, &sel.OptionID, &deleted); err != nil {
		return entity.Selection{}, err
	}
	sel.Deleted = deleted.Ptr()
	return sel, nil
}
