// Package selection applies a tenant's desired option set to its selection rows.
package selection

import (
	"context"
	"log/slog"
	"slices"

	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/store"
	"github.com/stokaro/tenantopts/tenancy"
)

// Delta lists the option ids whose selection ApplySelection changed.
type Delta struct {
	// Added options got a new selection row.
	Added []int64
	// Restored options had a soft-deleted selection row undeleted.
	Restored []int64
	// Removed options had their active selection soft-deleted.
	Removed []int64
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return len(d.Added)+len(d.Restored)+len(d.Removed) == 0
}

// Reconciler applies selections.
type Reconciler struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a reconciler on s.
func New(s *store.Store) *Reconciler {
	return &Reconciler{
		store:  s,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the reconciler
func (r *Reconciler) WithLogger(l *slog.Logger) *Reconciler {
	tmp := *r
	tmp.logger = l
	return &tmp
}

// ApplySelection makes the active selections of tenant equal desired plus every
// active mandatory option. Missing selections are restored from soft-deleted
// rows when one exists and created otherwise; selections not desired are
// soft-deleted. The options are read and the whole delta commits in one
// transaction, or nothing is written.
//
// Every desired id must be an active option visible to tenant, otherwise an
// entity.OptionNotFoundError is returned and nothing is written.
func (r *Reconciler) ApplySelection(ctx context.Context, f *family.Family, tenant int64, desired []int64) (Delta, error) {
	if _, err := r.store.For(f); err != nil {
		return Delta{}, err
	}

	var delta Delta
	err := r.store.WithTx(ctx, func(tx *store.Store) error {
		delta = Delta{}
		txRepo, err := tx.For(f)
		if err != nil {
			return err
		}
		if err := tenancy.CheckTenant(ctx, txRepo, tenant); err != nil {
			return err
		}

		// Read the visible options in the same transaction as the writes.
		visible, err := txRepo.ListOptions(ctx, store.OptionFilter{VisibleTo: &tenant})
		if err != nil {
			return err
		}
		visibleByID := make(map[int64]entity.Option, len(visible))
		for _, o := range visible {
			visibleByID[o.ID] = o
		}

		want := make(map[int64]bool, len(desired))
		for _, id := range desired {
			if _, ok := visibleByID[id]; !ok {
				return &entity.OptionNotFoundError{Family: f.Name, TenantID: tenant, OptionID: id}
			}
			want[id] = true
		}
		for _, o := range visible {
			if o.Type == entity.Mandatory {
				want[o.ID] = true
			}
		}

		current, err := txRepo.ListSelections(ctx, store.SelectionFilter{Scope: entity.ScopeUnscoped, TenantID: &tenant})
		if err != nil {
			return err
		}

		active := make(map[int64]entity.Selection)
		deleted := make(map[int64]entity.Selection)
		for _, sel := range current {
			if sel.IsActive() {
				active[sel.OptionID] = sel
			} else {
				deleted[sel.OptionID] = sel
			}
		}

		var restoreIDs, removeIDs []int64
		for _, optionID := range sortedKeys(want) {
			if _, ok := active[optionID]; ok {
				continue
			}
			if sel, ok := deleted[optionID]; ok {
				restoreIDs = append(restoreIDs, sel.ID)
				delta.Restored = append(delta.Restored, optionID)
				continue
			}
			sel := entity.Selection{TenantID: tenant, OptionID: optionID}
			if err := txRepo.CreateSelection(ctx, &sel); err != nil {
				return err
			}
			delta.Added = append(delta.Added, optionID)
		}
		for _, optionID := range sortedKeys(active) {
			if !want[optionID] {
				removeIDs = append(removeIDs, active[optionID].ID)
				delta.Removed = append(delta.Removed, optionID)
			}
		}

		if _, err := txRepo.UndeleteSelections(ctx, restoreIDs); err != nil {
			return err
		}
		if _, err := txRepo.DeleteSelections(ctx, removeIDs); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return Delta{}, err
	}

	if !delta.Empty() {
		r.logger.Info("Applied selection",
			"family", f.Name,
			"tenant", tenant,
			"added", delta.Added,
			"restored", delta.Restored,
			"removed", delta.Removed)
	}
	return delta, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
