// Package defaults reconciles the declared default options of each family
// with the persisted default options.
//
// Sync creates missing defaults, updates the type of changed ones and restores
// soft-deleted ones. It never deletes: a default that is no longer declared is
// left for an explicit soft delete, since tenants may still depend on it.
// Running Sync twice without changing the declared defaults writes nothing
// the second time.
package defaults

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/store"
)

// Result lists the declared names by what Sync did with them.
type Result struct {
	Family    string
	Created   []string
	Updated   []string
	Restored  []string
	Unchanged []string
	// Undeclared are active defaults in the database that are no longer declared.
	Undeclared []string
	// Err is set by SyncAll when the family failed; nothing was written for it.
	Err error
}

// Changed reports whether Sync wrote anything.
func (r Result) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.Restored) > 0
}

// Syncer runs default synchronization.
type Syncer struct {
	store       *store.Store
	concurrency int
	logger      *slog.Logger
}

// New creates a syncer on s. Concurrency defaults to the store settings.
func New(s *store.Store) *Syncer {
	return &Syncer{
		store:       s,
		concurrency: s.Settings().SyncConcurrency,
		logger:      slog.Default(),
	}
}

// WithLogger sets the logger for the syncer
func (s *Syncer) WithLogger(l *slog.Logger) *Syncer {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// WithConcurrency bounds how many families SyncAll processes at once.
func (s *Syncer) WithConcurrency(n int) *Syncer {
	tmp := *s
	tmp.concurrency = n
	return &tmp
}

// Sync reconciles one family inside a transaction. The declared defaults are checked
// in full before anything is written.
func (s *Syncer) Sync(ctx context.Context, f *family.Family) (Result, error) {
	result := Result{Family: f.Name}

	if err := checkDeclared(f); err != nil {
		return result, err
	}

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		repo, err := tx.For(f)
		if err != nil {
			return err
		}
		existing, err := repo.ListOptions(ctx, store.OptionFilter{Scope: entity.ScopeUnscoped, DefaultsOnly: true})
		if err != nil {
			return err
		}

		byName := make(map[string]entity.Option, len(existing))
		for _, o := range existing {
			key := entity.FoldName(o.Name)
			// Prefer the active row when direct writes left several.
			if prev, ok := byName[key]; ok && prev.IsActive() {
				continue
			}
			byName[key] = o
		}

		declared := make(map[string]bool, len(f.Defaults))
		for _, d := range f.Defaults {
			key := entity.FoldName(d.Name)
			declared[key] = true
			want := d.EffectiveType()

			o, ok := byName[key]
			switch {
			case !ok:
				created := entity.NewDefaultOption(d.Name, want)
				if err := repo.CreateOption(ctx, &created); err != nil {
					return err
				}
				result.Created = append(result.Created, d.Name)
			case !o.IsActive():
				if o.Type != want {
					if err := repo.UpdateOptionType(ctx, o.ID, want); err != nil {
						return err
					}
				}
				if err := repo.UndeleteOption(ctx, o.ID); err != nil {
					return err
				}
				result.Restored = append(result.Restored, d.Name)
			case o.Type != want:
				if err := repo.UpdateOptionType(ctx, o.ID, want); err != nil {
					return err
				}
				result.Updated = append(result.Updated, d.Name)
			default:
				result.Unchanged = append(result.Unchanged, d.Name)
			}
		}

		for _, o := range existing {
			if o.IsActive() && !declared[entity.FoldName(o.Name)] {
				result.Undeclared = append(result.Undeclared, o.Name)
			}
		}
		return nil
	})
	if err != nil {
		return Result{Family: f.Name}, err
	}

	s.logger.Info("Synchronized default options",
		"family", f.Name,
		"created", len(result.Created),
		"updated", len(result.Updated),
		"restored", len(result.Restored),
		"unchanged", len(result.Unchanged))
	if len(result.Undeclared) > 0 {
		s.logger.Warn("Default options no longer declared are kept", "family", f.Name, "names", result.Undeclared)
	}
	return result, nil
}

// SyncAll synchronizes every family, several at a time. A failing family does
// not stop the others; the returned error joins every failure and the results
// keep the order of families.
func (s *Syncer) SyncAll(ctx context.Context, families []*family.Family) ([]Result, error) {
	results := make([]Result, len(families))
	errs := make([]error, len(families))

	var g errgroup.Group
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, f := range families {
		g.Go(func() error {
			res, err := s.Sync(ctx, f)
			results[i] = res
			if err != nil {
				s.logger.Error("Failed to synchronize family", "family", f.Name, "error", err)
				errs[i] = fmt.Errorf("failed to sync family %s: %w", f.Name, err)
				results[i].Err = err
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// checkDeclared rejects non-default types and names declared twice.
func checkDeclared(f *family.Family) error {
	if err := f.RequireWiring(); err != nil {
		return err
	}
	if err := f.ValidateDefaults(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(f.Defaults))
	for _, d := range f.Defaults {
		if strings.TrimSpace(d.Name) == "" {
			return &entity.ConfigurationError{Family: f.Name, Attribute: "defaults", Reason: "a default option has no name"}
		}
		key := entity.FoldName(d.Name)
		if seen[key] {
			return &entity.ConfigurationError{Family: f.Name, Attribute: "defaults", Reason: fmt.Sprintf("name %q is declared twice", d.Name)}
		}
		seen[key] = true
	}
	return nil
}
