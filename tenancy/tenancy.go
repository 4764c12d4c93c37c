// Package tenancy answers which options a tenant sees and which of them it has
// selected, and creates tenant-owned custom options.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/stokaro/tenantopts/core/entity"
	"github.com/stokaro/tenantopts/core/family"
	"github.com/stokaro/tenantopts/store"
)

// MaxNameLength is the width of the option name column.
const MaxNameLength = 100

// ErrReservedName is returned when a custom option would reuse a default name.
var ErrReservedName = errors.New("name is reserved by a default option")

// QueryOption configures a tenant query.
type QueryOption func(*queryConfig)

type queryConfig struct {
	includeDeleted bool
}

// IncludeDeleted makes a query return soft-deleted options as well.
func IncludeDeleted() QueryOption {
	return func(c *queryConfig) { c.includeDeleted = true }
}

// Querier runs tenant-scoped reads over a store.
type Querier struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a querier on s.
func New(s *store.Store) *Querier {
	return &Querier{
		store:  s,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the querier
func (q *Querier) WithLogger(l *slog.Logger) *Querier {
	tmp := *q
	tmp.logger = l
	return &tmp
}

// OptionsForTenant returns the options tenant may use: every mandatory and
// optional default plus the tenant's own custom options, in display order.
func (q *Querier) OptionsForTenant(ctx context.Context, f *family.Family, tenant int64, opts ...QueryOption) ([]entity.Option, error) {
	repo, cfg, err := q.prepare(ctx, f, tenant, opts)
	if err != nil {
		return nil, err
	}
	return visibleOptions(ctx, repo, tenant, cfg)
}

// SelectedOptionsForTenant returns the subset of OptionsForTenant in use by
// tenant: every mandatory option, and the optional and custom options with an
// active selection.
func (q *Querier) SelectedOptionsForTenant(ctx context.Context, f *family.Family, tenant int64, opts ...QueryOption) ([]entity.Option, error) {
	repo, cfg, err := q.prepare(ctx, f, tenant, opts)
	if err != nil {
		return nil, err
	}

	visible, err := visibleOptions(ctx, repo, tenant, cfg)
	if err != nil {
		return nil, err
	}
	selections, err := repo.ListSelections(ctx, store.SelectionFilter{TenantID: &tenant})
	if err != nil {
		return nil, err
	}

	selected := make(map[int64]bool, len(selections))
	for _, sel := range selections {
		selected[sel.OptionID] = true
	}
	return entity.Filter(visible, func(o entity.Option) bool {
		return o.Type == entity.Mandatory || selected[o.ID]
	}), nil
}

// CreateCustomOption creates a custom option owned by tenant. The name may not
// match a default option of the family, compared case-insensitively; a
// duplicate within the tenant is rejected by the store with entity.ErrConflict.
func (q *Querier) CreateCustomOption(ctx context.Context, f *family.Family, tenant int64, name string) (entity.Option, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return entity.Option{}, fmt.Errorf("family %s: option name must not be empty", f.Name)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return entity.Option{}, fmt.Errorf("family %s: option name is longer than %d characters", f.Name, MaxNameLength)
	}

	repo, _, err := q.prepare(ctx, f, tenant, nil)
	if err != nil {
		return entity.Option{}, err
	}

	defaults, err := repo.ListOptions(ctx, store.OptionFilter{Scope: entity.ScopeUnscoped, DefaultsOnly: true})
	if err != nil {
		return entity.Option{}, err
	}
	reserved := make([]string, 0, len(f.Defaults)+len(defaults))
	for _, d := range f.Defaults {
		reserved = append(reserved, entity.FoldName(d.Name))
	}
	for _, d := range defaults {
		reserved = append(reserved, entity.FoldName(d.Name))
	}
	if slices.Contains(reserved, entity.FoldName(name)) {
		return entity.Option{}, fmt.Errorf("family %s: %w: %q", f.Name, ErrReservedName, name)
	}

	o := entity.NewCustomOption(tenant, name)
	if err := repo.CreateOption(ctx, &o); err != nil {
		return entity.Option{}, err
	}
	q.logger.Info("Created custom option", "family", f.Name, "tenant", tenant, "id", o.ID, "name", o.Name)
	return o, nil
}

// prepare checks the family wiring and the tenant.
func (q *Querier) prepare(ctx context.Context, f *family.Family, tenant int64, opts []QueryOption) (*store.Repo, queryConfig, error) {
	var cfg queryConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	repo, err := q.store.For(f)
	if err != nil {
		return nil, cfg, err
	}
	if err := CheckTenant(ctx, repo, tenant); err != nil {
		return nil, cfg, err
	}
	return repo, cfg, nil
}

// CheckTenant fails with entity.InvalidTenantError unless tenant is a row of
// the family's tenant table.
func CheckTenant(ctx context.Context, repo *store.Repo, tenant int64) error {
	if tenant == 0 {
		return &entity.InvalidTenantError{}
	}
	if tenant < 0 {
		return &entity.InvalidTenantError{TenantID: tenant, Reason: "not a persisted tenant"}
	}
	ok, err := repo.TenantExists(ctx, tenant)
	if err != nil {
		return err
	}
	if !ok {
		return &entity.InvalidTenantError{TenantID: tenant, Reason: "no such tenant"}
	}
	return nil
}

func visibleOptions(ctx context.Context, repo *store.Repo, tenant int64, cfg queryConfig) ([]entity.Option, error) {
	scope := entity.ScopeActive
	if cfg.includeDeleted {
		scope = entity.ScopeUnscoped
	}
	options, err := repo.ListOptions(ctx, store.OptionFilter{Scope: scope, VisibleTo: &tenant})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(options, entity.CompareOptions)
	return options, nil
}
