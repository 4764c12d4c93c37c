// Package family describes option families: a paired option table and selection
// table covering one customizable choice axis, such as task priority.
//
// A Family is declared once at registration time. It names the tenant table it
// hangs off, its two tables, and its declared default options. Everything the
// engines need about relationships is derived from this descriptor.
package family

import (
	"regexp"
	"strings"

	"github.com/stokaro/tenantopts/config"
	"github.com/stokaro/tenantopts/core/entity"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// DefaultOption is one declared default option.
// An empty Type means MANDATORY.
type DefaultOption struct {
	Name string
	Type entity.OptionType
}

// EffectiveType returns the declared type, defaulting to MANDATORY.
func (d DefaultOption) EffectiveType() entity.OptionType {
	if d.Type == "" {
		return entity.Mandatory
	}
	return d.Type
}

// Mandatory declares a mandatory default option.
func Mandatory(name string) DefaultOption {
	return DefaultOption{Name: name, Type: entity.Mandatory}
}

// Optional declares an optional default option.
func Optional(name string) DefaultOption {
	return DefaultOption{Name: name, Type: entity.Optional}
}

// Family is the descriptor of one option family.
type Family struct {
	// Name identifies the family, e.g. "task_priority".
	Name string
	// Group collects related families, like an application label.
	Group string

	TenantTable    string
	TenantKey      string
	OptionTable    string
	SelectionTable string

	// Defaults are the developer-declared default options, in declaration order.
	Defaults []DefaultOption

	// OptionScopes and SelectionScopes replace the default filtering contract.
	// They must implement entity.OptionScoper and entity.Scoper[entity.Selection].
	OptionScopes    any
	SelectionScopes any

	Overrides config.Overrides
}

// Option configures a Family.
type Option func(*Family)

// New builds a family. The tables default to "<name>_options" and
// "<name>_selections", and the tenant key to "id".
func New(name string, opts ...Option) *Family {
	f := &Family{
		Name:           name,
		TenantKey:      "id",
		OptionTable:    name + "_options",
		SelectionTable: name + "_selections",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithGroup sets the family group.
func WithGroup(group string) Option {
	return func(f *Family) { f.Group = group }
}

// WithTables sets the option and selection tables.
func WithTables(optionTable, selectionTable string) Option {
	return func(f *Family) {
		f.OptionTable = optionTable
		f.SelectionTable = selectionTable
	}
}

// WithTenantTable sets the tenant table for this family only.
func WithTenantTable(table string) Option {
	return func(f *Family) { f.TenantTable = table }
}

// WithTenantKey sets the primary key column of the tenant table.
func WithTenantKey(column string) Option {
	return func(f *Family) { f.TenantKey = column }
}

// WithDefaults appends declared default options.
func WithDefaults(defaults ...DefaultOption) Option {
	return func(f *Family) { f.Defaults = append(f.Defaults, defaults...) }
}

// WithOverrides sets the per-family settings overrides.
func WithOverrides(o config.Overrides) Option {
	return func(f *Family) { f.Overrides = o }
}

// WithOptionScopes replaces the option filtering contract.
func WithOptionScopes(s any) Option {
	return func(f *Family) { f.OptionScopes = s }
}

// WithSelectionScopes replaces the selection filtering contract.
func WithSelectionScopes(s any) Option {
	return func(f *Family) { f.SelectionScopes = s }
}

// Settings resolves the family overrides against the global settings.
// The family's own TenantTable wins over both.
func (f *Family) Settings(global *config.Settings) *config.Settings {
	s := config.Resolve(global, f.Overrides)
	if f.TenantTable != "" {
		s.TenantTable = f.TenantTable
	}
	return s
}

// ResolvedTenantTable returns the tenant table after applying settings.
func (f *Family) ResolvedTenantTable(global *config.Settings) string {
	return f.Settings(global).TenantTable
}

// RequireWiring checks the cross-references the engines rely on and returns a
// ConfigurationError for the first one that is missing or malformed.
func (f *Family) RequireWiring() error {
	if f == nil {
		return &entity.ConfigurationError{Family: "<nil>", Attribute: "family"}
	}
	if strings.TrimSpace(f.Name) == "" {
		return &entity.ConfigurationError{Family: "<unnamed>", Attribute: "name"}
	}
	checks := []struct {
		attr  string
		value string
	}{
		{"option table", f.OptionTable},
		{"selection table", f.SelectionTable},
		{"tenant key", f.TenantKey},
	}
	for _, chk := range checks {
		if strings.TrimSpace(chk.value) == "" {
			return &entity.ConfigurationError{Family: f.Name, Attribute: chk.attr}
		}
		if !identifierRe.MatchString(chk.value) {
			return &entity.ConfigurationError{Family: f.Name, Attribute: chk.attr, Reason: "invalid identifier " + chk.value}
		}
	}
	if f.TenantTable != "" && !identifierRe.MatchString(f.TenantTable) {
		return &entity.ConfigurationError{Family: f.Name, Attribute: "tenant table", Reason: "invalid identifier " + f.TenantTable}
	}
	if f.OptionTable == f.SelectionTable {
		return &entity.ConfigurationError{Family: f.Name, Attribute: "selection table", Reason: "must differ from the option table"}
	}
	if _, err := f.OptionScoper(); err != nil {
		return err
	}
	if _, err := f.SelectionScoper(); err != nil {
		return err
	}
	return nil
}

// OptionScoper returns the option filtering contract for the family.
func (f *Family) OptionScoper() (entity.OptionScoper, error) {
	if f.OptionScopes == nil {
		return entity.DefaultOptionScoper{}, nil
	}
	s, ok := f.OptionScopes.(entity.OptionScoper)
	if !ok {
		return nil, &entity.ConfigurationError{Family: f.Name, Attribute: "option scopes", Reason: "does not implement the option filtering contract"}
	}
	return s, nil
}

// SelectionScoper returns the selection filtering contract for the family.
func (f *Family) SelectionScoper() (entity.Scoper[entity.Selection], error) {
	if f.SelectionScopes == nil {
		return entity.SoftDeleteScoper[entity.Selection]{}, nil
	}
	s, ok := f.SelectionScopes.(entity.Scoper[entity.Selection])
	if !ok {
		return nil, &entity.ConfigurationError{Family: f.Name, Attribute: "selection scopes", Reason: "does not implement the selection filtering contract"}
	}
	return s, nil
}

// ValidateDefaults checks every declared default option and
// returns an InvalidDefaultOptionError for the first CUSTOM or unknown type.
func (f *Family) ValidateDefaults() error {
	for _, d := range f.Defaults {
		if !d.EffectiveType().IsDefault() {
			return &entity.InvalidDefaultOptionError{Family: f.Name, Name: d.Name, Type: d.Type}
		}
	}
	return nil
}

func (f *Family) String() string {
	if f.Group != "" {
		return f.Group + "." + f.Name
	}
	return f.Name
}
