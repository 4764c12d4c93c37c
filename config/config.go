// Package config provides the layered settings used by option families.
//
// Settings holds the process-wide defaults. Every family may carry Overrides for
// individual keys; Resolve applies the family overrides on top of the global
// settings, so resolution order is family override first, then global default.
//
// Settings can be built programmatically with DefaultSettings and the With...
// helpers, or loaded from a config file and the environment with FromViper.
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/stokaro/tenantopts/core/platform"
)

// Viper keys, nested under the tenant_options section.
const (
	KeyPrefix                          = "tenant_options"
	KeyTenantTable                     = KeyPrefix + ".tenant_table"
	KeyTenantOnDelete                  = KeyPrefix + ".tenant_on_delete"
	KeyOptionOnDelete                  = KeyPrefix + ".option_on_delete"
	KeyDBVendorOverride                = KeyPrefix + ".db_vendor_override"
	KeyDisableFieldForDeletedSelection = KeyPrefix + ".disable_field_for_deleted_selection"
	KeyTriggerMessage                  = KeyPrefix + ".trigger_message"
	KeySyncConcurrency                 = KeyPrefix + ".sync_concurrency"

	// EnvPrefix is the prefix of environment variables read by FromViper,
	// e.g. TENANTOPTS_TENANT_OPTIONS_TENANT_TABLE.
	EnvPrefix = "TENANTOPTS"
)

// Referential actions accepted for the on-delete settings.
const (
	Cascade  = "CASCADE"
	Restrict = "RESTRICT"
	NoAction = "NO ACTION"
	SetNull  = "SET NULL"
)

var onDeleteActions = []string{Cascade, Restrict, NoAction, SetNull}

// Settings contains the process-wide configuration for every family.
type Settings struct {
	// TenantTable is the table holding the host application's tenants.
	TenantTable string

	// TenantOnDelete is the referential action for the tenant foreign key on
	// option and selection tables.
	TenantOnDelete string

	// OptionOnDelete is the referential action for the option foreign key on
	// selection tables. Options are soft-deleted, so it only matters for hard deletes.
	// SET NULL is rejected here because selection.option_id is NOT NULL.
	OptionOnDelete string

	// DBVendorOverride forces the dialect used for trigger generation, for custom
	// backends sitting on top of a supported database.
	DBVendorOverride string

	// DisableFieldForDeletedSelection is owned by the form layer: when true, a value
	// the tenant has since deselected is shown disabled instead of forcing re-selection.
	DisableFieldForDeletedSelection bool

	// TriggerMessage is the error raised by generated triggers.
	TriggerMessage string

	// SyncConcurrency bounds how many families are synchronized in parallel.
	SyncConcurrency int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() *Settings {
	return &Settings{
		TenantTable:     "tenants",
		TenantOnDelete:  Cascade,
		OptionOnDelete:  Cascade,
		TriggerMessage:  "Tenant mismatch between options and selections",
		SyncConcurrency: 4,
	}
}

// WithDBVendorOverride returns a copy of s with the vendor override set.
func (s Settings) WithDBVendorOverride(vendor string) *Settings {
	s.DBVendorOverride = vendor
	return &s
}

// WithTenantTable returns a copy of s with the tenant table set.
func (s Settings) WithTenantTable(table string) *Settings {
	s.TenantTable = table
	return &s
}

// Validate checks that every setting holds an accepted value.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.TenantTable) == "" {
		return fmt.Errorf("tenant table must not be empty")
	}
	if !slices.Contains(onDeleteActions, strings.ToUpper(s.TenantOnDelete)) {
		return fmt.Errorf("unsupported tenant on-delete action %q", s.TenantOnDelete)
	}
	switch strings.ToUpper(s.OptionOnDelete) {
	case Cascade, Restrict, NoAction:
	default:
		return fmt.Errorf("unsupported option on-delete action %q", s.OptionOnDelete)
	}
	if s.DBVendorOverride != "" && platform.NormalizeDialect(s.DBVendorOverride) == "" {
		return fmt.Errorf("unsupported database vendor override %q (allowed: %s)", s.DBVendorOverride, strings.Join(platform.Dialects, ", "))
	}
	if s.SyncConcurrency < 1 {
		return fmt.Errorf("sync concurrency must be at least 1, got %d", s.SyncConcurrency)
	}
	return nil
}

// Overrides holds per-family values for individual settings. Nil fields fall
// back to the global Settings.
type Overrides struct {
	TenantTable                     *string
	TenantOnDelete                  *string
	OptionOnDelete                  *string
	DBVendorOverride                *string
	DisableFieldForDeletedSelection *bool
	TriggerMessage                  *string
}

// Resolve returns the effective settings for a family: each non-nil override
// replaces the corresponding global value. A nil global means DefaultSettings.
func Resolve(global *Settings, o Overrides) *Settings {
	if global == nil {
		global = DefaultSettings()
	}
	out := *global
	if o.TenantTable != nil {
		out.TenantTable = *o.TenantTable
	}
	if o.TenantOnDelete != nil {
		out.TenantOnDelete = *o.TenantOnDelete
	}
	if o.OptionOnDelete != nil {
		out.OptionOnDelete = *o.OptionOnDelete
	}
	if o.DBVendorOverride != nil {
		out.DBVendorOverride = *o.DBVendorOverride
	}
	if o.DisableFieldForDeletedSelection != nil {
		out.DisableFieldForDeletedSelection = *o.DisableFieldForDeletedSelection
	}
	if o.TriggerMessage != nil {
		out.TriggerMessage = *o.TriggerMessage
	}
	return &out
}

// SetDefaults registers the default values with v so that config files and the
// environment only need to name what they change.
func SetDefaults(v *viper.Viper) {
	d := DefaultSettings()
	v.SetDefault(KeyTenantTable, d.TenantTable)
	v.SetDefault(KeyTenantOnDelete, d.TenantOnDelete)
	v.SetDefault(KeyOptionOnDelete, d.OptionOnDelete)
	v.SetDefault(KeyDBVendorOverride, d.DBVendorOverride)
	v.SetDefault(KeyDisableFieldForDeletedSelection, d.DisableFieldForDeletedSelection)
	v.SetDefault(KeyTriggerMessage, d.TriggerMessage)
	v.SetDefault(KeySyncConcurrency, d.SyncConcurrency)
}

// FromViper reads the settings from v, binding environment variables with
// EnvPrefix. The result is validated.
func FromViper(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := &Settings{
		TenantTable:                     v.GetString(KeyTenantTable),
		TenantOnDelete:                  strings.ToUpper(v.GetString(KeyTenantOnDelete)),
		OptionOnDelete:                  strings.ToUpper(v.GetString(KeyOptionOnDelete)),
		DBVendorOverride:                v.GetString(KeyDBVendorOverride),
		DisableFieldForDeletedSelection: v.GetBool(KeyDisableFieldForDeletedSelection),
		TriggerMessage:                  v.GetString(KeyTriggerMessage),
		SyncConcurrency:                 v.GetInt(KeySyncConcurrency),
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	s.DBVendorOverride = platform.NormalizeDialect(s.DBVendorOverride)
	return s, nil
}
