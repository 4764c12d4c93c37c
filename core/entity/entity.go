// Package entity defines the Option and Selection records shared by every family,
// the option type discriminant, and the timestamp-based soft-delete semantics.
//
// Records carry a nullable Deleted timestamp. A nil timestamp means the record is
// active. Soft deletion sets the timestamp once; undeletion clears it. Hard deletion
// is a store concern and always requires an explicit override.
package entity

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// OptionType is the discriminant for the three kinds of option.
// The values are the codes persisted in the option_type column.
type OptionType string

const (
	// Mandatory options are provided by the developer and always selected for every tenant.
	Mandatory OptionType = "dm"
	// Optional options are provided by the developer and may be selected by each tenant.
	Optional OptionType = "do"
	// Custom options are created by a tenant and visible to that tenant only.
	Custom OptionType = "cu"
)

// OptionTypes lists the option types in display order.
var OptionTypes = []OptionType{Mandatory, Optional, Custom}

// ParseOptionType accepts either the stored code or the type name, case-insensitively.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dm", "mandatory":
		return Mandatory, nil
	case "do", "optional":
		return Optional, nil
	case "cu", "custom":
		return Custom, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

// Valid reports whether t is one of the known option types.
func (t OptionType) Valid() bool {
	switch t {
	case Mandatory, Optional, Custom:
		return true
	default:
		return false
	}
}

// IsDefault reports whether t may be the type of a declared default option.
func (t OptionType) IsDefault() bool {
	return t == Mandatory || t == Optional
}

// Rank orders types for display: mandatory first, custom last.
func (t OptionType) Rank() int {
	switch t {
	case Mandatory:
		return 0
	case Optional:
		return 1
	case Custom:
		return 2
	default:
		return 3
	}
}

// Label returns the human readable name of the type.
func (t OptionType) Label() string {
	switch t {
	case Mandatory:
		return "Default Mandatory"
	case Optional:
		return "Default Optional"
	case Custom:
		return "Custom"
	default:
		return string(t)
	}
}

func (t OptionType) String() string {
	return t.Label()
}

// SoftDelete holds the deletion timestamp of a record.
type SoftDelete struct {
	Deleted *time.Time `json:"deleted,omitempty"`
}

// IsActive reports whether the record has not been soft-deleted.
func (s SoftDelete) IsActive() bool {
	return s.Deleted == nil
}

// DeletedAt returns the deletion timestamp, or nil for active records.
func (s SoftDelete) DeletedAt() *time.Time {
	return s.Deleted
}

// MarkDeleted sets the deletion timestamp. Re-deleting keeps the original timestamp.
func (s *SoftDelete) MarkDeleted(now time.Time) {
	if s.Deleted != nil {
		return
	}
	ts := now.UTC()
	s.Deleted = &ts
}

// Undelete clears the deletion timestamp. It does nothing for active records.
func (s *SoftDelete) Undelete() {
	s.Deleted = nil
}

// Option is one selectable value within one option family.
type Option struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Type     OptionType `json:"option_type"`
	TenantID *int64     `json:"tenant_id,omitempty"`
	SoftDelete
}

// NewDefaultOption returns an unsaved MANDATORY or OPTIONAL option.
func NewDefaultOption(name string, t OptionType) Option {
	return Option{Name: name, Type: t}
}

// NewCustomOption returns an unsaved CUSTOM option owned by tenant.
func NewCustomOption(tenant int64, name string) Option {
	return Option{Name: name, Type: Custom, TenantID: &tenant}
}

// CheckTenant enforces that custom options have a tenant and default options do not.
func (o Option) CheckTenant() error {
	switch {
	case !o.Type.Valid():
		return fmt.Errorf("option %q has invalid type %q", o.Name, o.Type)
	case o.Type == Custom && o.TenantID == nil:
		return fmt.Errorf("custom option %q requires a tenant", o.Name)
	case o.Type.IsDefault() && o.TenantID != nil:
		return fmt.Errorf("default option %q must not have a tenant", o.Name)
	}
	return nil
}

// VisibleTo reports whether tenant may see and select the option.
// Soft-deletion is not considered here.
func (o Option) VisibleTo(tenant int64) bool {
	if o.Type.IsDefault() {
		return true
	}
	return o.TenantID != nil && *o.TenantID == tenant
}

// FoldName returns the case-folded form used to compare option names.
func FoldName(name string) string {
	return cases.Fold().String(name)
}

// CompareOptions orders options for display: by type rank, then by folded
// name, then by id.
func CompareOptions(a, b Option) int {
	if d := a.Type.Rank() - b.Type.Rank(); d != 0 {
		return d
	}
	if c := strings.Compare(FoldName(a.Name), FoldName(b.Name)); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

func (o Option) String() string {
	return o.Name
}

// Selection records that a tenant has enabled an option.
type Selection struct {
	ID       int64 `json:"id"`
	TenantID int64 `json:"tenant_id"`
	OptionID int64 `json:"option_id"`
	SoftDelete
}

// TenantMatches reports whether a selection by tenant may reference option:
// custom options only by their owner, default options by anyone.
func TenantMatches(option Option, tenant int64) bool {
	return option.VisibleTo(tenant)
}
