package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("record not found")

	// ErrConflict marks store-level unique-constraint violations and write conflicts.
	// The driver error stays in the chain.
	ErrConflict = errors.New("write conflict")
)

// NotFoundError is returned when a lookup, scoped or unscoped, finds no row.
type NotFoundError struct {
	Label string
	ID    any
}

func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s not found (id=%v)", e.Label, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Label)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// InvalidTenantError is returned when the tenant is missing or not persisted.
type InvalidTenantError struct {
	TenantID int64
	Reason   string
}

func (e *InvalidTenantError) Error() string {
	if e.TenantID == 0 {
		return "invalid tenant: no tenant provided"
	}
	return fmt.Sprintf("invalid tenant %d: %s", e.TenantID, e.Reason)
}

// OptionNotFoundError is returned when an option id does not resolve to an
// option visible to the tenant.
type OptionNotFoundError struct {
	Family   string
	TenantID int64
	OptionID int64
}

func (e *OptionNotFoundError) Error() string {
	return fmt.Sprintf("option %d not found for tenant %d in family %s", e.OptionID, e.TenantID, e.Family)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *OptionNotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// ConfigurationError reports a broken family configuration.
type ConfigurationError struct {
	Family    string
	Attribute string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("family %s: %s is not set", e.Family, e.Attribute)
	}
	return fmt.Sprintf("family %s: %s: %s", e.Family, e.Attribute, e.Reason)
}

// InvalidDefaultOptionError is returned when a declared default option
// is not MANDATORY or OPTIONAL.
type InvalidDefaultOptionError struct {
	Family string
	Name   string
	Type   OptionType
}

func (e *InvalidDefaultOptionError) Error() string {
	return fmt.Sprintf("family %s: default option %q must be MANDATORY or OPTIONAL, got %q", e.Family, e.Name, string(e.Type))
}
