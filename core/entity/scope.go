package entity

import (
	"time"
)

// Scope selects which rows a retrieval returns.
type Scope int

const (
	// ScopeActive returns only rows whose deleted timestamp is null.
	ScopeActive Scope = iota
	// ScopeUnscoped returns every row, including soft-deleted ones.
	ScopeUnscoped
	// ScopeDeleted returns only soft-deleted rows.
	ScopeDeleted
)

func (s Scope) String() string {
	switch s {
	case ScopeUnscoped:
		return "unscoped"
	case ScopeDeleted:
		return "deleted"
	}
	return "active"
}

// Record is anything carrying a soft-delete timestamp.
type Record interface {
	DeletedAt() *time.Time
}

// Predicate filters records of type T.
type Predicate[T any] func(T) bool

// Active matches records that are not soft-deleted.
func Active[T Record](r T) bool {
	return r.DeletedAt() == nil
}

// Deleted matches soft-deleted records.
func Deleted[T Record](r T) bool {
	return r.DeletedAt() != nil
}

// OfType matches options of any of the given types.
func OfType(types ...OptionType) Predicate[Option] {
	return func(o Option) bool {
		for _, t := range types {
			if o.Type == t {
				return true
			}
		}
		return false
	}
}

// OwnedBy matches custom options owned by tenant.
func OwnedBy(tenant int64) Predicate[Option] {
	return func(o Option) bool {
		return o.Type == Custom && o.TenantID != nil && *o.TenantID == tenant
	}
}

// Filter returns the items matching every predicate, preserving order.
func Filter[T any](items []T, preds ...Predicate[T]) []T {
	out := make([]T, 0, len(items))
next:
	for _, item := range items {
		for _, p := range preds {
			if !p(item) {
				continue next
			}
		}
		out = append(out, item)
	}
	return out
}

// Scoper is the filtering contract every family's records must support.
// Families may replace the default implementation to narrow what the
// default scope returns, but must keep these predicates.
type Scoper[T Record] interface {
	Active() Predicate[T]
	Deleted() Predicate[T]
}

// OptionScoper extends Scoper with the custom-options filter used for options.
type OptionScoper interface {
	Scoper[Option]
	Custom() Predicate[Option]
}

// SoftDeleteScoper is the default Scoper, driven purely by the deleted timestamp.
type SoftDeleteScoper[T Record] struct{}

func (SoftDeleteScoper[T]) Active() Predicate[T]  { return Active[T] }
func (SoftDeleteScoper[T]) Deleted() Predicate[T] { return Deleted[T] }

// DefaultOptionScoper is the default OptionScoper.
type DefaultOptionScoper struct {
	SoftDeleteScoper[Option]
}

func (DefaultOptionScoper) Custom() Predicate[Option] { return OfType(Custom) }

var (
	_ OptionScoper      = DefaultOptionScoper{}
	_ Scoper[Selection] = SoftDeleteScoper[Selection]{}
)
