package family

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds the registered families in registration order.
type Registry struct {
	mu       sync.RWMutex
	families []*Family
	byName   map[string]*Family
}

// NewRegistry creates a registry containing the given families.
// It panics on a registration error, like regexp.MustCompile.
func NewRegistry(families ...*Family) *Registry {
	r := &Registry{byName: make(map[string]*Family)}
	for _, f := range families {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a family. Names must be non-empty and unique; the rest of the
// wiring is checked by the engines and the validator.
func (r *Registry) Register(f *Family) error {
	if f == nil || strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("cannot register a family without a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byName == nil {
		r.byName = make(map[string]*Family)
	}
	if _, exists := r.byName[f.Name]; exists {
		return fmt.Errorf("family %s is already registered", f.Name)
	}
	r.byName[f.Name] = f
	r.families = append(r.families, f)
	return nil
}

// Get returns the family registered under name.
func (r *Registry) Get(name string) (*Family, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	return f, ok
}

// All returns every family in registration order.
func (r *Registry) All() []*Family {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Family, len(r.families))
	copy(out, r.families)
	return out
}

// Group returns the families of one group in registration order.
func (r *Registry) Group(group string) []*Family {
	var out []*Family
	for _, f := range r.All() {
		if f.Group == group {
			out = append(out, f)
		}
	}
	return out
}

// Scope narrows a selection of families. Family wins over Group; an empty
// Scope selects every family.
type Scope struct {
	// Family is a family name, or "group.name", or a selection table name.
	Family string
	Group  string
}

// Select returns the families in scope, or an error when a named family or
// group matches nothing.
func (r *Registry) Select(s Scope) ([]*Family, error) {
	switch {
	case s.Family != "":
		for _, f := range r.All() {
			if f.Name == s.Family || f.String() == s.Family || f.SelectionTable == s.Family {
				return []*Family{f}, nil
			}
		}
		return nil, fmt.Errorf("no family matches %q", s.Family)
	case s.Group != "":
		families := r.Group(s.Group)
		if len(families) == 0 {
			return nil, fmt.Errorf("no families in group %q", s.Group)
		}
		return families, nil
	default:
		return r.All(), nil
	}
}
