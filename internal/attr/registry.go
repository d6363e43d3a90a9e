package attr

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"daqbridge/internal/services"
)

// Registry indexes attributes by name.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Attribute
	aliases map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]*Attribute),
		aliases: make(map[string]string),
	}
}

func key(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Add registers attributes. Names are unique ignoring case.
func (r *Registry) Add(attrs ...*Attribute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range attrs {
		k := key(a.Name())
		if _, exists := r.byName[k]; exists {
			return fmt.Errorf("%w: attribute %s already registered", services.ErrValidation, a.Name())
		}
		if _, exists := r.aliases[k]; exists {
			return fmt.Errorf("%w: attribute %s collides with an alias", services.ErrValidation, a.Name())
		}
		r.byName[k] = a
	}
	return nil
}

// Alias makes alias resolve to an existing attribute.
func (r *Registry) Alias(alias, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[key(name)]; !ok {
		return fmt.Errorf("%w: attribute %s", services.ErrNotFound, name)
	}
	if _, exists := r.byName[key(alias)]; exists {
		return fmt.Errorf("%w: alias %s collides with an attribute", services.ErrValidation, alias)
	}
	r.aliases[key(alias)] = key(name)
	return nil
}

// Get returns the attribute with the exact name or nil.
func (r *Registry) Get(name string) *Attribute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a := r.byName[key(name)]
	if a == nil || a.Name() != name {
		return nil
	}
	return a
}

// Lookup resolves name ignoring case and following aliases.
func (r *Registry) Lookup(name string) (*Attribute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k := key(name)
	if target, ok := r.aliases[k]; ok {
		k = target
	}
	a, ok := r.byName[k]
	if !ok {
		return nil, fmt.Errorf("%w: attribute %s", services.ErrNotFound, name)
	}
	return a, nil
}

// List returns the registered names sorted, optionally filtered by prefix.
func (r *Registry) List(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := key(prefix)
	names := make([]string, 0, len(r.byName))
	for k, a := range r.byName {
		if want != "" && !strings.HasPrefix(k, want) {
			continue
		}
		names = append(names, a.Name())
	}
	sort.Strings(names)
	return names
}

// Snapshot copies every attribute matching prefix, sorted by name.
func (r *Registry) Snapshot(prefix string) []Snapshot {
	names := r.List(prefix)
	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		a, err := r.Lookup(name)
		if err != nil {
			continue
		}
		out = append(out, a.Snapshot())
	}
	return out
}
