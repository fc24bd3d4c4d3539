// Package schema models record types and the relations declared between
// them. Types are registered by name in a Registry; relation targets may
// reference other types by registered name so that mutually related types
// can be declared in any order. Name resolution happens lazily at first
// relation use, never at registration time.
package schema

import (
	"fmt"
	"sync"

	"relmap/internal/naming"
	"relmap/relerr"
)

// Registry maps stable type names to registered types. It is safe for
// concurrent use after the initialization phase.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
	namer *naming.Namer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNaming installs custom inflection overrides for key derivation.
func WithNaming(cfg naming.Config) RegistryOption {
	return func(r *Registry) {
		r.namer = naming.New(cfg)
	}
}

// NewRegistry creates an empty type registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		types: make(map[string]*Type),
		namer: naming.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a type to the registry, applying defaults for any field
// left unset. The returned *Type is the registered instance.
func (r *Registry) Register(t *Type) (*Type, error) {
	if t.Name == "" {
		return nil, relerr.Configuration("", "type name is required")
	}
	if t.Table == "" {
		return nil, relerr.Configuration(t.Name, "table name is required")
	}
	if t.IDColumn == "" {
		t.IDColumn = "id"
	}
	t.registry = r
	if t.relations == nil {
		t.relations = make(map[string]*Descriptor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return nil, relerr.Configuration(t.Name, "type already registered")
	}
	r.types[t.Name] = t
	return t, nil
}

// MustRegister is Register, panicking on error. Intended for package
// initialization where a bad registration is a programming error.
func (r *Registry) MustRegister(t *Type) *Type {
	registered, err := r.Register(t)
	if err != nil {
		panic(err)
	}
	return registered
}

// Resolve looks up a previously registered type by name.
func (r *Registry) Resolve(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, relerr.Configuration(name, "type %q is not registered", name)
	}
	return t, nil
}

// Namer exposes the registry's name derivation helper.
func (r *Registry) Namer() *naming.Namer { return r.namer }

// typeRef is a lazily resolved reference to a registered type: either a
// direct pointer or a registered name resolved on first use.
type typeRef struct {
	direct *Type
	name   string
}

func (ref typeRef) isZero() bool { return ref.direct == nil && ref.name == "" }

func (ref typeRef) resolve(r *Registry) (*Type, error) {
	if ref.direct != nil {
		return ref.direct, nil
	}
	if ref.name != "" {
		if r == nil {
			return nil, relerr.Configuration(ref.name, "type reference %q has no registry to resolve against", ref.name)
		}
		return r.Resolve(ref.name)
	}
	return nil, relerr.Configuration("", "relation target is not set")
}

// toRef normalizes a relation target argument: a *Type or a registered
// type name. Any other value is reported at resolution time so that
// declaration order stays unconstrained.
func toRef(target any) typeRef {
	switch v := target.(type) {
	case *Type:
		return typeRef{direct: v}
	case string:
		return typeRef{name: v}
	default:
		return typeRef{name: fmt.Sprintf("%v", v)}
	}
}
