package schema

import (
	"relmap/relerr"
)

// Type describes one record type: its table, identity column, and the
// relations declared on it. Table and identity metadata are immutable
// after registration; relation declarations normally happen right after
// registration, before any query runs.
type Type struct {
	// Name is the stable registered name used for cross-type references.
	Name string
	// Table is the underlying table name.
	Table string
	// IDColumn is the identity attribute. Defaults to "id".
	IDColumn string
	// Timestamps enables created_at/updated_at maintenance on save.
	Timestamps bool
	// UUIDIdentity generates a UUID identity on insert when unset.
	UUIDIdentity bool

	registry  *Registry
	relations map[string]*Descriptor
}

// Registry returns the registry this type was registered in.
func (t *Type) Registry() *Registry { return t.registry }

// Relation returns the descriptor declared under name.
func (t *Type) Relation(name string) (*Descriptor, error) {
	d, ok := t.relations[name]
	if !ok {
		return nil, relerr.UnknownRelation(t.Name, name)
	}
	return d, nil
}

// RelationNames returns the declared relation names, for diagnostics.
func (t *Type) RelationNames() []string {
	names := make([]string, 0, len(t.relations))
	for name := range t.relations {
		names = append(names, name)
	}
	return names
}

func (t *Type) declare(name string, d *Descriptor) *Descriptor {
	d.Name = name
	d.owner = t
	t.relations[name] = d
	return d
}

// HasOne declares a to-one relation whose foreign key lives on the target
// table, named singular(owner table) + "_" + owner id column by default.
func (t *Type) HasOne(name string, target any, opts ...RelationOption) *Descriptor {
	return t.declare(name, newDescriptor(HasOne, toRef(target), opts))
}

// HasMany declares a to-many relation whose foreign key lives on the
// target table.
func (t *Type) HasMany(name string, target any, opts ...RelationOption) *Descriptor {
	return t.declare(name, newDescriptor(HasMany, toRef(target), opts))
}

// BelongsTo declares a to-one relation whose foreign key lives on this
// type's own table, named singular(target table) + "_" + target id column
// by default.
func (t *Type) BelongsTo(name string, target any, opts ...RelationOption) *Descriptor {
	return t.declare(name, newDescriptor(BelongsTo, toRef(target), opts))
}

// BelongsToMany declares a many-to-many relation mediated by a join
// table. The join table name defaults to the two table names sorted
// lexicographically and joined by "_", so both sides derive the same name.
func (t *Type) BelongsToMany(name string, target any, opts ...RelationOption) *Descriptor {
	return t.declare(name, newDescriptor(BelongsToMany, toRef(target), opts))
}

// MorphOne declares a polymorphic to-one relation. The target table
// carries {morphName}_type and {morphName}_id columns; rows match when
// the type column equals this relation's morph value.
func (t *Type) MorphOne(name string, target any, morphName string, opts ...RelationOption) *Descriptor {
	d := newDescriptor(MorphOne, toRef(target), opts)
	d.morphName = morphName
	return t.declare(name, d)
}

// MorphMany declares a polymorphic to-many relation.
func (t *Type) MorphMany(name string, target any, morphName string, opts ...RelationOption) *Descriptor {
	d := newDescriptor(MorphMany, toRef(target), opts)
	d.morphName = morphName
	return t.declare(name, d)
}

// MorphTo declares the inverse polymorphic relation: this type's table
// carries the {morphName}_type / {morphName}_id pair and the concrete
// target type is not known until a row is read. The full candidate list
// is retained for fetch-time dispatch on the stored type value.
func (t *Type) MorphTo(name string, morphName string, candidates ...MorphCandidate) *Descriptor {
	d := newDescriptor(MorphTo, typeRef{}, nil)
	d.morphName = morphName
	d.candidates = candidates
	return t.declare(name, d)
}
