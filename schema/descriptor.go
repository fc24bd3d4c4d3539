package schema

import (
	"sync"

	"relmap/relerr"
)

// Kind is the closed set of relation variants. Dispatch throughout the
// engine matches on this tag.
type Kind int

const (
	HasOne Kind = iota
	HasMany
	BelongsTo
	BelongsToMany
	MorphOne
	MorphMany
	MorphTo
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case HasOne:
		return "hasOne"
	case HasMany:
		return "hasMany"
	case BelongsTo:
		return "belongsTo"
	case BelongsToMany:
		return "belongsToMany"
	case MorphOne:
		return "morphOne"
	case MorphMany:
		return "morphMany"
	case MorphTo:
		return "morphTo"
	default:
		return "unknown"
	}
}

// IsMorph reports whether the kind is one of the polymorphic variants.
func (k Kind) IsMorph() bool {
	return k == MorphOne || k == MorphMany || k == MorphTo
}

// IsToMany reports whether the relation yields a record set rather than a
// single record.
func (k Kind) IsToMany() bool {
	return k == HasMany || k == BelongsToMany || k == MorphMany
}

// MorphCandidate names one possible concrete target of a morphTo
// relation, optionally with an explicit stored type value.
type MorphCandidate struct {
	ref   typeRef
	value string
}

// Candidate references a morphTo target whose stored type value defaults
// to its table name.
func Candidate(target any) MorphCandidate {
	return MorphCandidate{ref: toRef(target)}
}

// CandidateAs references a morphTo target with an explicit stored type
// value.
func CandidateAs(target any, value string) MorphCandidate {
	return MorphCandidate{ref: toRef(target), value: value}
}

// RelationOption overrides one derived key on a relation declaration.
// Each override replaces only that key; the others keep their defaults.
type RelationOption func(*Descriptor)

// ForeignKey overrides the derived foreign key column.
func ForeignKey(column string) RelationOption {
	return func(d *Descriptor) { d.foreignKey = column }
}

// OtherKey overrides the derived far-side key column of a belongsToMany
// or through relation.
func OtherKey(column string) RelationOption {
	return func(d *Descriptor) { d.otherKey = column }
}

// ForeignKeyTarget overrides the column the foreign key references when
// it is not the identity column.
func ForeignKeyTarget(column string) RelationOption {
	return func(d *Descriptor) { d.foreignKeyTarget = column }
}

// OtherKeyTarget overrides the column the other key references when it is
// not the identity column.
func OtherKeyTarget(column string) RelationOption {
	return func(d *Descriptor) { d.otherKeyTarget = column }
}

// ThroughForeignKey overrides the derived column referencing the
// interim table of a through relation.
func ThroughForeignKey(column string) RelationOption {
	return func(d *Descriptor) { d.throughForeignKey = column }
}

// JoinTable overrides the derived join table name of a belongsToMany
// relation.
func JoinTable(table string) RelationOption {
	return func(d *Descriptor) { d.joinTable = table }
}

// MorphValue overrides the stored type value of a morphOne/morphMany
// relation.
func MorphValue(value string) RelationOption {
	return func(d *Descriptor) { d.morphValue = value }
}

// PivotColumns names extra join-table columns to select alongside the
// key columns of a belongsToMany relation, surfaced on the fetched
// records' pivot sub-records.
func PivotColumns(columns ...string) RelationOption {
	return func(d *Descriptor) { d.pivotColumns = columns }
}

// MorphColumns overrides the derived {morphName}_type / {morphName}_id
// column pair.
func MorphColumns(typeColumn, idColumn string) RelationOption {
	return func(d *Descriptor) {
		d.typeColumn = typeColumn
		d.morphIDColumn = idColumn
	}
}

// Descriptor is an immutable description of one relation: its kind, the
// participating types, and the key columns joining them. Key resolution
// is lazy and memoized; table and identity metadata never change after
// registration, so a resolved descriptor is never recomputed.
type Descriptor struct {
	// Name is the relation name the descriptor was declared under.
	Name string
	// Kind tags the relation variant.
	Kind Kind

	owner  *Type
	target typeRef

	// through is the interim type of a through-modified relation. It is
	// orthogonal to Kind and never set on morph kinds.
	through           typeRef
	throughForeignKey string

	foreignKey       string
	otherKey         string
	foreignKeyTarget string
	otherKeyTarget   string
	joinTable        string
	pivotColumns     []string

	morphName     string
	typeColumn    string
	morphIDColumn string
	morphValue    string
	candidates    []MorphCandidate

	resolveOnce sync.Once
	resolved    Keys
	resolveErr  error
}

func newDescriptor(kind Kind, target typeRef, opts []RelationOption) *Descriptor {
	d := &Descriptor{Kind: kind, target: target}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Owner returns the declaring type.
func (d *Descriptor) Owner() *Type { return d.owner }

// PivotColumns returns the extra join-table columns declared for pivot
// extraction.
func (d *Descriptor) PivotColumns() []string { return d.pivotColumns }

// HasThrough reports whether the relation routes via an interim type.
func (d *Descriptor) HasThrough() bool { return !d.through.isZero() }

// IsJoined reports whether fetched rows carry join-table columns that
// need pivot extraction: belongsToMany and any through-modified kind.
func (d *Descriptor) IsJoined() bool {
	return d.Kind == BelongsToMany || d.HasThrough()
}

// Through returns a copy of the descriptor routed via the interim type
// instead of a direct foreign key join. Morph kinds cannot be
// through-modified.
func (d *Descriptor) Through(interim any, opts ...RelationOption) (*Descriptor, error) {
	if d.Kind.IsMorph() {
		return nil, relerr.Configuration(d.ownerName(), "through cannot modify a %s relation", d.Kind)
	}
	nd := &Descriptor{
		Name:             d.Name,
		Kind:             d.Kind,
		owner:            d.owner,
		target:           d.target,
		through:          toRef(interim),
		foreignKey:       d.foreignKey,
		otherKey:         d.otherKey,
		foreignKeyTarget: d.foreignKeyTarget,
		otherKeyTarget:   d.otherKeyTarget,
		joinTable:        d.joinTable,
		pivotColumns:     d.pivotColumns,
	}
	for _, opt := range opts {
		opt(nd)
	}
	if d.owner != nil {
		d.owner.relations[d.Name] = nd
	}
	return nd, nil
}

// Target resolves the related type. Fails for an undispatched morphTo,
// whose concrete target is only known per row.
func (d *Descriptor) Target() (*Type, error) {
	if d.Kind == MorphTo && d.target.isZero() {
		return nil, relerr.Configuration(d.ownerName(), "morphTo has no single target type")
	}
	return d.target.resolve(d.registry())
}

// Interim resolves the interim type of a through-modified relation.
func (d *Descriptor) Interim() (*Type, error) {
	if !d.HasThrough() {
		return nil, relerr.Configuration(d.ownerName(), "relation %q has no through type", d.Name)
	}
	return d.through.resolve(d.registry())
}

// Candidates returns the declared morphTo candidate types in
// declaration order.
func (d *Descriptor) Candidates() ([]*Type, error) {
	if d.Kind != MorphTo {
		return nil, relerr.Configuration(d.ownerName(), "relation %q is not morphTo", d.Name)
	}
	types := make([]*Type, 0, len(d.candidates))
	for _, c := range d.candidates {
		t, err := c.ref.resolve(d.registry())
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// CandidateFor resolves the morphTo candidate whose stored type value
// matches. The second return is false when no candidate matches; a
// mismatched stored value is not an error.
func (d *Descriptor) CandidateFor(value string) (*Type, bool, error) {
	if d.Kind != MorphTo {
		return nil, false, relerr.Configuration(d.ownerName(), "relation %q is not morphTo", d.Name)
	}
	for _, c := range d.candidates {
		t, err := c.ref.resolve(d.registry())
		if err != nil {
			return nil, false, err
		}
		candidateValue := c.value
		if candidateValue == "" {
			candidateValue = t.Table
		}
		if candidateValue == value {
			return t, true, nil
		}
	}
	return nil, false, nil
}

func (d *Descriptor) registry() *Registry {
	if d.owner != nil {
		return d.owner.registry
	}
	return nil
}

func (d *Descriptor) ownerName() string {
	if d.owner != nil {
		return d.owner.Name
	}
	return ""
}
