package schema

import "relmap/relerr"

// Keys holds the fully resolved column names for one relation. Which
// fields are populated depends on the relation kind.
type Keys struct {
	// ForeignKey is the column holding the joining key: on the target
	// table for hasOne/hasMany, on the owner table for belongsTo, on the
	// join table (referencing the owner) for belongsToMany.
	ForeignKey string
	// ForeignKeyTarget is the column ForeignKey references when not the
	// identity column.
	ForeignKeyTarget string
	// OtherKey is the join-table column referencing the far side of a
	// belongsToMany relation.
	OtherKey string
	// OtherKeyTarget is the column OtherKey references when not the
	// identity column.
	OtherKeyTarget string
	// JoinTable is the mediating table of a belongsToMany relation, or
	// the interim table of a through relation.
	JoinTable string
	// ThroughForeignKey is the target-table column referencing the
	// interim table of a through relation.
	ThroughForeignKey string
	// TypeColumn and MorphIDColumn are the {morphName}_type and
	// {morphName}_id pair of a morph relation.
	TypeColumn    string
	MorphIDColumn string
	// MorphValue is the stored type value matched by morphOne/morphMany.
	MorphValue string
}

// Keys resolves the relation's key columns, applying naming conventions
// for anything not overridden at declaration. Resolution runs once per
// descriptor and is memoized; the participating table and identity
// metadata are immutable after registration.
func (d *Descriptor) Keys() (Keys, error) {
	d.resolveOnce.Do(func() {
		d.resolved, d.resolveErr = d.resolveKeys()
	})
	return d.resolved, d.resolveErr
}

func (d *Descriptor) resolveKeys() (Keys, error) {
	if d.owner == nil || d.owner.registry == nil {
		return Keys{}, relerr.Configuration(d.ownerName(), "relation %q was not declared through a registered type", d.Name)
	}
	namer := d.owner.registry.namer

	keys := Keys{
		ForeignKey:       d.foreignKey,
		ForeignKeyTarget: d.foreignKeyTarget,
		OtherKey:         d.otherKey,
		OtherKeyTarget:   d.otherKeyTarget,
		JoinTable:        d.joinTable,
		TypeColumn:       d.typeColumn,
		MorphIDColumn:    d.morphIDColumn,
		MorphValue:       d.morphValue,
	}

	if d.Kind.IsMorph() {
		if d.morphName == "" {
			return Keys{}, relerr.Configuration(d.ownerName(), "relation %q: morph relations require a morph name", d.Name)
		}
		if keys.TypeColumn == "" || keys.MorphIDColumn == "" {
			typeCol, idCol := namer.MorphColumns(d.morphName)
			if keys.TypeColumn == "" {
				keys.TypeColumn = typeCol
			}
			if keys.MorphIDColumn == "" {
				keys.MorphIDColumn = idCol
			}
		}
		if d.Kind == MorphTo {
			if len(d.candidates) == 0 {
				return Keys{}, relerr.Configuration(d.ownerName(), "relation %q: morphTo requires at least one candidate", d.Name)
			}
			return keys, nil
		}
		// The stored type value identifies the declaring side.
		if keys.MorphValue == "" {
			keys.MorphValue = d.owner.Table
		}
		return keys, nil
	}

	target, err := d.target.resolve(d.owner.registry)
	if err != nil {
		return Keys{}, err
	}

	switch d.Kind {
	case HasOne, HasMany:
		if keys.ForeignKey == "" {
			keys.ForeignKey = namer.ForeignKeyColumn(d.owner.Table, d.owner.IDColumn)
		}
		if keys.ForeignKeyTarget == "" {
			keys.ForeignKeyTarget = d.owner.IDColumn
		}
	case BelongsTo:
		if keys.ForeignKey == "" {
			keys.ForeignKey = namer.ForeignKeyColumn(target.Table, target.IDColumn)
		}
		if keys.ForeignKeyTarget == "" {
			keys.ForeignKeyTarget = target.IDColumn
		}
	case BelongsToMany:
		if keys.JoinTable == "" {
			keys.JoinTable = namer.JoinTableName(d.owner.Table, target.Table)
		}
		if keys.ForeignKey == "" {
			keys.ForeignKey = namer.ForeignKeyColumn(d.owner.Table, d.owner.IDColumn)
		}
		if keys.OtherKey == "" {
			keys.OtherKey = namer.ForeignKeyColumn(target.Table, target.IDColumn)
		}
		if keys.ForeignKeyTarget == "" {
			keys.ForeignKeyTarget = d.owner.IDColumn
		}
		if keys.OtherKeyTarget == "" {
			keys.OtherKeyTarget = target.IDColumn
		}
	}

	if d.HasThrough() {
		interim, err := d.through.resolve(d.owner.registry)
		if err != nil {
			return Keys{}, err
		}
		keys.ThroughForeignKey = d.throughForeignKey
		if d.Kind == BelongsTo {
			// Reversed two-hop: the owner references the interim, the
			// interim references the target.
			if keys.ThroughForeignKey == "" {
				keys.ThroughForeignKey = namer.ForeignKeyColumn(target.Table, target.IDColumn)
			}
			if keys.OtherKey == "" {
				keys.OtherKey = namer.ForeignKeyColumn(interim.Table, interim.IDColumn)
			}
			if keys.OtherKeyTarget == "" {
				keys.OtherKeyTarget = interim.IDColumn
			}
			if keys.ForeignKeyTarget == "" {
				keys.ForeignKeyTarget = target.IDColumn
			}
		} else {
			// Two-hop join: the interim carries the key referencing the
			// owner, the target carries the key referencing the interim.
			if keys.OtherKey == "" {
				keys.OtherKey = namer.ForeignKeyColumn(d.owner.Table, d.owner.IDColumn)
			}
			if keys.OtherKeyTarget == "" {
				keys.OtherKeyTarget = d.owner.IDColumn
			}
			if keys.ThroughForeignKey == "" {
				keys.ThroughForeignKey = namer.ForeignKeyColumn(interim.Table, interim.IDColumn)
			}
			if keys.ForeignKeyTarget == "" {
				keys.ForeignKeyTarget = interim.IDColumn
			}
		}
		keys.JoinTable = interim.Table
	}

	return keys, nil
}

// OwnerKeyColumn returns the owner-side attribute whose values constrain
// a batched fetch of this relation.
func (d *Descriptor) OwnerKeyColumn() (string, error) {
	keys, err := d.Keys()
	if err != nil {
		return "", err
	}
	switch {
	case d.Kind == MorphTo:
		return keys.MorphIDColumn, nil
	case d.Kind == MorphOne || d.Kind == MorphMany:
		return d.owner.IDColumn, nil
	case d.HasThrough() && d.Kind == BelongsTo:
		return keys.OtherKey, nil
	case d.HasThrough():
		return keys.OtherKeyTarget, nil
	case d.Kind == BelongsToMany:
		return keys.ForeignKeyTarget, nil
	case d.Kind == BelongsTo:
		return keys.ForeignKey, nil
	default: // HasOne, HasMany
		return keys.ForeignKeyTarget, nil
	}
}

// ChildKeyColumn returns the fetched-row column whose values are grouped
// to match children back onto their parents. For joined relations the
// column arrives under the pivot prefix and must be read from the pivot
// sub-record.
func (d *Descriptor) ChildKeyColumn() (string, error) {
	keys, err := d.Keys()
	if err != nil {
		return "", err
	}
	switch {
	case d.Kind == MorphTo:
		target, err := d.target.resolve(d.registry())
		if err == nil && target != nil {
			return target.IDColumn, nil
		}
		return "", relerr.Configuration(d.ownerName(), "relation %q: morphTo child key requires a dispatched candidate", d.Name)
	case d.Kind == MorphOne || d.Kind == MorphMany:
		return keys.MorphIDColumn, nil
	case d.HasThrough() && d.Kind == BelongsTo:
		return keys.OtherKeyTarget, nil
	case d.HasThrough():
		return keys.OtherKey, nil
	case d.Kind == BelongsToMany:
		return keys.ForeignKey, nil
	case d.Kind == BelongsTo:
		return keys.ForeignKeyTarget, nil
	default: // HasOne, HasMany
		return keys.ForeignKey, nil
	}
}

// DispatchCandidate returns a copy of a morphTo descriptor pinned to one
// concrete candidate type, used after partitioning parents by their
// stored type value.
func (d *Descriptor) DispatchCandidate(target *Type) (*Descriptor, error) {
	if d.Kind != MorphTo {
		return nil, relerr.Configuration(d.ownerName(), "relation %q is not morphTo", d.Name)
	}
	keys, err := d.Keys()
	if err != nil {
		return nil, err
	}
	nd := &Descriptor{
		Name:          d.Name,
		Kind:          MorphTo,
		owner:         d.owner,
		target:        typeRef{direct: target},
		morphName:     d.morphName,
		typeColumn:    keys.TypeColumn,
		morphIDColumn: keys.MorphIDColumn,
		candidates:    d.candidates,
	}
	return nd, nil
}
