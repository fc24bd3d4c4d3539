package constraint

import (
	"relmap/record"
	"relmap/relerr"
	"relmap/schema"
)

// ForWrite prepares rec for persistence as a member of the owner's
// relation: the joining key attributes are set from the owner's current
// key values. Fails when the needed owner key is unset, since the child
// row could not reference its parent.
func (b *Bridge) ForWrite(owner *record.Record, rec *record.Record, d *schema.Descriptor) error {
	ownerType := d.Owner()
	keys, err := d.Keys()
	if err != nil {
		return err
	}
	if d.HasThrough() {
		return relerr.Configuration(ownerType.Name, "relation %q: through relations have no writable join of their own", d.Name)
	}

	switch d.Kind {
	case schema.HasOne, schema.HasMany:
		ownerKey := owner.Get(keys.ForeignKeyTarget)
		if ownerKey == nil {
			return relerr.Configuration(ownerType.Name, "relation %q: owner %s is unset", d.Name, keys.ForeignKeyTarget)
		}
		rec.Set(keys.ForeignKey, ownerKey)
	case schema.MorphOne, schema.MorphMany:
		if !owner.HasID() {
			return relerr.Configuration(ownerType.Name, "relation %q: owner identity is unset", d.Name)
		}
		rec.Set(keys.TypeColumn, keys.MorphValue)
		rec.Set(keys.MorphIDColumn, owner.ID())
	case schema.BelongsTo:
		// rec is the parent here; the owner's own row carries the key.
		targetKey := rec.Get(keys.ForeignKeyTarget)
		if targetKey == nil {
			return relerr.Configuration(ownerType.Name, "relation %q: related %s is unset", d.Name, keys.ForeignKeyTarget)
		}
		owner.Set(keys.ForeignKey, targetKey)
	case schema.BelongsToMany:
		return relerr.Configuration(ownerType.Name, "relation %q: belongsToMany rows are written through the pivot manager", d.Name)
	case schema.MorphTo:
		return relerr.Configuration(ownerType.Name, "relation %q: morphTo members are not written through the relation", d.Name)
	}
	return nil
}
