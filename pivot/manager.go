// Package pivot writes join-table rows for belongsToMany relations:
// attaching, detaching, and updating the extra columns a membership row
// carries. Only direct belongsToMany relations have a join table of
// their own; every other kind rejects these operations.
package pivot

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"relmap/constraint"
	"relmap/record"
	"relmap/relerr"
	"relmap/schema"
)

// Manager executes join-table writes through a constraint bridge.
type Manager struct {
	bridge *constraint.Bridge
}

// New creates a manager over the given bridge.
func New(bridge *constraint.Bridge) *Manager {
	return &Manager{bridge: bridge}
}

// writable resolves the named relation and checks that its join table
// can be written: the relation is a direct belongsToMany and the owner
// already has the key value the join rows reference.
func (m *Manager) writable(owner *record.Record, relation string) (*schema.Descriptor, schema.Keys, error) {
	d, err := owner.Type().Relation(relation)
	if err != nil {
		return nil, schema.Keys{}, err
	}
	if d.Kind != schema.BelongsToMany || d.HasThrough() {
		return nil, schema.Keys{}, relerr.Configuration(owner.Type().Name,
			"relation %q has no writable join table", relation)
	}
	keys, err := d.Keys()
	if err != nil {
		return nil, schema.Keys{}, err
	}
	if owner.Get(keys.ForeignKeyTarget) == nil {
		return nil, schema.Keys{}, relerr.Configuration(owner.Type().Name,
			"relation %q: owner %s is unset, save the owner first", relation, keys.ForeignKeyTarget)
	}
	return d, keys, nil
}

// targetKey extracts the join value for one attach target, which may be
// a related record or a bare key value.
func (m *Manager) targetKey(owner *record.Record, relation string, keys schema.Keys, target any) (any, error) {
	if r, ok := target.(*record.Record); ok {
		v := r.Get(keys.OtherKeyTarget)
		if v == nil {
			return nil, relerr.Configuration(owner.Type().Name,
				"relation %q: target %s is unset, save the target first", relation, keys.OtherKeyTarget)
		}
		return v, nil
	}
	if target == nil {
		return nil, relerr.Configuration(owner.Type().Name, "relation %q: nil attach target", relation)
	}
	return target, nil
}

// Attach inserts one join row per target, carrying any extra pivot
// attributes. Targets may be records or bare key values. A duplicate
// membership surfaces as the store's uniqueness violation.
func (m *Manager) Attach(ctx context.Context, owner *record.Record, relation string, targets []any, attrs map[string]any, opts constraint.Options) error {
	_, keys, err := m.writable(owner, relation)
	if err != nil {
		return err
	}
	ownerKey := owner.Get(keys.ForeignKeyTarget)
	for _, target := range targets {
		id, err := m.targetKey(owner, relation, keys, target)
		if err != nil {
			return err
		}
		row := make(map[string]any, len(attrs)+2)
		for name, value := range attrs {
			row[name] = value
		}
		row[keys.ForeignKey] = ownerKey
		row[keys.OtherKey] = id
		if _, err := m.bridge.Insert(ctx, owner.Type().Name, keys.JoinTable, row, opts); err != nil {
			return err
		}
	}
	return nil
}

// Detach deletes the join rows for the given targets, or every row of
// the owner when no targets are given. Detaching a membership that does
// not exist is not an error; the affected count reports what was
// removed.
func (m *Manager) Detach(ctx context.Context, owner *record.Record, relation string, targets []any, opts constraint.Options) (int64, error) {
	_, keys, err := m.writable(owner, relation)
	if err != nil {
		return 0, err
	}
	where := sq.And{sq.Eq{m.bridge.Quote(keys.ForeignKey): owner.Get(keys.ForeignKeyTarget)}}
	if len(targets) > 0 {
		ids := make([]any, 0, len(targets))
		for _, target := range targets {
			id, err := m.targetKey(owner, relation, keys, target)
			if err != nil {
				return 0, err
			}
			ids = append(ids, id)
		}
		where = append(where, sq.Eq{m.bridge.Quote(keys.OtherKey): ids})
	}
	return m.bridge.Delete(ctx, owner.Type().Name, keys.JoinTable, where, opts)
}

// Update rewrites the extra pivot attributes of one membership row, or
// of every row of the owner when target is nil. The affected count
// reports how many rows changed.
func (m *Manager) Update(ctx context.Context, owner *record.Record, relation string, target any, attrs map[string]any, opts constraint.Options) (int64, error) {
	_, keys, err := m.writable(owner, relation)
	if err != nil {
		return 0, err
	}
	where := sq.And{sq.Eq{m.bridge.Quote(keys.ForeignKey): owner.Get(keys.ForeignKeyTarget)}}
	if target != nil {
		id, err := m.targetKey(owner, relation, keys, target)
		if err != nil {
			return 0, err
		}
		where = append(where, sq.Eq{m.bridge.Quote(keys.OtherKey): id})
	}
	return m.bridge.Update(ctx, owner.Type().Name, keys.JoinTable, attrs, where, opts)
}
