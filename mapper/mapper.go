// Package mapper is the top-level persistence API: fetching records by
// attribute predicates, saving and destroying them, and eager-loading
// their relations, all through one registry and one store handle.
package mapper

import (
	"context"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"relmap/constraint"
	"relmap/eager"
	"relmap/observability"
	"relmap/pivot"
	"relmap/record"
	"relmap/relerr"
	"relmap/schema"
	"relmap/store"
)

// Timestamp column names written for types with Timestamps enabled.
const (
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
)

// Mapper ties a schema registry to a store and exposes record
// operations over the registered types.
type Mapper struct {
	registry *schema.Registry
	db       *store.DB
	bridge   *constraint.Bridge
	loader   *eager.Loader
	pivots   *pivot.Manager
	hooks    hookSet
	now      func() time.Time
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) { m.now = now }
}

// WithMetrics records eager-load metrics on the loader.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Mapper) {
		m.loader = eager.New(m.bridge, eager.WithMetrics(metrics))
	}
}

// New creates a mapper over the registry and store.
func New(registry *schema.Registry, db *store.DB, opts ...Option) *Mapper {
	bridge := constraint.New(db)
	m := &Mapper{
		registry: registry,
		db:       db,
		bridge:   bridge,
		loader:   eager.New(bridge),
		pivots:   pivot.New(bridge),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the schema registry the mapper operates over.
func (m *Mapper) Registry() *schema.Registry { return m.registry }

// Bridge returns the underlying constraint bridge for callers that
// build custom queries.
func (m *Mapper) Bridge() *constraint.Bridge { return m.bridge }

// Pivots returns the join-table manager.
func (m *Mapper) Pivots() *pivot.Manager { return m.pivots }

// Hooks returns the mutable lifecycle hook lists of a type.
func (m *Mapper) Hooks(t *schema.Type) *Hooks { return m.hooks.forType(t) }

// Transaction runs fn inside a store transaction, committing on nil and
// rolling back on error or panic. Pass the transaction on through
// constraint.Options so every operation inside observes it.
func (m *Mapper) Transaction(ctx context.Context, fn func(tx *store.Tx) error) error {
	return m.db.Transaction(ctx, fn)
}

// FetchOptions shape one fetch: the equality predicate, extra query
// filters, and the relation branches to eager-load onto the results.
type FetchOptions struct {
	constraint.Options
	// Where matches attributes by equality; slice values become IN.
	Where map[string]any
	// Filters narrow the query beyond equality.
	Filters []constraint.Filter
	// Related names the relation branches loaded onto the results.
	Related []eager.Request
}

func (m *Mapper) predicate(t *schema.Type, where map[string]any) sq.Sqlizer {
	if len(where) == 0 {
		return nil
	}
	columns := make([]string, 0, len(where))
	for col := range where {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	and := make(sq.And, 0, len(columns))
	for _, col := range columns {
		and = append(and, sq.Eq{m.bridge.Qualify(t.Table, col): where[col]})
	}
	return and
}

// FetchAll retrieves every record matching the options, with requested
// relations loaded. Require turns an empty result into a not-found
// error.
func (m *Mapper) FetchAll(ctx context.Context, t *schema.Type, fo FetchOptions) (*record.Set, error) {
	hooks := m.hooks.forType(t)
	if err := runHooks(ctx, hooks.BeforeFetch, record.New(t, nil)); err != nil {
		return nil, err
	}
	set, err := m.bridge.Fetch(ctx, t, m.predicate(t, fo.Where), fo.Options, fo.Filters...)
	if err != nil {
		return nil, err
	}
	if fo.Require && set.Empty() {
		return nil, relerr.NotFound(t.Name)
	}
	if len(fo.Related) > 0 {
		// Branch queries run against the child tables, so the caller's
		// column restriction stays on the parent fetch only.
		branchOpts := fo.Options
		branchOpts.Columns = nil
		if err := m.loader.Load(ctx, set, branchOpts, fo.Related...); err != nil {
			return nil, err
		}
	}
	// After-fetch hooks observe records with their relations attached.
	for _, r := range set.Records() {
		if err := runHooks(ctx, hooks.AfterFetch, r); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Fetch retrieves the first record matching the options, or nil when
// nothing matches and Require is unset.
func (m *Mapper) Fetch(ctx context.Context, t *schema.Type, fo FetchOptions) (*record.Record, error) {
	fo.Filters = append(fo.Filters, func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Limit(1)
	})
	set, err := m.FetchAll(ctx, t, fo)
	if err != nil {
		return nil, err
	}
	return set.First(), nil
}

// Find retrieves one record by identity.
func (m *Mapper) Find(ctx context.Context, t *schema.Type, id any, fo FetchOptions) (*record.Record, error) {
	if fo.Where == nil {
		fo.Where = make(map[string]any, 1)
	}
	fo.Where[t.IDColumn] = id
	return m.Fetch(ctx, t, fo)
}

// Count returns the number of records matching the predicate.
func (m *Mapper) Count(ctx context.Context, t *schema.Type, fo FetchOptions) (int64, error) {
	return m.bridge.Count(ctx, t, m.predicate(t, fo.Where), fo.Options)
}

// Load eager-loads relation branches onto an already fetched set.
func (m *Mapper) Load(ctx context.Context, set *record.Set, opts constraint.Options, requests ...eager.Request) error {
	return m.loader.Load(ctx, set, opts, requests...)
}

// Save persists the record: an insert when it has no identity yet, an
// update of its row otherwise. Timestamps and generated identities are
// stamped onto the record before the write. With Require set, an update
// matching no row is a not-found error.
func (m *Mapper) Save(ctx context.Context, r *record.Record, opts constraint.Options) error {
	t := r.Type()
	hooks := m.hooks.forType(t)
	if err := runHooks(ctx, hooks.BeforeSave, r); err != nil {
		return err
	}

	inserting := !r.HasID()
	now := m.now().UTC()
	if t.Timestamps {
		if inserting && r.Get(CreatedAtColumn) == nil {
			r.Set(CreatedAtColumn, now)
		}
		r.Set(UpdatedAtColumn, now)
	}

	if inserting {
		if t.UUIDIdentity {
			r.Set(t.IDColumn, uuid.NewString())
		}
		id, err := m.bridge.Insert(ctx, t.Name, t.Table, r.Attributes(), opts)
		if err != nil {
			return err
		}
		if !r.HasID() && id != 0 {
			r.Set(t.IDColumn, id)
		}
	} else {
		attrs := make(map[string]any, len(r.Attributes()))
		for name, value := range r.Attributes() {
			if name == t.IDColumn {
				continue
			}
			attrs[name] = value
		}
		where := sq.Eq{m.bridge.Quote(t.IDColumn): r.ID()}
		affected, err := m.bridge.Update(ctx, t.Name, t.Table, attrs, where, opts)
		if err != nil {
			return err
		}
		if opts.Require && affected == 0 {
			return relerr.NotFound(t.Name)
		}
	}

	return runHooks(ctx, hooks.AfterSave, r)
}

// SaveRelated persists child as a member of owner's relation: the
// joining keys are stamped and the row carrying them is written. For
// belongsTo the key lands on the owner, so the owner's row is updated;
// the child is saved first when it has no identity yet.
func (m *Mapper) SaveRelated(ctx context.Context, owner *record.Record, relation string, child *record.Record, opts constraint.Options) error {
	d, err := owner.Type().Relation(relation)
	if err != nil {
		return err
	}
	if d.Kind == schema.BelongsTo {
		if !child.HasID() {
			if err := m.Save(ctx, child, opts); err != nil {
				return err
			}
		}
		if err := m.bridge.ForWrite(owner, child, d); err != nil {
			return err
		}
		return m.Save(ctx, owner, opts)
	}
	if err := m.bridge.ForWrite(owner, child, d); err != nil {
		return err
	}
	return m.Save(ctx, child, opts)
}

// Destroy deletes the record's row and wipes its attributes. With
// Require set, a delete matching no row is a not-found error.
func (m *Mapper) Destroy(ctx context.Context, r *record.Record, opts constraint.Options) error {
	t := r.Type()
	if !r.HasID() {
		return relerr.Configuration(t.Name, "destroy requires a persisted record")
	}
	hooks := m.hooks.forType(t)
	if err := runHooks(ctx, hooks.BeforeDestroy, r); err != nil {
		return err
	}
	where := sq.Eq{m.bridge.Quote(t.IDColumn): r.ID()}
	affected, err := m.bridge.Delete(ctx, t.Name, t.Table, where, opts)
	if err != nil {
		return err
	}
	if opts.Require && affected == 0 {
		return relerr.NotFound(t.Name)
	}
	if err := runHooks(ctx, hooks.AfterDestroy, r); err != nil {
		return err
	}
	r.Clear()
	return nil
}
