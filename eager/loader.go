// Package eager loads named relation branches onto whole record sets.
// Each branch costs one query regardless of how many records the set
// holds: the owners' key values are collected into a single constrained
// select and the results are grouped back onto their owners. Nested
// branches repeat the same step per level, so a load of a.b.c over any
// number of records issues exactly three queries.
package eager

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"relmap/constraint"
	"relmap/observability"
	"relmap/record"
	"relmap/schema"
)

// Loader executes eager-load plans against a constraint bridge.
type Loader struct {
	bridge  *constraint.Bridge
	metrics *observability.Metrics

	// mu serializes attachment onto parent records shared between
	// concurrently loaded sibling branches.
	mu sync.Mutex
}

// Option configures a Loader.
type Option func(*Loader)

// WithMetrics records per-branch eager-load metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// New creates a loader over the given bridge.
func New(bridge *constraint.Bridge, opts ...Option) *Loader {
	l := &Loader{bridge: bridge}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches every requested branch onto the records of set. Unknown
// relation names fail before any query runs. Sibling branches load
// concurrently; nested branches load after their parent level arrives.
// Every named slot is written on every record: loaded-but-empty to-many
// slots hold an empty set, unmatched to-one slots a nil record.
func (l *Loader) Load(ctx context.Context, set *record.Set, opts constraint.Options, requests ...Request) error {
	if len(requests) == 0 {
		return nil
	}
	plan, err := buildPlan(set.Type().Name, requests)
	if err != nil {
		return err
	}
	if err := validate(set.Type(), plan); err != nil {
		return err
	}
	if set.Empty() {
		return nil
	}
	return l.loadLevel(ctx, set, plan, opts)
}

func (l *Loader) loadLevel(ctx context.Context, owners *record.Set, n *node, opts constraint.Options) error {
	if len(n.order) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range n.order {
		branch := n.children[name]
		g.Go(func() error {
			return l.loadBranch(ctx, owners, branch, opts)
		})
	}
	return g.Wait()
}

func (l *Loader) loadBranch(ctx context.Context, owners *record.Set, n *node, opts constraint.Options) error {
	d, err := owners.Type().Relation(n.name)
	if err != nil {
		return err
	}
	if d.Kind == schema.MorphTo {
		return l.loadMorphTo(ctx, owners, d, n, opts)
	}

	ownerColumn, err := d.OwnerKeyColumn()
	if err != nil {
		return err
	}
	if len(owners.Keys(ownerColumn)) == 0 {
		// No owner carries a key value: attach the empty defaults
		// without touching the store.
		target, err := d.Target()
		if err != nil {
			return err
		}
		return l.attach(owners, d, record.NewSet(target), ownerColumn)
	}

	children, err := l.bridge.FetchRelated(ctx, owners, d, opts, n.filters...)
	if err != nil {
		return err
	}
	l.observe(ctx, n.name, owners.Len())
	if err := l.loadLevel(ctx, children, n, opts); err != nil {
		return err
	}
	return l.attach(owners, d, children, ownerColumn)
}

// loadMorphTo partitions the owners by their stored type value and loads
// each partition against its dispatched candidate, one query per
// distinct value. Owners with an unset morph reference get a nil slot.
func (l *Loader) loadMorphTo(ctx context.Context, owners *record.Set, d *schema.Descriptor, n *node, opts constraint.Options) error {
	keys, err := d.Keys()
	if err != nil {
		return err
	}
	partitions := owners.GroupBy(keys.TypeColumn)
	values := make([]string, 0, len(partitions))
	for value := range partitions {
		values = append(values, value)
	}
	sort.Strings(values)

	for _, value := range values {
		target, ok, err := d.CandidateFor(value)
		if err != nil {
			return err
		}
		if !ok {
			// A stored value no candidate declares resolves to nothing,
			// not an error; the nil-slot sweep below covers the owners.
			continue
		}
		dispatched, err := d.DispatchCandidate(target)
		if err != nil {
			return err
		}
		subset := record.NewSet(owners.Type(), partitions[value]...)
		if len(subset.Keys(keys.MorphIDColumn)) == 0 {
			if err := l.attach(subset, dispatched, record.NewSet(target), keys.MorphIDColumn); err != nil {
				return err
			}
			continue
		}
		children, err := l.bridge.FetchRelated(ctx, subset, dispatched, opts, n.filters...)
		if err != nil {
			return err
		}
		l.observe(ctx, n.name, subset.Len())
		if err := l.loadLevel(ctx, children, n, opts); err != nil {
			return err
		}
		if err := l.attach(subset, dispatched, children, keys.MorphIDColumn); err != nil {
			return err
		}
	}

	// Owners left without a slot — unset morph reference, or a stored
	// value no candidate declares — resolve to nil.
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, owner := range owners.Records() {
		if owner.Related(d.Name) == nil {
			owner.SetRelated(d.Name, (*record.Record)(nil))
		}
	}
	return nil
}

// attach groups the fetched children by the joining key and writes them
// onto their owners. Joined relations carry the key under the pivot
// sub-record rather than the base attributes.
func (l *Loader) attach(owners *record.Set, d *schema.Descriptor, children *record.Set, ownerColumn string) error {
	childColumn, err := d.ChildKeyColumn()
	if err != nil {
		return err
	}
	joined := d.IsJoined()
	grouped := make(map[string][]*record.Record)
	for _, child := range children.Records() {
		var v any
		if joined {
			if p := child.Pivot(); p != nil {
				v = p.Get(childColumn)
			}
		} else {
			v = child.Get(childColumn)
		}
		if v == nil {
			continue
		}
		grouped[record.KeyString(v)] = append(grouped[record.KeyString(v)], child)
	}

	target := children.Type()
	toMany := d.Kind.IsToMany()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, owner := range owners.Records() {
		var matches []*record.Record
		if v := owner.Get(ownerColumn); v != nil {
			matches = grouped[record.KeyString(v)]
		}
		switch {
		case toMany:
			sub := record.NewSet(target, matches...)
			sub.SetDescriptor(d)
			owner.SetRelated(d.Name, sub)
		case len(matches) == 0:
			owner.SetRelated(d.Name, (*record.Record)(nil))
		default:
			owner.SetRelated(d.Name, matches[0])
		}
	}
	return nil
}

func (l *Loader) observe(ctx context.Context, relation string, parents int) {
	if l.metrics != nil {
		l.metrics.RecordEagerBranch(ctx, relation, parents)
	}
}
