// Package record holds the in-memory data shapes produced by fetches: a
// Record with its attribute map, the ordered RecordSet, and the Pivot
// sub-record carrying join-table attributes.
package record

import (
	"fmt"

	"relmap/schema"
)

// Record is a single addressable entity: an attribute map plus the type
// it belongs to. A record reached through a relation traversal also
// carries the descriptor it was reached by.
type Record struct {
	typ        *schema.Type
	attrs      map[string]any
	related    map[string]any
	pivot      *Pivot
	descriptor *schema.Descriptor
}

// New creates a record of the given type with initial attributes.
func New(t *schema.Type, attrs map[string]any) *Record {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return &Record{typ: t, attrs: attrs}
}

// Type returns the record's registered type.
func (r *Record) Type() *schema.Type { return r.typ }

// Get returns the named attribute, or nil when absent.
func (r *Record) Get(name string) any { return r.attrs[name] }

// Set assigns the named attribute.
func (r *Record) Set(name string, value any) { r.attrs[name] = value }

// Attributes returns the live attribute map.
func (r *Record) Attributes() map[string]any { return r.attrs }

// ID returns the identity attribute value, or nil when unset.
func (r *Record) ID() any { return r.attrs[r.typ.IDColumn] }

// HasID reports whether the identity attribute is set.
func (r *Record) HasID() bool {
	v, ok := r.attrs[r.typ.IDColumn]
	return ok && v != nil
}

// Related returns the loaded relation under name: a *Record for to-one
// relations (nil-valued when no row matched), a *Set for to-many
// relations. Returns nil when the relation was never loaded.
func (r *Record) Related(name string) any { return r.related[name] }

// RelatedRecord returns the loaded to-one relation under name. ok
// reports whether the slot was loaded at all; a loaded slot with no
// matching row yields (nil, true). Prefer this over Related for to-one
// slots, which hold a typed nil pointer when unmatched.
func (r *Record) RelatedRecord(name string) (*Record, bool) {
	v, ok := r.related[name]
	if !ok {
		return nil, false
	}
	rec, _ := v.(*Record)
	return rec, true
}

// RelatedSet returns the loaded to-many relation under name, or an empty
// set when it was never loaded.
func (r *Record) RelatedSet(name string) *Set {
	if s, ok := r.related[name].(*Set); ok {
		return s
	}
	return &Set{}
}

// SetRelated attaches eager-load results under the relation name. Each
// slot is written at most once per eager-load call.
func (r *Record) SetRelated(name string, value any) {
	if r.related == nil {
		r.related = make(map[string]any)
	}
	r.related[name] = value
}

// Pivot returns the join-table sub-record attached by the last fetch, or
// nil for records not reached through a joined relation.
func (r *Record) Pivot() *Pivot { return r.pivot }

// SetPivot replaces the pivot sub-record wholesale.
func (r *Record) SetPivot(p *Pivot) { r.pivot = p }

// Descriptor returns how this record was reached, if it is the product
// of a relation traversal.
func (r *Record) Descriptor() *schema.Descriptor { return r.descriptor }

// SetDescriptor records how this record was reached.
func (r *Record) SetDescriptor(d *schema.Descriptor) { r.descriptor = d }

// Clear wipes all attributes. Called after a successful destroy.
func (r *Record) Clear() {
	r.attrs = make(map[string]any)
	r.related = nil
	r.pivot = nil
}

// KeyString normalizes an attribute value for use as a grouping key.
// Numeric driver values of different widths compare equal through it.
func KeyString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}
