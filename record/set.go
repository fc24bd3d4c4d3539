package record

import "relmap/schema"

// Set is an ordered sequence of records of one type, optionally carrying
// the descriptor it was produced by.
type Set struct {
	typ        *schema.Type
	records    []*Record
	descriptor *schema.Descriptor
}

// NewSet creates a set of the given type.
func NewSet(t *schema.Type, records ...*Record) *Set {
	return &Set{typ: t, records: records}
}

// Type returns the set's record type, or nil for an empty untyped set.
func (s *Set) Type() *schema.Type { return s.typ }

// Records returns the underlying slice in order.
func (s *Set) Records() []*Record { return s.records }

// Len returns the number of records.
func (s *Set) Len() int { return len(s.records) }

// Empty reports whether the set has no records.
func (s *Set) Empty() bool { return len(s.records) == 0 }

// First returns the first record, or nil when empty.
func (s *Set) First() *Record {
	if len(s.records) == 0 {
		return nil
	}
	return s.records[0]
}

// Add appends a record.
func (s *Set) Add(r *Record) {
	if s.typ == nil {
		s.typ = r.typ
	}
	s.records = append(s.records, r)
}

// Descriptor returns how this set was reached, if it is the product of a
// relation traversal.
func (s *Set) Descriptor() *schema.Descriptor { return s.descriptor }

// SetDescriptor records how this set was reached.
func (s *Set) SetDescriptor(d *schema.Descriptor) { s.descriptor = d }

// Keys returns the distinct non-nil values of the named attribute across
// the set, in first-seen order.
func (s *Set) Keys(column string) []any {
	seen := make(map[string]struct{}, len(s.records))
	values := make([]any, 0, len(s.records))
	for _, r := range s.records {
		v := r.Get(column)
		if v == nil {
			continue
		}
		key := KeyString(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		values = append(values, v)
	}
	return values
}

// GroupBy partitions the set's records by the string-normalized value of
// the named attribute. Records with a nil value are dropped.
func (s *Set) GroupBy(column string) map[string][]*Record {
	grouped := make(map[string][]*Record)
	for _, r := range s.records {
		v := r.Get(column)
		if v == nil {
			continue
		}
		key := KeyString(v)
		grouped[key] = append(grouped[key], r)
	}
	return grouped
}
