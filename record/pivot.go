package record

// Pivot carries the join-table attributes of a record fetched through a
// belongsToMany or through relation. It is owned by its parent record for
// the lifetime of one fetch result and replaced wholesale on re-fetch.
type Pivot struct {
	attrs map[string]any
}

// NewPivot creates a pivot sub-record from extracted join-table columns.
func NewPivot(attrs map[string]any) *Pivot {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return &Pivot{attrs: attrs}
}

// Get returns the named pivot attribute, or nil when absent.
func (p *Pivot) Get(name string) any { return p.attrs[name] }

// Attributes returns the live pivot attribute map.
func (p *Pivot) Attributes() map[string]any { return p.attrs }
