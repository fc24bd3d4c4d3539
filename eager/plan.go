package eager

import (
	"strings"

	"relmap/constraint"
	"relmap/relerr"
	"relmap/schema"
)

// Request names one relation path to load. Nested relations are dotted:
// "books.reviews" loads books onto the owners and reviews onto those
// books. The filter, when set, narrows the query of the path's terminal
// branch only.
type Request struct {
	Path   string
	Filter constraint.Filter
}

// Rel is shorthand for an unfiltered request.
func Rel(path string) Request { return Request{Path: path} }

// RelWith pairs a path with a branch filter.
func RelWith(path string, filter constraint.Filter) Request {
	return Request{Path: path, Filter: filter}
}

// node is one branch of the load plan. Requests sharing a prefix share
// the prefix's nodes, so "books" and "books.reviews" cost one books
// query between them.
type node struct {
	name     string
	filters  []constraint.Filter
	children map[string]*node
	order    []string
}

func newNode(name string) *node {
	return &node{name: name, children: make(map[string]*node)}
}

func (n *node) child(name string) *node {
	c, ok := n.children[name]
	if !ok {
		c = newNode(name)
		n.children[name] = c
		n.order = append(n.order, name)
	}
	return c
}

func buildPlan(typeName string, requests []Request) (*node, error) {
	root := newNode("")
	for _, req := range requests {
		if req.Path == "" {
			return nil, relerr.Configuration(typeName, "empty relation path")
		}
		cur := root
		for _, segment := range strings.Split(req.Path, ".") {
			if segment == "" {
				return nil, relerr.Configuration(typeName, "malformed relation path %q", req.Path)
			}
			cur = cur.child(segment)
		}
		if req.Filter != nil {
			cur.filters = append(cur.filters, req.Filter)
		}
	}
	return root, nil
}

// validate walks the whole plan against the declared relations so that
// an unknown name fails before any query runs. Branches nested under a
// morphTo node must exist on every candidate, since any of them may be
// dispatched at load time.
func validate(t *schema.Type, n *node) error {
	for _, name := range n.order {
		child := n.children[name]
		d, err := t.Relation(name)
		if err != nil {
			return err
		}
		if len(child.order) == 0 {
			continue
		}
		if d.Kind == schema.MorphTo {
			candidates, err := d.Candidates()
			if err != nil {
				return err
			}
			for _, candidate := range candidates {
				if err := validate(candidate, child); err != nil {
					return err
				}
			}
			continue
		}
		target, err := d.Target()
		if err != nil {
			return err
		}
		if err := validate(target, child); err != nil {
			return err
		}
	}
	return nil
}
