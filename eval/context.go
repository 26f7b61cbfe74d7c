package eval

import (
	"slices"
)

// Context is the provenance of a string: the set of store paths its
// contents were derived from. The zero Context is empty.
type Context struct {
	elems []string
}

// NewContext returns a context holding the given elements.
func NewContext(elems ...string) Context {
	var c Context
	for _, e := range elems {
		c = c.With(e)
	}
	return c
}

// With returns a copy of c that also contains elem.
func (c Context) With(elem string) Context {
	i, found := slices.BinarySearch(c.elems, elem)
	if found {
		return c
	}
	out := make([]string, 0, len(c.elems)+1)
	out = append(out, c.elems[:i]...)
	out = append(out, elem)
	out = append(out, c.elems[i:]...)
	return Context{elems: out}
}

// Union returns the elements of both contexts.
func (c Context) Union(o Context) Context {
	for _, e := range o.elems {
		c = c.With(e)
	}
	return c
}

// Empty reports whether the context has no elements.
func (c Context) Empty() bool { return len(c.elems) == 0 }

// Len returns the number of elements.
func (c Context) Len() int { return len(c.elems) }

// Elems returns the elements in sorted order.
func (c Context) Elems() []string { return slices.Clone(c.elems) }

// Clone returns an independent copy.
func (c Context) Clone() Context {
	return Context{elems: slices.Clone(c.elems)}
}
