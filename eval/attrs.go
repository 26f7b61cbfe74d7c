package eval

import (
	"sort"
	"strings"
)

// Attr is one name/value pair of an attribute set.
type Attr struct {
	Name  string
	Value *Value
}

// Bindings is the immutable, name-sorted attribute list of a set.
type Bindings struct {
	attrs []Attr
}

var emptyBindings = &Bindings{}

// Len returns the number of attributes.
func (b *Bindings) Len() int { return len(b.attrs) }

// At returns the attribute at position i in lexicographic name order.
func (b *Bindings) At(i int) Attr { return b.attrs[i] }

// Get looks up an attribute by name.
func (b *Bindings) Get(name string) (*Value, bool) {
	i := sort.Search(len(b.attrs), func(i int) bool {
		return b.attrs[i].Name >= name
	})
	if i < len(b.attrs) && b.attrs[i].Name == name {
		return b.attrs[i].Value, true
	}
	return nil, false
}

// Names returns the attribute names in order.
func (b *Bindings) Names() []string {
	names := make([]string, len(b.attrs))
	for i, a := range b.attrs {
		names[i] = a.Name
	}
	return names
}

// Builder accumulates attributes for a new set. When a name is inserted
// more than once the last insertion wins.
type Builder struct {
	symbols *SymbolTable
	attrs   []Attr
}

// NewBuilder returns a builder sized for n attributes. Names are interned
// in symbols when it is non-nil.
func NewBuilder(symbols *SymbolTable, n int) *Builder {
	return &Builder{symbols: symbols, attrs: make([]Attr, 0, n)}
}

// Insert adds an attribute.
func (b *Builder) Insert(name string, v *Value) {
	if b.symbols != nil {
		name = b.symbols.Intern(name)
	}
	b.attrs = append(b.attrs, Attr{Name: name, Value: v})
}

// Finish sorts and deduplicates the attributes. The builder must not be
// used afterwards.
func (b *Builder) Finish() *Bindings {
	attrs := b.attrs
	b.attrs = nil
	sort.SliceStable(attrs, func(i, j int) bool {
		return strings.Compare(attrs[i].Name, attrs[j].Name) < 0
	})
	out := attrs[:0]
	for _, a := range attrs {
		if n := len(out); n > 0 && out[n-1].Name == a.Name {
			out[n-1] = a
			continue
		}
		out = append(out, a)
	}
	return &Bindings{attrs: out}
}
