package eval

import (
	"path"
)

// Type is the dynamic type of a value.
type Type uint8

const (
	typeUninit Type = iota
	TypeThunk
	TypeInt
	TypeFloat
	TypeBool
	TypeString
	TypePath
	TypeNull
	TypeAttrs
	TypeList
	TypeFunction
	TypeExternal
)

// String returns the type as it appears in error messages.
func (t Type) String() string {
	switch t {
	case TypeThunk:
		return "a thunk"
	case TypeInt:
		return "an integer"
	case TypeFloat:
		return "a float"
	case TypeBool:
		return "a Boolean"
	case TypeString:
		return "a string"
	case TypePath:
		return "a path"
	case TypeNull:
		return "null"
	case TypeAttrs:
		return "a set"
	case TypeList:
		return "a list"
	case TypeFunction:
		return "a function"
	case TypeExternal:
		return "an external value"
	default:
		return "an uninitialized value"
	}
}

// Value is a node in the host value graph. The zero Value is uninitialized
// and must be assigned before use; see [State.AllocValue].
type Value struct {
	typ   Type
	i     int64
	f     float64
	b     bool
	s     string
	ctx   Context
	items []*Value
	attrs *Bindings
	fn    *Function
	ext   any
	thunk *thunk
}

type thunk struct {
	eval   func(*State) (*Value, error)
	active bool
}

var (
	trueValue  = &Value{typ: TypeBool, b: true}
	falseValue = &Value{typ: TypeBool, b: false}
	nullValue  = &Value{typ: TypeNull}
)

// Int returns an integer value.
func Int(n int64) *Value { return &Value{typ: TypeInt, i: n} }

// Float returns a float value.
func Float(f float64) *Value { return &Value{typ: TypeFloat, f: f} }

// Bool returns one of the two shared boolean values.
func Bool(b bool) *Value {
	if b {
		return trueValue
	}
	return falseValue
}

// Null returns the shared null value.
func Null() *Value { return nullValue }

// String returns a string value with empty context.
func String(s string) *Value { return &Value{typ: TypeString, s: s} }

// StringWithContext returns a string value carrying the given provenance.
func StringWithContext(s string, ctx Context) *Value {
	return &Value{typ: TypeString, s: s, ctx: ctx.Clone()}
}

// Path returns a path value. Relative paths are made absolute against "/".
func Path(p string) *Value {
	return &Value{typ: TypePath, s: path.Clean("/" + p)}
}

// List returns a list value holding items in order.
func List(items ...*Value) *Value {
	return &Value{typ: TypeList, items: items}
}

// Attrs returns an attribute set value.
func Attrs(b *Bindings) *Value {
	if b == nil {
		b = emptyBindings
	}
	return &Value{typ: TypeAttrs, attrs: b}
}

// Thunk returns a suspended computation. fn runs at most once successfully.
func Thunk(fn func(*State) (*Value, error)) *Value {
	return &Value{typ: TypeThunk, thunk: &thunk{eval: fn}}
}

// External wraps an opaque Go value the evaluator carries around but cannot
// inspect.
func External(x any) *Value { return &Value{typ: TypeExternal, ext: x} }

// Type reports the dynamic type without forcing.
func (v *Value) Type() Type { return v.typ }

// Int returns the integer payload.
func (v *Value) Int() int64 { return v.i }

// Float returns the float payload.
func (v *Value) Float() float64 { return v.f }

// Bool returns the boolean payload.
func (v *Value) Bool() bool { return v.b }

// Text returns the string payload, or the path for path values.
func (v *Value) Text() string { return v.s }

// Context returns the provenance of a string value.
func (v *Value) Context() Context { return v.ctx }

// Items returns list elements. The slice must not be modified.
func (v *Value) Items() []*Value { return v.items }

// Bindings returns the attributes of an attribute set.
func (v *Value) Bindings() *Bindings { return v.attrs }

// Function returns the function payload.
func (v *Value) Function() *Function { return v.fn }

// External returns the opaque payload of an external value.
func (v *Value) External() any { return v.ext }

// Assign overwrites v with src. It is how preallocated values are filled in.
func (v *Value) Assign(src *Value) {
	*v = *src
}

// IsThunk reports whether v still needs forcing.
func (v *Value) IsThunk() bool { return v.typ == TypeThunk }
