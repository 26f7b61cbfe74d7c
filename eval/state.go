package eval

import (
	"path"
	"runtime"
	"strconv"
	"strings"
)

// State is the evaluator context shared by everything that forces,
// coerces or applies values.
type State struct {
	Symbols *SymbolTable

	rootDir string
	system  string
}

// Option configures a State.
type Option func(*State)

// WithRootDir sets the directory guest-constructed paths are rooted at.
func WithRootDir(dir string) Option {
	return func(s *State) {
		s.rootDir = path.Clean("/" + dir)
	}
}

// WithSystem sets the platform identifier reported to guests.
func WithSystem(system string) Option {
	return func(s *State) {
		s.system = system
	}
}

// NewState returns a State with default settings.
func NewState(opts ...Option) *State {
	s := &State{
		Symbols: NewSymbolTable(),
		rootDir: "/",
		system:  DefaultSystem(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultSystem returns the platform identifier of the running host, such
// as "x86_64-linux".
func DefaultSystem() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	return arch + "-" + runtime.GOOS
}

// System returns the configured platform identifier.
func (s *State) System() string { return s.system }

// RootDir returns the directory guest paths are rooted at.
func (s *State) RootDir() string { return s.rootDir }

// RootPath canonicalizes p beneath the root directory. ".." never climbs
// above the root.
func (s *State) RootPath(p string) string {
	return path.Join(s.rootDir, path.Clean("/"+p))
}

// AllocValue returns a fresh uninitialized value.
func (s *State) AllocValue() *Value { return new(Value) }

// BuildList returns a list value holding items.
func (s *State) BuildList(items []*Value) *Value { return List(items...) }

// BuildAttrs returns a new attribute set builder for n attributes.
func (s *State) BuildAttrs(n int) *Builder { return NewBuilder(s.Symbols, n) }

// Force evaluates v in place until it is no longer a thunk.
func (s *State) Force(v *Value) error {
	switch v.typ {
	case TypeThunk:
	case typeUninit:
		return Errorf("attempt to force an uninitialized value")
	default:
		return nil
	}

	t := v.thunk
	if t.active {
		return ErrInfiniteRecursion
	}
	t.active = true
	res, err := t.eval(s)
	t.active = false
	if err != nil {
		return err
	}
	if res == nil {
		return Errorf("thunk produced no value")
	}
	if err := s.Force(res); err != nil {
		return err
	}
	v.Assign(res)
	return nil
}

func (s *State) forceType(v *Value, want Type) error {
	if err := s.Force(v); err != nil {
		return err
	}
	if v.typ != want {
		return typeError(want, v)
	}
	return nil
}

// ForceInt forces v and returns its integer payload.
func (s *State) ForceInt(v *Value) (int64, error) {
	if err := s.forceType(v, TypeInt); err != nil {
		return 0, err
	}
	return v.i, nil
}

// ForceFloat forces v and returns it as a float. Integers are converted.
func (s *State) ForceFloat(v *Value) (float64, error) {
	if err := s.Force(v); err != nil {
		return 0, err
	}
	switch v.typ {
	case TypeFloat:
		return v.f, nil
	case TypeInt:
		return float64(v.i), nil
	}
	return 0, typeError(TypeFloat, v)
}

// ForceBool forces v and returns its boolean payload.
func (s *State) ForceBool(v *Value) (bool, error) {
	if err := s.forceType(v, TypeBool); err != nil {
		return false, err
	}
	return v.b, nil
}

// ForceString forces v and returns the string and its context.
func (s *State) ForceString(v *Value) (string, Context, error) {
	if err := s.forceType(v, TypeString); err != nil {
		return "", Context{}, err
	}
	return v.s, v.ctx, nil
}

// ForceStringNoContext is ForceString for strings that must not carry
// provenance.
func (s *State) ForceStringNoContext(v *Value) (string, error) {
	str, ctx, err := s.ForceString(v)
	if err != nil {
		return "", err
	}
	if !ctx.Empty() {
		return "", Errorf("the string '%s' is not allowed to refer to a store path (such as '%s')", str, ctx.elems[0])
	}
	return str, nil
}

// ForceList forces v and returns its elements.
func (s *State) ForceList(v *Value) ([]*Value, error) {
	if err := s.forceType(v, TypeList); err != nil {
		return nil, err
	}
	return v.items, nil
}

// ForceAttrs forces v and returns its attributes.
func (s *State) ForceAttrs(v *Value) (*Bindings, error) {
	if err := s.forceType(v, TypeAttrs); err != nil {
		return nil, err
	}
	return v.attrs, nil
}

// ForceFunction forces v and returns its function payload.
func (s *State) ForceFunction(v *Value) (*Function, error) {
	if err := s.forceType(v, TypeFunction); err != nil {
		return nil, err
	}
	return v.fn, nil
}

// CoerceToString converts v to a string the way string interpolation does:
// strings pass through with their context, paths become their text, sets
// use __toString or outPath, and scalars and lists are rendered.
func (s *State) CoerceToString(v *Value) (string, Context, error) {
	var ctx Context
	str, err := s.coerceToString(v, &ctx, 0)
	if err != nil {
		return "", Context{}, err
	}
	return str, ctx, nil
}

const maxCoerceDepth = 1000

func (s *State) coerceToString(v *Value, ctx *Context, depth int) (string, error) {
	if depth > maxCoerceDepth {
		return "", ErrInfiniteRecursion
	}
	if err := s.Force(v); err != nil {
		return "", err
	}

	switch v.typ {
	case TypeString:
		*ctx = ctx.Union(v.ctx)
		return v.s, nil
	case TypePath:
		return v.s, nil
	case TypeAttrs:
		if fn, ok := v.attrs.Get("__toString"); ok {
			res, err := s.Call(fn, v)
			if err != nil {
				return "", AddTrace(err, "while evaluating the __toString attribute")
			}
			return s.coerceToString(res, ctx, depth+1)
		}
		if out, ok := v.attrs.Get("outPath"); ok {
			return s.coerceToString(out, ctx, depth+1)
		}
		return "", Errorf("cannot coerce a set to a string")
	case TypeInt:
		return strconv.FormatInt(v.i, 10), nil
	case TypeFloat:
		return strconv.FormatFloat(v.f, 'f', 6, 64), nil
	case TypeBool:
		if v.b {
			return "1", nil
		}
		return "", nil
	case TypeNull:
		return "", nil
	case TypeList:
		parts := make([]string, 0, len(v.items))
		for i, item := range v.items {
			part, err := s.coerceToString(item, ctx, depth+1)
			if err != nil {
				return "", AddTrace(err, "while evaluating one element of the list (index %d)", i)
			}
			parts = append(parts, part)
		}
		return strings.Join(parts, " "), nil
	}
	return "", Errorf("cannot coerce %s to a string", v.typ)
}

// CoerceToPath converts v to an absolute path. Strings must already be
// absolute.
func (s *State) CoerceToPath(v *Value) (string, Context, error) {
	if err := s.Force(v); err != nil {
		return "", Context{}, err
	}
	if v.typ == TypePath {
		return v.s, Context{}, nil
	}
	str, ctx, err := s.CoerceToString(v)
	if err != nil {
		return "", Context{}, err
	}
	if !strings.HasPrefix(str, "/") {
		return "", Context{}, Errorf("string '%s' doesn't represent an absolute path", str)
	}
	return path.Clean(str), ctx, nil
}

// Call applies fn to args. Extra arguments are applied to the result;
// missing arguments produce a partial application.
func (s *State) Call(fn *Value, args ...*Value) (*Value, error) {
	for len(args) > 0 {
		f, err := s.ForceFunction(fn)
		if err != nil {
			return nil, err
		}

		missing := f.Missing()
		if len(args) < missing {
			return f.bind(args), nil
		}

		full := make([]*Value, 0, f.Arity)
		full = append(full, f.bound...)
		full = append(full, args[:missing]...)
		args = args[missing:]

		res, err := f.op(s, full)
		if err != nil {
			return nil, AddTrace(err, "while calling the '%s' builtin", f.Name)
		}
		if res == nil {
			return nil, Errorf("function '%s' returned no value", f.Name)
		}
		fn = res
	}
	return fn, nil
}
