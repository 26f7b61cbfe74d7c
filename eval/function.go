package eval

// PrimOp is the Go implementation of a function. It receives exactly Arity
// arguments, unforced.
type PrimOp func(s *State, args []*Value) (*Value, error)

// Function is a callable value, possibly partially applied.
type Function struct {
	Name  string
	Arity int
	op    PrimOp
	bound []*Value
}

// Func returns a function value of the given arity.
func Func(name string, arity int, op PrimOp) *Value {
	if arity < 1 {
		panic("eval: function arity must be at least 1")
	}
	return &Value{typ: TypeFunction, fn: &Function{Name: name, Arity: arity, op: op}}
}

// Missing returns how many more arguments the function needs before it runs.
func (f *Function) Missing() int { return f.Arity - len(f.bound) }

func (f *Function) bind(args []*Value) *Value {
	bound := make([]*Value, 0, len(f.bound)+len(args))
	bound = append(bound, f.bound...)
	bound = append(bound, args...)
	return &Value{typ: TypeFunction, fn: &Function{Name: f.Name, Arity: f.Arity, op: f.op, bound: bound}}
}
