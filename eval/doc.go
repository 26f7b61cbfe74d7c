// Package eval holds the host side of the value bridge: a lazy, dynamically
// typed value graph and the handful of evaluator operations guests rely on.
//
// # Overview
//
// A [Value] is a reference into the graph. Its dynamic type is one of the
// shapes listed by [Type]; a thunk has no known type until it is forced with
// [State.Force], after which it is overwritten in place by its result.
//
// The package does not parse or interpret an expression language. Functions
// are Go closures wrapped by [Func], and thunks are Go closures wrapped by
// [Thunk]. That is all the bridge needs: forcing, coercion, application and
// construction of lists and attribute sets.
//
// # Basic Usage
//
//	s := eval.NewState()
//	double := eval.Func("double", 1, func(s *eval.State, args []*eval.Value) (*eval.Value, error) {
//	    n, err := s.ForceInt(args[0])
//	    if err != nil {
//	        return nil, err
//	    }
//	    return eval.Int(n * 2), nil
//	})
//	v, err := s.Call(double, eval.Int(21)) // 42
//
// # Concurrency
//
// Values are not safe for concurrent forcing. A [State] may be shared by
// goroutines as long as they do not force the same unevaluated thunks.
package eval
