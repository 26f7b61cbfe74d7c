package eval

import (
	"fmt"
	"math"
	"sort"
)

// FromGo converts plain Go data, as produced by YAML or JSON decoders, into
// a value. Maps become attribute sets and slices become lists.
func (s *State) FromGo(x any) (*Value, error) {
	switch x := x.(type) {
	case nil:
		return Null(), nil
	case *Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case int32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows a 64-bit signed value", x)
		}
		return Int(int64(x)), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case string:
		return String(x), nil
	case []any:
		items := make([]*Value, len(x))
		for i, e := range x {
			v, err := s.FromGo(e)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return List(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b := s.BuildAttrs(len(keys))
		for _, k := range keys {
			v, err := s.FromGo(x[k])
			if err != nil {
				return nil, err
			}
			b.Insert(k, v)
		}
		return Attrs(b.Finish()), nil
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = v
		}
		return s.FromGo(m)
	}
	return nil, fmt.Errorf("cannot convert %T to a value", x)
}
