package eval

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Print forces v deeply and writes it to w in expression syntax.
func (s *State) Print(w io.Writer, v *Value) error {
	var b strings.Builder
	if err := s.print(&b, v, 0); err != nil {
		return err
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Sprint is Print into a string.
func (s *State) Sprint(v *Value) (string, error) {
	var b strings.Builder
	err := s.Print(&b, v)
	return b.String(), err
}

func (s *State) print(b *strings.Builder, v *Value, depth int) error {
	if depth > maxCoerceDepth {
		b.WriteString("«too deep»")
		return nil
	}
	if err := s.Force(v); err != nil {
		return err
	}

	switch v.typ {
	case TypeInt:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case TypeFloat:
		b.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case TypeBool:
		b.WriteString(strconv.FormatBool(v.b))
	case TypeNull:
		b.WriteString("null")
	case TypeString:
		printString(b, v.s)
	case TypePath:
		b.WriteString(v.s)
	case TypeList:
		b.WriteString("[ ")
		for _, item := range v.items {
			if err := s.print(b, item, depth+1); err != nil {
				return err
			}
			b.WriteByte(' ')
		}
		b.WriteByte(']')
	case TypeAttrs:
		b.WriteString("{ ")
		for _, a := range v.attrs.attrs {
			b.WriteString(a.Name)
			b.WriteString(" = ")
			if err := s.print(b, a.Value, depth+1); err != nil {
				return err
			}
			b.WriteString("; ")
		}
		b.WriteByte('}')
	case TypeFunction:
		fmt.Fprintf(b, "«primop %s»", v.fn.Name)
	case TypeExternal:
		fmt.Fprintf(b, "«external %T»", v.ext)
	}
	return nil
}

func printString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}
