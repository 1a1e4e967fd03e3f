package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType identifies which variant a Variable currently holds.
type ValueType uint8

const (
	TypeInteger ValueType = iota
	TypeFloat
	TypeString
	TypeList
)

var valueTypeNames = [...]string{
	TypeInteger: "Integer",
	TypeFloat:   "Float",
	TypeString:  "String",
	TypeList:    "List",
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("ValueType(%d)", t)
}

// Boolean results are integers: comparisons produce True or False and the
// bitwise Not of one is the other.
const (
	True  int64 = -1
	False int64 = 0
)

// ---------------------------------------------------------------------------
// Variable: a mutable cell holding one tagged value
// ---------------------------------------------------------------------------

// Variable is a mutable cell that holds exactly one value. Only the field
// matching typ is meaningful.
//
// Assigning one Variable to another copies the value, lists included. The
// one exception is GetAt on a list, which hands out the element cell itself
// so that an indexed store updates the list in place.
type Variable struct {
	typ  ValueType
	i    int64
	f    float64
	s    string
	list []*Variable
}

// NewVariable returns an Integer variable holding zero.
func NewVariable() *Variable {
	return &Variable{}
}

// NewInteger returns an Integer variable.
func NewInteger(v int64) *Variable {
	return &Variable{typ: TypeInteger, i: v}
}

// NewFloat returns a Float variable.
func NewFloat(v float64) *Variable {
	return &Variable{typ: TypeFloat, f: v}
}

// NewString returns a String variable.
func NewString(v string) *Variable {
	return &Variable{typ: TypeString, s: v}
}

// NewBool returns True or False as an Integer variable.
func NewBool(b bool) *Variable {
	if b {
		return NewInteger(True)
	}
	return NewInteger(False)
}

// NewList returns a List variable holding copies of values.
func NewList(values []*Variable) *Variable {
	v := &Variable{typ: TypeList}
	v.SetList(values)
	return v
}

// CreateList returns a List with size zero-valued Integer elements.
// Negative sizes yield an empty list.
func CreateList(size int) *Variable {
	if size < 0 {
		size = 0
	}
	list := make([]*Variable, size)
	for i := range list {
		list[i] = NewVariable()
	}
	return &Variable{typ: TypeList, list: list}
}

// Copy returns an independent copy of v.
func (v *Variable) Copy() *Variable {
	c := &Variable{}
	c.Set(v)
	return c
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

// Set copies src into v. Lists are copied element by element so the two
// variables never share storage.
func (v *Variable) Set(src *Variable) {
	if v == src {
		return
	}
	switch src.typ {
	case TypeInteger:
		v.SetInteger(src.i)
	case TypeFloat:
		v.SetFloat(src.f)
	case TypeString:
		v.SetString(src.s)
	case TypeList:
		v.SetList(src.list)
	}
}

// SetInteger stores an Integer.
func (v *Variable) SetInteger(n int64) {
	*v = Variable{typ: TypeInteger, i: n}
}

// SetFloat stores a Float.
func (v *Variable) SetFloat(f float64) {
	*v = Variable{typ: TypeFloat, f: f}
}

// SetString stores a String.
func (v *Variable) SetString(s string) {
	*v = Variable{typ: TypeString, s: s}
}

// SetList replaces the whole value with a list of copies of values.
func (v *Variable) SetList(values []*Variable) {
	list := make([]*Variable, len(values))
	for i, e := range values {
		list[i] = e.Copy()
	}
	*v = Variable{typ: TypeList, list: list}
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Type returns the current variant.
func (v *Variable) Type() ValueType { return v.typ }

// IsList reports whether v holds a list.
func (v *Variable) IsList() bool { return v.typ == TypeList }

// ListCount returns the element count, or 1 for a scalar.
func (v *Variable) ListCount() int {
	if v.typ == TypeList {
		return len(v.list)
	}
	return 1
}

// GetAt returns the element at a zero-based index.
//
// On a list, an in-range index yields the stored element cell (not a copy).
// On a scalar, index 0 yields v itself. Anything else yields a fresh zero
// variable; no access ever fails.
func (v *Variable) GetAt(index int) *Variable {
	if v.typ == TypeList {
		if index >= 0 && index < len(v.list) {
			return v.list[index]
		}
		return NewVariable()
	}
	if index == 0 {
		return v
	}
	return NewVariable()
}

// List returns the element cells of a list, or v alone for a scalar.
func (v *Variable) List() []*Variable {
	if v.typ == TypeList {
		return v.list
	}
	return []*Variable{v}
}

// IsFloat reports whether arithmetic on v should happen in floating point.
// Strings count as Float when their text parses as a non-integer number.
func (v *Variable) IsFloat() bool {
	switch v.typ {
	case TypeFloat:
		return true
	case TypeString:
		_, kind := parseNumber(v.s)
		return kind == TypeFloat
	}
	return false
}

// ToInteger converts v to an integer. Floats truncate toward zero, strings
// parse as numbers (0 when they do not), lists convert to 0.
func (v *Variable) ToInteger() int64 {
	switch v.typ {
	case TypeInteger:
		return v.i
	case TypeFloat:
		return int64(v.f)
	case TypeString:
		n, kind := parseNumber(v.s)
		if kind == TypeInteger {
			return n.i
		}
		return int64(n.f)
	}
	return 0
}

// ToFloat converts v to a float using the same rules as ToInteger.
func (v *Variable) ToFloat() float64 {
	switch v.typ {
	case TypeInteger:
		return float64(v.i)
	case TypeFloat:
		return v.f
	case TypeString:
		n, kind := parseNumber(v.s)
		if kind == TypeInteger {
			return float64(n.i)
		}
		return n.f
	}
	return 0
}

// String renders the value as the language prints it. Lists render as a
// bracketed, comma separated sequence.
func (v *Variable) String() string {
	switch v.typ {
	case TypeInteger:
		return strconv.FormatInt(v.i, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TypeString:
		return v.s
	case TypeList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.String())
		}
		sb.WriteByte(']')
		return sb.String()
	}
	return ""
}

// GoString is used by %#v and in test failure output.
func (v *Variable) GoString() string {
	if v.typ == TypeString {
		return fmt.Sprintf("%s(%q)", v.typ, v.s)
	}
	return fmt.Sprintf("%s(%s)", v.typ, v.String())
}

// parseNumber interprets s as an Integer or Float. Hex integers with a 0x
// prefix are accepted. Text that is not a number parses as Integer 0.
func parseNumber(s string) (Variable, ValueType) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Variable{}, TypeInteger
	}
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return Variable{typ: TypeInteger, i: n}, TypeInteger
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Variable{typ: TypeFloat, f: f}, TypeFloat
	}
	return Variable{}, TypeInteger
}
