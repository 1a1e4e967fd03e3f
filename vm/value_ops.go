package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// Every operator has a variable form and primitive forms. The primitive forms
// wrap their operand and go through the variable form so there is exactly one
// coercion path.

type arithOp struct {
	ints   func(a, b int64) (int64, error)
	floats func(a, b float64) float64
}

var (
	opAdd = arithOp{
		ints:   func(a, b int64) (int64, error) { return a + b, nil },
		floats: func(a, b float64) float64 { return a + b },
	}
	opSubtract = arithOp{
		ints:   func(a, b int64) (int64, error) { return a - b, nil },
		floats: func(a, b float64) float64 { return a - b },
	}
	opMultiply = arithOp{
		ints:   func(a, b int64) (int64, error) { return a * b, nil },
		floats: func(a, b float64) float64 { return a * b },
	}
	opDivide = arithOp{
		ints: func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, ErrDivideByZero
			}
			return a / b, nil
		},
		floats: func(a, b float64) float64 { return a / b },
	}
	opModulus = arithOp{
		ints: func(a, b int64) (int64, error) {
			if b == 0 {
				return 0, ErrDivideByZero
			}
			return a % b, nil
		},
		floats: math.Mod,
	}
	opPower = arithOp{
		ints: func(a, b int64) (int64, error) {
			if b < 0 {
				return 0, errNeedFloat
			}
			result := int64(1)
			for ; b > 0; b >>= 1 {
				if b&1 == 1 {
					result *= a
				}
				a *= a
			}
			return result, nil
		},
		floats: math.Pow,
	}
)

// apply runs op over the numeric forms of a and b. Either operand being a
// Float (or a string that reads as one) makes the whole operation Float.
func (op arithOp) apply(a, b *Variable) (*Variable, error) {
	if a.typ == TypeList || b.typ == TypeList {
		return nil, ErrListOperand
	}
	if !a.IsFloat() && !b.IsFloat() {
		n, err := op.ints(a.ToInteger(), b.ToInteger())
		if err == nil {
			return NewInteger(n), nil
		}
		if err != errNeedFloat {
			return nil, err
		}
	}
	return NewFloat(op.floats(a.ToFloat(), b.ToFloat())), nil
}

// Add returns v + o.
func (v *Variable) Add(o *Variable) (*Variable, error) { return opAdd.apply(v, o) }

// Subtract returns v - o.
func (v *Variable) Subtract(o *Variable) (*Variable, error) { return opSubtract.apply(v, o) }

// Multiply returns v * o.
func (v *Variable) Multiply(o *Variable) (*Variable, error) { return opMultiply.apply(v, o) }

// Divide returns v / o. Integer division truncates; an integer zero divisor
// is ErrDivideByZero.
func (v *Variable) Divide(o *Variable) (*Variable, error) { return opDivide.apply(v, o) }

// Modulus returns v % o with the same zero rule as Divide.
func (v *Variable) Modulus(o *Variable) (*Variable, error) { return opModulus.apply(v, o) }

// Power returns v raised to o. Integer bases with non-negative integer
// exponents stay Integer.
func (v *Variable) Power(o *Variable) (*Variable, error) { return opPower.apply(v, o) }

func (v *Variable) AddInt(n int64) (*Variable, error)          { return v.Add(NewInteger(n)) }
func (v *Variable) AddFloat(f float64) (*Variable, error)      { return v.Add(NewFloat(f)) }
func (v *Variable) AddString(s string) (*Variable, error)      { return v.Add(NewString(s)) }
func (v *Variable) SubtractInt(n int64) (*Variable, error)     { return v.Subtract(NewInteger(n)) }
func (v *Variable) MultiplyInt(n int64) (*Variable, error)     { return v.Multiply(NewInteger(n)) }
func (v *Variable) DivideInt(n int64) (*Variable, error)       { return v.Divide(NewInteger(n)) }
func (v *Variable) ModulusInt(n int64) (*Variable, error)      { return v.Modulus(NewInteger(n)) }
func (v *Variable) PowerFloat(f float64) (*Variable, error)    { return v.Power(NewFloat(f)) }
func (v *Variable) SubtractFloat(f float64) (*Variable, error) { return v.Subtract(NewFloat(f)) }

// Concat joins the string forms of v and o. It never fails.
func (v *Variable) Concat(o *Variable) *Variable {
	return NewString(v.String() + o.String())
}

// ConcatString appends s to the string form of v.
func (v *Variable) ConcatString(s string) *Variable { return v.Concat(NewString(s)) }

// Negate returns -v.
func (v *Variable) Negate() (*Variable, error) {
	switch {
	case v.typ == TypeList:
		return nil, ErrListOperand
	case v.IsFloat():
		return NewFloat(-v.ToFloat()), nil
	default:
		return NewInteger(-v.ToInteger()), nil
	}
}

// ---------------------------------------------------------------------------
// Bitwise logic
// ---------------------------------------------------------------------------

// And, Or, Xor and Not work on the integer forms of their operands. Since
// True is all ones and False is zero, they double as logical operators.

func bitwise(a, b *Variable, f func(x, y int64) int64) (*Variable, error) {
	if a.typ == TypeList || b.typ == TypeList {
		return nil, ErrListOperand
	}
	return NewInteger(f(a.ToInteger(), b.ToInteger())), nil
}

// And returns the bitwise and of v and o.
func (v *Variable) And(o *Variable) (*Variable, error) {
	return bitwise(v, o, func(x, y int64) int64 { return x & y })
}

// Or returns the bitwise or of v and o.
func (v *Variable) Or(o *Variable) (*Variable, error) {
	return bitwise(v, o, func(x, y int64) int64 { return x | y })
}

// Xor returns the bitwise exclusive or of v and o.
func (v *Variable) Xor(o *Variable) (*Variable, error) {
	return bitwise(v, o, func(x, y int64) int64 { return x ^ y })
}

// Not returns the bitwise complement of v.
func (v *Variable) Not() (*Variable, error) {
	if v.typ == TypeList {
		return nil, ErrListOperand
	}
	return NewInteger(^v.ToInteger()), nil
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// compare orders v against o and returns -1, 0 or 1. If either side is a
// String both compare as text. Lists compare by element count.
func (v *Variable) compare(o *Variable) int {
	switch {
	case v.typ == TypeList || o.typ == TypeList:
		return cmpInt(int64(v.ListCount()), int64(o.ListCount()))
	case v.typ == TypeString || o.typ == TypeString:
		return strings.Compare(v.String(), o.String())
	case v.IsFloat() || o.IsFloat():
		a, b := v.ToFloat(), o.ToFloat()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	default:
		return cmpInt(v.ToInteger(), o.ToInteger())
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// IsEqual reports structural equality. Two lists are equal when they have
// the same length and pairwise equal elements; a list never equals a scalar.
func (v *Variable) IsEqual(o *Variable) bool {
	if v.typ == TypeList || o.typ == TypeList {
		if v.typ != o.typ || len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].IsEqual(o.list[i]) {
				return false
			}
		}
		return true
	}
	return v.compare(o) == 0
}

func (v *Variable) IsNotEqual(o *Variable) bool           { return !v.IsEqual(o) }
func (v *Variable) IsGreaterThan(o *Variable) bool        { return v.compare(o) > 0 }
func (v *Variable) IsGreaterThanOrEqual(o *Variable) bool { return v.compare(o) >= 0 }
func (v *Variable) IsLessThan(o *Variable) bool           { return v.compare(o) < 0 }
func (v *Variable) IsLessThanOrEqual(o *Variable) bool    { return v.compare(o) <= 0 }

func (v *Variable) IsEqualInt(n int64) bool       { return v.IsEqual(NewInteger(n)) }
func (v *Variable) IsEqualFloat(f float64) bool   { return v.IsEqual(NewFloat(f)) }
func (v *Variable) IsEqualString(s string) bool   { return v.IsEqual(NewString(s)) }
func (v *Variable) IsLessThanInt(n int64) bool    { return v.IsLessThan(NewInteger(n)) }
func (v *Variable) IsGreaterThanInt(n int64) bool { return v.IsGreaterThan(NewInteger(n)) }

// IsTrue reports truthiness: nonzero numbers, non-empty strings and
// non-empty lists.
func (v *Variable) IsTrue() bool {
	switch v.typ {
	case TypeInteger:
		return v.i != 0
	case TypeFloat:
		return v.f != 0
	case TypeString:
		return v.s != ""
	case TypeList:
		return len(v.list) != 0
	}
	return false
}

// IsFalse is the negation of IsTrue.
func (v *Variable) IsFalse() bool { return !v.IsTrue() }
