package vm

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Intrinsic functions
// ---------------------------------------------------------------------------

// The compiler registers every intrinsic before it sees any source, so each
// program's function table starts with them. Images store them by name and
// LookupIntrinsic rebinds them on load.

var intrinsicTable = []InternalFunction{
	{"abs", 1, 1, intrinsicAbs},
	{"asc", 1, 1, intrinsicAsc},
	{"chr", 1, 1, intrinsicChr},
	{"float", 1, 1, intrinsicFloat},
	{"hex", 1, 1, intrinsicHex},
	{"int", 1, 1, intrinsicInt},
	{"lcase", 1, 1, intrinsicLCase},
	{"left", 2, 2, intrinsicLeft},
	{"len", 1, 1, intrinsicLen},
	{"max", 1, 16, intrinsicMax},
	{"mid", 2, 3, intrinsicMid},
	{"min", 1, 16, intrinsicMin},
	{"right", 2, 2, intrinsicRight},
	{"sgn", 1, 1, intrinsicSgn},
	{"sqrt", 1, 1, intrinsicSqrt},
	{"str", 1, 1, intrinsicStr},
	{"trim", 1, 1, intrinsicTrim},
	{"type", 1, 1, intrinsicType},
	{"ucase", 1, 1, intrinsicUCase},
	{"val", 1, 1, intrinsicVal},
}

// Intrinsics returns fresh descriptors for every intrinsic, sorted by name.
func Intrinsics() []*InternalFunction {
	out := make([]*InternalFunction, len(intrinsicTable))
	for i := range intrinsicTable {
		f := intrinsicTable[i]
		out[i] = &f
	}
	return out
}

// LookupIntrinsic finds an intrinsic by case-insensitive name.
func LookupIntrinsic(name string) (*InternalFunction, bool) {
	for i := range intrinsicTable {
		if strings.EqualFold(intrinsicTable[i].Name, name) {
			f := intrinsicTable[i]
			return &f, true
		}
	}
	return nil, false
}

// arg returns args[i], or a zero variable when the caller passed fewer.
func arg(args []*Variable, i int) *Variable {
	if i < len(args) {
		return args[i]
	}
	return NewVariable()
}

func intrinsicAbs(args []*Variable, ret *Variable) error {
	v := arg(args, 0)
	if v.IsFloat() {
		ret.SetFloat(math.Abs(v.ToFloat()))
		return nil
	}
	n := v.ToInteger()
	if n < 0 {
		n = -n
	}
	ret.SetInteger(n)
	return nil
}

func intrinsicAsc(args []*Variable, ret *Variable) error {
	r, size := utf8.DecodeRuneInString(arg(args, 0).String())
	if size == 0 {
		ret.SetInteger(0)
		return nil
	}
	ret.SetInteger(int64(r))
	return nil
}

func intrinsicChr(args []*Variable, ret *Variable) error {
	ret.SetString(string(rune(arg(args, 0).ToInteger())))
	return nil
}

func intrinsicFloat(args []*Variable, ret *Variable) error {
	ret.SetFloat(arg(args, 0).ToFloat())
	return nil
}

func intrinsicHex(args []*Variable, ret *Variable) error {
	ret.SetString(strings.ToUpper(strconv.FormatInt(arg(args, 0).ToInteger(), 16)))
	return nil
}

func intrinsicInt(args []*Variable, ret *Variable) error {
	ret.SetInteger(arg(args, 0).ToInteger())
	return nil
}

func intrinsicLCase(args []*Variable, ret *Variable) error {
	ret.SetString(strings.ToLower(arg(args, 0).String()))
	return nil
}

func intrinsicUCase(args []*Variable, ret *Variable) error {
	ret.SetString(strings.ToUpper(arg(args, 0).String()))
	return nil
}

// runeSlice clamps [start, start+n) to the runes of s.
func runeSlice(s string, start, n int) string {
	runes := []rune(s)
	if start < 0 {
		start = 0
	}
	if start > len(runes) {
		return ""
	}
	end := len(runes)
	if n >= 0 && n < end-start {
		end = start + n
	}
	return string(runes[start:end])
}

func intrinsicLeft(args []*Variable, ret *Variable) error {
	n := int(arg(args, 1).ToInteger())
	if n < 0 {
		n = 0
	}
	ret.SetString(runeSlice(arg(args, 0).String(), 0, n))
	return nil
}

func intrinsicRight(args []*Variable, ret *Variable) error {
	s := arg(args, 0).String()
	n := int(arg(args, 1).ToInteger())
	count := utf8.RuneCountInString(s)
	if n <= 0 {
		ret.SetString("")
		return nil
	}
	ret.SetString(runeSlice(s, count-n, n))
	return nil
}

// mid(s, start[, n]) uses a 1-based start like list indexing.
func intrinsicMid(args []*Variable, ret *Variable) error {
	n := -1
	if len(args) > 2 {
		n = max(int(args[2].ToInteger()), 0)
	}
	start := max(arg(args, 1).ToInteger(), 1)
	ret.SetString(runeSlice(arg(args, 0).String(), int(start-1), n))
	return nil
}

// len counts list elements, or runes of the string form of a scalar.
func intrinsicLen(args []*Variable, ret *Variable) error {
	v := arg(args, 0)
	if v.IsList() {
		ret.SetInteger(int64(v.ListCount()))
		return nil
	}
	ret.SetInteger(int64(utf8.RuneCountInString(v.String())))
	return nil
}

// extreme picks the greatest (sign 1) or least (sign -1) value among the
// arguments, flattening list arguments one level.
func extreme(args []*Variable, ret *Variable, sign int) error {
	var best *Variable
	for _, a := range args {
		for _, v := range a.List() {
			if best == nil || v.compare(best)*sign > 0 {
				best = v
			}
		}
	}
	if best != nil {
		ret.Set(best)
	}
	return nil
}

func intrinsicMax(args []*Variable, ret *Variable) error { return extreme(args, ret, 1) }
func intrinsicMin(args []*Variable, ret *Variable) error { return extreme(args, ret, -1) }

func intrinsicSgn(args []*Variable, ret *Variable) error {
	v := arg(args, 0)
	switch f := v.ToFloat(); {
	case f > 0:
		ret.SetInteger(1)
	case f < 0:
		ret.SetInteger(-1)
	default:
		ret.SetInteger(0)
	}
	return nil
}

func intrinsicSqrt(args []*Variable, ret *Variable) error {
	ret.SetFloat(math.Sqrt(arg(args, 0).ToFloat()))
	return nil
}

func intrinsicStr(args []*Variable, ret *Variable) error {
	ret.SetString(arg(args, 0).String())
	return nil
}

func intrinsicTrim(args []*Variable, ret *Variable) error {
	ret.SetString(strings.TrimSpace(arg(args, 0).String()))
	return nil
}

func intrinsicType(args []*Variable, ret *Variable) error {
	ret.SetString(arg(args, 0).Type().String())
	return nil
}

// val parses text into an Integer or Float, 0 when it is not a number.
func intrinsicVal(args []*Variable, ret *Variable) error {
	n, kind := parseNumber(arg(args, 0).String())
	if kind == TypeFloat {
		ret.SetFloat(n.f)
		return nil
	}
	ret.SetInteger(n.i)
	return nil
}
