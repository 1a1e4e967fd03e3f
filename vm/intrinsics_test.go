package vm

import (
	"math"
	"sort"
	"strings"
	"testing"
)

func callIntrinsic(t *testing.T, name string, args ...*Variable) *Variable {
	t.Helper()
	f, ok := LookupIntrinsic(name)
	if !ok {
		t.Fatalf("no intrinsic %q", name)
	}
	ret := NewVariable()
	if err := f.Action(args, ret); err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return ret
}

func TestIntrinsics(t *testing.T) {
	list := NewList([]*Variable{NewInteger(4), NewInteger(9), NewInteger(-2)})
	tests := []struct {
		name string
		args []*Variable
		want *Variable
	}{
		{"abs", []*Variable{NewInteger(-3)}, NewInteger(3)},
		{"abs", []*Variable{NewFloat(-1.5)}, NewFloat(1.5)},
		{"asc", []*Variable{NewString("A")}, NewInteger(65)},
		{"asc", []*Variable{NewString("")}, NewInteger(0)},
		{"chr", []*Variable{NewInteger(66)}, NewString("B")},
		{"float", []*Variable{NewInteger(2)}, NewFloat(2)},
		{"hex", []*Variable{NewInteger(255)}, NewString("FF")},
		{"int", []*Variable{NewFloat(3.9)}, NewInteger(3)},
		{"lcase", []*Variable{NewString("ABC")}, NewString("abc")},
		{"ucase", []*Variable{NewString("abc")}, NewString("ABC")},
		{"left", []*Variable{NewString("weft"), NewInteger(2)}, NewString("we")},
		{"left", []*Variable{NewString("weft"), NewInteger(10)}, NewString("weft")},
		{"right", []*Variable{NewString("weft"), NewInteger(2)}, NewString("ft")},
		{"right", []*Variable{NewString("weft"), NewInteger(0)}, NewString("")},
		{"mid", []*Variable{NewString("weaving"), NewInteger(3), NewInteger(3)}, NewString("avi")},
		{"mid", []*Variable{NewString("weaving"), NewInteger(4)}, NewString("ving")},
		{"mid", []*Variable{NewString("abcdef"), NewInteger(2), NewInteger(math.MaxInt64)}, NewString("bcdef")},
		{"mid", []*Variable{NewString("abcdef"), NewInteger(math.MinInt64), NewInteger(2)}, NewString("ab")},
		{"left", []*Variable{NewString("weft"), NewInteger(math.MaxInt64)}, NewString("weft")},
		{"right", []*Variable{NewString("weft"), NewInteger(math.MaxInt64)}, NewString("weft")},
		{"len", []*Variable{list}, NewInteger(3)},
		{"len", []*Variable{NewInteger(1234)}, NewInteger(4)},
		{"max", []*Variable{NewInteger(1), NewInteger(7), NewInteger(3)}, NewInteger(7)},
		{"max", []*Variable{list}, NewInteger(9)},
		{"min", []*Variable{list, NewInteger(0)}, NewInteger(-2)},
		{"sgn", []*Variable{NewFloat(-0.5)}, NewInteger(-1)},
		{"sqrt", []*Variable{NewInteger(16)}, NewFloat(4)},
		{"str", []*Variable{NewFloat(0.25)}, NewString("0.25")},
		{"trim", []*Variable{NewString("  x ")}, NewString("x")},
		{"type", []*Variable{list}, NewString("List")},
		{"val", []*Variable{NewString("12")}, NewInteger(12)},
		{"val", []*Variable{NewString("1.5")}, NewFloat(1.5)},
		{"val", []*Variable{NewString("nope")}, NewInteger(0)},
	}
	for _, tt := range tests {
		got := callIntrinsic(t, tt.name, tt.args...)
		if got.Type() != tt.want.Type() || !got.IsEqual(tt.want) {
			t.Errorf("%s(%v) = %#v, want %#v", tt.name, tt.args, got, tt.want)
		}
	}
}

func TestIntrinsicsSortedAndFresh(t *testing.T) {
	all := Intrinsics()
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = f.Name
		if f.Action == nil {
			t.Errorf("%s has no action", f.Name)
		}
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("intrinsics not sorted: %v", names)
	}
	all[0].Name = "changed"
	if Intrinsics()[0].Name == "changed" {
		t.Error("Intrinsics must return copies")
	}
}

func TestLookupIntrinsicIgnoresCase(t *testing.T) {
	f, ok := LookupIntrinsic("UCase")
	if !ok || !strings.EqualFold(f.Name, "ucase") {
		t.Fatalf("LookupIntrinsic(UCase) = %v, %v", f, ok)
	}
	if _, ok := LookupIntrinsic("print"); ok {
		t.Error("print is a host function, not an intrinsic")
	}
}
