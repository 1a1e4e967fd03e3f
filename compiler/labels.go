package compiler

import (
	"strings"

	"github.com/chazu/weft/vm"
)

// ---------------------------------------------------------------------------
// Labels and forward-reference fixups
// ---------------------------------------------------------------------------

// label is a named jump target. Until it is defined, every cell that should
// hold its address is recorded in fixups and written as a placeholder.
type label struct {
	name    string
	ip      int
	defined bool
	fixups  []int
	line    int // first reference, for LabelNotDefined
}

// labelTable holds the labels of one function. Names are case-insensitive.
type labelTable struct {
	labels map[string]*label
	order  []*label
}

func newLabelTable() *labelTable {
	return &labelTable{labels: make(map[string]*label)}
}

func (t *labelTable) get(name string, line int) *label {
	key := strings.ToLower(name)
	lb, ok := t.labels[key]
	if !ok {
		lb = &label{name: name, line: line}
		t.labels[key] = lb
		t.order = append(t.order, lb)
	}
	return lb
}

// reference returns the value to write into the cell at pos for a jump to
// name. An unresolved label records pos and yields vm.Placeholder.
func (t *labelTable) reference(name string, pos, line int) int32 {
	lb := t.get(name, line)
	if lb.defined {
		return int32(lb.ip)
	}
	lb.fixups = append(lb.fixups, pos)
	return vm.Placeholder
}

// define resolves name to ip and patches every pending fixup through w. It
// returns false if the label was already defined.
func (t *labelTable) define(name string, ip int, w *vm.CodeWriter) bool {
	lb := t.get(name, 0)
	if lb.defined {
		return false
	}
	lb.ip = ip
	lb.defined = true
	for _, pos := range lb.fixups {
		w.WriteAt(pos, int32(ip))
	}
	lb.fixups = nil
	return true
}

// undefined returns the labels that were referenced but never defined, in
// first-seen order.
func (t *labelTable) undefined() []*label {
	var out []*label
	for _, lb := range t.order {
		if !lb.defined {
			out = append(out, lb)
		}
	}
	return out
}
