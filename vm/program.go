package vm

import "strings"

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// Function is an entry in a program's function table: either a
// *UserFunction compiled into the cells or an *InternalFunction implemented
// in Go (or left for the host to resolve).
type Function interface {
	FunctionName() string
	isFunction()
}

// UserFunction is a function defined in source.
type UserFunction struct {
	Name          string
	IP            int // first cell of the body
	NumParameters int
	NumVariables  int // locals, not counting parameters
}

func (f *UserFunction) FunctionName() string { return f.Name }
func (*UserFunction) isFunction()            {}

// Action implements an internal function. It receives the evaluated
// arguments and writes its result into ret, which starts as Integer 0.
type Action func(args []*Variable, ret *Variable) error

// InternalFunction is implemented outside the compiled program. A nil
// Action means the call is routed to the host.
type InternalFunction struct {
	Name          string
	MinParameters int
	MaxParameters int // negative for no upper bound
	Action        Action
}

func (f *InternalFunction) FunctionName() string { return f.Name }
func (*InternalFunction) isFunction()            {}

// IsBound reports whether the function has a Go implementation.
func (f *InternalFunction) IsBound() bool { return f.Action != nil }

// ---------------------------------------------------------------------------
// CompiledProgram: the artifact handed from compiler to VM
// ---------------------------------------------------------------------------

// CompiledProgram is produced once by the compiler and treated as read-only
// by the VM. Execute works on a copy of Globals, so a program can be run any
// number of times.
type CompiledProgram struct {
	Cells     []int32
	Functions []Function
	Globals   []*Variable
	Literals  []*Variable
	Lines     []int // source line per cell; nil when not recorded

	BuildID      string // unique per compile
	SourceDigest string // cache key, see store package
}

// IsEmpty reports whether the program has no code to run.
func (p *CompiledProgram) IsEmpty() bool {
	return p == nil || len(p.Cells) == 0
}

// LineAt returns the source line for the cell at ip.
func (p *CompiledProgram) LineAt(ip int) (int, bool) {
	if p.Lines == nil || ip < 0 || ip >= len(p.Lines) {
		return 0, false
	}
	return p.Lines[ip], true
}

// FunctionIndex looks a function up by case-insensitive name.
func (p *CompiledProgram) FunctionIndex(name string) (int, bool) {
	for i, f := range p.Functions {
		if strings.EqualFold(f.FunctionName(), name) {
			return i, true
		}
	}
	return -1, false
}

// UserFunctions returns the user functions in table order.
func (p *CompiledProgram) UserFunctions() []*UserFunction {
	var out []*UserFunction
	for _, f := range p.Functions {
		if uf, ok := f.(*UserFunction); ok {
			out = append(out, uf)
		}
	}
	return out
}

// cloneGlobals returns independent copies of the global slots.
func (p *CompiledProgram) cloneGlobals() []*Variable {
	out := make([]*Variable, len(p.Globals))
	for i, g := range p.Globals {
		out[i] = g.Copy()
	}
	return out
}
