package vm

import "strings"

// ---------------------------------------------------------------------------
// Host integration
// ---------------------------------------------------------------------------

// HostContext is passed to Begin and End. UserData belongs to the host: the
// value left in it by Begin is handed to every later notification of the
// same execution.
type HostContext struct {
	Program  *CompiledProgram
	UserData any
}

// FunctionCall describes a call to a function with no Go binding. The host
// writes the result into ReturnValue, which starts as Integer 0.
type FunctionCall struct {
	Name        string
	Args        []*Variable
	ReturnValue *Variable
	UserData    any
}

// Host receives the three notifications of an execution. End is delivered
// even when the execution faults. A non-nil error from Function aborts the
// execution with that error.
type Host interface {
	Begin(ctx *HostContext)
	End(ctx *HostContext)
	Function(call *FunctionCall) error
}

// NopHost ignores every notification. Unbound calls return 0.
type NopHost struct{}

func (NopHost) Begin(*HostContext)           {}
func (NopHost) End(*HostContext)             {}
func (NopHost) Function(*FunctionCall) error { return nil }

// HostFuncs adapts plain functions to Host. Nil fields are skipped.
type HostFuncs struct {
	OnBegin    func(ctx *HostContext)
	OnEnd      func(ctx *HostContext)
	OnFunction func(call *FunctionCall) error
}

func (h HostFuncs) Begin(ctx *HostContext) {
	if h.OnBegin != nil {
		h.OnBegin(ctx)
	}
}

func (h HostFuncs) End(ctx *HostContext) {
	if h.OnEnd != nil {
		h.OnEnd(ctx)
	}
}

func (h HostFuncs) Function(call *FunctionCall) error {
	if h.OnFunction != nil {
		return h.OnFunction(call)
	}
	return nil
}

// FuncMap routes unbound calls by case-insensitive name. It is the usual
// way to give a script access to a handful of Go functions.
type FuncMap map[string]func(call *FunctionCall) error

func (FuncMap) Begin(*HostContext) {}
func (FuncMap) End(*HostContext)   {}

func (m FuncMap) Function(call *FunctionCall) error {
	if fn, ok := m[call.Name]; ok {
		return fn(call)
	}
	for name, fn := range m {
		if strings.EqualFold(name, call.Name) {
			return fn(call)
		}
	}
	return nil
}
