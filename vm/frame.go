package vm

// Frame is the activation record of one user function call. Every call,
// recursive ones included, gets its own parameter and local storage.
type Frame struct {
	Function    *UserFunction
	Parameters  []*Variable
	Locals      []*Variable
	ReturnValue *Variable
}

func newFrame(fn *UserFunction) *Frame {
	f := &Frame{
		Function:    fn,
		Parameters:  make([]*Variable, fn.NumParameters),
		Locals:      make([]*Variable, fn.NumVariables),
		ReturnValue: NewVariable(),
	}
	for i := range f.Parameters {
		f.Parameters[i] = NewVariable()
	}
	for i := range f.Locals {
		f.Locals[i] = NewVariable()
	}
	return f
}

// bindArguments copies args into the parameter slots. Surplus arguments are
// ignored and missing ones keep their zero value.
func (f *Frame) bindArguments(args []*Variable) {
	n := min(len(args), len(f.Parameters))
	for i := 0; i < n; i++ {
		f.Parameters[i].Set(args[i])
	}
}
