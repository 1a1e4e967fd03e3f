package vm

import (
	"errors"
	"fmt"
)

// Runtime faults. Handlers return these (usually wrapped with detail) and
// Execute wraps whatever reaches it in a single *RuntimeError.
var (
	ErrStackUnderflow     = errors.New("stack underflow")
	ErrStackOverflow      = errors.New("stack overflow")
	ErrInvalidOpcode      = errors.New("invalid opcode")
	ErrInstructionPointer = errors.New("instruction pointer out of range")
	ErrDivideByZero       = errors.New("division by zero")
	ErrListOperand        = errors.New("list used as arithmetic operand")
	ErrListSize           = errors.New("list size out of range")
	ErrInvalidByteCode    = errors.New("invalid bytecode")
	ErrEmptyProgram       = errors.New("cannot execute empty program")
	ErrMissingExpression  = errors.New("expected expression")
	ErrWrongArgumentCount = errors.New("wrong number of arguments")
)

// errNeedFloat tells arithOp.apply to retry an integer operation in floating
// point. It never escapes the package.
var errNeedFloat = errors.New("retry as float")

// RuntimeError is the fault returned by Runtime.Execute. Line is zero when
// the program carries no line table.
type RuntimeError struct {
	Line int
	IP   int
	Err  error
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("runtime error on line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("runtime error at ip %d: %v", e.IP, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
