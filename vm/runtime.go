package vm

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("weft.vm")

// DefaultMaxFrameDepth bounds user-function recursion.
const DefaultMaxFrameDepth = 4096

// MaxListSize is the largest list EvalCreateList will allocate.
const MaxListSize = 1 << 24

// ---------------------------------------------------------------------------
// Runtime: executes a CompiledProgram
// ---------------------------------------------------------------------------

// Runtime interprets compiled programs. One Runtime runs one program at a
// time and must not be shared between goroutines; it may be reused for any
// number of sequential executions.
type Runtime struct {
	// MaxFrameDepth limits nested user-function calls. Exceeding it is a
	// fault rather than a Go stack exhaustion. Zero means no limit.
	MaxFrameDepth int

	program  *CompiledProgram
	reader   *Reader
	globals  []*Variable
	frames   []*Frame
	stack    []*Variable
	host     Host
	userData any
}

// NewRuntime creates a runtime with default limits.
func NewRuntime() *Runtime {
	return &Runtime{
		MaxFrameDepth: DefaultMaxFrameDepth,
		frames:        make([]*Frame, 0, 64),
		stack:         make([]*Variable, 0, 256),
	}
}

// Execute runs program from its entry call and returns the entry function's
// return value. A nil host behaves like NopHost.
//
// Any fault, including a panic caused by malformed cells, is returned as a
// *RuntimeError carrying the source line of the last consumed cell. The
// host's End notification is delivered in every case.
func (rt *Runtime) Execute(program *CompiledProgram, host Host) (result *Variable, err error) {
	if program.IsEmpty() {
		return nil, ErrEmptyProgram
	}
	if host == nil {
		host = NopHost{}
	}
	rt.program = program
	rt.reader = NewReader(program.Cells)
	rt.globals = program.cloneGlobals()
	rt.frames = rt.frames[:0]
	rt.stack = rt.stack[:0]
	rt.host = host
	rt.userData = nil

	log.Debugf("execute build=%s cells=%d functions=%d", program.BuildID, len(program.Cells), len(program.Functions))

	begin := &HostContext{Program: program}
	host.Begin(begin)
	rt.userData = begin.UserData

	defer func() {
		end := &HostContext{Program: program, UserData: rt.userData}
		host.End(end)
		rt.userData = end.UserData
	}()
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = rt.fault(fmt.Errorf("%w: %v", ErrInvalidByteCode, r))
		}
	}()

	frame, err := rt.enter()
	if err != nil {
		return nil, rt.fault(err)
	}
	if err := rt.executeFunction(frame); err != nil {
		return nil, rt.fault(err)
	}
	return frame.ReturnValue, nil
}

// Globals returns the global slots of the most recent execution.
func (rt *Runtime) Globals() []*Variable {
	return rt.globals
}

// UserData returns the host value left by the most recent execution.
func (rt *Runtime) UserData() any {
	return rt.userData
}

// fault annotates err with the line of the last consumed cell.
func (rt *Runtime) fault(err error) error {
	ip := rt.reader.IP() - 1
	line, _ := rt.program.LineAt(ip)
	log.Infof("fault at ip %d (line %d): %v", ip, line, err)
	return &RuntimeError{Line: line, IP: ip, Err: err}
}

// enter decodes the leading ExecFunction cell and builds the entry frame.
func (rt *Runtime) enter() (*Frame, error) {
	op, err := rt.reader.NextOp()
	if err != nil {
		return nil, err
	}
	if op != OpExecFunction {
		return nil, fmt.Errorf("%w: program starts with %s", ErrInvalidByteCode, op)
	}
	fn, args, err := rt.readCall()
	if err != nil {
		return nil, err
	}
	uf, ok := fn.(*UserFunction)
	if !ok {
		return nil, fmt.Errorf("%w: entry %s is not a user function", ErrInvalidByteCode, fn.FunctionName())
	}
	frame := newFrame(uf)
	frame.bindArguments(args)
	return frame, nil
}

// executeFunction runs the statement loop for frame until Return.
func (rt *Runtime) executeFunction(frame *Frame) error {
	if rt.MaxFrameDepth > 0 && len(rt.frames) >= rt.MaxFrameDepth {
		return fmt.Errorf("%w: %d nested calls in %s", ErrStackOverflow, len(rt.frames), frame.Function.Name)
	}
	rt.frames = append(rt.frames, frame)
	rt.reader.Push()
	if err := rt.reader.GoTo(frame.Function.IP); err != nil {
		return err
	}

	for {
		op, err := rt.reader.NextOp()
		if err != nil {
			return err
		}
		handler := statementHandlers[op]
		if handler == nil {
			return fmt.Errorf("%w: %s in statement position", ErrInvalidOpcode, op)
		}
		if err := handler(rt); err != nil {
			return err
		}
		if op == OpReturn {
			break
		}
	}

	rt.frames = rt.frames[:len(rt.frames)-1]
	return rt.reader.Pop()
}

// ---------------------------------------------------------------------------
// Dispatch tables
// ---------------------------------------------------------------------------

type handler func(rt *Runtime) error

// Both tables are indexed by opcode ordinal. They are filled in init because
// the handlers reach back into the tables through executeFunction.
var (
	statementHandlers  [opcodeCount]handler
	expressionHandlers [opcodeCount]handler
)

func init() {
	statementHandlers = [opcodeCount]handler{
		OpNop:                (*Runtime).opNop,
		OpExecFunction:       (*Runtime).opExecFunction,
		OpReturn:             (*Runtime).opReturn,
		OpJump:               (*Runtime).opJump,
		OpAssign:             (*Runtime).opAssign,
		OpAssignListVariable: (*Runtime).opAssignListVariable,
		OpJumpIfFalse:        (*Runtime).opJumpIfFalse,
	}
	expressionHandlers = [opcodeCount]handler{
		OpEvalLiteral:              (*Runtime).evalLiteral,
		OpEvalVariable:             (*Runtime).evalVariable,
		OpEvalCreateList:           (*Runtime).evalCreateList,
		OpEvalInitializeList:       (*Runtime).evalInitializeList,
		OpEvalListVariable:         (*Runtime).evalListVariable,
		OpEvalFunction:             (*Runtime).evalFunction,
		OpEvalAdd:                  binary((*Variable).Add),
		OpEvalSubtract:             binary((*Variable).Subtract),
		OpEvalMultiply:             binary((*Variable).Multiply),
		OpEvalDivide:               binary((*Variable).Divide),
		OpEvalPower:                binary((*Variable).Power),
		OpEvalModulus:              binary((*Variable).Modulus),
		OpEvalConcat:               binary(concat),
		OpEvalNegate:               unary((*Variable).Negate),
		OpEvalAnd:                  binary((*Variable).And),
		OpEvalOr:                   binary((*Variable).Or),
		OpEvalXor:                  binary((*Variable).Xor),
		OpEvalNot:                  unary((*Variable).Not),
		OpEvalIsEqual:              comparison((*Variable).IsEqual),
		OpEvalIsNotEqual:           comparison((*Variable).IsNotEqual),
		OpEvalIsGreaterThan:        comparison((*Variable).IsGreaterThan),
		OpEvalIsGreaterThanOrEqual: comparison((*Variable).IsGreaterThanOrEqual),
		OpEvalIsLessThan:           comparison((*Variable).IsLessThan),
		OpEvalIsLessThanOrEqual:    comparison((*Variable).IsLessThanOrEqual),
	}
}

// ---------------------------------------------------------------------------
// Statement handlers
// ---------------------------------------------------------------------------

func (rt *Runtime) opNop() error {
	return nil
}

func (rt *Runtime) opExecFunction() error {
	_, err := rt.call()
	return err
}

func (rt *Runtime) opReturn() error {
	frame, err := rt.currentFrame()
	if err != nil {
		return err
	}
	present, err := rt.evalExpression()
	if err != nil || !present {
		return err
	}
	v, err := rt.pop()
	if err != nil {
		return err
	}
	frame.ReturnValue.Set(v)
	return nil
}

func (rt *Runtime) opJump() error {
	ip, err := rt.reader.NextValue()
	if err != nil {
		return err
	}
	return rt.reader.GoTo(int(ip))
}

func (rt *Runtime) opJumpIfFalse() error {
	ip, err := rt.reader.NextValue()
	if err != nil {
		return err
	}
	cond, err := rt.evalRequired()
	if err != nil {
		return err
	}
	if cond.IsFalse() {
		return rt.reader.GoTo(int(ip))
	}
	return nil
}

func (rt *Runtime) opAssign() error {
	target, err := rt.readVariable()
	if err != nil {
		return err
	}
	v, err := rt.evalRequired()
	if err != nil {
		return err
	}
	target.Set(v)
	return nil
}

func (rt *Runtime) opAssignListVariable() error {
	list, err := rt.readVariable()
	if err != nil {
		return err
	}
	index, err := rt.evalRequired()
	if err != nil {
		return err
	}
	element := list.GetAt(int(index.ToInteger()) - 1)
	v, err := rt.evalRequired()
	if err != nil {
		return err
	}
	element.Set(v)
	return nil
}

// ---------------------------------------------------------------------------
// Expression evaluation
// ---------------------------------------------------------------------------

// evalExpression runs one expression run. It leaves exactly one value on
// the stack and reports true, or reports false for a zero-count run.
func (rt *Runtime) evalExpression() (bool, error) {
	count, err := rt.reader.NextValue()
	if err != nil {
		return false, err
	}
	if count < 0 {
		return false, fmt.Errorf("%w: negative run length %d", ErrInvalidByteCode, count)
	}
	if count == 0 {
		return false, nil
	}
	for i := int32(0); i < count; i++ {
		op, err := rt.reader.NextOp()
		if err != nil {
			return false, err
		}
		handler := expressionHandlers[op]
		if handler == nil {
			return false, fmt.Errorf("%w: %s in expression position", ErrInvalidOpcode, op)
		}
		if err := handler(rt); err != nil {
			return false, err
		}
	}
	return true, nil
}

// evalRequired runs an expression run that must be present and pops its
// value.
func (rt *Runtime) evalRequired() (*Variable, error) {
	present, err := rt.evalExpression()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, fmt.Errorf("%w at ip %d", ErrMissingExpression, rt.reader.IP()-1)
	}
	return rt.pop()
}

func (rt *Runtime) evalLiteral() error {
	idx, err := rt.reader.NextValue()
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) >= len(rt.program.Literals) {
		return fmt.Errorf("%w: literal %d of %d", ErrInvalidByteCode, idx, len(rt.program.Literals))
	}
	rt.push(rt.program.Literals[idx].Copy())
	return nil
}

func (rt *Runtime) evalVariable() error {
	v, err := rt.readVariable()
	if err != nil {
		return err
	}
	rt.push(v.Copy())
	return nil
}

func (rt *Runtime) evalCreateList() error {
	size, err := rt.evalRequired()
	if err != nil {
		return err
	}
	n := size.ToInteger()
	if n > MaxListSize {
		return fmt.Errorf("%w: %d elements", ErrListSize, n)
	}
	rt.push(CreateList(int(n)))
	return nil
}

func (rt *Runtime) evalInitializeList() error {
	n, err := rt.reader.NextValue()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: negative list length %d", ErrInvalidByteCode, n)
	}
	values := make([]*Variable, n)
	for i := range values {
		if values[i], err = rt.evalRequired(); err != nil {
			return err
		}
	}
	rt.push(NewList(values))
	return nil
}

// evalListVariable pushes the element cell itself so that a following
// in-place store through it updates the list.
func (rt *Runtime) evalListVariable() error {
	list, err := rt.readVariable()
	if err != nil {
		return err
	}
	index, err := rt.evalRequired()
	if err != nil {
		return err
	}
	rt.push(list.GetAt(int(index.ToInteger()) - 1))
	return nil
}

func (rt *Runtime) evalFunction() error {
	v, err := rt.call()
	if err != nil {
		return err
	}
	rt.push(v)
	return nil
}

func concat(a, b *Variable) (*Variable, error) {
	return a.Concat(b), nil
}

func binary(op func(a, b *Variable) (*Variable, error)) handler {
	return func(rt *Runtime) error {
		b, err := rt.pop()
		if err != nil {
			return err
		}
		a, err := rt.pop()
		if err != nil {
			return err
		}
		v, err := op(a, b)
		if err != nil {
			return err
		}
		rt.push(v)
		return nil
	}
}

func unary(op func(a *Variable) (*Variable, error)) handler {
	return func(rt *Runtime) error {
		a, err := rt.pop()
		if err != nil {
			return err
		}
		v, err := op(a)
		if err != nil {
			return err
		}
		rt.push(v)
		return nil
	}
}

func comparison(op func(a, b *Variable) bool) handler {
	return binary(func(a, b *Variable) (*Variable, error) {
		return NewBool(op(a, b)), nil
	})
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// readCall decodes "fn argc run*argc" and evaluates the arguments in order.
func (rt *Runtime) readCall() (Function, []*Variable, error) {
	id, err := rt.reader.NextValue()
	if err != nil {
		return nil, nil, err
	}
	if id < 0 || int(id) >= len(rt.program.Functions) {
		return nil, nil, fmt.Errorf("%w: function %d of %d", ErrInvalidByteCode, id, len(rt.program.Functions))
	}
	argc, err := rt.reader.NextValue()
	if err != nil {
		return nil, nil, err
	}
	if argc < 0 {
		return nil, nil, fmt.Errorf("%w: negative argument count %d", ErrInvalidByteCode, argc)
	}
	args := make([]*Variable, argc)
	for i := range args {
		if args[i], err = rt.evalRequired(); err != nil {
			return nil, nil, err
		}
	}
	return rt.program.Functions[id], args, nil
}

// call performs a function call and returns its result.
func (rt *Runtime) call() (*Variable, error) {
	fn, args, err := rt.readCall()
	if err != nil {
		return nil, err
	}

	switch f := fn.(type) {
	case *InternalFunction:
		ret := NewVariable()
		if len(args) < f.MinParameters || (f.MaxParameters >= 0 && len(args) > f.MaxParameters) {
			return nil, fmt.Errorf("%s: %w: got %d", f.Name, ErrWrongArgumentCount, len(args))
		}
		if f.Action != nil {
			if err := f.Action(args, ret); err != nil {
				return nil, fmt.Errorf("%s: %w", f.Name, err)
			}
			return ret, nil
		}
		call := &FunctionCall{Name: f.Name, Args: args, ReturnValue: ret, UserData: rt.userData}
		err := rt.host.Function(call)
		rt.userData = call.UserData
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		return ret, nil

	case *UserFunction:
		frame := newFrame(f)
		frame.bindArguments(args)
		if err := rt.executeFunction(frame); err != nil {
			return nil, err
		}
		return frame.ReturnValue.Copy(), nil
	}
	return nil, fmt.Errorf("%w: unknown function kind %T", ErrInvalidByteCode, fn)
}

// ---------------------------------------------------------------------------
// Variables and stack
// ---------------------------------------------------------------------------

// readVariable decodes an address cell and resolves it against the global
// table or the current frame.
func (rt *Runtime) readVariable() (*Variable, error) {
	addr, err := rt.reader.NextValue()
	if err != nil {
		return nil, err
	}
	return rt.variable(addr)
}

func (rt *Runtime) variable(addr int32) (*Variable, error) {
	index := AddrIndex(addr)
	if IsGlobalAddr(addr) {
		if index >= len(rt.globals) {
			return nil, fmt.Errorf("%w: global %d of %d", ErrInvalidByteCode, index, len(rt.globals))
		}
		return rt.globals[index], nil
	}
	frame, err := rt.currentFrame()
	if err != nil {
		return nil, err
	}
	var slots []*Variable
	switch {
	case IsLocalAddr(addr):
		slots = frame.Locals
	case IsParameterAddr(addr):
		slots = frame.Parameters
	default:
		return nil, fmt.Errorf("%w: address %#x has no category", ErrInvalidByteCode, addr)
	}
	if index >= len(slots) {
		return nil, fmt.Errorf("%w: %s out of range in %s", ErrInvalidByteCode, FormatAddr(addr), frame.Function.Name)
	}
	return slots[index], nil
}

func (rt *Runtime) currentFrame() (*Frame, error) {
	if len(rt.frames) == 0 {
		return nil, fmt.Errorf("%w: no active frame", ErrStackUnderflow)
	}
	return rt.frames[len(rt.frames)-1], nil
}

func (rt *Runtime) push(v *Variable) {
	rt.stack = append(rt.stack, v)
}

func (rt *Runtime) pop() (*Variable, error) {
	n := len(rt.stack)
	if n == 0 {
		return nil, ErrStackUnderflow
	}
	v := rt.stack[n-1]
	rt.stack[n-1] = nil
	rt.stack = rt.stack[:n-1]
	return v, nil
}
