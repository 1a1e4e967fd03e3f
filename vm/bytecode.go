package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is the tag stored in an opcode cell. Cells carry no type tag of
// their own; a decoder knows which cells are opcodes from the fixed operand
// layout of the preceding opcode.
type Opcode int32

// Statement opcodes
const (
	OpNop                Opcode = iota // never emitted
	OpExecFunction                     // fn argc run*argc; result discarded
	OpReturn                           // run (count 0 = no value)
	OpJump                             // ip
	OpAssign                           // var run
	OpAssignListVariable               // var indexRun valueRun
	OpJumpIfFalse                      // ip run
)

// Expression opcodes
const (
	OpEvalLiteral        Opcode = iota + OpJumpIfFalse + 1 // lit
	OpEvalVariable                                         // var
	OpEvalCreateList                                       // sizeRun
	OpEvalInitializeList                                   // n run*n
	OpEvalListVariable                                     // var indexRun
	OpEvalFunction                                         // fn argc run*argc
	OpEvalAdd
	OpEvalSubtract
	OpEvalMultiply
	OpEvalDivide
	OpEvalPower
	OpEvalModulus
	OpEvalConcat
	OpEvalNegate
	OpEvalAnd
	OpEvalOr
	OpEvalXor
	OpEvalNot
	OpEvalIsEqual
	OpEvalIsNotEqual
	OpEvalIsGreaterThan
	OpEvalIsGreaterThanOrEqual
	OpEvalIsLessThan
	OpEvalIsLessThanOrEqual

	opcodeCount
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeClass says which dispatch loop an opcode belongs to.
type OpcodeClass uint8

const (
	ClassStatement OpcodeClass = iota
	ClassExpression
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string      // human-readable name
	Class    OpcodeClass // statement or expression loop
	Operands int         // fixed operand cells, not counting expression runs
	Runs     int         // trailing expression runs (-1 = given by an operand)
}

// opcodeTable is indexed by opcode ordinal.
var opcodeTable = [opcodeCount]OpcodeInfo{
	OpNop:                {"Nop", ClassStatement, 0, 0},
	OpExecFunction:       {"ExecFunction", ClassStatement, 2, -1},
	OpReturn:             {"Return", ClassStatement, 0, 1},
	OpJump:               {"Jump", ClassStatement, 1, 0},
	OpAssign:             {"Assign", ClassStatement, 1, 1},
	OpAssignListVariable: {"AssignListVariable", ClassStatement, 1, 2},
	OpJumpIfFalse:        {"JumpIfFalse", ClassStatement, 1, 1},

	OpEvalLiteral:              {"EvalLiteral", ClassExpression, 1, 0},
	OpEvalVariable:             {"EvalVariable", ClassExpression, 1, 0},
	OpEvalCreateList:           {"EvalCreateList", ClassExpression, 0, 1},
	OpEvalInitializeList:       {"EvalInitializeList", ClassExpression, 1, -1},
	OpEvalListVariable:         {"EvalListVariable", ClassExpression, 1, 1},
	OpEvalFunction:             {"EvalFunction", ClassExpression, 2, -1},
	OpEvalAdd:                  {"EvalAdd", ClassExpression, 0, 0},
	OpEvalSubtract:             {"EvalSubtract", ClassExpression, 0, 0},
	OpEvalMultiply:             {"EvalMultiply", ClassExpression, 0, 0},
	OpEvalDivide:               {"EvalDivide", ClassExpression, 0, 0},
	OpEvalPower:                {"EvalPower", ClassExpression, 0, 0},
	OpEvalModulus:              {"EvalModulus", ClassExpression, 0, 0},
	OpEvalConcat:               {"EvalConcat", ClassExpression, 0, 0},
	OpEvalNegate:               {"EvalNegate", ClassExpression, 0, 0},
	OpEvalAnd:                  {"EvalAnd", ClassExpression, 0, 0},
	OpEvalOr:                   {"EvalOr", ClassExpression, 0, 0},
	OpEvalXor:                  {"EvalXor", ClassExpression, 0, 0},
	OpEvalNot:                  {"EvalNot", ClassExpression, 0, 0},
	OpEvalIsEqual:              {"EvalIsEqual", ClassExpression, 0, 0},
	OpEvalIsNotEqual:           {"EvalIsNotEqual", ClassExpression, 0, 0},
	OpEvalIsGreaterThan:        {"EvalIsGreaterThan", ClassExpression, 0, 0},
	OpEvalIsGreaterThanOrEqual: {"EvalIsGreaterThanOrEqual", ClassExpression, 0, 0},
	OpEvalIsLessThan:           {"EvalIsLessThan", ClassExpression, 0, 0},
	OpEvalIsLessThanOrEqual:    {"EvalIsLessThanOrEqual", ClassExpression, 0, 0},
}

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	return op >= 0 && op < opcodeCount
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if op.Valid() {
		return opcodeTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("Unknown(%d)", int32(op))}
}

// IsStatement reports whether op is dispatched by the statement loop.
func (op Opcode) IsStatement() bool {
	return op.Valid() && opcodeTable[op].Class == ClassStatement
}

// IsExpression reports whether op is dispatched by the expression loop.
func (op Opcode) IsExpression() bool {
	return op.Valid() && opcodeTable[op].Class == ClassExpression
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// ---------------------------------------------------------------------------
// Variable addresses
// ---------------------------------------------------------------------------

// A variable operand packs a category flag into the high bits and an index
// into the rest. The three categories have independent index spaces.
const (
	AddrGlobal    int32 = 0x10000000
	AddrLocal     int32 = 0x20000000
	AddrParameter int32 = 0x40000000
	AddrAll             = AddrGlobal | AddrLocal | AddrParameter
)

// GlobalAddr encodes a global slot index.
func GlobalAddr(index int) int32 { return AddrGlobal | int32(index) }

// LocalAddr encodes a local slot index.
func LocalAddr(index int) int32 { return AddrLocal | int32(index) }

// ParamAddr encodes a parameter slot index.
func ParamAddr(index int) int32 { return AddrParameter | int32(index) }

// AddrIndex strips the category flag from an address.
func AddrIndex(addr int32) int { return int(addr &^ AddrAll) }

func IsGlobalAddr(addr int32) bool    { return addr&AddrGlobal != 0 }
func IsLocalAddr(addr int32) bool     { return addr&AddrLocal != 0 }
func IsParameterAddr(addr int32) bool { return addr&AddrParameter != 0 }

// FormatAddr renders an address as g3, l0 or p1.
func FormatAddr(addr int32) string {
	switch {
	case IsGlobalAddr(addr):
		return fmt.Sprintf("g%d", AddrIndex(addr))
	case IsLocalAddr(addr):
		return fmt.Sprintf("l%d", AddrIndex(addr))
	case IsParameterAddr(addr):
		return fmt.Sprintf("p%d", AddrIndex(addr))
	}
	return fmt.Sprintf("?%d", addr)
}

// ---------------------------------------------------------------------------
// CodeWriter: growable cell buffer used by the compiler
// ---------------------------------------------------------------------------

// Placeholder is written into jump operands whose target is not yet known.
const Placeholder int32 = 0

// CodeWriter appends cells and records the current source line for each one.
type CodeWriter struct {
	cells []int32
	lines []int
	line  int
}

// NewCodeWriter creates an empty writer.
func NewCodeWriter() *CodeWriter {
	return &CodeWriter{
		cells: make([]int32, 0, 256),
		lines: make([]int, 0, 256),
	}
}

// SetLine sets the source line attributed to subsequently written cells.
func (w *CodeWriter) SetLine(line int) { w.line = line }

// Line returns the current source line.
func (w *CodeWriter) Line() int { return w.line }

// IP returns the position the next cell will occupy.
func (w *CodeWriter) IP() int { return len(w.cells) }

// Write appends cells and returns the position of the first one.
func (w *CodeWriter) Write(cells ...int32) int {
	ip := len(w.cells)
	for _, c := range cells {
		w.cells = append(w.cells, c)
		w.lines = append(w.lines, w.line)
	}
	return ip
}

// WriteOp appends an opcode and its fixed operands. It returns the position
// of the opcode cell.
func (w *CodeWriter) WriteOp(op Opcode, operands ...int32) int {
	ip := w.Write(int32(op))
	w.Write(operands...)
	return ip
}

// WriteAt overwrites the cell at ip.
func (w *CodeWriter) WriteAt(ip int, cell int32) {
	w.cells[ip] = cell
}

// At returns the cell at ip.
func (w *CodeWriter) At(ip int) int32 {
	return w.cells[ip]
}

// Truncate discards every cell from ip onward.
func (w *CodeWriter) Truncate(ip int) {
	w.cells = w.cells[:ip]
	w.lines = w.lines[:ip]
}

// Cells returns a copy of the written cells.
func (w *CodeWriter) Cells() []int32 {
	return append([]int32(nil), w.cells...)
}

// Lines returns a copy of the per-cell line table.
func (w *CodeWriter) Lines() []int {
	return append([]int(nil), w.lines...)
}
