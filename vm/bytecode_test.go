package vm

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeOrdinals(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int32
	}{
		{OpNop, 0},
		{OpExecFunction, 1},
		{OpReturn, 2},
		{OpJump, 3},
		{OpAssign, 4},
		{OpAssignListVariable, 5},
		{OpJumpIfFalse, 6},
		{OpEvalLiteral, 7},
		{OpEvalFunction, 12},
		{OpEvalAdd, 13},
		{OpEvalConcat, 19},
		{OpEvalNot, 24},
		{OpEvalIsEqual, 25},
		{OpEvalIsLessThanOrEqual, 30},
	}
	for _, tt := range tests {
		if int32(tt.op) != tt.want {
			t.Errorf("%s = %d, want %d", tt.op, int32(tt.op), tt.want)
		}
	}
	if opcodeCount != 31 {
		t.Errorf("opcodeCount = %d, want 31", opcodeCount)
	}
}

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op       Opcode
		name     string
		class    OpcodeClass
		operands int
		runs     int
	}{
		{OpNop, "Nop", ClassStatement, 0, 0},
		{OpExecFunction, "ExecFunction", ClassStatement, 2, -1},
		{OpReturn, "Return", ClassStatement, 0, 1},
		{OpJump, "Jump", ClassStatement, 1, 0},
		{OpAssign, "Assign", ClassStatement, 1, 1},
		{OpAssignListVariable, "AssignListVariable", ClassStatement, 1, 2},
		{OpJumpIfFalse, "JumpIfFalse", ClassStatement, 1, 1},
		{OpEvalLiteral, "EvalLiteral", ClassExpression, 1, 0},
		{OpEvalCreateList, "EvalCreateList", ClassExpression, 0, 1},
		{OpEvalInitializeList, "EvalInitializeList", ClassExpression, 1, -1},
		{OpEvalListVariable, "EvalListVariable", ClassExpression, 1, 1},
		{OpEvalIsGreaterThanOrEqual, "EvalIsGreaterThanOrEqual", ClassExpression, 0, 0},
	}
	for _, tt := range tests {
		info := tt.op.Info()
		if info.Name != tt.name {
			t.Errorf("%d: Name = %q, want %q", int32(tt.op), info.Name, tt.name)
		}
		if info.Class != tt.class {
			t.Errorf("%s: Class = %d, want %d", tt.op, info.Class, tt.class)
		}
		if info.Operands != tt.operands {
			t.Errorf("%s: Operands = %d, want %d", tt.op, info.Operands, tt.operands)
		}
		if info.Runs != tt.runs {
			t.Errorf("%s: Runs = %d, want %d", tt.op, info.Runs, tt.runs)
		}
	}
}

func TestEveryOpcodeHasMetadata(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		if op.Info().Name == "" {
			t.Errorf("opcode %d has no metadata", int32(op))
		}
		if op.IsStatement() == op.IsExpression() {
			t.Errorf("%s must be exactly one of statement or expression", op)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(999)
	if op.Valid() {
		t.Fatal("999 should not be a valid opcode")
	}
	if !strings.HasPrefix(op.String(), "Unknown") {
		t.Errorf("unknown opcode name = %q", op.String())
	}
}

// ---------------------------------------------------------------------------
// Address tests
// ---------------------------------------------------------------------------

func TestAddressEncoding(t *testing.T) {
	tests := []struct {
		addr              int32
		index             int
		global, local, pm bool
		text              string
	}{
		{GlobalAddr(3), 3, true, false, false, "g3"},
		{LocalAddr(0), 0, false, true, false, "l0"},
		{ParamAddr(12), 12, false, false, true, "p12"},
	}
	for _, tt := range tests {
		if got := AddrIndex(tt.addr); got != tt.index {
			t.Errorf("AddrIndex(%#x) = %d, want %d", tt.addr, got, tt.index)
		}
		if IsGlobalAddr(tt.addr) != tt.global || IsLocalAddr(tt.addr) != tt.local || IsParameterAddr(tt.addr) != tt.pm {
			t.Errorf("%#x: wrong category", tt.addr)
		}
		if got := FormatAddr(tt.addr); got != tt.text {
			t.Errorf("FormatAddr(%#x) = %q, want %q", tt.addr, got, tt.text)
		}
	}
	if GlobalAddr(0) != 0x10000000 || LocalAddr(0) != 0x20000000 || ParamAddr(0) != 0x40000000 {
		t.Error("address flag values changed")
	}
}

// ---------------------------------------------------------------------------
// CodeWriter tests
// ---------------------------------------------------------------------------

func TestCodeWriter(t *testing.T) {
	w := NewCodeWriter()
	w.SetLine(1)
	if ip := w.WriteOp(OpJump, Placeholder); ip != 0 {
		t.Fatalf("first op at %d, want 0", ip)
	}
	w.SetLine(2)
	ip := w.WriteOp(OpAssign, LocalAddr(0))
	if ip != 2 || w.IP() != 4 {
		t.Fatalf("ip=%d IP()=%d, want 2 and 4", ip, w.IP())
	}
	w.WriteAt(1, 4)
	if w.At(1) != 4 {
		t.Errorf("WriteAt did not patch cell")
	}
	lines := w.Lines()
	if len(lines) != 4 || lines[0] != 1 || lines[2] != 2 {
		t.Errorf("lines = %v", lines)
	}
	w.Truncate(2)
	if w.IP() != 2 || len(w.Lines()) != 2 {
		t.Errorf("after Truncate IP=%d lines=%d", w.IP(), len(w.Lines()))
	}
	cells := w.Cells()
	cells[0] = 99
	if w.At(0) == 99 {
		t.Error("Cells must return a copy")
	}
}

// ---------------------------------------------------------------------------
// Reader tests
// ---------------------------------------------------------------------------

func TestReaderPushPop(t *testing.T) {
	r := NewReader([]int32{int32(OpJump), 3, int32(OpNop), int32(OpReturn), 0})
	op, err := r.NextOp()
	if err != nil || op != OpJump {
		t.Fatalf("NextOp = %v, %v", op, err)
	}
	r.Push()
	if err := r.GoTo(3); err != nil {
		t.Fatal(err)
	}
	if op, _ := r.NextOp(); op != OpReturn {
		t.Errorf("after GoTo read %s", op)
	}
	if err := r.Pop(); err != nil {
		t.Fatal(err)
	}
	if r.IP() != 1 {
		t.Errorf("IP after Pop = %d, want 1", r.IP())
	}
	if err := r.Pop(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("second Pop err = %v, want ErrStackUnderflow", err)
	}
}

func TestReaderFaults(t *testing.T) {
	r := NewReader([]int32{500})
	if _, err := r.NextOp(); !errors.Is(err, ErrInvalidOpcode) {
		t.Errorf("NextOp(500) err = %v", err)
	}
	if _, err := r.NextValue(); !errors.Is(err, ErrInstructionPointer) {
		t.Errorf("read past end err = %v", err)
	}
	if err := r.GoTo(7); !errors.Is(err, ErrInstructionPointer) {
		t.Errorf("GoTo(7) err = %v", err)
	}
	if !r.EOF() {
		t.Error("reader should be at EOF")
	}
}
