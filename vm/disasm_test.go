package vm

import (
	"strings"
	"testing"
)

func TestDisassemble(t *testing.T) {
	out := Disassemble(sampleProgram())
	for _, want := range []string{
		"0000  ExecFunction main argc=0",
		"main(params=0 locals=1):",
		"ExecFunction print argc=1",
		"    EvalLiteral String(\"x\")",
		"EvalFunction len argc=1",
		"EvalLiteral Float(2.5)",
		"  EvalAdd",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<truncated>") {
		t.Errorf("complete program reported truncated:\n%s", out)
	}
}

func TestDisassembleJumpsAndEmptyRuns(t *testing.T) {
	tp := newTestProgram()
	main := tp.declare("main", 0, 1)
	tp.begin(main)
	tp.emit(op(OpJump, 8))
	tp.emit(op(OpNop))
	tp.emit(op(OpReturn), run())

	out := Disassemble(tp.build())
	if !strings.Contains(out, "Jump -> 0008") {
		t.Errorf("jump target not rendered:\n%s", out)
	}
	if !strings.Contains(out, "(none)") {
		t.Errorf("empty return run not rendered:\n%s", out)
	}
}

func TestDisassembleTruncated(t *testing.T) {
	p := &CompiledProgram{Cells: []int32{int32(OpAssign), LocalAddr(0)}}
	out := Disassemble(p)
	if !strings.HasSuffix(strings.TrimSpace(out), "<truncated>") {
		t.Errorf("expected truncation marker:\n%s", out)
	}
}
