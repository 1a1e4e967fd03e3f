package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble renders every cell of p, one opcode per line. Expression runs
// are indented under the opcode that owns them and each user function is
// introduced by its name.
func Disassemble(p *CompiledProgram) string {
	d := &disassembler{
		cells:     p.Cells,
		literals:  p.Literals,
		functions: p.Functions,
		entries:   make(map[int]*UserFunction),
	}
	for _, f := range p.UserFunctions() {
		d.entries[f.IP] = f
	}
	for d.ip < len(d.cells) {
		if !d.statement() {
			fmt.Fprintf(&d.out, "%04d  <truncated>\n", d.ip)
			break
		}
	}
	return d.out.String()
}

type disassembler struct {
	cells     []int32
	ip        int
	literals  []*Variable
	functions []Function
	entries   map[int]*UserFunction
	out       strings.Builder
}

func (d *disassembler) next() (int32, bool) {
	if d.ip >= len(d.cells) {
		return 0, false
	}
	v := d.cells[d.ip]
	d.ip++
	return v, true
}

func (d *disassembler) emit(pos, depth int, format string, args ...any) {
	fmt.Fprintf(&d.out, "%04d  %s", pos, strings.Repeat("  ", depth))
	fmt.Fprintf(&d.out, format, args...)
	d.out.WriteByte('\n')
}

func (d *disassembler) functionName(id int32) string {
	if id >= 0 && int(id) < len(d.functions) {
		return d.functions[id].FunctionName()
	}
	return fmt.Sprintf("?%d", id)
}

func (d *disassembler) literal(id int32) string {
	if id >= 0 && int(id) < len(d.literals) {
		return fmt.Sprintf("%#v", d.literals[id])
	}
	return fmt.Sprintf("?%d", id)
}

func (d *disassembler) statement() bool {
	pos := d.ip
	if f, ok := d.entries[pos]; ok {
		fmt.Fprintf(&d.out, "%s(params=%d locals=%d):\n", f.Name, f.NumParameters, f.NumVariables)
	}
	v, ok := d.next()
	if !ok {
		return false
	}
	op := Opcode(v)
	switch op {
	case OpExecFunction:
		return d.call(pos, 0, op)
	case OpReturn:
		d.emit(pos, 0, "%s", op)
		return d.run(1)
	case OpJump:
		target, ok := d.next()
		d.emit(pos, 0, "%s -> %04d", op, target)
		return ok
	case OpJumpIfFalse:
		target, ok := d.next()
		if !ok {
			return false
		}
		d.emit(pos, 0, "%s -> %04d", op, target)
		return d.run(1)
	case OpAssign:
		addr, ok := d.next()
		if !ok {
			return false
		}
		d.emit(pos, 0, "%s %s", op, FormatAddr(addr))
		return d.run(1)
	case OpAssignListVariable:
		addr, ok := d.next()
		if !ok {
			return false
		}
		d.emit(pos, 0, "%s %s", op, FormatAddr(addr))
		return d.run(1) && d.run(1)
	default:
		d.emit(pos, 0, "%s", op)
		return true
	}
}

func (d *disassembler) call(pos, depth int, op Opcode) bool {
	id, ok := d.next()
	if !ok {
		return false
	}
	argc, ok := d.next()
	if !ok {
		return false
	}
	d.emit(pos, depth, "%s %s argc=%d", op, d.functionName(id), argc)
	for i := int32(0); i < argc; i++ {
		if !d.run(depth + 1) {
			return false
		}
	}
	return true
}

// run renders one expression run at the given depth.
func (d *disassembler) run(depth int) bool {
	pos := d.ip
	count, ok := d.next()
	if !ok {
		return false
	}
	if count == 0 {
		d.emit(pos, depth, "(none)")
		return true
	}
	for i := int32(0); i < count; i++ {
		if !d.expression(depth) {
			return false
		}
	}
	return true
}

func (d *disassembler) expression(depth int) bool {
	pos := d.ip
	v, ok := d.next()
	if !ok {
		return false
	}
	op := Opcode(v)
	switch op {
	case OpEvalLiteral:
		id, ok := d.next()
		d.emit(pos, depth, "%s %s", op, d.literal(id))
		return ok
	case OpEvalVariable:
		addr, ok := d.next()
		d.emit(pos, depth, "%s %s", op, FormatAddr(addr))
		return ok
	case OpEvalCreateList:
		d.emit(pos, depth, "%s", op)
		return d.run(depth + 1)
	case OpEvalInitializeList:
		n, ok := d.next()
		if !ok {
			return false
		}
		d.emit(pos, depth, "%s n=%d", op, n)
		for i := int32(0); i < n; i++ {
			if !d.run(depth + 1) {
				return false
			}
		}
		return true
	case OpEvalListVariable:
		addr, ok := d.next()
		if !ok {
			return false
		}
		d.emit(pos, depth, "%s %s", op, FormatAddr(addr))
		return d.run(depth + 1)
	case OpEvalFunction:
		return d.call(pos, depth, op)
	default:
		d.emit(pos, depth, "%s", op)
		return op.IsExpression()
	}
}
