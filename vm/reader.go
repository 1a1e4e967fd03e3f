package vm

import "fmt"

// ---------------------------------------------------------------------------
// Reader: sequential cursor over program cells
// ---------------------------------------------------------------------------

// Reader walks a cell slice. A stack of saved positions lets a call resume
// its caller exactly where it left off.
type Reader struct {
	cells []int32
	ip    int
	saved []int
}

// NewReader creates a reader positioned at the first cell.
func NewReader(cells []int32) *Reader {
	return &Reader{cells: cells, saved: make([]int, 0, 16)}
}

// IP returns the position of the next cell to be read.
func (r *Reader) IP() int { return r.ip }

// EOF reports whether every cell has been consumed.
func (r *Reader) EOF() bool { return r.ip >= len(r.cells) }

// NextOp reads the next cell as an opcode.
func (r *Reader) NextOp() (Opcode, error) {
	v, err := r.NextValue()
	if err != nil {
		return OpNop, err
	}
	op := Opcode(v)
	if !op.Valid() {
		return OpNop, fmt.Errorf("%w: %d at %d", ErrInvalidOpcode, v, r.ip-1)
	}
	return op, nil
}

// NextValue reads the next cell as a plain operand.
func (r *Reader) NextValue() (int32, error) {
	if r.ip < 0 || r.ip >= len(r.cells) {
		return 0, fmt.Errorf("%w: read at %d of %d", ErrInstructionPointer, r.ip, len(r.cells))
	}
	v := r.cells[r.ip]
	r.ip++
	return v, nil
}

// GoTo moves the cursor to ip.
func (r *Reader) GoTo(ip int) error {
	if ip < 0 || ip >= len(r.cells) {
		return fmt.Errorf("%w: jump to %d of %d", ErrInstructionPointer, ip, len(r.cells))
	}
	r.ip = ip
	return nil
}

// Push saves the current position.
func (r *Reader) Push() {
	r.saved = append(r.saved, r.ip)
}

// Pop restores the position saved by the matching Push.
func (r *Reader) Pop() error {
	n := len(r.saved)
	if n == 0 {
		return fmt.Errorf("%w: reader position stack", ErrStackUnderflow)
	}
	r.ip = r.saved[n-1]
	r.saved = r.saved[:n-1]
	return nil
}

// Depth returns the number of saved positions.
func (r *Reader) Depth() int { return len(r.saved) }
