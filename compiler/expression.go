package compiler

import (
	"errors"

	"github.com/chazu/weft/vm"
)

var errNotFoldable = errors.New("operator cannot be folded")

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// An expression compiles to a run: a count cell followed by that many
// opcode groups in postfix order. exprRun tracks the count while the groups
// are written.
type exprRun struct {
	count int
}

// operand describes the code just emitted for a subexpression. lit is set
// when that code is a single EvalLiteral, which makes it foldable.
type operand struct {
	start int
	lit   *vm.Variable
}

// emit writes one opcode group into the run and returns its position.
func (c *Compiler) emit(r *exprRun, op vm.Opcode, operands ...int32) int {
	r.count++
	return c.writer.WriteOp(op, operands...)
}

func (c *Compiler) emitLiteral(r *exprRun, v *vm.Variable) operand {
	pos := c.emit(r, vm.OpEvalLiteral, c.literalID(v))
	return operand{start: pos, lit: v}
}

// parseRun compiles one expression as a run. extra, if set, may append
// further groups before the count is patched.
func (c *Compiler) parseRun(extra func(r *exprRun)) bool {
	if tok := c.lexer.Peek(); tok.endsStatement() {
		c.lexer.Next()
		return c.fail(ExpectedExpression, tok)
	}
	pos := c.writer.Write(0)
	r := &exprRun{}
	if _, ok := c.parseBinary(r, 0); !ok {
		return false
	}
	if extra != nil {
		extra(r)
	}
	c.writer.WriteAt(pos, int32(r.count))
	return true
}

// binaryLevels maps tokens to operators, lowest precedence first. Power
// and the unary operators bind tighter than all of these.
var binaryLevels = []func(Token) (vm.Opcode, bool){
	func(t Token) (vm.Opcode, bool) {
		switch {
		case t.Is(KeywordOr):
			return vm.OpEvalOr, true
		case t.Is(KeywordXor):
			return vm.OpEvalXor, true
		}
		return 0, false
	},
	func(t Token) (vm.Opcode, bool) {
		return vm.OpEvalAnd, t.Is(KeywordAnd)
	},
	func(t Token) (vm.Opcode, bool) {
		switch t.Type {
		case TokenEqual:
			return vm.OpEvalIsEqual, true
		case TokenNotEqual:
			return vm.OpEvalIsNotEqual, true
		case TokenLess:
			return vm.OpEvalIsLessThan, true
		case TokenLessEqual:
			return vm.OpEvalIsLessThanOrEqual, true
		case TokenGreater:
			return vm.OpEvalIsGreaterThan, true
		case TokenGreaterEqual:
			return vm.OpEvalIsGreaterThanOrEqual, true
		}
		return 0, false
	},
	func(t Token) (vm.Opcode, bool) {
		return vm.OpEvalConcat, t.Type == TokenConcat
	},
	func(t Token) (vm.Opcode, bool) {
		switch t.Type {
		case TokenPlus:
			return vm.OpEvalAdd, true
		case TokenMinus:
			return vm.OpEvalSubtract, true
		}
		return 0, false
	},
	func(t Token) (vm.Opcode, bool) {
		switch t.Type {
		case TokenMultiply:
			return vm.OpEvalMultiply, true
		case TokenDivide:
			return vm.OpEvalDivide, true
		case TokenModulus:
			return vm.OpEvalModulus, true
		}
		return 0, false
	},
}

// parseBinary parses a left-associative chain at the given level.
func (c *Compiler) parseBinary(r *exprRun, level int) (operand, bool) {
	if level == len(binaryLevels) {
		return c.parsePower(r)
	}
	left, ok := c.parseBinary(r, level+1)
	if !ok {
		return left, false
	}
	for {
		tok := c.lexer.Next()
		op, found := binaryLevels[level](tok)
		if !found {
			c.lexer.Unget(tok)
			return left, true
		}
		right, ok := c.parseBinary(r, level+1)
		if !ok {
			return right, false
		}
		left = c.binary(r, op, left, right)
	}
}

// parsePower parses `^`, which is right-associative.
func (c *Compiler) parsePower(r *exprRun) (operand, bool) {
	base, ok := c.parseUnary(r)
	if !ok {
		return base, false
	}
	tok := c.lexer.Next()
	if tok.Type != TokenPower {
		c.lexer.Unget(tok)
		return base, true
	}
	exp, ok := c.parsePower(r)
	if !ok {
		return exp, false
	}
	return c.binary(r, vm.OpEvalPower, base, exp), true
}

func (c *Compiler) parseUnary(r *exprRun) (operand, bool) {
	tok := c.lexer.Next()
	var op vm.Opcode
	switch {
	case tok.Type == TokenMinus:
		op = vm.OpEvalNegate
	case tok.Is(KeywordNot):
		op = vm.OpEvalNot
	default:
		c.lexer.Unget(tok)
		return c.parsePrimary(r)
	}
	x, ok := c.parseUnary(r)
	if !ok {
		return x, false
	}
	return c.unary(r, op, x), true
}

// parsePrimary parses literals, variables, list elements, calls, list
// initialisers and parenthesised expressions.
func (c *Compiler) parsePrimary(r *exprRun) (operand, bool) {
	tok := c.lexer.Next()
	switch tok.Type {
	case TokenInteger, TokenFloat, TokenString:
		v, ok := c.literalValue(tok)
		if !ok {
			return operand{}, c.fail(ExpectedLiteral, tok)
		}
		return c.emitLiteral(r, v), true

	case TokenSymbol:
		return c.parseName(r, tok)

	case TokenLeftParen:
		inner, ok := c.parseBinary(r, 0)
		if !ok {
			return inner, false
		}
		return inner, c.expect(TokenRightParen, ExpectedRightParen)

	case TokenLeftBracket:
		return c.parseListInitializer(r)
	}
	return operand{}, c.fail(ExpectedOperand, tok)
}

// parseName compiles a call, a list element read or a variable read.
// true and false are constants unless a variable of that name exists.
func (c *Compiler) parseName(r *exprRun, name Token) (operand, bool) {
	switch c.lexer.Peek().Type {
	case TokenLeftParen:
		start := c.writer.IP()
		r.count++
		return operand{start: start}, c.parseCall(name, vm.OpEvalFunction)

	case TokenLeftBracket:
		addr, ok := c.lookupVariable(name.Value)
		if !ok {
			c.reportToken(VariableNotDefined, name)
			return operand{}, false
		}
		c.lexer.Next()
		start := c.emit(r, vm.OpEvalListVariable, addr)
		ok = c.parseRun(nil) && c.expect(TokenRightBracket, ExpectedRightBracket)
		return operand{start: start}, ok
	}

	if addr, ok := c.lookupVariable(name.Value); ok {
		return operand{start: c.emit(r, vm.OpEvalVariable, addr)}, true
	}
	if v, ok := c.literalValue(name); ok {
		return c.emitLiteral(r, v), true
	}
	c.reportToken(VariableNotDefined, name)
	return operand{}, false
}

// parseListInitializer compiles `[e1, e2, ...]` as EvalInitializeList n
// followed by one run per element.
func (c *Compiler) parseListInitializer(r *exprRun) (operand, bool) {
	start := c.emit(r, vm.OpEvalInitializeList, 0)
	n := 0
	if c.lexer.Peek().Type == TokenRightBracket {
		c.lexer.Next()
		return operand{start: start}, true
	}
	for {
		if !c.parseRun(nil) {
			return operand{start: start}, false
		}
		n++
		c.writer.WriteAt(start+1, int32(n))
		tok := c.lexer.Next()
		switch tok.Type {
		case TokenComma:
			continue
		case TokenRightBracket:
			return operand{start: start}, true
		}
		return operand{start: start}, c.fail(ExpectedRightBracket, tok)
	}
}

// parseCall compiles `name(args)` as op fn argc followed by one run per
// argument. Calls to intrinsic and host functions are checked against
// their argument bounds.
func (c *Compiler) parseCall(name Token, op vm.Opcode) bool {
	id := c.functionRef(name)
	ip := c.writer.WriteOp(op, int32(id), 0)
	c.lexer.Next() // (

	argc := 0
	if c.lexer.Peek().Type == TokenRightParen {
		c.lexer.Next()
	} else {
		for {
			if !c.parseRun(nil) {
				return false
			}
			argc++
			tok := c.lexer.Next()
			if tok.Type == TokenComma {
				continue
			}
			if tok.Type != TokenRightParen {
				return c.fail(ExpectedRightParen, tok)
			}
			break
		}
	}
	c.writer.WriteAt(ip+2, int32(argc))

	if f, ok := c.functions[id].(*vm.InternalFunction); ok {
		if argc < f.MinParameters || (f.MaxParameters >= 0 && argc > f.MaxParameters) {
			c.reportToken(WrongNumberOfArguments, name)
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------------

// binary emits op over left and right. When both are literals the result
// is computed now and the two EvalLiteral groups are replaced by one. A
// fold that would fault at run time is left for the VM to report.
func (c *Compiler) binary(r *exprRun, op vm.Opcode, left, right operand) operand {
	if left.lit != nil && right.lit != nil {
		if v, err := fold(op, left.lit, right.lit); err == nil {
			c.writer.Truncate(left.start)
			r.count -= 2
			return c.emitLiteral(r, v)
		}
	}
	c.emit(r, op)
	return operand{start: left.start}
}

func (c *Compiler) unary(r *exprRun, op vm.Opcode, x operand) operand {
	if x.lit != nil {
		var v *vm.Variable
		var err error
		if op == vm.OpEvalNegate {
			v, err = x.lit.Negate()
		} else {
			v, err = x.lit.Not()
		}
		if err == nil {
			c.writer.Truncate(x.start)
			r.count--
			return c.emitLiteral(r, v)
		}
	}
	c.emit(r, op)
	return operand{start: x.start}
}

// fold evaluates a binary operator over two constants with the same value
// model the VM uses.
func fold(op vm.Opcode, a, b *vm.Variable) (*vm.Variable, error) {
	switch op {
	case vm.OpEvalAdd:
		return a.Add(b)
	case vm.OpEvalSubtract:
		return a.Subtract(b)
	case vm.OpEvalMultiply:
		return a.Multiply(b)
	case vm.OpEvalDivide:
		return a.Divide(b)
	case vm.OpEvalPower:
		return a.Power(b)
	case vm.OpEvalModulus:
		return a.Modulus(b)
	case vm.OpEvalConcat:
		return a.Concat(b), nil
	case vm.OpEvalAnd:
		return a.And(b)
	case vm.OpEvalOr:
		return a.Or(b)
	case vm.OpEvalXor:
		return a.Xor(b)
	case vm.OpEvalIsEqual:
		return vm.NewBool(a.IsEqual(b)), nil
	case vm.OpEvalIsNotEqual:
		return vm.NewBool(a.IsNotEqual(b)), nil
	case vm.OpEvalIsGreaterThan:
		return vm.NewBool(a.IsGreaterThan(b)), nil
	case vm.OpEvalIsGreaterThanOrEqual:
		return vm.NewBool(a.IsGreaterThanOrEqual(b)), nil
	case vm.OpEvalIsLessThan:
		return vm.NewBool(a.IsLessThan(b)), nil
	case vm.OpEvalIsLessThanOrEqual:
		return vm.NewBool(a.IsLessThanOrEqual(b)), nil
	}
	return nil, errNotFoldable
}
