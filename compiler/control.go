package compiler

import (
	"strconv"
	"strings"

	"github.com/chazu/weft/vm"
)

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseStatement compiles one statement. It returns false, without
// consuming anything, at a closing brace or EOF.
func (c *Compiler) parseStatement() bool {
	if c.aborted {
		return false
	}
	tok := c.lexer.NextSkipNewLines()
	c.writer.SetLine(tok.Line)

	var ok bool
	switch tok.Type {
	case TokenEOF, TokenRightBrace:
		c.lexer.Unget(tok)
		return false
	case TokenLeftBrace:
		c.lexer.Unget(tok)
		c.parseCodeBlock()
		return true
	case TokenKeyword:
		ok = c.parseKeyword(tok)
	case TokenSymbol:
		ok = c.parseSymbol(tok)
	default:
		ok = c.fail(UnexpectedToken, tok)
	}
	if !ok {
		c.lexer.SkipLine()
	}
	return true
}

// endStatement requires the end of the line, or a closing brace for
// one-line blocks.
func (c *Compiler) endStatement() bool {
	tok := c.lexer.Next()
	if !tok.endsStatement() {
		return c.fail(UnexpectedToken, tok)
	}
	if tok.Type != TokenNewLine {
		c.lexer.Unget(tok)
	}
	return true
}

// parseCodeBlock compiles either a braced block or a single statement.
func (c *Compiler) parseCodeBlock() {
	tok := c.lexer.NextSkipNewLines()
	if tok.Type != TokenLeftBrace {
		c.lexer.Unget(tok)
		c.parseStatement()
		return
	}
	for c.parseStatement() {
	}
	tok = c.lexer.Next()
	if tok.Type != TokenRightBrace {
		c.reportToken(ExpectedRightBrace, tok)
		c.lexer.Unget(tok)
	}
}

// expect consumes a token of type t or fails with code.
func (c *Compiler) expect(t TokenType, code ErrorCode) bool {
	tok := c.lexer.Next()
	if tok.Type != t {
		return c.fail(code, tok)
	}
	return true
}

// parseSymbol handles statements that start with a name: labels, calls,
// list element assignment and assignment.
func (c *Compiler) parseSymbol(name Token) bool {
	next := c.lexer.Next()
	switch next.Type {
	case TokenColon:
		if !c.scope.labels.define(name.Value, c.writer.IP(), c.writer) {
			c.reportToken(DuplicateLabel, name)
		}
		return true

	case TokenLeftParen:
		c.lexer.Unget(next)
		return c.parseCall(name, vm.OpExecFunction) && c.endStatement()

	case TokenLeftBracket:
		addr, ok := c.lookupVariable(name.Value)
		if !ok {
			c.reportToken(VariableNotDefined, name)
			return false
		}
		c.writer.WriteOp(vm.OpAssignListVariable, addr)
		return c.parseRun(nil) &&
			c.expect(TokenRightBracket, ExpectedRightBracket) &&
			c.expect(TokenEqual, ExpectedEquals) &&
			c.parseRun(nil) &&
			c.endStatement()

	case TokenEqual:
		// Assignment declares the variable if it is new.
		c.writer.WriteOp(vm.OpAssign, c.variable(name.Value))
		return c.parseRun(nil) && c.endStatement()
	}
	return c.fail(ExpectedEquals, next)
}

// parseKeyword dispatches statements that start with a keyword.
func (c *Compiler) parseKeyword(tok Token) bool {
	switch tok.Keyword {
	case KeywordVar:
		return c.parseVar(tok)
	case KeywordGoTo:
		return c.parseGoTo()
	case KeywordIf:
		return c.parseIf()
	case KeywordWhile:
		return c.parseWhile()
	case KeywordFor:
		return c.parseFor(tok)
	case KeywordReturn:
		return c.parseReturn()
	}
	return c.fail(UnexpectedKeyword, tok)
}

// ---------------------------------------------------------------------------
// var
// ---------------------------------------------------------------------------

// parseVar declares a variable. In the header it creates a global whose
// initialiser must be a literal; in a function it creates a local and
// compiles any initialiser as an assignment.
func (c *Compiler) parseVar(kw Token) bool {
	name := c.lexer.Next()
	if name.Type != TokenSymbol {
		return c.fail(ExpectedSymbol, name)
	}
	if _, exists := c.lookupVariable(name.Value); exists {
		c.reportToken(VariableAlreadyDefined, name)
		return false
	}
	addr := c.declareVariable(name.Value)

	switch c.lexer.Peek().Type {
	case TokenEqual:
		c.lexer.Next()
		if c.scope == nil {
			v, ok := c.parseLiteral()
			if !ok {
				return false
			}
			c.globals[vm.AddrIndex(addr)] = v
			return c.endStatement()
		}
		c.writer.WriteOp(vm.OpAssign, addr)
		return c.parseRun(nil) && c.endStatement()

	case TokenLeftBracket:
		c.lexer.Next()
		if c.scope == nil {
			size, ok := c.parseLiteral()
			if !ok {
				return false
			}
			if size.Type() != vm.TypeInteger || size.ToInteger() < 0 || size.ToInteger() > vm.MaxListSize {
				c.report(ExpectedLiteral, kw.Line, quote(size.String()))
				return false
			}
			c.globals[vm.AddrIndex(addr)] = vm.CreateList(int(size.ToInteger()))
			return c.expect(TokenRightBracket, ExpectedRightBracket) && c.endStatement()
		}
		// Assign l run{EvalCreateList run{size}}
		c.writer.WriteOp(vm.OpAssign, addr)
		c.writer.Write(1)
		c.writer.WriteOp(vm.OpEvalCreateList)
		return c.parseRun(nil) &&
			c.expect(TokenRightBracket, ExpectedRightBracket) &&
			c.endStatement()
	}
	return c.endStatement()
}

// parseLiteral reads an optionally negated numeric, string or boolean
// literal.
func (c *Compiler) parseLiteral() (*vm.Variable, bool) {
	tok := c.lexer.Next()
	negate := tok.Type == TokenMinus
	if negate {
		tok = c.lexer.Next()
	}
	v, ok := c.literalValue(tok)
	if !ok {
		c.fail(ExpectedLiteral, tok)
		return nil, false
	}
	if negate {
		n, err := v.Negate()
		if err != nil {
			c.reportToken(ExpectedLiteral, tok)
			return nil, false
		}
		v = n
	}
	return v, true
}

// literalValue converts a literal token to a value.
func (c *Compiler) literalValue(tok Token) (*vm.Variable, bool) {
	switch tok.Type {
	case TokenInteger:
		n, err := strconv.ParseInt(tok.Value, 0, 64)
		if err != nil {
			// Out of int64 range: keep the magnitude as a float.
			f, ferr := strconv.ParseFloat(tok.Value, 64)
			if ferr != nil {
				return nil, false
			}
			return vm.NewFloat(f), true
		}
		return vm.NewInteger(n), true
	case TokenFloat:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, false
		}
		return vm.NewFloat(f), true
	case TokenString:
		return vm.NewString(tok.Value), true
	case TokenSymbol:
		switch strings.ToLower(tok.Value) {
		case "true":
			return vm.NewInteger(vm.True), true
		case "false":
			return vm.NewInteger(vm.False), true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// goto and return
// ---------------------------------------------------------------------------

func (c *Compiler) parseGoTo() bool {
	name := c.lexer.Next()
	if name.Type != TokenSymbol {
		return c.fail(ExpectedSymbol, name)
	}
	ip := c.writer.WriteOp(vm.OpJump, vm.Placeholder)
	c.writer.WriteAt(ip+1, c.scope.labels.reference(name.Value, ip+1, name.Line))
	return c.endStatement()
}

// parseReturn writes Return and an optional value run; a zero count means
// no value.
func (c *Compiler) parseReturn() bool {
	c.writer.WriteOp(vm.OpReturn)
	if c.lexer.Peek().endsStatement() {
		c.writer.Write(0)
		return c.endStatement()
	}
	return c.parseRun(nil) && c.endStatement()
}

// ---------------------------------------------------------------------------
// if / else if / else
// ---------------------------------------------------------------------------

// parseIf compiles an if chain:
//
//	JumpIfFalse next cond  body  Jump end
//	next: JumpIfFalse next2 cond2  body2  Jump end
//	next2: else-body
//	end:
func (c *Compiler) parseIf() bool {
	var breaks []int
	foundElse := false

	ip := c.writer.WriteOp(vm.OpJumpIfFalse, vm.Placeholder)
	falseTarget := ip + 1
	if !c.parseRun(nil) {
		return false
	}

	for {
		c.parseCodeBlock()

		tok := c.lexer.NextSkipNewLines()
		if !tok.Is(KeywordElse) {
			c.lexer.Unget(tok)
			break
		}
		if foundElse {
			c.reportToken(UnexpectedKeyword, tok)
			break
		}

		// Leave the taken branch, then start the next test here.
		ip := c.writer.WriteOp(vm.OpJump, vm.Placeholder)
		breaks = append(breaks, ip+1)
		c.writer.WriteAt(falseTarget, int32(c.writer.IP()))

		tok = c.lexer.Next()
		if tok.Is(KeywordIf) {
			ip := c.writer.WriteOp(vm.OpJumpIfFalse, vm.Placeholder)
			falseTarget = ip + 1
			if !c.parseRun(nil) {
				return false
			}
		} else {
			c.lexer.Unget(tok)
			foundElse = true
		}
	}

	end := int32(c.writer.IP())
	if !foundElse {
		c.writer.WriteAt(falseTarget, end)
	}
	for _, pos := range breaks {
		c.writer.WriteAt(pos, end)
	}
	return true
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

// parseWhile compiles `while cond body` as
//
//	start: JumpIfFalse end cond  body  Jump start
//	end:
func (c *Compiler) parseWhile() bool {
	start := c.writer.WriteOp(vm.OpJumpIfFalse, vm.Placeholder)
	if !c.parseRun(nil) || !c.blockFollows() {
		return false
	}
	c.parseCodeBlock()
	c.writer.WriteOp(vm.OpJump, int32(start))
	c.writer.WriteAt(start+1, int32(c.writer.IP()))
	return true
}

// parseFor compiles `for v = init to bound [step literal] body` as
//
//	Assign v init
//	start: JumpIfFalse end run{bound, v, >=}    (<= for a negative step)
//	body
//	Assign v run{v, step, +}
//	Jump start
//	end:
//
// The step must be a literal so the direction of the test is known here.
func (c *Compiler) parseFor(kw Token) bool {
	name := c.lexer.Next()
	if name.Type != TokenSymbol {
		return c.fail(ExpectedSymbol, name)
	}
	addr := c.variable(name.Value)

	if !c.expect(TokenEqual, ExpectedEquals) {
		return false
	}
	c.writer.WriteOp(vm.OpAssign, addr)
	if !c.parseRun(nil) {
		return false
	}
	if tok := c.lexer.Next(); !tok.Is(KeywordTo) {
		return c.fail(ExpectedTo, tok)
	}

	start := c.writer.WriteOp(vm.OpJumpIfFalse, vm.Placeholder)
	compare := -1
	ok := c.parseRun(func(r *exprRun) {
		c.emit(r, vm.OpEvalVariable, addr)
		compare = c.emit(r, vm.OpEvalIsGreaterThanOrEqual)
	})
	if !ok {
		return false
	}

	step := vm.NewInteger(1)
	if tok := c.lexer.Peek(); tok.Is(KeywordStep) {
		c.lexer.Next()
		v, ok := c.parseLiteral()
		if !ok {
			return false
		}
		if (v.Type() != vm.TypeInteger && v.Type() != vm.TypeFloat) || v.IsEqualInt(0) {
			c.reportToken(InvalidStepValue, tok)
			return false
		}
		if v.IsLessThanInt(0) {
			c.writer.WriteAt(compare, int32(vm.OpEvalIsLessThanOrEqual))
		}
		step = v
	}
	if !c.blockFollows() {
		return false
	}

	c.parseCodeBlock()

	c.writer.SetLine(kw.Line)
	c.writer.WriteOp(vm.OpAssign, addr)
	c.writer.Write(3)
	c.writer.WriteOp(vm.OpEvalVariable, addr)
	c.writer.WriteOp(vm.OpEvalLiteral, c.literalID(step))
	c.writer.WriteOp(vm.OpEvalAdd)
	c.writer.WriteOp(vm.OpJump, int32(start))
	c.writer.WriteAt(start+1, int32(c.writer.IP()))
	return true
}

// blockFollows checks that a loop header is followed by the end of the line
// or an opening brace.
func (c *Compiler) blockFollows() bool {
	tok := c.lexer.Peek()
	switch tok.Type {
	case TokenNewLine, TokenLeftBrace, TokenEOF:
		return true
	}
	c.lexer.Next()
	return c.fail(UnexpectedToken, tok)
}
