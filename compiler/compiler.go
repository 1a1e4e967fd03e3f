package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/weft/vm"
)

var log = commonlog.GetLogger("weft.compiler")

// DefaultMaxErrors is the number of diagnostics after which compilation is
// abandoned with a TooManyErrors fatal error.
const DefaultMaxErrors = 45

// Options control code generation.
type Options struct {
	// MaxErrors stops compilation once this many errors are reported.
	// Zero or less means no limit.
	MaxErrors int
	// LineNumbers attaches a line table to the program so runtime faults
	// can name a source line.
	LineNumbers bool
}

// DefaultOptions returns the options used by NewCompiler(DefaultOptions()).
func DefaultOptions() Options {
	return Options{MaxErrors: DefaultMaxErrors, LineNumbers: true}
}

// ---------------------------------------------------------------------------
// Compiler
// ---------------------------------------------------------------------------

// Compiler turns Weft source into a vm.CompiledProgram in a single pass.
// Host functions are declared with RegisterFunction before calling Compile;
// one Compiler may compile any number of sources, but not concurrently.
type Compiler struct {
	opts  Options
	hosts []vm.InternalFunction

	// per-compilation state
	lexer         *Lexer
	writer        *vm.CodeWriter
	functions     []vm.Function
	functionIndex map[string]int
	forward       map[int]int // function id -> line of first call before definition
	globals       []*vm.Variable
	globalIndex   map[string]int
	literals      []*vm.Variable
	literalIndex  map[string]int32
	scope         *functionScope
	inHeader      bool
	errors        ErrorList
	aborted       bool
}

// functionScope is the state of the function body being compiled.
type functionScope struct {
	fn     *vm.UserFunction
	params map[string]int
	locals map[string]int
	labels *labelTable
}

// NewCompiler creates a compiler with the given options.
func NewCompiler(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

// Options returns the options the compiler was created with.
func (c *Compiler) Options() Options {
	return c.opts
}

// RegisterFunction declares a host function that programs may call. Calls
// are checked against the argument bounds at compile time; max < 0 means
// no upper bound. At run time the call is delivered to vm.Host.Function.
func (c *Compiler) RegisterFunction(name string, min, max int) error {
	if name == "" {
		return fmt.Errorf("compiler: empty function name")
	}
	if _, ok := vm.LookupIntrinsic(name); ok {
		return fmt.Errorf("compiler: %q is an intrinsic function", name)
	}
	for _, h := range c.hosts {
		if strings.EqualFold(h.Name, name) {
			return fmt.Errorf("compiler: function %q already registered", name)
		}
	}
	if max >= 0 && max < min {
		return fmt.Errorf("compiler: function %q: max %d is less than min %d", name, max, min)
	}
	c.hosts = append(c.hosts, vm.InternalFunction{Name: name, MinParameters: min, MaxParameters: max})
	return nil
}

// HostFunctions returns the host functions registered so far.
func (c *Compiler) HostFunctions() []vm.InternalFunction {
	return append([]vm.InternalFunction(nil), c.hosts...)
}

// Errors returns the diagnostics of the most recent Compile.
func (c *Compiler) Errors() ErrorList {
	return c.errors
}

// Digest identifies source as compiled by c: equal digests produce
// equivalent programs.
func (c *Compiler) Digest(source string) string {
	h := sha256.New()
	fmt.Fprintf(h, "weft image=%d max-errors=%d lines=%t\n", vm.ImageVersion, c.opts.MaxErrors, c.opts.LineNumbers)
	for _, f := range c.hosts {
		fmt.Fprintf(h, "host %s %d %d\n", strings.ToLower(f.Name), f.MinParameters, f.MaxParameters)
	}
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Compile compiles source. On failure the returned error is an ErrorList
// and the program is nil.
func (c *Compiler) Compile(source string) (prog *vm.CompiledProgram, err error) {
	c.reset(source)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("internal compiler error: %v", r)
			c.errors = append(c.errors, newError(LevelFatalError, InternalError, c.lexer.Line(), fmt.Sprint(r)))
			prog, err = nil, c.errors
		}
	}()

	// Every program starts by calling main; its id is patched in once known.
	c.writer.SetLine(1)
	c.writer.WriteOp(vm.OpExecFunction, vm.Placeholder, 0)

	c.parseProgram()
	if !c.aborted {
		c.finish()
	}

	if len(c.errors) > 0 {
		log.Debugf("compile failed with %d errors", len(c.errors))
		return nil, c.errors
	}

	prog = &vm.CompiledProgram{
		Cells:        c.writer.Cells(),
		Functions:    c.functions,
		Globals:      c.globals,
		Literals:     c.literals,
		BuildID:      uuid.NewString(),
		SourceDigest: c.Digest(source),
	}
	if c.opts.LineNumbers {
		prog.Lines = c.writer.Lines()
	}
	log.Debugf("compiled %d cells, %d functions, %d globals, %d literals",
		len(prog.Cells), len(prog.Functions), len(prog.Globals), len(prog.Literals))
	return prog, nil
}

func (c *Compiler) reset(source string) {
	c.lexer = NewLexer(source)
	c.writer = vm.NewCodeWriter()
	c.functions = nil
	c.functionIndex = make(map[string]int)
	c.forward = make(map[int]int)
	c.globals = nil
	c.globalIndex = make(map[string]int)
	c.literals = nil
	c.literalIndex = make(map[string]int32)
	c.scope = nil
	c.inHeader = true
	c.errors = nil
	c.aborted = false

	// Intrinsics first, then host functions, then user functions.
	for _, f := range vm.Intrinsics() {
		c.addFunction(f)
	}
	for i := range c.hosts {
		f := c.hosts[i]
		c.addFunction(&f)
	}
}

func (c *Compiler) addFunction(f vm.Function) int {
	id := len(c.functions)
	c.functions = append(c.functions, f)
	c.functionIndex[strings.ToLower(f.FunctionName())] = id
	return id
}

// finish runs the checks that need the whole program.
func (c *Compiler) finish() {
	ids := make([]int, 0, len(c.forward))
	for id := range c.forward {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c.report(FunctionNotDefined, c.forward[id], quote(c.functions[id].FunctionName()))
	}

	id, ok := c.functionIndex["main"]
	if ok {
		_, isUser := c.functions[id].(*vm.UserFunction)
		_, undefined := c.forward[id]
		ok = isUser && !undefined
	}
	if !ok {
		c.report(MainNotDefined, c.lexer.Line())
		return
	}
	c.writer.WriteAt(1, int32(id))
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// report records an error. Once MaxErrors is reached a fatal error is added
// and the rest of the source is ignored.
func (c *Compiler) report(code ErrorCode, line int, details ...string) {
	if c.aborted {
		return
	}
	c.errors = append(c.errors, newError(LevelError, code, line, details...))
	if c.opts.MaxErrors > 0 && len(c.errors) >= c.opts.MaxErrors {
		c.errors = append(c.errors, newError(LevelFatalError, TooManyErrors, line))
		c.aborted = true
	}
}

// reportToken records an error about tok. Lexer error tokens report their
// own code instead of code.
func (c *Compiler) reportToken(code ErrorCode, tok Token) {
	if tok.Type == TokenError {
		code = tok.Code
	}
	c.report(code, tok.Line, quote(tokenText(tok)))
}

// fail reports code for tok and pushes tok back so that statement recovery
// sees it. It always returns false.
func (c *Compiler) fail(code ErrorCode, tok Token) bool {
	c.reportToken(code, tok)
	c.lexer.Unget(tok)
	return false
}

func tokenText(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of file"
	case TokenNewLine:
		return "end of line"
	}
	return tok.Value
}

func quote(s string) string {
	return `"` + s + `"`
}

// ---------------------------------------------------------------------------
// Top level
// ---------------------------------------------------------------------------

// parseProgram handles the header (global var declarations) and function
// definitions. Anything else at top level is CodeOutsideFunction.
func (c *Compiler) parseProgram() {
	for !c.aborted {
		tok := c.lexer.NextSkipNewLines()
		c.writer.SetLine(tok.Line)
		switch {
		case tok.Type == TokenEOF:
			return
		case tok.Is(KeywordVar):
			if !c.inHeader {
				c.report(IllegalVar, tok.Line)
				c.lexer.SkipLine()
				continue
			}
			if !c.parseVar(tok) {
				c.lexer.SkipLine()
			}
		case tok.Type == TokenSymbol && c.lexer.Peek().Type == TokenLeftParen:
			c.inHeader = false
			c.parseFunction(tok)
		default:
			code := CodeOutsideFunction
			if tok.Type == TokenError {
				code = tok.Code
			}
			c.reportToken(code, tok)
			c.lexer.SkipLine()
		}
	}
}

// parseFunction compiles `name(p1, p2) { body }`. The body always ends with
// a Return so control never falls into the next function.
func (c *Compiler) parseFunction(name Token) {
	fn, _ := c.defineFunction(name)
	scope := &functionScope{
		fn:     fn,
		params: make(map[string]int),
		locals: make(map[string]int),
		labels: newLabelTable(),
	}

	c.lexer.Next() // (
	tok := c.lexer.Next()
	if tok.Type != TokenRightParen {
		for {
			if tok.Type != TokenSymbol {
				c.reportToken(ExpectedSymbol, tok)
				break
			}
			key := strings.ToLower(tok.Value)
			if _, dup := scope.params[key]; dup {
				c.reportToken(VariableAlreadyDefined, tok)
			} else {
				scope.params[key] = len(scope.params)
			}
			tok = c.lexer.Next()
			if tok.Type == TokenComma {
				tok = c.lexer.Next()
				continue
			}
			if tok.Type != TokenRightParen {
				c.reportToken(ExpectedRightParen, tok)
			}
			break
		}
		if tok.Type != TokenRightParen {
			// Resume at the body if it is on this line.
			for tok.Type != TokenLeftBrace && tok.Type != TokenNewLine && tok.Type != TokenEOF {
				tok = c.lexer.Next()
			}
			c.lexer.Unget(tok)
		}
	}

	fn.IP = c.writer.IP()
	fn.NumParameters = len(scope.params)
	c.scope = scope
	defer func() { c.scope = nil }()

	tok = c.lexer.NextSkipNewLines()
	if tok.Type != TokenLeftBrace {
		c.reportToken(ExpectedLeftBrace, tok)
		c.lexer.Unget(tok)
	}
	for c.parseStatement() {
	}
	end := c.lexer.Next()
	if end.Type != TokenRightBrace {
		c.reportToken(ExpectedRightBrace, end)
		c.lexer.Unget(end)
	}

	c.writer.SetLine(end.Line)
	c.writer.WriteOp(vm.OpReturn, 0)
	fn.NumVariables = len(scope.locals)

	for _, lb := range scope.labels.undefined() {
		c.report(LabelNotDefined, lb.line, quote(lb.name))
	}
}

// defineFunction returns the function to compile for name. A name that was
// already called resolves its forward reference; a duplicate gets a
// detached function so its body is still checked.
func (c *Compiler) defineFunction(name Token) (*vm.UserFunction, bool) {
	key := strings.ToLower(name.Value)
	if id, ok := c.functionIndex[key]; ok {
		if fn, isUser := c.functions[id].(*vm.UserFunction); isUser {
			if _, pending := c.forward[id]; pending {
				delete(c.forward, id)
				fn.Name = name.Value
				return fn, true
			}
		}
		c.reportToken(DuplicateFunctionName, name)
		return &vm.UserFunction{Name: name.Value}, false
	}
	fn := &vm.UserFunction{Name: name.Value}
	c.addFunction(fn)
	return fn, true
}

// functionRef returns the id of the function called name, creating a
// forward reference when it has not been seen yet.
func (c *Compiler) functionRef(name Token) int {
	if id, ok := c.functionIndex[strings.ToLower(name.Value)]; ok {
		return id
	}
	id := c.addFunction(&vm.UserFunction{Name: name.Value, IP: -1})
	c.forward[id] = name.Line
	return id
}

// ---------------------------------------------------------------------------
// Variables and literals
// ---------------------------------------------------------------------------

// lookupVariable resolves name to an address: locals, then parameters, then
// globals.
func (c *Compiler) lookupVariable(name string) (int32, bool) {
	key := strings.ToLower(name)
	if c.scope != nil {
		if i, ok := c.scope.locals[key]; ok {
			return vm.LocalAddr(i), true
		}
		if i, ok := c.scope.params[key]; ok {
			return vm.ParamAddr(i), true
		}
	}
	if i, ok := c.globalIndex[key]; ok {
		return vm.GlobalAddr(i), true
	}
	return 0, false
}

// declareVariable creates a local inside a function or a global in the
// header.
func (c *Compiler) declareVariable(name string) int32 {
	key := strings.ToLower(name)
	if c.scope != nil {
		i := len(c.scope.locals)
		c.scope.locals[key] = i
		return vm.LocalAddr(i)
	}
	i := len(c.globals)
	c.globals = append(c.globals, vm.NewVariable())
	c.globalIndex[key] = i
	return vm.GlobalAddr(i)
}

// variable resolves name, declaring it if needed.
func (c *Compiler) variable(name string) int32 {
	if addr, ok := c.lookupVariable(name); ok {
		return addr
	}
	return c.declareVariable(name)
}

// literalID adds v to the literal pool. Equal scalars share one entry.
func (c *Compiler) literalID(v *vm.Variable) int32 {
	var key string
	if !v.IsList() {
		key = fmt.Sprintf("%d:%s", v.Type(), v.String())
		if id, ok := c.literalIndex[key]; ok {
			return id
		}
	}
	id := int32(len(c.literals))
	c.literals = append(c.literals, v)
	if key != "" {
		c.literalIndex[key] = id
	}
	return id
}
