package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/weft/vm"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestCompiler(t *testing.T, opts Options) *Compiler {
	t.Helper()
	c := NewCompiler(opts)
	if err := c.RegisterFunction("print", 0, -1); err != nil {
		t.Fatalf("RegisterFunction: %v", err)
	}
	return c
}

func compileSource(t *testing.T, src string) *vm.CompiledProgram {
	t.Helper()
	prog, err := newTestCompiler(t, DefaultOptions()).Compile(src)
	if err != nil {
		t.Fatalf("Compile failed:\n%v", err)
	}
	return prog
}

// compileErrors compiles src expecting failure and returns the diagnostics.
func compileErrors(t *testing.T, src string) ErrorList {
	t.Helper()
	prog, err := newTestCompiler(t, DefaultOptions()).Compile(src)
	if err == nil {
		t.Fatalf("expected compile errors, got program with %d cells", len(prog.Cells))
	}
	var list ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("error is %T, want ErrorList", err)
	}
	return list
}

// runSource compiles and executes src, returning the result and every line
// passed to print.
func runSource(t *testing.T, src string) (*vm.Variable, []string) {
	t.Helper()
	prog := compileSource(t, src)
	var out []string
	host := vm.FuncMap{
		"print": func(call *vm.FunctionCall) error {
			parts := make([]string, len(call.Args))
			for i, a := range call.Args {
				parts[i] = a.String()
			}
			out = append(out, strings.Join(parts, " "))
			return nil
		},
	}
	result, err := vm.NewRuntime().Execute(prog, host)
	if err != nil {
		t.Fatalf("Execute: %v\n%s", err, vm.Disassemble(prog))
	}
	return result, out
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Execution of compiled programs
// ---------------------------------------------------------------------------

func TestCompileReturnValue(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"precedence", "2 + 3 * 4", "14"},
		{"parens", "(2 + 3) * 4", "20"},
		{"unary binds before power", "-2 ^ 2", "4"},
		{"power is right associative", "2 ^ 3 ^ 2", "512"},
		{"float promotion", "1 + 0.5", "1.5"},
		{"integer division truncates", "7 / 2", "3"},
		{"modulus", "7 % 3", "1"},
		{"concat", `"a" & 1 & "b"`, "a1b"},
		{"comparison true", "2 > 1", "-1"},
		{"comparison false", "2 < 1", "0"},
		{"string comparison", `"abc" < "abd"`, "-1"},
		{"and", "1 < 2 and 3 < 4", "-1"},
		{"or", "1 > 2 or 3 > 4", "0"},
		{"xor", "true xor false", "-1"},
		{"not", "not false", "-1"},
		{"hex literal", "0x10 + 1", "17"},
		{"not equal", "1 <> 2", "-1"},
		{"intrinsic", `ucase("weft") & len("abc")`, "WEFT3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := runSource(t, "main()\n{\n    return "+tt.expr+"\n}\n")
			if got.String() != tt.want {
				t.Errorf("%s = %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

func TestFactorial(t *testing.T) {
	src := `
fact(n)
{
    if n <= 1 { return 1 }
    return n * fact(n - 1)
}

main()
{
    return fact(5)
}
`
	got, _ := runSource(t, src)
	if got.ToInteger() != 120 {
		t.Errorf("fact(5) = %v, want 120", got)
	}
}

func TestGlobalMutationPersistsAcrossCalls(t *testing.T) {
	src := `
var count = 0

bump()
{
    count = count + 1
}

main()
{
    bump()
    bump()
    bump()
    return count
}
`
	prog := compileSource(t, src)
	result, err := vm.NewRuntime().Execute(prog, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.ToInteger() != 3 {
		t.Errorf("count = %v, want 3", result)
	}
	if prog.Globals[0].ToInteger() != 0 {
		t.Errorf("program global changed to %v", prog.Globals[0])
	}
}

func TestOnlyTakenBranchRuns(t *testing.T) {
	src := `
classify(n)
{
    if n > 10 {
        print("big")
    } else if n > 5 {
        print("mid")
    } else {
        print("small")
    }
    print("done")
}

main()
{
    classify(20)
    classify(7)
    classify(1)
}
`
	_, out := runSource(t, src)
	want := []string{"big", "done", "mid", "done", "small", "done"}
	if !equalLines(out, want) {
		t.Errorf("output = %v, want %v", out, want)
	}
}

func TestIfWithoutElse(t *testing.T) {
	src := `
main()
{
    x = 3
    if x = 4
        print("four")
    if x = 3
        print("three")
}
`
	_, out := runSource(t, src)
	if !equalLines(out, []string{"three"}) {
		t.Errorf("output = %v", out)
	}
}

func TestWhileLoop(t *testing.T) {
	src := `
main()
{
    n = 0
    while n < 4 { n = n + 1 }
    return n
}
`
	if got, _ := runSource(t, src); got.ToInteger() != 4 {
		t.Errorf("n = %v, want 4", got)
	}
}

func TestForStepDirection(t *testing.T) {
	tests := []struct {
		header  string
		want    []string
		compare string
	}{
		{"for i = 1 to 5 step 2", []string{"1", "3", "5"}, "EvalIsGreaterThanOrEqual"},
		{"for i = 5 to 1 step -2", []string{"5", "3", "1"}, "EvalIsLessThanOrEqual"},
		{"for i = 1 to 3", []string{"1", "2", "3"}, "EvalIsGreaterThanOrEqual"},
		{"for i = 0 to 1 step 0.5", []string{"0", "0.5", "1"}, "EvalIsGreaterThanOrEqual"},
		{"for i = 3 to 1", nil, "EvalIsGreaterThanOrEqual"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			src := "main()\n{\n    " + tt.header + "\n        print(i)\n}\n"
			_, out := runSource(t, src)
			if !equalLines(out, tt.want) {
				t.Errorf("output = %v, want %v", out, tt.want)
			}
			dis := vm.Disassemble(compileSource(t, src))
			if !strings.Contains(dis, tt.compare) {
				t.Errorf("loop test does not use %s:\n%s", tt.compare, dis)
			}
		})
	}
}

func TestForStepMustBeNonZeroLiteral(t *testing.T) {
	tests := []struct {
		step string
		code ErrorCode
	}{
		{"0", InvalidStepValue},
		{"0.0", InvalidStepValue},
		{`"two"`, InvalidStepValue},
		{"n", ExpectedLiteral},
	}
	for _, tt := range tests {
		src := "main()\n{\n    n = 1\n    for i = 1 to 5 step " + tt.step + "\n        print(i)\n}\n"
		errs := compileErrors(t, src)
		if !errs.Has(tt.code) {
			t.Errorf("step %s: errors = %v, want code %d", tt.step, errs, tt.code)
		}
	}
}

func TestGoToForwardAndBackward(t *testing.T) {
	src := `
main()
{
    goto start
    print("skipped")
start:
    i = 0
top:
    i = i + 1
    if i < 3 { goto top }
    print(i)
}
`
	_, out := runSource(t, src)
	if !equalLines(out, []string{"3"}) {
		t.Errorf("output = %v, want [3]", out)
	}
}

func TestListElementsAndIndexing(t *testing.T) {
	src := `
var a[3]

main()
{
    var b[2]
    a[2] = 42
    b[1] = a[2] + 1
    x = 7
    c = [10, 20, 30]
    print(a[2], b[1], a[9], x[1], x[2], c[3], len(c))
    return a
}
`
	result, out := runSource(t, src)
	if !equalLines(out, []string{"42 43 0 7 0 30 3"}) {
		t.Errorf("output = %v", out)
	}
	if result.String() != "[0, 42, 0]" {
		t.Errorf("a = %s", result)
	}
}

func TestArgumentCountMismatchTolerated(t *testing.T) {
	src := `
pair(a, b)
{
    return a + b
}

main()
{
    print(pair(1))
    print(pair(1, 2, 3))
}
`
	_, out := runSource(t, src)
	if !equalLines(out, []string{"1", "3"}) {
		t.Errorf("output = %v", out)
	}
}

func TestKeywordsIgnoreCase(t *testing.T) {
	src := `
MAIN()
{
    VAR Total = 2
    RETURN total * 3
}
`
	if got, _ := runSource(t, src); got.ToInteger() != 6 {
		t.Errorf("result = %v, want 6", got)
	}
}

func TestCallBeforeDefinition(t *testing.T) {
	src := `
main()
{
    return twice(21)
}

twice(n)
{
    return n * 2
}
`
	if got, _ := runSource(t, src); got.ToInteger() != 42 {
		t.Errorf("result = %v, want 42", got)
	}
}

// ---------------------------------------------------------------------------
// Code generation details
// ---------------------------------------------------------------------------

func TestConstantFolding(t *testing.T) {
	prog := compileSource(t, "main()\n{\n    return 2 + 3 * 4\n}\n")
	dis := vm.Disassemble(prog)
	if !strings.Contains(dis, "EvalLiteral Integer(14)") {
		t.Errorf("expected folded literal:\n%s", dis)
	}
	for _, op := range []string{"EvalAdd", "EvalMultiply"} {
		if strings.Contains(dis, op) {
			t.Errorf("%s should have been folded:\n%s", op, dis)
		}
	}
}

func TestFaultingFoldLeftForRuntime(t *testing.T) {
	src := "main()\n{\n    x = 1\n    return x + 1 / 0\n}\n"
	prog := compileSource(t, src)
	if !strings.Contains(vm.Disassemble(prog), "EvalDivide") {
		t.Fatal("division by zero must not be folded")
	}
	_, err := vm.NewRuntime().Execute(prog, nil)
	if !errors.Is(err, vm.ErrDivideByZero) {
		t.Fatalf("err = %v, want ErrDivideByZero", err)
	}
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) || rerr.Line != 4 {
		t.Errorf("fault = %+v, want line 4", rerr)
	}
}

func TestLineNumbersOption(t *testing.T) {
	src := "main()\n{\n    return 1 / 0\n}\n"
	opts := DefaultOptions()
	opts.LineNumbers = false
	prog, err := NewCompiler(opts).Compile(src)
	if err != nil {
		t.Fatal(err)
	}
	if prog.Lines != nil {
		t.Errorf("line table present with LineNumbers off")
	}
	_, err = vm.NewRuntime().Execute(prog, nil)
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) || rerr.Line != 0 {
		t.Errorf("fault = %+v, want no line", rerr)
	}
}

func TestProgramLayout(t *testing.T) {
	prog := compileSource(t, "helper()\n{\n}\nmain()\n{\n}\n")
	if vm.Opcode(prog.Cells[0]) != vm.OpExecFunction || prog.Cells[2] != 0 {
		t.Fatalf("program does not start with ExecFunction main 0: %v", prog.Cells[:3])
	}
	entry, ok := prog.Functions[prog.Cells[1]].(*vm.UserFunction)
	if !ok || entry.Name != "main" {
		t.Fatalf("entry = %v", prog.Functions[prog.Cells[1]])
	}
	if _, ok := prog.Functions[0].(*vm.InternalFunction); !ok {
		t.Error("intrinsics should occupy the first function ids")
	}
	if prog.BuildID == "" || prog.SourceDigest == "" {
		t.Error("missing build id or digest")
	}
	if len(prog.Lines) != len(prog.Cells) {
		t.Errorf("%d lines for %d cells", len(prog.Lines), len(prog.Cells))
	}
}

func TestDigest(t *testing.T) {
	a := NewCompiler(DefaultOptions())
	b := NewCompiler(Options{MaxErrors: 10, LineNumbers: true})
	src := "main()\n{\n}\n"
	if a.Digest(src) != NewCompiler(DefaultOptions()).Digest(src) {
		t.Error("digest is not stable")
	}
	if a.Digest(src) == b.Digest(src) {
		t.Error("digest ignores options")
	}
	if a.Digest(src) == a.Digest(src+"\n") {
		t.Error("digest ignores source")
	}
}

func TestRegisterFunction(t *testing.T) {
	c := NewCompiler(DefaultOptions())
	if err := c.RegisterFunction("emit", 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterFunction("EMIT", 0, 0); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := c.RegisterFunction("len", 1, 1); err == nil {
		t.Error("intrinsic name accepted")
	}
	if err := c.RegisterFunction("bad", 3, 1); err == nil {
		t.Error("max < min accepted")
	}

	_, err := c.Compile("main()\n{\n    emit()\n    emit(1, 2, 3)\n    emit(1)\n}\n")
	var list ErrorList
	if !errors.As(err, &list) || list.Count(WrongNumberOfArguments) != 2 {
		t.Errorf("errors = %v, want two WrongNumberOfArguments", err)
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestErrorFormat(t *testing.T) {
	errs := compileErrors(t, "x = 1\nmain()\n{\n}\n")
	if len(errs) != 1 {
		t.Fatalf("errors = %v", errs)
	}
	want := `ERROR 1003 : Code is not allowed outside of functions : "x" (Line 1)`
	if errs[0].String() != want {
		t.Errorf("got  %s\nwant %s", errs[0], want)
	}
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code ErrorCode
	}{
		{"missing main", "helper()\n{\n}\n", MainNotDefined},
		{"undefined function", "main()\n{\n    missing(1)\n}\n", FunctionNotDefined},
		{"intrinsic arity", "main()\n{\n    return len(1, 2)\n}\n", WrongNumberOfArguments},
		{"var after function", "main()\n{\n}\nvar x\n", IllegalVar},
		{"var twice", "main()\n{\n    var a\n    var a\n}\n", VariableAlreadyDefined},
		{"undefined variable", "main()\n{\n    return y\n}\n", VariableNotDefined},
		{"undefined list", "main()\n{\n    q[1] = 2\n}\n", VariableNotDefined},
		{"newline in string", "main()\n{\n    print(\"abc\n}\n", NewLineInString},
		{"bad character", "main()\n{\n    x = 1 $\n}\n", UnexpectedCharacter},
		{"NUL after main", "main()\n{\n}\n\x00\n", UnexpectedCharacter},
		{"second else", "main()\n{\n    if 1 { } else { } else { }\n}\n", UnexpectedKeyword},
		{"stray keyword", "main()\n{\n    to\n}\n", UnexpectedKeyword},
		{"duplicate function", "f()\n{\n}\nf()\n{\n}\nmain()\n{\n}\n", DuplicateFunctionName},
		{"duplicate label", "main()\n{\na:\na:\n}\n", DuplicateLabel},
		{"missing equals", "main()\n{\n    x 1\n}\n", ExpectedEquals},
		{"missing expression", "main()\n{\n    x =\n}\n", ExpectedExpression},
		{"missing operand", "main()\n{\n    x = 1 + *\n}\n", ExpectedOperand},
		{"missing paren", "main()\n{\n    x = (1 + 2\n}\n", ExpectedRightParen},
		{"missing bracket", "main()\n{\n    x = [1, 2\n}\n", ExpectedRightBracket},
		{"missing brace", "main()\n{\n    x = 1\n", ExpectedRightBrace},
		{"missing left brace", "main()\n    x = 1\n}\n", ExpectedLeftBrace},
		{"missing to", "main()\n{\n    for i = 1 do 3\n}\n", ExpectedTo},
		{"goto needs name", "main()\n{\n    goto 3\n}\n", ExpectedSymbol},
		{"header literal", "var x = y\nmain()\n{\n}\n", ExpectedLiteral},
		{"trailing tokens", "main()\n{\n    return 1 2\n}\n", UnexpectedToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := compileErrors(t, tt.src)
			if !errs.Has(tt.code) {
				t.Errorf("errors = %v\nwant code %d (%s)", errs, tt.code, tt.code.Description())
			}
		})
	}
}

func TestUndefinedLabelReportedOnce(t *testing.T) {
	errs := compileErrors(t, "main()\n{\n    goto nowhere\n    goto nowhere\n}\n")
	if n := errs.Count(LabelNotDefined); n != 1 {
		t.Errorf("LabelNotDefined reported %d times: %v", n, errs)
	}
	if errs[0].Line != 3 {
		t.Errorf("reported on line %d, want first reference on line 3", errs[0].Line)
	}
}

func TestLabelsAreScopedToFunctions(t *testing.T) {
	src := "other()\n{\nhere:\n}\nmain()\n{\n    goto here\n}\n"
	errs := compileErrors(t, src)
	if !errs.Has(LabelNotDefined) {
		t.Errorf("label from another function resolved: %v", errs)
	}
}

func TestTooManyErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxErrors = 3
	src := "main()\n{\n    return a\n    return b\n    return c\n    return d\n    return e\n}\n"
	_, err := NewCompiler(opts).Compile(src)
	var errs ErrorList
	if !errors.As(err, &errs) {
		t.Fatalf("err = %v", err)
	}
	if len(errs) != 4 {
		t.Fatalf("errors = %v, want 3 plus the fatal one", errs)
	}
	last := errs[len(errs)-1]
	if last.Level != LevelFatalError || last.Code != TooManyErrors {
		t.Errorf("last = %s", last)
	}
	if !strings.HasPrefix(last.String(), "FATAL ERROR 1001 : ") {
		t.Errorf("fatal rendering = %q", last.String())
	}
}

func TestCompilerIsReusable(t *testing.T) {
	c := newTestCompiler(t, DefaultOptions())
	if _, err := c.Compile("main()\n{\n    return y\n}\n"); err == nil {
		t.Fatal("expected error")
	}
	prog, err := c.Compile("main()\n{\n    return 1\n}\n")
	if err != nil {
		t.Fatalf("second compile: %v", err)
	}
	if len(c.Errors()) != 0 {
		t.Errorf("errors carried over: %v", c.Errors())
	}
	if _, ok := prog.Functions[len(vm.Intrinsics())].(*vm.InternalFunction); !ok {
		t.Error("host function should follow the intrinsics")
	}
}

func TestCompiledProgramSurvivesImage(t *testing.T) {
	prog := compileSource(t, "main()\n{\n    print(\"hi\")\n    return sqrt(16)\n}\n")
	data, err := vm.EncodeProgram(prog)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := vm.DecodeProgram(data)
	if err != nil {
		t.Fatal(err)
	}
	var printed []string
	host := vm.FuncMap{"print": func(call *vm.FunctionCall) error {
		printed = append(printed, call.Args[0].String())
		return nil
	}}
	got, err := vm.NewRuntime().Execute(loaded, host)
	if err != nil {
		t.Fatal(err)
	}
	if got.ToFloat() != 4 || !equalLines(printed, []string{"hi"}) {
		t.Errorf("result = %v printed = %v", got, printed)
	}
}
