package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Compile diagnostics
// ---------------------------------------------------------------------------

// ErrorCode identifies a compile diagnostic. Codes are rendered as 1000 plus
// the ordinal, so the order of this list is part of the output format.
type ErrorCode int

const (
	NoError ErrorCode = iota
	TooManyErrors
	InternalError

	CodeOutsideFunction
	DuplicateFunctionName
	DuplicateLabel
	FunctionNotDefined
	IllegalVar
	InvalidStepValue
	LabelNotDefined
	MainNotDefined
	NewLineInString
	VariableAlreadyDefined
	VariableNotDefined
	WrongNumberOfArguments

	ExpectedEquals
	ExpectedExpression
	ExpectedLeftBrace
	ExpectedLeftParen
	ExpectedLiteral
	ExpectedOperand
	ExpectedRightBrace
	ExpectedRightParen
	ExpectedRightBracket
	ExpectedSymbol
	ExpectedTo

	UnexpectedCharacter
	UnexpectedKeyword
	UnexpectedToken
)

var errorDescriptions = [...]string{
	NoError:       "Operation completed successfully",
	TooManyErrors: "Too many errors encountered",
	InternalError: "Internal error",

	CodeOutsideFunction:    "Code is not allowed outside of functions",
	DuplicateFunctionName:  "More than one function defined with the same name",
	DuplicateLabel:         "Label defined more than once",
	FunctionNotDefined:     "Function was not defined",
	IllegalVar:             "The VAR keyword can only appear within a function, or before the first function",
	InvalidStepValue:       "STEP value must be a non-zero numeric literal",
	LabelNotDefined:        "Label was referenced but never defined",
	MainNotDefined:         "Function main() was not defined : You must define main() as the program's starting point",
	NewLineInString:        "New line in string literal",
	VariableAlreadyDefined: "Variable has already been defined",
	VariableNotDefined:     "Use of undefined variable",
	WrongNumberOfArguments: "Wrong number of arguments",

	ExpectedEquals:       `Expected equal sign "="`,
	ExpectedExpression:   "An expression was expected",
	ExpectedLeftBrace:    `Expected opening curly brace "{"`,
	ExpectedLeftParen:    `Opening parenthesis expected "("`,
	ExpectedLiteral:      "Expected literal value",
	ExpectedOperand:      "Operand expected",
	ExpectedRightBrace:   `Closing curly brace "}" expected`,
	ExpectedRightParen:   `Closing parenthesis ")" expected`,
	ExpectedRightBracket: `Closing square bracket "]" expected`,
	ExpectedSymbol:       "Identifier name expected",
	ExpectedTo:           "Expected TO keyword",

	UnexpectedCharacter: "Unexpected character encountered",
	UnexpectedKeyword:   "Keyword is unexpected here",
	UnexpectedToken:     "Unexpected token encountered",
}

// Description returns the catalog text for c.
func (c ErrorCode) Description() string {
	if c >= 0 && int(c) < len(errorDescriptions) {
		return errorDescriptions[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Level is the severity of a diagnostic. A FatalError stops compilation.
type Level int

const (
	LevelError Level = iota
	LevelFatalError
)

func (l Level) String() string {
	if l == LevelFatalError {
		return "FATAL ERROR"
	}
	return "ERROR"
}

// Error is one compile diagnostic.
type Error struct {
	Level       Level
	Code        ErrorCode
	Description string // catalog text plus any detail
	Line        int
}

func newError(level Level, code ErrorCode, line int, details ...string) *Error {
	desc := code.Description()
	for _, d := range details {
		desc += " : " + d
	}
	return &Error{Level: level, Code: code, Description: desc, Line: line}
}

// String renders the diagnostic as `ERROR 1003 : <description> (Line 4)`.
func (e *Error) String() string {
	return fmt.Sprintf("%s 1%03d : %s (Line %d)", e.Level, int(e.Code), e.Description, e.Line)
}

func (e *Error) Error() string {
	return e.String()
}

// ErrorList is the set of diagnostics from one compilation, in the order
// they were reported.
type ErrorList []*Error

func (l ErrorList) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].String()
	}
	var sb strings.Builder
	for i, e := range l {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(e.String())
	}
	return sb.String()
}

// Err returns l as an error, or nil when it is empty.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Has reports whether any diagnostic in l carries code.
func (l ErrorList) Has(code ErrorCode) bool {
	return l.Count(code) > 0
}

// Count returns how many diagnostics in l carry code.
func (l ErrorList) Count(code ErrorCode) int {
	n := 0
	for _, e := range l {
		if e.Code == code {
			n++
		}
	}
	return n
}
