package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Token types for the Weft lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenNewLine
	TokenError

	// Literals and names
	TokenSymbol  // total, main, Print
	TokenInteger // 42, 0xFF
	TokenFloat   // 3.14, 1e10
	TokenString  // "hello"
	TokenKeyword // var, goto, if, ...

	// Operators
	TokenPlus         // +
	TokenMinus        // -
	TokenMultiply     // *
	TokenDivide       // /
	TokenPower        // ^
	TokenModulus      // %
	TokenConcat       // &
	TokenEqual        // =
	TokenNotEqual     // <>
	TokenLess         // <
	TokenLessEqual    // <=
	TokenGreater      // >
	TokenGreaterEqual // >=

	// Delimiters
	TokenLeftParen    // (
	TokenRightParen   // )
	TokenLeftBracket  // [
	TokenRightBracket // ]
	TokenLeftBrace    // {
	TokenRightBrace   // }
	TokenComma        // ,
	TokenColon        // :
)

var tokenNames = map[TokenType]string{
	TokenEOF:          "EOF",
	TokenNewLine:      "NEWLINE",
	TokenError:        "ERROR",
	TokenSymbol:       "SYMBOL",
	TokenInteger:      "INTEGER",
	TokenFloat:        "FLOAT",
	TokenString:       "STRING",
	TokenKeyword:      "KEYWORD",
	TokenPlus:         "+",
	TokenMinus:        "-",
	TokenMultiply:     "*",
	TokenDivide:       "/",
	TokenPower:        "^",
	TokenModulus:      "%",
	TokenConcat:       "&",
	TokenEqual:        "=",
	TokenNotEqual:     "<>",
	TokenLess:         "<",
	TokenLessEqual:    "<=",
	TokenGreater:      ">",
	TokenGreaterEqual: ">=",
	TokenLeftParen:    "(",
	TokenRightParen:   ")",
	TokenLeftBracket:  "[",
	TokenRightBracket: "]",
	TokenLeftBrace:    "{",
	TokenRightBrace:   "}",
	TokenComma:        ",",
	TokenColon:        ":",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Keyword identifies a reserved word. Keywords are matched without regard to
// case.
type Keyword int

const (
	KeywordNone Keyword = iota
	KeywordVar
	KeywordGoTo
	KeywordReturn
	KeywordIf
	KeywordElse
	KeywordWhile
	KeywordFor
	// Keywords that only appear inside other statements or expressions
	KeywordAnd
	KeywordOr
	KeywordXor
	KeywordNot
	KeywordTo
	KeywordStep
)

// Reserved words mapped to their keywords.
var reservedWords = map[string]Keyword{
	"var":    KeywordVar,
	"goto":   KeywordGoTo,
	"return": KeywordReturn,
	"if":     KeywordIf,
	"else":   KeywordElse,
	"while":  KeywordWhile,
	"for":    KeywordFor,
	"and":    KeywordAnd,
	"or":     KeywordOr,
	"xor":    KeywordXor,
	"not":    KeywordNot,
	"to":     KeywordTo,
	"step":   KeywordStep,
}

// Keywords returns every reserved word in lower case, for completion lists.
func Keywords() []string {
	out := make([]string, 0, len(reservedWords))
	for w := range reservedWords {
		out = append(out, w)
	}
	return out
}

func lookupKeyword(s string) Keyword {
	return reservedWords[strings.ToLower(s)]
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Keyword Keyword   // set when Type is TokenKeyword
	Value   string    // raw text, or decoded text for strings
	Line    int       // 1-based source line
	Code    ErrorCode // set when Type is TokenError
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenNewLine:
		return t.Type.String()
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Value)
	}
	if len(t.Value) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Value[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Value)
}

// Is reports whether t is the given keyword.
func (t Token) Is(k Keyword) bool {
	return t.Type == TokenKeyword && t.Keyword == k
}

// endsStatement reports whether t may legally follow a complete statement.
func (t Token) endsStatement() bool {
	return t.Type == TokenNewLine || t.Type == TokenEOF || t.Type == TokenRightBrace
}
