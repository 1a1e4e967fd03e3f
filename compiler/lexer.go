package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Weft source
// ---------------------------------------------------------------------------

// Lexer tokenizes Weft source code. Newlines are significant and come back as
// TokenNewLine; all other whitespace and comments are skipped.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)

	pending []Token // tokens pushed back by Unget, last in first out
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character. The line counter advances when a
// newline is left behind.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// atEOF reports whether the whole input has been consumed. A NUL rune in
// the middle of the input is an ordinary character.
func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// peekCharAt returns the character n positions after the current one.
func (l *Lexer) peekCharAt(n int) rune {
	p := l.readPos
	for ; n > 1 && p < len(l.input); n-- {
		_, size := utf8.DecodeRuneInString(l.input[p:])
		p += size
	}
	if p >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[p:])
	return r
}

// Line returns the line of the character about to be read.
func (l *Lexer) Line() int {
	return l.line
}

// ---------------------------------------------------------------------------
// Token stream used by the compiler
// ---------------------------------------------------------------------------

// Next returns the next token, honouring tokens pushed back with Unget.
func (l *Lexer) Next() Token {
	if n := len(l.pending); n > 0 {
		tok := l.pending[n-1]
		l.pending = l.pending[:n-1]
		return tok
	}
	return l.NextToken()
}

// NextSkipNewLines returns the next token that is not a newline.
func (l *Lexer) NextSkipNewLines() Token {
	for {
		tok := l.Next()
		if tok.Type != TokenNewLine {
			return tok
		}
	}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() Token {
	tok := l.Next()
	l.Unget(tok)
	return tok
}

// Unget pushes tok back so the following Next returns it.
func (l *Lexer) Unget(tok Token) {
	l.pending = append(l.pending, tok)
}

// SkipLine discards tokens up to and including the next newline. It stops
// in front of a closing brace or EOF so the enclosing block still sees them.
func (l *Lexer) SkipLine() {
	for {
		tok := l.Next()
		switch tok.Type {
		case TokenNewLine:
			return
		case TokenEOF, TokenRightBrace:
			l.Unget(tok)
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Scanning
// ---------------------------------------------------------------------------

// NextToken scans and returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	line := l.line
	single := func(t TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Value: lit, Line: line}
	}
	double := func(t TokenType) Token {
		lit := string(l.ch) + string(l.peekChar())
		l.readChar()
		l.readChar()
		return Token{Type: t, Value: lit, Line: line}
	}

	switch {
	case l.atEOF():
		return Token{Type: TokenEOF, Line: line}
	case l.ch == '\n':
		l.readChar()
		return Token{Type: TokenNewLine, Value: "\n", Line: line}
	case l.ch == '"':
		return l.readString(line)
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return l.readNumber(line)
	case isLetter(l.ch) || l.ch == '_':
		return l.readSymbol(line)
	case l.ch == '<' && l.peekChar() == '>':
		return double(TokenNotEqual)
	case l.ch == '<' && l.peekChar() == '=':
		return double(TokenLessEqual)
	case l.ch == '>' && l.peekChar() == '=':
		return double(TokenGreaterEqual)
	}

	switch l.ch {
	case '+':
		return single(TokenPlus)
	case '-':
		return single(TokenMinus)
	case '*':
		return single(TokenMultiply)
	case '/':
		return single(TokenDivide)
	case '^':
		return single(TokenPower)
	case '%':
		return single(TokenModulus)
	case '&':
		return single(TokenConcat)
	case '=':
		return single(TokenEqual)
	case '<':
		return single(TokenLess)
	case '>':
		return single(TokenGreater)
	case '(':
		return single(TokenLeftParen)
	case ')':
		return single(TokenRightParen)
	case '[':
		return single(TokenLeftBracket)
	case ']':
		return single(TokenRightBracket)
	case '{':
		return single(TokenLeftBrace)
	case '}':
		return single(TokenRightBrace)
	case ',':
		return single(TokenComma)
	case ':':
		return single(TokenColon)
	}

	tok := single(TokenError)
	tok.Code = UnexpectedCharacter
	return tok
}

// skipWhitespaceAndComments skips blanks, // line comments and /* */ block
// comments. Newlines are left for NextToken.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\f' || l.ch == '\v' {
			l.readChar()
		}

		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
			continue
		}

		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for !l.atEOF() && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if !l.atEOF() {
				l.readChar()
				l.readChar()
			}
			continue
		}

		break
	}
}

// readString reads a double-quoted string literal, decoding escapes. A
// string may not span lines.
func (l *Lexer) readString(line int) Token {
	l.readChar() // consume opening "

	var sb strings.Builder
	unterminated := func() Token {
		return Token{Type: TokenError, Value: sb.String(), Line: line, Code: NewLineInString}
	}
	for l.ch != '"' {
		if l.atEOF() || l.ch == '\n' {
			return unterminated()
		}
		if l.ch == '\\' {
			l.readChar()
			if l.atEOF() || l.ch == '\n' {
				return unterminated()
			}
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteRune(l.ch)
			}
		} else {
			sb.WriteRune(l.ch)
		}
		l.readChar()
	}
	l.readChar() // consume closing "

	return Token{Type: TokenString, Value: sb.String(), Line: line}
}

// readNumber reads an integer or float literal. Integers may be written in
// hex with a 0x prefix.
func (l *Lexer) readNumber(line int) Token {
	start := l.pos

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') && isHexDigit(l.peekCharAt(2)) {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenInteger, Value: l.input[start:l.pos], Line: line}
	}

	isFloat := false
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar() // consume .
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekCharAt(2))) {
			isFloat = true
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	if isFloat {
		return Token{Type: TokenFloat, Value: l.input[start:l.pos], Line: line}
	}
	return Token{Type: TokenInteger, Value: l.input[start:l.pos], Line: line}
}

// readSymbol reads an identifier or keyword.
func (l *Lexer) readSymbol(line int) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	if kw := lookupKeyword(literal); kw != KeywordNone {
		return Token{Type: TokenKeyword, Keyword: kw, Value: literal, Line: line}
	}
	return Token{Type: TokenSymbol, Value: literal, Line: line}
}

// Helper functions

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// Tokenize returns all tokens from the input, ending with EOF or the first
// error token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
