// Package lexer turns Emerald source text into a stream of tokens.
package lexer

import (
	"strconv"
	"strings"

	"github.com/emerald-lang/emerald/errz"
	"github.com/emerald-lang/emerald/token"
)

// Lexer produces tokens lazily from one immutable source buffer. It never
// backtracks; lookahead is buffered by the parser.
type Lexer struct {
	input    string
	filename string
	pos      int // offset of the next unread byte
	line     int
	column   int
}

// New returns a Lexer over input.
func New(input string, filename string) *Lexer {
	return &Lexer{input: input, filename: filename, line: 1, column: 1}
}

func (l *Lexer) peek(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *Lexer) advance() byte {
	ch := l.input[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return ch
}

func (l *Lexer) position() token.Position {
	return token.Position{File: l.filename, Line: l.line, Column: l.column, Offset: l.pos}
}

func (l *Lexer) errorf(pos token.Position, format string, args ...any) error {
	return errz.SyntaxErrorf(errz.SourceLocation{
		Filename: l.filename,
		Line:     pos.Line,
		Column:   pos.Column,
		Source:   errz.LineOf(l.input, pos.Line),
	}, format, args...)
}

// skip consumes whitespace and comments.
func (l *Lexer) skip() error {
	for l.pos < len(l.input) {
		ch := l.peek(0)
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.advance()
		case ch == '/' && l.peek(1) == '/':
			for l.pos < len(l.input) && l.peek(0) != '\n' {
				l.advance()
			}
		case ch == '/' && l.peek(1) == '*':
			start := l.position()
			l.advance()
			l.advance()
			for {
				if l.pos >= len(l.input) {
					return l.errorf(start, "unterminated block comment")
				}
				if l.peek(0) == '*' && l.peek(1) == '/' {
					l.advance()
					l.advance()
					break
				}
				l.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

// Next returns the next token. At the end of input it returns EOF
// indefinitely.
func (l *Lexer) Next() (token.Token, error) {
	if err := l.skip(); err != nil {
		return token.Token{}, err
	}
	pos := l.position()
	if l.pos >= len(l.input) {
		return token.Token{Kind: token.EOF, Pos: pos}, nil
	}
	ch := l.peek(0)
	switch {
	case isLetter(ch):
		return l.readIdentifier(pos), nil
	case isDigit(ch):
		return l.readNumber(pos)
	case ch == '.' && isDigit(l.peek(1)):
		return l.readNumber(pos)
	case ch == '"':
		return l.readString(pos)
	}
	if kind, width := l.operator(); kind != token.None {
		lit := l.input[l.pos : l.pos+width]
		for i := 0; i < width; i++ {
			l.advance()
		}
		return token.Token{Kind: kind, Literal: lit, Pos: pos}, nil
	}
	return token.Token{}, l.errorf(pos, "illegal character %q", rune(ch))
}

// All lexes the whole input, excluding the trailing EOF.
func (l *Lexer) All() ([]token.Token, error) {
	var tokens []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == token.EOF {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

func (l *Lexer) operator() (token.Kind, int) {
	ch, next := l.peek(0), l.peek(1)
	switch ch {
	case '+':
		switch next {
		case '+':
			return token.INC, 2
		case '=':
			return token.PLUS_ASSIGN, 2
		}
		return token.PLUS, 1
	case '-':
		switch next {
		case '-':
			return token.DEC, 2
		case '=':
			return token.MINUS_ASSIGN, 2
		}
		return token.MINUS, 1
	case '*':
		if next == '=' {
			return token.STAR_ASSIGN, 2
		}
		return token.STAR, 1
	case '/':
		if next == '=' {
			return token.SLASH_ASSIGN, 2
		}
		return token.SLASH, 1
	case '%':
		if next == '=' {
			return token.PERCENT_ASSIGN, 2
		}
		return token.PERCENT, 1
	case '=':
		if next == '=' {
			return token.EQ, 2
		}
		return token.ASSIGN, 1
	case '!':
		if next == '=' {
			return token.NOT_EQ, 2
		}
		return token.BANG, 1
	case '<':
		if next == '=' {
			return token.LT_EQ, 2
		}
		return token.LT, 1
	case '>':
		if next == '=' {
			return token.GT_EQ, 2
		}
		return token.GT, 1
	case '&':
		if next == '&' {
			return token.AND, 2
		}
	case '|':
		switch next {
		case '|':
			return token.OR, 2
		case '>':
			return token.PIPE, 2
		}
	case '?':
		return token.QUESTION, 1
	case ':':
		return token.COLON, 1
	case ';':
		return token.SEMICOLON, 1
	case ',':
		return token.COMMA, 1
	case '.':
		return token.DOT, 1
	case '(':
		return token.LPAREN, 1
	case ')':
		return token.RPAREN, 1
	case '[':
		return token.LBRACKET, 1
	case ']':
		return token.RBRACKET, 1
	case '{':
		return token.LBRACE, 1
	case '}':
		return token.RBRACE, 1
	}
	return token.None, 0
}

func (l *Lexer) readIdentifier(pos token.Position) token.Token {
	start := l.pos
	for l.pos < len(l.input) && (isLetter(l.peek(0)) || isDigit(l.peek(0))) {
		l.advance()
	}
	lit := l.input[start:l.pos]
	return token.Token{Kind: token.LookupIdentifier(lit), Literal: lit, Pos: pos}
}

func (l *Lexer) readNumber(pos token.Position) (token.Token, error) {
	start := l.pos
	if l.peek(0) == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X') {
		l.advance()
		l.advance()
		digits := l.pos
		for l.pos < len(l.input) && isHexDigit(l.peek(0)) {
			l.advance()
		}
		if l.pos == digits {
			return token.Token{}, l.errorf(pos, "invalid hex literal %q", l.input[start:l.pos])
		}
		lit := l.input[start:l.pos]
		if _, err := strconv.ParseUint(lit[2:], 16, 64); err != nil {
			return token.Token{}, l.errorf(pos, "invalid hex literal %q", lit)
		}
		return token.Token{Kind: token.NUMBER, Literal: lit, Pos: pos}, nil
	}
	for l.pos < len(l.input) && isDigit(l.peek(0)) {
		l.advance()
	}
	if l.peek(0) == '.' && isDigit(l.peek(1)) {
		l.advance()
		for l.pos < len(l.input) && isDigit(l.peek(0)) {
			l.advance()
		}
	}
	if e := l.peek(0); e == 'e' || e == 'E' {
		sign := l.peek(1)
		if isDigit(sign) || ((sign == '+' || sign == '-') && isDigit(l.peek(2))) {
			l.advance()
			if sign == '+' || sign == '-' {
				l.advance()
			}
			for l.pos < len(l.input) && isDigit(l.peek(0)) {
				l.advance()
			}
		}
	}
	if isLetter(l.peek(0)) {
		return token.Token{}, l.errorf(pos, "invalid number literal %q", l.input[start:l.pos+1])
	}
	return token.Token{Kind: token.NUMBER, Literal: l.input[start:l.pos], Pos: pos}, nil
}

func (l *Lexer) readString(pos token.Position) (token.Token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.pos >= len(l.input) {
			return token.Token{}, l.errorf(pos, "unterminated string literal")
		}
		ch := l.advance()
		switch ch {
		case '"':
			return token.Token{Kind: token.STRING, Literal: b.String(), Pos: pos}, nil
		case '\n':
			return token.Token{}, l.errorf(pos, "unterminated string literal")
		case '\\':
			if l.pos >= len(l.input) {
				return token.Token{}, l.errorf(pos, "unterminated string literal")
			}
			esc := l.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '"', '\\':
				b.WriteByte(esc)
			case 'x':
				if !isHexDigit(l.peek(0)) || !isHexDigit(l.peek(1)) {
					return token.Token{}, l.errorf(l.position(), "invalid \\x escape")
				}
				v, _ := strconv.ParseUint(l.input[l.pos:l.pos+2], 16, 8)
				l.advance()
				l.advance()
				b.WriteByte(byte(v))
			default:
				return token.Token{}, l.errorf(l.position(), "unknown escape sequence \\%c", esc)
			}
		default:
			b.WriteByte(ch)
		}
	}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || 'a' <= ch && ch <= 'f' || 'A' <= ch && ch <= 'F'
}
