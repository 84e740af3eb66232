package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/errz"
	"github.com/emerald-lang/emerald/token"
)

func TestNextToken(t *testing.T) {
	input := `var x = 0x1F + 2.5e1; // comment
x += 3 |> f(); /* block
comment */ a[i]--; !b && c || d != e <= f >= g ? h : i`

	tests := []struct {
		expectedKind    token.Kind
		expectedLiteral string
	}{
		{token.VAR, "var"},
		{token.IDENT, "x"},
		{token.ASSIGN, "="},
		{token.NUMBER, "0x1F"},
		{token.PLUS, "+"},
		{token.NUMBER, "2.5e1"},
		{token.SEMICOLON, ";"},
		{token.IDENT, "x"},
		{token.PLUS_ASSIGN, "+="},
		{token.NUMBER, "3"},
		{token.PIPE, "|>"},
		{token.IDENT, "f"},
		{token.LPAREN, "("},
		{token.RPAREN, ")"},
		{token.SEMICOLON, ";"},
		{token.IDENT, "a"},
		{token.LBRACKET, "["},
		{token.IDENT, "i"},
		{token.RBRACKET, "]"},
		{token.DEC, "--"},
		{token.SEMICOLON, ";"},
		{token.BANG, "!"},
		{token.IDENT, "b"},
		{token.AND, "&&"},
		{token.IDENT, "c"},
		{token.OR, "||"},
		{token.IDENT, "d"},
		{token.NOT_EQ, "!="},
		{token.IDENT, "e"},
		{token.LT_EQ, "<="},
		{token.IDENT, "f"},
		{token.GT_EQ, ">="},
		{token.IDENT, "g"},
		{token.QUESTION, "?"},
		{token.IDENT, "h"},
		{token.COLON, ":"},
		{token.IDENT, "i"},
		{token.EOF, ""},
	}
	l := New(input, "test.em")
	for i, tt := range tests {
		tok, err := l.Next()
		require.Nil(t, err)
		require.Equal(t, tt.expectedKind, tok.Kind, "tests[%d]", i)
		require.Equal(t, tt.expectedLiteral, tok.Literal, "tests[%d]", i)
	}
	tok, err := l.Next()
	require.Nil(t, err)
	require.Equal(t, token.EOF, tok.Kind)
}

func TestPositions(t *testing.T) {
	l := New("a\n  bb", "")
	tok, err := l.Next()
	require.Nil(t, err)
	require.Equal(t, 1, tok.Pos.Line)
	require.Equal(t, 1, tok.Pos.Column)
	tok, err = l.Next()
	require.Nil(t, err)
	require.Equal(t, "bb", tok.Literal)
	require.Equal(t, 2, tok.Pos.Line)
	require.Equal(t, 3, tok.Pos.Column)
}

func TestStrings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"hello"`, "hello"},
		{`"a\tb\n"`, "a\tb\n"},
		{`"quote \" back \\"`, `quote " back \`},
		{`"\x41\x42"`, "AB"},
		{`""`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok, err := New(tt.input, "").Next()
			require.Nil(t, err)
			require.Equal(t, token.STRING, tok.Kind)
			require.Equal(t, tt.expected, tok.Literal)
		})
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		input   string
		message string
	}{
		{`"open`, "unterminated string literal"},
		{"/* never closed", "unterminated block comment"},
		{"a # b", "illegal character '#'"},
		{`"\q"`, `unknown escape sequence \q`},
		{"0x", `invalid hex literal "0x"`},
		{"12abc", `invalid number literal "12a"`},
		{"a & b", "illegal character '&'"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := New(tt.input, "").All()
			require.NotNil(t, err)
			located, ok := err.(*errz.Error)
			require.True(t, ok)
			require.Equal(t, errz.ErrSyntax, located.Kind)
			require.Equal(t, tt.message, located.Message)
		})
	}
}

func TestAll(t *testing.T) {
	tokens, err := New("namespace Game.World { }", "").All()
	require.Nil(t, err)
	var kinds []token.Kind
	for _, tok := range tokens {
		kinds = append(kinds, tok.Kind)
	}
	require.Equal(t, []token.Kind{
		token.NAMESPACE, token.IDENT, token.DOT, token.IDENT, token.LBRACE, token.RBRACE,
	}, kinds)
}
