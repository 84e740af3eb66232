package errz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := CompileErrorf(SourceLocation{Filename: "main.em", Line: 4, Column: 2}, "variable %q already exists", "x")
	require.Equal(t, `compile error: variable "x" already exists (main.em:4:2)`, err.Error())

	err = SyntaxErrorf(SourceLocation{}, "unexpected end of input")
	require.Equal(t, "syntax error: unexpected end of input", err.Error())
}

func TestFriendlyErrorMessage(t *testing.T) {
	src := "var x = 1;\nvar y = ;\n"
	err := SyntaxErrorf(SourceLocation{Line: 2, Column: 9, Source: LineOf(src, 2)}, "unexpected token %q", ";")
	err.Expected = []string{"NUMBER", "IDENT"}
	msg := err.FriendlyErrorMessage()
	require.Contains(t, msg, " | var y = ;\n")
	require.Contains(t, msg, " |         ^\n")
	require.Contains(t, msg, "expected one of: NUMBER, IDENT")
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := &Error{Kind: ErrRuntime, Message: "export failed", Cause: cause}
	require.True(t, errors.Is(err, cause))
}

func TestLineOf(t *testing.T) {
	src := "a\r\nb\nc"
	require.Equal(t, "a", LineOf(src, 1))
	require.Equal(t, "c", LineOf(src, 3))
	require.Equal(t, "", LineOf(src, 4))
	require.Equal(t, "", LineOf(src, 0))
}
