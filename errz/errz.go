// Package errz defines the located error types produced while lexing,
// parsing, compiling and running scripts.
package errz

import (
	"bytes"
	"fmt"
	"strings"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrSyntax indicates the lexer or parser rejected the input.
	ErrSyntax ErrorKind = iota
	// ErrCompile indicates a semantic error found during code generation.
	ErrCompile
	// ErrRuntime indicates a failure while executing bytecode.
	ErrRuntime
	// ErrWarning indicates a recoverable runtime condition.
	ErrWarning
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrCompile:
		return "compile error"
	case ErrRuntime:
		return "runtime error"
	case ErrWarning:
		return "warning"
	default:
		return "error"
	}
}

// SourceLocation identifies a position in a source file.
type SourceLocation struct {
	Filename string
	Line     int
	Column   int
	Source   string // text of the offending line, when known
}

// IsZero reports whether no location information is present.
func (l SourceLocation) IsZero() bool {
	return l.Filename == "" && l.Line == 0
}

func (l SourceLocation) String() string {
	if l.Filename == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.Filename, l.Line, l.Column)
}

// Error is a located error. Syntax, compile and runtime errors share it and
// differ by Kind.
type Error struct {
	Kind     ErrorKind
	Message  string
	Location SourceLocation
	Function string   // enclosing function for runtime errors
	Token    string   // offending token for syntax errors
	Expected []string // expected tokens for syntax errors
	Hint     string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if !e.Location.IsZero() {
		b.WriteString(" (")
		b.WriteString(e.Location.String())
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// FriendlyErrorMessage returns a multi-line message with a source snippet
// and a caret under the offending column.
func (e *Error) FriendlyErrorMessage() string {
	var msg bytes.Buffer
	msg.WriteString(e.Error())
	msg.WriteString("\n")
	if e.Function != "" {
		fmt.Fprintf(&msg, " in function %s\n", e.Function)
	}
	if e.Location.Source != "" {
		msg.WriteString(" | ")
		msg.WriteString(e.Location.Source)
		msg.WriteString("\n")
		if e.Location.Column > 0 {
			msg.WriteString(" | ")
			msg.WriteString(strings.Repeat(" ", e.Location.Column-1))
			msg.WriteString("^\n")
		}
	}
	if len(e.Expected) > 0 {
		fmt.Fprintf(&msg, " expected one of: %s\n", strings.Join(e.Expected, ", "))
	}
	if e.Hint != "" {
		fmt.Fprintf(&msg, " %s\n", e.Hint)
	}
	return msg.String()
}

// SyntaxErrorf creates a syntax error at the given location.
func SyntaxErrorf(loc SourceLocation, format string, args ...any) *Error {
	return &Error{Kind: ErrSyntax, Message: fmt.Sprintf(format, args...), Location: loc}
}

// CompileErrorf creates a compile error at the given location.
func CompileErrorf(loc SourceLocation, format string, args ...any) *Error {
	return &Error{Kind: ErrCompile, Message: fmt.Sprintf(format, args...), Location: loc}
}

// RuntimeErrorf creates a runtime error raised inside the named function.
func RuntimeErrorf(function string, loc SourceLocation, format string, args ...any) *Error {
	return &Error{Kind: ErrRuntime, Function: function, Message: fmt.Sprintf(format, args...), Location: loc}
}

// LineOf returns line n (1-indexed) of source, or "" if out of range.
func LineOf(source string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if n > len(lines) {
		return ""
	}
	return strings.TrimRight(lines[n-1], "\r")
}
