package builtins

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/symbols"
)

func stringBuiltins() []Builtin {
	s := object.StringKind
	num := object.NumberKind
	return []Builtin{
		{"String.Length", []object.Kind{s}, num, StringLength},
		{"String.Substring", []object.Kind{s, num, num}, s, StringSubstring},
		{"String.Upper", []object.Kind{s}, s, StringUpper},
		{"String.Lower", []object.Kind{s}, s, StringLower},
		{"String.Find", []object.Kind{s, s}, num, StringFind},
		{"String.From", []object.Kind{anyKind}, s, StringFrom},
	}
}

// StringLength counts characters, not bytes.
func StringLength(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	s, err := str(ctx, "String.Length", args, 0)
	if err != nil {
		return object.Undefined, err
	}
	return object.FromNumber(float64(utf8.RuneCountInString(s))), nil
}

// StringSubstring returns count characters starting at start.
func StringSubstring(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	const name = "String.Substring"
	s, err := str(ctx, name, args, 0)
	if err != nil {
		return object.Undefined, err
	}
	start, err := integer(name, args, 1)
	if err != nil {
		return object.Undefined, err
	}
	count, err := integer(name, args, 2)
	if err != nil {
		return object.Undefined, err
	}
	runes := []rune(s)
	if start < 0 || count < 0 || start+count > len(runes) {
		return object.Undefined, fmt.Errorf("%s: range [%d, %d) out of bounds for length %d",
			name, start, start+count, len(runes))
	}
	return ctx.Heap().NewString(string(runes[start : start+count])), nil
}

func StringUpper(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	s, err := str(ctx, "String.Upper", args, 0)
	if err != nil {
		return object.Undefined, err
	}
	return ctx.Heap().NewString(strings.ToUpper(s)), nil
}

func StringLower(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	s, err := str(ctx, "String.Lower", args, 0)
	if err != nil {
		return object.Undefined, err
	}
	return ctx.Heap().NewString(strings.ToLower(s)), nil
}

// StringFind returns the character index of the first occurrence of a
// substring, or -1.
func StringFind(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	s, err := str(ctx, "String.Find", args, 0)
	if err != nil {
		return object.Undefined, err
	}
	sub, err := str(ctx, "String.Find", args, 1)
	if err != nil {
		return object.Undefined, err
	}
	i := strings.Index(s, sub)
	if i < 0 {
		return object.FromNumber(-1), nil
	}
	return object.FromNumber(float64(utf8.RuneCountInString(s[:i]))), nil
}

// StringFrom formats any value the way print does.
func StringFrom(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	return ctx.Heap().NewString(ctx.Heap().Format(args[0])), nil
}
