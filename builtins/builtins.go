// Package builtins defines the intrinsic functions every environment starts
// with: the Array, String and Math namespaces plus print and println.
package builtins

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/symbols"
)

// Builtin describes one intrinsic overload.
type Builtin struct {
	Path   string
	Args   []object.Kind // UndefinedKind accepts any value
	Return object.Kind
	Fn     symbols.Native
}

const anyKind = object.UndefinedKind

// Builtins returns every intrinsic overload.
func Builtins() []Builtin {
	var out []Builtin
	out = append(out, arrayBuiltins()...)
	out = append(out, stringBuiltins()...)
	out = append(out, mathBuiltins()...)
	out = append(out,
		Builtin{"print", []object.Kind{anyKind}, anyKind, Print},
		Builtin{"println", nil, anyKind, Println},
		Builtin{"println", []object.Kind{anyKind}, anyKind, Println},
	)
	return out
}

// Register defines every intrinsic in t. Intrinsics are public and belong
// to no unit.
func Register(t *symbols.Table) error {
	var result *multierror.Error
	for _, b := range Builtins() {
		path, err := names.ParsePath(b.Path)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		fn := &symbols.Function{
			Path:       path,
			Namespace:  path.Parent(),
			ArgCount:   len(b.Args),
			ArgTypes:   b.Args,
			ReturnType: b.Return,
			Public:     true,
			Kind:       symbols.IntrinsicKind,
			Native:     b.Fn,
		}
		if err := t.DefineFunction(fn); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Print writes its argument without a newline.
func Print(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	ctx.Print(ctx.Heap().Format(args[0]))
	return object.Undefined, nil
}

// Println writes its argument, if any, followed by a newline.
func Println(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		ctx.Print("\n")
		return object.Undefined, nil
	}
	ctx.Print(ctx.Heap().Format(args[0]) + "\n")
	return object.Undefined, nil
}

func number(name string, args []object.Value, i int) (float64, error) {
	v := args[i]
	if v.Kind() != object.NumberKind {
		return 0, fmt.Errorf("%s: argument %d must be number, not %s", name, i+1, v.Kind())
	}
	return v.Number(), nil
}

func integer(name string, args []object.Value, i int) (int, error) {
	n, err := number(name, args, i)
	if err != nil {
		return 0, err
	}
	if n != float64(int(n)) {
		return 0, fmt.Errorf("%s: argument %d must be an integer, got %s", name, i+1, object.FormatNumber(n))
	}
	return int(n), nil
}

func str(ctx symbols.CallContext, name string, args []object.Value, i int) (string, error) {
	s := ctx.Heap().String(args[i])
	if s == nil {
		return "", fmt.Errorf("%s: argument %d must be string, not %s", name, i+1, args[i].Kind())
	}
	return s.Value, nil
}

func array(ctx symbols.CallContext, name string, args []object.Value, i int) (*object.Array, error) {
	a := ctx.Heap().Array(args[i])
	if a == nil {
		return nil, fmt.Errorf("%s: argument %d must be array, not %s", name, i+1, args[i].Kind())
	}
	return a, nil
}
