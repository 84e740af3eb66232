package builtins

import (
	"fmt"

	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/symbols"
)

func arrayBuiltins() []Builtin {
	arr := object.ArrayKind
	num := object.NumberKind
	return []Builtin{
		{"Array.Push", []object.Kind{arr, anyKind}, num, ArrayPush},
		{"Array.Pop", []object.Kind{arr}, anyKind, ArrayPop},
		{"Array.Size", []object.Kind{arr}, num, ArraySize},
		{"Array.RemoveAt", []object.Kind{arr, num}, anyKind, ArrayRemoveAt},
	}
}

// ArrayPush appends a value and returns the new length.
func ArrayPush(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	a, err := array(ctx, "Array.Push", args, 0)
	if err != nil {
		return object.Undefined, err
	}
	ctx.Heap().Retain(args[1])
	return object.FromNumber(float64(a.Push(args[1]))), nil
}

// ArrayPop removes and returns the last item, or undefined when empty.
func ArrayPop(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	a, err := array(ctx, "Array.Pop", args, 0)
	if err != nil {
		return object.Undefined, err
	}
	v, _ := a.Pop()
	return v, nil
}

func ArraySize(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	a, err := array(ctx, "Array.Size", args, 0)
	if err != nil {
		return object.Undefined, err
	}
	return object.FromNumber(float64(a.Len())), nil
}

// ArrayRemoveAt removes and returns the item at an index.
func ArrayRemoveAt(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
	a, err := array(ctx, "Array.RemoveAt", args, 0)
	if err != nil {
		return object.Undefined, err
	}
	i, err := integer("Array.RemoveAt", args, 1)
	if err != nil {
		return object.Undefined, err
	}
	v, ok := a.RemoveAt(i)
	if !ok {
		return object.Undefined, fmt.Errorf("Array.RemoveAt: index %d out of bounds", i)
	}
	return v, nil
}
