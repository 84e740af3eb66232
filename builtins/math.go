package builtins

import (
	"math"

	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/symbols"
)

func mathBuiltins() []Builtin {
	num := object.NumberKind
	one := []object.Kind{num}
	two := []object.Kind{num, num}
	return []Builtin{
		{"Math.Sqrt", one, num, unary("Math.Sqrt", math.Sqrt)},
		{"Math.Abs", one, num, unary("Math.Abs", math.Abs)},
		{"Math.Floor", one, num, unary("Math.Floor", math.Floor)},
		{"Math.Ceil", one, num, unary("Math.Ceil", math.Ceil)},
		{"Math.Round", one, num, unary("Math.Round", math.Round)},
		{"Math.Sin", one, num, unary("Math.Sin", math.Sin)},
		{"Math.Cos", one, num, unary("Math.Cos", math.Cos)},
		{"Math.Min", two, num, binary("Math.Min", math.Min)},
		{"Math.Max", two, num, binary("Math.Max", math.Max)},
		{"Math.Pow", two, num, binary("Math.Pow", math.Pow)},
	}
}

func unary(name string, fn func(float64) float64) symbols.Native {
	return func(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
		x, err := number(name, args, 0)
		if err != nil {
			return object.Undefined, err
		}
		return object.FromNumber(fn(x)), nil
	}
}

func binary(name string, fn func(float64, float64) float64) symbols.Native {
	return func(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
		x, err := number(name, args, 0)
		if err != nil {
			return object.Undefined, err
		}
		y, err := number(name, args, 1)
		if err != nil {
			return object.Undefined, err
		}
		return object.FromNumber(fn(x, y)), nil
	}
}
