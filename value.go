package emerald

import (
	"fmt"

	"github.com/emerald-lang/emerald/object"
)

// Kind is the type of a value crossing the host boundary.
type Kind uint8

const (
	UndefinedKind Kind = iota
	NumberKind
	BooleanKind
	ExternalKind
	StringKind
)

func (k Kind) String() string {
	switch k {
	case UndefinedKind:
		return "undefined"
	case NumberKind:
		return "number"
	case BooleanKind:
		return "bool"
	case ExternalKind:
		return "external"
	case StringKind:
		return "string"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// object returns the script kind k maps to. UndefinedKind accepts any value.
func (k Kind) object() object.Kind {
	switch k {
	case NumberKind:
		return object.NumberKind
	case BooleanKind:
		return object.BooleanKind
	case ExternalKind:
		return object.ExternalKind
	case StringKind:
		return object.StringKind
	}
	return object.UndefinedKind
}

// Value is a script value as seen by the host. Values hold no heap
// references, so they can be kept and copied freely.
type Value struct {
	kind     Kind
	number   float64
	boolean  bool
	text     string
	external any
}

// Undefined is the zero Value.
var Undefined = Value{}

// Number returns a number value.
func Number(f float64) Value { return Value{kind: NumberKind, number: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: BooleanKind, boolean: b} }

// String returns a string value.
func String(s string) Value { return Value{kind: StringKind, text: s} }

// External wraps a host value that scripts pass around but cannot inspect.
func External(v any) Value { return Value{kind: ExternalKind, external: v} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == UndefinedKind }

// AsNumber returns the number held by v, or 0.
func (v Value) AsNumber() float64 { return v.number }

// AsBool returns the boolean held by v, or false.
func (v Value) AsBool() bool { return v.boolean }

// AsString returns the text held by v, or "".
func (v Value) AsString() string { return v.text }

// AsExternal returns the host value held by v, or nil.
func (v Value) AsExternal() any { return v.external }

func (v Value) String() string {
	switch v.kind {
	case NumberKind:
		return object.FormatNumber(v.number)
	case BooleanKind:
		return fmt.Sprintf("%t", v.boolean)
	case StringKind:
		return v.text
	case ExternalKind:
		return fmt.Sprintf("external(%v)", v.external)
	}
	return "undefined"
}

// toObject converts v to a script value owned by the caller.
func toObject(heap *object.Heap, v Value) object.Value {
	switch v.kind {
	case NumberKind:
		return object.FromNumber(v.number)
	case BooleanKind:
		return object.FromBool(v.boolean)
	case StringKind:
		return heap.NewString(v.text)
	case ExternalKind:
		return heap.NewExternal(v.external)
	}
	return object.Undefined
}

// fromObject converts a script value. Arrays, functions and script objects
// have no host form; they convert to their printed text.
func fromObject(heap *object.Heap, v object.Value) Value {
	switch v.Kind() {
	case object.UndefinedKind:
		return Undefined
	case object.NumberKind:
		return Number(v.Number())
	case object.BooleanKind:
		return Bool(v.Bool())
	case object.ExternalKind:
		if o := heap.Object(v); o != nil {
			return External(o.Host)
		}
		return Undefined
	}
	return String(heap.Format(v))
}
