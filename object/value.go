// Package object implements the runtime value model: tagged scalar values,
// reference-counted heap objects and the slab allocators that recycle them.
//
// # Values
//
// A Value is a small tagged union. Numbers, booleans and undefined live
// inline. Strings, arrays, function objects and user objects live in a Heap
// and a Value refers to them through a generation-checked Handle, so a stale
// reference to a recycled cell is detected instead of aliasing the new
// occupant.
//
// # Ownership
//
// Every heap cell carries a reference count. Allocation returns a Value that
// owns one reference. Storing a Value in a second place must be paired with
// Heap.Retain, and dropping a place with Heap.Release. Cells whose count falls
// to zero stay intact until the next sweep.
package object

import (
	"math"
	"strconv"
)

// Kind is the runtime type tag of a Value. The compiler uses the same tags
// for static types, with UndefinedKind meaning "unknown".
type Kind uint8

const (
	UndefinedKind Kind = iota
	NumberKind
	BooleanKind
	StringKind
	ArrayKind
	FunctionKind
	ObjectKind
	ExternalKind
)

var kindNames = [...]string{
	UndefinedKind: "undefined",
	NumberKind:    "number",
	BooleanKind:   "bool",
	StringKind:    "string",
	ArrayKind:     "array",
	FunctionKind:  "function",
	ObjectKind:    "object",
	ExternalKind:  "external",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// ParseKind returns the kind named by a script type annotation.
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return UndefinedKind, false
}

// IsHeap reports whether values of this kind refer to a heap cell.
func (k Kind) IsHeap() bool {
	return k >= StringKind
}

// Epsilon is the tolerance used when comparing numbers for equality.
const Epsilon = 0.00001

// NumbersEqual compares two numbers within Epsilon.
func NumbersEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) < Epsilon
}

// FormatNumber renders a number the way scripts print it.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.Abs(f) >= 1e21:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Handle addresses a heap cell. Gen must match the cell's generation for the
// handle to be valid.
type Handle struct {
	Index uint32
	Gen   uint32
}

// Value is a runtime value.
type Value struct {
	kind Kind
	bits uint64
}

// Undefined is the zero Value.
var Undefined = Value{}

// True and False are the boolean values.
var (
	True  = Value{kind: BooleanKind, bits: 1}
	False = Value{kind: BooleanKind}
)

// FromNumber wraps a number.
func FromNumber(f float64) Value {
	return Value{kind: NumberKind, bits: math.Float64bits(f)}
}

// FromBool wraps a boolean.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

func fromHandle(kind Kind, h Handle) Value {
	return Value{kind: kind, bits: uint64(h.Index) | uint64(h.Gen)<<32}
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether v is undefined.
func (v Value) IsUndefined() bool { return v.kind == UndefinedKind }

// IsHeap reports whether v refers to a heap cell.
func (v Value) IsHeap() bool { return v.kind.IsHeap() }

// Number returns the numeric payload, or 0 for other kinds.
func (v Value) Number() float64 {
	if v.kind != NumberKind {
		return 0
	}
	return math.Float64frombits(v.bits)
}

// Bool returns the boolean payload, or false for other kinds.
func (v Value) Bool() bool {
	return v.kind == BooleanKind && v.bits != 0
}

// Handle returns the heap handle of an object value.
func (v Value) Handle() Handle {
	return Handle{Index: uint32(v.bits), Gen: uint32(v.bits >> 32)}
}

// Same reports whether two values are identical: equal scalars or the same
// heap cell.
func (v Value) Same(o Value) bool {
	return v.kind == o.kind && v.bits == o.bits
}
