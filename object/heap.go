package object

import (
	"fmt"
	"strings"
	"sync"

	"github.com/emerald-lang/emerald/names"
)

// String is an immutable heap string.
type String struct {
	Value string
}

// Array is a growable list of values. It is shared between runners, so
// every access to Items goes through the mutex.
type Array struct {
	mu    sync.Mutex
	Items []Value
}

// Realloc empties the array, keeping its backing storage.
func (a *Array) Realloc() {
	a.Items = a.Items[:0]
}

// Len returns the number of items.
func (a *Array) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Items)
}

// FunctionObject is a function used as a value. Target is the overload set
// it names; the heap does not interpret it.
type FunctionObject struct {
	Name   string
	Target any
}

// Layout describes the fields of a user-defined object type.
type Layout struct {
	ID       uint32
	Name     string
	Fields   []names.Name
	Defaults []Value // scalars and strings only
}

// FieldIndex returns the position of a field, or -1.
func (l *Layout) FieldIndex(name names.Name) int {
	for i, f := range l.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// UserObject is an instance of a Layout, or an opaque host value when Host
// is set and Layout is nil.
type UserObject struct {
	mu     sync.Mutex
	Layout *Layout
	Fields []Value
	Host   any
}

// Realloc clears the object, keeping its field storage.
func (o *UserObject) Realloc() {
	o.Layout = nil
	o.Fields = o.Fields[:0]
	o.Host = nil
}

// Heap owns the four slab allocators.
type Heap struct {
	Strings   *Allocator[String]
	Arrays    *Allocator[Array]
	Functions *Allocator[FunctionObject]
	Objects   *Allocator[UserObject]
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	h := &Heap{}
	h.Strings = NewAllocator(func(s *String) { s.Value = "" })
	h.Arrays = NewAllocator(func(a *Array) {
		a.mu.Lock()
		for _, item := range a.Items {
			h.Release(item)
		}
		a.Items = a.Items[:0]
		a.mu.Unlock()
	})
	h.Functions = NewAllocator(func(f *FunctionObject) { f.Target = nil })
	h.Objects = NewAllocator(func(o *UserObject) {
		o.mu.Lock()
		for _, field := range o.Fields {
			h.Release(field)
		}
		o.Fields = o.Fields[:0]
		o.Host = nil
		o.mu.Unlock()
	})
	return h
}

// NewString allocates a string.
func (h *Heap) NewString(s string) Value {
	return fromHandle(StringKind, h.Strings.Alloc(func(c *String) { c.Value = s }))
}

// NewArray allocates an array that takes ownership of items.
func (h *Heap) NewArray(items []Value) Value {
	return fromHandle(ArrayKind, h.Arrays.Alloc(func(a *Array) {
		a.Items = append(a.Items, items...)
	}))
}

// NewFunction allocates a function object.
func (h *Heap) NewFunction(name string, target any) Value {
	return fromHandle(FunctionKind, h.Functions.Alloc(func(f *FunctionObject) {
		f.Name = name
		f.Target = target
	}))
}

// NewObject allocates an instance of layout populated with its defaults.
func (h *Heap) NewObject(layout *Layout) Value {
	for _, d := range layout.Defaults {
		h.Retain(d)
	}
	return fromHandle(ObjectKind, h.Objects.Alloc(func(o *UserObject) {
		o.Layout = layout
		o.Fields = append(o.Fields, layout.Defaults...)
	}))
}

// NewExternal wraps an opaque host value.
func (h *Heap) NewExternal(host any) Value {
	return fromHandle(ExternalKind, h.Objects.Alloc(func(o *UserObject) {
		o.Host = host
	}))
}

// String returns the string cell for v, or nil.
func (h *Heap) String(v Value) *String {
	if v.kind != StringKind {
		return nil
	}
	return h.Strings.Get(v.Handle())
}

// Array returns the array cell for v, or nil.
func (h *Heap) Array(v Value) *Array {
	if v.kind != ArrayKind {
		return nil
	}
	return h.Arrays.Get(v.Handle())
}

// Function returns the function cell for v, or nil.
func (h *Heap) Function(v Value) *FunctionObject {
	if v.kind != FunctionKind {
		return nil
	}
	return h.Functions.Get(v.Handle())
}

// Object returns the user object or external cell for v, or nil.
func (h *Heap) Object(v Value) *UserObject {
	if v.kind != ObjectKind && v.kind != ExternalKind {
		return nil
	}
	return h.Objects.Get(v.Handle())
}

// Retain adds a reference if v is a heap value.
func (h *Heap) Retain(v Value) {
	switch v.kind {
	case StringKind:
		h.Strings.Retain(v.Handle())
	case ArrayKind:
		h.Arrays.Retain(v.Handle())
	case FunctionKind:
		h.Functions.Retain(v.Handle())
	case ObjectKind, ExternalKind:
		h.Objects.Retain(v.Handle())
	}
}

// Release drops a reference if v is a heap value.
func (h *Heap) Release(v Value) {
	switch v.kind {
	case StringKind:
		h.Strings.Release(v.Handle())
	case ArrayKind:
		h.Arrays.Release(v.Handle())
	case FunctionKind:
		h.Functions.Release(v.Handle())
	case ObjectKind, ExternalKind:
		h.Objects.Release(v.Handle())
	}
}

// RefCount returns the reference count of a heap value, or 0.
func (h *Heap) RefCount(v Value) int32 {
	switch v.kind {
	case StringKind:
		return h.Strings.RefCount(v.Handle())
	case ArrayKind:
		return h.Arrays.RefCount(v.Handle())
	case FunctionKind:
		return h.Functions.RefCount(v.Handle())
	case ObjectKind, ExternalKind:
		return h.Objects.RefCount(v.Handle())
	}
	return 0
}

// SweepStats reports what one sweep reclaimed.
type SweepStats struct {
	Strings   int
	Arrays    int
	Functions int
	Objects   int
}

// Total returns the number of reclaimed cells.
func (s SweepStats) Total() int {
	return s.Strings + s.Arrays + s.Functions + s.Objects
}

// Sweep reclaims unreferenced cells in every allocator. Containers are swept
// first so the references they drop are visible to the later passes.
func (h *Heap) Sweep() SweepStats {
	var stats SweepStats
	stats.Arrays = h.Arrays.Sweep()
	stats.Objects = h.Objects.Sweep()
	stats.Functions = h.Functions.Sweep()
	stats.Strings = h.Strings.Sweep()
	return stats
}

// Truthy returns the truth value of v.
func (h *Heap) Truthy(v Value) bool {
	switch v.kind {
	case UndefinedKind:
		return false
	case NumberKind:
		return v.Number() != 0
	case BooleanKind:
		return v.Bool()
	case StringKind:
		if s := h.String(v); s != nil {
			return s.Value != ""
		}
		return false
	}
	return true
}

// Equal compares two values. Numbers compare within Epsilon, strings by
// content, everything else by identity.
func (h *Heap) Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case UndefinedKind:
		return true
	case NumberKind:
		return NumbersEqual(a.Number(), b.Number())
	case StringKind:
		sa, sb := h.String(a), h.String(b)
		return sa != nil && sb != nil && sa.Value == sb.Value
	}
	return a.bits == b.bits
}

// Compare orders two numbers or two strings. The second result is false
// when the values are not ordered.
func (h *Heap) Compare(a, b Value) (int, bool) {
	if a.kind == NumberKind && b.kind == NumberKind {
		x, y := a.Number(), b.Number()
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if a.kind == StringKind && b.kind == StringKind {
		sa, sb := h.String(a), h.String(b)
		if sa == nil || sb == nil {
			return 0, false
		}
		return strings.Compare(sa.Value, sb.Value), true
	}
	return 0, false
}

// Format renders v the way print shows it.
func (h *Heap) Format(v Value) string {
	var b strings.Builder
	h.format(&b, v, 0)
	return b.String()
}

func (h *Heap) format(b *strings.Builder, v Value, depth int) {
	if depth > 8 {
		b.WriteString("...")
		return
	}
	switch v.kind {
	case UndefinedKind:
		b.WriteString("undefined")
	case NumberKind:
		b.WriteString(FormatNumber(v.Number()))
	case BooleanKind:
		fmt.Fprintf(b, "%t", v.Bool())
	case StringKind:
		if s := h.String(v); s != nil {
			b.WriteString(s.Value)
		}
	case ArrayKind:
		arr := h.Array(v)
		if arr == nil {
			b.WriteString("[]")
			return
		}
		arr.mu.Lock()
		items := append([]Value(nil), arr.Items...)
		arr.mu.Unlock()
		b.WriteString("[")
		for i, item := range items {
			if i > 0 {
				b.WriteString(", ")
			}
			h.format(b, item, depth+1)
		}
		b.WriteString("]")
	case FunctionKind:
		if fn := h.Function(v); fn != nil {
			fmt.Fprintf(b, "function %s", fn.Name)
		}
	case ObjectKind:
		obj := h.Object(v)
		if obj == nil || obj.Layout == nil {
			b.WriteString("object")
			return
		}
		obj.mu.Lock()
		fields := append([]Value(nil), obj.Fields...)
		obj.mu.Unlock()
		b.WriteString(obj.Layout.Name)
		b.WriteString("{")
		for i, name := range obj.Layout.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name.String())
			b.WriteString(": ")
			if i < len(fields) {
				h.format(b, fields[i], depth+1)
			}
		}
		b.WriteString("}")
	case ExternalKind:
		b.WriteString("external")
	}
}

// Load returns item i with a reference the caller owns.
func (h *Heap) Load(a *Array, i int) (Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.Items) {
		return Undefined, false
	}
	v := a.Items[i]
	h.Retain(v)
	return v, true
}

// Store replaces item i, taking ownership of v and releasing the old item.
func (h *Heap) Store(a *Array, i int, v Value) bool {
	a.mu.Lock()
	if i < 0 || i >= len(a.Items) {
		a.mu.Unlock()
		return false
	}
	old := a.Items[i]
	a.Items[i] = v
	a.mu.Unlock()
	h.Release(old)
	return true
}

// Push appends v, taking ownership of it, and returns the new length.
func (a *Array) Push(v Value) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Items = append(a.Items, v)
	return len(a.Items)
}

// Pop removes the last item and hands its reference to the caller.
func (a *Array) Pop() (Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.Items)
	if n == 0 {
		return Undefined, false
	}
	v := a.Items[n-1]
	a.Items = a.Items[:n-1]
	return v, true
}

// RemoveAt deletes item i and hands its reference to the caller.
func (a *Array) RemoveAt(i int) (Value, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.Items) {
		return Undefined, false
	}
	v := a.Items[i]
	a.Items = append(a.Items[:i], a.Items[i+1:]...)
	return v, true
}

// LoadField returns field i with a reference the caller owns.
func (h *Heap) LoadField(o *UserObject, i int) (Value, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i < 0 || i >= len(o.Fields) {
		return Undefined, false
	}
	v := o.Fields[i]
	h.Retain(v)
	return v, true
}

// StoreField replaces field i, taking ownership of v.
func (h *Heap) StoreField(o *UserObject, i int, v Value) bool {
	o.mu.Lock()
	if i < 0 || i >= len(o.Fields) {
		o.mu.Unlock()
		return false
	}
	old := o.Fields[i]
	o.Fields[i] = v
	o.mu.Unlock()
	h.Release(old)
	return true
}
