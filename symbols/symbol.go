// Package symbols holds the durable description of every name a program can
// reach: namespaces, object types, overloaded functions and global
// variables, plus the compiled form of script functions.
package symbols

import (
	"fmt"
	"sync"

	"github.com/gofrs/uuid"

	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
)

// Kind is the kind of a symbol.
type Kind uint8

const (
	KindNamespace Kind = iota
	KindObject
	KindFunction
	KindVariable
	KindStatic
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "namespace"
	case KindObject:
		return "object"
	case KindFunction:
		return "function"
	case KindVariable:
		return "variable"
	case KindStatic:
		return "static"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Flags qualify a symbol.
type Flags uint8

const (
	Assignable Flags = 1 << iota
	Typed
	Public
)

// Has reports whether every bit of f2 is set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// Symbol is the global description of one name. Exactly one of the payload
// fields is set, matching Kind.
type Symbol struct {
	Path     names.Path
	Kind     Kind
	Flags    Flags
	Type     object.Kind
	TypeName names.Path // object type of a variable typed with a user type
	Unit     uuid.UUID  // owning unit, uuid.Nil for host and intrinsic symbols

	Namespace *Namespace
	Object    *UserDefinedType
	Functions *FunctionTable
	Variable  *Variable
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.Path)
}

// Namespace marks a path segment that groups other symbols.
type Namespace struct {
	Path names.Path
}

// NewNamespace returns a namespace symbol.
func NewNamespace(path names.Path, unit uuid.UUID) *Symbol {
	return &Symbol{
		Path:      path,
		Kind:      KindNamespace,
		Flags:     Public,
		Unit:      unit,
		Namespace: &Namespace{Path: path},
	}
}

// Variable is a boxed global value shared by every runner.
type Variable struct {
	mu    sync.Mutex
	value object.Value
}

// Load returns the value with a reference the caller owns.
func (v *Variable) Load(h *object.Heap) object.Value {
	v.mu.Lock()
	defer v.mu.Unlock()
	h.Retain(v.value)
	return v.value
}

// Store replaces the value, taking ownership of val.
func (v *Variable) Store(h *object.Heap, val object.Value) {
	v.mu.Lock()
	old := v.value
	v.value = val
	v.mu.Unlock()
	h.Release(old)
}

// Constant is a literal known at compile time. Object field defaults are
// constants.
type Constant struct {
	Kind   object.Kind
	Number float64
	Bool   bool
	String string
}

// Value materializes the constant on h. Strings are allocated.
func (c Constant) Value(h *object.Heap) object.Value {
	switch c.Kind {
	case object.NumberKind:
		return object.FromNumber(c.Number)
	case object.BooleanKind:
		return object.FromBool(c.Bool)
	case object.StringKind:
		return h.NewString(c.String)
	}
	return object.Undefined
}

// Field is one field of a user-defined type.
type Field struct {
	Name     names.Name
	Type     object.Kind
	TypeName names.Path
	Default  Constant
}

// UserDefinedType is an object type declared by a script. Layout is set when
// the owning unit is registered.
type UserDefinedType struct {
	Path   names.Path
	Fields []Field
	Layout *object.Layout
}

// FieldIndex returns the position of a field, or -1.
func (t *UserDefinedType) FieldIndex(name names.Name) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// BuildLayout creates the runtime layout for t with defaults allocated on h.
func (t *UserDefinedType) BuildLayout(id uint32, h *object.Heap) *object.Layout {
	l := &object.Layout{ID: id, Name: t.Path.String()}
	for _, f := range t.Fields {
		l.Fields = append(l.Fields, f.Name)
		l.Defaults = append(l.Defaults, f.Default.Value(h))
	}
	return l
}
