package symbols

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"

	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/op"
)

// CallContext is what a native function sees of the runner calling it.
type CallContext interface {
	Heap() *object.Heap
	// Print writes script output to the print channel.
	Print(msg string)
	// Logger is the runtime diagnostics channel.
	Logger() *zerolog.Logger
}

// Native is a function implemented in Go. Arguments are borrowed: a native
// that keeps one must Retain it. The returned value is owned by the caller.
// A returned error is logged as a runtime error and the call yields
// undefined.
type Native func(ctx CallContext, args []object.Value) (object.Value, error)

// FunctionKind says how a function is implemented.
type FunctionKind uint8

const (
	ScriptKind FunctionKind = iota
	HostKind
	IntrinsicKind
)

func (k FunctionKind) String() string {
	switch k {
	case ScriptKind:
		return "script"
	case HostKind:
		return "host"
	case IntrinsicKind:
		return "intrinsic"
	}
	return "unknown"
}

// Function is one overload.
type Function struct {
	Path       names.Path
	Namespace  names.Path // declaring namespace, used for visibility
	ArgCount   int
	ArgTypes   []object.Kind
	ReturnType object.Kind
	Public     bool
	Kind       FunctionKind
	Unit       uuid.UUID

	Script *ScriptFunction
	Native Native

	next *Function
}

// VisibleFrom reports whether code declared in namespace ns may call f.
func (f *Function) VisibleFrom(ns names.Path) bool {
	return f.Public || ns.HasPrefix(f.Namespace)
}

// FunctionTable is the overload set of one name. Each arity heads a linked
// list; the most recently pushed definition of an arity wins.
type FunctionTable struct {
	mu      sync.RWMutex
	path    names.Path
	byArity map[int]*Function
}

// NewFunctionTable returns an empty overload set.
func NewFunctionTable(path names.Path) *FunctionTable {
	return &FunctionTable{path: path, byArity: map[int]*Function{}}
}

// Path returns the name of the overload set.
func (t *FunctionTable) Path() names.Path { return t.path }

// Push adds f in front of any existing definition with the same arity.
func (t *FunctionTable) Push(f *Function) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f.next = t.byArity[f.ArgCount]
	t.byArity[f.ArgCount] = f
}

// GetFirstFitting returns the overload taking exactly n arguments, or else
// the one with the smallest arity above n.
func (t *FunctionTable) GetFirstFitting(n int) *Function {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if f := t.byArity[n]; f != nil {
		return f
	}
	var best *Function
	for arity, f := range t.byArity {
		if arity > n && (best == nil || arity < best.ArgCount) {
			best = f
		}
	}
	return best
}

// RemoveUnit unlinks every definition owned by unit and reports how many
// overloads remain.
func (t *FunctionTable) RemoveUnit(unit uuid.UUID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := 0
	for arity, head := range t.byArity {
		var kept, tail *Function
		for f := head; f != nil; f = f.next {
			if f.Unit == unit {
				continue
			}
			if kept == nil {
				kept = f
			} else {
				tail.next = f
			}
			tail = f
			remaining++
		}
		if tail != nil {
			tail.next = nil
		}
		if kept == nil {
			delete(t.byArity, arity)
		} else {
			t.byArity[arity] = kept
		}
	}
	return remaining
}

// Overloads returns the winning definition of every arity, by arity.
func (t *FunctionTable) Overloads() []*Function {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Function, 0, len(t.byArity))
	for _, f := range t.byArity {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArgCount < out[j].ArgCount })
	return out
}

// Definitions returns every definition, shadowed ones included, ordered by
// arity and then oldest first, so pushing them in order rebuilds the set.
func (t *FunctionTable) Definitions() []*Function {
	t.mu.RLock()
	defer t.mu.RUnlock()
	arities := make([]int, 0, len(t.byArity))
	for arity := range t.byArity {
		arities = append(arities, arity)
	}
	sort.Ints(arities)
	var out []*Function
	for _, arity := range arities {
		start := len(out)
		for f := t.byArity[arity]; f != nil; f = f.next {
			out = append(out, f)
		}
		for i, j := start, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Len returns the number of arities defined.
func (t *FunctionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byArity)
}

// ScriptFunction is a compiled function: constant pools, lazily resolved
// reference tables, and bytecode.
type ScriptFunction struct {
	Name          string
	File          string
	Namespace     names.Path
	ArgCount      int
	RegisterCount int

	Numbers    []float64
	Strings    []string
	Functions  []FunctionRef
	Properties []PropertyRef
	Types      []TypeRef
	Globals    []GlobalRef

	Code  []op.Instruction
	Lines []int32 // source line per instruction
}

// Line returns the source line of instruction ip, or 0.
func (f *ScriptFunction) Line(ip int) int {
	if ip < 0 || ip >= len(f.Lines) {
		return 0
	}
	return int(f.Lines[ip])
}

// FunctionRef names a function called by a script function. Candidates are
// tried in order; the first that exists wins. From is the namespace of the
// call site, against which visibility is checked.
type FunctionRef struct {
	Candidates []names.Path
	ArgCount   int
	From       names.Path
	cache      atomic.Pointer[functionBinding]
}

type functionBinding struct {
	gen    uint64
	symbol *Symbol
	fn     *Function
}

// PropertyRef names a field accessed by a script function. The cache packs
// the layout ID in the high word and the field index plus one in the low
// word.
type PropertyRef struct {
	Name  names.Name
	cache atomic.Uint64
}

// Index returns the field position for layout, resolving and caching it on
// first use for that layout.
func (p *PropertyRef) Index(layout *object.Layout) int {
	if layout == nil {
		return -1
	}
	cached := p.cache.Load()
	if uint32(cached>>32) == layout.ID && uint32(cached) != 0 {
		return int(uint32(cached)) - 1
	}
	idx := layout.FieldIndex(p.Name)
	if idx >= 0 {
		p.cache.CompareAndSwap(cached, uint64(layout.ID)<<32|uint64(idx+1))
	}
	return idx
}

// TypeRef names a user-defined type instantiated by a script function.
type TypeRef struct {
	Candidates []names.Path
	cache      atomic.Pointer[typeBinding]
}

type typeBinding struct {
	gen uint64
	typ *UserDefinedType
}

// GlobalRef names a global variable or static read or written by a script
// function.
type GlobalRef struct {
	Candidates []names.Path
	cache      atomic.Pointer[globalBinding]
}

type globalBinding struct {
	gen    uint64
	symbol *Symbol
}
