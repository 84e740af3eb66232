package symbols

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid"

	"github.com/emerald-lang/emerald/names"
)

// Unit is the output of compiling one source unit: the symbols it declares
// and its top-level initializer.
type Unit struct {
	ID      uuid.UUID
	Name    string
	Symbols map[names.Path]*Symbol
	Order   []names.Path // declaration order
	Init    *ScriptFunction
}

// NewUnit returns an empty unit with a fresh identity.
func NewUnit(name string) *Unit {
	return &Unit{
		ID:      uuid.Must(uuid.NewV4()),
		Name:    name,
		Symbols: map[names.Path]*Symbol{},
	}
}

// Add records sym in the unit. Function symbols with the same path share
// one overload set.
func (u *Unit) Add(sym *Symbol) {
	if _, ok := u.Symbols[sym.Path]; !ok {
		u.Order = append(u.Order, sym.Path)
	}
	u.Symbols[sym.Path] = sym
}

// Lookup returns the unit's own symbol for path.
func (u *Unit) Lookup(path names.Path) *Symbol {
	return u.Symbols[path]
}

// Types returns the unit's user-defined types in declaration order.
func (u *Unit) Types() []*UserDefinedType {
	var out []*UserDefinedType
	for _, p := range u.Order {
		if s := u.Symbols[p]; s.Kind == KindObject {
			out = append(out, s.Object)
		}
	}
	return out
}

// Table is the global symbol table. Units are merged and removed under the
// write lock; lookups take the read lock. Every merge or removal bumps the
// generation so cached resolutions made before it are discarded.
type Table struct {
	mu      sync.RWMutex
	symbols map[names.Path]*Symbol
	gen     atomic.Uint64
	layouts atomic.Uint32
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{symbols: map[names.Path]*Symbol{}}
}

// Generation returns the current table generation.
func (t *Table) Generation() uint64 {
	return t.gen.Load()
}

// NextLayoutID returns a fresh object layout identifier.
func (t *Table) NextLayoutID() uint32 {
	return t.layouts.Add(1)
}

// Lookup returns the symbol at path, or nil.
func (t *Table) Lookup(path names.Path) *Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.symbols[path]
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.symbols)
}

// Symbols returns every symbol sorted by path.
func (t *Table) Symbols() []*Symbol {
	t.mu.RLock()
	out := make([]*Symbol, 0, len(t.symbols))
	for _, s := range t.symbols {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path.String() < out[j].Path.String() })
	return out
}

// DefineFunction registers a host or intrinsic overload, creating the
// enclosing namespaces as needed.
func (t *Table) DefineFunction(fn *Function) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureNamespaces(fn.Path.Parent(), fn.Unit); err != nil {
		return err
	}
	sym := t.symbols[fn.Path]
	if sym == nil {
		sym = &Symbol{
			Path:      fn.Path,
			Kind:      KindFunction,
			Flags:     Public,
			Type:      fn.ReturnType,
			Unit:      fn.Unit,
			Functions: NewFunctionTable(fn.Path),
		}
		t.symbols[fn.Path] = sym
	} else if sym.Kind != KindFunction {
		return fmt.Errorf("%s is already defined as a %s", fn.Path, sym.Kind)
	}
	sym.Functions.Push(fn)
	t.gen.Add(1)
	return nil
}

func (t *Table) ensureNamespaces(path names.Path, unit uuid.UUID) error {
	for p := path; !p.IsRoot(); p = p.Parent() {
		existing := t.symbols[p]
		if existing == nil {
			t.symbols[p] = NewNamespace(p, unit)
			continue
		}
		if existing.Kind != KindNamespace {
			return fmt.Errorf("%s is already defined as a %s", p, existing.Kind)
		}
	}
	return nil
}

// Merge adds every symbol of u. Nothing is applied if any symbol conflicts
// with one owned by another unit.
func (t *Table) Merge(u *Unit) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(u, uuid.Nil); err != nil {
		return err
	}
	t.apply(u)
	t.gen.Add(1)
	return nil
}

// Replace removes the unit old and merges u in one step, so no lookup ever
// observes neither version. If u conflicts with a third unit, nothing
// changes.
func (t *Table) Replace(old uuid.UUID, u *Unit) ([]*Symbol, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.check(u, old); err != nil {
		return nil, err
	}
	removed := t.remove(old)
	t.apply(u)
	t.gen.Add(1)
	return removed, nil
}

// Remove deletes every symbol owned by unit and the overloads it pushed onto
// shared overload sets. It returns the removed variables and statics, whose
// values the caller releases.
func (t *Table) Remove(unit uuid.UUID) []*Symbol {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := t.remove(unit)
	t.gen.Add(1)
	return removed
}

// check validates u against the table, treating symbols owned by the unit
// ignore as already gone.
func (t *Table) hasChildren(p names.Path) bool {
	for q := range t.symbols {
		if q != p && q.HasPrefix(p) {
			return true
		}
	}
	return false
}

func (t *Table) check(u *Unit, ignore uuid.UUID) error {
	for _, p := range u.Order {
		sym := u.Symbols[p]
		for parent := p.Parent(); !parent.IsRoot(); parent = parent.Parent() {
			if existing := t.symbols[parent]; existing != nil && existing.Kind != KindNamespace {
				return fmt.Errorf("%s: %s is a %s, not a namespace", p, parent, existing.Kind)
			}
			if pending := u.Symbols[parent]; pending != nil && pending.Kind != KindNamespace {
				return fmt.Errorf("%s: %s is a %s, not a namespace", p, parent, pending.Kind)
			}
		}
		existing := t.symbols[p]
		if existing == nil || (ignore != uuid.Nil && existing.Unit == ignore && existing.Kind != KindFunction) {
			continue
		}
		switch {
		case existing.Kind != sym.Kind:
			return fmt.Errorf("%s is already defined as a %s", p, existing.Kind)
		case sym.Kind == KindNamespace || sym.Kind == KindFunction:
			// shared
		default:
			return fmt.Errorf("duplicate symbol %s", p)
		}
	}
	return nil
}

func (t *Table) apply(u *Unit) {
	for _, p := range u.Order {
		sym := u.Symbols[p]
		for parent := p.Parent(); !parent.IsRoot(); parent = parent.Parent() {
			if t.symbols[parent] == nil {
				if pending := u.Symbols[parent]; pending != nil {
					t.symbols[parent] = pending
				} else {
					t.symbols[parent] = NewNamespace(parent, u.ID)
				}
			}
		}
		existing := t.symbols[p]
		switch {
		case existing == nil:
			t.symbols[p] = sym
		case sym.Kind == KindFunction:
			for _, f := range sym.Functions.Overloads() {
				existing.Functions.Push(f)
			}
		}
	}
}

func (t *Table) remove(unit uuid.UUID) []*Symbol {
	var removed []*Symbol
	for p, sym := range t.symbols {
		switch {
		case sym.Kind == KindFunction:
			if sym.Functions.RemoveUnit(unit) == 0 {
				delete(t.symbols, p)
			}
		case sym.Unit == unit && sym.Kind != KindNamespace:
			delete(t.symbols, p)
			removed = append(removed, sym)
		}
	}
	// Namespaces the unit introduced go once nothing lives beneath them.
	for pruned := true; pruned; {
		pruned = false
		for p, sym := range t.symbols {
			if sym.Kind != KindNamespace || sym.Unit != unit || t.hasChildren(p) {
				continue
			}
			delete(t.symbols, p)
			pruned = true
		}
	}
	return removed
}

// ResolveFunction binds ref to the first candidate with an overload that
// fits its argument count. Bindings are cached until the table changes.
func (t *Table) ResolveFunction(ref *FunctionRef) (*Symbol, *Function) {
	gen := t.gen.Load()
	cached := ref.cache.Load()
	if cached != nil && cached.gen == gen {
		return cached.symbol, cached.fn
	}
	for _, c := range ref.Candidates {
		sym := t.Lookup(c)
		if sym == nil || sym.Kind != KindFunction {
			continue
		}
		if fn := sym.Functions.GetFirstFitting(ref.ArgCount); fn != nil {
			ref.cache.CompareAndSwap(cached, &functionBinding{gen: gen, symbol: sym, fn: fn})
			return sym, fn
		}
	}
	return nil, nil
}

// ResolveGlobal binds ref to the first candidate naming a variable or static.
func (t *Table) ResolveGlobal(ref *GlobalRef) *Symbol {
	gen := t.gen.Load()
	cached := ref.cache.Load()
	if cached != nil && cached.gen == gen {
		return cached.symbol
	}
	for _, c := range ref.Candidates {
		sym := t.Lookup(c)
		if sym != nil && (sym.Kind == KindVariable || sym.Kind == KindStatic) {
			ref.cache.CompareAndSwap(cached, &globalBinding{gen: gen, symbol: sym})
			return sym
		}
	}
	return nil
}

// ResolveType binds ref to the first candidate naming an object type.
func (t *Table) ResolveType(ref *TypeRef) *UserDefinedType {
	gen := t.gen.Load()
	cached := ref.cache.Load()
	if cached != nil && cached.gen == gen {
		return cached.typ
	}
	for _, c := range ref.Candidates {
		sym := t.Lookup(c)
		if sym != nil && sym.Kind == KindObject {
			ref.cache.CompareAndSwap(cached, &typeBinding{gen: gen, typ: sym.Object})
			return sym.Object
		}
	}
	return nil
}
