package symbols

import (
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
)

func fn(path string, arity int, unit uuid.UUID) *Function {
	p := names.MustParsePath(path)
	return &Function{Path: p, Namespace: p.Parent(), ArgCount: arity, Unit: unit, Public: true}
}

func functionSymbol(u *Unit, defs ...*Function) {
	sym := u.Lookup(defs[0].Path)
	if sym == nil {
		sym = &Symbol{Path: defs[0].Path, Kind: KindFunction, Unit: u.ID, Functions: NewFunctionTable(defs[0].Path)}
		u.Add(sym)
	}
	for _, d := range defs {
		sym.Functions.Push(d)
	}
}

func variable(u *Unit, path string) *Symbol {
	sym := &Symbol{Path: names.MustParsePath(path), Kind: KindVariable, Flags: Assignable, Unit: u.ID, Variable: &Variable{}}
	u.Add(sym)
	return sym
}

func TestGetFirstFitting(t *testing.T) {
	ft := NewFunctionTable(names.MustParsePath("f"))
	one := fn("f", 1, uuid.Nil)
	three := fn("f", 3, uuid.Nil)
	five := fn("f", 5, uuid.Nil)
	ft.Push(five)
	ft.Push(one)
	ft.Push(three)

	require.Same(t, one, ft.GetFirstFitting(1))
	require.Same(t, three, ft.GetFirstFitting(2))
	require.Same(t, three, ft.GetFirstFitting(3))
	require.Same(t, five, ft.GetFirstFitting(4))
	require.Nil(t, ft.GetFirstFitting(6))
	require.Equal(t, 3, ft.Len())
}

func TestLatestDefinitionWins(t *testing.T) {
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	ft := NewFunctionTable(names.MustParsePath("f"))
	first := fn("f", 2, a)
	second := fn("f", 2, b)
	ft.Push(first)
	ft.Push(second)
	require.Same(t, second, ft.GetFirstFitting(2))
	require.Equal(t, []*Function{first, second}, ft.Definitions())

	require.Equal(t, 1, ft.RemoveUnit(b))
	require.Same(t, first, ft.GetFirstFitting(2))
	require.Equal(t, 0, ft.RemoveUnit(a))
	require.Nil(t, ft.GetFirstFitting(2))
}

func TestVisibility(t *testing.T) {
	private := fn("Geo.helper", 0, uuid.Nil)
	private.Public = false
	require.True(t, private.VisibleFrom(names.MustParsePath("Geo")))
	require.True(t, private.VisibleFrom(names.MustParsePath("Geo.Inner")))
	require.False(t, private.VisibleFrom(names.MustParsePath("Other")))
	require.False(t, private.VisibleFrom(names.Root))
}

func TestMergeCreatesNamespaces(t *testing.T) {
	table := NewTable()
	u := NewUnit("a.em")
	functionSymbol(u, fn("Geo.Shapes.area", 2, u.ID))
	require.Nil(t, table.Merge(u))

	ns := table.Lookup(names.MustParsePath("Geo.Shapes"))
	require.NotNil(t, ns)
	require.Equal(t, KindNamespace, ns.Kind)
	require.NotNil(t, table.Lookup(names.MustParsePath("Geo")))
	require.Equal(t, 3, table.Len())
}

func TestMergeRejectsDuplicates(t *testing.T) {
	table := NewTable()
	a := NewUnit("a.em")
	variable(a, "counter")
	require.Nil(t, table.Merge(a))

	b := NewUnit("b.em")
	variable(b, "other")
	variable(b, "counter")
	err := table.Merge(b)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "duplicate symbol counter")
	require.Nil(t, table.Lookup(names.MustParsePath("other")))

	c := NewUnit("c.em")
	functionSymbol(c, fn("counter", 0, c.ID))
	err = table.Merge(c)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "already defined as a variable")
}

func TestMergeRejectsNonNamespaceParent(t *testing.T) {
	table := NewTable()
	a := NewUnit("a.em")
	variable(a, "Geo")
	require.Nil(t, table.Merge(a))

	b := NewUnit("b.em")
	functionSymbol(b, fn("Geo.area", 1, b.ID))
	require.NotNil(t, table.Merge(b))
}

func TestFunctionsShareOverloadSets(t *testing.T) {
	table := NewTable()
	a := NewUnit("a.em")
	functionSymbol(a, fn("log", 1, a.ID))
	require.Nil(t, table.Merge(a))

	b := NewUnit("b.em")
	functionSymbol(b, fn("log", 2, b.ID))
	require.Nil(t, table.Merge(b))

	sym := table.Lookup(names.MustParsePath("log"))
	require.Equal(t, 2, sym.Functions.Len())

	table.Remove(b.ID)
	require.Equal(t, 1, sym.Functions.Len())
	table.Remove(a.ID)
	require.Nil(t, table.Lookup(names.MustParsePath("log")))
}

func TestRemoveReturnsVariables(t *testing.T) {
	table := NewTable()
	u := NewUnit("a.em")
	v := variable(u, "App.state")
	functionSymbol(u, fn("App.run", 0, u.ID))
	require.Nil(t, table.Merge(u))

	removed := table.Remove(u.ID)
	require.Contains(t, removed, v)
	require.Equal(t, 0, table.Len())
}

func TestReplaceSwapsUnit(t *testing.T) {
	table := NewTable()
	old := NewUnit("a.em")
	oldFn := fn("main", 0, old.ID)
	functionSymbol(old, oldFn)
	variable(old, "state")
	require.Nil(t, table.Merge(old))

	ref := &FunctionRef{Candidates: []names.Path{names.MustParsePath("main")}}
	_, got := table.ResolveFunction(ref)
	require.Same(t, oldFn, got)

	next := NewUnit("a.em")
	nextFn := fn("main", 0, next.ID)
	functionSymbol(next, nextFn)
	variable(next, "state")
	removed, err := table.Replace(old.ID, next)
	require.Nil(t, err)
	require.Len(t, removed, 1)

	_, got = table.ResolveFunction(ref)
	require.Same(t, nextFn, got)
}

func TestReplaceConflictLeavesTableUnchanged(t *testing.T) {
	table := NewTable()
	other := NewUnit("other.em")
	variable(other, "shared")
	require.Nil(t, table.Merge(other))

	old := NewUnit("a.em")
	functionSymbol(old, fn("main", 0, old.ID))
	require.Nil(t, table.Merge(old))

	next := NewUnit("a.em")
	variable(next, "shared")
	_, err := table.Replace(old.ID, next)
	require.NotNil(t, err)
	require.NotNil(t, table.Lookup(names.MustParsePath("main")))
}

func TestResolveFunctionCandidates(t *testing.T) {
	table := NewTable()
	u := NewUnit("a.em")
	inner := fn("Util.max", 2, u.ID)
	functionSymbol(u, inner)
	require.Nil(t, table.Merge(u))

	ref := &FunctionRef{
		Candidates: []names.Path{names.MustParsePath("App.max"), names.MustParsePath("Util.max"), names.MustParsePath("max")},
		ArgCount:   2,
	}
	sym, got := table.ResolveFunction(ref)
	require.Same(t, inner, got)
	require.Equal(t, "Util.max", sym.Path.String())

	global := NewUnit("b.em")
	outer := fn("App.max", 2, global.ID)
	functionSymbol(global, outer)
	require.Nil(t, table.Merge(global))

	_, got = table.ResolveFunction(ref)
	require.Same(t, outer, got)

	missing := &FunctionRef{Candidates: []names.Path{names.MustParsePath("nope")}}
	sym, got = table.ResolveFunction(missing)
	require.Nil(t, sym)
	require.Nil(t, got)
}

func TestResolveGlobalAndType(t *testing.T) {
	table := NewTable()
	u := NewUnit("a.em")
	v := variable(u, "count")
	typ := &UserDefinedType{Path: names.MustParsePath("Point")}
	u.Add(&Symbol{Path: typ.Path, Kind: KindObject, Flags: Public, Unit: u.ID, Object: typ})
	require.Nil(t, table.Merge(u))
	require.Equal(t, []*UserDefinedType{typ}, u.Types())

	g := &GlobalRef{Candidates: []names.Path{names.MustParsePath("count")}}
	require.Same(t, v, table.ResolveGlobal(g))
	tr := &TypeRef{Candidates: []names.Path{names.MustParsePath("Point")}}
	require.Same(t, typ, table.ResolveType(tr))
	require.Nil(t, table.ResolveType(&TypeRef{Candidates: []names.Path{names.MustParsePath("count")}}))
}

func TestDefineFunction(t *testing.T) {
	table := NewTable()
	require.Nil(t, table.DefineFunction(fn("Host.Clock.now", 0, uuid.Nil)))
	require.Nil(t, table.DefineFunction(fn("Host.Clock.now", 1, uuid.Nil)))
	sym := table.Lookup(names.MustParsePath("Host.Clock.now"))
	require.Equal(t, 2, sym.Functions.Len())
	require.Equal(t, KindNamespace, table.Lookup(names.MustParsePath("Host.Clock")).Kind)

	gen := table.Generation()
	require.NotNil(t, table.DefineFunction(fn("Host.Clock.now.x", 0, uuid.Nil)))
	require.Equal(t, gen, table.Generation())
}

func TestConcurrentResolve(t *testing.T) {
	table := NewTable()
	u := NewUnit("a.em")
	target := fn("f", 1, u.ID)
	functionSymbol(u, target)
	require.Nil(t, table.Merge(u))

	ref := &FunctionRef{Candidates: []names.Path{names.MustParsePath("f")}, ArgCount: 1}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, got := table.ResolveFunction(ref)
				if got != target {
					t.Errorf("resolved %v", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestPropertyRefCache(t *testing.T) {
	x, y := names.Intern("x"), names.Intern("y")
	a := &object.Layout{ID: 1, Fields: []names.Name{x, y}}
	b := &object.Layout{ID: 2, Fields: []names.Name{y}}
	ref := &PropertyRef{Name: y}

	require.Equal(t, 1, ref.Index(a))
	require.Equal(t, 1, ref.Index(a))
	require.Equal(t, 0, ref.Index(b))
	require.Equal(t, -1, (&PropertyRef{Name: names.Intern("z")}).Index(a))
	require.Equal(t, -1, ref.Index(nil))
}

func TestVariableOwnership(t *testing.T) {
	h := object.NewHeap()
	v := &Variable{}
	s := h.NewString("first")
	v.Store(h, s)

	loaded := v.Load(h)
	require.Equal(t, int32(2), h.RefCount(loaded))
	h.Release(loaded)

	v.Store(h, object.FromNumber(1))
	require.Equal(t, int32(0), h.RefCount(s))
	require.Equal(t, 1.0, v.Load(h).Number())
}

func TestBuildLayout(t *testing.T) {
	h := object.NewHeap()
	typ := &UserDefinedType{
		Path: names.MustParsePath("Geo.Point"),
		Fields: []Field{
			{Name: names.Intern("x"), Type: object.NumberKind, Default: Constant{Kind: object.NumberKind, Number: 3}},
			{Name: names.Intern("label"), Type: object.StringKind, Default: Constant{Kind: object.StringKind, String: "p"}},
		},
	}
	l := typ.BuildLayout(7, h)
	require.Equal(t, uint32(7), l.ID)
	require.Equal(t, "Geo.Point", l.Name)
	require.Equal(t, 1, typ.FieldIndex(names.Intern("label")))
	require.Equal(t, 3.0, l.Defaults[0].Number())
	require.Equal(t, "p", h.String(l.Defaults[1]).Value)
}
