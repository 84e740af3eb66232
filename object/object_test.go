package object

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/names"
)

func TestScalars(t *testing.T) {
	require.Equal(t, UndefinedKind, Undefined.Kind())
	require.Equal(t, 2.5, FromNumber(2.5).Number())
	require.True(t, FromBool(true).Bool())
	require.False(t, FromBool(false).Bool())
	require.Equal(t, BooleanKind, False.Kind())
	require.False(t, FromNumber(1).IsHeap())
	require.True(t, FromNumber(3).Same(FromNumber(3)))
}

func TestNumericEquality(t *testing.T) {
	require.True(t, NumbersEqual(0.1+0.2, 0.3))
	require.True(t, NumbersEqual(1, 1.000001))
	require.False(t, NumbersEqual(1, 1.0001))

	h := NewHeap()
	require.True(t, h.Equal(FromNumber(0.1+0.2), FromNumber(0.3)))
	require.False(t, h.Equal(FromNumber(0), False))
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{
		5:    "5",
		-2.5: "-2.5",
		0.1:  "0.1",
		1e21: "1e+21",
	}
	for in, expected := range tests {
		require.Equal(t, expected, FormatNumber(in))
	}
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("number")
	require.True(t, ok)
	require.Equal(t, NumberKind, k)
	_, ok = ParseKind("integer")
	require.False(t, ok)
}

func TestStrings(t *testing.T) {
	h := NewHeap()
	a := h.NewString("abc")
	b := h.NewString("abc")
	require.Equal(t, StringKind, a.Kind())
	require.False(t, a.Same(b))
	require.True(t, h.Equal(a, b))
	require.Equal(t, "abc", h.String(a).Value)
	cmp, ok := h.Compare(a, h.NewString("abd"))
	require.True(t, ok)
	require.Equal(t, -1, cmp)
	require.True(t, h.Truthy(a))
	require.False(t, h.Truthy(h.NewString("")))
}

func TestReuseOnlyAfterSweep(t *testing.T) {
	h := NewHeap()
	first := h.NewString("first")
	require.Equal(t, int32(1), h.RefCount(first))

	h.Release(first)
	require.Equal(t, int32(0), h.RefCount(first))

	// Not reclaimed yet: a new allocation grows the slab.
	second := h.NewString("second")
	require.NotEqual(t, first.Handle().Index, second.Handle().Index)
	require.Equal(t, "first", h.String(first).Value)
	require.Equal(t, 2, h.Strings.Len())

	stats := h.Sweep()
	require.Equal(t, 1, stats.Strings)
	require.Nil(t, h.String(first), "stale handle must not resolve")

	// After the sweep the freed cell is reused before the slab grows.
	third := h.NewString("third")
	require.Equal(t, first.Handle().Index, third.Handle().Index)
	require.NotEqual(t, first.Handle().Gen, third.Handle().Gen)
	require.Equal(t, 2, h.Strings.Len())
	require.Equal(t, "third", h.String(third).Value)
}

func TestArrayReleasesItemsOnSweep(t *testing.T) {
	h := NewHeap()
	s := h.NewString("item")
	arr := h.NewArray([]Value{s, FromNumber(1)})
	require.Equal(t, 2, h.Array(arr).Len())

	h.Release(arr)
	stats := h.Sweep()
	require.Equal(t, 1, stats.Arrays)
	// The string lost its only owner during the same sweep.
	require.Equal(t, 1, stats.Strings)
	require.Equal(t, 0, h.Strings.Live())
}

func TestArrayAccess(t *testing.T) {
	h := NewHeap()
	arrValue := h.NewArray(nil)
	arr := h.Array(arrValue)
	require.Equal(t, 1, arr.Push(FromNumber(1)))
	require.Equal(t, 2, arr.Push(h.NewString("x")))

	v, ok := h.Load(arr, 1)
	require.True(t, ok)
	require.Equal(t, int32(2), h.RefCount(v))
	h.Release(v)

	_, ok = h.Load(arr, 2)
	require.False(t, ok)

	require.True(t, h.Store(arr, 0, FromNumber(9)))
	require.False(t, h.Store(arr, 5, FromNumber(9)))
	require.Equal(t, "[9, x]", h.Format(arrValue))

	last, ok := arr.Pop()
	require.True(t, ok)
	require.Equal(t, StringKind, last.Kind())
	h.Release(last)
	require.Equal(t, 1, arr.Len())
}

func TestUserObjects(t *testing.T) {
	h := NewHeap()
	layout := &Layout{
		Name:     "Point",
		Fields:   []names.Name{names.Intern("x"), names.Intern("y")},
		Defaults: []Value{FromNumber(0), FromNumber(0)},
	}
	p := h.NewObject(layout)
	obj := h.Object(p)
	require.NotNil(t, obj)
	idx := layout.FieldIndex(names.Intern("y"))
	require.Equal(t, 1, idx)
	require.True(t, h.StoreField(obj, idx, FromNumber(4)))
	v, ok := h.LoadField(obj, idx)
	require.True(t, ok)
	require.Equal(t, 4.0, v.Number())
	require.Equal(t, -1, layout.FieldIndex(names.Intern("z")))
	require.Equal(t, "Point{x: 0, y: 4}", h.Format(p))

	ext := h.NewExternal("host handle")
	require.Equal(t, ExternalKind, ext.Kind())
	require.Equal(t, "host handle", h.Object(ext).Host)
}

func TestSweeperLifecycle(t *testing.T) {
	h := NewHeap()
	s := NewSweeper(h, 10*time.Millisecond, zerolog.Nop())
	s.Start()
	s.Start()

	v := h.NewString("garbage")
	h.Release(v)
	require.Eventually(t, func() bool {
		return h.String(v) == nil
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
	require.GreaterOrEqual(t, s.SweepCount(), uint64(1))

	report := s.SweepNow()
	require.Equal(t, 0, report.Total())
	require.Same(t, report, s.LastReport())
}
