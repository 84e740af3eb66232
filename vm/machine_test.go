package vm

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/object"
)

func newMachine(t *testing.T) (*Machine, *syncBuffer, *syncBuffer) {
	t.Helper()
	log, out := &syncBuffer{}, &syncBuffer{}
	m, err := NewMachine(WithSinks(testSinks(log, out)), WithThreads(1, 2), WithGrammar("", ""))
	require.Nil(t, err)
	t.Cleanup(m.Close)
	return m, log, out
}

func callNamed(t *testing.T, m *Machine, name string, args ...object.Value) object.Value {
	t.Helper()
	h, ok := m.FunctionHandle(name)
	require.True(t, ok, name)
	i := m.CallFunction(h, args...)
	require.GreaterOrEqual(t, i, 0)
	return m.GetReturnValue(i)
}

func TestMachineCall(t *testing.T) {
	m, _, _ := newMachine(t)
	job := m.CompileSource("add.em", `function add(a, b) { return a + b; }`)
	require.True(t, job.Wait())
	require.NotNil(t, job.Unit())
	require.Equal(t, num(5), callNamed(t, m, "add", num(2), num(3)))
}

func TestMachineInitValue(t *testing.T) {
	m, log, _ := newMachine(t)
	job := m.CompileSource("init.em", `var x = 2; var y = x + 3; return y;`)
	require.Nil(t, job.Err())
	require.Equal(t, num(5), job.Value())
	require.Contains(t, log.String(), "unit loaded")
}

func TestMachinePoll(t *testing.T) {
	m, _, _ := newMachine(t)
	require.True(t, m.CompileSource("p.em", `function seven() { return 7; }`).Wait())
	h, ok := m.FunctionHandle("seven")
	require.True(t, ok)
	i := m.CallFunction(h)

	var v object.Value
	require.Eventually(t, func() bool {
		var done bool
		v, done = m.Poll(i)
		return done
	}, time.Second, time.Millisecond)
	require.Equal(t, num(7), v)

	// A promise is read once.
	_, done := m.Poll(i)
	require.False(t, done)
}

func TestMachineReadPromiseTwice(t *testing.T) {
	m, _, _ := newMachine(t)
	require.True(t, m.CompileSource("id.em", `function id(x) { return x; }`).Wait())
	h, ok := m.FunctionHandle("id")
	require.True(t, ok)

	first := m.CallFunction(h, num(1))
	require.Equal(t, num(1), m.GetReturnValue(first))

	// The second call reuses the freed slot under a new id.
	second := m.CallFunction(h, num(2))
	require.NotEqual(t, first, second)

	done := make(chan object.Value, 1)
	go func() { done <- m.GetReturnValue(first) }()
	select {
	case v := <-done:
		require.Equal(t, object.Undefined, v)
	case <-time.After(time.Second):
		t.Fatal("reading a consumed promise blocked")
	}
	_, resolved := m.Poll(first)
	require.False(t, resolved)
	require.Equal(t, num(2), m.GetReturnValue(second))
}

func TestPromiseTableIDs(t *testing.T) {
	var table promiseTable
	a := table.alloc()
	require.NotNil(t, table.get(a))
	require.True(t, table.resolve(a, num(3)))
	require.Equal(t, num(3), table.take(a, table.get(a)))

	b := table.alloc()
	require.Equal(t, a&slotMask, b&slotMask)
	require.Nil(t, table.get(a))
	require.False(t, table.resolve(a, num(4)))
	require.NotNil(t, table.get(b))
	require.Nil(t, table.get(-1))
	require.Equal(t, 1, table.pending())
}

func TestMachineManyCalls(t *testing.T) {
	m, _, _ := newMachine(t)
	require.True(t, m.CompileSource("sq.em", `function square(n) { return n * n; }`).Wait())
	h, _ := m.FunctionHandle("square")
	promises := make([]int, 50)
	for i := range promises {
		promises[i] = m.CallFunction(h, num(float64(i)))
	}
	for i, p := range promises {
		require.Equal(t, num(float64(i*i)), m.GetReturnValue(p))
	}
}

func TestMachineHotReload(t *testing.T) {
	m, log, _ := newMachine(t)
	require.True(t, m.CompileSource("lib.em", `var state = 1; function version() { return 1; }`).Wait())
	first, ok := m.UnitID("lib.em")
	require.True(t, ok)
	require.Equal(t, num(1), callNamed(t, m, "version"))

	require.True(t, m.CompileSource("lib.em", `var state = 2; function version() { return state * 2; }`).Wait())
	second, ok := m.UnitID("lib.em")
	require.True(t, ok)
	require.NotEqual(t, first, second)
	require.Equal(t, num(4), callNamed(t, m, "version"))
	require.Contains(t, log.String(), "unit reloaded")
}

func TestMachineConflicts(t *testing.T) {
	m, _, _ := newMachine(t)
	require.True(t, m.CompileSource("a.em", `var shared = 1;`).Wait())
	job := m.CompileSource("b.em", `var shared = 2;`)
	require.False(t, job.Wait())
	require.ErrorContains(t, job.Err(), "shared")
	_, ok := m.UnitID("b.em")
	require.False(t, ok)
}

func TestMachineRemoveUnit(t *testing.T) {
	m, _, _ := newMachine(t)
	require.True(t, m.CompileSource("gone.em", `function gone() { return 1; }`).Wait())
	id, ok := m.UnitID("gone.em")
	require.True(t, ok)
	require.True(t, m.RemoveCompileUnit(id))
	require.False(t, m.RemoveCompileUnit(id))
	_, ok = m.FunctionHandle("gone")
	require.False(t, ok)
}

func TestMachineSyntaxError(t *testing.T) {
	m, _, _ := newMachine(t)
	job := m.CompileSource("bad.em", `function (`)
	require.False(t, job.Wait())
	require.Error(t, job.Err())
	require.Nil(t, job.Unit())
	require.Equal(t, object.Undefined, job.Value())
}

func TestMachineCompileFile(t *testing.T) {
	m, _, _ := newMachine(t)
	path := filepath.Join(t.TempDir(), "file.em")
	require.Nil(t, os.WriteFile(path, []byte(`return 40 + 2;`), 0o644))
	job := m.Compile(path)
	require.Equal(t, path, job.Name())
	require.Equal(t, num(42), job.Value())

	missing := m.Compile(filepath.Join(t.TempDir(), "missing.em"))
	require.False(t, missing.Wait())
}

func TestMachinePrint(t *testing.T) {
	m, _, out := newMachine(t)
	require.True(t, m.CompileSource("hello.em", `function hello(name) { println("hello " + name); }`).Wait())
	h, _ := m.FunctionHandle("hello")
	m.GetReturnValue(m.CallFunction(h, m.Heap().NewString("world")))
	require.Contains(t, out.String(), "hello world")
}

func TestMachineClose(t *testing.T) {
	m, _, _ := newMachine(t)
	require.True(t, m.CompileSource("f.em", `function f() { return 1; }`).Wait())
	h, _ := m.FunctionHandle("f")
	m.Close()
	m.Close()

	require.ErrorIs(t, m.CompileSource("late.em", `return 1;`).Err(), ErrClosed)
	require.Equal(t, -1, m.CallFunction(h))
	require.Equal(t, object.Undefined, m.GetReturnValue(-1))
}

func TestMachineExportAndLoad(t *testing.T) {
	src, _, _ := newMachine(t)
	require.True(t, src.CompileSource("geo.em", `
namespace Geo {
	object Point { var x = 3; var y = 4; }
	public function norm(p) { return Math.Sqrt(p.x * p.x + p.y * p.y); }
}
var origin = new Geo.Point;
function main() { return Geo.norm(origin); }
return 9;`).Wait())
	require.Equal(t, num(5), callNamed(t, src, "main"))

	var buf bytes.Buffer
	require.Nil(t, src.Export(&buf))

	dst, _, _ := newMachine(t)
	v, err := dst.LoadLibrary("geo.eml", &buf)
	require.Nil(t, err)
	require.Equal(t, num(9), v)
	require.Equal(t, num(5), callNamed(t, dst, "main"))
	_, ok := dst.UnitID("geo.eml")
	require.True(t, ok)
}

func TestMachineExportUnits(t *testing.T) {
	m, _, _ := newMachine(t)
	require.True(t, m.CompileSource("one.em", `function one() { return 1; }`).Wait())
	require.True(t, m.CompileSource("two.em", `function two() { return 2; }`).Wait())

	dir := filepath.Join(t.TempDir(), "out")
	require.Nil(t, m.ExportUnits(dir))
	for _, name := range []string{"one.eml", "two.eml"} {
		f, err := os.Open(filepath.Join(dir, name))
		require.Nil(t, err)
		other, _, _ := newMachine(t)
		_, err = other.LoadLibrary(name, f)
		f.Close()
		require.Nil(t, err)
	}
}

func TestMachineObserverHalts(t *testing.T) {
	log, out := &syncBuffer{}, &syncBuffer{}
	observer := &haltingObserver{haltAfter: 1 << 30}
	m, err := NewMachine(WithSinks(testSinks(log, out)), WithThreads(1, 1), WithObserver(observer), WithGrammar("", ""))
	require.Nil(t, err)
	defer m.Close()
	require.True(t, m.CompileSource("obs.em", `function f() { return 1; }`).Wait())

	observer.haltAfter = observer.steps + 1
	h, _ := m.FunctionHandle("f")
	require.Equal(t, object.Undefined, m.GetReturnValue(m.CallFunction(h)))
	require.Contains(t, log.String(), "execution halted by observer")
}
