package vm

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/builtins"
	"github.com/emerald-lang/emerald/compiler"
	"github.com/emerald-lang/emerald/internal/logging"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/parser"
	"github.com/emerald-lang/emerald/symbols"
)

// syncBuffer is written by runners on other goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var debugLevels = logging.Levels{Compile: logging.Debug, Runtime: logging.Debug, Print: logging.Info}

// testSinks sends diagnostics to log and print output to out.
func testSinks(log, out *syncBuffer) logging.Sinks {
	sinks := logging.New(log, debugLevels)
	sinks.Print = logging.New(out, debugLevels).Print
	return sinks
}

type harness struct {
	heap   *object.Heap
	table  *symbols.Table
	runner *Runner
	halt   atomic.Bool
	log    *syncBuffer
	out    *syncBuffer
}

func newHarness(t *testing.T, observer Observer) *harness {
	t.Helper()
	h := &harness{
		heap:  object.NewHeap(),
		table: symbols.NewTable(),
		log:   &syncBuffer{},
		out:   &syncBuffer{},
	}
	require.Nil(t, builtins.Register(h.table))
	h.runner = NewRunner(h.heap, h.table, testSinks(h.log, h.out), observer, &h.halt)
	return h
}

// load compiles src, registers it and returns the value of its top-level
// code.
func (h *harness) load(t *testing.T, src string) object.Value {
	t.Helper()
	root, err := parser.Parse(context.Background(), src, "test.em")
	require.Nil(t, err)
	unit, err := compiler.Compile(root, compiler.Config{
		Filename: "test.em",
		Source:   src,
		Globals:  h.table,
		Logger:   zerolog.Nop(),
	})
	require.Nil(t, err)
	for _, typ := range unit.Types() {
		typ.Layout = typ.BuildLayout(h.table.NextLayoutID(), h.heap)
	}
	require.Nil(t, h.table.Merge(unit))
	return h.runner.Run(unit.Init, nil)
}

func (h *harness) call(name string, args ...object.Value) object.Value {
	return h.runner.Execute(&CallObject{Path: names.MustParsePath(name), Args: args, Promise: -1})
}

func num(f float64) object.Value { return object.FromNumber(f) }

func TestFunctionResult(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `function main() { var x = 2; var y = x + 3; return y; }`)
	require.Equal(t, num(5), h.call("main"))
	require.Empty(t, h.log.String())
}

func TestTopLevelReturn(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, num(5), h.load(t, `var x = 2; var y = x + 3; return y;`))
}

func TestArrayBuiltins(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `
function main() {
	var arr = [];
	Array.Push(arr, 1);
	Array.Push(arr, 2);
	return Array.Size(arr);
}`)
	require.Equal(t, num(2), h.call("main"))
}

func TestNumberEquality(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, object.True, h.load(t, `return 0.1 + 0.2 == 0.3;`))

	h.load(t, `function eq(a, b, c) { return a + b == c; }`)
	require.Equal(t, object.True, h.call("eq", num(0.1), num(0.2), num(0.3)))
	require.Equal(t, object.False, h.call("eq", num(0.1), num(0.2), num(0.4)))
}

func TestLogicalOperatorsFoldLikeRuntime(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `
function folded() { return [1 && 0, 0 || 5, 2 && 3, 0 && 7, 4 || 9]; }
function computed(zero, one, two, four) { return [one && zero, zero || 5, two && 3, zero && 7, four || 9]; }
function mixed() { var a = 0; var b = a || 5; var c = 1 && 0; return b * 10 + c; }`)
	folded := h.call("folded")
	computed := h.call("computed", num(0), num(1), num(2), num(4))
	require.Equal(t, object.ArrayKind, folded.Kind())
	require.Equal(t, h.heap.Format(computed), h.heap.Format(folded))
	require.Equal(t, num(50), h.call("mixed"))
	require.NotContains(t, h.log.String(), "cannot add")
}

func TestOverloadSelection(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `
function f() { return 0; }
function f(a) { return a; }
function f(a, b) { return a + b; }
function main() { return f() + f(10) + f(1, 2); }`)
	require.Equal(t, num(13), h.call("main"))
	require.Equal(t, num(7), h.call("f", num(7)))

	require.Equal(t, object.Undefined, h.call("f", num(1), num(2), num(3)))
	require.Contains(t, h.log.String(), "no overload takes this many arguments")
}

func TestPrivateFunction(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `
namespace Lib {
	function secret() { return 42; }
	public function open() { return secret(); }
}
namespace App {
	function probe() {
		var hidden = Lib.secret();
		var shown = Lib.open();
		return [hidden, shown];
	}
}`)
	v := h.call("App.probe")
	arr := h.heap.Array(v)
	require.NotNil(t, arr)
	hidden, ok := h.heap.Load(arr, 0)
	require.True(t, ok)
	shown, ok := h.heap.Load(arr, 1)
	require.True(t, ok)
	require.Equal(t, object.Undefined, hidden)
	require.Equal(t, num(42), shown)
	require.Contains(t, h.log.String(), "function Lib.secret is private to namespace Lib")

	// Host calls are trusted.
	require.Equal(t, num(42), h.call("Lib.secret"))
}

func TestOutOfBounds(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `
function main() {
	var arr = [1, 2];
	var x = arr[5];
	println("after");
	return x;
}`)
	require.Equal(t, object.Undefined, h.call("main"))
	require.Contains(t, h.log.String(), "index 5 out of bounds for array of length 2")
	require.Contains(t, h.log.String(), `"level":"error"`)
	require.NotContains(t, h.out.String(), "after")
}

func TestStringConcatenation(t *testing.T) {
	h := newHarness(t, nil)
	v := h.load(t, `var n = 3; return "n=" + n;`)
	require.Equal(t, object.StringKind, v.Kind())
	require.Equal(t, "n=3", h.heap.Format(v))
}

func TestTypeErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `
function sub(a, b) { return a - b; }
function cmp(a, b) { return a < b; }`)
	require.Equal(t, object.Undefined, h.call("sub", num(1), object.True))
	require.Contains(t, h.log.String(), "operator - requires numbers, not number and bool")
	require.Equal(t, object.Undefined, h.call("cmp", num(1), object.True))
	require.Contains(t, h.log.String(), "cannot compare number and bool")
}

func TestUndefinedFunction(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `function main() { var x = missing(1); return 7; }`)
	require.Equal(t, num(7), h.call("main"))
	require.Contains(t, h.log.String(), "function missing is not defined for 1 arguments")
	require.Contains(t, h.log.String(), `"level":"warn"`)
}

func TestRecursion(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `
function fib(n) {
	if (n < 2) { return n; }
	return fib(n - 1) + fib(n - 2);
}`)
	require.Equal(t, num(55), h.call("fib", num(10)))
}

func TestStackLimit(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `function down(n) { return down(n + 1); }`)
	require.Equal(t, object.Undefined, h.call("down", num(0)))
	require.Contains(t, h.log.String(), "call stack exceeded 1024 frames")

	// The runner is usable after an aborted call.
	h.load(t, `function one() { return 1; }`)
	require.Equal(t, num(1), h.call("one"))
}

func TestObjectsAndGlobals(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `
object Point { var x = 1; var y = 2; }
var counter = 0;
function bump() { counter = counter + 1; return counter; }
function main() {
	var p = new Point;
	p.x = p.x + 4;
	return p.x + p.y;
}`)
	require.Equal(t, num(7), h.call("main"))
	require.Equal(t, num(1), h.call("bump"))
	require.Equal(t, num(2), h.call("bump"))
}

func TestPrintOutput(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `function main() { print("a"); println(" b"); print("c"); }`)
	require.Equal(t, object.Undefined, h.call("main"))
	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "a b", strings.TrimSpace(lines[0]))
	require.Equal(t, "c", strings.TrimSpace(lines[1]))
}

func TestHalt(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `function spin() { while (true) { } }`)
	h.halt.Store(true)
	require.Equal(t, object.Undefined, h.call("spin"))
	require.Contains(t, h.log.String(), "execution halted")
}

func TestTemporariesAreReleased(t *testing.T) {
	h := newHarness(t, nil)
	h.load(t, `function churn() { var a = [1, [2, 3], "s"]; return Array.Size(a); }`)
	h.heap.Sweep()
	require.Equal(t, num(3), h.call("churn"))
	// Nested cells are freed one level per sweep.
	freed := 0
	for i := 0; i < 4; i++ {
		freed += h.heap.Sweep().Total()
	}
	require.Equal(t, 3, freed)
}
