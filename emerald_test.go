package emerald

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/internal/logging"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newEnv(t *testing.T) (*Environment, *lockedBuffer) {
	t.Helper()
	log := &lockedBuffer{}
	env, err := New(
		WithLogWriter(log),
		WithLevels(logging.Levels{Compile: logging.Warning, Runtime: logging.Debug, Print: logging.Info}),
		WithThreads(1, 2),
	)
	require.Nil(t, err)
	t.Cleanup(env.Close)
	return env, log
}

func call(t *testing.T, env *Environment, name string, args ...Value) Value {
	t.Helper()
	h, ok := env.Function(name)
	require.True(t, ok, name)
	return env.Result(env.Call(h, args...))
}

func TestValues(t *testing.T) {
	require.Equal(t, UndefinedKind, Undefined.Kind())
	require.True(t, Value{}.IsUndefined())
	require.Equal(t, 2.5, Number(2.5).AsNumber())
	require.True(t, Bool(true).AsBool())
	require.Equal(t, "hi", String("hi").AsString())
	require.Equal(t, "hi", String("hi").String())
	require.Equal(t, "3", Number(3).String())
	require.Equal(t, "undefined", Undefined.String())
	type handle struct{ id int }
	require.Equal(t, &handle{7}, External(&handle{7}).AsExternal())
	require.Equal(t, "external", ExternalKind.String())
}

func TestCallScriptFunction(t *testing.T) {
	env, _ := newEnv(t)
	require.True(t, env.CompileString("main.em", `function add(a, b) { return a + b; }`).Wait())
	require.Equal(t, Number(5), call(t, env, "add", Number(2), Number(3)))
	require.Equal(t, String("ab"), call(t, env, "add", String("a"), String("b")))
}

func TestCompileValue(t *testing.T) {
	env, _ := newEnv(t)
	result := env.CompileString("init.em", `var x = 2; var y = x + 3; return y;`)
	require.Equal(t, "init.em", result.Name())
	require.Nil(t, result.Err())
	require.Equal(t, Number(5), result.Value())
}

func TestArrayScenario(t *testing.T) {
	env, _ := newEnv(t)
	require.True(t, env.CompileString("arr.em", `
var arr = [];
Array.Push(arr, 1);
Array.Push(arr, 2);
return Array.Size(arr);`).Wait())
	// Top-level code ran once; its globals persist.
	result := env.CompileString("size.em", `function size() { return Array.Size(arr); }`)
	require.True(t, result.Wait())
	require.Equal(t, Number(2), call(t, env, "size"))
}

func TestOutOfBoundsIsLogged(t *testing.T) {
	env, log := newEnv(t)
	require.True(t, env.CompileString("oob.em", `function get(i) { var a = [1, 2, 3]; return a[i]; }`).Wait())
	require.Equal(t, Number(2), call(t, env, "get", Number(1)))
	require.Equal(t, Undefined, call(t, env, "get", Number(10)))
	require.Contains(t, log.String(), "index 10 out of bounds for array of length 3")

	// Other calls are unaffected.
	require.Equal(t, Number(3), call(t, env, "get", Number(2)))
}

func TestRegisterFunction(t *testing.T) {
	env, log := newEnv(t)
	var mu sync.Mutex
	var seen []string
	require.Nil(t, env.RegisterFunction("Host.Record", []Kind{StringKind}, UndefinedKind, func(args []Value) (Value, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, args[0].AsString())
		return Undefined, nil
	}))
	require.Nil(t, env.RegisterFunction("Host.Twice", []Kind{NumberKind}, NumberKind, func(args []Value) (Value, error) {
		return Number(args[0].AsNumber() * 2), nil
	}))
	require.Nil(t, env.RegisterFunction("Host.Fail", nil, UndefinedKind, func([]Value) (Value, error) {
		return Undefined, errors.New("boom")
	}))

	require.True(t, env.CompileString("host.em", `
function record(x) { Host.Record(x); }
function main() {
	Host.Record("one");
	record(2);
	return Host.Twice(21);
}
function failing() { Host.Fail(); return 1; }`).Wait())

	require.Equal(t, Number(42), call(t, env, "main"))
	mu.Lock()
	require.Equal(t, []string{"one"}, seen)
	mu.Unlock()
	require.Contains(t, log.String(), "argument type mismatch")

	require.Equal(t, Undefined, call(t, env, "failing"))
	require.Contains(t, log.String(), "Host.Fail: boom")

	// Host functions are callable from the host as well.
	require.Equal(t, Number(8), call(t, env, "Host.Twice", Number(4)))

	require.Error(t, env.RegisterFunction("Host.Nil", nil, UndefinedKind, nil))
	require.Error(t, env.RegisterFunction("", nil, UndefinedKind, func([]Value) (Value, error) { return Undefined, nil }))
}

func TestExternalValues(t *testing.T) {
	env, _ := newEnv(t)
	type account struct{ balance float64 }
	acct := &account{balance: 10}
	require.Nil(t, env.RegisterFunction("Bank.Balance", []Kind{ExternalKind}, NumberKind, func(args []Value) (Value, error) {
		return Number(args[0].AsExternal().(*account).balance), nil
	}))
	require.True(t, env.CompileString("bank.em", `
function balance(a) { return Bank.Balance(a); }
function echo(a) { return a; }`).Wait())

	require.Equal(t, Number(10), call(t, env, "balance", External(acct)))
	require.Same(t, acct, call(t, env, "echo", External(acct)).AsExternal())
}

func TestPoll(t *testing.T) {
	env, _ := newEnv(t)
	require.True(t, env.CompileString("poll.em", `function one() { return 1; }`).Wait())
	h, ok := env.Function("one")
	require.True(t, ok)
	require.Equal(t, "one", h.String())
	i := env.Call(h)
	var v Value
	require.Eventually(t, func() bool {
		var done bool
		v, done = env.Poll(i)
		return done
	}, time.Second, time.Millisecond)
	require.Equal(t, Number(1), v)
}

func TestUnknownFunction(t *testing.T) {
	env, _ := newEnv(t)
	_, ok := env.Function("nope")
	require.False(t, ok)
	_, ok = env.Function("a..b")
	require.False(t, ok)
}

func TestCompileFailure(t *testing.T) {
	env, _ := newEnv(t)
	result := env.CompileString("bad.em", `var = ;`)
	require.False(t, result.Wait())
	require.Error(t, result.Err())
	require.Equal(t, Undefined, result.Value())
}

func TestCompileFile(t *testing.T) {
	env, _ := newEnv(t)
	path := filepath.Join(t.TempDir(), "script.em")
	require.Nil(t, os.WriteFile(path, []byte(`function answer() { return 42; }`), 0o644))
	require.True(t, env.Compile(path).Wait())
	require.Equal(t, Number(42), call(t, env, "answer"))
}

func TestPrintGoesToLog(t *testing.T) {
	env, log := newEnv(t)
	require.True(t, env.CompileString("print.em", `function greet() { println("hello from a script"); }`).Wait())
	call(t, env, "greet")
	require.Contains(t, log.String(), "hello from a script")
}

func TestExportAndLoadLibrary(t *testing.T) {
	env, _ := newEnv(t)
	require.True(t, env.CompileString("lib.em", `
namespace Shapes {
	object Rect { var w = 2; var h = 3; }
	public function area(r) { return r.w * r.h; }
}
var sample = new Shapes.Rect;
function area() { return Shapes.area(sample); }
return "ready";`).Wait())

	dir := t.TempDir()
	path := filepath.Join(dir, "all.eml")
	require.Nil(t, env.Export(path))
	require.Nil(t, env.ExportUnits(filepath.Join(dir, "units")))
	_, err := os.Stat(filepath.Join(dir, "units", "lib.eml"))
	require.Nil(t, err)

	other, _ := newEnv(t)
	v, err := other.LoadLibrary(path)
	require.Nil(t, err)
	require.Equal(t, String("ready"), v)
	require.Equal(t, Number(6), call(t, other, "area"))

	_, err = other.LoadLibrary(filepath.Join(dir, "missing.eml"))
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	env, err := New(WithLogWriter(nil))
	require.Nil(t, err)
	require.True(t, env.CompileString("f.em", `function f() { return 1; }`).Wait())
	h, _ := env.Function("f")
	env.Close()
	require.Equal(t, -1, env.Call(h))
	require.Equal(t, Undefined, env.Result(-1))
	require.False(t, env.CompileString("late.em", `return 1;`).Wait())
}

func TestConsoleLogging(t *testing.T) {
	var buf lockedBuffer
	env, err := New(WithConsole(&buf, false), WithLevels(logging.Levels{Compile: logging.None, Runtime: logging.Warning, Print: logging.None}))
	require.Nil(t, err)
	defer env.Close()
	require.True(t, env.CompileString("warn.em", `function f() { return missing(); }`).Wait())
	require.Equal(t, Undefined, call(t, env, "f"))
	out := buf.String()
	require.Contains(t, out, "WRN")
	require.False(t, strings.HasPrefix(out, "{"))
}
