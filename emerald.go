// Package emerald embeds the Emerald scripting language in a Go program.
//
// An Environment compiles scripts on a pool of parser workers and runs
// calls on a pool of runners. Calls are asynchronous: Call queues a call and
// returns a promise index, and Result or Poll collect its value.
//
//	env, err := emerald.New()
//	if err != nil {
//		return err
//	}
//	defer env.Close()
//	if !env.CompileString("main.em", `function add(a, b) { return a + b; }`).Wait() {
//		return errors.New("compile failed")
//	}
//	add, _ := env.Function("add")
//	fmt.Println(env.Result(env.Call(add, emerald.Number(2), emerald.Number(3))))
//
// Script failures never surface as Go errors. They are logged and the
// affected call returns Undefined.
package emerald

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/emerald-lang/emerald/config"
	"github.com/emerald-lang/emerald/internal/logging"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/symbols"
	"github.com/emerald-lang/emerald/vm"
)

// HostFunc implements a script function in Go. Arguments have the kinds
// the function was registered with; an error aborts the calling script.
type HostFunc func(args []Value) (Value, error)

// Handle names a script function for Call.
type Handle struct {
	h vm.Handle
}

func (h Handle) String() string { return h.h.String() }

// Environment is one independent instance of the language: a symbol table,
// a heap and the workers that use them.
type Environment struct {
	machine *vm.Machine
}

// New starts an environment.
func New(opts ...Option) (*Environment, error) {
	o := &options{cfg: config.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.levels != nil {
		o.cfg.Levels = *o.levels
	}
	var sinks logging.Sinks
	switch {
	case !o.hasSink:
		sinks = logging.NewConsole(os.Stderr, o.cfg.Levels, isatty.IsTerminal(os.Stderr.Fd()))
	case o.console:
		sinks = logging.NewConsole(o.writer, o.cfg.Levels, o.color)
	default:
		sinks = logging.New(o.writer, o.cfg.Levels)
	}
	vmOpts := []vm.Option{vm.WithConfig(o.cfg), vm.WithSinks(sinks)}
	if o.observer != nil {
		vmOpts = append(vmOpts, vm.WithObserver(o.observer))
	}
	m, err := vm.NewMachine(vmOpts...)
	if err != nil {
		return nil, err
	}
	return &Environment{machine: m}, nil
}

// Machine returns the underlying machine.
func (e *Environment) Machine() *vm.Machine { return e.machine }

// Close stops the workers. Queued calls resolve to Undefined.
func (e *Environment) Close() { e.machine.Close() }

// RegisterFunction makes fn callable from scripts under a dotted name, such
// as "Host.Log". Registering the same name with another argument count adds
// an overload. An argument declared UndefinedKind accepts any value; any
// other mismatch is logged as a warning and the call returns Undefined
// without running fn.
func (e *Environment) RegisterFunction(name string, args []Kind, ret Kind, fn HostFunc) error {
	path, err := names.ParsePath(name)
	if err != nil {
		return err
	}
	if path.IsRoot() {
		return fmt.Errorf("host function needs a name")
	}
	if fn == nil {
		return fmt.Errorf("%s: nil host function", name)
	}
	types := make([]object.Kind, len(args))
	for i, k := range args {
		types[i] = k.object()
	}
	return e.machine.Table().DefineFunction(&symbols.Function{
		Path:       path,
		Namespace:  path.Parent(),
		ArgCount:   len(args),
		ArgTypes:   types,
		ReturnType: ret.object(),
		Public:     true,
		Kind:       symbols.HostKind,
		Native:     hostNative(path.String(), args, fn),
	})
}

func hostNative(name string, kinds []Kind, fn HostFunc) symbols.Native {
	return func(ctx symbols.CallContext, args []object.Value) (object.Value, error) {
		heap := ctx.Heap()
		in := make([]Value, len(args))
		for i, a := range args {
			if i < len(kinds) && kinds[i] != UndefinedKind && a.Kind() != kinds[i].object() {
				ctx.Logger().Warn().
					Str("function", name).
					Int("arg", i+1).
					Str("want", kinds[i].String()).
					Str("got", a.Kind().String()).
					Msg("argument type mismatch")
				return object.Undefined, nil
			}
			in[i] = fromObject(heap, a)
		}
		out, err := fn(in)
		if err != nil {
			return object.Undefined, err
		}
		return toObject(heap, out), nil
	}
}

// Function returns a handle for the function with the given qualified name.
func (e *Environment) Function(name string) (Handle, bool) {
	h, ok := e.machine.FunctionHandle(name)
	return Handle{h: h}, ok
}

// Call queues a call and returns its promise index, or -1 once the
// environment is closed.
func (e *Environment) Call(h Handle, args ...Value) int {
	heap := e.machine.Heap()
	values := make([]object.Value, len(args))
	for i, a := range args {
		values[i] = toObject(heap, a)
	}
	return e.machine.CallFunction(h.h, values...)
}

// Result blocks until promise i resolves and returns its value. Each
// promise can be read once; later reads return Undefined at once.
func (e *Environment) Result(i int) Value {
	return e.take(e.machine.GetReturnValue(i))
}

// Poll returns the value of promise i if the call has finished.
func (e *Environment) Poll(i int) (Value, bool) {
	v, ok := e.machine.Poll(i)
	if !ok {
		return Undefined, false
	}
	return e.take(v), true
}

// take converts an owned script value and releases it.
func (e *Environment) take(v object.Value) Value {
	heap := e.machine.Heap()
	out := fromObject(heap, v)
	heap.Release(v)
	return out
}
