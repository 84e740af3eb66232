// Package vm executes compiled units.
//
// A Runner interprets script functions on one goroutine. A Machine owns the
// global symbol table and the heap, compiles units on a pool of parser
// workers and dispatches queued calls to a pool of runners.
//
// # Registers
//
// Each runner has one register stack. A frame addresses it relative to its
// base, and a callee's frame starts at the caller's first argument register,
// so arguments are passed in place. Registers own a reference to the value
// they hold.
//
// # Failures
//
// Runtime problems never escape a runner. Warnings, such as a call to an
// unknown or private function, are logged and leave undefined in the target
// register; execution continues. Errors, such as an index out of bounds or
// an operand of the wrong type, are logged and abort the call, whose result
// becomes undefined.
package vm

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/emerald-lang/emerald/errz"
	"github.com/emerald-lang/emerald/internal/logging"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/op"
	"github.com/emerald-lang/emerald/symbols"
)

const (
	// MaxFrameDepth bounds the call stack of one runner.
	MaxFrameDepth = 1024

	// haltCheckInterval is the number of instructions between checks of the
	// halt flag.
	haltCheckInterval = 1000
)

// CallObject is one call waiting for a runner. Exactly one of Function and
// Path is needed; Path is resolved when the call starts.
type CallObject struct {
	Path     names.Path
	Function *symbols.Function
	// Args are owned by the call.
	Args []object.Value
	// Promise is the slot receiving the result, or -1.
	Promise int
}

type frame struct {
	fn       *symbols.ScriptFunction
	ip       int
	base     int
	callSite int // index of the call instruction in the caller, -1 if none
}

// Runner executes calls one at a time. It is not safe for concurrent use.
type Runner struct {
	heap  *object.Heap
	table *symbols.Table
	log   zerolog.Logger
	print zerolog.Logger
	out   strings.Builder
	obs   *observerState
	halt  *atomic.Bool

	regs   []object.Value
	frames []frame
}

// NewRunner returns a runner over heap and table. halt may be nil.
func NewRunner(heap *object.Heap, table *symbols.Table, sinks logging.Sinks, observer Observer, halt *atomic.Bool) *Runner {
	if halt == nil {
		halt = &atomic.Bool{}
	}
	return &Runner{
		heap:   heap,
		table:  table,
		log:    sinks.Runtime,
		print:  sinks.Print,
		obs:    newObserverState(observer),
		halt:   halt,
		regs:   make([]object.Value, 0, 64),
		frames: make([]frame, 0, 16),
	}
}

// Heap implements symbols.CallContext.
func (r *Runner) Heap() *object.Heap { return r.heap }

// Logger implements symbols.CallContext.
func (r *Runner) Logger() *zerolog.Logger { return &r.log }

// Print implements symbols.CallContext. Output is emitted a line at a time.
func (r *Runner) Print(msg string) {
	r.out.WriteString(msg)
	s := r.out.String()
	i := strings.LastIndexByte(s, '\n')
	if i < 0 {
		return
	}
	for _, line := range strings.Split(s[:i], "\n") {
		r.print.Info().Msg(line)
	}
	r.out.Reset()
	r.out.WriteString(s[i+1:])
}

func (r *Runner) flushPrint() {
	if r.out.Len() > 0 {
		r.print.Info().Msg(r.out.String())
		r.out.Reset()
	}
}

// Execute runs call to completion and returns its result, which the caller
// owns. The call's arguments are consumed.
func (r *Runner) Execute(call *CallObject) object.Value {
	defer r.flushPrint()
	fn := call.Function
	if fn == nil {
		fn = r.resolveHostCall(call.Path, len(call.Args))
		if fn == nil {
			r.releaseAll(call.Args)
			return object.Undefined
		}
	}
	if r.obs != nil && !r.obs.call(CallEvent{Function: fn.Path.String(), ArgCount: len(call.Args)}) {
		r.log.Warn().Str("function", fn.Path.String()).Msg("execution halted by observer")
		r.releaseAll(call.Args)
		return object.Undefined
	}
	if fn.Kind != symbols.ScriptKind {
		v, err := r.native(fn, call.Args)
		r.releaseAll(call.Args)
		if err != nil {
			r.report(err)
			return object.Undefined
		}
		return v
	}
	return r.Run(fn.Script, call.Args)
}

// resolveHostCall finds the overload a host call names. Host calls are
// trusted and skip the visibility check.
func (r *Runner) resolveHostCall(path names.Path, argc int) *symbols.Function {
	sym := r.table.Lookup(path)
	if sym == nil || sym.Kind != symbols.KindFunction {
		r.log.Warn().Str("function", path.String()).Msg("call to an unknown function")
		return nil
	}
	fn := sym.Functions.GetFirstFitting(argc)
	if fn == nil {
		r.log.Warn().Str("function", path.String()).Int("args", argc).Msg("no overload takes this many arguments")
	}
	return fn
}

// Run executes a script function with args, which it consumes, and returns
// the result.
func (r *Runner) Run(fn *symbols.ScriptFunction, args []object.Value) object.Value {
	if fn == nil {
		r.releaseAll(args)
		return object.Undefined
	}
	if len(args) > fn.RegisterCount {
		r.releaseAll(args[fn.RegisterCount:])
		args = args[:fn.RegisterCount]
	}
	r.ensure(fn.RegisterCount)
	copy(r.regs, args)
	r.frames = append(r.frames[:0], frame{fn: fn, callSite: -1})
	result, err := r.loop()
	if err != nil {
		r.report(err)
		r.unwind()
		return object.Undefined
	}
	return result
}

func (r *Runner) releaseAll(values []object.Value) {
	for _, v := range values {
		r.heap.Release(v)
	}
}

// ensure grows the register stack to n registers.
func (r *Runner) ensure(n int) {
	if n <= len(r.regs) {
		return
	}
	if n <= cap(r.regs) {
		r.regs = r.regs[:n]
		return
	}
	grown := make([]object.Value, n, 2*n)
	copy(grown, r.regs)
	r.regs = grown
}

func (r *Runner) set(i int, v object.Value) {
	old := r.regs[i]
	r.regs[i] = v
	r.heap.Release(old)
}

// clear releases registers [from, to).
func (r *Runner) clear(from, to int) {
	if to > len(r.regs) {
		to = len(r.regs)
	}
	for i := from; i < to; i++ {
		r.set(i, object.Undefined)
	}
}

// unwind drops every frame of an aborted call.
func (r *Runner) unwind() {
	r.clear(0, len(r.regs))
	r.frames = r.frames[:0]
}

func (r *Runner) report(err error) {
	e, ok := err.(*errz.Error)
	if !ok {
		r.log.Error().Err(err).Msg("runtime error")
		return
	}
	r.log.Error().
		Str("function", e.Function).
		Str("file", e.Location.Filename).
		Int("line", e.Location.Line).
		Msg(e.Message)
}

func (r *Runner) fail(f *frame, ip int, format string, args ...any) error {
	loc := errz.SourceLocation{Filename: f.fn.File, Line: f.fn.Line(ip)}
	return errz.RuntimeErrorf(f.fn.Name, loc, format, args...)
}

func (r *Runner) warn(f *frame, ip int, format string, args ...any) {
	r.log.Warn().
		Str("function", f.fn.Name).
		Str("file", f.fn.File).
		Int("line", f.fn.Line(ip)).
		Msgf(format, args...)
}

func (r *Runner) top() *frame {
	return &r.frames[len(r.frames)-1]
}

// loop runs until the outermost frame returns.
func (r *Runner) loop() (object.Value, error) {
	f := r.top()
	steps := 0
	for {
		code := f.fn.Code
		if f.ip >= len(code) {
			if v, done := r.ret(object.Undefined); done {
				return v, nil
			}
			f = r.top()
			continue
		}
		ip := f.ip
		ins := code[ip]
		f.ip++

		if steps++; steps >= haltCheckInterval {
			steps = 0
			if r.halt.Load() {
				return object.Undefined, r.fail(f, ip, "execution halted")
			}
		}
		if r.obs != nil {
			event := StepEvent{
				Function:   f.fn.Name,
				IP:         ip,
				Opcode:     ins.Code(),
				OpcodeName: op.GetInfo(ins.Code()).Name,
				Line:       f.fn.Line(ip),
				FrameDepth: len(r.frames),
			}
			if !r.obs.step(event) {
				return object.Undefined, r.fail(f, ip, "execution halted by observer")
			}
		}

		base := f.base
		dst := base + int(ins.Target())
		switch ins.Code() {
		case op.Noop:
		case op.LoadNumber:
			r.set(dst, object.FromNumber(f.fn.Numbers[ins.Param()]))
		case op.LoadString:
			r.set(dst, r.heap.NewString(f.fn.Strings[ins.Param()]))
		case op.LoadBool:
			r.set(dst, object.FromBool(ins.Param() != 0))
		case op.LoadUndefined:
			r.set(dst, object.Undefined)
		case op.Move:
			v := r.regs[base+int(ins.In1())]
			r.heap.Retain(v)
			r.set(dst, v)
		case op.LoadSymbol:
			ref := &f.fn.Globals[ins.Param()]
			sym := r.table.ResolveGlobal(ref)
			if sym == nil {
				r.warn(f, ip, "undefined global %s", ref.Candidates[0])
				r.set(dst, object.Undefined)
				continue
			}
			r.set(dst, sym.Variable.Load(r.heap))
		case op.StoreSymbol:
			ref := &f.fn.Globals[ins.Param()]
			sym := r.table.ResolveGlobal(ref)
			if sym == nil {
				r.warn(f, ip, "undefined global %s", ref.Candidates[0])
				continue
			}
			v := r.regs[dst]
			r.heap.Retain(v)
			sym.Variable.Store(r.heap, v)
		case op.LoadFunction:
			ref := &f.fn.Functions[r.data(f)]
			sym, _ := r.table.ResolveFunction(ref)
			if sym == nil {
				r.warn(f, ip, "function %s is not defined", ref.Candidates[0])
				r.set(dst, object.Undefined)
				continue
			}
			r.set(dst, r.heap.NewFunction(sym.Path.String(), sym))

		case op.Add:
			a, b := r.regs[base+int(ins.In1())], r.regs[base+int(ins.In2())]
			switch {
			case a.Kind() == object.NumberKind && b.Kind() == object.NumberKind:
				r.set(dst, object.FromNumber(a.Number()+b.Number()))
			case a.Kind() == object.StringKind || b.Kind() == object.StringKind:
				r.set(dst, r.heap.NewString(r.heap.Format(a)+r.heap.Format(b)))
			default:
				return object.Undefined, r.fail(f, ip, "cannot add %s and %s", a.Kind(), b.Kind())
			}
		case op.Sub, op.Mul, op.Div, op.Mod:
			a, b := r.regs[base+int(ins.In1())], r.regs[base+int(ins.In2())]
			if a.Kind() != object.NumberKind || b.Kind() != object.NumberKind {
				return object.Undefined, r.fail(f, ip, "operator %s requires numbers, not %s and %s",
					arithmeticSymbol(ins.Code()), a.Kind(), b.Kind())
			}
			r.set(dst, object.FromNumber(arithmetic(ins.Code(), a.Number(), b.Number())))
		case op.Negate:
			a := r.regs[base+int(ins.In1())]
			if a.Kind() != object.NumberKind {
				return object.Undefined, r.fail(f, ip, "cannot negate %s", a.Kind())
			}
			r.set(dst, object.FromNumber(-a.Number()))
		case op.Not:
			r.set(dst, object.FromBool(!r.heap.Truthy(r.regs[base+int(ins.In1())])))
		case op.Equal, op.NotEqual:
			eq := r.heap.Equal(r.regs[base+int(ins.In1())], r.regs[base+int(ins.In2())])
			r.set(dst, object.FromBool(eq == (ins.Code() == op.Equal)))
		case op.Less, op.LessEqual, op.Greater, op.GreaterEqual:
			a, b := r.regs[base+int(ins.In1())], r.regs[base+int(ins.In2())]
			c, ok := r.heap.Compare(a, b)
			if !ok {
				return object.Undefined, r.fail(f, ip, "cannot compare %s and %s", a.Kind(), b.Kind())
			}
			r.set(dst, object.FromBool(ordered(ins.Code(), c)))
		case op.Increment, op.Decrement:
			a := r.regs[dst]
			if a.Kind() != object.NumberKind {
				return object.Undefined, r.fail(f, ip, "cannot increment %s", a.Kind())
			}
			delta := 1.0
			if ins.Code() == op.Decrement {
				delta = -1
			}
			r.regs[dst] = object.FromNumber(a.Number() + delta)

		case op.Jump:
			f.ip = ip + int(ins.SParam())
		case op.JumpIfFalse:
			if !r.heap.Truthy(r.regs[dst]) {
				f.ip = ip + int(ins.SParam())
			}
		case op.JumpIfTrue:
			if r.heap.Truthy(r.regs[dst]) {
				f.ip = ip + int(ins.SParam())
			}
		case op.JumpTo:
			f.ip = int(ins.Param())

		case op.CallFunction:
			ref := &f.fn.Functions[r.data(f)]
			sym, target := r.table.ResolveFunction(ref)
			if target == nil {
				r.warn(f, ip, "function %s is not defined for %d arguments", ref.Candidates[0], ref.ArgCount)
				r.skipCall(f, ins)
				continue
			}
			if !target.VisibleFrom(ref.From) {
				r.warn(f, ip, "function %s is private to namespace %s", sym.Path, target.Namespace)
				r.skipCall(f, ins)
				continue
			}
			if err := r.invoke(f, ip, ins, target); err != nil {
				return object.Undefined, err
			}
			f = r.top()
		case op.CallSymbol:
			callee := r.regs[base+r.data(f)]
			fo := r.heap.Function(callee)
			if fo == nil {
				return object.Undefined, r.fail(f, ip, "cannot call %s", callee.Kind())
			}
			sym, _ := fo.Target.(*symbols.Symbol)
			var target *symbols.Function
			if sym != nil && sym.Functions != nil {
				target = sym.Functions.GetFirstFitting(int(ins.In2()))
			}
			if target == nil {
				r.warn(f, ip, "function %s is not defined for %d arguments", fo.Name, ins.In2())
				r.skipCall(f, ins)
				continue
			}
			if !target.VisibleFrom(f.fn.Namespace) {
				r.warn(f, ip, "function %s is private to namespace %s", fo.Name, target.Namespace)
				r.skipCall(f, ins)
				continue
			}
			if err := r.invoke(f, ip, ins, target); err != nil {
				return object.Undefined, err
			}
			f = r.top()
		case op.Return, op.ReturnUndefined:
			v := object.Undefined
			if ins.Code() == op.Return {
				v = r.regs[dst]
				r.heap.Retain(v)
			}
			if r.obs != nil && !r.obs.ret(ReturnEvent{Function: f.fn.Name, Line: f.fn.Line(ip), FrameDepth: len(r.frames) - 1}) {
				r.heap.Release(v)
				return object.Undefined, r.fail(f, ip, "execution halted by observer")
			}
			if result, done := r.ret(v); done {
				return result, nil
			}
			f = r.top()

		case op.NewArray:
			from, count := base+int(ins.In1()), int(ins.In2())
			items := make([]object.Value, count)
			for i := range items {
				items[i] = r.regs[from+i]
				r.heap.Retain(items[i])
			}
			r.set(dst, r.heap.NewArray(items))
		case op.LoadIndex:
			arr, i, err := r.element(f, ip, ins)
			if err != nil {
				return object.Undefined, err
			}
			v, ok := r.heap.Load(arr, i)
			if !ok {
				return object.Undefined, r.fail(f, ip, "index %d out of bounds for array of length %d", i, arr.Len())
			}
			r.set(dst, v)
		case op.StoreIndex:
			arr, i, err := r.element(f, ip, ins)
			if err != nil {
				return object.Undefined, err
			}
			v := r.regs[dst]
			r.heap.Retain(v)
			if !r.heap.Store(arr, i, v) {
				r.heap.Release(v)
				return object.Undefined, r.fail(f, ip, "index %d out of bounds for array of length %d", i, arr.Len())
			}
		case op.LoadProperty, op.StoreProperty:
			ref := &f.fn.Properties[r.data(f)]
			holder := r.regs[base+int(ins.In1())]
			obj := r.heap.Object(holder)
			if obj == nil || obj.Layout == nil {
				return object.Undefined, r.fail(f, ip, "%s has no field %s", holder.Kind(), ref.Name)
			}
			i := ref.Index(obj.Layout)
			if i < 0 {
				return object.Undefined, r.fail(f, ip, "object %s has no field %s", obj.Layout.Name, ref.Name)
			}
			if ins.Code() == op.LoadProperty {
				v, _ := r.heap.LoadField(obj, i)
				r.set(dst, v)
				continue
			}
			v := r.regs[dst]
			r.heap.Retain(v)
			r.heap.StoreField(obj, i, v)
		case op.PushObjectDefault:
			ref := &f.fn.Types[ins.Param()]
			typ := r.table.ResolveType(ref)
			if typ == nil || typ.Layout == nil {
				r.warn(f, ip, "unknown type %s", ref.Candidates[0])
				r.set(dst, object.Undefined)
				continue
			}
			r.set(dst, r.heap.NewObject(typ.Layout))
		default:
			return object.Undefined, r.fail(f, ip, "invalid opcode %d", ins.Code())
		}
	}
}

// data reads the data word following the current instruction.
func (r *Runner) data(f *frame) int {
	w := f.fn.Code[f.ip].Wide()
	f.ip++
	return int(w)
}

// skipCall leaves undefined in the target of a call that was not made and
// drops its arguments.
func (r *Runner) skipCall(f *frame, ins op.Instruction) {
	from := f.base + int(ins.In1())
	r.clear(from, from+int(ins.In2()))
	r.set(f.base+int(ins.Target()), object.Undefined)
}

// invoke calls target with the arguments of the call instruction at ip.
// Script functions get a new frame based at the first argument register.
func (r *Runner) invoke(f *frame, ip int, ins op.Instruction, target *symbols.Function) error {
	argBase := f.base + int(ins.In1())
	argc := int(ins.In2())
	if r.obs != nil && !r.obs.call(CallEvent{
		Function:   target.Path.String(),
		ArgCount:   argc,
		Line:       f.fn.Line(ip),
		FrameDepth: len(r.frames) + 1,
	}) {
		return r.fail(f, ip, "execution halted by observer")
	}
	if target.Kind != symbols.ScriptKind {
		args := make([]object.Value, argc)
		copy(args, r.regs[argBase:argBase+argc])
		v, err := r.native(target, args)
		r.clear(argBase, argBase+argc)
		if err != nil {
			return r.fail(f, ip, "%s: %s", target.Path, err)
		}
		r.set(f.base+int(ins.Target()), v)
		return nil
	}
	callee := target.Script
	if callee == nil {
		r.warn(f, ip, "function %s has no code", target.Path)
		r.skipCall(f, ins)
		return nil
	}
	if len(r.frames) >= MaxFrameDepth {
		return r.fail(f, ip, "call stack exceeded %d frames", MaxFrameDepth)
	}
	r.ensure(argBase + callee.RegisterCount)
	r.clear(argBase+argc, argBase+callee.RegisterCount)
	r.frames = append(r.frames, frame{fn: callee, base: argBase, callSite: ip})
	return nil
}

// native calls a Go function. Arguments are borrowed and padded with
// undefined up to the overload's arity.
func (r *Runner) native(fn *symbols.Function, args []object.Value) (v object.Value, err error) {
	if fn.Native == nil {
		return object.Undefined, fmt.Errorf("function %s has no implementation", fn.Path)
	}
	for len(args) < fn.ArgCount {
		args = append(args, object.Undefined)
	}
	defer func() {
		if p := recover(); p != nil {
			v, err = object.Undefined, fmt.Errorf("panic: %v", p)
		}
	}()
	return fn.Native(r, args)
}

// ret pops the current frame. The returned value goes to the target
// register of the caller's call instruction, or out of the runner when the
// outermost frame returns.
func (r *Runner) ret(v object.Value) (object.Value, bool) {
	callee := r.frames[len(r.frames)-1]
	r.clear(callee.base, callee.base+callee.fn.RegisterCount)
	r.frames = r.frames[:len(r.frames)-1]
	if len(r.frames) == 0 {
		return v, true
	}
	caller := r.top()
	ins := caller.fn.Code[callee.callSite]
	r.set(caller.base+int(ins.Target()), v)
	return object.Undefined, false
}

// element decodes the array and index operands of an indexing instruction.
func (r *Runner) element(f *frame, ip int, ins op.Instruction) (*object.Array, int, error) {
	holder := r.regs[f.base+int(ins.In1())]
	arr := r.heap.Array(holder)
	if arr == nil {
		return nil, 0, r.fail(f, ip, "cannot index %s", holder.Kind())
	}
	key := r.regs[f.base+int(ins.In2())]
	if key.Kind() != object.NumberKind {
		return nil, 0, r.fail(f, ip, "array index must be a number, not %s", key.Kind())
	}
	n := key.Number()
	if n != math.Trunc(n) {
		return nil, 0, r.fail(f, ip, "array index %s is not an integer", object.FormatNumber(n))
	}
	return arr, int(n), nil
}

func arithmetic(code op.Code, a, b float64) float64 {
	switch code {
	case op.Sub:
		return a - b
	case op.Mul:
		return a * b
	case op.Div:
		return a / b
	}
	return math.Mod(a, b)
}

func arithmeticSymbol(code op.Code) string {
	switch code {
	case op.Sub:
		return "-"
	case op.Mul:
		return "*"
	case op.Div:
		return "/"
	}
	return "%"
}

func ordered(code op.Code, c int) bool {
	switch code {
	case op.Less:
		return c < 0
	case op.LessEqual:
		return c <= 0
	case op.Greater:
		return c > 0
	}
	return c >= 0
}
