package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid"

	"github.com/emerald-lang/emerald/builtins"
	"github.com/emerald-lang/emerald/bytecode"
	"github.com/emerald-lang/emerald/compiler"
	"github.com/emerald-lang/emerald/config"
	"github.com/emerald-lang/emerald/grammar"
	"github.com/emerald-lang/emerald/internal/logging"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/parser"
	"github.com/emerald-lang/emerald/symbols"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("machine is closed")

// Handle names a function for host calls. Overloads are chosen by argument
// count when the call runs, so a handle survives hot reloads.
type Handle struct {
	Path names.Path
}

func (h Handle) String() string { return h.Path.String() }

type loadedUnit struct {
	unit *symbols.Unit
	name string
}

// Machine owns a symbol table and a heap shared by a pool of parser workers
// and a pool of runners.
type Machine struct {
	cfg          config.Config
	sinks        logging.Sinks
	sinksSet     bool
	observer     Observer
	noIntrinsics bool

	heap    *object.Heap
	table   *symbols.Table
	sweeper *object.Sweeper
	grammar atomic.Pointer[grammar.Table]

	// mergeMu serializes unit registration.
	mergeMu sync.Mutex
	units   map[uuid.UUID]*loadedUnit
	byName  map[string]uuid.UUID
	order   []uuid.UUID

	compiles *queue[*CompileResult]
	calls    *queue[*CallObject]
	promises promiseTable

	ctx     context.Context
	cancel  context.CancelFunc
	halt    atomic.Bool
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewMachine starts a machine and its worker pools.
func NewMachine(opts ...Option) (*Machine, error) {
	m := &Machine{
		cfg:      config.Default(),
		heap:     object.NewHeap(),
		table:    symbols.NewTable(),
		units:    map[uuid.UUID]*loadedUnit{},
		byName:   map[string]uuid.UUID{},
		compiles: newQueue[*CompileResult](),
		calls:    newQueue[*CallObject](),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.sinksSet {
		m.sinks = logging.New(os.Stderr, m.cfg.Levels)
	}
	if !m.noIntrinsics {
		if err := builtins.Register(m.table); err != nil {
			return nil, err
		}
	}
	if m.cfg.Grammar != "" {
		if err := m.InitGrammar(m.cfg.Grammar); err != nil {
			return nil, err
		}
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.sweeper = object.NewSweeper(m.heap, m.cfg.SweepInterval, m.sinks.Runtime)
	m.sweeper.Start()
	m.running.Store(true)
	for i := 0; i < max(1, m.cfg.ParserThreads); i++ {
		m.wg.Add(1)
		go m.parserWorker()
	}
	for i := 0; i < max(1, m.cfg.RunnerThreads); i++ {
		m.wg.Add(1)
		go m.runnerWorker()
	}
	m.sinks.Runtime.Debug().
		Int("parsers", m.cfg.ParserThreads).
		Int("runners", m.cfg.RunnerThreads).
		Msg("machine started")
	return m, nil
}

// Heap returns the shared heap.
func (m *Machine) Heap() *object.Heap { return m.heap }

// Table returns the global symbol table.
func (m *Machine) Table() *symbols.Table { return m.table }

// Sinks returns the machine's loggers.
func (m *Machine) Sinks() logging.Sinks { return m.sinks }

// Sweeper returns the background sweeper.
func (m *Machine) Sweeper() *object.Sweeper { return m.sweeper }

func (m *Machine) newRunner() *Runner {
	return NewRunner(m.heap, m.table, m.sinks, m.observer, &m.halt)
}

func (m *Machine) parserWorker() {
	defer m.wg.Done()
	r := m.newRunner()
	for {
		job, ok := m.compiles.pop()
		if !ok {
			return
		}
		m.compile(job, r)
	}
}

func (m *Machine) runnerWorker() {
	defer m.wg.Done()
	r := m.newRunner()
	for {
		call, ok := m.calls.pop()
		if !ok {
			return
		}
		v := r.Execute(call)
		if !m.promises.resolve(call.Promise, v) {
			m.heap.Release(v)
		}
	}
}

// CompileResult tracks one queued compilation.
type CompileResult struct {
	name   string
	path   string
	source string

	done  chan struct{}
	unit  *symbols.Unit
	value object.Value
	err   error
}

func newCompileResult(name string) *CompileResult {
	return &CompileResult{name: name, done: make(chan struct{})}
}

func (r *CompileResult) finish(unit *symbols.Unit, v object.Value, err error) {
	r.unit, r.value, r.err = unit, v, err
	close(r.done)
}

// Name is the unit name, the file path for compiled files.
func (r *CompileResult) Name() string { return r.name }

// Wait blocks until the unit is compiled, registered and initialized, and
// reports whether that succeeded.
func (r *CompileResult) Wait() bool {
	<-r.done
	return r.err == nil
}

// Err waits like Wait and returns the failure. Compile diagnostics are
// aggregated in a *multierror.Error.
func (r *CompileResult) Err() error {
	<-r.done
	return r.err
}

// Unit waits like Wait and returns the registered unit, or nil.
func (r *CompileResult) Unit() *symbols.Unit {
	<-r.done
	return r.unit
}

// Value waits like Wait and returns the value the unit's top-level code
// returned. The value stays owned by the result.
func (r *CompileResult) Value() object.Value {
	<-r.done
	return r.value
}

// Compile queues the file at path for compilation. Compiling a path that is
// already loaded replaces the old unit once the new one compiles.
func (m *Machine) Compile(path string) *CompileResult {
	job := newCompileResult(path)
	job.path = path
	return m.enqueue(job)
}

// CompileSource queues source text under a unit name.
func (m *Machine) CompileSource(name, source string) *CompileResult {
	job := newCompileResult(name)
	job.source = source
	return m.enqueue(job)
}

func (m *Machine) enqueue(job *CompileResult) *CompileResult {
	if !m.compiles.push(job) {
		job.finish(nil, object.Undefined, ErrClosed)
	}
	return job
}

func (m *Machine) parseTable() (*grammar.Table, error) {
	if t := m.grammar.Load(); t != nil {
		return t, nil
	}
	return parser.DefaultTable()
}

func (m *Machine) compile(job *CompileResult, r *Runner) {
	log := m.sinks.Compile.With().Str("file", job.name).Logger()
	src := job.source
	if job.path != "" {
		data, err := os.ReadFile(job.path)
		if err != nil {
			log.Error().Err(err).Msg("cannot read source")
			job.finish(nil, object.Undefined, err)
			return
		}
		src = string(data)
	}
	table, err := m.parseTable()
	if err != nil {
		log.Error().Err(err).Msg("no parse table")
		job.finish(nil, object.Undefined, err)
		return
	}
	root, err := parser.New(table).Parse(m.ctx, src, job.name)
	if err != nil {
		log.Error().Err(err).Msg("syntax error")
		job.finish(nil, object.Undefined, err)
		return
	}
	unit, err := compiler.Compile(root, compiler.Config{
		Filename: job.name,
		Source:   src,
		Globals:  m.table,
		Logger:   m.sinks.Compile,
	})
	if err != nil {
		job.finish(nil, object.Undefined, err)
		return
	}
	v, err := m.addUnit(unit, job.name, []*symbols.ScriptFunction{unit.Init}, r)
	if err != nil {
		job.finish(nil, object.Undefined, err)
		return
	}
	job.finish(unit, v, nil)
}

// AddCompileUnit registers a compiled unit under name and runs its
// top-level code, returning the value that code returned. A unit already
// registered under name is replaced.
func (m *Machine) AddCompileUnit(unit *symbols.Unit, name string) (object.Value, error) {
	return m.addUnit(unit, name, []*symbols.ScriptFunction{unit.Init}, m.newRunner())
}

func (m *Machine) addUnit(unit *symbols.Unit, name string, inits []*symbols.ScriptFunction, r *Runner) (object.Value, error) {
	m.mergeMu.Lock()
	var layouts []*object.Layout
	for _, typ := range unit.Types() {
		typ.Layout = typ.BuildLayout(m.table.NextLayoutID(), m.heap)
		layouts = append(layouts, typ.Layout)
	}
	old, reload := m.byName[name]
	var err error
	if reload {
		var removed []*symbols.Symbol
		if removed, err = m.table.Replace(old, unit); err == nil {
			m.releaseVariables(removed)
			delete(m.units, old)
			m.order = removeID(m.order, old)
		}
	} else {
		err = m.table.Merge(unit)
	}
	if err != nil {
		m.mergeMu.Unlock()
		for _, l := range layouts {
			for _, v := range l.Defaults {
				m.heap.Release(v)
			}
		}
		m.sinks.Compile.Error().Err(err).Str("file", name).Msg("cannot register unit")
		return object.Undefined, err
	}
	m.units[unit.ID] = &loadedUnit{unit: unit, name: name}
	m.byName[name] = unit.ID
	m.order = append(m.order, unit.ID)
	m.mergeMu.Unlock()

	event := m.sinks.Compile.Info().Str("file", name).Str("unit", unit.ID.String())
	if reload {
		event.Msg("unit reloaded")
	} else {
		event.Msg("unit loaded")
	}

	result := object.Undefined
	for _, init := range inits {
		m.heap.Release(result)
		result = r.Run(init, nil)
	}
	return result, nil
}

func (m *Machine) releaseVariables(removed []*symbols.Symbol) {
	for _, sym := range removed {
		if sym.Variable != nil {
			sym.Variable.Store(m.heap, object.Undefined)
		}
	}
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// RemoveCompileUnit unregisters a unit and releases its global values.
func (m *Machine) RemoveCompileUnit(id uuid.UUID) bool {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()
	lu, ok := m.units[id]
	if !ok {
		return false
	}
	m.releaseVariables(m.table.Remove(id))
	delete(m.units, id)
	delete(m.byName, lu.name)
	m.order = removeID(m.order, id)
	m.sinks.Compile.Info().Str("file", lu.name).Str("unit", id.String()).Msg("unit removed")
	return true
}

// UnitID returns the identity of the unit loaded under name.
func (m *Machine) UnitID(name string) (uuid.UUID, bool) {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()
	id, ok := m.byName[name]
	return id, ok
}

// FunctionHandle looks up a function by its qualified name.
func (m *Machine) FunctionHandle(name string) (Handle, bool) {
	path, err := names.ParsePath(name)
	if err != nil {
		return Handle{}, false
	}
	sym := m.table.Lookup(path)
	if sym == nil || sym.Kind != symbols.KindFunction {
		return Handle{}, false
	}
	return Handle{Path: path}, true
}

// CallFunction queues a call and returns the promise index that receives
// its result. The call takes ownership of args. It returns -1 once the
// machine is closed.
func (m *Machine) CallFunction(h Handle, args ...object.Value) int {
	i := m.promises.alloc()
	call := &CallObject{Path: h.Path, Args: args, Promise: i}
	if !m.calls.push(call) {
		m.abandon(call)
		return -1
	}
	return i
}

func (m *Machine) abandon(call *CallObject) {
	for _, v := range call.Args {
		m.heap.Release(v)
	}
	if p := m.promises.get(call.Promise); p != nil {
		m.promises.resolve(call.Promise, object.Undefined)
		m.promises.take(call.Promise, p)
	}
}

// GetReturnValue waits for promise i and returns its value, which the
// caller owns. Each promise can be read once; reading it again returns
// Undefined without blocking, even after its slot serves another call.
func (m *Machine) GetReturnValue(i int) object.Value {
	p := m.promises.get(i)
	if p == nil {
		return object.Undefined
	}
	<-p.done
	return m.promises.take(i, p)
}

// Poll returns the value of promise i if it is resolved.
func (m *Machine) Poll(i int) (object.Value, bool) {
	p := m.promises.get(i)
	if p == nil {
		return object.Undefined, false
	}
	select {
	case <-p.done:
		return m.promises.take(i, p), true
	default:
		return object.Undefined, false
	}
}

// InitGrammar builds the parse table for a grammar description and uses it
// for every later compilation. With a cache directory configured the table
// is reused across runs until the description changes.
func (m *Machine) InitGrammar(path string) error {
	src, err := grammar.ReadSource(path)
	if err != nil {
		return err
	}
	var cachePath string
	if m.cfg.CacheDir != "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		cachePath = filepath.Join(m.cfg.CacheDir, base+".table")
	}
	t, err := grammar.BuildCached(src, cachePath, m.sinks.Compile)
	if err != nil {
		m.sinks.Compile.Error().Err(err).Str("grammar", path).Msg("cannot build parse table")
		return err
	}
	m.grammar.Store(t)
	m.sinks.Compile.Debug().
		Str("grammar", path).
		Int("states", t.States()).
		Int("decides", t.Decides()).
		Msg("grammar loaded")
	return nil
}

// Library collects every loaded unit into one artifact. Units are written
// in load order.
func (m *Machine) Library() *bytecode.Library {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()
	units := make([]*symbols.Unit, 0, len(m.order))
	for _, id := range m.order {
		units = append(units, m.units[id].unit)
	}
	return bytecode.Collect(units...)
}

// Export writes every loaded unit as one library.
func (m *Machine) Export(w io.Writer) error {
	return bytecode.Encode(w, m.Library())
}

// ExportUnits writes each loaded unit to its own library file in dir.
func (m *Machine) ExportUnits(dir string) error {
	m.mergeMu.Lock()
	loaded := make([]*loadedUnit, 0, len(m.order))
	for _, id := range m.order {
		loaded = append(loaded, m.units[id])
	}
	m.mergeMu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, lu := range loaded {
		base := strings.TrimSuffix(filepath.Base(lu.name), filepath.Ext(lu.name))
		path := filepath.Join(dir, base+bytecode.Extension)
		if err := writeLibrary(path, bytecode.Collect(lu.unit)); err != nil {
			return err
		}
	}
	return nil
}

func writeLibrary(path string, lib *bytecode.Library) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bytecode.Encode(f, lib); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// LoadLibrary registers the symbols of a library under name and runs its
// initializers in order, returning the value of the last one.
func (m *Machine) LoadLibrary(name string, r io.Reader) (object.Value, error) {
	lib, err := bytecode.Decode(r)
	if err != nil {
		return object.Undefined, err
	}
	return m.addUnit(lib.Unit(name), name, lib.Inits, m.newRunner())
}

// Close stops the worker pools. Running calls are halted at their next
// check, queued calls resolve to undefined and queued compilations fail
// with ErrClosed.
func (m *Machine) Close() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.halt.Store(true)
	m.cancel()
	for _, job := range m.compiles.close() {
		job.finish(nil, object.Undefined, ErrClosed)
	}
	for _, call := range m.calls.close() {
		for _, v := range call.Args {
			m.heap.Release(v)
		}
		m.promises.resolve(call.Promise, object.Undefined)
	}
	m.wg.Wait()
	m.sweeper.Stop()
	m.sinks.Runtime.Debug().Msg("machine stopped")
}
