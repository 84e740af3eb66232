package emerald

import (
	"os"

	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/vm"
)

// CompileResult is a compilation in progress.
type CompileResult struct {
	heap *object.Heap
	r    *vm.CompileResult
}

// Name is the unit name.
func (c *CompileResult) Name() string { return c.r.Name() }

// Wait blocks until the unit is compiled and its top-level code has run,
// and reports whether both succeeded.
func (c *CompileResult) Wait() bool { return c.r.Wait() }

// Err waits and returns the reason the compilation failed.
func (c *CompileResult) Err() error { return c.r.Err() }

// Value waits and returns what the unit's top-level code returned.
func (c *CompileResult) Value() Value { return fromObject(c.heap, c.r.Value()) }

// InitGrammar replaces the grammar used by later compilations with the
// description at path.
func (e *Environment) InitGrammar(path string) error {
	return e.machine.InitGrammar(path)
}

// Compile queues the script at path. Compiling a path again replaces the
// earlier unit.
func (e *Environment) Compile(path string) *CompileResult {
	return &CompileResult{heap: e.machine.Heap(), r: e.machine.Compile(path)}
}

// CompileString queues source text under a unit name.
func (e *Environment) CompileString(name, text string) *CompileResult {
	return &CompileResult{heap: e.machine.Heap(), r: e.machine.CompileSource(name, text)}
}

// Export writes every loaded unit to one library file.
func (e *Environment) Export(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := e.machine.Export(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ExportUnits writes one library file per loaded unit into dir.
func (e *Environment) ExportUnits(dir string) error {
	return e.machine.ExportUnits(dir)
}

// LoadLibrary loads a library file written by Export and returns the value
// of its last initializer.
func (e *Environment) LoadLibrary(path string) (Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return Undefined, err
	}
	defer f.Close()
	v, err := e.machine.LoadLibrary(path, f)
	if err != nil {
		return Undefined, err
	}
	return e.take(v), nil
}
