package compiler

import (
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/symbols"
)

// CompileSymbol is the compiler's view of a name while one function is being
// compiled. Locals live in a register. Globals are loaded through the
// function's global reference table and have NeedsLoading set.
type CompileSymbol struct {
	Name         names.Name
	Register     uint8
	Assignable   bool
	Declared     int // instruction index of the declaration
	LastUse      int // instruction index of the last read
	NeedsLoading bool
	Global       *symbols.Symbol
	GlobalIndex  int
	Type         object.Kind
	TypeName     names.Path
}

// Scope is one lexical block. Scopes nest through parent; function marks
// the outermost scope of a function body, where lookups of locals stop.
type Scope struct {
	parent   *Scope
	function bool
	symbols  map[names.Name]*CompileSymbol
	order    []*CompileSymbol
}

func newScope(parent *Scope, function bool) *Scope {
	return &Scope{parent: parent, function: function, symbols: map[names.Name]*CompileSymbol{}}
}

// Lookup finds a local visible from s within the current function.
func (s *Scope) Lookup(name names.Name) *CompileSymbol {
	for scope := s; scope != nil; scope = scope.parent {
		if sym, ok := scope.symbols[name]; ok {
			return sym
		}
		if scope.function {
			break
		}
	}
	return nil
}

// Declare binds a new local. It returns false if the name is already bound
// in s or an enclosing scope of the same function.
func (s *Scope) Declare(sym *CompileSymbol) bool {
	if s.Lookup(sym.Name) != nil {
		return false
	}
	s.symbols[sym.Name] = sym
	s.order = append(s.order, sym)
	return true
}

// Symbols returns the locals declared directly in s, in order.
func (s *Scope) Symbols() []*CompileSymbol {
	return s.order
}

// Names returns the names of the locals visible from s.
func (s *Scope) Names() []string {
	var out []string
	for scope := s; scope != nil; scope = scope.parent {
		for _, sym := range scope.order {
			out = append(out, sym.Name.String())
		}
		if scope.function {
			break
		}
	}
	return out
}
