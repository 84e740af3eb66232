// Package bytecode reads and writes compiled libraries.
//
// A library is the durable form of one or more compiled units: the symbols
// they declare, with full code for script functions, followed by the
// top-level initializers in load order. Host and intrinsic overloads are
// recorded by signature only and are skipped when a library is loaded; the
// embedding program defines them again.
//
// # Format
//
// All integers are little-endian. A file starts with the magic "EMI", a
// format version byte and a 16-bit language version. The body is a 32-bit
// symbol count followed by the symbol records, then a 32-bit count of
// initializers followed by their function bodies. Strings are written as a
// 32-bit byte length followed by the bytes.
package bytecode

import (
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/symbols"
)

const (
	// Magic opens every library file.
	Magic = "EMI"

	// FormatVersion is the newest format this build reads and the one it
	// writes.
	FormatVersion uint8 = 1

	// LanguageVersion is the language revision of the code this build
	// compiles.
	LanguageVersion uint16 = 1

	// Extension is the file extension of libraries.
	Extension = ".eml"
)

// Library is a decoded or collected artifact.
type Library struct {
	LanguageVersion uint16
	Symbols         []*symbols.Symbol
	Inits           []*symbols.ScriptFunction
}

// Collect gathers the symbols and initializers of units. Overloads a unit
// pushed onto a shared overload set are included only for their own unit,
// so a unit's library never carries another unit's code.
func Collect(units ...*symbols.Unit) *Library {
	lib := &Library{LanguageVersion: LanguageVersion}
	funcs := map[names.Path]*symbols.Symbol{}
	seen := map[names.Path]bool{}
	for _, u := range units {
		for _, p := range u.Order {
			sym := u.Symbols[p]
			if sym.Kind != symbols.KindFunction {
				if !seen[p] {
					seen[p] = true
					lib.Symbols = append(lib.Symbols, sym)
				}
				continue
			}
			out := funcs[p]
			if out == nil {
				out = &symbols.Symbol{
					Path:      p,
					Kind:      symbols.KindFunction,
					Flags:     sym.Flags,
					Type:      sym.Type,
					Functions: symbols.NewFunctionTable(p),
				}
				funcs[p] = out
				lib.Symbols = append(lib.Symbols, out)
			}
			for _, f := range sym.Functions.Definitions() {
				if f.Unit == u.ID {
					out.Functions.Push(f)
				}
			}
		}
		if u.Init != nil {
			lib.Inits = append(lib.Inits, u.Init)
		}
	}
	return lib
}

// Unit turns a decoded library into a unit named name, ready to be
// registered. Symbols and overloads are claimed by the new unit.
func (l *Library) Unit(name string) *symbols.Unit {
	u := symbols.NewUnit(name)
	for _, sym := range l.Symbols {
		sym.Unit = u.ID
		if sym.Kind == symbols.KindFunction {
			for _, f := range sym.Functions.Definitions() {
				f.Unit = u.ID
			}
		}
		u.Add(sym)
	}
	if len(l.Inits) > 0 {
		u.Init = l.Inits[len(l.Inits)-1]
	}
	return u
}

// Stats summarizes a library. It is useful for auditing a library before
// loading it.
type Stats struct {
	Symbols      int
	Functions    int // script overloads
	Instructions int // code words, initializers included
	Constants    int // number and string pool entries
}

// Stats counts the contents of l.
func (l *Library) Stats() Stats {
	s := Stats{Symbols: len(l.Symbols)}
	count := func(fn *symbols.ScriptFunction) {
		s.Instructions += len(fn.Code)
		s.Constants += len(fn.Numbers) + len(fn.Strings)
	}
	for _, sym := range l.Symbols {
		if sym.Kind != symbols.KindFunction {
			continue
		}
		for _, f := range sym.Functions.Definitions() {
			if f.Script != nil {
				s.Functions++
				count(f.Script)
			}
		}
	}
	for _, fn := range l.Inits {
		count(fn)
	}
	return s
}
