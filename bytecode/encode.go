package bytecode

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/symbols"
)

// encoder writes primitives and keeps the first error.
type encoder struct {
	w   *bufio.Writer
	buf [8]byte
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) u8(v uint8) {
	e.buf[0] = v
	e.bytes(e.buf[:1])
}

func (e *encoder) u16(v uint16) {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	e.bytes(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	e.bytes(e.buf[:4])
}

func (e *encoder) count(n int) {
	e.u32(uint32(n))
}

func (e *encoder) f64(v float64) {
	binary.LittleEndian.PutUint64(e.buf[:8], math.Float64bits(v))
	e.bytes(e.buf[:8])
}

func (e *encoder) str(s string) {
	e.count(len(s))
	if e.err == nil {
		_, e.err = e.w.WriteString(s)
	}
}

func (e *encoder) bool(b bool) {
	if b {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) path(p names.Path) {
	e.str(p.String())
}

func (e *encoder) paths(ps []names.Path) {
	e.count(len(ps))
	for _, p := range ps {
		e.path(p)
	}
}

// Encode writes lib to w.
func Encode(w io.Writer, lib *Library) error {
	e := &encoder{w: bufio.NewWriter(w)}
	e.bytes([]byte(Magic))
	e.u8(FormatVersion)
	version := lib.LanguageVersion
	if version == 0 {
		version = LanguageVersion
	}
	e.u16(version)

	e.count(len(lib.Symbols))
	for _, sym := range lib.Symbols {
		e.symbol(sym)
	}
	e.count(len(lib.Inits))
	for _, fn := range lib.Inits {
		e.script(fn)
	}
	if e.err != nil {
		return fmt.Errorf("bytecode: %w", e.err)
	}
	return e.w.Flush()
}

func (e *encoder) symbol(sym *symbols.Symbol) {
	e.path(sym.Path)
	e.u8(uint8(sym.Kind))
	e.u8(uint8(sym.Flags))
	e.u8(uint8(sym.Type))
	e.path(sym.TypeName)
	switch sym.Kind {
	case symbols.KindObject:
		e.object(sym.Object)
	case symbols.KindFunction:
		defs := sym.Functions.Definitions()
		e.count(len(defs))
		for _, f := range defs {
			e.function(f)
		}
	}
}

func (e *encoder) object(t *symbols.UserDefinedType) {
	e.count(len(t.Fields))
	for _, f := range t.Fields {
		e.str(f.Name.String())
		e.u8(uint8(f.Type))
		e.path(f.TypeName)
		e.constant(f.Default)
	}
}

func (e *encoder) constant(c symbols.Constant) {
	e.u8(uint8(c.Kind))
	switch c.Kind {
	case object.NumberKind:
		e.f64(c.Number)
	case object.BooleanKind:
		e.bool(c.Bool)
	case object.StringKind:
		e.str(c.String)
	}
}

func (e *encoder) function(f *symbols.Function) {
	e.count(f.ArgCount)
	e.count(len(f.ArgTypes))
	for _, k := range f.ArgTypes {
		e.u8(uint8(k))
	}
	e.u8(uint8(f.ReturnType))
	e.bool(f.Public)
	e.u8(uint8(f.Kind))
	e.path(f.Namespace)
	if f.Kind == symbols.ScriptKind {
		e.script(f.Script)
	}
}

func (e *encoder) script(fn *symbols.ScriptFunction) {
	e.str(fn.Name)
	e.str(fn.File)
	e.path(fn.Namespace)
	e.count(fn.ArgCount)
	e.count(fn.RegisterCount)

	e.count(len(fn.Numbers))
	for _, n := range fn.Numbers {
		e.f64(n)
	}
	e.count(len(fn.Strings))
	for _, s := range fn.Strings {
		e.str(s)
	}
	e.count(len(fn.Functions))
	for i := range fn.Functions {
		ref := &fn.Functions[i]
		e.paths(ref.Candidates)
		e.count(ref.ArgCount)
		e.path(ref.From)
	}
	e.count(len(fn.Properties))
	for i := range fn.Properties {
		e.str(fn.Properties[i].Name.String())
	}
	e.count(len(fn.Types))
	for i := range fn.Types {
		e.paths(fn.Types[i].Candidates)
	}
	e.count(len(fn.Globals))
	for i := range fn.Globals {
		e.paths(fn.Globals[i].Candidates)
	}

	e.count(len(fn.Code))
	for _, ins := range fn.Code {
		e.u32(uint32(ins))
	}
	e.count(len(fn.Lines))
	for _, l := range fn.Lines {
		e.u32(uint32(l))
	}
}
