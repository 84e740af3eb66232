package bytecode

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/op"
	"github.com/emerald-lang/emerald/symbols"
)

// maxCount bounds any length prefix, so a corrupt file fails instead of
// allocating without limit.
const maxCount = 1 << 24

var (
	ErrNotLibrary = errors.New("bytecode: not a library")
	ErrVersion    = errors.New("bytecode: unsupported format version")
)

type decoder struct {
	r   *bufio.Reader
	buf [8]byte
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("bytecode: "+format, args...)
	}
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return d.buf[:n]
	}
	if _, err := io.ReadFull(d.r, d.buf[:n]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		d.err = fmt.Errorf("bytecode: %w", err)
	}
	return d.buf[:n]
}

func (d *decoder) u8() uint8 { return d.read(1)[0] }

func (d *decoder) u16() uint16 { return binary.LittleEndian.Uint16(d.read(2)) }

func (d *decoder) u32() uint32 { return binary.LittleEndian.Uint32(d.read(4)) }

func (d *decoder) f64() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(d.read(8)))
}

func (d *decoder) bool() bool { return d.u8() != 0 }

func (d *decoder) count() int {
	n := d.u32()
	if n > maxCount {
		d.fail("length %d out of range", n)
		return 0
	}
	if d.err != nil {
		return 0
	}
	return int(n)
}

func (d *decoder) str() string {
	n := d.count()
	if n == 0 {
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.r, b); err != nil && d.err == nil {
		d.err = fmt.Errorf("bytecode: %w", io.ErrUnexpectedEOF)
	}
	return string(b)
}

func (d *decoder) path() names.Path {
	s := d.str()
	p, err := names.ParsePath(s)
	if err != nil {
		d.fail("%v", err)
	}
	return p
}

func (d *decoder) paths() []names.Path {
	n := d.count()
	if n == 0 {
		return nil
	}
	out := make([]names.Path, n)
	for i := range out {
		out[i] = d.path()
	}
	return out
}

func (d *decoder) kind() object.Kind {
	k := object.Kind(d.u8())
	if k > object.ExternalKind {
		d.fail("invalid value kind %d", k)
	}
	return k
}

// Decode reads a library. Files written by a newer format version are
// rejected with ErrVersion.
func Decode(r io.Reader) (*Library, error) {
	d := &decoder{r: bufio.NewReader(r)}
	if string(d.read(len(Magic))) != Magic || d.err != nil {
		return nil, ErrNotLibrary
	}
	if v := d.u8(); v > FormatVersion || v == 0 {
		return nil, fmt.Errorf("%w %d", ErrVersion, v)
	}
	lib := &Library{LanguageVersion: d.u16()}

	n := d.count()
	for i := 0; i < n && d.err == nil; i++ {
		if sym := d.symbol(); sym != nil {
			lib.Symbols = append(lib.Symbols, sym)
		}
	}
	n = d.count()
	for i := 0; i < n && d.err == nil; i++ {
		lib.Inits = append(lib.Inits, d.script())
	}
	if d.err != nil {
		return nil, d.err
	}
	return lib, nil
}

// symbol reads one symbol record. Function symbols left without script
// overloads are dropped.
func (d *decoder) symbol() *symbols.Symbol {
	sym := &symbols.Symbol{
		Path:     d.path(),
		Kind:     symbols.Kind(d.u8()),
		Flags:    symbols.Flags(d.u8()),
		Type:     d.kind(),
		TypeName: d.path(),
	}
	switch sym.Kind {
	case symbols.KindNamespace:
		sym.Namespace = &symbols.Namespace{Path: sym.Path}
	case symbols.KindObject:
		sym.Object = d.object(sym.Path)
	case symbols.KindFunction:
		sym.Functions = symbols.NewFunctionTable(sym.Path)
		n := d.count()
		for i := 0; i < n && d.err == nil; i++ {
			f := d.function(sym.Path)
			if f.Kind == symbols.ScriptKind {
				sym.Functions.Push(f)
			}
		}
		if sym.Functions.Len() == 0 {
			return nil
		}
	case symbols.KindVariable, symbols.KindStatic:
		sym.Variable = &symbols.Variable{}
	default:
		d.fail("%s: invalid symbol kind %d", sym.Path, sym.Kind)
	}
	return sym
}

func (d *decoder) object(path names.Path) *symbols.UserDefinedType {
	t := &symbols.UserDefinedType{Path: path}
	n := d.count()
	for i := 0; i < n && d.err == nil; i++ {
		f := symbols.Field{Name: names.Intern(d.str())}
		f.Type = d.kind()
		f.TypeName = d.path()
		f.Default = d.constant()
		t.Fields = append(t.Fields, f)
	}
	return t
}

func (d *decoder) constant() symbols.Constant {
	c := symbols.Constant{Kind: d.kind()}
	switch c.Kind {
	case object.NumberKind:
		c.Number = d.f64()
	case object.BooleanKind:
		c.Bool = d.bool()
	case object.StringKind:
		c.String = d.str()
	}
	return c
}

func (d *decoder) function(path names.Path) *symbols.Function {
	f := &symbols.Function{Path: path, ArgCount: d.count()}
	if n := d.count(); n > 0 {
		f.ArgTypes = make([]object.Kind, n)
		for i := range f.ArgTypes {
			f.ArgTypes[i] = d.kind()
		}
	}
	f.ReturnType = d.kind()
	f.Public = d.bool()
	f.Kind = symbols.FunctionKind(d.u8())
	f.Namespace = d.path()
	switch f.Kind {
	case symbols.ScriptKind:
		f.Script = d.script()
	case symbols.HostKind, symbols.IntrinsicKind:
	default:
		d.fail("%s: invalid function kind %d", path, f.Kind)
	}
	return f
}

func (d *decoder) script() *symbols.ScriptFunction {
	fn := &symbols.ScriptFunction{
		Name:      d.str(),
		File:      d.str(),
		Namespace: d.path(),
	}
	fn.ArgCount = d.count()
	fn.RegisterCount = d.count()
	if fn.RegisterCount > 256 || fn.ArgCount > fn.RegisterCount {
		d.fail("%s: invalid register count %d", fn.Name, fn.RegisterCount)
		return fn
	}

	if n := d.count(); n > 0 {
		fn.Numbers = make([]float64, n)
		for i := range fn.Numbers {
			fn.Numbers[i] = d.f64()
		}
	}
	if n := d.count(); n > 0 {
		fn.Strings = make([]string, n)
		for i := range fn.Strings {
			fn.Strings[i] = d.str()
		}
	}
	if n := d.count(); n > 0 {
		fn.Functions = make([]symbols.FunctionRef, n)
		for i := range fn.Functions {
			ref := &fn.Functions[i]
			ref.Candidates = d.paths()
			ref.ArgCount = d.count()
			ref.From = d.path()
		}
	}
	if n := d.count(); n > 0 {
		fn.Properties = make([]symbols.PropertyRef, n)
		for i := range fn.Properties {
			fn.Properties[i].Name = names.Intern(d.str())
		}
	}
	if n := d.count(); n > 0 {
		fn.Types = make([]symbols.TypeRef, n)
		for i := range fn.Types {
			fn.Types[i].Candidates = d.paths()
		}
	}
	if n := d.count(); n > 0 {
		fn.Globals = make([]symbols.GlobalRef, n)
		for i := range fn.Globals {
			fn.Globals[i].Candidates = d.paths()
		}
	}

	if n := d.count(); n > 0 {
		fn.Code = make([]op.Instruction, n)
		for i := range fn.Code {
			fn.Code[i] = op.Instruction(d.u32())
		}
	}
	if n := d.count(); n > 0 {
		fn.Lines = make([]int32, n)
		for i := range fn.Lines {
			fn.Lines[i] = int32(d.u32())
		}
	}
	return fn
}
