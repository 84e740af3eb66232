package bytecode

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/emerald-lang/emerald/builtins"
	"github.com/emerald-lang/emerald/compiler"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/parser"
	"github.com/emerald-lang/emerald/symbols"
)

const source = `
namespace Geo {
	object Point { var x = 0; var y: number = 1.5; var label = "p"; var on = true; }
	public function length(p: Point): number { return Math.Sqrt(p.x * p.x + p.y * p.y); }
	function scale(p: Point, k) { p.x *= k; p.y *= k; return p; }
	function scale(p: Point) { return scale(p, 2); }
}
var origin = new Geo.Point;
const name = "geo";
return Geo.length(origin);
`

func compileUnit(t *testing.T, src string) *symbols.Unit {
	t.Helper()
	root, err := parser.Parse(context.Background(), src, "geo.em")
	require.Nil(t, err)
	globals := symbols.NewTable()
	require.Nil(t, builtins.Register(globals))
	unit, err := compiler.Compile(root, compiler.Config{Filename: "geo.em", Source: src, Globals: globals, Logger: zerolog.Nop()})
	require.Nil(t, err)
	return unit
}

func roundTrip(t *testing.T, lib *Library) *Library {
	t.Helper()
	var buf bytes.Buffer
	require.Nil(t, Encode(&buf, lib))
	require.Equal(t, []byte{'E', 'M', 'I', FormatVersion, byte(LanguageVersion), 0}, buf.Bytes()[:6])
	out, err := Decode(&buf)
	require.Nil(t, err)
	return out
}

func TestRoundTrip(t *testing.T) {
	unit := compileUnit(t, source)
	lib := roundTrip(t, Collect(unit))
	require.Equal(t, LanguageVersion, lib.LanguageVersion)

	var paths []string
	for _, sym := range lib.Symbols {
		paths = append(paths, sym.Path.String())
	}
	require.Equal(t, []string{"Geo", "Geo.Point", "Geo.length", "Geo.scale", "origin", "name"}, paths)

	point := lib.Symbols[1]
	require.Equal(t, symbols.KindObject, point.Kind)
	require.Len(t, point.Object.Fields, 4)
	require.Equal(t, symbols.Constant{Kind: object.NumberKind, Number: 1.5}, point.Object.Fields[1].Default)
	require.Equal(t, symbols.Constant{Kind: object.StringKind, String: "p"}, point.Object.Fields[2].Default)
	require.Equal(t, symbols.Constant{Kind: object.BooleanKind, Bool: true}, point.Object.Fields[3].Default)

	scale := lib.Symbols[3]
	require.Equal(t, 2, scale.Functions.Len())
	original := unit.Lookup(names.MustParsePath("Geo.scale")).Functions.GetFirstFitting(2).Script
	decoded := scale.Functions.GetFirstFitting(2)
	require.False(t, decoded.Public)
	require.Equal(t, "Geo", decoded.Namespace.String())
	require.Equal(t, []object.Kind{object.ObjectKind, object.UndefinedKind}, decoded.ArgTypes)
	require.Equal(t, original.Code, decoded.Script.Code)
	require.Equal(t, original.Lines, decoded.Script.Lines)
	require.Equal(t, original.RegisterCount, decoded.Script.RegisterCount)
	require.Len(t, decoded.Script.Properties, len(original.Properties))

	length := lib.Symbols[2].Functions.GetFirstFitting(1)
	require.True(t, length.Public)
	require.Equal(t, object.NumberKind, length.ReturnType)
	require.Equal(t, []names.Path{names.MustParsePath("Math.Sqrt")}, length.Script.Functions[0].Candidates)

	require.Equal(t, symbols.KindStatic, lib.Symbols[5].Kind)
	require.NotNil(t, lib.Symbols[5].Variable)

	require.Len(t, lib.Inits, 1)
	require.Equal(t, unit.Init.Code, lib.Inits[0].Code)
	require.Equal(t, unit.Init.Numbers, lib.Inits[0].Numbers)
}

func TestCollectKeepsUnitsApart(t *testing.T) {
	a := compileUnit(t, "function f() { return 1; }")
	b := compileUnit(t, "function f(x) { return x; }")

	// b's overload lands on a's overload set once both are registered.
	table := symbols.NewTable()
	require.Nil(t, table.Merge(a))
	require.Nil(t, table.Merge(b))
	require.Equal(t, 2, a.Lookup(names.MustParsePath("f")).Functions.Len())

	lib := Collect(a)
	require.Len(t, lib.Symbols, 1)
	require.Equal(t, 1, lib.Symbols[0].Functions.Len())
	require.NotNil(t, lib.Symbols[0].Functions.GetFirstFitting(0))

	both := Collect(a, b)
	require.Len(t, both.Symbols, 1)
	require.Equal(t, 2, both.Symbols[0].Functions.Len())
	require.Len(t, both.Inits, 2)
}

func TestHostOverloadsAreSkipped(t *testing.T) {
	path := names.MustParsePath("mixed")
	script := compileUnit(t, "function mixed(a) { return a; }").Lookup(path).Functions.GetFirstFitting(1)
	host := &symbols.Symbol{Path: names.MustParsePath("host"), Kind: symbols.KindFunction, Functions: symbols.NewFunctionTable(names.MustParsePath("host"))}
	host.Functions.Push(&symbols.Function{Path: host.Path, ArgCount: 1, ArgTypes: []object.Kind{object.NumberKind}, Kind: symbols.HostKind, Public: true})
	mixed := &symbols.Symbol{Path: path, Kind: symbols.KindFunction, Functions: symbols.NewFunctionTable(path)}
	mixed.Functions.Push(script)
	mixed.Functions.Push(&symbols.Function{Path: path, ArgCount: 0, Kind: symbols.IntrinsicKind})

	lib := roundTrip(t, &Library{Symbols: []*symbols.Symbol{host, mixed}})
	require.Len(t, lib.Symbols, 1)
	require.Equal(t, "mixed", lib.Symbols[0].Path.String())
	require.Equal(t, 1, lib.Symbols[0].Functions.Len())
}

func TestUnitClaimsSymbols(t *testing.T) {
	lib := roundTrip(t, Collect(compileUnit(t, source)))
	unit := lib.Unit("geo.eml")
	require.Equal(t, "geo.eml", unit.Name)
	require.Len(t, unit.Order, len(lib.Symbols))
	for _, sym := range unit.Symbols {
		require.Equal(t, unit.ID, sym.Unit)
		if sym.Kind == symbols.KindFunction {
			for _, f := range sym.Functions.Definitions() {
				require.Equal(t, unit.ID, f.Unit)
			}
		}
	}
	require.Same(t, lib.Inits[0], unit.Init)
	require.Len(t, unit.Types(), 1)
}

func TestDecodeRejects(t *testing.T) {
	var buf bytes.Buffer
	require.Nil(t, Encode(&buf, Collect(compileUnit(t, source))))
	data := buf.Bytes()

	_, err := Decode(bytes.NewReader([]byte("ELF\x01")))
	require.True(t, errors.Is(err, ErrNotLibrary))

	newer := append([]byte(nil), data...)
	newer[3] = FormatVersion + 1
	_, err = Decode(bytes.NewReader(newer))
	require.True(t, errors.Is(err, ErrVersion))

	_, err = Decode(bytes.NewReader(data[:len(data)/2]))
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestStats(t *testing.T) {
	unit := compileUnit(t, source)
	stats := Collect(unit).Stats()
	require.Equal(t, 6, stats.Symbols)
	require.Equal(t, 3, stats.Functions)
	require.Greater(t, stats.Instructions, len(unit.Init.Code))
	require.Greater(t, stats.Constants, 0)
}
