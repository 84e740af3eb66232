// Package compiler turns an optimized syntax tree into register bytecode.
//
// # Passes
//
// A unit is compiled in two passes. The first walks the top-level
// declarations and registers every namespace, object type, function and
// global variable the unit defines, so bodies may refer to declarations that
// appear later in the source. The second pass compiles each function body
// and then the unit's initializer, which holds the top-level statements and
// the initial values of global variables.
//
// # Names
//
// An unqualified name is looked up in the lexical scopes of the current
// function first. Otherwise it is tried as a global, relative to the current
// namespace, then to every namespace imported with `using` (in order), and
// finally from the root. The unit being compiled is consulted before the
// live global table. Calls to functions that cannot be found yet are
// resolved at run time by the same rules.
//
// # Registers
//
// Each function has 256 registers. Locals keep a register for the lifetime
// of their block; temporaries are freed as soon as they are consumed. Call
// arguments occupy a contiguous run above every register in use.
package compiler

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/emerald-lang/emerald/ast"
	"github.com/emerald-lang/emerald/errz"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/symbols"
)

// InitFunctionName is the name of a unit's initializer.
const InitFunctionName = "<init>"

// Config holds compiler configuration options.
type Config struct {
	// Filename is the source filename, used in diagnostics and debug info.
	Filename string

	// Source is the original source code, quoted in diagnostics.
	Source string

	// Globals is the live symbol table. Names not declared by the unit are
	// resolved against it. May be nil.
	Globals *symbols.Table

	// Logger receives compile diagnostics.
	Logger zerolog.Logger
}

// declContext is the namespace and imports in effect for a declaration.
type declContext struct {
	namespace names.Path
	usings    []names.Path
}

type pendingFunction struct {
	declContext
	node *ast.Node
	fn   *symbols.Function
}

type pendingObject struct {
	declContext
	node *ast.Node
	typ  *symbols.UserDefinedType
}

type pendingStatement struct {
	declContext
	node   *ast.Node
	global *symbols.Symbol // set for unit-level variable declarations
}

// Compiler compiles one unit. A Compiler must not be reused.
type Compiler struct {
	cfg  Config
	log  zerolog.Logger
	unit *symbols.Unit
	errs *multierror.Error

	declContext
	objects    []*pendingObject
	functions  []*pendingFunction
	statements []*pendingStatement

	fn *function
}

// New returns a compiler for one unit.
func New(cfg Config) *Compiler {
	name := cfg.Filename
	if name == "" {
		name = "<unit>"
	}
	return &Compiler{
		cfg:  cfg,
		log:  cfg.Logger.With().Str("file", name).Logger(),
		unit: symbols.NewUnit(name),
	}
}

// Compile compiles the unit rooted at root. On failure the returned error is
// a *multierror.Error holding every diagnostic and no unit is returned.
func Compile(root *ast.Node, cfg Config) (*symbols.Unit, error) {
	return New(cfg).Compile(root)
}

// Compile compiles the unit rooted at root.
func (c *Compiler) Compile(root *ast.Node) (*symbols.Unit, error) {
	if root == nil || root.Type != ast.Unit {
		return nil, fmt.Errorf("compile: expected a unit node")
	}
	c.collect(root.Children)
	for _, o := range c.objects {
		c.declContext = o.declContext
		c.defineFields(o)
	}
	for _, f := range c.functions {
		c.declContext = f.declContext
		c.signature(f)
	}
	for _, s := range c.statements {
		if s.global != nil {
			c.declContext = s.declContext
			c.globalType(s)
		}
	}
	for _, f := range c.functions {
		c.declContext = f.declContext
		c.compileFunction(f)
	}
	c.declContext = declContext{}
	c.unit.Init = c.compileInit()

	// The tree is not needed once code is emitted.
	root.Children = nil

	if c.HasError() {
		return nil, c.errs.ErrorOrNil()
	}
	c.log.Debug().
		Int("symbols", len(c.unit.Order)).
		Int("functions", len(c.functions)).
		Msg("unit compiled")
	return c.unit, nil
}

// HasError reports whether any diagnostic was raised.
func (c *Compiler) HasError() bool {
	return c.errs != nil && len(c.errs.Errors) > 0
}

// Errors returns the diagnostics raised so far.
func (c *Compiler) Errors() []error {
	if c.errs == nil {
		return nil
	}
	return c.errs.Errors
}

func (c *Compiler) location(n *ast.Node) errz.SourceLocation {
	loc := errz.SourceLocation{Filename: c.cfg.Filename}
	if n != nil {
		loc.Line, loc.Column = n.Line, n.Column
		loc.Source = errz.LineOf(c.cfg.Source, n.Line)
	}
	return loc
}

func (c *Compiler) errorf(n *ast.Node, format string, args ...any) *errz.Error {
	err := errz.CompileErrorf(c.location(n), format, args...)
	c.errs = multierror.Append(c.errs, err)
	ev := c.log.Error().Int("line", err.Location.Line)
	if c.fn != nil {
		ev = ev.Str("function", c.fn.script.Name)
	}
	ev.Msg(err.Message)
	return err
}

// undefined reports rel as unknown and hints at similarly named locals.
func (c *Compiler) undefined(n *ast.Node, rel names.Path) {
	err := c.errorf(n, "undefined symbol %s", rel)
	if c.fn != nil && rel.Len() == 1 {
		err.Hint = errz.FormatSuggestions(errz.SuggestSimilar(rel.String(), c.fn.scope.Names()))
	}
}

func (c *Compiler) warnf(n *ast.Node, format string, args ...any) {
	ev := c.log.Warn()
	if n != nil {
		ev = ev.Int("line", n.Line)
	}
	if c.fn != nil {
		ev = ev.Str("function", c.fn.script.Name)
	}
	ev.Msgf(format, args...)
}

// collect runs the declaration pass over a list of unit-level nodes.
func (c *Compiler) collect(decls []*ast.Node) {
	for _, n := range decls {
		switch n.Type {
		case ast.Namespace:
			c.collectNamespace(n)
		case ast.Using:
			if path, ok := c.pathOf(n.Child(0)); ok {
				c.usings = append(c.usings, path)
			}
		case ast.Function, ast.PublicFunction:
			c.declareFunction(n)
		case ast.ObjectDecl:
			c.declareObject(n)
		case ast.VarDecl, ast.ConstDecl:
			c.declareGlobal(n)
		default:
			c.statements = append(c.statements, &pendingStatement{declContext: c.snapshot(), node: n})
		}
	}
}

func (c *Compiler) collectNamespace(n *ast.Node) {
	rel, ok := c.pathOf(n.Child(0))
	if !ok {
		return
	}
	path, ok := c.namespace.Join(rel)
	if !ok {
		c.errorf(n, "namespace %s.%s is nested too deeply", c.namespace, rel)
		return
	}
	for p := path; !p.IsRoot(); p = p.Parent() {
		if existing := c.unit.Lookup(p); existing != nil {
			if existing.Kind != symbols.KindNamespace {
				c.errorf(n, "%s is already declared as a %s", p, existing.Kind)
				return
			}
			continue
		}
		c.unit.Add(symbols.NewNamespace(p, c.unit.ID))
	}
	saved := c.declContext
	c.namespace = path
	c.usings = append([]names.Path(nil), saved.usings...)
	c.collect(n.Children[1:])
	c.declContext = saved
}

func (c *Compiler) snapshot() declContext {
	return declContext{namespace: c.namespace, usings: append([]names.Path(nil), c.usings...)}
}

// qualify returns the path of a declaration named name in the current
// namespace.
func (c *Compiler) qualify(n *ast.Node, name string) (names.Path, bool) {
	path, ok := c.namespace.Append(names.Intern(name))
	if !ok {
		c.errorf(n, "%s.%s is nested too deeply", c.namespace, name)
	}
	return path, ok
}

func (c *Compiler) declareFunction(n *ast.Node) {
	path, ok := c.qualify(n, n.Str)
	if !ok {
		return
	}
	params := n.Child(0)
	fn := &symbols.Function{
		Path:      path,
		Namespace: c.namespace,
		ArgCount:  len(params.Children),
		Public:    n.Type == ast.PublicFunction,
		Kind:      symbols.ScriptKind,
		Unit:      c.unit.ID,
	}
	sym := c.unit.Lookup(path)
	switch {
	case sym == nil:
		sym = &symbols.Symbol{
			Path:      path,
			Kind:      symbols.KindFunction,
			Flags:     symbols.Public,
			Unit:      c.unit.ID,
			Functions: symbols.NewFunctionTable(path),
		}
		c.unit.Add(sym)
	case sym.Kind != symbols.KindFunction:
		c.errorf(n, "%s is already declared as a %s", path, sym.Kind)
		return
	default:
		for _, other := range sym.Functions.Overloads() {
			if other.ArgCount == fn.ArgCount {
				c.errorf(n, "function %s with %d arguments is already declared", path, fn.ArgCount)
				return
			}
		}
	}
	sym.Functions.Push(fn)
	c.functions = append(c.functions, &pendingFunction{declContext: c.snapshot(), node: n, fn: fn})
}

func (c *Compiler) declareObject(n *ast.Node) {
	path, ok := c.qualify(n, n.Str)
	if !ok {
		return
	}
	if existing := c.unit.Lookup(path); existing != nil {
		c.errorf(n, "%s is already declared as a %s", path, existing.Kind)
		return
	}
	typ := &symbols.UserDefinedType{Path: path}
	c.unit.Add(&symbols.Symbol{
		Path:   path,
		Kind:   symbols.KindObject,
		Flags:  symbols.Public,
		Type:   object.ObjectKind,
		Unit:   c.unit.ID,
		Object: typ,
	})
	c.objects = append(c.objects, &pendingObject{declContext: c.snapshot(), node: n, typ: typ})
}

func (c *Compiler) declareGlobal(n *ast.Node) {
	path, ok := c.qualify(n, n.Str)
	if !ok {
		return
	}
	if existing := c.unit.Lookup(path); existing != nil {
		c.errorf(n, "%s is already declared as a %s", path, existing.Kind)
		return
	}
	sym := &symbols.Symbol{
		Path:     path,
		Kind:     symbols.KindVariable,
		Flags:    symbols.Assignable | symbols.Public,
		Unit:     c.unit.ID,
		Variable: &symbols.Variable{},
	}
	if n.Type == ast.ConstDecl {
		sym.Kind = symbols.KindStatic
		sym.Flags = symbols.Public
		if initializer(n) == nil {
			c.errorf(n, "constant %s requires a value", n.Str)
		}
	}
	c.unit.Add(sym)
	c.statements = append(c.statements, &pendingStatement{declContext: c.snapshot(), node: n, global: sym})
}

// globalType fixes the static type of a unit-level variable.
func (c *Compiler) globalType(s *pendingStatement) {
	sym := s.global
	if ref := annotation(s.node); ref != nil {
		sym.Type, sym.TypeName = c.typeOf(ref)
		sym.Flags |= symbols.Typed
	} else if sym.Kind == symbols.KindStatic {
		if init := initializer(s.node); init != nil && init.IsLiteral() {
			sym.Type = init.LiteralKind()
		}
	}
}

func (c *Compiler) defineFields(o *pendingObject) {
	seen := map[names.Name]bool{}
	for _, field := range o.node.Children {
		if field.Type != ast.VarDecl && field.Type != ast.ConstDecl {
			c.errorf(field, "unexpected %s in object %s", field.Type, o.typ.Path)
			continue
		}
		name := names.Intern(field.Str)
		if seen[name] {
			c.errorf(field, "field %s is declared twice in %s", field.Str, o.typ.Path)
			continue
		}
		seen[name] = true
		f := symbols.Field{Name: name}
		if ref := annotation(field); ref != nil {
			f.Type, f.TypeName = c.typeOf(ref)
		}
		if init := initializer(field); init != nil {
			if !init.IsLiteral() {
				c.errorf(init, "default value of field %s must be a constant", field.Str)
				continue
			}
			f.Default = symbols.Constant{Kind: init.LiteralKind(), Number: init.Num, Bool: init.Bool, String: init.Str}
			if f.Type == object.UndefinedKind {
				f.Type = f.Default.Kind
			} else if f.Default.Kind != object.UndefinedKind && f.Default.Kind != f.Type {
				c.errorf(init, "cannot use %s as default of %s field %s", f.Default.Kind, f.Type, field.Str)
			}
		}
		o.typ.Fields = append(o.typ.Fields, f)
	}
}

func (c *Compiler) signature(f *pendingFunction) {
	for _, param := range f.node.Child(0).Children {
		var kind object.Kind
		if ref := param.Child(0); ref != nil {
			kind, _ = c.typeOf(ref)
		}
		f.fn.ArgTypes = append(f.fn.ArgTypes, kind)
	}
	if ref := f.node.Child(1); ref != nil && ref.Type == ast.TypeRef {
		f.fn.ReturnType, _ = c.typeOf(ref)
	}
}

// annotation returns the TypeRef child of a declaration, if any.
func annotation(n *ast.Node) *ast.Node {
	if first := n.Child(0); first != nil && first.Type == ast.TypeRef {
		return first
	}
	return nil
}

// initializer returns the value expression of a declaration, if any.
func initializer(n *ast.Node) *ast.Node {
	for _, child := range n.Children {
		if child.Type != ast.TypeRef {
			return child
		}
	}
	return nil
}

// pathOf flattens an identifier or a chain of property accesses.
func (c *Compiler) pathOf(n *ast.Node) (names.Path, bool) {
	if n == nil {
		return names.Root, false
	}
	switch n.Type {
	case ast.Identifier:
		return names.Single(names.Intern(n.Str)), true
	case ast.Property:
		parent, ok := c.pathOf(n.Child(0))
		if !ok {
			return names.Root, false
		}
		path, ok := parent.Append(names.Intern(n.Str))
		if !ok {
			c.errorf(n, "%s.%s has too many segments", parent, n.Str)
		}
		return path, ok
	}
	return names.Root, false
}

// candidates lists the global paths a relative path may refer to, in
// resolution order.
func (c *Compiler) candidates(rel names.Path) []names.Path {
	var out []names.Path
	add := func(p names.Path, ok bool) {
		if !ok {
			return
		}
		for _, q := range out {
			if q == p {
				return
			}
		}
		out = append(out, p)
	}
	if !c.namespace.IsRoot() {
		add(c.namespace.Join(rel))
	}
	for _, u := range c.usings {
		add(u.Join(rel))
	}
	add(rel, true)
	return out
}

// lookup finds a global by exact path, preferring the unit's own symbols.
func (c *Compiler) lookup(path names.Path) *symbols.Symbol {
	if sym := c.unit.Lookup(path); sym != nil {
		return sym
	}
	if c.cfg.Globals != nil {
		return c.cfg.Globals.Lookup(path)
	}
	return nil
}

// resolve returns the first candidate for rel that names a symbol.
func (c *Compiler) resolve(rel names.Path) *symbols.Symbol {
	for _, p := range c.candidates(rel) {
		if sym := c.lookup(p); sym != nil {
			return sym
		}
	}
	return nil
}

// typeOf resolves a type annotation.
func (c *Compiler) typeOf(ref *ast.Node) (object.Kind, names.Path) {
	path, ok := c.pathOf(ref.Child(0))
	if !ok {
		c.errorf(ref, "invalid type annotation")
		return object.UndefinedKind, names.Root
	}
	if path.Len() == 1 {
		name := path.Last().String()
		if name == "boolean" {
			return object.BooleanKind, names.Root
		}
		if kind, ok := object.ParseKind(name); ok {
			return kind, names.Root
		}
	}
	if sym := c.resolve(path); sym != nil && sym.Kind == symbols.KindObject {
		return object.ObjectKind, sym.Path
	}
	c.errorf(ref, "unknown type %s", path)
	return object.UndefinedKind, names.Root
}

// userType returns the object type at path.
func (c *Compiler) userType(path names.Path) *symbols.UserDefinedType {
	if path.IsRoot() {
		return nil
	}
	if sym := c.lookup(path); sym != nil && sym.Kind == symbols.KindObject {
		return sym.Object
	}
	return nil
}
