package compiler

import (
	"github.com/emerald-lang/emerald/ast"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/op"
	"github.com/emerald-lang/emerald/symbols"
	"github.com/emerald-lang/emerald/token"
)

// operand is a value held in a register. Temporaries are freed by the
// consumer; locals are used in place.
type operand struct {
	reg  uint8
	temp bool
	typ  valueType
}

func (c *Compiler) free(o operand) {
	if o.temp {
		c.fn.regs.FreeRegister(o.reg)
	}
}

func (c *Compiler) move(dst, src uint8) {
	if dst != src {
		c.emit(op.New(op.Move, dst, src, 0))
	}
}

func (c *Compiler) use(n *ast.Node, sym *CompileSymbol) {
	sym.LastUse = c.pc()
	n.Symbol = sym
}

// expr evaluates n into some register.
func (c *Compiler) expr(n *ast.Node) operand {
	if n.Type == ast.Identifier {
		if sym := c.fn.scope.Lookup(names.Intern(n.Str)); sym != nil {
			c.use(n, sym)
			return operand{reg: sym.Register, typ: valueType{sym.Type, sym.TypeName}}
		}
	}
	reg := c.alloc(n)
	t := c.exprInto(n, reg)
	return operand{reg: reg, temp: true, typ: t}
}

// exprInto evaluates n into dst.
func (c *Compiler) exprInto(n *ast.Node, dst uint8) valueType {
	c.setLine(n)
	t := c.value(n, dst)
	n.VarType = t.kind
	return t
}

func (c *Compiler) value(n *ast.Node, dst uint8) valueType {
	switch n.Type {
	case ast.Number:
		c.emit(op.NewParam(op.LoadNumber, dst, c.number(n.Num)))
		return known(object.NumberKind)
	case ast.String:
		c.emit(op.NewParam(op.LoadString, dst, c.str(n.Str)))
		return known(object.StringKind)
	case ast.Boolean:
		var v uint16
		if n.Bool {
			v = 1
		}
		c.emit(op.NewParam(op.LoadBool, dst, v))
		return known(object.BooleanKind)
	case ast.Undefined:
		c.emit(op.New(op.LoadUndefined, dst, 0, 0))
		return unknown
	case ast.Identifier:
		return c.identifier(n, dst)
	case ast.Property:
		return c.property(n, dst)
	case ast.Operator:
		return c.operator(n, dst)
	case ast.Unary:
		return c.unary(n, dst)
	case ast.Assign:
		return c.assign(n, int(dst))
	case ast.CompoundAssign:
		return c.compoundAssign(n, int(dst))
	case ast.PreInc, ast.PreDec, ast.PostInc, ast.PostDec:
		return c.increment(n, int(dst))
	case ast.Conditional:
		return c.conditional(n, dst)
	case ast.Call:
		return c.call(n, dst)
	case ast.Index:
		return c.index(n, dst)
	case ast.Array:
		return c.array(n, dst)
	case ast.NewObject:
		return c.newObject(n, dst)
	}
	c.errorf(n, "unexpected %s in expression", n.Type)
	return unknown
}

func (c *Compiler) identifier(n *ast.Node, dst uint8) valueType {
	name := names.Intern(n.Str)
	if sym := c.fn.scope.Lookup(name); sym != nil {
		c.use(n, sym)
		c.move(dst, sym.Register)
		return valueType{sym.Type, sym.TypeName}
	}
	return c.global(n, names.Single(name), dst)
}

// global loads the global named by the relative path rel.
func (c *Compiler) global(n *ast.Node, rel names.Path, dst uint8) valueType {
	sym := c.resolve(rel)
	if sym == nil {
		c.undefined(n, rel)
		return unknown
	}
	n.Symbol = sym
	switch sym.Kind {
	case symbols.KindVariable, symbols.KindStatic:
		c.emit(op.NewParam(op.LoadSymbol, dst, uint16(c.globalRef(sym.Path))))
		return valueType{sym.Type, sym.TypeName}
	case symbols.KindFunction:
		c.emitData(op.New(op.LoadFunction, dst, 0, 0), c.functionRef(sym.Path, 0, false))
		return known(object.FunctionKind)
	}
	c.errorf(n, "%s %s cannot be used as a value", sym.Kind, sym.Path)
	return unknown
}

// flatten returns the dotted path of an identifier or property chain.
func flatten(n *ast.Node) (names.Path, bool) {
	switch {
	case n == nil:
		return names.Root, false
	case n.Type == ast.Identifier:
		return names.Single(names.Intern(n.Str)), true
	case n.Type == ast.Property:
		parent, ok := flatten(n.Child(0))
		if !ok {
			return names.Root, false
		}
		return parent.Append(names.Intern(n.Str))
	}
	return names.Root, false
}

// rootIdentifier returns the identifier a property chain starts from.
func rootIdentifier(n *ast.Node) *ast.Node {
	for n != nil && n.Type == ast.Property {
		n = n.Child(0)
	}
	if n != nil && n.Type == ast.Identifier {
		return n
	}
	return nil
}

// globalPath reports whether a property chain names a global, such as a
// namespaced variable, rather than a field access.
func (c *Compiler) globalPath(n *ast.Node) (names.Path, bool) {
	root := rootIdentifier(n)
	if root == nil || c.fn.scope.Lookup(names.Intern(root.Str)) != nil {
		return names.Root, false
	}
	path, ok := flatten(n)
	if !ok || c.resolve(path) == nil {
		return names.Root, false
	}
	return path, true
}

func (c *Compiler) property(n *ast.Node, dst uint8) valueType {
	if path, ok := c.globalPath(n); ok {
		return c.global(n, path, dst)
	}
	name := names.Intern(n.Str)
	obj := c.expr(n.Children[0])
	t := c.fieldType(n, obj.typ, name)
	c.emitData(op.New(op.LoadProperty, dst, obj.reg, 0), c.propertyRef(name))
	c.free(obj)
	return t
}

// fieldType checks a field access against the static type of the object.
func (c *Compiler) fieldType(n *ast.Node, objType valueType, name names.Name) valueType {
	switch objType.kind {
	case object.UndefinedKind:
		return unknown
	case object.ObjectKind:
		typ := c.userType(objType.name)
		if typ == nil {
			return unknown
		}
		i := typ.FieldIndex(name)
		if i < 0 {
			c.errorf(n, "type %s has no field %s", typ.Path, name)
			return unknown
		}
		return valueType{typ.Fields[i].Type, typ.Fields[i].TypeName}
	}
	c.errorf(n, "%s has no field %s", objType.kind, name)
	return unknown
}

var arithmeticOps = map[token.Kind]op.Code{
	token.PLUS:    op.Add,
	token.MINUS:   op.Sub,
	token.STAR:    op.Mul,
	token.SLASH:   op.Div,
	token.PERCENT: op.Mod,
	token.EQ:      op.Equal,
	token.NOT_EQ:  op.NotEqual,
	token.LT:      op.Less,
	token.LT_EQ:   op.LessEqual,
	token.GT:      op.Greater,
	token.GT_EQ:   op.GreaterEqual,
}

var compoundOps = map[token.Kind]token.Kind{
	token.PLUS_ASSIGN:    token.PLUS,
	token.MINUS_ASSIGN:   token.MINUS,
	token.STAR_ASSIGN:    token.STAR,
	token.SLASH_ASSIGN:   token.SLASH,
	token.PERCENT_ASSIGN: token.PERCENT,
}

// binary returns the opcode for a binary operator and its result type,
// reporting operands whose static types do not fit.
func (c *Compiler) binary(n *ast.Node, tok token.Kind, l, r valueType) (op.Code, valueType) {
	code, ok := arithmeticOps[tok]
	if !ok {
		c.errorf(n, "unknown operator %s", tok)
		return op.Noop, unknown
	}
	lk, rk := l.kind, r.kind
	bothKnown := lk != object.UndefinedKind && rk != object.UndefinedKind
	switch tok {
	case token.PLUS:
		switch {
		case lk == object.StringKind || rk == object.StringKind:
			return code, known(object.StringKind)
		case lk == object.NumberKind && rk == object.NumberKind:
			return code, known(object.NumberKind)
		case lk != object.UndefinedKind && lk != object.NumberKind,
			rk != object.UndefinedKind && rk != object.NumberKind:
			c.errorf(n, "cannot add %s and %s", lk, rk)
		}
		return code, unknown
	case token.MINUS, token.STAR, token.SLASH, token.PERCENT:
		for _, k := range []object.Kind{lk, rk} {
			if k != object.UndefinedKind && k != object.NumberKind {
				c.errorf(n, "operator %s requires numbers, not %s", n.Str, k)
				break
			}
		}
		return code, known(object.NumberKind)
	case token.EQ, token.NOT_EQ:
		if bothKnown && lk != rk {
			c.errorf(n, "cannot compare %s and %s", lk, rk)
		}
	default:
		if bothKnown && (lk != rk || (lk != object.NumberKind && lk != object.StringKind)) {
			c.errorf(n, "cannot compare %s and %s", lk, rk)
		}
	}
	return code, known(object.BooleanKind)
}

func (c *Compiler) operator(n *ast.Node, dst uint8) valueType {
	if n.Token == token.AND || n.Token == token.OR {
		return c.logical(n, dst)
	}
	l := c.expr(n.Children[0])
	r := c.expr(n.Children[1])
	code, t := c.binary(n, n.Token, l.typ, r.typ)
	c.emit(op.New(code, dst, l.reg, r.reg))
	c.free(r)
	c.free(l)
	return t
}

// logical compiles && and || with short-circuit evaluation. The result is
// the last operand evaluated.
func (c *Compiler) logical(n *ast.Node, dst uint8) valueType {
	l := c.exprInto(n.Children[0], dst)
	jump := op.JumpIfFalse
	if n.Token == token.OR {
		jump = op.JumpIfTrue
	}
	pos := c.emit(op.NewJump(jump, dst, 0))
	r := c.exprInto(n.Children[1], dst)
	c.patchJump(pos)
	if l.kind == object.BooleanKind && r.kind == object.BooleanKind {
		return known(object.BooleanKind)
	}
	return unknown
}

func (c *Compiler) unary(n *ast.Node, dst uint8) valueType {
	x := c.expr(n.Children[0])
	defer c.free(x)
	switch n.Token {
	case token.MINUS:
		if k := x.typ.kind; k != object.UndefinedKind && k != object.NumberKind {
			c.errorf(n, "cannot negate %s", k)
		}
		c.emit(op.New(op.Negate, dst, x.reg, 0))
		return known(object.NumberKind)
	case token.BANG:
		c.emit(op.New(op.Not, dst, x.reg, 0))
		return known(object.BooleanKind)
	}
	c.errorf(n, "unknown unary operator %s", n.Str)
	return unknown
}

func (c *Compiler) conditional(n *ast.Node, dst uint8) valueType {
	skip := c.condition(n.Children[0])
	a := c.exprInto(n.Children[1], dst)
	end := c.emit(op.NewJump(op.Jump, 0, 0))
	c.patchJump(skip)
	b := c.exprInto(n.Children[2], dst)
	c.patchJump(end)
	if a == b {
		return a
	}
	return unknown
}

func (c *Compiler) index(n *ast.Node, dst uint8) valueType {
	x := c.expr(n.Children[0])
	i := c.expr(n.Children[1])
	c.checkIndex(n, x.typ, i.typ)
	c.emit(op.New(op.LoadIndex, dst, x.reg, i.reg))
	c.free(i)
	c.free(x)
	return unknown
}

func (c *Compiler) checkIndex(n *ast.Node, x, i valueType) {
	if x.kind != object.UndefinedKind && x.kind != object.ArrayKind {
		c.errorf(n, "cannot index %s", x.kind)
	}
	if i.kind != object.UndefinedKind && i.kind != object.NumberKind {
		c.errorf(n, "array index must be a number, not %s", i.kind)
	}
}

func (c *Compiler) array(n *ast.Node, dst uint8) valueType {
	count := len(n.Children)
	if count > MaxRegisters-1 {
		c.errorf(n, "array literal has more than %d items", MaxRegisters-1)
		return known(object.ArrayKind)
	}
	base := c.reserve(n, count)
	for i, item := range n.Children {
		c.exprInto(item, base+uint8(i))
	}
	c.emit(op.New(op.NewArray, dst, base, uint8(count)))
	c.fn.regs.FreeRange(base, count)
	return known(object.ArrayKind)
}

func (c *Compiler) newObject(n *ast.Node, dst uint8) valueType {
	path, ok := c.pathOf(n.Children[0])
	if !ok {
		return unknown
	}
	sym := c.resolve(path)
	if sym == nil || sym.Kind != symbols.KindObject {
		c.errorf(n, "unknown type %s", path)
		return unknown
	}
	typ := sym.Object
	c.emit(op.NewParam(op.PushObjectDefault, dst, c.typeRef(sym.Path)))
	for _, init := range n.Children[1:] {
		name := names.Intern(init.Str)
		i := typ.FieldIndex(name)
		if i < 0 {
			c.errorf(init, "type %s has no field %s", typ.Path, init.Str)
			continue
		}
		v := c.expr(init.Children[0])
		field := typ.Fields[i]
		c.checkAssign(init, init.Str, valueType{field.Type, field.TypeName}, v.typ)
		c.emitData(op.New(op.StoreProperty, v.reg, dst, 0), c.propertyRef(name))
		c.free(v)
	}
	return valueType{object.ObjectKind, sym.Path}
}

// calleePath returns the global path a call names, or false when the callee
// is a value: a local, a property of a variable or any other expression.
func (c *Compiler) calleePath(callee *ast.Node) (names.Path, bool) {
	root := rootIdentifier(callee)
	if root == nil {
		return names.Root, false
	}
	rootName := names.Intern(root.Str)
	if c.fn.scope.Lookup(rootName) != nil {
		return names.Root, false
	}
	if callee != root {
		if sym := c.resolve(names.Single(rootName)); sym != nil &&
			(sym.Kind == symbols.KindVariable || sym.Kind == symbols.KindStatic) {
			return names.Root, false
		}
	}
	return flatten(callee)
}

func (c *Compiler) call(n *ast.Node, dst uint8) valueType {
	callee, args := n.Children[0], n.Children[1:]
	if len(args) > MaxRegisters-1 {
		c.errorf(n, "call has more than %d arguments", MaxRegisters-1)
		return unknown
	}
	if path, ok := c.calleePath(callee); ok {
		sym := c.resolve(path)
		switch {
		case sym == nil:
			c.warnf(callee, "function %s is not defined yet; it will be resolved at run time", path)
			return c.callFunction(n, path, nil, args, dst)
		case sym.Kind == symbols.KindFunction:
			callee.Symbol = sym
			return c.callFunction(n, sym.Path, sym, args, dst)
		case sym.Kind != symbols.KindVariable && sym.Kind != symbols.KindStatic:
			c.errorf(callee, "cannot call %s %s", sym.Kind, sym.Path)
			return unknown
		}
	}
	fn := c.expr(callee)
	if k := fn.typ.kind; k != object.UndefinedKind && k != object.FunctionKind {
		c.errorf(callee, "cannot call %s", k)
	}
	base := c.args(n, args, nil)
	c.emitData(op.New(op.CallSymbol, dst, base, uint8(len(args))), int(fn.reg))
	c.fn.regs.FreeRange(base, len(args))
	c.free(fn)
	return unknown
}

// callFunction emits a call to a named function. A nil sym defers the
// lookup to run time.
func (c *Compiler) callFunction(n *ast.Node, path names.Path, sym *symbols.Symbol, args []*ast.Node, dst uint8) valueType {
	var def *symbols.Function
	if sym != nil {
		def = sym.Functions.GetFirstFitting(len(args))
		if def == nil {
			c.errorf(n, "no overload of %s takes %d arguments", path, len(args))
		}
	}
	base := c.args(n, args, def)
	idx := c.functionRef(path, len(args), sym == nil)
	c.emitData(op.New(op.CallFunction, dst, base, uint8(len(args))), idx)
	c.fn.regs.FreeRange(base, len(args))
	if def != nil {
		return known(def.ReturnType)
	}
	return unknown
}

// args evaluates call arguments into a fresh contiguous run of registers.
func (c *Compiler) args(n *ast.Node, args []*ast.Node, def *symbols.Function) uint8 {
	base := c.reserve(n, len(args))
	for i, arg := range args {
		t := c.exprInto(arg, base+uint8(i))
		if def == nil || i >= len(def.ArgTypes) {
			continue
		}
		if want := def.ArgTypes[i]; want != object.UndefinedKind && t.kind != object.UndefinedKind && want != t.kind {
			c.errorf(arg, "argument %d of %s must be %s, not %s", i+1, def.Path, want, t.kind)
		}
	}
	return base
}

func (c *Compiler) checkAssign(n *ast.Node, name string, want, got valueType) {
	if want.kind == object.UndefinedKind || got.kind == object.UndefinedKind {
		return
	}
	if want.kind != got.kind {
		c.errorf(n, "cannot assign %s to %s %s", got.kind, want.kind, name)
		return
	}
	if want.kind == object.ObjectKind && !want.name.IsRoot() && !got.name.IsRoot() && want.name != got.name {
		c.errorf(n, "cannot assign %s to %s %s", got.name, want.name, name)
	}
}
