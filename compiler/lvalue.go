package compiler

import (
	"github.com/emerald-lang/emerald/ast"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/op"
	"github.com/emerald-lang/emerald/symbols"
	"github.com/emerald-lang/emerald/token"
)

type lvalueKind uint8

const (
	localTarget lvalueKind = iota
	globalTarget
	indexTarget
	propertyTarget
)

// lvalue is an assignable location whose container and key, if any, have
// already been evaluated.
type lvalue struct {
	kind   lvalueKind
	name   string
	typ    valueType
	local  *CompileSymbol
	global int
	obj    operand
	key    operand
	prop   int
}

func (c *Compiler) lvalue(n *ast.Node) *lvalue {
	switch n.Type {
	case ast.Identifier:
		name := names.Intern(n.Str)
		if sym := c.fn.scope.Lookup(name); sym != nil {
			if !sym.Assignable {
				c.errorf(n, "cannot assign to constant %s", n.Str)
				return nil
			}
			c.use(n, sym)
			return &lvalue{kind: localTarget, name: n.Str, typ: valueType{sym.Type, sym.TypeName}, local: sym}
		}
		return c.globalLvalue(n, names.Single(name))
	case ast.Property:
		if path, ok := c.globalPath(n); ok {
			return c.globalLvalue(n, path)
		}
		name := names.Intern(n.Str)
		obj := c.expr(n.Children[0])
		return &lvalue{
			kind: propertyTarget,
			name: n.Str,
			typ:  c.fieldType(n, obj.typ, name),
			obj:  obj,
			prop: c.propertyRef(name),
		}
	case ast.Index:
		obj := c.expr(n.Children[0])
		key := c.expr(n.Children[1])
		c.checkIndex(n, obj.typ, key.typ)
		return &lvalue{kind: indexTarget, name: "element", obj: obj, key: key}
	}
	c.errorf(n, "cannot assign to %s", n.Type)
	return nil
}

func (c *Compiler) globalLvalue(n *ast.Node, rel names.Path) *lvalue {
	sym := c.resolve(rel)
	switch {
	case sym == nil:
		c.undefined(n, rel)
		return nil
	case sym.Kind == symbols.KindStatic:
		c.errorf(n, "cannot assign to constant %s", sym.Path)
		return nil
	case sym.Kind != symbols.KindVariable:
		c.errorf(n, "cannot assign to %s %s", sym.Kind, sym.Path)
		return nil
	}
	n.Symbol = sym
	return &lvalue{
		kind:   globalTarget,
		name:   sym.Path.String(),
		typ:    valueType{sym.Type, sym.TypeName},
		global: c.globalRef(sym.Path),
	}
}

func (c *Compiler) load(lv *lvalue, dst uint8) {
	switch lv.kind {
	case localTarget:
		c.move(dst, lv.local.Register)
	case globalTarget:
		c.emit(op.NewParam(op.LoadSymbol, dst, uint16(lv.global)))
	case indexTarget:
		c.emit(op.New(op.LoadIndex, dst, lv.obj.reg, lv.key.reg))
	case propertyTarget:
		c.emitData(op.New(op.LoadProperty, dst, lv.obj.reg, 0), lv.prop)
	}
}

func (c *Compiler) store(lv *lvalue, src uint8) {
	switch lv.kind {
	case localTarget:
		c.move(lv.local.Register, src)
	case globalTarget:
		c.emit(op.NewParam(op.StoreSymbol, src, uint16(lv.global)))
	case indexTarget:
		c.emit(op.New(op.StoreIndex, src, lv.obj.reg, lv.key.reg))
	case propertyTarget:
		c.emitData(op.New(op.StoreProperty, src, lv.obj.reg, 0), lv.prop)
	}
}

func (c *Compiler) release(lv *lvalue) {
	c.free(lv.key)
	c.free(lv.obj)
}

// overwritesEarly reports whether compiling n straight into a register would
// write that register before every read of it is done.
func overwritesEarly(n *ast.Node) bool {
	switch n.Type {
	case ast.NewObject, ast.Conditional:
		return true
	case ast.Operator:
		return n.Token == token.AND || n.Token == token.OR
	}
	return false
}

// assign compiles an assignment. dst receives the assigned value unless it
// is negative.
func (c *Compiler) assign(n *ast.Node, dst int) valueType {
	target, value := n.Children[0], n.Children[1]
	lv := c.lvalue(target)
	if lv == nil {
		return unknown
	}
	defer c.release(lv)
	if lv.kind == localTarget {
		reg := lv.local.Register
		var t valueType
		if overwritesEarly(value) {
			tmp := c.alloc(value)
			t = c.exprInto(value, tmp)
			c.move(reg, tmp)
			c.fn.regs.FreeRegister(tmp)
		} else {
			t = c.exprInto(value, reg)
		}
		c.checkAssign(value, lv.name, lv.typ, t)
		if dst >= 0 {
			c.move(uint8(dst), reg)
		}
		return t
	}
	v := c.expr(value)
	c.checkAssign(value, lv.name, lv.typ, v.typ)
	c.store(lv, v.reg)
	if dst >= 0 {
		c.move(uint8(dst), v.reg)
	}
	c.free(v)
	return v.typ
}

func (c *Compiler) compoundAssign(n *ast.Node, dst int) valueType {
	tok, ok := compoundOps[n.Token]
	if !ok {
		c.errorf(n, "unknown operator %s", n.Str)
		return unknown
	}
	lv := c.lvalue(n.Children[0])
	if lv == nil {
		return unknown
	}
	defer c.release(lv)
	reg := uint8(0)
	if lv.kind == localTarget {
		reg = lv.local.Register
	} else {
		reg = c.alloc(n)
		defer c.fn.regs.FreeRegister(reg)
		c.load(lv, reg)
	}
	r := c.expr(n.Children[1])
	code, t := c.binary(n, tok, lv.typ, r.typ)
	c.emit(op.New(code, reg, reg, r.reg))
	c.free(r)
	c.checkAssign(n, lv.name, lv.typ, t)
	c.store(lv, reg)
	if dst >= 0 {
		c.move(uint8(dst), reg)
	}
	return t
}

func (c *Compiler) increment(n *ast.Node, dst int) valueType {
	lv := c.lvalue(n.Children[0])
	if lv == nil {
		return unknown
	}
	defer c.release(lv)
	if k := lv.typ.kind; k != object.UndefinedKind && k != object.NumberKind {
		c.errorf(n, "cannot increment %s", k)
	}
	code := op.Increment
	if n.Type == ast.PreDec || n.Type == ast.PostDec {
		code = op.Decrement
	}
	prefix := n.Type == ast.PreInc || n.Type == ast.PreDec

	reg := uint8(0)
	if lv.kind == localTarget {
		reg = lv.local.Register
	} else {
		reg = c.alloc(n)
		defer c.fn.regs.FreeRegister(reg)
		c.load(lv, reg)
	}
	if !prefix && dst >= 0 {
		c.move(uint8(dst), reg)
	}
	c.emit(op.New(code, reg, 0, 0))
	c.store(lv, reg)
	if prefix && dst >= 0 {
		c.move(uint8(dst), reg)
	}
	return known(object.NumberKind)
}
