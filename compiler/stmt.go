package compiler

import (
	"github.com/emerald-lang/emerald/ast"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/op"
)

func (c *Compiler) stmt(n *ast.Node) {
	c.setLine(n)
	switch n.Type {
	case ast.Empty:
	case ast.VarDecl, ast.ConstDecl:
		c.localDecl(n)
	case ast.Scope:
		c.pushScope()
		for _, s := range n.Children {
			c.stmt(s)
		}
		c.popScope()
	case ast.If:
		c.ifStmt(n)
	case ast.While:
		c.whileStmt(n)
	case ast.For:
		c.forStmt(n)
	case ast.Return:
		c.returnStmt(n)
	case ast.Break, ast.Continue:
		c.jumpStmt(n)
	case ast.Assign:
		c.assign(n, -1)
	case ast.CompoundAssign:
		c.compoundAssign(n, -1)
	case ast.PreInc, ast.PreDec, ast.PostInc, ast.PostDec:
		c.increment(n, -1)
	case ast.Function, ast.PublicFunction, ast.ObjectDecl, ast.Namespace, ast.Using:
		c.errorf(n, "%s is only allowed at unit level", describeNode(n))
	default:
		c.free(c.expr(n))
	}
}

func describeNode(n *ast.Node) string {
	switch n.Type {
	case ast.Function, ast.PublicFunction:
		return "function declaration"
	case ast.ObjectDecl:
		return "object declaration"
	case ast.Namespace:
		return "namespace"
	case ast.Using:
		return "using"
	}
	return n.Type.String()
}

func (c *Compiler) localDecl(n *ast.Node) {
	sym := &CompileSymbol{
		Name:       names.Intern(n.Str),
		Assignable: n.Type == ast.VarDecl,
		LastUse:    -1,
	}
	if ref := annotation(n); ref != nil {
		sym.Type, sym.TypeName = c.typeOf(ref)
	}
	init := initializer(n)
	reg := c.alloc(n)
	if init == nil {
		if !sym.Assignable {
			c.errorf(n, "constant %s requires a value", n.Str)
		}
		c.emit(op.New(op.LoadUndefined, reg, 0, 0))
	} else {
		t := c.exprInto(init, reg)
		c.checkAssign(init, n.Str, valueType{sym.Type, sym.TypeName}, t)
		if !sym.Assignable && sym.Type == object.UndefinedKind {
			sym.Type, sym.TypeName = t.kind, t.name
		}
	}
	sym.Register = reg
	sym.Declared = c.pc()
	if !c.declareLocal(n, sym) {
		c.fn.regs.FreeRegister(reg)
		return
	}
	n.Symbol = sym
}

// condition compiles a branch condition and emits a jump that is taken when
// it is false. The jump's position is returned for patching.
func (c *Compiler) condition(cond *ast.Node) int {
	v := c.expr(cond)
	pos := c.emit(op.NewJump(op.JumpIfFalse, v.reg, 0))
	c.free(v)
	return pos
}

func (c *Compiler) ifStmt(n *ast.Node) {
	skip := c.condition(n.Children[0])
	c.stmt(n.Children[1])
	alternative := n.Child(2)
	if alternative == nil {
		c.patchJump(skip)
		return
	}
	end := c.emit(op.NewJump(op.Jump, 0, 0))
	c.patchJump(skip)
	c.stmt(alternative)
	c.patchJump(end)
}

func (c *Compiler) whileStmt(n *ast.Node) {
	l := &loop{}
	start := c.pc()
	exit := c.condition(n.Children[0])
	c.fn.loops = append(c.fn.loops, l)
	c.stmt(n.Children[1])
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]
	c.emitJumpBack(start)
	c.patchJump(exit)
	c.placeBreaks(l, start, c.pc())
}

func (c *Compiler) forStmt(n *ast.Node) {
	init, cond, step, body := n.Children[0], n.Children[1], n.Children[2], n.Children[3]
	c.pushScope()
	c.stmt(init)
	l := &loop{}
	start := c.pc()
	exit := -1
	if cond.Type != ast.Empty {
		exit = c.condition(cond)
	}
	c.fn.loops = append(c.fn.loops, l)
	c.stmt(body)
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]
	next := c.pc()
	c.stmt(step)
	c.emitJumpBack(start)
	if exit >= 0 {
		c.patchJump(exit)
	}
	c.placeBreaks(l, next, c.pc())
	c.popScope()
}

func (c *Compiler) jumpStmt(n *ast.Node) {
	if len(c.fn.loops) == 0 {
		c.errorf(n, "%s outside of a loop", describeJump(n))
		return
	}
	l := c.fn.loops[len(c.fn.loops)-1]
	pos := c.emit(op.NewParam(op.JumpTo, 0, unresolved))
	if n.Type == ast.Break {
		l.breaks = append(l.breaks, pos)
	} else {
		l.continues = append(l.continues, pos)
	}
}

func describeJump(n *ast.Node) string {
	if n.Type == ast.Break {
		return "break"
	}
	return "continue"
}

func (c *Compiler) returnStmt(n *ast.Node) {
	value := n.Child(0)
	if value == nil {
		c.emit(op.NewParam(op.ReturnUndefined, 0, 0))
		return
	}
	v := c.expr(value)
	if def := c.fn.def; def != nil && def.ReturnType != object.UndefinedKind {
		if v.typ.kind != object.UndefinedKind && v.typ.kind != def.ReturnType {
			c.errorf(value, "function %s returns %s, not %s", def.Path, def.ReturnType, v.typ.kind)
		}
	}
	c.emit(op.New(op.Return, v.reg, 0, 0))
	c.free(v)
}
