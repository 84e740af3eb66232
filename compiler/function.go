package compiler

import (
	"math"

	"github.com/emerald-lang/emerald/ast"
	"github.com/emerald-lang/emerald/names"
	"github.com/emerald-lang/emerald/object"
	"github.com/emerald-lang/emerald/op"
	"github.com/emerald-lang/emerald/symbols"
)

// unresolved marks a jump operand that is patched later.
const unresolved = math.MaxUint16

type loop struct {
	breaks    []int
	continues []int
}

type functionRefKey struct {
	path     names.Path
	argc     int
	deferred bool
}

// function is the state of the function being compiled.
type function struct {
	script *symbols.ScriptFunction
	def    *symbols.Function // nil for the unit initializer
	scope  *Scope
	regs   Registers
	loops  []*loop
	line   int
	// overflow is set once register exhaustion has been reported.
	overflow bool

	numbers    map[uint64]int
	strings    map[string]int
	globals    map[names.Path]int
	functions  map[functionRefKey]int
	properties map[names.Name]int
	types      map[names.Path]int
}

func (c *Compiler) beginFunction(name string, def *symbols.Function) {
	c.fn = &function{
		script: &symbols.ScriptFunction{
			Name:      name,
			File:      c.cfg.Filename,
			Namespace: c.namespace,
		},
		def:        def,
		scope:      newScope(nil, true),
		numbers:    map[uint64]int{},
		strings:    map[string]int{},
		globals:    map[names.Path]int{},
		functions:  map[functionRefKey]int{},
		properties: map[names.Name]int{},
		types:      map[names.Path]int{},
	}
	if def != nil {
		c.fn.script.ArgCount = def.ArgCount
	}
}

func (c *Compiler) endFunction() *symbols.ScriptFunction {
	c.emit(op.NewParam(op.ReturnUndefined, 0, 0))
	fn := c.fn
	fn.script.RegisterCount = fn.regs.Count()
	for _, sym := range fn.scope.Symbols() {
		c.unused(sym)
	}
	c.log.Debug().
		Str("function", fn.script.Name).
		Int("registers", fn.script.RegisterCount).
		Int("instructions", len(fn.script.Code)).
		Msg("function compiled")
	c.fn = nil
	return fn.script
}

func (c *Compiler) compileFunction(f *pendingFunction) {
	c.beginFunction(f.fn.Path.String(), f.fn)
	for i, param := range f.node.Child(0).Children {
		reg := c.alloc(param)
		sym := &CompileSymbol{
			Name:       names.Intern(param.Str),
			Register:   reg,
			Assignable: true,
			Declared:   -1,
			LastUse:    -1,
			Type:       f.fn.ArgTypes[i],
		}
		if ref := param.Child(0); ref != nil {
			_, sym.TypeName = c.typeOf(ref)
		}
		if !c.fn.scope.Declare(sym) {
			c.errorf(param, "parameter %s is declared twice", param.Str)
		}
		param.Symbol = sym
	}
	body := f.node.Children[len(f.node.Children)-1]
	for _, stmt := range body.Children {
		c.stmt(stmt)
	}
	f.fn.Script = c.endFunction()
}

// compileInit builds the unit initializer from the top-level statements.
func (c *Compiler) compileInit() *symbols.ScriptFunction {
	c.beginFunction(InitFunctionName, nil)
	for _, s := range c.statements {
		c.declContext = s.declContext
		if s.global != nil {
			c.initGlobal(s)
			continue
		}
		c.stmt(s.node)
	}
	return c.endFunction()
}

func (c *Compiler) initGlobal(s *pendingStatement) {
	init := initializer(s.node)
	if init == nil {
		return
	}
	c.setLine(s.node)
	v := c.expr(init)
	c.checkAssign(init, s.global.Path.String(), valueType{s.global.Type, s.global.TypeName}, v.typ)
	idx := c.globalRef(s.global.Path)
	c.emit(op.NewParam(op.StoreSymbol, v.reg, uint16(idx)))
	c.free(v)
}

func (c *Compiler) unused(sym *CompileSymbol) {
	if sym.LastUse < 0 && sym.Declared >= 0 {
		c.log.Debug().Str("function", c.fn.script.Name).Msgf("local %s is never read", sym.Name)
	}
}

func (c *Compiler) setLine(n *ast.Node) {
	if n != nil && n.Line > 0 {
		c.fn.line = n.Line
	}
}

// emit appends instructions and returns the index of the first.
func (c *Compiler) emit(words ...op.Instruction) int {
	script := c.fn.script
	pos := len(script.Code)
	for _, w := range words {
		script.Code = append(script.Code, w)
		script.Lines = append(script.Lines, int32(c.fn.line))
	}
	return pos
}

// emitData appends an instruction followed by its data word.
func (c *Compiler) emitData(ins op.Instruction, data int) int {
	if data > op.MaxWide {
		c.errorf(nil, "function %s references too many symbols", c.fn.script.Name)
		data = 0
	}
	return c.emit(ins, op.Data(uint32(data)))
}

func (c *Compiler) pc() int {
	return len(c.fn.script.Code)
}

// patchJump points the relative jump at pos to the next instruction.
func (c *Compiler) patchJump(pos int) {
	c.setJump(pos, c.pc())
}

func (c *Compiler) setJump(pos, target int) {
	offset := target - pos
	if offset > math.MaxInt16 || offset < math.MinInt16 {
		c.errorf(nil, "jump in %s is too far", c.fn.script.Name)
		return
	}
	code := c.fn.script.Code
	code[pos] = code[pos].WithParam(uint16(int16(offset)))
}

// emitJumpBack emits an unconditional jump to target.
func (c *Compiler) emitJumpBack(target int) {
	pos := c.emit(op.NewJump(op.Jump, 0, 0))
	c.setJump(pos, target)
}

// placeBreaks resolves the break and continue jumps of a finished loop to
// absolute targets.
func (c *Compiler) placeBreaks(l *loop, continueAt, breakAt int) {
	if continueAt > math.MaxUint16-1 || breakAt > math.MaxUint16-1 {
		c.errorf(nil, "function %s is too long", c.fn.script.Name)
		return
	}
	code := c.fn.script.Code
	for _, pos := range l.breaks {
		code[pos] = code[pos].WithParam(uint16(breakAt))
	}
	for _, pos := range l.continues {
		code[pos] = code[pos].WithParam(uint16(continueAt))
	}
}

// alloc takes the lowest free register.
func (c *Compiler) alloc(n *ast.Node) uint8 {
	reg, ok := c.fn.regs.GetFirstFree()
	if !ok {
		c.registerOverflow(n)
	}
	return reg
}

// reserve takes n contiguous registers above every register in use.
func (c *Compiler) reserve(n *ast.Node, count int) uint8 {
	if count == 0 {
		return 0
	}
	base, ok := c.fn.regs.Reserve(count)
	if !ok {
		c.registerOverflow(n)
		return 0
	}
	return base
}

func (c *Compiler) registerOverflow(n *ast.Node) {
	if c.fn.overflow {
		return
	}
	c.fn.overflow = true
	c.errorf(n, "function %s requires more than %d registers", c.fn.script.Name, MaxRegisters)
}

func (c *Compiler) number(f float64) uint16 {
	key := math.Float64bits(f)
	if idx, ok := c.fn.numbers[key]; ok {
		return uint16(idx)
	}
	idx := len(c.fn.script.Numbers)
	if idx > math.MaxUint16 {
		c.errorf(nil, "function %s has too many number constants", c.fn.script.Name)
		return 0
	}
	c.fn.script.Numbers = append(c.fn.script.Numbers, f)
	c.fn.numbers[key] = idx
	return uint16(idx)
}

func (c *Compiler) str(s string) uint16 {
	if idx, ok := c.fn.strings[s]; ok {
		return uint16(idx)
	}
	idx := len(c.fn.script.Strings)
	if idx > math.MaxUint16 {
		c.errorf(nil, "function %s has too many string constants", c.fn.script.Name)
		return 0
	}
	c.fn.script.Strings = append(c.fn.script.Strings, s)
	c.fn.strings[s] = idx
	return uint16(idx)
}

func (c *Compiler) globalRef(path names.Path) int {
	if idx, ok := c.fn.globals[path]; ok {
		return idx
	}
	idx := len(c.fn.script.Globals)
	if idx > math.MaxUint16 {
		c.errorf(nil, "function %s references too many globals", c.fn.script.Name)
		return 0
	}
	c.fn.script.Globals = append(c.fn.script.Globals, symbols.GlobalRef{Candidates: []names.Path{path}})
	c.fn.globals[path] = idx
	return idx
}

// functionRef records a call target. A resolved target has one candidate;
// a deferred one carries every candidate of the relative path.
func (c *Compiler) functionRef(path names.Path, argc int, deferred bool) int {
	key := functionRefKey{path: path, argc: argc, deferred: deferred}
	if idx, ok := c.fn.functions[key]; ok {
		return idx
	}
	candidates := []names.Path{path}
	if deferred {
		candidates = c.candidates(path)
	}
	idx := len(c.fn.script.Functions)
	c.fn.script.Functions = append(c.fn.script.Functions, symbols.FunctionRef{
		Candidates: candidates,
		ArgCount:   argc,
		From:       c.namespace,
	})
	c.fn.functions[key] = idx
	return idx
}

func (c *Compiler) propertyRef(name names.Name) int {
	if idx, ok := c.fn.properties[name]; ok {
		return idx
	}
	idx := len(c.fn.script.Properties)
	c.fn.script.Properties = append(c.fn.script.Properties, symbols.PropertyRef{Name: name})
	c.fn.properties[name] = idx
	return idx
}

func (c *Compiler) typeRef(path names.Path) uint16 {
	if idx, ok := c.fn.types[path]; ok {
		return uint16(idx)
	}
	idx := len(c.fn.script.Types)
	if idx > math.MaxUint16 {
		c.errorf(nil, "function %s references too many types", c.fn.script.Name)
		return 0
	}
	c.fn.script.Types = append(c.fn.script.Types, symbols.TypeRef{Candidates: []names.Path{path}})
	c.fn.types[path] = idx
	return uint16(idx)
}

// pushScope opens a block scope.
func (c *Compiler) pushScope() {
	c.fn.scope = newScope(c.fn.scope, false)
}

// popScope closes a block scope and frees its locals' registers.
func (c *Compiler) popScope() {
	scope := c.fn.scope
	for _, sym := range scope.Symbols() {
		c.unused(sym)
		c.fn.regs.FreeRegister(sym.Register)
	}
	c.fn.scope = scope.parent
}

// declareLocal binds a local in the current scope.
func (c *Compiler) declareLocal(n *ast.Node, sym *CompileSymbol) bool {
	// A local may not hide a variable of its own unit.
	if path, ok := c.namespace.Append(sym.Name); ok {
		if g := c.unit.Lookup(path); g != nil && (g.Kind == symbols.KindVariable || g.Kind == symbols.KindStatic) {
			c.errorf(n, "%s is already declared as a global", sym.Name)
			return false
		}
	}
	if !c.fn.scope.Declare(sym) {
		c.errorf(n, "%s is already declared", sym.Name)
		return false
	}
	return true
}

// valueType is the static type of an expression. Kind Undefined means the
// type is not known until run time.
type valueType struct {
	kind object.Kind
	name names.Path // object type, when kind is ObjectKind
}

var unknown = valueType{}

func known(k object.Kind) valueType {
	return valueType{kind: k}
}
