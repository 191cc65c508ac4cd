package compiler

import (
	"fmt"

	"github.com/chazu/abacus/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to instruction units
// ---------------------------------------------------------------------------

// maxSlots is the number of local slots an 8-bit slot operand can address.
const maxSlots = 256

// maxParams is bounded by the u8 operands of ARG_F64_U8 and RET_F64.
const maxParams = 255

// Compiler turns one function body into instruction units, using the body's
// resolved Scope for locals and the program's FuncTable for calls.
type Compiler struct {
	fn    *Function
	scope *Scope
	funcs *FuncTable
}

// CompileMain compiles the top-level body. Its frame starts at the bottom
// of the stack, so it needs no SET_CTX; it ends with FINISH_F64 so the
// final value reaches the host.
func CompileMain(body *Block, funcs *FuncTable, echo EchoMode) (*Function, error) {
	scope := Resolve(nil, body)
	c := &Compiler{
		fn:    &Function{Name: vm.MainName, Index: -1, Slots: scope.NumVars},
		scope: scope,
		funcs: funcs,
	}
	if err := c.checkFrame(); err != nil {
		return nil, err
	}

	c.emitZero(scope.NumVars)
	if err := c.compileMainBody(body, echo); err != nil {
		return nil, err
	}
	c.fn.Emit(vm.OpFinishF64)
	return c.fn, nil
}

// CompileFunction compiles a declared user function. The caller pushes the
// arguments and CALLs; the callee copies them into its own frame, so
// parameters and locals share one contiguous slot range starting at ctx.
func CompileFunction(d *FuncDecl, funcs *FuncTable) (*Function, error) {
	def := d.Def
	c := &Compiler{
		fn: &Function{
			Name:   def.Name,
			Index:  d.Index,
			Params: len(def.Params),
			Slots:  d.Scope.NumVars,
			Line:   def.Line(),
		},
		scope: d.Scope,
		funcs: funcs,
	}
	if err := c.checkFrame(); err != nil {
		return nil, err
	}

	c.fn.MarkLine(def.Line())
	c.fn.Emit(vm.OpSetCtx)
	for k := len(def.Params); k >= 1; k-- {
		c.fn.EmitByte(vm.OpArgF64U8, byte(k))
	}
	c.emitZero(d.Scope.Locals())

	if err := c.compileBlock(def.Body); err != nil {
		return nil, err
	}

	c.fn.Emit(vm.OpRetCtxF64)
	c.fn.EmitByte(vm.OpRetF64, byte(len(def.Params)))
	return c.fn, nil
}

func (c *Compiler) checkFrame() error {
	if c.fn.Params > maxParams {
		return fmt.Errorf("function %s: %d parameters (max %d): %w", c.fn.Name, c.fn.Params, maxParams, ErrTooManyLocals)
	}
	if c.fn.Slots > maxSlots {
		return fmt.Errorf("function %s: %d slots (max %d): %w", c.fn.Name, c.fn.Slots, maxSlots, ErrTooManyLocals)
	}
	return nil
}

// emitZero reserves n zeroed slots, using the u8 form when it fits.
func (c *Compiler) emitZero(n int) {
	if n > 255 {
		c.fn.EmitWord(vm.OpZero64, n)
		return
	}
	c.fn.EmitByte(vm.OpZero64U8, byte(n))
}

// compileMainBody sequences top-level expressions, printing per echo mode.
func (c *Compiler) compileMainBody(body *Block, echo EchoMode) error {
	if body.Empty() {
		c.fn.Emit(vm.OpConst0F64)
		if echo != EchoNone {
			c.fn.Emit(vm.OpPrintF64)
		}
		return nil
	}
	last := len(body.Exprs) - 1
	for i, e := range body.Exprs {
		c.fn.MarkLine(e.Line())
		if err := c.compileExpr(e); err != nil {
			return err
		}
		if echo == EchoAll || (echo == EchoLast && i == last) {
			c.fn.Emit(vm.OpPrintF64)
		}
		if i != last {
			c.fn.Emit(vm.OpPopF64)
		}
	}
	return nil
}

// compileBlock leaves exactly one value: the last expression's, or 0 for
// an empty block. Every other result is popped.
func (c *Compiler) compileBlock(b *Block) error {
	if b.Empty() {
		c.fn.Emit(vm.OpConst0F64)
		return nil
	}
	for i, e := range b.Exprs {
		if i > 0 {
			c.fn.Emit(vm.OpPopF64)
		}
		c.fn.MarkLine(e.Line())
		if err := c.compileExpr(e); err != nil {
			return err
		}
	}
	return nil
}

// compileExpr compiles an expression that pushes exactly one float.
func (c *Compiler) compileExpr(e Expr) error {
	switch n := e.(type) {
	case *NumLit:
		c.fn.EmitFloat64(vm.OpConstF64, n.Value)
		return nil

	case *Binary:
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.fn.Emit(binaryOpcodes[n.Op])
		return nil

	case *Var:
		return c.compileVar(n)

	case *Assign:
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		slot, ok := c.scope.Slot(n.Name)
		if !ok {
			return fmt.Errorf("line %d: assignment to unresolved %q", n.Line(), n.Name)
		}
		c.emitStore(slot)
		return nil

	case *FuncCall:
		return c.compileCall(n)

	case *FuncDef:
		// The body was compiled on its own; the definition site is just 0.
		c.fn.Emit(vm.OpConst0F64)
		return nil

	case *If:
		return c.compileIf(n)
	}
	return fmt.Errorf("line %d: cannot compile %T", e.Line(), e)
}

var binaryOpcodes = map[BinOp]vm.Opcode{
	OpAdd: vm.OpAddF64,
	OpSub: vm.OpSubF64,
	OpMul: vm.OpMulF64,
	OpDiv: vm.OpDivF64,
	OpPow: vm.OpPowF64,
}

func (c *Compiler) compileVar(n *Var) error {
	if slot, ok := c.scope.Slot(n.Name); ok {
		c.emitLoad(slot)
		return nil
	}
	if v, ok := Constants[n.Name]; ok {
		c.fn.EmitFloat64(vm.OpConstF64, v)
		return nil
	}
	return &UnknownIdentifierError{Name: n.Name, Line: n.Line()}
}

func (c *Compiler) compileCall(n *FuncCall) error {
	if in, ok := LookupIntrinsic(n.Name); ok {
		if len(n.Args) != 1 {
			return &WrongNumberOfArgumentsError{Name: n.Name, Line: n.Line(), Expected: 1, Actual: len(n.Args)}
		}
		if err := c.compileExpr(n.Args[0]); err != nil {
			return err
		}
		c.fn.Emit(in.Op)
		return nil
	}

	d, ok := c.funcs.Lookup(n.Name)
	if !ok {
		return &UnknownIdentifierError{Name: n.Name, Line: n.Line()}
	}
	if want := len(d.Def.Params); want != len(n.Args) {
		return &WrongNumberOfArgumentsError{Name: n.Name, Line: n.Line(), Expected: want, Actual: len(n.Args)}
	}
	for _, a := range n.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	c.fn.EmitCall(d.Index)
	return nil
}

// compileIf emits:
//
//	cond; JUMP_ZERO_F64 else; then; JUMP end; else: elseBlock; end:
func (c *Compiler) compileIf(n *If) error {
	if err := c.compileExpr(n.Cond); err != nil {
		return err
	}
	elseLabel, endLabel := c.fn.NewLabel(), c.fn.NewLabel()
	c.fn.EmitJump(vm.OpJumpZeroF64, elseLabel)
	if err := c.compileBlock(n.Then); err != nil {
		return err
	}
	c.fn.EmitJump(vm.OpJump, endLabel)
	c.fn.Mark(elseLabel)
	if err := c.compileBlock(n.Else); err != nil {
		return err
	}
	c.fn.Mark(endLabel)
	return nil
}

func (c *Compiler) emitLoad(slot int) {
	switch slot {
	case 0:
		c.fn.Emit(vm.OpLoad0F64)
	case 1:
		c.fn.Emit(vm.OpLoad1F64)
	case 2:
		c.fn.Emit(vm.OpLoad2F64)
	default:
		c.fn.EmitByte(vm.OpLoadF64U8, byte(slot))
	}
}

func (c *Compiler) emitStore(slot int) {
	switch slot {
	case 0:
		c.fn.Emit(vm.OpStore0F64)
	case 1:
		c.fn.Emit(vm.OpStore1F64)
	case 2:
		c.fn.Emit(vm.OpStore2F64)
	default:
		c.fn.EmitByte(vm.OpStoreF64U8, byte(slot))
	}
}
