package vm

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// TraceEvent describes the machine state just before an instruction runs.
type TraceEvent struct {
	IP       int
	Op       Opcode
	StackLen int
	Ctx      int
}

// Option configures a VM.
type Option func(*VM)

// WithOutput sets the writer PRINT_F64 writes to. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithStepLimit bounds the number of instructions a run may execute.
// Zero means unlimited.
func WithStepLimit(n int) Option {
	return func(vm *VM) { vm.stepLimit = n }
}

// WithTrace installs a hook called before every instruction.
func WithTrace(fn func(TraceEvent)) Option {
	return func(vm *VM) { vm.trace = fn }
}

// WithLogger replaces the default "abacus.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// ---------------------------------------------------------------------------
// VM: Bytecode execution engine
// ---------------------------------------------------------------------------

// cancelCheckInterval is how many instructions run between context checks.
const cancelCheckInterval = 1024

// MaxZeroSlots bounds the slot count of a single ZERO_64.
const MaxZeroSlots = 1 << 20

// VM executes a linked Program. A VM owns its stack and registers; it is
// not safe for concurrent use, but Run may be called repeatedly.
type VM struct {
	program *Program
	code    *BytecodeReader
	stack   *Stack
	ctx     int // frame base
	op      Opcode
	opIP    int

	out       io.Writer
	log       commonlog.Logger
	stepLimit int
	trace     func(TraceEvent)

	steps    int
	result   float64
	finished bool
}

// Result is the outcome of a completed run.
type Result struct {
	Value    float64 // value left by FINISH_F64
	HasValue bool    // false when the program halted another way
	Steps    int     // instructions executed
}

// New creates a VM for p.
func New(p *Program, opts ...Option) *VM {
	vm := &VM{
		program: p,
		code:    NewBytecodeReader(p.Code),
		stack:   NewStack(256),
		out:     os.Stdout,
		log:     commonlog.GetLogger("abacus.vm"),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Program returns the program the VM executes.
func (vm *VM) Program() *Program {
	return vm.program
}

// Stack exposes the machine stack, mainly for tests and tracing.
func (vm *VM) Stack() *Stack {
	return vm.stack
}

// Ctx returns the current frame base.
func (vm *VM) Ctx() int {
	return vm.ctx
}

// Run executes the program from offset 0 with a fresh stack. It returns
// when the program halts or runs off the end of the code. Fatal conditions
// are returned as *RuntimeError.
func (vm *VM) Run(ctx context.Context) (res Result, err error) {
	vm.reset()

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(fault)
			if !ok {
				panic(r)
			}
			err = &RuntimeError{
				IP:   vm.opIP,
				Op:   vm.op,
				Line: vm.program.LineAt(vm.opIP),
				Err:  f.err,
			}
			res = Result{Steps: vm.steps}
			vm.log.Debugf("run aborted: %v", err)
		}
	}()

	if err := vm.loop(ctx); err != nil {
		return Result{Steps: vm.steps}, err
	}
	return Result{Value: vm.result, HasValue: vm.finished, Steps: vm.steps}, nil
}

func (vm *VM) reset() {
	vm.code.Seek(0)
	vm.stack.Reset()
	vm.ctx = 0
	vm.op = OpNOP
	vm.opIP = 0
	vm.steps = 0
	vm.result = 0
	vm.finished = false
}

// loop is the fetch-decode-execute cycle. The instruction pointer moves past
// the opcode byte right after the fetch; operand reads advance it further,
// so control transfers set it to the target directly.
func (vm *VM) loop(ctx context.Context) error {
	debug := vm.log.AllowLevel(commonlog.Debug)
	s := vm.stack

	for vm.code.HasMore() {
		if vm.stepLimit > 0 && vm.steps >= vm.stepLimit {
			vm.opIP = vm.code.Position()
			vm.op = Opcode(vm.program.Code[vm.opIP])
			throwf(ErrStepLimit, "%d instructions", vm.stepLimit)
		}
		if vm.steps%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		vm.opIP = vm.code.Position()
		vm.op = vm.fetch()
		vm.steps++

		if vm.trace != nil {
			vm.trace(TraceEvent{IP: vm.opIP, Op: vm.op, StackLen: s.Len(), Ctx: vm.ctx})
		}
		if debug {
			vm.log.Debugf("%04d %-14s stack=%d ctx=%d", vm.opIP, vm.op, s.Len(), vm.ctx)
		}

		switch vm.op {
		case OpNOP:

		// --- Arithmetic ---
		case OpAddF64:
			b, a := vm.popF64(), vm.popF64()
			s.PushF64(a + b)
		case OpSubF64:
			b, a := vm.popF64(), vm.popF64()
			s.PushF64(a - b)
		case OpMulF64:
			b, a := vm.popF64(), vm.popF64()
			s.PushF64(a * b)
		case OpDivF64:
			b, a := vm.popF64(), vm.popF64()
			s.PushF64(a / b)
		case OpPowF64:
			b, a := vm.popF64(), vm.popF64()
			s.PushF64(math.Pow(a, b))

		// --- Intrinsics ---
		case OpSinF64:
			s.PushF64(math.Sin(vm.popF64()))
		case OpCosF64:
			s.PushF64(math.Cos(vm.popF64()))
		case OpSqrtF64:
			s.PushF64(math.Sqrt(vm.popF64()))

		// --- Constants and discards ---
		case OpConstF64:
			s.PushF64(vm.readF64())
		case OpConst0F64:
			s.PushF64(0)
		case OpConstU8:
			s.PushByte(vm.readU8())
		case OpU8ToF64:
			b, err := s.PopByte()
			vm.check(err)
			s.PushF64(float64(b))
		case OpPopF64:
			vm.popF64()
		case OpPopU8:
			_, err := s.PopByte()
			vm.check(err)
		case OpPop64U8:
			vm.check(s.DropF64(int(vm.readU8())))
		case OpPrintF64:
			v, err := s.PeekF64()
			vm.check(err)
			fmt.Fprintln(vm.out, v)

		// --- Locals ---
		case OpLoad0F64:
			vm.load(0)
		case OpLoad1F64:
			vm.load(1)
		case OpLoad2F64:
			vm.load(2)
		case OpLoadF64U8:
			vm.load(int(vm.readU8()))
		case OpStore0F64:
			vm.store(0)
		case OpStore1F64:
			vm.store(1)
		case OpStore2F64:
			vm.store(2)
		case OpStoreF64U8:
			vm.store(int(vm.readU8()))
		case OpZero64:
			n := vm.readWord()
			if n < 0 || n > MaxZeroSlots {
				throwf(ErrOutOfBounds, "slot count %d (max %d)", n, MaxZeroSlots)
			}
			s.PushZeroF64(n)
		case OpZero64U8:
			s.PushZeroF64(int(vm.readU8()))

		// --- Frames ---
		case OpSetCtx:
			s.PushWord(vm.ctx)
			vm.ctx = s.Len()
		case OpRetCtx:
			vm.ctx = vm.popWord()
		case OpRetCtxF64:
			v := vm.popF64()
			vm.check(s.Truncate(vm.ctx))
			vm.ctx = vm.popWord()
			s.PushF64(v)
		case OpArgF64U8:
			k := int(vm.readU8())
			v, err := s.LoadF64(vm.ctx - 2*WordSize - k*FloatSize)
			vm.check(err)
			s.PushF64(v)

		// --- Control flow ---
		case OpCall:
			target := vm.readTarget()
			s.PushWord(vm.code.Position())
			vm.code.Seek(target)
		case OpRet:
			vm.code.Seek(vm.checkTarget(vm.popWord()))
		case OpRetF64:
			n := int(vm.readU8())
			v := vm.popF64()
			vm.code.Seek(vm.checkTarget(vm.popWord()))
			vm.check(s.DropF64(n))
			s.PushF64(v)
		case OpJump:
			vm.code.Seek(vm.readTarget())
		case OpJumpZeroF64:
			target := vm.readTarget()
			if vm.popF64() == 0 {
				vm.code.Seek(target)
			}
		case OpExit:
			return nil
		case OpFinishF64:
			vm.result = vm.popF64()
			vm.finished = true
			return nil

		default:
			throwf(ErrUnknownOpcode, "0x%02X", byte(vm.op))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers: every failure is raised as a fault and recovered in Run
// ---------------------------------------------------------------------------

func (vm *VM) check(err error) {
	if err != nil {
		throw(err)
	}
}

func (vm *VM) fetch() Opcode {
	op, err := vm.code.ReadOpcode()
	vm.check(err)
	return op
}

func (vm *VM) readU8() byte {
	b, err := vm.code.ReadByte()
	vm.check(err)
	return b
}

func (vm *VM) readF64() float64 {
	v, err := vm.code.ReadFloat64()
	vm.check(err)
	return v
}

func (vm *VM) readWord() int {
	w, err := vm.code.ReadWord()
	vm.check(err)
	return w
}

func (vm *VM) readTarget() int {
	return vm.checkTarget(vm.readWord())
}

// checkTarget accepts any offset inside the code, plus the end of the code
// (which halts normally).
func (vm *VM) checkTarget(t int) int {
	if t < 0 || t > vm.code.Len() {
		throwf(ErrBadTarget, "%d (code length %d)", t, vm.code.Len())
	}
	return t
}

func (vm *VM) popF64() float64 {
	v, err := vm.stack.PopF64()
	vm.check(err)
	return v
}

func (vm *VM) popWord() int {
	w, err := vm.stack.PopWord()
	vm.check(err)
	return w
}

func (vm *VM) load(slot int) {
	v, err := vm.stack.LoadF64(vm.ctx + slot*FloatSize)
	vm.check(err)
	vm.stack.PushF64(v)
}

func (vm *VM) store(slot int) {
	v, err := vm.stack.PeekF64()
	vm.check(err)
	vm.check(vm.stack.StoreF64(vm.ctx+slot*FloatSize, v))
}
