package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/abacus/vm"
)

func TestLinkUnresolvedCall(t *testing.T) {
	main := &Function{Name: vm.MainName, Index: -1}
	main.EmitCall(0)
	main.Emit(vm.OpFinishF64)

	if _, err := Link(main, nil); !errors.Is(err, ErrUnresolvedCall) {
		t.Errorf("no functions: err = %v, want ErrUnresolvedCall", err)
	}
	if _, err := Link(main, []*Function{nil}); !errors.Is(err, ErrUnresolvedCall) {
		t.Errorf("missing body: err = %v, want ErrUnresolvedCall", err)
	}
}

func TestLinkLayoutAndPatching(t *testing.T) {
	// main: f1(); f0()   f0: 10   f1: 20
	main := &Function{Name: vm.MainName, Index: -1}
	main.EmitByte(vm.OpZero64U8, 0)
	main.EmitCall(1)
	main.Emit(vm.OpPopF64)
	main.EmitCall(0)
	main.Emit(vm.OpFinishF64)

	body := func(name string, index int, v float64) *Function {
		f := &Function{Name: name, Index: index}
		f.Emit(vm.OpSetCtx)
		f.EmitFloat64(vm.OpConstF64, v)
		f.Emit(vm.OpRetCtxF64)
		f.EmitByte(vm.OpRetF64, 0)
		return f
	}
	f0, f1 := body("f0", 0, 10), body("f1", 1, 20)

	p, err := Link(main, []*Function{f0, f1})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(p.Code) != main.Size()+f0.Size()+f1.Size() {
		t.Errorf("code length = %d", len(p.Code))
	}
	if p.Functions[1].Entry != main.Size() || p.Functions[2].Entry != main.Size()+f0.Size() {
		t.Errorf("entries = %+v", p.Functions)
	}

	var calls []int
	r := vm.NewBytecodeReader(p.Code)
	for r.Position() < main.Size() {
		op, _ := r.ReadOpcode()
		if op == vm.OpCall {
			w, _ := r.ReadWord()
			calls = append(calls, w)
			continue
		}
		r.Seek(r.Position() + op.OperandBytes())
	}
	if len(calls) != 2 || calls[0] != p.Functions[2].Entry || calls[1] != p.Functions[1].Entry {
		t.Errorf("call targets = %v", calls)
	}

	res, err := vm.New(p).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Value != 10 {
		t.Errorf("result = %v, want 10", res.Value)
	}
}

func TestLinkRebasesLabels(t *testing.T) {
	main := &Function{Name: vm.MainName, Index: -1}
	main.EmitCall(0)
	main.Emit(vm.OpFinishF64)

	f := &Function{Name: "f", Index: 0}
	skip := f.NewLabel()
	f.Emit(vm.OpSetCtx)
	f.EmitJump(vm.OpJump, skip)
	f.EmitFloat64(vm.OpConstF64, 1)
	f.Mark(skip)
	f.EmitFloat64(vm.OpConstF64, 2)
	f.Emit(vm.OpRetCtxF64)
	f.EmitByte(vm.OpRetF64, 0)

	p, err := Link(main, []*Function{f})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	res, err := vm.New(p).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, vm.Disassemble(p.Code))
	}
	if res.Value != 2 {
		t.Errorf("result = %v, want 2", res.Value)
	}
}

func TestLinkUnmarkedLabel(t *testing.T) {
	main := &Function{Name: vm.MainName, Index: -1}
	main.EmitJump(vm.OpJump, main.NewLabel())
	if _, err := Link(main, nil); err == nil {
		t.Error("expected error for unmarked label")
	}
}
