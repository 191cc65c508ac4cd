package vm

import (
	"errors"
	"testing"
)

func TestStackFloatPushPop(t *testing.T) {
	s := NewStack(0)
	s.PushF64(1.5)
	s.PushF64(-2)

	if s.Len() != 2*FloatSize {
		t.Fatalf("Len = %d, want %d", s.Len(), 2*FloatSize)
	}
	if v, err := s.PopF64(); err != nil || v != -2 {
		t.Errorf("PopF64 = %v, %v; want -2", v, err)
	}
	if v, err := s.PeekF64(); err != nil || v != 1.5 {
		t.Errorf("PeekF64 = %v, %v; want 1.5", v, err)
	}
	if s.Len() != FloatSize {
		t.Errorf("Peek should not pop: Len = %d", s.Len())
	}
}

func TestStackUnderflow(t *testing.T) {
	s := NewStack(0)
	if _, err := s.PopF64(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("PopF64 on empty stack: err = %v, want ErrStackUnderflow", err)
	}
	if _, err := s.PopWord(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("PopWord on empty stack: err = %v, want ErrStackUnderflow", err)
	}
	if _, err := s.PopByte(); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("PopByte on empty stack: err = %v, want ErrStackUnderflow", err)
	}
}

func TestStackKindMismatch(t *testing.T) {
	s := NewStack(0)
	s.PushWord(99)
	if _, err := s.PopF64(); !errors.Is(err, ErrKindMismatch) && !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("PopF64 over a word: err = %v, want a checked failure", err)
	}

	s.Reset()
	s.PushF64(3)
	if _, err := s.PopWord(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("PopWord over a float: err = %v, want ErrKindMismatch", err)
	}
	if s.Len() != FloatSize {
		t.Errorf("failed pop must not change the stack: Len = %d", s.Len())
	}

	s.PushByte(7)
	if _, err := s.PopF64(); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("PopF64 over a byte: err = %v, want ErrKindMismatch", err)
	}
	if b, err := s.PopByte(); err != nil || b != 7 {
		t.Errorf("PopByte = %d, %v; want 7", b, err)
	}
}

func TestStackLoadStore(t *testing.T) {
	s := NewStack(0)
	s.PushZeroF64(3)
	if err := s.StoreF64(FloatSize, 42); err != nil {
		t.Fatalf("StoreF64: %v", err)
	}
	if v, err := s.LoadF64(FloatSize); err != nil || v != 42 {
		t.Errorf("LoadF64 = %v, %v; want 42", v, err)
	}
	if v, _ := s.LoadF64(0); v != 0 {
		t.Errorf("slot 0 = %v, want 0", v)
	}

	if _, err := s.LoadF64(3 * FloatSize); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("LoadF64 past top: err = %v, want ErrOutOfBounds", err)
	}
	if _, err := s.LoadF64(-FloatSize); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("LoadF64 below zero: err = %v, want ErrOutOfBounds", err)
	}
	if _, err := s.LoadF64(4); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("LoadF64 mid-cell: err = %v, want ErrKindMismatch", err)
	}
	if err := s.StoreF64(2*FloatSize+1, 1); err == nil {
		t.Error("StoreF64 mid-cell should fail")
	}
}

func TestStackWords(t *testing.T) {
	s := NewStack(0)
	s.PushF64(1)
	s.PushWord(1 << 20)
	if s.Len() != FloatSize+WordSize {
		t.Fatalf("Len = %d, want %d", s.Len(), FloatSize+WordSize)
	}
	if w, err := s.PopWord(); err != nil || w != 1<<20 {
		t.Errorf("PopWord = %d, %v; want %d", w, err, 1<<20)
	}
}

func TestStackTruncateAndDrop(t *testing.T) {
	s := NewStack(0)
	s.PushWord(5)
	base := s.Len()
	s.PushZeroF64(4)

	if err := s.Truncate(base + 1); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("Truncate mid-cell: err = %v, want ErrKindMismatch", err)
	}
	if err := s.Truncate(s.Len() + 1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Truncate above top: err = %v, want ErrOutOfBounds", err)
	}
	if err := s.DropF64(2); err != nil {
		t.Fatalf("DropF64: %v", err)
	}
	if s.Len() != base+2*FloatSize {
		t.Errorf("Len = %d, want %d", s.Len(), base+2*FloatSize)
	}
	if err := s.Truncate(base); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := s.DropF64(1); err == nil {
		t.Error("DropF64 over a word should fail")
	}
}
