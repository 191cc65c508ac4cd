package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// cellKind tags the byte that starts a stack cell. The remaining bytes of a
// multi-byte cell are tagged kindCont.
type cellKind uint8

const (
	kindCont cellKind = iota
	kindF64
	kindWord
	kindByte
)

func (k cellKind) String() string {
	switch k {
	case kindF64:
		return "f64"
	case kindWord:
		return "word"
	case kindByte:
		return "u8"
	}
	return "continuation"
}

// Stack is the single byte stack of the machine. Floats, words and raw
// bytes are interleaved in one buffer; a parallel tag per byte records the
// kind of cell that starts at that offset so every access is checked for
// both bounds and width.
type Stack struct {
	data  []byte
	kinds []cellKind
}

// NewStack creates an empty stack with room for capacity bytes.
func NewStack(capacity int) *Stack {
	return &Stack{
		data:  make([]byte, 0, capacity),
		kinds: make([]cellKind, 0, capacity),
	}
}

// Len returns the stack height in bytes.
func (s *Stack) Len() int {
	return len(s.data)
}

// Reset empties the stack, keeping its storage.
func (s *Stack) Reset() {
	s.data = s.data[:0]
	s.kinds = s.kinds[:0]
}

// Bytes returns a copy of the raw stack contents.
func (s *Stack) Bytes() []byte {
	return slices.Clone(s.data)
}

func (s *Stack) grow(n int) {
	s.data = slices.Grow(s.data, n)
	s.kinds = slices.Grow(s.kinds, n)
}

func (s *Stack) pushCell(kind cellKind, b []byte) {
	s.grow(len(b))
	s.data = append(s.data, b...)
	s.kinds = append(s.kinds, kind)
	for i := 0; i < len(b)-1; i++ {
		s.kinds = append(s.kinds, kindCont)
	}
}

// check verifies that a cell of the given kind and width starts at off.
func (s *Stack) check(off, width int, kind cellKind) error {
	if off < 0 || off+width > len(s.data) {
		return fmt.Errorf("%w: %s at %d (height %d)", ErrOutOfBounds, kind, off, len(s.data))
	}
	if s.kinds[off] != kind {
		return fmt.Errorf("%w: want %s at %d, found %s", ErrKindMismatch, kind, off, s.kinds[off])
	}
	return nil
}

func (s *Stack) checkTop(width int, kind cellKind) error {
	if len(s.data) < width {
		return fmt.Errorf("%w: need %d bytes for %s, have %d", ErrStackUnderflow, width, kind, len(s.data))
	}
	off := len(s.data) - width
	if s.kinds[off] != kind {
		return fmt.Errorf("%w: want %s on top, found %s", ErrKindMismatch, kind, s.kinds[off])
	}
	return nil
}

// ---------------------------------------------------------------------------
// Floats
// ---------------------------------------------------------------------------

// PushF64 pushes an 8-byte float cell.
func (s *Stack) PushF64(v float64) {
	var b [FloatSize]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	s.pushCell(kindF64, b[:])
}

// PopF64 pops the top float cell.
func (s *Stack) PopF64() (float64, error) {
	v, err := s.PeekF64()
	if err != nil {
		return 0, err
	}
	s.truncate(len(s.data) - FloatSize)
	return v, nil
}

// PeekF64 returns the top float cell without popping it.
func (s *Stack) PeekF64() (float64, error) {
	if err := s.checkTop(FloatSize, kindF64); err != nil {
		return 0, err
	}
	return s.readF64(len(s.data) - FloatSize), nil
}

// LoadF64 reads the float cell starting at byte offset off.
func (s *Stack) LoadF64(off int) (float64, error) {
	if err := s.check(off, FloatSize, kindF64); err != nil {
		return 0, err
	}
	return s.readF64(off), nil
}

// StoreF64 overwrites the float cell starting at byte offset off.
func (s *Stack) StoreF64(off int, v float64) error {
	if err := s.check(off, FloatSize, kindF64); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(s.data[off:], math.Float64bits(v))
	return nil
}

// PushZeroF64 pushes n float cells holding 0. n <= 0 pushes nothing.
func (s *Stack) PushZeroF64(n int) {
	if n <= 0 {
		return
	}
	s.grow(n * FloatSize)
	for i := 0; i < n; i++ {
		s.PushF64(0)
	}
}

// DropF64 discards the top n float cells.
func (s *Stack) DropF64(n int) error {
	for i := 0; i < n; i++ {
		if _, err := s.PopF64(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stack) readF64(off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(s.data[off:]))
}

// ---------------------------------------------------------------------------
// Words
// ---------------------------------------------------------------------------

// PushWord pushes a WordSize-byte cell holding an address or frame base.
func (s *Stack) PushWord(v int) {
	var b [8]byte
	s.pushCell(kindWord, AppendWord(b[:0], v))
}

// PopWord pops the top word cell.
func (s *Stack) PopWord() (int, error) {
	if err := s.checkTop(WordSize, kindWord); err != nil {
		return 0, err
	}
	off := len(s.data) - WordSize
	v := decodeWord(s.data[off:])
	s.truncate(off)
	return v, nil
}

// ---------------------------------------------------------------------------
// Bytes
// ---------------------------------------------------------------------------

// PushByte pushes a single raw byte cell.
func (s *Stack) PushByte(b byte) {
	s.pushCell(kindByte, []byte{b})
}

// PopByte pops the top byte cell.
func (s *Stack) PopByte() (byte, error) {
	if err := s.checkTop(1, kindByte); err != nil {
		return 0, err
	}
	b := s.data[len(s.data)-1]
	s.truncate(len(s.data) - 1)
	return b, nil
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// Truncate drops everything at or above byte offset n. n must fall on a
// cell boundary.
func (s *Stack) Truncate(n int) error {
	if n < 0 || n > len(s.data) {
		return fmt.Errorf("%w: truncate to %d (height %d)", ErrOutOfBounds, n, len(s.data))
	}
	if n < len(s.data) && s.kinds[n] == kindCont {
		return fmt.Errorf("%w: truncate to %d splits a cell", ErrKindMismatch, n)
	}
	s.truncate(n)
	return nil
}

func (s *Stack) truncate(n int) {
	s.data = s.data[:n]
	s.kinds = s.kinds[:n]
}
