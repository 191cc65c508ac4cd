package compiler

import (
	"fmt"

	"github.com/chazu/abacus/vm"
)

// ---------------------------------------------------------------------------
// Linker: lay out functions, patch addresses, flatten to bytes
// ---------------------------------------------------------------------------

// Link places main at offset 0 followed by funcs in slice order, where
// funcs[i] must be the function with index i. Every call unit becomes the
// absolute entry offset of its callee and every jump label the absolute
// offset it was marked at.
func Link(main *Function, funcs []*Function) (*vm.Program, error) {
	layout := append([]*Function{main}, funcs...)

	bases := make([]int, len(layout))
	offset := 0
	for i, fn := range layout {
		if fn == nil {
			continue
		}
		bases[i] = offset
		offset += fn.Size()
	}

	entry := func(index int) (int, bool) {
		if index < 0 || index >= len(funcs) || funcs[index] == nil {
			return 0, false
		}
		return bases[index+1], true
	}

	b := vm.NewBytecodeBuilder()
	p := &vm.Program{}
	for i, fn := range layout {
		if fn == nil {
			continue
		}
		base := bases[i]
		for _, u := range fn.Units {
			switch u.Kind {
			case UnitByte:
				b.EmitRaw(u.Byte)
			case UnitFloat:
				b.EmitRawFloat64(u.Float)
			case UnitWord:
				b.EmitRawWord(u.Int)
			case UnitFuncRef:
				target, ok := entry(u.Int)
				if !ok {
					return nil, fmt.Errorf("%s calls function #%d: %w", fn.Name, u.Int, ErrUnresolvedCall)
				}
				b.EmitRawWord(target)
			case UnitLabel:
				if u.Int < 0 || u.Int >= len(fn.Labels) || fn.Labels[u.Int] < 0 {
					return nil, fmt.Errorf("%s: jump to unmarked label L%d", fn.Name, u.Int)
				}
				b.EmitRawWord(base + fn.Labels[u.Int])
			}
		}

		p.Functions = append(p.Functions, vm.Function{
			Name:   fn.Name,
			Entry:  base,
			Size:   fn.Size(),
			Params: fn.Params,
			Slots:  fn.Slots,
			Line:   fn.Line,
		})
		for _, l := range fn.Lines {
			p.Lines = append(p.Lines, vm.LineEntry{Offset: base + l.Offset, Line: l.Line})
		}
	}

	if b.Len() != offset {
		return nil, fmt.Errorf("link: emitted %d bytes, laid out %d", b.Len(), offset)
	}
	p.Code = b.Bytes()
	return p, nil
}
