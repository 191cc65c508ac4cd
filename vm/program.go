package vm

import "sort"

// Function describes one linked function inside a Program.
type Function struct {
	Name   string `cbor:"1,keyasint"`
	Entry  int    `cbor:"2,keyasint"` // absolute offset of the first instruction
	Size   int    `cbor:"3,keyasint"` // encoded length in bytes
	Params int    `cbor:"4,keyasint"`
	Slots  int    `cbor:"5,keyasint"` // params + locals
	Line   int    `cbor:"6,keyasint,omitempty"`
}

// LineEntry maps the instruction starting at Offset to a source line.
type LineEntry struct {
	Offset int `cbor:"1,keyasint"`
	Line   int `cbor:"2,keyasint"`
}

// Program is a linked, immutable bytecode program. Functions[0] is always
// the main body, which starts at offset 0.
type Program struct {
	Code      []byte
	Functions []Function
	Lines     []LineEntry // sorted by Offset
}

// MainName is the name given to the top-level body in the function table.
const MainName = "<main>"

// LineAt returns the source line of the instruction at ip, or 0.
func (p *Program) LineAt(ip int) int {
	i := sort.Search(len(p.Lines), func(i int) bool {
		return p.Lines[i].Offset > ip
	})
	if i == 0 {
		return 0
	}
	return p.Lines[i-1].Line
}

// FunctionAt returns the function containing ip.
func (p *Program) FunctionAt(ip int) (Function, bool) {
	for _, fn := range p.Functions {
		if ip >= fn.Entry && ip < fn.Entry+fn.Size {
			return fn, true
		}
	}
	return Function{}, false
}

// Lookup returns the function with the given name.
func (p *Program) Lookup(name string) (Function, bool) {
	for _, fn := range p.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return Function{}, false
}
