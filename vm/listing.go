package vm

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Listing is a debug dump of a linked program. It is a tooling format only:
// the encoding is not versioned and carries no compatibility promise.
type Listing struct {
	WordSize  int         `cbor:"1,keyasint"`
	Code      []byte      `cbor:"2,keyasint"`
	Functions []Function  `cbor:"3,keyasint"`
	Lines     []LineEntry `cbor:"4,keyasint,omitempty"`
	Source    string      `cbor:"5,keyasint,omitempty"`
}

// NewListing captures p, optionally with the source it was compiled from.
func NewListing(p *Program, source string) *Listing {
	return &Listing{
		WordSize:  WordSize,
		Code:      p.Code,
		Functions: p.Functions,
		Lines:     p.Lines,
		Source:    source,
	}
}

// Program rebuilds a runnable program from the listing.
func (l *Listing) Program() *Program {
	return &Program{Code: l.Code, Functions: l.Functions, Lines: l.Lines}
}

// MarshalListing serializes a Listing to CBOR bytes.
func MarshalListing(l *Listing) ([]byte, error) {
	return cborEncMode.Marshal(l)
}

// UnmarshalListing deserializes a Listing from CBOR bytes. Listings written
// on a machine with a different word size are rejected, since addresses in
// the code are encoded at the native word width.
func UnmarshalListing(data []byte) (*Listing, error) {
	var l Listing
	if err := cbor.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("vm: unmarshal listing: %w", err)
	}
	if l.WordSize != WordSize {
		return nil, fmt.Errorf("vm: listing word size %d, this machine uses %d", l.WordSize, WordSize)
	}
	return &l, nil
}

// Format renders the listing as an annotated disassembly, one section per
// function.
func (l *Listing) Format() string {
	var sb strings.Builder
	p := l.Program()
	for i, fn := range l.Functions {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "; %s params=%d slots=%d entry=%04d\n", fn.Name, fn.Params, fn.Slots, fn.Entry)
		r := NewBytecodeReader(l.Code)
		r.Seek(fn.Entry)
		lastLine := 0
		for r.HasMore() && r.Position() < fn.Entry+fn.Size {
			if line := p.LineAt(r.Position()); line != lastLine && line > 0 {
				fmt.Fprintf(&sb, "; line %d\n", line)
				lastLine = line
			}
			text, err := DisassembleInstruction(r)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString("\n")
			}
			if err != nil {
				fmt.Fprintf(&sb, "; %v\n", err)
				break
			}
		}
	}
	return sb.String()
}
