package compiler

import (
	"math"
	"sort"

	"github.com/chazu/abacus/vm"
)

// Intrinsic is a builtin one-argument function compiled to a single opcode.
type Intrinsic struct {
	Name string
	Op   vm.Opcode
	Fn   func(float64) float64
}

// intrinsics is keyed by source name.
var intrinsics = map[string]Intrinsic{
	"sin":  {"sin", vm.OpSinF64, math.Sin},
	"cos":  {"cos", vm.OpCosF64, math.Cos},
	"sqrt": {"sqrt", vm.OpSqrtF64, math.Sqrt},
}

// LookupIntrinsic returns the intrinsic with the given name.
func LookupIntrinsic(name string) (Intrinsic, bool) {
	in, ok := intrinsics[name]
	return in, ok
}

// IntrinsicNames returns the intrinsic names in sorted order.
func IntrinsicNames() []string {
	names := make([]string, 0, len(intrinsics))
	for name := range intrinsics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Constants are names that read as fixed values unless a function assigns
// a local of the same name.
var Constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}
