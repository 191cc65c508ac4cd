package vm

import (
	"fmt"
	"sort"
	"strings"
)

// Profiler counts executed instructions and function invocations. It is
// fed from the trace hook, so it sees exactly what the VM executes:
//
//	prof := vm.NewProfiler(p)
//	vm.New(p, vm.WithTrace(prof.Record)).Run(ctx)
//
// A function becomes hot once its invocation count reaches HotThreshold.

// FunctionProfile holds profiling data for a single function.
type FunctionProfile struct {
	Name  string
	Entry int
	Calls uint64 // invocations; main counts one per run
	Steps uint64 // instructions executed inside the function body
	IsHot bool   // True if threshold exceeded
}

// Profiler manages profiling for all functions of one program.
type Profiler struct {
	program *Program
	owner   []int // ip -> index into funcs, -1 outside any function
	funcs   []FunctionProfile
	byEntry map[int]int
	ops     [256]uint64
	steps   uint64

	// HotThreshold is the invocation count at which a function turns hot.
	HotThreshold uint64
	// OnHot is called once per function when it turns hot.
	OnHot func(FunctionProfile)
}

// NewProfiler creates a profiler for p with the default threshold.
func NewProfiler(p *Program) *Profiler {
	prof := &Profiler{
		program:      p,
		owner:        make([]int, len(p.Code)),
		funcs:        make([]FunctionProfile, len(p.Functions)),
		byEntry:      make(map[int]int, len(p.Functions)),
		HotThreshold: 100,
	}
	for i := range prof.owner {
		prof.owner[i] = -1
	}
	for i, fn := range p.Functions {
		prof.funcs[i] = FunctionProfile{Name: fn.Name, Entry: fn.Entry}
		prof.byEntry[fn.Entry] = i
		for ip := fn.Entry; ip < fn.Entry+fn.Size && ip < len(p.Code); ip++ {
			prof.owner[ip] = i
		}
	}
	return prof
}

// Record accounts for one executed instruction.
func (p *Profiler) Record(ev TraceEvent) {
	p.steps++
	p.ops[ev.Op]++

	if ev.IP >= 0 && ev.IP < len(p.owner) {
		if i := p.owner[ev.IP]; i >= 0 {
			p.funcs[i].Steps++
		}
	}

	switch {
	case ev.Op == OpCall && ev.IP+1+WordSize <= len(p.program.Code):
		p.invoked(decodeWord(p.program.Code[ev.IP+1:]))
	case ev.IP == 0:
		// The main prologue is never a jump target, so reaching offset
		// 0 means a run has started.
		p.invoked(0)
	}
}

func (p *Profiler) invoked(entry int) {
	i, ok := p.byEntry[entry]
	if !ok {
		return
	}
	fp := &p.funcs[i]
	fp.Calls++
	if !fp.IsHot && p.HotThreshold > 0 && fp.Calls >= p.HotThreshold {
		fp.IsHot = true
		if p.OnHot != nil {
			p.OnHot(*fp)
		}
	}
}

// Lookup returns the profile of the named function.
func (p *Profiler) Lookup(name string) (FunctionProfile, bool) {
	for _, fp := range p.funcs {
		if fp.Name == name {
			return fp, true
		}
	}
	return FunctionProfile{}, false
}

// Functions returns all function profiles, busiest first.
func (p *Profiler) Functions() []FunctionProfile {
	out := make([]FunctionProfile, len(p.funcs))
	copy(out, p.funcs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Steps > out[j].Steps })
	return out
}

// OpcodeCount returns how often op was executed.
func (p *Profiler) OpcodeCount(op Opcode) uint64 {
	return p.ops[op]
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Steps        uint64 // instructions executed
	Calls        uint64 // function invocations, main included
	Functions    int
	HotFunctions int
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	stats := ProfilerStats{Steps: p.steps, Functions: len(p.funcs)}
	for _, fp := range p.funcs {
		stats.Calls += fp.Calls
		if fp.IsHot {
			stats.HotFunctions++
		}
	}
	return stats
}

// Report renders the profile as a table: functions by steps, then the ten
// most executed opcodes.
func (p *Profiler) Report() string {
	var sb strings.Builder
	stats := p.Stats()
	fmt.Fprintf(&sb, "%d steps, %d calls\n\n", stats.Steps, stats.Calls)

	fmt.Fprintf(&sb, "%-20s %10s %12s %7s\n", "FUNCTION", "CALLS", "STEPS", "%")
	for _, fp := range p.Functions() {
		hot := ""
		if fp.IsHot {
			hot = " hot"
		}
		fmt.Fprintf(&sb, "%-20s %10d %12d %6.1f%%%s\n", fp.Name, fp.Calls, fp.Steps, percent(fp.Steps, stats.Steps), hot)
	}

	type opCount struct {
		op Opcode
		n  uint64
	}
	var ops []opCount
	for op, n := range p.ops {
		if n > 0 {
			ops = append(ops, opCount{Opcode(op), n})
		}
	}
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].n != ops[j].n {
			return ops[i].n > ops[j].n
		}
		return ops[i].op < ops[j].op
	})
	if len(ops) > 10 {
		ops = ops[:10]
	}
	fmt.Fprintf(&sb, "\n%-20s %10s %7s\n", "OPCODE", "COUNT", "%")
	for _, oc := range ops {
		fmt.Fprintf(&sb, "%-20s %10d %6.1f%%\n", oc.op, oc.n, percent(oc.n, stats.Steps))
	}
	return sb.String()
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}
