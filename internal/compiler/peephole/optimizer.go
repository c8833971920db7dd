// Package peephole rewrites instruction streams through a registry of
// window-based patterns. Patterns are registered once, sorted by window size
// descending, and applied left-to-right for up to a configured number of
// passes. Labels, data values, directives and nopeep-marked instructions are
// never part of a window, and a transform that would delete a
// label-referencing instruction is rejected.
package peephole

import (
	"fmt"
	"io"
	"sort"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
)

// Pattern is one rewrite rule.
type Pattern struct {
	// WindowSize is the number of consecutive optimizable instructions the
	// matcher inspects.
	WindowSize int
	// Matcher reports whether the window starting at pos matches. The
	// window is guaranteed to hold WindowSize optimizable instructions;
	// matchers may look beyond it (liveness scans) but only the window is
	// replaced.
	Matcher func(stream []arm64.Instruction, pos int) bool
	// Transformer returns the replacement for the window. Returning nil
	// declines the rewrite after all.
	Transformer func(stream []arm64.Instruction, pos int) []arm64.Instruction
	// Description names the pattern in traces.
	Description string
}

// Optimizer runs the registered catalog.
type Optimizer struct {
	patterns []Pattern
	passes   int
	trace    io.Writer
}

// DefaultPasses is the pass count used when the driver does not override it.
const DefaultPasses = 5

// New returns an optimizer with the default catalog registered.
func New(passes int) *Optimizer {
	if passes <= 0 {
		passes = DefaultPasses
	}
	o := &Optimizer{passes: passes}
	o.register(simplificationPatterns()...)
	o.register(strengthPatterns()...)
	o.register(memoryPatterns()...)
	o.register(controlFlowPatterns()...)
	sort.SliceStable(o.patterns, func(i, j int) bool {
		return o.patterns[i].WindowSize > o.patterns[j].WindowSize
	})
	return o
}

// SetTrace directs per-rewrite notes to w.
func (o *Optimizer) SetTrace(w io.Writer) { o.trace = w }

func (o *Optimizer) register(ps ...Pattern) {
	o.patterns = append(o.patterns, ps...)
}

func optimizable(i *arm64.Instruction) bool {
	return !i.IsLabelDefinition && !i.IsDataValue && !i.NoPeep &&
		i.Opcode != arm64.OpDirective
}

// Run rewrites the stream. Each pass scans once; passes stop early when a
// scan changes nothing.
func (o *Optimizer) Run(stream []arm64.Instruction) []arm64.Instruction {
	for pass := 0; pass < o.passes; pass++ {
		changed := false
		stream, changed = o.runOnce(stream)
		if chained := o.chainBranches(stream); chained {
			changed = true
		}
		if !changed {
			break
		}
	}
	return stream
}

func (o *Optimizer) runOnce(stream []arm64.Instruction) ([]arm64.Instruction, bool) {
	changed := false
	for pos := 0; pos < len(stream); pos++ {
		if !optimizable(&stream[pos]) {
			continue
		}
		for _, p := range o.patterns {
			if pos+p.WindowSize > len(stream) {
				continue
			}
			window := stream[pos : pos+p.WindowSize]
			if !windowClean(window) || !p.Matcher(stream, pos) {
				continue
			}
			replacement := p.Transformer(stream, pos)
			if replacement == nil {
				continue
			}
			if breaksLabels(window, replacement) {
				continue
			}
			if o.trace != nil {
				fmt.Fprintf(o.trace, "peephole: %s at %d (%d -> %d)\n",
					p.Description, pos, len(window), len(replacement))
			}
			stream = splice(stream, pos, p.WindowSize, replacement)
			changed = true
			break
		}
	}
	return stream, changed
}

// windowClean reports whether every instruction in the window may be
// rewritten.
func windowClean(w []arm64.Instruction) bool {
	for i := range w {
		if !optimizable(&w[i]) {
			return false
		}
	}
	return true
}

// breaksLabels rejects replacements that drop an instruction carrying a
// label reference the replacement no longer mentions.
func breaksLabels(window, replacement []arm64.Instruction) bool {
	for i := range window {
		label := window[i].TargetLabel
		if label == "" {
			continue
		}
		kept := false
		for j := range replacement {
			if replacement[j].TargetLabel == label {
				kept = true
				break
			}
		}
		if !kept {
			return true
		}
	}
	return false
}

func splice(stream []arm64.Instruction, pos, length int, replacement []arm64.Instruction) []arm64.Instruction {
	out := make([]arm64.Instruction, 0, len(stream)-length+len(replacement))
	out = append(out, stream[:pos]...)
	out = append(out, replacement...)
	out = append(out, stream[pos+length:]...)
	return out
}

// chainBranches retargets `b L1` when L1's block is exactly `b L2`. The
// rewrite is safe regardless of other uses of L1 because L1 itself stays.
func (o *Optimizer) chainBranches(stream []arm64.Instruction) bool {
	// label -> the unconditional branch immediately following it.
	direct := make(map[string]string)
	for i := range stream {
		if !stream[i].IsLabelDefinition {
			continue
		}
		for j := i + 1; j < len(stream); j++ {
			next := &stream[j]
			if next.IsLabelDefinition || next.IsPseudo() {
				continue
			}
			if next.Opcode == arm64.OpB {
				direct[stream[i].TargetLabel] = next.BranchTarget
			}
			break
		}
	}
	changed := false
	for i := range stream {
		ins := &stream[i]
		if ins.Opcode != arm64.OpB || ins.BranchTarget == "" {
			continue
		}
		if final, ok := direct[ins.BranchTarget]; ok && final != ins.BranchTarget {
			if o.trace != nil {
				fmt.Fprintf(o.trace, "peephole: branch chain %s -> %s\n", ins.BranchTarget, final)
			}
			ins.BranchTarget = final
			ins.TargetLabel = final
			ins.Assembly = "b " + final
			changed = true
		}
	}
	return changed
}

// regDeadWithin scans forward from start for up to bound instructions and
// reports whether reg is overwritten before any read. Labels, branches and
// calls end the scan conservatively.
func regDeadWithin(stream []arm64.Instruction, start int, reg arm64.Reg, bound int) bool {
	for i := start; i < len(stream) && i < start+bound; i++ {
		ins := &stream[i]
		if ins.IsLabelDefinition || ins.Opcode.IsBranch() || !optimizable(ins) {
			return false
		}
		if ins.Reads(reg) {
			return false
		}
		if ins.Writes(reg) {
			return true
		}
	}
	return false
}
