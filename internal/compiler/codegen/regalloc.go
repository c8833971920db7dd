package codegen

import (
	"fmt"

	"github.com/albanread/nbcgo/internal/compiler/arm64"
)

// RegisterManager hands out physical registers from three pools: caller-
// saved integers x9–x15, callee-saved integers x19–x28, and floats (d0–d7
// and d16–d31 caller-saved, d8–d15 callee-saved). Variables flagged by
// liveness as live across a call prefer callee-saved storage. When the
// preferred pool is exhausted, Acquire falls back to the other pool of the
// same family; spill slots are numbered separately by Spill.
type RegisterManager struct {
	free    map[arm64.Reg]bool
	inUse   map[arm64.Reg]string
	callees []arm64.Reg // callee-saved registers handed out, in order
	spills  int
}

// Pools, in preference order.
var (
	callerSavedInts = []arm64.Reg{
		arm64.X9, arm64.X10, arm64.X11, arm64.X12, arm64.X13, arm64.X14, arm64.X15,
	}
	calleeSavedInts = []arm64.Reg{
		arm64.X19, arm64.X20, arm64.X21, arm64.X22, arm64.X23,
		arm64.X24, arm64.X25, arm64.X26, arm64.X27, arm64.X28,
	}
	callerSavedFloats = []arm64.Reg{
		arm64.D0, arm64.D1, arm64.D2, arm64.D3, arm64.D4, arm64.D5, arm64.D6, arm64.D7,
		arm64.D16, arm64.D17, arm64.D18, arm64.D19, arm64.D20, arm64.D21, arm64.D22, arm64.D23,
		arm64.D24, arm64.D25, arm64.D26, arm64.D27, arm64.D28, arm64.D29, arm64.D30, arm64.D31,
	}
	calleeSavedFloats = []arm64.Reg{
		arm64.D8, arm64.D9, arm64.D10, arm64.D11, arm64.D12, arm64.D13, arm64.D14, arm64.D15,
	}
)

// NewRegisterManager returns a manager with every pool register free.
func NewRegisterManager() *RegisterManager {
	m := &RegisterManager{
		free:  make(map[arm64.Reg]bool),
		inUse: make(map[arm64.Reg]string),
	}
	for _, pools := range [][]arm64.Reg{callerSavedInts, calleeSavedInts, callerSavedFloats, calleeSavedFloats} {
		for _, r := range pools {
			m.free[r] = true
		}
	}
	return m
}

// Kind selects the pool family.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
)

// Acquire hands out a register. biased requests callee-saved storage (the
// variable is live across a call). The second result is false when both
// pools of the family are exhausted and the caller must spill something.
func (m *RegisterManager) Acquire(kind Kind, biased bool, owner string) (arm64.Reg, bool) {
	var pools [][]arm64.Reg
	switch {
	case kind == KindFloat && biased:
		pools = [][]arm64.Reg{calleeSavedFloats, callerSavedFloats}
	case kind == KindFloat:
		pools = [][]arm64.Reg{callerSavedFloats, calleeSavedFloats}
	case biased:
		pools = [][]arm64.Reg{calleeSavedInts, callerSavedInts}
	default:
		pools = [][]arm64.Reg{callerSavedInts, calleeSavedInts}
	}
	for _, pool := range pools {
		for _, r := range pool {
			if m.free[r] {
				m.free[r] = false
				m.inUse[r] = owner
				if isCalleeSavedReg(r) {
					m.noteCallee(r)
				}
				return r, true
			}
		}
	}
	return arm64.NoReg, false
}

// Release returns a register to its pool.
func (m *RegisterManager) Release(r arm64.Reg) {
	if r == arm64.NoReg {
		return
	}
	if _, held := m.inUse[r]; !held {
		panic(fmt.Sprintf("BUG: releasing %s which is not held", r))
	}
	delete(m.inUse, r)
	m.free[r] = true
}

// Spill claims the next numbered spill slot; slots are claimed contiguously
// in the function frame.
func (m *RegisterManager) Spill() int {
	slot := m.spills
	m.spills++
	return slot
}

// SpillCount reports how many spill slots the function needs.
func (m *RegisterManager) SpillCount() int { return m.spills }

// UsedCalleeSaved returns the callee-saved registers that were handed out,
// in first-use order; the prologue saves exactly these.
func (m *RegisterManager) UsedCalleeSaved() []arm64.Reg {
	return append([]arm64.Reg(nil), m.callees...)
}

func (m *RegisterManager) noteCallee(r arm64.Reg) {
	for _, seen := range m.callees {
		if seen == r {
			return
		}
	}
	m.callees = append(m.callees, r)
}

func isCalleeSavedReg(r arm64.Reg) bool {
	return (r >= arm64.X19 && r <= arm64.X28) || (r >= arm64.D8 && r <= arm64.D15)
}
