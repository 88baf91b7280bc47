package regalloc

import "github.com/mna/corejit/jit/ir"

// Cost constants, modeled on libjit's jit-reg-alloc.c spill-cost weights.
const (
	CostSpillDirty       = 16
	CostSpillClean       = 1
	CostSpillDirtyGlobal = 2
	CostSpillCleanGlobal = 1
	CostCopy             = 4
	CostGlobalBias       = 1
	CostThrash           = 32
	CostClobberGlobal    = 1000
)

// candidateCost computes the total cost of assigning slotValue to reg,
// given the File's current contents: eviction cost for whatever currently
// occupies reg (zero if that occupant is dead), a copy cost if slotValue
// is not already resident in reg, a small bias against global registers,
// and a thrash cost if reg is already claimed by another operand of the
// same instruction.
func (f *File) candidateCost(reg int, slotValue ir.ValueID, alreadyClaimed bool) int {
	cost := 0

	occ := f.regs[reg]
	occupiedByOther := occ.state == stateHolds && occ.value != slotValue
	if occupiedByOther {
		if !occ.dead {
			if f.isGlobal(reg) {
				if occ.frameClean {
					cost += CostSpillCleanGlobal
				} else {
					cost += CostSpillDirtyGlobal
				}
			} else {
				if occ.frameClean {
					cost += CostSpillClean
				} else {
					cost += CostSpillDirty
				}
			}
		}
	}

	if occ.value != slotValue || occ.state != stateHolds {
		cost += CostCopy
	}

	if f.isGlobal(reg) {
		cost += CostGlobalBias
	}

	if alreadyClaimed {
		cost += CostThrash
	}

	if f.permanent[reg] {
		cost += CostClobberGlobal
	}

	return cost
}
