package regalloc

import "github.com/mna/corejit/jit/ir"

// regState is the per-pseudo-register state machine the local allocator
// drives each physical register through:
//
//	Empty ──assign──▶ Holds(value,…)
//	Holds ──use──▶ Holds (age updated)
//	Holds ──spill──▶ Holds∧frame-clean   (value.in_frame = true)
//	Holds ──free──▶ Empty
//	Holds(stack) ──exch──▶ Holds, with remap swapped
type regState uint8

const (
	stateEmpty regState = iota
	stateHolds
)

type registerEntry struct {
	state      regState
	value      ir.ValueID
	age        int
	frameClean bool // Holds∧frame-clean: the spill transition's target state
	dead       bool // occupant has no further uses, eviction is free
}

// File models the full set of physical registers the local allocator
// chooses among for one function compilation, plus the global-register
// subset and the x87 stack-register file used when FlagStack/FlagX87Arith
// plans are involved.
type File struct {
	fn *ir.Function

	regs      []registerEntry
	global    map[int]bool // callee-saved registers assigned as global registers for this function
	permanent map[int]bool // registers CostClobberGlobal discourages or forbids entirely (e.g. frame/stack pointer)
	clock     int

	Stack *StackFile // nil unless the target has a register stack (x87)
}

// NewFile returns an empty File with numRegs physical registers, none
// occupied.
func NewFile(fn *ir.Function, numRegs int) *File {
	f := &File{
		fn:        fn,
		regs:      make([]registerEntry, numRegs),
		global:    make(map[int]bool),
		permanent: make(map[int]bool),
	}
	return f
}

// MarkGlobal records that reg is reserved as a global register for the
// function currently being compiled.
func (f *File) MarkGlobal(reg int) { f.global[reg] = true }

// MarkPermanent records that reg must never be clobbered by ordinary
// allocation (e.g. the frame pointer); CostClobberGlobal is added to any
// candidate cost involving it.
func (f *File) MarkPermanent(reg int) { f.permanent[reg] = true }

func (f *File) isGlobal(reg int) bool { return f.global[reg] }

// Assign transitions reg from Empty (or Holds, evicting the prior
// occupant) to Holds(value), per the "assign" edge.
func (f *File) Assign(reg int, v ir.ValueID) {
	f.clock++
	f.regs[reg] = registerEntry{state: stateHolds, value: v, age: f.clock}
}

// Use updates reg's age on a read or write, per the "use" edge.
func (f *File) Use(reg int) {
	f.clock++
	f.regs[reg].age = f.clock
}

// Spill transitions reg to Holds∧frame-clean without releasing it, per
// the "spill" edge: the register still holds the value, but it is now
// also mirrored in the frame.
func (f *File) Spill(reg int) {
	f.regs[reg].frameClean = true
}

// Free transitions reg to Empty, per the "free" edge: the value has been
// copied elsewhere or is dead.
func (f *File) Free(reg int) {
	f.regs[reg] = registerEntry{state: stateEmpty}
}

// MarkDead records that reg's current occupant has no further uses, so a
// future eviction of it is free: dead values in a register cost nothing.
func (f *File) MarkDead(reg int) {
	if f.regs[reg].state == stateHolds {
		f.regs[reg].dead = true
	}
}

// Contents reports the value currently resident in reg, and whether the
// register is occupied at all.
func (f *File) Contents(reg int) (ir.ValueID, bool) {
	e := f.regs[reg]
	return e.value, e.state == stateHolds
}

// Locate returns the register currently holding v, or (-1, false) if v is
// not resident in any register of this file.
func (f *File) Locate(v ir.ValueID) (int, bool) {
	for reg, e := range f.regs {
		if e.state == stateHolds && e.value == v {
			return reg, true
		}
	}
	return -1, false
}

// NumRegs returns the number of physical registers this file models.
func (f *File) NumRegs() int { return len(f.regs) }
