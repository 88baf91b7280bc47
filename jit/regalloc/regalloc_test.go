package regalloc_test

import (
	"testing"

	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/regalloc"
	"github.com/stretchr/testify/require"
)

func TestStateMachineTransitions(t *testing.T) {
	f := regalloc.NewFile(nil, 4)

	v := ir.ValueID(7)
	f.Assign(0, v)
	got, ok := f.Contents(0)
	require.True(t, ok)
	require.Equal(t, v, got)

	f.Use(0) // Holds --use--> Holds, age updated; no state change to observe directly

	f.Spill(0) // Holds --spill--> Holds∧frame-clean
	_, ok = f.Contents(0)
	require.True(t, ok, "spill keeps the register occupied")

	f.Free(0) // Holds --free--> Empty
	_, ok = f.Contents(0)
	require.False(t, ok)
}

func TestLocateFindsResidentValue(t *testing.T) {
	f := regalloc.NewFile(nil, 4)
	v := ir.ValueID(3)
	f.Assign(2, v)

	reg, ok := f.Locate(v)
	require.True(t, ok)
	require.Equal(t, 2, reg)

	_, ok = f.Locate(ir.ValueID(99))
	require.False(t, ok)
}

// TestAllocatePrefersLeastRecentlyTouchedOnCostTie exercises the
// tie-break rule: when two empty candidate registers cost the same,
// Allocate picks the one least recently touched (largest age).
func TestAllocatePrefersLeastRecentlyTouchedOnCostTie(t *testing.T) {
	f := regalloc.NewFile(nil, 2)
	// Both registers hold a dead value (eviction is free) of a different
	// value than the incoming one, so both candidates cost exactly
	// CostCopy — a tie. Register 0 was touched first, so it is the
	// stalest by the time register 1 is touched.
	f.Assign(0, ir.ValueID(100))
	f.MarkDead(0)
	f.Assign(1, ir.ValueID(101))
	f.MarkDead(1)

	plan := &regalloc.RegisterPlan{}
	plan.Value1 = regalloc.NewOperandSlot(ir.ValueID(1), []int{0, 1}, false, false, true, true)

	dec, err := regalloc.Allocate(f, plan)
	require.NoError(t, err)
	require.Equal(t, 0, dec.Value1, "register 0 is the least recently touched and wins the cost tie")
}

// TestAllocateSharesDuplicateOperands exercises duplicate-operand
// detection: two operand slots referencing the same value, neither
// early_clobber, are assigned the same register and only materialized
// once.
func TestAllocateSharesDuplicateOperands(t *testing.T) {
	f := regalloc.NewFile(nil, 2)

	v := ir.ValueID(11)
	plan := &regalloc.RegisterPlan{Flags: regalloc.FlagCommutative}
	plan.Value1 = regalloc.NewOperandSlot(v, nil, false, false, true, true)
	plan.Value2 = regalloc.NewOperandSlot(v, nil, false, false, true, true)

	dec, err := regalloc.Allocate(f, plan)
	require.NoError(t, err)
	require.Equal(t, dec.Value1, dec.Value2, "duplicate operands share one register")

	loads := 0
	for _, m := range dec.Moves {
		if m.Kind == regalloc.MoveLoad {
			loads++
		}
	}
	require.Equal(t, 1, loads, "the shared value is only materialized once")
}

// TestAllocateAlreadyResidentNeedsNoMoves verifies an instruction
// reusing a value already resident in its chosen register needs no moves
// at all — just the "use" transition.
func TestAllocateAlreadyResidentNeedsNoMoves(t *testing.T) {
	f := regalloc.NewFile(nil, 2)
	v := ir.ValueID(4)
	f.Assign(0, v)

	plan := &regalloc.RegisterPlan{}
	plan.Value1 = regalloc.NewOperandSlot(v, []int{0}, false, false, true, true)

	dec, err := regalloc.Allocate(f, plan)
	require.NoError(t, err)
	require.Equal(t, 0, dec.Value1)
	require.Empty(t, dec.Moves)
}

// TestAllocateEvictsDirtyOccupant verifies evicting a register holding a
// different, non-dead value generates a spill move before the new value
// is loaded.
func TestAllocateEvictsDirtyOccupant(t *testing.T) {
	f := regalloc.NewFile(nil, 1)
	occupant := ir.ValueID(1)
	f.Assign(0, occupant)

	incoming := ir.ValueID(2)
	plan := &regalloc.RegisterPlan{}
	plan.Value1 = regalloc.NewOperandSlot(incoming, []int{0}, false, false, true, true)

	dec, err := regalloc.Allocate(f, plan)
	require.NoError(t, err)
	require.Equal(t, 0, dec.Value1)
	require.Len(t, dec.Moves, 2)
	require.Equal(t, regalloc.MoveSpill, dec.Moves[0].Kind)
	require.Equal(t, occupant, dec.Moves[0].Value)
	require.Equal(t, regalloc.MoveLoad, dec.Moves[1].Kind)
	require.Equal(t, incoming, dec.Moves[1].Value)

	got, ok := f.Contents(0)
	require.True(t, ok)
	require.Equal(t, incoming, got)
}

// TestAllocateNoCandidatesIsIllFormed checks the documented failure mode:
// a BRANCH plan (which must not break global registers) whose entire
// Allowed set is global registers leaves no legal candidate, surfaced as
// an error rather than a panic.
func TestAllocateNoCandidatesIsIllFormed(t *testing.T) {
	f := regalloc.NewFile(nil, 2)
	f.MarkGlobal(0)
	f.MarkGlobal(1)

	plan := &regalloc.RegisterPlan{Flags: regalloc.FlagBranch}
	plan.Value1 = regalloc.NewOperandSlot(ir.ValueID(1), []int{0, 1}, false, false, true, true)

	_, err := regalloc.Allocate(f, plan)
	require.Error(t, err)
}

// TestStackFileChoosesPopFormForDyingTopOperand: v1 and v2 both reside in
// the x87 stack register file, v1 used once (dies here), v2 used twice
// (live after). fmul v1 v2 should choose the pop-v1 form, leaving v2 on
// the stack.
func TestStackFileChoosesPopFormForDyingTopOperand(t *testing.T) {
	sf := regalloc.NewStackFile(8)
	sf.Push(6) // v2 pushed first, now at slot 1 once v1 is pushed
	sf.Push(5) // v1 pushed last, now on top

	require.Equal(t, 5, sf.Top())

	form, ok := sf.ChooseBinaryForm(5 /* v1 */, 6 /* v2 */, false /* v1 dies */, true /* v2 live */)
	require.True(t, ok)
	require.True(t, form.Pop, "v1 is on top and dies: use the pop form")
	require.False(t, form.Reverse)

	sf.Pop() // the chosen form discards the top of stack (v1's slot)
	require.Equal(t, 6, sf.Top(), "v2 remains on the stack after v1's slot is popped")
}

func TestStackFileExchTopSwapsRemap(t *testing.T) {
	sf := regalloc.NewStackFile(4)
	sf.Push(2)
	sf.Push(1)
	sf.Push(0)
	require.Equal(t, 0, sf.Top())

	sf.ExchTop(2)
	require.Equal(t, 2, sf.Top())
	require.Equal(t, 0, sf.SlotOf(2), "register 2 is now at the top slot")
	require.Equal(t, 2, sf.SlotOf(0), "register 0, displaced, took register 2's old slot")
}
