package ir_test

import (
	"testing"

	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/types"
	"github.com/stretchr/testify/require"
)

func TestValueLocationExclusivity(t *testing.T) {
	fn := ir.NewFunction(nil)
	v := fn.NewValue(types.TypeI32)
	val := fn.Value(v)

	val.SetRegister(3)
	require.True(t, val.InRegister)
	require.False(t, val.InFrame)

	val.MarkSpilled()
	require.True(t, val.InRegister)
	require.True(t, val.InFrame, "spill keeps the register live and marks the frame clean")

	val.SetRegister(5)
	require.True(t, val.InRegister)
	require.False(t, val.InFrame, "writing to the register clears a clean frame copy")

	val.Free()
	require.True(t, val.IsDead())
}

func TestGlobalCandidate(t *testing.T) {
	fn := ir.NewFunction(nil)
	v := fn.NewValue(types.TypeI32)
	val := fn.Value(v)
	val.UsageCount = 2
	require.False(t, val.GlobalCandidate())
	val.UsageCount = 3
	require.True(t, val.GlobalCandidate())
	val.IsVolatile = true
	require.False(t, val.GlobalCandidate())
}

func TestFunctionBlocksAndLabels(t *testing.T) {
	fn := ir.NewFunction(nil)
	b0, l0 := fn.NewBlock()
	b1, l1 := fn.NewBlock()
	require.NotEqual(t, l0, l1)

	got, ok := fn.BlockByLabel(l1)
	require.True(t, ok)
	require.Equal(t, b1, got)

	_, ok = fn.BlockByLabel(ir.LabelID(999))
	require.False(t, ok)

	require.Equal(t, 2, fn.NumBlocks())
	_ = b0
}

func TestInstructionOperandsSkipsNonValueSlots(t *testing.T) {
	fn := ir.NewFunction(nil)
	v1 := fn.NewValue(types.TypeI32)
	v2 := fn.NewValue(types.TypeI32)
	dest := fn.NewValue(types.TypeI32)

	id := fn.NewInstruction(ir.ADD)
	in := fn.Instruction(id)
	in.Dest, in.DestFlags = dest, ir.FlagIsValue
	in.Value1, in.Value1Flags = v1, ir.FlagIsValue
	in.Value2, in.Value2Flags = v2, ir.FlagIsValue

	var seen []ir.ValueID
	in.Operands(func(id ir.ValueID, _ ir.OperandFlags, _ bool) { seen = append(seen, id) })
	require.Equal(t, []ir.ValueID{dest, v1, v2}, seen)

	// A branch's Dest holds a label, not a value: FlagOtherFlags, no
	// FlagIsValue, so Operands must not yield it.
	br := fn.NewInstruction(ir.BR)
	brIn := fn.Instruction(br)
	brIn.Dest = ir.ValueID(42) // actually a LabelID in disguise
	brIn.DestFlags = ir.FlagOtherFlags

	seen = nil
	brIn.Operands(func(id ir.ValueID, _ ir.OperandFlags, _ bool) { seen = append(seen, id) })
	require.Empty(t, seen)
	require.False(t, brIn.DefinesValue())
}

func TestLiveRangeLinkedList(t *testing.T) {
	fn := ir.NewFunction(nil)
	v := fn.NewValue(types.TypeI32)

	r1 := fn.NewLiveRange(v)
	r2 := fn.NewLiveRange(v)

	ranges := fn.RangesOf(v)
	require.Equal(t, []ir.RangeID{r1, r2}, ranges)
}

func TestResetForRestartClearsDerivedState(t *testing.T) {
	fn := ir.NewFunction(nil)
	v := fn.NewValue(types.TypeI32)
	fn.Value(v).SetRegister(2)
	fn.NewLiveRange(v)

	b, _ := fn.NewBlock()
	blk := fn.Block(b)
	blk.Address = 1234
	blk.AddFixUp(10)
	fn.IsOptimized = true

	fn.ResetForRestart()

	require.False(t, fn.Value(v).InRegister)
	require.Equal(t, int64(-1), fn.Block(b).Address)
	require.Empty(t, fn.Block(b).FixUps)
	require.False(t, fn.IsOptimized)
	require.Equal(t, 0, fn.NumLiveRanges())
}

func TestOpcodeClassification(t *testing.T) {
	require.True(t, ir.BR.IsTerminator())
	require.True(t, ir.RETURN.IsTerminator())
	require.False(t, ir.ADD.IsTerminator())

	require.True(t, ir.BR_EQ.IsConditionalBranch())
	require.False(t, ir.BR.IsConditionalBranch())

	require.True(t, ir.CALL.IsCall())
	require.True(t, ir.CALL_EXTERNAL.IsCall())
	require.False(t, ir.ADD.IsCall())

	require.True(t, ir.ADD.IsCommutative())
	require.False(t, ir.SUB.IsCommutative())
}
