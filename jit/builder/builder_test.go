package builder_test

import (
	"testing"

	"github.com/mna/corejit/jit/builder"
	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/jerr"
	"github.com/mna/corejit/jit/types"
	"github.com/stretchr/testify/require"
)

// v1 = const 3, v2 = const 4, v3 = add v1 v2, return v3. After append,
// the add instruction must never be materialized and v3 must be a
// constant with IntValue 7.
func TestConstantFoldAddI32(t *testing.T) {
	fn := ir.NewFunction(types.NewSignature(types.TypeI32, nil, types.ABICdecl))
	b := builder.New(fn)

	v1 := b.Constant(types.TypeI32, 3)
	v2 := b.Constant(types.TypeI32, 4)
	v3 := fn.NewValue(types.TypeI32)

	before := fn.NumInstructions()
	_, folded, err := b.Append(ir.ADD, v3, v1, v2)
	require.NoError(t, err)
	require.True(t, folded)
	require.Equal(t, before, fn.NumInstructions(), "folded add must not append an instruction")

	v3val := fn.Value(v3)
	require.True(t, v3val.IsConstant)
	require.Equal(t, int64(7), v3val.IntValue)
}

func TestConstantInterning(t *testing.T) {
	fn := ir.NewFunction(nil)
	b := builder.New(fn)

	a := b.Constant(types.TypeI32, 42)
	c := b.Constant(types.TypeI32, 42)
	require.Equal(t, a, c, "the same constant must be interned once")

	d := b.Constant(types.TypeI64, 42)
	require.NotEqual(t, a, d, "different kinds must not collide")
}

func TestAppendOpensImplicitBlockAfterTerminator(t *testing.T) {
	fn := ir.NewFunction(nil)
	b := builder.New(fn)

	v1 := b.Constant(types.TypeI32, 1)
	target, targetLabel := b.NewLabel()

	b.AppendBranch(ir.BR, targetLabel, ir.NoValue, ir.NoValue)

	// Current block now ends in a terminator (BR); appending again must
	// open a fresh block rather than append after the terminator.
	firstBlock := fn.CurrentBlock
	dest := fn.NewValue(types.TypeI32)
	_, _, err := b.Append(ir.ADD, dest, v1, v1)
	require.NoError(t, err)
	require.NotEqual(t, firstBlock, fn.CurrentBlock, "append after a terminator opens a new block")

	b.SwitchToBlock(target)
	require.Equal(t, target, fn.CurrentBlock)
}

func TestAppendAfterFinishFails(t *testing.T) {
	fn := ir.NewFunction(nil)
	b := builder.New(fn)
	b.Finish()

	v := fn.NewValue(types.TypeI32)
	_, _, err := b.Append(ir.NOP, v, ir.NoValue, ir.NoValue)
	require.Error(t, err)
	require.True(t, jerr.Is(err, jerr.CalledNested))
}

func TestOverflowingCheckedOpIsNotFolded(t *testing.T) {
	fn := ir.NewFunction(nil)
	b := builder.New(fn)

	maxI32 := b.Constant(types.TypeI32, int64(int32(1)<<31-1))
	one := b.Constant(types.TypeI32, 1)
	dest := fn.NewValue(types.TypeI32)

	before := fn.NumInstructions()
	_, folded, err := b.Append(ir.ADD_OVF, dest, maxI32, one)
	require.NoError(t, err)
	require.False(t, folded, "an actually-overflowing checked add must not fold")
	require.Equal(t, before+1, fn.NumInstructions())
}

func TestFlagNotFoldsLogicalComplement(t *testing.T) {
	fn := ir.NewFunction(nil)
	b := builder.New(fn)

	a := b.Constant(types.TypeI32, 3)
	c := b.Constant(types.TypeI32, 3)
	dest := fn.NewValue(types.TypeI32)

	_, folded, err := b.Append(ir.CMP_NE, dest, a, c)
	require.NoError(t, err)
	require.True(t, folded)
	require.Equal(t, int64(0), fn.Value(dest).IntValue, "3 != 3 is false")

	dest2 := fn.NewValue(types.TypeI32)
	d := b.Constant(types.TypeI32, 4)
	_, folded, err = b.Append(ir.CMP_NE, dest2, a, d)
	require.NoError(t, err)
	require.True(t, folded)
	require.Equal(t, int64(1), fn.Value(dest2).IntValue, "3 != 4 is true")
}

func TestNonConstantOperandIsNotFolded(t *testing.T) {
	fn := ir.NewFunction(nil)
	b := builder.New(fn)

	v1 := fn.NewValue(types.TypeI32) // not constant
	v2 := b.Constant(types.TypeI32, 4)
	dest := fn.NewValue(types.TypeI32)

	_, folded, err := b.Append(ir.ADD, dest, v1, v2)
	require.NoError(t, err)
	require.False(t, folded)
	require.Equal(t, 1, fn.NumInstructions())
}

func TestPushPopHandlerStampsBlocks(t *testing.T) {
	fn := ir.NewFunction(nil)
	b := builder.New(fn)

	before := fn.CurrentBlock
	require.Equal(t, ir.NoBlock, fn.Block(before).Handler, "block created before any handler scope has no handler")

	handlerBlock, _ := b.NewLabel()
	prev := b.PushHandler(handlerBlock)
	require.Equal(t, ir.NoBlock, prev)

	protected, _ := b.NewLabel()
	require.Equal(t, handlerBlock, fn.Block(protected).Handler, "block created inside the scope records the active handler")

	b.PopHandler(prev)
	after, _ := b.NewLabel()
	require.Equal(t, ir.NoBlock, fn.Block(after).Handler, "block created after leaving the scope has no handler again")
}
