// Package builder implements the IR construction API: appending
// instructions to the current block (opening a fresh block
// implicitly when needed), allocating/binding labels, interning constants,
// and running algebraic simplification/constant folding on every append
// via the opcode intrinsic table in intrinsics.go.
//
// Grounded on lang/compiler/compiler.go's pcomp/fcomp append machinery and
// lang/compiler/opcode.go's opcode metadata table.
package builder

import (
	"github.com/dolthub/swiss"

	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/jerr"
	"github.com/mna/corejit/jit/types"
)

// constKey uniquely identifies an interned constant by type kind plus
// payload, so that `Constant(I32, 7)` always yields the same ir.ValueID
// within one Builder.
type constKey struct {
	kind  types.Kind
	ival  int64
	fval  float64
}

// Builder appends instructions to a Function under construction. A
// Builder becomes invalid once the Function is compiled; Append then
// returns a CalledNested-coded error, since appending to a compiled
// function is a hard error.
type Builder struct {
	fn       *ir.Function
	consts   *swiss.Map[constKey, ir.ValueID]
	finished bool
}

// New returns a Builder appending to fn.
func New(fn *ir.Function) *Builder {
	return &Builder{fn: fn, consts: swiss.NewMap[constKey, ir.ValueID](16)}
}

// Function returns the Function this Builder is building.
func (b *Builder) Function() *ir.Function { return b.fn }

// Finish marks the builder done; subsequent Append calls fail. The
// code-generation driver calls this before compiling.
func (b *Builder) Finish() { b.finished = true }

// Constant interns (or reuses) a constant integer/pointer value of the
// given type: the resulting ir.Value has IsConstant set and its address
// (IntValue) holds the int/pointer payload directly.
func (b *Builder) Constant(t *types.Type, ival int64) ir.ValueID {
	key := constKey{kind: t.Kind, ival: ival}
	if id, ok := b.consts.Get(key); ok {
		return id
	}
	id := b.fn.NewValue(t)
	v := b.fn.Value(id)
	v.IsConstant = true
	v.IntValue = ival
	b.consts.Put(key, id)
	return id
}

// ConstantFloat interns (or reuses) a constant float/double value.
func (b *Builder) ConstantFloat(t *types.Type, fval float64) ir.ValueID {
	key := constKey{kind: t.Kind, fval: fval}
	if id, ok := b.consts.Get(key); ok {
		return id
	}
	id := b.fn.NewValue(t)
	v := b.fn.Value(id)
	v.IsConstant = true
	v.FloatValue = fval
	b.consts.Put(key, id)
	return id
}

// NewTemp allocates a fresh, compiler-generated (IsTemporary) value of the
// given type, the usual Dest for an Append call.
func (b *Builder) NewTemp(t *types.Type) ir.ValueID {
	id := b.fn.NewValue(t)
	b.fn.Value(id).IsTemporary = true
	return id
}

// ensureOpenBlock opens a fresh block if there is no current block, or if
// the current block's last instruction is already a terminator: appends go
// to the current block unless it is already terminated, in which case a
// fresh block is opened implicitly.
func (b *Builder) ensureOpenBlock() ir.BlockID {
	cur := b.fn.CurrentBlock
	if cur == ir.NoBlock {
		id, _ := b.fn.NewBlock()
		b.fn.CurrentBlock = id
		b.fn.EntryBlock = id
		return id
	}
	blk := b.fn.Block(cur)
	if !blk.Empty() {
		last := b.fn.Instruction(blk.LastInsn)
		if last.Opcode.IsTerminator() {
			id, _ := b.fn.NewBlock()
			b.fn.CurrentBlock = id
			return id
		}
	}
	return cur
}

// Append appends an instruction to the current block (opening a new one
// implicitly if needed), then attempts algebraic simplification/constant
// folding. If folding succeeds the instruction is never materialized: dest
// instead becomes a constant holding the folded result, and Append returns
// (ir.NoValue's sibling sentinel InsnID -1, true, nil) via the folded
// return value. Label operands (dest carrying a LabelID instead of a
// value, e.g. for BR*) must use AppendBranch instead.
func (b *Builder) Append(op ir.Opcode, dest, v1, v2 ir.ValueID) (ir.InsnID, bool, error) {
	if b.finished {
		return 0, false, jerr.New(jerr.CalledNested, "append to a compiled function")
	}

	if folded, ok := b.tryFold(op, dest, v1, v2); ok {
		return -1, folded, nil
	}

	blockID := b.ensureOpenBlock()
	id := b.fn.NewInstruction(op)
	in := b.fn.Instruction(id)
	if dest != ir.NoValue {
		in.Dest, in.DestFlags = dest, ir.FlagIsValue
	}
	if v1 != ir.NoValue {
		in.Value1, in.Value1Flags = v1, ir.FlagIsValue
		b.fn.Value(v1).UsageCount++
	}
	if v2 != ir.NoValue {
		in.Value2, in.Value2Flags = v2, ir.FlagIsValue
		b.fn.Value(v2).UsageCount++
	}

	blk := b.fn.Block(blockID)
	if blk.Empty() {
		blk.FirstInsn = id
	}
	blk.LastInsn = id
	return id, false, nil
}

// AppendBranch appends a branch instruction whose Dest slot carries a
// label (not a value), per the label protocol: forward references are
// patched once their target block is emitted. v1/v2 are the compared
// values for a conditional branch, or ir.NoValue for BR.
func (b *Builder) AppendBranch(op ir.Opcode, label ir.LabelID, v1, v2 ir.ValueID) ir.InsnID {
	blockID := b.ensureOpenBlock()
	id := b.fn.NewInstruction(op)
	in := b.fn.Instruction(id)
	in.Dest = ir.ValueID(label)
	in.DestFlags = ir.FlagOtherFlags
	if v1 != ir.NoValue {
		in.Value1, in.Value1Flags = v1, ir.FlagIsValue
		b.fn.Value(v1).UsageCount++
	}
	if v2 != ir.NoValue {
		in.Value2, in.Value2Flags = v2, ir.FlagIsValue
		b.fn.Value(v2).UsageCount++
	}

	blk := b.fn.Block(blockID)
	if blk.Empty() {
		blk.FirstInsn = id
	}
	blk.LastInsn = id

	// A branch terminates the current block: the very next Append/
	// AppendBranch call must open a fresh one.
	return id
}

// NewLabel allocates a block (and its LabelID) for a future branch target
// that has not been emitted into yet; callers obtain the BlockID
// immediately (this IR does not defer block allocation). Label allocation
// is monotone and binds immediately to its block, since Function.NewBlock
// both allocates and binds.
func (b *Builder) NewLabel() (ir.BlockID, ir.LabelID) {
	return b.fn.NewBlock()
}

// SwitchToBlock makes block the current block for subsequent Append
// calls, used once a previously-allocated label's block is ready to
// receive instructions.
func (b *Builder) SwitchToBlock(block ir.BlockID) {
	b.fn.CurrentBlock = block
}

// PushHandler enters a protected region: handler names the block that
// begins the exception handler guarding every block created from now on,
// until the matching PopHandler. It returns the previously active
// handler (NoBlock if none), which the caller must pass to PopHandler to
// restore it, so protected regions nest correctly.
func (b *Builder) PushHandler(handler ir.BlockID) ir.BlockID {
	prev := b.fn.CurrentHandler
	b.fn.CurrentHandler = handler
	return prev
}

// PopHandler leaves the current protected region, restoring prev (the
// value PushHandler returned) as the active handler.
func (b *Builder) PopHandler(prev ir.BlockID) {
	b.fn.CurrentHandler = prev
}

// tryFold implements the builder's constant-folding rule: when all
// inputs are constant and the opcode has a registered Intrinsic, evaluate
// it and make dest a constant holding the result instead of emitting the
// instruction. Returns (_, false) when the opcode/operands are not
// foldable, in which case the caller must append the real instruction.
func (b *Builder) tryFold(op ir.Opcode, dest, v1, v2 ir.ValueID) (bool, bool) {
	intr, ok := intrinsics[op]
	if !ok || dest == ir.NoValue {
		return false, false
	}

	destVal := b.fn.Value(dest)
	val1 := b.fn.Value(v1)
	if val1 == nil || !val1.IsConstant {
		return false, false
	}

	// The operand representation (int vs. float) follows the operand's own
	// type, not dest's: a comparison's dest is always i32 even when its
	// operands are f64.
	operandIsFloat := val1.Type.Kind.IsFloat()

	var a, bop ConstOperand
	if operandIsFloat {
		a = ConstOperand{Float: val1.FloatValue}
	} else {
		a = ConstOperand{Int: val1.IntValue}
	}

	needsTwo := v2 != ir.NoValue
	var val2 *ir.Value
	if needsTwo {
		val2 = b.fn.Value(v2)
		if val2 == nil || !val2.IsConstant {
			return false, false
		}
		if operandIsFloat {
			bop = ConstOperand{Float: val2.FloatValue}
		} else {
			bop = ConstOperand{Int: val2.IntValue}
		}
	}

	if operandIsFloat {
		if !destVal.Type.Kind.IsFloat() {
			// Float comparisons are not folded by this table; keep the real
			// instruction rather than mis-evaluate via the integer path.
			return false, false
		}
		f, ok := foldFloat64(op, a.Float, bop.Float)
		if !ok {
			return false, false
		}
		destVal.IsConstant = true
		destVal.FloatValue = f
		return true, true
	}

	if !ovfOK(op, val1.IntValue, bop.Int) {
		// Checked op actually overflows: refuse to fold so the real
		// instruction (and its runtime overflow check) is emitted.
		return false, false
	}

	result := intr.Fn(a, bop)
	if intr.Flags == FlagNot {
		if result.Int == 0 {
			result.Int = 1
		} else {
			result.Int = 0
		}
	}

	destVal.IsConstant = true
	destVal.IntValue = result.Int
	return true, true
}
