package ir

import (
	"github.com/mna/corejit/internal/pool"
	"github.com/mna/corejit/jit/types"
)

// Function owns every Value, Instruction, Block, and LiveRange it
// contains, by index into block-allocated pools, so that cross-references
// between them never need real pointers. A Function is mutable
// (through its Builder, see jit/builder) until compiled; after Compile
// succeeds the IR pools may be discarded while EntryPoint/IsCompiled
// remain valid.
type Function struct {
	Signature *types.Type

	values *pool.Pool[Value]
	insns  *pool.Pool[Instruction]
	blocks *pool.Pool[Block]
	ranges *pool.Pool[LiveRange]

	labels map[LabelID]BlockID
	nextLabel LabelID

	EntryBlock BlockID
	ExitBlock  BlockID

	// CurrentBlock is the block the builder is currently appending to.
	// NoBlock means the next Append must open a fresh block first.
	CurrentBlock BlockID

	// TryFrame is a distinguished hidden value live across a
	// try/catch-protected region, reset on every compile restart. NoValue
	// if the function has no try block.
	TryFrame ValueID

	// CurrentHandler is the block that begins the exception handler
	// currently in scope; every block NewBlock creates while this is set
	// records it as that block's Handler. The builder pushes it on
	// entering a protected region and restores the previous value on
	// leaving one. NoBlock outside any handler scope.
	CurrentHandler BlockID

	// EHTablePage/Off/Len locate the sealed exception-handler table
	// within the code cache's auxiliary area, in the same encoding
	// OffsetMapPage/Off/Len use for the bytecode-offset map.
	// EHTableLen is 0 if the function has no protected blocks.
	EHTablePage int
	EHTableOff  int64
	EHTableLen  int64

	// Status bits.
	IsCompiled     bool
	IsRecompilable bool
	NoThrow        bool
	NoReturn       bool
	HasTry         bool
	IsOptimized    bool
	HasTailCall    bool

	// Published after a successful compile: readers must
	// not observe a non-nil EntryPoint before IsCompiled is also visible,
	// which jit/codegen guarantees by holding the context's build lock
	// across both stores.
	EntryPoint   uintptr
	CodeStart    int64
	CodeEnd      int64

	// OffsetMapPage/Off/Len locate the sealed varint-encoded
	// bytecode-offset map within the code cache's auxiliary area;
	// OffsetMapLen is 0 if the function had no
	// MARK_OFFSET instructions.
	OffsetMapPage int
	OffsetMapOff  int64
	OffsetMapLen  int64

	OOM bool // out-of-memory status set by the builder on allocation failure
}

// NewFunction returns an empty Function ready for building.
func NewFunction(sig *types.Type) *Function {
	fn := &Function{
		Signature:    sig,
		values:       pool.New[Value](0),
		insns:        pool.New[Instruction](0),
		blocks:       pool.New[Block](0),
		ranges:       pool.New[LiveRange](0),
		labels:       make(map[LabelID]BlockID),
		EntryBlock:   NoBlock,
		ExitBlock:    NoBlock,
		CurrentBlock:   NoBlock,
		TryFrame:       NoValue,
		CurrentHandler: NoBlock,
	}
	return fn
}

// --- Values ---

// NewValue allocates a fresh Value of the given type and returns its
// stable ValueID.
func (fn *Function) NewValue(t *types.Type) ValueID {
	idx, v := fn.values.Alloc()
	v.Type = t
	v.Reg = -1
	v.GlobalReg = -1
	v.Index = idx
	v.FirstRange = NoRange
	v.LastRange = NoRange
	return ValueID(idx)
}

// Value returns a pointer to the Value with the given ID. The pointer is
// stable for the Function's lifetime (see internal/pool).
func (fn *Function) Value(id ValueID) *Value {
	if id == NoValue {
		return nil
	}
	return fn.values.Get(int(id))
}

// NumValues returns how many values have been allocated.
func (fn *Function) NumValues() int { return fn.values.Len() }

// EachValue calls fn2 for every allocated value in ID order.
func (fn *Function) EachValue(fn2 func(id ValueID, v *Value)) {
	fn.values.Each(func(idx int, v *Value) { fn2(ValueID(idx), v) })
}

// --- Instructions ---

// NewInstruction allocates a fresh Instruction and returns its stable
// InsnID. Operand slots default to NoValue/not-a-value.
func (fn *Function) NewInstruction(op Opcode) InsnID {
	idx, in := fn.insns.Alloc()
	in.Opcode = op
	in.Dest, in.Value1, in.Value2 = NoValue, NoValue, NoValue
	in.DestRange, in.Value1Range, in.Value2Range = NoRange, NoRange, NoRange
	return InsnID(idx)
}

// Instruction returns a pointer to the instruction with the given ID.
func (fn *Function) Instruction(id InsnID) *Instruction {
	return fn.insns.Get(int(id))
}

// NumInstructions returns how many instructions have been allocated.
func (fn *Function) NumInstructions() int { return fn.insns.Len() }

// EachInstruction calls fn2 for every allocated instruction in ID order.
func (fn *Function) EachInstruction(fn2 func(id InsnID, in *Instruction)) {
	fn.insns.Each(func(idx int, in *Instruction) { fn2(InsnID(idx), in) })
}

// --- Blocks ---

// NewBlock allocates a fresh Block bound to a freshly minted LabelID and
// returns its stable BlockID.
func (fn *Function) NewBlock() (BlockID, LabelID) {
	label := fn.nextLabel
	fn.nextLabel++
	idx, b := fn.blocks.Alloc()
	b.Label = label
	b.FirstInsn = InsnID(fn.insns.Len())
	b.LastInsn = b.FirstInsn - 1
	b.Address = -1
	b.Handler = fn.CurrentHandler
	fn.labels[label] = BlockID(idx)
	return BlockID(idx), label
}

// Block returns a pointer to the block with the given ID.
func (fn *Function) Block(id BlockID) *Block {
	if id == NoBlock {
		return nil
	}
	return fn.blocks.Get(int(id))
}

// NumBlocks returns how many blocks have been allocated.
func (fn *Function) NumBlocks() int { return fn.blocks.Len() }

// EachBlock calls fn2 for every allocated block in ID order (which is also
// emission order, since blocks are only ever appended).
func (fn *Function) EachBlock(fn2 func(id BlockID, b *Block)) {
	fn.blocks.Each(func(idx int, b *Block) { fn2(BlockID(idx), b) })
}

// BlockByLabel resolves a LabelID to its BlockID, returning (NoBlock,
// false) if the label has not been bound yet (a forward reference the
// caller must fix up later).
func (fn *Function) BlockByLabel(label LabelID) (BlockID, bool) {
	id, ok := fn.labels[label]
	return id, ok
}

// --- Live ranges ---

// NewLiveRange allocates a fresh LiveRange for value v, links it onto v's
// range list, and returns its stable RangeID.
func (fn *Function) NewLiveRange(v ValueID) RangeID {
	idx, r := fn.ranges.Alloc()
	*r = *NewLiveRange(v)
	id := RangeID(idx)

	val := fn.Value(v)
	if val == nil {
		// A NoValue live range is a dummy/fixed range synthesized for a
		// hardware constraint (e.g. a call-clobbered register) rather than
		// one tied to an actual IR value; it has nothing to link.
		return id
	}
	if val.FirstRange == NoRange {
		val.FirstRange = id
		val.LastRange = id
	} else {
		last := fn.LiveRange(val.LastRange)
		last.NextInValue = id
		r.PrevInValue = val.LastRange
		val.LastRange = id
	}
	return id
}

// LiveRange returns a pointer to the live range with the given ID.
func (fn *Function) LiveRange(id RangeID) *LiveRange {
	if id == NoRange {
		return nil
	}
	return fn.ranges.Get(int(id))
}

// NumLiveRanges returns how many live ranges have been allocated.
func (fn *Function) NumLiveRanges() int { return fn.ranges.Len() }

// EachLiveRange calls fn2 for every allocated live range in ID order.
func (fn *Function) EachLiveRange(fn2 func(id RangeID, r *LiveRange)) {
	fn.ranges.Each(func(idx int, r *LiveRange) { fn2(RangeID(idx), r) })
}

// RangesOf returns every live range currently linked to value v, in
// creation order.
func (fn *Function) RangesOf(v ValueID) []RangeID {
	var out []RangeID
	val := fn.Value(v)
	for id := val.FirstRange; id != NoRange; {
		out = append(out, id)
		id = fn.LiveRange(id).NextInValue
	}
	return out
}

// ResetForRestart clears every value's location bits and every block's
// compiled-address/fix-up state, and discards all live ranges, the shape
// a cache-full restart requires: the IR
// structure (values, instructions, blocks, edges) survives, only the
// per-compile-attempt derived state (locations, addresses, ranges) is
// thrown away and rebuilt on retry.
func (fn *Function) ResetForRestart() {
	fn.EachValue(func(_ ValueID, v *Value) {
		v.ResetLocations()
		v.FirstRange, v.LastRange = NoRange, NoRange
	})
	fn.EachBlock(func(_ BlockID, b *Block) {
		b.Address = -1
		b.ClearFixUps()
	})
	fn.ranges.Reset()
	fn.IsOptimized = false
	fn.OffsetMapPage, fn.OffsetMapOff, fn.OffsetMapLen = 0, 0, 0
	fn.EHTablePage, fn.EHTableOff, fn.EHTableLen = 0, 0, 0
}
