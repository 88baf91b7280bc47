package ir

// InsnID indexes an Instruction in a Function's instruction pool.
type InsnID int32

// OperandFlags describes one operand slot's role (dest, value1, or
// value2). OtherFlags disables treating
// the slot's ValueID as a real value reference — used when the slot
// actually stores a label ID or an inline immediate (e.g. BR's dest is a
// label, not a value).
type OperandFlags uint8

const (
	FlagIsValue OperandFlags = 1 << iota
	FlagLive
	FlagNextUse
	FlagOtherFlags
)

// RangeID indexes a LiveRange in a Function's live-range pool. NoRange is
// the "no live range assigned yet" sentinel.
type RangeID int32

const NoRange RangeID = -1

// Instruction is a three-address IR operation: an opcode plus up to three
// operand slots (Dest, Value1, Value2) and their per-slot flag bits.
// Aux carries opcode-specific immediate data (label IDs
// for branches, byte offsets for LOAD_RELATIVE/STORE_RELATIVE, element
// scale for LOAD_ELEMENT/STORE_ELEMENT, the debug offset for MARK_OFFSET).
type Instruction struct {
	Opcode Opcode

	Dest, Value1, Value2                   ValueID
	DestFlags, Value1Flags, Value2Flags    OperandFlags
	Aux                                    int64

	// Live-range back-references, one per operand slot that is a real
	// value reference, populated by jit/cfg. ScratchRanges has room for
	// "scratch" live ranges for temporaries; nothing in jit/cfg fills it.
	DestRange, Value1Range, Value2Range RangeID
	ScratchRanges                       []RangeID

	// Next-use info is carried by the FlagLive/FlagNextUse bits of each
	// slot's flags; jit/cfg does not set them, so they stay clear unless
	// the instruction's creator sets them.
}

// IsNop reports whether the instruction should be skipped by liveness,
// codegen, and the cleaner's peephole passes.
func (in *Instruction) IsNop() bool { return in.Opcode == NOP }

// Operands calls fn for each operand slot that is flagged as a real value
// reference (FlagIsValue), in Dest, Value1, Value2 order. This is the
// single place liveness/live-range/allocator code should use to enumerate
// an instruction's value operands, so that label/immediate slots (which
// reuse the ValueID field in disguise, e.g. BR's Dest) are never mistaken
// for value references.
func (in *Instruction) Operands(fn func(id ValueID, flags OperandFlags, isDest bool)) {
	if in.DestFlags&FlagIsValue != 0 && in.Dest != NoValue {
		fn(in.Dest, in.DestFlags, true)
	}
	if in.Value1Flags&FlagIsValue != 0 && in.Value1 != NoValue {
		fn(in.Value1, in.Value1Flags, false)
	}
	if in.Value2Flags&FlagIsValue != 0 && in.Value2 != NoValue {
		fn(in.Value2, in.Value2Flags, false)
	}
}

// Uses calls fn for every operand that is read (Value1/Value2 always;
// Dest only for a read-modify-write encoding, which this IR does not use,
// so Dest is never a use here).
func (in *Instruction) Uses(fn func(id ValueID)) {
	if in.Value1Flags&FlagIsValue != 0 && in.Value1 != NoValue {
		fn(in.Value1)
	}
	if in.Value2Flags&FlagIsValue != 0 && in.Value2 != NoValue {
		fn(in.Value2)
	}
}

// DefinesValue reports whether this instruction assigns Dest as a real
// value (as opposed to using Dest as a label operand for a branch).
func (in *Instruction) DefinesValue() bool {
	return in.DestFlags&FlagIsValue != 0 && in.Dest != NoValue
}
