package ir

import "github.com/mna/corejit/jit/types"

// ValueID indexes a Value in a Function's value pool, starting at 0.
// NoValue (-1) is never a valid allocated value.
type ValueID int32

// NoValue is the sentinel "absent operand" ValueID.
const NoValue ValueID = -1

// Value is a typed holder of a single datum. Exactly one
// of {IsConstant, InRegister, InGlobalRegister, InFrame} is authoritative
// at any sequence point, per the location-exclusivity invariant: when
// InRegister and InFrame are both set, the frame copy is clean and
// considered a cached mirror of the register, not a second authority.
type Value struct {
	Type *types.Type

	// Location bits. See the per-register state machine in jit/regalloc.
	IsConstant       bool
	InRegister       bool
	InGlobalRegister bool
	InFrame          bool
	HasGlobalRegister bool // candidacy flag, set by global allocation ranking

	// Location data.
	Reg          int   // pseudo-register index, valid iff InRegister
	GlobalReg    int   // valid iff InGlobalRegister
	FrameOffset  int32 // relative to frame pointer; negative refers to incoming args in the interpreter variant
	IntValue     int64 // constant int/pointer payload, or sidecar slot index for float/long
	FloatValue   float64

	// Inhibitors.
	IsAddressable bool
	IsVolatile    bool
	IsTemporary   bool // compiler-generated, not user-named

	Index      int // dense value id used by bitsets; equal to this Value's ValueID
	UsageCount int // frequency heuristic for global allocation

	// Doubly-linked list of live ranges touching this value, by RangeID.
	// Maintained by jit/cfg.BuildLiveRanges.
	FirstRange RangeID
	LastRange  RangeID
}

// IsDead reports whether the value currently has no authoritative copy
// anywhere — the terminal state of the free transition in the per-register
// state machine.
func (v *Value) IsDead() bool {
	return !v.IsConstant && !v.InRegister && !v.InGlobalRegister && !v.InFrame
}

// SetRegister records that v's authoritative copy now lives in register
// reg. Per the location-exclusivity invariant, writing to a register
// invalidates any previously clean frame mirror.
func (v *Value) SetRegister(reg int) {
	v.InRegister = true
	v.Reg = reg
	v.InFrame = false
}

// MarkSpilled records that v's register contents have been written back to
// its frame slot: both InRegister and InFrame become true and, per the
// invariant, bitwise equal until the next write to the register.
func (v *Value) MarkSpilled() {
	v.InFrame = true
}

// Free releases the register location without spilling; v has no
// authoritative copy left unless a frame copy was already clean.
func (v *Value) Free() {
	v.InRegister = false
	v.Reg = -1
}

// ResetLocations clears every location bit back to "nowhere", the step the
// code-generation driver performs on every values when a compile restarts
// after a cache-full condition.
func (v *Value) ResetLocations() {
	if v.IsConstant {
		return
	}
	v.InRegister = false
	v.Reg = -1
	v.InGlobalRegister = false
	v.GlobalReg = -1
	v.InFrame = false
}

// GlobalCandidate reports whether v is eligible for global register
// allocation: used at least 3 times, not addressable, not volatile.
func (v *Value) GlobalCandidate() bool {
	return v.UsageCount >= 3 && !v.IsAddressable && !v.IsVolatile
}
