package builder

import (
	"github.com/mna/corejit/jit/ir"
)

// IntrinsicFlag mirrors the flags bitfield libjit's own opcode-apply table
// carries per entry. FlagNone means "use the intrinsic's result verbatim";
// FlagNot means the opcode has no intrinsic of its own and instead reuses
// a related opcode's (e.g. CMP_NE reuses CMP_EQ's), logically negating the
// i32 result — the same indirection _jit_opcode_apply performs when an
// entry's flags mask off to _JIT_INTRINSIC_FLAG_NOT.
type IntrinsicFlag uint8

const (
	FlagNone IntrinsicFlag = iota
	FlagNot
)

// SignatureTag encodes the C-style operand/result shape of an intrinsic,
// the same role the teacher's opcode.go stack-picture comments play, made
// machine-checkable: "i_ii" is (i32,i32)->i32, "l_ll" is (i64,i64)->i64,
// "f_ff" is (f32,f32)->f32, "d_dd" is (f64,f64)->f64.
type SignatureTag string

const (
	SigIII SignatureTag = "i_ii" // i32,i32 -> i32
	SigLLL SignatureTag = "l_ll" // i64,i64 -> i64
	SigFFF SignatureTag = "f_ff" // f32,f32 -> f32
	SigDDD SignatureTag = "d_dd" // f64,f64 -> f64
	SigII  SignatureTag = "i_i"  // i32 -> i32 (unary)
	SigLL  SignatureTag = "l_l"  // i64 -> i64 (unary)
)

// ConstOperand is one constant operand passed to an Intrinsic: exactly one
// of Int/Float is meaningful, selected by the operand's Kind.
type ConstOperand struct {
	Int   int64
	Float float64
}

// Intrinsic is one entry of the builder's opcode -> folding-function
// table. Fn evaluates the opcode on constant operands (1 or 2, per
// Signature) and returns the constant result.
type Intrinsic struct {
	Signature SignatureTag
	Flags     IntrinsicFlag
	Fn        func(a, b ConstOperand) ConstOperand
}

// intrinsics is the static opcode -> Intrinsic table the builder consults
// on every Append to decide whether an instruction is foldable. Only
// opcodes with known, side-effect-free constant semantics appear here;
// everything else (calls, memory ops, branches) is absent and therefore
// never folded.
var intrinsics = map[ir.Opcode]Intrinsic{
	ir.ADD: {Signature: SigIII, Fn: func(a, b ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(int32(a.Int) + int32(b.Int))}
	}},
	ir.SUB: {Signature: SigIII, Fn: func(a, b ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(int32(a.Int) - int32(b.Int))}
	}},
	ir.MUL: {Signature: SigIII, Fn: func(a, b ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(int32(a.Int) * int32(b.Int))}
	}},
	ir.AND: {Signature: SigIII, Fn: func(a, b ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(int32(a.Int) & int32(b.Int))}
	}},
	ir.OR: {Signature: SigIII, Fn: func(a, b ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(int32(a.Int) | int32(b.Int))}
	}},
	ir.XOR: {Signature: SigIII, Fn: func(a, b ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(int32(a.Int) ^ int32(b.Int))}
	}},
	ir.NEG: {Signature: SigII, Fn: func(a, _ ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(-int32(a.Int))}
	}},
	ir.NOT: {Signature: SigII, Fn: func(a, _ ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(^int32(a.Int))}
	}},
	ir.SHL: {Signature: SigIII, Fn: func(a, b ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(int32(a.Int) << uint(b.Int&31))}
	}},
	ir.SHR: {Signature: SigIII, Fn: func(a, b ConstOperand) ConstOperand {
		return ConstOperand{Int: int64(int32(a.Int) >> uint(b.Int&31))}
	}},

	// Comparisons fold to i32 0/1. CMP_NE and CMP_LE/CMP_GE are expressed
	// as the logical negation of CMP_EQ/CMP_GT/CMP_LT (FlagNot), matching
	// libjit's own _jit_intrinsics table where NE/LE/GE carry no intrinsic
	// of their own and instead point at EQ/GT/LT with the not-flag set,
	// instead of duplicating the comparison logic.
	ir.CMP_EQ: {Signature: SigIII, Fn: cmpEQ},
	ir.CMP_NE: {Signature: SigIII, Flags: FlagNot, Fn: cmpEQ},
	ir.CMP_LT: {Signature: SigIII, Fn: cmpLT},
	ir.CMP_GE: {Signature: SigIII, Flags: FlagNot, Fn: cmpLT},
	ir.CMP_GT: {Signature: SigIII, Fn: cmpGT},
	ir.CMP_LE: {Signature: SigIII, Flags: FlagNot, Fn: cmpGT},

	ir.ADD_OVF: {Signature: SigIII, Fn: addOvf},
	ir.SUB_OVF: {Signature: SigIII, Fn: subOvf},
	ir.MUL_OVF: {Signature: SigIII, Fn: mulOvf},
}

func cmpEQ(a, b ConstOperand) ConstOperand {
	if int32(a.Int) == int32(b.Int) {
		return ConstOperand{Int: 1}
	}
	return ConstOperand{Int: 0}
}

func cmpLT(a, b ConstOperand) ConstOperand {
	if int32(a.Int) < int32(b.Int) {
		return ConstOperand{Int: 1}
	}
	return ConstOperand{Int: 0}
}

func cmpGT(a, b ConstOperand) ConstOperand {
	if int32(a.Int) > int32(b.Int) {
		return ConstOperand{Int: 1}
	}
	return ConstOperand{Int: 0}
}

// addOvf/subOvf/mulOvf fold the checked-arithmetic opcodes only when the
// operation does NOT overflow; a folding caller is responsible for
// checking ovfOK itself, as Builder.tryFold does (Append never silently folds a
// checked op that actually overflows, it keeps the real instruction so
// the backend still emits the overflow check/throw).
func addOvf(a, b ConstOperand) ConstOperand {
	return ConstOperand{Int: int64(int32(a.Int) + int32(b.Int))}
}
func subOvf(a, b ConstOperand) ConstOperand {
	return ConstOperand{Int: int64(int32(a.Int) - int32(b.Int))}
}
func mulOvf(a, b ConstOperand) ConstOperand {
	return ConstOperand{Int: int64(int32(a.Int) * int32(b.Int))}
}

// ovfOK reports whether the checked opcode op applied to a,b (as i32)
// fits in an i32, i.e. does not overflow. Used by Builder.tryFold to
// refuse folding an overflowing checked op.
func ovfOK(op ir.Opcode, a, b int64) bool {
	x, y := int64(int32(a)), int64(int32(b))
	switch op {
	case ir.ADD_OVF:
		r := x + y
		return r == int64(int32(r))
	case ir.SUB_OVF:
		r := x - y
		return r == int64(int32(r))
	case ir.MUL_OVF:
		r := x * y
		return r == int64(int32(r))
	default:
		return true
	}
}

// foldFloat64 evaluates floating-point opcodes directly in float64, so
// folding yields the same bit pattern a backend emitting native f64
// instructions would produce: the IR models f64 arithmetic as ordinary
// IEEE-754 double operations, and Go's float64 type already is that.
func foldFloat64(op ir.Opcode, a, b float64) (float64, bool) {
	switch op {
	case ir.ADD:
		return a + b, true
	case ir.SUB:
		return a - b, true
	case ir.MUL:
		return a * b, true
	case ir.DIV:
		return a / b, true
	default:
		return 0, false
	}
}
