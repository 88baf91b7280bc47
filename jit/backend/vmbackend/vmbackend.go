// Package vmbackend implements a reference jit/backend.Backend targeting
// a small, fictitious register machine (not a real ISA): enough structure
// to drive every step of the code-generation pipeline and both register
// allocators end to end without depending on a real assembler.
//
// GenInsn's one-big-switch-over-opcode shape mirrors the dispatch loop of
// the teacher's lang/machine/machine.go eval loop, but emits bytes into a
// Gen rather than interpreting them against an operand stack.
package vmbackend

import (
	"fmt"
	"math"

	"github.com/mna/corejit/jit/backend"
	"github.com/mna/corejit/jit/coloring"
	"github.com/mna/corejit/jit/ir"
	"github.com/mna/corejit/jit/regalloc"
	"github.com/mna/corejit/jit/types"
)

const (
	numWordRegs  = 8
	numFloatRegs = 4
	framePtrReg  = numWordRegs - 1 // permanent; never handed to the allocator
)

// vmOp is this backend's one-byte instruction tag. Operands follow as
// register numbers (one byte each) or little-endian immediates, per tag.
type vmOp byte

const (
	vmNop vmOp = iota
	vmLoadConst
	vmLoadFrame
	vmCopy
	vmSpill
	vmBinary // ir.Opcode byte, dest, value1, value2
	vmUnary  // ir.Opcode byte, dest, value1
	vmBranch // then a 4-byte fix-up; also used for RETURN/RETURN_VOID's
	// jump to the shared epilogue, patched via Gen.AddReturnFixup
	vmCondBranch // ir.Opcode byte, value1, value2, then a 4-byte fix-up
	vmThrow
	vmLoadRelative
	vmStoreRelative
	vmAddressOf
	vmPushArg
	vmPopStack
	vmRedirector
	vmProlog
	vmEpilog
)

// wordReturnReg and floatReturnReg are the fixed ABI registers RETURN
// copies its value into before branching to the shared epilogue,
// mirroring a real calling convention's return-value register rather
// than encoding the value inline.
const (
	wordReturnReg  = 0
	floatReturnReg = numWordRegs
)

// Backend is the reference vm64 target.
type Backend struct {
	target *backend.Target
}

// New returns a Backend targeting vm64: 8 word registers (register 7
// permanently reserved) and 4 float registers, with registers 4-6 ranked
// as global-allocation candidates.
func New() *Backend {
	return &Backend{
		target: &backend.Target{
			Name:             "vm64",
			NumWordRegs:      numWordRegs,
			NumFloatRegs:     numFloatRegs,
			CallClobbered:    []int{0, 1, 2, 3},
			Permanent:        []int{framePtrReg},
			GlobalCandidates: []int{6, 5, 4},
			PrologSize:       5,
			Matrix:           coloring.NewCompatMatrix(),
		},
	}
}

func (b *Backend) Target() *backend.Target { return b.target }

// IsGlobalCandidate excludes aggregates: this target has no way to hold a
// struct/union in a single register.
func (b *Backend) IsGlobalCandidate(t *types.Type) bool {
	return t.Kind != types.Struct && t.Kind != types.Union
}

// OpcodeIsSupported reports the reduced opcode set this reference
// backend implements — the same subset jit/backend's textual assembler
// supports, since that is the only way to build a function for it in
// tests (CALL family, LOAD_ELEMENT/STORE_ELEMENT, and JUMPTABLE are
// unimplemented for the same three-address-shape reasons documented
// there).
func (b *Backend) OpcodeIsSupported(op ir.Opcode) bool {
	switch op {
	case ir.NOP, ir.ADD, ir.SUB, ir.MUL, ir.DIV, ir.REM, ir.AND, ir.OR, ir.XOR,
		ir.NOT, ir.NEG, ir.SHL, ir.SHR, ir.ADD_OVF, ir.SUB_OVF, ir.MUL_OVF,
		ir.CONV, ir.CONV_OVF,
		ir.CMP_LT, ir.CMP_LE, ir.CMP_GT, ir.CMP_GE, ir.CMP_EQ, ir.CMP_NE,
		ir.BR, ir.BR_LT, ir.BR_LE, ir.BR_GT, ir.BR_GE, ir.BR_EQ, ir.BR_NE,
		ir.RETURN, ir.RETURN_VOID, ir.THROW,
		ir.LOAD_RELATIVE, ir.STORE_RELATIVE, ir.ADDRESS_OF,
		ir.PUSH_ARG, ir.POP_STACK, ir.OUTGOING_REG, ir.INCOMING_REG, ir.RETURN_REG,
		ir.MARK_OFFSET:
		return true
	default:
		return false
	}
}

// FixValue bump-allocates value a frame slot from g, sized by its type,
// and records the offset back onto the Value for other consumers (e.g.
// a disassembler) to read.
func (b *Backend) FixValue(g *backend.Gen, fn *ir.Function, value ir.ValueID) int32 {
	v := fn.Value(value)
	off := g.FixValue(value, int32(v.Type.Size))
	v.FrameOffset = off
	return off
}

// LoadValue materializes value into reg from wherever its authoritative
// copy currently lives: an immediate for a constant, a frame read for a
// spilled value, or a register-to-register copy for a global register.
func (b *Backend) LoadValue(g *backend.Gen, fn *ir.Function, reg, otherReg int, value ir.ValueID) error {
	v := fn.Value(value)
	switch {
	case v.IsConstant:
		if err := g.Emit8(byte(vmLoadConst)); err != nil {
			return err
		}
		if err := g.Emit8(byte(reg)); err != nil {
			return err
		}
		bits := uint64(v.IntValue)
		if v.Type.Kind.IsFloat() {
			bits = math.Float64bits(v.FloatValue)
		}
		return g.Emit64(bits)
	case v.InGlobalRegister:
		return b.LoadGlobal(g, fn, reg, value)
	case v.InFrame:
		if err := g.Emit8(byte(vmLoadFrame)); err != nil {
			return err
		}
		if err := g.Emit8(byte(reg)); err != nil {
			return err
		}
		return g.Emit32(uint32(v.FrameOffset))
	default:
		return fmt.Errorf("vm64: value %d has no materializable location", value)
	}
}

// SpillReg writes reg back to value's frame slot, assigning one first if
// needed.
func (b *Backend) SpillReg(g *backend.Gen, fn *ir.Function, reg, otherReg int, value ir.ValueID) error {
	off := b.FixValue(g, fn, value)
	if err := g.Emit8(byte(vmSpill)); err != nil {
		return err
	}
	if err := g.Emit8(byte(reg)); err != nil {
		return err
	}
	return g.Emit32(uint32(off))
}

// FreeReg has no native encoding on this target: releasing a register
// without spilling is pure regalloc.File bookkeeping.
func (b *Backend) FreeReg(g *backend.Gen, fn *ir.Function, reg, otherReg int, valueUsed bool) error {
	return nil
}

// LoadGlobal copies value's global register into reg.
func (b *Backend) LoadGlobal(g *backend.Gen, fn *ir.Function, reg int, value ir.ValueID) error {
	v := fn.Value(value)
	if err := g.Emit8(byte(vmCopy)); err != nil {
		return err
	}
	if err := g.Emit8(byte(v.GlobalReg)); err != nil {
		return err
	}
	return g.Emit8(byte(reg))
}

// SpillGlobal copies reg into value's global register.
func (b *Backend) SpillGlobal(g *backend.Gen, fn *ir.Function, reg int, value ir.ValueID) error {
	v := fn.Value(value)
	if err := g.Emit8(byte(vmCopy)); err != nil {
		return err
	}
	if err := g.Emit8(byte(reg)); err != nil {
		return err
	}
	return g.Emit8(byte(v.GlobalReg))
}

// ExchTop/MoveTop/SpillTop: vm64 has no register stack, so no plan ever
// carries FlagStack/FlagX87Arith and these are never called in practice.
func (b *Backend) ExchTop(g *backend.Gen, reg int, pop bool) error {
	return fmt.Errorf("vm64: no register stack")
}

func (b *Backend) MoveTop(g *backend.Gen, reg int) error {
	return fmt.Errorf("vm64: no register stack")
}

func (b *Backend) SpillTop(g *backend.Gen, fn *ir.Function, reg int, value ir.ValueID, pop bool) error {
	return fmt.Errorf("vm64: no register stack")
}

// GenProlog writes the frame-size header vm64's interpreter needs to
// allocate a call frame. It is called in patch mode, once the body's
// frame size is fully known, so it counts its own bytes rather than
// diffing g.Len(), which does not move while patching an already-reserved
// region.
func (b *Backend) GenProlog(g *backend.Gen, fn *ir.Function) (int, error) {
	if err := g.Emit8(byte(vmProlog)); err != nil {
		return 0, err
	}
	if err := g.Emit32(uint32(g.FrameSize())); err != nil {
		return 0, err
	}
	return 5, nil
}

// GenEpilog writes the function's return sequence.
func (b *Backend) GenEpilog(g *backend.Gen, fn *ir.Function) error {
	return g.Emit8(byte(vmEpilog))
}

// GenRedirector writes a stub that reloads fn.EntryPoint and jumps to
// it, for the redirector republishing pattern.
func (b *Backend) GenRedirector(g *backend.Gen, fn *ir.Function) error {
	if err := g.Emit8(byte(vmRedirector)); err != nil {
		return err
	}
	return g.Emit64(uint64(fn.EntryPoint))
}

// GenInsn emits the native encoding of one instruction: build its
// RegisterPlan from IR operand flags, run the local allocator, realize
// the moves it returns, then emit the opcode itself.
func (b *Backend) GenInsn(g *backend.Gen, fn *ir.Function, block ir.BlockID, insn ir.InsnID) error {
	in := fn.Instruction(insn)
	if in.IsNop() {
		return nil
	}
	if !b.OpcodeIsSupported(in.Opcode) {
		return fmt.Errorf("vm64: unsupported opcode %s", in.Opcode)
	}

	plan := regalloc.PlanFromInstruction(in)
	b.fillPlan(fn, plan)

	dec, err := regalloc.Allocate(g.Regs, plan)
	if err != nil {
		return fmt.Errorf("vm64: %s: %w", in.Opcode, err)
	}
	for _, m := range dec.Moves {
		if err := b.applyMove(g, fn, m); err != nil {
			return fmt.Errorf("vm64: %s: %w", in.Opcode, err)
		}
	}
	return b.emitOp(g, fn, in, dec)
}

func (b *Backend) applyMove(g *backend.Gen, fn *ir.Function, m regalloc.Move) error {
	switch m.Kind {
	case regalloc.MoveLoad:
		if err := b.LoadValue(g, fn, m.ToReg, -1, m.Value); err != nil {
			return err
		}
		fn.Value(m.Value).SetRegister(m.ToReg)
	case regalloc.MoveCopy:
		if err := g.Emit8(byte(vmCopy)); err != nil {
			return err
		}
		if err := g.Emit8(byte(m.FromReg)); err != nil {
			return err
		}
		if err := g.Emit8(byte(m.ToReg)); err != nil {
			return err
		}
		fn.Value(m.Value).SetRegister(m.ToReg)
	case regalloc.MoveSpill:
		if err := b.SpillReg(g, fn, m.FromReg, -1, m.Value); err != nil {
			return err
		}
		fn.Value(m.Value).MarkSpilled()
	default:
		return fmt.Errorf("move kind %s not supported (no register stack)", m.Kind)
	}
	return nil
}

func (b *Backend) emitOp(g *backend.Gen, fn *ir.Function, in *ir.Instruction, dec *regalloc.Decision) error {
	op := in.Opcode
	switch {
	case op == ir.NOP:
		return nil

	case op == ir.BR || op.IsConditionalBranch():
		return b.emitBranch(g, fn, in, dec)

	case op == ir.RETURN:
		v := fn.Value(in.Value1)
		retReg := wordReturnReg
		if v.Type.Kind.IsFloat() {
			retReg = floatReturnReg
		}
		if err := g.Emit8(byte(vmCopy)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value1)); err != nil {
			return err
		}
		if err := g.Emit8(byte(retReg)); err != nil {
			return err
		}
		return b.emitReturnBranch(g)

	case op == ir.RETURN_VOID:
		return b.emitReturnBranch(g)

	case op == ir.THROW:
		if err := g.Emit8(byte(vmThrow)); err != nil {
			return err
		}
		return g.Emit8(byte(dec.Value1))

	case op == ir.STORE_RELATIVE:
		if err := g.Emit8(byte(vmStoreRelative)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value1)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value2)); err != nil {
			return err
		}
		return g.Emit32(uint32(in.Aux))

	case op == ir.PUSH_ARG:
		if err := g.Emit8(byte(vmPushArg)); err != nil {
			return err
		}
		return g.Emit8(byte(dec.Value1))

	case op == ir.POP_STACK:
		if err := g.Emit8(byte(vmPopStack)); err != nil {
			return err
		}
		return g.Emit32(uint32(in.Aux))

	case op == ir.OUTGOING_REG:
		if err := g.Emit8(byte(vmCopy)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value1)); err != nil {
			return err
		}
		return g.Emit8(byte(in.Aux))

	case op == ir.INCOMING_REG:
		if err := g.Emit8(byte(vmCopy)); err != nil {
			return err
		}
		if err := g.Emit8(byte(in.Aux)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Dest)); err != nil {
			return err
		}
		fn.Value(in.Dest).SetRegister(dec.Dest)
		return nil

	case op == ir.RETURN_REG:
		if err := g.Emit8(byte(vmCopy)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value1)); err != nil {
			return err
		}
		return g.Emit8(byte(in.Aux))

	case op == ir.LOAD_RELATIVE:
		if err := g.Emit8(byte(vmLoadRelative)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Dest)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value1)); err != nil {
			return err
		}
		if err := g.Emit32(uint32(in.Aux)); err != nil {
			return err
		}
		fn.Value(in.Dest).SetRegister(dec.Dest)
		return nil

	case op == ir.ADDRESS_OF:
		if err := g.Emit8(byte(vmAddressOf)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Dest)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value1)); err != nil {
			return err
		}
		fn.Value(in.Dest).SetRegister(dec.Dest)
		return nil

	case dec.Value2 != -1:
		if err := g.Emit8(byte(vmBinary)); err != nil {
			return err
		}
		if err := g.Emit8(byte(op)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Dest)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value1)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value2)); err != nil {
			return err
		}
		fn.Value(in.Dest).SetRegister(dec.Dest)
		return nil

	default:
		if err := g.Emit8(byte(vmUnary)); err != nil {
			return err
		}
		if err := g.Emit8(byte(op)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Dest)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value1)); err != nil {
			return err
		}
		fn.Value(in.Dest).SetRegister(dec.Dest)
		return nil
	}
}

// emitBranch writes the branch opcode plus condition operands (if any),
// then reserves a 4-byte fix-up slot and registers it against the
// target block, per the label protocol: the driver patches it when the
// target block is emitted or, for a target emitted earlier (a backward
// branch), in a pass after every block's address is known.
func (b *Backend) emitBranch(g *backend.Gen, fn *ir.Function, in *ir.Instruction, dec *regalloc.Decision) error {
	targetBlock, ok := fn.BlockByLabel(ir.LabelID(in.Dest))
	if !ok {
		return fmt.Errorf("branch to unbound label %d", in.Dest)
	}

	if in.Opcode == ir.BR {
		if err := g.Emit8(byte(vmBranch)); err != nil {
			return err
		}
	} else {
		if err := g.Emit8(byte(vmCondBranch)); err != nil {
			return err
		}
		if err := g.Emit8(byte(in.Opcode)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value1)); err != nil {
			return err
		}
		if err := g.Emit8(byte(dec.Value2)); err != nil {
			return err
		}
	}

	offset, err := g.Reserve(4)
	if err != nil {
		return err
	}
	fn.Block(targetBlock).AddFixUp(offset)
	return nil
}

// emitReturnBranch writes an unconditional branch and reserves its 4-byte
// fix-up as a return-site fix-up rather than a block fix-up: the driver
// patches every one to the shared epilogue's address once it is known.
func (b *Backend) emitReturnBranch(g *backend.Gen) error {
	if err := g.Emit8(byte(vmBranch)); err != nil {
		return err
	}
	offset, err := g.Reserve(4)
	if err != nil {
		return err
	}
	g.AddReturnFixup(offset)
	return nil
}

func (b *Backend) fillPlan(fn *ir.Function, plan *regalloc.RegisterPlan) {
	set := func(slot *regalloc.OperandSlot) {
		if slot.Value == ir.NoValue {
			return
		}
		slot.Allowed = b.classRegs(fn.Value(slot.Value).Type)
	}
	set(&plan.Dest)
	set(&plan.Value1)
	set(&plan.Value2)
}

func (b *Backend) classRegs(t *types.Type) []int {
	if t.Kind.IsFloat() {
		out := make([]int, b.target.NumFloatRegs)
		for i := range out {
			out[i] = b.target.NumWordRegs + i
		}
		return out
	}
	out := make([]int, 0, b.target.NumWordRegs-1)
	for i := 0; i < b.target.NumWordRegs; i++ {
		if i == framePtrReg {
			continue
		}
		out = append(out, i)
	}
	return out
}
